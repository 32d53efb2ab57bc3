package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeAdmin marks the admin session token.
const TokenTypeAdmin = "admin"

type TokenClaims struct {
	Type    string `json:"type"`
	Subject string `json:"sub_id"`
	jwt.RegisteredClaims
}

// LoginRequest is the admin login payload. Code carries either a TOTP code or a backup code.
type LoginRequest struct {
	Password string `json:"password" validate:"required,max=256"`
	Code     string `json:"code,omitempty" validate:"omitempty,max=32"`
}

type LoginResponse struct {
	Success   bool `json:"success"`
	ExpiresIn int  `json:"expires_in"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type ValidateResetTokenRequest struct {
	Token string `json:"token" validate:"required,max=128"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required,max=128"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}
