package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/vigil/internal/auth"
	"github.com/BradenHooton/vigil/internal/models"
	"github.com/BradenHooton/vigil/internal/services"
	pkghttp "github.com/BradenHooton/vigil/pkg/http"
)

const genericResetMessage = "If that address belongs to the admin account, a reset link has been sent."

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, req models.LoginRequest, ip string) (*services.LoginResult, error)
}

// PasswordResetServiceInterface defines the interface for the reset flow
type PasswordResetServiceInterface interface {
	RequestReset(ctx context.Context, email, ip string) error
	ValidateToken(ctx context.Context, token, ip string) error
	ResetPassword(ctx context.Context, token, password, ip string) error
}

// AuthHandler handles admin login, logout and password reset.
type AuthHandler struct {
	service  AuthServiceInterface
	reset    PasswordResetServiceInterface
	ipConfig *pkghttp.IPConfig
	cookies  auth.CookieConfig
	logger   *slog.Logger
}

func NewAuthHandler(service AuthServiceInterface, reset PasswordResetServiceInterface, ipConfig *pkghttp.IPConfig, cookies auth.CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:  service,
		reset:    reset,
		ipConfig: ipConfig,
		cookies:  cookies,
		logger:   logger,
	}
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type validTokenResponse struct {
	Valid bool `json:"valid"`
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)

	result, err := h.service.Login(r.Context(), req, ip)
	if err != nil {
		switch {
		case writeThrottled(w, err):
		case errors.Is(err, models.ErrTwoFactorRequired):
			pkghttp.WriteError(w, http.StatusUnauthorized, "two_factor_required", "Two-factor code required")
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	auth.SetAdminCookie(w, result.Token, result.ExpiresIn, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, models.LoginResponse{
		Success:   true,
		ExpiresIn: int(result.ExpiresIn.Seconds()),
	})
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearAdminCookie(w, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

// ForgotPassword handles POST /auth/forgot-password. The answer is the same
// whether or not the address matched.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ForgotPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	if err := h.reset.RequestReset(r.Context(), req.Email, ip); err != nil {
		if writeThrottled(w, err) {
			return
		}
		h.logger.Error("password reset request failed", slog.Any("error", err))
	}

	pkghttp.WriteJSON(w, http.StatusOK, successResponse{Success: true, Message: genericResetMessage})
}

// ValidateResetToken handles POST /auth/validate-reset-token
func (h *AuthHandler) ValidateResetToken(w http.ResponseWriter, r *http.Request) {
	var req models.ValidateResetTokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	if err := h.reset.ValidateToken(r.Context(), req.Token, ip); err != nil {
		switch {
		case writeThrottled(w, err):
		case errors.Is(err, models.ErrInvalidToken):
			pkghttp.WriteBadRequest(w, "Invalid or expired token")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, validTokenResponse{Valid: true})
}

// ResetPassword handles POST /auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ResetPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	if err := h.reset.ResetPassword(r.Context(), req.Token, req.Password, ip); err != nil {
		switch {
		case writeThrottled(w, err):
		case errors.Is(err, models.ErrInvalidToken):
			pkghttp.WriteBadRequest(w, "Invalid or expired token")
		case errors.Is(err, models.ErrPasswordReuse):
			pkghttp.WriteBadRequest(w, "Password was used recently, choose a different one")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Password does not meet the strength requirements")
		default:
			h.logger.Error("password reset failed", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, successResponse{Success: true, Message: "Password updated"})
}
