package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Throttling
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrAccountLocked     = errors.New("account is temporarily locked")

	// Second factor
	ErrTwoFactorRequired = errors.New("two-factor code required")
	ErrTwoFactorNotSetup = errors.New("two-factor authentication is not set up")
	ErrTwoFactorEnabled  = errors.New("two-factor authentication is already enabled")
	ErrInvalidTwoFactor  = errors.New("invalid two-factor code")

	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrPasswordReuse = errors.New("password was used recently")
)

// ThrottleError carries the retry hint for a rate-limit or lockout rejection.
// It unwraps to ErrRateLimitExceeded or ErrAccountLocked.
type ThrottleError struct {
	Err        error
	RetryAfter int // seconds
}

func (e *ThrottleError) Error() string { return e.Err.Error() }

func (e *ThrottleError) Unwrap() error { return e.Err }
