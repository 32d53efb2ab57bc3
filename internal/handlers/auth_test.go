package handlers_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/vigil/internal/auth"
	"github.com/BradenHooton/vigil/internal/handlers"
	"github.com/BradenHooton/vigil/internal/models"
	"github.com/BradenHooton/vigil/internal/services"
	pkghttp "github.com/BradenHooton/vigil/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAuthHandler(svc *handlers.MockAuthService, reset *handlers.MockPasswordResetService) *handlers.AuthHandler {
	return handlers.NewAuthHandler(svc, reset, pkghttp.NewIPConfig(nil), auth.CookieConfig{SameSite: "strict"}, testLogger())
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLogin_Success(t *testing.T) {
	var gotIP string
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, req models.LoginRequest, ip string) (*services.LoginResult, error) {
			gotIP = ip
			return &services.LoginResult{Token: "jwt_token_123", ExpiresIn: 24 * time.Hour}, nil
		},
	}

	handler := newAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", models.LoginRequest{Password: "correct-horse"})
	req.RemoteAddr = "203.0.113.7:5555"

	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp models.LoginResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, 86400, resp.ExpiresIn)
	assert.Equal(t, "203.0.113.7", gotIP)

	cookie := findCookie(w, auth.AdminCookieName)
	require.NotNil(t, cookie)
	assert.Equal(t, "jwt_token_123", cookie.Value)
	assert.True(t, cookie.HttpOnly)
}

func TestLogin_AuthenticationFailed(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, req models.LoginRequest, ip string) (*services.LoginResult, error) {
			return nil, models.ErrUnauthorized
		},
	}

	handler := newAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", models.LoginRequest{Password: "wrong"})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
	assert.Nil(t, findCookie(w, auth.AdminCookieName))
}

func TestLogin_TwoFactorRequired(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, req models.LoginRequest, ip string) (*services.LoginResult, error) {
			return nil, models.ErrTwoFactorRequired
		},
	}

	handler := newAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", models.LoginRequest{Password: "correct-horse"})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 401, "two_factor_required")
}

func TestLogin_RateLimitExceeded(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, req models.LoginRequest, ip string) (*services.LoginResult, error) {
			return nil, &models.ThrottleError{Err: models.ErrRateLimitExceeded, RetryAfter: 120}
		},
	}

	handler := newAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", models.LoginRequest{Password: "x"})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 429, "rate_limit_exceeded")
	assert.Equal(t, "120", w.Header().Get("Retry-After"))
}

func TestLogin_AccountLocked(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, req models.LoginRequest, ip string) (*services.LoginResult, error) {
			return nil, &models.ThrottleError{Err: models.ErrAccountLocked, RetryAfter: 1800}
		},
	}

	handler := newAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", models.LoginRequest{Password: "x"})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 429, "rate_limit_exceeded")
	assert.Equal(t, "1800", w.Header().Get("Retry-After"))
}

func TestLogin_MissingPassword(t *testing.T) {
	called := false
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, req models.LoginRequest, ip string) (*services.LoginResult, error) {
			called = true
			return nil, nil
		},
	}

	handler := newAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", map[string]string{})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
	assert.False(t, called)
}

func TestLogin_InternalError(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, req models.LoginRequest, ip string) (*services.LoginResult, error) {
			return nil, errors.New("database down")
		},
	}

	handler := newAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", models.LoginRequest{Password: "x"})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 500, "internal_error")
}

func TestLogout_ClearsCookie(t *testing.T) {
	handler := newAuthHandler(&handlers.MockAuthService{}, nil)
	req := httptest.NewRequest("POST", "/auth/logout", nil)

	w := httptest.NewRecorder()
	handler.Logout(w, req)

	assert.Equal(t, 200, w.Code)
	cookie := findCookie(w, auth.AdminCookieName)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Less(t, cookie.MaxAge, 0)
}

func TestForgotPassword_GenericResponse(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"matched", nil},
		{"service error", errors.New("smtp down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reset := &handlers.MockPasswordResetService{
				RequestResetFunc: func(ctx context.Context, email, ip string) error {
					return tt.err
				},
			}
			handler := newAuthHandler(&handlers.MockAuthService{}, reset)
			req := handlers.NewTestRequest(t, "POST", "/auth/forgot-password", models.ForgotPasswordRequest{Email: "anyone@example.com"})

			w := httptest.NewRecorder()
			handler.ForgotPassword(w, req)

			var resp struct {
				Success bool   `json:"success"`
				Message string `json:"message"`
			}
			handlers.AssertJSONResponse(t, w, 200, &resp)
			assert.True(t, resp.Success)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestForgotPassword_Throttled(t *testing.T) {
	reset := &handlers.MockPasswordResetService{
		RequestResetFunc: func(ctx context.Context, email, ip string) error {
			return &models.ThrottleError{Err: models.ErrRateLimitExceeded, RetryAfter: 3600}
		},
	}
	handler := newAuthHandler(&handlers.MockAuthService{}, reset)
	req := handlers.NewTestRequest(t, "POST", "/auth/forgot-password", models.ForgotPasswordRequest{Email: "admin@example.com"})

	w := httptest.NewRecorder()
	handler.ForgotPassword(w, req)

	handlers.AssertErrorResponse(t, w, 429, "rate_limit_exceeded")
	assert.Equal(t, "3600", w.Header().Get("Retry-After"))
}

func TestForgotPassword_InvalidEmail(t *testing.T) {
	handler := newAuthHandler(&handlers.MockAuthService{}, &handlers.MockPasswordResetService{})
	req := handlers.NewTestRequest(t, "POST", "/auth/forgot-password", models.ForgotPasswordRequest{Email: "not-an-email"})

	w := httptest.NewRecorder()
	handler.ForgotPassword(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestValidateResetToken(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"valid", nil, 200},
		{"invalid", models.ErrInvalidToken, 400},
		{"throttled", &models.ThrottleError{Err: models.ErrRateLimitExceeded, RetryAfter: 60}, 429},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reset := &handlers.MockPasswordResetService{
				ValidateTokenFunc: func(ctx context.Context, token, ip string) error {
					return tt.err
				},
			}
			handler := newAuthHandler(&handlers.MockAuthService{}, reset)
			req := handlers.NewTestRequest(t, "POST", "/auth/validate-reset-token", models.ValidateResetTokenRequest{Token: "abc"})

			w := httptest.NewRecorder()
			handler.ValidateResetToken(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestResetPassword_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid token", models.ErrInvalidToken, 400, "bad_request"},
		{"reused password", models.ErrPasswordReuse, 400, "bad_request"},
		{"weak password", models.ErrBadRequest, 400, "bad_request"},
		{"throttled", &models.ThrottleError{Err: models.ErrRateLimitExceeded, RetryAfter: 60}, 429, "rate_limit_exceeded"},
		{"storage failure", errors.New("boom"), 500, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reset := &handlers.MockPasswordResetService{
				ResetPasswordFunc: func(ctx context.Context, token, password, ip string) error {
					return tt.err
				},
			}
			handler := newAuthHandler(&handlers.MockAuthService{}, reset)
			req := handlers.NewTestRequest(t, "POST", "/auth/reset-password", models.ResetPasswordRequest{
				Token:    "abc",
				Password: "a-new-password-1",
			})

			w := httptest.NewRecorder()
			handler.ResetPassword(w, req)

			handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestResetPassword_Success(t *testing.T) {
	var gotPassword string
	reset := &handlers.MockPasswordResetService{
		ResetPasswordFunc: func(ctx context.Context, token, password, ip string) error {
			gotPassword = password
			return nil
		},
	}
	handler := newAuthHandler(&handlers.MockAuthService{}, reset)
	req := handlers.NewTestRequest(t, "POST", "/auth/reset-password", models.ResetPasswordRequest{
		Token:    "abc",
		Password: "a-new-password-1",
	})

	w := httptest.NewRecorder()
	handler.ResetPassword(w, req)

	var resp struct {
		Success bool `json:"success"`
	}
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "a-new-password-1", gotPassword)
}

func TestResetPassword_ShortPasswordRejectedBeforeService(t *testing.T) {
	called := false
	reset := &handlers.MockPasswordResetService{
		ResetPasswordFunc: func(ctx context.Context, token, password, ip string) error {
			called = true
			return nil
		},
	}
	handler := newAuthHandler(&handlers.MockAuthService{}, reset)
	req := handlers.NewTestRequest(t, "POST", "/auth/reset-password", models.ResetPasswordRequest{Token: "abc", Password: "short"})

	w := httptest.NewRecorder()
	handler.ResetPassword(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
	assert.False(t, called)
}
