package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/vigil/internal/models"
	"github.com/BradenHooton/vigil/internal/ratelimit"
	"github.com/BradenHooton/vigil/internal/services"
	pkghttp "github.com/BradenHooton/vigil/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), target), "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc func(ctx context.Context, req models.LoginRequest, ip string) (*services.LoginResult, error)
}

func (m *MockAuthService) Login(ctx context.Context, req models.LoginRequest, ip string) (*services.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, req, ip)
	}
	return nil, models.ErrUnauthorized
}

// MockPasswordResetService implements PasswordResetServiceInterface for testing
type MockPasswordResetService struct {
	RequestResetFunc  func(ctx context.Context, email, ip string) error
	ValidateTokenFunc func(ctx context.Context, token, ip string) error
	ResetPasswordFunc func(ctx context.Context, token, password, ip string) error
}

func (m *MockPasswordResetService) RequestReset(ctx context.Context, email, ip string) error {
	if m.RequestResetFunc != nil {
		return m.RequestResetFunc(ctx, email, ip)
	}
	return nil
}

func (m *MockPasswordResetService) ValidateToken(ctx context.Context, token, ip string) error {
	if m.ValidateTokenFunc != nil {
		return m.ValidateTokenFunc(ctx, token, ip)
	}
	return nil
}

func (m *MockPasswordResetService) ResetPassword(ctx context.Context, token, password, ip string) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, token, password, ip)
	}
	return nil
}

// MockMFAService implements MFAServiceInterface for testing
type MockMFAService struct {
	StatusFunc  func(ctx context.Context) (*models.TwoFactorStatus, error)
	SetupFunc   func(ctx context.Context) (*models.TwoFactorSetupResponse, error)
	EnableFunc  func(ctx context.Context, code, ip string) error
	DisableFunc func(ctx context.Context, code, ip string) error
}

func (m *MockMFAService) Status(ctx context.Context) (*models.TwoFactorStatus, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx)
	}
	return &models.TwoFactorStatus{}, nil
}

func (m *MockMFAService) Setup(ctx context.Context) (*models.TwoFactorSetupResponse, error) {
	if m.SetupFunc != nil {
		return m.SetupFunc(ctx)
	}
	return &models.TwoFactorSetupResponse{}, nil
}

func (m *MockMFAService) Enable(ctx context.Context, code, ip string) error {
	if m.EnableFunc != nil {
		return m.EnableFunc(ctx, code, ip)
	}
	return nil
}

func (m *MockMFAService) Disable(ctx context.Context, code, ip string) error {
	if m.DisableFunc != nil {
		return m.DisableFunc(ctx, code, ip)
	}
	return nil
}

// MockVisitService implements VisitServiceInterface for testing
type MockVisitService struct {
	LogVisitFunc   func(ctx context.Context, req models.VisitRequest) (*models.Visitor, error)
	SetConsentFunc func(ctx context.Context, sessionID string, consent bool) error
}

func (m *MockVisitService) LogVisit(ctx context.Context, req models.VisitRequest) (*models.Visitor, error) {
	if m.LogVisitFunc != nil {
		return m.LogVisitFunc(ctx, req)
	}
	return &models.Visitor{SessionID: req.SessionID}, nil
}

func (m *MockVisitService) SetConsent(ctx context.Context, sessionID string, consent bool) error {
	if m.SetConsentFunc != nil {
		return m.SetConsentFunc(ctx, sessionID, consent)
	}
	return nil
}

// MockAlertService implements AlertServiceInterface for testing
// MockVisitThrottle records the identifiers it was asked about
type MockVisitThrottle struct {
	AllowFunc func(ctx context.Context, policy, identifier string) (ratelimit.Decision, error)
	Calls     []string
}

func (m *MockVisitThrottle) Allow(ctx context.Context, policy, identifier string) (ratelimit.Decision, error) {
	m.Calls = append(m.Calls, policy+":"+identifier)
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, policy, identifier)
	}
	return ratelimit.Decision{Allowed: true}, nil
}

type MockAlertService struct {
	ListFunc     func(ctx context.Context, limit int, unreadOnly bool) ([]models.Alert, error)
	MarkReadFunc func(ctx context.Context, id string) error
}

func (m *MockAlertService) List(ctx context.Context, limit int, unreadOnly bool) ([]models.Alert, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, unreadOnly)
	}
	return []models.Alert{}, nil
}

func (m *MockAlertService) MarkRead(ctx context.Context, id string) error {
	if m.MarkReadFunc != nil {
		return m.MarkReadFunc(ctx, id)
	}
	return nil
}

// MockDigestService implements DigestServiceInterface for testing
type MockDigestService struct {
	ListFunc func(ctx context.Context, limit int) ([]models.DailyDigest, error)
}

func (m *MockDigestService) List(ctx context.Context, limit int) ([]models.DailyDigest, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit)
	}
	return []models.DailyDigest{}, nil
}
