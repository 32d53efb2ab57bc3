//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/vigil/internal/auth"
	"github.com/BradenHooton/vigil/internal/database"
	"github.com/BradenHooton/vigil/internal/detection"
	"github.com/BradenHooton/vigil/internal/handlers"
	"github.com/BradenHooton/vigil/internal/identity"
	middlewareCustom "github.com/BradenHooton/vigil/internal/middleware"
	"github.com/BradenHooton/vigil/internal/models"
	"github.com/BradenHooton/vigil/internal/ratelimit"
	"github.com/BradenHooton/vigil/internal/routes"
	"github.com/BradenHooton/vigil/internal/services"
	pkghttp "github.com/BradenHooton/vigil/pkg/http"
	pkglogger "github.com/BradenHooton/vigil/pkg/logger"
)

const (
	testAdminEmail     = "admin@vigil.test"
	testAdminPassword  = "dev:correct-horse"
	testInternalSecret = "internal-test-secret"
)

// SentEmail represents a captured email message
type SentEmail struct {
	To    string
	Token string
	Alert *models.Alert
}

// MockEmailService captures sent emails for test assertions
type MockEmailService struct {
	SentEmails []SentEmail
	mu         sync.Mutex
}

func (m *MockEmailService) SendPasswordReset(ctx context.Context, to, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentEmails = append(m.SentEmails, SentEmail{To: to, Token: token})
	return nil
}

func (m *MockEmailService) SendAlert(ctx context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentEmails = append(m.SentEmails, SentEmail{To: testAdminEmail, Alert: alert})
	return nil
}

// GetLastEmail returns the most recent email sent
func (m *MockEmailService) GetLastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.SentEmails) == 0 {
		return nil
	}
	e := m.SentEmails[len(m.SentEmails)-1]
	return &e
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	EmailService *MockEmailService
	Alerts       *services.AlertEmitter
	Tracker      *middlewareCustom.VisitTracker
	Client       *http.Client
}

// NewTestServer wires the production stack over a real database with an
// in-memory counter store and captured email.
func NewTestServer(db *database.DB) *TestServer {
	logger := quietLogger()
	repos := InitializeRepositories(db)
	mockEmail := &MockEmailService{}

	limiter, err := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), true, logger,
		ratelimit.Policy{Name: ratelimit.PolicyLogin, Window: 15 * time.Minute, MaxRequests: 50},
		ratelimit.Policy{Name: ratelimit.PolicyPasswordReset, Window: time.Hour, MaxRequests: 3},
		ratelimit.Policy{Name: ratelimit.PolicyResetPassword, Window: 15 * time.Minute, MaxRequests: 10},
		ratelimit.Policy{Name: ratelimit.PolicyTwoFactor, Window: 15 * time.Minute, MaxRequests: 10},
		ratelimit.Policy{Name: ratelimit.PolicyLogVisit, Window: time.Minute, MaxRequests: 1000},
	)
	if err != nil {
		panic(err)
	}
	lockout := ratelimit.NewLockoutTracker(ratelimit.LockoutConfig{
		MaxAttempts:     5,
		AttemptWindow:   15 * time.Minute,
		LockoutDuration: 30 * time.Minute,
	})

	tokenManager := auth.NewTokenManager("test-secret-32-characters-long-for-testing", time.Hour)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{})
	totpManager, err := auth.NewTOTPManager([]byte("test-2fa-encryption-key-32-bytes"), "VigilTest")
	if err != nil {
		panic(err)
	}
	auditLogger := pkglogger.NewAuditLogger(logger)

	alertEmitter := services.NewAlertEmitter(repos.Alerts, mockEmail, 64, 1, logger)
	alertEmitter.Start()

	visitService := services.NewVisitService(
		detection.NewClassifier(),
		identity.NewHasher("ip-salt", "ua-salt"),
		repos.Visitors,
		repos.Sessions,
		alertEmitter,
		100,
		logger,
	)
	mfaService := services.NewMFAService(repos.Settings, totpManager, 8, testAdminEmail, auditLogger, logger)
	authService := services.NewAuthService(repos.Settings, mfaService, limiter, lockout, tokenManager, timingDelay,
		testAdminPassword, "test", auditLogger, logger)
	resetService := services.NewPasswordResetService(repos.Settings, mockEmail, limiter,
		testAdminEmail, testAdminPassword, "test", time.Hour, auditLogger, logger)

	ipConfig := pkghttp.NewIPConfig(nil)
	cookieConfig := auth.CookieConfig{SameSite: "lax"}

	h := routes.Handlers{
		Auth:   handlers.NewAuthHandler(authService, resetService, ipConfig, cookieConfig, logger),
		MFA:    handlers.NewMFAHandler(mfaService, ipConfig, logger),
		Visits: handlers.NewVisitHandler(visitService, limiter, ipConfig, testInternalSecret, logger),
		Alerts: handlers.NewAlertHandler(services.NewAlertService(repos.Alerts), services.NewDigestService(repos.Digests, logger), logger),
		Health: handlers.NewHealthHandler(db),
	}

	tracker := middlewareCustom.NewVisitTracker(visitService, middlewareCustom.VisitTrackerConfig{
		IPConfig:         ipConfig,
		Cookies:          cookieConfig,
		ExcludedPrefixes: []string{"/health", "/ready", "/metrics", "/auth/", "/api/", "/internal/"},
	}, logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(tracker.Middleware)

	routes.RegisterRoutes(r, h, tokenManager, routes.Throttling{
		Limiter:  limiter,
		IPConfig: ipConfig,
		PerIP:    middlewareCustom.RateLimitConfig{RequestsPerMinute: 1000},
	}, logger)

	// Catch-all page so the tracker has something to observe
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	jar, _ := cookiejar.New(nil)

	return &TestServer{
		Server:       httptest.NewServer(r),
		DB:           db,
		EmailService: mockEmail,
		Alerts:       alertEmitter,
		Tracker:      tracker,
		Client:       &http.Client{Jar: jar},
	}
}

// Close shuts down the test server and drains background work
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	ts.Tracker.Wait()
	ts.Alerts.Stop()
}

// Request makes an HTTP request to the test server; cookies persist across calls
func (ts *TestServer) Request(method, path string, body any, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return ts.Client.Do(req)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorCode extracts the machine-readable error code from an error response
func GetErrorCode(resp *http.Response) (string, error) {
	var errResp pkghttp.ErrorResponse
	if err := ParseJSONResponse(resp, &errResp); err != nil {
		return "", err
	}
	return errResp.Error, nil
}
