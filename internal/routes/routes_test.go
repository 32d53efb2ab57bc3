package routes

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/vigil/internal/auth"
	"github.com/BradenHooton/vigil/internal/handlers"
	"github.com/BradenHooton/vigil/internal/middleware"
	"github.com/BradenHooton/vigil/internal/ratelimit"
	pkghttp "github.com/BradenHooton/vigil/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type okChecker struct{}

func (okChecker) HealthCheck(ctx context.Context) error { return nil }

func newTestRouter(t *testing.T) (*chi.Mux, *auth.TokenManager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ipConfig := pkghttp.NewIPConfig(nil)

	limiter, err := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), true, logger,
		ratelimit.Policy{Name: ratelimit.PolicyTwoFactor, Window: time.Minute, MaxRequests: 5},
		ratelimit.Policy{Name: ratelimit.PolicyLogVisit, Window: time.Minute, MaxRequests: 100},
	)
	require.NoError(t, err)

	tm := auth.NewTokenManager("test-secret-32-characters-long!", time.Hour)

	h := Handlers{
		Auth:   handlers.NewAuthHandler(&handlers.MockAuthService{}, &handlers.MockPasswordResetService{}, ipConfig, auth.CookieConfig{}, logger),
		MFA:    handlers.NewMFAHandler(&handlers.MockMFAService{}, ipConfig, logger),
		Visits: handlers.NewVisitHandler(&handlers.MockVisitService{}, limiter, ipConfig, "", logger),
		Alerts: handlers.NewAlertHandler(&handlers.MockAlertService{}, &handlers.MockDigestService{}, logger),
		Health: handlers.NewHealthHandler(okChecker{}),
	}

	r := chi.NewRouter()
	RegisterRoutes(r, h, tm, Throttling{
		Limiter:  limiter,
		IPConfig: ipConfig,
		PerIP:    middleware.RateLimitConfig{RequestsPerMinute: 100},
	}, logger)
	return r, tm
}

func TestRoutes_PublicHealthEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRoutes_AdminRequiresToken(t *testing.T) {
	r, tm := newTestRouter(t)

	adminRoutes := []struct {
		method string
		path   string
	}{
		{"GET", "/api/settings/2fa"},
		{"POST", "/api/settings/2fa/setup"},
		{"GET", "/api/alerts"},
		{"POST", "/api/alerts/a1/read"},
		{"GET", "/api/digests"},
	}

	for _, rt := range adminRoutes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(rt.method, rt.path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, rt.path)
	}

	token, err := tm.GenerateAdminToken()
	require.NoError(t, err)

	for _, rt := range adminRoutes {
		req := httptest.NewRequest(rt.method, rt.path, nil)
		req.AddCookie(&http.Cookie{Name: auth.AdminCookieName, Value: token})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, rt.path)
	}
}

func TestRoutes_TwoFactorPolicyApplied(t *testing.T) {
	r, tm := newTestRouter(t)
	token, err := tm.GenerateAdminToken()
	require.NoError(t, err)

	var last int
	for i := 0; i < 6; i++ {
		req := handlers.NewTestRequest(t, "POST", "/api/settings/2fa/enable", map[string]string{"code": "123456"})
		req.RemoteAddr = "192.0.2.44:9000"
		req.AddCookie(&http.Cookie{Name: auth.AdminCookieName, Value: token})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		last = w.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
