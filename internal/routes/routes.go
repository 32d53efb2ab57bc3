package routes

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/vigil/internal/auth"
	"github.com/BradenHooton/vigil/internal/handlers"
	"github.com/BradenHooton/vigil/internal/metrics"
	"github.com/BradenHooton/vigil/internal/middleware"
	"github.com/BradenHooton/vigil/internal/ratelimit"
	pkghttp "github.com/BradenHooton/vigil/pkg/http"
	"github.com/go-chi/chi/v5"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes.
type Handlers struct {
	Auth   *handlers.AuthHandler
	MFA    *handlers.MFAHandler
	Visits *handlers.VisitHandler
	Alerts *handlers.AlertHandler
	Health *handlers.HealthHandler
}

// Throttling holds what the route-level limiters need.
type Throttling struct {
	Limiter  middleware.PolicyLimiter
	IPConfig *pkghttp.IPConfig
	PerIP    middleware.RateLimitConfig
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	tokenManager *auth.TokenManager,
	throttling Throttling,
	logger *slog.Logger,
) {
	perIP := middleware.RateLimitByIP(throttling.PerIP)
	policy := func(name string) func(next http.Handler) http.Handler {
		return middleware.RateLimitPolicy(throttling.Limiter, name, throttling.IPConfig, logger)
	}

	// Health checks and scraping; keep /metrics off the public network
	router.Get("/health", h.Health.Live)
	router.Get("/ready", h.Health.Ready)
	router.Handle("/metrics", metrics.Handler())

	// Login and reset apply their own named policies inside the services
	router.Route("/auth", func(r chi.Router) {
		r.Use(perIP)
		r.Post("/login", h.Auth.Login)
		r.Post("/logout", h.Auth.Logout)
		r.Post("/forgot-password", h.Auth.ForgotPassword)
		r.Post("/validate-reset-token", h.Auth.ValidateResetToken)
		r.Post("/reset-password", h.Auth.ResetPassword)
	})

	// Forwarded by the edge; the handler checks the secret and applies the
	// log_visit policy itself
	router.Post("/internal/log-visit", h.Visits.LogVisit)

	// Visitor-facing
	router.With(perIP).Post("/api/consent", h.Visits.Consent)

	// Admin-only
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin(tokenManager))

		r.Get("/api/settings/2fa", h.MFA.Status)
		r.Post("/api/settings/2fa/setup", h.MFA.Setup)
		r.With(policy(ratelimit.PolicyTwoFactor)).Post("/api/settings/2fa/enable", h.MFA.Enable)
		r.With(policy(ratelimit.PolicyTwoFactor)).Post("/api/settings/2fa/disable", h.MFA.Disable)

		r.Get("/api/alerts", h.Alerts.List)
		r.Post("/api/alerts/{id}/read", h.Alerts.MarkRead)
		r.Get("/api/digests", h.Alerts.Digests)
	})
}
