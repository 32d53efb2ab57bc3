package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/vigil/internal/ratelimit"
	pkghttp "github.com/BradenHooton/vigil/pkg/http"
	"github.com/go-chi/httprate"
)

const throttledMessage = "Too many requests. Please try again later."

// RateLimitConfig holds the coarse per-IP ceiling
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultAuthRateLimit returns default rate limit config for auth endpoints
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 20,
	}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP.
// It sits in front of the policy limiter and only catches floods.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	if config.RequestsPerMinute < 1 {
		config = DefaultAuthRateLimit()
	}
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, throttledMessage, 60)
		}),
	)
}

// PolicyLimiter is satisfied by *ratelimit.Limiter.
type PolicyLimiter interface {
	Allow(ctx context.Context, policy, identifier string) (ratelimit.Decision, error)
}

// RateLimitPolicy applies a named limiter policy keyed by client IP.
// Denied requests get 429 with Retry-After and never reach the handler.
func RateLimitPolicy(limiter PolicyLimiter, policy string, ipConfig *pkghttp.IPConfig, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := pkghttp.ExtractClientIP(r, ipConfig)

			decision, err := limiter.Allow(r.Context(), policy, ip)
			if err != nil {
				// Unknown policy fails open, same as a store outage
				logger.Error("rate limit check failed",
					slog.String("policy", policy),
					slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				pkghttp.WriteTooManyRequests(w, throttledMessage, decision.RetryAfterSeconds())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
