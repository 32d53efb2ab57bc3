package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/vigil/internal/metrics"
)

// Policy names used by the HTTP layer.
const (
	PolicyLogin         = "login"
	PolicyPasswordReset = "password_reset"
	PolicyResetPassword = "reset_password"
	PolicyTwoFactor     = "two_factor"
	PolicyLogVisit      = "log_visit"
)

type Policy struct {
	Name        string
	Window      time.Duration
	MaxRequests int
}

// Decision is what callers translate into an HTTP response.
type Decision struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // zero when allowed
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1 when denied.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter applies named policies to identifiers through a Store.
type Limiter struct {
	store    Store
	policies map[string]Policy
	enabled  bool
	logger   *slog.Logger
	now      func() time.Time
}

func NewLimiter(store Store, enabled bool, logger *slog.Logger, policies ...Policy) (*Limiter, error) {
	byName := make(map[string]Policy, len(policies))
	for _, p := range policies {
		if p.Name == "" {
			return nil, fmt.Errorf("rate limit policy has no name")
		}
		if p.Window <= 0 || p.MaxRequests < 1 {
			return nil, fmt.Errorf("rate limit policy %q needs a positive window and max", p.Name)
		}
		byName[p.Name] = p
	}

	return &Limiter{
		store:    store,
		policies: byName,
		enabled:  enabled,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Key builds the counter key for a policy and identifier.
func Key(policy, identifier string) string {
	return "rl:" + policy + ":" + identifier
}

// Allow records one event for identifier under the named policy. A disabled
// limiter always allows. Store errors fail open.
func (l *Limiter) Allow(ctx context.Context, policyName, identifier string) (Decision, error) {
	p, ok := l.policies[policyName]
	if !ok {
		return Decision{}, fmt.Errorf("unknown rate limit policy %q", policyName)
	}

	if !l.enabled {
		return Decision{Allowed: true, Remaining: p.MaxRequests}, nil
	}

	res, err := l.store.Record(ctx, Key(p.Name, identifier), p.Window, p.MaxRequests)
	if err != nil {
		l.logger.Error("rate limit store failed, allowing request",
			slog.String("policy", p.Name),
			slog.Any("error", err))
		return Decision{Allowed: true, Remaining: p.MaxRequests}, nil
	}

	d := Decision{
		Allowed:   res.Allowed,
		Remaining: res.Remaining,
		ResetAt:   res.ResetAt,
	}

	outcome := "allowed"
	if !d.Allowed {
		outcome = "denied"
		if wait := res.ResetAt.Sub(l.now()); wait > 0 {
			d.RetryAfter = wait
		}
	}
	metrics.RateLimitDecisions.WithLabelValues(p.Name, outcome).Inc()

	return d, nil
}
