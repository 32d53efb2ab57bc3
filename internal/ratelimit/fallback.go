package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/vigil/internal/metrics"
	gobreaker "github.com/sony/gobreaker/v2"
)

const DefaultSharedTimeout = 250 * time.Millisecond

// FallbackStore sends every Record to the shared store under a timeout and a
// circuit breaker. Any failure is served by the local store instead, so
// callers never see shared-store errors.
type FallbackStore struct {
	shared  Store
	local   Store
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[Result]
	logger  *slog.Logger
}

func NewFallbackStore(shared, local Store, timeout time.Duration, logger *slog.Logger) *FallbackStore {
	if timeout <= 0 {
		timeout = DefaultSharedTimeout
	}
	name := "counter-store"

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("counter store circuit breaker state change",
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &FallbackStore{
		shared:  shared,
		local:   local,
		timeout: timeout,
		cb:      cb,
		logger:  logger,
	}
}

func (f *FallbackStore) Record(ctx context.Context, key string, window time.Duration, max int) (Result, error) {
	res, err := f.cb.Execute(func() (Result, error) {
		sctx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()
		return f.shared.Record(sctx, key, window, max)
	})
	if err == nil {
		return res, nil
	}

	reason := fallbackReason(err)
	metrics.CounterStoreFallbacks.WithLabelValues(reason).Inc()
	if reason != "circuit_open" {
		f.logger.Warn("shared counter store failed, using local store",
			slog.String("reason", reason),
			slog.Any("error", err))
	}

	return f.local.Record(ctx, key, window, max)
}

// State exposes the breaker state for health reporting.
func (f *FallbackStore) State() string {
	return f.cb.State().String()
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
