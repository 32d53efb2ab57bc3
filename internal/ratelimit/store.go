// Package ratelimit implements fixed-window request counters, named rate-limit
// policies on top of them, and the consecutive-failure lockout tracker.
package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of recording one event against a counter.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Store records events in fixed windows. An event at or after ResetAt starts a
// new window with count 1. Denied events do not increment the counter.
// Implementations must make Record atomic per key.
type Store interface {
	Record(ctx context.Context, key string, window time.Duration, max int) (Result, error)
}

// entry is the per-key counter state shared by the in-process implementation.
type entry struct {
	count   int
	resetAt time.Time
}

// apply advances e by one event at now and reports the result.
func (e *entry) apply(now time.Time, window time.Duration, max int) Result {
	if e.resetAt.IsZero() || !now.Before(e.resetAt) {
		e.count = 1
		e.resetAt = now.Add(window)
		return Result{Allowed: true, Remaining: max - 1, ResetAt: e.resetAt}
	}

	if e.count >= max {
		return Result{Allowed: false, Remaining: 0, ResetAt: e.resetAt}
	}

	e.count++
	return Result{Allowed: true, Remaining: max - e.count, ResetAt: e.resetAt}
}
