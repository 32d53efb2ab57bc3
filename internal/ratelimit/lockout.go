package ratelimit

import (
	"sync"
	"time"

	"github.com/BradenHooton/vigil/internal/metrics"
)

type LockoutConfig struct {
	MaxAttempts     int
	AttemptWindow   time.Duration
	LockoutDuration time.Duration
}

func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		MaxAttempts:     5,
		AttemptWindow:   15 * time.Minute,
		LockoutDuration: 30 * time.Minute,
	}
}

type LockoutStatus struct {
	Locked            bool
	RemainingAttempts int
	LockedUntil       time.Time
}

type lockoutEntry struct {
	failures    int
	windowStart time.Time
	lockedUntil time.Time
}

func (e *lockoutEntry) lockedAt(now time.Time) bool {
	return !e.lockedUntil.IsZero() && now.Before(e.lockedUntil)
}

// LockoutTracker locks an identifier after MaxAttempts consecutive failures
// inside AttemptWindow. A success clears the identifier entirely.
type LockoutTracker struct {
	mu      sync.Mutex
	entries map[string]*lockoutEntry
	cfg     LockoutConfig
	now     func() time.Time
}

func NewLockoutTracker(cfg LockoutConfig) *LockoutTracker {
	def := DefaultLockoutConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.AttemptWindow <= 0 {
		cfg.AttemptWindow = def.AttemptWindow
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = def.LockoutDuration
	}

	return &LockoutTracker{
		entries: make(map[string]*lockoutEntry),
		cfg:     cfg,
		now:     time.Now,
	}
}

// RecordFailure counts one failure. While locked it returns the existing
// LockedUntil without extending it.
func (t *LockoutTracker) RecordFailure(id string) LockoutStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	e := t.entries[id]

	if e != nil {
		switch {
		case e.lockedAt(now):
			return LockoutStatus{Locked: true, LockedUntil: e.lockedUntil}
		case !e.lockedUntil.IsZero(), now.Sub(e.windowStart) >= t.cfg.AttemptWindow:
			e = nil
		}
	}

	if e == nil {
		e = &lockoutEntry{windowStart: now}
		t.entries[id] = e
	}

	e.failures++
	if e.failures >= t.cfg.MaxAttempts {
		e.lockedUntil = now.Add(t.cfg.LockoutDuration)
		metrics.AccountLockouts.Inc()
		return LockoutStatus{Locked: true, LockedUntil: e.lockedUntil}
	}

	return LockoutStatus{RemainingAttempts: t.cfg.MaxAttempts - e.failures}
}

func (t *LockoutTracker) ClearOnSuccess(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// IsLocked reports whether id is currently locked. An expired lock is purged.
func (t *LockoutTracker) IsLocked(id string) (bool, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return false, time.Time{}
	}

	now := t.now()
	if e.lockedAt(now) {
		return true, e.lockedUntil
	}
	if !e.lockedUntil.IsZero() {
		delete(t.entries, id)
	}
	return false, time.Time{}
}

// Sweep drops expired locks and stale attempt windows.
func (t *LockoutTracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for id, e := range t.entries {
		if e.lockedAt(now) {
			continue
		}
		if !e.lockedUntil.IsZero() || now.Sub(e.windowStart) >= t.cfg.AttemptWindow {
			delete(t.entries, id)
			removed++
		}
	}
	return removed
}
