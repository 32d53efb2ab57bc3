package background

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper drops expired in-memory state and reports how many entries went.
// MemoryStore, LockoutTracker and PasswordResetService all qualify.
type Sweeper interface {
	Sweep() int
}

// CleanupManager periodically sweeps expired counters, lockouts and reset tokens
type CleanupManager struct {
	sweepers map[string]Sweeper
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager. Nil entries are skipped.
func NewCleanupManager(sweepers map[string]Sweeper, logger *slog.Logger, interval time.Duration) *CleanupManager {
	active := make(map[string]Sweeper, len(sweepers))
	for name, s := range sweepers {
		if s != nil {
			active[name] = s
		}
	}
	return &CleanupManager{
		sweepers: active,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the sweep on every tick until Stop or ctx is done.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.runCleanup()
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup() {
	for name, s := range cm.sweepers {
		if removed := s.Sweep(); removed > 0 {
			cm.logger.Debug("expired entries swept",
				slog.String("store", name),
				slog.Int("removed", removed))
		}
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
