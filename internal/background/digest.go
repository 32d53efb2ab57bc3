package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/vigil/internal/models"
)

// DigestBuilder is satisfied by *services.DigestService.
type DigestBuilder interface {
	BuildPreviousDay(ctx context.Context) (*models.DailyDigest, error)
}

// DigestScheduler rebuilds the previous day's digest on a fixed interval.
// Rebuilding is an upsert, so running more than once a day is harmless.
type DigestScheduler struct {
	builder  DigestBuilder
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

func NewDigestScheduler(builder DigestBuilder, logger *slog.Logger, interval time.Duration) *DigestScheduler {
	return &DigestScheduler{
		builder:  builder,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start builds once immediately, then on every tick.
func (ds *DigestScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(ds.interval)
	defer ticker.Stop()

	ds.run(ctx)

	for {
		select {
		case <-ticker.C:
			ds.run(ctx)
		case <-ds.stopCh:
			ds.logger.Info("digest scheduler stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (ds *DigestScheduler) run(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	d, err := ds.builder.BuildPreviousDay(runCtx)
	if err != nil {
		ds.logger.Error("failed to build daily digest", slog.Any("error", err))
		return
	}
	ds.logger.Info("daily digest built",
		slog.String("day", d.Day.Format("2006-01-02")),
		slog.Int("total_visits", d.TotalVisits))
}

func (ds *DigestScheduler) Stop() {
	close(ds.stopCh)
}
