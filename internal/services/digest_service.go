package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/vigil/internal/models"
)

type DigestRepository interface {
	Aggregate(ctx context.Context, day time.Time) (*models.DailyDigest, error)
	Save(ctx context.Context, d *models.DailyDigest) error
	List(ctx context.Context, limit int) ([]models.DailyDigest, error)
}

type DigestService struct {
	repo   DigestRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewDigestService(repo DigestRepository, logger *slog.Logger) *DigestService {
	return &DigestService{repo: repo, logger: logger, now: time.Now}
}

// BuildPreviousDay aggregates and stores yesterday's (UTC) digest. Running it
// twice for the same day overwrites the earlier row.
func (s *DigestService) BuildPreviousDay(ctx context.Context) (*models.DailyDigest, error) {
	day := s.now().UTC().AddDate(0, 0, -1)

	digest, err := s.repo.Aggregate(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to build digest: %w", err)
	}
	if err := s.repo.Save(ctx, digest); err != nil {
		return nil, fmt.Errorf("failed to save digest: %w", err)
	}

	s.logger.Info("daily digest stored",
		slog.String("day", digest.Day.Format(time.DateOnly)),
		slog.Int("total_visits", digest.TotalVisits),
		slog.Int("ai_visits", digest.AIVisits),
		slog.Int("hot_sessions", digest.HotSessions))
	return digest, nil
}

func (s *DigestService) List(ctx context.Context, limit int) ([]models.DailyDigest, error) {
	if limit <= 0 || limit > 90 {
		limit = 30
	}
	digests, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	if digests == nil {
		digests = []models.DailyDigest{}
	}
	return digests, nil
}
