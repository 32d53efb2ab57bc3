package services

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/vigil/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestService_BuildPreviousDay(t *testing.T) {
	var aggregated time.Time
	var saved *models.DailyDigest
	repo := &MockDigestRepository{
		AggregateFunc: func(_ context.Context, day time.Time) (*models.DailyDigest, error) {
			aggregated = day
			return &models.DailyDigest{Day: day.Truncate(24 * time.Hour), TotalVisits: 42}, nil
		},
		SaveFunc: func(_ context.Context, d *models.DailyDigest) error { saved = d; return nil },
	}
	s := NewDigestService(repo, discardLogger())
	s.now = func() time.Time { return time.Date(2026, 5, 10, 0, 30, 0, 0, time.UTC) }

	d, err := s.BuildPreviousDay(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 9, aggregated.Day())
	assert.Same(t, d, saved)
	assert.Equal(t, 42, saved.TotalVisits)
}

func TestDigestService_ListDefaultsLimit(t *testing.T) {
	var got int
	repo := &MockDigestRepository{
		ListFunc: func(_ context.Context, limit int) ([]models.DailyDigest, error) {
			got = limit
			return nil, nil
		},
	}

	digests, err := NewDigestService(repo, discardLogger()).List(context.Background(), -1)
	require.NoError(t, err)

	assert.Equal(t, 30, got)
	assert.NotNil(t, digests)
}
