package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BradenHooton/vigil/internal/database"
	"github.com/BradenHooton/vigil/internal/models"
)

type DigestRepository struct {
	db *database.DB
}

func NewDigestRepository(db *database.DB) *DigestRepository {
	return &DigestRepository{db: db}
}

// Aggregate computes the digest for the UTC day containing day without storing it.
func (r *DigestRepository) Aggregate(ctx context.Context, day time.Time) (*models.DailyDigest, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	d := &models.DailyDigest{Day: start}

	totals := `
		SELECT COUNT(*),
			COUNT(DISTINCT NULLIF(ip_hash, '')),
			COUNT(*) FILTER (WHERE is_bot),
			COUNT(*) FILTER (WHERE is_ai),
			COUNT(DISTINCT session_id) FILTER (WHERE is_hot)
		FROM visitors
		WHERE created_at >= $1 AND created_at < $2
	`
	if err := r.db.Pool.QueryRow(ctx, totals, start, end).Scan(
		&d.TotalVisits, &d.UniqueVisitors, &d.BotVisits, &d.AIVisits, &d.HotSessions,
	); err != nil {
		return nil, fmt.Errorf("failed to aggregate visits: %w", err)
	}

	topPages := `
		SELECT path, COUNT(*) AS hits
		FROM visitors
		WHERE created_at >= $1 AND created_at < $2 AND NOT is_bot
		GROUP BY path
		ORDER BY hits DESC, path
		LIMIT 10
	`
	rows, err := r.db.Pool.Query(ctx, topPages, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate top pages: %w", err)
	}
	defer rows.Close()

	d.TopPages = []models.PageCount{}
	for rows.Next() {
		var pc models.PageCount
		if err := rows.Scan(&pc.Path, &pc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan page count: %w", err)
		}
		d.TopPages = append(d.TopPages, pc)
	}

	return d, rows.Err()
}

// Save upserts the digest for its day.
func (r *DigestRepository) Save(ctx context.Context, d *models.DailyDigest) error {
	topPagesJSON, err := json.Marshal(d.TopPages)
	if err != nil {
		return fmt.Errorf("failed to marshal top pages: %w", err)
	}

	query := `
		INSERT INTO daily_digests (day, total_visits, unique_visitors, bot_visits, ai_visits, hot_sessions, top_pages)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (day) DO UPDATE SET
			total_visits = EXCLUDED.total_visits,
			unique_visitors = EXCLUDED.unique_visitors,
			bot_visits = EXCLUDED.bot_visits,
			ai_visits = EXCLUDED.ai_visits,
			hot_sessions = EXCLUDED.hot_sessions,
			top_pages = EXCLUDED.top_pages
		RETURNING created_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		d.Day, d.TotalVisits, d.UniqueVisitors, d.BotVisits, d.AIVisits, d.HotSessions, topPagesJSON,
	).Scan(&d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save digest: %w", err)
	}
	return nil
}

// List returns stored digests, newest day first.
func (r *DigestRepository) List(ctx context.Context, limit int) ([]models.DailyDigest, error) {
	query := `
		SELECT day, total_visits, unique_visitors, bot_visits, ai_visits, hot_sessions, top_pages, created_at
		FROM daily_digests
		ORDER BY day DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list digests: %w", err)
	}
	defer rows.Close()

	digests := []models.DailyDigest{}
	for rows.Next() {
		var d models.DailyDigest
		var topPagesJSON []byte
		if err := rows.Scan(&d.Day, &d.TotalVisits, &d.UniqueVisitors, &d.BotVisits, &d.AIVisits, &d.HotSessions, &topPagesJSON, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan digest: %w", err)
		}
		if err := json.Unmarshal(topPagesJSON, &d.TopPages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal top pages: %w", err)
		}
		digests = append(digests, d)
	}

	return digests, rows.Err()
}
