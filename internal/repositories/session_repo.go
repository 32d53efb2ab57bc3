package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/vigil/internal/database"
	"github.com/BradenHooton/vigil/internal/models"
	"github.com/jackc/pgx/v5"
)

// SessionRepository stores per-session engagement state.
type SessionRepository struct {
	db *database.DB
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Get returns models.ErrNotFound when the session has never been persisted.
func (r *SessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	query := `
		SELECT id, ip_hash, ua_hash, country, device, first_seen, last_seen, page_views,
			unique_pages, time_on_site_seconds, score, is_hot, is_bot, is_ai,
			has_consent, is_returning
		FROM sessions
		WHERE id = $1
	`

	var s models.Session
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.IPHash, &s.UAHash, &s.Country, &s.Device, &s.FirstSeen, &s.LastSeen, &s.PageViews,
		&s.UniquePages, &s.TimeOnSiteSeconds, &s.Score, &s.IsHot, &s.IsBot, &s.IsAI,
		&s.HasConsent, &s.IsReturning,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

// Upsert writes the latest aggregate and reports whether the session was
// already hot before this write. The row is locked for the duration, so
// concurrent visits to one session see the false->true transition once.
// Identity columns and first_seen keep their original values, the flags are
// sticky and the counters never move backwards.
func (r *SessionRepository) Upsert(ctx context.Context, s *models.Session) (bool, error) {
	var wasHot bool
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		// Placeholder row so there is always something to lock
		if _, err := tx.Exec(ctx, `
			INSERT INTO sessions (id, ip_hash, ua_hash, country, device, first_seen, last_seen, page_views, unique_pages)
			VALUES ($1, $2, $3, $4, $5, $6, $6, 0, 0)
			ON CONFLICT (id) DO NOTHING
		`, s.ID, s.IPHash, s.UAHash, s.Country, s.Device, s.FirstSeen); err != nil {
			return fmt.Errorf("failed to create session: %w", database.MapPostgresError(err))
		}

		if err := tx.QueryRow(ctx, `SELECT is_hot FROM sessions WHERE id = $1 FOR UPDATE`, s.ID).Scan(&wasHot); err != nil {
			return fmt.Errorf("failed to lock session: %w", database.MapPostgresError(err))
		}

		_, err := tx.Exec(ctx, `
			UPDATE sessions SET
				first_seen = LEAST(first_seen, $2),
				last_seen = GREATEST(last_seen, $3),
				page_views = GREATEST(page_views, $4),
				unique_pages = GREATEST(unique_pages, $5),
				time_on_site_seconds = GREATEST(time_on_site_seconds, $6),
				score = GREATEST(score, $7),
				is_hot = is_hot OR $8,
				is_bot = is_bot OR $9,
				is_ai = is_ai OR $10,
				has_consent = has_consent OR $11,
				is_returning = is_returning OR $12
			WHERE id = $1
		`, s.ID, s.FirstSeen, s.LastSeen, s.PageViews, s.UniquePages, s.TimeOnSiteSeconds,
			s.Score, s.IsHot, s.IsBot, s.IsAI, s.HasConsent, s.IsReturning)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", database.MapPostgresError(err))
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to upsert session: %w", err)
	}
	return wasHot, nil
}

// SetConsent updates the session and all of its visitor rows in one transaction.
func (r *SessionRepository) SetConsent(ctx context.Context, id string, consent bool) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE sessions SET has_consent = $2 WHERE id = $1`, id, consent)
		if err != nil {
			return fmt.Errorf("failed to update session consent: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return models.ErrNotFound
		}

		if _, err := tx.Exec(ctx, `UPDATE visitors SET has_consent = $2 WHERE session_id = $1`, id, consent); err != nil {
			return fmt.Errorf("failed to update visitor consent: %w", err)
		}
		return nil
	})
}
