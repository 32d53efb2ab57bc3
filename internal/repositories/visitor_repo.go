package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/vigil/internal/database"
	"github.com/BradenHooton/vigil/internal/models"
	"github.com/google/uuid"
)

// VisitorRepository persists one row per logged request.
type VisitorRepository struct {
	db *database.DB
}

func NewVisitorRepository(db *database.DB) *VisitorRepository {
	return &VisitorRepository{db: db}
}

// Insert stores v, assigning an ID when empty.
func (r *VisitorRepository) Insert(ctx context.Context, v *models.Visitor) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}

	query := `
		INSERT INTO visitors (
			id, session_id, ip_hash, ua_hash, path, method, referrer, country, city,
			device, browser, os, is_bot, is_ai, bot_label, score, is_hot,
			has_consent, is_returning, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		v.ID, v.SessionID, v.IPHash, v.UAHash, v.Path, v.Method, v.Referrer, v.Country, v.City,
		v.Device, v.Browser, v.OS, v.IsBot, v.IsAI, v.BotLabel, v.Score, v.IsHot,
		v.HasConsent, v.IsReturning, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert visitor: %w", database.MapPostgresError(err))
	}
	return nil
}

// ListRecentBySession returns up to limit visits for a session, newest first.
func (r *VisitorRepository) ListRecentBySession(ctx context.Context, sessionID string, limit int) ([]models.Visitor, error) {
	query := `
		SELECT id, session_id, ip_hash, ua_hash, path, method, referrer, country, city,
			device, browser, os, is_bot, is_ai, bot_label, score, is_hot,
			has_consent, is_returning, created_at
		FROM visitors
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list visitors: %w", err)
	}
	defer rows.Close()

	var visitors []models.Visitor
	for rows.Next() {
		var v models.Visitor
		if err := rows.Scan(
			&v.ID, &v.SessionID, &v.IPHash, &v.UAHash, &v.Path, &v.Method, &v.Referrer, &v.Country, &v.City,
			&v.Device, &v.Browser, &v.OS, &v.IsBot, &v.IsAI, &v.BotLabel, &v.Score, &v.IsHot,
			&v.HasConsent, &v.IsReturning, &v.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan visitor: %w", err)
		}
		visitors = append(visitors, v)
	}

	return visitors, rows.Err()
}

// SeenInOtherSession reports whether ipHash was recorded under a different session.
func (r *VisitorRepository) SeenInOtherSession(ctx context.Context, ipHash, sessionID string) (bool, error) {
	if ipHash == "" {
		return false, nil
	}

	query := `
		SELECT EXISTS (
			SELECT 1 FROM visitors WHERE ip_hash = $1 AND session_id <> $2
		)
	`

	var seen bool
	if err := r.db.Pool.QueryRow(ctx, query, ipHash, sessionID).Scan(&seen); err != nil {
		return false, fmt.Errorf("failed to check returning visitor: %w", err)
	}
	return seen, nil
}
