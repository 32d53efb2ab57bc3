package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/vigil/internal/database"
	"github.com/BradenHooton/vigil/internal/models"
	"github.com/google/uuid"
)

type AlertRepository struct {
	db *database.DB
}

func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Create(ctx context.Context, a *models.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	query := `
		INSERT INTO alerts (id, type, severity, title, message, session_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		a.ID, a.Type, a.Severity, a.Title, a.Message, a.SessionID,
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// List returns the newest alerts first.
func (r *AlertRepository) List(ctx context.Context, limit int, unreadOnly bool) ([]models.Alert, error) {
	query := `
		SELECT id, type, severity, title, message, COALESCE(session_id, ''), is_read, created_at
		FROM alerts
		WHERE NOT $2 OR NOT is_read
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(&a.ID, &a.Type, &a.Severity, &a.Title, &a.Message, &a.SessionID, &a.IsRead, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

func (r *AlertRepository) MarkRead(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return models.ErrNotFound
	}

	tag, err := r.db.Pool.Exec(ctx, `UPDATE alerts SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark alert read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
