package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BradenHooton/vigil/internal/database"
	"github.com/BradenHooton/vigil/internal/models"
)

const adminSettingsID = "admin"

// AdminSettingsRepository manages the single admin_settings row.
type AdminSettingsRepository struct {
	db *database.DB
}

func NewAdminSettingsRepository(db *database.DB) *AdminSettingsRepository {
	return &AdminSettingsRepository{db: db}
}

func (r *AdminSettingsRepository) Get(ctx context.Context) (*models.AdminSettings, error) {
	query := `
		SELECT id, password_hash, password_history, last_password_change,
			two_factor_secret, two_factor_secret_nonce, two_factor_enabled,
			backup_codes, created_at, updated_at
		FROM admin_settings
		WHERE id = $1
	`

	s := &models.AdminSettings{}
	var backupCodesJSON []byte
	err := r.db.Pool.QueryRow(ctx, query, adminSettingsID).Scan(
		&s.ID, &s.PasswordHash, &s.PasswordHistory, &s.LastPasswordChange,
		&s.TwoFactorSecret, &s.TwoFactorSecretNonce, &s.TwoFactorEnabled,
		&backupCodesJSON, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if err := json.Unmarshal(backupCodesJSON, &s.BackupCodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal backup codes: %w", err)
	}
	return s, nil
}

// SaveTwoFactorSetup stores a pending secret and its hashed backup codes.
// Two-factor stays disabled until EnableTwoFactor is called.
func (r *AdminSettingsRepository) SaveTwoFactorSetup(ctx context.Context, secret, nonce []byte, backupCodeHashes []string) error {
	backupCodesJSON, err := json.Marshal(backupCodeHashes)
	if err != nil {
		return fmt.Errorf("failed to marshal backup codes: %w", err)
	}

	query := `
		UPDATE admin_settings
		SET two_factor_secret = $2, two_factor_secret_nonce = $3, backup_codes = $4,
			two_factor_enabled = FALSE, updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, query, adminSettingsID, secret, nonce, backupCodesJSON)
}

func (r *AdminSettingsRepository) EnableTwoFactor(ctx context.Context) error {
	query := `
		UPDATE admin_settings
		SET two_factor_enabled = TRUE, updated_at = NOW()
		WHERE id = $1 AND two_factor_secret IS NOT NULL
	`
	return r.exec(ctx, query, adminSettingsID)
}

func (r *AdminSettingsRepository) DisableTwoFactor(ctx context.Context) error {
	query := `
		UPDATE admin_settings
		SET two_factor_enabled = FALSE, two_factor_secret = NULL, two_factor_secret_nonce = NULL,
			backup_codes = '[]'::jsonb, updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, query, adminSettingsID)
}

// ConsumeBackupCode removes codeHash if present. The check and removal happen in
// one statement so a code can be redeemed at most once.
func (r *AdminSettingsRepository) ConsumeBackupCode(ctx context.Context, codeHash string) (bool, error) {
	query := `
		UPDATE admin_settings
		SET backup_codes = backup_codes - $2::text, updated_at = NOW()
		WHERE id = $1 AND backup_codes ? $2::text
	`

	tag, err := r.db.Pool.Exec(ctx, query, adminSettingsID, codeHash)
	if err != nil {
		return false, fmt.Errorf("failed to consume backup code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdatePassword stores a new hash along with the already-trimmed history.
func (r *AdminSettingsRepository) UpdatePassword(ctx context.Context, hash string, history []string, changedAt time.Time) error {
	query := `
		UPDATE admin_settings
		SET password_hash = $2, password_history = $3, last_password_change = $4, updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, query, adminSettingsID, hash, history, changedAt)
}

func (r *AdminSettingsRepository) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update admin settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
