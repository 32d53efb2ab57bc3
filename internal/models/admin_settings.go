package models

import "time"

// AdminSettings is the single settings row protecting the admin credential.
type AdminSettings struct {
	ID                   string
	PasswordHash         *string  // overrides the configured hash once reset
	PasswordHistory      []string // bcrypt hashes, newest first, max 5
	LastPasswordChange   *time.Time
	TwoFactorSecret      []byte // AES-256-GCM encrypted base32 secret
	TwoFactorSecretNonce []byte
	TwoFactorEnabled     bool
	BackupCodes          []string // SHA-256 hex hashes
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// HasPendingSetup reports whether a secret was generated but not yet confirmed.
func (s *AdminSettings) HasPendingSetup() bool {
	return len(s.TwoFactorSecret) > 0 && !s.TwoFactorEnabled
}

type TwoFactorStatus struct {
	Enabled              bool `json:"enabled"`
	BackupCodesRemaining int  `json:"backup_codes_remaining"`
}

type TwoFactorSetupResponse struct {
	Secret      string   `json:"secret"`
	QRCode      string   `json:"qr_code"`
	BackupCodes []string `json:"backup_codes"`
}

type TwoFactorCodeRequest struct {
	Code string `json:"code" validate:"required,max=32"`
}
