package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/BradenHooton/vigil/internal/auth"
	"github.com/BradenHooton/vigil/internal/models"
	pkglogger "github.com/BradenHooton/vigil/pkg/logger"
)

type AdminSettingsRepository interface {
	Get(ctx context.Context) (*models.AdminSettings, error)
	SaveTwoFactorSetup(ctx context.Context, secret, nonce []byte, backupCodeHashes []string) error
	EnableTwoFactor(ctx context.Context) error
	DisableTwoFactor(ctx context.Context) error
	ConsumeBackupCode(ctx context.Context, codeHash string) (bool, error)
	UpdatePassword(ctx context.Context, hash string, history []string, changedAt time.Time) error
}

// MFAService manages the admin second factor.
type MFAService struct {
	repo        AdminSettingsRepository
	totp        *auth.TOTPManager
	backupCount int
	accountName string
	audit       *pkglogger.AuditLogger
	logger      *slog.Logger
	now         func() time.Time
}

func NewMFAService(repo AdminSettingsRepository, totp *auth.TOTPManager, backupCount int, accountName string, audit *pkglogger.AuditLogger, logger *slog.Logger) *MFAService {
	if backupCount < 1 {
		backupCount = 10
	}
	if accountName == "" {
		accountName = "admin"
	}
	return &MFAService{
		repo:        repo,
		totp:        totp,
		backupCount: backupCount,
		accountName: accountName,
		audit:       audit,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *MFAService) Status(ctx context.Context) (*models.TwoFactorStatus, error) {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load admin settings: %w", err)
	}

	status := &models.TwoFactorStatus{Enabled: settings.TwoFactorEnabled}
	if settings.TwoFactorEnabled {
		status.BackupCodesRemaining = len(settings.BackupCodes)
	}
	return status, nil
}

// IsEnabled reports whether login must present a second factor.
func (s *MFAService) IsEnabled(ctx context.Context) (bool, error) {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load admin settings: %w", err)
	}
	return settings.TwoFactorEnabled, nil
}

// Setup generates a new pending secret and backup codes. The plaintext codes
// are returned once and only their hashes are stored.
func (s *MFAService) Setup(ctx context.Context) (*models.TwoFactorSetupResponse, error) {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load admin settings: %w", err)
	}
	if settings.TwoFactorEnabled {
		return nil, models.ErrTwoFactorEnabled
	}

	setup, err := s.totp.GenerateSetup(s.accountName)
	if err != nil {
		return nil, err
	}

	codes, err := s.totp.GenerateBackupCodes(s.backupCount)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SaveTwoFactorSetup(ctx, setup.EncryptedSecret, setup.Nonce, auth.HashBackupCodes(codes)); err != nil {
		return nil, fmt.Errorf("failed to save two-factor setup: %w", err)
	}

	s.logger.Info("two-factor setup generated")
	return &models.TwoFactorSetupResponse{
		Secret:      setup.Secret,
		QRCode:      setup.QRCodeDataURL,
		BackupCodes: codes,
	}, nil
}

// Enable confirms a pending setup with a TOTP code from the new authenticator.
func (s *MFAService) Enable(ctx context.Context, code, ip string) error {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load admin settings: %w", err)
	}
	if settings.TwoFactorEnabled {
		return models.ErrTwoFactorEnabled
	}
	if !settings.HasPendingSetup() {
		return models.ErrTwoFactorNotSetup
	}

	ok, err := s.checkTOTP(settings, code)
	if err != nil {
		return err
	}
	if !ok {
		s.audit.LogAuthAttempt(ctx, pkglogger.EventTwoFactorFailure, ip, false, "enable_invalid_code")
		return models.ErrInvalidTwoFactor
	}

	if err := s.repo.EnableTwoFactor(ctx); err != nil {
		return fmt.Errorf("failed to enable two-factor: %w", err)
	}

	s.audit.LogAccountAction(ctx, pkglogger.EventTwoFactorEnabled, ip, map[string]string{
		"backup_codes": strconv.Itoa(len(settings.BackupCodes)),
	})
	return nil
}

// Disable turns the second factor off after verifying a current code.
func (s *MFAService) Disable(ctx context.Context, code, ip string) error {
	ok, err := s.Verify(ctx, code)
	if err != nil {
		return err
	}
	if !ok {
		s.audit.LogAuthAttempt(ctx, pkglogger.EventTwoFactorFailure, ip, false, "disable_invalid_code")
		return models.ErrInvalidTwoFactor
	}

	if err := s.repo.DisableTwoFactor(ctx); err != nil {
		return fmt.Errorf("failed to disable two-factor: %w", err)
	}

	s.audit.LogAccountAction(ctx, pkglogger.EventTwoFactorDisabled, ip, nil)
	return nil
}

// Verify accepts a TOTP code, or a backup code which is consumed atomically
// before success is reported.
func (s *MFAService) Verify(ctx context.Context, code string) (bool, error) {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load admin settings: %w", err)
	}
	if !settings.TwoFactorEnabled {
		return false, models.ErrTwoFactorNotSetup
	}

	ok, err := s.checkTOTP(settings, code)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	consumed, err := s.repo.ConsumeBackupCode(ctx, auth.HashBackupCode(code))
	if err != nil {
		return false, err
	}
	if consumed {
		s.audit.LogAccountAction(ctx, pkglogger.EventBackupCodeUsed, "", map[string]string{
			"backup_codes_remaining": strconv.Itoa(max(len(settings.BackupCodes)-1, 0)),
		})
	}
	return consumed, nil
}

func (s *MFAService) checkTOTP(settings *models.AdminSettings, code string) (bool, error) {
	secret, err := s.totp.DecryptSecret(settings.TwoFactorSecret, settings.TwoFactorSecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt two-factor secret", slog.Any("error", err))
		return false, models.ErrInternalServer
	}
	return s.totp.ValidateTOTP(string(secret), code, s.now()), nil
}
