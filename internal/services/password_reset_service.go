package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/vigil/internal/models"
	"github.com/BradenHooton/vigil/internal/ratelimit"
	pkgauth "github.com/BradenHooton/vigil/pkg/auth"
	pkglogger "github.com/BradenHooton/vigil/pkg/logger"
)

const (
	defaultResetTokenExpiry = time.Hour
	passwordHistorySize     = 5
)

// PasswordResetService issues single-use reset tokens for the admin account.
// Tokens live in memory only and are keyed by their SHA-256.
type PasswordResetService struct {
	repo           AdminSettingsRepository
	email          EmailService
	limiter        *ratelimit.Limiter
	adminEmail     string
	configuredHash string
	allowDev       bool
	expiry         time.Duration
	audit          *pkglogger.AuditLogger
	logger         *slog.Logger
	now            func() time.Time

	mu      sync.Mutex
	tokens  map[string]time.Time
	claimed map[string]bool
}

func NewPasswordResetService(
	repo AdminSettingsRepository,
	email EmailService,
	limiter *ratelimit.Limiter,
	adminEmail, configuredHash, env string,
	expiry time.Duration,
	audit *pkglogger.AuditLogger,
	logger *slog.Logger,
) *PasswordResetService {
	if expiry <= 0 {
		expiry = defaultResetTokenExpiry
	}
	return &PasswordResetService{
		repo:           repo,
		email:          email,
		limiter:        limiter,
		adminEmail:     strings.ToLower(strings.TrimSpace(adminEmail)),
		configuredHash: configuredHash,
		allowDev:       env != "production",
		expiry:         expiry,
		audit:          audit,
		logger:         logger,
		now:            time.Now,
		tokens:         make(map[string]time.Time),
		claimed:        make(map[string]bool),
	}
}

// RequestReset emails a token when email is the admin address. The caller
// always gets the same answer so the address cannot be enumerated.
func (s *PasswordResetService) RequestReset(ctx context.Context, email, ip string) error {
	if err := s.throttle(ctx, ratelimit.PolicyPasswordReset, ip); err != nil {
		return err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if s.adminEmail == "" || email != s.adminEmail {
		s.audit.Log(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventPasswordResetRequested,
			IPAddress:     ip,
			FailureReason: "unknown_email",
		})
		return nil
	}

	token, err := pkgauth.GenerateToken()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}
	expiresAt := s.now().Add(s.expiry)

	s.mu.Lock()
	s.tokens[tokenKey(token)] = expiresAt
	s.mu.Unlock()

	if err := s.email.SendPasswordReset(ctx, s.adminEmail, token, expiresAt); err != nil {
		s.logger.Error("failed to send password reset email", slog.Any("error", err))
	}

	s.audit.LogAccountAction(ctx, pkglogger.EventPasswordResetRequested, ip, nil)
	return nil
}

// ValidateToken reports ErrInvalidToken for unknown or expired tokens.
func (s *PasswordResetService) ValidateToken(ctx context.Context, token, ip string) error {
	if err := s.throttle(ctx, ratelimit.PolicyResetPassword, ip); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validLocked(tokenKey(token)) {
		return models.ErrInvalidToken
	}
	return nil
}

// ResetPassword sets a new admin password. The token is consumed only once
// the new password passes the strength and reuse checks.
func (s *PasswordResetService) ResetPassword(ctx context.Context, token, password, ip string) error {
	if err := s.throttle(ctx, ratelimit.PolicyResetPassword, ip); err != nil {
		return err
	}

	key := tokenKey(token)
	s.mu.Lock()
	valid := s.validLocked(key)
	s.mu.Unlock()
	if !valid {
		return models.ErrInvalidToken
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}

	settings, err := s.repo.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load admin settings: %w", err)
	}

	current := s.configuredHash
	if settings.PasswordHash != nil && *settings.PasswordHash != "" {
		current = *settings.PasswordHash
	}
	if pkgauth.VerifyAdminPassword(current, password, s.allowDev) || pkgauth.InHistory(settings.PasswordHistory, password) {
		return models.ErrPasswordReuse
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return err
	}

	// A claimed token is refused to concurrent callers until the write settles
	s.mu.Lock()
	if s.claimed[key] || !s.validLocked(key) {
		s.mu.Unlock()
		return models.ErrInvalidToken
	}
	s.claimed[key] = true
	s.mu.Unlock()

	history := nextHistory(current, settings.PasswordHistory)
	if err := s.repo.UpdatePassword(ctx, hash, history, s.now()); err != nil {
		s.mu.Lock()
		delete(s.claimed, key)
		s.mu.Unlock()
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.mu.Lock()
	clear(s.tokens)
	clear(s.claimed)
	s.mu.Unlock()

	s.audit.LogAccountAction(ctx, pkglogger.EventPasswordReset, ip, nil)
	return nil
}

// Sweep drops expired tokens.
func (s *PasswordResetService) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, exp := range s.tokens {
		if !now.Before(exp) {
			delete(s.tokens, k)
			removed++
		}
	}
	return removed
}

func (s *PasswordResetService) validLocked(key string) bool {
	exp, ok := s.tokens[key]
	if !ok {
		return false
	}
	if !s.now().Before(exp) {
		delete(s.tokens, key)
		return false
	}
	return true
}

func (s *PasswordResetService) throttle(ctx context.Context, policy, ip string) error {
	d, err := s.limiter.Allow(ctx, policy, ip)
	if err != nil {
		return fmt.Errorf("%s rate limit: %w", policy, err)
	}
	if !d.Allowed {
		s.audit.LogAuthAttempt(ctx, pkglogger.EventRateLimited, ip, false, policy)
		return &models.ThrottleError{Err: models.ErrRateLimitExceeded, RetryAfter: d.RetryAfterSeconds()}
	}
	return nil
}

// nextHistory puts the outgoing hash in front and keeps the newest entries.
// Plaintext dev values are never stored.
func nextHistory(outgoing string, history []string) []string {
	next := make([]string, 0, passwordHistorySize)
	if outgoing != "" && !strings.HasPrefix(outgoing, pkgauth.DevPasswordPrefix) {
		next = append(next, outgoing)
	}
	for _, h := range history {
		if len(next) == passwordHistorySize {
			break
		}
		next = append(next, h)
	}
	return next
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
