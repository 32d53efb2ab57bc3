package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/vigil/internal/auth"
	"github.com/BradenHooton/vigil/internal/models"
	"github.com/BradenHooton/vigil/internal/ratelimit"
	pkgauth "github.com/BradenHooton/vigil/pkg/auth"
	pkglogger "github.com/BradenHooton/vigil/pkg/logger"
)

// SecondFactorVerifier checks a TOTP or backup code.
type SecondFactorVerifier interface {
	Verify(ctx context.Context, code string) (bool, error)
}

// LoginResult is a freshly issued admin session.
type LoginResult struct {
	Token     string
	ExpiresIn time.Duration
}

// AuthService runs the admin login pipeline: rate limit, lockout, password,
// second factor, token.
type AuthService struct {
	settings       AdminSettingsRepository
	verifier       SecondFactorVerifier
	limiter        *ratelimit.Limiter
	lockout        *ratelimit.LockoutTracker
	tokens         *auth.TokenManager
	timing         *auth.TimingDelay
	configuredHash string
	allowDev       bool
	audit          *pkglogger.AuditLogger
	logger         *slog.Logger
	now            func() time.Time
}

func NewAuthService(
	settings AdminSettingsRepository,
	verifier SecondFactorVerifier,
	limiter *ratelimit.Limiter,
	lockout *ratelimit.LockoutTracker,
	tokens *auth.TokenManager,
	timing *auth.TimingDelay,
	configuredHash string,
	env string,
	audit *pkglogger.AuditLogger,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		settings:       settings,
		verifier:       verifier,
		limiter:        limiter,
		lockout:        lockout,
		tokens:         tokens,
		timing:         timing,
		configuredHash: configuredHash,
		allowDev:       env != "production",
		audit:          audit,
		logger:         logger,
		now:            time.Now,
	}
}

// Login authenticates the admin. Throttled attempts return a *models.ThrottleError;
// every other failure is ErrUnauthorized except ErrTwoFactorRequired, which
// tells the client to prompt for a code and is not counted as a failure.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, ip string) (*LoginResult, error) {
	start := s.now()

	decision, err := s.limiter.Allow(ctx, ratelimit.PolicyLogin, ip)
	if err != nil {
		return nil, fmt.Errorf("login rate limit: %w", err)
	}
	if !decision.Allowed {
		s.audit.LogAuthAttempt(ctx, pkglogger.EventRateLimited, ip, false, ratelimit.PolicyLogin)
		return nil, &models.ThrottleError{Err: models.ErrRateLimitExceeded, RetryAfter: decision.RetryAfterSeconds()}
	}

	if locked, until := s.lockout.IsLocked(ip); locked {
		s.audit.LogAuthAttempt(ctx, pkglogger.EventLoginFailure, ip, false, "account_locked")
		return nil, &models.ThrottleError{Err: models.ErrAccountLocked, RetryAfter: secondsUntil(until, s.now())}
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		s.logger.Error("failed to load admin settings", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !pkgauth.VerifyAdminPassword(s.passwordHash(settings), req.Password, s.allowDev) {
		return nil, s.fail(ctx, ip, pkglogger.EventLoginFailure, "invalid_password", start)
	}

	if settings.TwoFactorEnabled {
		if req.Code == "" {
			return nil, models.ErrTwoFactorRequired
		}

		ok, err := s.verifier.Verify(ctx, req.Code)
		if err != nil {
			s.logger.Error("second factor verification failed", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		if !ok {
			return nil, s.fail(ctx, ip, pkglogger.EventTwoFactorFailure, "invalid_code", start)
		}
		s.audit.LogAuthAttempt(ctx, pkglogger.EventTwoFactorSuccess, ip, true, "")
	}

	s.lockout.ClearOnSuccess(ip)

	token, err := s.tokens.GenerateAdminToken()
	if err != nil {
		s.logger.Error("failed to generate admin token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogAuthAttempt(ctx, pkglogger.EventLoginSuccess, ip, true, "")
	s.timing.WaitFrom(start, true)

	return &LoginResult{Token: token, ExpiresIn: s.tokens.Expiry()}, nil
}

// fail counts a failed attempt toward lockout. The attempt that trips the
// lock is answered with the lockout itself.
func (s *AuthService) fail(ctx context.Context, ip, event, reason string, start time.Time) error {
	status := s.lockout.RecordFailure(ip)
	s.audit.LogAuthAttempt(ctx, event, ip, false, reason)
	s.timing.WaitFrom(start, false)

	if status.Locked {
		s.audit.LogAuthAttempt(ctx, pkglogger.EventAccountLocked, ip, false, reason)
		return &models.ThrottleError{Err: models.ErrAccountLocked, RetryAfter: secondsUntil(status.LockedUntil, s.now())}
	}
	return models.ErrUnauthorized
}

func (s *AuthService) passwordHash(settings *models.AdminSettings) string {
	if settings.PasswordHash != nil && *settings.PasswordHash != "" {
		return *settings.PasswordHash
	}
	return s.configuredHash
}

// IsThrottled reports whether err is a rate-limit or lockout rejection.
func IsThrottled(err error) (*models.ThrottleError, bool) {
	var te *models.ThrottleError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

func secondsUntil(t, now time.Time) int {
	secs := int((t.Sub(now) + time.Second - 1) / time.Second)
	return max(secs, 1)
}
