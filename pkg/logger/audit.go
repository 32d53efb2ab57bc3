package logger

import (
	"context"
	"log/slog"
	"time"
)

// Security event types emitted by the admin surface.
const (
	EventLoginSuccess           = "login_success"
	EventLoginFailure           = "login_failure"
	EventTwoFactorSuccess       = "2fa_success"
	EventTwoFactorFailure       = "2fa_failure"
	EventAccountLocked          = "account_locked"
	EventRateLimited            = "rate_limited"
	EventPasswordResetRequested = "password_reset_requested"
	EventPasswordReset          = "password_reset"
	EventTwoFactorEnabled       = "2fa_enabled"
	EventTwoFactorDisabled      = "2fa_disabled"
	EventBackupCodeUsed         = "backup_code_used"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes security events as structured log lines.
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

// Log writes an event. Failures are logged at warn level.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogAuthAttempt logs a login or second-factor attempt.
func (al *AuditLogger) LogAuthAttempt(ctx context.Context, eventType, ip string, success bool, reason string) {
	al.Log(ctx, AuditEvent{
		EventType:     eventType,
		IPAddress:     ip,
		Success:       success,
		FailureReason: reason,
	})
}

// LogAccountAction logs admin account changes (2FA, password reset).
func (al *AuditLogger) LogAccountAction(ctx context.Context, eventType, ip string, metadata map[string]string) {
	al.Log(ctx, AuditEvent{
		EventType: eventType,
		IPAddress: ip,
		Success:   true,
		Metadata:  metadata,
	})
}
