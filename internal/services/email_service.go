package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/BradenHooton/vigil/internal/models"
	pkglogger "github.com/BradenHooton/vigil/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// EmailService sends the admin-facing mail.
type EmailService interface {
	SendPasswordReset(ctx context.Context, to, token string, expiresAt time.Time) error
	SendAlert(ctx context.Context, alert *models.Alert) error
}

type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	client         sesAPI
	fromAddress    string
	baseURL        string
	alertRecipient string
	logger         *slog.Logger
}

func NewAWSSESEmailService(ctx context.Context, region, fromAddress, baseURL, alertRecipient string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		client:         ses.NewFromConfig(cfg),
		fromAddress:    fromAddress,
		baseURL:        baseURL,
		alertRecipient: alertRecipient,
		logger:         logger,
	}, nil
}

func (s *AWSSESEmailService) SendPasswordReset(ctx context.Context, to, token string, expiresAt time.Time) error {
	link := fmt.Sprintf("%s/admin/reset-password?token=%s", s.baseURL, url.QueryEscape(token))
	expires := expiresAt.UTC().Format(time.RFC1123)

	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <h2>Reset your admin password</h2>
    <p>A password reset was requested for the Vigil admin account.</p>
    <p><a href="%s">Reset password</a></p>
    <p>This link expires at %s. If you did not request a reset you can ignore this email.</p>
</body>
</html>
`, link, expires)

	text := fmt.Sprintf(`Reset your admin password

A password reset was requested for the Vigil admin account.

%s

This link expires at %s. If you did not request a reset you can ignore this email.
`, link, expires)

	return s.send(ctx, to, "Reset your Vigil admin password", html, text)
}

func (s *AWSSESEmailService) SendAlert(ctx context.Context, alert *models.Alert) error {
	if s.alertRecipient == "" {
		return nil
	}

	subject := fmt.Sprintf("[Vigil] %s", alert.Title)
	text := fmt.Sprintf("%s\n\nSeverity: %s\nSession: %s\n\n%s/admin/alerts\n",
		alert.Message, alert.Severity, alert.SessionID, s.baseURL)
	html := fmt.Sprintf("<p>%s</p><p>Severity: <strong>%s</strong><br>Session: %s</p><p><a href=\"%s/admin/alerts\">View alerts</a></p>",
		alert.Message, alert.Severity, alert.SessionID, s.baseURL)

	return s.send(ctx, s.alertRecipient, subject, html, text)
}

func (s *AWSSESEmailService) send(ctx context.Context, to, subject, html, text string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(html)},
				Text: &types.Content{Data: aws.String(text)},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("to", pkglogger.SanitizedEmail(to)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("to", pkglogger.SanitizedEmail(to)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// LogEmailService writes mail to the log instead of sending it. Used when
// email is disabled.
type LogEmailService struct {
	logger *slog.Logger
	env    string
}

func NewLogEmailService(logger *slog.Logger, env string) *LogEmailService {
	return &LogEmailService{logger: logger, env: env}
}

func (s *LogEmailService) SendPasswordReset(_ context.Context, to, token string, expiresAt time.Time) error {
	s.logger.Info("password reset email (not sent)",
		slog.String("to", pkglogger.SanitizedEmail(to)),
		pkglogger.RedactedAttr("token", token, s.env),
		slog.Time("expires_at", expiresAt))
	return nil
}

func (s *LogEmailService) SendAlert(_ context.Context, alert *models.Alert) error {
	s.logger.Info("alert email (not sent)",
		slog.String("type", alert.Type),
		slog.String("severity", alert.Severity),
		slog.String("title", alert.Title))
	return nil
}
