package services

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/BradenHooton/vigil/internal/models"
	pkglogger "github.com/BradenHooton/vigil/pkg/logger"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func discardAudit() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(discardLogger())
}

// MockVisitorRepository implements VisitorRepository for testing
type MockVisitorRepository struct {
	InsertFunc              func(ctx context.Context, v *models.Visitor) error
	ListRecentBySessionFunc func(ctx context.Context, sessionID string, limit int) ([]models.Visitor, error)
	SeenInOtherSessionFunc  func(ctx context.Context, ipHash, sessionID string) (bool, error)
}

func (m *MockVisitorRepository) Insert(ctx context.Context, v *models.Visitor) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, v)
	}
	return nil
}

func (m *MockVisitorRepository) ListRecentBySession(ctx context.Context, sessionID string, limit int) ([]models.Visitor, error) {
	if m.ListRecentBySessionFunc != nil {
		return m.ListRecentBySessionFunc(ctx, sessionID, limit)
	}
	return nil, nil
}

func (m *MockVisitorRepository) SeenInOtherSession(ctx context.Context, ipHash, sessionID string) (bool, error) {
	if m.SeenInOtherSessionFunc != nil {
		return m.SeenInOtherSessionFunc(ctx, ipHash, sessionID)
	}
	return false, nil
}

// MockSessionRepository implements SessionRepository for testing
type MockSessionRepository struct {
	GetFunc        func(ctx context.Context, id string) (*models.Session, error)
	UpsertFunc     func(ctx context.Context, s *models.Session) (bool, error)
	SetConsentFunc func(ctx context.Context, id string, consent bool) error
}

func (m *MockSessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) Upsert(ctx context.Context, s *models.Session) (bool, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, s)
	}
	return false, nil
}

func (m *MockSessionRepository) SetConsent(ctx context.Context, id string, consent bool) error {
	if m.SetConsentFunc != nil {
		return m.SetConsentFunc(ctx, id, consent)
	}
	return nil
}

// MockAlertRepository implements AlertRepository for testing
type MockAlertRepository struct {
	CreateFunc   func(ctx context.Context, a *models.Alert) error
	ListFunc     func(ctx context.Context, limit int, unreadOnly bool) ([]models.Alert, error)
	MarkReadFunc func(ctx context.Context, id string) error
}

func (m *MockAlertRepository) Create(ctx context.Context, a *models.Alert) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, a)
	}
	return nil
}

func (m *MockAlertRepository) List(ctx context.Context, limit int, unreadOnly bool) ([]models.Alert, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, unreadOnly)
	}
	return nil, nil
}

func (m *MockAlertRepository) MarkRead(ctx context.Context, id string) error {
	if m.MarkReadFunc != nil {
		return m.MarkReadFunc(ctx, id)
	}
	return nil
}

// MockAlertNotifier implements AlertNotifier for testing
type MockAlertNotifier struct {
	mu   sync.Mutex
	sent []models.Alert
	Err  error
}

func (m *MockAlertNotifier) SendAlert(_ context.Context, a *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, *a)
	return m.Err
}

func (m *MockAlertNotifier) Sent() []models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.sent)
}

// recordingSink collects emitted alerts synchronously.
type recordingSink struct {
	alerts []models.Alert
}

func (r *recordingSink) Emit(a models.Alert) bool {
	r.alerts = append(r.alerts, a)
	return true
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendPasswordResetFunc func(ctx context.Context, to, token string, expiresAt time.Time) error
	SendAlertFunc         func(ctx context.Context, alert *models.Alert) error
}

func (m *MockEmailService) SendPasswordReset(ctx context.Context, to, token string, expiresAt time.Time) error {
	if m.SendPasswordResetFunc != nil {
		return m.SendPasswordResetFunc(ctx, to, token, expiresAt)
	}
	return nil
}

func (m *MockEmailService) SendAlert(ctx context.Context, alert *models.Alert) error {
	if m.SendAlertFunc != nil {
		return m.SendAlertFunc(ctx, alert)
	}
	return nil
}

// MockDigestRepository implements DigestRepository for testing
type MockDigestRepository struct {
	AggregateFunc func(ctx context.Context, day time.Time) (*models.DailyDigest, error)
	SaveFunc      func(ctx context.Context, d *models.DailyDigest) error
	ListFunc      func(ctx context.Context, limit int) ([]models.DailyDigest, error)
}

func (m *MockDigestRepository) Aggregate(ctx context.Context, day time.Time) (*models.DailyDigest, error) {
	if m.AggregateFunc != nil {
		return m.AggregateFunc(ctx, day)
	}
	return &models.DailyDigest{Day: day}, nil
}

func (m *MockDigestRepository) Save(ctx context.Context, d *models.DailyDigest) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, d)
	}
	return nil
}

func (m *MockDigestRepository) List(ctx context.Context, limit int) ([]models.DailyDigest, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit)
	}
	return nil, nil
}

// fakeSettingsRepo keeps the admin_settings row in memory.
type fakeSettingsRepo struct {
	mu        sync.Mutex
	row       models.AdminSettings
	GetErr    error
	UpdateErr error
	// OnUpdate runs before UpdatePassword writes, outside the lock.
	OnUpdate func()
}

func (f *fakeSettingsRepo) Get(_ context.Context) (*models.AdminSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	row := f.row
	row.BackupCodes = slices.Clone(f.row.BackupCodes)
	row.PasswordHistory = slices.Clone(f.row.PasswordHistory)
	return &row, nil
}

func (f *fakeSettingsRepo) SaveTwoFactorSetup(_ context.Context, secret, nonce []byte, hashes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.row.TwoFactorSecret = secret
	f.row.TwoFactorSecretNonce = nonce
	f.row.BackupCodes = slices.Clone(hashes)
	f.row.TwoFactorEnabled = false
	return nil
}

func (f *fakeSettingsRepo) EnableTwoFactor(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.row.TwoFactorSecret) == 0 {
		return models.ErrNotFound
	}
	f.row.TwoFactorEnabled = true
	return nil
}

func (f *fakeSettingsRepo) DisableTwoFactor(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.row.TwoFactorEnabled = false
	f.row.TwoFactorSecret = nil
	f.row.TwoFactorSecretNonce = nil
	f.row.BackupCodes = nil
	return nil
}

func (f *fakeSettingsRepo) ConsumeBackupCode(_ context.Context, hash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := slices.Index(f.row.BackupCodes, hash)
	if i < 0 {
		return false, nil
	}
	f.row.BackupCodes = slices.Delete(f.row.BackupCodes, i, i+1)
	return true, nil
}

func (f *fakeSettingsRepo) UpdatePassword(_ context.Context, hash string, history []string, changedAt time.Time) error {
	if f.OnUpdate != nil {
		f.OnUpdate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	f.row.PasswordHash = &hash
	f.row.PasswordHistory = slices.Clone(history)
	f.row.LastPasswordChange = &changedAt
	return nil
}
