package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/vigil/internal/metrics"
	"github.com/BradenHooton/vigil/internal/models"
)

const (
	defaultAlertQueueSize = 256
	defaultAlertWorkers   = 2
	alertPersistTimeout   = 5 * time.Second
	alertNotifyTimeout    = 10 * time.Second

	defaultAlertListLimit = 50
	maxAlertListLimit     = 200
)

type AlertRepository interface {
	Create(ctx context.Context, a *models.Alert) error
	List(ctx context.Context, limit int, unreadOnly bool) ([]models.Alert, error)
	MarkRead(ctx context.Context, id string) error
}

// AlertNotifier delivers high-severity alerts out of band.
type AlertNotifier interface {
	SendAlert(ctx context.Context, alert *models.Alert) error
}

// AlertEmitter queues alerts and persists them on background workers.
// Emit never blocks; a full queue drops the alert.
type AlertEmitter struct {
	repo     AlertRepository
	notifier AlertNotifier
	logger   *slog.Logger
	queue    chan models.Alert
	workers  int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAlertEmitter creates an emitter. notifier may be nil.
func NewAlertEmitter(repo AlertRepository, notifier AlertNotifier, queueSize, workers int, logger *slog.Logger) *AlertEmitter {
	if queueSize < 1 {
		queueSize = defaultAlertQueueSize
	}
	if workers < 1 {
		workers = defaultAlertWorkers
	}

	return &AlertEmitter{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		queue:    make(chan models.Alert, queueSize),
		workers:  workers,
	}
}

// Start launches the workers. They exit once Stop has drained the queue.
func (e *AlertEmitter) Start() {
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.run()
	}
	e.logger.Info("alert emitter started", slog.Int("workers", e.workers), slog.Int("queue_size", cap(e.queue)))
}

// Stop closes the queue and waits for queued alerts to be processed.
func (e *AlertEmitter) Stop() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Info("alert emitter stopped")
}

// Emit enqueues an alert and reports whether it was accepted.
func (e *AlertEmitter) Emit(alert models.Alert) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		metrics.AlertsDropped.Inc()
		return false
	}

	select {
	case e.queue <- alert:
		return true
	default:
		metrics.AlertsDropped.Inc()
		e.logger.Warn("alert queue full, dropping alert", slog.String("type", alert.Type))
		return false
	}
}

func (e *AlertEmitter) run() {
	defer e.wg.Done()
	for alert := range e.queue {
		e.process(alert)
	}
}

func (e *AlertEmitter) process(alert models.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), alertPersistTimeout)
	err := e.repo.Create(ctx, &alert)
	cancel()
	if err != nil {
		metrics.AlertsFailed.WithLabelValues("persist").Inc()
		e.logger.Error("failed to persist alert",
			slog.String("type", alert.Type),
			slog.String("session_id", alert.SessionID),
			slog.Any("error", err))
		return
	}
	metrics.AlertsEmitted.WithLabelValues(alert.Type).Inc()

	if e.notifier == nil || alert.Severity != models.SeverityHigh {
		return
	}

	ctx, cancel = context.WithTimeout(context.Background(), alertNotifyTimeout)
	defer cancel()
	if err := e.notifier.SendAlert(ctx, &alert); err != nil {
		metrics.AlertsFailed.WithLabelValues("notify").Inc()
		e.logger.Error("failed to send alert notification",
			slog.String("alert_id", alert.ID),
			slog.Any("error", err))
	}
}

// AlertService serves the admin alert endpoints.
type AlertService struct {
	repo AlertRepository
}

func NewAlertService(repo AlertRepository) *AlertService {
	return &AlertService{repo: repo}
}

// List returns the newest alerts. limit is clamped to [1, 200], default 50.
func (s *AlertService) List(ctx context.Context, limit int, unreadOnly bool) ([]models.Alert, error) {
	if limit <= 0 {
		limit = defaultAlertListLimit
	}
	limit = min(limit, maxAlertListLimit)

	alerts, err := s.repo.List(ctx, limit, unreadOnly)
	if err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	return alerts, nil
}

func (s *AlertService) MarkRead(ctx context.Context, id string) error {
	return s.repo.MarkRead(ctx, id)
}
