package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/vigil/internal/detection"
	"github.com/BradenHooton/vigil/internal/identity"
	"github.com/BradenHooton/vigil/internal/metrics"
	"github.com/BradenHooton/vigil/internal/models"
	"github.com/BradenHooton/vigil/internal/scoring"
)

const defaultHistoryLimit = 100

type VisitorRepository interface {
	Insert(ctx context.Context, v *models.Visitor) error
	ListRecentBySession(ctx context.Context, sessionID string, limit int) ([]models.Visitor, error)
	SeenInOtherSession(ctx context.Context, ipHash, sessionID string) (bool, error)
}

type SessionRepository interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	// Upsert reports whether the stored session was hot before the write.
	Upsert(ctx context.Context, s *models.Session) (bool, error)
	SetConsent(ctx context.Context, id string, consent bool) error
}

// AlertSink accepts alerts without blocking.
type AlertSink interface {
	Emit(alert models.Alert) bool
}

// VisitService classifies, scores and records visits.
type VisitService struct {
	classifier   *detection.Classifier
	hasher       *identity.Hasher
	visitors     VisitorRepository
	sessions     SessionRepository
	alerts       AlertSink
	historyLimit int
	logger       *slog.Logger
	now          func() time.Time
}

func NewVisitService(
	classifier *detection.Classifier,
	hasher *identity.Hasher,
	visitors VisitorRepository,
	sessions SessionRepository,
	alerts AlertSink,
	historyLimit int,
	logger *slog.Logger,
) *VisitService {
	if historyLimit < 1 {
		historyLimit = defaultHistoryLimit
	}
	return &VisitService{
		classifier:   classifier,
		hasher:       hasher,
		visitors:     visitors,
		sessions:     sessions,
		alerts:       alerts,
		historyLimit: historyLimit,
		logger:       logger,
		now:          time.Now,
	}
}

// LogVisit records one request and returns the stored visitor row.
func (s *VisitService) LogVisit(ctx context.Context, req models.VisitRequest) (*models.Visitor, error) {
	start := s.now()
	defer metrics.ObserveSince(metrics.VisitLogDuration, start)

	visitor, err := s.logVisit(ctx, req, start)
	if err != nil {
		metrics.VisitLogErrors.Inc()
		return nil, err
	}
	return visitor, nil
}

func (s *VisitService) logVisit(ctx context.Context, req models.VisitRequest, now time.Time) (*models.Visitor, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, fmt.Errorf("%w: session id is required", models.ErrBadRequest)
	}

	result := s.classifier.Classify(req.UserAgent, req.Headers)
	metrics.VisitClassifications.WithLabelValues(result.Verdict()).Inc()

	ipHash := s.hasher.HashIP(req.IP)
	uaHash := s.hasher.HashUserAgent(req.UserAgent)

	history, err := s.visitors.ListRecentBySession(ctx, req.SessionID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load session history: %w", err)
	}

	prev, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	// Only a scoring input; the alert decision uses what Upsert saw under lock
	wasHot := prev != nil && prev.IsHot

	isReturning := prev != nil && prev.IsReturning
	if !isReturning {
		seen, err := s.visitors.SeenInOtherSession(ctx, ipHash, req.SessionID)
		if err != nil {
			s.logger.Warn("returning visitor check failed", slog.Any("error", err))
		}
		isReturning = seen
	}

	current := scoring.Visit{
		Path:    req.Path,
		At:      now,
		Consent: prev != nil && prev.HasConsent,
	}
	factors := scoring.Collect(toScoringVisits(history), current)
	factors.IsReturning = isReturning
	factors.IsHotAlready = wasHot

	score := scoring.Score(factors)
	isHot := wasHot || scoring.IsHotSession(score, factors.PageViews, factors.TimeOnSiteSeconds)

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	visitor := &models.Visitor{
		SessionID:   req.SessionID,
		IPHash:      ipHash,
		UAHash:      uaHash,
		Path:        req.Path,
		Method:      method,
		Referrer:    req.Referrer,
		Country:     req.Country,
		City:        req.City,
		Device:      result.DeviceCategory,
		Browser:     result.BrowserName,
		OS:          result.OSName,
		IsBot:       result.IsBot,
		IsAI:        result.IsAI,
		BotLabel:    result.MatchedLabel,
		Score:       score,
		IsHot:       isHot,
		HasConsent:  factors.HasConsent,
		IsReturning: isReturning,
		CreatedAt:   now,
	}
	if err := s.visitors.Insert(ctx, visitor); err != nil {
		return nil, err
	}

	session := &models.Session{
		ID:                req.SessionID,
		IPHash:            ipHash,
		UAHash:            uaHash,
		Country:           req.Country,
		Device:            result.DeviceCategory,
		FirstSeen:         now,
		LastSeen:          now,
		PageViews:         factors.PageViews,
		UniquePages:       factors.UniquePages,
		TimeOnSiteSeconds: factors.TimeOnSiteSeconds,
		Score:             score,
		IsHot:             isHot,
		IsBot:             result.IsBot,
		IsAI:              result.IsAI,
		HasConsent:        factors.HasConsent,
		IsReturning:       isReturning,
	}
	if prev != nil {
		session.FirstSeen = prev.FirstSeen
	}
	hotBefore, err := s.sessions.Upsert(ctx, session)
	if err != nil {
		return nil, err
	}

	s.raiseAlerts(visitor, hotBefore)
	return visitor, nil
}

func (s *VisitService) raiseAlerts(v *models.Visitor, wasHot bool) {
	if v.IsAI {
		s.alerts.Emit(models.Alert{
			Type:      models.AlertTypeAIDetected,
			Severity:  models.SeverityHigh,
			Title:     "AI agent detected",
			Message:   fmt.Sprintf("%s visited %s", aiLabel(v.BotLabel), v.Path),
			SessionID: v.SessionID,
		})
	}

	if !wasHot && v.IsHot {
		metrics.HotSessions.Inc()
		s.alerts.Emit(models.Alert{
			Type:      models.AlertTypeHotSession,
			Severity:  models.SeverityMedium,
			Title:     "Hot session",
			Message:   fmt.Sprintf("Session reached score %d on %s", v.Score, v.Path),
			SessionID: v.SessionID,
		})
	}
}

func aiLabel(label string) string {
	if label == "" {
		return "An AI agent"
	}
	return label
}

// SetConsent records the visitor's tracking consent choice.
func (s *VisitService) SetConsent(ctx context.Context, sessionID string, consent bool) error {
	if strings.TrimSpace(sessionID) == "" {
		return models.ErrBadRequest
	}
	return s.sessions.SetConsent(ctx, sessionID, consent)
}

func toScoringVisits(history []models.Visitor) []scoring.Visit {
	out := make([]scoring.Visit, len(history))
	for i, v := range history {
		out[i] = scoring.Visit{Path: v.Path, At: v.CreatedAt, Consent: v.HasConsent}
	}
	return out
}
