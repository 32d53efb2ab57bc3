package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/vigil/internal/auth"
	"github.com/BradenHooton/vigil/internal/models"
	"github.com/BradenHooton/vigil/internal/ratelimit"
	pkghttp "github.com/BradenHooton/vigil/pkg/http"
)

const internalSecretHeader = "X-Internal-Secret"

// VisitServiceInterface defines the interface for visit ingestion
type VisitServiceInterface interface {
	LogVisit(ctx context.Context, req models.VisitRequest) (*models.Visitor, error)
	SetConsent(ctx context.Context, sessionID string, consent bool) error
}

// VisitThrottle is satisfied by *ratelimit.Limiter.
type VisitThrottle interface {
	Allow(ctx context.Context, policy, identifier string) (ratelimit.Decision, error)
}

type VisitHandler struct {
	service        VisitServiceInterface
	throttle       VisitThrottle
	ipConfig       *pkghttp.IPConfig
	internalSecret string
	logger         *slog.Logger
}

// NewVisitHandler creates a visit handler. A nil throttle disables the
// log_visit policy.
func NewVisitHandler(service VisitServiceInterface, throttle VisitThrottle, ipConfig *pkghttp.IPConfig, internalSecret string, logger *slog.Logger) *VisitHandler {
	return &VisitHandler{
		service:        service,
		throttle:       throttle,
		ipConfig:       ipConfig,
		internalSecret: internalSecret,
		logger:         logger,
	}
}

type logVisitResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Score   int    `json:"score"`
	IsHot   bool   `json:"is_hot"`
	IsBot   bool   `json:"is_bot"`
	IsAI    bool   `json:"is_ai"`
}

// LogVisit handles POST /internal/log-visit. Callers must present the shared
// secret when one is configured. Only authenticated, well-formed posts count
// against the log_visit policy.
func (h *VisitHandler) LogVisit(w http.ResponseWriter, r *http.Request) {
	if h.internalSecret != "" {
		got := r.Header.Get(internalSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.internalSecret)) != 1 {
			pkghttp.WriteUnauthorized(w, "Unauthorized")
			return
		}
	}

	var req models.VisitRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if !h.allow(w, r) {
		return
	}

	v, err := h.service.LogVisit(r.Context(), req)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Invalid visit")
			return
		}
		h.logger.Error("failed to log visit", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to log visit")
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, logVisitResponse{
		Success: true,
		ID:      v.ID,
		Score:   v.Score,
		IsHot:   v.IsHot,
		IsBot:   v.IsBot,
		IsAI:    v.IsAI,
	})
}

// Consent handles POST /api/consent for the session in the visitor cookie.
func (h *VisitHandler) Consent(w http.ResponseWriter, r *http.Request) {
	sessionID := auth.GetCookie(r, auth.VisitorCookieName)
	if sessionID == "" {
		pkghttp.WriteBadRequest(w, "No visitor session")
		return
	}

	var req models.ConsentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.SetConsent(r.Context(), sessionID, *req.Consent); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Session not found")
		default:
			h.logger.Error("failed to record consent", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *VisitHandler) allow(w http.ResponseWriter, r *http.Request) bool {
	if h.throttle == nil {
		return true
	}

	decision, err := h.throttle.Allow(r.Context(), ratelimit.PolicyLogVisit, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		h.logger.Error("rate limit check failed",
			slog.String("policy", ratelimit.PolicyLogVisit),
			slog.Any("error", err))
		return true
	}
	if !decision.Allowed {
		pkghttp.WriteTooManyRequests(w, "Too many requests. Please try again later.", decision.RetryAfterSeconds())
		return false
	}
	return true
}
