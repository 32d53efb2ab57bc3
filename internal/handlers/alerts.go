package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BradenHooton/vigil/internal/models"
	pkghttp "github.com/BradenHooton/vigil/pkg/http"
	"github.com/go-chi/chi/v5"
)

type AlertServiceInterface interface {
	List(ctx context.Context, limit int, unreadOnly bool) ([]models.Alert, error)
	MarkRead(ctx context.Context, id string) error
}

type DigestServiceInterface interface {
	List(ctx context.Context, limit int) ([]models.DailyDigest, error)
}

// AlertHandler serves the admin alert and digest endpoints.
type AlertHandler struct {
	alerts  AlertServiceInterface
	digests DigestServiceInterface
	logger  *slog.Logger
}

func NewAlertHandler(alerts AlertServiceInterface, digests DigestServiceInterface, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, digests: digests, logger: logger}
}

type alertListResponse struct {
	Alerts []models.Alert `json:"alerts"`
}

type digestListResponse struct {
	Digests []models.DailyDigest `json:"digests"`
}

// List handles GET /api/alerts?limit=&unread=
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"

	alerts, err := h.alerts.List(r.Context(), limit, unreadOnly)
	if err != nil {
		h.logger.Error("failed to list alerts", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, alertListResponse{Alerts: alerts})
}

// MarkRead handles POST /api/alerts/{id}/read
func (h *AlertHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		pkghttp.WriteBadRequest(w, "Missing alert id")
		return
	}

	if err := h.alerts.MarkRead(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Alert not found")
			return
		}
		h.logger.Error("failed to mark alert read", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

// Digests handles GET /api/digests?limit=
func (h *AlertHandler) Digests(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	digests, err := h.digests.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list digests", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, digestListResponse{Digests: digests})
}

// queryInt parses an optional integer query parameter; absent means 0.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		pkghttp.WriteBadRequest(w, "Invalid "+name)
		return 0, false
	}
	return n, true
}
