package handlers

import (
	"context"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/vigil/pkg/http"
)

// HealthChecker is satisfied by database.DB.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type HealthHandler struct {
	db HealthChecker
}

func NewHealthHandler(db HealthChecker) *HealthHandler {
	return &HealthHandler{db: db}
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// Live always answers ok while the process is serving.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// Ready reports 503 when the database is unreachable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.HealthCheck(ctx); err != nil {
		pkghttp.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Database: "down"})
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "up"})
}
