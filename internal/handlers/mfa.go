package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/vigil/internal/models"
	pkghttp "github.com/BradenHooton/vigil/pkg/http"
)

// MFAServiceInterface defines the interface for second-factor management
type MFAServiceInterface interface {
	Status(ctx context.Context) (*models.TwoFactorStatus, error)
	Setup(ctx context.Context) (*models.TwoFactorSetupResponse, error)
	Enable(ctx context.Context, code, ip string) error
	Disable(ctx context.Context, code, ip string) error
}

// MFAHandler serves /api/settings/2fa. All routes require an admin token.
type MFAHandler struct {
	service  MFAServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

func NewMFAHandler(service MFAServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *MFAHandler {
	return &MFAHandler{service: service, ipConfig: ipConfig, logger: logger}
}

func (h *MFAHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, status)
}

func (h *MFAHandler) Setup(w http.ResponseWriter, r *http.Request) {
	setup, err := h.service.Setup(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	pkghttp.WriteJSON(w, http.StatusOK, setup)
}

func (h *MFAHandler) Enable(w http.ResponseWriter, r *http.Request) {
	var req models.TwoFactorCodeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.Enable(r.Context(), req.Code, pkghttp.ExtractClientIP(r, h.ipConfig)); err != nil {
		h.writeError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *MFAHandler) Disable(w http.ResponseWriter, r *http.Request) {
	var req models.TwoFactorCodeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.Disable(r.Context(), req.Code, pkghttp.ExtractClientIP(r, h.ipConfig)); err != nil {
		h.writeError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *MFAHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidTwoFactor):
		pkghttp.WriteBadRequest(w, "Invalid code")
	case errors.Is(err, models.ErrTwoFactorNotSetup):
		pkghttp.WriteBadRequest(w, "Two-factor authentication is not set up")
	case errors.Is(err, models.ErrTwoFactorEnabled):
		pkghttp.WriteConflict(w, "Two-factor authentication is already enabled")
	default:
		h.logger.Error("two-factor request failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
