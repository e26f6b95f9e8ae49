package handlers

import (
	"net/http"

	"go.uber.org/zap"

	apperrors "lens-backend/pkg/errors"
)

// Readiness reports whether the feed has completed its first load.
type Readiness interface {
	Ready() bool
}

// HealthHandler answers liveness and readiness probes.
type HealthHandler struct {
	base
	ready Readiness
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(ready Readiness, logger *zap.Logger, errs *apperrors.ErrorHandler) *HealthHandler {
	return &HealthHandler{base: base{logger: logger, errs: errs}, ready: ready}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Ready() {
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
