package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/poolbet/internal/registry"
)

// StatusHandler serves the backend status for dashboards.
type StatusHandler struct {
	mode      string
	reg       *registry.Registry
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, reg *registry.Registry, startedAt time.Time) *StatusHandler {
	return &StatusHandler{mode: mode, reg: reg, startedAt: startedAt}
}

// GetStatus responds with the run mode, live pool count, and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"live_pools":     h.reg.Len(),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
