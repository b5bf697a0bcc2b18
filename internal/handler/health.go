package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/garmin-mcp/internal/repository"
)

// HealthHandler serves the liveness and readiness endpoints.
type HealthHandler struct {
	store  repository.Pinger
	logger *slog.Logger
}

func NewHealthHandler(store repository.Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: store, logger: logger}
}

// HandleHealthz always answers "ok" while the process is serving.
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

// HandleReadyz answers "ready" when the store responds to a ping within two
// seconds, 503 otherwise.
func (h *HealthHandler) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.logger.Warn("readiness check failed", slog.String("error", err.Error()))
			writeText(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeText(w, http.StatusOK, "ready")
}
