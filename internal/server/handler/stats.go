package handler

import (
	"log/slog"
	"net/http"

	"github.com/awsshrinath/autotrade/internal/domain"
	"github.com/awsshrinath/autotrade/internal/engine"
)

// StatsHandler serves the engine's running counters and exit history.
type StatsHandler struct {
	eng     *engine.Engine
	exitLog domain.ExitLogStore
	logger  *slog.Logger
}

// NewStatsHandler creates a StatsHandler. exitLog may be nil when no durable
// exit history is configured.
func NewStatsHandler(eng *engine.Engine, exitLog domain.ExitLogStore, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		eng:     eng,
		exitLog: exitLog,
		logger:  logHandler(logger, "stats"),
	}
}

// GetStats returns position counts, PnL aggregates, and exit counts by reason.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.Stats())
}

// ListExits returns recent exit executions, newest first.
func (h *StatsHandler) ListExits(w http.ResponseWriter, r *http.Request) {
	if h.exitLog == nil {
		writeError(w, http.StatusNotImplemented, "exit history store not configured")
		return
	}

	limit := parseLimit(r, 100)
	recs, err := h.exitLog.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list exits failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exits": recs,
		"count": len(recs),
	})
}
