package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/awsshrinath/autotrade/internal/domain"
	"github.com/awsshrinath/autotrade/internal/engine"
)

// PositionHandler exposes the engine's position control surface over HTTP.
type PositionHandler struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(eng *engine.Engine, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		eng:    eng,
		logger: logHandler(logger, "position"),
	}
}

// ListPositions returns positions, optionally filtered by ?status=OPEN.
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	var statuses []domain.TradeStatus
	if v := r.URL.Query().Get("status"); v != "" {
		statuses = append(statuses, domain.TradeStatus(v))
	}
	positions := h.eng.Positions(statuses...)
	writeJSON(w, http.StatusOK, map[string]any{
		"positions": positions,
		"count":     len(positions),
	})
}

// GetPosition returns one position by id.
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := h.eng.Position(pathParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// AddPosition admits a new position after a confirmed entry fill.
func (h *PositionHandler) AddPosition(w http.ResponseWriter, r *http.Request) {
	var entry domain.EntryOrder
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id, err := h.eng.AddPosition(r.Context(), entry)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type manualExitRequest struct {
	ExitPercent float64 `json:"exit_percentage"`
}

// ManualExit enqueues an operator-requested exit. Body {"exit_percentage": N}
// is optional; an empty body exits the full remaining quantity.
func (h *PositionHandler) ManualExit(w http.ResponseWriter, r *http.Request) {
	req := manualExitRequest{ExitPercent: 100}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	id := pathParam(r, "id")
	if err := h.eng.ManualExit(r.Context(), id, req.ExitPercent); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":              id,
		"exit_percentage": req.ExitPercent,
	})
}

// MoveToBreakeven tightens the stop loss to the entry price.
func (h *PositionHandler) MoveToBreakeven(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if err := h.eng.MoveToBreakeven(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

type trailingStopRequest struct {
	Distance float64 `json:"distance"`
	Trigger  float64 `json:"trigger"`
}

// EnableTrailingStop arms the trailing stop on a position.
func (h *PositionHandler) EnableTrailingStop(w http.ResponseWriter, r *http.Request) {
	var req trailingStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id := pathParam(r, "id")
	if err := h.eng.EnableTrailingStop(r.Context(), id, req.Distance, req.Trigger); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       id,
		"distance": req.Distance,
		"trigger":  req.Trigger,
	})
}

type emergencyExitRequest struct {
	Reason string `json:"reason"`
}

// EmergencyExit requests a full exit of every live position.
func (h *PositionHandler) EmergencyExit(w http.ResponseWriter, r *http.Request) {
	req := emergencyExitRequest{Reason: "operator request"}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	h.logger.WarnContext(r.Context(), "emergency exit via api", slog.String("reason", req.Reason))
	enqueued := h.eng.EmergencyExitAll(r.Context(), req.Reason)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"reason":   req.Reason,
		"enqueued": enqueued,
	})
}

// writeEngineError maps engine and domain errors onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidEntry),
		errors.Is(err, domain.ErrInvalidStrategy),
		errors.Is(err, domain.ErrLiveDisabled):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrPositionClosed), errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
