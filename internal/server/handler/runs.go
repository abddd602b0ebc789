package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// RunHandler serves persisted backtest runs.
type RunHandler struct {
	svc    Backtests
	logger *slog.Logger
}

// NewRunHandler creates a RunHandler.
func NewRunHandler(svc Backtests, logger *slog.Logger) *RunHandler {
	return &RunHandler{svc: svc, logger: logHandler(logger, "runs")}
}

// ListRuns returns run headers, newest first.
// GET /api/runs?limit=50&offset=0
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.svc.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun returns one run header.
// GET /api/runs/{id}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetSnapshots returns the step sequence of a run.
// GET /api/runs/{id}/snapshots
func (h *RunHandler) GetSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.svc.Snapshots(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

// GetBook returns the final order book of a run.
// GET /api/runs/{id}/book
func (h *RunHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.svc.Book(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// RecentRuns pages through the run summary stream.
// GET /api/runs/recent?after=<stream id>
func (h *RunHandler) RecentRuns(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.svc.RecentRuns(r.Context(), r.URL.Query().Get("after"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	type entry struct {
		ID    string          `json:"id"`
		Event json.RawMessage `json:"event"`
	}
	out := make([]entry, 0, len(msgs))
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		out = append(out, entry{ID: m.ID, Event: m.Payload})
	}
	writeJSON(w, http.StatusOK, out)
}
