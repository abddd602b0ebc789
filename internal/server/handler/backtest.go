package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/lobsim/internal/domain"
	"github.com/alanyoungcy/lobsim/internal/strategy"
)

const maxRequestBody = 1 << 20

// Backtests is the service surface the HTTP API needs.
type Backtests interface {
	Run(ctx context.Context, req domain.RunRequest) (*domain.RunResult, error)
	Get(ctx context.Context, id string) (domain.Run, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Run, error)
	Snapshots(ctx context.Context, id string) ([]domain.Snapshot, error)
	Book(ctx context.Context, id string) (domain.OrderbookSnapshot, error)
	RecentRuns(ctx context.Context, lastID string) ([]domain.StreamMessage, error)
	Strategies() []strategy.Info
	Source() string
}

// BacktestHandler serves backtest execution.
type BacktestHandler struct {
	svc    Backtests
	logger *slog.Logger
}

// NewBacktestHandler creates a BacktestHandler.
func NewBacktestHandler(svc Backtests, logger *slog.Logger) *BacktestHandler {
	return &BacktestHandler{svc: svc, logger: logHandler(logger, "backtest")}
}

// RunBacktest runs a backtest synchronously and returns its full result.
// An empty body runs with every default.
// POST /backtest, POST /api/backtest
func (h *BacktestHandler) RunBacktest(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRunRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.Run(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeRunRequest(w http.ResponseWriter, r *http.Request) (domain.RunRequest, error) {
	var req domain.RunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.RunRequest{}, nil
		}
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	if req.FillMode != "" && !req.FillMode.Valid() {
		return req, fmt.Errorf("invalid fill_mode %q", req.FillMode)
	}
	return req, nil
}

// ListStrategies lists the registered strategies and the data source they run
// against.
// GET /api/strategies
func (h *BacktestHandler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"strategies": h.svc.Strategies(),
		"source":     h.svc.Source(),
	})
}
