package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/lobsim/internal/backtest"
	"github.com/alanyoungcy/lobsim/internal/domain"
	"github.com/alanyoungcy/lobsim/internal/marketdata"
	"github.com/alanyoungcy/lobsim/internal/metrics"
	"github.com/alanyoungcy/lobsim/internal/strategy"
)

const (
	ChannelBacktest = "ch:backtest"
	StreamRuns      = "stream:runs"
	streamMaxRead   = 100
)

// SnapshotEvent is published on ch:backtest:{run_id} after every step.
type SnapshotEvent struct {
	Event    string          `json:"event"`
	RunID    string          `json:"run_id"`
	Snapshot domain.Snapshot `json:"snapshot"`
}

// RunNotifier announces run outcomes.
type RunNotifier interface {
	RunCompleted(ctx context.Context, run domain.Run) error
	RunFailed(ctx context.Context, req domain.RunRequest, err error) error
}

// BacktestConfig holds the defaults applied to incoming run requests.
type BacktestConfig struct {
	StartIndex     int
	EndIndex       int // negative means the series length
	StartingCash   float64
	Strategy       string
	StrategyParams map[string]any
	FillMode       domain.FillMode
	AtomicSteps    bool
	CacheTTL       time.Duration
	LockTTL        time.Duration
}

// BacktestDeps are the optional sinks of a BacktestService. Nil members are
// skipped.
type BacktestDeps struct {
	Runs     domain.RunStore
	Audit    domain.AuditStore
	Results  domain.ResultCache
	Books    domain.OrderbookCache
	Bus      domain.SignalBus
	Locks    domain.LockManager
	Archiver domain.Archiver
	Notifier RunNotifier
}

// BacktestService runs backtests over a loaded series and fans the result out
// to storage, caches and subscribers.
type BacktestService struct {
	series   *marketdata.Series
	runner   *backtest.Runner
	registry *strategy.Registry
	cfg      BacktestConfig
	deps     BacktestDeps
	logger   *slog.Logger
}

// NewBacktestService creates a BacktestService.
func NewBacktestService(
	series *marketdata.Series,
	runner *backtest.Runner,
	registry *strategy.Registry,
	cfg BacktestConfig,
	deps BacktestDeps,
	logger *slog.Logger,
) *BacktestService {
	return &BacktestService{
		series:   series,
		runner:   runner,
		registry: registry,
		cfg:      cfg,
		deps:     deps,
		logger:   logger.With(slog.String("component", "backtest_service")),
	}
}

// resolvedRequest is a request with every default applied. Its JSON form is
// the cache key input.
type resolvedRequest struct {
	Source       string          `json:"source"`
	StartIndex   int             `json:"start_index"`
	EndIndex     int             `json:"end_index"`
	StartingCash float64         `json:"starting_cash"`
	Strategy     string          `json:"strategy"`
	Params       map[string]any  `json:"params"`
	FillMode     domain.FillMode `json:"fill_mode"`
	AtomicSteps  bool            `json:"atomic_steps"`
}

func (s *BacktestService) resolve(req domain.RunRequest) (resolvedRequest, error) {
	r := resolvedRequest{
		Source:       s.series.Source(),
		StartIndex:   req.StartIndex,
		EndIndex:     s.cfg.EndIndex,
		StartingCash: s.cfg.StartingCash,
		Strategy:     req.Strategy,
		Params:       req.Params,
		FillMode:     req.FillMode,
		AtomicSteps:  s.cfg.AtomicSteps,
	}

	if r.Strategy == "" {
		r.Strategy = s.cfg.Strategy
		if r.Params == nil {
			r.Params = s.cfg.StrategyParams
		}
	}
	if _, err := s.registry.Get(r.Strategy); err != nil {
		return r, err
	}
	if req.EndIndex != nil {
		r.EndIndex = *req.EndIndex
	}
	// "to the end" is spelled one way so it hashes one way
	if r.EndIndex < 0 {
		r.EndIndex = s.series.Len()
	}
	if r.StartIndex < 0 {
		return r, fmt.Errorf("start_index %d must not be negative: %w", r.StartIndex, domain.ErrInvalidRequest)
	}
	if r.EndIndex < r.StartIndex {
		return r, fmt.Errorf("end_index %d is before start_index %d: %w", r.EndIndex, r.StartIndex, domain.ErrInvalidRequest)
	}
	if req.StartingCash != nil {
		r.StartingCash = *req.StartingCash
	}
	if r.StartingCash < 0 || math.IsNaN(r.StartingCash) || math.IsInf(r.StartingCash, 0) {
		return r, fmt.Errorf("starting_cash %v: %w", r.StartingCash, domain.ErrInvalidRequest)
	}
	if r.FillMode == "" {
		r.FillMode = s.cfg.FillMode
	}
	if !r.FillMode.Valid() {
		return r, fmt.Errorf("fill_mode %q: %w", r.FillMode, domain.ErrInvalidRequest)
	}
	if req.AtomicSteps != nil {
		r.AtomicSteps = *req.AtomicSteps
	}
	return r, nil
}

// cacheKey is the sha256 hex digest of the canonical request JSON.
// encoding/json sorts map keys, so equal requests hash equally.
func cacheKey(r resolvedRequest) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Run executes a backtest, or returns a cached result for an identical
// request.
func (s *BacktestService) Run(ctx context.Context, req domain.RunRequest) (*domain.RunResult, error) {
	r, err := s.resolve(req)
	if err != nil {
		return nil, fmt.Errorf("backtest_service: %w", err)
	}
	key, err := cacheKey(r)
	if err != nil {
		return nil, fmt.Errorf("backtest_service: cache key: %w", err)
	}

	if s.deps.Results != nil {
		cached, err := s.deps.Results.Get(ctx, key)
		switch {
		case err == nil:
			cached.Cached = true
			s.logger.InfoContext(ctx, "backtest_service: cache hit",
				slog.String("run_id", cached.RunID),
				slog.String("key", key),
			)
			return &cached, nil
		case !errors.Is(err, domain.ErrNotFound):
			s.logger.WarnContext(ctx, "backtest_service: cache lookup failed",
				slog.String("error", err.Error()),
			)
		}
	}

	if s.deps.Locks != nil {
		unlock, err := s.deps.Locks.Acquire(ctx, "backtest:"+key, s.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("backtest_service: acquire lock: %w", err)
		}
		defer unlock()
	}

	runID := uuid.New().String()
	started := time.Now().UTC()

	res, err := s.runner.Run(ctx, backtest.RunConfig{
		Series:         s.series,
		Strategy:       r.Strategy,
		StrategyParams: r.Params,
		FillMode:       r.FillMode,
		AtomicSteps:    r.AtomicSteps,
		StartingCash:   r.StartingCash,
		Start:          r.StartIndex,
		End:            r.EndIndex,
		BookID:         runID,
		OnSnapshot:     s.snapshotPublisher(ctx, runID),
	})
	if err != nil {
		s.notifyFailed(ctx, req, err)
		return nil, fmt.Errorf("backtest_service: %w", err)
	}

	run := domain.Run{
		ID:           runID,
		Source:       r.Source,
		Strategy:     r.Strategy,
		FillMode:     r.FillMode,
		AtomicSteps:  r.AtomicSteps,
		StartIndex:   r.StartIndex,
		EndIndex:     r.EndIndex,
		StartingCash: r.StartingCash,
		Steps:        len(res.Snapshots),
		Skipped:      res.Skipped,
		Metrics:      metrics.Compute(res.Snapshots),
		TradeStats:   metrics.CountTrades(res.Snapshots),
		AgentStats:   metrics.AgentStats(res.Snapshots),
		CreatedAt:    started,
		Duration:     domain.Millis(time.Since(started).Milliseconds()),
	}
	result := &domain.RunResult{
		RunID:      runID,
		Steps:      run.Steps,
		Results:    res.Snapshots,
		Metrics:    run.Metrics,
		TradeStats: run.TradeStats,
		AgentStats: run.AgentStats,
		Book:       res.Book,
	}

	if err := s.fanOut(ctx, key, run, result); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "backtest_service: run completed",
		slog.String("run_id", runID),
		slog.String("strategy", r.Strategy),
		slog.Int("steps", run.Steps),
		slog.Int("skipped", run.Skipped),
		slog.Float64("return_pct", run.Metrics.ReturnPct),
		slog.Int64("duration_ms", int64(run.Duration)),
	)
	return result, nil
}

func (s *BacktestService) snapshotPublisher(ctx context.Context, runID string) func(domain.Snapshot) {
	if s.deps.Bus == nil {
		return nil
	}
	channel := ChannelBacktest + ":" + runID
	return func(snap domain.Snapshot) {
		payload, err := json.Marshal(SnapshotEvent{Event: "snapshot", RunID: runID, Snapshot: snap})
		if err != nil {
			return
		}
		if err := s.deps.Bus.Publish(ctx, channel, payload); err != nil {
			s.logger.DebugContext(ctx, "backtest_service: publish snapshot failed",
				slog.String("run_id", runID),
				slog.Int("step", snap.Step),
				slog.String("error", err.Error()),
			)
		}
	}
}

// fanOut delivers a finished run to every configured sink concurrently. Only
// a failure to persist the run is returned; other sinks log and move on.
func (s *BacktestService) fanOut(ctx context.Context, key string, run domain.Run, result *domain.RunResult) error {
	var g errgroup.Group

	if s.deps.Runs != nil {
		g.Go(func() error {
			if err := s.deps.Runs.Save(ctx, run, result.Results); err != nil {
				return fmt.Errorf("backtest_service: save run: %w", err)
			}
			return nil
		})
	}
	if s.deps.Results != nil {
		g.Go(func() error {
			s.warn(ctx, "cache result", run.ID, s.deps.Results.Set(ctx, key, *result, s.cfg.CacheTTL))
			return nil
		})
	}
	if s.deps.Books != nil {
		g.Go(func() error {
			s.warn(ctx, "cache book", run.ID, s.deps.Books.SetSnapshot(ctx, run.ID, result.Book))
			return nil
		})
	}
	if s.deps.Bus != nil {
		g.Go(func() error {
			evt, err := json.Marshal(map[string]any{
				"event":       "backtest_completed",
				"run_id":      run.ID,
				"strategy":    run.Strategy,
				"steps":       run.Steps,
				"metrics":     run.Metrics,
				"trade_stats": run.TradeStats,
				"timestamp":   run.CreatedAt.Format(time.RFC3339),
			})
			if err != nil {
				return nil
			}
			s.warn(ctx, "publish summary", run.ID, s.deps.Bus.Publish(ctx, ChannelBacktest, evt))
			s.warn(ctx, "append run stream", run.ID, s.deps.Bus.StreamAppend(ctx, StreamRuns, evt))
			return nil
		})
	}
	if s.deps.Archiver != nil {
		g.Go(func() error {
			path, err := s.deps.Archiver.ArchiveRun(ctx, run, result.Results)
			if err == nil {
				s.logger.DebugContext(ctx, "backtest_service: run archived",
					slog.String("run_id", run.ID),
					slog.String("path", path),
				)
			}
			s.warn(ctx, "archive run", run.ID, err)
			return nil
		})
	}
	if s.deps.Audit != nil {
		g.Go(func() error {
			s.warn(ctx, "audit log", run.ID, s.deps.Audit.Log(ctx, "backtest.completed", map[string]any{
				"run_id":     run.ID,
				"strategy":   run.Strategy,
				"steps":      run.Steps,
				"skipped":    run.Skipped,
				"return_pct": run.Metrics.ReturnPct,
			}))
			return nil
		})
	}
	if s.deps.Notifier != nil {
		g.Go(func() error {
			s.warn(ctx, "notify", run.ID, s.deps.Notifier.RunCompleted(ctx, run))
			return nil
		})
	}

	return g.Wait()
}

func (s *BacktestService) warn(ctx context.Context, op, runID string, err error) {
	if err == nil {
		return
	}
	s.logger.WarnContext(ctx, "backtest_service: "+op+" failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
	)
}

func (s *BacktestService) notifyFailed(ctx context.Context, req domain.RunRequest, runErr error) {
	if s.deps.Notifier == nil {
		return
	}
	s.warn(ctx, "notify", "", s.deps.Notifier.RunFailed(ctx, req, runErr))
}

// Get returns a persisted run header.
func (s *BacktestService) Get(ctx context.Context, id string) (domain.Run, error) {
	if s.deps.Runs == nil {
		return domain.Run{}, domain.ErrNotFound
	}
	run, err := s.deps.Runs.Get(ctx, id)
	if err != nil {
		return domain.Run{}, fmt.Errorf("backtest_service: get %s: %w", id, err)
	}
	return run, nil
}

// List returns persisted runs, newest first.
func (s *BacktestService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Run, error) {
	if s.deps.Runs == nil {
		return []domain.Run{}, nil
	}
	runs, err := s.deps.Runs.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("backtest_service: list: %w", err)
	}
	return runs, nil
}

// Snapshots returns the step sequence of a persisted run.
func (s *BacktestService) Snapshots(ctx context.Context, id string) ([]domain.Snapshot, error) {
	if s.deps.Runs == nil {
		return nil, domain.ErrNotFound
	}
	snaps, err := s.deps.Runs.Snapshots(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("backtest_service: snapshots %s: %w", id, err)
	}
	return snaps, nil
}

// Book returns the final order book of a run from the book cache.
func (s *BacktestService) Book(ctx context.Context, id string) (domain.OrderbookSnapshot, error) {
	if s.deps.Books == nil {
		return domain.OrderbookSnapshot{}, domain.ErrNotFound
	}
	snap, err := s.deps.Books.GetSnapshot(ctx, id)
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("backtest_service: book %s: %w", id, err)
	}
	return snap, nil
}

// RecentRuns reads run summaries from the durable run stream.
func (s *BacktestService) RecentRuns(ctx context.Context, lastID string) ([]domain.StreamMessage, error) {
	if s.deps.Bus == nil {
		return []domain.StreamMessage{}, nil
	}
	msgs, err := s.deps.Bus.StreamRead(ctx, StreamRuns, lastID, streamMaxRead)
	if err != nil {
		return nil, fmt.Errorf("backtest_service: read run stream: %w", err)
	}
	return msgs, nil
}

// Strategies describes every registered strategy.
func (s *BacktestService) Strategies() []strategy.Info {
	return s.registry.ListInfo()
}

// Source is the market data source the service runs against.
func (s *BacktestService) Source() string { return s.series.Source() }
