package backtest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/lobsim/internal/domain"
	"github.com/alanyoungcy/lobsim/internal/engine"
	"github.com/alanyoungcy/lobsim/internal/marketdata"
	"github.com/alanyoungcy/lobsim/internal/orderbook"
	"github.com/alanyoungcy/lobsim/internal/strategy"
)

// RunConfig describes one backtest.
type RunConfig struct {
	Series         *marketdata.Series
	Strategy       string
	StrategyParams map[string]any
	FillMode       domain.FillMode
	AtomicSteps    bool
	StartingCash   float64
	Start          int
	// End is exclusive; a negative value means the series length.
	End        int
	BookID     string
	OnSnapshot func(domain.Snapshot)
}

// Result is the output of a single run.
type Result struct {
	Snapshots []domain.Snapshot
	Skipped   int
	Book      domain.OrderbookSnapshot
	Portfolio domain.PortfolioView
}

// Runner builds a fresh book, engine, strategy and coordinator for every run.
// Risk and execution are stateless and shared.
type Runner struct {
	registry *strategy.Registry
	risk     RiskApprover
	exec     OrderBuilder
	logger   *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(registry *strategy.Registry, risk RiskApprover, exec OrderBuilder, logger *slog.Logger) *Runner {
	return &Runner{
		registry: registry,
		risk:     risk,
		exec:     exec,
		logger:   logger,
	}
}

// Run executes the backtest described by cfg.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	if cfg.Series == nil {
		return nil, fmt.Errorf("backtest: run: no market data: %w", domain.ErrInvalidRequest)
	}
	if cfg.Start < 0 {
		return nil, fmt.Errorf("backtest: run: start index %d: %w", cfg.Start, domain.ErrInvalidRequest)
	}

	strat, err := r.registry.Build(cfg.Strategy, strategy.Config{
		Params: cfg.StrategyParams,
		Series: cfg.Series,
		Logger: r.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("backtest: run: %w", err)
	}

	book := orderbook.New(cfg.FillMode)
	eng := engine.New(book, cfg.StartingCash)
	coord := NewCoordinator(cfg.Series, strat, r.risk, r.exec, eng, Options{
		AtomicSteps: cfg.AtomicSteps,
		OnSnapshot:  cfg.OnSnapshot,
	}, r.logger)

	r.logger.InfoContext(ctx, "backtest: run started",
		slog.String("strategy", strat.Name()),
		slog.String("fill_mode", string(book.Mode())),
		slog.Int("start", cfg.Start),
		slog.Int("end", cfg.End),
		slog.Int("bars", cfg.Series.Len()),
	)

	snaps := coord.Run(ctx, cfg.Start, cfg.End)

	res := &Result{
		Snapshots: snaps,
		Skipped:   coord.Skipped(),
		Book:      eng.Book().Snapshot(cfg.BookID),
		Portfolio: eng.Portfolio(),
	}
	r.logger.InfoContext(ctx, "backtest: run finished",
		slog.Int("steps", len(snaps)),
		slog.Int("skipped", res.Skipped),
		slog.Int64("book_trades", res.Book.TradeCount),
	)
	return res, nil
}
