// Package backtest drives the per-bar control loop: market state, strategy,
// risk, execution and engine, one step per bar.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/lobsim/internal/domain"
	"github.com/alanyoungcy/lobsim/internal/engine"
	"github.com/alanyoungcy/lobsim/internal/strategy"
)

const (
	FailureModeAtLeastApplied = "at_least_applied"
	FailureModeAtomic         = "atomic"
)

// Source yields market states by bar index.
type Source interface {
	Len() int
	StateAt(i int) (domain.MarketState, error)
}

// RiskApprover sizes a proposal against the current portfolio.
type RiskApprover interface {
	Approve(p domain.Proposal, portfolio domain.PortfolioView) (domain.Decision, error)
}

// OrderBuilder turns a decision into concrete orders.
type OrderBuilder interface {
	Build(d domain.Decision, state domain.MarketState) ([]domain.OrderRequest, error)
}

// Options tune a coordinator.
type Options struct {
	// AtomicSteps rolls engine state back when a step fails part-way.
	AtomicSteps bool
	// OnSnapshot, if set, is called with every appended snapshot.
	OnSnapshot func(domain.Snapshot)
}

// Coordinator runs one backtest over a fixed set of collaborators. It is not
// reusable across runs.
type Coordinator struct {
	data     Source
	strategy strategy.Strategy
	risk     RiskApprover
	exec     OrderBuilder
	engine   *engine.Engine
	opts     Options
	logger   *slog.Logger

	skipped int
}

// NewCoordinator wires a coordinator.
func NewCoordinator(
	data Source,
	strat strategy.Strategy,
	risk RiskApprover,
	exec OrderBuilder,
	eng *engine.Engine,
	opts Options,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		data:     data,
		strategy: strat,
		risk:     risk,
		exec:     exec,
		engine:   eng,
		opts:     opts,
		logger:   logger.With(slog.String("component", "coordinator")),
	}
}

// Run executes steps start..end-1 and returns the snapshots that succeeded.
// A negative end means the series length. A failed step is logged and
// skipped; the loop itself never fails. Cancellation is checked between
// steps and returns what was produced so far.
func (c *Coordinator) Run(ctx context.Context, start, end int) []domain.Snapshot {
	if end < 0 {
		end = c.data.Len()
	}
	mode := FailureModeAtLeastApplied
	if c.opts.AtomicSteps {
		mode = FailureModeAtomic
	}

	results := make([]domain.Snapshot, 0, max(0, end-start))
	for i := start; i < end; i++ {
		if err := ctx.Err(); err != nil {
			c.logger.InfoContext(ctx, "coordinator: run cancelled",
				slog.Int("step", i),
				slog.Int("completed", len(results)),
				slog.String("error", err.Error()),
			)
			break
		}

		var cp engine.Checkpoint
		if c.opts.AtomicSteps {
			cp = c.engine.Checkpoint()
		}

		snap, err := c.runStep(i)
		if err == nil && snap == nil {
			err = errNoSnapshot
		}
		if err != nil {
			if c.opts.AtomicSteps {
				c.engine.Restore(cp)
			}
			c.skipped++
			c.logger.WarnContext(ctx, "coordinator: step skipped",
				slog.Int("step", i),
				slog.String("stage", stageOf(err)),
				slog.String("error", err.Error()),
				slog.String("failure_mode", mode),
			)
			continue
		}

		results = append(results, *snap)
		if c.opts.OnSnapshot != nil {
			c.opts.OnSnapshot(*snap)
		}
	}
	return results
}

// Skipped is the number of steps dropped by the last Run.
func (c *Coordinator) Skipped() int { return c.skipped }

var errNoSnapshot = errors.New("step produced no snapshot")

func (c *Coordinator) runStep(i int) (*domain.Snapshot, error) {
	state, err := c.data.StateAt(i)
	if err != nil {
		return nil, fmt.Errorf("market state at step %d: %w", i, err)
	}

	proposal, err := c.strategy.Analyze(state)
	if err != nil {
		return nil, &domain.StrategyError{Step: i, Err: err}
	}

	decision, err := c.risk.Approve(proposal, c.engine.Portfolio())
	if err != nil {
		return nil, &domain.RiskError{Step: i, Err: err}
	}

	orders, err := c.exec.Build(decision, state)
	if err != nil {
		return nil, &domain.ExecutionError{Step: i, Err: err}
	}
	if orders == nil {
		orders = []domain.OrderRequest{}
	}

	if err := c.engine.ApplyOrders(orders, i); err != nil {
		return nil, &domain.EngineError{Step: i, Err: err}
	}

	snap := c.engine.Step(state)
	snap.Proposal = &proposal
	snap.RiskDecision = &decision
	snap.Orders = orders
	return &snap, nil
}

func stageOf(err error) string {
	var (
		se *domain.StrategyError
		re *domain.RiskError
		xe *domain.ExecutionError
		ee *domain.EngineError
	)
	switch {
	case errors.As(err, &se):
		return "strategy"
	case errors.As(err, &re):
		return "risk"
	case errors.As(err, &xe):
		return "execution"
	case errors.As(err, &ee):
		return "engine"
	case errors.Is(err, errNoSnapshot):
		return "snapshot"
	default:
		return "market_data"
	}
}
