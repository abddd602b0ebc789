package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/lobsim/internal/domain"
	"github.com/alanyoungcy/lobsim/internal/server"
	"github.com/alanyoungcy/lobsim/internal/server/handler"
	"github.com/alanyoungcy/lobsim/internal/server/ws"
	"github.com/alanyoungcy/lobsim/internal/service"
)

const shutdownTimeout = 10 * time.Second

// backtestSummary is what backtest mode prints. The per-step results are
// left out; they are in the run store when one is configured.
type backtestSummary struct {
	RunID      string                   `json:"run_id"`
	Source     string                   `json:"source"`
	Strategy   string                   `json:"strategy"`
	Steps      int                      `json:"steps"`
	Metrics    domain.Metrics           `json:"metrics"`
	TradeStats domain.TradeStats        `json:"trade_stats"`
	AgentStats domain.AgentStats        `json:"agent_stats"`
	Book       domain.OrderbookSnapshot `json:"book"`
	Cached     bool                     `json:"cached"`
}

// BacktestMode runs one backtest with the configured defaults and prints a
// JSON summary to stdout.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	bt := a.cfg.Backtest
	req := domain.RunRequest{
		StartIndex:   bt.StartIndex,
		StartingCash: &bt.StartingCash,
		Strategy:     bt.Strategy,
		Params:       bt.Params,
		FillMode:     domain.FillMode(bt.FillMode),
		AtomicSteps:  &bt.AtomicSteps,
	}
	if bt.EndIndex >= 0 {
		req.EndIndex = &bt.EndIndex
	}

	a.logger.InfoContext(ctx, "app: backtest starting",
		slog.String("strategy", bt.Strategy),
		slog.String("source", deps.Series.Source()),
		slog.Int("bars", deps.Series.Len()),
	)
	res, err := deps.Backtests.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("app: backtest: %w", err)
	}

	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(backtestSummary{
		RunID:      res.RunID,
		Source:     deps.Series.Source(),
		Strategy:   bt.Strategy,
		Steps:      res.Steps,
		Metrics:    res.Metrics,
		TradeStats: res.TradeStats,
		AgentStats: res.AgentStats,
		Book:       res.Book,
		Cached:     res.Cached,
	}); err != nil {
		return fmt.Errorf("app: write summary: %w", err)
	}
	return nil
}

// ServerMode serves the HTTP API and websocket hub until ctx is cancelled,
// then drains in-flight requests.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, ws.Config{
			SummaryChannel:    service.ChannelBacktest,
			StepChannelPrefix: service.ChannelBacktest + ":",
		}, a.logger)
		g.Go(func() error { return hub.Run(ctx) })
	}

	checks := make(map[string]handler.Pinger, len(deps.Pingers))
	for name, ping := range deps.Pingers {
		checks[name] = ping
	}
	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(checks, a.logger),
		Backtest: handler.NewBacktestHandler(deps.Backtests, a.logger),
		Runs:     handler.NewRunHandler(deps.Backtests, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return err
		}
		return ctx.Err()
	})

	return g.Wait()
}
