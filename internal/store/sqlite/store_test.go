package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lobsim/internal/domain"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "lobsim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRun(id string, created time.Time) domain.Run {
	return domain.Run{
		ID:           id,
		Source:       "aapl.csv",
		Strategy:     "sma_crossover",
		FillMode:     domain.FillModeAlwaysFill,
		StartIndex:   0,
		EndIndex:     3,
		StartingCash: 100000,
		Steps:        2,
		Skipped:      1,
		Metrics:      domain.Metrics{StartValue: 100000, EndValue: 101000, ReturnPct: 1},
		TradeStats:   domain.TradeStats{TotalTrades: 1, BuyTrades: 1, TotalVolume: 10, AvgTradeSize: 10},
		AgentStats:   domain.AgentStats{TotalDecisions: 2, BuySignals: 1, HoldSignals: 1, ApprovedTrades: 1, RejectedTrades: 1, ApprovalRate: 50},
		CreatedAt:    created,
		Duration:     12,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	created := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	run := sampleRun("run-1", created)
	snaps := []domain.Snapshot{
		{Step: 1, Price: 150, Cash: 100000, PortfolioValue: 100000,
			Proposal: &domain.Proposal{Action: domain.ActionHold}, Orders: []domain.OrderRequest{}},
		{Step: 2, Price: 151, Cash: 98490, Position: 10, PortfolioValue: 100000,
			Proposal:     &domain.Proposal{Action: domain.ActionBuy, Confidence: 0.6, TargetPrice: 151},
			RiskDecision: &domain.Decision{Approved: true, MaxSize: 100, Reason: "Within limits", Action: domain.ActionBuy},
			Orders:       []domain.OrderRequest{{Side: domain.OrderSideBuy, Price: 151, Quantity: 10}}},
	}
	require.NoError(t, s.Save(ctx, run, snaps))

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run, got)

	gotSnaps, err := s.Snapshots(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, snaps, gotSnaps)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Snapshots(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Error(t, s.Save(ctx, run, nil), "duplicate id")
}

func TestStoreListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Hour)), nil))
	}

	runs, err := s.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "a", runs[2].ID)

	runs, err = s.List(ctx, domain.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "b", runs[0].ID)

	since := base.Add(90 * time.Minute)
	runs, err = s.List(ctx, domain.ListOpts{Since: &since})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "c", runs[0].ID)
}

func TestAuditLog(t *testing.T) {
	ctx := context.Background()
	audit := openTemp(t).AuditLog()

	require.NoError(t, audit.Log(ctx, "backtest.completed", map[string]any{"run_id": "x", "steps": 3}))
	require.NoError(t, audit.Log(ctx, "archive.run", nil))

	entries, err := audit.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "archive.run", entries[0].Event)
	assert.Equal(t, "backtest.completed", entries[1].Event)
	assert.Equal(t, "x", entries[1].Detail["run_id"])
	assert.Equal(t, 3.0, entries[1].Detail["steps"])
}
