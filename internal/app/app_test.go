package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lobsim/internal/config"
	"github.com/alanyoungcy/lobsim/internal/domain"
)

const barsCSV = `date,open,high,low,close,volume
2024-01-02,100,101,99,100,1000
2024-01-03,100,102,99,101,1000
2024-01-04,101,103,100,102,1000
2024-01-05,102,104,101,103,1000
2024-01-08,103,105,102,104,1000
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "bars.csv")
	require.NoError(t, os.WriteFile(src, []byte(barsCSV), 0o644))

	cfg := config.Defaults()
	cfg.Mode = config.ModeBacktest
	cfg.Data.Source = src
	cfg.Backtest.Strategy = "always_buy"
	cfg.Store.Driver = config.StoreSQLite
	cfg.Store.SQLitePath = filepath.Join(dir, "runs.db")
	return &cfg
}

func TestBacktestModePrintsSummaryAndPersists(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	deps, cleanup, err := Wire(ctx, cfg)
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.SignalBus, "no bus outside server mode without redis")
	assert.Nil(t, deps.ResultCache)

	var out bytes.Buffer
	a := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.stdout = &out
	require.NoError(t, a.BacktestMode(ctx, deps))

	var summary backtestSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, "always_buy", summary.Strategy)
	assert.Positive(t, summary.Steps)
	assert.Positive(t, summary.TradeStats.BuyTrades)
	assert.False(t, summary.Cached)

	run, err := deps.RunStore.Get(ctx, summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, summary.Steps, run.Steps)

	snaps, err := deps.RunStore.Snapshots(ctx, summary.RunID)
	require.NoError(t, err)
	assert.Len(t, snaps, summary.Steps)

	audit, err := deps.AuditStore.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, audit)
	assert.Equal(t, "backtest.completed", audit[0].Event)
}

func TestWireServerModeUsesMemoryBus(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = config.ModeServer
	cfg.Store.Driver = config.StoreNone

	deps, cleanup, err := Wire(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.SignalBus)
	assert.Nil(t, deps.RunStore)
	assert.Empty(t, deps.Pingers)
}

func TestWireNotifierSenders(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = config.StoreNone

	deps, cleanup, err := Wire(context.Background(), cfg)
	require.NoError(t, err)
	cleanup()
	assert.Nil(t, deps.Notifier)

	cfg.Notify.TelegramToken = "123:abc"
	deps, cleanup, err = Wire(context.Background(), cfg)
	require.NoError(t, err)
	cleanup()
	assert.Nil(t, deps.Notifier, "telegram needs a chat id too")

	cfg.Notify.TelegramChatID = "-100"
	deps, cleanup, err = Wire(context.Background(), cfg)
	require.NoError(t, err)
	cleanup()
	assert.NotNil(t, deps.Notifier)
}

func TestWireMissingData(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.Source = filepath.Join(t.TempDir(), "missing.csv")
	_, _, err := Wire(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRunRejectsUnknownMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = "trade"
	a := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer a.Close()
	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported mode")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewLoggerWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "lobsim.log")
	logger, closeFn := NewLogger(config.LogConfig{File: path, MaxSizeMB: 1}, "debug")
	logger.Debug("app: hello", slog.String("k", "v"))
	closeFn()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"app: hello"`)
	assert.Contains(t, string(b), `"k":"v"`)
}
