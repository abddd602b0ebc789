package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lobsim/internal/backtest"
	"github.com/alanyoungcy/lobsim/internal/domain"
	"github.com/alanyoungcy/lobsim/internal/marketdata"
	"github.com/alanyoungcy/lobsim/internal/strategy"
)

type memRunStore struct {
	mu    sync.Mutex
	runs  map[string]domain.Run
	snaps map[string][]domain.Snapshot
	err   error
}

func newMemRunStore() *memRunStore {
	return &memRunStore{runs: map[string]domain.Run{}, snaps: map[string][]domain.Snapshot{}}
}

func (m *memRunStore) Save(_ context.Context, run domain.Run, snaps []domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.runs[run.ID] = run
	m.snaps[run.ID] = snaps
	return nil
}

func (m *memRunStore) Get(_ context.Context, id string) (domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return domain.Run{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *memRunStore) List(context.Context, domain.ListOpts) ([]domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	return out, nil
}

func (m *memRunStore) Snapshots(_ context.Context, id string) ([]domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

type memResultCache struct {
	mu   sync.Mutex
	data map[string]domain.RunResult
}

func (m *memResultCache) Get(_ context.Context, key string) (domain.RunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[key]
	if !ok {
		return domain.RunResult{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *memResultCache) Set(_ context.Context, key string, r domain.RunResult, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = r
	return nil
}

type memBus struct {
	mu        sync.Mutex
	published map[string]int
	stream    int
}

func (b *memBus) Publish(_ context.Context, channel string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel]++
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *memBus) StreamAppend(context.Context, string, []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stream++
	return nil
}

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

type failingArchiver struct{}

func (failingArchiver) ArchiveRun(context.Context, domain.Run, []domain.Snapshot) (string, error) {
	return "", errors.New("s3 down")
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func flat(n int, price float64) *marketdata.Series {
	bars := make([]domain.Bar, n)
	for i := range bars {
		bars[i] = domain.Bar{Close: price, Open: price, High: price, Low: price}
	}
	return marketdata.NewSeries("flat.csv", bars)
}

func newTestService(deps BacktestDeps) *BacktestService {
	logger := discardLogger()
	reg := strategy.DefaultRegistry()
	runner := backtest.NewRunner(reg, NewRiskService(DefaultRiskConfig(), logger), NewExecutionService(), logger)
	cfg := BacktestConfig{
		EndIndex:     -1,
		StartingCash: 100000,
		Strategy:     strategy.AlwaysBuyName,
		FillMode:     domain.FillModeAlwaysFill,
		CacheTTL:     time.Minute,
		LockTTL:      time.Minute,
	}
	return NewBacktestService(flat(30, 150), runner, reg, cfg, deps, logger)
}

func intPtr(i int) *int { return &i }

func floatPtr(f float64) *float64 { return &f }

func TestBacktestServiceRunFansOut(t *testing.T) {
	runs := newMemRunStore()
	cache := &memResultCache{data: map[string]domain.RunResult{}}
	bus := &memBus{published: map[string]int{}}
	audit := &memAudit{}
	svc := newTestService(BacktestDeps{Runs: runs, Results: cache, Bus: bus, Audit: audit, Archiver: failingArchiver{}})

	res, err := svc.Run(context.Background(), domain.RunRequest{EndIndex: intPtr(12)})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 12, res.Steps)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 10, res.TradeStats.TotalTrades)
	assert.Equal(t, 12, res.AgentStats.BuySignals)
	assert.Equal(t, 10, res.AgentStats.ApprovedTrades)

	run, err := svc.Get(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "flat.csv", run.Source)
	assert.Equal(t, 12, run.EndIndex)
	assert.Equal(t, strategy.AlwaysBuyName, run.Strategy)

	snaps, err := svc.Snapshots(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Len(t, snaps, 12)

	assert.Equal(t, 12, bus.published[ChannelBacktest+":"+res.RunID])
	assert.Equal(t, 1, bus.published[ChannelBacktest])
	assert.Equal(t, 1, bus.stream)
	assert.Equal(t, []string{"backtest.completed"}, audit.events)

	again, err := svc.Run(context.Background(), domain.RunRequest{EndIndex: intPtr(12), StartingCash: floatPtr(100000)})
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, res.RunID, again.RunID)
}

func TestBacktestServiceSaveFailureIsReturned(t *testing.T) {
	runs := newMemRunStore()
	runs.err = errors.New("db down")
	svc := newTestService(BacktestDeps{Runs: runs})

	_, err := svc.Run(context.Background(), domain.RunRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestBacktestServiceLockHeld(t *testing.T) {
	svc := newTestService(BacktestDeps{Locks: heldLock{}})
	_, err := svc.Run(context.Background(), domain.RunRequest{})
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestBacktestServiceValidation(t *testing.T) {
	svc := newTestService(BacktestDeps{})

	tests := []struct {
		name string
		req  domain.RunRequest
		want error
	}{
		{"unknown strategy", domain.RunRequest{Strategy: "moon"}, domain.ErrUnknownStrategy},
		{"negative start", domain.RunRequest{StartIndex: -2}, domain.ErrInvalidRequest},
		{"end before start", domain.RunRequest{StartIndex: 5, EndIndex: intPtr(2)}, domain.ErrInvalidRequest},
		{"negative cash", domain.RunRequest{StartingCash: floatPtr(-1)}, domain.ErrInvalidRequest},
		{"bad fill mode", domain.RunRequest{FillMode: "maybe"}, domain.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Run(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBacktestServiceWithoutStores(t *testing.T) {
	svc := newTestService(BacktestDeps{})

	res, err := svc.Run(context.Background(), domain.RunRequest{Strategy: strategy.HoldName})
	require.NoError(t, err)
	assert.Equal(t, 30, res.Steps)
	assert.Equal(t, 100000.0, res.Metrics.EndValue)

	_, err = svc.Get(context.Background(), res.RunID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Book(context.Background(), res.RunID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	runs, err := svc.List(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Len(t, svc.Strategies(), 4)
}

func TestBacktestServiceExplicitZeroCash(t *testing.T) {
	svc := newTestService(BacktestDeps{})

	r, err := svc.resolve(domain.RunRequest{StartingCash: floatPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.StartingCash)

	r, err = svc.resolve(domain.RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 100000.0, r.StartingCash)

	res, err := svc.Run(context.Background(), domain.RunRequest{Strategy: strategy.HoldName, StartingCash: floatPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Metrics.EndValue)
}

func TestCacheKeyIsStable(t *testing.T) {
	svc := newTestService(BacktestDeps{})

	a, err := svc.resolve(domain.RunRequest{})
	require.NoError(t, err)
	b, err := svc.resolve(domain.RunRequest{EndIndex: intPtr(-1), StartingCash: floatPtr(100000), FillMode: domain.FillModeAlwaysFill})
	require.NoError(t, err)

	ka, err := cacheKey(a)
	require.NoError(t, err)
	kb, err := cacheKey(b)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)
	assert.Len(t, ka, 64)

	c, err := svc.resolve(domain.RunRequest{StartIndex: 1})
	require.NoError(t, err)
	kc, err := cacheKey(c)
	require.NoError(t, err)
	assert.NotEqual(t, ka, kc)
}
