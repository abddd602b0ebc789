package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lobsim/internal/domain"
	"github.com/alanyoungcy/lobsim/internal/marketdata"
)

func seriesOf(closes ...float64) *marketdata.Series {
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Open: c, High: c, Low: c, Close: c}
	}
	return marketdata.NewSeries("test", bars)
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func analyzeAt(t *testing.T, s Strategy, series *marketdata.Series, i int) domain.Proposal {
	t.Helper()
	st, err := series.StateAt(i)
	require.NoError(t, err)
	p, err := s.Analyze(st)
	require.NoError(t, err)
	return p
}

func TestSMACrossoverWarmup(t *testing.T) {
	series := seriesOf(constant(25, 100)...).WithSMA(5, 20)
	s, err := NewSMACrossover(Config{Series: series})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		p := analyzeAt(t, s, series, i)
		assert.Equal(t, domain.ActionHold, p.Action, "index %d", i)
		assert.Equal(t, 0.0, p.Confidence)
		assert.Equal(t, 100.0, p.TargetPrice)
	}

	p := analyzeAt(t, s, series, 20)
	assert.Equal(t, domain.ActionHold, p.Action)
	assert.Equal(t, 0.1, p.Confidence, "price equals short sma")
}

func TestSMACrossoverSignals(t *testing.T) {
	closes := constant(21, 100)
	closes = append(closes, 110, 90)
	series := seriesOf(closes...)

	// windows are computed lazily when the series lacks them
	s, err := NewSMACrossover(Config{Series: series})
	require.NoError(t, err)

	p := analyzeAt(t, s, series, 21)
	assert.Equal(t, domain.ActionBuy, p.Action)
	assert.Equal(t, 0.6, p.Confidence)
	assert.Equal(t, 110.0, p.TargetPrice)

	p = analyzeAt(t, s, series, 22)
	assert.Equal(t, domain.ActionSell, p.Action)
	assert.Equal(t, 0.6, p.Confidence)
}

func TestSMACrossoverParams(t *testing.T) {
	series := seriesOf(constant(10, 1)...)

	_, err := NewSMACrossover(Config{Series: series, Params: map[string]any{"short_window": 2.5}})
	assert.Error(t, err)

	_, err = NewSMACrossover(Config{Series: series, Params: map[string]any{"long_window": -1}})
	assert.Error(t, err)

	_, err = NewSMACrossover(Config{})
	assert.Error(t, err)

	s, err := NewSMACrossover(Config{Series: series, Params: map[string]any{"short_window": float64(2), "long_window": int64(3)}})
	require.NoError(t, err)
	assert.Equal(t, SMACrossoverName, s.Name())
}

func TestFixedStrategies(t *testing.T) {
	st := domain.MarketState{Index: 3, Price: 42}

	b, err := NewAlwaysBuy(Config{})
	require.NoError(t, err)
	p, err := b.Analyze(st)
	require.NoError(t, err)
	assert.Equal(t, domain.Proposal{Action: domain.ActionBuy, Confidence: 1, TargetPrice: 42}, p)

	h, err := NewHold(Config{})
	require.NoError(t, err)
	p, err = h.Analyze(st)
	require.NoError(t, err)
	assert.Equal(t, domain.Proposal{Action: domain.ActionHold, Confidence: 0, TargetPrice: 42}, p)
}

func TestMeanReversion(t *testing.T) {
	// window of 4: 10, 10, 10, 2 -> mean 8, std sqrt(12) ~ 3.46, z ~ -1.73
	series := seriesOf(10, 10, 10, 2, 10, 10, 10, 30)
	s, err := NewMeanReversion(Config{Series: series, Params: map[string]any{"lookback": 4, "std_dev_threshold": 1.5}})
	require.NoError(t, err)

	p := analyzeAt(t, s, series, 2)
	assert.Equal(t, domain.ActionHold, p.Action, "warm-up")

	p = analyzeAt(t, s, series, 3)
	assert.Equal(t, domain.ActionBuy, p.Action)
	assert.InDelta(t, 1.7320508/3.0, p.Confidence, 1e-6)
	assert.Equal(t, 8.0, p.TargetPrice)

	p = analyzeAt(t, s, series, 7)
	assert.Equal(t, domain.ActionSell, p.Action)
	assert.LessOrEqual(t, p.Confidence, 1.0)

	p = analyzeAt(t, s, series, 6)
	assert.Equal(t, domain.ActionHold, p.Action)

	_, err = s.Analyze(domain.MarketState{Index: 8, Price: 1})
	assert.ErrorIs(t, err, domain.ErrOutOfRange)
}

func TestMeanReversionFlatWindowHolds(t *testing.T) {
	series := seriesOf(constant(5, 7)...)
	s, err := NewMeanReversion(Config{Series: series, Params: map[string]any{"lookback": 3}})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, analyzeAt(t, s, series, 4).Action)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"always_buy", "hold", "mean_reversion", "sma_crossover"}, r.List())

	_, err := r.Get("nope")
	assert.ErrorIs(t, err, domain.ErrUnknownStrategy)

	_, err = r.Build("nope", Config{})
	assert.ErrorIs(t, err, domain.ErrUnknownStrategy)

	s, err := r.Build("always_buy", Config{})
	require.NoError(t, err)
	assert.Equal(t, "always_buy", s.Name())

	infos := r.ListInfo()
	require.Len(t, infos, 4)
	assert.Equal(t, "always_buy", infos[0].Name)
	assert.Equal(t, DefaultShortWindow, infos[3].Defaults["short_window"])
}
