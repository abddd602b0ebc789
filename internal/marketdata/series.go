// Package marketdata loads historical OHLCV bars and serves them to the
// backtest loop as per-index market states.
package marketdata

import (
	"fmt"
	"math"
	"sort"

	"github.com/alanyoungcy/lobsim/internal/domain"
)

// Series is an immutable, index-addressed sequence of bars with optional
// precomputed simple moving averages over the close.
type Series struct {
	source string
	bars   []domain.Bar
	sma    map[int][]float64
}

// NewSeries wraps bars. The slice is copied.
func NewSeries(source string, bars []domain.Bar) *Series {
	cp := make([]domain.Bar, len(bars))
	copy(cp, bars)
	return &Series{source: source, bars: cp, sma: map[int][]float64{}}
}

// Source is where the bars were loaded from.
func (s *Series) Source() string { return s.source }

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.bars) }

// Bar returns the bar at index i.
func (s *Series) Bar(i int) (domain.Bar, error) {
	if i < 0 || i >= len(s.bars) {
		return domain.Bar{}, fmt.Errorf("marketdata: bar %d of %d: %w", i, len(s.bars), domain.ErrOutOfRange)
	}
	return s.bars[i], nil
}

// StateAt builds the market state for index i. Price is the close.
func (s *Series) StateAt(i int) (domain.MarketState, error) {
	b, err := s.Bar(i)
	if err != nil {
		return domain.MarketState{}, err
	}
	return domain.MarketState{
		Index:     i,
		Timestamp: b.Timestamp,
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
		Price:     b.Close,
	}, nil
}

// Closes returns the close prices in index order.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Close
	}
	return out
}

// WithSMA returns a copy of the series carrying moving averages for each
// window. Windows that are not positive are ignored. The receiver is not
// modified.
func (s *Series) WithSMA(windows ...int) *Series {
	out := &Series{source: s.source, bars: s.bars, sma: make(map[int][]float64, len(s.sma)+len(windows))}
	for w, v := range s.sma {
		out.sma[w] = v
	}
	closes := s.Closes()
	for _, w := range windows {
		if w <= 0 {
			continue
		}
		if _, ok := out.sma[w]; ok {
			continue
		}
		out.sma[w] = rollingMean(closes, w)
	}
	return out
}

// SMA returns the moving average of the given window at index i. It reports
// false during warm-up and for windows that were never computed.
func (s *Series) SMA(window, i int) (float64, bool) {
	v, ok := s.sma[window]
	if !ok || i < 0 || i >= len(v) || math.IsNaN(v[i]) {
		return 0, false
	}
	return v[i], true
}

// Windows lists the SMA windows that were precomputed, ascending.
func (s *Series) Windows() []int {
	out := make([]int, 0, len(s.sma))
	for w := range s.sma {
		out = append(out, w)
	}
	sort.Ints(out)
	return out
}

func rollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(window)
	}
	return out
}
