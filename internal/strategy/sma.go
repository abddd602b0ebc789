package strategy

import (
	"errors"
	"fmt"

	"github.com/alanyoungcy/lobsim/internal/domain"
	"github.com/alanyoungcy/lobsim/internal/marketdata"
)

const (
	SMACrossoverName   = "sma_crossover"
	DefaultShortWindow = 5
	DefaultLongWindow  = 20
)

// SMACrossover compares the close with its short moving average once enough
// history exists for the long one.
type SMACrossover struct {
	series *marketdata.Series
	short  int
	long   int
}

// NewSMACrossover reads "short_window" and "long_window" from cfg.Params.
// Missing averages are computed on a copy of the series.
func NewSMACrossover(cfg Config) (Strategy, error) {
	if cfg.Series == nil {
		return nil, errors.New("sma_crossover: series is required")
	}
	short, err := paramInt(cfg.Params, "short_window", DefaultShortWindow)
	if err != nil {
		return nil, err
	}
	long, err := paramInt(cfg.Params, "long_window", DefaultLongWindow)
	if err != nil {
		return nil, err
	}
	if short <= 0 || long <= 0 {
		return nil, fmt.Errorf("sma_crossover: windows must be positive (short=%d long=%d)", short, long)
	}

	series := cfg.Series
	if !hasWindow(series, short) || !hasWindow(series, long) {
		series = series.WithSMA(short, long)
	}
	return &SMACrossover{series: series, short: short, long: long}, nil
}

func hasWindow(s *marketdata.Series, w int) bool {
	for _, have := range s.Windows() {
		if have == w {
			return true
		}
	}
	return false
}

// Name returns the strategy identifier.
func (s *SMACrossover) Name() string { return SMACrossoverName }

// Analyze emits buy above the short SMA, sell below it and hold otherwise.
// Before the long window has filled it holds with zero confidence.
func (s *SMACrossover) Analyze(state domain.MarketState) (domain.Proposal, error) {
	hold := domain.Proposal{Action: domain.ActionHold, Confidence: 0, TargetPrice: state.Price}
	if state.Index < s.long {
		return hold, nil
	}

	smaShort, okShort := s.series.SMA(s.short, state.Index)
	_, okLong := s.series.SMA(s.long, state.Index)
	if !okShort || !okLong {
		return hold, nil
	}

	switch {
	case state.Price > smaShort:
		return domain.Proposal{Action: domain.ActionBuy, Confidence: 0.6, TargetPrice: state.Price}, nil
	case state.Price < smaShort:
		return domain.Proposal{Action: domain.ActionSell, Confidence: 0.6, TargetPrice: state.Price}, nil
	default:
		return domain.Proposal{Action: domain.ActionHold, Confidence: 0.1, TargetPrice: state.Price}, nil
	}
}
