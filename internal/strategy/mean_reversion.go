package strategy

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/alanyoungcy/lobsim/internal/domain"
)

const (
	MeanReversionName      = "mean_reversion"
	defaultLookback        = 20
	defaultStdDevThreshold = 2.0
)

// MeanReversion buys when the close is significantly below its rolling mean
// and sells when it is significantly above. "Significantly" is measured in
// multiples of the rolling population standard deviation.
type MeanReversion struct {
	closes    []float64
	lookback  int
	threshold float64
	logger    *slog.Logger
}

// NewMeanReversion creates a MeanReversion strategy. The following keys are
// read from cfg.Params:
//
//   - "lookback" (int): number of bars in the rolling window, including the
//     current one. Defaults to 20.
//   - "std_dev_threshold" (float64): number of standard deviations away from
//     the mean before a signal is emitted. Defaults to 2.0.
func NewMeanReversion(cfg Config) (Strategy, error) {
	if cfg.Series == nil {
		return nil, errors.New("mean_reversion: series is required")
	}
	lookback, err := paramInt(cfg.Params, "lookback", defaultLookback)
	if err != nil {
		return nil, err
	}
	threshold, err := paramFloat(cfg.Params, "std_dev_threshold", defaultStdDevThreshold)
	if err != nil {
		return nil, err
	}
	if lookback < 2 || threshold <= 0 {
		return nil, fmt.Errorf("mean_reversion: lookback must be >= 2 and threshold > 0 (lookback=%d threshold=%v)", lookback, threshold)
	}
	return &MeanReversion{
		closes:    cfg.Series.Closes(),
		lookback:  lookback,
		threshold: threshold,
		logger:    cfg.logger().With(slog.String("strategy", MeanReversionName)),
	}, nil
}

// Name returns the strategy identifier.
func (mr *MeanReversion) Name() string { return MeanReversionName }

// Analyze evaluates the z-score of the current close against the trailing
// window ending at state.Index.
func (mr *MeanReversion) Analyze(state domain.MarketState) (domain.Proposal, error) {
	hold := domain.Proposal{Action: domain.ActionHold, Confidence: 0, TargetPrice: state.Price}
	if state.Index >= len(mr.closes) {
		return domain.Proposal{}, fmt.Errorf("mean_reversion: index %d: %w", state.Index, domain.ErrOutOfRange)
	}
	if state.Index < mr.lookback-1 {
		return hold, nil
	}

	window := mr.closes[state.Index-mr.lookback+1 : state.Index+1]
	avg := mean(window)
	vol := stdDev(window)
	if vol == 0 {
		return hold, nil
	}

	z := (state.Price - avg) / vol
	confidence := math.Min(1, math.Abs(z)/(2*mr.threshold))

	switch {
	case z <= -mr.threshold:
		mr.logger.Debug("mean reversion BUY signal",
			slog.Int("index", state.Index),
			slog.Float64("price", state.Price),
			slog.Float64("avg", avg),
			slog.Float64("deviation", z),
		)
		return domain.Proposal{Action: domain.ActionBuy, Confidence: confidence, TargetPrice: avg}, nil
	case z >= mr.threshold:
		mr.logger.Debug("mean reversion SELL signal",
			slog.Int("index", state.Index),
			slog.Float64("price", state.Price),
			slog.Float64("avg", avg),
			slog.Float64("deviation", z),
		)
		return domain.Proposal{Action: domain.ActionSell, Confidence: confidence, TargetPrice: avg}, nil
	default:
		return hold, nil
	}
}
