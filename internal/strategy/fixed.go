package strategy

import "github.com/alanyoungcy/lobsim/internal/domain"

const (
	AlwaysBuyName = "always_buy"
	HoldName      = "hold"
)

// AlwaysBuy proposes a buy on every bar.
type AlwaysBuy struct{}

func NewAlwaysBuy(Config) (Strategy, error) { return AlwaysBuy{}, nil }

func (AlwaysBuy) Name() string { return AlwaysBuyName }

func (AlwaysBuy) Analyze(state domain.MarketState) (domain.Proposal, error) {
	return domain.Proposal{Action: domain.ActionBuy, Confidence: 1.0, TargetPrice: state.Price}, nil
}

// Hold never trades.
type Hold struct{}

func NewHold(Config) (Strategy, error) { return Hold{}, nil }

func (Hold) Name() string { return HoldName }

func (Hold) Analyze(state domain.MarketState) (domain.Proposal, error) {
	return domain.Proposal{Action: domain.ActionHold, Confidence: 0, TargetPrice: state.Price}, nil
}
