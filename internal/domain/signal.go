package domain

// Action is the directional intent of a strategy proposal.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Side maps a trading action to an order side. Hold has no side.
func (a Action) Side() (OrderSide, bool) {
	switch a {
	case ActionBuy:
		return OrderSideBuy, true
	case ActionSell:
		return OrderSideSell, true
	default:
		return "", false
	}
}

// Proposal is what a strategy emits for one bar.
type Proposal struct {
	Action      Action  `json:"action"`
	Confidence  float64 `json:"confidence"`
	TargetPrice float64 `json:"target_price"`
}

// Decision is the risk step's verdict on a proposal.
type Decision struct {
	Approved bool    `json:"approved"`
	MaxSize  float64 `json:"max_size"`
	Reason   string  `json:"reason"`
	Action   Action  `json:"action"`
}

// PortfolioView is the read-only slice of engine state visible to risk.
type PortfolioView struct {
	Cash     float64 `json:"cash"`
	Position float64 `json:"position"`
}
