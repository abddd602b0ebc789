package domain

// Snapshot is the immutable record of one backtest step. Field names are a
// wire contract consumed by dashboards and metrics.
type Snapshot struct {
	Step           int            `json:"step"`
	Price          float64        `json:"price"`
	Cash           float64        `json:"cash"`
	Position       float64        `json:"position"`
	PortfolioValue float64        `json:"portfolio_value"`
	Proposal       *Proposal      `json:"proposal"`
	RiskDecision   *Decision      `json:"risk_decision"`
	Orders         []OrderRequest `json:"orders"`
}
