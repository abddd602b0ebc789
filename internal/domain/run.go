package domain

import "time"

// FillMode selects how the book sources contra liquidity.
type FillMode string

const (
	// FillModeAlwaysFill injects synthetic contra liquidity of twice the
	// order quantity before each real order so that every order fills.
	FillModeAlwaysFill FillMode = "always_fill"
	// FillModeContention matches only against liquidity already resting.
	FillModeContention FillMode = "contention"
)

// Valid reports whether m is a known fill mode.
func (m FillMode) Valid() bool {
	return m == FillModeAlwaysFill || m == FillModeContention
}

// RunRequest describes one backtest invocation. A nil EndIndex means "to the
// end of the series"; other nil pointers take the configured default.
type RunRequest struct {
	StartIndex   int            `json:"start_index"`
	EndIndex     *int           `json:"end_index"`
	StartingCash *float64       `json:"starting_cash,omitempty"`
	Strategy     string         `json:"strategy,omitempty"`
	Params       map[string]any `json:"params,omitempty"`
	FillMode     FillMode       `json:"fill_mode,omitempty"`
	AtomicSteps  *bool          `json:"atomic_steps,omitempty"`
}

// Run is the persisted header of a finished backtest.
type Run struct {
	ID           string     `json:"id"`
	Source       string     `json:"source"`
	Strategy     string     `json:"strategy"`
	FillMode     FillMode   `json:"fill_mode"`
	AtomicSteps  bool       `json:"atomic_steps"`
	StartIndex   int        `json:"start_index"`
	EndIndex     int        `json:"end_index"`
	StartingCash float64    `json:"starting_cash"`
	Steps        int        `json:"steps"`
	Skipped      int        `json:"skipped"`
	Metrics      Metrics    `json:"metrics"`
	TradeStats   TradeStats `json:"trade_stats"`
	AgentStats   AgentStats `json:"agent_stats"`
	CreatedAt    time.Time  `json:"created_at"`
	Duration     Millis     `json:"duration_ms"`
}

// Millis is a duration serialised as integer milliseconds.
type Millis int64

// RunResult is the full response of a backtest: header plus step sequence.
type RunResult struct {
	RunID      string            `json:"run_id"`
	Steps      int               `json:"steps"`
	Results    []Snapshot        `json:"results"`
	Metrics    Metrics           `json:"metrics"`
	TradeStats TradeStats        `json:"trade_stats"`
	AgentStats AgentStats        `json:"agent_stats"`
	Book       OrderbookSnapshot `json:"book"`
	Cached     bool              `json:"cached"`
}

// Metrics summarises the portfolio value path of a run.
type Metrics struct {
	StartValue     float64 `json:"start_value"`
	EndValue       float64 `json:"end_value"`
	PnL            float64 `json:"pnl"`
	ReturnPct      float64 `json:"return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	SortinoRatio   float64 `json:"sortino_ratio"`
	Volatility     float64 `json:"volatility"`
	WinRate        float64 `json:"win_rate"`
	TotalSteps     int     `json:"total_steps"`
	AvgReturn      float64 `json:"avg_return"`
}

// TradeStats counts the orders issued across a run.
type TradeStats struct {
	TotalTrades  int     `json:"total_trades"`
	BuyTrades    int     `json:"buy_trades"`
	SellTrades   int     `json:"sell_trades"`
	TotalVolume  float64 `json:"total_volume"`
	AvgTradeSize float64 `json:"avg_trade_size"`
}

// SignalDistribution is the percentage split of proposal actions.
type SignalDistribution struct {
	BuyPct  float64 `json:"buy_pct"`
	SellPct float64 `json:"sell_pct"`
	HoldPct float64 `json:"hold_pct"`
}

// AgentStats summarises proposals and risk verdicts across a run.
type AgentStats struct {
	TotalDecisions     int                `json:"total_decisions"`
	BuySignals         int                `json:"buy_signals"`
	SellSignals        int                `json:"sell_signals"`
	HoldSignals        int                `json:"hold_signals"`
	ApprovedTrades     int                `json:"approved_trades"`
	RejectedTrades     int                `json:"rejected_trades"`
	ApprovalRate       float64            `json:"approval_rate"`
	SignalDistribution SignalDistribution `json:"signal_distribution"`
}
