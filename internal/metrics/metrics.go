// Package metrics derives performance, trade and decision statistics from a
// backtest's snapshot sequence.
package metrics

import (
	"math"

	"github.com/alanyoungcy/lobsim/internal/domain"
)

// periodsPerYear annualises daily returns.
const periodsPerYear = 252

// Compute summarises the portfolio value path. Empty input yields all zeros.
func Compute(snaps []domain.Snapshot) domain.Metrics {
	if len(snaps) == 0 {
		return domain.Metrics{}
	}

	values := make([]float64, len(snaps))
	for i, s := range snaps {
		values[i] = s.PortfolioValue
	}

	m := domain.Metrics{
		StartValue: values[0],
		EndValue:   values[len(values)-1],
		TotalSteps: len(snaps),
	}
	m.PnL = m.EndValue - m.StartValue
	if m.StartValue != 0 {
		m.ReturnPct = m.PnL / m.StartValue * 100
	}

	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			returns = append(returns, (values[i]-values[i-1])/values[i-1])
		}
	}

	m.MaxDrawdownPct = maxDrawdown(values) * 100

	annual := math.Sqrt(periodsPerYear)
	vol := popStd(returns) * annual
	avg := mean(returns)
	if vol != 0 {
		m.SharpeRatio = avg * annual / vol
	}

	var downside []float64
	var wins int
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
		if r > 0 {
			wins++
		}
	}
	if dd := popStd(downside); dd != 0 {
		m.SortinoRatio = avg * annual / dd
	}
	if len(returns) > 0 {
		m.WinRate = float64(wins) / float64(len(returns)) * 100
	}

	m.Volatility = vol * 100
	m.AvgReturn = avg * 100
	return m
}

func maxDrawdown(values []float64) float64 {
	peak := values[0]
	var maxDD float64
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak == 0 {
			continue
		}
		if dd := (peak - v) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// popStd is the population standard deviation; empty input yields 0.
func popStd(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var v float64
	for _, x := range xs {
		d := x - m
		v += d * d
	}
	return math.Sqrt(v / float64(len(xs)))
}

// CountTrades tallies the orders issued across the run.
func CountTrades(snaps []domain.Snapshot) domain.TradeStats {
	var ts domain.TradeStats
	for _, s := range snaps {
		for _, o := range s.Orders {
			ts.TotalTrades++
			switch o.Side {
			case domain.OrderSideBuy:
				ts.BuyTrades++
			case domain.OrderSideSell:
				ts.SellTrades++
			}
			ts.TotalVolume += o.Notional()
		}
	}
	if ts.TotalTrades > 0 {
		ts.AvgTradeSize = ts.TotalVolume / float64(ts.TotalTrades)
	}
	return ts
}

// AgentStats counts proposal actions and risk verdicts. A snapshot without a
// proposal counts as hold, one without a decision as rejected.
func AgentStats(snaps []domain.Snapshot) domain.AgentStats {
	st := domain.AgentStats{TotalDecisions: len(snaps)}
	for _, s := range snaps {
		action := domain.ActionHold
		if s.Proposal != nil {
			action = s.Proposal.Action
		}
		switch action {
		case domain.ActionBuy:
			st.BuySignals++
		case domain.ActionSell:
			st.SellSignals++
		default:
			st.HoldSignals++
		}

		if s.RiskDecision != nil && s.RiskDecision.Approved {
			st.ApprovedTrades++
		} else {
			st.RejectedTrades++
		}
	}

	if n := float64(st.TotalDecisions); n > 0 {
		st.ApprovalRate = float64(st.ApprovedTrades) / n * 100
		st.SignalDistribution = domain.SignalDistribution{
			BuyPct:  float64(st.BuySignals) / n * 100,
			SellPct: float64(st.SellSignals) / n * 100,
			HoldPct: float64(st.HoldSignals) / n * 100,
		}
	}
	return st
}
