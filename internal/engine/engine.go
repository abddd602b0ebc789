// Package engine owns the portfolio ledger of a single backtest run and
// routes orders into the order book.
package engine

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lobsim/internal/domain"
	"github.com/alanyoungcy/lobsim/internal/orderbook"
)

// Engine holds cash and position and mutates them only from trades.
type Engine struct {
	book     *orderbook.Book
	cash     decimal.Decimal
	position decimal.Decimal
	step     int
}

// Checkpoint is an opaque copy of engine state taken by Checkpoint.
type Checkpoint struct {
	book     *orderbook.Book
	cash     decimal.Decimal
	position decimal.Decimal
	step     int
}

// New creates an engine trading against book with the given starting cash.
func New(book *orderbook.Book, startingCash float64) *Engine {
	return &Engine{
		book:     book,
		cash:     decimal.NewFromFloat(startingCash),
		position: decimal.Zero,
	}
}

// Book returns the order book the engine trades against.
func (e *Engine) Book() *orderbook.Book { return e.book }

// ApplyOrders places each order in list order. In always-fill mode every real
// order is preceded by synthetic contra liquidity of twice its quantity at
// the same price, so the order always fills completely. The first book error
// is returned as-is; orders before it stay applied.
func (e *Engine) ApplyOrders(orders []domain.OrderRequest, ts int) error {
	for _, o := range orders {
		if e.book.Mode() == domain.FillModeAlwaysFill {
			if err := e.inject(o, ts); err != nil {
				return err
			}
		}

		trades, err := e.book.Place(o.Side, o.Price, o.Quantity, ts)
		if err != nil {
			return err
		}
		e.settle(trades)
	}
	return nil
}

// inject rests 2*qty of synthetic liquidity opposite o at o.Price. Leftover
// remnants on o's side that cross o.Price absorb part of each injection, so
// whatever traded is injected again until the full amount rests.
func (e *Engine) inject(o domain.OrderRequest, ts int) error {
	want := 2 * o.Quantity
	for want > 0 {
		trades, err := e.book.PlaceAs(domain.SyntheticOrderID, o.Side.Opposite(), o.Price, want, ts)
		if err != nil {
			return err
		}
		e.settle(trades)

		want = 0
		for _, t := range trades {
			want += t.Quantity
		}
	}
	return nil
}

// settle applies each non-synthetic leg of a trade to the ledger. A trade
// between two real orders therefore nets to zero.
func (e *Engine) settle(trades []domain.Trade) {
	for _, t := range trades {
		qty := decimal.NewFromFloat(t.Quantity)
		notional := decimal.NewFromFloat(t.Price).Mul(qty)

		if t.BuyOrderID != domain.SyntheticOrderID {
			e.position = e.position.Add(qty)
			e.cash = e.cash.Sub(notional)
		}
		if t.SellOrderID != domain.SyntheticOrderID {
			e.position = e.position.Sub(qty)
			e.cash = e.cash.Add(notional)
		}
	}
}

// Step records the bar index and returns the portfolio snapshot for it. The
// proposal, decision and orders fields are left for the caller to fill.
func (e *Engine) Step(state domain.MarketState) domain.Snapshot {
	e.step = state.Index
	return domain.Snapshot{
		Step:           state.Index,
		Price:          state.Price,
		Cash:           e.cash.InexactFloat64(),
		Position:       e.position.InexactFloat64(),
		PortfolioValue: e.PortfolioValue(state.Price),
	}
}

// PortfolioValue returns cash + position * price.
func (e *Engine) PortfolioValue(price float64) float64 {
	return e.cash.Add(e.position.Mul(decimal.NewFromFloat(price))).InexactFloat64()
}

// Portfolio exposes cash and position for risk sizing.
func (e *Engine) Portfolio() domain.PortfolioView {
	return domain.PortfolioView{
		Cash:     e.cash.InexactFloat64(),
		Position: e.position.InexactFloat64(),
	}
}

// CurrentStep is the index of the last recorded step.
func (e *Engine) CurrentStep() int { return e.step }

// Checkpoint captures ledger, book and step so a failed step can be undone.
func (e *Engine) Checkpoint() Checkpoint {
	return Checkpoint{
		book:     e.book.Clone(),
		cash:     e.cash,
		position: e.position,
		step:     e.step,
	}
}

// Restore rolls the engine back to cp. cp stays reusable.
func (e *Engine) Restore(cp Checkpoint) {
	e.book = cp.book.Clone()
	e.cash = cp.cash
	e.position = cp.position
	e.step = cp.step
}
