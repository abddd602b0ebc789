// Package orderbook implements a single-asset limit order book with
// price-level aggregation. Orders match against the best opposite level first;
// ordering inside a level is not modelled.
package orderbook

import (
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/lobsim/internal/domain"
)

// Book is a limit order book. It is not safe for concurrent use; each
// backtest run owns its own instance.
type Book struct {
	mode   domain.FillMode
	bids   *bookSide
	asks   *bookSide
	nextID int64
	volume float64
	trades int64
}

// New returns an empty book operating in the given fill mode. An unknown mode
// falls back to always-fill.
func New(mode domain.FillMode) *Book {
	if !mode.Valid() {
		mode = domain.FillModeAlwaysFill
	}
	return &Book{
		mode:   mode,
		bids:   newBookSide(true),
		asks:   newBookSide(false),
		nextID: 1,
	}
}

// Mode returns the fill mode the book was created with.
func (b *Book) Mode() domain.FillMode { return b.mode }

// Place validates and matches a new order, assigning it the next order id.
// Any unmatched remainder rests at the order's limit price. On validation
// failure it returns an error wrapping domain.ErrInvalidOrder and the book is
// left untouched.
func (b *Book) Place(side domain.OrderSide, price, quantity float64, ts int) ([]domain.Trade, error) {
	if err := validate(side, price, quantity); err != nil {
		return nil, err
	}
	o := domain.Order{ID: b.nextID, Side: side, Price: price, Quantity: quantity, Timestamp: ts}
	b.nextID++
	return b.match(o), nil
}

// PlaceAs is Place under a caller-chosen id. It does not consume an id from
// the book's sequence and is meant for synthetic counterparties.
func (b *Book) PlaceAs(id int64, side domain.OrderSide, price, quantity float64, ts int) ([]domain.Trade, error) {
	if err := validate(side, price, quantity); err != nil {
		return nil, err
	}
	return b.match(domain.Order{ID: id, Side: side, Price: price, Quantity: quantity, Timestamp: ts}), nil
}

func validate(side domain.OrderSide, price, quantity float64) error {
	if !side.Valid() {
		return fmt.Errorf("orderbook: side %q: %w", side, domain.ErrInvalidOrder)
	}
	if !(price > 0) || math.IsInf(price, 0) {
		return fmt.Errorf("orderbook: price %v: %w", price, domain.ErrInvalidOrder)
	}
	if !(quantity > 0) || math.IsInf(quantity, 0) {
		return fmt.Errorf("orderbook: quantity %v: %w", quantity, domain.ErrInvalidOrder)
	}
	return nil
}

// match walks the opposite side while it crosses the order's limit, then
// rests the remainder.
func (b *Book) match(o domain.Order) []domain.Trade {
	var (
		contra = b.asks
		own    = b.bids
	)
	if o.Side == domain.OrderSideSell {
		contra, own = b.bids, b.asks
	}

	var trades []domain.Trade
	remaining := o.Quantity
	for remaining > 0 {
		lvl, ok := contra.best()
		if !ok || !crosses(o.Side, o.Price, lvl.price) {
			break
		}
		fill := math.Min(remaining, lvl.qty)

		t := domain.Trade{Price: lvl.price, Quantity: fill, Timestamp: o.Timestamp}
		if o.Side == domain.OrderSideBuy {
			t.BuyOrderID, t.SellOrderID = o.ID, lvl.orderID
		} else {
			t.BuyOrderID, t.SellOrderID = lvl.orderID, o.ID
		}
		trades = append(trades, t)

		b.volume += lvl.price * fill
		b.trades++
		contra.consume(lvl, fill)
		remaining -= fill
	}

	if remaining > 0 {
		own.add(o.Price, remaining, o.ID)
	}
	return trades
}

func crosses(side domain.OrderSide, limit, levelPrice float64) bool {
	if side == domain.OrderSideBuy {
		return levelPrice <= limit
	}
	return levelPrice >= limit
}

// BestBid returns the highest resting bid.
func (b *Book) BestBid() (float64, bool) {
	lvl, ok := b.bids.best()
	if !ok {
		return 0, false
	}
	return lvl.price, true
}

// BestAsk returns the lowest resting ask.
func (b *Book) BestAsk() (float64, bool) {
	lvl, ok := b.asks.best()
	if !ok {
		return 0, false
	}
	return lvl.price, true
}

// Spread returns best ask minus best bid. It is undefined when either side
// is empty.
func (b *Book) Spread() (float64, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask - bid, true
}

// MidPrice returns the average of best bid and best ask.
func (b *Book) MidPrice() (float64, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// Depth returns the top n aggregated levels per side, nearest to market
// first. n <= 0 returns every level.
func (b *Book) Depth(n int) domain.BookDepth {
	return domain.BookDepth{
		Bids: b.bids.depth(n),
		Asks: b.asks.depth(n),
	}
}

// Volume is the cumulative traded notional (price * quantity).
func (b *Book) Volume() float64 { return b.volume }

// TradeCount is the number of matches since the book was created.
func (b *Book) TradeCount() int64 { return b.trades }

// LevelCount returns the number of bid and ask levels.
func (b *Book) LevelCount() (bids, asks int) { return b.bids.len(), b.asks.len() }

// Snapshot captures the full book for caching or display.
func (b *Book) Snapshot(bookID string) domain.OrderbookSnapshot {
	d := b.Depth(0)
	snap := domain.OrderbookSnapshot{
		BookID:     bookID,
		Bids:       d.Bids,
		Asks:       d.Asks,
		Volume:     b.volume,
		TradeCount: b.trades,
		Timestamp:  time.Now().UTC(),
	}
	snap.BestBid, _ = b.BestBid()
	snap.BestAsk, _ = b.BestAsk()
	snap.MidPrice, _ = b.MidPrice()
	return snap
}

// Clone returns a deep copy, including the id sequence and counters.
func (b *Book) Clone() *Book {
	return &Book{
		mode:   b.mode,
		bids:   b.bids.clone(),
		asks:   b.asks.clone(),
		nextID: b.nextID,
		volume: b.volume,
		trades: b.trades,
	}
}
