package orderbook

import (
	"sort"

	"github.com/alanyoungcy/lobsim/internal/domain"
)

// level is the aggregate resting quantity at one price. orderID is the id of
// the first order that rested quantity here; it is what trades against this
// level report as the resting counterparty.
type level struct {
	price   float64
	qty     float64
	orderID int64
}

// bookSide keeps the levels of one side keyed by price plus a sorted price
// index. prices is always ascending; bids read it from the end.
type bookSide struct {
	levels map[float64]*level
	prices []float64
	bids   bool
}

func newBookSide(bids bool) *bookSide {
	return &bookSide{
		levels: make(map[float64]*level),
		bids:   bids,
	}
}

func (s *bookSide) len() int { return len(s.prices) }

// best returns the level nearest to market: highest bid or lowest ask.
func (s *bookSide) best() (*level, bool) {
	if len(s.prices) == 0 {
		return nil, false
	}
	var p float64
	if s.bids {
		p = s.prices[len(s.prices)-1]
	} else {
		p = s.prices[0]
	}
	return s.levels[p], true
}

// add rests qty at price, aggregating into an existing level when present.
func (s *bookSide) add(price, qty float64, orderID int64) {
	if lvl, ok := s.levels[price]; ok {
		lvl.qty += qty
		return
	}
	s.levels[price] = &level{price: price, qty: qty, orderID: orderID}
	i := sort.SearchFloat64s(s.prices, price)
	s.prices = append(s.prices, 0)
	copy(s.prices[i+1:], s.prices[i:])
	s.prices[i] = price
}

// consume takes qty off the level at price and drops the level once it is
// exhausted, so no zero or negative level is ever left behind.
func (s *bookSide) consume(lvl *level, qty float64) {
	lvl.qty -= qty
	if lvl.qty > 0 {
		return
	}
	delete(s.levels, lvl.price)
	i := sort.SearchFloat64s(s.prices, lvl.price)
	if i < len(s.prices) && s.prices[i] == lvl.price {
		s.prices = append(s.prices[:i], s.prices[i+1:]...)
	}
}

// depth returns up to n levels nearest to market first. n <= 0 means all.
func (s *bookSide) depth(n int) []domain.PriceLevel {
	count := len(s.prices)
	if n > 0 && n < count {
		count = n
	}
	out := make([]domain.PriceLevel, 0, count)
	for i := 0; i < count; i++ {
		var p float64
		if s.bids {
			p = s.prices[len(s.prices)-1-i]
		} else {
			p = s.prices[i]
		}
		out = append(out, domain.PriceLevel{Price: p, Size: s.levels[p].qty})
	}
	return out
}

func (s *bookSide) clone() *bookSide {
	c := &bookSide{
		levels: make(map[float64]*level, len(s.levels)),
		prices: make([]float64, len(s.prices)),
		bids:   s.bids,
	}
	copy(c.prices, s.prices)
	for p, lvl := range s.levels {
		cp := *lvl
		c.levels[p] = &cp
	}
	return c
}
