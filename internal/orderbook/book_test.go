package orderbook

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lobsim/internal/domain"
)

func newTestBook() *Book {
	return New(domain.FillModeContention)
}

func TestPlaceRestsWithoutContra(t *testing.T) {
	b := newTestBook()

	trades, err := b.Place(domain.OrderSideBuy, 100, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, trades)

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, 100.0, bid)

	_, ok = b.BestAsk()
	assert.False(t, ok)
	_, ok = b.Spread()
	assert.False(t, ok)
	_, ok = b.MidPrice()
	assert.False(t, ok)
}

func TestPlaceMatchesBestLevelsFirst(t *testing.T) {
	b := newTestBook()
	_, err := b.Place(domain.OrderSideSell, 101, 5, 0)
	require.NoError(t, err)
	_, err = b.Place(domain.OrderSideSell, 100, 5, 0)
	require.NoError(t, err)
	_, err = b.Place(domain.OrderSideSell, 102, 5, 0)
	require.NoError(t, err)

	trades, err := b.Place(domain.OrderSideBuy, 101, 8, 1)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.Equal(t, 100.0, trades[0].Price)
	assert.Equal(t, 5.0, trades[0].Quantity)
	assert.Equal(t, 101.0, trades[1].Price)
	assert.Equal(t, 3.0, trades[1].Quantity)

	assert.Equal(t, int64(4), trades[0].BuyOrderID)
	assert.Equal(t, int64(2), trades[0].SellOrderID)
	assert.Equal(t, int64(1), trades[1].SellOrderID)

	d := b.Depth(0)
	assert.Empty(t, d.Bids)
	assert.Equal(t, []domain.PriceLevel{{Price: 101, Size: 2}, {Price: 102, Size: 5}}, d.Asks)

	assert.Equal(t, int64(2), b.TradeCount())
	assert.InDelta(t, 100*5+101*3, b.Volume(), 1e-9)
}

func TestPlaceRemainderRestsAtLimit(t *testing.T) {
	b := newTestBook()
	_, err := b.Place(domain.OrderSideBuy, 99, 4, 0)
	require.NoError(t, err)

	trades, err := b.Place(domain.OrderSideSell, 98, 10, 1)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, 99.0, trades[0].Price)
	assert.Equal(t, 4.0, trades[0].Quantity)

	_, ok := b.BestBid()
	assert.False(t, ok)
	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, 98.0, ask)
	assert.Equal(t, []domain.PriceLevel{{Price: 98, Size: 6}}, b.Depth(1).Asks)
}

func TestPlaceNoCrossKeepsSpread(t *testing.T) {
	b := newTestBook()
	_, err := b.Place(domain.OrderSideBuy, 99, 1, 0)
	require.NoError(t, err)
	_, err = b.Place(domain.OrderSideSell, 101, 1, 0)
	require.NoError(t, err)

	spread, ok := b.Spread()
	require.True(t, ok)
	assert.Equal(t, 2.0, spread)

	mid, ok := b.MidPrice()
	require.True(t, ok)
	assert.Equal(t, 100.0, mid)
}

func TestPlaceAggregatesSamePrice(t *testing.T) {
	b := newTestBook()
	for i := 0; i < 3; i++ {
		_, err := b.Place(domain.OrderSideBuy, 50, 2, i)
		require.NoError(t, err)
	}
	bids, asks := b.LevelCount()
	assert.Equal(t, 1, bids)
	assert.Equal(t, 0, asks)
	assert.Equal(t, []domain.PriceLevel{{Price: 50, Size: 6}}, b.Depth(5).Bids)
}

func TestAggregatedLevelKeepsFirstOwner(t *testing.T) {
	b := newTestBook()
	_, err := b.Place(domain.OrderSideSell, 150, 100, 0)
	require.NoError(t, err)
	_, err = b.PlaceAs(domain.SyntheticOrderID, domain.OrderSideSell, 150, 200, 0)
	require.NoError(t, err)

	trades, err := b.Place(domain.OrderSideBuy, 150, 50, 1)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(1), trades[0].SellOrderID)
	assert.Equal(t, []domain.PriceLevel{{Price: 150, Size: 250}}, b.Depth(0).Asks)
}

func TestPlaceRejectsInvalidOrders(t *testing.T) {
	tests := []struct {
		name  string
		side  domain.OrderSide
		price float64
		qty   float64
	}{
		{"zero price", domain.OrderSideBuy, 0, 1},
		{"negative price", domain.OrderSideSell, -1, 1},
		{"zero quantity", domain.OrderSideBuy, 100, 0},
		{"negative quantity", domain.OrderSideSell, 100, -3},
		{"nan price", domain.OrderSideBuy, math.NaN(), 1},
		{"inf quantity", domain.OrderSideBuy, 100, math.Inf(1)},
		{"bad side", domain.OrderSide("short"), 100, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBook()
			_, err := b.Place(domain.OrderSideSell, 100, 1, 0)
			require.NoError(t, err)
			before := b.Depth(0)

			trades, err := b.Place(tt.side, tt.price, tt.qty, 1)
			assert.ErrorIs(t, err, domain.ErrInvalidOrder)
			assert.Nil(t, trades)
			assert.Equal(t, before, b.Depth(0))
			assert.Equal(t, int64(0), b.TradeCount())
		})
	}
}

func TestPlaceAsDoesNotConsumeID(t *testing.T) {
	b := New(domain.FillModeAlwaysFill)

	_, err := b.PlaceAs(domain.SyntheticOrderID, domain.OrderSideSell, 150, 200, 0)
	require.NoError(t, err)

	trades, err := b.Place(domain.OrderSideBuy, 150, 100, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(1), trades[0].BuyOrderID)
	assert.Equal(t, domain.SyntheticOrderID, trades[0].SellOrderID)

	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, 150.0, ask)
}

func TestBestBidBelowBestAskAfterEveryPlace(t *testing.T) {
	b := newTestBook()
	orders := []struct {
		side  domain.OrderSide
		price float64
		qty   float64
	}{
		{domain.OrderSideBuy, 100, 3},
		{domain.OrderSideSell, 103, 2},
		{domain.OrderSideBuy, 104, 1},
		{domain.OrderSideSell, 99, 5},
		{domain.OrderSideBuy, 102, 7},
		{domain.OrderSideSell, 101, 1},
		{domain.OrderSideSell, 101.5, 4},
		{domain.OrderSideBuy, 101.5, 2},
	}

	for i, o := range orders {
		_, err := b.Place(o.side, o.price, o.qty, i)
		require.NoError(t, err)

		bid, okBid := b.BestBid()
		ask, okAsk := b.BestAsk()
		if okBid && okAsk {
			assert.Less(t, bid, ask, "crossed book after order %d", i)
		}
		for _, lvl := range append(b.Depth(0).Bids, b.Depth(0).Asks...) {
			assert.Greater(t, lvl.Size, 0.0)
		}
	}
}

func TestDepthOrdering(t *testing.T) {
	b := newTestBook()
	for _, p := range []float64{97, 99, 98} {
		_, err := b.Place(domain.OrderSideBuy, p, 1, 0)
		require.NoError(t, err)
	}
	for _, p := range []float64{103, 101, 102} {
		_, err := b.Place(domain.OrderSideSell, p, 1, 0)
		require.NoError(t, err)
	}

	d := b.Depth(2)
	assert.Equal(t, []domain.PriceLevel{{Price: 99, Size: 1}, {Price: 98, Size: 1}}, d.Bids)
	assert.Equal(t, []domain.PriceLevel{{Price: 101, Size: 1}, {Price: 102, Size: 1}}, d.Asks)

	snap := b.Snapshot("run-1")
	assert.Equal(t, "run-1", snap.BookID)
	assert.Equal(t, 99.0, snap.BestBid)
	assert.Equal(t, 101.0, snap.BestAsk)
	assert.Equal(t, 100.0, snap.MidPrice)
	assert.Len(t, snap.Bids, 3)
}

func TestCloneIsIndependent(t *testing.T) {
	b := newTestBook()
	_, err := b.Place(domain.OrderSideSell, 100, 5, 0)
	require.NoError(t, err)

	c := b.Clone()
	_, err = c.Place(domain.OrderSideBuy, 100, 5, 1)
	require.NoError(t, err)

	_, ok := c.BestAsk()
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.TradeCount())

	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, 100.0, ask)
	assert.Equal(t, int64(0), b.TradeCount())

	trades, err := b.Place(domain.OrderSideBuy, 100, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), trades[0].BuyOrderID)
}

func TestNewDefaultsUnknownMode(t *testing.T) {
	assert.Equal(t, domain.FillModeAlwaysFill, New("bogus").Mode())
	assert.Equal(t, domain.FillModeContention, New(domain.FillModeContention).Mode())
}
