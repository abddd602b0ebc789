package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// BookDepth holds the top levels of each side, nearest to market first:
// bids descending, asks ascending.
type BookDepth struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

// OrderbookSnapshot is a full snapshot of bids and asks for a book. BestBid,
// BestAsk and MidPrice are zero when undefined.
type OrderbookSnapshot struct {
	BookID     string       `json:"book_id"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	BestBid    float64      `json:"best_bid"`
	BestAsk    float64      `json:"best_ask"`
	MidPrice   float64      `json:"mid_price"`
	Volume     float64      `json:"volume"`
	TradeCount int64        `json:"trade_count"`
	Timestamp  time.Time    `json:"timestamp"`
}
