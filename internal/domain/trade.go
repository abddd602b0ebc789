package domain

// Trade is an immutable execution emitted by the book. One side carries
// SyntheticOrderID when it was filled against injected liquidity.
type Trade struct {
	BuyOrderID  int64   `json:"buy_order_id"`
	SellOrderID int64   `json:"sell_order_id"`
	Price       float64 `json:"price"`
	Quantity    float64 `json:"quantity"`
	Timestamp   int     `json:"timestamp"`
}

// Notional returns price * quantity.
func (t Trade) Notional() float64 {
	return t.Price * t.Quantity
}
