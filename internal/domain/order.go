package domain

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Valid reports whether s is one of the two known sides.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// Opposite returns the contra side. An unknown side is returned unchanged.
func (s OrderSide) Opposite() OrderSide {
	switch s {
	case OrderSideBuy:
		return OrderSideSell
	case OrderSideSell:
		return OrderSideBuy
	default:
		return s
	}
}

// SyntheticOrderID is the counterparty id used for contra liquidity injected
// by the engine in always-fill mode. Real order ids start at 1.
const SyntheticOrderID int64 = 0

// Order is a transient request accepted by the book. Once its remainder rests
// only the aggregate level quantity survives.
type Order struct {
	ID        int64
	Side      OrderSide
	Price     float64
	Quantity  float64
	Timestamp int
}

// OrderRequest is a concrete order produced by the execution step. Field
// names are part of the snapshot wire format.
type OrderRequest struct {
	Side     OrderSide `json:"side"`
	Price    float64   `json:"price"`
	Quantity float64   `json:"quantity"`
}

// Notional returns price * quantity.
func (r OrderRequest) Notional() float64 {
	return r.Price * r.Quantity
}
