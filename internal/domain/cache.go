package domain

import (
	"context"
	"time"
)

// ResultCache memoises finished backtests keyed by a request digest.
type ResultCache interface {
	Get(ctx context.Context, key string) (RunResult, error)
	Set(ctx context.Context, key string, result RunResult, ttl time.Duration) error
}

// OrderbookCache stores the final book state of a run.
type OrderbookCache interface {
	SetSnapshot(ctx context.Context, bookID string, snap OrderbookSnapshot) error
	GetSnapshot(ctx context.Context, bookID string) (OrderbookSnapshot, error)
	GetBBO(ctx context.Context, bookID string) (bestBid, bestAsk float64, err error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
