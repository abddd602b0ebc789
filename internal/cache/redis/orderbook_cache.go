package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/lobsim/internal/domain"
)

// OrderbookCache implements domain.OrderbookCache. Each run's final book is
// kept under its run id until ttl expires.
//
// Key schema:
//
//	book:{id}:bids      - sorted set of bid prices (score = price)
//	book:{id}:asks      - sorted set of ask prices (score = price)
//	book:{id}:bid:size  - hash price -> resting quantity
//	book:{id}:ask:size  - hash price -> resting quantity
//	book:{id}:bbo       - hash with "bid" and "ask"
//	book:{id}:meta      - hash with "ts", "volume" and "trades"
type OrderbookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewOrderbookCache creates an OrderbookCache. ttl <= 0 keeps books forever.
func NewOrderbookCache(c *Client, ttl time.Duration) *OrderbookCache {
	return &OrderbookCache{rdb: c.Underlying(), ttl: ttl}
}

type bookKeys struct {
	bids, asks, bidSize, askSize, bbo, meta string
}

func keysFor(bookID string) bookKeys {
	p := "book:" + bookID
	return bookKeys{
		bids:    p + ":bids",
		asks:    p + ":asks",
		bidSize: p + ":bid:size",
		askSize: p + ":ask:size",
		bbo:     p + ":bbo",
		meta:    p + ":meta",
	}
}

func (k bookKeys) all() []string {
	return []string{k.bids, k.asks, k.bidSize, k.askSize, k.bbo, k.meta}
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// SetSnapshot replaces the stored book for bookID in one MULTI/EXEC.
func (oc *OrderbookCache) SetSnapshot(ctx context.Context, bookID string, snap domain.OrderbookSnapshot) error {
	k := keysFor(bookID)
	pipe := oc.rdb.TxPipeline()

	pipe.Del(ctx, k.all()...)
	for _, lvl := range snap.Bids {
		pipe.ZAdd(ctx, k.bids, redis.Z{Score: lvl.Price, Member: formatFloat(lvl.Price)})
		pipe.HSet(ctx, k.bidSize, formatFloat(lvl.Price), formatFloat(lvl.Size))
	}
	for _, lvl := range snap.Asks {
		pipe.ZAdd(ctx, k.asks, redis.Z{Score: lvl.Price, Member: formatFloat(lvl.Price)})
		pipe.HSet(ctx, k.askSize, formatFloat(lvl.Price), formatFloat(lvl.Size))
	}
	if snap.BestBid > 0 {
		pipe.HSet(ctx, k.bbo, "bid", formatFloat(snap.BestBid))
	}
	if snap.BestAsk > 0 {
		pipe.HSet(ctx, k.bbo, "ask", formatFloat(snap.BestAsk))
	}
	pipe.HSet(ctx, k.meta,
		"ts", strconv.FormatInt(snap.Timestamp.UnixNano(), 10),
		"volume", formatFloat(snap.Volume),
		"trades", strconv.FormatInt(snap.TradeCount, 10),
	)
	if oc.ttl > 0 {
		for _, key := range k.all() {
			pipe.Expire(ctx, key, oc.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book %s: %w", bookID, err)
	}
	return nil
}

// GetSnapshot rebuilds a stored book, or returns domain.ErrNotFound.
func (oc *OrderbookCache) GetSnapshot(ctx context.Context, bookID string) (domain.OrderbookSnapshot, error) {
	k := keysFor(bookID)
	pipe := oc.rdb.Pipeline()

	bidsCmd := pipe.ZRevRangeWithScores(ctx, k.bids, 0, -1)
	asksCmd := pipe.ZRangeWithScores(ctx, k.asks, 0, -1)
	bidSizeCmd := pipe.HGetAll(ctx, k.bidSize)
	askSizeCmd := pipe.HGetAll(ctx, k.askSize)
	bboCmd := pipe.HGetAll(ctx, k.bbo)
	metaCmd := pipe.HGetAll(ctx, k.meta)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: get book %s: %w", bookID, err)
	}

	meta := metaCmd.Val()
	if len(meta) == 0 {
		return domain.OrderbookSnapshot{}, domain.ErrNotFound
	}

	snap := domain.OrderbookSnapshot{
		BookID: bookID,
		Bids:   levels(bidsCmd.Val(), bidSizeCmd.Val()),
		Asks:   levels(asksCmd.Val(), askSizeCmd.Val()),
	}
	if ns, err := strconv.ParseInt(meta["ts"], 10, 64); err == nil {
		snap.Timestamp = time.Unix(0, ns).UTC()
	}
	snap.Volume, _ = strconv.ParseFloat(meta["volume"], 64)
	snap.TradeCount, _ = strconv.ParseInt(meta["trades"], 10, 64)

	bbo := bboCmd.Val()
	snap.BestBid, _ = strconv.ParseFloat(bbo["bid"], 64)
	snap.BestAsk, _ = strconv.ParseFloat(bbo["ask"], 64)
	if snap.BestBid > 0 && snap.BestAsk > 0 {
		snap.MidPrice = (snap.BestBid + snap.BestAsk) / 2
	}
	return snap, nil
}

// levels pairs sorted prices with their sizes, preserving the z order.
func levels(zs []redis.Z, sizes map[string]string) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		size, _ := strconv.ParseFloat(sizes[member], 64)
		out = append(out, domain.PriceLevel{Price: z.Score, Size: size})
	}
	return out
}

// GetBBO returns the stored best bid and ask. A missing side reads as 0.
func (oc *OrderbookCache) GetBBO(ctx context.Context, bookID string) (bestBid, bestAsk float64, err error) {
	k := keysFor(bookID)
	exists, err := oc.rdb.Exists(ctx, k.meta).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis: get bbo %s: %w", bookID, err)
	}
	if exists == 0 {
		return 0, 0, domain.ErrNotFound
	}
	vals, err := oc.rdb.HGetAll(ctx, k.bbo).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis: get bbo %s: %w", bookID, err)
	}
	bestBid, _ = strconv.ParseFloat(vals["bid"], 64)
	bestAsk, _ = strconv.ParseFloat(vals["ask"], 64)
	return bestBid, bestAsk, nil
}

var _ domain.OrderbookCache = (*OrderbookCache)(nil)
