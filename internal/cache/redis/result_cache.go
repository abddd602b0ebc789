package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/lobsim/internal/domain"
)

// ResultCache implements domain.ResultCache as JSON strings under
// backtest:result:{digest}.
type ResultCache struct {
	rdb *redis.Client
}

// NewResultCache creates a ResultCache backed by c.
func NewResultCache(c *Client) *ResultCache {
	return &ResultCache{rdb: c.Underlying()}
}

func resultKey(key string) string { return "backtest:result:" + key }

// Get returns a cached result or domain.ErrNotFound.
func (rc *ResultCache) Get(ctx context.Context, key string) (domain.RunResult, error) {
	raw, err := rc.rdb.Get(ctx, resultKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RunResult{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("redis: get result %s: %w", key, err)
	}
	var res domain.RunResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return domain.RunResult{}, fmt.Errorf("redis: decode result %s: %w", key, err)
	}
	return res, nil
}

// Set stores result for ttl. ttl <= 0 stores without expiry.
func (rc *ResultCache) Set(ctx context.Context, key string, result domain.RunResult, ttl time.Duration) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("redis: encode result %s: %w", key, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := rc.rdb.Set(ctx, resultKey(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set result %s: %w", key, err)
	}
	return nil
}

var _ domain.ResultCache = (*ResultCache)(nil)
