package redis

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/lobsim/internal/domain"
)

func TestKeySchema(t *testing.T) {
	k := keysFor("run-1")
	assert.Equal(t, "book:run-1:bids", k.bids)
	assert.Equal(t, "book:run-1:ask:size", k.askSize)
	assert.Len(t, k.all(), 6)

	assert.Equal(t, "lock:backtest:abc", lockKey("backtest:abc"))
	assert.Equal(t, "ratelimit:1.2.3.4", rateLimitKey("1.2.3.4"))
	assert.Equal(t, "backtest:result:abc", resultKey("abc"))
}

func TestLevelsKeepOrderAndSizes(t *testing.T) {
	zs := []redis.Z{
		{Score: 151, Member: "151"},
		{Score: 150.5, Member: "150.5"},
		{Score: 1, Member: 1.0},
	}
	got := levels(zs, map[string]string{"151": "10", "150.5": "2.5"})
	assert.Equal(t, []domain.PriceLevel{{Price: 151, Size: 10}, {Price: 150.5, Size: 2.5}}, got)
}

func TestIsPattern(t *testing.T) {
	assert.True(t, isPattern("ch:backtest*"))
	assert.False(t, isPattern("ch:backtest"))
}

func TestStreamMessagesSkipsForeignEntries(t *testing.T) {
	got := streamMessages([]redis.XStream{{
		Stream: "stream:runs",
		Messages: []redis.XMessage{
			{ID: "1-0", Values: map[string]any{"payload": `{"a":1}`}},
			{ID: "2-0", Values: map[string]any{"other": "x"}},
		},
	}})
	assert.Equal(t, []domain.StreamMessage{{ID: "1-0", Payload: []byte(`{"a":1}`)}}, got)
	assert.Empty(t, streamMessages(nil))
	assert.NotNil(t, streamMessages(nil))
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "150", formatFloat(150))
	assert.Equal(t, "0.125", formatFloat(0.125))
}
