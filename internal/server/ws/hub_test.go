package ws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lobsim/internal/cache/memory"
)

var testCfg = Config{SummaryChannel: "ch:backtest", StepChannelPrefix: "ch:backtest:"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStepChannel(t *testing.T) {
	h := NewHub(nil, testCfg, discardLogger())
	assert.Equal(t, "ch:backtest:r1", h.stepChannel([]byte(`{"event":"snapshot","run_id":"r1"}`)))
	assert.Empty(t, h.stepChannel([]byte(`{"event":"snapshot"}`)))
	assert.Empty(t, h.stepChannel([]byte(`garbage`)))
}

func TestClientSubscriptions(t *testing.T) {
	c := &client{subs: map[string]bool{"ch:backtest": true}}
	assert.True(t, c.isSubscribed("ch:backtest"))
	assert.False(t, c.isSubscribed("ch:backtest:r1"))

	c.apply(subscribeMsg{Action: "subscribe", Channels: []string{"ch:backtest:r1"}})
	assert.True(t, c.isSubscribed("ch:backtest:r1"))
	assert.False(t, c.isSubscribed("ch:backtest:r2"))

	c.apply(subscribeMsg{Action: "subscribe", Channels: []string{"ch:backtest:*"}})
	assert.True(t, c.isSubscribed("ch:backtest:r2"))

	c.apply(subscribeMsg{Action: "unsubscribe", Channels: []string{"ch:backtest:*", "ch:backtest"}})
	assert.False(t, c.isSubscribed("ch:backtest:r2"))
	assert.False(t, c.isSubscribed("ch:backtest"))
	assert.True(t, c.isSubscribed("ch:backtest:r1"))
}

// readLoop pumps messages from conn into a channel until the conn fails.
func readLoop(conn *websocket.Conn) <-chan string {
	out := make(chan string, 16)
	go func() {
		defer close(out)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			out <- string(msg)
		}
	}()
	return out
}

// publishUntil republishes until a message containing want arrives, since bus
// subscriptions are established asynchronously.
func publishUntil(t *testing.T, bus *memory.SignalBus, channel, payload, want string, msgs <-chan string) string {
	t.Helper()
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		require.NoError(t, bus.Publish(context.Background(), channel, []byte(payload)))
		select {
		case m := <-msgs:
			if strings.Contains(m, want) {
				return m
			}
		case <-tick.C:
		case <-deadline:
			t.Fatalf("no message on %s", channel)
			return ""
		}
	}
}

func TestHubForwardsSummaryAndSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := memory.NewSignalBus(0)
	hub := NewHub(bus, testCfg, discardLogger())
	go hub.Run(ctx)

	ts := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "?channel=ch:backtest:r1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	msgs := readLoop(conn)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	summary := publishUntil(t, bus, "ch:backtest", `{"event":"backtest_completed","run_id":"r0"}`, "backtest_completed", msgs)
	assert.Contains(t, summary, "backtest_completed")

	step := publishUntil(t, bus, "ch:backtest:r1", `{"event":"snapshot","run_id":"r1"}`, `"event":"snapshot"`, msgs)
	assert.Contains(t, step, `"run_id":"r1"`)
}
