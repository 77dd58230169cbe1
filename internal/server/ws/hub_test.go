package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(func() map[string]any { return map[string]any{"mode": "dry_run"} },
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func sampleEvent() domain.Event {
	return domain.Event{
		Type:     domain.EventOneSidedFill,
		Severity: domain.SeverityCritical,
		PairID:   "nba-lal-bos:lal",
		Message:  "one-sided fill",
		Fields:   map[string]any{"unhedged": decimal.NewFromInt(10), "consecutive_errors": 1},
		Time:     time.Date(2025, 12, 19, 18, 0, 0, 0, time.UTC),
	}
}

func TestHubSendsJSONFrames(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url+"?format=json")

	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Contains(t, string(data), `"engine_status"`)
	assert.Contains(t, string(data), `"dry_run"`)

	hub.BroadcastEvent(sampleEvent())

	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "one_sided_fill", got["type"])
	assert.Equal(t, "critical", got["severity"])
	assert.Equal(t, "nba-lal-bos:lal", got["pair_id"])
	assert.Equal(t, "10", got["fields"].(map[string]any)["unhedged"])
}

func TestHubSendsProtobufFrames(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)

	_, _, err := conn.ReadMessage()
	require.NoError(t, err)

	hub.BroadcastEvent(sampleEvent())

	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)

	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(data, &st))
	assert.Equal(t, "one_sided_fill", st.Fields["type"].GetStringValue())
	assert.Equal(t, float64(1), st.Fields["fields"].GetStructValue().Fields["consecutive_errors"].GetNumberValue())
}

func TestClientSubscriptionFilter(t *testing.T) {
	c := &client{types: make(map[string]bool)}
	assert.True(t, c.wants("heartbeat"))
	assert.True(t, c.wants("one_sided_fill"))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Types: []string{"heartbeat"}})
	assert.True(t, c.wants("heartbeat"))
	assert.False(t, c.wants("one_sided_fill"))

	c.handleSubscription(subscribeMsg{Action: "all"})
	assert.True(t, c.wants("one_sided_fill"))
}

func TestBroadcastNeverBlocks(t *testing.T) {
	hub := NewHub(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	for range cap(hub.broadcast) + 5 {
		hub.BroadcastEvent(sampleEvent())
	}
	assert.Equal(t, uint64(5), hub.Dropped())
}

func TestEncodeFrameNormalizesValues(t *testing.T) {
	f, err := encodeFrame("x", map[string]any{"price": decimal.RequireFromString("0.41"), "at": time.Unix(0, 0).UTC()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":"0.41","at":"1970-01-01T00:00:00Z"}`, string(f.text))

	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(f.binary, &st))
	assert.Equal(t, "0.41", st.Fields["price"].GetStringValue())
}
