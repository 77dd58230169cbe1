package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/alanyoungcy/arbengine/internal/platform/wsconn"
)

// HeaderFunc produces handshake headers for the signed WS path.
type HeaderFunc func(method, path string) (http.Header, error)

// BookHandler is called for every orderbook snapshot or delta.
type BookHandler func(BookUpdate)

// WSClient streams Kalshi orderbooks for a set of market tickers. The
// subscription survives reconnects; each new connection replays it and
// starts a fresh sequence space (BookUpdate.Conn).
type WSClient struct {
	sock *wsconn.Conn

	mu      sync.Mutex
	tickers []string
	cmdID   int64

	handlerMu sync.RWMutex
	handlers  []BookHandler
}

// NewWSClient creates a client for wsURL, e.g.
// "wss://api.elections.kalshi.com/trade-api/ws/v2". headers signs the
// handshake; nil dials unauthenticated.
func NewWSClient(wsURL string, headers HeaderFunc, reconnectDelay time.Duration) *WSClient {
	w := &WSClient{}
	w.sock = wsconn.New(wsconn.Config{
		URL:            wsURL,
		Header:         signedHandshake(wsURL, headers),
		PongWait:       30 * time.Second,
		ReconnectDelay: reconnectDelay,
		OnConnect:      w.resubscribe,
		OnMessage:      w.handleMessage,
	})
	return w
}

func signedHandshake(wsURL string, headers HeaderFunc) func() (http.Header, error) {
	if headers == nil {
		return nil
	}
	return func() (http.Header, error) {
		u, err := url.Parse(wsURL)
		if err != nil {
			return nil, fmt.Errorf("kalshi/ws: parse url: %w", err)
		}
		return headers(http.MethodGet, u.Path)
	}
}

// Connect dials the orderbook socket.
func (w *WSClient) Connect(ctx context.Context) error {
	if err := w.sock.Connect(ctx); err != nil {
		return fmt.Errorf("kalshi/ws: %w", err)
	}
	return nil
}

// Subscribe adds tickers to the orderbook_delta subscription.
func (w *WSClient) Subscribe(_ context.Context, tickers []string) error {
	if !w.sock.Connected() {
		return fmt.Errorf("kalshi/ws: not connected")
	}
	if err := w.send(tickers); err != nil {
		return fmt.Errorf("kalshi/ws: subscribe: %w", err)
	}

	w.mu.Lock()
	for _, t := range tickers {
		if !slices.Contains(w.tickers, t) {
			w.tickers = append(w.tickers, t)
		}
	}
	w.mu.Unlock()
	return nil
}

// OnBook registers a handler for book messages.
func (w *WSClient) OnBook(handler BookHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Done is closed once the client is shut down.
func (w *WSClient) Done() <-chan struct{} {
	return w.sock.Done()
}

// Close stops the client for good.
func (w *WSClient) Close() error {
	return w.sock.Close()
}

func (w *WSClient) resubscribe(uint32) error {
	w.mu.Lock()
	tickers := slices.Clone(w.tickers)
	w.mu.Unlock()
	if len(tickers) == 0 {
		return nil
	}
	return w.send(tickers)
}

func (w *WSClient) send(tickers []string) error {
	w.mu.Lock()
	w.cmdID++
	id := w.cmdID
	w.mu.Unlock()

	return w.sock.SendJSON(KalshiWSSubscribeCmd{
		ID:  id,
		Cmd: "subscribe",
		Params: KalshiWSSubscribeParams{
			Channels: []string{"orderbook_delta"},
			Tickers:  tickers,
		},
	})
}

func (w *WSClient) handleMessage(raw []byte, gen uint32) {
	update, ok := parseBookMessage(raw, gen)
	if !ok {
		return
	}

	w.handlerMu.RLock()
	handlers := w.handlers
	w.handlerMu.RUnlock()

	for _, h := range handlers {
		h(update)
	}
}

func parseBookMessage(raw []byte, gen uint32) (BookUpdate, bool) {
	var envelope KalshiWSMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return BookUpdate{}, false
	}

	update := BookUpdate{Conn: gen, Seq: envelope.Seq}
	switch envelope.Type {
	case "orderbook_snapshot":
		var snap KalshiWSSnapshot
		if err := json.Unmarshal(envelope.Msg, &snap); err != nil || snap.Ticker == "" {
			return BookUpdate{}, false
		}
		update.Snapshot = &snap
	case "orderbook_delta":
		var delta KalshiWSDelta
		if err := json.Unmarshal(envelope.Msg, &delta); err != nil || delta.Ticker == "" {
			return BookUpdate{}, false
		}
		update.Delta = &delta
	default:
		return BookUpdate{}, false
	}
	return update, true
}
