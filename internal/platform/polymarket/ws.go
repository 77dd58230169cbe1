package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/alanyoungcy/arbengine/internal/platform/wsconn"
)

// BookHandler is called when a full orderbook snapshot is received.
type BookHandler func(*BookMessage)

// PriceChangeHandler is called when incremental level updates are received.
type PriceChangeHandler func(*PriceChangeMessage)

// WSClient streams the CLOB market channel for a set of asset (token) ids.
// The market channel takes the full asset list on every subscribe, so the
// client always sends everything it tracks.
type WSClient struct {
	sock *wsconn.Conn

	mu     sync.Mutex
	assets []string

	handlerMu     sync.RWMutex
	bookHandlers  []BookHandler
	priceHandlers []PriceChangeHandler
}

// NewWSClient creates a client for the market channel endpoint, e.g.
// "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewWSClient(wsURL string, reconnectDelay time.Duration) *WSClient {
	w := &WSClient{}
	w.sock = wsconn.New(wsconn.Config{
		URL:            wsURL,
		PongWait:       60 * time.Second,
		ReconnectDelay: reconnectDelay,
		OnConnect:      func(uint32) error { return w.sendAll() },
		OnMessage:      func(raw []byte, _ uint32) { w.handleMessage(raw) },
	})
	return w
}

// Connect dials the market channel.
func (w *WSClient) Connect(ctx context.Context) error {
	if err := w.sock.Connect(ctx); err != nil {
		return fmt.Errorf("polymarket/ws: %w", err)
	}
	return nil
}

// Subscribe adds asset ids to the subscription.
func (w *WSClient) Subscribe(_ context.Context, assetIDs []string) error {
	if !w.sock.Connected() {
		return fmt.Errorf("polymarket/ws: not connected")
	}

	w.mu.Lock()
	for _, a := range assetIDs {
		if !slices.Contains(w.assets, a) {
			w.assets = append(w.assets, a)
		}
	}
	w.mu.Unlock()

	if err := w.sendAll(); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}
	return nil
}

// OnBook registers a handler for "book" snapshots.
func (w *WSClient) OnBook(handler BookHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.bookHandlers = append(w.bookHandlers, handler)
}

// OnPriceChange registers a handler for "price_change" updates.
func (w *WSClient) OnPriceChange(handler PriceChangeHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.priceHandlers = append(w.priceHandlers, handler)
}

// Done is closed once the client is shut down.
func (w *WSClient) Done() <-chan struct{} {
	return w.sock.Done()
}

// Close stops the client for good.
func (w *WSClient) Close() error {
	return w.sock.Close()
}

func (w *WSClient) sendAll() error {
	w.mu.Lock()
	assets := slices.Clone(w.assets)
	w.mu.Unlock()
	if len(assets) == 0 {
		return nil
	}
	return w.sock.SendJSON(WSCommand{Type: "market", Assets: assets})
}

// handleMessage routes one frame. The market channel sends either a single
// event object or an array of them.
func (w *WSClient) handleMessage(raw []byte) {
	books, changes := parseMarketMessage(raw)

	w.handlerMu.RLock()
	bookHandlers := w.bookHandlers
	priceHandlers := w.priceHandlers
	w.handlerMu.RUnlock()

	for _, b := range books {
		for _, h := range bookHandlers {
			h(b)
		}
	}
	for _, c := range changes {
		for _, h := range priceHandlers {
			h(c)
		}
	}
}

func parseMarketMessage(raw []byte) ([]*BookMessage, []*PriceChangeMessage) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}

	var items []json.RawMessage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, nil
		}
	} else {
		items = []json.RawMessage{raw}
	}

	var books []*BookMessage
	var changes []*PriceChangeMessage
	for _, item := range items {
		var envelope struct {
			Event string `json:"event_type"`
		}
		if err := json.Unmarshal(item, &envelope); err != nil {
			continue
		}
		switch envelope.Event {
		case "book":
			var book BookMessage
			if err := json.Unmarshal(item, &book); err != nil || book.AssetID == "" {
				continue
			}
			books = append(books, &book)
		case "price_change":
			var pc PriceChangeMessage
			if err := json.Unmarshal(item, &pc); err != nil || len(pc.Changes) == 0 {
				continue
			}
			changes = append(changes, &pc)
		}
	}
	return books, changes
}
