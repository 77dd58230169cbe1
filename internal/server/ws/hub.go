// Package ws pushes engine events to dashboard clients over websockets.
// Frames are protobuf-encoded google.protobuf.Struct values by default;
// clients connecting with ?format=json get JSON text frames instead.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// frame is one outbound message, pre-encoded in both formats.
type frame struct {
	eventType string
	binary    []byte
	text      []byte
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan frame
	asJSON bool

	mu    sync.RWMutex
	types map[string]bool // empty means every type
}

// subscribeMsg narrows or widens the event types a client receives:
// {"action":"subscribe","types":["heartbeat","one_sided_fill"]}.
type subscribeMsg struct {
	Action string   `json:"action"`
	Types  []string `json:"types"`
}

// StatusFunc supplies the payload of the status frame sent on connect.
type StatusFunc func() map[string]any

// Hub fans engine events out to connected clients. Slow clients lose
// frames rather than stall the hub.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan frame
	register   chan *client
	unregister chan *client
	status     StatusFunc
	logger     *slog.Logger

	mu      sync.RWMutex
	dropped uint64
}

// NewHub creates a Hub. status may be nil.
func NewHub(status StatusFunc, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan frame, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		status:     status,
		logger:     logger,
	}
}

// BroadcastEvent queues ev for every subscribed client. It never blocks.
func (h *Hub) BroadcastEvent(ev domain.Event) {
	f, err := encodeFrame(string(ev.Type), eventPayload(ev))
	if err != nil {
		h.logger.Warn("ws: encode event failed",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
		return
	}
	select {
	case h.broadcast <- f:
	default:
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
	}
}

// Dropped counts events discarded because the hub queue was full.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", n))

		case f := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(f.eventType) {
					continue
				}
				select {
				case c.send <- f:
				default:
					h.logger.Warn("ws: dropping frame for slow client", slog.String("type", f.eventType))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// HandleWS upgrades the request and registers the client.
// GET /ws[?format=json]
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan frame, sendBufferSize),
		asJSON: r.URL.Query().Get("format") == "json",
		types:  make(map[string]bool),
	}

	h.register <- c
	c.sendStatus()

	go c.writePump()
	go c.readPump()
}

func (c *client) wants(eventType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.types) == 0 || c.types[eventType]
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, t := range msg.Types {
			c.types[t] = true
		}
	case "unsubscribe":
		for _, t := range msg.Types {
			delete(c.types, t)
		}
	case "all":
		c.types = make(map[string]bool)
	}
}

func (c *client) sendStatus() {
	payload := map[string]any{}
	if c.hub.status != nil {
		payload = c.hub.status()
	}
	f, err := encodeFrame("engine_status", map[string]any{"type": "engine_status", "payload": payload})
	if err != nil {
		return
	}
	select {
	case c.send <- f:
	default:
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			kind, data := websocket.BinaryMessage, f.binary
			if c.asJSON {
				kind, data = websocket.TextMessage, f.text
			}
			if err := c.conn.WriteMessage(kind, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// eventPayload is the JSON wire form of ev as a generic map.
func eventPayload(ev domain.Event) map[string]any {
	w := events.ToWire(ev)
	out := map[string]any{
		"type":     w.Type,
		"severity": w.Severity,
		"message":  w.Message,
		"time":     w.Time.Format(time.RFC3339Nano),
	}
	if w.PairID != "" {
		out["pair_id"] = w.PairID
	}
	if len(w.Fields) > 0 {
		out["fields"] = w.Fields
	}
	return out
}

// encodeFrame renders payload as JSON and as a binary structpb.Struct. The
// JSON round trip normalizes field values to types structpb accepts.
func encodeFrame(eventType string, payload map[string]any) (frame, error) {
	text, err := json.Marshal(payload)
	if err != nil {
		return frame{}, err
	}
	var generic map[string]any
	if err := json.Unmarshal(text, &generic); err != nil {
		return frame{}, err
	}
	st, err := structpb.NewStruct(generic)
	if err != nil {
		return frame{}, err
	}
	binary, err := proto.Marshal(st)
	if err != nil {
		return frame{}, err
	}
	return frame{eventType: eventType, binary: binary, text: text}, nil
}
