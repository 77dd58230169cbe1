// Package wsconn provides the reconnecting websocket session shared by the
// venue streaming clients. It owns dialing, keepalive pings and backoff
// reconnects; the venue clients own the subscribe protocol and frame parsing.
package wsconn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 15 * time.Second
)

// Config describes one session.
type Config struct {
	URL string
	// Header is called before every dial, so signed handshakes get a fresh
	// timestamp on reconnect.
	Header func() (http.Header, error)
	// PongWait bounds the silence tolerated before the read fails. Pings go
	// out at 90% of it.
	PongWait          time.Duration
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	// OnConnect runs after every successful dial, before frames are read on
	// the new connection's behalf. Venue clients replay subscriptions here.
	OnConnect func(gen uint32) error
	// OnMessage receives every data frame with the generation of the
	// connection it arrived on.
	OnMessage func(data []byte, gen uint32)
}

// Conn is a websocket session that redials after a read failure until it is
// closed.
type Conn struct {
	cfg Config

	mu     sync.RWMutex
	conn   *websocket.Conn
	gen    uint32
	closed bool

	writeMu sync.Mutex
	done    chan struct{}
}

// New creates a session. Nothing is dialed until Connect.
func New(cfg Config) *Conn {
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = 60 * time.Second
	}
	return &Conn{cfg: cfg, done: make(chan struct{})}
}

// Connect dials once and starts the read and ping loops for the new
// connection. On read failure the session reconnects on its own.
func (c *Conn) Connect(ctx context.Context) error {
	if c.isClosed() {
		return fmt.Errorf("wsconn: %w", domain.ErrWSDisconnect)
	}

	var hdr http.Header
	if c.cfg.Header != nil {
		h, err := c.cfg.Header()
		if err != nil {
			return fmt.Errorf("wsconn: handshake headers: %w", err)
		}
		hdr = h
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, hdr)
	if err != nil {
		return fmt.Errorf("wsconn: dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("wsconn: %w", domain.ErrWSDisconnect)
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	pongWait := c.cfg.PongWait
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readLoop(conn, gen)
	go c.pingLoop(conn)

	if c.cfg.OnConnect != nil {
		if err := c.cfg.OnConnect(gen); err != nil {
			return fmt.Errorf("wsconn: on connect: %w", err)
		}
	}
	return nil
}

// SendJSON writes v as a text frame on the current connection.
func (c *Conn) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wsconn: marshal: %w", err)
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("wsconn: not connected: %w", domain.ErrWSDisconnect)
	}
	return c.write(conn, websocket.TextMessage, data)
}

// Connected reports whether a connection has been established and the
// session is still open.
func (c *Conn) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.closed
}

// Done is closed once the session is shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close sends a close frame and stops reconnecting. Repeated calls are
// no-ops.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = c.write(conn, websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return conn.Close()
}

func (c *Conn) write(conn *websocket.Conn, kind int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(kind, data)
}

func (c *Conn) readLoop(conn *websocket.Conn, gen uint32) {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// A connection replaced by a newer dial fails here too; only
			// the current one triggers a reconnect.
			if c.current(gen) {
				c.reconnect()
			}
			return
		}
		if c.cfg.OnMessage != nil {
			c.cfg.OnMessage(data, gen)
		}
	}
}

func (c *Conn) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.write(conn, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reconnect redials with exponential backoff until it succeeds or the
// session is closed.
func (c *Conn) reconnect() {
	delay := c.cfg.ReconnectDelay
	for {
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
		err := c.Connect(ctx)
		cancel()
		if err == nil || c.isClosed() {
			return
		}

		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

func (c *Conn) current(gen uint32) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed && c.gen == gen
}

func (c *Conn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
