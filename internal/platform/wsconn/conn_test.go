package wsconn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer sends "hello" on every new connection, echoes text frames and
// counts accepted connections. Closing kick drops the current connection.
type echoServer struct {
	*httptest.Server

	mu     sync.Mutex
	conns  int
	header string
	kick   chan struct{}
}

func newEchoServer(t *testing.T) *echoServer {
	t.Helper()
	s := &echoServer{kick: make(chan struct{}, 1)}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		s.header = r.Header.Get("X-Test")
		s.mu.Unlock()

		go func() {
			<-s.kick
			_ = conn.Close()
		}()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_ = conn.WriteMessage(kind, data)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *echoServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *echoServer) connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

type inbox struct {
	mu   sync.Mutex
	msgs []string
	gens []uint32
}

func (b *inbox) add(data []byte, gen uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, string(data))
	b.gens = append(b.gens, gen)
}

func (b *inbox) has(msg string, gen uint32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.msgs {
		if b.msgs[i] == msg && b.gens[i] == gen {
			return true
		}
	}
	return false
}

func TestConnectDeliversFramesAndSends(t *testing.T) {
	srv := newEchoServer(t)
	box := &inbox{}
	c := New(Config{
		URL:       srv.wsURL(),
		Header:    func() (http.Header, error) { return http.Header{"X-Test": []string{"signed"}}, nil },
		OnMessage: box.add,
	})
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.Connected())
	require.NoError(t, c.SendJSON(map[string]string{"cmd": "subscribe"}))

	assert.Eventually(t, func() bool { return box.has("hello", 1) }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return box.has(`{"cmd":"subscribe"}`, 1) }, 2*time.Second, 10*time.Millisecond)

	srv.mu.Lock()
	assert.Equal(t, "signed", srv.header)
	srv.mu.Unlock()
}

func TestSendBeforeConnectFails(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1"})
	assert.False(t, c.Connected())
	assert.Error(t, c.SendJSON("x"))
}

func TestReconnectReplaysOnConnect(t *testing.T) {
	srv := newEchoServer(t)
	box := &inbox{}

	var mu sync.Mutex
	var connects []uint32
	c := New(Config{
		URL:            srv.wsURL(),
		ReconnectDelay: 10 * time.Millisecond,
		OnConnect: func(gen uint32) error {
			mu.Lock()
			connects = append(connects, gen)
			mu.Unlock()
			return nil
		},
		OnMessage: box.add,
	})
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Connect(context.Background()))
	srv.kick <- struct{}{}

	assert.Eventually(t, func() bool { return srv.connections() >= 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return box.has("hello", 2) }, 3*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(connects), 2)
	assert.Equal(t, []uint32{1, 2}, connects[:2])
}

func TestCloseStopsSession(t *testing.T) {
	srv := newEchoServer(t)
	c := New(Config{URL: srv.wsURL(), ReconnectDelay: 10 * time.Millisecond})

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	select {
	case <-c.Done():
	default:
		t.Fatal("done not closed")
	}
	assert.False(t, c.Connected())
	assert.Error(t, c.Connect(context.Background()))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, srv.connections())
}
