package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedRequestCarriesVerifiableSignature(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts := r.Header.Get("KALSHI-ACCESS-TIMESTAMP")
		sig, err := base64.StdEncoding.DecodeString(r.Header.Get("KALSHI-ACCESS-SIGNATURE"))
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		hash := sha256.Sum256([]byte(ts + r.Method + r.URL.Path))
		if err := rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, hash[:], sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"order":{"order_id":"abc","status":"resting"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/trade-api/v2", "key-id", 0)
	c.SetPrivateKey(key)

	state, err := c.GetOrder(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", state.OrderID)
}

func TestCheckStatusMapsDomainErrors(t *testing.T) {
	c := NewClient("http://unused", "k", 0)
	cases := map[int]error{
		http.StatusNotFound:        domain.ErrNotFound,
		http.StatusUnauthorized:    domain.ErrUnauthorized,
		http.StatusTooManyRequests: domain.ErrRateLimited,
		http.StatusBadRequest:      domain.ErrOrderRejected,
	}
	for code, want := range cases {
		err := c.checkStatus(code, []byte(`{"error":{"code":"x","message":"y"}}`))
		assert.ErrorIs(t, err, want, "status %d", code)
	}
	assert.NoError(t, c.checkStatus(http.StatusOK, nil))
}

func TestUnsignedClientFailsClosed(t *testing.T) {
	c := NewClient("http://unused", "k", 0)
	_, err := c.GetOrder(context.Background(), "abc")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestParseBookMessage(t *testing.T) {
	u, ok := parseBookMessage([]byte(`{"type":"orderbook_snapshot","sid":1,"seq":4,"msg":{"market_ticker":"KX","yes":[[40,10]],"no":[[58,5]]}}`), 2)
	require.True(t, ok)
	require.NotNil(t, u.Snapshot)
	assert.Equal(t, uint32(2), u.Conn)
	assert.Equal(t, uint64(4), u.Seq)
	assert.Equal(t, int64(58), u.Snapshot.No[0].Price())

	u, ok = parseBookMessage([]byte(`{"type":"orderbook_delta","sid":1,"seq":5,"msg":{"market_ticker":"KX","price":40,"delta":-3,"side":"yes"}}`), 2)
	require.True(t, ok)
	require.NotNil(t, u.Delta)
	assert.Equal(t, int64(-3), u.Delta.Delta)

	_, ok = parseBookMessage([]byte(`{"type":"subscribed"}`), 2)
	assert.False(t, ok)
}

func TestSignHeadersUsesMillisecondTimestamp(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	now := time.UnixMilli(1_700_000_000_123)

	h, err := signHeaders(key, "key-id", http.MethodGet, "/trade-api/ws/v2", now)
	require.NoError(t, err)
	assert.Equal(t, "key-id", h.Get("KALSHI-ACCESS-KEY"))
	assert.Equal(t, "1700000000123", h.Get("KALSHI-ACCESS-TIMESTAMP"))

	sig, err := base64.StdEncoding.DecodeString(h.Get("KALSHI-ACCESS-SIGNATURE"))
	require.NoError(t, err)
	digest := sha256.Sum256([]byte("1700000000123GET/trade-api/ws/v2"))
	assert.NoError(t, rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, digest[:], sig,
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}))
}
