package polymarket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alanyoungcy/arbengine/internal/crypto"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClobRequiresCredentials(t *testing.T) {
	c := NewClobClient("http://127.0.0.1:1", testSigner(t), nil)
	_, err := c.GetOrder(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestDeriveThenPostOrder(t *testing.T) {
	var sawL1, sawL2 bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/derive-api-key":
			sawL1 = r.Header.Get("POLY_SIGNATURE") != "" && r.Header.Get("POLY_NONCE") == "0"
			_ = json.NewEncoder(w).Encode(map[string]string{"apiKey": "k", "secret": "c2VjcmV0", "passphrase": "p"})
		case "/order":
			sawL2 = r.Header.Get("POLY_API_KEY") == "k" && r.Header.Get("POLY_SIGNATURE") != ""
			_ = json.NewEncoder(w).Encode(APIOrderResult{Success: true, OrderID: "o1", Status: "live"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClobClient(srv.URL, testSigner(t), nil)
	require.NoError(t, c.DeriveAPIKey(context.Background()))
	assert.Equal(t, "k", c.APIKey())

	res, err := c.PostOrder(context.Background(), PostOrderRequest{OrderType: "FAK"})
	require.NoError(t, err)
	assert.Equal(t, "o1", res.OrderID)
	assert.True(t, sawL1)
	assert.True(t, sawL2)
}

func TestPostOrderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(APIOrderResult{Success: false, ErrorMsg: "not enough balance"})
	}))
	defer srv.Close()

	c := NewClobClient(srv.URL, testSigner(t), &crypto.HMACAuth{Key: "k", Secret: "c2VjcmV0", Passphrase: "p"})
	_, err := c.PostOrder(context.Background(), PostOrderRequest{})
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
}

func TestCheckHTTPStatus(t *testing.T) {
	assert.NoError(t, checkHTTPStatus(200, nil))
	assert.ErrorIs(t, checkHTTPStatus(404, nil), domain.ErrNotFound)
	assert.ErrorIs(t, checkHTTPStatus(401, nil), domain.ErrUnauthorized)
	assert.ErrorIs(t, checkHTTPStatus(429, nil), domain.ErrRateLimited)
	assert.ErrorIs(t, checkHTTPStatus(400, nil), domain.ErrOrderRejected)
}
