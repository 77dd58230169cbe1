package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/arbengine/internal/crypto"
	"github.com/alanyoungcy/arbengine/internal/domain"
)

// ClobClient talks to the Polymarket CLOB REST API. Order entry and order
// queries are L2 requests (HMAC headers); key derivation is an L1 request
// signed with the wallet.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer

	mu   sync.RWMutex
	auth *crypto.HMACAuth
}

// NewClobClient creates a client for baseURL, e.g.
// "https://clob.polymarket.com". auth may be nil until DeriveAPIKey runs.
func NewClobClient(baseURL string, signer *crypto.Signer, auth *crypto.HMACAuth) *ClobClient {
	return &ClobClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		signer:     signer,
		auth:       auth,
	}
}

// APIKey returns the L2 API key, or "" before derivation. Orders carry it
// as their owner.
func (c *ClobClient) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.auth == nil {
		return ""
	}
	return c.auth.Key
}

// PostOrder submits a signed order.
func (c *ClobClient) PostOrder(ctx context.Context, req PostOrderRequest) (APIOrderResult, error) {
	var result APIOrderResult
	if err := c.l2(ctx, http.MethodPost, "/order", req, &result); err != nil {
		return APIOrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}
	if !result.Success {
		return result, fmt.Errorf("polymarket/clob: %w: %s", domain.ErrOrderRejected, result.ErrorMsg)
	}
	return result, nil
}

// GetOrder returns one order with its matched size.
func (c *ClobClient) GetOrder(ctx context.Context, orderID string) (APIOrder, error) {
	var order APIOrder
	if err := c.l2(ctx, http.MethodGet, "/data/order/"+orderID, nil, &order); err != nil {
		return APIOrder{}, fmt.Errorf("polymarket/clob: get order %s: %w", orderID, err)
	}
	if order.ID == "" {
		return APIOrder{}, fmt.Errorf("polymarket/clob: get order %s: %w", orderID, domain.ErrNotFound)
	}
	return order, nil
}

// DeriveAPIKey obtains L2 credentials for the wallet by signing a ClobAuth
// message (nonce 0) and installs them on the client.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) error {
	ts := time.Now().Unix()
	sig, err := c.signer.SignAuthMessage(ts, 0)
	if err != nil {
		return fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	headers := map[string]string{
		"POLY_ADDRESS":   c.signer.Address().Hex(),
		"POLY_SIGNATURE": sig,
		"POLY_TIMESTAMP": strconv.FormatInt(ts, 10),
		"POLY_NONCE":     "0",
	}
	var creds struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/derive-api-key", nil, headers, &creds); err != nil {
		return fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}

	c.mu.Lock()
	c.auth = &crypto.HMACAuth{Key: creds.APIKey, Secret: creds.Secret, Passphrase: creds.Passphrase}
	c.mu.Unlock()
	return nil
}

// l2 sends an HMAC-authenticated request.
func (c *ClobClient) l2(ctx context.Context, method, path string, body, out any) error {
	c.mu.RLock()
	auth := c.auth
	c.mu.RUnlock()
	if auth == nil {
		return fmt.Errorf("no api credentials: %w", domain.ErrUnauthorized)
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}
	headers := auth.L2Headers(c.signer.Address().Hex(), method, path, string(payload))
	return c.doRaw(ctx, method, path, payload, headers, out)
}

func (c *ClobClient) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}
	return c.doRaw(ctx, method, path, payload, headers, out)
}

// doRaw sends payload (may be nil) and decodes a 2xx JSON response into out.
func (c *ClobClient) doRaw(ctx context.Context, method, path string, payload []byte, headers map[string]string, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("http request: %w: %v", domain.ErrVenueTimeout, err)
		}
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, raw); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w: %v", domain.ErrMalformed, err)
	}
	return nil
}

// checkHTTPStatus maps non-2xx responses onto domain errors.
func checkHTTPStatus(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	var sentinel error
	switch code {
	case http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = domain.ErrUnauthorized
	case http.StatusTooManyRequests:
		sentinel = domain.ErrRateLimited
	case http.StatusBadRequest:
		sentinel = domain.ErrOrderRejected
	default:
		return fmt.Errorf("HTTP %d: %s", code, body)
	}
	return fmt.Errorf("%w: %s", sentinel, body)
}
