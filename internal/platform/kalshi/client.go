package kalshi

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"golang.org/x/time/rate"
)

// Client is the signed REST client for the Kalshi trade API. Every call
// waits on a shared token bucket so catalog paging and order polling stay
// under the account's request budget.
type Client struct {
	baseURL    string
	basePath   string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client for baseURL, e.g.
// "https://api.elections.kalshi.com/trade-api/v2". requestsPerSecond <= 0
// disables pacing.
func NewClient(baseURL, apiKeyID string, requestsPerSecond float64) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKeyID:   apiKeyID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Inf, 0),
	}
	if u, err := url.Parse(baseURL); err == nil {
		c.basePath = strings.TrimRight(u.Path, "/")
	}
	if requestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return c
}

// SetPrivateKey installs the parsed API key.
func (c *Client) SetPrivateKey(key *rsa.PrivateKey) {
	c.privateKey = key
}

// MarketQuery filters GetMarkets.
type MarketQuery struct {
	SeriesTicker string
	Status       string
	Limit        int
	Cursor       string
}

func (q MarketQuery) values() url.Values {
	v := url.Values{}
	for k, s := range map[string]string{
		"series_ticker": q.SeriesTicker,
		"status":        q.Status,
		"cursor":        q.Cursor,
	} {
		if s != "" {
			v.Set(k, s)
		}
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// GetMarkets returns one page of markets and the cursor for the next page.
func (c *Client) GetMarkets(ctx context.Context, q MarketQuery) ([]KalshiMarket, string, error) {
	path := "/markets"
	if v := q.values(); len(v) > 0 {
		path += "?" + v.Encode()
	}

	var page struct {
		Markets []KalshiMarket `json:"markets"`
		Cursor  string         `json:"cursor"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, "", fmt.Errorf("kalshi: get markets: %w", err)
	}
	return page.Markets, page.Cursor, nil
}

// PlaceOrder submits an order and returns its initial state.
func (c *Client) PlaceOrder(ctx context.Context, order KalshiOrder) (KalshiOrderState, error) {
	var resp KalshiOrderResponse
	if err := c.call(ctx, http.MethodPost, "/portfolio/orders", order, &resp); err != nil {
		return KalshiOrderState{}, fmt.Errorf("kalshi: place order: %w", err)
	}
	if resp.Order.OrderID == "" {
		return KalshiOrderState{}, fmt.Errorf("kalshi: order response without id: %w", domain.ErrMalformed)
	}
	return resp.Order, nil
}

// GetOrder fetches the current state of an order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (KalshiOrderState, error) {
	var resp KalshiOrderResponse
	if err := c.call(ctx, http.MethodGet, "/portfolio/orders/"+url.PathEscape(orderID), nil, &resp); err != nil {
		return KalshiOrderState{}, fmt.Errorf("kalshi: get order %s: %w", orderID, err)
	}
	return resp.Order, nil
}

// call paces, signs and sends one request and decodes a 2xx body into out.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate wait: %w", err)
	}

	signPath, _, _ := strings.Cut(c.basePath+path, "?")
	auth, err := c.AuthHeaders(method, signPath)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header = auth
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("http request: %w: %w", domain.ErrVenueTimeout, err)
		}
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := c.checkStatus(resp.StatusCode, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w: %w", domain.ErrMalformed, err)
	}
	return nil
}

// checkStatus maps non-2xx responses onto domain errors, keeping Kalshi's
// error code and message for the log.
func (c *Client) checkStatus(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}

	var apiErr KalshiErrorResponse
	_ = json.Unmarshal(body, &apiErr)
	msg, apiCode := apiErr.text()

	var sentinel error
	switch code {
	case http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = domain.ErrUnauthorized
	case http.StatusTooManyRequests:
		sentinel = domain.ErrRateLimited
	case http.StatusBadRequest, http.StatusConflict:
		sentinel = domain.ErrOrderRejected
	default:
		return fmt.Errorf("kalshi: HTTP %d: %s (%s)", code, msg, apiCode)
	}
	return fmt.Errorf("kalshi: %s (%s): %w", msg, apiCode, sentinel)
}
