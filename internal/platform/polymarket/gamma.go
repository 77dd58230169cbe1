package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// GammaClient reads market metadata from the public Gamma API; it needs no
// credentials.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a client for baseURL, e.g.
// "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{baseURL: baseURL, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// MarketQuery selects one page of open markets under a tag.
type MarketQuery struct {
	TagID  string
	Limit  int
	Offset int
}

// GetMarkets returns one page of active, unclosed markets.
func (g *GammaClient) GetMarkets(ctx context.Context, q MarketQuery) ([]APIMarket, error) {
	v := url.Values{"closed": {"false"}, "active": {"true"}}
	if q.TagID != "" {
		v.Set("tag_id", q.TagID)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}

	var markets []APIMarket
	if err := g.get(ctx, "/markets?"+v.Encode(), &markets); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get markets: %w", err)
	}
	return markets, nil
}

func (g *GammaClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
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
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
