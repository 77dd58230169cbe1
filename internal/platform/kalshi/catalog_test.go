package kalshi

import (
	"context"
	"testing"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListingFromMarketParsesGameTicker(t *testing.T) {
	l, ok := ListingFromMarket("NBA", KalshiMarket{Ticker: "KXNBAGAME-25DEC19LALBOS-LAL", Title: "Lakers at Celtics"})
	require.True(t, ok)

	assert.Equal(t, "nba", l.League)
	assert.Equal(t, "2025-12-19", l.Date)
	assert.Equal(t, []string{"LAL", "BOS"}, l.Teams)
	assert.Equal(t, "LAL", l.Subject)
	assert.Equal(t, domain.OutcomeYes, l.Yes.Outcome)
	assert.Equal(t, domain.OutcomeNo, l.No.Outcome)
	assert.Equal(t, l.Yes.ID, l.No.ID)
}

func TestListingFromMarketRejectsOddTickers(t *testing.T) {
	for _, ticker := range []string{"KXNBAGAME", "KXNBAGAME-25XXX19LALBOS-LAL", "KXNBAGAME-25DEC19LALBO-LAL"} {
		_, ok := ListingFromMarket("nba", KalshiMarket{Ticker: ticker})
		assert.False(t, ok, ticker)
	}
}

type pagedLister struct {
	pages   [][]KalshiMarket
	queries []MarketQuery
}

func (p *pagedLister) GetMarkets(_ context.Context, q MarketQuery) ([]KalshiMarket, string, error) {
	p.queries = append(p.queries, q)
	i := len(p.queries) - 1
	next := ""
	if i+1 < len(p.pages) {
		next = "cursor"
	}
	return p.pages[i], next, nil
}

func TestCatalogFollowsCursor(t *testing.T) {
	api := &pagedLister{pages: [][]KalshiMarket{
		{{Ticker: "KXNBAGAME-25DEC19LALBOS-LAL"}},
		{{Ticker: "KXNBAGAME-25DEC19LALBOS-BOS"}},
	}}
	c := NewCatalog(api, map[string]string{"nba": "KXNBAGAME"})

	listings, err := c.Listings(context.Background(), []string{"nba", "nfl"})
	require.NoError(t, err)
	assert.Len(t, listings, 2)
	require.Len(t, api.queries, 2)
	assert.Equal(t, "KXNBAGAME", api.queries[0].SeriesTicker)
	assert.Equal(t, "cursor", api.queries[1].Cursor)
}
