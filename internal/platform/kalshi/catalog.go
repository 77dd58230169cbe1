package kalshi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// marketLister is the subset of Client the catalog needs.
type marketLister interface {
	GetMarkets(ctx context.Context, q MarketQuery) ([]KalshiMarket, string, error)
}

// Catalog lists open game markets for the configured series and frames each
// as a domain.Listing.
type Catalog struct {
	api    marketLister
	series map[string]string // league -> series ticker
}

var _ domain.ListingSource = (*Catalog)(nil)

// NewCatalog creates a Catalog. series maps a league (e.g. "nba") to its
// Kalshi series ticker (e.g. "KXNBAGAME").
func NewCatalog(api marketLister, series map[string]string) *Catalog {
	return &Catalog{api: api, series: series}
}

// Venue implements domain.ListingSource.
func (c *Catalog) Venue() domain.Venue { return domain.VenueKalshi }

// Listings implements domain.ListingSource.
func (c *Catalog) Listings(ctx context.Context, leagues []string) ([]domain.Listing, error) {
	var out []domain.Listing
	for _, league := range leagues {
		series, ok := c.series[strings.ToLower(league)]
		if !ok {
			continue
		}
		cursor := ""
		for {
			markets, next, err := c.api.GetMarkets(ctx, MarketQuery{
				SeriesTicker: series,
				Status:       "open",
				Limit:        200,
				Cursor:       cursor,
			})
			if err != nil {
				return nil, fmt.Errorf("kalshi: catalog %s: %w", league, err)
			}
			for _, m := range markets {
				if l, ok := ListingFromMarket(league, m); ok {
					out = append(out, l)
				}
			}
			if next == "" || len(markets) == 0 {
				break
			}
			cursor = next
		}
	}
	return out, nil
}

// ListingFromMarket parses a game market ticker such as
// "KXNBAGAME-25DEC19LALBOS-LAL" into a listing whose subject is LAL.
func ListingFromMarket(league string, m KalshiMarket) (domain.Listing, bool) {
	parts := strings.Split(m.Ticker, "-")
	if len(parts) < 3 {
		return domain.Listing{}, false
	}
	event, subject := parts[1], parts[len(parts)-1]
	if len(event) < 9 {
		return domain.Listing{}, false
	}

	date, err := parseTickerDate(event[:7])
	if err != nil {
		return domain.Listing{}, false
	}
	teams := event[7:]
	if len(teams)%2 != 0 {
		return domain.Listing{}, false
	}
	half := len(teams) / 2

	yes := domain.Instrument{Venue: domain.VenueKalshi, ID: m.Ticker, MarketID: m.Ticker, Outcome: domain.OutcomeYes, Title: m.Title}
	no := yes
	no.Outcome = domain.OutcomeNo

	return domain.Listing{
		Venue:       domain.VenueKalshi,
		MarketID:    m.Ticker,
		League:      strings.ToLower(league),
		MarketType:  "moneyline",
		Date:        date,
		Teams:       []string{teams[:half], teams[half:]},
		Subject:     subject,
		Description: m.Title,
		Yes:         yes,
		No:          no,
	}, true
}

// parseTickerDate turns "25DEC19" into "2025-12-19".
func parseTickerDate(s string) (string, error) {
	if len(s) != 7 {
		return "", fmt.Errorf("kalshi: bad ticker date %q", s)
	}
	norm := s[:2] + s[2:3] + strings.ToLower(s[3:5]) + s[5:]
	t, err := time.Parse("06Jan02", norm)
	if err != nil {
		return "", fmt.Errorf("kalshi: bad ticker date %q: %w", s, err)
	}
	return t.Format("2006-01-02"), nil
}
