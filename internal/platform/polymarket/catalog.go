package polymarket

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

const catalogPageSize = 500

type marketLister interface {
	GetMarkets(ctx context.Context, q MarketQuery) ([]APIMarket, error)
}

// Catalog lists open game markets from Gamma and frames each as a
// domain.Listing. The first outcome token is the YES instrument.
type Catalog struct {
	api  marketLister
	tags map[string]string // league -> Gamma tag id
}

var _ domain.ListingSource = (*Catalog)(nil)

// NewCatalog creates a Catalog. tags maps a league (e.g. "nba") to the
// Gamma tag id that selects its games.
func NewCatalog(api marketLister, tags map[string]string) *Catalog {
	return &Catalog{api: api, tags: tags}
}

// Venue implements domain.ListingSource.
func (c *Catalog) Venue() domain.Venue { return domain.VenuePolymarket }

// Listings implements domain.ListingSource.
func (c *Catalog) Listings(ctx context.Context, leagues []string) ([]domain.Listing, error) {
	var out []domain.Listing
	for _, league := range leagues {
		league = strings.ToLower(league)
		tag, ok := c.tags[league]
		if !ok {
			continue
		}
		for offset := 0; ; offset += catalogPageSize {
			markets, err := c.api.GetMarkets(ctx, MarketQuery{TagID: tag, Limit: catalogPageSize, Offset: offset})
			if err != nil {
				return nil, fmt.Errorf("polymarket: catalog %s: %w", league, err)
			}
			for _, m := range markets {
				if l, ok := ListingFromMarket(league, m); ok {
					out = append(out, l)
				}
			}
			if len(markets) < catalogPageSize {
				break
			}
		}
	}
	return out, nil
}

// ListingFromMarket parses a moneyline slug such as "nba-lal-bos-2025-12-19"
// into a listing whose subject is the first team (LAL).
func ListingFromMarket(league string, m APIMarket) (domain.Listing, bool) {
	if m.Closed || !bool(m.Active) || len(m.ClobTokenIDs) != 2 {
		return domain.Listing{}, false
	}
	parts := strings.Split(strings.ToLower(m.Slug), "-")
	if len(parts) != 6 || parts[0] != league {
		return domain.Listing{}, false
	}
	date := strings.Join(parts[3:], "-")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return domain.Listing{}, false
	}
	teams := []string{strings.ToUpper(parts[1]), strings.ToUpper(parts[2])}

	yes := domain.Instrument{
		Venue:    domain.VenuePolymarket,
		ID:       m.ClobTokenIDs[0],
		MarketID: m.ConditionID,
		Outcome:  domain.OutcomeYes,
		Title:    m.Question,
		NegRisk:  m.NegRisk,
	}
	no := yes
	no.ID = m.ClobTokenIDs[1]
	no.Outcome = domain.OutcomeNo

	return domain.Listing{
		Venue:       domain.VenuePolymarket,
		MarketID:    m.ConditionID,
		League:      league,
		MarketType:  "moneyline",
		Date:        date,
		Teams:       teams,
		Subject:     teams[0],
		Description: m.Question,
		Yes:         yes,
		No:          no,
	}, true
}
