package pairing

import "github.com/alanyoungcy/arbengine/internal/domain"

func kalshiListing(ticker, subject string, teams ...string) domain.Listing {
	return domain.Listing{
		Venue:       domain.VenueKalshi,
		MarketID:    ticker,
		League:      "nba",
		MarketType:  "moneyline",
		Date:        "2025-12-19",
		Teams:       teams,
		Subject:     subject,
		Description: ticker,
		Yes:         domain.Instrument{Venue: domain.VenueKalshi, ID: ticker, MarketID: ticker, Outcome: domain.OutcomeYes},
		No:          domain.Instrument{Venue: domain.VenueKalshi, ID: ticker, MarketID: ticker, Outcome: domain.OutcomeNo},
	}
}

func polyListing(condition, yesToken, noToken, subject string, teams ...string) domain.Listing {
	return domain.Listing{
		Venue:       domain.VenuePolymarket,
		MarketID:    condition,
		League:      "nba",
		MarketType:  "moneyline",
		Date:        "2025-12-19",
		Teams:       teams,
		Subject:     subject,
		Description: condition,
		Yes:         domain.Instrument{Venue: domain.VenuePolymarket, ID: yesToken, MarketID: condition, Outcome: domain.OutcomeYes},
		No:          domain.Instrument{Venue: domain.VenuePolymarket, ID: noToken, MarketID: condition, Outcome: domain.OutcomeNo},
	}
}

func nbaMapping() *TeamMapping {
	return NewTeamMapping(map[string]map[string]map[string]string{
		"nba": {
			"kalshi":     {"LAL": "lakers", "BOS": "celtics", "NYK": "knicks", "MIA": "heat"},
			"polymarket": {"lal": "lakers", "bos": "celtics", "nyk": "knicks", "mia": "heat"},
		},
	})
}
