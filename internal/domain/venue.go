package domain

import "strings"

// Venue identifies one of the two prediction-market exchanges.
type Venue string

const (
	VenueKalshi     Venue = "kalshi"
	VenuePolymarket Venue = "polymarket"
)

// Outcome is one side of a binary contract.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// Opposite returns the complementary outcome.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// InstrumentKey uniquely identifies an instrument across venues.
type InstrumentKey string

// NewInstrumentKey builds the canonical "venue:id:outcome" key.
func NewInstrumentKey(venue Venue, id string, outcome Outcome) InstrumentKey {
	return InstrumentKey(string(venue) + ":" + id + ":" + string(outcome))
}

// Venue returns the venue prefix of the key.
func (k InstrumentKey) Venue() Venue {
	v, _, _ := strings.Cut(string(k), ":")
	return Venue(v)
}

// Instrument is a tradable contract on one venue. For Kalshi the ID is the
// market ticker shared by both outcomes; for Polymarket it is the CLOB token.
type Instrument struct {
	Venue    Venue
	ID       string
	MarketID string
	Outcome  Outcome
	Title    string
	// NegRisk marks Polymarket tokens traded on the neg-risk exchange.
	NegRisk bool
}

// Key returns the instrument's canonical key.
func (i Instrument) Key() InstrumentKey {
	return NewInstrumentKey(i.Venue, i.ID, i.Outcome)
}

// Listing is one raw catalog entry from venue discovery, framed around a
// subject (usually a team) whose YES instrument pays if the subject wins.
type Listing struct {
	Venue       Venue
	MarketID    string
	League      string
	MarketType  string // moneyline, spread, total
	Date        string // YYYY-MM-DD of the event
	Teams       []string
	Subject     string
	Line        string
	Description string
	Yes         Instrument
	No          Instrument
}
