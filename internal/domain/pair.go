package domain

// ArbType says which outcome is bought on which venue.
type ArbType string

const (
	ArbTypePolyYesKalshiNo ArbType = "poly_yes_kalshi_no"
	ArbTypeKalshiYesPolyNo ArbType = "kalshi_yes_poly_no"
	ArbTypeKalshiYesNo     ArbType = "kalshi_yes_no"
)

// MarketPair links two complementary instruments whose joint holding pays
// exactly one unit regardless of the event's outcome.
type MarketPair struct {
	ID          string
	MarketKey   string
	Description string
	ArbType     ArbType
	LegA        Instrument
	LegB        Instrument
}

// Legs returns both instruments in leg order.
func (p MarketPair) Legs() [2]Instrument {
	return [2]Instrument{p.LegA, p.LegB}
}

// Has reports whether the pair references the instrument key.
func (p MarketPair) Has(key InstrumentKey) bool {
	return p.LegA.Key() == key || p.LegB.Key() == key
}

// PairID derives the deterministic pair identifier from its legs.
func PairID(a, b Instrument) string {
	return string(a.Key()) + "|" + string(b.Key())
}
