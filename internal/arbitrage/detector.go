// Package arbitrage prices market pairs from the latest quotes and flags the
// ones whose combined cost sits below the guaranteed one-unit payout.
package arbitrage

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// QuoteReader returns an instrument's quote only while it is fresh.
type QuoteReader interface {
	Fresh(key domain.InstrumentKey, now time.Time) (domain.Quote, error)
}

// Config controls detection.
type Config struct {
	// Threshold is the minimum margin, as a fraction of payout (0.005 = 0.5%).
	Threshold decimal.Decimal
	// MaxQuoteAge bounds ValidUntil on emitted opportunities.
	MaxQuoteAge time.Duration
	// IncludeFees adds the Kalshi taker fee to each Kalshi leg.
	IncludeFees   bool
	KalshiFeeRate decimal.Decimal
}

// Pricing is the cost breakdown for one pair at one instant.
type Pricing struct {
	Pair   domain.MarketPair
	QuoteA domain.Quote
	QuoteB domain.Quote
	Fees   decimal.Decimal
	Cost   decimal.Decimal
	Margin decimal.Decimal
	Size   decimal.Decimal
}

// Gap is how far the margin is from the threshold. Positive means the pair
// crosses.
func (p Pricing) Gap(threshold decimal.Decimal) decimal.Decimal {
	return p.Margin.Sub(threshold)
}

// Detector is a pure function of the quotes it is handed. It keeps no memory
// of earlier opportunities.
type Detector struct {
	cfg Config
}

// NewDetector creates a Detector.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Threshold returns the configured margin threshold.
func (d *Detector) Threshold() decimal.Decimal {
	return d.cfg.Threshold
}

// Price computes the pair's cost from fresh quotes on both legs. A missing
// or stale leg returns the data error from quotes.
func (d *Detector) Price(pair domain.MarketPair, quotes QuoteReader, now time.Time) (Pricing, error) {
	qa, err := quotes.Fresh(pair.LegA.Key(), now)
	if err != nil {
		return Pricing{}, fmt.Errorf("arbitrage: leg %s: %w", pair.LegA.Key(), err)
	}
	qb, err := quotes.Fresh(pair.LegB.Key(), now)
	if err != nil {
		return Pricing{}, fmt.Errorf("arbitrage: leg %s: %w", pair.LegB.Key(), err)
	}

	fees := decimal.Zero
	if d.cfg.IncludeFees {
		fees = d.legFee(pair.LegA, qa.Price).Add(d.legFee(pair.LegB, qb.Price))
	}
	cost := qa.Price.Add(qb.Price).Add(fees)

	return Pricing{
		Pair:   pair,
		QuoteA: qa,
		QuoteB: qb,
		Fees:   fees,
		Cost:   cost,
		Margin: one.Sub(cost),
		Size:   decimal.Min(qa.Size, qb.Size),
	}, nil
}

// Evaluate returns an opportunity when both legs are fresh, the margin is at
// least the threshold and both legs show size.
func (d *Detector) Evaluate(pair domain.MarketPair, quotes QuoteReader, now time.Time) (domain.Opportunity, bool) {
	p, err := d.Price(pair, quotes, now)
	if err != nil {
		return domain.Opportunity{}, false
	}
	if p.Margin.LessThan(d.cfg.Threshold) || !p.Size.IsPositive() {
		return domain.Opportunity{}, false
	}

	oldest := p.QuoteA.ReceivedAt
	if p.QuoteB.ReceivedAt.Before(oldest) {
		oldest = p.QuoteB.ReceivedAt
	}
	return domain.Opportunity{
		ID:         uuid.NewString(),
		Pair:       pair,
		QuoteA:     p.QuoteA,
		QuoteB:     p.QuoteB,
		Fees:       p.Fees,
		Cost:       p.Cost,
		Margin:     p.Margin,
		Size:       p.Size,
		DetectedAt: now,
		ValidUntil: oldest.Add(d.cfg.MaxQuoteAge),
	}, true
}

func (d *Detector) legFee(in domain.Instrument, price decimal.Decimal) decimal.Decimal {
	if in.Venue != domain.VenueKalshi {
		return decimal.Zero
	}
	return KalshiFee(d.cfg.KalshiFeeRate, price)
}

// KalshiFee is the per-contract taker fee ceil(rate * P * (1-P) * 100) / 100.
func KalshiFee(rate, price decimal.Decimal) decimal.Decimal {
	if !rate.IsPositive() {
		return decimal.Zero
	}
	cents := rate.Mul(price).Mul(one.Sub(price)).Mul(decimal.NewFromInt(100)).Ceil()
	return cents.Div(decimal.NewFromInt(100))
}
