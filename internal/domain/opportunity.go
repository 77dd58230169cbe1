package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Opportunity is a momentary crossing on a pair. It is never persisted.
type Opportunity struct {
	ID         string
	Pair       MarketPair
	QuoteA     Quote
	QuoteB     Quote
	Fees       decimal.Decimal
	Cost       decimal.Decimal // price(A) + price(B) + fees
	Margin     decimal.Decimal // 1 - Cost
	Size       decimal.Decimal // min(size(A), size(B))
	DetectedAt time.Time
	ValidUntil time.Time
}

// ExpectedProfit is Margin * Size.
func (o Opportunity) ExpectedProfit() decimal.Decimal {
	return o.Margin.Mul(o.Size)
}

// Expired reports whether either quote has gone stale.
func (o Opportunity) Expired(now time.Time) bool {
	return !now.Before(o.ValidUntil)
}
