package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteEvent is one inbound best-ask observation from a venue feed.
// Delivery is at-least-once and may be out of order.
type QuoteEvent struct {
	Venue        Venue
	InstrumentID string
	Outcome      Outcome
	Price        decimal.Decimal // fraction of payout, 0..1
	Size         decimal.Decimal // contracts available at Price
	Sequence     uint64
	Timestamp    time.Time
}

// Key returns the instrument key the event applies to.
func (e QuoteEvent) Key() InstrumentKey {
	return NewInstrumentKey(e.Venue, e.InstrumentID, e.Outcome)
}

// Quote is the current best executable price for one instrument. Quotes are
// replaced, never mutated.
type Quote struct {
	Instrument InstrumentKey
	Price      decimal.Decimal
	Size       decimal.Decimal
	Sequence   uint64
	Timestamp  time.Time
	ReceivedAt time.Time
}

// Age returns how long ago the quote was received.
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.ReceivedAt)
}
