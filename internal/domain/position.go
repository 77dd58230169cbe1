package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LegHolding is the filled quantity and total cost held on one instrument.
type LegHolding struct {
	Instrument InstrumentKey
	Quantity   decimal.Decimal
	Cost       decimal.Decimal
}

// PairPosition is the running exposure on one market pair.
type PairPosition struct {
	PairID    string
	LegA      LegHolding
	LegB      LegHolding
	UpdatedAt time.Time
}

// Exposure is the larger of the two leg quantities.
func (p PairPosition) Exposure() decimal.Decimal {
	return decimal.Max(p.LegA.Quantity, p.LegB.Quantity)
}

// Unhedged is the quantity held on one leg without its complement.
func (p PairPosition) Unhedged() decimal.Decimal {
	return p.LegA.Quantity.Sub(p.LegB.Quantity).Abs()
}

// PositionSnapshot is a point-in-time copy of the ledger.
type PositionSnapshot struct {
	Pairs         []PairPosition
	TotalExposure decimal.Decimal
	Reserved      decimal.Decimal
	DailyPnL      decimal.Decimal
	Day           string
	TakenAt       time.Time
}
