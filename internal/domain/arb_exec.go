package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ArbExecStatus is the execution state.
type ArbExecStatus string

const (
	ArbExecPending   ArbExecStatus = "pending"
	ArbExecSimulated ArbExecStatus = "simulated"
	ArbExecFilled    ArbExecStatus = "filled"
	ArbExecOneSided  ArbExecStatus = "one_sided"
	ArbExecMissed    ArbExecStatus = "missed"
	ArbExecFailed    ArbExecStatus = "failed"
)

// ArbExecution records one two-leg order set and its outcome.
type ArbExecution struct {
	ID            string
	OpportunityID string
	PairID        string
	ArbType       ArbType
	Legs          []ArbLeg
	Size          decimal.Decimal
	ExpectedCost  decimal.Decimal
	ExpectedEdge  decimal.Decimal
	RealizedPnL   decimal.Decimal
	Fees          decimal.Decimal
	Status        ArbExecStatus
	Error         string
	StartedAt     time.Time
	CompletedAt   *time.Time
}

// ArbLeg is one leg of an arb execution.
type ArbLeg struct {
	OrderID       string
	Instrument    Instrument
	Side          OrderSide
	ExpectedPrice decimal.Decimal
	Size          decimal.Decimal
	FilledPrice   decimal.Decimal
	FilledSize    decimal.Decimal
	Fee           decimal.Decimal
	Status        OrderStatus
	Error         string
}

// Filled reports whether the leg acquired any quantity.
func (l ArbLeg) Filled() bool {
	return l.FilledSize.IsPositive()
}
