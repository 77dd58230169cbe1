package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

type instrumentView struct {
	Key      string `json:"key"`
	Venue    string `json:"venue"`
	ID       string `json:"id"`
	MarketID string `json:"market_id,omitempty"`
	Outcome  string `json:"outcome"`
	Title    string `json:"title,omitempty"`
}

func toInstrumentView(i domain.Instrument) instrumentView {
	return instrumentView{
		Key:      string(i.Key()),
		Venue:    string(i.Venue),
		ID:       i.ID,
		MarketID: i.MarketID,
		Outcome:  string(i.Outcome),
		Title:    i.Title,
	}
}

type pairView struct {
	ID          string         `json:"id"`
	MarketKey   string         `json:"market_key"`
	Description string         `json:"description,omitempty"`
	ArbType     string         `json:"arb_type"`
	LegA        instrumentView `json:"leg_a"`
	LegB        instrumentView `json:"leg_b"`
}

func toPairView(p domain.MarketPair) pairView {
	return pairView{
		ID:          p.ID,
		MarketKey:   p.MarketKey,
		Description: p.Description,
		ArbType:     string(p.ArbType),
		LegA:        toInstrumentView(p.LegA),
		LegB:        toInstrumentView(p.LegB),
	}
}

type holdingView struct {
	Instrument string          `json:"instrument"`
	Quantity   decimal.Decimal `json:"quantity"`
	Cost       decimal.Decimal `json:"cost"`
}

type pairPositionView struct {
	PairID    string          `json:"pair_id"`
	LegA      holdingView     `json:"leg_a"`
	LegB      holdingView     `json:"leg_b"`
	Exposure  decimal.Decimal `json:"exposure"`
	Unhedged  decimal.Decimal `json:"unhedged"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type positionsView struct {
	Day           string             `json:"day"`
	TotalExposure decimal.Decimal    `json:"total_exposure"`
	Reserved      decimal.Decimal    `json:"reserved"`
	DailyPnL      decimal.Decimal    `json:"daily_pnl"`
	TakenAt       time.Time          `json:"taken_at"`
	Pairs         []pairPositionView `json:"pairs"`
}

func toPositionsView(s domain.PositionSnapshot) positionsView {
	v := positionsView{
		Day:           s.Day,
		TotalExposure: s.TotalExposure,
		Reserved:      s.Reserved,
		DailyPnL:      s.DailyPnL,
		TakenAt:       s.TakenAt,
		Pairs:         make([]pairPositionView, 0, len(s.Pairs)),
	}
	for _, p := range s.Pairs {
		v.Pairs = append(v.Pairs, pairPositionView{
			PairID:    p.PairID,
			LegA:      holdingView{Instrument: string(p.LegA.Instrument), Quantity: p.LegA.Quantity, Cost: p.LegA.Cost},
			LegB:      holdingView{Instrument: string(p.LegB.Instrument), Quantity: p.LegB.Quantity, Cost: p.LegB.Cost},
			Exposure:  p.Exposure(),
			Unhedged:  p.Unhedged(),
			UpdatedAt: p.UpdatedAt,
		})
	}
	return v
}

type legView struct {
	OrderID       string          `json:"order_id,omitempty"`
	Instrument    string          `json:"instrument"`
	Side          string          `json:"side"`
	ExpectedPrice decimal.Decimal `json:"expected_price"`
	Size          decimal.Decimal `json:"size"`
	FilledPrice   decimal.Decimal `json:"filled_price"`
	FilledSize    decimal.Decimal `json:"filled_size"`
	Fee           decimal.Decimal `json:"fee"`
	Status        string          `json:"status"`
	Error         string          `json:"error,omitempty"`
}

type executionView struct {
	ID            string          `json:"id"`
	OpportunityID string          `json:"opportunity_id"`
	PairID        string          `json:"pair_id"`
	ArbType       string          `json:"arb_type"`
	Size          decimal.Decimal `json:"size"`
	ExpectedCost  decimal.Decimal `json:"expected_cost"`
	ExpectedEdge  decimal.Decimal `json:"expected_edge"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	Fees          decimal.Decimal `json:"fees"`
	Status        string          `json:"status"`
	Error         string          `json:"error,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	Legs          []legView       `json:"legs"`
}

func toExecutionView(e domain.ArbExecution) executionView {
	v := executionView{
		ID:            e.ID,
		OpportunityID: e.OpportunityID,
		PairID:        e.PairID,
		ArbType:       string(e.ArbType),
		Size:          e.Size,
		ExpectedCost:  e.ExpectedCost,
		ExpectedEdge:  e.ExpectedEdge,
		RealizedPnL:   e.RealizedPnL,
		Fees:          e.Fees,
		Status:        string(e.Status),
		Error:         e.Error,
		StartedAt:     e.StartedAt,
		CompletedAt:   e.CompletedAt,
		Legs:          make([]legView, 0, len(e.Legs)),
	}
	for _, l := range e.Legs {
		v.Legs = append(v.Legs, legView{
			OrderID:       l.OrderID,
			Instrument:    string(l.Instrument.Key()),
			Side:          string(l.Side),
			ExpectedPrice: l.ExpectedPrice,
			Size:          l.Size,
			FilledPrice:   l.FilledPrice,
			FilledSize:    l.FilledSize,
			Fee:           l.Fee,
			Status:        string(l.Status),
			Error:         l.Error,
		})
	}
	return v
}

type breakerView struct {
	Mode              string     `json:"mode"`
	Reason            string     `json:"reason,omitempty"`
	ConsecutiveErrors int        `json:"consecutive_errors"`
	Trips             int        `json:"trips"`
	TrippedAt         *time.Time `json:"tripped_at,omitempty"`
	CooldownUntil     *time.Time `json:"cooldown_until,omitempty"`
}

func toBreakerView(s domain.BreakerState) breakerView {
	v := breakerView{
		Mode:              string(s.Mode),
		Reason:            string(s.Reason),
		ConsecutiveErrors: s.ConsecutiveErrors,
		Trips:             s.Trips,
	}
	if !s.TrippedAt.IsZero() {
		t := s.TrippedAt
		v.TrippedAt = &t
	}
	if !s.CooldownUntil.IsZero() {
		t := s.CooldownUntil
		v.CooldownUntil = &t
	}
	return v
}
