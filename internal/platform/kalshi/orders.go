package kalshi

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// orderAPI is the subset of Client the adapter needs.
type orderAPI interface {
	PlaceOrder(ctx context.Context, order KalshiOrder) (KalshiOrderState, error)
	GetOrder(ctx context.Context, orderID string) (KalshiOrderState, error)
}

// OrderAdapter exposes Kalshi order entry as a domain.VenueClient. Orders
// are immediate-or-cancel limit orders priced in cents.
type OrderAdapter struct {
	api orderAPI
}

var _ domain.VenueClient = (*OrderAdapter)(nil)

// NewOrderAdapter wraps a Kalshi client.
func NewOrderAdapter(api orderAPI) *OrderAdapter {
	return &OrderAdapter{api: api}
}

// Venue implements domain.VenueClient.
func (a *OrderAdapter) Venue() domain.Venue { return domain.VenueKalshi }

// PlaceOrder implements domain.VenueClient.
func (a *OrderAdapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderAck, error) {
	order, err := toKalshiOrder(req)
	if err != nil {
		return domain.OrderAck{}, err
	}

	state, err := a.api.PlaceOrder(ctx, order)
	if err != nil {
		return domain.OrderAck{}, err
	}

	fill := toFill(state)
	return domain.OrderAck{
		OrderID:     state.OrderID,
		Status:      fill.Status,
		FilledSize:  fill.FilledSize,
		FilledPrice: fill.FilledPrice,
	}, nil
}

// OrderStatus implements domain.VenueClient.
func (a *OrderAdapter) OrderStatus(ctx context.Context, orderID string) (domain.OrderFill, error) {
	state, err := a.api.GetOrder(ctx, orderID)
	if err != nil {
		return domain.OrderFill{}, err
	}
	return toFill(state), nil
}

func toKalshiOrder(req domain.OrderRequest) (KalshiOrder, error) {
	if req.Instrument.Venue != domain.VenueKalshi {
		return KalshiOrder{}, fmt.Errorf("kalshi: instrument %s: %w", req.Instrument.Key(), domain.ErrInvalidOrder)
	}
	count := req.Size.Floor().IntPart()
	if count <= 0 {
		return KalshiOrder{}, fmt.Errorf("kalshi: size %s below one contract: %w", req.Size, domain.ErrInvalidOrder)
	}
	cents := req.Price.Mul(hundred).Ceil().IntPart()
	if cents < 1 || cents > 99 {
		return KalshiOrder{}, fmt.Errorf("kalshi: price %s outside 1-99c: %w", req.Price, domain.ErrInvalidOrder)
	}

	tif := "immediate_or_cancel"
	if req.Type == domain.OrderTypeFOK {
		tif = "fill_or_kill"
	}

	order := KalshiOrder{
		Ticker:        req.Instrument.ID,
		ClientOrderID: req.ClientID,
		Action:        "buy",
		Side:          string(req.Instrument.Outcome),
		Type:          "limit",
		Count:         count,
		TimeInForce:   tif,
	}
	if req.Side == domain.OrderSideSell {
		order.Action = "sell"
	}
	if req.Instrument.Outcome == domain.OutcomeYes {
		order.YesPrice = &cents
	} else {
		order.NoPrice = &cents
	}
	return order, nil
}

func toFill(s KalshiOrderState) domain.OrderFill {
	filled := s.Filled()
	fill := domain.OrderFill{
		OrderID:     s.OrderID,
		FilledSize:  decimal.NewFromInt(filled),
		FilledPrice: decimal.Zero,
		Fee:         decimal.NewFromInt(s.TakerFees).Div(hundred),
		UpdatedAt:   time.Now().UTC(),
	}
	if t, err := time.Parse(time.RFC3339, s.LastUpdateTime); err == nil {
		fill.UpdatedAt = t
	}
	if filled > 0 {
		cost := s.TakerFillCost + s.MakerFillCost
		if cost > 0 {
			fill.FilledPrice = decimal.NewFromInt(cost).Div(decimal.NewFromInt(filled)).Div(hundred)
		} else if s.Side == "no" {
			fill.FilledPrice = decimal.NewFromInt(s.NoPrice).Div(hundred)
		} else {
			fill.FilledPrice = decimal.NewFromInt(s.YesPrice).Div(hundred)
		}
	}

	switch s.Status {
	case "executed":
		fill.Status = domain.OrderStatusFilled
	case "canceled", "cancelled":
		if filled > 0 {
			fill.Status = domain.OrderStatusFilled
		} else {
			fill.Status = domain.OrderStatusCancelled
			fill.Reason = "not filled before cancel"
		}
	case "resting", "pending":
		fill.Status = domain.OrderStatusPending
	default:
		fill.Status = domain.OrderStatusRejected
		fill.Reason = "unknown status " + s.Status
	}
	return fill
}
