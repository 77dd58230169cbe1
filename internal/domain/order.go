package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType indicates the time-in-force policy.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Till-Cancelled
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill
	OrderTypeFAK OrderType = "FAK" // Fill-And-Kill (immediate-or-cancel)
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// Terminal reports whether no further fills can occur.
func (s OrderStatus) Terminal() bool {
	return s != OrderStatusPending
}

// OrderRequest is a marketable limit order for one leg.
type OrderRequest struct {
	ClientID   string
	Instrument Instrument
	Side       OrderSide
	Type       OrderType
	Price      decimal.Decimal // limit, fraction of payout
	Size       decimal.Decimal // contracts
}

// OrderAck is the venue's acknowledgement of a submission.
type OrderAck struct {
	OrderID string
	Status  OrderStatus
	// Filled quantities when the venue reports them synchronously.
	FilledSize  decimal.Decimal
	FilledPrice decimal.Decimal
}

// OrderFill is the result of an order status query.
type OrderFill struct {
	OrderID     string
	Status      OrderStatus
	FilledSize  decimal.Decimal
	FilledPrice decimal.Decimal // average fill price
	Fee         decimal.Decimal
	Reason      string
	UpdatedAt   time.Time
}

// VenueClient is the authenticated order surface of one venue.
type VenueClient interface {
	Venue() Venue
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	OrderStatus(ctx context.Context, orderID string) (OrderFill, error)
}

// ListingSource is a venue's raw instrument catalog.
type ListingSource interface {
	Venue() Venue
	Listings(ctx context.Context, leagues []string) ([]Listing, error)
}
