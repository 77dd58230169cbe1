package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/shopspring/decimal"
)

// legResult is the final state of one leg.
type legResult struct {
	fill domain.OrderFill
	err  error
}

// venueError reports whether the leg failed because of the venue rather
// than because the price simply moved away.
func (r legResult) venueError() bool {
	if r.err != nil {
		return true
	}
	return r.fill.Status == domain.OrderStatusRejected || r.fill.Status == domain.OrderStatusFailed
}

// placeAndWait submits one leg and polls its status until it is terminal or
// the timeout passes. An order still pending at the deadline is reported
// with whatever it has filled and domain.ErrVenueTimeout.
func placeAndWait(ctx context.Context, client domain.VenueClient, req domain.OrderRequest, timeout, poll time.Duration) legResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ack, err := client.PlaceOrder(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", domain.ErrVenueTimeout, err)
		}
		return legResult{fill: emptyFill("", domain.OrderStatusFailed), err: err}
	}
	if ack.OrderID == "" && !ack.Status.Terminal() {
		return legResult{fill: emptyFill("", domain.OrderStatusFailed), err: fmt.Errorf("%w: no order id", domain.ErrMalformed)}
	}

	last := domain.OrderFill{
		OrderID:     ack.OrderID,
		Status:      ack.Status,
		FilledSize:  ack.FilledSize,
		FilledPrice: ack.FilledPrice,
		Fee:         decimal.Zero,
	}
	if ack.Status.Terminal() {
		// One status read picks up fees; the ack stands if it fails.
		if ack.OrderID != "" {
			if fill, err := client.OrderStatus(ctx, ack.OrderID); err == nil && fill.Status.Terminal() {
				return legResult{fill: fill}
			}
		}
		return legResult{fill: last}
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		fill, err := client.OrderStatus(ctx, ack.OrderID)
		switch {
		case err == nil:
			last = fill
			if fill.Status.Terminal() {
				return legResult{fill: fill}
			}
		case errors.Is(err, domain.ErrNotFound):
			// The order may not be visible yet.
		case ctx.Err() == nil:
			return legResult{fill: last, err: err}
		}

		select {
		case <-ctx.Done():
			return legResult{fill: last, err: fmt.Errorf("order %s: %w", ack.OrderID, domain.ErrVenueTimeout)}
		case <-ticker.C:
		}
	}
}

func emptyFill(orderID string, status domain.OrderStatus) domain.OrderFill {
	return domain.OrderFill{
		OrderID:     orderID,
		Status:      status,
		FilledSize:  decimal.Zero,
		FilledPrice: decimal.Zero,
		Fee:         decimal.Zero,
	}
}
