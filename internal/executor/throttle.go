package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Throttled caps order submissions per venue through a shared limiter so
// every engine process on the account draws from one budget. Status reads
// are not throttled.
type Throttled struct {
	domain.VenueClient
	limiter domain.RateLimiter
	limit   int
	window  time.Duration
	logger  *slog.Logger
}

// NewThrottled wraps client. A limit of zero or less disables throttling.
func NewThrottled(client domain.VenueClient, limiter domain.RateLimiter, limit int, window time.Duration, logger *slog.Logger) *Throttled {
	return &Throttled{
		VenueClient: client,
		limiter:     limiter,
		limit:       limit,
		window:      window,
		logger:      logger,
	}
}

// Budgeted is a venue client whose submissions draw on a rate budget.
// Admit takes one submission from the budget and returns the client to
// place that order through without drawing again.
type Budgeted interface {
	Admit(ctx context.Context) (domain.VenueClient, error)
}

var _ Budgeted = (*Throttled)(nil)

// Admit implements Budgeted. When the limiter itself fails the order is
// admitted.
func (t *Throttled) Admit(ctx context.Context) (domain.VenueClient, error) {
	if t.limiter == nil || t.limit <= 0 {
		return t.VenueClient, nil
	}
	ok, err := t.limiter.Allow(ctx, "orders:"+string(t.Venue()), t.limit, t.window)
	switch {
	case err != nil:
		t.logger.Warn("executor: rate limiter unavailable",
			slog.String("venue", string(t.Venue())),
			slog.String("error", err.Error()),
		)
	case !ok:
		return nil, fmt.Errorf("executor: %s orders: %w", t.Venue(), domain.ErrRateLimited)
	}
	return t.VenueClient, nil
}

// PlaceOrder submits req if the venue budget allows it.
func (t *Throttled) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderAck, error) {
	client, err := t.Admit(ctx)
	if err != nil {
		return domain.OrderAck{}, err
	}
	return client.PlaceOrder(ctx, req)
}
