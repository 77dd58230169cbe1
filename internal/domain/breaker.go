package domain

import "time"

// BreakerMode is the circuit breaker's state.
type BreakerMode string

const (
	BreakerClosed   BreakerMode = "closed"
	BreakerOpen     BreakerMode = "open"
	BreakerCooldown BreakerMode = "cooldown"
)

// TripReason names the limit that opened the breaker.
type TripReason string

const (
	TripNone              TripReason = ""
	TripMarketPosition    TripReason = "max_position_per_market"
	TripTotalPosition     TripReason = "max_total_position"
	TripDailyLoss         TripReason = "max_daily_loss"
	TripConsecutiveErrors TripReason = "max_consecutive_errors"
	TripManual            TripReason = "manual"
)

// BreakerState is a read-only view of the breaker.
type BreakerState struct {
	Mode              BreakerMode
	Reason            TripReason
	ConsecutiveErrors int
	TrippedAt         time.Time
	CooldownUntil     time.Time
	Trips             int
}

// BreakerTransition is one mode change, in the order it happened.
type BreakerTransition struct {
	From          BreakerMode
	To            BreakerMode
	Reason        TripReason
	At            time.Time
	CooldownUntil time.Time
}
