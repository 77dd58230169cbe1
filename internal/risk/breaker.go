// Package risk owns the mutable risk state: the circuit breaker that gates
// every execution and the ledger of positions and daily P&L behind it.
package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Limits are the breaker's trip thresholds. A zero decimal cap disables
// that check.
type Limits struct {
	MaxPositionPerMarket decimal.Decimal
	MaxTotalPosition     decimal.Decimal
	MaxDailyLoss         decimal.Decimal
	MaxConsecutiveErrors int
	Cooldown             time.Duration
}

// Grant permits one order set of Size units. Its reservation must be
// settled or released on the ledger.
type Grant struct {
	Reservation Reservation
	Size        decimal.Decimal
	Requested   decimal.Decimal
}

// Clipped reports whether the grant is smaller than the request.
func (g Grant) Clipped() bool {
	return g.Size.LessThan(g.Requested)
}

// Veto explains why the breaker refused an execution.
type Veto struct {
	Mode      domain.BreakerMode
	Reason    domain.TripReason
	Limit     decimal.Decimal
	Remaining time.Duration
}

func (v *Veto) Error() string {
	if !v.Limit.IsZero() {
		return fmt.Sprintf("risk: %s: %s limit %s", domain.ErrBreakerOpen, v.Reason, v.Limit)
	}
	return fmt.Sprintf("risk: %s: %s, cooldown %s remaining", domain.ErrBreakerOpen, v.Reason, v.Remaining.Round(time.Second))
}

// Is matches domain.ErrBreakerOpen always, and domain.ErrLimitExceeded when
// a position or loss limit caused the veto.
func (v *Veto) Is(target error) bool {
	switch target {
	case domain.ErrBreakerOpen:
		return true
	case domain.ErrLimitExceeded:
		return v.Reason == domain.TripMarketPosition || v.Reason == domain.TripTotalPosition || v.Reason == domain.TripDailyLoss
	}
	return false
}

// Breaker is a Closed/Open/Cooldown state machine. A trip moves Closed to
// Open and immediately on to Cooldown, which closes itself once the
// cooldown elapses. Every transition goes through the breaker mutex; the
// ledger is only ever locked after it.
type Breaker struct {
	mu     sync.Mutex
	limits Limits
	ledger *Ledger
	now    func() time.Time
	state  domain.BreakerState
	hooks  []func(domain.BreakerTransition)
	wake   chan struct{}
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithClock overrides the breaker clock.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// WithTransitionHook registers fn for every mode change. Hooks run outside
// the breaker lock, in transition order.
func WithTransitionHook(fn func(domain.BreakerTransition)) BreakerOption {
	return func(b *Breaker) { b.hooks = append(b.hooks, fn) }
}

// NewBreaker creates a closed breaker over ledger.
func NewBreaker(limits Limits, ledger *Ledger, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		limits: limits,
		ledger: ledger,
		now:    time.Now,
		state:  domain.BreakerState{Mode: domain.BreakerClosed},
		wake:   make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// OnTransition registers fn after construction.
func (b *Breaker) OnTransition(fn func(domain.BreakerTransition)) {
	b.mu.Lock()
	b.hooks = append(b.hooks, fn)
	b.mu.Unlock()
}

// Ledger returns the position ledger the breaker guards.
func (b *Breaker) Ledger() *Ledger {
	return b.ledger
}

// Authorize is consulted immediately before each submission. It either
// reserves cap headroom for up to size units or returns a *Veto. Partial
// headroom clips the grant; no headroom trips the breaker.
func (b *Breaker) Authorize(pairID string, size decimal.Decimal) (Grant, error) {
	b.mu.Lock()
	now := b.now()
	var fired []domain.BreakerTransition
	fired = b.refreshLocked(now, fired)

	if b.state.Mode != domain.BreakerClosed {
		veto := b.vetoLocked(now)
		b.unlockAndFire(fired)
		return Grant{}, veto
	}

	if b.dailyLossBreachedLocked() {
		fired = b.tripLocked(domain.TripDailyLoss, now, fired)
		veto := &Veto{Mode: b.state.Mode, Reason: domain.TripDailyLoss, Limit: b.limits.MaxDailyLoss, Remaining: b.state.CooldownUntil.Sub(now)}
		b.unlockAndFire(fired)
		return Grant{}, veto
	}

	res, reason, limit := b.ledger.reserveWithin(pairID, size, b.limits.MaxPositionPerMarket, b.limits.MaxTotalPosition)
	if reason != domain.TripNone {
		fired = b.tripLocked(reason, now, fired)
		veto := &Veto{Mode: b.state.Mode, Reason: reason, Limit: limit, Remaining: b.state.CooldownUntil.Sub(now)}
		b.unlockAndFire(fired)
		return Grant{}, veto
	}
	if res.ID == "" {
		b.unlockAndFire(fired)
		return Grant{}, fmt.Errorf("risk: size %s: %w", size, domain.ErrInvalidOrder)
	}

	b.unlockAndFire(fired)
	return Grant{Reservation: res, Size: res.Size, Requested: size}, nil
}

// RecordSuccess resets the consecutive-error counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.ConsecutiveErrors = 0
}

// RecordError counts one execution error and trips the breaker when the
// count reaches the limit. It returns the new count.
func (b *Breaker) RecordError() int {
	b.mu.Lock()
	now := b.now()
	var fired []domain.BreakerTransition
	fired = b.refreshLocked(now, fired)

	b.state.ConsecutiveErrors++
	count := b.state.ConsecutiveErrors
	if b.limits.MaxConsecutiveErrors > 0 && count >= b.limits.MaxConsecutiveErrors && b.state.Mode == domain.BreakerClosed {
		fired = b.tripLocked(domain.TripConsecutiveErrors, now, fired)
	}
	b.unlockAndFire(fired)
	return count
}

// CheckDailyLoss trips the breaker if today's realized loss exceeds the
// limit. Call it after settling fills.
func (b *Breaker) CheckDailyLoss() bool {
	b.mu.Lock()
	now := b.now()
	var fired []domain.BreakerTransition
	fired = b.refreshLocked(now, fired)

	breached := b.dailyLossBreachedLocked()
	if breached && b.state.Mode == domain.BreakerClosed {
		fired = b.tripLocked(domain.TripDailyLoss, now, fired)
	}
	b.unlockAndFire(fired)
	return breached
}

// Trip opens the breaker on operator request.
func (b *Breaker) Trip(reason domain.TripReason) {
	b.mu.Lock()
	now := b.now()
	var fired []domain.BreakerTransition
	fired = b.refreshLocked(now, fired)
	if b.state.Mode == domain.BreakerClosed {
		fired = b.tripLocked(reason, now, fired)
	}
	b.unlockAndFire(fired)
}

// Reset closes the breaker immediately and clears the error counter.
func (b *Breaker) Reset() {
	b.mu.Lock()
	var fired []domain.BreakerTransition
	if b.state.Mode != domain.BreakerClosed {
		fired = append(fired, domain.BreakerTransition{
			From:   b.state.Mode,
			To:     domain.BreakerClosed,
			Reason: domain.TripManual,
			At:     b.now(),
		})
	}
	b.state.Mode = domain.BreakerClosed
	b.state.Reason = domain.TripNone
	b.state.CooldownUntil = time.Time{}
	b.state.ConsecutiveErrors = 0
	b.unlockAndFire(fired)
}

// State returns the current state, closing an elapsed cooldown first.
func (b *Breaker) State() domain.BreakerState {
	b.mu.Lock()
	fired := b.refreshLocked(b.now(), nil)
	st := b.state
	b.unlockAndFire(fired)
	return st
}

// Run closes the breaker when each cooldown elapses so the transition is
// observed even when no execution is attempted. It returns when ctx ends.
func (b *Breaker) Run(ctx context.Context) error {
	for {
		st := b.State()

		var timerC <-chan time.Time
		var timer *time.Timer
		if st.Mode != domain.BreakerClosed {
			wait := st.CooldownUntil.Sub(b.now())
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case <-b.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (b *Breaker) vetoLocked(now time.Time) *Veto {
	v := &Veto{
		Mode:      b.state.Mode,
		Reason:    b.state.Reason,
		Remaining: b.state.CooldownUntil.Sub(now),
	}
	switch b.state.Reason {
	case domain.TripMarketPosition:
		v.Limit = b.limits.MaxPositionPerMarket
	case domain.TripTotalPosition:
		v.Limit = b.limits.MaxTotalPosition
	case domain.TripDailyLoss:
		v.Limit = b.limits.MaxDailyLoss
	}
	return v
}

func (b *Breaker) dailyLossBreachedLocked() bool {
	if !b.limits.MaxDailyLoss.IsPositive() {
		return false
	}
	return b.ledger.DailyPnL().Neg().GreaterThan(b.limits.MaxDailyLoss)
}

// tripLocked records Closed->Open->Cooldown.
func (b *Breaker) tripLocked(reason domain.TripReason, now time.Time, fired []domain.BreakerTransition) []domain.BreakerTransition {
	until := now.Add(b.limits.Cooldown)
	fired = append(fired,
		domain.BreakerTransition{From: domain.BreakerClosed, To: domain.BreakerOpen, Reason: reason, At: now, CooldownUntil: until},
		domain.BreakerTransition{From: domain.BreakerOpen, To: domain.BreakerCooldown, Reason: reason, At: now, CooldownUntil: until},
	)
	b.state.Mode = domain.BreakerCooldown
	b.state.Reason = reason
	b.state.TrippedAt = now
	b.state.CooldownUntil = until
	b.state.Trips++

	select {
	case b.wake <- struct{}{}:
	default:
	}
	return fired
}

// refreshLocked closes an elapsed cooldown. A breaker tripped on the error
// count re-closes with the count cleared so a single later error cannot
// re-trip it. A daily-loss trip stays in cooldown, re-armed without a
// transition, until the ledger rolls into a new UTC day or the loss falls
// back under the limit.
func (b *Breaker) refreshLocked(now time.Time, fired []domain.BreakerTransition) []domain.BreakerTransition {
	if b.state.Mode == domain.BreakerClosed || now.Before(b.state.CooldownUntil) {
		return fired
	}
	if b.state.Reason == domain.TripDailyLoss && b.dailyLossBreachedLocked() {
		b.state.CooldownUntil = now.Add(b.limits.Cooldown)
		return fired
	}
	fired = append(fired, domain.BreakerTransition{
		From:   b.state.Mode,
		To:     domain.BreakerClosed,
		Reason: b.state.Reason,
		At:     now,
	})
	if b.state.Reason == domain.TripConsecutiveErrors {
		b.state.ConsecutiveErrors = 0
	}
	b.state.Mode = domain.BreakerClosed
	b.state.Reason = domain.TripNone
	return fired
}

func (b *Breaker) unlockAndFire(fired []domain.BreakerTransition) {
	hooks := b.hooks
	b.mu.Unlock()
	for _, t := range fired {
		for _, h := range hooks {
			h(t)
		}
	}
}
