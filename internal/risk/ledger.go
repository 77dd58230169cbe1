package risk

import (
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reservation holds cap headroom for one order set between authorization
// and settlement.
type Reservation struct {
	ID     string
	PairID string
	Size   decimal.Decimal
}

// LegFill is what one leg actually filled.
type LegFill struct {
	Instrument domain.InstrumentKey
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Fee        decimal.Decimal
}

// Cost is Quantity * Price + Fee.
func (f LegFill) Cost() decimal.Decimal {
	return f.Quantity.Mul(f.Price).Add(f.Fee)
}

// Ledger is the single writer of positions and daily realized P&L. Every
// method takes the ledger mutex, so concurrent executions never race on a
// read-modify-write of exposure.
type Ledger struct {
	mu  sync.Mutex
	now func() time.Time

	pairs        map[string]*domain.PairPosition
	reservations map[string]Reservation
	reserved     map[string]decimal.Decimal // pairID -> reserved qty

	day      string
	dailyPnL decimal.Decimal
	onRoll   func(day string, pnl decimal.Decimal)
}

// NewLedger creates an empty ledger. now may be nil.
func NewLedger(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		now:          now,
		pairs:        make(map[string]*domain.PairPosition),
		reservations: make(map[string]Reservation),
		reserved:     make(map[string]decimal.Decimal),
		day:          dayOf(now()),
	}
}

// OnRollover registers a hook called (outside the lock) with the closed day
// and its realized P&L when the UTC day changes.
func (l *Ledger) OnRollover(fn func(day string, pnl decimal.Decimal)) {
	l.mu.Lock()
	l.onRoll = fn
	l.mu.Unlock()
}

// Restore loads holdings from a persisted snapshot. Daily P&L is kept only
// when the snapshot is from the current day.
func (l *Ledger) Restore(s domain.PositionSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pairs = make(map[string]*domain.PairPosition, len(s.Pairs))
	for _, p := range s.Pairs {
		p := p
		l.pairs[p.PairID] = &p
	}
	if s.Day == l.day {
		l.dailyPnL = s.DailyPnL
	}
}

// reserveWithin reserves up to size for pairID without letting the pair or
// the aggregate exceed its cap. A cap <= 0 is unlimited. It returns the
// granted size and, when nothing could be granted, the binding limit.
func (l *Ledger) reserveWithin(pairID string, size, marketCap, totalCap decimal.Decimal) (Reservation, domain.TripReason, decimal.Decimal) {
	roll := l.lockAndRoll()
	defer l.unlockAndNotify(roll)

	grant := size
	if marketCap.IsPositive() {
		headroom := marketCap.Sub(l.pairExposureLocked(pairID))
		if headroom.LessThan(grant) {
			grant = headroom
		}
		if !grant.IsPositive() {
			return Reservation{}, domain.TripMarketPosition, marketCap
		}
	}
	if totalCap.IsPositive() {
		headroom := totalCap.Sub(l.totalExposureLocked())
		if headroom.LessThan(grant) {
			grant = headroom
		}
		if !grant.IsPositive() {
			return Reservation{}, domain.TripTotalPosition, totalCap
		}
	}
	if !grant.IsPositive() {
		return Reservation{}, domain.TripNone, decimal.Zero
	}

	res := Reservation{ID: uuid.NewString(), PairID: pairID, Size: grant}
	l.reservations[res.ID] = res
	l.reserved[pairID] = l.reserved[pairID].Add(grant)
	return res, domain.TripNone, decimal.Zero
}

// Settle books the fills of an order set and frees its reservation. It
// returns the realized P&L: the hedged quantity times the payout margin,
// less all fees. One-sided quantity realizes nothing until it is unwound.
func (l *Ledger) Settle(res Reservation, a, b LegFill) decimal.Decimal {
	roll := l.lockAndRoll()
	defer l.unlockAndNotify(roll)

	l.releaseLocked(res)

	pos, ok := l.pairs[res.PairID]
	if !ok {
		pos = &domain.PairPosition{
			PairID: res.PairID,
			LegA:   domain.LegHolding{Instrument: a.Instrument, Quantity: decimal.Zero, Cost: decimal.Zero},
			LegB:   domain.LegHolding{Instrument: b.Instrument, Quantity: decimal.Zero, Cost: decimal.Zero},
		}
		l.pairs[res.PairID] = pos
	}
	if a.Quantity.IsPositive() {
		pos.LegA.Quantity = pos.LegA.Quantity.Add(a.Quantity)
		pos.LegA.Cost = pos.LegA.Cost.Add(a.Cost())
	}
	if b.Quantity.IsPositive() {
		pos.LegB.Quantity = pos.LegB.Quantity.Add(b.Quantity)
		pos.LegB.Cost = pos.LegB.Cost.Add(b.Cost())
	}
	pos.UpdatedAt = l.now()

	hedged := decimal.Min(a.Quantity, b.Quantity)
	pnl := decimal.Zero
	if hedged.IsPositive() {
		pnl = hedged.Mul(one.Sub(a.Price).Sub(b.Price))
	}
	pnl = pnl.Sub(a.Fee).Sub(b.Fee)
	l.dailyPnL = l.dailyPnL.Add(pnl)
	return pnl
}

// Release frees a reservation that produced no fills.
func (l *Ledger) Release(res Reservation) {
	roll := l.lockAndRoll()
	defer l.unlockAndNotify(roll)
	l.releaseLocked(res)
}

// AdjustPnL books operator-recorded P&L, e.g. from a manual unwind, and
// returns the new daily total.
func (l *Ledger) AdjustPnL(amount decimal.Decimal) decimal.Decimal {
	roll := l.lockAndRoll()
	defer l.unlockAndNotify(roll)
	l.dailyPnL = l.dailyPnL.Add(amount)
	return l.dailyPnL
}

// DailyPnL is today's realized P&L.
func (l *Ledger) DailyPnL() decimal.Decimal {
	roll := l.lockAndRoll()
	defer l.unlockAndNotify(roll)
	return l.dailyPnL
}

// Exposure returns the held plus reserved quantity on a pair and in total.
func (l *Ledger) Exposure(pairID string) (pair, total decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pairExposureLocked(pairID), l.totalExposureLocked()
}

// Position returns the held position on a pair.
func (l *Ledger) Position(pairID string) (domain.PairPosition, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pairs[pairID]
	if !ok {
		return domain.PairPosition{}, false
	}
	return *p, true
}

// Snapshot copies the ledger.
func (l *Ledger) Snapshot() domain.PositionSnapshot {
	roll := l.lockAndRoll()
	defer l.unlockAndNotify(roll)

	snap := domain.PositionSnapshot{
		Pairs:         make([]domain.PairPosition, 0, len(l.pairs)),
		TotalExposure: decimal.Zero,
		Reserved:      decimal.Zero,
		DailyPnL:      l.dailyPnL,
		Day:           l.day,
		TakenAt:       l.now(),
	}
	for _, p := range l.pairs {
		snap.Pairs = append(snap.Pairs, *p)
		snap.TotalExposure = snap.TotalExposure.Add(p.Exposure())
	}
	for _, r := range l.reserved {
		snap.Reserved = snap.Reserved.Add(r)
	}
	sort.Slice(snap.Pairs, func(i, j int) bool { return snap.Pairs[i].PairID < snap.Pairs[j].PairID })
	return snap
}

func (l *Ledger) releaseLocked(res Reservation) {
	if _, ok := l.reservations[res.ID]; !ok {
		return
	}
	delete(l.reservations, res.ID)
	left := l.reserved[res.PairID].Sub(res.Size)
	if left.IsPositive() {
		l.reserved[res.PairID] = left
	} else {
		delete(l.reserved, res.PairID)
	}
}

func (l *Ledger) pairExposureLocked(pairID string) decimal.Decimal {
	exp := l.reserved[pairID]
	if p, ok := l.pairs[pairID]; ok {
		exp = exp.Add(p.Exposure())
	}
	return exp
}

func (l *Ledger) totalExposureLocked() decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.pairs {
		total = total.Add(p.Exposure())
	}
	for _, r := range l.reserved {
		total = total.Add(r)
	}
	return total
}

type rollover struct {
	day string
	pnl decimal.Decimal
	fn  func(string, decimal.Decimal)
}

// lockAndRoll takes the lock and resets daily P&L if the UTC day changed.
func (l *Ledger) lockAndRoll() *rollover {
	l.mu.Lock()
	today := dayOf(l.now())
	if today == l.day {
		return nil
	}
	r := &rollover{day: l.day, pnl: l.dailyPnL, fn: l.onRoll}
	l.day = today
	l.dailyPnL = decimal.Zero
	return r
}

func (l *Ledger) unlockAndNotify(r *rollover) {
	l.mu.Unlock()
	if r != nil && r.fn != nil {
		r.fn(r.day, r.pnl)
	}
}

func dayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
