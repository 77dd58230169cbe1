package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/engine"
	"github.com/alanyoungcy/arbengine/internal/executor"
	"github.com/alanyoungcy/arbengine/internal/risk"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()
	cfg := config.Defaults()
	if mutate != nil {
		mutate(&cfg)
	}
	return New(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type fakePositionStore struct {
	snap domain.PositionSnapshot
	err  error
}

func (f *fakePositionStore) SaveSnapshot(context.Context, domain.PositionSnapshot) error { return nil }
func (f *fakePositionStore) Latest(context.Context) (domain.PositionSnapshot, error) {
	return f.snap, f.err
}

func TestRestorePositionsLoadsLatestSnapshot(t *testing.T) {
	a := testApp(t, nil)
	ledger := risk.NewLedger(nil)
	today := time.Now().UTC().Format(time.DateOnly)
	store := &fakePositionStore{snap: domain.PositionSnapshot{
		Day:      today,
		DailyPnL: decimal.NewFromInt(-3),
		Pairs: []domain.PairPosition{{
			PairID: "nba-lal-bos",
			LegA:   domain.LegHolding{Quantity: decimal.NewFromInt(10)},
			LegB:   domain.LegHolding{Quantity: decimal.NewFromInt(10)},
		}},
	}}

	require.NoError(t, a.restorePositions(context.Background(), store, ledger))
	assert.True(t, decimal.NewFromInt(-3).Equal(ledger.DailyPnL()))
	_, ok := ledger.Position("nba-lal-bos")
	assert.True(t, ok)
}

func TestRestorePositionsToleratesEmptyStore(t *testing.T) {
	a := testApp(t, nil)
	ledger := risk.NewLedger(nil)

	require.NoError(t, a.restorePositions(context.Background(), nil, ledger))
	require.NoError(t, a.restorePositions(context.Background(),
		&fakePositionStore{err: domain.ErrNotFound}, ledger))

	err := a.restorePositions(context.Background(), &fakePositionStore{err: errors.New("db down")}, ledger)
	assert.ErrorContains(t, err, "db down")
}

func TestRiskLimitsFromConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Risk.MaxPositionPerMarket = 25
	cfg.Risk.MaxDailyLoss = 12.5

	l := riskLimits(cfg.Risk)
	assert.True(t, decimal.NewFromInt(25).Equal(l.MaxPositionPerMarket))
	assert.True(t, decimal.RequireFromString("12.5").Equal(l.MaxDailyLoss))
	assert.Equal(t, cfg.Risk.MaxConsecutiveErrors, l.MaxConsecutiveErrors)
	assert.Equal(t, cfg.Risk.Cooldown.Duration, l.Cooldown)
}

func TestAuditWorthySkipsPeriodicReports(t *testing.T) {
	assert.False(t, auditWorthy(domain.Event{Type: domain.EventHeartbeat}))
	assert.False(t, auditWorthy(domain.Event{Type: domain.EventPositionSnapshot}))
	assert.True(t, auditWorthy(domain.Event{Type: domain.EventOneSidedFill}))
	assert.True(t, auditWorthy(domain.Event{Type: domain.EventOperatorAction}))
}

type stubStats struct{ stats engine.Stats }

func (s stubStats) Stats() engine.Stats { return s.stats }

type stubBreaker struct{ mode domain.BreakerMode }

func (s stubBreaker) State() domain.BreakerState { return domain.BreakerState{Mode: s.mode} }

func TestStatusFrame(t *testing.T) {
	frame := statusFrame(stubStats{engine.Stats{Generation: 3, Pairs: 12, Opportunities: 4}},
		stubBreaker{domain.BreakerCooldown}, true)()

	assert.Equal(t, "dry_run", frame["mode"])
	assert.Equal(t, "cooldown", frame["breaker"])
	assert.Equal(t, uint64(3), frame["generation"])
	assert.Equal(t, 12, frame["pairs"])
	assert.Equal(t, uint64(4), frame["opportunities"])

	frame = statusFrame(stubStats{}, stubBreaker{domain.BreakerClosed}, false)()
	assert.Equal(t, "live", frame["mode"])
}

type nopVenue struct{ venue domain.Venue }

func (v nopVenue) Venue() domain.Venue { return v.venue }
func (v nopVenue) PlaceOrder(context.Context, domain.OrderRequest) (domain.OrderAck, error) {
	return domain.OrderAck{}, nil
}
func (v nopVenue) OrderStatus(context.Context, string) (domain.OrderFill, error) {
	return domain.OrderFill{}, nil
}

type allowAll struct{}

func (allowAll) Allow(context.Context, string, int, time.Duration) (bool, error) { return true, nil }

func TestThrottleWrapsVenuesOnlyWithLimiter(t *testing.T) {
	venues := []domain.VenueClient{nopVenue{domain.VenueKalshi}, nopVenue{domain.VenuePolymarket}}

	a := testApp(t, nil)
	assert.Equal(t, venues, a.throttle(venues, nil))

	wrapped := a.throttle(venues, allowAll{})
	require.Len(t, wrapped, 2)
	for i, v := range wrapped {
		_, ok := v.(*executor.Throttled)
		assert.True(t, ok)
		assert.Equal(t, venues[i].Venue(), v.Venue())
	}

	off := testApp(t, func(c *config.Config) { c.Execution.OrderRateLimit = 0 })
	assert.Equal(t, venues, off.throttle(venues, allowAll{}))
}

type recordingArchiver struct {
	mu   sync.Mutex
	days []time.Time
}

func (r *recordingArchiver) ArchiveDay(_ context.Context, day time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.days = append(r.days, day)
	return 2, nil
}

func TestArchiveDayParsesLedgerDay(t *testing.T) {
	a := testApp(t, nil)
	arch := &recordingArchiver{}

	a.archiveDay(arch, "2026-03-14")
	a.archiveDay(arch, "not-a-day")

	require.Len(t, arch.days, 1)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), arch.days[0])
}

func TestLiveModeRefusesWhenLockHeld(t *testing.T) {
	a := testApp(t, func(c *config.Config) { c.Mode.DryRun = false })
	deps := &Dependencies{LockManager: heldLock{}}

	err := a.LiveMode(context.Background(), deps)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}

type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}
