// Package engine drives the trading loop: venue feeds into the normalizer,
// detection on every applied quote, execution off the hot path, and the
// periodic heartbeat, discovery refresh and position snapshot.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/arbengine/internal/arbitrage"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/feed"
	"github.com/alanyoungcy/arbengine/internal/pairing"
	"golang.org/x/sync/errgroup"
)

// Feed is one venue's quote stream.
type Feed interface {
	Venue() domain.Venue
	Track(ctx context.Context, instruments []domain.Instrument) error
	Run(ctx context.Context) error
}

// Discovery produces the pair set and installs it in the table.
type Discovery interface {
	Discover(ctx context.Context, force bool) (pairing.Outcome, error)
}

// Executor runs permitted opportunities.
type Executor interface {
	Execute(ctx context.Context, opp domain.Opportunity) (domain.ArbExecution, error)
	InFlight(pairID string) bool
}

// Breaker is the risk gate as seen by the loop.
type Breaker interface {
	Run(ctx context.Context) error
	State() domain.BreakerState
}

// Positions exposes ledger snapshots.
type Positions interface {
	Snapshot() domain.PositionSnapshot
}

// QuoteObserver counts normalizer outcomes.
type QuoteObserver interface {
	QuoteApplied(venue domain.Venue, applied bool)
}

// Config controls the loop.
type Config struct {
	// QueueSize bounds each venue's inbound quote queue. A full queue
	// applies backpressure to that venue's feed only.
	QueueSize         int
	HeartbeatInterval time.Duration
	RefreshInterval   time.Duration
	SnapshotInterval  time.Duration
	// ForceDiscovery skips the discovery cache on the first pass.
	ForceDiscovery bool
	// QuoteRetention is how long an untouched quote is kept before pruning.
	QuoteRetention time.Duration
}

// Option configures optional collaborators.
type Option func(*Engine)

// WithQuoteCache mirrors applied quotes into cache for dashboards.
func WithQuoteCache(cache domain.QuoteCache) Option {
	return func(e *Engine) { e.quoteCache = cache }
}

// WithPositionStore persists position snapshots.
func WithPositionStore(store domain.PositionStore) Option {
	return func(e *Engine) { e.positionStore = store }
}

// WithQuoteObserver reports every normalizer outcome.
func WithQuoteObserver(obs QuoteObserver) Option {
	return func(e *Engine) { e.observer = obs }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Stats are cumulative loop counters.
type Stats struct {
	Generation      uint64
	Pairs           int
	Quotes          map[domain.Venue]int
	QuotesApplied   uint64
	QuotesDiscarded uint64
	Opportunities   uint64
	Executions      uint64
}

// Engine is the runtime loop.
type Engine struct {
	cfg       Config
	table     *pairing.Table
	discovery Discovery
	quotes    *feed.Normalizer
	detector  *arbitrage.Detector
	exec      Executor
	breaker   Breaker
	positions Positions
	events    domain.EventPublisher
	logger    *slog.Logger
	now       func() time.Time

	quoteCache    domain.QuoteCache
	positionStore domain.PositionStore
	observer      QuoteObserver

	mu     sync.Mutex
	feeds  []Feed
	queues map[domain.Venue]chan domain.QuoteEvent
	// lastOpp holds the cost last announced per pair so a standing
	// crossing is announced once, not on every tick.
	lastOpp   map[string]string
	heartbeat Heartbeat

	mirror  chan domain.Quote
	done    chan struct{}
	running atomic.Bool
	execWG  sync.WaitGroup

	applied       atomic.Uint64
	discarded     atomic.Uint64
	opportunities atomic.Uint64
	executions    atomic.Uint64
}

// New creates an Engine. Feeds are attached with AddFeed before Run.
func New(
	cfg Config,
	table *pairing.Table,
	discovery Discovery,
	quotes *feed.Normalizer,
	detector *arbitrage.Detector,
	exec Executor,
	breaker Breaker,
	positions Positions,
	events domain.EventPublisher,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 60 * time.Second
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = 30 * time.Second
	}
	if cfg.QuoteRetention <= 0 {
		cfg.QuoteRetention = time.Hour
	}
	e := &Engine{
		cfg:       cfg,
		table:     table,
		discovery: discovery,
		quotes:    quotes,
		detector:  detector,
		exec:      exec,
		breaker:   breaker,
		positions: positions,
		events:    events,
		logger:    logger.With(slog.String("component", "engine")),
		now:       time.Now,
		queues:    make(map[domain.Venue]chan domain.QuoteEvent),
		lastOpp:   make(map[string]string),
		mirror:    make(chan domain.Quote, 1024),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sink returns the entry point for venue's quote events. It blocks while
// the venue's queue is full and drops events once the engine has stopped.
func (e *Engine) Sink(venue domain.Venue) feed.Sink {
	ch := e.queue(venue)
	return func(ev domain.QuoteEvent) {
		select {
		case ch <- ev:
		case <-e.done:
		}
	}
}

// AddFeed attaches a feed. Its sink should come from Sink.
func (e *Engine) AddFeed(f Feed) {
	e.queue(f.Venue())
	e.mu.Lock()
	e.feeds = append(e.feeds, f)
	e.mu.Unlock()
}

func (e *Engine) queue(venue domain.Venue) chan domain.QuoteEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.queues[venue]
	if !ok {
		ch = make(chan domain.QuoteEvent, e.cfg.QueueSize)
		e.queues[venue] = ch
	}
	return ch
}

// Run loads the pair table, starts every feed and loop, and blocks until
// ctx is cancelled or a feed fails. Executions already in flight are
// allowed to finish before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine: already running")
	}
	defer close(e.done)

	if err := e.refresh(ctx, e.cfg.ForceDiscovery); err != nil {
		e.logger.Warn("engine: initial discovery failed, will retry", slog.String("error", err.Error()))
	}

	e.mu.Lock()
	feeds := append([]Feed(nil), e.feeds...)
	queues := make(map[domain.Venue]chan domain.QuoteEvent, len(e.queues))
	for v, ch := range e.queues {
		queues[v] = ch
	}
	e.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range feeds {
		g.Go(func() error {
			if err := f.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("engine: %s feed: %w", f.Venue(), err)
			}
			return nil
		})
	}
	for venue, ch := range queues {
		g.Go(func() error {
			e.ingest(gctx, venue, ch)
			return nil
		})
	}
	g.Go(func() error {
		if err := e.breaker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("engine: breaker: %w", err)
		}
		return nil
	})
	g.Go(func() error { e.every(gctx, e.cfg.HeartbeatInterval, e.beat); return nil })
	g.Go(func() error { e.every(gctx, e.cfg.SnapshotInterval, e.savePositions); return nil })
	if e.cfg.RefreshInterval > 0 {
		g.Go(func() error {
			e.every(gctx, e.cfg.RefreshInterval, func(ctx context.Context) {
				if err := e.refresh(ctx, true); err != nil {
					e.logger.Warn("engine: discovery refresh failed", slog.String("error", err.Error()))
				}
			})
			return nil
		})
	}
	if e.quoteCache != nil {
		g.Go(func() error { e.mirrorQuotes(gctx); return nil })
	}

	e.logger.Info("engine: running",
		slog.Int("feeds", len(feeds)),
		slog.Int("pairs", e.table.Snapshot().Len()),
	)
	err := g.Wait()
	e.execWG.Wait()
	e.savePositions(context.WithoutCancel(ctx))
	e.logger.Info("engine: stopped")
	return err
}

// Stats returns the loop counters.
func (e *Engine) Stats() Stats {
	snap := e.table.Snapshot()
	return Stats{
		Generation:      snap.Generation,
		Pairs:           snap.Len(),
		Quotes:          e.quotes.Stats(),
		QuotesApplied:   e.applied.Load(),
		QuotesDiscarded: e.discarded.Load(),
		Opportunities:   e.opportunities.Load(),
		Executions:      e.executions.Load(),
	}
}

// LastHeartbeat returns the most recent heartbeat report.
func (e *Engine) LastHeartbeat() Heartbeat {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.heartbeat
}

// Refresh runs discovery now.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.refresh(ctx, true)
}

func (e *Engine) ingest(ctx context.Context, venue domain.Venue, ch <-chan domain.QuoteEvent) {
	log := e.logger.With(slog.String("venue", string(venue)))
	log.Debug("engine: ingestion started")
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			e.onQuote(ctx, ev)
		}
	}
}

// onQuote applies one event and, if it changed the book, evaluates the
// pair it belongs to.
func (e *Engine) onQuote(ctx context.Context, ev domain.QuoteEvent) {
	applied := e.quotes.Apply(ev)
	if e.observer != nil {
		e.observer.QuoteApplied(ev.Venue, applied)
	}
	if !applied {
		e.discarded.Add(1)
		return
	}
	e.applied.Add(1)

	if e.quoteCache != nil {
		if q, ok := e.quotes.Latest(ev.Key()); ok {
			select {
			case e.mirror <- q:
			default:
			}
		}
	}

	e.evaluate(ctx, ev.Key())
}

func (e *Engine) evaluate(ctx context.Context, key domain.InstrumentKey) {
	pair, ok := e.table.Snapshot().PairFor(key)
	if !ok {
		return
	}
	if e.exec.InFlight(pair.ID) {
		return
	}
	opp, ok := e.detector.Evaluate(pair, e.quotes, e.now())
	if !ok {
		e.forget(pair.ID)
		return
	}
	e.opportunities.Add(1)
	e.announce(ctx, opp)

	if ctx.Err() != nil {
		return
	}
	// Detection keeps running while the breaker is open; only submission
	// stops. The coordinator still asks the breaker before every order set.
	if st := e.breaker.State(); st.Mode != domain.BreakerClosed {
		return
	}

	e.executions.Add(1)
	e.execWG.Add(1)
	go func() {
		defer e.execWG.Done()
		// Once dispatched, an order set runs to completion even on shutdown.
		exec, err := e.exec.Execute(context.WithoutCancel(ctx), opp)
		if err != nil {
			e.logger.Debug("engine: execution ended",
				slog.String("pair_id", opp.Pair.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		e.logger.Debug("engine: execution finished",
			slog.String("pair_id", opp.Pair.ID),
			slog.String("status", string(exec.Status)),
		)
	}()
}

// announce logs and publishes an opportunity unless the pair's standing
// crossing was already announced at the same cost.
func (e *Engine) announce(ctx context.Context, opp domain.Opportunity) {
	cost := opp.Cost.String()
	e.mu.Lock()
	seen := e.lastOpp[opp.Pair.ID] == cost
	e.lastOpp[opp.Pair.ID] = cost
	e.mu.Unlock()
	if seen {
		return
	}

	e.logger.Info("engine: opportunity",
		slog.String("pair_id", opp.Pair.ID),
		slog.String("arb_type", string(opp.Pair.ArbType)),
		slog.String("leg_a_price", opp.QuoteA.Price.String()),
		slog.String("leg_b_price", opp.QuoteB.Price.String()),
		slog.String("fees", opp.Fees.String()),
		slog.String("cost", cost),
		slog.String("margin", opp.Margin.String()),
		slog.String("size", opp.Size.String()),
	)
	e.publish(ctx, domain.Event{
		Type:     domain.EventOpportunityDetected,
		Severity: domain.SeverityInfo,
		PairID:   opp.Pair.ID,
		Message:  "opportunity detected",
		Fields: map[string]any{
			"opportunity_id": opp.ID,
			"arb_type":       string(opp.Pair.ArbType),
			"leg_a_price":    opp.QuoteA.Price.String(),
			"leg_b_price":    opp.QuoteB.Price.String(),
			"cost":           cost,
			"margin":         opp.Margin.String(),
			"size":           opp.Size.String(),
		},
	})
}

func (e *Engine) forget(pairID string) {
	e.mu.Lock()
	delete(e.lastOpp, pairID)
	e.mu.Unlock()
}

// refresh runs discovery and points every feed at the resulting
// instruments. Subscriptions only grow; quotes for retired instruments age
// out of the normalizer.
func (e *Engine) refresh(ctx context.Context, force bool) error {
	out, err := e.discovery.Discover(ctx, force)
	if err != nil {
		return fmt.Errorf("engine: discover: %w", err)
	}
	for _, derr := range out.Errors {
		e.logger.Debug("engine: discovery error", slog.String("error", derr.Error()))
	}

	snap := e.table.Snapshot()
	e.mu.Lock()
	feeds := append([]Feed(nil), e.feeds...)
	e.mu.Unlock()
	for _, f := range feeds {
		if err := f.Track(ctx, snap.Instruments(f.Venue())); err != nil {
			e.logger.Warn("engine: track instruments failed",
				slog.String("venue", string(f.Venue())),
				slog.String("error", err.Error()),
			)
		}
	}

	e.logger.Info("engine: pairs loaded",
		slog.Int("pairs", snap.Len()),
		slog.Uint64("generation", snap.Generation),
		slog.Bool("changed", out.Changed),
		slog.Bool("from_cache", out.FromCache),
		slog.Int("discovery_errors", len(out.Errors)),
	)
	e.publish(ctx, domain.Event{
		Type:     domain.EventPairsRefreshed,
		Severity: domain.SeverityInfo,
		Message:  "pair table refreshed",
		Fields: map[string]any{
			"pairs":            snap.Len(),
			"generation":       snap.Generation,
			"changed":          out.Changed,
			"from_cache":       out.FromCache,
			"discovery_errors": len(out.Errors),
		},
	})
	return nil
}

func (e *Engine) savePositions(ctx context.Context) {
	snap := e.positions.Snapshot()
	if e.positionStore != nil {
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := e.positionStore.SaveSnapshot(sctx, snap)
		cancel()
		if err != nil {
			e.logger.Warn("engine: save positions failed", slog.String("error", err.Error()))
		}
	}

	unhedged := 0
	for _, p := range snap.Pairs {
		if p.Unhedged().IsPositive() {
			unhedged++
		}
	}
	e.publish(ctx, domain.Event{
		Type:     domain.EventPositionSnapshot,
		Severity: domain.SeverityInfo,
		Message:  "position snapshot",
		Fields: map[string]any{
			"pairs":          len(snap.Pairs),
			"unhedged_pairs": unhedged,
			"total_exposure": snap.TotalExposure.String(),
			"reserved":       snap.Reserved.String(),
			"daily_pnl":      snap.DailyPnL.String(),
			"day":            snap.Day,
		},
	})
}

func (e *Engine) mirrorQuotes(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-e.mirror:
			if err := e.quoteCache.SetQuote(ctx, q); err != nil && ctx.Err() == nil {
				e.logger.Debug("engine: mirror quote failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (e *Engine) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (e *Engine) publish(ctx context.Context, ev domain.Event) {
	if e.events == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = e.now()
	}
	e.events.Publish(ctx, ev)
}
