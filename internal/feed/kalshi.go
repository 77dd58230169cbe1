package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/platform/kalshi"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// KalshiStream is the subset of kalshi.WSClient the feed drives.
type KalshiStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, tickers []string) error
	OnBook(handler kalshi.BookHandler)
	Done() <-chan struct{}
	Close() error
}

// kalshiBook holds resting bid quantity per price (cents) for both sides.
type kalshiBook struct {
	yes map[int64]int64
	no  map[int64]int64
}

// KalshiFeed maintains Kalshi books from snapshots and deltas and emits the
// executable ask for each side. Kalshi only publishes bids: the YES ask is
// 100 minus the best NO bid, sized at that bid's quantity, and vice versa.
// A side with no opposite bids is emitted at 100 with zero size.
type KalshiFeed struct {
	stream KalshiStream
	sink   Sink
	subs   *subscription
	logger *slog.Logger

	mu    sync.Mutex
	books map[string]*kalshiBook
}

// NewKalshiFeed wires a stream to sink.
func NewKalshiFeed(stream KalshiStream, sink Sink, logger *slog.Logger) *KalshiFeed {
	f := &KalshiFeed{
		stream: stream,
		sink:   sink,
		subs:   newSubscription(),
		logger: logger.With(slog.String("component", "kalshi_feed")),
		books:  make(map[string]*kalshiBook),
	}
	stream.OnBook(f.handle)
	return f
}

// Venue reports the venue this feed serves.
func (f *KalshiFeed) Venue() domain.Venue { return domain.VenueKalshi }

// Track subscribes to the markets behind instruments.
func (f *KalshiFeed) Track(ctx context.Context, instruments []domain.Instrument) error {
	tickers := uniqueIDs(instruments, func(i domain.Instrument) string { return i.MarketID })
	fresh := f.subs.add(tickers)
	if len(fresh) == 0 {
		return nil
	}
	if err := f.stream.Subscribe(ctx, fresh); err != nil {
		f.subs.unsend(fresh)
		return err
	}
	return nil
}

// Run connects and keeps the session alive until ctx is cancelled.
func (f *KalshiFeed) Run(ctx context.Context) error {
	if err := connectWithRetry(ctx, f.logger, 2*time.Second, f.stream.Connect); err != nil {
		return err
	}
	defer f.stream.Close()

	all := f.subs.connect()
	defer f.subs.disconnect()
	if len(all) > 0 {
		if err := f.stream.Subscribe(ctx, all); err != nil {
			return err
		}
	}
	f.logger.Info("feed: kalshi subscribed", slog.Int("markets", len(all)))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.stream.Done():
		return nil
	}
}

func (f *KalshiFeed) handle(u kalshi.BookUpdate) {
	for _, ev := range f.apply(u, time.Now().UTC()) {
		f.sink(ev)
	}
}

// apply folds one update into the local book and returns the resulting
// quote events.
func (f *KalshiFeed) apply(u kalshi.BookUpdate, now time.Time) []domain.QuoteEvent {
	var ticker string

	f.mu.Lock()
	switch {
	case u.Snapshot != nil:
		ticker = u.Snapshot.Ticker
		b := &kalshiBook{yes: make(map[int64]int64), no: make(map[int64]int64)}
		for _, l := range u.Snapshot.Yes {
			if l.Quantity() > 0 {
				b.yes[l.Price()] = l.Quantity()
			}
		}
		for _, l := range u.Snapshot.No {
			if l.Quantity() > 0 {
				b.no[l.Price()] = l.Quantity()
			}
		}
		f.books[ticker] = b
	case u.Delta != nil:
		ticker = u.Delta.Ticker
		b, ok := f.books[ticker]
		if !ok {
			f.mu.Unlock()
			return nil
		}
		side := b.yes
		if u.Delta.Side == "no" {
			side = b.no
		}
		qty := side[u.Delta.Price] + u.Delta.Delta
		if qty > 0 {
			side[u.Delta.Price] = qty
		} else {
			delete(side, u.Delta.Price)
		}
	default:
		f.mu.Unlock()
		return nil
	}
	b := f.books[ticker]
	bestNo, noQty := bestBid(b.no)
	bestYes, yesQty := bestBid(b.yes)
	f.mu.Unlock()

	// An empty opposite side still produces an event so the last ask does
	// not outlive the liquidity behind it.
	seq := uint64(u.Conn)<<32 | (u.Seq & 0xffffffff)
	return []domain.QuoteEvent{
		askEvent(ticker, domain.OutcomeYes, 100-bestNo, noQty, seq, now),
		askEvent(ticker, domain.OutcomeNo, 100-bestYes, yesQty, seq, now),
	}
}

func askEvent(ticker string, outcome domain.Outcome, cents, qty int64, seq uint64, now time.Time) domain.QuoteEvent {
	return domain.QuoteEvent{
		Venue:        domain.VenueKalshi,
		InstrumentID: ticker,
		Outcome:      outcome,
		Price:        decimal.NewFromInt(cents).Div(hundred),
		Size:         decimal.NewFromInt(qty),
		Sequence:     seq,
		Timestamp:    now,
	}
}

func bestBid(levels map[int64]int64) (price, qty int64) {
	for p, q := range levels {
		if q > 0 && p > price {
			price, qty = p, q
		}
	}
	return price, qty
}

func uniqueIDs(instruments []domain.Instrument, id func(domain.Instrument) string) []string {
	seen := make(map[string]struct{}, len(instruments))
	out := make([]string, 0, len(instruments))
	for _, in := range instruments {
		v := id(in)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
