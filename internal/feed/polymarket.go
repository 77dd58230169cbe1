package feed

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/platform/polymarket"
	"github.com/shopspring/decimal"
)

// PolymarketStream is the subset of polymarket.WSClient the feed drives.
type PolymarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, assetIDs []string) error
	OnBook(handler polymarket.BookHandler)
	OnPriceChange(handler polymarket.PriceChangeHandler)
	Done() <-chan struct{}
	Close() error
}

type polyAsset struct {
	outcome domain.Outcome
	asks    map[string]decimal.Decimal // price string -> size
	lastSeq uint64
}

// PolymarketFeed keeps the ask side of each tracked outcome token and emits
// the best ask whenever it may have changed. Token ids map to outcomes via
// the pairing table, not via the order of the token list.
type PolymarketFeed struct {
	stream PolymarketStream
	sink   Sink
	subs   *subscription
	logger *slog.Logger

	mu     sync.Mutex
	assets map[string]*polyAsset
}

// NewPolymarketFeed wires a stream to sink.
func NewPolymarketFeed(stream PolymarketStream, sink Sink, logger *slog.Logger) *PolymarketFeed {
	f := &PolymarketFeed{
		stream: stream,
		sink:   sink,
		subs:   newSubscription(),
		logger: logger.With(slog.String("component", "polymarket_feed")),
		assets: make(map[string]*polyAsset),
	}
	stream.OnBook(f.handleBook)
	stream.OnPriceChange(f.handlePriceChange)
	return f
}

// Venue reports the venue this feed serves.
func (f *PolymarketFeed) Venue() domain.Venue { return domain.VenuePolymarket }

// Track registers outcome tokens and subscribes to any new ones.
func (f *PolymarketFeed) Track(ctx context.Context, instruments []domain.Instrument) error {
	f.mu.Lock()
	for _, in := range instruments {
		if in.Venue != domain.VenuePolymarket || in.ID == "" {
			continue
		}
		if a, ok := f.assets[in.ID]; ok {
			a.outcome = in.Outcome
			continue
		}
		f.assets[in.ID] = &polyAsset{outcome: in.Outcome, asks: make(map[string]decimal.Decimal)}
	}
	f.mu.Unlock()

	tokens := uniqueIDs(instruments, func(i domain.Instrument) string {
		if i.Venue != domain.VenuePolymarket {
			return ""
		}
		return i.ID
	})
	fresh := f.subs.add(tokens)
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
func (f *PolymarketFeed) Run(ctx context.Context) error {
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
	f.logger.Info("feed: polymarket subscribed", slog.Int("assets", len(all)))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.stream.Done():
		return nil
	}
}

func (f *PolymarketFeed) handleBook(b *polymarket.BookMessage) {
	if ev, ok := f.applyBook(b, time.Now().UTC()); ok {
		f.sink(ev)
	}
}

func (f *PolymarketFeed) handlePriceChange(pc *polymarket.PriceChangeMessage) {
	for _, ev := range f.applyPriceChange(pc, time.Now().UTC()) {
		f.sink(ev)
	}
}

func (f *PolymarketFeed) applyBook(b *polymarket.BookMessage, now time.Time) (domain.QuoteEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.assets[b.AssetID]
	if !ok {
		return domain.QuoteEvent{}, false
	}
	a.asks = make(map[string]decimal.Decimal, len(b.Asks))
	for _, l := range b.Asks {
		setLevel(a.asks, l.Price, l.Size)
	}
	return f.quoteLocked(b.AssetID, a, b.Timestamp, 0, now)
}

func (f *PolymarketFeed) applyPriceChange(pc *polymarket.PriceChangeMessage, now time.Time) []domain.QuoteEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	touched := make(map[string]int)
	var order []string
	for i, c := range pc.Changes {
		a, ok := f.assets[c.AssetID]
		if !ok || !strings.EqualFold(c.Side, "SELL") {
			continue
		}
		setLevel(a.asks, c.Price, c.Size)
		if _, seen := touched[c.AssetID]; !seen {
			order = append(order, c.AssetID)
		}
		touched[c.AssetID] = i
	}

	var out []domain.QuoteEvent
	for _, id := range order {
		if ev, ok := f.quoteLocked(id, f.assets[id], pc.Timestamp, touched[id], now); ok {
			out = append(out, ev)
		}
	}
	return out
}

// quoteLocked builds the event for the asset's current best ask, or a
// zero-size ask at 1 when no asks rest. The sequence is the venue timestamp
// in ms scaled by 1000 plus the index of the change within its message,
// bumped past the previous one when the venue repeats a timestamp.
func (f *PolymarketFeed) quoteLocked(assetID string, a *polyAsset, ts string, index int, now time.Time) (domain.QuoteEvent, bool) {
	price, size, ok := bestAsk(a.asks)
	if !ok {
		price, size = decimal.NewFromInt(1), decimal.Zero
	}

	stamp := now
	seq := uint64(now.UnixMilli()) * 1000
	if ms, err := strconv.ParseInt(ts, 10, 64); err == nil && ms > 0 {
		stamp = time.UnixMilli(ms).UTC()
		seq = uint64(ms) * 1000
	}
	seq += uint64(index)
	if seq <= a.lastSeq && seq/1000 == a.lastSeq/1000 {
		seq = a.lastSeq + 1
	}
	a.lastSeq = seq

	return domain.QuoteEvent{
		Venue:        domain.VenuePolymarket,
		InstrumentID: assetID,
		Outcome:      a.outcome,
		Price:        price,
		Size:         size,
		Sequence:     seq,
		Timestamp:    stamp,
	}, true
}

func setLevel(levels map[string]decimal.Decimal, price, size string) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return
	}
	key := p.String()
	s, err := decimal.NewFromString(size)
	if err != nil || !s.IsPositive() {
		delete(levels, key)
		return
	}
	levels[key] = s
}

func bestAsk(levels map[string]decimal.Decimal) (decimal.Decimal, decimal.Decimal, bool) {
	var (
		best  decimal.Decimal
		size  decimal.Decimal
		found bool
	)
	for k, s := range levels {
		p, err := decimal.NewFromString(k)
		if err != nil {
			continue
		}
		if !found || p.LessThan(best) {
			best, size, found = p, s, true
		}
	}
	return best, size, found
}
