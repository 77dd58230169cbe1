// Package feed turns venue book traffic into canonical quotes and keeps the
// latest quote per instrument.
package feed

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

const defaultShards = 32

type shard struct {
	mu     sync.RWMutex
	quotes map[domain.InstrumentKey]domain.Quote
}

// Normalizer stores the most recent quote per instrument. State is
// partitioned by instrument so the two venue ingestion goroutines never
// contend on a global lock. It performs no decision logic.
type Normalizer struct {
	shards []*shard
	maxAge time.Duration
	now    func() time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the receive-time clock.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithShards sets the partition count.
func WithShards(count int) Option {
	return func(n *Normalizer) {
		if count > 0 {
			n.shards = make([]*shard, count)
		}
	}
}

// NewNormalizer creates a Normalizer whose Fresh check rejects quotes older
// than maxAge.
func NewNormalizer(maxAge time.Duration, opts ...Option) *Normalizer {
	n := &Normalizer{
		shards: make([]*shard, defaultShards),
		maxAge: maxAge,
		now:    time.Now,
	}
	for _, o := range opts {
		o(n)
	}
	for i := range n.shards {
		n.shards[i] = &shard{quotes: make(map[domain.InstrumentKey]domain.Quote)}
	}
	return n
}

// Apply installs the event as the instrument's quote unless an event with an
// equal or higher sequence number was already applied. It reports whether
// the quote changed.
func (n *Normalizer) Apply(ev domain.QuoteEvent) bool {
	key := ev.Key()
	s := n.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.quotes[key]; ok && ev.Sequence <= cur.Sequence {
		return false
	}
	s.quotes[key] = domain.Quote{
		Instrument: key,
		Price:      ev.Price,
		Size:       ev.Size,
		Sequence:   ev.Sequence,
		Timestamp:  ev.Timestamp,
		ReceivedAt: n.now(),
	}
	return true
}

// Latest returns the most recent quote regardless of age.
func (n *Normalizer) Latest(key domain.InstrumentKey) (domain.Quote, bool) {
	s := n.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[key]
	return q, ok
}

// Age returns how old the instrument's quote is at now.
func (n *Normalizer) Age(key domain.InstrumentKey, now time.Time) (time.Duration, bool) {
	q, ok := n.Latest(key)
	if !ok {
		return 0, false
	}
	return q.Age(now), true
}

// Fresh returns the quote only if it is younger than the staleness limit.
func (n *Normalizer) Fresh(key domain.InstrumentKey, now time.Time) (domain.Quote, error) {
	q, ok := n.Latest(key)
	if !ok {
		return domain.Quote{}, domain.ErrMissingQuote
	}
	if n.maxAge > 0 && q.Age(now) >= n.maxAge {
		return q, domain.ErrStaleQuote
	}
	return q, nil
}

// MaxAge is the configured staleness limit.
func (n *Normalizer) MaxAge() time.Duration {
	return n.maxAge
}

// Stats counts stored quotes per venue.
func (n *Normalizer) Stats() map[domain.Venue]int {
	out := make(map[domain.Venue]int)
	for _, s := range n.shards {
		s.mu.RLock()
		for k := range s.quotes {
			out[k.Venue()]++
		}
		s.mu.RUnlock()
	}
	return out
}

// Prune drops quotes older than keep so retired instruments do not
// accumulate. It returns the number removed.
func (n *Normalizer) Prune(now time.Time, keep time.Duration) int {
	removed := 0
	for _, s := range n.shards {
		s.mu.Lock()
		for k, q := range s.quotes {
			if q.Age(now) > keep {
				delete(s.quotes, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

func (n *Normalizer) shardFor(key domain.InstrumentKey) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return n.shards[h.Sum32()%uint32(len(n.shards))]
}
