package feed

import (
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(id string, price string, seq uint64) domain.QuoteEvent {
	return domain.QuoteEvent{
		Venue:        domain.VenueKalshi,
		InstrumentID: id,
		Outcome:      domain.OutcomeYes,
		Price:        decimal.RequireFromString(price),
		Size:         decimal.NewFromInt(10),
		Sequence:     seq,
	}
}

func TestApplyIgnoresOutOfOrderSequence(t *testing.T) {
	n := NewNormalizer(time.Second)

	assert.True(t, n.Apply(event("A", "0.40", 5)))
	assert.False(t, n.Apply(event("A", "0.30", 4)))
	assert.False(t, n.Apply(event("A", "0.30", 5)))

	q, ok := n.Latest(event("A", "0", 0).Key())
	require.True(t, ok)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("0.40")))
	assert.Equal(t, uint64(5), q.Sequence)

	assert.True(t, n.Apply(event("A", "0.35", 6)))
	q, _ = n.Latest(event("A", "0", 0).Key())
	assert.True(t, q.Price.Equal(decimal.RequireFromString("0.35")))
}

func TestFreshRejectsMissingAndStale(t *testing.T) {
	now := time.Date(2025, 12, 19, 18, 0, 0, 0, time.UTC)
	clock := now
	n := NewNormalizer(500*time.Millisecond, WithClock(func() time.Time { return clock }))
	key := event("A", "0", 0).Key()

	_, err := n.Fresh(key, now)
	assert.ErrorIs(t, err, domain.ErrMissingQuote)

	n.Apply(event("A", "0.40", 1))
	_, err = n.Fresh(key, now.Add(499*time.Millisecond))
	assert.NoError(t, err)

	_, err = n.Fresh(key, now.Add(500*time.Millisecond))
	assert.ErrorIs(t, err, domain.ErrStaleQuote)

	age, ok := n.Age(key, now.Add(2*time.Second))
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, age)
}

func TestStatsAndPrune(t *testing.T) {
	start := time.Date(2025, 12, 19, 18, 0, 0, 0, time.UTC)
	clock := start
	n := NewNormalizer(time.Second, WithClock(func() time.Time { return clock }), WithShards(4))

	n.Apply(event("A", "0.40", 1))
	clock = start.Add(time.Hour)
	n.Apply(event("B", "0.40", 1))
	poly := event("tok", "0.55", 1)
	poly.Venue = domain.VenuePolymarket
	n.Apply(poly)

	assert.Equal(t, map[domain.Venue]int{domain.VenueKalshi: 2, domain.VenuePolymarket: 1}, n.Stats())
	assert.Equal(t, 1, n.Prune(clock, 30*time.Minute))
	assert.Equal(t, 1, n.Stats()[domain.VenueKalshi])
}

func TestApplyConcurrentKeepsHighestSequence(t *testing.T) {
	n := NewNormalizer(time.Second)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for s := 1; s <= 200; s++ {
				n.Apply(event("A", "0.40", uint64(s*8+w)))
			}
		}(w)
	}
	wg.Wait()

	q, ok := n.Latest(event("A", "0", 0).Key())
	require.True(t, ok)
	assert.Equal(t, uint64(200*8+7), q.Sequence)
}
