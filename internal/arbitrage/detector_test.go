package arbitrage

import (
	"testing"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/feed"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 12, 19, 18, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testPair() domain.MarketPair {
	a := domain.Instrument{Venue: domain.VenuePolymarket, ID: "111", MarketID: "0xcond", Outcome: domain.OutcomeYes}
	b := domain.Instrument{Venue: domain.VenueKalshi, ID: "KXNBAGAME-25DEC19LALBOS-LAL", MarketID: "KXNBAGAME-25DEC19LALBOS-LAL", Outcome: domain.OutcomeNo}
	return domain.MarketPair{ID: domain.PairID(a, b), ArbType: domain.ArbTypePolyYesKalshiNo, LegA: a, LegB: b}
}

func quote(n *feed.Normalizer, in domain.Instrument, price, size string, seq uint64) {
	n.Apply(domain.QuoteEvent{
		Venue:        in.Venue,
		InstrumentID: in.ID,
		Outcome:      in.Outcome,
		Price:        d(price),
		Size:         d(size),
		Sequence:     seq,
		Timestamp:    t0,
	})
}

func newBook(clock *time.Time) *feed.Normalizer {
	return feed.NewNormalizer(3*time.Second, feed.WithClock(func() time.Time { return *clock }))
}

func defaultDetector() *Detector {
	return NewDetector(Config{Threshold: d("0.005"), MaxQuoteAge: 3 * time.Second})
}

func TestEvaluateEmitsCrossing(t *testing.T) {
	clock := t0
	book := newBook(&clock)
	pair := testPair()
	quote(book, pair.LegA, "0.40", "5", 1)
	quote(book, pair.LegB, "0.58", "12", 1)

	opp, ok := defaultDetector().Evaluate(pair, book, t0.Add(100*time.Millisecond))
	require.True(t, ok)
	assert.True(t, opp.Cost.Equal(d("0.98")))
	assert.True(t, opp.Margin.Equal(d("0.02")))
	assert.True(t, opp.Size.Equal(d("5")), "size is the smaller leg")
	assert.Equal(t, t0.Add(3*time.Second), opp.ValidUntil)
	assert.NotEmpty(t, opp.ID)
	assert.True(t, opp.ExpectedProfit().Equal(d("0.1")))
}

func TestEvaluateThresholdBoundary(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"0.40", "0.595", true},  // cost 0.995, margin exactly 0.005
		{"0.40", "0.596", false}, // margin 0.004
		{"0.50", "0.50", false},
		{"0.55", "0.50", false},
	}
	for _, tc := range cases {
		clock := t0
		book := newBook(&clock)
		pair := testPair()
		quote(book, pair.LegA, tc.a, "10", 1)
		quote(book, pair.LegB, tc.b, "10", 1)

		_, ok := defaultDetector().Evaluate(pair, book, t0)
		assert.Equal(t, tc.want, ok, "%s + %s", tc.a, tc.b)
	}
}

func TestEvaluateFailsClosedOnMissingOrStaleLeg(t *testing.T) {
	clock := t0
	book := newBook(&clock)
	pair := testPair()
	det := defaultDetector()

	quote(book, pair.LegA, "0.40", "10", 1)
	_, ok := det.Evaluate(pair, book, t0)
	assert.False(t, ok, "leg B missing")

	_, err := det.Price(pair, book, t0)
	assert.ErrorIs(t, err, domain.ErrMissingQuote)

	clock = t0.Add(2 * time.Second)
	quote(book, pair.LegB, "0.50", "10", 1)

	_, ok = det.Evaluate(pair, book, t0.Add(2*time.Second))
	assert.True(t, ok)

	_, ok = det.Evaluate(pair, book, t0.Add(3*time.Second))
	assert.False(t, ok, "leg A is now stale")
	_, err = det.Price(pair, book, t0.Add(3*time.Second))
	assert.ErrorIs(t, err, domain.ErrStaleQuote)
}

func TestEvaluateRequiresSize(t *testing.T) {
	clock := t0
	book := newBook(&clock)
	pair := testPair()
	quote(book, pair.LegA, "0.40", "0", 1)
	quote(book, pair.LegB, "0.50", "10", 1)

	_, ok := defaultDetector().Evaluate(pair, book, t0)
	assert.False(t, ok)
}

func TestEvaluateIsStateless(t *testing.T) {
	clock := t0
	book := newBook(&clock)
	pair := testPair()
	quote(book, pair.LegA, "0.40", "10", 1)
	quote(book, pair.LegB, "0.50", "10", 1)
	det := defaultDetector()

	first, ok1 := det.Evaluate(pair, book, t0)
	second, ok2 := det.Evaluate(pair, book, t0)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.True(t, first.Cost.Equal(second.Cost))
	assert.NotEqual(t, first.ID, second.ID)
}

func TestKalshiFee(t *testing.T) {
	assert.True(t, KalshiFee(d("0.07"), d("0.40")).Equal(d("0.02")))
	assert.True(t, KalshiFee(d("0.07"), d("0.50")).Equal(d("0.02")))
	assert.True(t, KalshiFee(d("0.07"), d("0.05")).Equal(d("0.01")))
	assert.True(t, KalshiFee(decimal.Zero, d("0.50")).IsZero())
}

func TestPriceIncludesKalshiFeeOnly(t *testing.T) {
	clock := t0
	book := newBook(&clock)
	pair := testPair()
	quote(book, pair.LegA, "0.40", "10", 1)
	quote(book, pair.LegB, "0.55", "10", 1)

	det := NewDetector(Config{Threshold: d("0.005"), MaxQuoteAge: 3 * time.Second, IncludeFees: true, KalshiFeeRate: d("0.07")})
	p, err := det.Price(pair, book, t0)
	require.NoError(t, err)
	assert.True(t, p.Fees.Equal(d("0.02")), "fee on the 0.55 Kalshi leg only")
	assert.True(t, p.Cost.Equal(d("0.97")))
	assert.True(t, p.Gap(d("0.005")).Equal(d("0.025")))
}
