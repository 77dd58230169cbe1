package feed

import (
	"context"
	"testing"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/platform/polymarket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePolyStream struct {
	subscribed [][]string
	book       polymarket.BookHandler
	change     polymarket.PriceChangeHandler
}

func (s *fakePolyStream) Connect(context.Context) error { return nil }
func (s *fakePolyStream) Subscribe(_ context.Context, ids []string) error {
	s.subscribed = append(s.subscribed, ids)
	return nil
}
func (s *fakePolyStream) OnBook(h polymarket.BookHandler)               { s.book = h }
func (s *fakePolyStream) OnPriceChange(h polymarket.PriceChangeHandler) { s.change = h }
func (s *fakePolyStream) Done() <-chan struct{}                         { return nil }
func (s *fakePolyStream) Close() error                                  { return nil }

func trackedPolyFeed(t *testing.T) *PolymarketFeed {
	t.Helper()
	f := NewPolymarketFeed(&fakePolyStream{}, func(domain.QuoteEvent) {}, quietLogger())
	require.NoError(t, f.Track(context.Background(), []domain.Instrument{
		{Venue: domain.VenuePolymarket, ID: "111", Outcome: domain.OutcomeYes},
		{Venue: domain.VenuePolymarket, ID: "222", Outcome: domain.OutcomeNo},
	}))
	return f
}

func TestPolymarketBookEmitsBestAsk(t *testing.T) {
	f := trackedPolyFeed(t)

	ev, ok := f.applyBook(&polymarket.BookMessage{
		AssetID:   "222",
		Asks:      []polymarket.WSPriceLevel{{Price: "0.60", Size: "10"}, {Price: "0.55", Size: "40"}},
		Bids:      []polymarket.WSPriceLevel{{Price: "0.50", Size: "99"}},
		Timestamp: "1766167200000",
	}, time.Now())
	require.True(t, ok)
	assert.Equal(t, domain.OutcomeNo, ev.Outcome)
	assert.True(t, ev.Price.Equal(decimal.RequireFromString("0.55")))
	assert.True(t, ev.Size.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, uint64(1766167200000)*1000, ev.Sequence)
	assert.Equal(t, int64(1766167200000), ev.Timestamp.UnixMilli())
}

func TestPolymarketIgnoresUntrackedBooks(t *testing.T) {
	f := trackedPolyFeed(t)

	_, ok := f.applyBook(&polymarket.BookMessage{AssetID: "999", Asks: []polymarket.WSPriceLevel{{Price: "0.5", Size: "1"}}}, time.Now())
	assert.False(t, ok)
}

func TestPolymarketEmptyAsksWithdrawQuote(t *testing.T) {
	f := trackedPolyFeed(t)

	ev, ok := f.applyBook(&polymarket.BookMessage{AssetID: "111"}, time.Now())
	require.True(t, ok)
	assert.True(t, ev.Size.IsZero())
	assert.True(t, ev.Price.Equal(decimal.NewFromInt(1)))

	f.applyBook(&polymarket.BookMessage{AssetID: "111", Asks: []polymarket.WSPriceLevel{{Price: "0.45", Size: "10"}}, Timestamp: "2000"}, time.Now())
	evs := f.applyPriceChange(&polymarket.PriceChangeMessage{
		Timestamp: "2001",
		Changes:   []polymarket.PriceChange{{AssetID: "111", Side: "SELL", Price: "0.45", Size: "0"}},
	}, time.Now())
	require.Len(t, evs, 1)
	assert.True(t, evs[0].Size.IsZero())
	assert.Greater(t, evs[0].Sequence, uint64(2000)*1000)
}

func TestPolymarketPriceChangeUpdatesAsks(t *testing.T) {
	f := trackedPolyFeed(t)
	f.applyBook(&polymarket.BookMessage{AssetID: "111", Asks: []polymarket.WSPriceLevel{{Price: "0.45", Size: "10"}}, Timestamp: "1000"}, time.Now())

	evs := f.applyPriceChange(&polymarket.PriceChangeMessage{
		Timestamp: "1000",
		Changes: []polymarket.PriceChange{
			{AssetID: "111", Side: "BUY", Price: "0.44", Size: "5"},
			{AssetID: "111", Side: "SELL", Price: "0.45", Size: "0"},
			{AssetID: "111", Side: "SELL", Price: "0.47", Size: "20"},
		},
	}, time.Now())
	require.Len(t, evs, 1)
	assert.True(t, evs[0].Price.Equal(decimal.RequireFromString("0.47")))
	assert.Greater(t, evs[0].Sequence, uint64(1000)*1000, "same-millisecond updates still advance")
}

func TestPolymarketSequenceAdvancesWithinMillisecond(t *testing.T) {
	f := trackedPolyFeed(t)
	book := &polymarket.BookMessage{AssetID: "111", Asks: []polymarket.WSPriceLevel{{Price: "0.45", Size: "10"}}, Timestamp: "5000"}

	a, _ := f.applyBook(book, time.Now())
	b, _ := f.applyBook(book, time.Now())
	assert.Greater(t, b.Sequence, a.Sequence)
}
