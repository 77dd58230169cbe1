package pairing

import (
	"sync"
	"testing"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPairs(t *testing.T) []domain.MarketPair {
	t.Helper()
	res := NewBuilder(nbaMapping(), false).Build([]domain.Listing{
		kalshiListing("KX-LAL", "LAL", "LAL", "BOS"),
		polyListing("0xa", "a1", "a2", "lal", "lal", "bos"),
	})
	require.Len(t, res.Pairs, 2)
	return res.Pairs
}

func TestReplaceIsIdempotent(t *testing.T) {
	tbl := NewTable()
	pairs := buildPairs(t)

	gen, changed, err := tbl.Replace(pairs)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, uint64(1), gen)
	first := tbl.Snapshot()

	gen, changed, err = tbl.Replace(buildPairs(t))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, uint64(1), gen)
	assert.Same(t, first, tbl.Snapshot())
}

func TestReplaceSwapsWholeTable(t *testing.T) {
	tbl := NewTable()
	_, _, err := tbl.Replace(buildPairs(t))
	require.NoError(t, err)
	old := tbl.Snapshot()

	next := buildPairs(t)[:1]
	gen, changed, err := tbl.Replace(next)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, uint64(2), gen)

	assert.Equal(t, 2, old.Len(), "old snapshot must stay intact for its readers")
	assert.Equal(t, 1, tbl.Snapshot().Len())
}

func TestReplaceRejectsSharedInstrument(t *testing.T) {
	tbl := NewTable()
	pairs := buildPairs(t)
	clash := pairs[0]
	clash.ID = "other"
	clash.LegB = pairs[1].LegA

	_, _, err := tbl.Replace([]domain.MarketPair{pairs[0], pairs[1], clash})
	require.Error(t, err)
	assert.Equal(t, uint64(0), tbl.Snapshot().Generation)
}

func TestSnapshotLookups(t *testing.T) {
	tbl := NewTable()
	pairs := buildPairs(t)
	_, _, err := tbl.Replace(pairs)
	require.NoError(t, err)

	snap := tbl.Snapshot()
	for _, p := range pairs {
		got, ok := snap.Pair(p.ID)
		require.True(t, ok)
		assert.Equal(t, p, got)

		for _, leg := range p.Legs() {
			owner, ok := snap.PairFor(leg.Key())
			require.True(t, ok)
			assert.Equal(t, p.ID, owner.ID)
		}
	}
	assert.Len(t, snap.Instruments(domain.VenuePolymarket), 2)
	assert.Len(t, snap.Instruments(""), 4)
}

func TestConcurrentReadersSeeCompleteSnapshots(t *testing.T) {
	tbl := NewTable()
	full := buildPairs(t)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := tbl.Snapshot()
				for _, p := range snap.Pairs() {
					_, okA := snap.PairFor(p.LegA.Key())
					_, okB := snap.PairFor(p.LegB.Key())
					if !okA || !okB {
						t.Errorf("pair %s references a missing leg", p.ID)
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			_, _, _ = tbl.Replace(full)
		} else {
			_, _, _ = tbl.Replace(full[:1])
		}
	}
	close(stop)
	wg.Wait()
}
