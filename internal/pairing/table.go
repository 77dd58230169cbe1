// Package pairing maintains the set of cross-venue market pairs the engine
// trades and the discovery that produces it.
package pairing

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Snapshot is an immutable generation of the pairing table. Readers hold a
// snapshot for as long as they need a consistent view.
type Snapshot struct {
	Generation uint64
	pairs      []domain.MarketPair
	byID       map[string]int
	byKey      map[domain.InstrumentKey]int
}

// Pairs returns the pairs sorted by ID. The slice must not be modified.
func (s *Snapshot) Pairs() []domain.MarketPair {
	return s.pairs
}

// Len returns the number of pairs.
func (s *Snapshot) Len() int {
	return len(s.pairs)
}

// Pair looks up a pair by ID.
func (s *Snapshot) Pair(id string) (domain.MarketPair, bool) {
	i, ok := s.byID[id]
	if !ok {
		return domain.MarketPair{}, false
	}
	return s.pairs[i], true
}

// PairFor returns the single pair that references the instrument.
func (s *Snapshot) PairFor(key domain.InstrumentKey) (domain.MarketPair, bool) {
	i, ok := s.byKey[key]
	if !ok {
		return domain.MarketPair{}, false
	}
	return s.pairs[i], true
}

// Instruments returns every instrument referenced by the snapshot,
// optionally filtered to one venue.
func (s *Snapshot) Instruments(venue domain.Venue) []domain.Instrument {
	var out []domain.Instrument
	for _, p := range s.pairs {
		for _, leg := range p.Legs() {
			if venue == "" || leg.Venue == venue {
				out = append(out, leg)
			}
		}
	}
	return out
}

// Table holds the current snapshot. Replacement swaps the whole snapshot so
// a reader never observes a pair whose other leg is missing.
type Table struct {
	mu  sync.Mutex // serializes writers
	cur atomic.Pointer[Snapshot]
}

// NewTable returns an empty table at generation zero.
func NewTable() *Table {
	t := &Table{}
	snap, _ := newSnapshot(0, nil)
	t.cur.Store(snap)
	return t
}

// Snapshot returns the current generation.
func (t *Table) Snapshot() *Snapshot {
	return t.cur.Load()
}

// Replace installs a new pair set. Unchanged input keeps the current
// snapshot and generation; changed input swaps the table atomically.
func (t *Table) Replace(pairs []domain.MarketPair) (uint64, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sorted := make([]domain.MarketPair, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	cur := t.cur.Load()
	if reflect.DeepEqual(cur.pairs, sorted) || (len(cur.pairs) == 0 && len(sorted) == 0) {
		return cur.Generation, false, nil
	}

	next, err := newSnapshot(cur.Generation+1, sorted)
	if err != nil {
		return cur.Generation, false, err
	}
	t.cur.Store(next)
	return next.Generation, true, nil
}

func newSnapshot(gen uint64, pairs []domain.MarketPair) (*Snapshot, error) {
	s := &Snapshot{
		Generation: gen,
		pairs:      pairs,
		byID:       make(map[string]int, len(pairs)),
		byKey:      make(map[domain.InstrumentKey]int, 2*len(pairs)),
	}
	for i, p := range pairs {
		if _, dup := s.byID[p.ID]; dup {
			return nil, fmt.Errorf("pairing: duplicate pair %s", p.ID)
		}
		s.byID[p.ID] = i
		for _, leg := range p.Legs() {
			k := leg.Key()
			if other, dup := s.byKey[k]; dup {
				return nil, fmt.Errorf("pairing: instrument %s in pairs %s and %s", k, pairs[other].ID, p.ID)
			}
			s.byKey[k] = i
		}
	}
	return s, nil
}
