package executor

import (
	"sort"
	"sync"
	"time"
)

// InFlight tracks which pairs have an order set outstanding. It is safe for
// concurrent use.
type InFlight struct {
	mu    sync.Mutex
	pairs map[string]time.Time // pairID -> acquired at
}

// NewInFlight creates an empty set.
func NewInFlight() *InFlight {
	return &InFlight{pairs: make(map[string]time.Time)}
}

// TryAcquire claims pairID. It returns false if the pair is already claimed.
func (f *InFlight) TryAcquire(pairID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pairs[pairID]; ok {
		return false
	}
	f.pairs[pairID] = time.Now()
	return true
}

// Release frees pairID.
func (f *InFlight) Release(pairID string) {
	f.mu.Lock()
	delete(f.pairs, pairID)
	f.mu.Unlock()
}

// Has reports whether pairID is claimed.
func (f *InFlight) Has(pairID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pairs[pairID]
	return ok
}

// List returns the claimed pair ids in order.
func (f *InFlight) List() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.pairs))
	for id := range f.pairs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
