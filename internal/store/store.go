// Package store holds the flat, append-only record collection one engine
// session queries, together with the filter-option index that grows as
// chunks load. Records are immutable once appended and are never evicted;
// the store's lifetime equals the session's lifetime.
package store

import (
	"sync"

	"github.com/civiclens/spendengine/internal/record"
)

// Store is the in-memory record store. Writes happen on loader goroutines
// and reads on the engine loop, so both sides go through the mutex.
type Store struct {
	mu      sync.RWMutex
	records []record.Record
	index   *optionIndex
}

// New creates an empty store seeded with any filter options already known
// from the manifest, so values from unloaded chunks stay offered.
func New(seed FilterOptions) *Store {
	s := &Store{index: newOptionIndex()}
	s.index.seed(seed)
	return s
}

// Append merges a loaded chunk into the store and unions its distinct
// values into the filter-option index. Returns the new total record count.
func (s *Store) Append(recs []record.Record) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, recs...)
	for _, r := range recs {
		s.index.observe(r)
	}
	return len(s.records)
}

// Records returns a point-in-time view of the store. The returned slice
// header is stable even if a concurrent append reallocates, because records
// are append-only and never mutated in place.
func (s *Store) Records() []record.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[:len(s.records):len(s.records)]
}

// Len returns the current record count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Options returns the current filter options snapshot.
func (s *Store) Options() FilterOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.snapshot()
}
