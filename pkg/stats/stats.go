// Package stats implements the per-(server-endpoint, NAS, metric)
// counter store of spec.md §3/§6, with atomic pull-reset semantics
// (spec.md §8's counter-monotonicity property).
package stats

import "sync"

// Key identifies one counter. NAS is empty for server-level counters
// such as invalidRequests and discardNoHandler.
type Key struct {
	Endpoint string
	NAS      string
	Metric   string
}

// Store holds counters for one or more server endpoints.
type Store struct {
	mu     sync.Mutex
	counts map[Key]uint64
}

// New returns an empty Store.
func New() *Store {
	return &Store{counts: make(map[Key]uint64)}
}

// Inc increments the counter identified by k by one.
func (s *Store) Inc(k Key) {
	s.Add(k, 1)
}

// Add increments the counter identified by k by delta.
func (s *Store) Add(k Key, delta uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[k] += delta
}

// Read returns the current value of k without resetting it.
func (s *Store) Read(k Key) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[k]
}

// Pull returns the current value of k and resets it to zero, atomically.
func (s *Store) Pull(k Key) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.counts[k]
	delete(s.counts, k)
	return v
}

// Reset zeroes k and returns nothing; present for parity with the
// pull/read/reset trio spec.md §4.1 requires of Server.stats(kind).
func (s *Store) Reset(k Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, k)
}

// Snapshot returns every counter currently recorded for endpoint,
// without mutating the store. Not named by spec.md directly, but a
// natural read-only companion to the per-key operations above (see
// SPEC_FULL.md "Supplemented Features").
func (s *Store) Snapshot(endpoint string) map[Key]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[Key]uint64)
	for k, v := range s.counts {
		if k.Endpoint == endpoint {
			out[k] = v
		}
	}
	return out
}

// PullAll snapshots and resets every counter for endpoint atomically,
// backing the server-level `pull` kind of Server.stats (spec.md §4.1).
func (s *Store) PullAll(endpoint string) map[Key]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[Key]uint64)
	for k, v := range s.counts {
		if k.Endpoint == endpoint {
			out[k] = v
			delete(s.counts, k)
		}
	}
	return out
}

// ResetAll zeroes every counter for endpoint.
func (s *Store) ResetAll(endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.counts {
		if k.Endpoint == endpoint {
			delete(s.counts, k)
		}
	}
}
