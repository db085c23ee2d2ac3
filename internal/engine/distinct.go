package engine

import "sync"

// DistinctTracker remembers the binding keys each query has emitted, so
// DISTINCT queries forward every solution once.
//
// The tracker keeps per-query history keyed by query ID. History must be
// cleared when the query finishes.
type DistinctTracker struct {
	mu      sync.Mutex
	history map[string]map[string]bool // map[query_id]map[binding_key]bool
}

// NewDistinctTracker creates an empty tracker.
func NewDistinctTracker() *DistinctTracker {
	return &DistinctTracker{
		history: make(map[string]map[string]bool),
	}
}

// Seen records key for the query and reports whether it was already there.
//
// Thread-safe: Can be called concurrently.
func (d *DistinctTracker) Seen(queryID, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.history[queryID] == nil {
		d.history[queryID] = make(map[string]bool)
	}
	if d.history[queryID][key] {
		return true
	}
	d.history[queryID][key] = true
	return false
}

// Clear removes all history for a query.
//
// Thread-safe: Can be called concurrently.
func (d *DistinctTracker) Clear(queryID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.history, queryID)
}

// Queries returns the number of queries with tracked history.
func (d *DistinctTracker) Queries() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.history)
}
