package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates predictable query identifiers: prefix-1, prefix-2, ...
//
// This enables deterministic envelopes and golden snapshots.
//
// Thread-safety: SequenceIDs is safe for concurrent use.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator. An empty prefix means "query".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "query"
	}
	return &SequenceIDs{prefix: prefix}
}

// Generate returns the next identifier.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
