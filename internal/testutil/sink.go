package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/cayleygraph/quad"
)

// SinkCall is one write received by a RecordingSink.
type SinkCall struct {
	Op     string // "insert" or "delete-insert"
	Graph  string
	Delete []quad.Quad
	Insert []quad.Quad
}

// RecordingSink records metadata writes and keeps the resulting graphs in
// memory.
//
// Thread-safety: RecordingSink is safe for concurrent use.
type RecordingSink struct {
	mu     sync.Mutex
	calls  []SinkCall
	graphs map[string]map[string]quad.Quad
	err    error
}

// NewRecordingSink creates an empty sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{graphs: make(map[string]map[string]quad.Quad)}
}

// Fail makes every subsequent write fail with err. A nil err restores writes.
func (s *RecordingSink) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Insert records an insert.
func (s *RecordingSink) Insert(_ context.Context, graph string, quads []quad.Quad) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, SinkCall{Op: "insert", Graph: graph, Insert: append([]quad.Quad(nil), quads...)})
	s.apply(graph, nil, quads)
	return nil
}

// DeleteInsert records a delete/insert.
func (s *RecordingSink) DeleteInsert(_ context.Context, graph string, del, ins []quad.Quad) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, SinkCall{
		Op:     "delete-insert",
		Graph:  graph,
		Delete: append([]quad.Quad(nil), del...),
		Insert: append([]quad.Quad(nil), ins...),
	})
	s.apply(graph, del, ins)
	return nil
}

func (s *RecordingSink) apply(graph string, del, ins []quad.Quad) {
	g := s.graphs[graph]
	if g == nil {
		g = make(map[string]quad.Quad)
		s.graphs[graph] = g
	}
	for _, q := range del {
		delete(g, q.String())
	}
	for _, q := range ins {
		g[q.String()] = q
	}
}

// Calls returns every successful write in order.
func (s *RecordingSink) Calls() []SinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SinkCall(nil), s.calls...)
}

// Quads returns the current contents of a graph, sorted by their N-Quads form.
func (s *RecordingSink) Quads(graph string) []quad.Quad {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.graphs[graph]))
	for k := range s.graphs[graph] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]quad.Quad, len(keys))
	for i, k := range keys {
		out[i] = s.graphs[graph][k]
	}
	return out
}
