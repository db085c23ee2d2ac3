package decompose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/vocab"
)

func TestPartition(t *testing.T) {
	stars := partition([]ir.TriplePattern{
		ir.Triple(p, ir.IRI(knows), x),
		ir.Triple(x, ir.IRI(name), c),
		ir.Triple(p, ir.IRI(name), n),
	})
	require.Len(t, stars, 2)
	assert.Equal(t, p, stars[0].Subject)
	assert.Len(t, stars[0].Triples, 2)
	assert.Equal(t, []string{knows, name}, stars[0].Predicates())
	assert.Equal(t, x, stars[1].Subject)
}

func TestStarTypes(t *testing.T) {
	s := &Star{Subject: p, Triples: []ir.TriplePattern{
		ir.Triple(p, ir.IRI(vocab.RDFType), ir.IRI(person)),
		ir.Triple(p, ir.IRI(vocab.RDFType), ir.Var("t")),
		ir.Triple(p, ir.IRI(name), n),
	}}
	assert.Equal(t, []string{person}, s.Types())
	assert.Equal(t, []string{name}, s.Predicates())
}

func TestConnections(t *testing.T) {
	stars := partition([]ir.TriplePattern{
		ir.Triple(p, ir.IRI(knows), x),
		ir.Triple(p, ir.Var("rel"), c),
		ir.Triple(x, ir.IRI(name), n),
		ir.Triple(c, ir.IRI(name), n),
	})
	edges := connections(stars)
	assert.Equal(t, []edge{
		{from: 0, to: 1, predicate: knows},
		{from: 0, to: 2},
	}, edges)
	assert.True(t, connected(edges, 2))
}

func TestPrune_KeepsReachableCandidates(t *testing.T) {
	a := &Star{Subject: p, Candidates: []string{"A1", "A2"}}
	b := &Star{Subject: x, Candidates: []string{"B1", "B2"}}
	graph := map[string]map[string]bool{
		"A1": {"B1": true},
		"A2": {},
		"B1": {},
		"B2": {},
	}
	skipped := prune([]*Star{a, b}, []edge{{from: 0, to: 1}}, graph)
	assert.Empty(t, skipped)
	assert.Equal(t, []string{"A1"}, a.Candidates)
	assert.Equal(t, []string{"B1"}, b.Candidates)
}

func TestPrune_LinksCountInBothDirections(t *testing.T) {
	a := &Star{Subject: p, Candidates: []string{"A1", "A2"}}
	b := &Star{Subject: x, Candidates: []string{"B1"}}
	graph := map[string]map[string]bool{"B1": {"A2": true}}
	prune([]*Star{a, b}, []edge{{from: 0, to: 1}}, graph)
	assert.Equal(t, []string{"A2"}, a.Candidates)
}

func TestPrune_NeverEmptiesAStar(t *testing.T) {
	a := &Star{Subject: p, Candidates: []string{"A1", "A2"}}
	b := &Star{Subject: x, Candidates: []string{"B1"}}
	skipped := prune([]*Star{a, b}, []edge{{from: 0, to: 1}}, map[string]map[string]bool{})
	assert.Equal(t, []string{"A1", "A2"}, a.Candidates)
	assert.Equal(t, []string{"B1"}, b.Candidates)
	assert.ElementsMatch(t, []*Star{a, b}, skipped)
}

func TestSubset(t *testing.T) {
	assert.True(t, subset(nil, []string{"a"}))
	assert.True(t, subset([]string{"a"}, []string{"b", "a"}))
	assert.False(t, subset([]string{"a", "c"}, []string{"a"}))
}
