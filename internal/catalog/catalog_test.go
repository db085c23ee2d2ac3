package catalog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedquery/internal/ir"
)

const (
	ex       = "http://ex.org/"
	person   = ex + "Person"
	city     = ex + "City"
	country  = ex + "Country"
	name     = ex + "name"
	knows    = ex + "knows"
	inCounty = ex + "country"
)

func fixture() *Catalog {
	return New("demo", []ir.Molecule{
		{
			ID: person, Name: "Person", Cardinality: 10,
			Properties: []ir.Property{
				{Predicate: name, Cardinality: 10},
				{Predicate: knows, Cardinality: 4, Ranges: []ir.Range{{IRI: city, Cardinality: 4}}},
			},
			Wrappers: []ir.Wrapper{{SourceID: "s1", URL: "http://s1/sparql", Predicates: []string{name, knows}}},
		},
		{
			ID: city, Name: "City", Cardinality: 3,
			Properties: []ir.Property{
				{Predicate: name, Cardinality: 3},
				{Predicate: inCounty, Cardinality: 3},
			},
			Wrappers: []ir.Wrapper{{SourceID: "s2", URL: "http://s2/sparql", Predicates: []string{name, inCounty}}},
			LinkedTo: []string{country},
		},
		{
			ID: country, Name: "Country", Cardinality: 1,
			Properties: []ir.Property{{Predicate: name, Cardinality: 1}},
			Wrappers:   []ir.Wrapper{{SourceID: "s2", URL: "http://s2/sparql", Predicates: []string{name}}},
		},
	}, []ir.DataSource{
		{ID: "s1", URL: "http://s1/sparql", Type: ir.SourceSPARQL, Name: "people", Triples: 100},
		{ID: "s2", URL: "http://s2/sparql", Type: ir.SourceSPARQL, Name: "places", Triples: 50},
	})
}

func keys(m map[string]*ir.Molecule) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestFindByPredicatesIntersects(t *testing.T) {
	c := fixture()

	assert.ElementsMatch(t, []string{person, city, country}, keys(c.FindByPredicates([]string{name})))
	assert.ElementsMatch(t, []string{person}, keys(c.FindByPredicates([]string{name, knows})))
	assert.ElementsMatch(t, []string{city}, keys(c.FindByPredicates([]string{inCounty, name})))
}

func TestFindByPredicatesEmptyWhenAnyPredicateUnknown(t *testing.T) {
	c := fixture()

	assert.Empty(t, c.FindByPredicates([]string{name, ex + "nowhere"}))
	assert.Empty(t, c.FindByPredicates([]string{ex + "nowhere", name}))
	assert.Empty(t, c.FindByPredicates([]string{knows, inCounty}), "no molecule has both")
	assert.Empty(t, c.FindByPredicates(nil))
}

func TestFindByPredicateSortedAndCopied(t *testing.T) {
	c := fixture()

	ids := c.FindByPredicate(name)
	assert.Equal(t, []string{city, country, person}, ids)

	ids[0] = "mutated"
	assert.Equal(t, city, c.FindByPredicate(name)[0], "callers cannot mutate the index")
}

func TestPredicateIndexBuiltOnceUnderConcurrency(t *testing.T) {
	c := fixture()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Len(t, c.FindByPredicate(knows), 1)
		}()
	}
	wg.Wait()
}

func TestFindMolecule(t *testing.T) {
	c := fixture()

	m, ok := c.FindMolecule(city)
	require.True(t, ok)
	assert.Equal(t, "City", m.Name)

	_, ok = c.FindMolecule(ex + "Planet")
	assert.False(t, ok)
}

func TestGetLinks(t *testing.T) {
	c := fixture()

	m, ok := c.GetLinks(person)
	require.True(t, ok)
	assert.Equal(t, []string{city}, m.LinkedTo, "ranges that are molecules count as links")

	m, ok = c.GetLinks(person, knows)
	require.True(t, ok)
	assert.Equal(t, []string{city}, m.LinkedTo)

	m, ok = c.GetLinks(person, name)
	require.True(t, ok)
	assert.Empty(t, m.LinkedTo)

	orig, _ := c.FindMolecule(person)
	assert.Empty(t, orig.LinkedTo, "GetLinks returns a copy")

	_, ok = c.GetLinks(ex + "Planet")
	assert.False(t, ok)
}

func TestNewMergesDuplicatesAndRepairsWrappers(t *testing.T) {
	c := New("demo", []ir.Molecule{
		{ID: person, Cardinality: 5, Properties: []ir.Property{{Predicate: name, Cardinality: 5}},
			Wrappers: []ir.Wrapper{{SourceID: "s1", URL: "http://s1", Predicates: []string{name}}}},
		{ID: person, Cardinality: 7, Properties: []ir.Property{{Predicate: name, Cardinality: 7}},
			Wrappers: []ir.Wrapper{{SourceID: "s2", URL: "http://s2", Predicates: []string{name, knows}}}},
	}, nil)

	m, ok := c.FindMolecule(person)
	require.True(t, ok)
	assert.Equal(t, 12, m.Cardinality)
	assert.True(t, m.IsMultiSource())

	p, ok := m.Property(knows)
	require.True(t, ok, "wrapper predicate added to properties")
	assert.Equal(t, -1, p.Cardinality)

	p, _ = m.Property(name)
	assert.Equal(t, 12, p.Cardinality)
}

func TestSources(t *testing.T) {
	c := fixture()
	src, ok := c.Source("s2")
	require.True(t, ok)
	assert.Equal(t, "places", src.Name)
	assert.Len(t, c.Sources(), 2)
	assert.Equal(t, "demo", c.Federation())
	assert.Equal(t, 3, c.Len())
}
