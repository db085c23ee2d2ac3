package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/fedquery/internal/ir"
)

func TestMergeUnknownCardinalities(t *testing.T) {
	a := ir.Molecule{ID: person, Cardinality: -1, Properties: []ir.Property{
		{Predicate: knows, Cardinality: -1, Ranges: []ir.Range{{IRI: city, Cardinality: 2}}},
	}}
	b := ir.Molecule{ID: person, Cardinality: 4, Properties: []ir.Property{
		{Predicate: knows, Cardinality: 3, Ranges: []ir.Range{{IRI: city, Cardinality: 1}, {IRI: country, Cardinality: 1}}},
	}, SubClassOf: []string{ex + "Agent"}}

	m := Merge(a, b)
	assert.Equal(t, 4, m.Cardinality)
	p, _ := m.Property(knows)
	assert.Equal(t, 3, p.Cardinality)
	assert.Equal(t, []ir.Range{{IRI: city, Cardinality: 3}, {IRI: country, Cardinality: 1}}, p.Ranges)
	assert.Equal(t, []string{ex + "Agent"}, m.SubClassOf)

	m.Properties[0].Ranges[0].IRI = "mutated"
	assert.Equal(t, city, a.Properties[0].Ranges[0].IRI, "merge must not alias its inputs")
}

func TestMergeWrappersUnionPredicates(t *testing.T) {
	a := ir.Molecule{ID: person, Wrappers: []ir.Wrapper{{SourceID: "s2", Predicates: []string{name}}}}
	b := ir.Molecule{ID: person, Wrappers: []ir.Wrapper{
		{SourceID: "s2", Predicates: []string{knows}},
		{SourceID: "s1", Predicates: []string{name}},
	}}

	m := Merge(a, b)
	assert.Equal(t, []ir.Wrapper{
		{SourceID: "s1", Predicates: []string{name}},
		{SourceID: "s2", Predicates: []string{name, knows}},
	}, m.Wrappers)
}
