package catalog

import (
	"sort"

	"github.com/roach88/fedquery/internal/ir"
)

// Merge combines two descriptions of the same molecule, typically produced
// from different sources. Properties, ranges and wrappers are unioned;
// cardinalities add up, with -1 (unknown) absorbing into any known value.
// The result shares no slices with its inputs.
func Merge(a, b ir.Molecule) ir.Molecule {
	out := ir.Molecule{
		ID:          a.ID,
		Name:        a.Name,
		Description: a.Description,
		Cardinality: addCardinality(a.Cardinality, b.Cardinality),
	}
	if out.Name == "" {
		out.Name = b.Name
	}
	if out.Description == "" {
		out.Description = b.Description
	}
	out.Modified = a.Modified
	if b.Modified > out.Modified {
		out.Modified = b.Modified
	}

	props := make(map[string]*ir.Property)
	var order []string
	for _, src := range [][]ir.Property{a.Properties, b.Properties} {
		for _, p := range src {
			existing, ok := props[p.Predicate]
			if !ok {
				cp := ir.Property{Predicate: p.Predicate, Label: p.Label, Cardinality: p.Cardinality}
				cp.Ranges = append([]ir.Range(nil), p.Ranges...)
				props[p.Predicate] = &cp
				order = append(order, p.Predicate)
				continue
			}
			existing.Cardinality = addCardinality(existing.Cardinality, p.Cardinality)
			if existing.Label == "" {
				existing.Label = p.Label
			}
			existing.Ranges = mergeRanges(existing.Ranges, p.Ranges)
		}
	}
	for _, pred := range order {
		out.Properties = append(out.Properties, *props[pred])
	}

	wrappers := make(map[string]*ir.Wrapper)
	var worder []string
	for _, src := range [][]ir.Wrapper{a.Wrappers, b.Wrappers} {
		for _, w := range src {
			existing, ok := wrappers[w.SourceID]
			if !ok {
				cp := ir.Wrapper{SourceID: w.SourceID, URL: w.URL, Predicates: append([]string(nil), w.Predicates...)}
				wrappers[w.SourceID] = &cp
				worder = append(worder, w.SourceID)
				continue
			}
			for _, p := range w.Predicates {
				existing.Predicates = appendUnique(existing.Predicates, p)
			}
		}
	}
	sort.Strings(worder)
	for _, id := range worder {
		out.Wrappers = append(out.Wrappers, *wrappers[id])
	}

	for _, s := range append(append([]string(nil), a.SubClassOf...), b.SubClassOf...) {
		out.SubClassOf = appendUnique(out.SubClassOf, s)
	}
	for _, l := range append(append([]string(nil), a.LinkedTo...), b.LinkedTo...) {
		out.LinkedTo = appendUnique(out.LinkedTo, l)
	}
	sort.Strings(out.SubClassOf)
	sort.Strings(out.LinkedTo)
	return out
}

func mergeRanges(a, b []ir.Range) []ir.Range {
	out := append([]ir.Range(nil), a...)
	for _, r := range b {
		found := false
		for i := range out {
			if out[i].IRI == r.IRI {
				out[i].Cardinality = addCardinality(out[i].Cardinality, r.Cardinality)
				out[i].Datatype = out[i].Datatype || r.Datatype
				found = true
				break
			}
		}
		if !found {
			out = append(out, r)
		}
	}
	return out
}

func addCardinality(a, b int) int {
	switch {
	case a < 0:
		return b
	case b < 0:
		return a
	default:
		return a + b
	}
}

// Clone returns a deep copy of a molecule.
func Clone(m ir.Molecule) ir.Molecule {
	out := m
	out.Properties = make([]ir.Property, len(m.Properties))
	for i, p := range m.Properties {
		p.Ranges = append([]ir.Range(nil), p.Ranges...)
		out.Properties[i] = p
	}
	out.Wrappers = make([]ir.Wrapper, len(m.Wrappers))
	for i, w := range m.Wrappers {
		w.Predicates = append([]string(nil), w.Predicates...)
		out.Wrappers[i] = w
	}
	out.SubClassOf = append([]string(nil), m.SubClassOf...)
	out.LinkedTo = append([]string(nil), m.LinkedTo...)
	return out
}
