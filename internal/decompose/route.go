package decompose

import (
	"sort"
	"strings"

	"github.com/roach88/fedquery/internal/catalog"
	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/queryir"
	"github.com/roach88/fedquery/internal/vocab"
)

// route turns a resolved star into Service leaves. Each candidate molecule
// yields one alternative; several alternatives form a union.
func route(c *catalog.Catalog, s *Star) (queryir.Element, error) {
	var alts []queryir.Element
	seen := make(map[string]queryir.Element)
	for _, mt := range s.Candidates {
		m, ok := c.FindMolecule(mt)
		if !ok {
			continue
		}
		el, ok := routeMolecule(c, m, s.Triples)
		if !ok {
			continue
		}
		key := queryir.Format(el)
		if prev, dup := seen[key]; dup {
			if svc, ok := prev.(*queryir.Service); ok {
				svc.Molecules = appendUnique(svc.Molecules, mt)
			}
			continue
		}
		seen[key] = el
		alts = append(alts, el)
	}
	switch len(alts) {
	case 0:
		return nil, unserviceable(s, "no source of %v serves all its predicates", s.Candidates)
	case 1:
		return alts[0], nil
	default:
		return &queryir.UnionBlock{Branches: alts}, nil
	}
}

// routeMolecule routes triples through the wrappers of one molecule.
//
// Wrappers covering every triple become alternative services. Without
// such a wrapper the triples are split: triples only one wrapper covers go
// to that wrapper, and triples several wrappers cover form a union over
// those wrappers, joined with the rest on the star's subject. Class
// triples (rdf:type with a constant class) are repeated in every
// exclusive service instead of forming a union, so an entity typed at
// several sources is not returned once per source.
func routeMolecule(c *catalog.Catalog, m *ir.Molecule, triples []ir.TriplePattern) (queryir.Element, bool) {
	var wrappers []ir.Wrapper
	for _, w := range m.Wrappers {
		if src, ok := c.Source(w.SourceID); ok && src.Type != "" && src.Type != ir.SourceSPARQL {
			continue
		}
		wrappers = append(wrappers, w)
	}
	if len(wrappers) == 0 {
		return nil, false
	}

	var full []queryir.Element
	for _, w := range wrappers {
		if coversAll(w, triples) {
			full = append(full, service(w, m.ID, triples))
		}
	}
	switch len(full) {
	case 0:
	case 1:
		return full[0], true
	default:
		return &queryir.UnionBlock{Branches: full}, true
	}

	// Split by coverage.
	exclusive := make(map[string][]ir.TriplePattern)
	var exclusiveOrder []ir.Wrapper
	shared := make(map[string][]ir.TriplePattern)
	sharedBy := make(map[string][]ir.Wrapper)
	var sharedOrder []string
	var classes []ir.TriplePattern
	for _, tp := range triples {
		if isClassTriple(tp) {
			classes = append(classes, tp)
			continue
		}
		var by []ir.Wrapper
		for _, w := range wrappers {
			if covers(w, tp) {
				by = append(by, w)
			}
		}
		switch len(by) {
		case 0:
			return nil, false
		case 1:
			id := by[0].SourceID
			if _, ok := exclusive[id]; !ok {
				exclusiveOrder = append(exclusiveOrder, by[0])
			}
			exclusive[id] = append(exclusive[id], tp)
		default:
			key := wrapperKey(by)
			if _, ok := shared[key]; !ok {
				sharedOrder = append(sharedOrder, key)
				sharedBy[key] = by
			}
			shared[key] = append(shared[key], tp)
		}
	}

	// Without an exclusive service the class triples go into every shared
	// branch instead.
	sharedClasses := classes
	if len(exclusiveOrder) > 0 {
		sharedClasses = nil
	}
	jb := &queryir.JoinBlock{}
	for _, w := range exclusiveOrder {
		jb.Elements = append(jb.Elements, service(w, m.ID, concat(classes, exclusive[w.SourceID])))
	}
	for _, key := range sharedOrder {
		u := &queryir.UnionBlock{}
		for _, w := range sharedBy[key] {
			u.Branches = append(u.Branches, service(w, m.ID, concat(sharedClasses, shared[key])))
		}
		jb.Elements = append(jb.Elements, u)
	}
	if len(jb.Elements) == 1 {
		return jb.Elements[0], true
	}
	return jb, true
}

// covers reports whether a wrapper answers a triple. Variable predicates
// and rdf:type are answered by every wrapper of the molecule.
func covers(w ir.Wrapper, tp ir.TriplePattern) bool {
	if tp.Predicate.Kind != ir.TermIRI || tp.Predicate.Value == vocab.RDFType {
		return true
	}
	return w.Covers(tp.Predicate.Value)
}

// isClassTriple reports whether tp is an rdf:type triple with a constant
// class.
func isClassTriple(tp ir.TriplePattern) bool {
	return tp.Predicate.Kind == ir.TermIRI && tp.Predicate.Value == vocab.RDFType && tp.Object.Kind == ir.TermIRI
}

func concat(a, b []ir.TriplePattern) []ir.TriplePattern {
	out := make([]ir.TriplePattern, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}

func coversAll(w ir.Wrapper, triples []ir.TriplePattern) bool {
	for _, tp := range triples {
		if !covers(w, tp) {
			return false
		}
	}
	return true
}

func wrapperKey(ws []ir.Wrapper) string {
	ids := make([]string, len(ws))
	for i, w := range ws {
		ids[i] = w.SourceID
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

func service(w ir.Wrapper, mt string, triples []ir.TriplePattern) *queryir.Service {
	return &queryir.Service{
		Endpoint:  w.URL,
		SourceID:  w.SourceID,
		Triples:   append([]ir.TriplePattern(nil), triples...),
		Molecules: []string{mt},
	}
}

// mergeServices greedily folds top-level services that target the same
// endpoint and share a variable into one service.
func mergeServices(elements []queryir.Element) []queryir.Element {
	out := append([]queryir.Element(nil), elements...)
	for merged := true; merged; {
		merged = false
	scan:
		for i := 0; i < len(out); i++ {
			a, ok := out[i].(*queryir.Service)
			if !ok {
				continue
			}
			for j := i + 1; j < len(out); j++ {
				b, ok := out[j].(*queryir.Service)
				if !ok || a.Endpoint != b.Endpoint || !sharesVar(a.Vars(), b.Vars()) {
					continue
				}
				out[i] = mergeTwo(a, b)
				out = append(out[:j], out[j+1:]...)
				merged = true
				break scan
			}
		}
	}
	return out
}

func mergeTwo(a, b *queryir.Service) *queryir.Service {
	m := &queryir.Service{
		Endpoint:  a.Endpoint,
		SourceID:  a.SourceID,
		Triples:   append([]ir.TriplePattern(nil), a.Triples...),
		Filters:   append(append([]*queryir.Filter(nil), a.Filters...), b.Filters...),
		Molecules: append([]string(nil), a.Molecules...),
	}
	for _, tp := range b.Triples {
		dup := false
		for _, have := range m.Triples {
			if have.Equal(tp) {
				dup = true
				break
			}
		}
		if !dup {
			m.Triples = append(m.Triples, tp)
		}
	}
	for _, mt := range b.Molecules {
		m.Molecules = appendUnique(m.Molecules, mt)
	}
	return m
}

func sharesVar(a, b []string) bool {
	for _, v := range a {
		for _, w := range b {
			if v == w {
				return true
			}
		}
	}
	return false
}
