package decompose

import (
	"sort"

	"github.com/roach88/fedquery/internal/catalog"
	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/vocab"
)

// Star is a star-shaped subquery: the triple patterns sharing one subject,
// and the molecules that may answer it.
type Star struct {
	Subject    ir.Term            `json:"subject"`
	Triples    []ir.TriplePattern `json:"triples"`
	Candidates []string           `json:"candidates"`
}

// Predicates returns the constant predicates of the star other than
// rdf:type, in first-seen order.
func (s *Star) Predicates() []string {
	var out []string
	for _, tp := range s.Triples {
		if tp.Predicate.Kind != ir.TermIRI || tp.Predicate.Value == vocab.RDFType {
			continue
		}
		out = appendUnique(out, tp.Predicate.Value)
	}
	return out
}

// Types returns the constant objects of the star's rdf:type triples.
func (s *Star) Types() []string {
	var out []string
	for _, tp := range s.Triples {
		if tp.Predicate.Kind == ir.TermIRI && tp.Predicate.Value == vocab.RDFType && tp.Object.Kind == ir.TermIRI {
			out = appendUnique(out, tp.Object.Value)
		}
	}
	return out
}

// Vars returns the variables of the star's triples.
func (s *Star) Vars() []string {
	return ir.PatternVars(s.Triples)
}

// partition groups triples into stars by subject, in first-seen order.
func partition(triples []ir.TriplePattern) []*Star {
	var stars []*Star
	index := make(map[ir.Term]*Star)
	for _, tp := range triples {
		s, ok := index[tp.Subject]
		if !ok {
			s = &Star{Subject: tp.Subject}
			index[tp.Subject] = s
			stars = append(stars, s)
		}
		s.Triples = append(s.Triples, tp)
	}
	return stars
}

// edge connects star from to star to: a triple of from has to's subject
// variable as its object. Predicate is empty when the triple's predicate
// is a variable.
type edge struct {
	from, to  int
	predicate string
}

func connections(stars []*Star) []edge {
	var out []edge
	for i, a := range stars {
		for _, tp := range a.Triples {
			if tp.Object.Kind != ir.TermVariable && tp.Object.Kind != ir.TermBlank {
				continue
			}
			for j, b := range stars {
				if i == j || b.Subject != tp.Object {
					continue
				}
				e := edge{from: i, to: j}
				if tp.Predicate.Kind == ir.TermIRI {
					e.predicate = tp.Predicate.Value
				}
				out = append(out, e)
			}
		}
	}
	return out
}

// connected reports whether star i takes part in any edge.
func connected(edges []edge, i int) bool {
	for _, e := range edges {
		if e.from == i || e.to == i {
			return true
		}
	}
	return false
}

// resolve assigns the initial candidate molecules of every star.
func resolve(c *catalog.Catalog, stars []*Star, edges []edge) error {
	var deferred []int
	for i, s := range stars {
		if types := s.Types(); len(types) > 0 {
			for _, typ := range types {
				m, ok := c.FindMolecule(typ)
				if !ok {
					return unserviceable(s, "type %s is not in the catalog", typ)
				}
				for _, p := range s.Predicates() {
					if !m.HasPredicate(p) {
						return unserviceable(s, "molecule %s has no predicate %s", typ, p)
					}
				}
				s.Candidates = appendUnique(s.Candidates, typ)
			}
			sort.Strings(s.Candidates)
			continue
		}
		if preds := s.Predicates(); len(preds) > 0 {
			found := c.FindByPredicates(preds)
			if len(found) == 0 {
				return unserviceable(s, "no molecule exposes all of %v", preds)
			}
			s.Candidates = sortedKeys(found)
			continue
		}
		deferred = append(deferred, i)
	}

	for _, i := range deferred {
		s := stars[i]
		if connected(edges, i) {
			s.Candidates = rangeCandidates(c, stars, edges, i)
		}
		if len(s.Candidates) == 0 {
			s.Candidates = c.IDs()
		}
		if len(s.Candidates) == 0 {
			return unserviceable(s, "the catalog has no molecules")
		}
	}
	return nil
}

// rangeCandidates returns the molecules that the declared ranges of the
// predicates pointing at star i admit.
func rangeCandidates(c *catalog.Catalog, stars []*Star, edges []edge, i int) []string {
	var out []string
	for _, e := range edges {
		if e.to != i || e.predicate == "" || e.predicate == vocab.RDFType {
			continue
		}
		for _, mt := range stars[e.from].Candidates {
			m, ok := c.FindMolecule(mt)
			if !ok {
				continue
			}
			prop, ok := m.Property(e.predicate)
			if !ok {
				continue
			}
			for _, r := range prop.Ranges {
				if _, known := c.FindMolecule(r.IRI); known {
					out = appendUnique(out, r.IRI)
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

// moleculeGraph returns, for every candidate, the candidates reachable
// from it through links or property ranges.
func moleculeGraph(c *catalog.Catalog, stars []*Star) map[string]map[string]bool {
	all := make(map[string]bool)
	for _, s := range stars {
		for _, mt := range s.Candidates {
			all[mt] = true
		}
	}
	graph := make(map[string]map[string]bool, len(all))
	for mt := range all {
		out := make(map[string]bool)
		for _, l := range c.Links(mt) {
			if all[l] {
				out[l] = true
			}
		}
		graph[mt] = out
	}
	return graph
}

// prune keeps, for every connected star pair, only candidates reachable
// from or reaching a candidate of the other star. A pruning step that
// would empty a star is skipped, so a star is never left without
// candidates. Returns the stars whose pruning was skipped.
func prune(stars []*Star, edges []edge, graph map[string]map[string]bool) []*Star {
	linked := func(a, b string) bool {
		return graph[a][b] || graph[b][a]
	}
	reaches := func(mt string, others []string) bool {
		for _, o := range others {
			if linked(mt, o) {
				return true
			}
		}
		return false
	}

	var skipped []*Star
	for changed := true; changed; {
		changed = false
		for _, e := range edges {
			a, b := stars[e.from], stars[e.to]
			for _, pair := range [][2]*Star{{a, b}, {b, a}} {
				s, other := pair[0], pair[1]
				var keep []string
				for _, mt := range s.Candidates {
					if reaches(mt, other.Candidates) {
						keep = append(keep, mt)
					}
				}
				switch {
				case len(keep) == 0:
					if !containsStar(skipped, s) {
						skipped = append(skipped, s)
					}
				case len(keep) < len(s.Candidates):
					s.Candidates = keep
					changed = true
				}
			}
		}
	}
	return skipped
}

// refine restricts both ends of every constant-predicate edge by the
// predicate's declared ranges: the subject star keeps molecules whose
// property ranges over a candidate of the object star, and the object
// star keeps the molecules those ranges admit.
func refine(c *catalog.Catalog, stars []*Star, edges []edge) error {
	for changed := true; changed; {
		changed = false
		for _, e := range edges {
			if e.predicate == "" || e.predicate == vocab.RDFType {
				continue
			}
			a, b := stars[e.from], stars[e.to]
			targets := make(map[string]bool, len(b.Candidates))
			for _, mt := range b.Candidates {
				targets[mt] = true
			}

			var keepA []string
			admitted := make(map[string]bool)
			for _, mt := range a.Candidates {
				m, ok := c.FindMolecule(mt)
				if !ok {
					continue
				}
				prop, ok := m.Property(e.predicate)
				if !ok {
					continue
				}
				matched := false
				for _, r := range prop.Ranges {
					if targets[r.IRI] {
						admitted[r.IRI] = true
						matched = true
					}
				}
				if matched {
					keepA = append(keepA, mt)
				}
			}
			if len(keepA) == 0 {
				return unserviceable(a, "predicate %s does not range over any of %v", e.predicate, b.Candidates)
			}

			var keepB []string
			for _, mt := range b.Candidates {
				if admitted[mt] {
					keepB = append(keepB, mt)
				}
			}
			if len(keepA) < len(a.Candidates) || len(keepB) < len(b.Candidates) {
				changed = true
			}
			a.Candidates, b.Candidates = keepA, keepB
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func containsStar(list []*Star, s *Star) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func subset(sub, super []string) bool {
	for _, v := range sub {
		found := false
		for _, w := range super {
			if v == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
