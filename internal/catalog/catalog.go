// Package catalog provides the read-only, per-federation view of RDF
// Molecule Templates used at query time.
//
// A Catalog is immutable once built. Its predicate index is built lazily on
// the first predicate lookup and never mutated afterwards; refreshed
// metadata means a new Catalog, obtained through the Registry.
package catalog

import (
	"sort"
	"sync"

	"github.com/roach88/fedquery/internal/ir"
)

// Catalog is the MetadataCatalog of one federation.
//
// Thread-safety: all methods are safe for concurrent use. Returned
// molecules are shared and must not be modified.
type Catalog struct {
	federation string
	molecules  map[string]*ir.Molecule
	ids        []string
	sources    map[string]ir.DataSource

	indexOnce sync.Once
	index     map[string][]string
}

// New builds a catalog. Molecules sharing an ID are merged, and every
// wrapper predicate missing from a molecule's properties is added with
// unknown cardinality, so the wrapper/property invariant always holds.
func New(federation string, molecules []ir.Molecule, sources []ir.DataSource) *Catalog {
	c := &Catalog{
		federation: federation,
		molecules:  make(map[string]*ir.Molecule, len(molecules)),
		sources:    make(map[string]ir.DataSource, len(sources)),
	}
	for _, src := range sources {
		c.sources[src.ID] = src
	}
	for _, m := range molecules {
		if existing, ok := c.molecules[m.ID]; ok {
			merged := Merge(*existing, m)
			c.molecules[m.ID] = &merged
			continue
		}
		cp := Clone(m)
		c.molecules[m.ID] = &cp
	}
	for id, m := range c.molecules {
		ensureWrapperProperties(m)
		c.ids = append(c.ids, id)
	}
	sort.Strings(c.ids)
	return c
}

func ensureWrapperProperties(m *ir.Molecule) {
	for _, w := range m.Wrappers {
		for _, p := range w.Predicates {
			if !m.HasPredicate(p) {
				m.Properties = append(m.Properties, ir.Property{Predicate: p, Cardinality: -1})
			}
		}
	}
}

// Federation returns the federation identifier.
func (c *Catalog) Federation() string {
	return c.federation
}

// Len returns the number of molecules.
func (c *Catalog) Len() int {
	return len(c.ids)
}

// IDs returns every molecule identifier in sorted order.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.ids...)
}

// Molecules returns every molecule, sorted by identifier.
func (c *Catalog) Molecules() []*ir.Molecule {
	out := make([]*ir.Molecule, len(c.ids))
	for i, id := range c.ids {
		out[i] = c.molecules[id]
	}
	return out
}

// Sources returns the registered data sources, sorted by identifier.
func (c *Catalog) Sources() []ir.DataSource {
	out := make([]ir.DataSource, 0, len(c.sources))
	for _, s := range c.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Source returns a data source by identifier.
func (c *Catalog) Source(id string) (ir.DataSource, bool) {
	s, ok := c.sources[id]
	return s, ok
}

// FindMolecule returns the molecule whose root type is typ.
func (c *Catalog) FindMolecule(typ string) (*ir.Molecule, bool) {
	m, ok := c.molecules[typ]
	return m, ok
}

// FindByPredicate returns the identifiers of molecules exposing pred, sorted.
func (c *Catalog) FindByPredicate(pred string) []string {
	c.indexOnce.Do(c.buildIndex)
	return append([]string(nil), c.index[pred]...)
}

// FindByPredicates returns the molecules exposing every predicate in preds.
// The result is empty when any predicate has no molecule at all.
func (c *Catalog) FindByPredicates(preds []string) map[string]*ir.Molecule {
	c.indexOnce.Do(c.buildIndex)

	out := make(map[string]*ir.Molecule)
	if len(preds) == 0 {
		return out
	}
	candidates := make(map[string]bool)
	for _, id := range c.index[preds[0]] {
		candidates[id] = true
	}
	for _, p := range preds[1:] {
		ids := c.index[p]
		if len(ids) == 0 {
			return out
		}
		next := make(map[string]bool, len(ids))
		for _, id := range ids {
			if candidates[id] {
				next[id] = true
			}
		}
		candidates = next
	}
	for id := range candidates {
		out[id] = c.molecules[id]
	}
	return out
}

// buildIndex scans every property once.
func (c *Catalog) buildIndex() {
	c.index = make(map[string][]string)
	for _, id := range c.ids {
		for _, p := range c.molecules[id].Properties {
			c.index[p.Predicate] = appendUnique(c.index[p.Predicate], id)
		}
	}
}

// GetLinks returns a copy of molecule mt whose LinkedTo is restricted to
// the molecules reachable through the connecting predicates. With no
// predicates, LinkedTo is every molecule reachable through any predicate.
func (c *Catalog) GetLinks(mt string, connecting ...string) (*ir.Molecule, bool) {
	m, ok := c.molecules[mt]
	if !ok {
		return nil, false
	}
	cp := *m
	if len(connecting) == 0 {
		cp.LinkedTo = c.Links(mt)
		return &cp, true
	}
	var linked []string
	for _, pred := range connecting {
		prop, ok := m.Property(pred)
		if !ok {
			continue
		}
		for _, r := range prop.Ranges {
			if _, known := c.molecules[r.IRI]; known {
				linked = appendUnique(linked, r.IRI)
			}
		}
	}
	sort.Strings(linked)
	cp.LinkedTo = linked
	return &cp, true
}

// Links returns every known molecule reachable from mt: its recorded
// LinkedTo edges plus the ranges of its properties that are molecules.
func (c *Catalog) Links(mt string) []string {
	m, ok := c.molecules[mt]
	if !ok {
		return nil
	}
	var out []string
	for _, l := range m.LinkedTo {
		if _, known := c.molecules[l]; known {
			out = appendUnique(out, l)
		}
	}
	for _, p := range m.Properties {
		for _, r := range p.Ranges {
			if _, known := c.molecules[r.IRI]; known {
				out = appendUnique(out, r.IRI)
			}
		}
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
