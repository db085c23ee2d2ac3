package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/cayleygraph/quad"

	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/vocab"
)

// Metadata node kinds used in node IRIs.
const (
	nodeWrapper  = "wrapper"
	nodeProperty = "property"
	nodeRange    = "range"
)

// WrapperNode returns the IRI of the wrapper node of molecule mt at a source.
func WrapperNode(mt, sourceID string) string {
	return vocab.NodeIRI(nodeWrapper, ir.MustContentID(ir.DomainWrapper, mt, sourceID))
}

// PropertyNode returns the IRI of the property node of pred on molecule mt.
func PropertyNode(mt, pred string) string {
	return vocab.NodeIRI(nodeProperty, ir.MustContentID(ir.DomainProperty, mt, pred))
}

// RangeNode returns the IRI of one range of pred on molecule mt.
func RangeNode(mt, pred, rng string) string {
	return vocab.NodeIRI(nodeRange, ir.MustContentID(ir.DomainRange, mt, pred, rng))
}

func iri(s string) quad.IRI { return quad.IRI(s) }

func intLiteral(n int) quad.Value {
	return quad.TypedString{Value: quad.String(strconv.Itoa(n)), Type: quad.IRI(vocab.XSDInteger)}
}

// Stamp returns the xsd:dateTime lexical form of t, in UTC.
func Stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// TimeLiteral renders t as an xsd:dateTime literal.
func TimeLiteral(t time.Time) quad.Value {
	return quad.TypedString{Value: quad.String(Stamp(t)), Type: quad.IRI(vocab.XSDDateTime)}
}

// ModifiedQuad returns the modification timestamp triple of molecule mt.
func ModifiedQuad(mt, lexical string) quad.Quad {
	return mk(mt, vocab.MTModified, quad.TypedString{Value: quad.String(lexical), Type: quad.IRI(vocab.XSDDateTime)})
}

func mk(s string, p string, o quad.Value) quad.Quad {
	return quad.Quad{Subject: iri(s), Predicate: iri(p), Object: o}
}

// Encode serializes a molecule to metadata triples. A zero modified time
// keeps the molecule's own Modified stamp, if any.
func Encode(m ir.Molecule, modified time.Time) []quad.Quad {
	var out []quad.Quad
	out = append(out,
		mk(m.ID, vocab.RDFType, iri(vocab.MTClass)),
		mk(m.ID, vocab.MTName, quad.String(m.Name)),
		mk(m.ID, vocab.MTCardinality, intLiteral(m.Cardinality)),
	)
	if m.Description != "" {
		out = append(out, mk(m.ID, vocab.MTDescription, quad.String(m.Description)))
	}
	switch {
	case !modified.IsZero():
		out = append(out, mk(m.ID, vocab.MTModified, TimeLiteral(modified)))
	case m.Modified != "":
		out = append(out, ModifiedQuad(m.ID, m.Modified))
	}
	for _, sc := range m.SubClassOf {
		out = append(out, mk(m.ID, vocab.RDFSSubClass, iri(sc)))
	}
	for _, l := range m.LinkedTo {
		out = append(out, mk(m.ID, vocab.MTLinkedTo, iri(l)))
	}
	for _, w := range m.Wrappers {
		out = append(out, EncodeWrapper(m.ID, w)...)
	}
	for _, p := range m.Properties {
		out = append(out, EncodeProperty(m.ID, p)...)
	}
	return out
}

// EncodeWrapper serializes one wrapper of molecule mt.
func EncodeWrapper(mt string, w ir.Wrapper) []quad.Quad {
	node := WrapperNode(mt, w.SourceID)
	out := []quad.Quad{
		mk(mt, vocab.MTHasSource, iri(node)),
		mk(node, vocab.RDFType, iri(vocab.MTWrapperClass)),
		mk(node, vocab.MTSource, quad.String(w.SourceID)),
		mk(node, vocab.MTURL, iri(w.URL)),
	}
	for _, p := range w.Predicates {
		out = append(out, mk(node, vocab.MTPredicate, iri(p)))
	}
	return out
}

// EncodeProperty serializes one property of molecule mt with its ranges.
func EncodeProperty(mt string, p ir.Property) []quad.Quad {
	node := PropertyNode(mt, p.Predicate)
	out := []quad.Quad{
		mk(mt, vocab.MTHasProperty, iri(node)),
		mk(node, vocab.RDFType, iri(vocab.MTPropertyClass)),
		mk(node, vocab.MTPredicate, iri(p.Predicate)),
		mk(node, vocab.MTCardinality, intLiteral(p.Cardinality)),
	}
	if p.Label != "" {
		out = append(out, mk(node, vocab.RDFSLabel, quad.String(p.Label)))
	}
	for _, r := range p.Ranges {
		out = append(out, EncodeRange(mt, p.Predicate, r)...)
	}
	return out
}

// EncodeRange serializes one range of pred on molecule mt.
func EncodeRange(mt, pred string, r ir.Range) []quad.Quad {
	prop := PropertyNode(mt, pred)
	node := RangeNode(mt, pred, r.IRI)
	out := []quad.Quad{
		mk(prop, vocab.MTHasRange, iri(node)),
		mk(node, vocab.RDFType, iri(vocab.MTRangeClass)),
		mk(node, vocab.MTName, iri(r.IRI)),
		mk(node, vocab.MTCardinality, intLiteral(r.Cardinality)),
	}
	if r.Datatype {
		out = append(out, mk(node, vocab.MTIsDatatype,
			quad.TypedString{Value: "true", Type: quad.IRI(vocab.XSDBoolean)}))
	} else {
		out = append(out, mk(prop, vocab.MTLinkedTo, iri(r.IRI)))
	}
	return out
}

// EncodeLink serializes a discovered interlink: the molecule-level edge, the
// property-level edge and a range entry with unknown cardinality.
func EncodeLink(l ir.Link) []quad.Quad {
	out := []quad.Quad{mk(l.From, vocab.MTLinkedTo, iri(l.To))}
	return append(out, EncodeRange(l.From, l.Predicate, ir.Range{IRI: l.To, Cardinality: -1})...)
}

// Decode rebuilds molecules from metadata triples.
// Molecules are returned sorted by identifier; properties, ranges and
// wrappers are sorted by their IRIs or source identifiers.
func Decode(quads []quad.Quad) ([]ir.Molecule, error) {
	bySubject := make(map[string][]quad.Quad)
	var roots []string
	for _, q := range quads {
		s, ok := q.Subject.(quad.IRI)
		if !ok {
			continue
		}
		bySubject[string(s)] = append(bySubject[string(s)], q)
		if isIRI(q.Predicate, vocab.RDFType) && isIRI(q.Object, vocab.MTClass) {
			roots = append(roots, string(s))
		}
	}
	sort.Strings(roots)

	d := decoder{bySubject: bySubject}
	out := make([]ir.Molecule, 0, len(roots))
	for _, id := range roots {
		if len(out) > 0 && out[len(out)-1].ID == id {
			continue
		}
		m, err := d.molecule(id)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

type decoder struct {
	bySubject map[string][]quad.Quad
}

func (d decoder) molecule(id string) (ir.Molecule, error) {
	m := ir.Molecule{ID: id, Cardinality: -1}
	for _, q := range d.bySubject[id] {
		pred, _ := q.Predicate.(quad.IRI)
		switch string(pred) {
		case vocab.MTName:
			m.Name = lexical(q.Object)
		case vocab.MTDescription:
			m.Description = lexical(q.Object)
		case vocab.MTModified:
			if v := lexical(q.Object); v > m.Modified {
				m.Modified = v
			}
		case vocab.MTCardinality:
			n, err := intValue(q.Object)
			if err != nil {
				return m, fmt.Errorf("molecule %s: %w", id, err)
			}
			m.Cardinality = n
		case vocab.RDFSSubClass:
			m.SubClassOf = appendUnique(m.SubClassOf, lexical(q.Object))
		case vocab.MTLinkedTo:
			m.LinkedTo = appendUnique(m.LinkedTo, lexical(q.Object))
		case vocab.MTHasSource:
			m.Wrappers = append(m.Wrappers, d.wrapper(lexical(q.Object)))
		case vocab.MTHasProperty:
			p, err := d.property(lexical(q.Object))
			if err != nil {
				return m, fmt.Errorf("molecule %s: %w", id, err)
			}
			m.Properties = append(m.Properties, p)
		}
	}
	sort.Strings(m.SubClassOf)
	sort.Strings(m.LinkedTo)
	sort.Slice(m.Wrappers, func(i, j int) bool { return m.Wrappers[i].SourceID < m.Wrappers[j].SourceID })
	sort.Slice(m.Properties, func(i, j int) bool { return m.Properties[i].Predicate < m.Properties[j].Predicate })
	return m, nil
}

func (d decoder) wrapper(node string) ir.Wrapper {
	var w ir.Wrapper
	for _, q := range d.bySubject[node] {
		pred, _ := q.Predicate.(quad.IRI)
		switch string(pred) {
		case vocab.MTSource:
			w.SourceID = lexical(q.Object)
		case vocab.MTURL:
			w.URL = lexical(q.Object)
		case vocab.MTPredicate:
			w.Predicates = appendUnique(w.Predicates, lexical(q.Object))
		}
	}
	sort.Strings(w.Predicates)
	return w
}

func (d decoder) property(node string) (ir.Property, error) {
	p := ir.Property{Cardinality: -1}
	for _, q := range d.bySubject[node] {
		pred, _ := q.Predicate.(quad.IRI)
		switch string(pred) {
		case vocab.MTPredicate:
			p.Predicate = lexical(q.Object)
		case vocab.RDFSLabel:
			p.Label = lexical(q.Object)
		case vocab.MTCardinality:
			n, err := intValue(q.Object)
			if err != nil {
				return p, fmt.Errorf("property %s: %w", node, err)
			}
			p.Cardinality = n
		case vocab.MTHasRange:
			r, err := d.rng(lexical(q.Object))
			if err != nil {
				return p, err
			}
			p.Ranges = mergeRanges(p.Ranges, []ir.Range{r})
		}
	}
	sort.Slice(p.Ranges, func(i, j int) bool { return p.Ranges[i].IRI < p.Ranges[j].IRI })
	return p, nil
}

func (d decoder) rng(node string) (ir.Range, error) {
	r := ir.Range{Cardinality: -1}
	for _, q := range d.bySubject[node] {
		pred, _ := q.Predicate.(quad.IRI)
		switch string(pred) {
		case vocab.MTName:
			r.IRI = lexical(q.Object)
		case vocab.MTCardinality:
			n, err := intValue(q.Object)
			if err != nil {
				return r, fmt.Errorf("range %s: %w", node, err)
			}
			r.Cardinality = n
		case vocab.MTIsDatatype:
			r.Datatype = lexical(q.Object) == "true"
		}
	}
	return r, nil
}

func isIRI(v quad.Value, want string) bool {
	i, ok := v.(quad.IRI)
	return ok && string(i) == want
}

// lexical returns the IRI or the lexical form of a literal.
func lexical(v quad.Value) string {
	switch val := v.(type) {
	case quad.IRI:
		return string(val)
	case quad.String:
		return string(val)
	case quad.TypedString:
		return string(val.Value)
	case quad.LangString:
		return string(val.Value)
	case quad.BNode:
		return string(val)
	case nil:
		return ""
	default:
		return v.String()
	}
}

func intValue(v quad.Value) (int, error) {
	n, err := strconv.Atoi(lexical(v))
	if err != nil {
		return 0, fmt.Errorf("cardinality %q is not an integer", lexical(v))
	}
	return n, nil
}
