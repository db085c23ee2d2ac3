package queryir

import (
	"strings"

	"github.com/roach88/fedquery/internal/ir"
)

// Element is a member of a JoinBlock or a branch of a UnionBlock.
//
// This is a sealed interface - only types in this package implement it.
type Element interface {
	element() // Marker method - seals interface to this package
}

// Query is a SELECT query over a federation.
//
// An empty Projection means every variable of the body (SELECT *).
// Limit <= 0 means no limit.
type Query struct {
	Projection []string
	Distinct   bool
	Limit      int
	Body       *UnionBlock
}

// UnionBlock is a disjunction of branches.
// A parsed group graph pattern without UNION is a UnionBlock with one branch.
type UnionBlock struct {
	Branches []Element
	Filters  []*Filter
}

func (*UnionBlock) element() {}

// JoinBlock is a conjunction of elements.
type JoinBlock struct {
	Elements []Element
	Filters  []*Filter
}

func (*JoinBlock) element() {}

// Optional is a left-outer-joined group.
type Optional struct {
	Body *UnionBlock
}

func (*Optional) element() {}

// Triple wraps a triple pattern as a block element.
type Triple struct {
	Pattern ir.TriplePattern
}

func (*Triple) element() {}

// Filter is a FILTER constraint.
type Filter struct {
	Expr Expr
}

func (*Filter) element() {}

// Vars returns the variables the filter mentions.
func (f *Filter) Vars() []string {
	return f.Expr.Vars()
}

// String renders the filter in SPARQL syntax.
func (f *Filter) String() string {
	return "FILTER" + f.Expr.String()
}

// Service is a leaf answered by exactly one remote endpoint.
//
// Molecules lists the RDF-MTs whose wrappers routed triples here; it is
// diagnostic only.
type Service struct {
	Endpoint  string
	SourceID  string
	Triples   []ir.TriplePattern
	Filters   []*Filter
	Molecules []string
}

func (*Service) element() {}

// Vars returns the variables bound by the service's triples.
func (s *Service) Vars() []string {
	return ir.PatternVars(s.Triples)
}

// NewGroup returns a single-branch union over one join block.
func NewGroup(elements ...Element) *UnionBlock {
	return &UnionBlock{Branches: []Element{&JoinBlock{Elements: elements}}}
}

// T is shorthand for a triple element.
func T(s, p, o ir.Term) *Triple {
	return &Triple{Pattern: ir.Triple(s, p, o)}
}

// Vars returns every variable bound by the element, in first-seen order.
// Filter variables are not included because filters never bind.
func Vars(el Element) []string {
	var out []string
	add := func(vars []string) {
		for _, v := range vars {
			if !contains(out, v) {
				out = append(out, v)
			}
		}
	}
	switch e := el.(type) {
	case *Triple:
		add(e.Pattern.Vars())
	case *Service:
		add(e.Vars())
	case *Optional:
		if e.Body != nil {
			add(Vars(e.Body))
		}
	case *JoinBlock:
		for _, child := range e.Elements {
			add(Vars(child))
		}
	case *UnionBlock:
		for _, child := range e.Branches {
			add(Vars(child))
		}
	}
	return out
}

// Triples returns every triple pattern under the element in document order.
func Triples(el Element) []ir.TriplePattern {
	var out []ir.TriplePattern
	switch e := el.(type) {
	case *Triple:
		out = append(out, e.Pattern)
	case *Service:
		out = append(out, e.Triples...)
	case *Optional:
		if e.Body != nil {
			out = append(out, Triples(e.Body)...)
		}
	case *JoinBlock:
		for _, child := range e.Elements {
			out = append(out, Triples(child)...)
		}
	case *UnionBlock:
		for _, child := range e.Branches {
			out = append(out, Triples(child)...)
		}
	}
	return out
}

// Services returns every Service leaf under the element.
func Services(el Element) []*Service {
	var out []*Service
	switch e := el.(type) {
	case *Service:
		out = append(out, e)
	case *Optional:
		if e.Body != nil {
			out = append(out, Services(e.Body)...)
		}
	case *JoinBlock:
		for _, child := range e.Elements {
			out = append(out, Services(child)...)
		}
	case *UnionBlock:
		for _, child := range e.Branches {
			out = append(out, Services(child)...)
		}
	}
	return out
}

// ProjectedVars resolves SELECT * to every variable bound by the body.
func (q *Query) ProjectedVars() []string {
	if len(q.Projection) > 0 {
		return q.Projection
	}
	if q.Body == nil {
		return nil
	}
	return Vars(q.Body)
}

// Format renders a tree as indented text for diagnostics and golden traces.
func Format(el Element) string {
	var b strings.Builder
	format(&b, el, 0)
	return b.String()
}

func format(b *strings.Builder, el Element, depth int) {
	indent := strings.Repeat("  ", depth)
	switch e := el.(type) {
	case *UnionBlock:
		b.WriteString(indent + "Union\n")
		writeFilters(b, e.Filters, depth+1)
		for _, br := range e.Branches {
			format(b, br, depth+1)
		}
	case *JoinBlock:
		b.WriteString(indent + "Join\n")
		writeFilters(b, e.Filters, depth+1)
		for _, child := range e.Elements {
			format(b, child, depth+1)
		}
	case *Optional:
		b.WriteString(indent + "Optional\n")
		if e.Body != nil {
			format(b, e.Body, depth+1)
		}
	case *Service:
		b.WriteString(indent + "Service <" + e.Endpoint + ">\n")
		b.WriteString(ir.FormatPatterns(e.Triples, indent+"  "))
		writeFilters(b, e.Filters, depth+1)
	case *Triple:
		b.WriteString(indent + e.Pattern.String() + " .\n")
	case *Filter:
		b.WriteString(indent + e.String() + "\n")
	}
}

func writeFilters(b *strings.Builder, filters []*Filter, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, f := range filters {
		b.WriteString(indent + f.String() + "\n")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
