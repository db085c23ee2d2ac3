// Package decompose rewrites a parsed query into a tree of Service leaves,
// each answered by one source of the federation.
//
// Per join block, triples are partitioned into stars by subject. Every
// star is resolved to candidate molecules (by constant rdf:type, by its
// constant predicates, or by the ranges pointing at it), candidates of
// connected stars are pruned against the molecule link graph and refined
// by predicate ranges, and each star is routed through the wrappers of its
// molecules. Services on the same endpoint sharing a variable are merged
// and filters are attached to the innermost node binding their variables.
//
// A star without candidates fails the whole decomposition with an
// UnserviceableError; a partial plan is never returned.
package decompose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/fedquery/internal/catalog"
	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/queryir"
)

var tracer = otel.Tracer("fedquery/decompose")

// Decomposition is a decomposed query plus the stars it was built from.
type Decomposition struct {
	Query *queryir.Query
	Stars []Star
}

// Trace renders the stars and the decomposed tree as text.
func (d *Decomposition) Trace() string {
	var b strings.Builder
	for _, s := range d.Stars {
		fmt.Fprintf(&b, "star %s -> %s\n", s.Subject, strings.Join(s.Candidates, ", "))
		b.WriteString(ir.FormatPatterns(s.Triples, "  "))
	}
	b.WriteString(queryir.Format(d.Query.Body))
	return b.String()
}

// Services returns every Service leaf of the decomposed tree.
func (d *Decomposition) Services() []*queryir.Service {
	return queryir.Services(d.Query.Body)
}

// Decomposer decomposes queries against a catalog.
//
// Thread-safety: a Decomposer holds no per-query state and may be shared.
type Decomposer struct {
	logger *slog.Logger
}

// Option configures a Decomposer.
type Option func(*Decomposer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decomposer) {
		d.logger = l
	}
}

// New creates a decomposer.
func New(opts ...Option) *Decomposer {
	d := &Decomposer{logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decompose rewrites q against c. The parsed tree is left untouched.
//
// Errors: a *UnserviceableError when some star has no serving source, or
// a queryir.ValidationError when q is malformed.
func (d *Decomposer) Decompose(ctx context.Context, c *catalog.Catalog, q *queryir.Query) (*Decomposition, error) {
	_, span := tracer.Start(ctx, "decompose.Decomposer.Decompose",
		trace.WithAttributes(attribute.String("federation", c.Federation())),
	)
	defer span.End()

	out, err := d.decompose(c, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		decompositionsTotal.WithLabelValues(status(err)).Inc()
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("stars", len(out.Stars)),
		attribute.Int("services", len(out.Services())),
	)
	decompositionsTotal.WithLabelValues("ok").Inc()
	return out, nil
}

func (d *Decomposer) decompose(c *catalog.Catalog, q *queryir.Query) (*Decomposition, error) {
	if res := queryir.Validate(q); !res.Valid {
		return nil, fmt.Errorf("invalid query: %w", res.Err())
	}
	w := &walk{d: d, c: c}
	body, err := w.union(q.Body)
	if err != nil {
		return nil, err
	}
	return &Decomposition{
		Query: &queryir.Query{
			Projection: append([]string(nil), q.Projection...),
			Distinct:   q.Distinct,
			Limit:      q.Limit,
			Body:       body,
		},
		Stars: w.stars,
	}, nil
}

// walk carries one decomposition through the tree.
type walk struct {
	d     *Decomposer
	c     *catalog.Catalog
	stars []Star
}

func (w *walk) union(u *queryir.UnionBlock) (*queryir.UnionBlock, error) {
	out := &queryir.UnionBlock{Filters: append([]*queryir.Filter(nil), u.Filters...)}
	for _, br := range u.Branches {
		el, err := w.element(br)
		if err != nil {
			return nil, err
		}
		out.Branches = append(out.Branches, el)
	}
	return out, nil
}

func (w *walk) element(el queryir.Element) (queryir.Element, error) {
	switch e := el.(type) {
	case *queryir.JoinBlock:
		return w.join(e)
	case *queryir.UnionBlock:
		return w.union(e)
	case *queryir.Optional:
		body, err := w.union(e.Body)
		if err != nil {
			return nil, err
		}
		return &queryir.Optional{Body: body}, nil
	case *queryir.Triple:
		return w.join(&queryir.JoinBlock{Elements: []queryir.Element{e}})
	case *queryir.Service:
		return e, nil
	default:
		return nil, fmt.Errorf("unexpected element %T", el)
	}
}

// segment is a run of required group members between two optionals.
type segment struct {
	triples []ir.TriplePattern
	nested  []queryir.Element
	// bound holds the variables of every required member up to and
	// including this segment.
	bound map[string]bool
	// optional follows the segment; nil for the last one.
	optional *queryir.Optional
}

// join routes a group. Optionals keep their place: a required member
// written after an optional joins the members before it only when every
// variable it shares with the optionals in between is already bound
// there. Otherwise it stays in the segment after that optional.
func (w *walk) join(jb *queryir.JoinBlock) (*queryir.JoinBlock, error) {
	filters := append([]*queryir.Filter(nil), jb.Filters...)
	segs := []*segment{{bound: map[string]bool{}}}
	for _, el := range jb.Elements {
		switch e := el.(type) {
		case *queryir.Filter:
			filters = append(filters, e)
		case *queryir.Optional:
			out, err := w.element(e)
			if err != nil {
				return nil, err
			}
			last := segs[len(segs)-1]
			last.optional = out.(*queryir.Optional)
			segs = append(segs, &segment{bound: copyVars(last.bound)})
		case *queryir.Triple:
			placeRequired(segs, e.Pattern.Vars(), func(s *segment) {
				s.triples = append(s.triples, e.Pattern)
			})
		default:
			out, err := w.element(e)
			if err != nil {
				return nil, err
			}
			placeRequired(segs, queryir.Vars(out), func(s *segment) {
				s.nested = append(s.nested, out)
			})
		}
	}

	out := &queryir.JoinBlock{}
	for _, sg := range segs {
		var routed []queryir.Element
		if len(sg.triples) > 0 {
			stars, err := w.resolveStars(sg.triples)
			if err != nil {
				return nil, err
			}
			for _, s := range stars {
				el, err := route(w.c, s)
				if err != nil {
					return nil, err
				}
				routed = append(routed, el)
				w.stars = append(w.stars, *s)
			}
		}
		out.Elements = append(out.Elements, mergeServices(append(routed, sg.nested...))...)
		if sg.optional != nil {
			out.Elements = append(out.Elements, sg.optional)
		}
	}
	placeFilters(out, filters)
	return out, nil
}

// placeRequired adds a required member with the given variables to the
// earliest segment it can move back to.
func placeRequired(segs []*segment, vars []string, add func(*segment)) {
	at := len(segs) - 1
	for at > 0 {
		prev := segs[at-1]
		if !subset(intersectVars(vars, queryir.Vars(prev.optional)), varList(prev.bound)) {
			break
		}
		at--
	}
	add(segs[at])
	for _, sg := range segs[at:] {
		for _, v := range vars {
			sg.bound[v] = true
		}
	}
}

func copyVars(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

func varList(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func intersectVars(a, b []string) []string {
	var out []string
	for _, v := range a {
		for _, w := range b {
			if v == w {
				out = append(out, v)
				break
			}
		}
	}
	return out
}

func (w *walk) resolveStars(triples []ir.TriplePattern) ([]*Star, error) {
	stars := partition(triples)
	edges := connections(stars)
	if err := resolve(w.c, stars, edges); err != nil {
		return nil, err
	}
	for _, s := range prune(stars, edges, moleculeGraph(w.c, stars)) {
		w.d.logger.Debug("pruning would empty star, keeping candidates",
			"star", s.Subject.String(),
			"candidates", s.Candidates)
	}
	if err := refine(w.c, stars, edges); err != nil {
		return nil, err
	}
	return stars, nil
}

func status(err error) string {
	var ue *UnserviceableError
	if errors.As(err, &ue) {
		return "unserviceable"
	}
	return "invalid"
}
