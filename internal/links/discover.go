// Package links discovers interlinks between the molecules of different
// data sources of a federation.
//
// For a source pair (A, B), the IRI objects of A's predicates are sampled
// and B is asked which classes type them. Every class that is also a
// molecule served by B becomes a link from the A molecule through the
// predicate.
package links

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/cayleygraph/quad"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/roach88/fedquery/internal/catalog"
	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/metadata"
	"github.com/roach88/fedquery/internal/querysparql"
	"github.com/roach88/fedquery/internal/sparql"
	"github.com/roach88/fedquery/internal/vocab"
)

// Defaults for the discovery bounds.
const (
	DefaultWorkers     = 3
	DefaultSampleLimit = 500
	DefaultBatchSize   = 50
)

var tracer = otel.Tracer("fedquery/links")

// Pair is one ordered source pair: links go from From's molecules to To's.
type Pair struct {
	From ir.DataSource
	To   ir.DataSource
}

// Result summarizes a discovery run.
type Result struct {
	Links  []ir.Link
	Pairs  int
	Failed []PairError
}

// PairError records a pair whose exploration was abandoned.
type PairError struct {
	Pair Pair
	Err  error
}

// Error implements the error interface.
func (e PairError) Error() string {
	return fmt.Sprintf("pair %s -> %s: %v", e.Pair.From.ID, e.Pair.To.ID, e.Err)
}

// ByPredicate groups links by predicate into sorted target molecule lists.
func ByPredicate(links []ir.Link) map[string][]string {
	out := make(map[string][]string)
	for _, l := range links {
		out[l.Predicate] = appendUnique(out[l.Predicate], l.To)
	}
	for p := range out {
		sort.Strings(out[p])
	}
	return out
}

// Discoverer runs pairwise link discovery with a bounded number of
// concurrent pair workers.
//
// Thread-safety: a Discoverer may be shared; runs writing to the same
// federation graph are serialized by the BatchWriter.
type Discoverer struct {
	client sparql.Client
	writer *metadata.BatchWriter
	logger *slog.Logger

	workers     int
	sampleLimit int
	batchSize   int
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Discoverer) {
		d.logger = l
	}
}

// WithWorkers caps the number of concurrently explored pairs.
func WithWorkers(n int) Option {
	return func(d *Discoverer) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithSampleLimit caps the objects sampled per predicate.
func WithSampleLimit(n int) Option {
	return func(d *Discoverer) {
		if n > 0 {
			d.sampleLimit = n
		}
	}
}

// WithBatchSize caps the IRIs sent in one type lookup.
func WithBatchSize(n int) Option {
	return func(d *Discoverer) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// NewDiscoverer creates a discoverer. A nil writer discovers without
// persisting.
func NewDiscoverer(client sparql.Client, writer *metadata.BatchWriter, opts ...Option) *Discoverer {
	d := &Discoverer{
		client:      client,
		writer:      writer,
		logger:      slog.Default(),
		workers:     DefaultWorkers,
		sampleLimit: DefaultSampleLimit,
		batchSize:   DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DiscoverLinks finds the links from molecules served by a to molecules
// served by b. It neither writes nor runs concurrently.
func (d *Discoverer) DiscoverLinks(ctx context.Context, c *catalog.Catalog, a, b ir.DataSource) ([]ir.Link, error) {
	if a.ID == b.ID {
		return nil, nil
	}
	targets := servedBy(c, b.ID)
	if len(targets) == 0 {
		return nil, nil
	}

	var out []ir.Link
	seen := make(map[ir.Link]bool)
	for _, m := range c.Molecules() {
		w, ok := m.Wrapper(a.ID)
		if !ok {
			continue
		}
		for _, pred := range w.Predicates {
			prop, _ := m.Property(pred)
			if !uriValued(prop) {
				continue
			}
			types, err := d.linkTypes(ctx, a, b, m.ID, pred)
			if err != nil {
				return out, err
			}
			for _, t := range types {
				if !targets[t] {
					continue
				}
				l := ir.Link{From: m.ID, Predicate: pred, To: t}
				if !seen[l] {
					seen[l] = true
					out = append(out, l)
				}
			}
		}
	}
	sortLinks(out)
	return out, nil
}

// linkTypes samples objects of pred on mt at a and returns the classes b
// assigns to them. Source errors skip the predicate; only context errors
// are returned.
func (d *Discoverer) linkTypes(ctx context.Context, a, b ir.DataSource, mt, pred string) ([]string, error) {
	res, err := d.client.Query(ctx, a.URL, querysparql.LinkObjects(mt, pred, d.sampleLimit))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		d.logger.Debug("link object sampling failed",
			"source", a.ID,
			"molecule", mt,
			"predicate", pred,
			"error", err)
		return nil, nil
	}

	var objects []string
	for _, row := range res.Bindings {
		if v, ok := row["o"]; ok && v.Type == ir.ValueURI && len(objects) < d.sampleLimit {
			objects = appendUnique(objects, v.Value)
		}
	}

	var types []string
	for start := 0; start < len(objects); start += d.batchSize {
		end := min(start+d.batchSize, len(objects))
		res, err := d.client.Query(ctx, b.URL, querysparql.TypesOf(objects[start:end]))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			d.logger.Debug("link type lookup failed",
				"source", b.ID,
				"predicate", pred,
				"error", err)
			continue
		}
		for _, row := range res.Bindings {
			if v, ok := row["t"]; ok {
				types = appendUnique(types, v.Value)
			}
		}
	}
	return types, nil
}

// DiscoverAll explores every ordered pair of distinct sources.
func (d *Discoverer) DiscoverAll(ctx context.Context, c *catalog.Catalog, sources []ir.DataSource) (*Result, error) {
	var pairs []Pair
	for _, a := range sources {
		for _, b := range sources {
			if a.ID != b.ID {
				pairs = append(pairs, Pair{From: a, To: b})
			}
		}
	}
	return d.Run(ctx, c, pairs)
}

// DiscoverFor explores the pairs between src and every other source, in
// both directions.
func (d *Discoverer) DiscoverFor(ctx context.Context, c *catalog.Catalog, src ir.DataSource, sources []ir.DataSource) (*Result, error) {
	var pairs []Pair
	for _, other := range sources {
		if other.ID == src.ID {
			continue
		}
		pairs = append(pairs, Pair{From: src, To: other}, Pair{From: other, To: src})
	}
	return d.Run(ctx, c, pairs)
}

type pairResult struct {
	pair  Pair
	links []ir.Link
	err   error
}

// Run explores pairs with at most the configured number of concurrent
// workers. Self-pairs are dropped. Results are collected and written by
// the calling goroutine as workers finish; a write failure cancels the
// remaining workers and is returned.
func (d *Discoverer) Run(ctx context.Context, c *catalog.Catalog, pairs []Pair) (*Result, error) {
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var valid []Pair
	for _, p := range pairs {
		if p.From.ID != p.To.ID {
			valid = append(valid, p)
		}
	}

	sem := semaphore.NewWeighted(int64(d.workers))
	results := make(chan pairResult)
	var wg sync.WaitGroup

	go func() {
		defer close(results)
		for _, p := range valid {
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
			wg.Add(1)
			go func(p Pair) {
				defer wg.Done()
				defer sem.Release(1)
				pairsInFlight.Inc()
				defer pairsInFlight.Dec()

				links, err := d.explore(ctx, c, p)
				select {
				case results <- pairResult{pair: p, links: links, err: err}:
				case <-ctx.Done():
				}
			}(p)
		}
		wg.Wait()
	}()

	out := &Result{}
	seen := make(map[ir.Link]bool)
	graph := vocab.GraphFor(c.Federation())
	var writeErr error
	for r := range results {
		out.Pairs++
		if r.err != nil {
			pairsTotal.WithLabelValues("failed").Inc()
			out.Failed = append(out.Failed, PairError{Pair: r.pair, Err: r.err})
			continue
		}
		pairsTotal.WithLabelValues("ok").Inc()

		var fresh []ir.Link
		for _, l := range r.links {
			if !seen[l] {
				seen[l] = true
				fresh = append(fresh, l)
			}
		}
		out.Links = append(out.Links, fresh...)
		linksFound.Add(float64(len(fresh)))

		if d.writer == nil || len(fresh) == 0 || writeErr != nil {
			continue
		}
		if err := d.writer.Write(ctx, graph, encodeLinks(fresh)); err != nil {
			writeErr = fmt.Errorf("write links of %s -> %s: %w", r.pair.From.ID, r.pair.To.ID, err)
			cancel()
		}
	}
	sortLinks(out.Links)

	if writeErr != nil {
		return out, writeErr
	}
	if err := parent.Err(); err != nil {
		return out, err
	}
	d.logger.Info("link discovery finished",
		"federation", c.Federation(),
		"pairs", out.Pairs,
		"failed", len(out.Failed),
		"links", len(out.Links))
	return out, nil
}

func (d *Discoverer) explore(ctx context.Context, c *catalog.Catalog, p Pair) ([]ir.Link, error) {
	ctx, span := tracer.Start(ctx, "links.Discoverer.explore",
		trace.WithAttributes(
			attribute.String("from", p.From.ID),
			attribute.String("to", p.To.ID),
		),
	)
	defer span.End()

	links, err := d.DiscoverLinks(ctx, c, p.From, p.To)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("links", len(links)))
	return links, nil
}

func encodeLinks(links []ir.Link) []quad.Quad {
	var out []quad.Quad
	for _, l := range links {
		out = append(out, catalog.EncodeLink(l)...)
	}
	return out
}

// servedBy returns the molecules with a wrapper at source.
func servedBy(c *catalog.Catalog, source string) map[string]bool {
	out := make(map[string]bool)
	for _, m := range c.Molecules() {
		if _, ok := m.Wrapper(source); ok {
			out[m.ID] = true
		}
	}
	return out
}

// uriValued reports whether a property may have IRI objects: it is not
// rdf:type and at least one of its ranges, if any are known, is a class.
func uriValued(p ir.Property) bool {
	if p.Predicate == vocab.RDFType {
		return false
	}
	if len(p.Ranges) == 0 {
		return true
	}
	for _, r := range p.Ranges {
		if !r.Datatype {
			return true
		}
	}
	return false
}

func sortLinks(links []ir.Link) {
	sort.Slice(links, func(i, j int) bool {
		if links[i].From != links[j].From {
			return links[i].From < links[j].From
		}
		if links[i].Predicate != links[j].Predicate {
			return links[i].Predicate < links[j].Predicate
		}
		return links[i].To < links[j].To
	})
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
