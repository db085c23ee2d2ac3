package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/cayleygraph/quad"

	"github.com/roach88/fedquery/internal/catalog"
	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/querysparql"
	"github.com/roach88/fedquery/internal/sparql"
	"github.com/roach88/fedquery/internal/vocab"
)

// Sampling bounds for the predicate discovery fallback: up to
// DefaultSampleRounds pages of DefaultSamplePage subjects are probed.
const (
	DefaultSampleRounds = 50
	DefaultSamplePage   = 100
)

// Builder probes data sources and turns them into molecules.
type Builder struct {
	pager  *sparql.Paginator
	writer *BatchWriter
	logger *slog.Logger
	now    func() time.Time
	intn   func(int) int

	pageSize     int
	sampleRounds int
	samplePage   int
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// WithPageSize sets the initial page size of paginated probes.
func WithPageSize(n int) Option {
	return func(b *Builder) {
		b.pageSize = n
	}
}

// WithSampling sets the number of pages and the page size used to collect
// subjects for the sampling fallback.
func WithSampling(rounds, page int) Option {
	return func(b *Builder) {
		b.sampleRounds = rounds
		b.samplePage = page
	}
}

// WithRand sets the random source used to pick a sample instance.
func WithRand(r *rand.Rand) Option {
	return func(b *Builder) {
		b.intn = r.IntN
	}
}

// WithNow sets the clock used for modification timestamps.
func WithNow(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// NewBuilder creates a builder probing sources through client and writing
// through writer.
func NewBuilder(client sparql.Client, writer *BatchWriter, opts ...Option) *Builder {
	b := &Builder{
		writer:       writer,
		logger:       slog.Default(),
		now:          time.Now,
		intn:         rand.IntN,
		pageSize:     sparql.DefaultPageSize,
		sampleRounds: DefaultSampleRounds,
		samplePage:   DefaultSamplePage,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.pager = sparql.NewPaginator(client, b.logger)
	return b
}

func (b *Builder) values(ctx context.Context, src ir.DataSource, query, name string) ([]string, sparql.Status, error) {
	return b.pager.Values(ctx, src.URL, query, name, sparql.PageOptions{PageSize: b.pageSize})
}

// DiscoverTypes returns the classes of a source. Seed types, when given,
// are used as is; otherwise the distinct rdf:type objects are retrieved
// and system vocabulary classes are dropped.
func (b *Builder) DiscoverTypes(ctx context.Context, src ir.DataSource, seed []string) ([]string, error) {
	if len(seed) > 0 {
		return append([]string(nil), seed...), nil
	}
	types, status, err := b.values(ctx, src, querysparql.Types(), "t")
	if err != nil {
		return nil, fmt.Errorf("discover types of %s: %w", src.URL, err)
	}
	if status == sparql.StatusFailed && len(types) == 0 {
		return nil, fmt.Errorf("discover types of %s: source did not answer", src.URL)
	}
	out := make([]string, 0, len(types))
	for _, t := range types {
		if vocab.IsSystem(t) || ir.ValueTypeOf(t) != ir.ValueURI {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// DiscoverPredicates returns the predicates used by instances of typ.
//
// When the paginated primary query fails, the predicates of one instance
// picked at random from the probed subjects are returned instead.
func (b *Builder) DiscoverPredicates(ctx context.Context, src ir.DataSource, typ string) ([]string, error) {
	preds, status, err := b.values(ctx, src, querysparql.Predicates(typ), "p")
	if err != nil {
		return nil, fmt.Errorf("discover predicates of %s: %w", typ, err)
	}
	if status != sparql.StatusFailed {
		return preds, nil
	}
	return b.samplePredicates(ctx, src, typ)
}

func (b *Builder) samplePredicates(ctx context.Context, src ir.DataSource, typ string) ([]string, error) {
	samplingFallbacks.Inc()
	subjects, _, err := b.pager.Values(ctx, src.URL, querysparql.Instances(typ), "s", sparql.PageOptions{
		PageSize:    b.samplePage,
		MaxRequests: b.sampleRounds,
	})
	if err != nil {
		return nil, fmt.Errorf("sample instances of %s: %w", typ, err)
	}
	if len(subjects) == 0 {
		b.logger.Warn("predicate sampling found no instances",
			"source", src.ID,
			"type", typ)
		return nil, nil
	}
	subject := subjects[b.intn(len(subjects))]
	b.logger.Warn("predicate discovery fell back to sampling",
		"source", src.ID,
		"type", typ,
		"subjects", len(subjects),
		"sample", subject)

	preds, _, err := b.values(ctx, src, querysparql.SubjectPredicates(subject), "p")
	if err != nil {
		return nil, fmt.Errorf("sample predicates of %s: %w", subject, err)
	}
	return preds, nil
}

// DiscoverRanges returns the ranges of pred on instances of typ.
//
// Declared rdfs:range values are used when present; otherwise the classes
// of the objects actually reached are sampled. Datatypes of literal objects
// are always added.
func (b *Builder) DiscoverRanges(ctx context.Context, src ir.DataSource, typ, pred string) ([]ir.Range, error) {
	declared, _, err := b.values(ctx, src, querysparql.DeclaredRange(pred), "r")
	if err != nil {
		return nil, fmt.Errorf("discover range of %s: %w", pred, err)
	}
	classes := declared
	if len(classes) == 0 {
		classes, _, err = b.values(ctx, src, querysparql.InstanceRange(typ, pred), "r")
		if err != nil {
			return nil, fmt.Errorf("discover instance range of %s: %w", pred, err)
		}
	}
	datatypes, _, err := b.values(ctx, src, querysparql.DatatypeRange(typ, pred), "r")
	if err != nil {
		return nil, fmt.Errorf("discover datatype range of %s: %w", pred, err)
	}

	var out []ir.Range
	seen := make(map[string]bool)
	add := func(iri string, datatype bool) {
		if iri == "" || seen[iri] {
			return
		}
		if !datatype && vocab.IsSystem(iri) && !vocab.IsDatatype(iri) {
			return
		}
		seen[iri] = true
		out = append(out, ir.Range{IRI: iri, Datatype: datatype || vocab.IsDatatype(iri), Cardinality: -1})
	}
	for _, c := range classes {
		add(c, false)
	}
	for _, d := range datatypes {
		add(d, true)
	}
	return out, nil
}

// Cardinality runs one count probe. Failures are logged and reported as -1.
func (b *Builder) Cardinality(ctx context.Context, src ir.DataSource, shape querysparql.CountShape) int {
	n, err := b.count(ctx, src, querysparql.Count(shape))
	if err != nil {
		b.logger.Debug("cardinality probe failed",
			"source", src.ID,
			"type", shape.Type,
			"predicate", shape.Predicate,
			"range", shape.Range,
			"error", err)
		return -1
	}
	return n
}

// CountTriples returns the number of triples a source holds.
func (b *Builder) CountTriples(ctx context.Context, src ir.DataSource) (int, error) {
	n, err := b.count(ctx, src, querysparql.CountTriples())
	if err != nil {
		return -1, fmt.Errorf("count triples of %s: %w", src.URL, err)
	}
	return n, nil
}

func (b *Builder) count(ctx context.Context, src ir.DataSource, query string) (int, error) {
	res, err := b.pager.Client().Query(ctx, src.URL, query)
	if err != nil {
		return -1, err
	}
	if len(res.Bindings) == 0 {
		return -1, fmt.Errorf("empty count result")
	}
	v, ok := res.Bindings[0]["count"]
	if !ok {
		return -1, fmt.Errorf("count result has no ?count")
	}
	n, err := strconv.Atoi(strings.TrimSpace(v.Value))
	if err != nil {
		return -1, fmt.Errorf("count %q is not an integer", v.Value)
	}
	return n, nil
}

// SubClasses returns the declared super classes of typ, without system classes.
func (b *Builder) SubClasses(ctx context.Context, src ir.DataSource, typ string) ([]string, error) {
	scs, _, err := b.values(ctx, src, querysparql.SubClasses(typ), "sc")
	if err != nil {
		return nil, fmt.Errorf("discover subclasses of %s: %w", typ, err)
	}
	var out []string
	for _, sc := range scs {
		if !vocab.IsSystem(sc) && sc != typ {
			out = append(out, sc)
		}
	}
	return out, nil
}

// Describe builds the molecule of one class at one source.
func (b *Builder) Describe(ctx context.Context, src ir.DataSource, typ string) (ir.Molecule, error) {
	m := ir.Molecule{
		ID:          typ,
		Name:        vocab.LocalName(typ),
		Cardinality: b.Cardinality(ctx, src, querysparql.CountShape{Type: typ}),
	}
	scs, err := b.SubClasses(ctx, src, typ)
	if err != nil {
		return m, err
	}
	m.SubClassOf = scs

	preds, err := b.DiscoverPredicates(ctx, src, typ)
	if err != nil {
		return m, err
	}
	for _, pred := range preds {
		p := ir.Property{
			Predicate:   pred,
			Label:       vocab.LocalName(pred),
			Cardinality: b.Cardinality(ctx, src, querysparql.CountShape{Type: typ, Predicate: pred}),
		}
		if pred != vocab.RDFType {
			ranges, err := b.DiscoverRanges(ctx, src, typ, pred)
			if err != nil {
				return m, err
			}
			for i, r := range ranges {
				ranges[i].Cardinality = b.Cardinality(ctx, src, querysparql.CountShape{
					Type:      typ,
					Predicate: pred,
					Range:     r.IRI,
					Datatype:  r.Datatype,
				})
			}
			p.Ranges = ranges
		}
		m.Properties = append(m.Properties, p)
	}
	m.Wrappers = []ir.Wrapper{{SourceID: src.ID, URL: src.URL, Predicates: preds}}
	moleculesDiscovered.Inc()
	return m, nil
}

// DescribeSource builds the molecules of every class at a source.
func (b *Builder) DescribeSource(ctx context.Context, src ir.DataSource, seed []string) ([]ir.Molecule, error) {
	types, err := b.DiscoverTypes(ctx, src, seed)
	if err != nil {
		return nil, err
	}
	b.logger.Info("describing source",
		"source", src.ID,
		"url", src.URL,
		"types", len(types))

	out := make([]ir.Molecule, 0, len(types))
	for _, typ := range types {
		m, err := b.Describe(ctx, src, typ)
		if err != nil {
			return nil, fmt.Errorf("describe %s at %s: %w", typ, src.ID, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Build describes every queryable source of a federation and writes the
// resulting catalog to the federation graph.
//
// With an existing catalog, molecules already known are updated in place
// (changed triples plus the modification timestamp), discovered links are
// kept, and molecules no longer produced by any source are deleted.
func (b *Builder) Build(ctx context.Context, federation string, sources []ir.DataSource, existing *catalog.Catalog) (*catalog.Catalog, error) {
	var described []ir.Molecule
	for _, src := range sources {
		if src.Type != "" && src.Type != ir.SourceSPARQL {
			b.logger.Info("skipping non-SPARQL source", "source", src.ID, "type", src.Type)
			continue
		}
		ms, err := b.DescribeSource(ctx, src, nil)
		if err != nil {
			return nil, err
		}
		described = append(described, ms...)
	}
	fresh := catalog.New(federation, described, sources)

	graph := vocab.GraphFor(federation)
	now := b.now()
	var (
		created []quad.Quad
		final   []ir.Molecule
	)
	for _, m := range fresh.Molecules() {
		if existing != nil {
			if old, ok := existing.FindMolecule(m.ID); ok {
				updated, err := b.Update(ctx, federation, *old, CarryLinks(*old, *m))
				if err != nil {
					return nil, err
				}
				final = append(final, updated)
				continue
			}
		}
		created = append(created, catalog.Encode(*m, now)...)
		cp := catalog.Clone(*m)
		cp.Modified = catalog.Stamp(now)
		final = append(final, cp)
	}
	if err := b.writer.Write(ctx, graph, created); err != nil {
		return nil, fmt.Errorf("write metadata of %s: %w", federation, err)
	}

	if existing != nil {
		var stale []quad.Quad
		for _, old := range existing.Molecules() {
			if _, ok := fresh.FindMolecule(old.ID); !ok {
				stale = append(stale, catalog.Encode(*old, time.Time{})...)
			}
		}
		if len(stale) > 0 {
			if err := b.writer.Update(ctx, graph, stale, nil); err != nil {
				return nil, fmt.Errorf("delete stale metadata of %s: %w", federation, err)
			}
		}
	}

	b.logger.Info("metadata built",
		"federation", federation,
		"sources", len(sources),
		"molecules", len(final),
		"triples", len(created))
	return catalog.New(federation, final, sources), nil
}
