package links

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedquery/internal/catalog"
	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/metadata"
	"github.com/roach88/fedquery/internal/sparql"
	"github.com/roach88/fedquery/internal/testutil"
	"github.com/roach88/fedquery/internal/vocab"
)

const (
	ex      = "http://ex.org/"
	person  = ex + "Person"
	city    = ex + "City"
	name    = ex + "name"
	knows   = ex + "knows"
	livesIn = ex + "livesIn"
	label   = ex + "label"
)

var (
	s1 = ir.DataSource{ID: "s1", URL: "http://s1/sparql", Type: ir.SourceSPARQL}
	s2 = ir.DataSource{ID: "s2", URL: "http://s2/sparql", Type: ir.SourceSPARQL}
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture: Person at s1 with a literal name and two IRI-valued predicates,
// City at s2 with a literal label only.
func fixture() *catalog.Catalog {
	return catalog.New("fed", []ir.Molecule{
		{
			ID: person,
			Properties: []ir.Property{
				{Predicate: vocab.RDFType, Cardinality: -1},
				{Predicate: name, Cardinality: -1, Ranges: []ir.Range{{IRI: vocab.XSDString, Datatype: true}}},
				{Predicate: knows, Cardinality: -1, Ranges: []ir.Range{{IRI: person}}},
				{Predicate: livesIn, Cardinality: -1},
			},
			Wrappers: []ir.Wrapper{{SourceID: "s1", URL: s1.URL, Predicates: []string{vocab.RDFType, name, knows, livesIn}}},
		},
		{
			ID: city,
			Properties: []ir.Property{
				{Predicate: vocab.RDFType, Cardinality: -1},
				{Predicate: label, Cardinality: -1, Ranges: []ir.Range{{IRI: vocab.XSDString, Datatype: true}}},
			},
			Wrappers: []ir.Wrapper{{SourceID: "s2", URL: s2.URL, Predicates: []string{vocab.RDFType, label}}},
		},
	}, []ir.DataSource{s1, s2})
}

func linkedClient() *testutil.FakeClient {
	return testutil.NewFakeClient().
		OnResult(s1.URL, "<"+livesIn+"> ?o", testutil.Column("o", ex+"c1", ex+"c2", "not an iri")).
		OnResult(s1.URL, "<"+knows+"> ?o", testutil.Column("o", ex+"p1")).
		OnResult(s2.URL, "?x = <"+ex+"c1>", testutil.Column("t", city))
}

func TestDiscoverLinks_FindsTypedTargets(t *testing.T) {
	client := linkedClient()
	d := NewDiscoverer(client, nil, WithLogger(quiet()))

	links, err := d.DiscoverLinks(context.Background(), fixture(), s1, s2)
	require.NoError(t, err)
	assert.Equal(t, []ir.Link{{From: person, Predicate: livesIn, To: city}}, links)

	// name is literal-valued and rdf:type is excluded
	assert.Len(t, client.CallsMatching("FILTER(isIRI(?o))"), 2)
	assert.Empty(t, client.CallsMatching("<"+name+"> ?o"))
	for _, c := range client.CallsMatching("FILTER(isIRI(?o))") {
		assert.Contains(t, c.Query, "LIMIT 500")
	}
}

func TestDiscoverLinks_LiteralObjectsAreNotLookedUp(t *testing.T) {
	client := linkedClient()
	d := NewDiscoverer(client, nil, WithLogger(quiet()))

	_, err := d.DiscoverLinks(context.Background(), fixture(), s1, s2)
	require.NoError(t, err)
	for _, c := range client.CallsMatching("?x =") {
		assert.NotContains(t, c.Query, "not an iri")
	}
}

func TestDiscoverLinks_SelfPairIsEmpty(t *testing.T) {
	client := linkedClient()
	d := NewDiscoverer(client, nil, WithLogger(quiet()))

	links, err := d.DiscoverLinks(context.Background(), fixture(), s1, s1)
	require.NoError(t, err)
	assert.Empty(t, links)
	assert.Empty(t, client.Calls())
}

func TestDiscoverLinks_TargetWithoutMoleculesIsEmpty(t *testing.T) {
	client := linkedClient()
	d := NewDiscoverer(client, nil, WithLogger(quiet()))
	s3 := ir.DataSource{ID: "s3", URL: "http://s3/sparql", Type: ir.SourceSPARQL}

	links, err := d.DiscoverLinks(context.Background(), fixture(), s1, s3)
	require.NoError(t, err)
	assert.Empty(t, links)
	assert.Empty(t, client.Calls())
}

func TestDiscoverLinks_BatchesTypeLookups(t *testing.T) {
	objects := testutil.Numbered(ex+"c", 120)
	client := testutil.NewFakeClient().
		OnResult(s1.URL, "<"+livesIn+"> ?o", testutil.Column("o", objects...))
	d := NewDiscoverer(client, nil, WithLogger(quiet()))

	_, err := d.DiscoverLinks(context.Background(), fixture(), s1, s2)
	require.NoError(t, err)

	lookups := client.CallsMatching("?x =")
	require.Len(t, lookups, 3)
	total := 0
	for _, c := range lookups {
		assert.Equal(t, s2.URL, c.Endpoint)
		n := strings.Count(c.Query, "?x =")
		assert.LessOrEqual(t, n, DefaultBatchSize)
		total += n
	}
	assert.Equal(t, 120, total)
}

func TestDiscoverLinks_CapsSampledObjects(t *testing.T) {
	client := testutil.NewFakeClient().
		OnResult(s1.URL, "<"+livesIn+"> ?o", testutil.Column("o", testutil.Numbered(ex+"c", 30)...))
	d := NewDiscoverer(client, nil, WithLogger(quiet()), WithSampleLimit(10), WithBatchSize(4))

	_, err := d.DiscoverLinks(context.Background(), fixture(), s1, s2)
	require.NoError(t, err)

	total := 0
	for _, c := range client.CallsMatching("?x =") {
		total += strings.Count(c.Query, "?x =")
	}
	assert.Equal(t, 10, total)
	assert.Len(t, client.CallsMatching("?x ="), 3)
}

func TestDiscoverLinks_SourceErrorsSkipPredicate(t *testing.T) {
	client := testutil.NewFakeClient().
		OnError(s1.URL, "<"+knows+"> ?o", errors.New("boom")).
		OnResult(s1.URL, "<"+livesIn+"> ?o", testutil.Column("o", ex+"c1")).
		OnResult(s2.URL, "?x = <"+ex+"c1>", testutil.Column("t", city))
	d := NewDiscoverer(client, nil, WithLogger(quiet()))

	links, err := d.DiscoverLinks(context.Background(), fixture(), s1, s2)
	require.NoError(t, err)
	assert.Equal(t, []ir.Link{{From: person, Predicate: livesIn, To: city}}, links)
}

func TestDiscoverAll_WritesLinks(t *testing.T) {
	sink := testutil.NewRecordingSink()
	d := NewDiscoverer(linkedClient(), metadata.NewBatchWriter(sink, 0, quiet()), WithLogger(quiet()))

	res, err := d.DiscoverAll(context.Background(), fixture(), []ir.DataSource{s1, s2})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pairs)
	assert.Empty(t, res.Failed)
	assert.Equal(t, []ir.Link{{From: person, Predicate: livesIn, To: city}}, res.Links)

	want := catalog.EncodeLink(ir.Link{From: person, Predicate: livesIn, To: city})
	assert.ElementsMatch(t, want, sink.Quads(vocab.GraphFor("fed")))
	assert.Equal(t, map[string][]string{livesIn: {city}}, ByPredicate(res.Links))
}

func TestDiscoverAll_NoURIPredicatesWritesNothing(t *testing.T) {
	c := catalog.New("fed", []ir.Molecule{
		{
			ID:         city,
			Properties: []ir.Property{{Predicate: label, Cardinality: -1, Ranges: []ir.Range{{IRI: vocab.XSDString, Datatype: true}}}},
			Wrappers:   []ir.Wrapper{{SourceID: "s1", URL: s1.URL, Predicates: []string{vocab.RDFType, label}}},
		},
		{
			ID:         person,
			Properties: []ir.Property{{Predicate: name, Cardinality: -1, Ranges: []ir.Range{{IRI: vocab.XSDString, Datatype: true}}}},
			Wrappers:   []ir.Wrapper{{SourceID: "s2", URL: s2.URL, Predicates: []string{vocab.RDFType, name}}},
		},
	}, []ir.DataSource{s1, s2})
	client := testutil.NewFakeClient()
	sink := testutil.NewRecordingSink()
	d := NewDiscoverer(client, metadata.NewBatchWriter(sink, 0, quiet()), WithLogger(quiet()))

	res, err := d.DiscoverAll(context.Background(), c, []ir.DataSource{s1, s2})
	require.NoError(t, err)
	assert.Empty(t, res.Links)
	assert.Empty(t, client.Calls())
	assert.Empty(t, sink.Calls())
}

func TestDiscoverAll_WriteFailure(t *testing.T) {
	sink := testutil.NewRecordingSink()
	sink.Fail(errors.New("store down"))
	d := NewDiscoverer(linkedClient(), metadata.NewBatchWriter(sink, 0, quiet()), WithLogger(quiet()))

	_, err := d.DiscoverAll(context.Background(), fixture(), []ir.DataSource{s1, s2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")
}

func TestRun_SkipsSelfPairs(t *testing.T) {
	client := linkedClient()
	d := NewDiscoverer(client, nil, WithLogger(quiet()))

	res, err := d.Run(context.Background(), fixture(), []Pair{{From: s1, To: s1}, {From: s2, To: s2}})
	require.NoError(t, err)
	assert.Zero(t, res.Pairs)
	assert.Empty(t, client.Calls())
}

func TestDiscoverFor_BothDirections(t *testing.T) {
	s3 := ir.DataSource{ID: "s3", URL: "http://s3/sparql", Type: ir.SourceSPARQL}
	d := NewDiscoverer(linkedClient(), nil, WithLogger(quiet()))

	res, err := d.DiscoverFor(context.Background(), fixture(), s1, []ir.DataSource{s1, s2, s3})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Pairs)
	assert.Equal(t, []ir.Link{{From: person, Predicate: livesIn, To: city}}, res.Links)
}

// gaugeClient tracks how many distinct source pairs query at once.
type gaugeClient struct {
	sparql.Client

	mu     sync.Mutex
	active map[string]int
	peak   int
	calls  atomic.Int64
}

func (g *gaugeClient) Query(ctx context.Context, endpoint, query string) (*sparql.Result, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.active[endpoint]++
	if n := g.running(); n > g.peak {
		g.peak = n
	}
	g.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	g.mu.Lock()
	g.active[endpoint]--
	g.mu.Unlock()
	return g.Client.Query(ctx, endpoint, query)
}

func (g *gaugeClient) running() int {
	n := 0
	for _, v := range g.active {
		n += v
	}
	return n
}

func TestRun_BoundsConcurrentPairs(t *testing.T) {
	var sources []ir.DataSource
	var molecules []ir.Molecule
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		s := ir.DataSource{ID: id, URL: "http://" + id + "/sparql", Type: ir.SourceSPARQL}
		sources = append(sources, s)
		molecules = append(molecules, ir.Molecule{
			ID:       ex + strings.ToUpper(id),
			Wrappers: []ir.Wrapper{{SourceID: id, URL: s.URL, Predicates: []string{livesIn}}},
		})
	}
	c := catalog.New("fed", molecules, sources)

	inner := testutil.NewFakeClient().On("", "?o", map[string]string{"o": ex + "x"})
	g := &gaugeClient{Client: inner, active: map[string]int{}}
	d := NewDiscoverer(g, nil, WithLogger(quiet()), WithWorkers(2))

	res, err := d.DiscoverAll(context.Background(), c, sources)
	require.NoError(t, err)
	assert.Equal(t, 20, res.Pairs)
	assert.LessOrEqual(t, g.peak, 2)
	assert.Positive(t, g.calls.Load())
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewDiscoverer(linkedClient(), nil, WithLogger(quiet()))

	_, err := d.DiscoverAll(ctx, fixture(), []ir.DataSource{s1, s2})
	require.ErrorIs(t, err, context.Canceled)
}
