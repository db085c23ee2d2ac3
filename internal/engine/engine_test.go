package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedquery/internal/catalog"
	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/queryir"
	"github.com/roach88/fedquery/internal/store"
	"github.com/roach88/fedquery/internal/testutil"
	"github.com/roach88/fedquery/internal/vocab"
)

const (
	ex     = "http://ex.org/"
	person = ex + "Person"
	city   = ex + "City"
	name   = ex + "name"
	knows  = ex + "knows"

	s1URL = "http://s1/sparql"
	s2URL = "http://s2/sparql"
)

func prop(pred string, ranges ...string) ir.Property {
	pr := ir.Property{Predicate: pred, Cardinality: -1}
	for _, r := range ranges {
		pr.Ranges = append(pr.Ranges, ir.Range{IRI: r, Cardinality: -1})
	}
	return pr
}

func personCity(knowsRange string) *catalog.Catalog {
	return catalog.New("fed", []ir.Molecule{
		{
			ID:         person,
			Properties: []ir.Property{prop(vocab.RDFType), prop(name), prop(knows, knowsRange)},
			Wrappers:   []ir.Wrapper{{SourceID: "s1", URL: s1URL, Predicates: []string{vocab.RDFType, name, knows}}},
		},
		{
			ID:         city,
			Properties: []ir.Property{prop(vocab.RDFType), prop(name)},
			Wrappers:   []ir.Wrapper{{SourceID: "s2", URL: s2URL, Predicates: []string{vocab.RDFType, name}}},
		},
	}, []ir.DataSource{
		{ID: "s1", URL: s1URL, Type: ir.SourceSPARQL},
		{ID: "s2", URL: s2URL, Type: ir.SourceSPARQL},
	})
}

type catalogFunc func(ctx context.Context, federation string) (*catalog.Catalog, error)

func (f catalogFunc) Get(ctx context.Context, federation string) (*catalog.Catalog, error) {
	return f(ctx, federation)
}

func catalogs(c *catalog.Catalog) CatalogSource {
	return catalogFunc(func(_ context.Context, federation string) (*catalog.Catalog, error) {
		if federation != c.Federation() {
			return nil, fmt.Errorf("%w: %s", catalog.ErrUnknownFederation, federation)
		}
		return c, nil
	})
}

// SELECT ?c WHERE { ?p a Person ; knows ?x . ?x a City ; name ?c }
func personCityQuery() *queryir.Query {
	return &queryir.Query{
		Projection: []string{"c"},
		Body: queryir.NewGroup(
			queryir.T(ir.Var("p"), ir.IRI(vocab.RDFType), ir.IRI(person)),
			queryir.T(ir.Var("p"), ir.IRI(knows), ir.Var("x")),
			queryir.T(ir.Var("x"), ir.IRI(vocab.RDFType), ir.IRI(city)),
			queryir.T(ir.Var("x"), ir.IRI(name), ir.Var("c")),
		),
	}
}

// SELECT ?c WHERE { ?x a City ; name ?c }
func cityQuery() *queryir.Query {
	return &queryir.Query{
		Projection: []string{"c"},
		Body: queryir.NewGroup(
			queryir.T(ir.Var("x"), ir.IRI(vocab.RDFType), ir.IRI(city)),
			queryir.T(ir.Var("x"), ir.IRI(name), ir.Var("c")),
		),
	}
}

func personCityClient() *testutil.FakeClient {
	return testutil.NewFakeClient().
		On(s1URL, "",
			map[string]string{"p": ex + "p1", "x": ex + "c1"},
			map[string]string{"p": ex + "p2", "x": ex + "c2"},
			map[string]string{"p": ex + "p3", "x": ex + "c9"}).
		On(s2URL, "",
			map[string]string{"x": ex + "c1", "c": "Berlin"},
			map[string]string{"x": ex + "c2", "c": "Paris"})
}

type recordingLog struct {
	mu   sync.Mutex
	recs []store.QueryRecord
	err  error
}

func (l *recordingLog) WriteQuery(_ context.Context, rec store.QueryRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recs = append(l.recs, rec)
	return l.err
}

func (l *recordingLog) records() []store.QueryRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]store.QueryRecord(nil), l.recs...)
}

func newEngine(c *catalog.Catalog, client *testutil.FakeClient, opts ...Option) *Engine {
	base := []Option{WithLogger(quiet()), WithIDs(testutil.NewSequenceIDs("q"))}
	return New(catalogs(c), client, append(base, opts...)...)
}

func TestQuery_PersonCity(t *testing.T) {
	log := &recordingLog{}
	clock := testutil.NewStepClock(time.Second)
	e := newEngine(personCity(city), personCityClient(), WithQueryLog(log), WithNow(clock.Now))

	env, err := e.Query(context.Background(), "fed", personCityQuery())
	require.NoError(t, err)

	assert.Equal(t, "q-1", env.QueryID)
	assert.Equal(t, []string{"c"}, env.Vars)
	assert.Equal(t, []string{"Berlin", "Paris"}, column(env.Bindings, "c"))
	assert.Equal(t, 2, env.Cardinality())
	assert.Empty(t, env.Failures)
	assert.Equal(t, 4*time.Second, env.ExecutionTime)

	recs := log.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "ok", recs[0].Status)
	assert.Equal(t, 2, recs[0].Cardinality)
	assert.Equal(t, 2*time.Second, recs[0].FirstResult)
	assert.Equal(t, 3*time.Second, recs[0].LastResult)
	assert.Equal(t, 4*time.Second, recs[0].Total)
	assert.Contains(t, recs[0].Query, knows)
}

func TestQuery_EntityTypedAtTwoSourcesIsReturnedOnce(t *testing.T) {
	cat := catalog.New("fed", []ir.Molecule{{
		ID:         person,
		Properties: []ir.Property{prop(vocab.RDFType), prop(name), prop(knows)},
		Wrappers: []ir.Wrapper{
			{SourceID: "s1", URL: s1URL, Predicates: []string{vocab.RDFType, name}},
			{SourceID: "s2", URL: s2URL, Predicates: []string{vocab.RDFType, knows}},
		},
	}}, []ir.DataSource{
		{ID: "s1", URL: s1URL, Type: ir.SourceSPARQL},
		{ID: "s2", URL: s2URL, Type: ir.SourceSPARQL},
	})
	client := testutil.NewFakeClient().
		On(s1URL, name, map[string]string{"p": ex + "p1", "n": "Ann"}).
		On(s2URL, knows, map[string]string{"p": ex + "p1", "x": ex + "x1"}).
		On("", person, map[string]string{"p": ex + "p1"})

	// SELECT ?p ?n ?x WHERE { ?p a Person ; name ?n ; knows ?x }
	q := &queryir.Query{
		Projection: []string{"p", "n", "x"},
		Body: queryir.NewGroup(
			queryir.T(ir.Var("p"), ir.IRI(vocab.RDFType), ir.IRI(person)),
			queryir.T(ir.Var("p"), ir.IRI(name), ir.Var("n")),
			queryir.T(ir.Var("p"), ir.IRI(knows), ir.Var("x")),
		),
	}
	env, err := newEngine(cat, client).Query(context.Background(), "fed", q)
	require.NoError(t, err)

	require.Len(t, env.Bindings, 1)
	assert.Equal(t, "Ann", env.Bindings[0]["n"].Value)
	assert.Equal(t, ex+"x1", env.Bindings[0]["x"].Value)
	for _, call := range client.Calls() {
		assert.Contains(t, call.Query, person, "every source request carries the class")
	}
}

func TestQuery_RequiredPatternAfterOptional(t *testing.T) {
	client := testutil.NewFakeClient().
		On(s1URL, knows, map[string]string{"p": ex + "p1", "x": ex + "x1"}).
		On(s1URL, person, map[string]string{"p": ex + "p1"}).
		On(s2URL, name,
			map[string]string{"x": ex + "x1", "c": "Berlin"},
			map[string]string{"x": ex + "x2", "c": "Paris"})

	// SELECT ?p ?x ?c WHERE { ?p a Person . OPTIONAL { ?p knows ?x } ?x name ?c }
	q := &queryir.Query{
		Projection: []string{"p", "x", "c"},
		Body: queryir.NewGroup(
			queryir.T(ir.Var("p"), ir.IRI(vocab.RDFType), ir.IRI(person)),
			&queryir.Optional{Body: queryir.NewGroup(queryir.T(ir.Var("p"), ir.IRI(knows), ir.Var("x")))},
			queryir.T(ir.Var("x"), ir.IRI(name), ir.Var("c")),
		),
	}
	env, err := newEngine(personCity(city), client).Query(context.Background(), "fed", q)
	require.NoError(t, err)

	require.Len(t, env.Bindings, 1)
	assert.Equal(t, ex+"p1", env.Bindings[0]["p"].Value)
	assert.Equal(t, ex+"x1", env.Bindings[0]["x"].Value)
	assert.Equal(t, "Berlin", env.Bindings[0]["c"].Value)
}

func TestQuery_EnvelopeJSON(t *testing.T) {
	clock := testutil.NewStepClock(500 * time.Millisecond)
	client := testutil.NewFakeClient().On(s2URL, "", map[string]string{"x": ex + "c1", "c": "Berlin"})
	e := newEngine(personCity(city), client, WithNow(clock.Now))

	env, err := e.Query(context.Background(), "fed", cityQuery())
	require.NoError(t, err)

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"head": {"vars": ["c"]},
		"cardinality": 1,
		"results": {"bindings": [{"c": {"value": "Berlin", "type": "literal"}}]},
		"execution_time": 1.5,
		"output_version": "2.0"
	}`, string(data))
}

func TestQuery_EmptyResultEnvelope(t *testing.T) {
	e := newEngine(personCity(city), testutil.NewFakeClient())

	env, err := e.Query(context.Background(), "fed", cityQuery())
	require.NoError(t, err)

	data, err := json.Marshal(env)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(0), decoded["cardinality"])
	assert.Equal(t, map[string]any{"bindings": []any{}}, decoded["results"])
}

func TestQuery_Unserviceable(t *testing.T) {
	client := personCityClient()
	e := newEngine(personCity(person), client)

	env, err := e.Query(context.Background(), "fed", personCityQuery())
	require.Error(t, err)
	assert.True(t, IsUnserviceable(err))
	assert.Empty(t, client.Calls(), "nothing is sent to sources")

	require.NotNil(t, env)
	assert.True(t, env.Failed())
	assert.Empty(t, env.Bindings)

	data, err := json.Marshal(env)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded, 2)
	assert.Equal(t, map[string]any{}, decoded["results"])
	assert.Contains(t, decoded["error"], "UNSERVICEABLE")
}

func TestQuery_UnknownFederation(t *testing.T) {
	log := &recordingLog{}
	e := newEngine(personCity(city), testutil.NewFakeClient(), WithQueryLog(log))

	env, err := e.Query(context.Background(), "nope", cityQuery())
	assert.Equal(t, ErrCodeUnknownFederation, CodeOf(err))
	assert.True(t, env.Failed())

	recs := log.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "unknown_federation", recs[0].Status)
	assert.NotEmpty(t, recs[0].Error)
	assert.Equal(t, time.Duration(-1), recs[0].FirstResult)
}

func TestQuery_InvalidQuery(t *testing.T) {
	e := newEngine(personCity(city), testutil.NewFakeClient())

	_, err := e.Query(context.Background(), "fed", &queryir.Query{Body: queryir.NewGroup()})
	assert.Equal(t, ErrCodeInvalidQuery, CodeOf(err))
}

func TestQuery_PartialSourceFailure(t *testing.T) {
	client := testutil.NewFakeClient().
		OnError(s1URL, "", errors.New("503")).
		On(s2URL, "", map[string]string{"x": ex + "c1", "c": "Berlin"})
	e := newEngine(personCity(city), client, WithExecutorOptions(WithPageSize(2)))

	env, err := e.Query(context.Background(), "fed", personCityQuery())
	require.NoError(t, err, "one failed source does not fail the query")
	assert.Empty(t, env.Bindings)
	require.Len(t, env.Failures, 1)
	assert.Equal(t, "s1", env.Failures[0].SourceID)
}

func TestQuery_AllSourcesFailed(t *testing.T) {
	client := testutil.NewFakeClient().OnError("", "", errors.New("503"))
	e := newEngine(personCity(city), client, WithExecutorOptions(WithPageSize(2)))

	env, err := e.Query(context.Background(), "fed", personCityQuery())
	assert.Equal(t, ErrCodeSourceFailed, CodeOf(err))
	assert.True(t, env.Failed())
}

func TestQuery_LogWriteFailureDoesNotFailQuery(t *testing.T) {
	log := &recordingLog{err: errors.New("disk full")}
	e := newEngine(personCity(city), personCityClient(), WithQueryLog(log))

	env, err := e.Query(context.Background(), "fed", personCityQuery())
	require.NoError(t, err)
	assert.Equal(t, 2, env.Cardinality())
}

func TestRunSession_SupersedesPreviousQuery(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	client := testutil.NewFakeClient().
		OnBlock(s1URL, "", release).
		On(s2URL, "", map[string]string{"x": ex + "c1", "c": "Berlin"})
	log := &recordingLog{}
	e := newEngine(personCity(city), client, WithQueryLog(log))

	type outcome struct {
		env *Envelope
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		env, err := e.RunSession(context.Background(), "tab-1", "fed", personCityQuery())
		first <- outcome{env, err}
	}()
	require.Eventually(t, func() bool { return e.Sessions() == 1 }, 5*time.Second, time.Millisecond)

	env, err := e.RunSession(context.Background(), "tab-1", "fed", cityQuery())
	require.NoError(t, err)
	assert.Equal(t, []string{"Berlin"}, column(env.Bindings, "c"))

	select {
	case got := <-first:
		assert.True(t, IsCancelled(got.err))
		assert.True(t, got.env.Failed())
	case <-time.After(5 * time.Second):
		t.Fatal("superseded query did not finish")
	}
	assert.Zero(t, e.Sessions())

	statuses := map[string]string{}
	for _, rec := range log.records() {
		statuses[rec.ID] = rec.Status
	}
	assert.Equal(t, map[string]string{"q-1": "cancelled", "q-2": "ok"}, statuses)
}

func TestQuery_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	client := testutil.NewFakeClient().OnBlock("", "", release)
	e := newEngine(personCity(city), client)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for len(client.Calls()) == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	env, err := e.Query(ctx, "fed", cityQuery())
	assert.True(t, IsCancelled(err))
	assert.True(t, env.Failed())
}

func TestPrepare(t *testing.T) {
	e := newEngine(personCity(city), testutil.NewFakeClient())

	p, err := e.Prepare(context.Background(), "fed", personCityQuery())
	require.NoError(t, err)
	assert.Equal(t, "fed", p.Federation)
	assert.Len(t, p.Decomposition.Services(), 2)
	assert.Equal(t, []string{"c"}, p.Plan.Projection)
}
