package decompose

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedquery/internal/catalog"
	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/queryir"
	"github.com/roach88/fedquery/internal/vocab"
)

const (
	ex       = "http://ex.org/"
	person   = ex + "Person"
	city     = ex + "City"
	film     = ex + "Film"
	name     = ex + "name"
	knows    = ex + "knows"
	title    = ex + "title"
	director = ex + "director"
	year     = ex + "year"

	s1URL = "http://s1/sparql"
	s2URL = "http://s2/sparql"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	p = ir.Var("p")
	x = ir.Var("x")
	c = ir.Var("c")
	n = ir.Var("n")
)

func typ() ir.Term { return ir.IRI(vocab.RDFType) }

func wrapper(id, url string, preds ...string) ir.Wrapper {
	return ir.Wrapper{SourceID: id, URL: url, Predicates: append([]string{vocab.RDFType}, preds...)}
}

func prop(pred string, ranges ...string) ir.Property {
	pr := ir.Property{Predicate: pred, Cardinality: -1}
	for _, r := range ranges {
		pr.Ranges = append(pr.Ranges, ir.Range{IRI: r, Cardinality: -1})
	}
	return pr
}

// personCity: S1 serves Person{name, knows}, S2 serves City{name}, and
// knows ranges over knowsRange.
func personCity(knowsRange string) *catalog.Catalog {
	return catalog.New("fed", []ir.Molecule{
		{
			ID:         person,
			Properties: []ir.Property{prop(vocab.RDFType), prop(name), prop(knows, knowsRange)},
			Wrappers:   []ir.Wrapper{wrapper("s1", s1URL, name, knows)},
		},
		{
			ID:         city,
			Properties: []ir.Property{prop(vocab.RDFType), prop(name)},
			Wrappers:   []ir.Wrapper{wrapper("s2", s2URL, name)},
		},
	}, []ir.DataSource{
		{ID: "s1", URL: s1URL, Type: ir.SourceSPARQL},
		{ID: "s2", URL: s2URL, Type: ir.SourceSPARQL},
	})
}

// personCityQuery is SELECT ?n ?c WHERE { ?p a Person ; knows ?x . ?x a City ; name ?c }.
func personCityQuery(extra ...queryir.Element) *queryir.Query {
	elements := []queryir.Element{
		queryir.T(p, typ(), ir.IRI(person)),
		queryir.T(p, ir.IRI(knows), x),
		queryir.T(x, typ(), ir.IRI(city)),
		queryir.T(x, ir.IRI(name), c),
	}
	return &queryir.Query{
		Projection: []string{"c"},
		Body:       queryir.NewGroup(append(elements, extra...)...),
	}
}

func decompose(t *testing.T, cat *catalog.Catalog, q *queryir.Query) (*Decomposition, error) {
	t.Helper()
	return New(WithLogger(quiet())).Decompose(context.Background(), cat, q)
}

func onlyJoin(t *testing.T, d *Decomposition) *queryir.JoinBlock {
	t.Helper()
	require.Len(t, d.Query.Body.Branches, 1)
	jb, ok := d.Query.Body.Branches[0].(*queryir.JoinBlock)
	require.True(t, ok, "branch is %T", d.Query.Body.Branches[0])
	return jb
}

func TestDecompose_PersonCity(t *testing.T) {
	d, err := decompose(t, personCity(city), personCityQuery())
	require.NoError(t, err)

	jb := onlyJoin(t, d)
	require.Len(t, jb.Elements, 2)

	a, ok := jb.Elements[0].(*queryir.Service)
	require.True(t, ok)
	b, ok := jb.Elements[1].(*queryir.Service)
	require.True(t, ok)

	assert.Equal(t, s1URL, a.Endpoint)
	assert.Equal(t, []string{person}, a.Molecules)
	assert.Equal(t, []string{"p", "x"}, a.Vars())
	assert.Equal(t, s2URL, b.Endpoint)
	assert.Equal(t, []string{city}, b.Molecules)
	assert.Equal(t, []string{"x", "c"}, b.Vars())

	require.Len(t, d.Stars, 2)
	assert.Equal(t, []string{person}, d.Stars[0].Candidates)
	assert.Equal(t, []string{city}, d.Stars[1].Candidates)
}

func TestDecompose_FailsWhenRangeExcludesTarget(t *testing.T) {
	_, err := decompose(t, personCity(person), personCityQuery())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnserviceable))

	var ue *UnserviceableError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "?p", ue.Star)
	assert.Equal(t, CodeUnserviceable, ue.Code())
}

func TestDecompose_UnknownPredicateIsUnserviceable(t *testing.T) {
	q := &queryir.Query{Body: queryir.NewGroup(
		queryir.T(p, ir.IRI(name), n),
		queryir.T(p, ir.IRI(ex+"unknown"), x),
	)}
	d, err := decompose(t, personCity(city), q)
	require.ErrorIs(t, err, ErrUnserviceable)
	assert.Nil(t, d)
}

func TestDecompose_UnknownTypeIsUnserviceable(t *testing.T) {
	q := &queryir.Query{Body: queryir.NewGroup(queryir.T(p, typ(), ir.IRI(ex+"Planet")))}
	_, err := decompose(t, personCity(city), q)
	require.ErrorIs(t, err, ErrUnserviceable)
}

func TestDecompose_TypedStarMissingPredicate(t *testing.T) {
	q := &queryir.Query{Body: queryir.NewGroup(
		queryir.T(x, typ(), ir.IRI(city)),
		queryir.T(x, ir.IRI(knows), p),
	)}
	_, err := decompose(t, personCity(city), q)
	require.ErrorIs(t, err, ErrUnserviceable)
	assert.Contains(t, err.Error(), "has no predicate")
}

func TestDecompose_FailureInOptionalAbortsWholeQuery(t *testing.T) {
	q := personCityQuery(&queryir.Optional{Body: queryir.NewGroup(queryir.T(c, ir.IRI(ex+"nowhere"), n))})
	_, err := decompose(t, personCity(city), q)
	require.ErrorIs(t, err, ErrUnserviceable)
}

func TestDecompose_InvalidQuery(t *testing.T) {
	_, err := decompose(t, personCity(city), &queryir.Query{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnserviceable))
}

func TestDecompose_FilterPlacement(t *testing.T) {
	local := &queryir.Filter{Expr: &queryir.Compare{Op: queryir.OpNe, Left: c, Right: ir.Literal("Bonn")}}
	across := &queryir.Filter{Expr: &queryir.Compare{Op: queryir.OpNe, Left: p, Right: c}}
	d, err := decompose(t, personCity(city), personCityQuery(local, across))
	require.NoError(t, err)

	jb := onlyJoin(t, d)
	cityService := jb.Elements[1].(*queryir.Service)
	assert.Equal(t, []*queryir.Filter{local}, cityService.Filters)
	assert.Empty(t, jb.Elements[0].(*queryir.Service).Filters)
	assert.Equal(t, []*queryir.Filter{across}, jb.Filters)
}

func TestDecompose_Completeness(t *testing.T) {
	q := personCityQuery()
	d, err := decompose(t, personCity(city), q)
	require.NoError(t, err)

	var got []string
	for _, s := range d.Services() {
		for _, tp := range s.Triples {
			got = append(got, tp.String())
		}
	}
	var want []string
	for _, tp := range queryir.Triples(q.Body) {
		want = append(want, tp.String())
	}
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)
}

func TestDecompose_DoesNotMutateInput(t *testing.T) {
	q := personCityQuery()
	before := queryir.Format(q.Body)
	_, err := decompose(t, personCity(city), q)
	require.NoError(t, err)
	assert.Equal(t, before, queryir.Format(q.Body))
}

// films: Film split across two sources sharing title.
func films() *catalog.Catalog {
	return catalog.New("fed", []ir.Molecule{{
		ID:         film,
		Properties: []ir.Property{prop(vocab.RDFType), prop(title), prop(director), prop(year)},
		Wrappers: []ir.Wrapper{
			wrapper("s1", s1URL, title, director),
			wrapper("s2", s2URL, title, year),
		},
	}}, nil)
}

func TestDecompose_FullCoverageAlternatives(t *testing.T) {
	q := &queryir.Query{Body: queryir.NewGroup(queryir.T(ir.Var("f"), ir.IRI(title), ir.Var("t")))}
	d, err := decompose(t, films(), q)
	require.NoError(t, err)

	jb := onlyJoin(t, d)
	require.Len(t, jb.Elements, 1)
	u, ok := jb.Elements[0].(*queryir.UnionBlock)
	require.True(t, ok)
	require.Len(t, u.Branches, 2)
	assert.Equal(t, s1URL, u.Branches[0].(*queryir.Service).Endpoint)
	assert.Equal(t, s2URL, u.Branches[1].(*queryir.Service).Endpoint)
}

func TestDecompose_SplitsMultiSourceMolecule(t *testing.T) {
	f := ir.Var("f")
	q := &queryir.Query{Body: queryir.NewGroup(
		queryir.T(f, ir.IRI(title), ir.Var("t")),
		queryir.T(f, ir.IRI(director), ir.Var("d")),
		queryir.T(f, ir.IRI(year), ir.Var("y")),
	)}
	d, err := decompose(t, films(), q)
	require.NoError(t, err)

	outer := onlyJoin(t, d)
	require.Len(t, outer.Elements, 1)
	star, ok := outer.Elements[0].(*queryir.JoinBlock)
	require.True(t, ok, "star routed to %T", outer.Elements[0])
	require.Len(t, star.Elements, 3)

	dir := star.Elements[0].(*queryir.Service)
	assert.Equal(t, s1URL, dir.Endpoint)
	assert.Equal(t, []string{"f", "d"}, dir.Vars())

	yr := star.Elements[1].(*queryir.Service)
	assert.Equal(t, s2URL, yr.Endpoint)
	assert.Equal(t, []string{"f", "y"}, yr.Vars())

	shared := star.Elements[2].(*queryir.UnionBlock)
	require.Len(t, shared.Branches, 2)
	for _, br := range shared.Branches {
		assert.Equal(t, []string{"f", "t"}, br.(*queryir.Service).Vars())
	}
}

// splitPeople: Person is served by s1 {name} and s2 {knows}; both sources
// type their people.
func splitPeople() *catalog.Catalog {
	return catalog.New("fed", []ir.Molecule{{
		ID:         person,
		Properties: []ir.Property{prop(vocab.RDFType), prop(name), prop(knows)},
		Wrappers: []ir.Wrapper{
			wrapper("s1", s1URL, name),
			wrapper("s2", s2URL, knows),
		},
	}}, []ir.DataSource{
		{ID: "s1", URL: s1URL, Type: ir.SourceSPARQL},
		{ID: "s2", URL: s2URL, Type: ir.SourceSPARQL},
	})
}

func TestDecompose_SplitStarRepeatsClassInEachService(t *testing.T) {
	q := &queryir.Query{Body: queryir.NewGroup(
		queryir.T(p, typ(), ir.IRI(person)),
		queryir.T(p, ir.IRI(name), n),
		queryir.T(p, ir.IRI(knows), x),
	)}
	d, err := decompose(t, splitPeople(), q)
	require.NoError(t, err)

	outer := onlyJoin(t, d)
	require.Len(t, outer.Elements, 1)
	star, ok := outer.Elements[0].(*queryir.JoinBlock)
	require.True(t, ok, "star routed to %T", outer.Elements[0])
	require.Len(t, star.Elements, 2, "no union over the class triple")

	classTriple := ir.Triple(p, typ(), ir.IRI(person))
	for i, want := range []string{s1URL, s2URL} {
		svc, ok := star.Elements[i].(*queryir.Service)
		require.True(t, ok, "element %d is %T", i, star.Elements[i])
		assert.Equal(t, want, svc.Endpoint)
		require.Len(t, svc.Triples, 2)
		assert.True(t, svc.Triples[0].Equal(classTriple))
	}
}

func TestDecompose_SplitStarWithoutExclusiveServiceTypesSharedBranches(t *testing.T) {
	// every predicate is served by two of the three wrappers
	cat := catalog.New("fed", []ir.Molecule{{
		ID:         film,
		Properties: []ir.Property{prop(vocab.RDFType), prop(title), prop(director), prop(year)},
		Wrappers: []ir.Wrapper{
			wrapper("s1", s1URL, title, director),
			wrapper("s2", s2URL, title, year),
			wrapper("s3", "http://s3/sparql", director, year),
		},
	}}, nil)
	f := ir.Var("f")
	q := &queryir.Query{Body: queryir.NewGroup(
		queryir.T(f, typ(), ir.IRI(film)),
		queryir.T(f, ir.IRI(title), ir.Var("t")),
		queryir.T(f, ir.IRI(director), ir.Var("d")),
		queryir.T(f, ir.IRI(year), ir.Var("y")),
	)}
	d, err := decompose(t, cat, q)
	require.NoError(t, err)

	outer := onlyJoin(t, d)
	require.Len(t, outer.Elements, 1)
	star, ok := outer.Elements[0].(*queryir.JoinBlock)
	require.True(t, ok, "star routed to %T", outer.Elements[0])
	require.Len(t, star.Elements, 3)
	for _, el := range star.Elements {
		u, ok := el.(*queryir.UnionBlock)
		require.True(t, ok, "element is %T", el)
		require.Len(t, u.Branches, 2)
		for _, br := range u.Branches {
			svc := br.(*queryir.Service)
			require.Len(t, svc.Triples, 2)
			assert.Equal(t, vocab.RDFType, svc.Triples[0].Predicate.Value)
		}
	}
}

func TestDecompose_MergesServicesOnSameEndpoint(t *testing.T) {
	cat := catalog.New("fed", []ir.Molecule{{
		ID:         person,
		Properties: []ir.Property{prop(vocab.RDFType), prop(name), prop(knows, person)},
		Wrappers:   []ir.Wrapper{wrapper("s1", s1URL, name, knows)},
	}}, nil)
	q := &queryir.Query{Body: queryir.NewGroup(
		queryir.T(p, ir.IRI(knows), x),
		queryir.T(x, ir.IRI(name), n),
	)}
	d, err := decompose(t, cat, q)
	require.NoError(t, err)

	jb := onlyJoin(t, d)
	require.Len(t, jb.Elements, 1)
	svc := jb.Elements[0].(*queryir.Service)
	assert.Len(t, svc.Triples, 2)
	assert.Equal(t, []string{"p", "x", "n"}, svc.Vars())
}

func TestDecompose_UntypedStarResolvedByRange(t *testing.T) {
	q := &queryir.Query{Body: queryir.NewGroup(
		queryir.T(p, ir.IRI(knows), x),
		queryir.T(x, ir.Var("pred"), ir.Var("o")),
	)}
	d, err := decompose(t, personCity(city), q)
	require.NoError(t, err)
	require.Len(t, d.Stars, 2)
	assert.Equal(t, []string{city}, d.Stars[1].Candidates)
}

func TestDecompose_UnionBranches(t *testing.T) {
	q := &queryir.Query{Body: &queryir.UnionBlock{Branches: []queryir.Element{
		&queryir.JoinBlock{Elements: []queryir.Element{queryir.T(p, typ(), ir.IRI(person))}},
		&queryir.JoinBlock{Elements: []queryir.Element{queryir.T(p, typ(), ir.IRI(city))}},
	}}}
	d, err := decompose(t, personCity(city), q)
	require.NoError(t, err)
	require.Len(t, d.Query.Body.Branches, 2)
	services := d.Services()
	require.Len(t, services, 2)
	assert.Equal(t, s1URL, services[0].Endpoint)
	assert.Equal(t, s2URL, services[1].Endpoint)
}

func TestDecompose_Optional(t *testing.T) {
	q := &queryir.Query{Body: queryir.NewGroup(
		queryir.T(p, typ(), ir.IRI(person)),
		&queryir.Optional{Body: queryir.NewGroup(queryir.T(p, ir.IRI(name), n))},
	)}
	d, err := decompose(t, personCity(city), q)
	require.NoError(t, err)

	jb := onlyJoin(t, d)
	require.Len(t, jb.Elements, 2)
	_, ok := jb.Elements[0].(*queryir.Service)
	assert.True(t, ok)
	opt, ok := jb.Elements[1].(*queryir.Optional)
	require.True(t, ok)
	// the optional star is untyped, so both molecules exposing name answer it
	assert.Len(t, queryir.Services(opt), 2)
}

func TestDecompose_MemberAfterOptionalSharingItsVariableStaysAfterIt(t *testing.T) {
	// { ?p a Person . OPTIONAL { ?p knows ?x } ?x name ?c }
	q := &queryir.Query{Body: queryir.NewGroup(
		queryir.T(p, typ(), ir.IRI(person)),
		&queryir.Optional{Body: queryir.NewGroup(queryir.T(p, ir.IRI(knows), x))},
		queryir.T(x, ir.IRI(name), c),
	)}
	d, err := decompose(t, personCity(city), q)
	require.NoError(t, err)

	jb := onlyJoin(t, d)
	require.Len(t, jb.Elements, 3)
	typed, ok := jb.Elements[0].(*queryir.Service)
	require.True(t, ok, "first element is %T", jb.Elements[0])
	assert.Equal(t, []string{"p"}, typed.Vars())
	_, ok = jb.Elements[1].(*queryir.Optional)
	assert.True(t, ok, "second element is %T", jb.Elements[1])
	assert.Equal(t, []string{"x", "c"}, queryir.Vars(jb.Elements[2]))
}

func TestDecompose_MemberAfterOptionalBoundBeforeItMovesBack(t *testing.T) {
	// { ?p a Person . OPTIONAL { ?p knows ?x } ?p name ?n }
	q := &queryir.Query{Body: queryir.NewGroup(
		queryir.T(p, typ(), ir.IRI(person)),
		&queryir.Optional{Body: queryir.NewGroup(queryir.T(p, ir.IRI(knows), x))},
		queryir.T(p, ir.IRI(name), n),
	)}
	d, err := decompose(t, personCity(city), q)
	require.NoError(t, err)

	jb := onlyJoin(t, d)
	require.Len(t, jb.Elements, 2)
	svc, ok := jb.Elements[0].(*queryir.Service)
	require.True(t, ok, "first element is %T", jb.Elements[0])
	assert.Equal(t, []string{"p", "n"}, svc.Vars())
	_, ok = jb.Elements[1].(*queryir.Optional)
	assert.True(t, ok)
}

func TestDecompose_Trace(t *testing.T) {
	d, err := decompose(t, personCity(city), personCityQuery())
	require.NoError(t, err)
	tr := d.Trace()
	assert.Contains(t, tr, "star ?p -> "+person)
	assert.Contains(t, tr, "Service <"+s2URL+">")
}
