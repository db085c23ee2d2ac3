package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/queryir"
)

const ex = "http://ex.org/"

// svc builds a service over a chain of triples ?a p ?b, ?b p ?c, ...
func svc(endpoint string, vars ...string) *queryir.Service {
	s := &queryir.Service{Endpoint: endpoint, SourceID: endpoint}
	for i := 0; i+1 < len(vars); i++ {
		s.Triples = append(s.Triples, ir.Triple(ir.Var(vars[i]), ir.IRI(ex+"p"), ir.Var(vars[i+1])))
	}
	if len(vars) == 1 {
		s.Triples = append(s.Triples, ir.Triple(ir.Var(vars[0]), ir.IRI(ex+"p"), ir.IRI(ex+"o")))
	}
	return s
}

func query(elements ...queryir.Element) *queryir.Query {
	return &queryir.Query{Body: &queryir.UnionBlock{Branches: []queryir.Element{&queryir.JoinBlock{Elements: elements}}}}
}

func endpoint(t *testing.T, n Node) string {
	t.Helper()
	s, ok := n.(*ServiceNode)
	require.True(t, ok, "node is %T", n)
	return s.Service.Endpoint
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{
		"":            StrategyBushy,
		"bushy":       StrategyBushy,
		"left-linear": StrategyLeftLinear,
		"naive":       StrategyNaive,
	} {
		got, err := ParseStrategy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseStrategy("greedy")
	assert.Error(t, err)
}

func TestPlan_SingleService(t *testing.T) {
	p, err := New().Plan(query(svc("a", "x", "y")))
	require.NoError(t, err)

	n, ok := p.Root.(*ServiceNode)
	require.True(t, ok)
	assert.Contains(t, n.Query, "SELECT ?x ?y WHERE")
	assert.Equal(t, []string{"x", "y"}, p.Projection)
	assert.Equal(t, StrategyBushy, p.Strategy)
}

func TestPlan_BushyPairsConnectedOperands(t *testing.T) {
	// a(x,y) b(z,w) c(y,z) d(w,v): bushy pairs a-c and b-d, then joins the pairs.
	p, err := New().Plan(query(svc("a", "x", "y"), svc("b", "z", "w"), svc("c", "y", "z"), svc("d", "w", "v")))
	require.NoError(t, err)

	root, ok := p.Root.(*JoinNode)
	require.True(t, ok)
	left := root.Left.(*JoinNode)
	right := root.Right.(*JoinNode)
	assert.Equal(t, "a", endpoint(t, left.Left))
	assert.Equal(t, "c", endpoint(t, left.Right))
	assert.Equal(t, []string{"y"}, left.JoinVars)
	assert.Equal(t, "b", endpoint(t, right.Left))
	assert.Equal(t, "d", endpoint(t, right.Right))
	assert.Equal(t, []string{"w"}, right.JoinVars)
	assert.Equal(t, []string{"z"}, root.JoinVars)
}

func TestPlan_BushyOddOperandCarried(t *testing.T) {
	p, err := New().Plan(query(svc("a", "x", "y"), svc("b", "y", "z"), svc("c", "z", "w")))
	require.NoError(t, err)

	root := p.Root.(*JoinNode)
	pair := root.Left.(*JoinNode)
	assert.Equal(t, "a", endpoint(t, pair.Left))
	assert.Equal(t, "b", endpoint(t, pair.Right))
	assert.Equal(t, "c", endpoint(t, root.Right))
	assert.Equal(t, []string{"z"}, root.JoinVars)
}

func TestPlan_NaiveIsLeftDeepInQueryOrder(t *testing.T) {
	p, err := New(WithStrategy(StrategyNaive)).Plan(query(svc("a", "x", "y"), svc("b", "z", "w"), svc("c", "y", "z")))
	require.NoError(t, err)

	root := p.Root.(*JoinNode)
	inner := root.Left.(*JoinNode)
	assert.Equal(t, "a", endpoint(t, inner.Left))
	assert.Equal(t, "b", endpoint(t, inner.Right))
	assert.Empty(t, inner.JoinVars)
	assert.Equal(t, "c", endpoint(t, root.Right))
}

func TestPlan_LeftLinearAvoidsCrossProducts(t *testing.T) {
	p, err := New(WithStrategy(StrategyLeftLinear)).Plan(query(svc("a", "x", "y"), svc("b", "z", "w"), svc("c", "y", "z")))
	require.NoError(t, err)

	root := p.Root.(*JoinNode)
	inner := root.Left.(*JoinNode)
	assert.Equal(t, "a", endpoint(t, inner.Left))
	assert.Equal(t, "c", endpoint(t, inner.Right))
	assert.Equal(t, []string{"y"}, inner.JoinVars)
	assert.Equal(t, "b", endpoint(t, root.Right))
	assert.Equal(t, []string{"z"}, root.JoinVars)
}

func TestPlan_OptionalBecomesLeftJoin(t *testing.T) {
	opt := &queryir.Optional{Body: queryir.NewGroup(svc("b", "y", "z"))}
	p, err := New().Plan(query(svc("a", "x", "y"), opt))
	require.NoError(t, err)

	lj, ok := p.Root.(*LeftJoinNode)
	require.True(t, ok)
	assert.Equal(t, "a", endpoint(t, lj.Left))
	assert.Equal(t, "b", endpoint(t, lj.Right))
	assert.Equal(t, []string{"y"}, lj.JoinVars)
}

func TestPlan_MembersAfterOptionalJoinTheLeftJoin(t *testing.T) {
	// { A OPTIONAL { B } C } is (A LEFTJOIN B) JOIN C
	opt := &queryir.Optional{Body: queryir.NewGroup(svc("b", "p", "x"))}
	for _, strategy := range []Strategy{StrategyBushy, StrategyLeftLinear, StrategyNaive} {
		t.Run(string(strategy), func(t *testing.T) {
			p, err := New(WithStrategy(strategy)).Plan(query(svc("a", "p"), opt, svc("c", "x", "c")))
			require.NoError(t, err)

			root, ok := p.Root.(*JoinNode)
			require.True(t, ok, "root is %T", p.Root)
			assert.Equal(t, []string{"x"}, root.JoinVars)
			assert.Equal(t, "c", endpoint(t, root.Right))

			lj, ok := root.Left.(*LeftJoinNode)
			require.True(t, ok, "left is %T", root.Left)
			assert.Equal(t, "a", endpoint(t, lj.Left))
			assert.Equal(t, "b", endpoint(t, lj.Right))
			assert.Equal(t, []string{"p"}, lj.JoinVars)
		})
	}
}

func TestPlan_OnlyOptionalUsesEmptyLeft(t *testing.T) {
	opt := &queryir.Optional{Body: queryir.NewGroup(svc("b", "y", "z"))}
	p, err := New().Plan(query(opt))
	require.NoError(t, err)

	lj := p.Root.(*LeftJoinNode)
	_, ok := lj.Left.(*EmptyNode)
	assert.True(t, ok)
	assert.Empty(t, lj.JoinVars)
}

func TestPlan_UnionAndFilters(t *testing.T) {
	f := &queryir.Filter{Expr: &queryir.Compare{Op: queryir.OpNe, Left: ir.Var("x"), Right: ir.Var("z")}}
	u := &queryir.UnionBlock{Branches: []queryir.Element{svc("a", "x", "y"), svc("b", "x", "y")}}
	jb := &queryir.JoinBlock{Elements: []queryir.Element{u, svc("c", "y", "z")}, Filters: []*queryir.Filter{f}}
	q := &queryir.Query{Body: &queryir.UnionBlock{Branches: []queryir.Element{jb}}}

	p, err := New().Plan(q)
	require.NoError(t, err)

	root := p.Root.(*JoinNode)
	assert.Equal(t, []*queryir.Filter{f}, root.Filters)
	un := root.Left.(*UnionNode)
	assert.Len(t, un.Branches, 2)
	assert.Len(t, Leaves(p.Root), 3)
}

func TestPlan_FilterOnSingleOperandIsWrapped(t *testing.T) {
	f := &queryir.Filter{Expr: &queryir.Call{Func: "bound", Args: []ir.Term{ir.Var("x")}}}
	jb := &queryir.JoinBlock{Elements: []queryir.Element{svc("a", "x", "y")}, Filters: []*queryir.Filter{f}}
	p, err := New().Plan(&queryir.Query{Body: &queryir.UnionBlock{Branches: []queryir.Element{jb}}})
	require.NoError(t, err)

	fn, ok := p.Root.(*FilterNode)
	require.True(t, ok)
	assert.Equal(t, "a", endpoint(t, fn.Input))
}

func TestPlan_RejectsUndecomposedTriples(t *testing.T) {
	_, err := New().Plan(query(queryir.T(ir.Var("x"), ir.IRI(ex+"p"), ir.Var("y"))))
	assert.Error(t, err)
	_, err = New().Plan(&queryir.Query{})
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	p, err := New().Plan(query(svc("a", "x", "y"), svc("b", "y", "z")))
	require.NoError(t, err)
	want := "Join [?y]\n" +
		"  Service <a>\n" +
		"    ?x <http://ex.org/p> ?y .\n" +
		"  Service <b>\n" +
		"    ?y <http://ex.org/p> ?z .\n"
	assert.Equal(t, want, Format(p.Root))
}
