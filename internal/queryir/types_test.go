package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/fedquery/internal/ir"
)

func TestFormat(t *testing.T) {
	tree := &UnionBlock{Branches: []Element{
		&JoinBlock{
			Elements: []Element{
				&Service{
					Endpoint: "http://s1/sparql",
					Triples:  []ir.TriplePattern{ir.Triple(ir.Var("p"), ir.IRI("http://ex.org/knows"), ir.Var("x"))},
				},
				&Optional{Body: NewGroup(T(ir.Var("x"), ir.IRI("http://ex.org/name"), ir.Var("c")))},
			},
			Filters: []*Filter{{Expr: &Call{Func: "bound", Args: []ir.Term{ir.Var("c")}}}},
		},
	}}

	expected := `Union
  Join
    FILTER(BOUND(?c))
    Service <http://s1/sparql>
      ?p <http://ex.org/knows> ?x .
    Optional
      Union
        Join
          ?x <http://ex.org/name> ?c .
`
	assert.Equal(t, expected, Format(tree))
	assert.Equal(t, []string{"p", "x", "c"}, Vars(tree))
	assert.Len(t, Services(tree), 1)
}

func TestProjectedVarsDefaultsToBody(t *testing.T) {
	q := &Query{Body: NewGroup(T(ir.Var("s"), ir.Var("p"), ir.Var("o")))}
	assert.Equal(t, []string{"s", "p", "o"}, q.ProjectedVars())

	q.Projection = []string{"o"}
	assert.Equal(t, []string{"o"}, q.ProjectedVars())
}
