package queryir

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/fedquery/internal/ir"
)

// Expr is a filter expression.
//
// This is a sealed interface - only types in this package implement it.
type Expr interface {
	exprNode() // Marker method - seals interface to this package

	// Vars returns the variables referenced by the expression.
	Vars() []string

	// String renders the expression in SPARQL syntax, parenthesized.
	String() string
}

// Comparison operators.
const (
	OpEq = "="
	OpNe = "!="
	OpLt = "<"
	OpLe = "<="
	OpGt = ">"
	OpGe = ">="
)

// Logical operators.
const (
	OpAnd = "&&"
	OpOr  = "||"
)

// Compare is a binary comparison between two terms.
type Compare struct {
	Op    string
	Left  ir.Term
	Right ir.Term
}

func (*Compare) exprNode() {}

// Vars implements Expr.
func (c *Compare) Vars() []string {
	return termVars(c.Left, c.Right)
}

func (c *Compare) String() string {
	return "(" + c.Left.String() + " " + c.Op + " " + c.Right.String() + ")"
}

// Logical is a conjunction or disjunction of sub-expressions.
type Logical struct {
	Op   string
	Args []Expr
}

func (*Logical) exprNode() {}

// Vars implements Expr.
func (l *Logical) Vars() []string {
	var out []string
	for _, a := range l.Args {
		for _, v := range a.Vars() {
			if !contains(out, v) {
				out = append(out, v)
			}
		}
	}
	return out
}

func (l *Logical) String() string {
	parts := make([]string, len(l.Args))
	for i, a := range l.Args {
		parts[i] = a.String()
	}
	return "(" + strings.Join(parts, " "+l.Op+" ") + ")"
}

// Not negates a sub-expression.
type Not struct {
	Arg Expr
}

func (*Not) exprNode() {}

// Vars implements Expr.
func (n *Not) Vars() []string { return n.Arg.Vars() }

func (n *Not) String() string { return "(!" + n.Arg.String() + ")" }

// Call is a built-in function call over terms.
type Call struct {
	Func string
	Args []ir.Term
}

func (*Call) exprNode() {}

// Vars implements Expr.
func (c *Call) Vars() []string {
	return termVars(c.Args...)
}

func (c *Call) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.String()
	}
	return "(" + builtinNames[strings.ToLower(c.Func)] + "(" + strings.Join(parts, ", ") + "))"
}

// builtinNames maps accepted function names to their SPARQL spelling.
var builtinNames = map[string]string{
	"bound":     "BOUND",
	"regex":     "REGEX",
	"contains":  "CONTAINS",
	"strstarts": "STRSTARTS",
	"isiri":     "isIRI",
	"isuri":     "isIRI",
	"isliteral": "isLiteral",
}

// builtinArity is the accepted argument count range per function.
var builtinArity = map[string][2]int{
	"bound":     {1, 1},
	"regex":     {2, 3},
	"contains":  {2, 2},
	"strstarts": {2, 2},
	"isiri":     {1, 1},
	"isuri":     {1, 1},
	"isliteral": {1, 1},
}

// IsBuiltin reports whether name is a supported filter function.
func IsBuiltin(name string) bool {
	_, ok := builtinNames[strings.ToLower(name)]
	return ok
}

func termVars(terms ...ir.Term) []string {
	var out []string
	for _, t := range terms {
		if t.IsVariable() && !contains(out, t.Value) {
			out = append(out, t.Value)
		}
	}
	return out
}

// Eval evaluates the expression against a binding.
// Evaluation errors count as false.
func Eval(e Expr, b ir.Binding) bool {
	ok, err := eval(e, b)
	return err == nil && ok
}

type evalError struct{}

func (evalError) Error() string { return "filter evaluation error" }

func eval(e Expr, b ir.Binding) (bool, error) {
	switch x := e.(type) {
	case *Compare:
		return evalCompare(x, b)
	case *Logical:
		return evalLogical(x, b)
	case *Not:
		v, err := eval(x.Arg, b)
		if err != nil {
			return false, err
		}
		return !v, nil
	case *Call:
		return evalCall(x, b)
	default:
		return false, evalError{}
	}
}

// evalLogical follows SPARQL's three-valued logic: an error on one side of
// || is masked by true on the other, and of && by false.
func evalLogical(l *Logical, b ir.Binding) (bool, error) {
	var firstErr error
	for _, a := range l.Args {
		v, err := eval(a, b)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if l.Op == OpOr && v {
			return true, nil
		}
		if l.Op == OpAnd && !v {
			return false, nil
		}
	}
	if firstErr != nil {
		return false, firstErr
	}
	return l.Op == OpAnd, nil
}

func resolve(t ir.Term, b ir.Binding) (ir.Value, bool) {
	if t.IsVariable() {
		v, ok := b[t.Value]
		return v, ok
	}
	return ir.ValueFromTerm(t), true
}

func evalCompare(c *Compare, b ir.Binding) (bool, error) {
	l, ok := resolve(c.Left, b)
	if !ok {
		return false, evalError{}
	}
	r, ok := resolve(c.Right, b)
	if !ok {
		return false, evalError{}
	}

	var cmp int
	lf, lerr := strconv.ParseFloat(l.Value, 64)
	rf, rerr := strconv.ParseFloat(r.Value, 64)
	numeric := lerr == nil && rerr == nil && l.Type != ir.ValueURI && r.Type != ir.ValueURI
	switch {
	case numeric:
		switch {
		case lf < rf:
			cmp = -1
		case lf > rf:
			cmp = 1
		}
	case c.Op == OpEq || c.Op == OpNe:
		same := l.Value == r.Value && (l.Type == ir.ValueURI) == (r.Type == ir.ValueURI)
		if c.Op == OpEq {
			return same, nil
		}
		return !same, nil
	default:
		if (l.Type == ir.ValueURI) != (r.Type == ir.ValueURI) {
			return false, evalError{}
		}
		cmp = strings.Compare(l.Value, r.Value)
	}

	switch c.Op {
	case OpEq:
		return cmp == 0, nil
	case OpNe:
		return cmp != 0, nil
	case OpLt:
		return cmp < 0, nil
	case OpLe:
		return cmp <= 0, nil
	case OpGt:
		return cmp > 0, nil
	case OpGe:
		return cmp >= 0, nil
	default:
		return false, evalError{}
	}
}

func evalCall(c *Call, b ir.Binding) (bool, error) {
	name := strings.ToLower(c.Func)
	arity, ok := builtinArity[name]
	if !ok || len(c.Args) < arity[0] || len(c.Args) > arity[1] {
		return false, evalError{}
	}
	if name == "bound" {
		if !c.Args[0].IsVariable() {
			return false, evalError{}
		}
		_, ok := b[c.Args[0].Value]
		return ok, nil
	}

	args := make([]ir.Value, len(c.Args))
	for i, a := range c.Args {
		v, ok := resolve(a, b)
		if !ok {
			return false, evalError{}
		}
		args[i] = v
	}

	switch name {
	case "isiri", "isuri":
		return args[0].Type == ir.ValueURI, nil
	case "isliteral":
		return args[0].Type == ir.ValueLiteral, nil
	case "contains":
		return strings.Contains(args[0].Value, args[1].Value), nil
	case "strstarts":
		return strings.HasPrefix(args[0].Value, args[1].Value), nil
	case "regex":
		pattern := args[1].Value
		if len(args) == 3 && strings.Contains(args[2].Value, "i") {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, evalError{}
		}
		return re.MatchString(args[0].Value), nil
	default:
		return false, evalError{}
	}
}
