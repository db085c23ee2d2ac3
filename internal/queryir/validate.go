package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/fedquery/internal/ir"
)

// Validation error codes (E200-E219)
const (
	ErrEmptyQuery        = "E200" // query has no body
	ErrEmptyBlock        = "E201" // block without elements
	ErrLiteralPredicate  = "E202" // predicate position holds a literal or blank node
	ErrLiteralSubject    = "E203" // subject position holds a literal
	ErrUnboundProjection = "E204" // projected variable never bound
	ErrNegativeLimit     = "E205" // LIMIT below zero
	ErrUnknownFunction   = "E206" // unsupported filter function
	ErrFunctionArity     = "E207" // wrong number of function arguments
	ErrUnknownOperator   = "E208" // unsupported comparison or logical operator
	ErrNilElement        = "E209" // nil element or expression
	ErrServiceNoEndpoint = "E210" // decomposed service without endpoint
	ErrServiceNoTriples  = "E211" // decomposed service without triples
)

// ValidationError is one problem found in a query tree.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationResult collects every error and warning of a query.
type ValidationResult struct {
	// Valid is true when Errors is empty.
	Valid bool

	Errors []ValidationError

	// Warnings are legal but suspicious constructs, such as a filter over a
	// variable its block never binds.
	Warnings []string
}

// Err returns the first error, or nil when the query is valid.
func (r ValidationResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// Validate checks a parsed or decomposed query.
// Returns all errors found (does not fail-fast).
//
// Validate is a pure function with no side effects.
func Validate(q *Query) ValidationResult {
	v := &validator{}
	switch {
	case q == nil || q.Body == nil:
		v.addError("body", ErrEmptyQuery, "query has no WHERE body")
	default:
		if q.Limit < 0 {
			v.addError("limit", ErrNegativeLimit, "limit must be >= 0, got %d", q.Limit)
		}
		v.validateElement("where", q.Body)
		bound := Vars(q.Body)
		for _, name := range q.Projection {
			if !contains(bound, name) {
				v.addError("select", ErrUnboundProjection, "variable ?%s is never bound by the query body", name)
			}
		}
	}
	return ValidationResult{
		Valid:    len(v.errors) == 0,
		Errors:   v.errors,
		Warnings: v.warnings,
	}
}

// validator accumulates errors and warnings during traversal.
type validator struct {
	errors   []ValidationError
	warnings []string
}

func (v *validator) addError(field, code, format string, args ...any) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validateElement(path string, el Element) {
	switch e := el.(type) {
	case nil:
		v.addError(path, ErrNilElement, "nil element")
	case *UnionBlock:
		if e == nil || len(e.Branches) == 0 {
			v.addError(path, ErrEmptyBlock, "union has no branches")
			return
		}
		for i, br := range e.Branches {
			v.validateElement(fmt.Sprintf("%s.union[%d]", path, i), br)
		}
		v.validateFilters(path, e.Filters, Vars(e))
	case *JoinBlock:
		if e == nil || (len(e.Elements) == 0 && len(e.Filters) == 0) {
			v.addError(path, ErrEmptyBlock, "group has no elements")
			return
		}
		var filters []*Filter
		for i, child := range e.Elements {
			if f, ok := child.(*Filter); ok {
				filters = append(filters, f)
				continue
			}
			v.validateElement(fmt.Sprintf("%s[%d]", path, i), child)
		}
		v.validateFilters(path, append(filters, e.Filters...), Vars(e))
	case *Optional:
		if e == nil || e.Body == nil {
			v.addError(path, ErrEmptyBlock, "optional has no body")
			return
		}
		v.validateElement(path+".optional", e.Body)
	case *Triple:
		v.validatePattern(path, e)
	case *Filter:
		v.validateFilters(path, []*Filter{e}, nil)
	case *Service:
		if e.Endpoint == "" {
			v.addError(path, ErrServiceNoEndpoint, "service has no endpoint")
		}
		if len(e.Triples) == 0 {
			v.addError(path, ErrServiceNoTriples, "service has no triple patterns")
		}
		for i, tp := range e.Triples {
			v.validatePattern(fmt.Sprintf("%s.service[%d]", path, i), &Triple{Pattern: tp})
		}
		v.validateFilters(path, e.Filters, e.Vars())
	default:
		v.addError(path, ErrNilElement, "unknown element type %T", el)
	}
}

func (v *validator) validatePattern(path string, t *Triple) {
	if t.Pattern.Predicate.IsConstant() && t.Pattern.Predicate.Kind != ir.TermIRI {
		v.addError(path, ErrLiteralPredicate, "predicate must be an IRI or variable, got %s", t.Pattern.Predicate)
	}
	if t.Pattern.Subject.IsConstant() && t.Pattern.Subject.Kind == ir.TermLiteral {
		v.addError(path, ErrLiteralSubject, "subject must not be a literal, got %s", t.Pattern.Subject)
	}
}

// validateFilters checks expressions; scope is nil when the bound set is unknown.
func (v *validator) validateFilters(path string, filters []*Filter, scope []string) {
	for _, f := range filters {
		if f == nil || f.Expr == nil {
			v.addError(path, ErrNilElement, "filter without expression")
			continue
		}
		v.validateExpr(path+".filter", f.Expr)
		if scope == nil {
			continue
		}
		var missing []string
		for _, name := range f.Vars() {
			if !contains(scope, name) {
				missing = append(missing, "?"+name)
			}
		}
		if len(missing) > 0 {
			v.addWarning("%s: filter %s references %s not bound in its group", path, f.Expr, strings.Join(missing, ", "))
		}
	}
}

func (v *validator) validateExpr(path string, e Expr) {
	switch x := e.(type) {
	case nil:
		v.addError(path, ErrNilElement, "nil expression")
	case *Compare:
		switch x.Op {
		case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		default:
			v.addError(path, ErrUnknownOperator, "unknown comparison operator %q", x.Op)
		}
	case *Logical:
		if x.Op != OpAnd && x.Op != OpOr {
			v.addError(path, ErrUnknownOperator, "unknown logical operator %q", x.Op)
		}
		if len(x.Args) < 2 {
			v.addError(path, ErrFunctionArity, "%s needs at least two operands", x.Op)
		}
		for _, a := range x.Args {
			v.validateExpr(path, a)
		}
	case *Not:
		v.validateExpr(path, x.Arg)
	case *Call:
		name := strings.ToLower(x.Func)
		arity, ok := builtinArity[name]
		if !ok {
			v.addError(path, ErrUnknownFunction, "unsupported function %q", x.Func)
			return
		}
		if len(x.Args) < arity[0] || len(x.Args) > arity[1] {
			v.addError(path, ErrFunctionArity, "%s takes %d..%d arguments, got %d", x.Func, arity[0], arity[1], len(x.Args))
		}
		if name == "bound" && len(x.Args) == 1 && !x.Args[0].IsVariable() {
			v.addError(path, ErrFunctionArity, "BOUND requires a variable")
		}
	}
}
