package ir

import (
	"regexp"
	"sort"
)

// Value type tags used in result bindings.
const (
	ValueURI     = "uri"
	ValueLiteral = "literal"
	ValueBNode   = "bnode"
)

var uriPattern = regexp.MustCompile(`^https?://`)

// Value is one bound value of a solution mapping.
type Value struct {
	Value    string `json:"value"`
	Type     string `json:"type"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// ValueTypeOf infers the result type tag of a raw value: anything that starts
// with http:// or https:// is a URI, everything else is a literal.
func ValueTypeOf(v string) string {
	if uriPattern.MatchString(v) {
		return ValueURI
	}
	return ValueLiteral
}

// NewValue builds a value whose type tag is inferred from its lexical form.
func NewValue(v string) Value {
	return Value{Value: v, Type: ValueTypeOf(v)}
}

// ValueFromTerm converts a constant term into a bound value.
func ValueFromTerm(t Term) Value {
	switch t.Kind {
	case TermIRI:
		return Value{Value: t.Value, Type: ValueURI}
	case TermBlank:
		return Value{Value: t.Value, Type: ValueBNode}
	default:
		return Value{Value: t.Value, Type: ValueLiteral, Datatype: t.Datatype, Lang: t.Lang}
	}
}

// Term converts the value back into a constant term.
func (v Value) Term() Term {
	switch v.Type {
	case ValueURI:
		return IRI(v.Value)
	case ValueBNode:
		return Term{Kind: TermBlank, Value: v.Value}
	default:
		return Term{Kind: TermLiteral, Value: v.Value, Datatype: v.Datatype, Lang: v.Lang}
	}
}

// Binding is one solution mapping from variable name to value.
// Variables absent from the map are unbound.
type Binding map[string]Value

// Clone returns a shallow copy of the binding.
func (b Binding) Clone() Binding {
	out := make(Binding, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Vars returns the bound variable names in sorted order.
func (b Binding) Vars() []string {
	vars := make([]string, 0, len(b))
	for k := range b {
		vars = append(vars, k)
	}
	sort.Strings(vars)
	return vars
}

// Compatible reports whether the two bindings agree on every variable bound in both.
func (b Binding) Compatible(other Binding) bool {
	small, large := b, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for k, v := range small {
		if ov, ok := large[k]; ok && ov.Value != v.Value {
			return false
		}
	}
	return true
}

// Merge returns the union of two compatible bindings.
func (b Binding) Merge(other Binding) Binding {
	out := make(Binding, len(b)+len(other))
	for k, v := range b {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Project keeps only the named variables. Unbound names are omitted.
func (b Binding) Project(vars []string) Binding {
	out := make(Binding, len(vars))
	for _, name := range vars {
		if v, ok := b[name]; ok {
			out[name] = v
		}
	}
	return out
}
