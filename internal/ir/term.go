package ir

import (
	"fmt"

	"github.com/cayleygraph/quad"
)

// TermKind discriminates the RDF term variants that may appear in a triple pattern.
type TermKind int

const (
	// TermVariable is a query variable such as ?x.
	TermVariable TermKind = iota

	// TermIRI is an absolute IRI.
	TermIRI

	// TermLiteral is a plain, language-tagged or datatyped literal.
	TermLiteral

	// TermBlank is a blank node label.
	TermBlank
)

// String returns the lowercase name of the kind.
func (k TermKind) String() string {
	switch k {
	case TermVariable:
		return "variable"
	case TermIRI:
		return "iri"
	case TermLiteral:
		return "literal"
	case TermBlank:
		return "bnode"
	default:
		return fmt.Sprintf("TermKind(%d)", int(k))
	}
}

// Term is one position of a triple pattern.
//
// For variables Value holds the name without the leading '?'.
// Datatype and Lang are only meaningful for literals and are mutually exclusive.
type Term struct {
	Kind     TermKind `json:"kind"`
	Value    string   `json:"value"`
	Datatype string   `json:"datatype,omitempty"`
	Lang     string   `json:"lang,omitempty"`
}

// Var returns a variable term.
func Var(name string) Term {
	return Term{Kind: TermVariable, Value: name}
}

// IRI returns an IRI term.
func IRI(iri string) Term {
	return Term{Kind: TermIRI, Value: iri}
}

// Literal returns a plain literal term.
func Literal(v string) Term {
	return Term{Kind: TermLiteral, Value: v}
}

// TypedLiteral returns a literal term with a datatype IRI.
func TypedLiteral(v, datatype string) Term {
	return Term{Kind: TermLiteral, Value: v, Datatype: datatype}
}

// LangLiteral returns a language-tagged literal term.
func LangLiteral(v, lang string) Term {
	return Term{Kind: TermLiteral, Value: v, Lang: lang}
}

// IsVariable reports whether the term is a query variable.
func (t Term) IsVariable() bool {
	return t.Kind == TermVariable
}

// IsConstant reports whether the term is bound in the pattern itself.
func (t Term) IsConstant() bool {
	return t.Kind != TermVariable
}

// Quad converts a constant term into its quad.Value.
// Returns nil for variables.
func (t Term) Quad() quad.Value {
	switch t.Kind {
	case TermIRI:
		return quad.IRI(t.Value)
	case TermBlank:
		return quad.BNode(t.Value)
	case TermLiteral:
		switch {
		case t.Lang != "":
			return quad.LangString{Value: quad.String(t.Value), Lang: t.Lang}
		case t.Datatype != "":
			return quad.TypedString{Value: quad.String(t.Value), Type: quad.IRI(t.Datatype)}
		default:
			return quad.String(t.Value)
		}
	default:
		return nil
	}
}

// String renders the term in SPARQL syntax: ?x, <iri>, "lit", "lit"@en, "lit"^^<dt>, _:b.
func (t Term) String() string {
	if t.Kind == TermVariable {
		return "?" + t.Value
	}
	return t.Quad().String()
}

// TermFromQuad converts a quad.Value into a constant term.
func TermFromQuad(v quad.Value) Term {
	switch val := v.(type) {
	case quad.IRI:
		return IRI(string(val))
	case quad.BNode:
		return Term{Kind: TermBlank, Value: string(val)}
	case quad.TypedString:
		return TypedLiteral(string(val.Value), string(val.Type))
	case quad.LangString:
		return LangLiteral(string(val.Value), val.Lang)
	case quad.String:
		return Literal(string(val))
	case nil:
		return Term{Kind: TermLiteral}
	default:
		return Literal(v.String())
	}
}
