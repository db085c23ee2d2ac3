package ir

import "strings"

// TriplePattern is one subject/predicate/object pattern of a basic graph pattern.
type TriplePattern struct {
	Subject   Term `json:"subject"`
	Predicate Term `json:"predicate"`
	Object    Term `json:"object"`
}

// Triple builds a pattern from three terms.
func Triple(s, p, o Term) TriplePattern {
	return TriplePattern{Subject: s, Predicate: p, Object: o}
}

// Vars returns the distinct variable names of the pattern in s, p, o order.
func (tp TriplePattern) Vars() []string {
	var vars []string
	for _, t := range []Term{tp.Subject, tp.Predicate, tp.Object} {
		if t.IsVariable() && !containsString(vars, t.Value) {
			vars = append(vars, t.Value)
		}
	}
	return vars
}

// String renders the pattern as a SPARQL triple without the trailing dot.
func (tp TriplePattern) String() string {
	return tp.Subject.String() + " " + tp.Predicate.String() + " " + tp.Object.String()
}

// Equal reports term-wise equality.
func (tp TriplePattern) Equal(other TriplePattern) bool {
	return tp.Subject == other.Subject && tp.Predicate == other.Predicate && tp.Object == other.Object
}

// PatternVars returns the distinct variables of a list of patterns, in first-seen order.
func PatternVars(patterns []TriplePattern) []string {
	var vars []string
	for _, tp := range patterns {
		for _, v := range tp.Vars() {
			if !containsString(vars, v) {
				vars = append(vars, v)
			}
		}
	}
	return vars
}

// FormatPatterns renders patterns one per line, each terminated by " .".
func FormatPatterns(patterns []TriplePattern, indent string) string {
	var b strings.Builder
	for _, tp := range patterns {
		b.WriteString(indent)
		b.WriteString(tp.String())
		b.WriteString(" .\n")
	}
	return b.String()
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
