// Package queryir provides the query tree shared by the decomposer, planner
// and executor.
//
// ARCHITECTURE:
//
// A parsed query and its decomposition use the same node types:
//
//	[query document] → [parsed tree] → Decomposer → [decomposed tree] → Planner
//
// A parsed tree is a UnionBlock whose branches are JoinBlocks holding Triple,
// Filter, Optional and nested block elements. Decomposition replaces the
// triples of every JoinBlock with Service leaves (one remote endpoint plus
// the triple patterns it answers) and moves filters into the Filters field
// of the innermost node that binds all of their variables.
//
// SEALED INTERFACES:
//
// Element and Expr are sealed interfaces using the marker method pattern.
// Only types in this package implement them, which keeps the type switches
// in the decomposer, the planner and the SPARQL compiler exhaustive:
//
//	switch el := element.(type) {
//	case *Triple:
//	case *Filter:
//	case *Optional:
//	case *JoinBlock:
//	case *UnionBlock:
//	case *Service:
//	}
//
// FILTER SEMANTICS:
//
// Filter expressions are evaluated with SPARQL error semantics collapsed to
// false: comparing an unbound variable, or a regex that does not compile,
// rejects the solution instead of failing the query.
package queryir
