package planner

import (
	"fmt"
	"strings"

	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/queryir"
)

// Node is an operator of a plan.
//
// This is a sealed interface - only types in this package implement it.
type Node interface {
	planNode() // Marker method - seals interface to this package

	// Vars returns the variables the node may bind.
	Vars() []string
}

// ServiceNode retrieves the answers of one Service leaf from its endpoint.
// Query is the compiled SPARQL text, without pagination.
type ServiceNode struct {
	Service *queryir.Service
	Query   string
}

func (*ServiceNode) planNode() {}

// Vars implements Node.
func (n *ServiceNode) Vars() []string { return n.Service.Vars() }

// JoinNode is an inner join on the variables both sides may bind.
type JoinNode struct {
	Left     Node
	Right    Node
	JoinVars []string
	Filters  []*queryir.Filter
}

func (*JoinNode) planNode() {}

// Vars implements Node.
func (n *JoinNode) Vars() []string { return union(n.Left.Vars(), n.Right.Vars()) }

// LeftJoinNode is a left outer join: left tuples without a compatible
// right tuple are emitted unchanged.
type LeftJoinNode struct {
	Left     Node
	Right    Node
	JoinVars []string
	Filters  []*queryir.Filter
}

func (*LeftJoinNode) planNode() {}

// Vars implements Node.
func (n *LeftJoinNode) Vars() []string { return union(n.Left.Vars(), n.Right.Vars()) }

// UnionNode forwards the tuples of every branch.
type UnionNode struct {
	Branches []Node
	Filters  []*queryir.Filter
}

func (*UnionNode) planNode() {}

// Vars implements Node.
func (n *UnionNode) Vars() []string {
	var out []string
	for _, b := range n.Branches {
		out = union(out, b.Vars())
	}
	return out
}

// FilterNode applies filters to the tuples of a node that carries no
// filters of its own.
type FilterNode struct {
	Input   Node
	Filters []*queryir.Filter
}

func (*FilterNode) planNode() {}

// Vars implements Node.
func (n *FilterNode) Vars() []string { return n.Input.Vars() }

// EmptyNode yields one empty solution. It is the left side of a group that
// holds only optional parts.
type EmptyNode struct{}

func (*EmptyNode) planNode() {}

// Vars implements Node.
func (*EmptyNode) Vars() []string { return nil }

// Format renders a plan tree as indented text.
func Format(n Node) string {
	var b strings.Builder
	format(&b, n, 0)
	return b.String()
}

func format(b *strings.Builder, n Node, depth int) {
	indent := strings.Repeat("  ", depth)
	switch e := n.(type) {
	case *ServiceNode:
		fmt.Fprintf(b, "%sService <%s>\n", indent, e.Service.Endpoint)
		b.WriteString(ir.FormatPatterns(e.Service.Triples, indent+"  "))
		writeFilters(b, e.Service.Filters, depth+1)
	case *JoinNode:
		fmt.Fprintf(b, "%sJoin %s\n", indent, varList(e.JoinVars))
		writeFilters(b, e.Filters, depth+1)
		format(b, e.Left, depth+1)
		format(b, e.Right, depth+1)
	case *LeftJoinNode:
		fmt.Fprintf(b, "%sLeftJoin %s\n", indent, varList(e.JoinVars))
		writeFilters(b, e.Filters, depth+1)
		format(b, e.Left, depth+1)
		format(b, e.Right, depth+1)
	case *UnionNode:
		b.WriteString(indent + "Union\n")
		writeFilters(b, e.Filters, depth+1)
		for _, br := range e.Branches {
			format(b, br, depth+1)
		}
	case *FilterNode:
		b.WriteString(indent + "Filter\n")
		writeFilters(b, e.Filters, depth+1)
		format(b, e.Input, depth+1)
	case *EmptyNode:
		b.WriteString(indent + "Empty\n")
	}
}

func writeFilters(b *strings.Builder, filters []*queryir.Filter, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, f := range filters {
		b.WriteString(indent + f.String() + "\n")
	}
}

func varList(vars []string) string {
	if len(vars) == 0 {
		return "[]"
	}
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = "?" + v
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Leaves returns every ServiceNode under n.
func Leaves(n Node) []*ServiceNode {
	var out []*ServiceNode
	switch e := n.(type) {
	case *ServiceNode:
		out = append(out, e)
	case *JoinNode:
		out = append(append(out, Leaves(e.Left)...), Leaves(e.Right)...)
	case *LeftJoinNode:
		out = append(append(out, Leaves(e.Left)...), Leaves(e.Right)...)
	case *UnionNode:
		for _, br := range e.Branches {
			out = append(out, Leaves(br)...)
		}
	case *FilterNode:
		out = append(out, Leaves(e.Input)...)
	}
	return out
}

func union(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, v := range b {
		if !contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func intersect(a, b []string) []string {
	var out []string
	for _, v := range a {
		if contains(b, v) {
			out = append(out, v)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
