// Package planner turns a decomposed query into a binary operator tree.
//
// Each join block's operands (services, nested blocks, unions) are
// combined into JoinNodes by the selected strategy; optional parts become
// LeftJoinNodes over the joined operands, and union blocks become
// UnionNodes. Filters stay on the node they were attached to by the
// decomposer.
package planner

import (
	"fmt"

	"github.com/roach88/fedquery/internal/queryir"
	"github.com/roach88/fedquery/internal/querysparql"
)

// Strategy selects the shape of join trees.
type Strategy string

const (
	// StrategyBushy pairs operands level by level, preferring pairs that
	// share a variable.
	StrategyBushy Strategy = "bushy"

	// StrategyLeftLinear orders operands so each one shares a variable
	// with those before it when possible, then folds left.
	StrategyLeftLinear Strategy = "left-linear"

	// StrategyNaive folds operands left in query order.
	StrategyNaive Strategy = "naive"
)

// ParseStrategy parses a strategy name. The empty string means bushy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyBushy:
		return StrategyBushy, nil
	case StrategyLeftLinear, StrategyNaive:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown join strategy %q (want bushy, left-linear or naive)", s)
	}
}

// Plan is an executable operator tree plus the solution modifiers of the query.
type Plan struct {
	Root       Node
	Projection []string
	Distinct   bool
	Limit      int
	Strategy   Strategy
}

// Planner builds plans.
type Planner struct {
	strategy Strategy
	compiler *querysparql.Compiler
}

// Option configures a Planner.
type Option func(*Planner)

// WithStrategy selects the join strategy.
func WithStrategy(s Strategy) Option {
	return func(p *Planner) {
		if s != "" {
			p.strategy = s
		}
	}
}

// WithCompiler sets the SPARQL compiler used for service leaves.
func WithCompiler(c *querysparql.Compiler) Option {
	return func(p *Planner) {
		p.compiler = c
	}
}

// New creates a planner using the bushy strategy.
func New(opts ...Option) *Planner {
	p := &Planner{strategy: StrategyBushy, compiler: querysparql.NewCompiler()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Strategy returns the planner's join strategy.
func (p *Planner) Strategy() Strategy {
	return p.strategy
}

// Plan builds the operator tree of a decomposed query.
func (p *Planner) Plan(q *queryir.Query) (*Plan, error) {
	if q == nil || q.Body == nil {
		return nil, fmt.Errorf("plan: query has no body")
	}
	root, err := p.union(q.Body)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	return &Plan{
		Root:       root,
		Projection: q.ProjectedVars(),
		Distinct:   q.Distinct,
		Limit:      q.Limit,
		Strategy:   p.strategy,
	}, nil
}

func (p *Planner) union(u *queryir.UnionBlock) (Node, error) {
	if len(u.Branches) == 0 {
		return nil, fmt.Errorf("union has no branches")
	}
	var branches []Node
	for _, br := range u.Branches {
		n, err := p.element(br)
		if err != nil {
			return nil, err
		}
		branches = append(branches, n)
	}
	if len(branches) == 1 {
		return withFilters(branches[0], u.Filters), nil
	}
	return &UnionNode{Branches: branches, Filters: u.Filters}, nil
}

func (p *Planner) element(el queryir.Element) (Node, error) {
	switch e := el.(type) {
	case *queryir.Service:
		q, err := p.compiler.CompileService(e)
		if err != nil {
			return nil, err
		}
		return &ServiceNode{Service: e, Query: q}, nil
	case *queryir.JoinBlock:
		return p.join(e)
	case *queryir.UnionBlock:
		return p.union(e)
	case *queryir.Optional:
		return p.union(e.Body)
	case *queryir.Triple:
		return nil, fmt.Errorf("triple %s was not decomposed into a service", e.Pattern)
	default:
		return nil, fmt.Errorf("unexpected element %T", el)
	}
}

// join folds a group left to right: required operands between optionals
// are combined with the strategy, joined onto what came before, and each
// optional left-joins everything written before it.
func (p *Planner) join(jb *queryir.JoinBlock) (Node, error) {
	var root Node
	var pending []Node
	flush := func() {
		if len(pending) == 0 {
			return
		}
		seg := p.combine(pending)
		pending = nil
		if root == nil {
			root = seg
			return
		}
		root = join(root, seg)
	}
	for _, el := range jb.Elements {
		if f, ok := el.(*queryir.Filter); ok {
			return nil, fmt.Errorf("filter %s was not placed", f)
		}
		n, err := p.element(el)
		if err != nil {
			return nil, err
		}
		if _, ok := el.(*queryir.Optional); !ok {
			pending = append(pending, n)
			continue
		}
		flush()
		if root == nil {
			root = &EmptyNode{}
		}
		root = &LeftJoinNode{Left: root, Right: n, JoinVars: intersect(root.Vars(), n.Vars())}
	}
	flush()
	if root == nil {
		root = &EmptyNode{}
	}
	return withFilters(root, jb.Filters), nil
}

func (p *Planner) combine(operands []Node) Node {
	switch p.strategy {
	case StrategyNaive:
		return leftDeep(operands)
	case StrategyLeftLinear:
		return leftDeep(connectedOrder(operands))
	default:
		return bushy(operands)
	}
}

// withFilters attaches filters to n, wrapping it when n cannot carry them.
func withFilters(n Node, filters []*queryir.Filter) Node {
	if len(filters) == 0 {
		return n
	}
	switch e := n.(type) {
	case *JoinNode:
		e.Filters = append(e.Filters, filters...)
		return e
	case *LeftJoinNode:
		e.Filters = append(e.Filters, filters...)
		return e
	case *UnionNode:
		e.Filters = append(e.Filters, filters...)
		return e
	case *FilterNode:
		e.Filters = append(e.Filters, filters...)
		return e
	default:
		return &FilterNode{Input: n, Filters: filters}
	}
}

func join(l, r Node) *JoinNode {
	return &JoinNode{Left: l, Right: r, JoinVars: intersect(l.Vars(), r.Vars())}
}
