package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/planner"
	"github.com/roach88/fedquery/internal/queryir"
	"github.com/roach88/fedquery/internal/sparql"
)

// start launches the worker of n, and recursively of its children, and
// returns n's output stream.
func (x *Execution) start(ctx context.Context, n planner.Node) <-chan ir.Binding {
	out := make(chan ir.Binding, x.exec.buffer)
	switch e := n.(type) {
	case *planner.ServiceNode:
		x.registry.start(ctx, "service "+e.Service.Endpoint, func(ctx context.Context) {
			defer close(out)
			x.service(ctx, e, out)
		})
	case *planner.JoinNode:
		l, r := x.start(ctx, e.Left), x.start(ctx, e.Right)
		x.registry.start(ctx, "join", func(ctx context.Context) {
			defer close(out)
			hashJoin(ctx, l, r, e.JoinVars, false, emitter(ctx, out, e.Filters))
		})
	case *planner.LeftJoinNode:
		l, r := x.start(ctx, e.Left), x.start(ctx, e.Right)
		x.registry.start(ctx, "left-join", func(ctx context.Context) {
			defer close(out)
			hashJoin(ctx, l, r, e.JoinVars, true, emitter(ctx, out, e.Filters))
		})
	case *planner.UnionNode:
		ins := make([]<-chan ir.Binding, len(e.Branches))
		for i, br := range e.Branches {
			ins[i] = x.start(ctx, br)
		}
		x.registry.start(ctx, "union", func(ctx context.Context) {
			defer close(out)
			merge(ins, emitter(ctx, out, e.Filters))
		})
	case *planner.FilterNode:
		in := x.start(ctx, e.Input)
		x.registry.start(ctx, "filter", func(ctx context.Context) {
			defer close(out)
			emit := emitter(ctx, out, e.Filters)
			for b := range in {
				if !emit(b) {
					return
				}
			}
		})
	case *planner.EmptyNode:
		x.registry.start(ctx, "empty", func(ctx context.Context) {
			defer close(out)
			emitter(ctx, out, nil)(ir.Binding{})
		})
	default:
		close(out)
		x.addFailure(SourceFailure{Error: fmt.Sprintf("unexpected plan node %T", n)})
	}
	return out
}

// emitter returns a function forwarding the bindings that pass filters.
// It reports false once ctx is done.
func emitter(ctx context.Context, out chan<- ir.Binding, filters []*queryir.Filter) func(ir.Binding) bool {
	return func(b ir.Binding) bool {
		for _, f := range filters {
			if !queryir.Eval(f.Expr, b) {
				return ctx.Err() == nil
			}
		}
		select {
		case out <- b:
			return true
		case <-ctx.Done():
			return false
		}
	}
}

// service pages through one endpoint. A failed retrieval is recorded and
// ends the stream early without affecting other workers.
func (x *Execution) service(ctx context.Context, n *planner.ServiceNode, out chan<- ir.Binding) {
	ctx, span := tracer.Start(ctx, "engine.Execution.service",
		trace.WithAttributes(
			attribute.String("query", x.ID),
			attribute.String("endpoint", n.Service.Endpoint),
			attribute.String("source", n.Service.SourceID),
		),
	)
	defer span.End()

	emit := emitter(ctx, out, nil)
	answers := 0
	status, err := x.exec.pager.Run(ctx, n.Service.Endpoint, n.Query, sparql.PageOptions{PageSize: x.exec.pageSize},
		func(page []ir.Binding) error {
			for _, b := range page {
				if !emit(b) {
					return ctx.Err()
				}
				answers++
			}
			return nil
		})
	span.SetAttributes(attribute.Int("answers", answers))

	switch {
	case err != nil:
		serviceRequests.WithLabelValues("cancelled").Inc()
	case status == sparql.StatusFailed:
		serviceRequests.WithLabelValues("failed").Inc()
		f := SourceFailure{
			SourceID: n.Service.SourceID,
			Endpoint: n.Service.Endpoint,
			Answers:  answers,
			Error:    "retrieval failed after reducing the page size below 1",
		}
		x.addFailure(f)
		span.SetStatus(codes.Error, f.Error)
		x.logger.Warn("service retrieval failed",
			"source", n.Service.SourceID,
			"endpoint", n.Service.Endpoint,
			"answers", answers)
	default:
		serviceRequests.WithLabelValues("ok").Inc()
	}
}

// entry is a binding held by one side of a join.
type entry struct {
	b       ir.Binding
	matched bool
}

// table indexes one side of a join by the values of the join variables.
// Bindings leaving a join variable unbound are kept in loose and probed
// against everything.
type table struct {
	vars    []string
	keyed   map[string][]*entry
	loose   []*entry
	entries []*entry
}

func newTable(vars []string) *table {
	return &table{vars: vars, keyed: make(map[string][]*entry)}
}

func (t *table) add(b ir.Binding) *entry {
	e := &entry{b: b}
	t.entries = append(t.entries, e)
	if key, ok := joinKey(b, t.vars); ok {
		t.keyed[key] = append(t.keyed[key], e)
	} else {
		t.loose = append(t.loose, e)
	}
	return e
}

// probe calls fn for every stored entry compatible with b until fn
// returns false.
func (t *table) probe(b ir.Binding, fn func(*entry) bool) bool {
	candidates := t.entries
	if key, ok := joinKey(b, t.vars); ok {
		candidates = append(append([]*entry(nil), t.keyed[key]...), t.loose...)
	}
	for _, e := range candidates {
		if !e.b.Compatible(b) {
			continue
		}
		if !fn(e) {
			return false
		}
	}
	return true
}

func joinKey(b ir.Binding, vars []string) (string, bool) {
	if len(vars) == 0 {
		return "", true
	}
	var sb strings.Builder
	for _, v := range vars {
		val, ok := b[v]
		if !ok {
			return "", false
		}
		sb.WriteString(val.Value)
		sb.WriteByte(0)
	}
	return sb.String(), true
}

// hashJoin is a symmetric hash join: each arriving binding is stored on
// its side and probed against everything the other side has delivered.
// With leftOuter set, left bindings that never matched are emitted once
// both inputs are exhausted.
func hashJoin(ctx context.Context, l, r <-chan ir.Binding, vars []string, leftOuter bool, emit func(ir.Binding) bool) {
	left, right := newTable(vars), newTable(vars)
	for l != nil || r != nil {
		select {
		case b, ok := <-l:
			if !ok {
				l = nil
				continue
			}
			e := left.add(b)
			if !right.probe(b, func(o *entry) bool {
				e.matched = true
				return emit(b.Merge(o.b))
			}) {
				return
			}
		case b, ok := <-r:
			if !ok {
				r = nil
				continue
			}
			right.add(b)
			if !left.probe(b, func(o *entry) bool {
				o.matched = true
				return emit(o.b.Merge(b))
			}) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
	if !leftOuter {
		return
	}
	for _, e := range left.entries {
		if !e.matched && !emit(e.b) {
			return
		}
	}
}

// merge forwards the bindings of every input as they arrive.
func merge(ins []<-chan ir.Binding, emit func(ir.Binding) bool) {
	var wg sync.WaitGroup
	for _, in := range ins {
		wg.Add(1)
		go func(in <-chan ir.Binding) {
			defer wg.Done()
			for b := range in {
				if !emit(b) {
					return
				}
			}
		}(in)
	}
	wg.Wait()
}
