package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/planner"
	"github.com/roach88/fedquery/internal/sparql"
)

var tracer = otel.Tracer("fedquery/engine")

// DefaultBuffer is the capacity of the channel between two operators.
const DefaultBuffer = 64

// Executor runs plans.
//
// Thread-safety: an Executor may run any number of plans concurrently.
type Executor struct {
	pager    *sparql.Paginator
	logger   *slog.Logger
	now      func() time.Time
	pageSize int
	buffer   int
	distinct *DistinctTracker
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithPageSize sets the initial page size of service retrievals.
func WithPageSize(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithBuffer sets the capacity of operator channels.
func WithBuffer(n int) ExecutorOption {
	return func(e *Executor) {
		if n >= 0 {
			e.buffer = n
		}
	}
}

// WithExecutorLogger sets the executor's logger.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithExecutorNow sets the clock used for result timestamps.
func WithExecutorNow(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

// NewExecutor creates an executor retrieving from client.
func NewExecutor(client sparql.Client, opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger:   slog.Default(),
		now:      time.Now,
		pageSize: sparql.DefaultPageSize,
		buffer:   DefaultBuffer,
		distinct: NewDistinctTracker(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.pager = sparql.NewPaginator(client, e.logger)
	return e
}

// Execution is one running plan.
//
// Results delivers projected solutions and is closed when the plan is
// exhausted, its LIMIT is reached, or the execution is cancelled. Done is
// closed once every worker has exited.
type Execution struct {
	ID   string
	Vars []string

	exec     *Executor
	logger   *slog.Logger
	results  chan ir.Binding
	cancel   context.CancelFunc
	registry *registry
	done     chan struct{}
	started  time.Time

	mu           sync.Mutex
	first, last  time.Time
	count        int
	failures     []SourceFailure
	cancelled    bool
	limitReached bool
}

// Execute starts every worker of plan and returns immediately.
func (e *Executor) Execute(ctx context.Context, id string, plan *planner.Plan) *Execution {
	ctx, cancel := context.WithCancel(ctx)
	x := &Execution{
		ID:       id,
		Vars:     append([]string(nil), plan.Projection...),
		exec:     e,
		logger:   e.logger.With("query", id),
		results:  make(chan ir.Binding, e.buffer),
		cancel:   cancel,
		registry: newRegistry(),
		done:     make(chan struct{}),
		started:  e.now(),
	}

	in := x.start(ctx, plan.Root)
	x.registry.start(ctx, "top", func(ctx context.Context) {
		x.top(ctx, in, plan)
	})

	go func() {
		x.registry.wait()
		e.distinct.Clear(id)
		cancel()
		close(x.done)
	}()
	return x
}

// Results returns the solution stream.
func (x *Execution) Results() <-chan ir.Binding {
	return x.results
}

// Done is closed once every worker has exited.
func (x *Execution) Done() <-chan struct{} {
	return x.done
}

// Wait blocks until every worker has exited.
func (x *Execution) Wait() {
	<-x.done
}

// Cancel terminates every outstanding worker. Results is closed and the
// solutions not yet read are discarded.
func (x *Execution) Cancel() {
	x.mu.Lock()
	if !x.limitReached {
		x.cancelled = true
	}
	x.mu.Unlock()
	n := x.registry.cancelAll()
	x.cancel()
	x.logger.Debug("execution cancelled", "workers", n)
}

// Cancelled reports whether the execution was cancelled before its
// stream ended.
func (x *Execution) Cancelled() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.cancelled
}

// Started returns the time the execution started.
func (x *Execution) Started() time.Time {
	return x.started
}

// FirstResult returns the time the first solution was delivered.
func (x *Execution) FirstResult() (time.Time, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.first, x.count > 0
}

// LastResult returns the time the latest solution was delivered.
func (x *Execution) LastResult() (time.Time, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.last, x.count > 0
}

// Count returns the number of solutions delivered.
func (x *Execution) Count() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.count
}

// Failures returns the services whose retrieval failed.
func (x *Execution) Failures() []SourceFailure {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]SourceFailure(nil), x.failures...)
}

// Outstanding returns the names of the workers still running, in start order.
func (x *Execution) Outstanding() []string {
	return x.registry.outstanding()
}

func (x *Execution) addFailure(f SourceFailure) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.failures = append(x.failures, f)
}

func (x *Execution) recordResult() {
	now := x.exec.now()
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.count == 0 {
		x.first = now
	}
	x.last = now
	x.count++
}

// top applies projection, DISTINCT and LIMIT and delivers solutions.
func (x *Execution) top(ctx context.Context, in <-chan ir.Binding, plan *planner.Plan) {
	defer close(x.results)
	limit := NewLimitEnforcer(plan.Limit)
	for {
		select {
		case b, ok := <-in:
			if !ok {
				return
			}
			p := b.Project(plan.Projection)
			if plan.Distinct {
				key, err := ir.BindingKey(p, plan.Projection)
				if err == nil && x.exec.distinct.Seen(x.ID, key) {
					continue
				}
			}
			select {
			case x.results <- p:
			case <-ctx.Done():
				x.markCancelled()
				return
			}
			x.recordResult()
			resultsEmitted.Inc()
			if err := limit.Check(x.ID); err != nil {
				x.mu.Lock()
				x.limitReached = true
				x.mu.Unlock()
				x.logger.Debug("limit reached, cancelling workers", "limit", plan.Limit)
				x.registry.cancelAll()
				x.cancel()
				return
			}
		case <-ctx.Done():
			x.markCancelled()
			return
		}
	}
}

func (x *Execution) markCancelled() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.limitReached {
		x.cancelled = true
	}
}
