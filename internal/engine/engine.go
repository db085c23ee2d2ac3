package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/fedquery/internal/catalog"
	"github.com/roach88/fedquery/internal/decompose"
	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/planner"
	"github.com/roach88/fedquery/internal/queryir"
	"github.com/roach88/fedquery/internal/sparql"
	"github.com/roach88/fedquery/internal/store"
)

// CatalogSource provides the catalog of a federation.
// Implemented by *catalog.Registry.
type CatalogSource interface {
	Get(ctx context.Context, federation string) (*catalog.Catalog, error)
}

// QueryLog records finished queries.
// Implemented by *store.Store.
type QueryLog interface {
	WriteQuery(ctx context.Context, rec store.QueryRecord) error
}

// Engine answers federated queries: it decomposes a query against the
// federation's catalog, plans it and executes the plan.
//
// Thread-safety: Engine is safe for concurrent use.
type Engine struct {
	catalogs   CatalogSource
	decomposer *decompose.Decomposer
	planner    *planner.Planner
	executor   *Executor
	execOpts   []ExecutorOption
	ids        IDGenerator
	log        QueryLog
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*Execution
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithIDs sets the query ID generator.
func WithIDs(ids IDGenerator) Option {
	return func(e *Engine) {
		e.ids = ids
	}
}

// WithQueryLog records every finished query in log.
func WithQueryLog(log QueryLog) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithNow sets the engine's clock.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithPlanner sets the planner.
func WithPlanner(p *planner.Planner) Option {
	return func(e *Engine) {
		e.planner = p
	}
}

// WithDecomposer sets the decomposer.
func WithDecomposer(d *decompose.Decomposer) Option {
	return func(e *Engine) {
		e.decomposer = d
	}
}

// WithExecutorOptions configures the executor built by New.
func WithExecutorOptions(opts ...ExecutorOption) Option {
	return func(e *Engine) {
		e.execOpts = append(e.execOpts, opts...)
	}
}

// New creates an engine reading catalogs from catalogs and querying
// sources through client.
func New(catalogs CatalogSource, client sparql.Client, opts ...Option) *Engine {
	e := &Engine{
		catalogs: catalogs,
		ids:      UUIDv7Generator{},
		logger:   slog.Default(),
		now:      time.Now,
		sessions: make(map[string]*Execution),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.decomposer == nil {
		e.decomposer = decompose.New(decompose.WithLogger(e.logger))
	}
	if e.planner == nil {
		e.planner = planner.New()
	}
	execOpts := append([]ExecutorOption{WithExecutorLogger(e.logger), WithExecutorNow(e.now)}, e.execOpts...)
	e.executor = NewExecutor(client, execOpts...)
	return e
}

// Prepared is a decomposed and planned query ready to execute.
type Prepared struct {
	ID            string
	Federation    string
	Query         *queryir.Query
	Decomposition *decompose.Decomposition
	Plan          *planner.Plan
}

// Prepare decomposes and plans q against the catalog of federation.
//
// Errors are *QueryError with code UNKNOWN_FEDERATION, INVALID_QUERY,
// UNSERVICEABLE or PLAN_FAILED.
func (e *Engine) Prepare(ctx context.Context, federation string, q *queryir.Query) (*Prepared, error) {
	return e.prepare(ctx, e.ids.Generate(), federation, q)
}

func (e *Engine) prepare(ctx context.Context, id, federation string, q *queryir.Query) (*Prepared, error) {
	c, err := e.catalogs.Get(ctx, federation)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownFederation) {
			return nil, newQueryError(ErrCodeUnknownFederation, id, err)
		}
		return nil, newQueryError(ErrCodePlanFailed, id, fmt.Errorf("load catalog: %w", err))
	}

	d, err := e.decomposer.Decompose(ctx, c, q)
	if err != nil {
		var ve queryir.ValidationError
		switch {
		case errors.Is(err, decompose.ErrUnserviceable):
			return nil, newQueryError(ErrCodeUnserviceable, id, err)
		case errors.As(err, &ve):
			return nil, newQueryError(ErrCodeInvalidQuery, id, err)
		default:
			return nil, newQueryError(ErrCodePlanFailed, id, err)
		}
	}

	plan, err := e.planner.Plan(d.Query)
	if err != nil {
		return nil, newQueryError(ErrCodePlanFailed, id, err)
	}
	return &Prepared{ID: id, Federation: federation, Query: q, Decomposition: d, Plan: plan}, nil
}

// Start executes a prepared query.
func (e *Engine) Start(ctx context.Context, p *Prepared) *Execution {
	e.logger.Debug("executing query",
		"query", p.ID,
		"federation", p.Federation,
		"strategy", p.Plan.Strategy,
		"services", len(planner.Leaves(p.Plan.Root)))
	return e.executor.Execute(ctx, p.ID, p.Plan)
}

// Query answers q over federation and returns its envelope.
//
// The envelope is never nil: on failure it carries the error message and
// the returned error is the *QueryError behind it.
func (e *Engine) Query(ctx context.Context, federation string, q *queryir.Query) (*Envelope, error) {
	return e.run(ctx, "", federation, q)
}

// RunSession is Query for a client session. A query started in a session
// cancels the session's previous execution if it is still running.
func (e *Engine) RunSession(ctx context.Context, session, federation string, q *queryir.Query) (*Envelope, error) {
	return e.run(ctx, session, federation, q)
}

// Sessions returns the number of sessions with a running execution.
func (e *Engine) Sessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

func (e *Engine) run(ctx context.Context, session, federation string, q *queryir.Query) (*Envelope, error) {
	id := e.ids.Generate()
	started := e.now()
	rec := store.QueryRecord{
		ID:          id,
		Federation:  federation,
		Query:       describe(q),
		FirstResult: -1,
		LastResult:  -1,
	}

	p, err := e.prepare(ctx, id, federation, q)
	if err != nil {
		return e.fail(ctx, rec, started, err)
	}

	x := e.Start(ctx, p)
	if session != "" {
		e.supersede(session, x)
		defer e.release(session, x)
	}

	var bindings []ir.Binding
	for b := range x.Results() {
		bindings = append(bindings, b)
	}
	x.Wait()

	if x.Cancelled() || ctx.Err() != nil {
		cause := context.Cause(ctx)
		if cause == nil {
			cause = errors.New("superseded by a newer query")
		}
		return e.fail(ctx, rec, started, newQueryError(ErrCodeCancelled, id, fmt.Errorf("execution cancelled: %w", cause)))
	}

	failures := x.Failures()
	if leaves := len(planner.Leaves(p.Plan.Root)); leaves > 0 && len(failures) == leaves && len(bindings) == 0 {
		return e.fail(ctx, rec, started, newQueryError(ErrCodeSourceFailed, id,
			fmt.Errorf("all %d sources failed", leaves)))
	}

	if first, ok := x.FirstResult(); ok {
		rec.FirstResult = first.Sub(started)
	}
	if last, ok := x.LastResult(); ok {
		rec.LastResult = last.Sub(started)
	}
	env := &Envelope{
		QueryID:       id,
		Vars:          p.Plan.Projection,
		Bindings:      bindings,
		ExecutionTime: e.now().Sub(started),
		Failures:      failures,
	}
	status := "ok"
	if len(failures) > 0 {
		status = "partial"
	}
	rec.Status = status
	rec.Cardinality = len(bindings)
	rec.Total = env.ExecutionTime
	e.record(ctx, rec)

	queriesTotal.WithLabelValues(status).Inc()
	queryDuration.Observe(env.ExecutionTime.Seconds())
	e.logger.Info("query finished",
		"query", id,
		"federation", federation,
		"cardinality", len(bindings),
		"failures", len(failures),
		"duration", env.ExecutionTime)
	return env, nil
}

func (e *Engine) fail(ctx context.Context, rec store.QueryRecord, started time.Time, err error) (*Envelope, error) {
	status := statusOf(err)
	rec.Status = status
	rec.Error = err.Error()
	rec.Total = e.now().Sub(started)
	e.record(ctx, rec)

	queriesTotal.WithLabelValues(status).Inc()
	if status == "cancelled" {
		e.logger.Debug("query cancelled", "query", rec.ID)
	} else {
		e.logger.Warn("query failed", "query", rec.ID, "federation", rec.Federation, "error", err)
	}
	return errorResult(rec.ID, err), err
}

func (e *Engine) record(ctx context.Context, rec store.QueryRecord) {
	if e.log == nil {
		return
	}
	if err := e.log.WriteQuery(context.WithoutCancel(ctx), rec); err != nil {
		e.logger.Error("failed to record query", "query", rec.ID, "error", err)
	}
}

func (e *Engine) supersede(session string, x *Execution) {
	e.mu.Lock()
	prev := e.sessions[session]
	e.sessions[session] = x
	e.mu.Unlock()
	if prev != nil {
		e.logger.Debug("superseding query", "session", session, "previous", prev.ID, "query", x.ID)
		prev.Cancel()
	}
}

func (e *Engine) release(session string, x *Execution) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessions[session] == x {
		delete(e.sessions, session)
	}
}

func statusOf(err error) string {
	switch CodeOf(err) {
	case ErrCodeUnserviceable:
		return "unserviceable"
	case ErrCodeInvalidQuery:
		return "invalid"
	case ErrCodeCancelled:
		return "cancelled"
	case ErrCodeSourceFailed:
		return "source_failed"
	case ErrCodeUnknownFederation:
		return "unknown_federation"
	default:
		return "error"
	}
}

func describe(q *queryir.Query) string {
	if q == nil || q.Body == nil {
		return ""
	}
	return queryir.Format(q.Body)
}
