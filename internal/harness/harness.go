package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/roach88/fedquery/internal/catalog"
	"github.com/roach88/fedquery/internal/engine"
	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/planner"
	"github.com/roach88/fedquery/internal/store"
	"github.com/roach88/fedquery/internal/testutil"
)

// ClockStep is the step of the harness clock. Every reading advances it.
const ClockStep = time.Millisecond

// Harness is the test execution environment of one scenario: an in-memory
// store holding the catalog, scripted sources and an engine wired to both.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	client *testutil.FakeClient
	fed    string
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh in-memory database. Query IDs and the
// clock are deterministic, so traces and timings are reproducible.
//
// Execution flow:
//  1. Import the scenario catalog into a fresh store
//  2. Script the sources
//  3. Prepare the query to capture its decomposition and plan
//  4. Execute it and collect the envelope, the requests and the query log
//  5. Check the expect clause and the assertions
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	h, err := newHarness(ctx, scenario)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()

	q, err := scenario.Query.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	result := NewResult()
	if p, err := h.engine.Prepare(ctx, h.fed, q); err == nil {
		result.Prepared = p
	}
	result.Envelope, result.Err = h.engine.Query(ctx, h.fed, q)
	result.Calls = h.client.Calls()

	result.Queries, err = h.store.ReadQueries(ctx, h.fed, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read query log: %w", err)
	}

	for _, msg := range checkExpect(scenario.Expect, result) {
		result.AddError(msg)
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	h.logger.Debug("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"errors", len(result.Errors))
	return result, nil
}

func newHarness(ctx context.Context, scenario *Scenario) (*Harness, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	c, err := catalog.ReadFile(scenario.Catalog)
	if err != nil {
		st.Close()
		return nil, err
	}
	if err := st.ImportCatalog(ctx, c); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to import catalog: %w", err)
	}

	client := testutil.NewFakeClient()
	for _, src := range scenario.Sources {
		if src.Error != "" {
			client.OnError(src.Endpoint, src.Contains, errors.New(src.Error))
			continue
		}
		client.On(src.Endpoint, src.Contains, src.Rows...)
	}

	strategy, err := planner.ParseStrategy(scenario.Strategy)
	if err != nil {
		st.Close()
		return nil, err
	}
	execOpts := []engine.ExecutorOption{}
	if scenario.PageSize > 0 {
		execOpts = append(execOpts, engine.WithPageSize(scenario.PageSize))
	}
	eng := engine.New(catalog.NewRegistry(st, 0, logger), client,
		engine.WithLogger(logger),
		engine.WithIDs(testutil.NewSequenceIDs("q")),
		engine.WithNow(testutil.NewStepClock(ClockStep).Now),
		engine.WithQueryLog(st),
		engine.WithPlanner(planner.New(planner.WithStrategy(strategy))),
		engine.WithExecutorOptions(execOpts...),
	)

	fed := scenario.Federation
	if fed == "" {
		fed = c.Federation()
	}
	return &Harness{store: st, engine: eng, client: client, fed: fed, logger: logger}, nil
}

// checkExpect compares the envelope with the expect clause.
func checkExpect(expect *Expect, r *Result) []string {
	var errs []string
	if expect == nil || expect.Code == "" {
		if r.Err != nil {
			return []string{fmt.Sprintf("query failed: %v", r.Err)}
		}
	} else if code := string(engine.CodeOf(r.Err)); code != expect.Code {
		errs = append(errs, fmt.Sprintf("expected error code %s, got %q (%v)", expect.Code, code, r.Err))
	}
	if expect == nil {
		return errs
	}
	if expect.Error != "" && !strings.Contains(r.Envelope.Error, expect.Error) {
		errs = append(errs, fmt.Sprintf("expected error containing %q, got %q", expect.Error, r.Envelope.Error))
	}
	if expect.Cardinality != nil && r.Envelope.Cardinality() != *expect.Cardinality {
		errs = append(errs, fmt.Sprintf("expected cardinality %d, got %d", *expect.Cardinality, r.Envelope.Cardinality()))
	}
	if expect.Bindings != nil {
		want := make([]string, len(expect.Bindings))
		for i, b := range expect.Bindings {
			want[i] = rawKey(b)
		}
		got := make([]string, len(r.Envelope.Bindings))
		for i, b := range r.Envelope.Bindings {
			got[i] = rawKey(raw(b))
		}
		sort.Strings(want)
		sort.Strings(got)
		if strings.Join(want, "\n") != strings.Join(got, "\n") {
			errs = append(errs, fmt.Sprintf("expected bindings %v, got %v", want, got))
		}
	}
	return errs
}

// raw drops the type tags of a binding.
func raw(b ir.Binding) map[string]string {
	out := make(map[string]string, len(b))
	for k, v := range b {
		out[k] = v.Value
	}
	return out
}

// rawKey renders a raw binding canonically: sorted var=value pairs.
func rawKey(b map[string]string) string {
	vars := make([]string, 0, len(b))
	for v := range b {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = v + "=" + b[v]
	}
	return strings.Join(parts, " ")
}
