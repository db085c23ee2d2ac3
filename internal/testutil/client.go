package testutil

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/sparql"
)

// Call is one request received by a FakeClient.
type Call struct {
	Endpoint string
	Query    string
}

type route struct {
	endpoint string
	contains string
	result   *sparql.Result
	err      error
	// failures is the number of initial matching calls that fail with err
	// before result is served; -1 fails forever.
	failures int
	hits     int
	block    <-chan struct{}
}

// FakeClient is a scripted sparql.Client.
//
// Routes match a request when the endpoint is equal (or the route endpoint
// is empty) and the query contains the route's substring. The first matching
// route wins; unmatched queries return an empty result. Paginated queries
// are served a LIMIT/OFFSET window of the scripted bindings.
//
// Thread-safety: FakeClient is safe for concurrent use.
type FakeClient struct {
	mu      sync.Mutex
	routes  []*route
	calls   []Call
	updates []Call

	updateErr error
}

// NewFakeClient creates a client with no routes.
func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// On serves rows for queries containing contains. Each row maps variable
// names to raw values, typed the way the result boundary types them.
func (f *FakeClient) On(endpoint, contains string, rows ...map[string]string) *FakeClient {
	return f.OnResult(endpoint, contains, Rows(rows...))
}

// OnResult serves a prepared result.
func (f *FakeClient) OnResult(endpoint, contains string, res *sparql.Result) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, &route{endpoint: endpoint, contains: contains, result: res})
	return f
}

// OnError fails every matching query with err.
func (f *FakeClient) OnError(endpoint, contains string, err error) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, &route{endpoint: endpoint, contains: contains, err: err, failures: -1})
	return f
}

// OnFlaky fails the first n matching queries with err, then serves rows.
func (f *FakeClient) OnFlaky(endpoint, contains string, n int, err error, rows ...map[string]string) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, &route{endpoint: endpoint, contains: contains, err: err, failures: n, result: Rows(rows...)})
	return f
}

// OnBlock makes matching queries wait until release is closed or the
// request context is done.
func (f *FakeClient) OnBlock(endpoint, contains string, release <-chan struct{}) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, &route{endpoint: endpoint, contains: contains, block: release, result: &sparql.Result{}})
	return f
}

// FailUpdates makes every subsequent Update fail with err.
func (f *FakeClient) FailUpdates(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateErr = err
}

var pageSuffix = regexp.MustCompile(`\nLIMIT (\d+) OFFSET (\d+)$`)

// Query implements sparql.Client.
func (f *FakeClient) Query(ctx context.Context, endpoint, query string) (*sparql.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Endpoint: endpoint, Query: query})
	r := f.match(endpoint, query)
	var failing bool
	if r != nil {
		r.hits++
		failing = r.err != nil && (r.failures < 0 || r.hits <= r.failures)
	}
	f.mu.Unlock()

	if r == nil {
		return &sparql.Result{}, nil
	}
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failing {
		return nil, r.err
	}
	return window(r.result, query), nil
}

func (f *FakeClient) match(endpoint, query string) *route {
	for _, r := range f.routes {
		if r.endpoint != "" && r.endpoint != endpoint {
			continue
		}
		if strings.Contains(query, r.contains) {
			return r
		}
	}
	return nil
}

func window(res *sparql.Result, query string) *sparql.Result {
	if res == nil {
		return &sparql.Result{}
	}
	out := &sparql.Result{Vars: res.Vars}
	m := pageSuffix.FindStringSubmatch(query)
	if m == nil {
		out.Bindings = append(out.Bindings, res.Bindings...)
		return out
	}
	limit, _ := strconv.Atoi(m[1])
	offset, _ := strconv.Atoi(m[2])
	if offset >= len(res.Bindings) {
		return out
	}
	end := offset + limit
	if end > len(res.Bindings) {
		end = len(res.Bindings)
	}
	out.Bindings = append(out.Bindings, res.Bindings[offset:end]...)
	return out
}

// Update implements sparql.Client.
func (f *FakeClient) Update(_ context.Context, endpoint, update string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, Call{Endpoint: endpoint, Query: update})
	return nil
}

// Calls returns every query received, in arrival order.
func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsMatching returns the queries containing substr.
func (f *FakeClient) CallsMatching(substr string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if strings.Contains(c.Query, substr) {
			out = append(out, c)
		}
	}
	return out
}

// Updates returns every successful update, in arrival order.
func (f *FakeClient) Updates() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.updates...)
}

// Rows builds a result from raw rows. Variables are collected in sorted
// order across all rows.
func Rows(rows ...map[string]string) *sparql.Result {
	res := &sparql.Result{}
	seen := map[string]bool{}
	for _, row := range rows {
		b := make(ir.Binding, len(row))
		for k, v := range row {
			b[k] = ir.NewValue(v)
			if !seen[k] {
				seen[k] = true
				res.Vars = append(res.Vars, k)
			}
		}
		res.Bindings = append(res.Bindings, b)
	}
	sort.Strings(res.Vars)
	return res
}

// Column builds a one-variable result.
func Column(name string, values ...string) *sparql.Result {
	rows := make([]map[string]string, len(values))
	for i, v := range values {
		rows[i] = map[string]string{name: v}
	}
	return Rows(rows...)
}

// Numbered returns n values prefix0, prefix1, ...
func Numbered(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return out
}
