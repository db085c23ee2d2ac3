package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedquery/internal/catalog"
	"github.com/roach88/fedquery/internal/engine"
	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/queryir"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type call struct {
	session    string
	federation string
	query      *queryir.Query
}

type fakeEngine struct {
	mu    sync.Mutex
	calls []call
	env   *engine.Envelope
	err   error
}

func (f *fakeEngine) Query(ctx context.Context, federation string, q *queryir.Query) (*engine.Envelope, error) {
	return f.RunSession(ctx, "", federation, q)
}

func (f *fakeEngine) RunSession(_ context.Context, session, federation string, q *queryir.Query) (*engine.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{session: session, federation: federation, query: q})
	return f.env, f.err
}

type catalogFunc func(ctx context.Context, federation string) (*catalog.Catalog, error)

func (f catalogFunc) Get(ctx context.Context, federation string) (*catalog.Catalog, error) {
	return f(ctx, federation)
}

func testCatalogs() engine.CatalogSource {
	cat := catalog.New("lab", []ir.Molecule{{ID: "http://ex.org/Person", Cardinality: 3}},
		[]ir.DataSource{{ID: "s1", URL: "http://s1/sparql", Type: ir.SourceSPARQL}})
	return catalogFunc(func(_ context.Context, federation string) (*catalog.Catalog, error) {
		if federation != "lab" {
			return nil, fmt.Errorf("%w: %s", catalog.ErrUnknownFederation, federation)
		}
		return cat, nil
	})
}

const queryBody = `{
	"federation": "lab",
	"query": {
		"select": ["n"],
		"where": [{"triple": ["?p", "<http://ex.org/name>", "?n"]}]
	}
}`

func post(t *testing.T, h http.Handler, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestQueryHandler(t *testing.T) {
	eng := &fakeEngine{env: &engine.Envelope{
		QueryID:  "q-1",
		Vars:     []string{"n"},
		Bindings: []ir.Binding{{"n": ir.NewValue("Ann")}},
	}}
	h := New(eng, testCatalogs(), WithLogger(quiet())).Handler()

	rec := post(t, h, "/sparql", queryBody, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "q-1", rec.Header().Get("X-Query-ID"))
	assert.JSONEq(t, `{
		"head": {"vars": ["n"]},
		"cardinality": 1,
		"results": {"bindings": [{"n": {"value": "Ann", "type": "literal"}}]},
		"execution_time": 0,
		"output_version": "2.0"
	}`, rec.Body.String())

	require.Len(t, eng.calls, 1)
	assert.Equal(t, "lab", eng.calls[0].federation)
	assert.Empty(t, eng.calls[0].session)
	assert.Equal(t, []string{"n"}, eng.calls[0].query.Projection)
}

func TestQueryHandler_Session(t *testing.T) {
	eng := &fakeEngine{env: &engine.Envelope{QueryID: "q-1"}}
	h := New(eng, testCatalogs(), WithLogger(quiet())).Handler()

	rec := post(t, h, "/sparql", queryBody, map[string]string{SessionHeader: "tab-7"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, eng.calls, 1)
	assert.Equal(t, "tab-7", eng.calls[0].session)
}

func TestQueryHandler_FederationParam(t *testing.T) {
	eng := &fakeEngine{env: &engine.Envelope{QueryID: "q-1"}}
	h := New(eng, testCatalogs(), WithLogger(quiet())).Handler()

	body := `query: {where: [{triple: ["?s", "?p", "?o"]}]}`
	rec := post(t, h, "/sparql?federation=other", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "other", eng.calls[0].federation)
}

func TestQueryHandler_ErrorEnvelopes(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "missing federation", body: `{"query": {"where": [{"triple": ["?s", "?p", "?o"]}]}}`, status: http.StatusBadRequest},
		{name: "bad document", body: `{"federation": "lab", "query": {"where": [{"triple": ["?s"]}]}}`, status: http.StatusBadRequest},
		{name: "not yaml", body: `{"federation": [`, status: http.StatusBadRequest},
		{
			name:   "unserviceable",
			body:   queryBody,
			err:    &engine.QueryError{Code: engine.ErrCodeUnserviceable, Message: "no molecule"},
			status: http.StatusBadRequest,
		},
		{
			name:   "invalid query",
			body:   queryBody,
			err:    &engine.QueryError{Code: engine.ErrCodeInvalidQuery, Message: "unbound projection"},
			status: http.StatusBadRequest,
		},
		{
			name:   "all sources failed",
			body:   queryBody,
			err:    &engine.QueryError{Code: engine.ErrCodeSourceFailed, Message: "s1 down"},
			status: http.StatusOK,
		},
		{
			name:   "unknown federation",
			body:   queryBody,
			err:    &engine.QueryError{Code: engine.ErrCodeUnknownFederation, Message: "unknown"},
			status: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &fakeEngine{err: tt.err}
			if tt.err != nil {
				eng.env = &engine.Envelope{QueryID: "q-1", Error: tt.err.Error()}
			}
			h := New(eng, testCatalogs(), WithLogger(quiet())).Handler()

			rec := post(t, h, "/sparql", tt.body, nil)
			assert.Equal(t, tt.status, rec.Code)

			var decoded map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
			assert.Equal(t, map[string]any{}, decoded["results"])
			assert.NotEmpty(t, decoded["error"])
			assert.NotContains(t, decoded, "head")
		})
	}
}

func TestMoleculesHandler(t *testing.T) {
	h := New(&fakeEngine{}, testCatalogs(), WithLogger(quiet())).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/federations/lab/molecules", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Federation string          `json:"federation"`
		Count      int             `json:"count"`
		Molecules  []ir.Molecule   `json:"molecules"`
		Sources    []ir.DataSource `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "lab", body.Federation)
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Molecules, 1)
	assert.Equal(t, "http://ex.org/Person", body.Molecules[0].ID)
	require.Len(t, body.Sources, 1)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/federations/nope/molecules", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := New(&fakeEngine{}, testCatalogs(), WithLogger(quiet())).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ir.EngineVersion)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServeStopsWithContext(t *testing.T) {
	s := New(&fakeEngine{}, testCatalogs(), WithLogger(quiet()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

type countingInvalidator struct{ n atomic.Int32 }

func (c *countingInvalidator) InvalidateAll() { c.n.Add(1) }

func TestWatcherInvalidatesOnDefinitionChange(t *testing.T) {
	dir := t.TempDir()
	inv := &countingInvalidator{}
	var reloads atomic.Int32
	reload := func(context.Context) error {
		reloads.Add(1)
		return nil
	}
	w := NewWatcher(dir, InvalidateOnChange(inv, reload), quiet()).WithDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lab.cue"), []byte("package f\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lab.cue"), []byte("package f\nx: 1\n"), 0644))

	require.Eventually(t, func() bool { return inv.n.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, inv.n.Load(), reloads.Load())

	cancel()
	assert.NoError(t, <-errc)
}

func TestInvalidateOnChangeStopsOnReloadError(t *testing.T) {
	inv := &countingInvalidator{}
	err := InvalidateOnChange(inv, func(context.Context) error { return fmt.Errorf("bad cue") })(context.Background())
	assert.Error(t, err)
	assert.Zero(t, inv.n.Load())
}
