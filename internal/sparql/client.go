// Package sparql talks to remote SPARQL 1.1 protocol endpoints.
//
// Client is the seam every other package depends on; HTTPClient is the
// production implementation. The paginated query primitive in paginate.go
// is the only place that retries.
package sparql

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/fedquery/internal/ir"
)

// DefaultTimeout bounds every request when no timeout is configured.
const DefaultTimeout = 60 * time.Second

// Client executes SPARQL queries and updates against one endpoint per call.
type Client interface {
	// Query runs a SELECT query. Any transport, HTTP or decoding failure is
	// returned as an error; callers treat it as transient.
	Query(ctx context.Context, endpoint, query string) (*Result, error)

	// Update runs a SPARQL update.
	Update(ctx context.Context, endpoint, update string) error
}

// Result is a decoded SELECT result.
type Result struct {
	Vars     []string
	Bindings []ir.Binding
}

// Cardinality returns the number of solutions.
func (r *Result) Cardinality() int {
	if r == nil {
		return 0
	}
	return len(r.Bindings)
}

// RequestError describes a failed request.
type RequestError struct {
	Endpoint string
	Status   int
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("sparql request to %s failed: HTTP %d: %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("sparql request to %s failed: %s", e.Endpoint, e.Message)
}

// Unwrap returns the underlying transport error.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// HTTPClient implements Client over the SPARQL 1.1 protocol.
//
// Every request runs under a local deadline of Timeout, and the same bound is
// forwarded to the endpoint as the timeout parameter in milliseconds.
//
// Thread-safety: HTTPClient is safe for concurrent use.
type HTTPClient struct {
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithTimeout sets the local per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *HTTPClient) {
		c.http = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *HTTPClient) {
		c.logger = l
	}
}

// NewHTTPClient creates a client.
func NewHTTPClient(opts ...Option) *HTTPClient {
	c := &HTTPClient{
		http:    &http.Client{},
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the configured per-request timeout.
func (c *HTTPClient) Timeout() time.Duration {
	return c.timeout
}

// Query implements Client.
func (c *HTTPClient) Query(ctx context.Context, endpoint, query string) (*Result, error) {
	form := url.Values{}
	form.Set("query", query)
	form.Set("timeout", strconv.FormatInt(c.timeout.Milliseconds(), 10))

	body, err := c.post(ctx, endpoint, form, "application/sparql-results+json")
	if err != nil {
		requestsTotal.WithLabelValues("query", "error").Inc()
		return nil, err
	}
	defer body.Close()

	res, err := decodeResults(body)
	if err != nil {
		requestsTotal.WithLabelValues("query", "error").Inc()
		return nil, &RequestError{Endpoint: endpoint, Message: "decode results: " + err.Error(), Err: err}
	}
	requestsTotal.WithLabelValues("query", "ok").Inc()
	return res, nil
}

// Update implements Client.
func (c *HTTPClient) Update(ctx context.Context, endpoint, update string) error {
	form := url.Values{}
	form.Set("update", update)

	body, err := c.post(ctx, endpoint, form, "*/*")
	if err != nil {
		requestsTotal.WithLabelValues("update", "error").Inc()
		return err
	}
	_, _ = io.Copy(io.Discard, body)
	body.Close()
	requestsTotal.WithLabelValues("update", "ok").Inc()
	return nil
}

// post sends a form request and returns the body of a 2xx response.
// The body is wrapped so closing it also releases the request deadline.
func (c *HTTPClient) post(ctx context.Context, endpoint string, form url.Values, accept string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		cancel()
		return nil, &RequestError{Endpoint: endpoint, Message: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", accept)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		c.logger.Debug("sparql request failed",
			"endpoint", endpoint,
			"elapsed", time.Since(start),
			"error", err)
		return nil, &RequestError{Endpoint: endpoint, Message: err.Error(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		cancel()
		return nil, &RequestError{Endpoint: endpoint, Status: resp.StatusCode, Message: strings.TrimSpace(string(snippet))}
	}
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// resultsDoc is the application/sparql-results+json document.
type resultsDoc struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]struct {
			Type     string `json:"type"`
			Value    string `json:"value"`
			Datatype string `json:"datatype"`
			Lang     string `json:"xml:lang"`
		} `json:"bindings"`
	} `json:"results"`
}

func decodeResults(r io.Reader) (*Result, error) {
	var doc resultsDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	res := &Result{
		Vars:     doc.Head.Vars,
		Bindings: make([]ir.Binding, 0, len(doc.Results.Bindings)),
	}
	for _, row := range doc.Results.Bindings {
		b := make(ir.Binding, len(row))
		for name, v := range row {
			val := ir.Value{Value: v.Value, Datatype: v.Datatype, Lang: v.Lang}
			switch v.Type {
			case "uri":
				val.Type = ir.ValueURI
			case "bnode":
				val.Type = ir.ValueBNode
			case "literal", "typed-literal":
				val.Type = ir.ValueLiteral
			default:
				val.Type = ir.ValueTypeOf(v.Value)
			}
			b[name] = val
		}
		res.Bindings = append(res.Bindings, b)
	}
	return res, nil
}
