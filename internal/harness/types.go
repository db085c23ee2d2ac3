package harness

import (
	"github.com/roach88/fedquery/internal/engine"
	"github.com/roach88/fedquery/internal/store"
	"github.com/roach88/fedquery/internal/testutil"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if the expect clause and every assertion hold.
	Pass bool `json:"pass"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Envelope is the query's result envelope. Never nil after Run.
	Envelope *engine.Envelope `json:"-"`

	// Err is the error behind a failed envelope.
	Err error `json:"-"`

	// Prepared holds the decomposition and plan. Nil when preparation
	// failed.
	Prepared *engine.Prepared `json:"-"`

	// Calls are the requests the scripted sources received, in order.
	Calls []testutil.Call `json:"-"`

	// Queries is the query log after the run.
	Queries []store.QueryRecord `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// CallsTo returns the number of requests an endpoint received.
func (r *Result) CallsTo(endpoint string) int {
	n := 0
	for _, c := range r.Calls {
		if c.Endpoint == endpoint {
			n++
		}
	}
	return n
}
