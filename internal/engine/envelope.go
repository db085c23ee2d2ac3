package engine

import (
	"encoding/json"
	"time"

	"github.com/roach88/fedquery/internal/ir"
)

// Envelope is the result of one federated query as returned to callers.
//
// A successful envelope marshals as
//
//	{"head":{"vars":[...]},"cardinality":n,"results":{"bindings":[...]},
//	 "execution_time":s,"output_version":"2.0"}
//
// and a failed one as {"results":{},"error":"..."}.
type Envelope struct {
	QueryID       string
	Vars          []string
	Bindings      []ir.Binding
	ExecutionTime time.Duration
	Error         string

	// Failures lists services whose retrieval failed; their partial
	// answers are included in Bindings. Not part of the wire format.
	Failures []SourceFailure
}

// Cardinality returns the number of solutions.
func (e *Envelope) Cardinality() int {
	return len(e.Bindings)
}

// Failed reports whether the envelope carries an error.
func (e *Envelope) Failed() bool {
	return e.Error != ""
}

type envelopeHead struct {
	Vars []string `json:"vars"`
}

type envelopeResults struct {
	Bindings []ir.Binding `json:"bindings"`
}

type successEnvelope struct {
	Head          envelopeHead    `json:"head"`
	Cardinality   int             `json:"cardinality"`
	Results       envelopeResults `json:"results"`
	ExecutionTime float64         `json:"execution_time"`
	OutputVersion string          `json:"output_version"`
}

type errorEnvelope struct {
	Results struct{} `json:"results"`
	Error   string   `json:"error"`
}

// MarshalJSON renders the success or the error form.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	if e.Failed() {
		return json.Marshal(errorEnvelope{Error: e.Error})
	}
	vars := e.Vars
	if vars == nil {
		vars = []string{}
	}
	bindings := e.Bindings
	if bindings == nil {
		bindings = []ir.Binding{}
	}
	return json.Marshal(successEnvelope{
		Head:          envelopeHead{Vars: vars},
		Cardinality:   len(bindings),
		Results:       envelopeResults{Bindings: bindings},
		ExecutionTime: e.ExecutionTime.Seconds(),
		OutputVersion: ir.OutputVersion,
	})
}

func errorResult(id string, err error) *Envelope {
	return &Envelope{QueryID: id, Error: err.Error()}
}
