package engine

import (
	"errors"
	"fmt"
)

// QueryError is an error returned to callers of the engine.
//
// QueryError includes structured fields for diagnostics and the result
// envelope.
type QueryError struct {
	// Code identifies the error category.
	Code QueryErrorCode

	// Message is a human-readable description.
	Message string

	// QueryID identifies the affected query, when one was assigned.
	QueryID string

	// Err is the underlying cause.
	Err error
}

// QueryErrorCode categorizes query errors.
type QueryErrorCode string

const (
	// ErrCodeInvalidQuery indicates a malformed query document or tree.
	ErrCodeInvalidQuery QueryErrorCode = "INVALID_QUERY"

	// ErrCodeUnknownFederation indicates the federation has no catalog.
	ErrCodeUnknownFederation QueryErrorCode = "UNKNOWN_FEDERATION"

	// ErrCodeUnserviceable indicates some star has no serving source.
	ErrCodeUnserviceable QueryErrorCode = "UNSERVICEABLE"

	// ErrCodePlanFailed indicates the decomposed query could not be planned.
	ErrCodePlanFailed QueryErrorCode = "PLAN_FAILED"

	// ErrCodeCancelled indicates the caller or a newer query of the same
	// session cancelled the execution.
	ErrCodeCancelled QueryErrorCode = "CANCELLED"

	// ErrCodeSourceFailed indicates every source of the query failed.
	ErrCodeSourceFailed QueryErrorCode = "SOURCE_FAILED"
)

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.QueryID != "" {
		return fmt.Sprintf("%s: %s (query=%s)", e.Code, e.Message, e.QueryID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *QueryError) Unwrap() error {
	return e.Err
}

func newQueryError(code QueryErrorCode, queryID string, err error) *QueryError {
	return &QueryError{Code: code, Message: err.Error(), QueryID: queryID, Err: err}
}

// CodeOf returns the code of a QueryError in err's chain, or "".
func CodeOf(err error) QueryErrorCode {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}

// IsUnserviceable reports whether err is an unserviceable-query error.
// Uses errors.As to handle wrapped errors.
func IsUnserviceable(err error) bool {
	return CodeOf(err) == ErrCodeUnserviceable
}

// IsCancelled reports whether err is a cancellation error.
func IsCancelled(err error) bool {
	return CodeOf(err) == ErrCodeCancelled
}

// SourceFailure records a service whose retrieval ended in failure.
// The bindings it produced before failing were still forwarded.
type SourceFailure struct {
	SourceID string `json:"source_id"`
	Endpoint string `json:"endpoint"`
	Answers  int    `json:"answers"`
	Error    string `json:"error,omitempty"`
}
