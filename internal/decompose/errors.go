package decompose

import (
	"errors"
	"fmt"
)

// CodeUnserviceable is the error code of a query no source combination can answer.
const CodeUnserviceable = "UNSERVICEABLE"

// ErrUnserviceable matches every UnserviceableError via errors.Is.
var ErrUnserviceable = errors.New("unserviceable query")

// UnserviceableError reports the star that could not be resolved to any
// molecule or source.
type UnserviceableError struct {
	// Star is the subject term of the failing star, in SPARQL syntax.
	Star   string
	Reason string
}

// Error implements the error interface.
func (e *UnserviceableError) Error() string {
	if e.Star == "" {
		return fmt.Sprintf("unserviceable query: %s", e.Reason)
	}
	return fmt.Sprintf("unserviceable query: star %s: %s", e.Star, e.Reason)
}

// Code returns CodeUnserviceable.
func (e *UnserviceableError) Code() string {
	return CodeUnserviceable
}

// Is reports whether target is ErrUnserviceable.
func (e *UnserviceableError) Is(target error) bool {
	return target == ErrUnserviceable
}

func unserviceable(s *Star, format string, args ...any) error {
	e := &UnserviceableError{Reason: fmt.Sprintf(format, args...)}
	if s != nil {
		e.Star = s.Subject.String()
	}
	return e
}
