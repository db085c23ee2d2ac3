package engine

import (
	"errors"
	"fmt"
)

// LimitEnforcer counts the solutions a query has emitted and stops it at
// its LIMIT. A limit <= 0 means unlimited.
type LimitEnforcer struct {
	limit   int
	current int
}

// NewLimitEnforcer creates an enforcer for limit.
func NewLimitEnforcer(limit int) *LimitEnforcer {
	return &LimitEnforcer{limit: limit}
}

// Check counts one more solution.
//
// Returns LimitReachedError once the solution just counted is the last
// one allowed; the caller emits it and then stops.
func (l *LimitEnforcer) Check(queryID string) error {
	l.current++
	if l.limit > 0 && l.current >= l.limit {
		return &LimitReachedError{QueryID: queryID, Limit: l.limit}
	}
	return nil
}

// Current returns the number of solutions counted.
func (l *LimitEnforcer) Current() int {
	return l.current
}

// LimitReachedError is returned when a query has emitted LIMIT solutions.
type LimitReachedError struct {
	QueryID string
	Limit   int
}

// Error implements the error interface.
func (e *LimitReachedError) Error() string {
	return fmt.Sprintf("query %s reached its limit of %d solutions", e.QueryID, e.Limit)
}

// IsLimitReached returns true if the error is a LimitReachedError.
// Uses errors.As to handle wrapped errors.
func IsLimitReached(err error) bool {
	var le *LimitReachedError
	return errors.As(err, &le)
}
