package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/fedquery/internal/planner"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Context  string // Decomposition trace or request list, if any
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if e.Context != "" {
		fmt.Fprintf(&buf, "\n%s", e.Context)
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and returns
// the messages of the failed ones.
func EvaluateAssertions(r *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(r, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluate(r *Result, a Assertion) error {
	switch a.Type {
	case AssertServiceCount:
		return assertServiceCount(r, a)
	case AssertServiceEndpoints:
		return assertServiceEndpoints(r, a)
	case AssertCalls:
		return assertCalls(r, a)
	case AssertStarCandidates:
		return assertStarCandidates(r, a)
	case AssertContainsBinding:
		return assertContainsBinding(r, a)
	case AssertQueryStatus:
		return assertQueryStatus(r, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func trace(r *Result) string {
	if r.Prepared == nil {
		return ""
	}
	return "Decomposition:\n" + r.Prepared.Decomposition.Trace()
}

func assertServiceCount(r *Result, a Assertion) error {
	n := 0
	if r.Prepared != nil {
		n = len(r.Prepared.Decomposition.Services())
	}
	if n != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d services", a.Count),
			Actual:   fmt.Sprintf("%d services", n),
			Context:  trace(r),
		}
	}
	return nil
}

// assertServiceEndpoints compares the endpoint sets of the plan's leaves.
func assertServiceEndpoints(r *Result, a Assertion) error {
	got := map[string]bool{}
	if r.Prepared != nil {
		for _, leaf := range planner.Leaves(r.Prepared.Plan.Root) {
			got[leaf.Service.Endpoint] = true
		}
	}
	want := map[string]bool{}
	for _, ep := range a.Endpoints {
		want[ep] = true
	}
	if setKey(got) != setKey(want) {
		return &AssertionError{
			Type:     a.Type,
			Expected: setKey(want),
			Actual:   setKey(got),
			Context:  trace(r),
		}
	}
	return nil
}

func assertCalls(r *Result, a Assertion) error {
	if n := r.CallsTo(a.Endpoint); n != a.Count {
		var reqs strings.Builder
		reqs.WriteString("Requests:\n")
		for i, c := range r.Calls {
			fmt.Fprintf(&reqs, "  [%d] %s\n", i+1, c.Endpoint)
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d requests to %s", a.Count, a.Endpoint),
			Actual:   fmt.Sprintf("%d requests", n),
			Context:  reqs.String(),
		}
	}
	return nil
}

func assertStarCandidates(r *Result, a Assertion) error {
	if r.Prepared == nil {
		return &AssertionError{Type: a.Type, Expected: "a decomposition", Actual: "preparation failed"}
	}
	for _, s := range r.Prepared.Decomposition.Stars {
		if s.Subject.String() != a.Star {
			continue
		}
		got := append([]string(nil), s.Candidates...)
		want := append([]string(nil), a.Candidates...)
		sort.Strings(got)
		sort.Strings(want)
		if strings.Join(got, ",") != strings.Join(want, ",") {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s -> %v", a.Star, want),
				Actual:   fmt.Sprintf("%s -> %v", a.Star, got),
				Context:  trace(r),
			}
		}
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("a star with subject %s", a.Star),
		Actual:   "no such star",
		Context:  trace(r),
	}
}

// assertContainsBinding uses subset semantics: variables not named in the
// assertion are ignored.
func assertContainsBinding(r *Result, a Assertion) error {
	for _, b := range r.Envelope.Bindings {
		match := true
		for k, want := range a.Binding {
			if v, ok := b[k]; !ok || v.Value != want {
				match = false
				break
			}
		}
		if match {
			return nil
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("a solution matching %s", rawKey(a.Binding)),
		Actual:   fmt.Sprintf("%d solutions, none matching", r.Envelope.Cardinality()),
	}
}

// assertQueryStatus checks the status of the last logged query.
func assertQueryStatus(r *Result, a Assertion) error {
	if len(r.Queries) == 0 {
		return &AssertionError{Type: a.Type, Expected: "status " + a.Status, Actual: "no query logged"}
	}
	last := r.Queries[len(r.Queries)-1]
	if last.Status != a.Status {
		return &AssertionError{
			Type:     a.Type,
			Expected: "status " + a.Status,
			Actual:   fmt.Sprintf("status %s (%s)", last.Status, last.Error),
		}
	}
	return nil
}

func setKey(set map[string]bool) string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "[" + strings.Join(keys, " ") + "]"
}
