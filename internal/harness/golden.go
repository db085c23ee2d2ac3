package harness

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/planner"
)

// Snapshot renders a scenario result as text: the decomposition trace, the
// plan and the solutions sorted line by line, or the error of a failed
// query. Timings are left out.
func Snapshot(name string, r *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)
	if r.Prepared != nil {
		b.WriteString("# decomposition\n")
		b.WriteString(r.Prepared.Decomposition.Trace())
		b.WriteString("# plan\n")
		b.WriteString(planner.Format(r.Prepared.Plan.Root))
	}
	if r.Envelope.Failed() {
		fmt.Fprintf(&b, "# error\n%s\n", r.Envelope.Error)
		return []byte(b.String())
	}
	fmt.Fprintf(&b, "# results (%d)\n", r.Envelope.Cardinality())
	lines := make([]string, len(r.Envelope.Bindings))
	for i, sol := range r.Envelope.Bindings {
		lines[i] = formatBinding(sol)
	}
	sort.Strings(lines)
	for _, l := range lines {
		b.WriteString(l + "\n")
	}
	return []byte(b.String())
}

func formatBinding(sol ir.Binding) string {
	vars := sol.Vars()
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = "?" + v + "=" + sol[v].Term().String()
	}
	return strings.Join(parts, " ")
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result for further checks, or an error if the scenario could
// not be executed. A snapshot mismatch fails t.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()
	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Snapshot(scenarioName, result))
}
