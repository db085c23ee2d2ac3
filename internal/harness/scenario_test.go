package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: test_scenario
description: "Test scenario for validation"
catalog: catalogs/fed.json
sources:
  - endpoint: http://s1/sparql
    contains: "knows"
    rows:
      - {p: "http://ex.org/p1"}
query:
  select: [p]
  where:
    - triple: ["?p", "<http://ex.org/knows>", "?x"]
assertions:
  - type: calls
    endpoint: http://s1/sparql
    count: 1
`

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, minimalScenario)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "catalogs/fed.json"), scenario.Catalog)
	require.Len(t, scenario.Sources, 1)
	assert.Equal(t, "knows", scenario.Sources[0].Contains)
	assert.Equal(t, "http://ex.org/p1", scenario.Sources[0].Rows[0]["p"])
	assert.Equal(t, []string{"p"}, scenario.Query.Select)
	require.Len(t, scenario.Query.Where, 1)
	assert.Len(t, scenario.Assertions, 1)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_AbsoluteCatalogKept(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: abs
description: d
catalog: /data/fed.json
query:
  where:
    - triple: ["?s", "?p", "?o"]
`))
	require.NoError(t, err)
	assert.Equal(t, "/data/fed.json", s.Catalog)
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "assertion: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	base := "name: n\ndescription: d\ncatalog: c.json\n"
	where := "query:\n  where:\n    - triple: [\"?s\", \"?p\", \"?o\"]\n"

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"missing name", "description: d\ncatalog: c.json\n" + where, "name is required"},
		{"missing description", "name: n\ncatalog: c.json\n" + where, "description is required"},
		{"missing catalog", "name: n\ndescription: d\n" + where, "catalog is required"},
		{"empty where", base + "query:\n  select: [x]\n", "query.where is required"},
		{"bad strategy", base + "strategy: greedy\n" + where, "unknown join strategy"},
		{"negative page size", base + "page_size: -1\n" + where, "page_size must be positive"},
		{"source without endpoint", base + where + "sources:\n  - rows: [{a: b}]\n", "sources[0]: endpoint is required"},
		{"rows and error", base + where + "sources:\n  - endpoint: e\n    error: boom\n    rows: [{a: b}]\n", "mutually exclusive"},
		{"unknown assertion", base + where + "assertions:\n  - type: trace_order\n", "unknown assertion type"},
		{"assertion without type", base + where + "assertions:\n  - count: 1\n", "type is required"},
		{"calls without endpoint", base + where + "assertions:\n  - type: calls\n    count: 1\n", "calls requires endpoint"},
		{"star without subject", base + where + "assertions:\n  - type: star_candidates\n", "star_candidates requires star"},
		{"status missing", base + where + "assertions:\n  - type: query_status\n", "query_status requires status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
