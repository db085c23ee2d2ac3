package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fedquery/internal/planner"
	"github.com/roach88/fedquery/internal/queryir"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is the path of a catalog document (JSON), relative to the
	// scenario file.
	Catalog string `yaml:"catalog"`

	// Federation overrides the federation the query is sent to. Defaults
	// to the catalog's federation.
	Federation string `yaml:"federation,omitempty"`

	// Strategy is the join strategy: bushy (default), left-linear or naive.
	Strategy string `yaml:"strategy,omitempty"`

	// PageSize overrides the executor's page size.
	PageSize int `yaml:"page_size,omitempty"`

	// Sources scripts the endpoints. Requests no script matches get an
	// empty result.
	Sources []SourceScript `yaml:"sources,omitempty"`

	// Query is the submitted query document.
	Query queryir.Document `yaml:"query"`

	// Expect checks the envelope. If nil, the query must succeed.
	Expect *Expect `yaml:"expect,omitempty"`

	// Assertions validate the decomposition, the plan and the traffic.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// SourceScript is the scripted behavior of one endpoint.
type SourceScript struct {
	Endpoint string `yaml:"endpoint"`

	// Contains restricts the script to requests whose text contains it.
	Contains string `yaml:"contains,omitempty"`

	// Rows are raw solutions; values starting with http:// or https:// are
	// IRIs, everything else is a plain literal.
	Rows []map[string]string `yaml:"rows,omitempty"`

	// Error makes every matching request fail with this message.
	Error string `yaml:"error,omitempty"`
}

// Expect specifies the expected envelope.
type Expect struct {
	// Code is the expected error code (e.g. UNSERVICEABLE). Empty means
	// the query must succeed.
	Code string `yaml:"code,omitempty"`

	// Error is a substring of the expected error message.
	Error string `yaml:"error,omitempty"`

	// Cardinality is the expected number of solutions.
	Cardinality *int `yaml:"cardinality,omitempty"`

	// Bindings is the expected multiset of solutions, compared without
	// regard to order. Nil skips the comparison.
	Bindings []map[string]string `yaml:"bindings,omitempty"`
}

// Assertion validates one aspect of a scenario run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Endpoint is the endpoint counted by calls.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Count is used by service_count and calls.
	Count int `yaml:"count,omitempty"`

	// Endpoints is the expected endpoint set of service_endpoints.
	Endpoints []string `yaml:"endpoints,omitempty"`

	// Star is the subject of the star checked by star_candidates, in
	// SPARQL syntax (?x or <iri>).
	Star string `yaml:"star,omitempty"`

	// Candidates are the expected candidate molecules of Star.
	Candidates []string `yaml:"candidates,omitempty"`

	// Binding is matched by contains_binding.
	Binding map[string]string `yaml:"binding,omitempty"`

	// Status is the expected query log status of query_status.
	Status string `yaml:"status,omitempty"`
}

// Assertion type constants.
const (
	AssertServiceCount     = "service_count"
	AssertServiceEndpoints = "service_endpoints"
	AssertCalls            = "calls"
	AssertStarCandidates   = "star_candidates"
	AssertContainsBinding  = "contains_binding"
	AssertQueryStatus      = "query_status"
)

// LoadScenario reads and parses a scenario YAML file, resolving the
// catalog path relative to the file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.Catalog != "" && !filepath.IsAbs(s.Catalog) {
		s.Catalog = filepath.Join(filepath.Dir(path), s.Catalog)
	}
	return s, nil
}

// ParseScenario decodes a scenario. Catalog paths are left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Catalog == "" {
		return fmt.Errorf("catalog is required")
	}
	if len(s.Query.Where) == 0 {
		return fmt.Errorf("query.where is required and must be non-empty")
	}
	if s.Strategy != "" {
		if _, err := planner.ParseStrategy(s.Strategy); err != nil {
			return err
		}
	}
	if s.PageSize < 0 {
		return fmt.Errorf("page_size must be positive, got %d", s.PageSize)
	}
	for i, src := range s.Sources {
		if src.Endpoint == "" {
			return fmt.Errorf("sources[%d]: endpoint is required", i)
		}
		if src.Error != "" && len(src.Rows) > 0 {
			return fmt.Errorf("sources[%d]: rows and error are mutually exclusive", i)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertServiceCount:
	case AssertServiceEndpoints:
		if len(a.Endpoints) == 0 {
			return fmt.Errorf("%s requires endpoints", a.Type)
		}
	case AssertCalls:
		if a.Endpoint == "" {
			return fmt.Errorf("%s requires endpoint", a.Type)
		}
	case AssertStarCandidates:
		if a.Star == "" {
			return fmt.Errorf("%s requires star", a.Type)
		}
	case AssertContainsBinding:
		if len(a.Binding) == 0 {
			return fmt.Errorf("%s requires binding", a.Type)
		}
	case AssertQueryStatus:
		if a.Status == "" {
			return fmt.Errorf("%s requires status", a.Type)
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
