// Package harness runs conformance scenarios against the federated query
// engine.
//
// A scenario fixes a catalog, scripts the answers of every source endpoint
// and submits one query. The harness decomposes, plans and executes it with
// a deterministic clock and query IDs, then checks the envelope against the
// scenario's expect clause and assertions.
//
// # Scenario Format
//
//	name: person_city
//	description: "Persons joined with the cities they know"
//	catalog: ../catalogs/person_city.json
//	strategy: bushy
//	sources:
//	  - endpoint: http://s1/sparql
//	    rows:
//	      - {p: "http://ex.org/p1", x: "http://ex.org/c1"}
//	  - endpoint: http://s2/sparql
//	    error: "connection refused"
//	query:
//	  prefixes: {ex: "http://ex.org/"}
//	  select: [c]
//	  where:
//	    - triple: ["?p", "a", "ex:Person"]
//	expect:
//	  cardinality: 1
//	  bindings:
//	    - {c: "Berlin"}
//	assertions:
//	  - type: calls
//	    endpoint: http://s1/sparql
//	    count: 1
//
// Catalog paths are relative to the scenario file. Unknown fields are
// rejected.
//
// # Assertion Types
//
//   - service_count: the decomposition has exactly count Service leaves
//   - service_endpoints: the set of endpoints the plan contacts
//   - calls: an endpoint received exactly count requests
//   - star_candidates: the candidate molecules of one star
//   - contains_binding: some solution matches binding
//   - query_status: the status the query log recorded
//
// # Golden Files
//
// RunWithGolden renders the decomposition trace, the plan and the sorted
// solutions as text and compares them with testdata/golden/<name>.golden.
// Regenerate with:
//
//	go test ./internal/harness -update
package harness
