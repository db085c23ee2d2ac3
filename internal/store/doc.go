// Package store provides SQLite-backed storage for federations, their data
// sources, the RDF-MT metadata graphs and a log of executed queries.
//
// The metadata graphs are stored as plain triples, one named graph per
// federation. The store is both a write target for metadata builders
// (Insert and DeleteInsert) and a catalog.Loader that decodes a graph back
// into molecules.
//
// # Ordering
//
// Rows carry a seq column assigned from a per-table counter. All listing
// queries order by seq ASC, id ASC COLLATE BINARY so results are identical
// across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
