// Package ir provides the foundational types shared by every other package:
// RDF terms and triple patterns, solution bindings, and the RDF Molecule
// Template (RDF-MT) metadata model.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - RDF-MTs, properties, ranges and wrappers are explicit structs, never
//     loosely typed maps
//   - All JSON tags use snake_case
//   - Content-addressed identifiers use canonical JSON with domain separation
package ir
