// Package metadata builds RDF Molecule Templates by probing data sources
// and writes them to a metadata store.
//
// A Builder summarizes each source into molecules: its classes, the
// predicates their instances use, the ranges of those predicates and
// cardinalities at four levels of specificity. Predicate discovery falls
// back to sampling a random instance when the paginated primary query
// fails.
//
// Every write goes through a BatchWriter, which never sends more than its
// batch size of triples in one call. A BatchWriter serializes its callers;
// use one writer per federation graph.
package metadata
