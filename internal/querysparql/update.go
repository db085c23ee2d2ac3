package querysparql

import (
	"strings"

	"github.com/cayleygraph/quad"
)

// NTriple renders one quad as an N-Triples line, ignoring its label.
func NTriple(q quad.Quad) string {
	return q.Subject.String() + " " + q.Predicate.String() + " " + q.Object.String() + " ."
}

// InsertData builds an INSERT DATA update into a named graph.
func InsertData(graph string, quads []quad.Quad) string {
	var b strings.Builder
	b.WriteString("INSERT DATA { GRAPH ")
	b.WriteString(iri(graph))
	b.WriteString(" {\n")
	writeQuads(&b, quads)
	b.WriteString("} }")
	return b.String()
}

// DeleteInsert builds a DELETE/INSERT/WHERE update over a named graph.
// The WHERE clause is empty; delete triples that are absent are ignored.
func DeleteInsert(graph string, deletes, inserts []quad.Quad) string {
	var b strings.Builder
	g := iri(graph)
	b.WriteString("WITH ")
	b.WriteString(g)
	b.WriteString("\nDELETE {\n")
	writeQuads(&b, deletes)
	b.WriteString("}\nINSERT {\n")
	writeQuads(&b, inserts)
	b.WriteString("}\nWHERE {}")
	return b.String()
}

func writeQuads(b *strings.Builder, quads []quad.Quad) {
	for _, q := range quads {
		b.WriteString("  ")
		b.WriteString(NTriple(q))
		b.WriteString("\n")
	}
}
