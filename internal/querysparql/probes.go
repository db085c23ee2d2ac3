package querysparql

import (
	"fmt"
	"strings"

	"github.com/roach88/fedquery/internal/vocab"
)

// Probe queries used to summarize a source into RDF-MTs. Every query binds
// the result variable named in its doc comment.

// Types lists the distinct classes with instances. Binds ?t.
func Types() string {
	return fmt.Sprintf("SELECT DISTINCT ?t WHERE { ?s %s ?t } ORDER BY ?t", iri(vocab.RDFType))
}

// Predicates lists the distinct predicates used by instances of typ. Binds ?p.
func Predicates(typ string) string {
	return fmt.Sprintf("SELECT DISTINCT ?p WHERE { ?s %s %s . ?s ?p ?o } ORDER BY ?p", iri(vocab.RDFType), iri(typ))
}

// Instances lists subjects typed typ. Binds ?s.
func Instances(typ string) string {
	return fmt.Sprintf("SELECT DISTINCT ?s WHERE { ?s %s %s } ORDER BY ?s", iri(vocab.RDFType), iri(typ))
}

// SubjectPredicates lists the predicates of one subject. Binds ?p.
func SubjectPredicates(subject string) string {
	return fmt.Sprintf("SELECT DISTINCT ?p WHERE { %s ?p ?o }", iri(subject))
}

// SubClasses lists the declared super classes of typ. Binds ?sc.
func SubClasses(typ string) string {
	return fmt.Sprintf("SELECT DISTINCT ?sc WHERE { %s %s ?sc }", iri(typ), iri(vocab.RDFSSubClass))
}

// DeclaredRange lists the rdfs:range declarations of pred. Binds ?r.
func DeclaredRange(pred string) string {
	return fmt.Sprintf("SELECT DISTINCT ?r WHERE { %s %s ?r }", iri(pred), iri(vocab.RDFSRange))
}

// InstanceRange lists the classes of objects reached from instances of typ via pred. Binds ?r.
func InstanceRange(typ, pred string) string {
	return fmt.Sprintf("SELECT DISTINCT ?r WHERE { ?s %s %s . ?s %s ?o . ?o %s ?r }",
		iri(vocab.RDFType), iri(typ), iri(pred), iri(vocab.RDFType))
}

// DatatypeRange lists the datatypes of literal objects of pred on instances of typ. Binds ?r.
func DatatypeRange(typ, pred string) string {
	return fmt.Sprintf("SELECT DISTINCT (DATATYPE(?o) AS ?r) WHERE { ?s %s %s . ?s %s ?o . FILTER(isLiteral(?o)) }",
		iri(vocab.RDFType), iri(typ), iri(pred))
}

// CountShape selects one of the four increasingly specific cardinality probes.
type CountShape struct {
	Type      string
	Predicate string
	Range     string
	Datatype  bool
}

// Count counts the instances matching the shape. Binds ?count.
//
//   - Type only: instances of the class
//   - Type+Predicate: triples of the predicate on those instances
//   - Type+Predicate+Range: those whose object is typed Range
//   - Type+Predicate+Range with Datatype: those whose literal object has datatype Range
func Count(shape CountShape) string {
	var b strings.Builder
	b.WriteString("SELECT (COUNT(*) AS ?count) WHERE { ")
	if shape.Type != "" {
		fmt.Fprintf(&b, "?s %s %s . ", iri(vocab.RDFType), iri(shape.Type))
	} else {
		b.WriteString("?s ?p0 ?o0 . ")
	}
	if shape.Predicate != "" {
		fmt.Fprintf(&b, "?s %s ?o . ", iri(shape.Predicate))
		if shape.Range != "" {
			if shape.Datatype {
				fmt.Fprintf(&b, "FILTER(DATATYPE(?o) = %s) ", iri(shape.Range))
			} else {
				fmt.Fprintf(&b, "?o %s %s . ", iri(vocab.RDFType), iri(shape.Range))
			}
		}
	}
	b.WriteString("}")
	return b.String()
}

// CountTriples counts every triple of a source. Binds ?count.
func CountTriples() string {
	return "SELECT (COUNT(*) AS ?count) WHERE { ?s ?p ?o }"
}

// LinkObjects samples IRI objects of pred on instances of typ. Binds ?o.
func LinkObjects(typ, pred string, limit int) string {
	return fmt.Sprintf("SELECT DISTINCT ?o WHERE { ?s %s %s . ?s %s ?o . FILTER(isIRI(?o)) } LIMIT %d",
		iri(vocab.RDFType), iri(typ), iri(pred), limit)
}

// TypesOf asks which classes type any of the given IRIs, using one
// disjunctive filter. Binds ?t.
func TypesOf(iris []string) string {
	conds := make([]string, len(iris))
	for i, v := range iris {
		conds[i] = "?x = " + iri(v)
	}
	return fmt.Sprintf("SELECT DISTINCT ?t WHERE { ?x %s ?t . FILTER(%s) }",
		iri(vocab.RDFType), strings.Join(conds, " || "))
}
