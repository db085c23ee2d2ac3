// Package vocab holds the IRIs used by metadata triples and source probes.
package vocab

import (
	"strings"

	"github.com/cayleygraph/quad"
	"github.com/cayleygraph/quad/voc/rdf"
	"github.com/cayleygraph/quad/voc/rdfs"
)

// Standard vocabulary.
var (
	RDFType       = string(quad.IRI(rdf.Type).Full())
	RDFSSubClass  = string(quad.IRI(rdfs.SubClassOf).Full())
	RDFSRange     = string(quad.IRI(rdfs.Range).Full())
	RDFSLabel     = string(quad.IRI(rdfs.Label).Full())
	RDFSComment   = string(quad.IRI(rdfs.Comment).Full())
	XSDString     = "http://www.w3.org/2001/XMLSchema#string"
	XSDInteger    = "http://www.w3.org/2001/XMLSchema#integer"
	XSDDateTime   = "http://www.w3.org/2001/XMLSchema#dateTime"
	XSDBoolean    = "http://www.w3.org/2001/XMLSchema#boolean"
	XSDNamespace  = "http://www.w3.org/2001/XMLSchema#"
	RDFNamespace  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFSNamespace = "http://www.w3.org/2000/01/rdf-schema#"
)

// Namespace is the root of the metadata vocabulary.
const Namespace = "http://fedquery.dev/mt/"

// Metadata vocabulary.
const (
	MTClass         = Namespace + "RDFMT"
	MTPropertyClass = Namespace + "MTProperty"
	MTWrapperClass  = Namespace + "Wrapper"
	MTRangeClass    = Namespace + "PropRange"
	MTName          = Namespace + "name"
	MTDescription   = Namespace + "desc"
	MTCardinality   = Namespace + "cardinality"
	MTHasProperty   = Namespace + "hasProperty"
	MTHasSource     = Namespace + "hasSource"
	MTHasRange      = Namespace + "hasRange"
	MTPredicate     = Namespace + "predicate"
	MTLinkedTo      = Namespace + "linkedTo"
	MTSource        = Namespace + "source"
	MTURL           = Namespace + "url"
	MTIsDatatype    = Namespace + "isDatatype"
	MTModified      = Namespace + "modified"
	MTNode          = Namespace + "node/"
	FederationGraph = Namespace + "federation/"
)

// GraphFor returns the metadata graph IRI of a federation.
func GraphFor(federation string) string {
	return FederationGraph + federation
}

// NodeIRI returns the IRI of a metadata node identified by a content hash.
func NodeIRI(kind, id string) string {
	return MTNode + kind + "/" + id
}

// SystemNamespaces are vocabulary and store-internal namespaces whose classes
// are never treated as data types during type discovery.
var SystemNamespaces = []string{
	RDFNamespace,
	RDFSNamespace,
	XSDNamespace,
	"http://www.w3.org/2002/07/owl#",
	"http://www.w3.org/ns/sparql-service-description#",
	"http://www.openlinksw.com/",
	"http://www.w3.org/ns/ldp#",
	"http://rdfs.org/ns/void#",
	"http://purl.org/dc/terms/",
	"http://www.w3.org/2004/02/skos/core#",
	Namespace,
	"nodeID://",
}

// IsSystem reports whether the IRI lives in a deny-listed namespace.
func IsSystem(iri string) bool {
	for _, ns := range SystemNamespaces {
		if strings.HasPrefix(iri, ns) {
			return true
		}
	}
	return false
}

// LocalName returns the fragment or last path segment of an IRI.
func LocalName(iri string) string {
	if i := strings.LastIndexAny(iri, "#/"); i >= 0 && i < len(iri)-1 {
		return iri[i+1:]
	}
	return iri
}

// IsDatatype reports whether the IRI names an XSD or rdf:langString datatype.
func IsDatatype(iri string) bool {
	return strings.HasPrefix(iri, XSDNamespace) || iri == RDFNamespace+"langString" || iri == RDFNamespace+"HTML"
}
