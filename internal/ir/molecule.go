package ir

// Molecule is an RDF Molecule Template (RDF-MT): the metadata summary of all
// entities of one RDF class across a federation. ID is the class IRI.
//
// Invariant: every predicate listed under a wrapper also appears in Properties.
type Molecule struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Cardinality int        `json:"cardinality"`
	Properties  []Property `json:"properties"`
	Wrappers    []Wrapper  `json:"wrappers"`
	SubClassOf  []string   `json:"subclass_of,omitempty"`
	LinkedTo    []string   `json:"linked_to,omitempty"`

	// Modified is the xsd:dateTime lexical form of the last metadata write.
	Modified string `json:"modified,omitempty"`
}

// Property is one predicate exposed by the instances of an RDF-MT.
// Cardinality is -1 when unknown.
type Property struct {
	Predicate   string  `json:"predicate"`
	Label       string  `json:"label,omitempty"`
	Cardinality int     `json:"cardinality"`
	Ranges      []Range `json:"ranges,omitempty"`
}

// Range is one class or datatype observed or declared as the object type of a property.
type Range struct {
	IRI         string `json:"iri"`
	Datatype    bool   `json:"datatype,omitempty"`
	Cardinality int    `json:"cardinality"`
}

// Wrapper binds an RDF-MT (or a subset of its predicates) to one data source.
type Wrapper struct {
	SourceID   string   `json:"source_id"`
	URL        string   `json:"url"`
	Predicates []string `json:"predicates"`
}

// IsMultiSource reports whether more than one source serves the molecule.
func (m *Molecule) IsMultiSource() bool {
	return len(m.Wrappers) > 1
}

// Property returns the property for a predicate, if the molecule exposes it.
func (m *Molecule) Property(predicate string) (Property, bool) {
	for _, p := range m.Properties {
		if p.Predicate == predicate {
			return p, true
		}
	}
	return Property{}, false
}

// HasPredicate reports whether the molecule exposes the predicate.
func (m *Molecule) HasPredicate(predicate string) bool {
	_, ok := m.Property(predicate)
	return ok
}

// Predicates returns the predicate IRIs of all properties.
func (m *Molecule) Predicates() []string {
	out := make([]string, 0, len(m.Properties))
	for _, p := range m.Properties {
		out = append(out, p.Predicate)
	}
	return out
}

// Wrapper returns the wrapper for a source, if any.
func (m *Molecule) Wrapper(sourceID string) (Wrapper, bool) {
	for _, w := range m.Wrappers {
		if w.SourceID == sourceID {
			return w, true
		}
	}
	return Wrapper{}, false
}

// RangeIRIs returns the IRIs of every range of the property.
func (p Property) RangeIRIs() []string {
	out := make([]string, 0, len(p.Ranges))
	for _, r := range p.Ranges {
		out = append(out, r.IRI)
	}
	return out
}

// HasRange reports whether iri is among the property's ranges.
func (p Property) HasRange(iri string) bool {
	for _, r := range p.Ranges {
		if r.IRI == iri {
			return true
		}
	}
	return false
}

// Covers reports whether the wrapper exposes the predicate.
func (w Wrapper) Covers(predicate string) bool {
	return containsString(w.Predicates, predicate)
}

// SourceType identifies the protocol a data source speaks.
type SourceType string

const (
	// SourceSPARQL is a SPARQL 1.1 protocol endpoint.
	SourceSPARQL SourceType = "SPARQL_Endpoint"

	// SourceOther is any other source kind; registered but not queryable.
	SourceOther SourceType = "Other"
)

// DataSource is a registered source of a federation.
// Triples is stamped once at registration and changed only on explicit re-scan; -1 means unknown.
type DataSource struct {
	ID      string            `json:"id"`
	URL     string            `json:"url"`
	Type    SourceType        `json:"type"`
	Name    string            `json:"name"`
	Params  map[string]string `json:"params,omitempty"`
	Triples int               `json:"triples"`
}

// Link is a discovered interlink: instances of From reach instances of To via Predicate.
type Link struct {
	From      string `json:"from"`
	Predicate string `json:"predicate"`
	To        string `json:"to"`
}

// Federation is a named group of data sources whose metadata forms one catalog.
type Federation struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
