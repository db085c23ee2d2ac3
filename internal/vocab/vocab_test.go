package vocab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStandardIRIsExpand(t *testing.T) {
	assert.Equal(t, "http://www.w3.org/1999/02/22-rdf-syntax-ns#type", RDFType)
	assert.Equal(t, "http://www.w3.org/2000/01/rdf-schema#subClassOf", RDFSSubClass)
	assert.Equal(t, "http://www.w3.org/2000/01/rdf-schema#range", RDFSRange)
}

func TestIsSystem(t *testing.T) {
	assert.True(t, IsSystem("http://www.w3.org/2002/07/owl#Class"))
	assert.True(t, IsSystem("http://www.openlinksw.com/schemas/virtrdf#QuadMap"))
	assert.True(t, IsSystem(MTClass))
	assert.False(t, IsSystem("http://dbpedia.org/ontology/City"))
}

func TestLocalName(t *testing.T) {
	assert.Equal(t, "City", LocalName("http://dbpedia.org/ontology/City"))
	assert.Equal(t, "type", LocalName(RDFType))
	assert.Equal(t, "urn:x", LocalName("urn:x"))
}

func TestIsDatatype(t *testing.T) {
	assert.True(t, IsDatatype(XSDInteger))
	assert.True(t, IsDatatype("http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"))
	assert.False(t, IsDatatype("http://ex.org/City"))
}
