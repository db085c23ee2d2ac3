package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentIDDeterminism(t *testing.T) {
	id1, err := ContentID(DomainProperty, "http://ex.org/Person", "http://ex.org/name")
	require.NoError(t, err)
	id2 := MustContentID(DomainProperty, "http://ex.org/Person", "http://ex.org/name")

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func TestContentIDDomainSeparation(t *testing.T) {
	a := MustContentID(DomainProperty, "x")
	b := MustContentID(DomainRange, "x")
	assert.NotEqual(t, a, b)
}

func TestContentIDPartBoundaries(t *testing.T) {
	// ["ab","c"] and ["a","bc"] must not collide.
	assert.NotEqual(t,
		MustContentID(DomainWrapper, "ab", "c"),
		MustContentID(DomainWrapper, "a", "bc"))
}

func TestSourceID(t *testing.T) {
	a := SourceID("lslod", "http://s1/sparql")
	assert.Len(t, a, 16)
	assert.Equal(t, a, SourceID("lslod", "http://s1/sparql"))
	assert.NotEqual(t, a, SourceID("other", "http://s1/sparql"))
}

func TestBindingKeyIgnoresOtherVars(t *testing.T) {
	b1 := Binding{"x": NewValue("http://ex.org/1"), "n": NewValue("one")}
	b2 := Binding{"x": NewValue("http://ex.org/1"), "c": NewValue("other")}

	k1, err := BindingKey(b1, []string{"x"})
	require.NoError(t, err)
	k2, err := BindingKey(b2, []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := BindingKey(Binding{"x": NewValue("http://ex.org/2")}, []string{"x"})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}
