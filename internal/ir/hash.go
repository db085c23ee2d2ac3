package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainSource   = "fedquery/source/v1"
	DomainWrapper  = "fedquery/wrapper/v1"
	DomainProperty = "fedquery/property/v1"
	DomainRange    = "fedquery/range/v1"
	DomainBinding  = "fedquery/binding/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentID hashes the canonical form of parts under a domain.
// Used to derive stable node identifiers for metadata triples.
func ContentID(domain string, parts ...string) (string, error) {
	canonical, err := MarshalCanonical(parts)
	if err != nil {
		return "", fmt.Errorf("ContentID: failed to marshal: %w", err)
	}
	return hashWithDomain(domain, canonical), nil
}

// MustContentID is like ContentID but panics on error.
// String slices always marshal, so callers with plain string parts may use it freely.
func MustContentID(domain string, parts ...string) string {
	id, err := ContentID(domain, parts...)
	if err != nil {
		panic(err)
	}
	return id
}

// SourceID derives a data source identifier from its federation and URL.
// The same endpoint registered twice in one federation gets the same ID.
func SourceID(federation, url string) string {
	return MustContentID(DomainSource, federation, url)[:16]
}

// BindingKey returns the canonical hash of the named variables of a binding.
// Unbound variables hash as absent, so bindings that differ only in unbound
// variables outside vars produce equal keys.
func BindingKey(b Binding, vars []string) (string, error) {
	canonical, err := MarshalCanonical(b.Project(vars))
	if err != nil {
		return "", fmt.Errorf("BindingKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainBinding, canonical), nil
}
