package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/fedquery/internal/ir"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temporary directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithNow(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestFederation registers a federation named id.
func createTestFederation(t *testing.T, s *Store, id string) {
	t.Helper()
	if err := s.WriteFederation(context.Background(), ir.Federation{ID: id, Name: id}); err != nil {
		t.Fatalf("WriteFederation() failed: %v", err)
	}
}
