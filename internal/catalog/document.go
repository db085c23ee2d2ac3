package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/fedquery/internal/ir"
)

// Document is the JSON export form of a catalog.
type Document struct {
	Federation string          `json:"federation"`
	Sources    []ir.DataSource `json:"sources"`
	Molecules  []ir.Molecule   `json:"molecules"`
}

// Document returns the export form of the catalog.
func (c *Catalog) Document() Document {
	doc := Document{
		Federation: c.federation,
		Sources:    c.Sources(),
		Molecules:  make([]ir.Molecule, 0, len(c.ids)),
	}
	for _, m := range c.Molecules() {
		doc.Molecules = append(doc.Molecules, Clone(*m))
	}
	return doc
}

// FromDocument builds a catalog from its export form.
func FromDocument(doc Document) *Catalog {
	return New(doc.Federation, doc.Molecules, doc.Sources)
}

// ReadFile loads a catalog document from a JSON file.
func ReadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	return FromDocument(doc), nil
}

// WriteFile writes the catalog document as indented JSON.
func WriteFile(path string, c *Catalog) error {
	data, err := json.MarshalIndent(c.Document(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write catalog %s: %w", path, err)
	}
	return nil
}

// ErrUnknownFederation is returned by loaders for federations they do not hold.
var ErrUnknownFederation = errors.New("unknown federation")

// DirLoader loads <Dir>/<federation>.json catalog documents.
type DirLoader struct {
	Dir string
}

// Path returns the document path of a federation.
func (l DirLoader) Path(federation string) string {
	return filepath.Join(l.Dir, federation+".json")
}

// LoadCatalog implements Loader.
func (l DirLoader) LoadCatalog(_ context.Context, federation string) (*Catalog, error) {
	path := l.Path(federation)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFederation, federation)
	}
	return ReadFile(path)
}
