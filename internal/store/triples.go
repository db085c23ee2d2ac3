package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cayleygraph/quad"

	"github.com/roach88/fedquery/internal/catalog"
	"github.com/roach88/fedquery/internal/ir"
	"github.com/roach88/fedquery/internal/vocab"
)

// Insert adds triples to a graph. Triples already present are ignored.
func (s *Store) Insert(ctx context.Context, graph string, quads []quad.Quad) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert triples: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := insertTriples(ctx, tx, graph, quads); err != nil {
		return fmt.Errorf("insert triples: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert triples: commit: %w", err)
	}
	return nil
}

// DeleteInsert removes del and then adds ins within one transaction.
func (s *Store) DeleteInsert(ctx context.Context, graph string, del, ins []quad.Quad) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete/insert triples: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		DELETE FROM triples
		WHERE graph = ? AND subject = ? AND predicate = ? AND object = ?
		  AND object_kind = ? AND datatype = ? AND lang = ?
	`)
	if err != nil {
		return fmt.Errorf("delete/insert triples: prepare: %w", err)
	}
	defer stmt.Close()

	for _, q := range del {
		args, err := tripleArgs(graph, q)
		if err != nil {
			return fmt.Errorf("delete/insert triples: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("delete/insert triples: delete: %w", err)
		}
	}
	if err := insertTriples(ctx, tx, graph, ins); err != nil {
		return fmt.Errorf("delete/insert triples: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete/insert triples: commit: %w", err)
	}
	return nil
}

func insertTriples(ctx context.Context, tx *sql.Tx, graph string, quads []quad.Quad) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO triples (graph, subject, predicate, object, object_kind, datatype, lang)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, q := range quads {
		args, err := tripleArgs(graph, q)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s: %w", q.String(), err)
		}
	}
	return nil
}

func tripleArgs(graph string, q quad.Quad) ([]any, error) {
	subj, err := subjectIRI(q.Subject)
	if err != nil {
		return nil, err
	}
	pred, ok := q.Predicate.(quad.IRI)
	if !ok {
		return nil, fmt.Errorf("predicate %v is not an IRI", q.Predicate)
	}
	obj, kind, dt, lang, err := encodeObject(q.Object)
	if err != nil {
		return nil, err
	}
	return []any{graph, subj, string(pred), obj, kind, dt, lang}, nil
}

// ReadGraph returns every triple of a graph ordered by subject, predicate
// and object.
func (s *Store) ReadGraph(ctx context.Context, graph string) ([]quad.Quad, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject, predicate, object, object_kind, datatype, lang
		FROM triples
		WHERE graph = ?
		ORDER BY subject COLLATE BINARY, predicate COLLATE BINARY, object COLLATE BINARY
	`, graph)
	if err != nil {
		return nil, fmt.Errorf("query triples: %w", err)
	}
	defer rows.Close()

	out := []quad.Quad{}
	for rows.Next() {
		var subj, pred, obj, kind, dt, lang string
		if err := rows.Scan(&subj, &pred, &obj, &kind, &dt, &lang); err != nil {
			return nil, fmt.Errorf("scan triple: %w", err)
		}
		o, err := decodeObject(obj, kind, dt, lang)
		if err != nil {
			return nil, err
		}
		out = append(out, quad.Quad{Subject: decodeSubject(subj), Predicate: quad.IRI(pred), Object: o})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate triples: %w", err)
	}
	return out, nil
}

// CountGraph returns the number of triples in a graph.
func (s *Store) CountGraph(ctx context.Context, graph string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM triples WHERE graph = ?`, graph).Scan(&n); err != nil {
		return 0, fmt.Errorf("count triples: %w", err)
	}
	return n, nil
}

// ClearGraph removes every triple of a graph.
func (s *Store) ClearGraph(ctx context.Context, graph string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM triples WHERE graph = ?`, graph); err != nil {
		return fmt.Errorf("clear graph: %w", err)
	}
	return nil
}

// LoadCatalog implements catalog.Loader: it decodes the federation's
// metadata graph and attaches its registered sources.
func (s *Store) LoadCatalog(ctx context.Context, federation string) (*catalog.Catalog, error) {
	if _, err := s.ReadFederation(ctx, federation); err != nil {
		return nil, err
	}
	quads, err := s.ReadGraph(ctx, vocab.GraphFor(federation))
	if err != nil {
		return nil, err
	}
	molecules, err := catalog.Decode(quads)
	if err != nil {
		return nil, fmt.Errorf("decode metadata of %s: %w", federation, err)
	}
	sources, err := s.ListSources(ctx, federation)
	if err != nil {
		return nil, err
	}
	return catalog.New(federation, molecules, sources), nil
}

// CatalogRevision implements catalog.Revisioner. The revision changes
// whenever the federation's sources or metadata graph change, whichever
// process wrote them.
func (s *Store) CatalogRevision(ctx context.Context, federation string) (int64, error) {
	var rev int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(revision), 0) FROM revisions WHERE scope IN (?, ?)
	`, federation, vocab.GraphFor(federation)).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("read catalog revision: %w", err)
	}
	return rev, nil
}

// ImportCatalog replaces a federation's sources and metadata graph with the
// contents of a catalog.
func (s *Store) ImportCatalog(ctx context.Context, c *catalog.Catalog) error {
	fed := c.Federation()
	if _, err := s.ReadFederation(ctx, fed); errors.Is(err, catalog.ErrUnknownFederation) {
		if err := s.WriteFederation(ctx, ir.Federation{ID: fed}); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	for _, src := range c.Sources() {
		if _, _, err := s.AddSource(ctx, fed, src); err != nil {
			return err
		}
	}
	graph := vocab.GraphFor(fed)
	if err := s.ClearGraph(ctx, graph); err != nil {
		return err
	}
	var quads []quad.Quad
	for _, m := range c.Molecules() {
		quads = append(quads, catalog.Encode(*m, s.now())...)
	}
	return s.Insert(ctx, graph, quads)
}
