package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fedquery/internal/catalog"
	"github.com/roach88/fedquery/internal/ir"
)

// ErrSourceNotFound is returned when a data source identifier is unknown.
var ErrSourceNotFound = errors.New("source not found")

// WriteFederation creates a federation or updates its name and description.
func (s *Store) WriteFederation(ctx context.Context, f ir.Federation) error {
	if f.ID == "" {
		return fmt.Errorf("write federation: empty id")
	}
	name := f.Name
	if name == "" {
		name = f.ID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO federations (id, name, description, seq)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM federations))
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description
	`, f.ID, name, f.Description)
	if err != nil {
		return fmt.Errorf("write federation: %w", err)
	}
	return nil
}

// ReadFederation returns a federation by identifier.
// Returns an error wrapping catalog.ErrUnknownFederation when absent.
func (s *Store) ReadFederation(ctx context.Context, id string) (ir.Federation, error) {
	var f ir.Federation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description FROM federations WHERE id = ?
	`, id).Scan(&f.ID, &f.Name, &f.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return f, fmt.Errorf("%w: %s", catalog.ErrUnknownFederation, id)
	}
	if err != nil {
		return f, fmt.Errorf("read federation: %w", err)
	}
	return f, nil
}

// ListFederations returns every federation in creation order.
func (s *Store) ListFederations(ctx context.Context) ([]ir.Federation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description FROM federations
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query federations: %w", err)
	}
	defer rows.Close()

	out := []ir.Federation{}
	for rows.Next() {
		var f ir.Federation
		if err := rows.Scan(&f.ID, &f.Name, &f.Description); err != nil {
			return nil, fmt.Errorf("scan federation: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate federations: %w", err)
	}
	return out, nil
}

// AddSource registers a data source in a federation.
//
// The source identifier is derived from the federation and URL when empty.
// Registering a URL twice is a no-op that returns the existing source with
// inserted=false; its triple count is not restamped.
func (s *Store) AddSource(ctx context.Context, federation string, src ir.DataSource) (ir.DataSource, bool, error) {
	if src.URL == "" {
		return src, false, fmt.Errorf("add source: empty url")
	}
	if _, err := s.ReadFederation(ctx, federation); err != nil {
		return src, false, fmt.Errorf("add source: %w", err)
	}
	if src.ID == "" {
		src.ID = ir.SourceID(federation, src.URL)
	}
	if src.Type == "" {
		src.Type = ir.SourceSPARQL
	}
	params, err := marshalParams(src.Params)
	if err != nil {
		return src, false, fmt.Errorf("add source: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO data_sources (id, federation_id, url, type, name, params, triples, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM data_sources))
		ON CONFLICT DO NOTHING
	`, src.ID, federation, src.URL, string(src.Type), src.Name, params, src.Triples)
	if err != nil {
		return src, false, fmt.Errorf("add source: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return src, false, fmt.Errorf("add source: rows affected: %w", err)
	}
	if n == 0 {
		existing, err := s.sourceByURL(ctx, federation, src.URL)
		if err != nil {
			return src, false, err
		}
		return existing, false, nil
	}
	return src, true, nil
}

// ReadSource returns a data source by identifier.
func (s *Store) ReadSource(ctx context.Context, id string) (ir.DataSource, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, url, type, name, params, triples FROM data_sources WHERE id = ?
	`, id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return src, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}
	return src, err
}

func (s *Store) sourceByURL(ctx context.Context, federation, url string) (ir.DataSource, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, url, type, name, params, triples FROM data_sources
		WHERE federation_id = ? AND url = ?
	`, federation, url)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return src, fmt.Errorf("%w: %s", ErrSourceNotFound, url)
	}
	return src, err
}

// ListSources returns the data sources of a federation in registration order.
func (s *Store) ListSources(ctx context.Context, federation string) ([]ir.DataSource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, type, name, params, triples FROM data_sources
		WHERE federation_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, federation)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	out := []ir.DataSource{}
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return out, nil
}

// SetSourceTriples records a fresh triple count for a source. It is only
// called on an explicit re-scan.
func (s *Store) SetSourceTriples(ctx context.Context, id string, triples int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE data_sources SET triples = ? WHERE id = ?
	`, triples, id)
	if err != nil {
		return fmt.Errorf("set source triples: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set source triples: %w: %s", ErrSourceNotFound, id)
	}
	return nil
}

// RemoveSource deletes a data source. Metadata already built from it stays
// in the federation graph until the next rebuild.
func (s *Store) RemoveSource(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM data_sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove source: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("remove source: %w: %s", ErrSourceNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (ir.DataSource, error) {
	var (
		src    ir.DataSource
		typ    string
		params string
	)
	if err := row.Scan(&src.ID, &src.URL, &typ, &src.Name, &params, &src.Triples); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return src, err
		}
		return src, fmt.Errorf("scan source: %w", err)
	}
	src.Type = ir.SourceType(typ)
	p, err := unmarshalParams(params)
	if err != nil {
		return src, err
	}
	src.Params = p
	return src, nil
}
