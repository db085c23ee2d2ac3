package store

import (
	"context"
	"fmt"
	"time"
)

// QueryRecord is one executed federated query.
// FirstResult and LastResult are offsets from the start of execution;
// negative values mean no result was produced.
type QueryRecord struct {
	ID          string
	Federation  string
	Query       string
	Status      string
	Cardinality int
	FirstResult time.Duration
	LastResult  time.Duration
	Total       time.Duration
	Error       string
}

// WriteQuery appends a query record. Duplicate IDs are silently ignored.
func (s *Store) WriteQuery(ctx context.Context, rec QueryRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queries
		(id, federation_id, query, status, cardinality, first_result_ms, last_result_ms, total_ms, error, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM queries))
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.Federation,
		rec.Query,
		rec.Status,
		rec.Cardinality,
		millis(rec.FirstResult),
		millis(rec.LastResult),
		millis(rec.Total),
		rec.Error,
	)
	if err != nil {
		return fmt.Errorf("write query: %w", err)
	}
	return nil
}

// ReadQueries returns the most recent query records of a federation, oldest
// first. A non-positive limit returns all of them.
func (s *Store) ReadQueries(ctx context.Context, federation string, limit int) ([]QueryRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, federation_id, query, status, cardinality,
		       first_result_ms, last_result_ms, total_ms, error
		FROM (
			SELECT * FROM queries
			WHERE federation_id = ?
			ORDER BY seq DESC, id COLLATE BINARY DESC
			LIMIT ?
		)
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, federation, limit)
	if err != nil {
		return nil, fmt.Errorf("query queries: %w", err)
	}
	defer rows.Close()

	out := []QueryRecord{}
	for rows.Next() {
		var (
			rec                  QueryRecord
			first, last, totalMS int64
		)
		if err := rows.Scan(&rec.ID, &rec.Federation, &rec.Query, &rec.Status, &rec.Cardinality,
			&first, &last, &totalMS, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan query: %w", err)
		}
		rec.FirstResult = fromMillis(first)
		rec.LastResult = fromMillis(last)
		rec.Total = fromMillis(totalMS)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queries: %w", err)
	}
	return out, nil
}

func millis(d time.Duration) int64 {
	if d < 0 {
		return -1
	}
	return d.Milliseconds()
}

func fromMillis(ms int64) time.Duration {
	if ms < 0 {
		return -1
	}
	return time.Duration(ms) * time.Millisecond
}
