package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migrations run in order after the base schema; entry i moves user_version
// from i to i+1. Statements must tolerate a database created by a newer
// schema.sql that already contains their effect.
var migrations = []string{
	// v1: predicate lookups within one federation graph
	`CREATE INDEX IF NOT EXISTS idx_triples_predicate ON triples(graph, predicate)`,
	// v2: catalog revisions, bumped by every write to a metadata graph
	// (scope = graph name) or to a federation's sources (scope = id)
	revisionsSQL,
}

const revisionsSQL = `
CREATE TABLE IF NOT EXISTS revisions (
    scope TEXT PRIMARY KEY,
    revision INTEGER NOT NULL
);
CREATE TRIGGER IF NOT EXISTS triples_inserted AFTER INSERT ON triples BEGIN
    INSERT OR IGNORE INTO revisions (scope, revision) VALUES (NEW.graph, 0);
    UPDATE revisions SET revision = revision + 1 WHERE scope = NEW.graph;
END;
CREATE TRIGGER IF NOT EXISTS triples_deleted AFTER DELETE ON triples BEGIN
    INSERT OR IGNORE INTO revisions (scope, revision) VALUES (OLD.graph, 0);
    UPDATE revisions SET revision = revision + 1 WHERE scope = OLD.graph;
END;
CREATE TRIGGER IF NOT EXISTS sources_inserted AFTER INSERT ON data_sources BEGIN
    INSERT OR IGNORE INTO revisions (scope, revision) VALUES (NEW.federation_id, 0);
    UPDATE revisions SET revision = revision + 1 WHERE scope = NEW.federation_id;
END;
CREATE TRIGGER IF NOT EXISTS sources_updated AFTER UPDATE ON data_sources BEGIN
    INSERT OR IGNORE INTO revisions (scope, revision) VALUES (NEW.federation_id, 0);
    UPDATE revisions SET revision = revision + 1 WHERE scope = NEW.federation_id;
END;
CREATE TRIGGER IF NOT EXISTS sources_deleted AFTER DELETE ON data_sources BEGIN
    INSERT OR IGNORE INTO revisions (scope, revision) VALUES (OLD.federation_id, 0);
    UPDATE revisions SET revision = revision + 1 WHERE scope = OLD.federation_id;
END;
`

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// Store holds federations, their data sources, per-federation metadata
// graphs and the query log in one SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithNow sets the clock used for registration and modification timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open creates or opens the database at path and brings its schema up to
// date. Opening the same file repeatedly is safe.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases alive for the life of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := prepare(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func prepare(db *sql.DB) error {
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return migrate(db)
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for v := version; v < len(migrations); v++ {
		if _, err := db.Exec(migrations[v]); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	if version < len(migrations) {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", len(migrations))); err != nil {
			return fmt.Errorf("write user_version: %w", err)
		}
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return value, nil
}
