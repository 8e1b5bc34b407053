// Package duckdb keeps ExAC answers in a local DuckDB file. A run that meets
// a query key already in the file reuses the stored answer instead of asking
// the service again, and negative answers are kept as well.
package duckdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// annotationsTable holds one row per normalized query key. payload is the
// service JSON for the key and is empty when found is false.
const annotationsTable = `CREATE TABLE IF NOT EXISTS exac_annotations (
	query      VARCHAR PRIMARY KEY,
	chrom      VARCHAR,
	pos        BIGINT,
	ref        VARCHAR,
	alt        VARCHAR,
	found      BOOLEAN,
	payload    VARCHAR,
	run_id     VARCHAR,
	fetched_at TIMESTAMP
)`

// Store is an annotation cache file.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the cache at path, creating the file and its directory on
// first use. An empty path gives a throwaway in-memory cache.
func Open(path string) (*Store, error) {
	if err := prepareCacheDir(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open annotation cache %q: %w", path, err)
	}
	if _, err := db.Exec(annotationsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create annotation table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func prepareCacheDir(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	return nil
}

// Close releases the cache file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path is the cache file, "" when in memory.
func (s *Store) Path() string {
	return s.path
}
