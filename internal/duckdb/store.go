// Package duckdb persists analysis jobs, their parsed transaction records,
// and the per-component analysis results in a DuckDB database.
package duckdb

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/duckdb/migrate"
	_ "github.com/duckdb/duckdb-go/v2"
)

// Store manages the DuckDB database connection and provides the job, record
// and result persistence methods.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	dbPath       string
	QueryTimeout time.Duration

	// readSem caps concurrent read queries when set via SetMaxConcurrentQueries.
	readSem chan struct{}
}

// NewStore opens or creates a DuckDB database and applies pending schema
// migrations. If dbPath is empty, an in-memory database is used. An optional
// queryTimeout can be passed; it defaults to 30s.
func NewStore(dbPath string, queryTimeout ...time.Duration) (*Store, error) {
	dsn := ""
	if dbPath != "" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}

	if err := migrate.NewRunner(db).Run(); err != nil {
		db.Close()
		return nil, err
	}

	qt := 30 * time.Second
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		qt = queryTimeout[0]
	}

	return &Store{
		db:           db,
		dbPath:       dbPath,
		QueryTimeout: qt,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DBPath returns the configured DuckDB path. Empty means in-memory DB.
func (s *Store) DBPath() string {
	return s.dbPath
}

// SchemaVersion returns the applied schema migration version.
func (s *Store) SchemaVersion() (int, error) {
	current, _, err := migrate.NewRunner(s.db).Status()
	return current, err
}

// SetMaxConcurrentQueries caps the number of read queries that may run at
// once. n <= 0 removes the cap. Call before serving traffic; the setter is
// not safe against in-flight reads.
func (s *Store) SetMaxConcurrentQueries(n int) {
	if n <= 0 {
		s.readSem = nil
		return
	}
	s.readSem = make(chan struct{}, n)
}

// acquireRead blocks until a read slot is free and returns its release func.
func (s *Store) acquireRead() func() {
	sem := s.readSem
	if sem == nil {
		return func() {}
	}
	sem <- struct{}{}
	return func() { <-sem }
}

// queryCtx bounds a caller context with the store's configured query timeout.
func (s *Store) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.QueryTimeout)
}
