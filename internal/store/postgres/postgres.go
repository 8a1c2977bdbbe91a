// Package postgres implements the record store interfaces using PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"driveplane/internal/store"
)

// Store provides the PostgreSQL-backed implementation of store.RecordStore.
type Store struct {
	db *sql.DB
}

// New connects to PostgreSQL and verifies the connection.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying handle for migrations and metrics callbacks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// phaseColumns maps a phase to its column prefix. Phase values double as
// prefixes; the map guards against arbitrary strings reaching SQL assembly.
var phaseColumns = map[store.Phase]string{
	store.PhaseSourceToStage: "source_to_stage_ingestion",
	store.PhaseStageToTarget: "stage_to_target_ingestion",
	store.PhaseAudit:         "audit",
}

func phasePrefix(p store.Phase) (string, error) {
	prefix, ok := phaseColumns[p]
	if !ok {
		return "", fmt.Errorf("unknown phase %q", p)
	}
	return prefix, nil
}
