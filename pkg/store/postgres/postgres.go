// Package postgres implements the store gateway against PostgreSQL using
// database/sql and lib/pq. Idempotent link inserts rely on unique constraints
// plus ON CONFLICT DO NOTHING; NotFound and Conflict are surfaced as the
// typed errors from pkg/iam.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/gatehouse-io/gatehouse/pkg/store"
)

// uniqueViolation is the PostgreSQL error code for unique constraint hits.
const uniqueViolation = "23505"

// Store implements store.Store against PostgreSQL.
type Store struct {
	db *sql.DB
}

// New wraps an existing database handle. The caller owns connection pooling
// configuration.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL using the given config, verifies the
// connection, and applies pending migrations.
func Open(ctx context.Context, cfg store.Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.PostgresMaxConns)
	db.SetMaxIdleConns(cfg.PostgresMinConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether err is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}
