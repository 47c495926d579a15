package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/lib/pq"

	"github.com/packhost/repod/internal/apierr"
)

// Store is CAT: a thin wrapper over *sql.DB enforcing the transaction
// discipline spec §4.2/§5 requires (SERIALIZABLE isolation, max ~5 pooled
// connections, 40001 mapped to CONCURRENT_INDEX_CHANGE).
type Store struct {
	db *sql.DB
}

// Open connects to Postgres at dsn and configures the connection pool per
// spec §5 ("a process-wide database connection pool (max ≈ 5 connections)").
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	return &Store{db: db}, nil
}

// NewStore wraps an already-configured *sql.DB opened by the caller, for
// callers that need a driver or pool settings other than Open's.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// Ping checks database reachability for the health endpoint.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// WithSerializableTx runs fn inside a SERIALIZABLE transaction, committing
// on success and rolling back otherwise. Postgres SQLSTATE 40001
// (serialization_failure) is translated to apierr.ConcurrentChange so
// callers implementing spec §5's retry policy can recognize it uniformly.
func (s *Store) WithSerializableTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return apierr.Wrap(apierr.DatabaseError, "beginning transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return translateTxError(err)
	}
	if err := tx.Commit(); err != nil {
		return translateTxError(err)
	}
	return nil
}

// translateTxError maps a raw driver error to the apierr taxonomy, leaving
// already-classified *apierr.Error values untouched.
func translateTxError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apierr.As(err); ok {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == "40001" {
			return apierr.Wrap(apierr.ConcurrentChange, "concurrent index change, retry with backoff", err)
		}
	}
	return apierr.Wrap(apierr.DatabaseError, "unexpected storage failure", err)
}

var componentNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidComponentName reports whether name satisfies spec §3's component
// name restriction.
func ValidComponentName(name string) bool {
	return componentNamePattern.MatchString(name)
}

var repoNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidRepositoryName reports whether name is an acceptable repository name.
// The source spec does not pin an exact pattern for repository names (only
// for component names); this mirrors the same conservative charset plus '.'
// to allow versioned or namespaced repository names.
func ValidRepositoryName(name string) bool {
	return name != "" && repoNamePattern.MatchString(name)
}
