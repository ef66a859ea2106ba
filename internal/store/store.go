// Package store implements the SQLite storage layer for idsync: the
// schema-driven cache store, the append-only identity index, and the durable
// pending-link queue.
// See docs/ARCHITECTURE.md § Storage Layer.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/idsync/pkg/types"
)

// DBFileName is the SQLite database file created under the data directory.
const DBFileName = "idsync.db"

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Store sessions run over either, so the engine code never cares whether it
// is inside a transaction.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store owns the SQLite connection and the declared cache specs.
type Store struct {
	db    *sql.DB
	specs map[string]CacheSpec
}

// Open opens (or creates) the database under dataDir, applies the base
// schema, and creates one cache table per declared spec.
func Open(dataDir string, specs []CacheSpec) (*Store, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, DBFileName))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single writer; a second connection would only invite lock contention.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db, specs: make(map[string]CacheSpec, len(specs))}
	for _, spec := range specs {
		if _, dup := s.specs[spec.Dataset]; dup {
			db.Close()
			return nil, fmt.Errorf("duplicate cache spec for dataset %q", spec.Dataset)
		}
		s.specs[spec.Dataset] = spec
	}

	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database connection. Idempotent.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Session groups the three stores over one querier. Sessions produced by
// WithTx share a single transaction; Read sessions run autocommit.
type Session struct {
	q     querier
	specs map[string]CacheSpec
}

// Cache returns the schema-driven cache store for this session.
func (se *Session) Cache() *CacheStore { return &CacheStore{q: se.q, specs: se.specs} }

// Identity returns the identity index for this session.
func (se *Session) Identity() *IdentityIndex { return &IdentityIndex{q: se.q} }

// Pending returns the pending-link queue for this session.
func (se *Session) Pending() *PendingQueue { return &PendingQueue{q: se.q} }

// Read returns a session running outside any transaction, for status and
// listing commands.
func (s *Store) Read() (*Session, error) {
	if s.db == nil {
		return nil, types.ErrStoreClosed
	}
	return &Session{q: s.db, specs: s.specs}, nil
}

// WithTx runs fn inside a single transaction. Either every write fn makes
// commits, or none of them do: a mid-run failure rolls back identity and
// pending bookkeeping along with cache writes.
func (s *Store) WithTx(fn func(se *Session) error) error {
	if s.db == nil {
		return types.ErrStoreClosed
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Session{q: tx, specs: s.specs}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
