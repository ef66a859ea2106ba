package store

import (
	"fmt"
	"strings"
)

// Schema version recorded in the meta table. Bump when service tables change.
const schemaVersion = 1

// Service table DDL. The identity index is append-only: the composite
// primary key makes re-adding the same id a no-op while a different id for
// the same key accumulates.
const (
	createMeta = `CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT
);`

	createIdentityIndex = `CREATE TABLE IF NOT EXISTS identity_index (
    dataset TEXT NOT NULL,
    identity_key TEXT NOT NULL,
    resolved_id TEXT NOT NULL,
    updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (dataset, identity_key, resolved_id)
);`

	createPendingLinks = `CREATE TABLE IF NOT EXISTS pending_links (
    pending_id INTEGER PRIMARY KEY AUTOINCREMENT,
    dataset TEXT NOT NULL,
    source_row_id TEXT NOT NULL,
    field TEXT NOT NULL,
    lookup_key TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    reason TEXT,
    attempts INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_attempt_at TEXT,
    expires_at TEXT,
    payload TEXT
);`
)

// serviceIndexDDL lists indexes for the service tables.
var serviceIndexDDL = []string{
	`CREATE INDEX IF NOT EXISTS idx_identity_lookup ON identity_index(dataset, identity_key);`,
	`CREATE INDEX IF NOT EXISTS idx_identity_resolved ON identity_index(dataset, resolved_id);`,
	`CREATE INDEX IF NOT EXISTS idx_pending_lookup ON pending_links(dataset, lookup_key);`,
	`CREATE INDEX IF NOT EXISTS idx_pending_status ON pending_links(status);`,
	`CREATE INDEX IF NOT EXISTS idx_pending_expires ON pending_links(expires_at);`,
}

// ensureSchema creates the service tables and one cache table per declared
// spec, then records the schema version.
func (s *Store) ensureSchema() error {
	for _, ddl := range []string{createMeta, createIdentityIndex, createPendingLinks} {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("create service table: %w", err)
		}
	}
	for _, ddl := range serviceIndexDDL {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("create service index: %w", err)
		}
	}
	for _, spec := range s.specs {
		if err := spec.Validate(); err != nil {
			return err
		}
		if err := createCacheTable(s.db, spec); err != nil {
			return err
		}
	}
	_, err := s.db.Exec(
		`INSERT INTO meta(key, value) VALUES('schema_version', ?)
         ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		fmt.Sprintf("%d", schemaVersion))
	if err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

// createCacheTable generates and executes DDL for one dataset's cache table
// and its declared indexes.
func createCacheTable(q querier, spec CacheSpec) error {
	cols := make([]string, 0, len(spec.Fields))
	for _, f := range spec.Fields {
		col := f.Name + " " + sqliteTypes[f.Type]
		if !f.Nullable {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s, PRIMARY KEY (%s))",
		spec.Table, strings.Join(cols, ", "), strings.Join(spec.PrimaryKey, ", "))
	if _, err := q.Exec(ddl); err != nil {
		return fmt.Errorf("create cache table %s: %w", spec.Table, err)
	}

	for _, columns := range spec.UniqueIndexes {
		name := indexName(spec.Table, columns, true)
		stmt := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s(%s)",
			name, spec.Table, strings.Join(columns, ", "))
		if _, err := q.Exec(stmt); err != nil {
			return fmt.Errorf("create unique index %s: %w", name, err)
		}
	}
	for _, columns := range spec.Indexes {
		name := indexName(spec.Table, columns, false)
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)",
			name, spec.Table, strings.Join(columns, ", "))
		if _, err := q.Exec(stmt); err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}
	return nil
}

func indexName(table string, columns []string, unique bool) string {
	prefix := "idx"
	if unique {
		prefix = "uidx"
	}
	return prefix + "_" + table + "_" + strings.Join(columns, "_")
}
