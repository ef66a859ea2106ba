package store

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/idsync/pkg/types"
)

// UpsertResult reports whether an upsert inserted a new row or updated an
// existing one.
type UpsertResult int

const (
	Inserted UpsertResult = iota
	Updated
)

func (r UpsertResult) String() string {
	if r == Inserted {
		return "inserted"
	}
	return "updated"
}

// Find modes.
const (
	ModeExact = "exact"
	ModeLike  = "like"
	ModeIn    = "in"
)

// deletionField is the column that signals soft-deletion when a dataset
// declares it; reads exclude soft-deleted rows unless includeDeleted is set.
const deletionField = "deletion_date"

// CacheStore holds the target system's last-known state per dataset. It is
// written by cache refresh and read by the matcher; schema is declared once
// per dataset via CacheSpec.
type CacheStore struct {
	q     querier
	specs map[string]CacheSpec
}

func (c *CacheStore) spec(dataset string) (CacheSpec, error) {
	spec, ok := c.specs[dataset]
	if !ok {
		return CacheSpec{}, fmt.Errorf("%w: %s", types.ErrDatasetUnknown, dataset)
	}
	return spec, nil
}

// Upsert writes one row keyed by the spec's primary key. Every non-nullable
// field must be present and non-empty or the write is rejected whole; there
// are no partial writes.
func (c *CacheStore) Upsert(dataset string, row map[string]any) (UpsertResult, error) {
	spec, err := c.spec(dataset)
	if err != nil {
		return Inserted, err
	}

	values, err := extractValues(spec, row)
	if err != nil {
		return Inserted, err
	}

	pkClause, pkArgs := primaryKeyClause(spec, values)
	var exists int
	err = c.q.QueryRow("SELECT 1 FROM "+spec.Table+" WHERE "+pkClause, pkArgs...).Scan(&exists)
	switch {
	case err == nil:
		sets := make([]string, 0, len(spec.Fields))
		args := make([]any, 0, len(spec.Fields))
		for _, f := range spec.Fields {
			if contains(spec.PrimaryKey, f.Name) {
				continue
			}
			sets = append(sets, f.Name+" = ?")
			args = append(args, values[f.Name])
		}
		if len(sets) > 0 {
			args = append(args, pkArgs...)
			stmt := "UPDATE " + spec.Table + " SET " + strings.Join(sets, ", ") + " WHERE " + pkClause
			if _, err := c.q.Exec(stmt, args...); err != nil {
				return Updated, fmt.Errorf("update %s: %w", spec.Table, err)
			}
		}
		return Updated, nil
	case isNoRows(err):
		cols := make([]string, 0, len(spec.Fields))
		marks := make([]string, 0, len(spec.Fields))
		args := make([]any, 0, len(spec.Fields))
		for _, f := range spec.Fields {
			cols = append(cols, f.Name)
			marks = append(marks, "?")
			args = append(args, values[f.Name])
		}
		stmt := "INSERT INTO " + spec.Table + "(" + strings.Join(cols, ", ") + ") VALUES(" + strings.Join(marks, ", ") + ")"
		if _, err := c.q.Exec(stmt, args...); err != nil {
			return Inserted, fmt.Errorf("insert %s: %w", spec.Table, err)
		}
		return Inserted, nil
	default:
		return Inserted, fmt.Errorf("probe %s: %w", spec.Table, err)
	}
}

// Find returns rows matching the filters. Soft-deleted rows are excluded
// unless includeDeleted is set. mode selects the comparison: exact, like,
// or in (value must be a slice for in).
func (c *CacheStore) Find(dataset string, filters map[string]any, includeDeleted bool, mode string) ([]types.CacheRow, error) {
	spec, err := c.spec(dataset)
	if err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return nil, types.ErrFilterEmpty
	}

	fields := spec.fieldMap()
	var where []string
	var args []any
	for key, value := range filters {
		col, ok := fields[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s (dataset %s)", types.ErrFieldUnknown, key, dataset)
		}
		clause, clauseArgs, err := buildClause(col, value, mode)
		if err != nil {
			return nil, err
		}
		if clause == "" {
			// An empty IN list can never match.
			return nil, nil
		}
		where = append(where, clause)
		args = append(args, clauseArgs...)
	}
	if !includeDeleted && spec.hasField(deletionField) {
		where = append(where, deletionField+" IS NULL")
	}

	query := "SELECT * FROM " + spec.Table + " WHERE " + strings.Join(where, " AND ")
	rows, err := c.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", spec.Table, err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// Count returns the number of rows in the dataset's cache table, including
// soft-deleted rows.
func (c *CacheStore) Count(dataset string) (int, error) {
	spec, err := c.spec(dataset)
	if err != nil {
		return 0, err
	}
	var n int
	if err := c.q.QueryRow("SELECT COUNT(*) FROM " + spec.Table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", spec.Table, err)
	}
	return n, nil
}

// Clear removes all rows from the dataset's cache table.
func (c *CacheStore) Clear(dataset string) (int64, error) {
	spec, err := c.spec(dataset)
	if err != nil {
		return 0, err
	}
	res, err := c.q.Exec("DELETE FROM " + spec.Table)
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", spec.Table, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// GetMeta returns the meta value for a dataset-scoped key, or "" when unset.
func (c *CacheStore) GetMeta(dataset, key string) (string, error) {
	var value string
	err := c.q.QueryRow("SELECT value FROM meta WHERE key = ?", dataset+"."+key).Scan(&value)
	if isNoRows(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get meta: %w", err)
	}
	return value, nil
}

// SetMeta stores a dataset-scoped meta value. An empty value deletes the key.
func (c *CacheStore) SetMeta(dataset, key, value string) error {
	full := dataset + "." + key
	if value == "" {
		if _, err := c.q.Exec("DELETE FROM meta WHERE key = ?", full); err != nil {
			return fmt.Errorf("delete meta: %w", err)
		}
		return nil
	}
	_, err := c.q.Exec(
		`INSERT INTO meta(key, value) VALUES(?, ?)
         ON CONFLICT(key) DO UPDATE SET value=excluded.value`, full, value)
	if err != nil {
		return fmt.Errorf("set meta: %w", err)
	}
	return nil
}

// extractValues pulls column values out of the write model, applying source
// aliases and bool coercion, and validates non-nullable fields.
func extractValues(spec CacheSpec, row map[string]any) (map[string]any, error) {
	values := make(map[string]any, len(spec.Fields))
	for _, f := range spec.Fields {
		source := f.Name
		if f.Source != "" {
			source = f.Source
		}
		raw, ok := row[source]
		if !ok {
			raw = row[f.Name]
		}
		if f.Type == FieldBool && raw != nil {
			switch v := raw.(type) {
			case bool:
				if v {
					raw = 1
				} else {
					raw = 0
				}
			case int:
				if v != 0 {
					raw = 1
				} else {
					raw = 0
				}
			}
		}
		if !f.Nullable {
			if raw == nil {
				return nil, fmt.Errorf("%w: %s (dataset %s)", types.ErrFieldRequired, f.Name, spec.Dataset)
			}
			if s, isStr := raw.(string); isStr && strings.TrimSpace(s) == "" {
				return nil, fmt.Errorf("%w: %s (dataset %s)", types.ErrFieldRequired, f.Name, spec.Dataset)
			}
		}
		values[f.Name] = raw
	}
	return values, nil
}

func primaryKeyClause(spec CacheSpec, values map[string]any) (string, []any) {
	parts := make([]string, 0, len(spec.PrimaryKey))
	args := make([]any, 0, len(spec.PrimaryKey))
	for _, key := range spec.PrimaryKey {
		parts = append(parts, key+" = ?")
		args = append(args, values[key])
	}
	return strings.Join(parts, " AND "), args
}

func buildClause(col string, value any, mode string) (string, []any, error) {
	switch mode {
	case ModeExact, "":
		return col + " = ?", []any{value}, nil
	case ModeLike:
		return col + " LIKE ?", []any{value}, nil
	case ModeIn:
		list, ok := toList(value)
		if !ok {
			return "", nil, fmt.Errorf("%w: in mode requires a list", types.ErrSearchMode)
		}
		if len(list) == 0 {
			return "", nil, nil
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(list)), ", ")
		return col + " IN (" + marks + ")", list, nil
	default:
		return "", nil, fmt.Errorf("%w: %s", types.ErrSearchMode, mode)
	}
}

func toList(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
