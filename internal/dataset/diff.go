package dataset

import "github.com/mesh-intelligence/idsync/pkg/types"

// FieldChanges compares the resolved desired state against an existing cache
// row field by field and returns the fields that would change, mapped to
// their new values. Fields in exclude and internal fields (leading
// underscore) are never compared. aliases maps a desired-state field to the
// cache column it is stored under when the names differ.
func FieldChanges(existing types.CacheRow, desired map[string]any, exclude map[string]bool, aliases map[string]string) map[string]any {
	if existing == nil {
		return nil
	}
	changes := make(map[string]any)
	for field, value := range desired {
		if exclude[field] || len(field) > 0 && field[0] == '_' {
			continue
		}
		col := field
		if alias, ok := aliases[field]; ok {
			col = alias
		}
		if !valuesEqual(existing[col], value) {
			changes[field] = value
		}
	}
	return changes
}

// valuesEqual compares two scalars across storage representations: SQLite
// returns int64 where the canonical value is int, and 0/1 where it is bool.
func valuesEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	return Stringify(a) == Stringify(b)
}
