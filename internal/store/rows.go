package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/idsync/pkg/types"
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// scanRows reads every row into a CacheRow map keyed by column name.
// SQLite TEXT arrives as string, INTEGER as int64, NULL as nil.
func scanRows(rows *sql.Rows) ([]types.CacheRow, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	var out []types.CacheRow
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(types.CacheRow, len(cols))
		for i, col := range cols {
			if b, ok := raw[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = raw[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
