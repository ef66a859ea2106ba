package target

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mesh-intelligence/idsync/pkg/types"
)

// SnapshotPager returns a Pager over a JSON export file instead of the live
// API, for offline refresh and tests. The file holds either a plain array
// of records or a single Page object. Records are handed to fn in pageSize
// chunks under the same maxPages bound as the HTTP pager.
func SnapshotPager(path string) Pager {
	return func(ctx context.Context, ds string, pageSize, maxPages int, fn func(items []map[string]any) error) error {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		var items []map[string]any
		if err := json.Unmarshal(raw, &items); err != nil {
			var page Page
			if err := json.Unmarshal(raw, &page); err != nil {
				return fmt.Errorf("parse snapshot %s: %w", path, err)
			}
			items = page.Items
		}
		if pageSize <= 0 {
			pageSize = len(items)
		}
		for page := 0; len(items) > 0; page++ {
			if maxPages > 0 && page >= maxPages {
				return fmt.Errorf("%w: %s after %d pages", types.ErrPageLimit, ds, maxPages)
			}
			n := pageSize
			if n > len(items) {
				n = len(items)
			}
			if err := fn(items[:n]); err != nil {
				return err
			}
			items = items[n:]
		}
		return nil
	}
}
