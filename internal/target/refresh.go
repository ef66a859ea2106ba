package target

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/idsync/internal/dataset"
	"github.com/mesh-intelligence/idsync/internal/store"
	"github.com/mesh-intelligence/idsync/pkg/types"
)

// LastRefreshKey is the meta key recording when a dataset's cache was last
// refreshed.
const LastRefreshKey = "last_refresh"

// Refresher rebuilds the cache store from the target directory and seeds
// the identity index from every cached row.
type Refresher struct {
	store *store.Store
	reg   *dataset.Registry
	log   zerolog.Logger
}

// NewRefresher returns a refresher over the given store and registry.
func NewRefresher(st *store.Store, reg *dataset.Registry, log zerolog.Logger) *Refresher {
	return &Refresher{store: st, reg: reg, log: log}
}

// RefreshResult reports what one refresh did.
type RefreshResult struct {
	Rows         int
	Inserted     int
	Updated      int
	IndexEntries int
}

// Refresh pages the directory through pages and writes every record to the
// cache inside one transaction. clear drops the existing cache first, for a
// full rebuild; without it records are upserted over the current state.
func (r *Refresher) Refresh(ctx context.Context, dsName string, pages Pager, pageSize, maxPages int, clear bool) (*RefreshResult, error) {
	ds, err := r.reg.Get(dsName)
	if err != nil {
		return nil, err
	}

	res := &RefreshResult{}
	err = r.store.WithTx(func(se *store.Session) error {
		if clear {
			if _, err := se.Cache().Clear(ds.Name()); err != nil {
				return err
			}
		}
		err := pages(ctx, ds.Name(), pageSize, maxPages, func(items []map[string]any) error {
			for _, item := range items {
				outcome, err := se.Cache().Upsert(ds.Name(), item)
				if err != nil {
					return fmt.Errorf("cache %s row: %w", ds.Name(), err)
				}
				res.Rows++
				if outcome == store.Inserted {
					res.Inserted++
				} else {
					res.Updated++
				}
				for _, entry := range ds.IndexEntries(types.CacheRow(item)) {
					if err := se.Identity().UpsertIdentity(ds.Name(), entry.Key, entry.ResolvedID); err != nil {
						return err
					}
					res.IndexEntries++
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		stamp := time.Now().UTC().Format(time.RFC3339)
		return se.Cache().SetMeta(ds.Name(), LastRefreshKey, stamp)
	})
	if err != nil {
		return nil, err
	}

	r.log.Info().
		Str("dataset", ds.Name()).
		Int("rows", res.Rows).
		Int("index_entries", res.IndexEntries).
		Msg("cache refreshed")
	return res, nil
}
