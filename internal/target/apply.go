package target

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/idsync/internal/dataset"
	"github.com/mesh-intelligence/idsync/internal/secrets"
	"github.com/mesh-intelligence/idsync/internal/store"
	"github.com/mesh-intelligence/idsync/pkg/types"
)

// Applier executes a reviewed plan against the target and writes the
// results back into the cache. Target calls cannot be rolled back, so rows
// are applied one at a time and each success is committed to the cache
// before the next row starts.
type Applier struct {
	client  *Client
	store   *store.Store
	reg     *dataset.Registry
	secrets secrets.Provider
	retries int
	log     zerolog.Logger

	// Overridable in tests.
	newID func() string
}

// NewApplier returns an applier using the given secret provider.
func NewApplier(client *Client, st *store.Store, reg *dataset.Registry, provider secrets.Provider, cfg types.ApplySettings, log zerolog.Logger) *Applier {
	if provider == nil {
		provider = secrets.Null{}
	}
	return &Applier{
		client:  client,
		store:   st,
		reg:     reg,
		secrets: provider,
		retries: cfg.CreateRetries,
		log:     log,
		newID:   uuid.NewString,
	}
}

// Item statuses in the apply result.
const (
	ApplyStatusApplied = "applied"
	ApplyStatusFailed  = "failed"
)

// ApplyItemResult is one plan item's apply outcome.
type ApplyItemResult struct {
	RowID      string       `json:"row_id"`
	Op         types.Op     `json:"op"`
	ResourceID string       `json:"resource_id"`
	Status     string       `json:"status"`
	Errors     []types.Diag `json:"errors,omitempty"`
	Warnings   []types.Diag `json:"warnings,omitempty"`
}

// ApplyResult summarizes one apply run.
type ApplyResult struct {
	Created int               `json:"created"`
	Updated int               `json:"updated"`
	Failed  int               `json:"failed"`
	Items   []ApplyItemResult `json:"items"`
}

// Apply executes every create and update in the plan. Row-level problems
// are recorded per item; transport failures abort immediately with a
// retryable run error, leaving the remaining items unapplied.
func (a *Applier) Apply(ctx context.Context, plan types.Plan) (*ApplyResult, error) {
	ds, err := a.reg.Get(plan.Meta.Dataset)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{}
	for _, item := range plan.Items {
		if item.Op == types.OpSkip {
			continue
		}
		res, err := a.applyItem(ctx, ds, item)
		if err != nil {
			return result, err
		}
		switch {
		case res.Status != ApplyStatusApplied:
			result.Failed++
		case item.Op == types.OpCreate:
			result.Created++
		default:
			result.Updated++
		}
		result.Items = append(result.Items, res)
	}

	a.log.Info().
		Str("run_id", plan.Meta.RunID).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("failed", result.Failed).
		Msg("apply complete")
	return result, nil
}

func (a *Applier) applyItem(ctx context.Context, ds dataset.Dataset, item types.PlanItem) (ApplyItemResult, error) {
	res := ApplyItemResult{RowID: item.RowID, Op: item.Op, ResourceID: item.ResourceID, Status: ApplyStatusFailed}

	var stored map[string]any
	var err error
	switch item.Op {
	case types.OpCreate:
		stored, res.ResourceID, err = a.create(ctx, ds, item, &res)
	case types.OpUpdate:
		stored, err = a.client.Update(ctx, ds.Name(), item.ResourceID, item.Changes)
	default:
		return res, fmt.Errorf("unsupported plan op %q for row %s", item.Op, item.RowID)
	}
	if err != nil {
		if types.IsRetryable(err) {
			return res, err
		}
		res.Errors = append(res.Errors, types.Diag{
			Stage:   types.StageApply,
			Code:    types.CodeApplyFailed,
			Message: err.Error(),
		})
		return res, nil
	}
	if len(res.Errors) > 0 {
		return res, nil
	}

	res.Status = ApplyStatusApplied
	if err := a.writeCache(ds, item, res.ResourceID, stored); err != nil {
		// The target already changed; a stale cache heals on refresh.
		res.Warnings = append(res.Warnings, types.Diag{
			Stage:   types.StageApply,
			Code:    types.CodeCacheWriteFailed,
			Message: err.Error(),
		})
	}
	return res, nil
}

// create posts the new record, retrying with a fresh id when the target
// reports the chosen one taken.
func (a *Applier) create(ctx context.Context, ds dataset.Dataset, item types.PlanItem, res *ApplyItemResult) (map[string]any, string, error) {
	body := make(map[string]any, len(item.DesiredState)+1+len(item.SecretFields))
	for k, v := range item.DesiredState {
		body[k] = v
	}
	for _, field := range item.SecretFields {
		value, ok, err := a.secrets.Get(ds.Name(), item.RowID, field)
		if err != nil {
			return nil, item.ResourceID, fmt.Errorf("secret %s for row %s: %w", field, item.RowID, err)
		}
		if !ok {
			res.Errors = append(res.Errors, types.Diag{
				Stage:   types.StageApply,
				Code:    types.CodeSecretRequired,
				Field:   field,
				Message: "no secret available for create",
			})
			return nil, item.ResourceID, nil
		}
		body[field] = value
	}

	id := item.ResourceID
	for attempt := 0; ; attempt++ {
		body[dataset.ResourceIDField] = id
		stored, err := a.client.Create(ctx, ds.Name(), body)
		if errors.Is(err, ErrIDExists) {
			if attempt >= a.retries {
				return nil, id, fmt.Errorf("create row %s: %w after %d attempts", item.RowID, ErrIDExists, attempt+1)
			}
			id = a.newID()
			a.log.Debug().Str("row", item.RowID).Str("id", id).Msg("record id taken, retrying with fresh id")
			continue
		}
		return stored, id, err
	}
}

// writeCache commits the applied record to the cache so the next run
// matches against it without waiting for a full refresh.
func (a *Applier) writeCache(ds dataset.Dataset, item types.PlanItem, resourceID string, stored map[string]any) error {
	row := make(map[string]any, len(item.DesiredState)+len(stored)+1)
	for k, v := range item.DesiredState {
		row[k] = v
	}
	for k, v := range stored {
		row[k] = v
	}
	row[dataset.ResourceIDField] = resourceID

	return a.store.WithTx(func(se *store.Session) error {
		if _, err := se.Cache().Upsert(ds.Name(), row); err != nil {
			return err
		}
		for _, entry := range ds.IndexEntries(types.CacheRow(row)) {
			if err := se.Identity().UpsertIdentity(ds.Name(), entry.Key, entry.ResolvedID); err != nil {
				return err
			}
		}
		return nil
	})
}
