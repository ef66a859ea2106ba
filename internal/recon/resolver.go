package recon

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/idsync/internal/dataset"
	"github.com/mesh-intelligence/idsync/internal/store"
	"github.com/mesh-intelligence/idsync/pkg/types"
)

// BatchIndex maps dataset -> lookup key -> resolved ids for rows of the
// current run. It is consulted before the persistent identity index so a row
// can reference a record created earlier in the same batch.
type BatchIndex map[string]map[string][]string

func (b BatchIndex) add(ds, key, id string) {
	keys, ok := b[ds]
	if !ok {
		keys = make(map[string][]string)
		b[ds] = keys
	}
	for _, have := range keys[key] {
		if have == id {
			return
		}
	}
	keys[key] = append(keys[key], id)
}

func (b BatchIndex) lookup(ds, key string) []string {
	return b[ds][key]
}

// BuildBatchIndex indexes every matched row's identity values under its
// batch-local resolved id: the cached directory id when the row matched, the
// pre-assigned resource id otherwise.
func BuildBatchIndex(ds dataset.Dataset, rows []*types.MatchedRow) BatchIndex {
	batch := make(BatchIndex)
	for _, row := range rows {
		if row == nil {
			continue
		}
		id := row.ResourceID
		if row.MatchStatus == types.MatchMatched {
			if ouid := dataset.Stringify(row.Existing["_ouid"]); ouid != "" {
				id = ouid
			}
		}
		if id == "" {
			continue
		}
		for name, value := range row.Identity.Values {
			if value != "" {
				batch.add(ds.Name(), types.IdentityKey(name, value), id)
			}
		}
	}
	return batch
}

// Resolver substitutes link references in matched rows with concrete target
// ids and decides the operation per row. Unresolvable links are deferred to
// the pending queue with a TTL and an attempt budget.
type Resolver struct {
	ds       dataset.Dataset
	idx      *store.IdentityIndex
	pending  *store.PendingQueue
	settings types.PendingSettings
	now      func() time.Time
	log      zerolog.Logger
}

// NewResolver returns a resolver over one dataset and store session.
func NewResolver(ds dataset.Dataset, se *store.Session, settings types.PendingSettings, now func() time.Time, log zerolog.Logger) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		ds:       ds,
		idx:      se.Identity(),
		pending:  se.Pending(),
		settings: settings,
		now:      now,
		log:      log,
	}
}

// Resolve resolves one matched row. Row-level problems become diagnostics;
// only storage failures return an error. A deferred row (unresolved link,
// partial writes disabled) comes back with Row nil and a RESOLVE_PENDING
// warning.
func (r *Resolver) Resolve(row *types.MatchedRow, batch BatchIndex) (types.ResolveOutcome, error) {
	out := types.ResolveOutcome{RowRef: row.RowRef}

	desired := make(map[string]any, len(row.DesiredState))
	for k, v := range row.DesiredState {
		desired[k] = v
	}

	deferred := false
	for _, rule := range r.ds.LinkRules() {
		raw, ok := desired[rule.Field]
		if !ok || raw == nil {
			continue
		}
		if isIntValue(raw) {
			// Already a concrete id.
			continue
		}

		ids, lookupKey, err := r.lookupCandidates(row, rule, desired, batch)
		if err != nil {
			return out, err
		}
		if len(ids) > 1 {
			ids, err = r.narrow(rule, desired, ids, batch)
			if err != nil {
				return out, err
			}
		}
		if len(ids) == 1 {
			desired[rule.Field] = coerceID(ids[0], rule.CoerceInt)
			continue
		}

		warnings, fatal, err := r.deferLink(row, rule.Field, lookupKey, len(ids) > 1)
		if err != nil {
			return out, err
		}
		if fatal != nil {
			out.Errors = append(out.Errors, *fatal)
			return out, nil
		}
		out.Warnings = append(out.Warnings, warnings...)
		deferred = true
	}

	if deferred && !r.settings.AllowPartial {
		return out, nil
	}
	if !deferred {
		// The row is whole; retire any pending bookkeeping left from
		// earlier runs.
		if err := r.pending.MarkResolvedForSource(row.RowRef.RowID); err != nil {
			return out, err
		}
	}

	resolved := &types.ResolvedRow{
		RowRef:       row.RowRef,
		Identity:     row.Identity,
		DesiredState: desired,
		Existing:     row.Existing,
		SourceRef:    r.ds.SourceRef(row.Identity),
	}
	switch row.MatchStatus {
	case types.MatchMatched:
		resolved.ResourceID = dataset.Stringify(row.Existing[dataset.ResourceIDField])
		changes := r.ds.Changes(row.Existing, desired)
		if len(changes) == 0 {
			resolved.Op = types.OpSkip
		} else {
			resolved.Op = types.OpUpdate
			resolved.Changes = changes
		}
	default:
		resolved.Op = types.OpCreate
		resolved.ResourceID = row.ResourceID
		if resolved.ResourceID == "" {
			out.Errors = append(out.Errors, types.Diag{
				Stage:   types.StageResolve,
				Code:    types.CodeResolveMissingID,
				Message: "no resource id assigned for create",
			})
			return out, nil
		}
	}
	resolved.SecretFields = r.ds.SecretFields(resolved.Op, desired, row.Existing)
	out.Row = resolved
	return out, nil
}

// lookupCandidates tries the rule's resolve keys in order, batch index
// first, then the persistent identity index. Returns the candidate ids and
// the lookup key that produced them (or the last key tried).
func (r *Resolver) lookupCandidates(row *types.MatchedRow, rule dataset.LinkRule, desired map[string]any, batch BatchIndex) ([]string, string, error) {
	var lastKey string
	for _, key := range rule.ResolveKeys {
		value := ""
		if overrides, ok := row.LinkKeys[rule.Field]; ok {
			value = overrides[key.Name]
		}
		if value == "" {
			value = dataset.Stringify(desired[key.Field])
		}
		if value == "" {
			continue
		}
		lookupKey := types.IdentityKey(key.Name, value)
		lastKey = lookupKey
		if ids := batch.lookup(rule.TargetDataset, lookupKey); len(ids) > 0 {
			return ids, lookupKey, nil
		}
		ids, err := r.idx.FindCandidates(rule.TargetDataset, lookupKey)
		if err != nil {
			return nil, "", err
		}
		if len(ids) > 0 {
			return ids, lookupKey, nil
		}
	}
	return nil, lastKey, nil
}

// narrow applies the rule's dedup key tuples: candidates are intersected
// with the ids recorded under each discriminator key. The first tuple that
// narrows to exactly one candidate wins; otherwise the original set stands.
func (r *Resolver) narrow(rule dataset.LinkRule, desired map[string]any, ids []string, batch BatchIndex) ([]string, error) {
	for _, discKeys := range rule.DedupRules {
		candidates := ids
		applied := false
		for _, name := range discKeys {
			disc := dataset.Stringify(desired[name])
			if disc == "" {
				continue
			}
			applied = true
			key := types.IdentityKey(name, disc)
			discIDs, err := r.idx.FindCandidates(rule.TargetDataset, key)
			if err != nil {
				return nil, err
			}
			discIDs = append(discIDs, batch.lookup(rule.TargetDataset, key)...)
			candidates = intersect(candidates, discIDs)
		}
		if applied && len(candidates) == 1 {
			r.log.Debug().Str("field", rule.Field).Str("id", candidates[0]).
				Msg("ambiguous link narrowed by dedup rule")
			return candidates, nil
		}
	}
	return ids, nil
}

// deferLink records (or re-attempts) a pending entry for one unresolved
// link. Returns row warnings for the normal deferral path, or a fatal
// diagnostic when the attempt budget is exhausted.
func (r *Resolver) deferLink(row *types.MatchedRow, field, lookupKey string, ambiguous bool) ([]types.Diag, *types.Diag, error) {
	reason := "no candidate for " + lookupKey
	if ambiguous {
		reason = "ambiguous candidates for " + lookupKey
	}

	links, err := r.pending.ListPendingForSource(r.ds.Name(), row.RowRef.RowID)
	if err != nil {
		return nil, nil, err
	}
	var cur *types.PendingLink
	for i := range links {
		if links[i].Field == field && links[i].Status == types.PendingStatusPending {
			cur = &links[i]
			break
		}
	}

	if cur != nil {
		attempts, err := r.pending.TouchAttempt(cur.PendingID)
		if err != nil {
			return nil, nil, err
		}
		if attempts >= r.settings.MaxAttempts {
			if ambiguous {
				if err := r.pending.MarkConflict(cur.PendingID, reason); err != nil {
					return nil, nil, err
				}
				return nil, &types.Diag{
					Stage:   types.StageResolve,
					Code:    types.CodeResolveConflict,
					Field:   field,
					Message: fmt.Sprintf("%s after %d attempts", reason, attempts),
				}, nil
			}
			if err := r.pending.MarkExpired(cur.PendingID, "max attempts exceeded"); err != nil {
				return nil, nil, err
			}
			return nil, &types.Diag{
				Stage:   types.StageResolve,
				Code:    types.CodeResolveMaxAttempts,
				Field:   field,
				Message: fmt.Sprintf("%s, gave up after %d attempts", reason, attempts),
			}, nil
		}
	} else {
		payload, err := json.Marshal(row)
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot row %s: %w", row.RowRef.RowID, err)
		}
		expires := r.now().UTC().Add(r.settings.TTL)
		if _, err := r.pending.AddPending(r.ds.Name(), row.RowRef.RowID, field, lookupKey, &expires, payload); err != nil {
			return nil, nil, err
		}
	}

	return []types.Diag{{
		Stage:   types.StageResolve,
		Code:    types.CodeResolvePending,
		Field:   field,
		Message: reason,
	}}, nil, nil
}

// isIntValue reports whether the link field already holds a concrete
// numeric id. float64 counts because pending snapshots round-trip through
// JSON, which turns ints into floats.
func isIntValue(v any) bool {
	switch v.(type) {
	case int, int64, float64:
		return true
	}
	return false
}

func coerceID(id string, toInt bool) any {
	if toInt {
		if n, err := strconv.Atoi(id); err == nil {
			return n
		}
	}
	return id
}

func intersect(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, id := range b {
		inB[id] = true
	}
	var out []string
	for _, id := range a {
		if inB[id] {
			out = append(out, id)
		}
	}
	return out
}
