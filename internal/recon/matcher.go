package recon

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/idsync/internal/dataset"
	"github.com/mesh-intelligence/idsync/internal/store"
	"github.com/mesh-intelligence/idsync/pkg/types"
)

// Matcher classifies canonical candidates against the cache store. It tries
// the dataset's identity rules in order and tracks identities already seen in
// the batch so source-side duplicates and conflicts surface per row instead
// of corrupting the plan.
type Matcher struct {
	ds             dataset.Dataset
	cache          *store.CacheStore
	includeDeleted bool
	log            zerolog.Logger
}

// NewMatcher returns a matcher over one dataset and cache session.
func NewMatcher(ds dataset.Dataset, cache *store.CacheStore, includeDeleted bool, log zerolog.Logger) *Matcher {
	return &Matcher{ds: ds, cache: cache, includeDeleted: includeDeleted, log: log}
}

// seenRow remembers the first occurrence of an identity within the batch.
type seenRow struct {
	rowRef      types.RowRef
	fingerprint string
}

// MatchAll matches candidates in input order. Row-level problems become
// diagnostics on the row's outcome; only storage failures return an error.
func (m *Matcher) MatchAll(cands []types.Candidate) ([]types.MatchOutcome, error) {
	seen := make(map[string]seenRow, len(cands))
	outcomes := make([]types.MatchOutcome, 0, len(cands))
	for _, c := range cands {
		out, err := m.match(c, seen)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

func (m *Matcher) match(c types.Candidate, seen map[string]seenRow) (types.MatchOutcome, error) {
	out := types.MatchOutcome{RowRef: c.RowRef, Errors: c.Errors, Warnings: c.Warnings}
	if out.Failed() {
		return out, nil
	}

	fingerprint, fpFields := Fingerprint(c.DesiredState, m.ds.IgnoredFields())

	identity, existing, err := m.findMatch(c)
	if err != nil {
		return out, err
	}
	if identity.PrimaryValue() == "" {
		out.Errors = append(out.Errors, types.Diag{
			Stage:   types.StageMatch,
			Code:    types.CodeIdentityMissing,
			Message: "no identity rule produced a value",
		})
		return out, nil
	}
	if len(existing) > 1 {
		out.Errors = append(out.Errors, types.Diag{
			Stage: types.StageMatch,
			Code:  types.CodeConflictTarget,
			Message: fmt.Sprintf("%d cache rows match %s",
				len(existing), types.IdentityKey(identity.Primary, identity.PrimaryValue())),
		})
		return out, nil
	}

	seenKey := types.IdentityKey(identity.Primary, identity.PrimaryValue())
	if prev, dup := seen[seenKey]; dup {
		if prev.fingerprint != fingerprint {
			out.Errors = append(out.Errors, types.Diag{
				Stage: types.StageMatch,
				Code:  types.CodeConflictSource,
				Message: fmt.Sprintf("identity %s already claimed by row %s with different content",
					seenKey, prev.rowRef.RowID),
			})
			return out, nil
		}
		// Identical re-statement of an earlier row. Tolerated: the first
		// occurrence carries the plan item, this one is skipped.
		out.Warnings = append(out.Warnings, types.Diag{
			Stage: types.StageMatch,
			Code:  types.CodeDuplicateSource,
			Message: fmt.Sprintf("identity %s duplicates row %s with identical content",
				seenKey, prev.rowRef.RowID),
		})
		m.log.Debug().Str("identity", seenKey).Str("row", c.RowRef.RowID).
			Msg("tolerated source duplicate")
		return out, nil
	}
	seen[seenKey] = seenRow{rowRef: c.RowRef, fingerprint: fingerprint}

	row := &types.MatchedRow{
		RowRef:            c.RowRef,
		Identity:          identity,
		MatchStatus:       types.MatchNotFound,
		DesiredState:      c.DesiredState,
		Fingerprint:       fingerprint,
		FingerprintFields: fpFields,
		LinkKeys:          c.LinkKeys,
	}
	if len(existing) == 1 {
		row.MatchStatus = types.MatchMatched
		row.Existing = existing[0]
		row.ResourceID = dataset.Stringify(existing[0][dataset.ResourceIDField])
	}
	out.Row = row
	return out, nil
}

// findMatch tries the identity rules in order and returns the first identity
// that hits the cache, or the first non-empty identity when nothing hits.
func (m *Matcher) findMatch(c types.Candidate) (types.Identity, []types.CacheRow, error) {
	var first types.Identity
	for _, rule := range m.ds.IdentityRules() {
		identity := rule.Build(c)
		value := identity.Values[rule.Name]
		if value == "" {
			continue
		}
		if first.PrimaryValue() == "" {
			first = identity
		}
		rows, err := m.cache.Find(m.ds.Name(), map[string]any{rule.Name: value}, m.includeDeleted, store.ModeExact)
		if err != nil {
			return types.Identity{}, nil, fmt.Errorf("match %s by %s: %w", m.ds.Name(), rule.Name, err)
		}
		if len(rows) > 0 {
			return identity, rows, nil
		}
	}
	return first, nil, nil
}
