package recon

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/idsync/internal/dataset"
	"github.com/mesh-intelligence/idsync/internal/report"
	"github.com/mesh-intelligence/idsync/internal/store"
	"github.com/mesh-intelligence/idsync/pkg/types"
)

// Runner orchestrates one reconciliation run: sweep expired pending links,
// match the batch, resolve links in a second phase over the whole batch, and
// build the plan. Every store write of the run happens inside a single
// transaction, so a mid-run failure leaves no partial bookkeeping behind.
type Runner struct {
	store *store.Store
	reg   *dataset.Registry
	cfg   types.Config
	log   zerolog.Logger

	// Overridable in tests.
	now   func() time.Time
	newID func() string
}

// NewRunner returns a runner with normalized settings.
func NewRunner(st *store.Store, reg *dataset.Registry, cfg types.Config, log zerolog.Logger) *Runner {
	return &Runner{
		store: st,
		reg:   reg,
		cfg:   cfg.Normalize(),
		log:   log,
		now:   time.Now,
		newID: newRunID,
	}
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// RunResult is everything one plan run produced.
type RunResult struct {
	Plan    types.Plan
	Report  report.Report
	Expired []types.PendingLink
	Purged  int64
}

// Plan runs the two-phase reconciliation over the given source records and
// returns the plan and the row-level report. sourcePath is recorded in the
// plan meta for provenance.
func (r *Runner) Plan(records []types.SourceRecord, sourcePath string) (*RunResult, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	ds, err := r.reg.Get(r.cfg.Dataset)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	meta := types.PlanMeta{
		RunID:          r.newID(),
		GeneratedAt:    now.Format(time.RFC3339),
		Dataset:        ds.Name(),
		SourcePath:     sourcePath,
		IncludeDeleted: r.cfg.IncludeDeleted,
	}

	result := &RunResult{}
	err = r.store.WithTx(func(se *store.Session) error {
		pq := se.Pending()

		expired, err := pq.SweepExpired(now, "ttl expired")
		if err != nil {
			return err
		}
		result.Expired = expired

		// Rows still pending from earlier runs are retried from their
		// snapshots, unless the same row arrives fresh in this batch.
		fresh := make(map[string]bool, len(records))
		for _, rec := range records {
			fresh[rec.RowRef.RowID] = true
		}
		retried, err := r.loadPendingRows(pq, ds.Name(), fresh)
		if err != nil {
			return err
		}

		// Phase 1: canonicalize and match every record.
		cands := make([]types.Candidate, 0, len(records))
		for _, rec := range records {
			cands = append(cands, ds.Canonicalize(rec))
		}
		matcher := NewMatcher(ds, se.Cache(), r.cfg.IncludeDeleted, r.log)
		outcomes, err := matcher.MatchAll(cands)
		if err != nil {
			return err
		}

		// Pre-assign resource ids for creates, one id per identity, so a
		// retried snapshot and a fresh row can never diverge.
		assigned := make(map[string]string)
		assign := func(row *types.MatchedRow) {
			if row.MatchStatus == types.MatchMatched || row.ResourceID != "" {
				return
			}
			key := types.IdentityKey(row.Identity.Primary, row.Identity.PrimaryValue())
			id, ok := assigned[key]
			if !ok {
				id = r.newID()
				assigned[key] = id
			}
			row.ResourceID = id
		}
		rows := make([]*types.MatchedRow, 0, len(outcomes)+len(retried))
		for i := range outcomes {
			if outcomes[i].Row != nil {
				assign(outcomes[i].Row)
				rows = append(rows, outcomes[i].Row)
			}
		}
		for _, row := range retried {
			assign(row)
			rows = append(rows, row)
		}

		// Phase 2: resolve links over the whole batch.
		batch := BuildBatchIndex(ds, rows)
		resolver := NewResolver(ds, se, r.cfg.Pending, r.now, r.log)
		pb := NewPlanBuilder(meta, r.cfg.ReportItemsLimit, r.cfg.IncludeSkipped)
		rc := report.NewCollector(r.cfg.ReportItemsLimit)

		handle := func(ref types.RowRef, row *types.MatchedRow, errs, warns []types.Diag) error {
			if len(errs) > 0 {
				pb.AddFailed(ref)
				rc.Add(ref, report.StatusFailed, "", errs, warns)
				return nil
			}
			if row == nil {
				pb.AddDuplicate(ref)
				rc.Add(ref, report.StatusSkipped, "", nil, warns)
				return nil
			}
			out, err := resolver.Resolve(row, batch)
			if err != nil {
				return err
			}
			warns = append(warns, out.Warnings...)
			switch {
			case out.Failed():
				pb.AddFailed(ref)
				rc.Add(ref, report.StatusFailed, "", out.Errors, warns)
			case out.Pending():
				pb.AddPendingRow(ref)
				rc.Add(ref, report.StatusPending, "", nil, warns)
			default:
				pb.Add(out.Row)
				status := report.StatusPlanned
				if out.Row.Op == types.OpSkip {
					status = report.StatusSkipped
				}
				rc.Add(ref, status, out.Row.Op, nil, warns)
			}
			return nil
		}
		for _, out := range outcomes {
			if err := handle(out.RowRef, out.Row, out.Errors, out.Warnings); err != nil {
				return err
			}
		}
		for _, row := range retried {
			if err := handle(row.RowRef, row, nil, nil); err != nil {
				return err
			}
		}

		// Links swept this run belong to rows that are no longer retried;
		// surface them as failures unless fresh data superseded the row.
		seenExpired := make(map[string]bool)
		for _, link := range expired {
			if fresh[link.SourceRowID] || seenExpired[link.SourceRowID] {
				continue
			}
			seenExpired[link.SourceRowID] = true
			ref := types.RowRef{RowID: link.SourceRowID}
			pb.AddFailed(ref)
			rc.Add(ref, report.StatusFailed, "", []types.Diag{{
				Stage:   types.StageResolve,
				Code:    types.CodeResolveExpired,
				Field:   link.Field,
				Message: "pending link expired: " + link.LookupKey,
			}}, nil)
		}

		cutoff := now.AddDate(0, 0, -r.cfg.Pending.RetentionDays)
		purged, err := pq.PurgeStale(cutoff, nil)
		if err != nil {
			return err
		}
		result.Purged = purged

		result.Plan = pb.Build()
		result.Report = rc.Build(result.Plan.Summary)
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info().
		Str("run_id", meta.RunID).
		Int("rows", result.Plan.Summary.RowsTotal).
		Int("create", result.Plan.Summary.PlannedCreate).
		Int("update", result.Plan.Summary.PlannedUpdate).
		Int("skipped", result.Plan.Summary.Skipped).
		Int("pending", result.Plan.Summary.PendingRows).
		Int("failed", result.Plan.Summary.FailedRows).
		Msg("plan complete")
	return result, nil
}

func (r *Runner) loadPendingRows(pq *store.PendingQueue, ds string, fresh map[string]bool) ([]*types.MatchedRow, error) {
	pendingRows, err := pq.ListPendingRows(ds)
	if err != nil {
		return nil, err
	}
	var retried []*types.MatchedRow
	for _, pr := range pendingRows {
		if fresh[pr.SourceRowID] {
			continue
		}
		var row types.MatchedRow
		if err := json.Unmarshal(pr.Payload, &row); err != nil {
			r.log.Warn().Str("row", pr.SourceRowID).Err(err).
				Msg("dropping unreadable pending snapshot")
			continue
		}
		retried = append(retried, &row)
	}
	return retried, nil
}
