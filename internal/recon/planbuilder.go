package recon

import "github.com/mesh-intelligence/idsync/pkg/types"

// PlanBuilder accumulates resolved rows into a plan artifact. Counters are
// exact for the whole run; detail items are capped at limit, with the
// Truncated flag recording that the cap was hit.
type PlanBuilder struct {
	meta           types.PlanMeta
	limit          int
	includeSkipped bool
	summary        types.PlanSummary
	items          []types.PlanItem
}

// NewPlanBuilder returns a builder for one run. limit <= 0 means unlimited
// detail items.
func NewPlanBuilder(meta types.PlanMeta, limit int, includeSkipped bool) *PlanBuilder {
	return &PlanBuilder{meta: meta, limit: limit, includeSkipped: includeSkipped}
}

// AddFailed records a row that produced no operation because of errors.
func (b *PlanBuilder) AddFailed(ref types.RowRef) {
	b.summary.RowsTotal++
	b.summary.FailedRows++
}

// AddDuplicate records a tolerated source duplicate; the first occurrence
// carries the plan item, this one counts as skipped.
func (b *PlanBuilder) AddDuplicate(ref types.RowRef) {
	b.summary.RowsTotal++
	b.summary.ValidRows++
	b.summary.Skipped++
}

// AddPendingRow records a row deferred to a future run.
func (b *PlanBuilder) AddPendingRow(ref types.RowRef) {
	b.summary.RowsTotal++
	b.summary.ValidRows++
	b.summary.PendingRows++
}

// Add records one resolved row and, for creates and updates, appends its
// plan item subject to the detail cap.
func (b *PlanBuilder) Add(row *types.ResolvedRow) {
	b.summary.RowsTotal++
	b.summary.ValidRows++
	switch row.Op {
	case types.OpCreate:
		b.summary.PlannedCreate++
	case types.OpUpdate:
		b.summary.PlannedUpdate++
	case types.OpSkip:
		b.summary.Skipped++
		if !b.includeSkipped {
			return
		}
	}
	b.appendItem(types.PlanItem{
		RowID:        row.RowRef.RowID,
		LineNo:       row.RowRef.LineNo,
		Op:           row.Op,
		ResourceID:   row.ResourceID,
		DesiredState: row.DesiredState,
		Changes:      row.Changes,
		SourceRef:    row.SourceRef,
		SecretFields: row.SecretFields,
	})
}

func (b *PlanBuilder) appendItem(item types.PlanItem) {
	if b.limit > 0 && len(b.items) >= b.limit {
		b.summary.Truncated = true
		return
	}
	b.items = append(b.items, item)
}

// Build returns the finished plan.
func (b *PlanBuilder) Build() types.Plan {
	return types.Plan{Meta: b.meta, Summary: b.summary, Items: b.items}
}
