// Package report collects row-level diagnostics for one run into a bounded
// report artifact. Counters stay exact even when detail items are capped.
package report

import "github.com/mesh-intelligence/idsync/pkg/types"

// Row statuses in the report.
const (
	StatusPlanned = "planned"
	StatusSkipped = "skipped"
	StatusPending = "pending"
	StatusFailed  = "failed"
)

// Item is one row's outcome: its source position, status, decided operation
// when there is one, and diagnostics.
type Item struct {
	RowID    string       `json:"row_id"`
	LineNo   int          `json:"line_no"`
	Status   string       `json:"status"`
	Op       types.Op     `json:"op,omitempty"`
	Errors   []types.Diag `json:"errors,omitempty"`
	Warnings []types.Diag `json:"warnings,omitempty"`
}

// Report is the run's row-level diagnostic record.
type Report struct {
	Summary   types.PlanSummary `json:"summary"`
	Items     []Item            `json:"items"`
	Truncated bool              `json:"truncated,omitempty"`
}

// Collector gathers report items under a detail cap. Clean planned rows are
// recorded only in the counters; rows with diagnostics or non-planned status
// become items until the cap is reached.
type Collector struct {
	limit int
	items []Item
	trunc bool
}

// NewCollector returns a collector. limit <= 0 means unlimited items.
func NewCollector(limit int) *Collector {
	return &Collector{limit: limit}
}

// Add records one row outcome.
func (c *Collector) Add(ref types.RowRef, status string, op types.Op, errs, warns []types.Diag) {
	if status == StatusPlanned && len(errs) == 0 && len(warns) == 0 {
		return
	}
	if c.limit > 0 && len(c.items) >= c.limit {
		c.trunc = true
		return
	}
	c.items = append(c.items, Item{
		RowID:    ref.RowID,
		LineNo:   ref.LineNo,
		Status:   status,
		Op:       op,
		Errors:   errs,
		Warnings: warns,
	})
}

// Build returns the report with the given summary counters.
func (c *Collector) Build(summary types.PlanSummary) Report {
	return Report{Summary: summary, Items: c.items, Truncated: c.trunc}
}
