package types

// PlanMeta describes the run that produced a plan artifact.
type PlanMeta struct {
	RunID          string `json:"run_id"`
	GeneratedAt    string `json:"generated_at"`
	Dataset        string `json:"dataset"`
	SourcePath     string `json:"source_path,omitempty"`
	PlanPath       string `json:"-"`
	IncludeDeleted bool   `json:"include_deleted"`
}

// PlanSummary holds the run counters. Counters are exact regardless of
// detail-item truncation.
type PlanSummary struct {
	RowsTotal     int  `json:"rows_total"`
	ValidRows     int  `json:"valid_rows"`
	FailedRows    int  `json:"failed_rows"`
	PlannedCreate int  `json:"planned_create"`
	PlannedUpdate int  `json:"planned_update"`
	Skipped       int  `json:"skipped"`
	PendingRows   int  `json:"pending_rows"`
	Truncated     bool `json:"truncated,omitempty"`
}

// PlanItem is one decided create/update operation, serialized into the plan
// artifact for later apply.
type PlanItem struct {
	RowID        string         `json:"row_id"`
	LineNo       int            `json:"line_no"`
	Op           Op             `json:"op"`
	ResourceID   string         `json:"resource_id"`
	DesiredState map[string]any `json:"desired_state"`
	Changes      map[string]any `json:"changes,omitempty"`
	SourceRef    map[string]any `json:"source_ref,omitempty"`
	SecretFields []string       `json:"secret_fields,omitempty"`
}

// Plan is the reviewable set of decided operations produced by one
// reconciliation run, applied in a separate later step.
type Plan struct {
	Meta    PlanMeta    `json:"meta"`
	Summary PlanSummary `json:"summary"`
	Items   []PlanItem  `json:"items"`
}
