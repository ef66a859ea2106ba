package types

// Op is the operation decided for one resolved row.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpSkip   Op = "skip"
)

// ResolvedRow is the resolver's output for one matched row: the operation,
// the desired state with link fields substituted for concrete target ids,
// and the field-level changes for updates.
type ResolvedRow struct {
	RowRef       RowRef         `json:"row_ref"`
	Identity     Identity       `json:"identity"`
	Op           Op             `json:"op"`
	DesiredState map[string]any `json:"desired_state"`
	Changes      map[string]any `json:"changes,omitempty"`
	Existing     CacheRow       `json:"-"`
	ResourceID   string         `json:"resource_id"`
	SourceRef    map[string]any `json:"source_ref,omitempty"`
	SecretFields []string       `json:"secret_fields,omitempty"`
}

// ResolveOutcome carries one resolved row together with its diagnostics.
// Row is nil for conflicts, deferred (pending) rows, and failures.
type ResolveOutcome struct {
	Row      *ResolvedRow
	RowRef   RowRef
	Errors   []Diag
	Warnings []Diag
}

// Failed reports whether the outcome carries at least one error.
func (o ResolveOutcome) Failed() bool { return len(o.Errors) > 0 }

// Pending reports whether the row was deferred to a future run.
func (o ResolveOutcome) Pending() bool {
	return o.Row == nil && !o.Failed() && HasCode(o.Warnings, CodeResolvePending)
}
