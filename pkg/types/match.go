package types

// MatchStatus classifies the outcome of matching one candidate against the
// cache store.
type MatchStatus string

const (
	MatchNotFound       MatchStatus = "NOT_FOUND"
	MatchMatched        MatchStatus = "MATCHED"
	MatchConflictTarget MatchStatus = "CONFLICT_TARGET"
	MatchConflictSource MatchStatus = "CONFLICT_SOURCE"
)

// CacheRow is one row from the cache store, keyed by cache field name.
type CacheRow map[string]any

// MatchedRow is the matcher's output for one candidate. DesiredState holds
// the canonical field values with link fields still unresolved; Existing is
// nil unless the status is MATCHED. The struct is JSON-serializable because
// it is snapshotted into pending-link payloads for later retry.
type MatchedRow struct {
	RowRef            RowRef                       `json:"row_ref"`
	Identity          Identity                     `json:"identity"`
	MatchStatus       MatchStatus                  `json:"match_status"`
	DesiredState      map[string]any               `json:"desired_state"`
	Existing          CacheRow                     `json:"existing,omitempty"`
	Fingerprint       string                       `json:"fingerprint"`
	FingerprintFields []string                     `json:"fingerprint_fields,omitempty"`
	ResourceID        string                       `json:"resource_id,omitempty"`
	LinkKeys          map[string]map[string]string `json:"link_keys,omitempty"`
}

// MatchOutcome carries one matched row together with its diagnostics.
// Row is nil when the row failed before producing a MatchedRow.
type MatchOutcome struct {
	Row      *MatchedRow
	RowRef   RowRef
	Errors   []Diag
	Warnings []Diag
}

// Failed reports whether the outcome carries at least one error.
func (o MatchOutcome) Failed() bool { return len(o.Errors) > 0 }
