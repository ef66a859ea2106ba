package types

// Pipeline stages for diagnostics.
const (
	StageCanon   = "canon"
	StageMatch   = "match"
	StageResolve = "resolve"
	StagePlan    = "plan"
	StageApply   = "apply"
)

// Row-level diagnostic codes. Errors block the row's plan item; warnings do
// not. See docs/ARCHITECTURE.md § Error Taxonomy.
const (
	CodeIdentityMissing    = "MATCH_IDENTITY_MISSING"
	CodeConflictTarget     = "MATCH_CONFLICT_TARGET"
	CodeConflictSource     = "MATCH_CONFLICT_SOURCE"
	CodeDuplicateSource    = "MATCH_DUPLICATE_SOURCE"
	CodeResolveConflict    = "RESOLVE_CONFLICT"
	CodeResolvePending     = "RESOLVE_PENDING"
	CodeResolveMaxAttempts = "RESOLVE_MAX_ATTEMPTS"
	CodeResolveExpired     = "RESOLVE_EXPIRED"
	CodeResolveMissingID   = "RESOLVE_MISSING_RESOURCE_ID"
	CodeCacheWriteFailed   = "CACHE_WRITE_FAILED"
	CodeSecretRequired     = "APPLY_SECRET_REQUIRED"
	CodeApplyFailed        = "APPLY_OPERATION_FAILED"
)

// Diag is one row-level diagnostic. Diags are collected on the row's
// outcome and never thrown past the row boundary.
type Diag struct {
	Stage   string `json:"stage"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// HasCode reports whether any diagnostic in diags carries the given code.
func HasCode(diags []Diag, code string) bool {
	for _, d := range diags {
		if d.Code == code {
			return true
		}
	}
	return false
}
