package types

import "errors"

// Standard errors returned by the store, the dataset registry, and the
// artifact readers. Row-level issues travel as Diag values instead.
var (
	ErrDatasetUnknown = errors.New("unknown dataset")
	ErrFieldUnknown   = errors.New("unknown cache field")
	ErrFieldRequired  = errors.New("missing required cache field")
	ErrFilterEmpty    = errors.New("find requires at least one filter")
	ErrSearchMode     = errors.New("unsupported search mode")
	ErrNotFound       = errors.New("not found")
	ErrPlanFormat     = errors.New("invalid plan format")
	ErrSecretMasked   = errors.New("plan contains masked secret value")
	ErrPageLimit      = errors.New("max pages exceeded")
	ErrStoreClosed    = errors.New("store is closed")
)

// RunError is a run-level failure: it aborts the whole transaction and
// surfaces to the caller as a single error. Retryable marks transient
// transport failures worth re-invoking the run for.
type RunError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *RunError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *RunError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a RunError flagged retryable.
func IsRetryable(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}
