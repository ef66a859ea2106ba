package types

import "time"

// Pending link statuses. A link starts pending and transitions exactly once
// to resolved, conflict, or expired.
const (
	PendingStatusPending  = "pending"
	PendingStatusResolved = "resolved"
	PendingStatusConflict = "conflict"
	PendingStatusExpired  = "expired"
)

// TerminalPendingStatuses are the statuses PurgeStale may delete.
// Rows still pending are never purged by age alone.
var TerminalPendingStatuses = []string{
	PendingStatusResolved,
	PendingStatusExpired,
	PendingStatusConflict,
}

// PendingLink is a durable placeholder recording that one row's reference
// field could not yet be resolved to a concrete target id.
type PendingLink struct {
	PendingID     int64
	Dataset       string
	SourceRowID   string
	Field         string
	LookupKey     string
	Status        string
	Attempts      int
	CreatedAt     time.Time
	LastAttemptAt *time.Time
	ExpiresAt     *time.Time
	Reason        string
	Payload       []byte
}

// PendingRow is one distinct source row with at least one pending link,
// used to re-materialize its MatchedRow at the start of the next resolve
// pass. Payload is the JSON snapshot taken when the link was queued.
type PendingRow struct {
	Dataset     string
	SourceRowID string
	Payload     []byte
}
