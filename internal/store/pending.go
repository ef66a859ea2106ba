package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mesh-intelligence/idsync/pkg/types"
)

// timeLayout is the wire format for pending timestamps.
const timeLayout = time.RFC3339

// PendingQueue is the durable queue of link references that could not be
// resolved yet. Entries carry a TTL, an attempt counter, and a payload
// snapshot so the row can be retried in a later run without re-reading the
// original source.
type PendingQueue struct {
	q querier
}

const pendingColumns = `pending_id, dataset, source_row_id, field, lookup_key,
       status, attempts, created_at, last_attempt_at, expires_at, reason, payload`

// AddPending queues one unresolved link and returns its id.
func (p *PendingQueue) AddPending(dataset, sourceRowID, field, lookupKey string, expiresAt *time.Time, payload []byte) (int64, error) {
	res, err := p.q.Exec(
		`INSERT INTO pending_links(
             dataset, source_row_id, field, lookup_key,
             status, reason, attempts, created_at, last_attempt_at, expires_at, payload)
         VALUES (?, ?, ?, ?, ?, NULL, 0, ?, NULL, ?, ?)`,
		dataset, sourceRowID, field, lookupKey,
		types.PendingStatusPending, formatTime(time.Now().UTC()),
		formatTimePtr(expiresAt), payloadArg(payload))
	if err != nil {
		return 0, fmt.Errorf("add pending: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add pending id: %w", err)
	}
	return id, nil
}

// ListPendingForKey returns pending entries for one lookup key
// (status=pending only).
func (p *PendingQueue) ListPendingForKey(dataset, lookupKey string) ([]types.PendingLink, error) {
	rows, err := p.q.Query(
		`SELECT `+pendingColumns+` FROM pending_links
         WHERE dataset = ? AND lookup_key = ? AND status = ?`,
		dataset, lookupKey, types.PendingStatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending for key: %w", err)
	}
	defer rows.Close()
	return scanPending(rows)
}

// ListPendingForSource returns every entry recorded for one source row,
// regardless of status.
func (p *PendingQueue) ListPendingForSource(dataset, sourceRowID string) ([]types.PendingLink, error) {
	rows, err := p.q.Query(
		`SELECT `+pendingColumns+` FROM pending_links
         WHERE dataset = ? AND source_row_id = ?
         ORDER BY pending_id`,
		dataset, sourceRowID)
	if err != nil {
		return nil, fmt.Errorf("list pending for source: %w", err)
	}
	defer rows.Close()
	return scanPending(rows)
}

// List returns entries for one dataset, optionally filtered by status, newest
// first. limit <= 0 means no limit.
func (p *PendingQueue) List(dataset, status string, limit int) ([]types.PendingLink, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_links WHERE dataset = ?`
	args := []any{dataset}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY pending_id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := p.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()
	return scanPending(rows)
}

// ListPendingRows returns one entry per distinct source row that still has
// pending links with a payload snapshot, for retry at the start of the next
// resolve pass.
func (p *PendingQueue) ListPendingRows(dataset string) ([]types.PendingRow, error) {
	rows, err := p.q.Query(
		`SELECT dataset, source_row_id, payload FROM pending_links
         WHERE dataset = ? AND status = ? AND payload IS NOT NULL
         GROUP BY source_row_id
         ORDER BY MIN(pending_id)`,
		dataset, types.PendingStatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending rows: %w", err)
	}
	defer rows.Close()

	var out []types.PendingRow
	for rows.Next() {
		var pr types.PendingRow
		var payload sql.NullString
		if err := rows.Scan(&pr.Dataset, &pr.SourceRowID, &payload); err != nil {
			return nil, fmt.Errorf("scan pending row: %w", err)
		}
		if payload.Valid {
			pr.Payload = []byte(payload.String)
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

// MarkResolved transitions one entry to resolved.
func (p *PendingQueue) MarkResolved(pendingID int64) error {
	return p.setStatus(pendingID, types.PendingStatusResolved, "")
}

// MarkResolvedForSource transitions every pending entry of one source row to
// resolved. Used when the row finally produces a plan item.
func (p *PendingQueue) MarkResolvedForSource(sourceRowID string) error {
	_, err := p.q.Exec(
		`UPDATE pending_links
         SET status = ?, reason = NULL, last_attempt_at = ?
         WHERE source_row_id = ? AND status = ?`,
		types.PendingStatusResolved, formatTime(time.Now().UTC()),
		sourceRowID, types.PendingStatusPending)
	if err != nil {
		return fmt.Errorf("mark resolved for source: %w", err)
	}
	return nil
}

// MarkConflict transitions one entry to conflict with a reason.
func (p *PendingQueue) MarkConflict(pendingID int64, reason string) error {
	return p.setStatus(pendingID, types.PendingStatusConflict, reason)
}

// MarkExpired transitions one entry to expired with a reason.
func (p *PendingQueue) MarkExpired(pendingID int64, reason string) error {
	return p.setStatus(pendingID, types.PendingStatusExpired, reason)
}

func (p *PendingQueue) setStatus(pendingID int64, status, reason string) error {
	var reasonArg any
	if reason != "" {
		reasonArg = reason
	}
	res, err := p.q.Exec(
		`UPDATE pending_links
         SET status = ?, reason = ?, last_attempt_at = ?
         WHERE pending_id = ?`,
		status, reasonArg, formatTime(time.Now().UTC()), pendingID)
	if err != nil {
		return fmt.Errorf("mark %s: %w", status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark %s %d: %w", status, pendingID, types.ErrNotFound)
	}
	return nil
}

// TouchAttempt increments the attempt counter and returns the new count.
func (p *PendingQueue) TouchAttempt(pendingID int64) (int, error) {
	_, err := p.q.Exec(
		`UPDATE pending_links
         SET attempts = attempts + 1, last_attempt_at = ?
         WHERE pending_id = ?`,
		formatTime(time.Now().UTC()), pendingID)
	if err != nil {
		return 0, fmt.Errorf("touch attempt: %w", err)
	}
	var attempts int
	err = p.q.QueryRow("SELECT attempts FROM pending_links WHERE pending_id = ?", pendingID).Scan(&attempts)
	if isNoRows(err) {
		return 0, fmt.Errorf("touch attempt %d: %w", pendingID, types.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("touch attempt count: %w", err)
	}
	return attempts, nil
}

// SweepExpired transitions every pending entry with expires_at <= now to
// expired and returns the transitioned entries for reporting.
func (p *PendingQueue) SweepExpired(now time.Time, reason string) ([]types.PendingLink, error) {
	rows, err := p.q.Query(
		`SELECT `+pendingColumns+` FROM pending_links
         WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		types.PendingStatusPending, formatTime(now.UTC()))
	if err != nil {
		return nil, fmt.Errorf("sweep expired: %w", err)
	}
	expired, err := scanPending(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return nil, nil
	}

	when := time.Now().UTC()
	marks := make([]string, len(expired))
	args := []any{types.PendingStatusExpired, reason, formatTime(when)}
	for i, link := range expired {
		marks[i] = "?"
		args = append(args, link.PendingID)
	}
	_, err = p.q.Exec(
		`UPDATE pending_links
         SET status = ?, reason = ?, last_attempt_at = ?
         WHERE pending_id IN (`+strings.Join(marks, ", ")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("sweep expired update: %w", err)
	}
	for i := range expired {
		expired[i].Status = types.PendingStatusExpired
		expired[i].Reason = reason
		at := when
		expired[i].LastAttemptAt = &at
	}
	return expired, nil
}

// PurgeStale deletes entries whose last activity is at or before cutoff and
// whose status is terminal. Pending entries are never purged by age alone;
// they leave the queue only through SweepExpired or a mark transition.
func (p *PendingQueue) PurgeStale(cutoff time.Time, statuses []string) (int64, error) {
	if len(statuses) == 0 {
		statuses = types.TerminalPendingStatuses
	}
	for _, status := range statuses {
		if status == types.PendingStatusPending {
			return 0, fmt.Errorf("purge stale: pending rows cannot be purged by age")
		}
	}
	marks := make([]string, len(statuses))
	args := []any{formatTime(cutoff.UTC())}
	for i, status := range statuses {
		marks[i] = "?"
		args = append(args, status)
	}
	res, err := p.q.Exec(
		`DELETE FROM pending_links
         WHERE COALESCE(last_attempt_at, created_at) <= ?
           AND status IN (`+strings.Join(marks, ", ")+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("purge stale: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanPending(rows *sql.Rows) ([]types.PendingLink, error) {
	var out []types.PendingLink
	for rows.Next() {
		var link types.PendingLink
		var createdAt string
		var lastAttempt, expires, reason, payload sql.NullString
		err := rows.Scan(
			&link.PendingID, &link.Dataset, &link.SourceRowID, &link.Field,
			&link.LookupKey, &link.Status, &link.Attempts, &createdAt,
			&lastAttempt, &expires, &reason, &payload)
		if err != nil {
			return nil, fmt.Errorf("scan pending link: %w", err)
		}
		link.CreatedAt = parseTime(createdAt)
		if lastAttempt.Valid {
			t := parseTime(lastAttempt.String)
			link.LastAttemptAt = &t
		}
		if expires.Valid {
			t := parseTime(expires.String)
			link.ExpiresAt = &t
		}
		link.Reason = reason.String
		if payload.Valid {
			link.Payload = []byte(payload.String)
		}
		out = append(out, link)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string { return t.Format(timeLayout) }

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(t.UTC())
}

func payloadArg(payload []byte) any {
	if payload == nil {
		return nil
	}
	return string(payload)
}

// parseTime parses a stored timestamp, falling back to the SQLite
// CURRENT_TIMESTAMP layout for rows written by schema defaults.
func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", s)
	return t
}
