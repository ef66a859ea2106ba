package store

import "fmt"

// IdentityIndex is the append-only index mapping (dataset, identity key) to
// resolved target ids. Entries are never deleted on the write path; a key
// holding more than one id stays ambiguous until dedup rules narrow it.
type IdentityIndex struct {
	q querier
}

// UpsertIdentity records that identityKey resolves to resolvedID.
// Idempotent: re-adding the same id for the same key is a no-op. Adding a
// different id for the same key accumulates.
func (ix *IdentityIndex) UpsertIdentity(dataset, identityKey, resolvedID string) error {
	_, err := ix.q.Exec(
		`INSERT INTO identity_index(dataset, identity_key, resolved_id)
         VALUES(?, ?, ?)
         ON CONFLICT(dataset, identity_key, resolved_id)
         DO UPDATE SET updated_at=CURRENT_TIMESTAMP`,
		dataset, identityKey, resolvedID)
	if err != nil {
		return fmt.Errorf("upsert identity %s/%s: %w", dataset, identityKey, err)
	}
	return nil
}

// FindCandidates returns every resolved id recorded for identityKey,
// in insertion-stable order.
func (ix *IdentityIndex) FindCandidates(dataset, identityKey string) ([]string, error) {
	rows, err := ix.q.Query(
		`SELECT resolved_id FROM identity_index
         WHERE dataset = ? AND identity_key = ?
         ORDER BY rowid`,
		dataset, identityKey)
	if err != nil {
		return nil, fmt.Errorf("find candidates %s/%s: %w", dataset, identityKey, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
