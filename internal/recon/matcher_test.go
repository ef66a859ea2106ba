// Unit tests for the matcher: identity rule order, cache hits, source-side
// duplicates and conflicts.
package recon

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/idsync/internal/dataset"
	"github.com/mesh-intelligence/idsync/internal/store"
	"github.com/mesh-intelligence/idsync/pkg/types"
)

// newReconSession opens a store with every shipped dataset and returns an
// autocommit session over it.
func newReconSession(t *testing.T) *store.Session {
	t.Helper()
	st, err := store.Open(t.TempDir(), dataset.Default().CacheSpecs())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	se, err := st.Read()
	require.NoError(t, err)
	return se
}

// seedUser writes one cached directory row with the required fields filled.
func seedUser(t *testing.T, se *store.Session, id string, extra map[string]any) {
	t.Helper()
	row := map[string]any{
		"_id":        id,
		"last_name":  "Ivanov",
		"first_name": "Ivan",
		"match_key":  "Ivanov|Ivan||100",
	}
	for k, v := range extra {
		row[k] = v
	}
	_, err := se.Cache().Upsert("employees", row)
	require.NoError(t, err)
}

func employeeCandidate(rowID string, fields map[string]string) types.Candidate {
	return dataset.NewEmployees().Canonicalize(types.SourceRecord{
		RowRef: types.RowRef{RowID: rowID, LineNo: 2},
		Fields: fields,
	})
}

func ivanov(mail string) map[string]string {
	return map[string]string{
		"lastName":        "Ivanov",
		"firstName":       "Ivan",
		"personnelNumber": "100",
		"email":           mail,
	}
}

func newTestMatcher(se *store.Session, includeDeleted bool) *Matcher {
	return NewMatcher(dataset.NewEmployees(), se.Cache(), includeDeleted, zerolog.Nop())
}

func TestMatcherMatched(t *testing.T) {
	se := newReconSession(t)
	seedUser(t, se, "u-1", map[string]any{"_ouid": 7})
	m := newTestMatcher(se, false)

	outcomes, err := m.MatchAll([]types.Candidate{employeeCandidate("100", ivanov("a@b"))})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	out := outcomes[0]
	require.NotNil(t, out.Row)
	assert.False(t, out.Failed())
	assert.Equal(t, types.MatchMatched, out.Row.MatchStatus)
	assert.Equal(t, "u-1", out.Row.ResourceID)
	assert.NotEmpty(t, out.Row.Fingerprint)
	require.NotNil(t, out.Row.Existing)
	assert.EqualValues(t, 7, out.Row.Existing["_ouid"])
}

func TestMatcherNotFound(t *testing.T) {
	se := newReconSession(t)
	m := newTestMatcher(se, false)

	outcomes, err := m.MatchAll([]types.Candidate{employeeCandidate("100", ivanov("a@b"))})
	require.NoError(t, err)
	require.NotNil(t, outcomes[0].Row)
	assert.Equal(t, types.MatchNotFound, outcomes[0].Row.MatchStatus)
	assert.Empty(t, outcomes[0].Row.ResourceID, "ids are assigned later, per run")
}

func TestMatcherFallbackRule(t *testing.T) {
	se := newReconSession(t)
	// Cached under a different match key but the same tab number: the HR
	// export renamed the person.
	seedUser(t, se, "u-1", map[string]any{
		"match_key":       "Ivanova|Ivan||100",
		"usr_org_tab_num": "T-100",
	})
	m := newTestMatcher(se, false)

	fields := ivanov("a@b")
	fields["usrOrgTabNum"] = "T-100"
	outcomes, err := m.MatchAll([]types.Candidate{employeeCandidate("100", fields)})
	require.NoError(t, err)
	require.NotNil(t, outcomes[0].Row)
	assert.Equal(t, types.MatchMatched, outcomes[0].Row.MatchStatus)
	assert.Equal(t, "usr_org_tab_num", outcomes[0].Row.Identity.Primary,
		"the rule that hit the cache decides the identity")
}

func TestMatcherIdentityMissing(t *testing.T) {
	se := newReconSession(t)
	m := newTestMatcher(se, false)

	outcomes, err := m.MatchAll([]types.Candidate{employeeCandidate("x", map[string]string{"email": "a@b"})})
	require.NoError(t, err)
	out := outcomes[0]
	assert.Nil(t, out.Row)
	assert.True(t, types.HasCode(out.Errors, types.CodeIdentityMissing))
}

func TestMatcherSourceConflict(t *testing.T) {
	se := newReconSession(t)
	m := newTestMatcher(se, false)

	outcomes, err := m.MatchAll([]types.Candidate{
		employeeCandidate("100", ivanov("first@b")),
		employeeCandidate("100-dup", ivanov("second@b")),
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.NotNil(t, outcomes[0].Row, "first occurrence wins")
	assert.Nil(t, outcomes[1].Row)
	assert.True(t, types.HasCode(outcomes[1].Errors, types.CodeConflictSource),
		"same identity with different content is an error")
}

func TestMatcherSourceDuplicateTolerated(t *testing.T) {
	se := newReconSession(t)
	m := newTestMatcher(se, false)

	outcomes, err := m.MatchAll([]types.Candidate{
		employeeCandidate("100", ivanov("a@b")),
		employeeCandidate("100-dup", ivanov("a@b")),
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	out := outcomes[1]
	assert.Nil(t, out.Row, "duplicate carries no plan item")
	assert.False(t, out.Failed())
	assert.True(t, types.HasCode(out.Warnings, types.CodeDuplicateSource))
}

func TestMatcherSoftDeletedRows(t *testing.T) {
	se := newReconSession(t)
	seedUser(t, se, "u-1", map[string]any{"deletion_date": "2026-08-01T00:00:00Z"})

	outcomes, err := newTestMatcher(se, false).MatchAll(
		[]types.Candidate{employeeCandidate("100", ivanov("a@b"))})
	require.NoError(t, err)
	assert.Equal(t, types.MatchNotFound, outcomes[0].Row.MatchStatus,
		"soft-deleted rows do not match by default")

	outcomes, err = newTestMatcher(se, true).MatchAll(
		[]types.Candidate{employeeCandidate("100", ivanov("a@b"))})
	require.NoError(t, err)
	assert.Equal(t, types.MatchMatched, outcomes[0].Row.MatchStatus)
}

func TestMatcherPropagatesCandidateErrors(t *testing.T) {
	se := newReconSession(t)
	m := newTestMatcher(se, false)

	cand := employeeCandidate("100", ivanov("a@b"))
	cand.Errors = []types.Diag{{Stage: types.StageCanon, Code: "CANON_BAD_ROW", Message: "boom"}}
	outcomes, err := m.MatchAll([]types.Candidate{cand})
	require.NoError(t, err)
	assert.Nil(t, outcomes[0].Row)
	assert.True(t, outcomes[0].Failed())
}
