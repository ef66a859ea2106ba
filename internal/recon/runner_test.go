// End-to-end tests for the two-phase reconciliation run: plan building,
// same-batch references, deferred retry from snapshots, and TTL expiry.
package recon

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/idsync/internal/dataset"
	"github.com/mesh-intelligence/idsync/internal/report"
	"github.com/mesh-intelligence/idsync/internal/store"
	"github.com/mesh-intelligence/idsync/pkg/types"
)

func newTestRunner(t *testing.T, cfg types.Config) (*Runner, *store.Store) {
	t.Helper()
	reg := dataset.Default()
	st, err := store.Open(t.TempDir(), reg.CacheSpecs())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	if cfg.Dataset == "" {
		cfg.Dataset = "employees"
	}
	r := NewRunner(st, reg, cfg, zerolog.Nop())
	var n int
	r.newID = func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}
	return r, st
}

func record(rowID string, fields map[string]string) types.SourceRecord {
	return types.SourceRecord{
		RowRef: types.RowRef{RowID: rowID, LineNo: 2},
		Fields: fields,
	}
}

func TestRunnerPlansCreates(t *testing.T) {
	r, _ := newTestRunner(t, types.Config{})

	res, err := r.Plan([]types.SourceRecord{
		record("100", map[string]string{
			"lastName": "Ivanov", "firstName": "Ivan", "personnelNumber": "100",
		}),
		record("200", map[string]string{
			"lastName": "Petrov", "firstName": "Petr", "personnelNumber": "200",
		}),
	}, "hr.csv")
	require.NoError(t, err)

	sum := res.Plan.Summary
	assert.Equal(t, 2, sum.RowsTotal)
	assert.Equal(t, 2, sum.ValidRows)
	assert.Equal(t, 2, sum.PlannedCreate)
	assert.Zero(t, sum.FailedRows)
	require.Len(t, res.Plan.Items, 2)
	for _, item := range res.Plan.Items {
		assert.Equal(t, types.OpCreate, item.Op)
		assert.NotEmpty(t, item.ResourceID)
	}
	assert.Equal(t, "gen-1", res.Plan.Meta.RunID)
	assert.Equal(t, "hr.csv", res.Plan.Meta.SourcePath)
	assert.Equal(t, "employees", res.Plan.Meta.Dataset)
	assert.Equal(t, sum, res.Report.Summary)
	assert.Empty(t, res.Report.Items, "clean planned rows report counters only")
}

func TestRunnerResolvesSameBatchReference(t *testing.T) {
	r, _ := newTestRunner(t, types.Config{})

	res, err := r.Plan([]types.SourceRecord{
		record("100", map[string]string{
			"lastName": "Ivanov", "firstName": "Ivan", "personnelNumber": "100",
			"manager": "Petrov|Petr||200",
		}),
		record("200", map[string]string{
			"lastName": "Petrov", "firstName": "Petr", "personnelNumber": "200",
		}),
	}, "hr.csv")
	require.NoError(t, err)

	sum := res.Plan.Summary
	assert.Equal(t, 2, sum.PlannedCreate)
	assert.Zero(t, sum.PendingRows, "the manager exists in the same batch")

	var ivanov, petrov types.PlanItem
	for _, item := range res.Plan.Items {
		switch item.RowID {
		case "100":
			ivanov = item
		case "200":
			petrov = item
		}
	}
	assert.Equal(t, petrov.ResourceID, ivanov.DesiredState["manager_id"],
		"the reference resolves to the manager's pre-assigned id")
}

func TestRunnerIdempotentRerun(t *testing.T) {
	r, st := newTestRunner(t, types.Config{})

	// Simulate the apply step writing the created row back to the cache.
	err := st.WithTx(func(se *store.Session) error {
		_, err := se.Cache().Upsert("employees", map[string]any{
			"_id":              "gen-2",
			"last_name":        "Ivanov",
			"first_name":       "Ivan",
			"personnel_number": "100",
			"match_key":        "Ivanov|Ivan||100",
		})
		return err
	})
	require.NoError(t, err)

	res, err := r.Plan([]types.SourceRecord{
		record("100", map[string]string{
			"lastName": "Ivanov", "firstName": "Ivan", "personnelNumber": "100",
		}),
	}, "hr.csv")
	require.NoError(t, err)

	sum := res.Plan.Summary
	assert.Equal(t, 1, sum.RowsTotal)
	assert.Equal(t, 1, sum.Skipped, "an unchanged row plans nothing")
	assert.Zero(t, sum.PlannedCreate)
	assert.Zero(t, sum.PlannedUpdate)
	assert.Empty(t, res.Plan.Items, "skips are omitted unless requested")
	require.Len(t, res.Report.Items, 1)
	assert.Equal(t, report.StatusSkipped, res.Report.Items[0].Status)
}

func TestRunnerIncludeSkippedItems(t *testing.T) {
	r, st := newTestRunner(t, types.Config{IncludeSkipped: true})
	err := st.WithTx(func(se *store.Session) error {
		_, err := se.Cache().Upsert("employees", map[string]any{
			"_id":              "u-1",
			"last_name":        "Ivanov",
			"first_name":       "Ivan",
			"personnel_number": "100",
			"match_key":        "Ivanov|Ivan||100",
		})
		return err
	})
	require.NoError(t, err)

	res, err := r.Plan([]types.SourceRecord{
		record("100", map[string]string{
			"lastName": "Ivanov", "firstName": "Ivan", "personnelNumber": "100",
		}),
	}, "hr.csv")
	require.NoError(t, err)
	require.Len(t, res.Plan.Items, 1)
	assert.Equal(t, types.OpSkip, res.Plan.Items[0].Op)
}

func TestRunnerDefersAndRetriesFromSnapshot(t *testing.T) {
	r, st := newTestRunner(t, types.Config{})

	res, err := r.Plan([]types.SourceRecord{
		record("100", map[string]string{
			"lastName": "Ivanov", "firstName": "Ivan", "personnelNumber": "100",
			"manager": "Boss|Big||999",
		}),
	}, "hr.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Plan.Summary.PendingRows)
	assert.Empty(t, res.Plan.Items)
	require.Len(t, res.Report.Items, 1)
	assert.Equal(t, report.StatusPending, res.Report.Items[0].Status)

	// The manager appears in the directory between runs.
	err = st.WithTx(func(se *store.Session) error {
		return se.Identity().UpsertIdentity("employees", "match_key:Boss|Big||999", "7")
	})
	require.NoError(t, err)

	// No fresh source rows: the deferred row retries from its snapshot.
	res, err = r.Plan(nil, "hr.csv")
	require.NoError(t, err)
	sum := res.Plan.Summary
	assert.Equal(t, 1, sum.RowsTotal)
	assert.Equal(t, 1, sum.PlannedCreate)
	assert.Zero(t, sum.PendingRows)
	require.Len(t, res.Plan.Items, 1)
	item := res.Plan.Items[0]
	assert.Equal(t, "100", item.RowID)
	assert.Equal(t, 7, item.DesiredState["manager_id"])
	assert.Equal(t, "gen-2", item.ResourceID,
		"the id assigned at defer time sticks across runs")

	se, err := st.Read()
	require.NoError(t, err)
	links, err := se.Pending().ListPendingForSource("employees", "100")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, types.PendingStatusResolved, links[0].Status)
}

func TestRunnerFreshRowSupersedesSnapshot(t *testing.T) {
	r, _ := newTestRunner(t, types.Config{})

	first := record("100", map[string]string{
		"lastName": "Ivanov", "firstName": "Ivan", "personnelNumber": "100",
		"manager": "Boss|Big||999",
	})
	res, err := r.Plan([]types.SourceRecord{first}, "hr.csv")
	require.NoError(t, err)
	require.Equal(t, 1, res.Plan.Summary.PendingRows)

	// The next export drops the manager column entirely.
	res, err = r.Plan([]types.SourceRecord{
		record("100", map[string]string{
			"lastName": "Ivanov", "firstName": "Ivan", "personnelNumber": "100",
		}),
	}, "hr.csv")
	require.NoError(t, err)
	sum := res.Plan.Summary
	assert.Equal(t, 1, sum.RowsTotal, "the snapshot is not retried alongside fresh data")
	assert.Equal(t, 1, sum.PlannedCreate)
}

func TestRunnerExpiredPendingSurfacesAsFailure(t *testing.T) {
	r, _ := newTestRunner(t, types.Config{
		Pending: types.PendingSettings{TTL: time.Minute},
	})

	res, err := r.Plan([]types.SourceRecord{
		record("100", map[string]string{
			"lastName": "Ivanov", "firstName": "Ivan", "personnelNumber": "100",
			"manager": "Boss|Big||999",
		}),
	}, "hr.csv")
	require.NoError(t, err)
	require.Equal(t, 1, res.Plan.Summary.PendingRows)

	r.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	res, err = r.Plan(nil, "hr.csv")
	require.NoError(t, err)

	require.Len(t, res.Expired, 1)
	sum := res.Plan.Summary
	assert.Equal(t, 1, sum.FailedRows, "an expired link fails its row")
	require.Len(t, res.Report.Items, 1)
	item := res.Report.Items[0]
	assert.Equal(t, report.StatusFailed, item.Status)
	assert.True(t, types.HasCode(item.Errors, types.CodeResolveExpired))
}

func TestRunnerCountsSourceConflicts(t *testing.T) {
	r, _ := newTestRunner(t, types.Config{})

	res, err := r.Plan([]types.SourceRecord{
		record("100", map[string]string{
			"lastName": "Ivanov", "firstName": "Ivan", "personnelNumber": "100",
			"email": "a@b",
		}),
		record("100-dup", map[string]string{
			"lastName": "Ivanov", "firstName": "Ivan", "personnelNumber": "100",
			"email": "different@b",
		}),
	}, "hr.csv")
	require.NoError(t, err)

	sum := res.Plan.Summary
	assert.Equal(t, 2, sum.RowsTotal)
	assert.Equal(t, 1, sum.PlannedCreate)
	assert.Equal(t, 1, sum.FailedRows)
	require.Len(t, res.Report.Items, 1)
	assert.True(t, types.HasCode(res.Report.Items[0].Errors, types.CodeConflictSource))
}

func TestRunnerValidatesConfig(t *testing.T) {
	r, _ := newTestRunner(t, types.Config{Dataset: "employees"})
	r.cfg.Dataset = ""
	_, err := r.Plan(nil, "hr.csv")
	assert.ErrorIs(t, err, types.ErrDatasetEmpty)

	r.cfg.Dataset = "nope"
	_, err = r.Plan(nil, "hr.csv")
	assert.ErrorIs(t, err, types.ErrDatasetUnknown)
}
