// Unit tests for plan artifact masking: secrets are masked on write,
// stripped on read, and a mask outside a declared secret field rejects the
// plan.
package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/idsync/internal/report"
	"github.com/mesh-intelligence/idsync/pkg/types"
)

func testPlan() types.Plan {
	return types.Plan{
		Meta: types.PlanMeta{RunID: "run-1", Dataset: "employees", GeneratedAt: "2026-08-31T10:00:00Z"},
		Summary: types.PlanSummary{
			RowsTotal: 1, ValidRows: 1, PlannedCreate: 1,
		},
		Items: []types.PlanItem{{
			RowID:      "100",
			LineNo:     2,
			Op:         types.OpCreate,
			ResourceID: "res-1",
			DesiredState: map[string]any{
				"last_name": "Ivanov",
				"password":  "hunter2",
			},
			SecretFields: []string{"password"},
		}},
	}
}

func TestPlanRoundTripMasksSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, WritePlan(path, testPlan()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2", "the secret must never hit disk")
	assert.Contains(t, string(raw), Mask)

	plan, err := ReadPlan(path)
	require.NoError(t, err)
	assert.Equal(t, "run-1", plan.Meta.RunID)
	assert.Equal(t, path, plan.Meta.PlanPath)
	require.Len(t, plan.Items, 1)
	item := plan.Items[0]
	assert.Equal(t, "Ivanov", item.DesiredState["last_name"])
	assert.NotContains(t, item.DesiredState, "password",
		"masked values are stripped so the applier fetches real secrets")
}

func TestWritePlanMasksCredentialNamedFields(t *testing.T) {
	plan := testPlan()
	plan.Items[0].SecretFields = nil
	plan.Items[0].DesiredState = map[string]any{
		"last_name": "Ivanov",
		"password":  "hunter2",
		"profile":   map[string]any{"api_key": "k-123", "position": "engineer"},
	}
	plan.Items[0].Changes = map[string]any{"token": "t-456"}

	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, WritePlan(path, plan))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, leak := range []string{"hunter2", "k-123", "t-456"} {
		assert.NotContains(t, string(raw), leak,
			"credential-shaped fields are masked even when undeclared")
	}
	assert.Contains(t, string(raw), "engineer")

	read, err := ReadPlan(path)
	require.NoError(t, err, "name-masked values read back like declared secrets")
	item := read.Items[0]
	assert.NotContains(t, item.DesiredState, "password")
	assert.NotContains(t, item.Changes, "token")
	profile := item.DesiredState["profile"].(map[string]any)
	assert.NotContains(t, profile, "api_key")
	assert.Equal(t, "engineer", profile["position"])
}

func TestWritePlanLeavesCallerUntouched(t *testing.T) {
	plan := testPlan()
	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, WritePlan(path, plan))
	assert.Equal(t, "hunter2", plan.Items[0].DesiredState["password"],
		"masking copies, it does not mutate the in-memory plan")
}

func TestReadPlanRejectsStrayMask(t *testing.T) {
	plan := testPlan()
	plan.Items[0].DesiredState["last_name"] = Mask
	plan.Items[0].SecretFields = []string{"password"}
	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, WritePlan(path, plan))

	_, err := ReadPlan(path)
	assert.ErrorIs(t, err, types.ErrSecretMasked)
}

func TestReadPlanRejectsBadArtifacts(t *testing.T) {
	dir := t.TempDir()

	garbled := filepath.Join(dir, "garbled.json")
	require.NoError(t, os.WriteFile(garbled, []byte("{not json"), 0o644))
	_, err := ReadPlan(garbled)
	assert.ErrorIs(t, err, types.ErrPlanFormat)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("{}"), 0o644))
	_, err = ReadPlan(empty)
	assert.ErrorIs(t, err, types.ErrPlanFormat, "a plan needs run id and dataset")

	_, err = ReadPlan(filepath.Join(dir, "nope.json"))
	assert.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.json")
	rep := report.Report{
		Summary: types.PlanSummary{RowsTotal: 2, FailedRows: 1},
		Items: []report.Item{{
			RowID: "100", LineNo: 2, Status: report.StatusFailed,
			Errors: []types.Diag{{Stage: types.StageMatch, Code: types.CodeIdentityMissing, Message: "x"}},
		}},
	}
	require.NoError(t, WriteReport(path, rep), "missing directories are created")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), types.CodeIdentityMissing)
}
