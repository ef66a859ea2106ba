// Unit tests for report collection and the detail cap.
package report

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mesh-intelligence/idsync/pkg/types"
)

func TestCollectorSkipsCleanPlannedRows(t *testing.T) {
	c := NewCollector(0)
	c.Add(types.RowRef{RowID: "1", LineNo: 2}, StatusPlanned, types.OpCreate, nil, nil)
	c.Add(types.RowRef{RowID: "2", LineNo: 3}, StatusPlanned, types.OpUpdate, nil,
		[]types.Diag{{Stage: types.StageResolve, Code: types.CodeResolvePending, Message: "x"}})
	c.Add(types.RowRef{RowID: "3", LineNo: 4}, StatusFailed, "",
		[]types.Diag{{Stage: types.StageMatch, Code: types.CodeIdentityMissing, Message: "y"}}, nil)

	rep := c.Build(types.PlanSummary{RowsTotal: 3})
	assert.Equal(t, 3, rep.Summary.RowsTotal)
	assert.Len(t, rep.Items, 2, "clean planned rows live only in the counters")
	assert.Equal(t, "2", rep.Items[0].RowID)
	assert.Equal(t, "3", rep.Items[1].RowID)
	assert.False(t, rep.Truncated)
}

func TestCollectorCapsItems(t *testing.T) {
	c := NewCollector(2)
	for i := 0; i < 5; i++ {
		c.Add(types.RowRef{RowID: fmt.Sprintf("%d", i)}, StatusFailed, "",
			[]types.Diag{{Code: "X", Message: "boom"}}, nil)
	}
	rep := c.Build(types.PlanSummary{FailedRows: 5})
	assert.Len(t, rep.Items, 2)
	assert.True(t, rep.Truncated)
	assert.Equal(t, 5, rep.Summary.FailedRows, "counters come from the plan, uncapped")
}
