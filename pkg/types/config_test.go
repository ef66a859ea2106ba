// Unit tests for run configuration validation and defaulting.
package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{
			name: "valid",
			cfg:  Config{Dataset: "employees"},
			want: nil,
		},
		{
			name: "empty dataset",
			cfg:  Config{},
			want: ErrDatasetEmpty,
		},
		{
			name: "negative attempts",
			cfg:  Config{Dataset: "employees", Pending: PendingSettings{MaxAttempts: -1}},
			want: ErrMaxAttemptsInvalid,
		},
		{
			name: "negative items limit",
			cfg:  Config{Dataset: "employees", ReportItemsLimit: -1},
			want: ErrItemsLimitInvalid,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.want)
			}
		})
	}
}

func TestConfigNormalize(t *testing.T) {
	cfg := Config{Dataset: "employees"}.Normalize()
	assert.Equal(t, DefaultPendingTTL, cfg.Pending.TTL)
	assert.Equal(t, DefaultMaxAttempts, cfg.Pending.MaxAttempts)
	assert.Equal(t, DefaultRetentionDays, cfg.Pending.RetentionDays)
	assert.Equal(t, DefaultReportItemsLimit, cfg.ReportItemsLimit)
	assert.Equal(t, DefaultApplyTimeout, cfg.Apply.Timeout)
	assert.Equal(t, DefaultCreateRetries, cfg.Apply.CreateRetries)

	custom := Config{
		Dataset: "employees",
		Pending: PendingSettings{TTL: time.Hour, MaxAttempts: 9},
	}.Normalize()
	assert.Equal(t, time.Hour, custom.Pending.TTL, "explicit values survive")
	assert.Equal(t, 9, custom.Pending.MaxAttempts)
}
