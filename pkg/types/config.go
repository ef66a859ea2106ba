package types

import (
	"errors"
	"time"
)

// PendingSettings controls deferred link resolution.
type PendingSettings struct {
	TTL           time.Duration `json:"ttl" yaml:"ttl"`
	MaxAttempts   int           `json:"max_attempts" yaml:"max_attempts"`
	AllowPartial  bool          `json:"allow_partial" yaml:"allow_partial"`
	RetentionDays int           `json:"retention_days" yaml:"retention_days"`
}

// ApplySettings controls the outbound apply step.
type ApplySettings struct {
	BaseURL       string        `json:"base_url" yaml:"base_url"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
	CreateRetries int           `json:"create_retries" yaml:"create_retries"`
}

// Config holds the per-run settings threaded through the engine. There is no
// process-wide mutable configuration; a Config is built once per invocation
// and passed down explicitly.
type Config struct {
	DataDir          string          `json:"data_dir" yaml:"data_dir"`
	Dataset          string          `json:"dataset" yaml:"dataset"`
	IncludeDeleted   bool            `json:"include_deleted" yaml:"include_deleted"`
	ReportItemsLimit int             `json:"report_items_limit" yaml:"report_items_limit"`
	IncludeSkipped   bool            `json:"include_skipped" yaml:"include_skipped"`
	Pending          PendingSettings `json:"pending" yaml:"pending"`
	Apply            ApplySettings   `json:"apply" yaml:"apply"`
}

// Config validation errors.
var (
	ErrDatasetEmpty       = errors.New("dataset must not be empty")
	ErrMaxAttemptsInvalid = errors.New("pending max attempts must be positive")
	ErrItemsLimitInvalid  = errors.New("report items limit must not be negative")
)

// Defaults applied by Normalize when a field is zero.
const (
	DefaultPendingTTL       = 2 * time.Minute
	DefaultMaxAttempts      = 5
	DefaultRetentionDays    = 14
	DefaultReportItemsLimit = 1000
	DefaultApplyTimeout     = 30 * time.Second
	DefaultCreateRetries    = 3
)

// Validate checks that the Config is well-formed, returning a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Dataset == "" {
		return ErrDatasetEmpty
	}
	if c.Pending.MaxAttempts < 0 {
		return ErrMaxAttemptsInvalid
	}
	if c.ReportItemsLimit < 0 {
		return ErrItemsLimitInvalid
	}
	return nil
}

// Normalize fills zero-valued fields with defaults and returns the result.
func (c Config) Normalize() Config {
	if c.Pending.TTL == 0 {
		c.Pending.TTL = DefaultPendingTTL
	}
	if c.Pending.MaxAttempts == 0 {
		c.Pending.MaxAttempts = DefaultMaxAttempts
	}
	if c.Pending.RetentionDays == 0 {
		c.Pending.RetentionDays = DefaultRetentionDays
	}
	if c.ReportItemsLimit == 0 {
		c.ReportItemsLimit = DefaultReportItemsLimit
	}
	if c.Apply.Timeout == 0 {
		c.Apply.Timeout = DefaultApplyTimeout
	}
	if c.Apply.CreateRetries == 0 {
		c.Apply.CreateRetries = DefaultCreateRetries
	}
	return c
}
