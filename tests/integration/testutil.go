// Package integration provides CLI integration tests for idsync.
package integration

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var (
	// idsyncBin is the path to the built idsync binary.
	idsyncBin string
	// buildErr captures any build error.
	buildErr error
)

// BuildError wraps a build error with output.
type BuildError struct {
	Err    error
	Output string
}

func (e *BuildError) Error() string {
	return e.Err.Error() + ": " + e.Output
}

// FindProjectRoot finds the project root by walking up and looking for go.mod.
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

// SetIdsyncBin sets the path to the idsync binary (called from TestMain).
func SetIdsyncBin(path string) {
	idsyncBin = path
}

// SetBuildErr sets the build error (called from TestMain).
func SetBuildErr(err error) {
	buildErr = err
}

// TestEnv provides an isolated test environment with its own config and data
// directory. Env entries are appended to the process environment of every
// command the environment runs.
type TestEnv struct {
	t       *testing.T
	TempDir string
	Config  string
	DataDir string
	Env     []string
}

// NewTestEnv creates a new isolated test environment with a default
// config.yaml.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	if buildErr != nil {
		t.Fatalf("failed to build idsync: %v", buildErr)
	}
	if idsyncBin == "" {
		t.Fatal("idsync binary not built (idsyncBin is empty)")
	}

	tempDir := t.TempDir()
	dataDir := filepath.Join(tempDir, "data")
	configDir := filepath.Join(tempDir, "config")

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	env := &TestEnv{
		t:       t,
		TempDir: tempDir,
		Config:  configDir,
		DataDir: dataDir,
	}
	env.WriteConfig()
	return env
}

// WriteConfig writes config.yaml with the default dataset and data directory
// plus any extra YAML lines, replacing the previous file.
func (e *TestEnv) WriteConfig(extra ...string) {
	e.t.Helper()
	content := "dataset: employees\ndata_dir: " + e.DataDir + "\n"
	if len(extra) > 0 {
		content += strings.Join(extra, "\n") + "\n"
	}
	if err := os.WriteFile(filepath.Join(e.Config, "config.yaml"), []byte(content), 0o644); err != nil {
		e.t.Fatalf("failed to write config: %v", err)
	}
}

// WriteFile writes a fixture file under the temp directory and returns its
// path.
func (e *TestEnv) WriteFile(name, content string) string {
	e.t.Helper()
	path := filepath.Join(e.TempDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		e.t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// CmdResult holds the result of an idsync command execution.
type CmdResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// RunIdsync executes the idsync CLI with the given arguments.
// Returns stdout, stderr, and exit code.
func (e *TestEnv) RunIdsync(args ...string) CmdResult {
	e.t.Helper()

	allArgs := append([]string{"--config-dir", e.Config, "--data-dir", e.DataDir}, args...)
	cmd := exec.Command(idsyncBin, allArgs...)
	cmd.Env = append(os.Environ(), e.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			e.t.Fatalf("failed to run idsync: %v", err)
		}
	}

	return CmdResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}
}

// MustRunIdsync executes the idsync CLI and fails the test if it returns
// non-zero.
func (e *TestEnv) MustRunIdsync(args ...string) CmdResult {
	e.t.Helper()
	result := e.RunIdsync(args...)
	if result.ExitCode != 0 {
		e.t.Fatalf("idsync %v failed with exit code %d:\nstdout: %s\nstderr: %s",
			args, result.ExitCode, result.Stdout, result.Stderr)
	}
	return result
}

// ParseJSON parses JSON output into the target type.
func ParseJSON[T any](t *testing.T, jsonStr string) T {
	t.Helper()
	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		t.Fatalf("failed to parse JSON %q: %v", jsonStr, err)
	}
	return result
}

// ReadJSONFile reads and parses a JSON file.
func ReadJSONFile[T any](t *testing.T, path string) T {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file %s: %v", path, err)
	}
	return ParseJSON[T](t, string(data))
}

// PlanSummary mirrors the plan summary counters in JSON output.
type PlanSummary struct {
	RowsTotal     int  `json:"rows_total"`
	ValidRows     int  `json:"valid_rows"`
	FailedRows    int  `json:"failed_rows"`
	PlannedCreate int  `json:"planned_create"`
	PlannedUpdate int  `json:"planned_update"`
	Skipped       int  `json:"skipped"`
	PendingRows   int  `json:"pending_rows"`
	Truncated     bool `json:"truncated"`
}

// PlanFile mirrors the persisted plan artifact.
type PlanFile struct {
	Meta struct {
		RunID   string `json:"run_id"`
		Dataset string `json:"dataset"`
	} `json:"meta"`
	Summary PlanSummary `json:"summary"`
	Items   []struct {
		RowID        string         `json:"row_id"`
		LineNo       int            `json:"line_no"`
		Op           string         `json:"op"`
		ResourceID   string         `json:"resource_id"`
		DesiredState map[string]any `json:"desired_state"`
		Changes      map[string]any `json:"changes"`
		SecretFields []string       `json:"secret_fields"`
	} `json:"items"`
}

// ReportFile mirrors the persisted row-level report.
type ReportFile struct {
	Summary PlanSummary `json:"summary"`
	Items   []struct {
		RowID  string `json:"row_id"`
		LineNo int    `json:"line_no"`
		Status string `json:"status"`
		Op     string `json:"op"`
	} `json:"items"`
	Truncated bool `json:"truncated"`
}

// PendingEntry mirrors one pending-queue row in JSON output.
type PendingEntry struct {
	PendingID   int64
	Dataset     string
	SourceRowID string
	Field       string
	LookupKey   string
	Status      string
	Attempts    int
	Reason      string
}

// RefreshOut mirrors the refresh result in JSON output.
type RefreshOut struct {
	Rows         int
	Inserted     int
	Updated      int
	IndexEntries int
}

// ApplyOut mirrors the apply result in JSON output.
type ApplyOut struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
	Items   []struct {
		RowID      string `json:"row_id"`
		Op         string `json:"op"`
		ResourceID string `json:"resource_id"`
		Status     string `json:"status"`
	} `json:"items"`
}

// CacheStatus mirrors one dataset line of cache status in JSON output.
type CacheStatus struct {
	Dataset     string `json:"dataset"`
	Rows        int    `json:"rows"`
	LastRefresh string `json:"last_refresh"`
}
