// Package artifact writes and reads the JSON artifacts a run leaves behind:
// the plan (decided operations) and the report (row-level diagnostics).
// Secret fields are masked on write and stripped on read, so a plan file on
// disk never carries a usable secret.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mesh-intelligence/idsync/internal/report"
	"github.com/mesh-intelligence/idsync/pkg/types"
)

// Mask replaces secret values in written artifacts.
const Mask = "***"

// sensitiveNames are masked by name alone, at any depth, whether or not the
// item declares them. Catches credential-shaped values that leak into the
// desired state through unexpected source columns.
var sensitiveNames = map[string]bool{
	"password":      true,
	"token":         true,
	"authorization": true,
	"api_key":       true,
	"secret":        true,
}

// WritePlan writes the plan to path, masking any value in a field the item
// declares secret or whose name is credential-shaped. Secrets are not
// supposed to reach the plan at all; masking is the backstop for when one
// does.
func WritePlan(path string, plan types.Plan) error {
	masked := plan
	masked.Items = make([]types.PlanItem, len(plan.Items))
	for i, item := range plan.Items {
		masked.Items[i] = maskItem(item)
	}
	return writeJSON(path, masked)
}

// ReadPlan reads a plan written by WritePlan. Masked values in declared or
// credential-shaped fields are stripped so the applier fetches the real
// value from its secret provider; a mask anywhere else means the artifact
// was tampered with or mis-produced, and the plan is rejected.
func ReadPlan(path string) (types.Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.Plan{}, fmt.Errorf("read plan: %w", err)
	}
	var plan types.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return types.Plan{}, fmt.Errorf("%w: %v", types.ErrPlanFormat, err)
	}
	if plan.Meta.RunID == "" || plan.Meta.Dataset == "" {
		return types.Plan{}, fmt.Errorf("%w: missing run id or dataset", types.ErrPlanFormat)
	}
	for i, item := range plan.Items {
		cleaned, err := unmaskItem(item)
		if err != nil {
			return types.Plan{}, err
		}
		plan.Items[i] = cleaned
	}
	plan.Meta.PlanPath = path
	return plan, nil
}

// WriteReport writes the row-level report to path.
func WriteReport(path string, rep report.Report) error {
	return writeJSON(path, rep)
}

func maskItem(item types.PlanItem) types.PlanItem {
	declared := fieldSet(item.SecretFields)
	item.DesiredState = maskMap(item.DesiredState, declared)
	item.Changes = maskMap(item.Changes, declared)
	return item
}

// secretName reports whether a field must never leave the process in the
// clear: declared secret for this item, or credential-shaped by name.
func secretName(field string, declared map[string]bool) bool {
	return declared[field] || sensitiveNames[strings.ToLower(field)]
}

// maskMap returns a copy of m with every secret-named value replaced by the
// mask, descending into nested maps. The input is left untouched.
func maskMap(m map[string]any, declared map[string]bool) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch {
		case secretName(k, declared):
			out[k] = Mask
		default:
			if child, ok := v.(map[string]any); ok {
				out[k] = maskMap(child, declared)
			} else {
				out[k] = v
			}
		}
	}
	return out
}

func unmaskItem(item types.PlanItem) (types.PlanItem, error) {
	declared := fieldSet(item.SecretFields)
	for _, m := range []map[string]any{item.DesiredState, item.Changes} {
		if err := stripMasks(m, declared, item.RowID); err != nil {
			return item, err
		}
	}
	return item, nil
}

// stripMasks deletes masked secret-named values in place so the applier
// fetches the real value from its provider. A mask under any other name
// means the artifact was tampered with or mis-produced.
func stripMasks(m map[string]any, declared map[string]bool, rowID string) error {
	for k, v := range m {
		if v == Mask {
			if !secretName(k, declared) {
				return fmt.Errorf("%w: field %s of row %s", types.ErrSecretMasked, k, rowID)
			}
			delete(m, k)
			continue
		}
		if child, ok := v.(map[string]any); ok {
			if err := stripMasks(child, declared, rowID); err != nil {
				return err
			}
		}
	}
	return nil
}

func fieldSet(fields []string) map[string]bool {
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

func writeJSON(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create artifact dir: %w", err)
		}
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}
