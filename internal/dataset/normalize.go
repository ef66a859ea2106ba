package dataset

import (
	"fmt"
	"strconv"
	"strings"
)

// CollapseSpaces trims the value and folds interior whitespace runs into
// single spaces.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// DelimitedKey joins the normalized parts with "|". Used to build composite
// match keys; empty parts stay empty rather than being dropped so the key
// shape is stable.
func DelimitedKey(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, part := range parts {
		normalized[i] = CollapseSpaces(part)
	}
	return strings.Join(normalized, "|")
}

// parseIntField parses a trimmed decimal value. ok is false for empty or
// malformed input.
func parseIntField(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseBoolField accepts the spellings the HR export uses for booleans.
func parseBoolField(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y":
		return true, true
	case "0", "false", "no", "n", "":
		return false, s != ""
	default:
		return false, false
	}
}

// Stringify renders a scalar for comparison and key extraction. Numeric
// values render without formatting surprises; nil renders empty.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case bool:
		if t {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
