// Unit tests for value normalization and key building.
package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollapseSpaces(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"Ivanov", "Ivanov"},
		{"  Ivanov  ", "Ivanov"},
		{"Ivanov   Ivan", "Ivanov Ivan"},
		{"\tIvanov\n Ivan ", "Ivanov Ivan"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, CollapseSpaces(tc.in), "input %q", tc.in)
	}
}

func TestDelimitedKey(t *testing.T) {
	assert.Equal(t, "Ivanov|Ivan|Ivanovich|100",
		DelimitedKey(" Ivanov ", "Ivan", "Ivanovich", "100"))
	// Empty parts keep their slot so the key shape is stable.
	assert.Equal(t, "Ivanov|Ivan||100", DelimitedKey("Ivanov", "Ivan", "", "100"))
	assert.Equal(t, "|||", DelimitedKey("", "", "", ""))
}

func TestParseIntField(t *testing.T) {
	n, ok := parseIntField(" 42 ")
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	_, ok = parseIntField("")
	assert.False(t, ok)
	_, ok = parseIntField("4x2")
	assert.False(t, ok)
}

func TestParseBoolField(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		present bool
	}{
		{"1", true, true},
		{"true", true, true},
		{"Yes", true, true},
		{"0", false, true},
		{"FALSE", false, true},
		{"no", false, true},
		{"", false, false},
		{"maybe", false, false},
	}
	for _, tc := range tests {
		got, ok := parseBoolField(tc.in)
		assert.Equal(t, tc.present, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{" text ", "text"},
		{true, "1"},
		{false, "0"},
		{42, "42"},
		{int64(42), "42"},
		{float64(42), "42"},
		{3.5, "3.5"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Stringify(tc.in), "input %#v", tc.in)
	}
}
