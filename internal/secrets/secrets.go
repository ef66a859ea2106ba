// Package secrets supplies secret values to the apply step. Secrets never
// travel through plan artifacts; the applier asks a Provider for them at the
// moment a create needs one.
package secrets

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Provider resolves one secret value. ok is false when the provider has no
// value for the key; a later provider in a chain may still have one.
type Provider interface {
	Get(dataset, rowID, field string) (value string, ok bool, err error)
}

// Static serves secrets from an in-memory map keyed by "rowID/field".
// Used by tests and by plan-time secret candidates carried in memory.
type Static map[string]string

// Get implements Provider.
func (s Static) Get(dataset, rowID, field string) (string, bool, error) {
	v, ok := s[rowID+"/"+field]
	return v, ok, nil
}

// StaticKey builds the key Static is indexed by.
func StaticKey(rowID, field string) string { return rowID + "/" + field }

// Env reads one shared secret per field from the environment:
// <prefix><FIELD>, uppercased. Suits bootstrap passwords that are identical
// for every created account.
type Env struct {
	Prefix string
}

// Get implements Provider.
func (e Env) Get(dataset, rowID, field string) (string, bool, error) {
	v, ok := os.LookupEnv(e.Prefix + strings.ToUpper(field))
	return v, ok, nil
}

// File serves secrets from a JSON file of shape
// {"rowID": {"field": "value"}}. The file is read once at construction.
type File struct {
	values map[string]map[string]string
}

// NewFile loads the secret file at path.
func NewFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secret file: %w", err)
	}
	var values map[string]map[string]string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse secret file %s: %w", path, err)
	}
	return &File{values: values}, nil
}

// Get implements Provider.
func (f *File) Get(dataset, rowID, field string) (string, bool, error) {
	v, ok := f.values[rowID][field]
	return v, ok, nil
}

// Null never has a value. The zero provider for dry runs.
type Null struct{}

// Get implements Provider.
func (Null) Get(dataset, rowID, field string) (string, bool, error) {
	return "", false, nil
}

// Chain asks providers in order and returns the first hit.
type Chain []Provider

// Get implements Provider.
func (c Chain) Get(dataset, rowID, field string) (string, bool, error) {
	for _, p := range c {
		v, ok, err := p.Get(dataset, rowID, field)
		if err != nil {
			return "", false, err
		}
		if ok {
			return v, true, nil
		}
	}
	return "", false, nil
}
