// Package dataset declares the per-dataset capability set used by the
// reconciliation engine: cache schema, canonicalization, identity rules,
// link-resolve rules, diff policy, and secret policy. Each dataset
// implements the Dataset interface once and is selected through a Registry.
// See docs/ARCHITECTURE.md § Datasets.
package dataset

import (
	"fmt"

	"github.com/mesh-intelligence/idsync/internal/store"
	"github.com/mesh-intelligence/idsync/pkg/types"
)

// ResourceIDField is the cache column holding the target system's primary
// record id.
const ResourceIDField = "_id"

// IdentityRule builds one identity for a candidate. Rules are tried in
// dataset order: the first rule whose identity matches a cache row wins.
type IdentityRule struct {
	Name  string
	Build func(c types.Candidate) types.Identity
}

// LinkKey names one lookup key for link resolution. Name is the identity
// index key name; Field is the desired-state field the value is read from
// when no canonicalizer override is present.
type LinkKey struct {
	Name  string
	Field string
}

// LinkRule declares resolution for one link field: which dataset the
// reference points into, the ordered lookup keys, and the dedup rules
// (discriminator key tuples) that narrow ambiguous candidates.
type LinkRule struct {
	Field         string
	TargetDataset string
	ResolveKeys   []LinkKey
	DedupRules    [][]string
	CoerceInt     bool
}

// IndexEntry is one identity-index seed derived from a cached target row.
type IndexEntry struct {
	Key        string
	ResolvedID string
}

// Dataset is the capability set for one dataset.
type Dataset interface {
	Name() string

	// CacheSpec declares the cache table for this dataset.
	CacheSpec() store.CacheSpec

	// RowIDColumns returns the source columns tried, in order, for a
	// stable row id. Row ids key pending-link retries across runs, so
	// they must not depend on line position.
	RowIDColumns() []string

	// Canonicalize turns one raw source record into a typed candidate.
	// Row-level problems are reported as diagnostics on the candidate,
	// never as errors.
	Canonicalize(rec types.SourceRecord) types.Candidate

	// IdentityRules returns the ordered identity rules used for matching.
	IdentityRules() []IdentityRule

	// IgnoredFields returns desired-state fields excluded from the
	// content fingerprint (timestamps, revision markers).
	IgnoredFields() []string

	// LinkRules returns the link fields to resolve, in order.
	LinkRules() []LinkRule

	// Changes computes the field-level diff between an existing cache row
	// and the resolved desired state. Secret fields never appear in it.
	Changes(existing types.CacheRow, desired map[string]any) map[string]any

	// SecretFields returns the fields requiring a secret at apply time
	// for the decided operation.
	SecretFields(op types.Op, desired map[string]any, existing types.CacheRow) []string

	// SourceRef builds the provenance block stored on plan items.
	SourceRef(identity types.Identity) map[string]any

	// IndexEntries derives identity-index seeds from one cached target
	// row, used during cache refresh.
	IndexEntries(row types.CacheRow) []IndexEntry
}

// Registry selects datasets by name. A registry is built once per run and
// threaded through explicitly; there is no process-wide instance.
type Registry struct {
	byName map[string]Dataset
	names  []string
}

// NewRegistry returns a registry holding the given datasets.
func NewRegistry(datasets ...Dataset) (*Registry, error) {
	r := &Registry{byName: make(map[string]Dataset, len(datasets))}
	for _, ds := range datasets {
		if _, dup := r.byName[ds.Name()]; dup {
			return nil, fmt.Errorf("duplicate dataset %q", ds.Name())
		}
		r.byName[ds.Name()] = ds
		r.names = append(r.names, ds.Name())
	}
	return r, nil
}

// Default returns the registry with every dataset this build ships.
func Default() *Registry {
	r, err := NewRegistry(NewEmployees(), NewOrganizations())
	if err != nil {
		// Ship-time datasets cannot collide.
		panic(err)
	}
	return r
}

// Get returns the dataset registered under name.
func (r *Registry) Get(name string) (Dataset, error) {
	ds, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrDatasetUnknown, name)
	}
	return ds, nil
}

// Names returns the registered dataset names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// CacheSpecs returns every registered dataset's cache spec, for store setup.
func (r *Registry) CacheSpecs() []store.CacheSpec {
	specs := make([]store.CacheSpec, 0, len(r.names))
	for _, name := range r.names {
		specs = append(specs, r.byName[name].CacheSpec())
	}
	return specs
}
