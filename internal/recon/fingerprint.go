// Package recon implements the reconciliation engine: matching canonical
// candidates against the cache store, resolving link references through the
// batch and identity indexes, and building the run plan.
// See docs/ARCHITECTURE.md § Reconciliation.
package recon

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/mesh-intelligence/idsync/internal/dataset"
)

// Fingerprint hashes the desired state with the ignored fields removed.
// Keys are hashed in sorted order with NUL separators so the result depends
// only on content, never on map iteration. Returns the hex digest and the
// field names that contributed to it.
func Fingerprint(desired map[string]any, ignored []string) (string, []string) {
	skip := make(map[string]bool, len(ignored))
	for _, f := range ignored {
		skip[f] = true
	}

	keys := make([]string, 0, len(desired))
	for k := range desired {
		if skip[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(dataset.Stringify(desired[k])))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), keys
}
