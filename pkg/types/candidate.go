package types

// Candidate is the canonicalizer's output for one source record: a typed
// row with an identity, a desired-state map, and optional secret
// placeholders. Secret values never enter DesiredState; they travel in
// SecretCandidates until the apply step fetches real secrets.
type Candidate struct {
	RowRef           RowRef
	Identity         Identity
	DesiredState     map[string]any
	SecretCandidates map[string]string
	// LinkKeys carries per-field lookup key overrides extracted during
	// canonicalization (field -> key name -> value).
	LinkKeys map[string]map[string]string
	Errors   []Diag
	Warnings []Diag
}

// Failed reports whether the candidate carries at least one error.
func (c Candidate) Failed() bool { return len(c.Errors) > 0 }
