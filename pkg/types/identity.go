package types

// Identity is how one source row claims to be a specific target record: a
// primary key name plus every identity value the row carries. Values is
// keyed by identity key name.
type Identity struct {
	Primary string            `json:"primary"`
	Values  map[string]string `json:"values"`
}

// PrimaryValue returns the value under the primary key name, or "".
func (id Identity) PrimaryValue() string {
	return id.Values[id.Primary]
}

// IdentityKey renders one identity-index lookup key as "name:value".
func IdentityKey(name, value string) string {
	return name + ":" + value
}

// RowRef locates one record in the original source for diagnostics and
// provenance: a stable row id plus the 1-based source line.
type RowRef struct {
	RowID  string `json:"row_id"`
	LineNo int    `json:"line_no"`
}

// SourceRecord is one raw record from a source stream before
// canonicalization.
type SourceRecord struct {
	RowRef RowRef
	Fields map[string]string
}
