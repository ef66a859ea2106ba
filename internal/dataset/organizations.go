package dataset

import (
	"github.com/mesh-intelligence/idsync/internal/store"
	"github.com/mesh-intelligence/idsync/pkg/types"
)

// Organizations is the organizational-unit dataset. It exists both as a
// reconcilable dataset in its own right and as the link target for employee
// organization references.
type Organizations struct{}

// NewOrganizations returns the organizations dataset.
func NewOrganizations() Organizations { return Organizations{} }

func (Organizations) Name() string { return "organizations" }

func (Organizations) CacheSpec() store.CacheSpec {
	return store.CacheSpec{
		Dataset:    "organizations",
		Table:      "organizations",
		PrimaryKey: []string{"_id"},
		Fields: []store.FieldSpec{
			{Name: "_id", Type: store.FieldString},
			{Name: "_ouid", Type: store.FieldInt, Nullable: true},
			{Name: "name", Type: store.FieldString},
			{Name: "code", Type: store.FieldString, Nullable: true},
			{Name: "parent_code", Type: store.FieldString, Nullable: true},
			{Name: "deletion_date", Type: store.FieldDatetime, Nullable: true},
			{Name: "updated_at", Type: store.FieldDatetime, Nullable: true},
			{Name: "_rev", Type: store.FieldString, Nullable: true},
		},
		UniqueIndexes: [][]string{{"_ouid"}, {"code"}},
		Indexes:       [][]string{{"name"}},
	}
}

func (Organizations) RowIDColumns() []string {
	return []string{"code", "name"}
}

func (Organizations) Canonicalize(rec types.SourceRecord) types.Candidate {
	get := func(names ...string) string {
		for _, n := range names {
			if v, ok := rec.Fields[n]; ok {
				return v
			}
		}
		return ""
	}

	name := CollapseSpaces(get("name"))
	code := CollapseSpaces(get("code"))
	c := types.Candidate{
		RowRef: rec.RowRef,
		DesiredState: map[string]any{
			"name": name,
		},
	}
	// code is unique-indexed; keep it NULL when the export omits it.
	if code != "" {
		c.DesiredState["code"] = code
	}
	if parent := CollapseSpaces(get("parentCode", "parent_code")); parent != "" {
		c.DesiredState["parent_code"] = parent
	}

	values := map[string]string{}
	if name != "" {
		values["name"] = name
	}
	if code != "" {
		values["code"] = code
	}
	c.Identity = types.Identity{Primary: "name", Values: values}
	if name == "" && code != "" {
		c.Identity.Primary = "code"
	}
	return c
}

func (Organizations) IdentityRules() []IdentityRule {
	return []IdentityRule{
		{Name: "name", Build: identityFromValue("name")},
		{Name: "code", Build: identityFromValue("code")},
	}
}

func (Organizations) IgnoredFields() []string {
	return []string{"updated_at", "_rev", "deletion_date"}
}

func (Organizations) LinkRules() []LinkRule { return nil }

func (Organizations) Changes(existing types.CacheRow, desired map[string]any) map[string]any {
	return FieldChanges(existing, desired, nil, nil)
}

func (Organizations) SecretFields(op types.Op, desired map[string]any, existing types.CacheRow) []string {
	return nil
}

func (Organizations) SourceRef(identity types.Identity) map[string]any {
	return map[string]any{
		"identity": identity.Primary,
		"value":    identity.PrimaryValue(),
	}
}

func (Organizations) IndexEntries(row types.CacheRow) []IndexEntry {
	ouid := Stringify(row["_ouid"])
	if ouid == "" {
		return nil
	}
	var entries []IndexEntry
	for _, name := range []string{"name", "code"} {
		if v := Stringify(row[name]); v != "" {
			entries = append(entries, IndexEntry{Key: types.IdentityKey(name, v), ResolvedID: ouid})
		}
	}
	return entries
}
