package dataset

import (
	"github.com/mesh-intelligence/idsync/internal/store"
	"github.com/mesh-intelligence/idsync/pkg/types"
)

// Employees reconciles the HR employee export against the target user
// directory. Identity is the composite match key (name parts plus personnel
// number) with the personnel tab number as fallback; manager and
// organization references resolve through the identity index.
type Employees struct{}

// NewEmployees returns the employees dataset.
func NewEmployees() Employees { return Employees{} }

func (Employees) Name() string { return "employees" }

func (Employees) CacheSpec() store.CacheSpec {
	return store.CacheSpec{
		Dataset:    "employees",
		Table:      "users",
		PrimaryKey: []string{"_id"},
		Fields: []store.FieldSpec{
			{Name: "_id", Type: store.FieldString},
			{Name: "_ouid", Type: store.FieldInt, Nullable: true},
			{Name: "personnel_number", Type: store.FieldString, Nullable: true},
			{Name: "last_name", Type: store.FieldString},
			{Name: "first_name", Type: store.FieldString},
			{Name: "middle_name", Type: store.FieldString, Nullable: true},
			{Name: "match_key", Type: store.FieldString},
			{Name: "mail", Type: store.FieldString, Nullable: true},
			{Name: "user_name", Type: store.FieldString, Nullable: true},
			{Name: "phone", Type: store.FieldString, Nullable: true},
			{Name: "usr_org_tab_num", Type: store.FieldString, Nullable: true},
			{Name: "organization_id", Type: store.FieldInt, Nullable: true},
			{Name: "position", Type: store.FieldString, Nullable: true},
			{Name: "manager_ouid", Type: store.FieldInt, Nullable: true, Source: "manager_id"},
			{Name: "is_logon_disabled", Type: store.FieldBool, Nullable: true},
			{Name: "account_status", Type: store.FieldString, Nullable: true},
			{Name: "deletion_date", Type: store.FieldDatetime, Nullable: true},
			{Name: "updated_at", Type: store.FieldDatetime, Nullable: true},
			{Name: "_rev", Type: store.FieldString, Nullable: true},
		},
		UniqueIndexes: [][]string{{"_ouid"}, {"match_key"}, {"usr_org_tab_num"}},
		Indexes:       [][]string{{"personnel_number"}, {"organization_id"}},
	}
}

func (Employees) RowIDColumns() []string {
	return []string{"personnelNumber", "personnel_number", "usrOrgTabNum", "usr_org_tab_num"}
}

// Canonicalize maps the HR export columns onto the cache field names, builds
// the composite match key, and splits secrets and link lookups off the
// desired state. Both the export spellings (lastName) and the canonical
// spellings (last_name) are accepted.
func (Employees) Canonicalize(rec types.SourceRecord) types.Candidate {
	get := func(names ...string) string {
		for _, n := range names {
			if v, ok := rec.Fields[n]; ok {
				return v
			}
		}
		return ""
	}

	lastName := CollapseSpaces(get("lastName", "last_name"))
	firstName := CollapseSpaces(get("firstName", "first_name"))
	middleName := CollapseSpaces(get("middleName", "middle_name"))
	personnelNumber := CollapseSpaces(get("personnelNumber", "personnel_number"))
	tabNum := CollapseSpaces(get("usrOrgTabNum", "usr_org_tab_num"))
	matchKey := DelimitedKey(lastName, firstName, middleName, personnelNumber)

	c := types.Candidate{
		RowRef: rec.RowRef,
		DesiredState: map[string]any{
			"last_name":        lastName,
			"first_name":       firstName,
			"middle_name":      middleName,
			"personnel_number": personnelNumber,
			"match_key":        matchKey,
			"mail":             CollapseSpaces(get("email", "mail")),
			"user_name":        CollapseSpaces(get("userName", "user_name")),
		},
	}
	// usr_org_tab_num is unique-indexed; an empty value must stay NULL so
	// rows without one never collide.
	if tabNum != "" {
		c.DesiredState["usr_org_tab_num"] = tabNum
	}

	if phone := CollapseSpaces(get("phone")); phone != "" {
		c.DesiredState["phone"] = phone
	}
	if position := CollapseSpaces(get("position")); position != "" {
		c.DesiredState["position"] = position
	}
	if raw := get("isLogonDisable", "is_logon_disabled"); raw != "" {
		if b, ok := parseBoolField(raw); ok {
			c.DesiredState["is_logon_disabled"] = b
		}
	}

	// Organization references arrive either pre-resolved (numeric id) or as
	// the organization name, which the resolver turns into an id.
	if raw := CollapseSpaces(get("organization_id", "organizationId")); raw != "" {
		if n, ok := parseIntField(raw); ok {
			c.DesiredState["organization_id"] = n
		} else {
			c.DesiredState["organization_id"] = raw
		}
	}

	// The manager column carries the manager's own match key.
	if mgr := CollapseSpaces(get("manager", "manager_id")); mgr != "" {
		c.DesiredState["manager_id"] = mgr
		c.LinkKeys = map[string]map[string]string{
			"manager_id": {"match_key": mgr},
		}
	}

	if pw := get("password"); pw != "" {
		c.SecretCandidates = map[string]string{"password": pw}
	}

	values := map[string]string{}
	if lastName != "" || firstName != "" || middleName != "" || personnelNumber != "" {
		values["match_key"] = matchKey
	}
	if tabNum != "" {
		values["usr_org_tab_num"] = tabNum
	}
	c.Identity = types.Identity{Primary: "match_key", Values: values}
	if values["match_key"] == "" && tabNum != "" {
		c.Identity.Primary = "usr_org_tab_num"
	}
	return c
}

func (Employees) IdentityRules() []IdentityRule {
	return []IdentityRule{
		{Name: "match_key", Build: identityFromValue("match_key")},
		{Name: "usr_org_tab_num", Build: identityFromValue("usr_org_tab_num")},
	}
}

func (Employees) IgnoredFields() []string {
	return []string{"updated_at", "_rev", "deletion_date", "account_status"}
}

func (Employees) LinkRules() []LinkRule {
	return []LinkRule{
		{
			Field:         "manager_id",
			TargetDataset: "employees",
			ResolveKeys:   []LinkKey{{Name: "match_key", Field: "manager_id"}},
			DedupRules:    [][]string{{"organization_id"}},
			CoerceInt:     true,
		},
		{
			Field:         "organization_id",
			TargetDataset: "organizations",
			ResolveKeys:   []LinkKey{{Name: "name", Field: "organization_id"}},
			DedupRules:    [][]string{{"code"}},
			CoerceInt:     true,
		},
	}
}

// employeeAliases maps desired-state fields to the cache columns holding
// them when the names differ.
var employeeAliases = map[string]string{"manager_id": "manager_ouid"}

func (Employees) Changes(existing types.CacheRow, desired map[string]any) map[string]any {
	return FieldChanges(existing, desired, map[string]bool{"password": true}, employeeAliases)
}

// SecretFields requires the initial password on creates. Updates never carry
// a password; resets go through a separate channel.
func (Employees) SecretFields(op types.Op, desired map[string]any, existing types.CacheRow) []string {
	if op == types.OpCreate {
		return []string{"password"}
	}
	return nil
}

func (Employees) SourceRef(identity types.Identity) map[string]any {
	return map[string]any{
		"identity": identity.Primary,
		"value":    identity.PrimaryValue(),
	}
}

// IndexEntries seeds the identity index from one cached directory row. The
// organization key is included so manager dedup can narrow by organization.
func (Employees) IndexEntries(row types.CacheRow) []IndexEntry {
	ouid := Stringify(row["_ouid"])
	if ouid == "" {
		return nil
	}
	var entries []IndexEntry
	for _, name := range []string{"match_key", "usr_org_tab_num", "organization_id"} {
		if v := Stringify(row[name]); v != "" {
			entries = append(entries, IndexEntry{Key: types.IdentityKey(name, v), ResolvedID: ouid})
		}
	}
	return entries
}

// identityFromValue builds an identity rule reading one key off the
// candidate's identity values.
func identityFromValue(name string) func(c types.Candidate) types.Identity {
	return func(c types.Candidate) types.Identity {
		v := c.Identity.Values[name]
		if v == "" {
			return types.Identity{}
		}
		return types.Identity{Primary: name, Values: c.Identity.Values}
	}
}
