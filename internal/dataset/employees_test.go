// Unit tests for the employees dataset: canonicalization, identity rules,
// diff policy, secret policy, and index seeding.
package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/idsync/pkg/types"
)

func employeeRecord(fields map[string]string) types.SourceRecord {
	return types.SourceRecord{
		RowRef: types.RowRef{RowID: "100", LineNo: 2},
		Fields: fields,
	}
}

func TestEmployeesCanonicalize(t *testing.T) {
	ds := NewEmployees()
	c := ds.Canonicalize(employeeRecord(map[string]string{
		"lastName":        "  Ivanov ",
		"firstName":       "Ivan",
		"middleName":      "Ivanovich",
		"personnelNumber": "100",
		"usrOrgTabNum":    "T-100",
		"email":           "ivanov@example.com",
		"userName":        "iivanov",
		"phone":           "555-0100",
		"position":        "Engineer",
		"isLogonDisable":  "0",
	}))

	assert.Equal(t, "Ivanov", c.DesiredState["last_name"])
	assert.Equal(t, "Ivanov|Ivan|Ivanovich|100", c.DesiredState["match_key"])
	assert.Equal(t, "ivanov@example.com", c.DesiredState["mail"])
	assert.Equal(t, "T-100", c.DesiredState["usr_org_tab_num"])
	assert.Equal(t, false, c.DesiredState["is_logon_disabled"])

	assert.Equal(t, "match_key", c.Identity.Primary)
	assert.Equal(t, "Ivanov|Ivan|Ivanovich|100", c.Identity.PrimaryValue())
	assert.Equal(t, "T-100", c.Identity.Values["usr_org_tab_num"])
}

func TestEmployeesCanonicalizeSnakeCase(t *testing.T) {
	ds := NewEmployees()
	c := ds.Canonicalize(employeeRecord(map[string]string{
		"last_name":        "Ivanov",
		"first_name":       "Ivan",
		"personnel_number": "100",
	}))
	assert.Equal(t, "Ivanov|Ivan||100", c.DesiredState["match_key"])
}

func TestEmployeesIdentityFallsBackToTabNum(t *testing.T) {
	ds := NewEmployees()
	c := ds.Canonicalize(employeeRecord(map[string]string{"usrOrgTabNum": "T-100"}))
	assert.Equal(t, "usr_org_tab_num", c.Identity.Primary)
	assert.Equal(t, "T-100", c.Identity.PrimaryValue())

	c = ds.Canonicalize(employeeRecord(nil))
	assert.Empty(t, c.Identity.PrimaryValue(), "no identity without any key column")
}

func TestEmployeesCanonicalizeLinks(t *testing.T) {
	ds := NewEmployees()

	t.Run("manager carries a match-key lookup", func(t *testing.T) {
		c := ds.Canonicalize(employeeRecord(map[string]string{
			"lastName": "Ivanov", "firstName": "Ivan", "personnelNumber": "100",
			"manager": "Petrov|Petr||200",
		}))
		assert.Equal(t, "Petrov|Petr||200", c.DesiredState["manager_id"])
		require.Contains(t, c.LinkKeys, "manager_id")
		assert.Equal(t, "Petrov|Petr||200", c.LinkKeys["manager_id"]["match_key"])
	})

	t.Run("numeric organization reference stays an id", func(t *testing.T) {
		c := ds.Canonicalize(employeeRecord(map[string]string{
			"lastName": "Ivanov", "firstName": "Ivan", "organization_id": "42",
		}))
		assert.Equal(t, 42, c.DesiredState["organization_id"])
	})

	t.Run("organization name needs resolution", func(t *testing.T) {
		c := ds.Canonicalize(employeeRecord(map[string]string{
			"lastName": "Ivanov", "firstName": "Ivan", "organization_id": "Engineering",
		}))
		assert.Equal(t, "Engineering", c.DesiredState["organization_id"])
	})
}

func TestEmployeesSecretsStayOutOfDesiredState(t *testing.T) {
	ds := NewEmployees()
	c := ds.Canonicalize(employeeRecord(map[string]string{
		"lastName": "Ivanov", "firstName": "Ivan", "password": "hunter2",
	}))
	assert.NotContains(t, c.DesiredState, "password")
	assert.Equal(t, "hunter2", c.SecretCandidates["password"])
}

func TestEmployeesIdentityRuleOrder(t *testing.T) {
	rules := NewEmployees().IdentityRules()
	require.Len(t, rules, 2)
	assert.Equal(t, "match_key", rules[0].Name)
	assert.Equal(t, "usr_org_tab_num", rules[1].Name)
}

func TestEmployeesChangesExcludeSecretsAndAliases(t *testing.T) {
	ds := NewEmployees()
	existing := types.CacheRow{
		"last_name":    "Ivanov",
		"manager_ouid": int64(7),
	}
	changes := ds.Changes(existing, map[string]any{
		"last_name":  "Ivanov",
		"manager_id": 7,
		"password":   "hunter2",
	})
	assert.Empty(t, changes, "password never diffs, manager diffs against manager_ouid")
}

func TestEmployeesSecretFields(t *testing.T) {
	ds := NewEmployees()
	assert.Equal(t, []string{"password"}, ds.SecretFields(types.OpCreate, nil, nil))
	assert.Nil(t, ds.SecretFields(types.OpUpdate, nil, nil))
	assert.Nil(t, ds.SecretFields(types.OpSkip, nil, nil))
}

func TestEmployeesIndexEntries(t *testing.T) {
	ds := NewEmployees()

	entries := ds.IndexEntries(types.CacheRow{
		"_ouid":           int64(7),
		"match_key":       "Ivanov|Ivan||100",
		"usr_org_tab_num": "T-100",
		"organization_id": int64(42),
	})
	assert.ElementsMatch(t, []IndexEntry{
		{Key: "match_key:Ivanov|Ivan||100", ResolvedID: "7"},
		{Key: "usr_org_tab_num:T-100", ResolvedID: "7"},
		{Key: "organization_id:42", ResolvedID: "7"},
	}, entries)

	assert.Nil(t, ds.IndexEntries(types.CacheRow{"match_key": "x"}),
		"rows without a directory id seed nothing")
}
