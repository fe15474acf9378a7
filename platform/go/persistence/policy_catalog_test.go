package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func installedPolicies() []Policy {
	var policies []Policy
	for table, commands := range ExpectedPolicies {
		for _, cmd := range commands {
			slot := PolicySlot{Table: table, Command: cmd}
			policies = append(policies, Policy{
				Table:   table,
				Name:    slot.PolicyName(),
				Command: cmd,
				Roles:   []string{SessionRole},
			})
		}
	}
	return policies
}

func TestComparePoliciesAcceptsMigratedSet(t *testing.T) {
	t.Parallel()

	report := ComparePolicies(installedPolicies())
	require.True(t, report.OK(), "%+v", report)
}

func TestComparePoliciesRejectsRenamedPolicyInExpectedSlot(t *testing.T) {
	t.Parallel()

	policies := installedPolicies()
	for i := range policies {
		if policies[i].Table == "review_cache" && policies[i].Command == CommandSelect {
			policies[i].Name = "Users can view their org reviews (legacy)"
		}
	}

	report := ComparePolicies(policies)
	require.False(t, report.OK())
	require.Empty(t, report.Duplicated)
	require.Equal(t, []PolicySlot{{Table: "review_cache", Command: CommandSelect}}, report.Missing)
	require.Len(t, report.Misnamed, 1)
	require.Equal(t, "Users can view their org reviews (legacy)", report.Misnamed[0].Name)
}

func TestComparePoliciesReportsLegacyPolicyBesideCurrentOne(t *testing.T) {
	t.Parallel()

	policies := append(installedPolicies(), Policy{
		Table:   "org_app_access",
		Name:    "org_app_access_members_read",
		Command: CommandSelect,
		Roles:   []string{SessionRole},
	})

	report := ComparePolicies(policies)
	require.False(t, report.OK())
	require.Empty(t, report.Missing)
	require.Equal(t, []PolicySlot{{Table: "org_app_access", Command: CommandSelect}}, report.Duplicated)
	require.Len(t, report.Misnamed, 1)
}

func TestComparePoliciesFlagsPublicRole(t *testing.T) {
	t.Parallel()

	policies := installedPolicies()
	policies[0].Roles = []string{"public"}

	report := ComparePolicies(policies)
	require.False(t, report.OK())
	require.Len(t, report.WrongRole, 1)
}
