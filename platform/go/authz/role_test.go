package authz

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "SUPER_ADMIN", want: RoleSuperAdmin},
		{in: "super_admin", want: RoleSuperAdmin},
		{in: "Super-Admin", want: RoleSuperAdmin},
		{in: " super admin ", want: RoleSuperAdmin},
		{in: "superadmin", want: RoleSuperAdmin},
		{in: "org_admin", want: RoleOrgAdmin},
		{in: "OrgAdmin", want: RoleOrgAdmin},
		{in: "aso_manager", want: RoleManager},
		{in: "manager", want: RoleManager},
		{in: "analyst", want: RoleAnalyst},
		{in: "Viewer", want: RoleViewer},
		{in: "client", want: RoleClient},
		{in: "", wantErr: true},
		{in: "owner", wantErr: true},
		{in: "org__admin", wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseRole(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestRoleOrdering(t *testing.T) {
	t.Parallel()

	for i := 1; i < len(Roles); i++ {
		require.Greater(t, Roles[i-1].Rank(), Roles[i].Rank(), "%s should outrank %s", Roles[i-1], Roles[i])
	}

	require.True(t, RoleSuperAdmin.AtLeast(RoleOrgAdmin))
	require.True(t, RoleOrgAdmin.AtLeast(RoleOrgAdmin))
	require.False(t, RoleManager.AtLeast(RoleOrgAdmin))
	require.True(t, RoleClient.AtLeast(RoleClient))
	require.False(t, Role("OWNER").AtLeast(RoleClient))
}

func TestRoleIsPlatform(t *testing.T) {
	t.Parallel()

	for _, role := range Roles {
		require.Equal(t, role == RoleSuperAdmin, role.IsPlatform(), role.String())
	}
}

func TestRoleUnmarshalJSONNormalizes(t *testing.T) {
	t.Parallel()

	var payload struct {
		Role Role `json:"role"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"role":"org-admin"}`), &payload))
	require.Equal(t, RoleOrgAdmin, payload.Role)

	require.Error(t, json.Unmarshal([]byte(`{"role":"root"}`), &payload))

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	require.JSONEq(t, `{"role":"ORG_ADMIN"}`, string(out))
}

func TestNewPermissionFlags(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	orgID := uuid.New()

	for _, role := range Roles {
		role := role
		t.Run(role.String(), func(t *testing.T) {
			t.Parallel()

			platform := NewPermission(userID, nil, role)
			require.Equal(t, role == RoleSuperAdmin, platform.IsSuperAdmin)
			require.True(t, platform.IsPlatformRole)

			scoped := NewPermission(userID, &orgID, role)
			require.False(t, scoped.IsSuperAdmin, "an organization-scoped row is never a super admin")
			require.False(t, scoped.IsPlatformRole)
			require.Equal(t, role == RoleOrgAdmin || role == RoleSuperAdmin, scoped.IsOrgAdmin)
			require.True(t, scoped.MemberOf(orgID))
			require.False(t, scoped.MemberOf(uuid.New()))
		})
	}
}
