package authz

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Role is the closed set of authorization roles. Values are the canonical
// wire and storage spelling.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleOrgAdmin   Role = "ORG_ADMIN"
	RoleManager    Role = "MANAGER"
	RoleAnalyst    Role = "ANALYST"
	RoleViewer     Role = "VIEWER"
	RoleClient     Role = "CLIENT"
)

// ErrUnknownRole is returned by ParseRole for values outside the enumeration.
var ErrUnknownRole = errors.New("unknown role")

// Roles lists every role from most to least privileged.
var Roles = []Role{RoleSuperAdmin, RoleOrgAdmin, RoleManager, RoleAnalyst, RoleViewer, RoleClient}

var roleRank = map[Role]int{
	RoleSuperAdmin: 6,
	RoleOrgAdmin:   5,
	RoleManager:    4,
	RoleAnalyst:    3,
	RoleViewer:     2,
	RoleClient:     1,
}

// legacyAliases must stay in sync with insight.normalize_role.
var legacyAliases = map[string]Role{
	"SUPERADMIN":  RoleSuperAdmin,
	"ORGADMIN":    RoleOrgAdmin,
	"ASO_MANAGER": RoleManager,
}

// ParseRole normalizes historical spellings (any casing, hyphens or spaces
// instead of underscores, a few retired aliases) into a canonical Role.
func ParseRole(raw string) (Role, error) {
	key := normalizeRoleKey(raw)
	if alias, ok := legacyAliases[key]; ok {
		return alias, nil
	}

	role := Role(key)
	if !role.Valid() {
		return "", fmt.Errorf("%w %q", ErrUnknownRole, raw)
	}
	return role, nil
}

func normalizeRoleKey(raw string) string {
	var b strings.Builder
	inSeparator := false
	for _, r := range strings.TrimSpace(raw) {
		if unicode.IsSpace(r) || r == '-' {
			if !inSeparator {
				b.WriteByte('_')
			}
			inSeparator = true
			continue
		}
		inSeparator = false
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// Valid reports whether r is one of the canonical roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Rank orders roles by privilege; unknown roles rank 0.
func (r Role) Rank() int {
	return roleRank[r]
}

// AtLeast reports whether r is as privileged as min or more.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r.Rank() >= min.Rank()
}

// IsPlatform reports whether the role is scoped to no organization.
func (r Role) IsPlatform() bool {
	return r == RoleSuperAdmin
}

func (r Role) String() string {
	return string(r)
}

// UnmarshalText accepts any spelling ParseRole accepts.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
