package authz

import "github.com/google/uuid"

// Permission is the normalized projection of a single role assignment, the Go
// counterpart of a row in insight.user_permissions.
type Permission struct {
	UserID           uuid.UUID  `json:"userId"`
	OrganizationID   *uuid.UUID `json:"organizationId"`
	Role             Role       `json:"role"`
	OrganizationName string     `json:"organizationName,omitempty"`
	OrganizationSlug string     `json:"organizationSlug,omitempty"`
	OrganizationTier string     `json:"organizationTier,omitempty"`
	IsSuperAdmin     bool       `json:"isSuperAdmin"`
	IsOrgAdmin       bool       `json:"isOrgAdmin"`
	IsPlatformRole   bool       `json:"isPlatformRole"`
}

// NewPermission computes the capability flags for an assignment.
func NewPermission(userID uuid.UUID, organizationID *uuid.UUID, role Role) Permission {
	return Permission{
		UserID:         userID,
		OrganizationID: organizationID,
		Role:           role,
		IsSuperAdmin:   role == RoleSuperAdmin && organizationID == nil,
		IsOrgAdmin:     role == RoleOrgAdmin || role == RoleSuperAdmin,
		IsPlatformRole: organizationID == nil,
	}
}

// MemberOf reports direct membership in orgID.
func (p Permission) MemberOf(orgID uuid.UUID) bool {
	return p.OrganizationID != nil && *p.OrganizationID == orgID
}
