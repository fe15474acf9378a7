package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenGate-Global/aso-insight/platform/go/authz"
)

const UserPermissionsView = Schema + ".user_permissions"

// PermissionStore reads the permission view and agency grants. It satisfies
// authz.Source.
type PermissionStore struct {
	pool *pgxpool.Pool
}

var _ authz.Source = (*PermissionStore)(nil)

// NewPermissionStore returns a store over the owner pool.
func NewPermissionStore(ctx context.Context, pool *pgxpool.Pool) (*PermissionStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &PermissionStore{pool: pool}, nil
}

// Permission returns the view row for userID or authz.ErrNoAssignment.
func (s *PermissionStore) Permission(ctx context.Context, userID uuid.UUID) (authz.Permission, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT user_id, organization_id, role, organization_name, organization_slug, organization_tier,
               is_super_admin, is_org_admin, is_platform_role
        FROM %s
        WHERE user_id = $1
    `, UserPermissionsView), userID)

	perm, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Permission{}, authz.ErrNoAssignment
		}
		return authz.Permission{}, fmt.Errorf("read permission: %w", err)
	}
	return perm, nil
}

// ActiveGrant reports whether an active grant links agencyOrgID to clientOrgID.
func (s *PermissionStore) ActiveGrant(ctx context.Context, agencyOrgID, clientOrgID uuid.UUID) (bool, error) {
	var active bool
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT EXISTS (
            SELECT 1 FROM %s
            WHERE agency_org_id = $1 AND client_org_id = $2 AND is_active
        )
    `, AgencyClientsTable), agencyOrgID, clientOrgID).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("read agency grant: %w", err)
	}
	return active, nil
}

func scanPermission(row pgx.Row) (authz.Permission, error) {
	var (
		perm             authz.Permission
		role             string
		orgName, orgSlug *string
		orgTier          *string
	)
	if err := row.Scan(
		&perm.UserID,
		&perm.OrganizationID,
		&role,
		&orgName,
		&orgSlug,
		&orgTier,
		&perm.IsSuperAdmin,
		&perm.IsOrgAdmin,
		&perm.IsPlatformRole,
	); err != nil {
		return authz.Permission{}, err
	}

	parsed, err := authz.ParseRole(role)
	if err != nil {
		return authz.Permission{}, fmt.Errorf("stored role: %w", err)
	}
	perm.Role = parsed
	perm.OrganizationName = deref(orgName)
	perm.OrganizationSlug = deref(orgSlug)
	perm.OrganizationTier = deref(orgTier)
	return perm, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
