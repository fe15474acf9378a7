package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
)

// Repository defines the persistence operations required by the roles service.
type Repository interface {
	Assign(ctx context.Context, params persistence.AssignRoleParams) (persistence.RoleAssignment, error)
	Get(ctx context.Context, userID uuid.UUID) (persistence.RoleAssignment, error)
	Revoke(ctx context.Context, userID uuid.UUID) (persistence.RoleAssignment, error)
	ListMembers(ctx context.Context, params persistence.ListMembersParams) (persistence.ListMembersResult, error)
	FindIdentityByEmail(ctx context.Context, email string) (persistence.Identity, error)
}

type postgresRepository struct {
	roles      *persistence.RoleStore
	identities *persistence.IdentityStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(roles *persistence.RoleStore, identities *persistence.IdentityStore) Repository {
	if roles == nil {
		panic("role store is required")
	}
	if identities == nil {
		panic("identity store is required")
	}
	return &postgresRepository{roles: roles, identities: identities}
}

func (r *postgresRepository) Assign(ctx context.Context, params persistence.AssignRoleParams) (persistence.RoleAssignment, error) {
	return r.roles.AssignRole(ctx, params)
}

func (r *postgresRepository) Get(ctx context.Context, userID uuid.UUID) (persistence.RoleAssignment, error) {
	return r.roles.GetRole(ctx, userID)
}

func (r *postgresRepository) Revoke(ctx context.Context, userID uuid.UUID) (persistence.RoleAssignment, error) {
	return r.roles.RevokeRole(ctx, userID)
}

func (r *postgresRepository) ListMembers(ctx context.Context, params persistence.ListMembersParams) (persistence.ListMembersResult, error) {
	return r.roles.ListMembers(ctx, params)
}

func (r *postgresRepository) FindIdentityByEmail(ctx context.Context, email string) (persistence.Identity, error) {
	return r.identities.FindIdentityByEmail(ctx, email)
}
