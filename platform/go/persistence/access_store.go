package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AccessStore evaluates the SQL access predicates with an explicit user.
// It is the database-side twin of authz.Evaluator and backs the CLI and the
// integration tests that hold both implementations to the same answers.
type AccessStore struct {
	pool *pgxpool.Pool
}

// NewAccessStore returns a store over the owner pool.
func NewAccessStore(ctx context.Context, pool *pgxpool.Pool) (*AccessStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &AccessStore{pool: pool}, nil
}

// IsPlatformSuperAdmin calls insight.is_platform_super_admin.
func (s *AccessStore) IsPlatformSuperAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.predicate(ctx, fmt.Sprintf(`SELECT %s.is_platform_super_admin($1)`, Schema), userID)
}

// CanAccessOrganization calls insight.can_access_organization.
func (s *AccessStore) CanAccessOrganization(ctx context.Context, userID, orgID uuid.UUID) (bool, error) {
	return s.predicate(ctx, fmt.Sprintf(`SELECT %s.can_access_organization($1, $2)`, Schema), orgID, userID)
}

// CanManageOrganization calls insight.can_manage_organization.
func (s *AccessStore) CanManageOrganization(ctx context.Context, userID, orgID uuid.UUID) (bool, error) {
	return s.predicate(ctx, fmt.Sprintf(`SELECT %s.can_manage_organization($1, $2)`, Schema), orgID, userID)
}

func (s *AccessStore) predicate(ctx context.Context, query string, args ...any) (bool, error) {
	var allowed *bool
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&allowed); err != nil {
		return false, fmt.Errorf("evaluate access predicate: %w", wrapPolicyError(err))
	}
	return allowed != nil && *allowed, nil
}
