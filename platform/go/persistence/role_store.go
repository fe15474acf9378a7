package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenGate-Global/aso-insight/platform/go/authz"
)

const UserRolesTable = Schema + ".user_roles"

// RoleAssignment is the single role row a user may hold.
type RoleAssignment struct {
	UserID         uuid.UUID  `db:"user_id" json:"userId"`
	OrganizationID *uuid.UUID `db:"organization_id" json:"organizationId"`
	Role           authz.Role `db:"role" json:"role"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
}

// Member is a role assignment joined with the member's identity.
type Member struct {
	RoleAssignment
	Email string `db:"email" json:"email"`
}

var (
	// ErrRoleNotFound indicates the user holds no role.
	ErrRoleNotFound = errors.New("role assignment not found")
	// ErrRoleInvalid indicates the assignment broke the scope rule or referenced
	// an unknown user or organization.
	ErrRoleInvalid = errors.New("role assignment invalid")
)

const roleColumns = `user_id, organization_id, role, created_at, updated_at`

// RoleStore exposes persistence helpers for user_roles.
type RoleStore struct {
	pool *pgxpool.Pool
}

// NewRoleStore returns a store; migrations own the table.
func NewRoleStore(ctx context.Context, pool *pgxpool.Pool) (*RoleStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &RoleStore{pool: pool}, nil
}

// AssignRoleParams describes the assignment to write. OrganizationID must be
// nil exactly when Role is SUPER_ADMIN; the table rejects anything else.
type AssignRoleParams struct {
	UserID         uuid.UUID
	OrganizationID *uuid.UUID
	Role           authz.Role
}

// AssignRole inserts or replaces the user's single assignment.
func (s *RoleStore) AssignRole(ctx context.Context, params AssignRoleParams) (RoleAssignment, error) {
	if params.UserID == uuid.Nil {
		return RoleAssignment{}, errors.New("user id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (user_id, organization_id, role)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id) DO UPDATE
            SET organization_id = EXCLUDED.organization_id,
                role = EXCLUDED.role
        RETURNING %s
    `, UserRolesTable, roleColumns), params.UserID, params.OrganizationID, params.Role.String())

	assignment, err := scanRoleAssignment(row)
	if err != nil {
		return RoleAssignment{}, mapRoleError(err)
	}
	return assignment, nil
}

// GetRole returns the user's assignment.
func (s *RoleStore) GetRole(ctx context.Context, userID uuid.UUID) (RoleAssignment, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE user_id = $1
    `, roleColumns, UserRolesTable), userID)

	assignment, err := scanRoleAssignment(row)
	if err != nil {
		return RoleAssignment{}, mapRoleError(err)
	}
	return assignment, nil
}

// RevokeRole deletes the user's assignment and returns what was removed.
func (s *RoleStore) RevokeRole(ctx context.Context, userID uuid.UUID) (RoleAssignment, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        DELETE FROM %s WHERE user_id = $1
        RETURNING %s
    `, UserRolesTable, roleColumns), userID)

	assignment, err := scanRoleAssignment(row)
	if err != nil {
		return RoleAssignment{}, mapRoleError(err)
	}
	return assignment, nil
}

// ListMembersParams paginates ListMembers.
type ListMembersParams struct {
	OrganizationID uuid.UUID
	Page           int
	PageSize       int
}

// ListMembersResult includes the rows and the total count for pagination metadata.
type ListMembersResult struct {
	Members    []Member
	TotalItems int
}

// ListMembers returns the direct members of an organization, highest role first.
func (s *RoleStore) ListMembers(ctx context.Context, params ListMembersParams) (ListMembersResult, error) {
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)

	var total int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE organization_id = $1", UserRolesTable,
	), params.OrganizationID).Scan(&total); err != nil {
		return ListMembersResult{}, fmt.Errorf("count members: %w", err)
	}

	result := ListMembersResult{Members: []Member{}, TotalItems: total}
	if total == 0 {
		return result, nil
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT ur.user_id, ur.organization_id, ur.role, ur.created_at, ur.updated_at, COALESCE(i.email, '')
        FROM %s ur
        JOIN %s i ON i.id = ur.user_id
        WHERE ur.organization_id = $1
        ORDER BY array_position(ARRAY['ORG_ADMIN','MANAGER','ANALYST','VIEWER','CLIENT'], ur.role), i.email NULLS LAST
        LIMIT $2 OFFSET $3
    `, UserRolesTable, IdentitiesTable), params.OrganizationID, params.PageSize, (params.Page-1)*params.PageSize)
	if err != nil {
		return ListMembersResult{}, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			member Member
			role   string
		)
		if err := rows.Scan(
			&member.UserID,
			&member.OrganizationID,
			&role,
			&member.CreatedAt,
			&member.UpdatedAt,
			&member.Email,
		); err != nil {
			return ListMembersResult{}, fmt.Errorf("scan member: %w", err)
		}
		if member.Role, err = authz.ParseRole(role); err != nil {
			return ListMembersResult{}, fmt.Errorf("scan member: %w", err)
		}
		result.Members = append(result.Members, member)
	}
	if err := rows.Err(); err != nil {
		return ListMembersResult{}, fmt.Errorf("iterate members: %w", err)
	}

	return result, nil
}

func mapRoleError(err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrRoleNotFound
	case isCheckViolation(err), isForeignKeyViolation(err):
		return fmt.Errorf("%w: %s", ErrRoleInvalid, violatedConstraintOr(err, "user_roles"))
	default:
		return err
	}
}

func scanRoleAssignment(row pgx.Row) (RoleAssignment, error) {
	var (
		assignment RoleAssignment
		role       string
	)
	if err := row.Scan(
		&assignment.UserID,
		&assignment.OrganizationID,
		&role,
		&assignment.CreatedAt,
		&assignment.UpdatedAt,
	); err != nil {
		return RoleAssignment{}, err
	}

	parsed, err := authz.ParseRole(role)
	if err != nil {
		return RoleAssignment{}, fmt.Errorf("stored role: %w", err)
	}
	assignment.Role = parsed
	return assignment, nil
}
