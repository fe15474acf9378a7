package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/aso-insight/domains/roles/be/repo"
	"github.com/zenGate-Global/aso-insight/platform/go/auditlog"
	"github.com/zenGate-Global/aso-insight/platform/go/authz"
	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
	"github.com/zenGate-Global/aso-insight/platform/go/problem"
)

// Domain sentinel errors.
var (
	ErrNotFound  = fmt.Errorf("role assignment %w", problem.ErrNotFound)
	ErrForbidden = fmt.Errorf("role change %w", problem.ErrForbidden)
)

// Authorizer reads the caller's projection and drops stale ones after writes.
type Authorizer interface {
	Permission(ctx context.Context, userID uuid.UUID) (authz.Permission, error)
	CanAccessOrganization(ctx context.Context, userID, orgID uuid.UUID) (bool, error)
	Invalidate(userIDs ...uuid.UUID)
}

// Assignment is the domain view of a user's role.
type Assignment struct {
	UserID         uuid.UUID  `json:"userId"`
	OrganizationID *uuid.UUID `json:"organizationId"`
	Role           authz.Role `json:"role"`
	Email          string     `json:"email,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// AssignInput describes the role to write. OrganizationID must be nil
// exactly when Role is SUPER_ADMIN.
type AssignInput struct {
	OrganizationID *uuid.UUID `json:"organizationId"`
	Role           string     `json:"role"`
}

// AddMemberInput assigns a role in an organization to the identity owning Email.
type AddMemberInput struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ListOptions controls pagination.
type ListOptions struct {
	Page     int
	PageSize int
}

// ListResult wraps a page of members with pagination metadata.
type ListResult struct {
	Members    []Assignment `json:"items"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	TotalItems int          `json:"totalItems"`
	TotalPages int          `json:"totalPages"`
}

// Service defines the business operations for role management.
type Service interface {
	Assign(ctx context.Context, actor, userID uuid.UUID, input AssignInput) (Assignment, error)
	AddMember(ctx context.Context, actor, orgID uuid.UUID, input AddMemberInput) (Assignment, error)
	Get(ctx context.Context, actor, userID uuid.UUID) (Assignment, error)
	Revoke(ctx context.Context, actor, userID uuid.UUID) error
	ListMembers(ctx context.Context, actor, orgID uuid.UUID, opts ListOptions) (ListResult, error)
}

type service struct {
	repo  repo.Repository
	authz Authorizer
	audit *auditlog.Recorder
}

// New constructs a roles Service. audit may be nil.
func New(r repo.Repository, authorizer Authorizer, audit *auditlog.Recorder) Service {
	if r == nil {
		panic("roles repository is required")
	}
	if authorizer == nil {
		panic("authorizer is required")
	}
	return &service{repo: r, authz: authorizer, audit: audit}
}

func (s *service) Assign(ctx context.Context, actor, userID uuid.UUID, input AssignInput) (Assignment, error) {
	if userID == uuid.Nil {
		return Assignment{}, problem.Invalid("userId", "userId is required")
	}

	role, err := validateAssignment(input)
	if err != nil {
		return Assignment{}, err
	}

	if err := s.authorizeWrite(ctx, actor, userID, input.OrganizationID, role); err != nil {
		return Assignment{}, err
	}

	record, err := s.repo.Assign(ctx, persistence.AssignRoleParams{
		UserID:         userID,
		OrganizationID: input.OrganizationID,
		Role:           role,
	})
	if err != nil {
		return Assignment{}, mapPersistenceError(err)
	}

	s.authz.Invalidate(userID)
	s.audit.Record(ctx, auditlog.Event{
		Action:         auditlog.ActionRoleAssign,
		ResourceType:   "user_role",
		ResourceID:     userID.String(),
		OrganizationID: record.OrganizationID,
		Details:        map[string]any{"role": record.Role.String()},
	})
	return mapAssignment(record, ""), nil
}

func (s *service) AddMember(ctx context.Context, actor, orgID uuid.UUID, input AddMemberInput) (Assignment, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return Assignment{}, problem.Invalid("email", "a valid email is required")
	}
	if err := s.requireAccess(ctx, actor, orgID); err != nil {
		return Assignment{}, err
	}

	identity, err := s.repo.FindIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, persistence.ErrIdentityNotFound) {
			return Assignment{}, problem.Invalid("email", "no identity is registered for this email")
		}
		return Assignment{}, err
	}

	assignment, err := s.Assign(ctx, actor, identity.ID, AssignInput{OrganizationID: &orgID, Role: input.Role})
	if err != nil {
		return Assignment{}, err
	}
	assignment.Email = identity.Email
	return assignment, nil
}

func (s *service) Get(ctx context.Context, actor, userID uuid.UUID) (Assignment, error) {
	record, err := s.repo.Get(ctx, userID)
	if err != nil {
		return Assignment{}, mapPersistenceError(err)
	}
	if err := s.visible(ctx, actor, record); err != nil {
		return Assignment{}, err
	}
	return mapAssignment(record, ""), nil
}

func (s *service) Revoke(ctx context.Context, actor, userID uuid.UUID) error {
	current, err := s.repo.Get(ctx, userID)
	if err != nil {
		return mapPersistenceError(err)
	}
	if err := s.visible(ctx, actor, current); err != nil {
		return err
	}

	if err := s.authorizeWrite(ctx, actor, userID, current.OrganizationID, current.Role); err != nil {
		return err
	}

	removed, err := s.repo.Revoke(ctx, userID)
	if err != nil {
		return mapPersistenceError(err)
	}

	s.authz.Invalidate(userID)
	s.audit.Record(ctx, auditlog.Event{
		Action:         auditlog.ActionRoleRevoke,
		ResourceType:   "user_role",
		ResourceID:     userID.String(),
		OrganizationID: removed.OrganizationID,
		Details:        map[string]any{"role": removed.Role.String()},
	})
	return nil
}

func (s *service) ListMembers(ctx context.Context, actor, orgID uuid.UUID, opts ListOptions) (ListResult, error) {
	if err := s.requireAccess(ctx, actor, orgID); err != nil {
		return ListResult{}, err
	}

	page, pageSize := normalizePage(opts.Page, opts.PageSize)
	result, err := s.repo.ListMembers(ctx, persistence.ListMembersParams{
		OrganizationID: orgID,
		Page:           page,
		PageSize:       pageSize,
	})
	if err != nil {
		return ListResult{}, err
	}

	members := make([]Assignment, 0, len(result.Members))
	for _, m := range result.Members {
		members = append(members, mapAssignment(m.RoleAssignment, m.Email))
	}

	return ListResult{
		Members:    members,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: result.TotalItems,
		TotalPages: problem.TotalPages(result.TotalItems, pageSize),
	}, nil
}

// authorizeWrite enforces who may set or remove a role scoped to orgID.
// Super admins may do anything. Org admins may manage non-platform roles of
// other users inside their own organization only, including users that
// currently belong to it.
func (s *service) authorizeWrite(ctx context.Context, actor, target uuid.UUID, orgID *uuid.UUID, role authz.Role) error {
	perm, err := s.actorPermission(ctx, actor)
	if err != nil {
		return err
	}
	if perm.IsSuperAdmin {
		return nil
	}

	if orgID == nil || role == authz.RoleSuperAdmin {
		return ErrForbidden
	}
	if err := s.requireAccess(ctx, actor, *orgID); err != nil {
		return err
	}
	if perm.Role != authz.RoleOrgAdmin || !perm.MemberOf(*orgID) || actor == target {
		return ErrForbidden
	}

	existing, err := s.repo.Get(ctx, target)
	switch {
	case errors.Is(err, persistence.ErrRoleNotFound):
		return nil
	case err != nil:
		return err
	}
	if existing.OrganizationID == nil || *existing.OrganizationID != *orgID {
		return ErrForbidden
	}
	return nil
}

// visible answers ErrNotFound for assignments actor cannot see: rows in
// organizations actor cannot open and platform roles, unless actor is a super
// admin or the holder.
func (s *service) visible(ctx context.Context, actor uuid.UUID, record persistence.RoleAssignment) error {
	if actor == record.UserID {
		return nil
	}
	perm, err := s.actorPermission(ctx, actor)
	if err != nil {
		return err
	}
	if perm.IsSuperAdmin {
		return nil
	}
	if record.OrganizationID == nil {
		return ErrNotFound
	}
	return s.requireAccess(ctx, actor, *record.OrganizationID)
}

func (s *service) actorPermission(ctx context.Context, actor uuid.UUID) (authz.Permission, error) {
	perm, err := s.authz.Permission(ctx, actor)
	if err != nil {
		if errors.Is(err, authz.ErrNoAssignment) {
			return authz.Permission{}, nil
		}
		return authz.Permission{}, err
	}
	return perm, nil
}

func (s *service) requireAccess(ctx context.Context, actor, orgID uuid.UUID) error {
	if orgID == uuid.Nil {
		return ErrNotFound
	}
	ok, err := s.authz.CanAccessOrganization(ctx, actor, orgID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("organization %w", problem.ErrNotFound)
	}
	return nil
}

func validateAssignment(input AssignInput) (authz.Role, error) {
	fieldErrors := problem.FieldErrors{}

	role, err := authz.ParseRole(input.Role)
	if err != nil {
		fieldErrors.Add("role", fmt.Sprintf("role must be one of %s", joinRoles()))
		return "", fieldErrors.Err()
	}

	switch {
	case role == authz.RoleSuperAdmin && input.OrganizationID != nil:
		fieldErrors.Add("organizationId", "SUPER_ADMIN is a platform role and cannot belong to an organization")
	case role != authz.RoleSuperAdmin && (input.OrganizationID == nil || *input.OrganizationID == uuid.Nil):
		fieldErrors.Add("organizationId", fmt.Sprintf("%s requires an organization", role))
	}

	if err := fieldErrors.Err(); err != nil {
		return "", err
	}
	return role, nil
}

func joinRoles() string {
	names := make([]string, 0, len(authz.Roles))
	for _, r := range authz.Roles {
		names = append(names, r.String())
	}
	return strings.Join(names, ", ")
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func mapAssignment(record persistence.RoleAssignment, email string) Assignment {
	return Assignment{
		UserID:         record.UserID,
		OrganizationID: record.OrganizationID,
		Role:           record.Role,
		Email:          email,
		CreatedAt:      record.CreatedAt,
		UpdatedAt:      record.UpdatedAt,
	}
}

func mapPersistenceError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrRoleNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrRoleInvalid):
		return problem.Invalid("role", err.Error())
	default:
		return err
	}
}
