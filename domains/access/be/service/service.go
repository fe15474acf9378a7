package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/zenGate-Global/aso-insight/platform/go/auditlog"
	"github.com/zenGate-Global/aso-insight/platform/go/authz"
	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
	"github.com/zenGate-Global/aso-insight/platform/go/problem"
)

// ErrNoAssignment is returned when the caller holds no role.
var ErrNoAssignment = fmt.Errorf("role assignment %w", problem.ErrNotFound)

// Authorizer is the subset of authz.Evaluator used here.
type Authorizer interface {
	Permission(ctx context.Context, userID uuid.UUID) (authz.Permission, error)
	Decide(ctx context.Context, userID, orgID uuid.UUID) (authz.Decision, error)
	CanManageOrganization(ctx context.Context, userID, orgID uuid.UUID) (bool, error)
}

// Directory tells whether an organization id exists. Denied checks against
// unknown ids are audited without an organization so the row can be stored.
type Directory interface {
	OrganizationExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// CheckResult answers whether the caller can reach an organization.
type CheckResult struct {
	OrganizationID uuid.UUID        `json:"organizationId"`
	Allowed        bool             `json:"allowed"`
	Path           authz.AccessPath `json:"path"`
	CanManage      bool             `json:"canManage"`
}

// Service reports the caller's own authorization state.
type Service interface {
	Permission(ctx context.Context, actor uuid.UUID) (authz.Permission, error)
	Check(ctx context.Context, actor, orgID uuid.UUID) (CheckResult, error)
}

type service struct {
	authz Authorizer
	orgs  Directory
	audit *auditlog.Recorder
}

// New constructs an access Service. audit may be nil.
func New(authorizer Authorizer, orgs Directory, audit *auditlog.Recorder) Service {
	if authorizer == nil {
		panic("authorizer is required")
	}
	if orgs == nil {
		panic("organization directory is required")
	}
	return &service{authz: authorizer, orgs: orgs, audit: audit}
}

func (s *service) Permission(ctx context.Context, actor uuid.UUID) (authz.Permission, error) {
	perm, err := s.authz.Permission(ctx, actor)
	if err != nil {
		if errors.Is(err, authz.ErrNoAssignment) {
			return authz.Permission{}, ErrNoAssignment
		}
		return authz.Permission{}, err
	}
	return perm, nil
}

func (s *service) Check(ctx context.Context, actor, orgID uuid.UUID) (CheckResult, error) {
	if orgID == uuid.Nil {
		return CheckResult{}, problem.Invalid("orgId", "orgId is required")
	}

	decision, err := s.authz.Decide(ctx, actor, orgID)
	if err != nil {
		return CheckResult{}, err
	}
	result := CheckResult{OrganizationID: orgID, Allowed: decision.Allowed, Path: decision.Path}

	if !decision.Allowed {
		s.recordDenied(ctx, orgID)
		return result, nil
	}

	result.CanManage, err = s.authz.CanManageOrganization(ctx, actor, orgID)
	if err != nil {
		return CheckResult{}, err
	}
	return result, nil
}

// recordDenied attributes the entry to orgID only when the row exists; the
// audit table references organizations.
func (s *service) recordDenied(ctx context.Context, orgID uuid.UUID) {
	event := auditlog.Event{
		Action:       auditlog.ActionAccessDenied,
		ResourceType: "organization",
		ResourceID:   orgID.String(),
		Status:       persistence.AuditStatusDenied,
	}

	exists, err := s.orgs.OrganizationExists(ctx, orgID)
	switch {
	case err != nil:
		event.Details = map[string]any{"organizationLookup": err.Error()}
	case exists:
		event.OrganizationID = &orgID
	default:
		event.Details = map[string]any{"organizationExists": false}
	}
	s.audit.Record(ctx, event)
}
