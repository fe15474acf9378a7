package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/aso-insight/domains/agencies/be/repo"
	"github.com/zenGate-Global/aso-insight/platform/go/auditlog"
	"github.com/zenGate-Global/aso-insight/platform/go/authz"
	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
	"github.com/zenGate-Global/aso-insight/platform/go/problem"
)

// Domain sentinel errors.
var (
	ErrNotFound  = fmt.Errorf("agency grant %w", problem.ErrNotFound)
	ErrForbidden = fmt.Errorf("agency grant change %w", problem.ErrForbidden)
)

// Authorizer answers access questions for the caller.
type Authorizer interface {
	Permission(ctx context.Context, userID uuid.UUID) (authz.Permission, error)
	CanAccessOrganization(ctx context.Context, userID, orgID uuid.UUID) (bool, error)
	CanManageOrganization(ctx context.Context, userID, orgID uuid.UUID) (bool, error)
}

// Config tunes who may write grants.
type Config struct {
	// SelfServe lets ORG_ADMINs of the agency create and toggle its grants.
	// When false only super admins can.
	SelfServe bool
}

// Grant is the domain view of an agency grant.
type Grant struct {
	ID              uuid.UUID `json:"id"`
	AgencyOrgID     uuid.UUID `json:"agencyOrgId"`
	ClientOrgID     uuid.UUID `json:"clientOrgId"`
	IsActive        bool      `json:"isActive"`
	CounterpartName string    `json:"counterpartName,omitempty"`
	CounterpartSlug string    `json:"counterpartSlug,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// GrantInput names the pair of organizations.
type GrantInput struct {
	AgencyOrgID uuid.UUID `json:"agencyOrgId"`
	ClientOrgID uuid.UUID `json:"clientOrgId"`
}

// Service defines agency grant management.
type Service interface {
	Grant(ctx context.Context, actor uuid.UUID, input GrantInput) (Grant, error)
	SetActive(ctx context.Context, actor uuid.UUID, input GrantInput, active bool) (Grant, error)
	ListClients(ctx context.Context, actor, agencyOrgID uuid.UUID, activeOnly bool) ([]Grant, error)
	ListAgencies(ctx context.Context, actor, clientOrgID uuid.UUID, activeOnly bool) ([]Grant, error)
}

type service struct {
	repo  repo.Repository
	authz Authorizer
	audit *auditlog.Recorder
	cfg   Config
}

// New constructs an agencies Service. audit may be nil.
func New(r repo.Repository, authorizer Authorizer, audit *auditlog.Recorder, cfg Config) Service {
	if r == nil {
		panic("agencies repository is required")
	}
	if authorizer == nil {
		panic("authorizer is required")
	}
	return &service{repo: r, authz: authorizer, audit: audit, cfg: cfg}
}

func (s *service) Grant(ctx context.Context, actor uuid.UUID, input GrantInput) (Grant, error) {
	if err := validatePair(input); err != nil {
		return Grant{}, err
	}
	if err := s.authorizeWrite(ctx, actor, input.AgencyOrgID); err != nil {
		s.recordDenied(ctx, auditlog.ActionAgencyGrantCreate, input, err)
		return Grant{}, err
	}

	record, err := s.repo.Upsert(ctx, input.AgencyOrgID, input.ClientOrgID)
	if err != nil {
		return Grant{}, mapPersistenceError(err)
	}

	s.audit.Record(ctx, auditlog.Event{
		Action:         auditlog.ActionAgencyGrantCreate,
		ResourceType:   "agency_grant",
		ResourceID:     record.ID.String(),
		OrganizationID: &record.ClientOrgID,
		Details:        map[string]any{"agencyOrgId": record.AgencyOrgID.String()},
	})
	return mapGrant(record), nil
}

func (s *service) SetActive(ctx context.Context, actor uuid.UUID, input GrantInput, active bool) (Grant, error) {
	if err := validatePair(input); err != nil {
		return Grant{}, err
	}
	if err := s.authorizeWrite(ctx, actor, input.AgencyOrgID); err != nil {
		s.recordDenied(ctx, auditlog.ActionAgencyGrantActivation, input, err)
		return Grant{}, err
	}

	record, err := s.repo.SetActive(ctx, input.AgencyOrgID, input.ClientOrgID, active)
	if err != nil {
		return Grant{}, mapPersistenceError(err)
	}

	s.audit.Record(ctx, auditlog.Event{
		Action:         auditlog.ActionAgencyGrantActivation,
		ResourceType:   "agency_grant",
		ResourceID:     record.ID.String(),
		OrganizationID: &record.ClientOrgID,
		Details:        map[string]any{"agencyOrgId": record.AgencyOrgID.String(), "isActive": active},
	})
	return mapGrant(record), nil
}

// ListClients and ListAgencies follow agency_clients_select: only managers
// of the queried organization see its links.
func (s *service) ListClients(ctx context.Context, actor, agencyOrgID uuid.UUID, activeOnly bool) ([]Grant, error) {
	if err := s.requireManage(ctx, actor, agencyOrgID); err != nil {
		return nil, err
	}
	links, err := s.repo.ListClients(ctx, agencyOrgID, activeOnly)
	if err != nil {
		return nil, err
	}
	return mapLinks(links), nil
}

func (s *service) ListAgencies(ctx context.Context, actor, clientOrgID uuid.UUID, activeOnly bool) ([]Grant, error) {
	if err := s.requireManage(ctx, actor, clientOrgID); err != nil {
		return nil, err
	}
	links, err := s.repo.ListAgencies(ctx, clientOrgID, activeOnly)
	if err != nil {
		return nil, err
	}
	return mapLinks(links), nil
}

func (s *service) authorizeWrite(ctx context.Context, actor, agencyOrgID uuid.UUID) error {
	perm, err := s.authz.Permission(ctx, actor)
	if err != nil {
		if errors.Is(err, authz.ErrNoAssignment) {
			return fmt.Errorf("organization %w", problem.ErrNotFound)
		}
		return err
	}
	if perm.IsSuperAdmin {
		return nil
	}
	if err := s.requireAccess(ctx, actor, agencyOrgID); err != nil {
		return err
	}
	if !s.cfg.SelfServe || perm.Role != authz.RoleOrgAdmin || !perm.MemberOf(agencyOrgID) {
		return ErrForbidden
	}
	return nil
}

func (s *service) requireAccess(ctx context.Context, actor, orgID uuid.UUID) error {
	ok, err := s.authz.CanAccessOrganization(ctx, actor, orgID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("organization %w", problem.ErrNotFound)
	}
	return nil
}

// requireManage answers 404 when the organization is invisible to actor and
// 403 when it is visible but not managed by actor.
func (s *service) requireManage(ctx context.Context, actor, orgID uuid.UUID) error {
	if err := s.requireAccess(ctx, actor, orgID); err != nil {
		return err
	}
	ok, err := s.authz.CanManageOrganization(ctx, actor, orgID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("agency links %w", problem.ErrForbidden)
	}
	return nil
}

func (s *service) recordDenied(ctx context.Context, action string, input GrantInput, err error) {
	if !errors.Is(err, problem.ErrForbidden) {
		return
	}
	s.audit.Record(ctx, auditlog.Event{
		Action:         action,
		ResourceType:   "agency_grant",
		OrganizationID: &input.ClientOrgID,
		Details:        map[string]any{"agencyOrgId": input.AgencyOrgID.String()},
		Status:         persistence.AuditStatusDenied,
	})
}

func validatePair(input GrantInput) error {
	fieldErrors := problem.FieldErrors{}
	if input.AgencyOrgID == uuid.Nil {
		fieldErrors.Add("agencyOrgId", "agencyOrgId is required")
	}
	if input.ClientOrgID == uuid.Nil {
		fieldErrors.Add("clientOrgId", "clientOrgId is required")
	}
	if input.AgencyOrgID != uuid.Nil && input.AgencyOrgID == input.ClientOrgID {
		fieldErrors.Add("clientOrgId", "an organization cannot be its own agency")
	}
	return fieldErrors.Err()
}

func mapGrant(record persistence.AgencyGrant) Grant {
	return Grant{
		ID:          record.ID,
		AgencyOrgID: record.AgencyOrgID,
		ClientOrgID: record.ClientOrgID,
		IsActive:    record.IsActive,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}

func mapLinks(links []persistence.AgencyLink) []Grant {
	grants := make([]Grant, 0, len(links))
	for _, link := range links {
		g := mapGrant(link.AgencyGrant)
		g.CounterpartName = link.CounterpartName
		g.CounterpartSlug = link.CounterpartSlug
		grants = append(grants, g)
	}
	return grants
}

func mapPersistenceError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrAgencyGrantNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrAgencyGrantInvalid):
		return problem.Invalid("clientOrgId", err.Error())
	default:
		return err
	}
}
