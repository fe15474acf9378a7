package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/aso-insight/domains/organizations/be/repo"
	"github.com/zenGate-Global/aso-insight/platform/go/auditlog"
	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
	"github.com/zenGate-Global/aso-insight/platform/go/problem"
)

// Domain sentinel errors.
var (
	ErrNotFound  = fmt.Errorf("organization %w", problem.ErrNotFound)
	ErrConflict  = fmt.Errorf("organization slug %w", problem.ErrConflict)
	ErrInUse     = fmt.Errorf("organization still referenced: %w", problem.ErrConflict)
	ErrForbidden = fmt.Errorf("organization change %w", problem.ErrForbidden)
)

// Authorizer answers organization access questions for the caller.
type Authorizer interface {
	IsSuperAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
	CanAccessOrganization(ctx context.Context, userID, orgID uuid.UUID) (bool, error)
	CanManageOrganization(ctx context.Context, userID, orgID uuid.UUID) (bool, error)
}

// SettingsValidator checks organization settings documents.
type SettingsValidator interface {
	Validate(payload []byte) error
}

// Organization is the domain view of a tenant.
type Organization struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Slug      string          `json:"slug"`
	Tier      string          `json:"tier"`
	IsActive  bool            `json:"isActive"`
	MaxApps   int             `json:"maxApps"`
	Settings  json.RawMessage `json:"settings"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// CreateInput represents the payload required to create an organization.
// An empty Slug is derived from Name; a nil MaxApps takes the tier default.
type CreateInput struct {
	Name     string          `json:"name"`
	Slug     string          `json:"slug"`
	Tier     string          `json:"tier"`
	MaxApps  *int            `json:"maxApps"`
	Settings json.RawMessage `json:"settings"`
}

// UpdateInput lists the mutable fields. Tier and MaxApps are platform-only.
type UpdateInput struct {
	Name     *string         `json:"name"`
	Tier     *string         `json:"tier"`
	MaxApps  *int            `json:"maxApps"`
	Settings json.RawMessage `json:"settings"`
}

// ListOptions controls filtering and pagination.
type ListOptions struct {
	Page       int
	PageSize   int
	Search     *string
	ActiveOnly bool
}

// ListResult wraps a page of organizations with pagination metadata.
type ListResult struct {
	Organizations []Organization `json:"items"`
	Page          int            `json:"page"`
	PageSize      int            `json:"pageSize"`
	TotalItems    int            `json:"totalItems"`
	TotalPages    int            `json:"totalPages"`
}

// Service defines the business operations for the organizations domain.
// Every method takes the acting user explicitly.
type Service interface {
	Create(ctx context.Context, actor uuid.UUID, input CreateInput) (Organization, error)
	Get(ctx context.Context, actor, id uuid.UUID) (Organization, error)
	List(ctx context.Context, actor uuid.UUID, opts ListOptions) (ListResult, error)
	Update(ctx context.Context, actor, id uuid.UUID, input UpdateInput) (Organization, error)
	SetActive(ctx context.Context, actor, id uuid.UUID, active bool) (Organization, error)
	Delete(ctx context.Context, actor, id uuid.UUID) error
}

type service struct {
	repo     repo.Repository
	authz    Authorizer
	settings SettingsValidator
	audit    *auditlog.Recorder
}

// New constructs an organizations Service. audit may be nil.
func New(r repo.Repository, authorizer Authorizer, settings SettingsValidator, audit *auditlog.Recorder) Service {
	if r == nil {
		panic("organizations repository is required")
	}
	if authorizer == nil {
		panic("authorizer is required")
	}
	if settings == nil {
		panic("settings validator is required")
	}
	return &service{repo: r, authz: authorizer, settings: settings, audit: audit}
}

func (s *service) Create(ctx context.Context, actor uuid.UUID, input CreateInput) (Organization, error) {
	if err := s.requireSuperAdmin(ctx, actor); err != nil {
		return Organization{}, err
	}

	fieldErrors := problem.FieldErrors{}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		fieldErrors.Add("name", "name is required")
	}

	var slug string
	var slugErr error
	if strings.TrimSpace(input.Slug) == "" {
		slug, slugErr = persistence.SlugFromName(name)
	} else {
		slug, slugErr = persistence.NormalizeSlug(input.Slug)
	}
	if slugErr != nil && name != "" {
		fieldErrors.Add("slug", slugErr.Error())
	}

	tier := strings.ToLower(strings.TrimSpace(input.Tier))
	if tier == "" {
		tier = persistence.TierStandard
	}
	if _, ok := persistence.DefaultMaxApps(tier); !ok {
		fieldErrors.Add("tier", fmt.Sprintf("unsupported tier %q", input.Tier))
	}
	if input.MaxApps != nil && *input.MaxApps < 0 {
		fieldErrors.Add("maxApps", "maxApps cannot be negative")
	}
	s.validateSettings(input.Settings, fieldErrors)

	if err := fieldErrors.Err(); err != nil {
		return Organization{}, err
	}

	record, err := s.repo.Create(ctx, persistence.CreateOrganizationParams{
		Name:     name,
		Slug:     slug,
		Tier:     tier,
		MaxApps:  input.MaxApps,
		Settings: input.Settings,
	})
	if err != nil {
		return Organization{}, mapPersistenceError(err)
	}

	org := mapOrganization(record)
	s.audit.Record(ctx, auditlog.Event{
		Action:         auditlog.ActionOrganizationCreate,
		ResourceType:   "organization",
		ResourceID:     org.ID.String(),
		OrganizationID: &org.ID,
		Details:        map[string]any{"slug": org.Slug, "tier": org.Tier},
	})
	return org, nil
}

func (s *service) Get(ctx context.Context, actor, id uuid.UUID) (Organization, error) {
	if err := s.requireAccess(ctx, actor, id); err != nil {
		return Organization{}, err
	}

	record, err := s.repo.Get(ctx, id)
	if err != nil {
		return Organization{}, mapPersistenceError(err)
	}
	return mapOrganization(record), nil
}

func (s *service) List(ctx context.Context, actor uuid.UUID, opts ListOptions) (ListResult, error) {
	params := persistence.ListOrganizationsParams{
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		ActiveOnly: opts.ActiveOnly,
	}
	if opts.Search != nil && strings.TrimSpace(*opts.Search) != "" {
		search := strings.TrimSpace(*opts.Search)
		params.Search = &search
	}

	superAdmin, err := s.authz.IsSuperAdmin(ctx, actor)
	if err != nil {
		return ListResult{}, err
	}
	if !superAdmin {
		params.AccessibleBy = &actor
	}

	page, pageSize := normalizePage(opts.Page, opts.PageSize)
	params.Page, params.PageSize = page, pageSize

	result, err := s.repo.List(ctx, params)
	if err != nil {
		return ListResult{}, err
	}

	orgs := make([]Organization, 0, len(result.Organizations))
	for _, record := range result.Organizations {
		orgs = append(orgs, mapOrganization(record))
	}

	return ListResult{
		Organizations: orgs,
		Page:          page,
		PageSize:      pageSize,
		TotalItems:    result.TotalItems,
		TotalPages:    problem.TotalPages(result.TotalItems, pageSize),
	}, nil
}

func (s *service) Update(ctx context.Context, actor, id uuid.UUID, input UpdateInput) (Organization, error) {
	if err := s.requireManage(ctx, actor, id); err != nil {
		return Organization{}, err
	}

	fieldErrors := problem.FieldErrors{}
	params := persistence.UpdateOrganizationParams{}
	fieldsSet := 0
	platformOnly := false

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			fieldErrors.Add("name", "name cannot be empty")
		} else {
			params.Name = &name
			fieldsSet++
		}
	}
	if input.Tier != nil {
		tier := strings.ToLower(strings.TrimSpace(*input.Tier))
		if _, ok := persistence.DefaultMaxApps(tier); !ok {
			fieldErrors.Add("tier", fmt.Sprintf("unsupported tier %q", *input.Tier))
		} else {
			params.Tier = &tier
			platformOnly = true
			fieldsSet++
		}
	}
	if input.MaxApps != nil {
		if *input.MaxApps < 0 {
			fieldErrors.Add("maxApps", "maxApps cannot be negative")
		} else {
			params.MaxApps = input.MaxApps
			platformOnly = true
			fieldsSet++
		}
	}
	if input.Settings != nil {
		s.validateSettings(input.Settings, fieldErrors)
		params.Settings = input.Settings
		fieldsSet++
	}

	if fieldsSet == 0 && len(fieldErrors) == 0 {
		fieldErrors.Add("payload", "at least one field must be provided")
	}
	if err := fieldErrors.Err(); err != nil {
		return Organization{}, err
	}

	if platformOnly {
		if err := s.requireSuperAdmin(ctx, actor); err != nil {
			return Organization{}, err
		}
	}

	record, err := s.repo.Update(ctx, id, params)
	if err != nil {
		return Organization{}, mapPersistenceError(err)
	}

	org := mapOrganization(record)
	s.audit.Record(ctx, auditlog.Event{
		Action:         auditlog.ActionOrganizationUpdate,
		ResourceType:   "organization",
		ResourceID:     org.ID.String(),
		OrganizationID: &org.ID,
		Details:        updatedFields(params),
	})
	return org, nil
}

func (s *service) SetActive(ctx context.Context, actor, id uuid.UUID, active bool) (Organization, error) {
	if err := s.requireAccess(ctx, actor, id); err != nil {
		return Organization{}, err
	}
	if err := s.requireSuperAdmin(ctx, actor); err != nil {
		return Organization{}, err
	}

	record, err := s.repo.Update(ctx, id, persistence.UpdateOrganizationParams{IsActive: &active})
	if err != nil {
		return Organization{}, mapPersistenceError(err)
	}

	org := mapOrganization(record)
	s.audit.Record(ctx, auditlog.Event{
		Action:         auditlog.ActionOrganizationActivation,
		ResourceType:   "organization",
		ResourceID:     org.ID.String(),
		OrganizationID: &org.ID,
		Details:        map[string]any{"isActive": active},
	})
	return org, nil
}

func (s *service) Delete(ctx context.Context, actor, id uuid.UUID) error {
	if err := s.requireAccess(ctx, actor, id); err != nil {
		return err
	}
	if err := s.requireSuperAdmin(ctx, actor); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return mapPersistenceError(err)
	}

	s.audit.Record(ctx, auditlog.Event{
		Action:       auditlog.ActionOrganizationDelete,
		ResourceType: "organization",
		ResourceID:   id.String(),
	})
	return nil
}

// requireAccess hides organizations the actor cannot see behind ErrNotFound.
func (s *service) requireAccess(ctx context.Context, actor, id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrNotFound
	}
	ok, err := s.authz.CanAccessOrganization(ctx, actor, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *service) requireManage(ctx context.Context, actor, id uuid.UUID) error {
	if err := s.requireAccess(ctx, actor, id); err != nil {
		return err
	}
	ok, err := s.authz.CanManageOrganization(ctx, actor, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func (s *service) requireSuperAdmin(ctx context.Context, actor uuid.UUID) error {
	ok, err := s.authz.IsSuperAdmin(ctx, actor)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func (s *service) validateSettings(settings json.RawMessage, fieldErrors problem.FieldErrors) {
	if settings == nil {
		return
	}
	err := s.settings.Validate(settings)
	if err == nil {
		return
	}

	var settingsErr *persistence.SettingsError
	if errors.As(err, &settingsErr) {
		for pointer, messages := range settingsErr.Violations {
			for _, msg := range messages {
				fieldErrors.Add("settings"+strings.TrimSuffix(pointer, "/"), msg)
			}
		}
		return
	}
	fieldErrors.Add("settings", err.Error())
}

func updatedFields(params persistence.UpdateOrganizationParams) map[string]any {
	fields := []string{}
	if params.Name != nil {
		fields = append(fields, "name")
	}
	if params.Tier != nil {
		fields = append(fields, "tier")
	}
	if params.MaxApps != nil {
		fields = append(fields, "maxApps")
	}
	if params.Settings != nil {
		fields = append(fields, "settings")
	}
	return map[string]any{"fields": fields}
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func mapOrganization(record persistence.Organization) Organization {
	return Organization{
		ID:        record.ID,
		Name:      record.Name,
		Slug:      record.Slug,
		Tier:      record.Tier,
		IsActive:  record.IsActive,
		MaxApps:   record.MaxApps,
		Settings:  record.Settings,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

func mapPersistenceError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrOrganizationNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrOrganizationConflict):
		return ErrConflict
	case errors.Is(err, persistence.ErrOrganizationInUse):
		return ErrInUse
	case errors.Is(err, persistence.ErrOrganizationInvalid):
		return problem.Invalid("organization", err.Error())
	default:
		return err
	}
}
