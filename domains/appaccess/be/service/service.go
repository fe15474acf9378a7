package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zenGate-Global/aso-insight/domains/appaccess/be/repo"
	"github.com/zenGate-Global/aso-insight/platform/go/auditlog"
	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
	"github.com/zenGate-Global/aso-insight/platform/go/problem"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxAppIDLength  = 255
)

// Domain sentinel errors.
var (
	ErrNotFound      = fmt.Errorf("app access %w", problem.ErrNotFound)
	ErrConflict      = fmt.Errorf("app already granted: %w", problem.ErrConflict)
	ErrForbidden     = fmt.Errorf("app access change %w", problem.ErrForbidden)
	ErrQuotaExceeded = fmt.Errorf("organization app %w", problem.ErrQuotaExceeded)
)

// Authorizer answers access questions for the caller.
type Authorizer interface {
	CanAccessOrganization(ctx context.Context, userID, orgID uuid.UUID) (bool, error)
	CanManageOrganization(ctx context.Context, userID, orgID uuid.UUID) (bool, error)
}

// GrantInput names a store app.
type GrantInput struct {
	Store   string `json:"store"`
	AppID   string `json:"appId"`
	AppName string `json:"appName"`
}

// ReviewOptions filters cached reviews.
type ReviewOptions struct {
	Store    *string
	AppID    *string
	Page     int
	PageSize int
}

// ReviewPage is a page of cached reviews.
type ReviewPage struct {
	Items      []persistence.Review `json:"items"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"pageSize"`
	TotalItems int                  `json:"totalItems"`
	TotalPages int                  `json:"totalPages"`
}

// Service manages which store apps an organization may analyse.
type Service interface {
	List(ctx context.Context, actor, orgID uuid.UUID) ([]persistence.AppAccess, error)
	Grant(ctx context.Context, actor, orgID uuid.UUID, input GrantInput) (persistence.AppAccess, error)
	Revoke(ctx context.Context, actor, orgID, accessID uuid.UUID) error
	ListReviews(ctx context.Context, actor, orgID uuid.UUID, opts ReviewOptions) (ReviewPage, error)
}

type service struct {
	repo  repo.Repository
	authz Authorizer
	audit *auditlog.Recorder
}

// New constructs an app access Service. audit may be nil.
func New(r repo.Repository, authorizer Authorizer, audit *auditlog.Recorder) Service {
	if r == nil {
		panic("app access repository is required")
	}
	if authorizer == nil {
		panic("authorizer is required")
	}
	return &service{repo: r, authz: authorizer, audit: audit}
}

func (s *service) List(ctx context.Context, actor, orgID uuid.UUID) ([]persistence.AppAccess, error) {
	if err := s.requireAccess(ctx, actor, orgID); err != nil {
		return nil, err
	}
	return s.repo.ListApps(ctx, actor, orgID)
}

func (s *service) Grant(ctx context.Context, actor, orgID uuid.UUID, input GrantInput) (persistence.AppAccess, error) {
	input.Store = strings.ToLower(strings.TrimSpace(input.Store))
	input.AppID = strings.TrimSpace(input.AppID)
	input.AppName = strings.TrimSpace(input.AppName)
	if err := validateGrant(input); err != nil {
		return persistence.AppAccess{}, err
	}
	if err := s.requireManage(ctx, actor, orgID); err != nil {
		return persistence.AppAccess{}, err
	}

	app, err := s.repo.Grant(ctx, persistence.GrantAppParams{
		OrganizationID: orgID,
		Store:          input.Store,
		AppID:          input.AppID,
		AppName:        input.AppName,
		GrantedBy:      actor,
	})
	if err != nil {
		err = mapPersistenceError(err)
		if errors.Is(err, problem.ErrQuotaExceeded) {
			s.audit.Record(ctx, auditlog.Event{
				Action:         auditlog.ActionAppGrant,
				ResourceType:   "app_access",
				OrganizationID: &orgID,
				Details:        map[string]any{"store": input.Store, "appId": input.AppID},
				Err:            err,
			})
		}
		return persistence.AppAccess{}, err
	}

	s.audit.Record(ctx, auditlog.Event{
		Action:         auditlog.ActionAppGrant,
		ResourceType:   "app_access",
		ResourceID:     app.ID.String(),
		OrganizationID: &orgID,
		Details:        map[string]any{"store": app.Store, "appId": app.AppID},
	})
	return app, nil
}

func (s *service) Revoke(ctx context.Context, actor, orgID, accessID uuid.UUID) error {
	if err := s.requireManage(ctx, actor, orgID); err != nil {
		return err
	}
	if err := s.repo.Revoke(ctx, orgID, accessID); err != nil {
		return mapPersistenceError(err)
	}

	s.audit.Record(ctx, auditlog.Event{
		Action:         auditlog.ActionAppRevoke,
		ResourceType:   "app_access",
		ResourceID:     accessID.String(),
		OrganizationID: &orgID,
	})
	return nil
}

func (s *service) ListReviews(ctx context.Context, actor, orgID uuid.UUID, opts ReviewOptions) (ReviewPage, error) {
	if err := s.requireAccess(ctx, actor, orgID); err != nil {
		return ReviewPage{}, err
	}
	if opts.Store != nil && !validStore(*opts.Store) {
		return ReviewPage{}, problem.Invalid("store", "store must be google_play or app_store")
	}

	page, pageSize := normalizePagination(opts.Page, opts.PageSize)
	result, err := s.repo.ListReviews(ctx, actor, persistence.ListReviewsParams{
		OrganizationID: orgID,
		Store:          opts.Store,
		AppID:          opts.AppID,
		Page:           page,
		PageSize:       pageSize,
	})
	if err != nil {
		return ReviewPage{}, err
	}

	return ReviewPage{
		Items:      result.Reviews,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: result.TotalItems,
		TotalPages: problem.TotalPages(result.TotalItems, pageSize),
	}, nil
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

// requireManage hides the organization from callers who cannot see it and
// refuses everyone else who is not an admin of it.
func (s *service) requireManage(ctx context.Context, actor, orgID uuid.UUID) error {
	if err := s.requireAccess(ctx, actor, orgID); err != nil {
		return err
	}
	ok, err := s.authz.CanManageOrganization(ctx, actor, orgID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func validateGrant(input GrantInput) error {
	fieldErrors := problem.FieldErrors{}
	if !validStore(input.Store) {
		fieldErrors.Add("store", "store must be google_play or app_store")
	}
	switch {
	case input.AppID == "":
		fieldErrors.Add("appId", "appId is required")
	case len(input.AppID) > maxAppIDLength:
		fieldErrors.Add("appId", fmt.Sprintf("appId must be at most %d characters", maxAppIDLength))
	}
	return fieldErrors.Err()
}

func validStore(store string) bool {
	return store == persistence.StoreGooglePlay || store == persistence.StoreAppStore
}

func normalizePagination(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func mapPersistenceError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrAppAccessNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrOrganizationNotFound):
		return fmt.Errorf("organization %w", problem.ErrNotFound)
	case errors.Is(err, persistence.ErrAppAccessConflict):
		return ErrConflict
	case errors.Is(err, persistence.ErrAppQuotaExceeded):
		return ErrQuotaExceeded
	case errors.Is(err, persistence.ErrAppAccessInvalid):
		return problem.Invalid("appId", err.Error())
	default:
		return err
	}
}
