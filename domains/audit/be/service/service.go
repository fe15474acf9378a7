package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zenGate-Global/aso-insight/domains/audit/be/repo"
	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
	"github.com/zenGate-Global/aso-insight/platform/go/problem"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Authorizer answers organization access for the caller.
type Authorizer interface {
	CanAccessOrganization(ctx context.Context, userID, orgID uuid.UUID) (bool, error)
}

// ListOptions filters an organization's audit trail.
type ListOptions struct {
	Action   *string
	Page     int
	PageSize int
}

// ListResult is a page of audit entries.
type ListResult struct {
	Items      []persistence.AuditLog `json:"items"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"pageSize"`
	TotalItems int                    `json:"totalItems"`
	TotalPages int                    `json:"totalPages"`
}

// Service exposes the audit trail of an organization.
type Service interface {
	List(ctx context.Context, actor, orgID uuid.UUID, opts ListOptions) (ListResult, error)
}

type service struct {
	repo  repo.Repository
	authz Authorizer
}

// New constructs an audit Service.
func New(r repo.Repository, authorizer Authorizer) Service {
	if r == nil {
		panic("audit repository is required")
	}
	if authorizer == nil {
		panic("authorizer is required")
	}
	return &service{repo: r, authz: authorizer}
}

// List returns entries visible to actor. Inaccessible organizations are
// reported as missing; which rows of an accessible one are visible is up to
// the audit_logs select policy.
func (s *service) List(ctx context.Context, actor, orgID uuid.UUID, opts ListOptions) (ListResult, error) {
	ok, err := s.authz.CanAccessOrganization(ctx, actor, orgID)
	if err != nil {
		return ListResult{}, err
	}
	if !ok {
		return ListResult{}, fmt.Errorf("organization %w", problem.ErrNotFound)
	}

	page, pageSize := normalizePagination(opts.Page, opts.PageSize)
	params := persistence.ListAuditLogsParams{OrganizationID: orgID, Page: page, PageSize: pageSize}
	if opts.Action != nil {
		if action := strings.TrimSpace(*opts.Action); action != "" {
			params.Action = &action
		}
	}

	result, err := s.repo.List(ctx, actor, params)
	if err != nil {
		return ListResult{}, err
	}

	return ListResult{
		Items:      result.Logs,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: result.TotalItems,
		TotalPages: problem.TotalPages(result.TotalItems, pageSize),
	}, nil
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
