package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/aso-insight/platform/go/authz"
	"github.com/zenGate-Global/aso-insight/platform/go/authz/authztest"
	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
	"github.com/zenGate-Global/aso-insight/platform/go/problem"
)

type mockRepository struct {
	listFn func(ctx context.Context, viewerID uuid.UUID, params persistence.ListAuditLogsParams) (persistence.ListAuditLogsResult, error)
}

func (m *mockRepository) List(ctx context.Context, viewerID uuid.UUID, params persistence.ListAuditLogsParams) (persistence.ListAuditLogsResult, error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx, viewerID, params)
}

func TestListInaccessibleOrganization(t *testing.T) {
	t.Parallel()

	source := authztest.NewSource()
	user := uuid.New()
	source.SetRole(user, uuid.New(), authz.RoleOrgAdmin)

	svc := New(&mockRepository{}, authz.NewEvaluator(source, authz.Config{}))

	_, err := svc.List(context.Background(), user, uuid.New(), ListOptions{})
	require.ErrorIs(t, err, problem.ErrNotFound)
}

func TestListPaginatesAndFilters(t *testing.T) {
	t.Parallel()

	source := authztest.NewSource()
	user, org := uuid.New(), uuid.New()
	source.SetRole(user, org, authz.RoleOrgAdmin)

	action := "  role.assign "
	r := &mockRepository{listFn: func(ctx context.Context, viewerID uuid.UUID, params persistence.ListAuditLogsParams) (persistence.ListAuditLogsResult, error) {
		require.Equal(t, user, viewerID)
		require.Equal(t, org, params.OrganizationID)
		require.Equal(t, "role.assign", *params.Action)
		require.Equal(t, 2, params.Page)
		require.Equal(t, maxPageSize, params.PageSize)
		return persistence.ListAuditLogsResult{
			Logs:       []persistence.AuditLog{{ID: uuid.New(), Action: "role.assign", Status: persistence.AuditStatusSuccess}},
			TotalItems: 101,
		}, nil
	}}
	svc := New(r, authz.NewEvaluator(source, authz.Config{}))

	result, err := svc.List(context.Background(), user, org, ListOptions{Action: &action, Page: 2, PageSize: 500})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.Equal(t, 2, result.TotalPages)
	require.Equal(t, maxPageSize, result.PageSize)
}

func TestListBlankActionIsIgnored(t *testing.T) {
	t.Parallel()

	source := authztest.NewSource()
	admin := uuid.New()
	source.SetRole(admin, uuid.Nil, authz.RoleSuperAdmin)

	blank := " "
	r := &mockRepository{listFn: func(ctx context.Context, viewerID uuid.UUID, params persistence.ListAuditLogsParams) (persistence.ListAuditLogsResult, error) {
		require.Nil(t, params.Action)
		require.Equal(t, 1, params.Page)
		require.Equal(t, defaultPageSize, params.PageSize)
		return persistence.ListAuditLogsResult{Logs: []persistence.AuditLog{}}, nil
	}}
	svc := New(r, authz.NewEvaluator(source, authz.Config{}))

	result, err := svc.List(context.Background(), admin, uuid.New(), ListOptions{Action: &blank})
	require.NoError(t, err)
	require.Empty(t, result.Items)
	require.Zero(t, result.TotalPages)
}
