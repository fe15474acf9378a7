package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/aso-insight/domains/roles/be/service"
	platformauth "github.com/zenGate-Global/aso-insight/platform/go/auth"
	"github.com/zenGate-Global/aso-insight/platform/go/authz"
	"github.com/zenGate-Global/aso-insight/platform/go/problem"
)

type mockService struct {
	assignFn      func(ctx context.Context, actor, userID uuid.UUID, input service.AssignInput) (service.Assignment, error)
	addMemberFn   func(ctx context.Context, actor, orgID uuid.UUID, input service.AddMemberInput) (service.Assignment, error)
	getFn         func(ctx context.Context, actor, userID uuid.UUID) (service.Assignment, error)
	revokeFn      func(ctx context.Context, actor, userID uuid.UUID) error
	listMembersFn func(ctx context.Context, actor, orgID uuid.UUID, opts service.ListOptions) (service.ListResult, error)
}

func (m *mockService) Assign(ctx context.Context, actor, userID uuid.UUID, input service.AssignInput) (service.Assignment, error) {
	if m.assignFn == nil {
		panic("assignFn not configured")
	}
	return m.assignFn(ctx, actor, userID, input)
}

func (m *mockService) AddMember(ctx context.Context, actor, orgID uuid.UUID, input service.AddMemberInput) (service.Assignment, error) {
	if m.addMemberFn == nil {
		panic("addMemberFn not configured")
	}
	return m.addMemberFn(ctx, actor, orgID, input)
}

func (m *mockService) Get(ctx context.Context, actor, userID uuid.UUID) (service.Assignment, error) {
	if m.getFn == nil {
		panic("getFn not configured")
	}
	return m.getFn(ctx, actor, userID)
}

func (m *mockService) Revoke(ctx context.Context, actor, userID uuid.UUID) error {
	if m.revokeFn == nil {
		panic("revokeFn not configured")
	}
	return m.revokeFn(ctx, actor, userID)
}

func (m *mockService) ListMembers(ctx context.Context, actor, orgID uuid.UUID, opts service.ListOptions) (service.ListResult, error) {
	if m.listMembersFn == nil {
		panic("listMembersFn not configured")
	}
	return m.listMembersFn(ctx, actor, orgID, opts)
}

func serve(t *testing.T, svc service.Service, method, target, body string, actor uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	New(svc, problem.NewResponder(zaptest.NewLogger(t), nil)).Routes(r)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if actor != uuid.Nil {
		req = req.WithContext(platformauth.ContextWithUser(req.Context(), &platformauth.UserCredentials{Id: actor.String()}))
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestAssignRole(t *testing.T) {
	t.Parallel()

	actor := uuid.New()
	userID := uuid.New()
	orgID := uuid.New()
	svc := &mockService{assignFn: func(ctx context.Context, a, u uuid.UUID, input service.AssignInput) (service.Assignment, error) {
		require.Equal(t, actor, a)
		require.Equal(t, userID, u)
		require.Equal(t, "ANALYST", input.Role)
		require.Equal(t, orgID, *input.OrganizationID)
		return service.Assignment{UserID: u, OrganizationID: input.OrganizationID, Role: authz.RoleAnalyst}, nil
	}}

	resp := serve(t, svc, http.MethodPut, "/users/"+userID.String()+"/role", `{"role":"ANALYST","organizationId":"`+orgID.String()+`"}`, actor)
	require.Equal(t, http.StatusOK, resp.Code)

	var body service.Assignment
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, authz.RoleAnalyst, body.Role)
}

func TestAssignForbidden(t *testing.T) {
	t.Parallel()

	svc := &mockService{assignFn: func(ctx context.Context, a, u uuid.UUID, input service.AssignInput) (service.Assignment, error) {
		return service.Assignment{}, service.ErrForbidden
	}}

	resp := serve(t, svc, http.MethodPut, "/users/"+uuid.NewString()+"/role", `{"role":"SUPER_ADMIN"}`, uuid.New())
	require.Equal(t, http.StatusForbidden, resp.Code)
}

func TestRevokeNoContent(t *testing.T) {
	t.Parallel()

	svc := &mockService{revokeFn: func(ctx context.Context, actor, userID uuid.UUID) error { return nil }}

	resp := serve(t, svc, http.MethodDelete, "/users/"+uuid.NewString()+"/role", "", uuid.New())
	require.Equal(t, http.StatusNoContent, resp.Code)
}

func TestGetRoleAnonymous(t *testing.T) {
	t.Parallel()

	resp := serve(t, &mockService{}, http.MethodGet, "/users/"+uuid.NewString()+"/role", "", uuid.Nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestMembers(t *testing.T) {
	t.Parallel()

	orgID := uuid.New()
	svc := &mockService{
		listMembersFn: func(ctx context.Context, actor, o uuid.UUID, opts service.ListOptions) (service.ListResult, error) {
			require.Equal(t, orgID, o)
			require.Equal(t, 2, opts.Page)
			return service.ListResult{Members: []service.Assignment{}, Page: 2}, nil
		},
		addMemberFn: func(ctx context.Context, actor, o uuid.UUID, input service.AddMemberInput) (service.Assignment, error) {
			require.Equal(t, "new@acme.test", input.Email)
			return service.Assignment{Role: authz.RoleViewer, Email: input.Email}, nil
		},
	}

	resp := serve(t, svc, http.MethodGet, "/organizations/"+orgID.String()+"/members?page=2", "", uuid.New())
	require.Equal(t, http.StatusOK, resp.Code)

	resp = serve(t, svc, http.MethodPost, "/organizations/"+orgID.String()+"/members", `{"email":"new@acme.test","role":"VIEWER"}`, uuid.New())
	require.Equal(t, http.StatusCreated, resp.Code)
}
