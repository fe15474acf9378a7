package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/aso-insight/domains/organizations/be/service"
	platformauth "github.com/zenGate-Global/aso-insight/platform/go/auth"
	"github.com/zenGate-Global/aso-insight/platform/go/problem"
)

type mockService struct {
	createFn    func(ctx context.Context, actor uuid.UUID, input service.CreateInput) (service.Organization, error)
	getFn       func(ctx context.Context, actor, id uuid.UUID) (service.Organization, error)
	listFn      func(ctx context.Context, actor uuid.UUID, opts service.ListOptions) (service.ListResult, error)
	updateFn    func(ctx context.Context, actor, id uuid.UUID, input service.UpdateInput) (service.Organization, error)
	setActiveFn func(ctx context.Context, actor, id uuid.UUID, active bool) (service.Organization, error)
	deleteFn    func(ctx context.Context, actor, id uuid.UUID) error
}

func (m *mockService) Create(ctx context.Context, actor uuid.UUID, input service.CreateInput) (service.Organization, error) {
	if m.createFn == nil {
		panic("createFn not configured")
	}
	return m.createFn(ctx, actor, input)
}

func (m *mockService) Get(ctx context.Context, actor, id uuid.UUID) (service.Organization, error) {
	if m.getFn == nil {
		panic("getFn not configured")
	}
	return m.getFn(ctx, actor, id)
}

func (m *mockService) List(ctx context.Context, actor uuid.UUID, opts service.ListOptions) (service.ListResult, error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx, actor, opts)
}

func (m *mockService) Update(ctx context.Context, actor, id uuid.UUID, input service.UpdateInput) (service.Organization, error) {
	if m.updateFn == nil {
		panic("updateFn not configured")
	}
	return m.updateFn(ctx, actor, id, input)
}

func (m *mockService) SetActive(ctx context.Context, actor, id uuid.UUID, active bool) (service.Organization, error) {
	if m.setActiveFn == nil {
		panic("setActiveFn not configured")
	}
	return m.setActiveFn(ctx, actor, id, active)
}

func (m *mockService) Delete(ctx context.Context, actor, id uuid.UUID) error {
	if m.deleteFn == nil {
		panic("deleteFn not configured")
	}
	return m.deleteFn(ctx, actor, id)
}

func newRouter(t *testing.T, svc service.Service) chi.Router {
	t.Helper()
	r := chi.NewRouter()
	New(svc, problem.NewResponder(zaptest.NewLogger(t), nil)).Routes(r)
	return r
}

func authedRequest(method, target, body string, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := platformauth.ContextWithUser(req.Context(), &platformauth.UserCredentials{Id: userID.String(), Email: "user@example.com"})
	return req.WithContext(ctx)
}

func TestCreateReturnsLocation(t *testing.T) {
	t.Parallel()

	actor := uuid.New()
	orgID := uuid.New()
	svc := &mockService{createFn: func(ctx context.Context, a uuid.UUID, input service.CreateInput) (service.Organization, error) {
		require.Equal(t, actor, a)
		require.Equal(t, "Acme", input.Name)
		require.Equal(t, "enterprise", input.Tier)
		return service.Organization{ID: orgID, Name: input.Name, Slug: "acme", Tier: input.Tier, CreatedAt: time.Now()}, nil
	}}

	resp := httptest.NewRecorder()
	newRouter(t, svc).ServeHTTP(resp, authedRequest(http.MethodPost, "/organizations", `{"name":"Acme","tier":"enterprise"}`, actor))

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, "/api/v1/organizations/"+orgID.String(), resp.Header().Get("Location"))

	var body service.Organization
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, orgID, body.ID)
}

func TestCreateRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	resp := httptest.NewRecorder()
	newRouter(t, &mockService{}).ServeHTTP(resp, authedRequest(http.MethodPost, "/organizations", `{"name":"Acme","owner":"x"}`, uuid.New()))

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAnonymousIsUnauthorized(t *testing.T) {
	t.Parallel()

	resp := httptest.NewRecorder()
	newRouter(t, &mockService{}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/organizations", nil))

	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestGetDeniedLooksLikeMissing(t *testing.T) {
	t.Parallel()

	svc := &mockService{getFn: func(ctx context.Context, actor, id uuid.UUID) (service.Organization, error) {
		return service.Organization{}, service.ErrNotFound
	}}

	resp := httptest.NewRecorder()
	newRouter(t, svc).ServeHTTP(resp, authedRequest(http.MethodGet, "/organizations/"+uuid.NewString(), "", uuid.New()))

	require.Equal(t, http.StatusNotFound, resp.Code)

	var body problem.Details
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, problem.TypeNotFound, body.Type)
}

func TestGetRejectsMalformedID(t *testing.T) {
	t.Parallel()

	resp := httptest.NewRecorder()
	newRouter(t, &mockService{}).ServeHTTP(resp, authedRequest(http.MethodGet, "/organizations/acme", "", uuid.New()))

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestListPassesQuery(t *testing.T) {
	t.Parallel()

	svc := &mockService{listFn: func(ctx context.Context, actor uuid.UUID, opts service.ListOptions) (service.ListResult, error) {
		require.Equal(t, 3, opts.Page)
		require.Equal(t, 10, opts.PageSize)
		require.True(t, opts.ActiveOnly)
		require.Equal(t, "acme", *opts.Search)
		return service.ListResult{Organizations: []service.Organization{}, Page: 3, PageSize: 10}, nil
	}}

	resp := httptest.NewRecorder()
	newRouter(t, svc).ServeHTTP(resp, authedRequest(http.MethodGet, "/organizations?page=3&pageSize=10&activeOnly=true&q=acme", "", uuid.New()))

	require.Equal(t, http.StatusOK, resp.Code)
}

func TestUpdateForbidden(t *testing.T) {
	t.Parallel()

	svc := &mockService{updateFn: func(ctx context.Context, actor, id uuid.UUID, input service.UpdateInput) (service.Organization, error) {
		require.NotNil(t, input.Tier)
		return service.Organization{}, service.ErrForbidden
	}}

	resp := httptest.NewRecorder()
	newRouter(t, svc).ServeHTTP(resp, authedRequest(http.MethodPatch, "/organizations/"+uuid.NewString(), `{"tier":"enterprise"}`, uuid.New()))

	require.Equal(t, http.StatusForbidden, resp.Code)
}

func TestActivationRequiresFlag(t *testing.T) {
	t.Parallel()

	orgID := uuid.New()
	svc := &mockService{setActiveFn: func(ctx context.Context, actor, id uuid.UUID, active bool) (service.Organization, error) {
		require.Equal(t, orgID, id)
		require.False(t, active)
		return service.Organization{ID: id}, nil
	}}
	router := newRouter(t, svc)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodPut, "/organizations/"+orgID.String()+"/activation", `{}`, uuid.New()))
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodPut, "/organizations/"+orgID.String()+"/activation", `{"isActive":false}`, uuid.New()))
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestDeleteInUseIsConflict(t *testing.T) {
	t.Parallel()

	svc := &mockService{deleteFn: func(ctx context.Context, actor, id uuid.UUID) error {
		return service.ErrInUse
	}}

	resp := httptest.NewRecorder()
	newRouter(t, svc).ServeHTTP(resp, authedRequest(http.MethodDelete, "/organizations/"+uuid.NewString(), "", uuid.New()))

	require.Equal(t, http.StatusConflict, resp.Code)
}
