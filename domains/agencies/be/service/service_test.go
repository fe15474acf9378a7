package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/aso-insight/platform/go/auditlog"
	"github.com/zenGate-Global/aso-insight/platform/go/authz"
	"github.com/zenGate-Global/aso-insight/platform/go/authz/authztest"
	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
	"github.com/zenGate-Global/aso-insight/platform/go/problem"
)

type mockRepository struct {
	upsertFn       func(ctx context.Context, agencyOrgID, clientOrgID uuid.UUID) (persistence.AgencyGrant, error)
	setActiveFn    func(ctx context.Context, agencyOrgID, clientOrgID uuid.UUID, active bool) (persistence.AgencyGrant, error)
	listClientsFn  func(ctx context.Context, agencyOrgID uuid.UUID, activeOnly bool) ([]persistence.AgencyLink, error)
	listAgenciesFn func(ctx context.Context, clientOrgID uuid.UUID, activeOnly bool) ([]persistence.AgencyLink, error)
}

func (m *mockRepository) Upsert(ctx context.Context, agencyOrgID, clientOrgID uuid.UUID) (persistence.AgencyGrant, error) {
	if m.upsertFn == nil {
		panic("upsertFn not configured")
	}
	return m.upsertFn(ctx, agencyOrgID, clientOrgID)
}

func (m *mockRepository) SetActive(ctx context.Context, agencyOrgID, clientOrgID uuid.UUID, active bool) (persistence.AgencyGrant, error) {
	if m.setActiveFn == nil {
		panic("setActiveFn not configured")
	}
	return m.setActiveFn(ctx, agencyOrgID, clientOrgID, active)
}

func (m *mockRepository) ListClients(ctx context.Context, agencyOrgID uuid.UUID, activeOnly bool) ([]persistence.AgencyLink, error) {
	if m.listClientsFn == nil {
		panic("listClientsFn not configured")
	}
	return m.listClientsFn(ctx, agencyOrgID, activeOnly)
}

func (m *mockRepository) ListAgencies(ctx context.Context, clientOrgID uuid.UUID, activeOnly bool) ([]persistence.AgencyLink, error) {
	if m.listAgenciesFn == nil {
		panic("listAgenciesFn not configured")
	}
	return m.listAgenciesFn(ctx, clientOrgID, activeOnly)
}

type auditSink struct {
	events []persistence.AuditEvent
}

func (s *auditSink) LogEvent(ctx context.Context, event persistence.AuditEvent) (uuid.UUID, error) {
	s.events = append(s.events, event)
	return uuid.New(), nil
}

type fixture struct {
	source      *authztest.Source
	evaluator   *authz.Evaluator
	superAdmin  uuid.UUID
	agencyAdmin uuid.UUID
	agencyUser  uuid.UUID
	agency      uuid.UUID
	client      uuid.UUID
}

func newFixture() fixture {
	f := fixture{
		source:      authztest.NewSource(),
		superAdmin:  uuid.New(),
		agencyAdmin: uuid.New(),
		agencyUser:  uuid.New(),
		agency:      uuid.New(),
		client:      uuid.New(),
	}
	f.evaluator = authz.NewEvaluator(f.source, authz.Config{})
	f.source.SetRole(f.superAdmin, uuid.Nil, authz.RoleSuperAdmin)
	f.source.SetRole(f.agencyAdmin, f.agency, authz.RoleOrgAdmin)
	f.source.SetRole(f.agencyUser, f.agency, authz.RoleManager)
	return f
}

func grantRepository(f fixture) *mockRepository {
	return &mockRepository{
		upsertFn: func(ctx context.Context, agencyOrgID, clientOrgID uuid.UUID) (persistence.AgencyGrant, error) {
			f.source.SetGrant(agencyOrgID, clientOrgID, true)
			return persistence.AgencyGrant{ID: uuid.New(), AgencyOrgID: agencyOrgID, ClientOrgID: clientOrgID, IsActive: true, CreatedAt: time.Now()}, nil
		},
		setActiveFn: func(ctx context.Context, agencyOrgID, clientOrgID uuid.UUID, active bool) (persistence.AgencyGrant, error) {
			f.source.SetGrant(agencyOrgID, clientOrgID, active)
			return persistence.AgencyGrant{ID: uuid.New(), AgencyOrgID: agencyOrgID, ClientOrgID: clientOrgID, IsActive: active}, nil
		},
	}
}

func TestGrantRejectsSelfGrant(t *testing.T) {
	t.Parallel()
	f := newFixture()
	svc := New(&mockRepository{}, f.evaluator, nil, Config{})

	_, err := svc.Grant(context.Background(), f.superAdmin, GrantInput{AgencyOrgID: f.agency, ClientOrgID: f.agency})
	var validationErr *problem.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Fields, "clientOrgId")
}

func TestGrantBySuperAdminOpensAccess(t *testing.T) {
	t.Parallel()
	f := newFixture()
	svc := New(grantRepository(f), f.evaluator, nil, Config{})
	ctx := context.Background()

	_, err := svc.Grant(ctx, f.superAdmin, GrantInput{AgencyOrgID: f.agency, ClientOrgID: f.client})
	require.NoError(t, err)

	ok, err := f.evaluator.CanAccessOrganization(ctx, f.agencyAdmin, f.client)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.evaluator.CanAccessOrganization(ctx, f.agencyUser, f.client)
	require.NoError(t, err)
	require.False(t, ok, "agency access is limited to ORG_ADMIN")

	_, err = svc.SetActive(ctx, f.superAdmin, GrantInput{AgencyOrgID: f.agency, ClientOrgID: f.client}, false)
	require.NoError(t, err)

	ok, err = f.evaluator.CanAccessOrganization(ctx, f.agencyAdmin, f.client)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSelfServeGate(t *testing.T) {
	t.Parallel()
	f := newFixture()
	sink := &auditSink{}
	recorder := auditlog.NewRecorder(sink, zaptest.NewLogger(t), nil)
	input := GrantInput{AgencyOrgID: f.agency, ClientOrgID: f.client}

	locked := New(grantRepository(f), f.evaluator, recorder, Config{SelfServe: false})
	_, err := locked.Grant(context.Background(), f.agencyAdmin, input)
	require.ErrorIs(t, err, ErrForbidden)
	require.Len(t, sink.events, 1)
	require.Equal(t, persistence.AuditStatusDenied, sink.events[0].Status)

	open := New(grantRepository(f), f.evaluator, recorder, Config{SelfServe: true})
	_, err = open.Grant(context.Background(), f.agencyAdmin, input)
	require.NoError(t, err)
	require.Equal(t, persistence.AuditStatusSuccess, sink.events[1].Status)

	_, err = open.Grant(context.Background(), f.agencyUser, input)
	require.ErrorIs(t, err, ErrForbidden)

	outsider := uuid.New()
	f.source.SetRole(outsider, uuid.New(), authz.RoleOrgAdmin)
	_, err = open.Grant(context.Background(), outsider, input)
	require.ErrorIs(t, err, problem.ErrNotFound)
}

func linksRepository(f fixture, rival uuid.UUID) *mockRepository {
	return &mockRepository{
		listClientsFn: func(ctx context.Context, agencyOrgID uuid.UUID, activeOnly bool) ([]persistence.AgencyLink, error) {
			return []persistence.AgencyLink{{
				AgencyGrant:     persistence.AgencyGrant{AgencyOrgID: agencyOrgID, ClientOrgID: f.client, IsActive: true},
				CounterpartName: "Client Co",
				CounterpartSlug: "client-co",
			}}, nil
		},
		listAgenciesFn: func(ctx context.Context, clientOrgID uuid.UUID, activeOnly bool) ([]persistence.AgencyLink, error) {
			return []persistence.AgencyLink{
				{AgencyGrant: persistence.AgencyGrant{AgencyOrgID: f.agency, ClientOrgID: clientOrgID, IsActive: true}},
				{AgencyGrant: persistence.AgencyGrant{AgencyOrgID: rival, ClientOrgID: clientOrgID, IsActive: true}},
			}, nil
		},
	}
}

func TestListClientsRequiresAgencyManager(t *testing.T) {
	t.Parallel()
	f := newFixture()
	svc := New(linksRepository(f, uuid.New()), f.evaluator, nil, Config{})
	ctx := context.Background()

	grants, err := svc.ListClients(ctx, f.agencyAdmin, f.agency, true)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	require.Equal(t, "client-co", grants[0].CounterpartSlug)

	_, err = svc.ListClients(ctx, f.agencyUser, f.agency, true)
	require.ErrorIs(t, err, problem.ErrForbidden)

	_, err = svc.ListClients(ctx, uuid.New(), f.agency, true)
	require.ErrorIs(t, err, problem.ErrNotFound)
}

func TestListAgenciesHiddenFromAgenciesAndClientViewers(t *testing.T) {
	t.Parallel()
	f := newFixture()
	rival := uuid.New()
	f.source.SetGrant(f.agency, f.client, true)
	f.source.SetGrant(rival, f.client, true)

	clientViewer, clientAdmin := uuid.New(), uuid.New()
	f.source.SetRole(clientViewer, f.client, authz.RoleViewer)
	f.source.SetRole(clientAdmin, f.client, authz.RoleOrgAdmin)

	svc := New(linksRepository(f, rival), f.evaluator, nil, Config{})
	ctx := context.Background()

	// The agency admin can open the client through its grant but must not
	// learn which other agencies serve it.
	grants, err := svc.ListAgencies(ctx, f.agencyAdmin, f.client, true)
	require.ErrorIs(t, err, problem.ErrForbidden)
	require.Nil(t, grants)

	_, err = svc.ListAgencies(ctx, clientViewer, f.client, true)
	require.ErrorIs(t, err, problem.ErrForbidden)

	_, err = svc.ListAgencies(ctx, f.agencyUser, f.client, true)
	require.ErrorIs(t, err, problem.ErrNotFound)

	grants, err = svc.ListAgencies(ctx, clientAdmin, f.client, false)
	require.NoError(t, err)
	require.Len(t, grants, 2)

	grants, err = svc.ListAgencies(ctx, f.superAdmin, f.client, false)
	require.NoError(t, err)
	require.Len(t, grants, 2)
}

func TestSetActiveMissingGrant(t *testing.T) {
	t.Parallel()
	f := newFixture()
	r := &mockRepository{setActiveFn: func(ctx context.Context, agencyOrgID, clientOrgID uuid.UUID, active bool) (persistence.AgencyGrant, error) {
		return persistence.AgencyGrant{}, persistence.ErrAgencyGrantNotFound
	}}
	svc := New(r, f.evaluator, nil, Config{})

	_, err := svc.SetActive(context.Background(), f.superAdmin, GrantInput{AgencyOrgID: f.agency, ClientOrgID: f.client}, true)
	require.ErrorIs(t, err, ErrNotFound)
}
