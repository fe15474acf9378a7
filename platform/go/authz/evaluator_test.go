package authz_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/aso-insight/platform/go/authz"
	"github.com/zenGate-Global/aso-insight/platform/go/authz/authztest"
	"github.com/zenGate-Global/aso-insight/platform/go/metrics"
)

func newEvaluator(src authz.Source) *authz.Evaluator {
	return authz.NewEvaluator(src, authz.Config{CacheSize: 128, CacheTTL: time.Minute})
}

func TestDirectMembership(t *testing.T) {
	ctx := context.Background()
	src := authztest.NewSource()
	user, orgX, orgY := uuid.New(), uuid.New(), uuid.New()
	src.SetRole(user, orgX, authz.RoleOrgAdmin)

	e := newEvaluator(src)

	decision, err := e.Decide(ctx, user, orgX)
	require.NoError(t, err)
	require.Equal(t, authz.Decision{Allowed: true, Path: authz.PathDirect}, decision)

	allowed, err := e.CanAccessOrganization(ctx, user, orgY)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestAgencyGrantRequiresActiveGrant(t *testing.T) {
	ctx := context.Background()
	src := authztest.NewSource()
	user, agency, client := uuid.New(), uuid.New(), uuid.New()
	src.SetRole(user, agency, authz.RoleOrgAdmin)
	src.SetGrant(agency, client, true)

	e := newEvaluator(src)

	decision, err := e.Decide(ctx, user, client)
	require.NoError(t, err)
	require.Equal(t, authz.Decision{Allowed: true, Path: authz.PathAgency}, decision)

	src.SetGrant(agency, client, false)

	allowed, err := e.CanAccessOrganization(ctx, user, client)
	require.NoError(t, err)
	require.False(t, allowed, "deactivated grant must deny on the very next evaluation")
}

func TestAgencyGrantGatedToOrgAdmin(t *testing.T) {
	ctx := context.Background()
	agency, client := uuid.New(), uuid.New()

	for _, role := range []authz.Role{authz.RoleManager, authz.RoleAnalyst, authz.RoleViewer, authz.RoleClient} {
		role := role
		t.Run(role.String(), func(t *testing.T) {
			src := authztest.NewSource()
			user := uuid.New()
			src.SetRole(user, agency, role)
			src.SetGrant(agency, client, true)

			e := newEvaluator(src)

			allowed, err := e.CanAccessOrganization(ctx, user, client)
			require.NoError(t, err)
			require.False(t, allowed)
			require.Zero(t, src.GrantCalls, "grant lookup is skipped below ORG_ADMIN")

			allowed, err = e.CanAccessOrganization(ctx, user, agency)
			require.NoError(t, err)
			require.True(t, allowed)
		})
	}
}

func TestSuperAdminAccessesEverything(t *testing.T) {
	ctx := context.Background()
	src := authztest.NewSource()
	admin := uuid.New()
	src.SetRole(admin, uuid.Nil, authz.RoleSuperAdmin)

	e := newEvaluator(src)

	decision, err := e.Decide(ctx, admin, uuid.New())
	require.NoError(t, err)
	require.Equal(t, authz.PathSuperAdmin, decision.Path)

	isAdmin, err := e.IsSuperAdmin(ctx, admin)
	require.NoError(t, err)
	require.True(t, isAdmin)

	canManage, err := e.CanManageOrganization(ctx, admin, uuid.New())
	require.NoError(t, err)
	require.True(t, canManage)
}

func TestUnknownUserIsDenied(t *testing.T) {
	ctx := context.Background()
	e := newEvaluator(authztest.NewSource())

	decision, err := e.Decide(ctx, uuid.New(), uuid.New())
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	_, err = e.Permission(ctx, uuid.New())
	require.ErrorIs(t, err, authz.ErrNoAssignment)

	decision, err = e.Decide(ctx, uuid.Nil, uuid.New())
	require.NoError(t, err)
	require.Equal(t, authz.PathDenied, decision.Path)
}

func TestCanManageOrganization(t *testing.T) {
	ctx := context.Background()
	src := authztest.NewSource()
	admin, manager, agency, client := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	src.SetRole(admin, agency, authz.RoleOrgAdmin)
	src.SetRole(manager, agency, authz.RoleManager)
	src.SetGrant(agency, client, true)

	e := newEvaluator(src)

	ok, err := e.CanManageOrganization(ctx, admin, agency)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.CanManageOrganization(ctx, admin, client)
	require.NoError(t, err)
	require.False(t, ok, "agency access never confers management")

	ok, err = e.CanManageOrganization(ctx, manager, agency)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestProjectionCacheAndInvalidate(t *testing.T) {
	ctx := context.Background()
	src := authztest.NewSource()
	user, orgA, orgB := uuid.New(), uuid.New(), uuid.New()
	src.SetRole(user, orgA, authz.RoleViewer)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	e := authz.NewEvaluator(src, authz.Config{CacheSize: 16, CacheTTL: time.Minute, Metrics: m})

	for i := 0; i < 3; i++ {
		allowed, err := e.CanAccessOrganization(ctx, user, orgA)
		require.NoError(t, err)
		require.True(t, allowed)
	}
	require.Equal(t, 1, src.PermissionCalls)
	require.Equal(t, 2.0, testutil.ToFloat64(m.PermissionCache.WithLabelValues("hit")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.AccessDecisions.WithLabelValues("direct")))

	src.SetRole(user, orgB, authz.RoleViewer)
	e.Invalidate(user)

	allowed, err := e.CanAccessOrganization(ctx, user, orgA)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, 2, src.PermissionCalls)
}

func TestNegativeLookupsAreCachedUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	src := authztest.NewSource()
	user, org := uuid.New(), uuid.New()

	e := newEvaluator(src)

	allowed, err := e.CanAccessOrganization(ctx, user, org)
	require.NoError(t, err)
	require.False(t, allowed)

	src.SetRole(user, org, authz.RoleAnalyst)
	e.Invalidate(user)

	allowed, err = e.CanAccessOrganization(ctx, user, org)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestCacheDisabledReadsSourceEveryTime(t *testing.T) {
	ctx := context.Background()
	src := authztest.NewSource()
	user, org := uuid.New(), uuid.New()
	src.SetRole(user, org, authz.RoleAnalyst)

	e := authz.NewEvaluator(src, authz.Config{})

	for i := 0; i < 3; i++ {
		_, err := e.CanAccessOrganization(ctx, user, org)
		require.NoError(t, err)
	}
	require.Equal(t, 3, src.PermissionCalls)
}

type failingSource struct{ err error }

func (f failingSource) Permission(context.Context, uuid.UUID) (authz.Permission, error) {
	return authz.Permission{}, f.err
}

func (f failingSource) ActiveGrant(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return false, f.err
}

func TestSourceErrorsPropagate(t *testing.T) {
	boom := errors.New("connection reset")
	e := newEvaluator(failingSource{err: boom})

	_, err := e.CanAccessOrganization(context.Background(), uuid.New(), uuid.New())
	require.ErrorIs(t, err, boom)

	_, err = e.IsSuperAdmin(context.Background(), uuid.New())
	require.ErrorIs(t, err, boom)
}

func TestDecideIsIdempotentUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	src := authztest.NewSource()
	user, agency, client := uuid.New(), uuid.New(), uuid.New()
	src.SetRole(user, agency, authz.RoleOrgAdmin)
	src.SetGrant(agency, client, true)

	e := newEvaluator(src)

	var wg sync.WaitGroup
	results := make([]authz.Decision, 32)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.Decide(ctx, user, client)
		}(i)
	}
	wg.Wait()

	for i, d := range results {
		require.NoError(t, errs[i])
		require.Equal(t, authz.Decision{Allowed: true, Path: authz.PathAgency}, d)
	}
}
