package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/zenGate-Global/aso-insight/platform/go/metrics"
)

// ErrNoAssignment is returned by a Source when the user has no role row.
var ErrNoAssignment = errors.New("no role assignment")

// Source reads authoritative authorization state.
type Source interface {
	// Permission returns the projection for userID or ErrNoAssignment.
	Permission(ctx context.Context, userID uuid.UUID) (Permission, error)
	// ActiveGrant reports whether an active agency grant exists from agencyOrgID to clientOrgID.
	ActiveGrant(ctx context.Context, agencyOrgID, clientOrgID uuid.UUID) (bool, error)
}

// AccessPath names the rule that decided an access check.
type AccessPath string

const (
	PathSuperAdmin AccessPath = "super_admin"
	PathDirect     AccessPath = "direct"
	PathAgency     AccessPath = "agency"
	PathDenied     AccessPath = "denied"
)

// Decision is the outcome of an organization access check.
type Decision struct {
	Allowed bool
	Path    AccessPath
}

// Config tunes the projection cache. A non-positive CacheSize disables caching.
type Config struct {
	CacheSize int
	CacheTTL  time.Duration
	Metrics   *metrics.Metrics
}

type cachedPermission struct {
	permission Permission
	found      bool
}

// Evaluator answers access questions with the same rules as
// insight.can_access_organization. Role projections are cached per user and
// dropped by Invalidate; agency grants are always read from the Source so a
// deactivated grant stops granting on the next call.
type Evaluator struct {
	source  Source
	cache   *lru.LRU[uuid.UUID, cachedPermission]
	metrics *metrics.Metrics
}

// NewEvaluator builds an Evaluator over source.
func NewEvaluator(source Source, cfg Config) *Evaluator {
	if source == nil {
		panic("authz source is required")
	}

	e := &Evaluator{source: source, metrics: cfg.Metrics}
	if cfg.CacheSize > 0 {
		e.cache = lru.NewLRU[uuid.UUID, cachedPermission](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return e
}

// Permission returns the user's projection or ErrNoAssignment.
func (e *Evaluator) Permission(ctx context.Context, userID uuid.UUID) (Permission, error) {
	if userID == uuid.Nil {
		return Permission{}, ErrNoAssignment
	}

	if e.cache != nil {
		if cached, ok := e.cache.Get(userID); ok {
			e.metrics.ObserveCache(true)
			if !cached.found {
				return Permission{}, ErrNoAssignment
			}
			return cached.permission, nil
		}
		e.metrics.ObserveCache(false)
	}

	perm, err := e.source.Permission(ctx, userID)
	switch {
	case err == nil:
		e.store(userID, cachedPermission{permission: perm, found: true})
		return perm, nil
	case errors.Is(err, ErrNoAssignment):
		e.store(userID, cachedPermission{})
		return Permission{}, ErrNoAssignment
	default:
		return Permission{}, fmt.Errorf("load permission: %w", err)
	}
}

func (e *Evaluator) store(userID uuid.UUID, entry cachedPermission) {
	if e.cache != nil {
		e.cache.Add(userID, entry)
	}
}

// IsSuperAdmin reports whether userID holds the platform role.
func (e *Evaluator) IsSuperAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	perm, err := e.Permission(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoAssignment) {
			return false, nil
		}
		return false, err
	}
	return perm.IsSuperAdmin, nil
}

// Decide evaluates super admin, direct membership, then an active agency grant
// held by an ORG_ADMIN of the agency.
func (e *Evaluator) Decide(ctx context.Context, userID, orgID uuid.UUID) (Decision, error) {
	decision, err := e.decide(ctx, userID, orgID)
	if err != nil {
		return Decision{}, err
	}
	e.metrics.ObserveAccess(string(decision.Path))
	return decision, nil
}

func (e *Evaluator) decide(ctx context.Context, userID, orgID uuid.UUID) (Decision, error) {
	denied := Decision{Path: PathDenied}
	if userID == uuid.Nil || orgID == uuid.Nil {
		return denied, nil
	}

	perm, err := e.Permission(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoAssignment) {
			return denied, nil
		}
		return Decision{}, err
	}

	if perm.IsSuperAdmin {
		return Decision{Allowed: true, Path: PathSuperAdmin}, nil
	}
	if perm.MemberOf(orgID) {
		return Decision{Allowed: true, Path: PathDirect}, nil
	}
	if !perm.IsOrgAdmin || perm.OrganizationID == nil {
		return denied, nil
	}

	active, err := e.source.ActiveGrant(ctx, *perm.OrganizationID, orgID)
	if err != nil {
		return Decision{}, fmt.Errorf("load agency grant: %w", err)
	}
	if active {
		return Decision{Allowed: true, Path: PathAgency}, nil
	}
	return denied, nil
}

// CanAccessOrganization is Decide reduced to its boolean.
func (e *Evaluator) CanAccessOrganization(ctx context.Context, userID, orgID uuid.UUID) (bool, error) {
	decision, err := e.Decide(ctx, userID, orgID)
	if err != nil {
		return false, err
	}
	return decision.Allowed, nil
}

// CanManageOrganization mirrors insight.can_manage_organization: super admins,
// or ORG_ADMIN members of orgID. Agency access never confers management.
func (e *Evaluator) CanManageOrganization(ctx context.Context, userID, orgID uuid.UUID) (bool, error) {
	perm, err := e.Permission(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoAssignment) {
			return false, nil
		}
		return false, err
	}
	if perm.IsSuperAdmin {
		return true, nil
	}
	return perm.Role == RoleOrgAdmin && perm.MemberOf(orgID), nil
}

// Invalidate drops cached projections, typically after a role write.
func (e *Evaluator) Invalidate(userIDs ...uuid.UUID) {
	if e.cache == nil {
		return
	}
	for _, id := range userIDs {
		e.cache.Remove(id)
	}
}

// Purge empties the projection cache.
func (e *Evaluator) Purge() {
	if e.cache != nil {
		e.cache.Purge()
	}
}
