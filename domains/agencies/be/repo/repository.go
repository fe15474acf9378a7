package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
)

// Repository defines the persistence operations required by the agencies service.
type Repository interface {
	Upsert(ctx context.Context, agencyOrgID, clientOrgID uuid.UUID) (persistence.AgencyGrant, error)
	SetActive(ctx context.Context, agencyOrgID, clientOrgID uuid.UUID, active bool) (persistence.AgencyGrant, error)
	ListClients(ctx context.Context, agencyOrgID uuid.UUID, activeOnly bool) ([]persistence.AgencyLink, error)
	ListAgencies(ctx context.Context, clientOrgID uuid.UUID, activeOnly bool) ([]persistence.AgencyLink, error)
}

type postgresRepository struct {
	store *persistence.AgencyStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(store *persistence.AgencyStore) Repository {
	if store == nil {
		panic("agency store is required")
	}
	return &postgresRepository{store: store}
}

func (r *postgresRepository) Upsert(ctx context.Context, agencyOrgID, clientOrgID uuid.UUID) (persistence.AgencyGrant, error) {
	return r.store.UpsertGrant(ctx, agencyOrgID, clientOrgID)
}

func (r *postgresRepository) SetActive(ctx context.Context, agencyOrgID, clientOrgID uuid.UUID, active bool) (persistence.AgencyGrant, error) {
	return r.store.SetGrantActive(ctx, agencyOrgID, clientOrgID, active)
}

func (r *postgresRepository) ListClients(ctx context.Context, agencyOrgID uuid.UUID, activeOnly bool) ([]persistence.AgencyLink, error) {
	return r.store.ListClients(ctx, agencyOrgID, activeOnly)
}

func (r *postgresRepository) ListAgencies(ctx context.Context, clientOrgID uuid.UUID, activeOnly bool) ([]persistence.AgencyLink, error) {
	return r.store.ListAgencies(ctx, clientOrgID, activeOnly)
}
