package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
)

// Repository defines the persistence operations required by the organizations service.
type Repository interface {
	Create(ctx context.Context, params persistence.CreateOrganizationParams) (persistence.Organization, error)
	Get(ctx context.Context, id uuid.UUID) (persistence.Organization, error)
	List(ctx context.Context, params persistence.ListOrganizationsParams) (persistence.ListOrganizationsResult, error)
	Update(ctx context.Context, id uuid.UUID, params persistence.UpdateOrganizationParams) (persistence.Organization, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type postgresRepository struct {
	store *persistence.OrganizationStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(store *persistence.OrganizationStore) Repository {
	if store == nil {
		panic("organization store is required")
	}
	return &postgresRepository{store: store}
}

func (r *postgresRepository) Create(ctx context.Context, params persistence.CreateOrganizationParams) (persistence.Organization, error) {
	return r.store.CreateOrganization(ctx, params)
}

func (r *postgresRepository) Get(ctx context.Context, id uuid.UUID) (persistence.Organization, error) {
	return r.store.GetOrganization(ctx, id)
}

func (r *postgresRepository) List(ctx context.Context, params persistence.ListOrganizationsParams) (persistence.ListOrganizationsResult, error) {
	return r.store.ListOrganizations(ctx, params)
}

func (r *postgresRepository) Update(ctx context.Context, id uuid.UUID, params persistence.UpdateOrganizationParams) (persistence.Organization, error) {
	return r.store.UpdateOrganization(ctx, id, params)
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.store.DeleteOrganization(ctx, id)
}
