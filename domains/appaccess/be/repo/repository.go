package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
)

// Repository defines the persistence operations required by the app access service.
type Repository interface {
	Grant(ctx context.Context, params persistence.GrantAppParams) (persistence.AppAccess, error)
	Revoke(ctx context.Context, orgID, accessID uuid.UUID) error
	ListApps(ctx context.Context, viewerID, orgID uuid.UUID) ([]persistence.AppAccess, error)
	ListReviews(ctx context.Context, viewerID uuid.UUID, params persistence.ListReviewsParams) (persistence.ListReviewsResult, error)
}

type postgresRepository struct {
	store *persistence.AppAccessStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(store *persistence.AppAccessStore) Repository {
	if store == nil {
		panic("app access store is required")
	}
	return &postgresRepository{store: store}
}

func (r *postgresRepository) Grant(ctx context.Context, params persistence.GrantAppParams) (persistence.AppAccess, error) {
	return r.store.GrantApp(ctx, params)
}

func (r *postgresRepository) Revoke(ctx context.Context, orgID, accessID uuid.UUID) error {
	return r.store.RevokeApp(ctx, orgID, accessID)
}

func (r *postgresRepository) ListApps(ctx context.Context, viewerID, orgID uuid.UUID) ([]persistence.AppAccess, error) {
	return r.store.ListApps(ctx, viewerID, orgID)
}

func (r *postgresRepository) ListReviews(ctx context.Context, viewerID uuid.UUID, params persistence.ListReviewsParams) (persistence.ListReviewsResult, error) {
	return r.store.ListReviews(ctx, viewerID, params)
}
