package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
)

// Repository reads the audit trail under the viewer's session.
type Repository interface {
	List(ctx context.Context, viewerID uuid.UUID, params persistence.ListAuditLogsParams) (persistence.ListAuditLogsResult, error)
}

type postgresRepository struct {
	store *persistence.AuditStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(store *persistence.AuditStore) Repository {
	if store == nil {
		panic("audit store is required")
	}
	return &postgresRepository{store: store}
}

func (r *postgresRepository) List(ctx context.Context, viewerID uuid.UUID, params persistence.ListAuditLogsParams) (persistence.ListAuditLogsResult, error) {
	return r.store.ListAuditLogs(ctx, viewerID, params)
}
