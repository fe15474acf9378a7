package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const AgencyClientsTable = Schema + ".agency_clients"

// AgencyGrant lets ORG_ADMINs of AgencyOrgID access ClientOrgID while active.
type AgencyGrant struct {
	ID          uuid.UUID `db:"id" json:"id"`
	AgencyOrgID uuid.UUID `db:"agency_org_id" json:"agencyOrgId"`
	ClientOrgID uuid.UUID `db:"client_org_id" json:"clientOrgId"`
	IsActive    bool      `db:"is_active" json:"isActive"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// AgencyLink is a grant annotated with the organization on the other side.
type AgencyLink struct {
	AgencyGrant
	CounterpartName string `json:"counterpartName"`
	CounterpartSlug string `json:"counterpartSlug"`
}

var (
	// ErrAgencyGrantNotFound indicates no grant exists for the pair.
	ErrAgencyGrantNotFound = errors.New("agency grant not found")
	// ErrAgencyGrantInvalid indicates a self-grant or an unknown organization.
	ErrAgencyGrantInvalid = errors.New("agency grant invalid")
)

const agencyColumns = `id, agency_org_id, client_org_id, is_active, created_at, updated_at`

// AgencyStore exposes persistence helpers for agency_clients.
type AgencyStore struct {
	pool *pgxpool.Pool
}

// NewAgencyStore returns a store; migrations own the table.
func NewAgencyStore(ctx context.Context, pool *pgxpool.Pool) (*AgencyStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &AgencyStore{pool: pool}, nil
}

// UpsertGrant creates the grant for the pair, or reactivates an existing one.
func (s *AgencyStore) UpsertGrant(ctx context.Context, agencyOrgID, clientOrgID uuid.UUID) (AgencyGrant, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (agency_org_id, client_org_id)
        VALUES ($1, $2)
        ON CONFLICT (agency_org_id, client_org_id) DO UPDATE
            SET is_active = TRUE, updated_at = NOW()
        RETURNING %s
    `, AgencyClientsTable, agencyColumns), agencyOrgID, clientOrgID)

	grant, err := scanAgencyGrant(row)
	if err != nil {
		return AgencyGrant{}, mapAgencyError(err)
	}
	return grant, nil
}

// SetGrantActive toggles an existing grant. Grants are never deleted.
func (s *AgencyStore) SetGrantActive(ctx context.Context, agencyOrgID, clientOrgID uuid.UUID, active bool) (AgencyGrant, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET is_active = $3, updated_at = NOW()
        WHERE agency_org_id = $1 AND client_org_id = $2
        RETURNING %s
    `, AgencyClientsTable, agencyColumns), agencyOrgID, clientOrgID, active)

	grant, err := scanAgencyGrant(row)
	if err != nil {
		return AgencyGrant{}, mapAgencyError(err)
	}
	return grant, nil
}

// GetGrant returns the grant for the pair.
func (s *AgencyStore) GetGrant(ctx context.Context, agencyOrgID, clientOrgID uuid.UUID) (AgencyGrant, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE agency_org_id = $1 AND client_org_id = $2
    `, agencyColumns, AgencyClientsTable), agencyOrgID, clientOrgID)

	grant, err := scanAgencyGrant(row)
	if err != nil {
		return AgencyGrant{}, mapAgencyError(err)
	}
	return grant, nil
}

// ListClients returns the grants held by an agency.
func (s *AgencyStore) ListClients(ctx context.Context, agencyOrgID uuid.UUID, activeOnly bool) ([]AgencyLink, error) {
	return s.listLinks(ctx, "agency_org_id", "client_org_id", agencyOrgID, activeOnly)
}

// ListAgencies returns the grants that target a client organization.
func (s *AgencyStore) ListAgencies(ctx context.Context, clientOrgID uuid.UUID, activeOnly bool) ([]AgencyLink, error) {
	return s.listLinks(ctx, "client_org_id", "agency_org_id", clientOrgID, activeOnly)
}

func (s *AgencyStore) listLinks(ctx context.Context, ownColumn, counterpartColumn string, orgID uuid.UUID, activeOnly bool) ([]AgencyLink, error) {
	query := fmt.Sprintf(`
        SELECT ac.id, ac.agency_org_id, ac.client_org_id, ac.is_active, ac.created_at, ac.updated_at, o.name, o.slug
        FROM %s ac
        JOIN %s o ON o.id = ac.%s
        WHERE ac.%s = $1 AND ($2 = FALSE OR ac.is_active)
        ORDER BY o.name ASC
    `, AgencyClientsTable, OrganizationsTable, counterpartColumn, ownColumn)

	rows, err := s.pool.Query(ctx, query, orgID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list agency grants: %w", err)
	}
	defer rows.Close()

	links := make([]AgencyLink, 0)
	for rows.Next() {
		var link AgencyLink
		if err := rows.Scan(
			&link.ID,
			&link.AgencyOrgID,
			&link.ClientOrgID,
			&link.IsActive,
			&link.CreatedAt,
			&link.UpdatedAt,
			&link.CounterpartName,
			&link.CounterpartSlug,
		); err != nil {
			return nil, fmt.Errorf("scan agency grant: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agency grants: %w", err)
	}
	return links, nil
}

func mapAgencyError(err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrAgencyGrantNotFound
	case isCheckViolation(err), isForeignKeyViolation(err):
		return fmt.Errorf("%w: %s", ErrAgencyGrantInvalid, violatedConstraintOr(err, "agency_clients"))
	default:
		return err
	}
}

func scanAgencyGrant(row pgx.Row) (AgencyGrant, error) {
	var grant AgencyGrant
	if err := row.Scan(
		&grant.ID,
		&grant.AgencyOrgID,
		&grant.ClientOrgID,
		&grant.IsActive,
		&grant.CreatedAt,
		&grant.UpdatedAt,
	); err != nil {
		return AgencyGrant{}, err
	}
	return grant, nil
}
