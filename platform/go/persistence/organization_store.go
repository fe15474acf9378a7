package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const OrganizationsTable = Schema + ".organizations"

// Organization tiers and the app quota each one starts with.
const (
	TierDemo       = "demo"
	TierStandard   = "standard"
	TierEnterprise = "enterprise"
)

var tierMaxApps = map[string]int{
	TierDemo:       3,
	TierStandard:   25,
	TierEnterprise: 250,
}

// DefaultMaxApps returns the app quota for tier and whether tier is known.
func DefaultMaxApps(tier string) (int, bool) {
	n, ok := tierMaxApps[tier]
	return n, ok
}

// Organization represents a tenant row.
type Organization struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Slug      string          `db:"slug" json:"slug"`
	Tier      string          `db:"tier" json:"tier"`
	IsActive  bool            `db:"is_active" json:"isActive"`
	MaxApps   int             `db:"max_apps" json:"maxApps"`
	Settings  json.RawMessage `db:"settings" json:"settings"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

var (
	// ErrOrganizationNotFound indicates a missing organization.
	ErrOrganizationNotFound = errors.New("organization not found")
	// ErrOrganizationConflict indicates a duplicated slug.
	ErrOrganizationConflict = errors.New("organization conflict")
	// ErrOrganizationInvalid indicates a rejected check constraint, including slug changes.
	ErrOrganizationInvalid = errors.New("organization invalid")
	// ErrOrganizationInUse indicates dependent rows still reference the organization.
	ErrOrganizationInUse = errors.New("organization in use")
)

const organizationColumns = `id, name, slug, tier, is_active, max_apps, settings, created_at, updated_at`

// OrganizationStore exposes persistence helpers for organizations.
type OrganizationStore struct {
	pool *pgxpool.Pool
}

// NewOrganizationStore returns a store; migrations own the table.
func NewOrganizationStore(ctx context.Context, pool *pgxpool.Pool) (*OrganizationStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &OrganizationStore{pool: pool}, nil
}

// CreateOrganizationParams captures the fields for a new organization.
// A nil MaxApps takes the tier default.
type CreateOrganizationParams struct {
	Name     string
	Slug     string
	Tier     string
	MaxApps  *int
	Settings json.RawMessage
}

// CreateOrganization inserts an organization and returns the stored row.
func (s *OrganizationStore) CreateOrganization(ctx context.Context, params CreateOrganizationParams) (Organization, error) {
	tier := strings.TrimSpace(params.Tier)
	if tier == "" {
		tier = TierStandard
	}

	maxApps, ok := DefaultMaxApps(tier)
	if !ok {
		return Organization{}, ErrOrganizationInvalid
	}
	if params.MaxApps != nil {
		maxApps = *params.MaxApps
	}

	settings := []byte(params.Settings)
	if len(settings) == 0 {
		settings = []byte("{}")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (name, slug, tier, max_apps, settings)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING %s
    `, OrganizationsTable, organizationColumns),
		strings.TrimSpace(params.Name),
		params.Slug,
		tier,
		maxApps,
		settings,
	)

	org, err := scanOrganization(row)
	if err != nil {
		return Organization{}, mapOrganizationError(err)
	}
	return org, nil
}

// GetOrganization returns a single organization by id.
func (s *OrganizationStore) GetOrganization(ctx context.Context, id uuid.UUID) (Organization, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE id = $1
    `, organizationColumns, OrganizationsTable), id)

	org, err := scanOrganization(row)
	if err != nil {
		return Organization{}, mapOrganizationError(err)
	}
	return org, nil
}

// OrganizationExists reports whether a row with id exists, active or not.
func (s *OrganizationStore) OrganizationExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, OrganizationsTable), id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("organization exists: %w", err)
	}
	return exists, nil
}

// ListOrganizationsParams filters ListOrganizations. AccessibleBy restricts
// the result to organizations the user can access through any path.
type ListOrganizationsParams struct {
	Page         int
	PageSize     int
	AccessibleBy *uuid.UUID
	Search       *string
	ActiveOnly   bool
}

// ListOrganizationsResult includes the rows and the total count for pagination metadata.
type ListOrganizationsResult struct {
	Organizations []Organization
	TotalItems    int
}

// ListOrganizations returns organizations matching the filters ordered by name.
func (s *OrganizationStore) ListOrganizations(ctx context.Context, params ListOrganizationsParams) (ListOrganizationsResult, error) {
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)

	whereParts := []string{"1=1"}
	var args []any

	if params.AccessibleBy != nil {
		args = append(args, *params.AccessibleBy)
		whereParts = append(whereParts, fmt.Sprintf("%s.can_access_organization(id, $%d)", Schema, len(args)))
	}
	if params.Search != nil && strings.TrimSpace(*params.Search) != "" {
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(*params.Search))+"%")
		whereParts = append(whereParts, fmt.Sprintf("(LOWER(name) LIKE $%d OR slug LIKE $%d)", len(args), len(args)))
	}
	if params.ActiveOnly {
		whereParts = append(whereParts, "is_active")
	}

	whereSQL := strings.Join(whereParts, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", OrganizationsTable, whereSQL), args...).Scan(&total); err != nil {
		return ListOrganizationsResult{}, fmt.Errorf("count organizations: %w", err)
	}

	result := ListOrganizationsResult{Organizations: []Organization{}, TotalItems: total}
	if total == 0 {
		return result, nil
	}

	dataArgs := append([]any{}, args...)
	dataArgs = append(dataArgs, params.PageSize, (params.Page-1)*params.PageSize)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT %s
        FROM %s
        WHERE %s
        ORDER BY name ASC, id ASC
        LIMIT $%d OFFSET $%d
    `, organizationColumns, OrganizationsTable, whereSQL, len(dataArgs)-1, len(dataArgs)), dataArgs...)
	if err != nil {
		return ListOrganizationsResult{}, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		org, scanErr := scanOrganization(rows)
		if scanErr != nil {
			return ListOrganizationsResult{}, fmt.Errorf("scan organization: %w", scanErr)
		}
		result.Organizations = append(result.Organizations, org)
	}
	if err := rows.Err(); err != nil {
		return ListOrganizationsResult{}, fmt.Errorf("iterate organizations: %w", err)
	}

	return result, nil
}

// UpdateOrganizationParams lists the mutable columns. The slug is immutable.
type UpdateOrganizationParams struct {
	Name     *string
	Tier     *string
	MaxApps  *int
	IsActive *bool
	Settings json.RawMessage
}

// UpdateOrganization applies the provided fields and returns the updated row.
func (s *OrganizationStore) UpdateOrganization(ctx context.Context, id uuid.UUID, params UpdateOrganizationParams) (Organization, error) {
	setParts := []string{}
	var args []any

	if params.Name != nil {
		args = append(args, strings.TrimSpace(*params.Name))
		setParts = append(setParts, fmt.Sprintf("name = $%d", len(args)))
	}
	if params.Tier != nil {
		args = append(args, strings.TrimSpace(*params.Tier))
		setParts = append(setParts, fmt.Sprintf("tier = $%d", len(args)))
	}
	if params.MaxApps != nil {
		args = append(args, *params.MaxApps)
		setParts = append(setParts, fmt.Sprintf("max_apps = $%d", len(args)))
	}
	if params.IsActive != nil {
		args = append(args, *params.IsActive)
		setParts = append(setParts, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if params.Settings != nil {
		args = append(args, []byte(params.Settings))
		setParts = append(setParts, fmt.Sprintf("settings = $%d", len(args)))
	}

	if len(setParts) == 0 {
		return Organization{}, errors.New("no fields to update")
	}

	args = append(args, id)

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET %s
        WHERE id = $%d
        RETURNING %s
    `, OrganizationsTable, strings.Join(setParts, ", "), len(args), organizationColumns), args...)

	org, err := scanOrganization(row)
	if err != nil {
		return Organization{}, mapOrganizationError(err)
	}
	return org, nil
}

// DeleteOrganization removes an organization that nothing references anymore.
func (s *OrganizationStore) DeleteOrganization(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, OrganizationsTable), id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrOrganizationInUse
		}
		return fmt.Errorf("delete organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrganizationNotFound
	}
	return nil
}

func mapOrganizationError(err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrOrganizationNotFound
	case isUniqueViolation(err):
		return ErrOrganizationConflict
	case isCheckViolation(err):
		return fmt.Errorf("%w: %s", ErrOrganizationInvalid, violatedConstraintOr(err, "organization"))
	default:
		return err
	}
}

func violatedConstraintOr(err error, fallback string) string {
	if name := violatedConstraint(err); name != "" {
		return name
	}
	return fallback
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func scanOrganization(row pgx.Row) (Organization, error) {
	var (
		org      Organization
		settings []byte
	)
	if err := row.Scan(
		&org.ID,
		&org.Name,
		&org.Slug,
		&org.Tier,
		&org.IsActive,
		&org.MaxApps,
		&settings,
		&org.CreatedAt,
		&org.UpdatedAt,
	); err != nil {
		return Organization{}, err
	}
	org.Settings = json.RawMessage(settings)
	return org, nil
}
