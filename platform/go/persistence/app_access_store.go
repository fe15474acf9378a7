package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	OrgAppAccessTable = Schema + ".org_app_access"
	ReviewCacheTable  = Schema + ".review_cache"
)

// Store platforms accepted by org_app_access.store.
const (
	StoreGooglePlay = "google_play"
	StoreAppStore   = "app_store"
)

// AppAccess grants an organization the right to analyse one store app.
type AppAccess struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organizationId"`
	Store          string     `json:"store"`
	AppID          string     `json:"appId"`
	AppName        *string    `json:"appName,omitempty"`
	GrantedBy      *uuid.UUID `json:"grantedBy,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Review is a cached store review scoped to an organization.
type Review struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organizationId"`
	Store          string    `json:"store"`
	AppID          string    `json:"appId"`
	ReviewID       string    `json:"reviewId"`
	Rating         int       `json:"rating"`
	Title          *string   `json:"title,omitempty"`
	Body           *string   `json:"body,omitempty"`
	Locale         *string   `json:"locale,omitempty"`
	ReviewedAt     time.Time `json:"reviewedAt"`
	FetchedAt      time.Time `json:"fetchedAt"`
}

var (
	// ErrAppAccessNotFound indicates a missing app grant.
	ErrAppAccessNotFound = errors.New("app access not found")
	// ErrAppAccessConflict indicates the app is already granted to the organization.
	ErrAppAccessConflict = errors.New("app access conflict")
	// ErrAppAccessInvalid indicates an unsupported store or empty app id.
	ErrAppAccessInvalid = errors.New("app access invalid")
	// ErrAppQuotaExceeded indicates the organization reached max_apps.
	ErrAppQuotaExceeded = errors.New("app quota exceeded")
)

const appAccessColumns = `id, organization_id, store, app_id, app_name, granted_by, created_at`

// AppAccessStore writes app grants with the owner identity and reads
// organization data under the caller's session.
type AppAccessStore struct {
	pool    *pgxpool.Pool
	session *SessionDB
}

// NewAppAccessStore returns a store over the owner pool.
func NewAppAccessStore(ctx context.Context, pool *pgxpool.Pool) (*AppAccessStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &AppAccessStore{pool: pool, session: NewSessionDB(pool)}, nil
}

// GrantAppParams describes a new app grant.
type GrantAppParams struct {
	OrganizationID uuid.UUID
	Store          string
	AppID          string
	AppName        string
	GrantedBy      uuid.UUID
}

// GrantApp inserts an app grant unless the organization is at its quota. The
// organization row is locked for the duration so concurrent grants cannot
// overshoot max_apps.
func (s *AppAccessStore) GrantApp(ctx context.Context, params GrantAppParams) (AppAccess, error) {
	var granted AppAccess
	err := s.session.WithOwner(ctx, func(tx pgx.Tx) error {
		var maxApps int
		err := tx.QueryRow(ctx, fmt.Sprintf(
			`SELECT max_apps FROM %s WHERE id = $1 FOR UPDATE`, OrganizationsTable,
		), params.OrganizationID).Scan(&maxApps)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrganizationNotFound
			}
			return fmt.Errorf("lock organization: %w", err)
		}

		var used int
		if err := tx.QueryRow(ctx, fmt.Sprintf(
			`SELECT COUNT(*) FROM %s WHERE organization_id = $1`, OrgAppAccessTable,
		), params.OrganizationID).Scan(&used); err != nil {
			return fmt.Errorf("count app access: %w", err)
		}
		if used >= maxApps {
			return ErrAppQuotaExceeded
		}

		var grantedBy *uuid.UUID
		if params.GrantedBy != uuid.Nil {
			grantedBy = &params.GrantedBy
		}

		row := tx.QueryRow(ctx, fmt.Sprintf(`
            INSERT INTO %s (organization_id, store, app_id, app_name, granted_by)
            VALUES ($1, $2, $3, $4, $5)
            RETURNING %s
        `, OrgAppAccessTable, appAccessColumns),
			params.OrganizationID,
			strings.TrimSpace(params.Store),
			strings.TrimSpace(params.AppID),
			nullable(params.AppName),
			grantedBy,
		)

		granted, err = scanAppAccess(row)
		if err != nil {
			switch {
			case isUniqueViolation(err):
				return ErrAppAccessConflict
			case isCheckViolation(err):
				return fmt.Errorf("%w: %s", ErrAppAccessInvalid, violatedConstraintOr(err, "org_app_access"))
			default:
				return fmt.Errorf("insert app access: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return AppAccess{}, err
	}
	return granted, nil
}

// RevokeApp deletes an app grant of the organization.
func (s *AppAccessStore) RevokeApp(ctx context.Context, orgID, accessID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE id = $1 AND organization_id = $2`, OrgAppAccessTable,
	), accessID, orgID)
	if err != nil {
		return fmt.Errorf("delete app access: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppAccessNotFound
	}
	return nil
}

// ListApps returns the organization's app grants visible to viewerID.
func (s *AppAccessStore) ListApps(ctx context.Context, viewerID, orgID uuid.UUID) ([]AppAccess, error) {
	apps := make([]AppAccess, 0)
	err := s.session.WithUser(ctx, viewerID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, fmt.Sprintf(`
            SELECT %s FROM %s
            WHERE organization_id = $1
            ORDER BY store, app_id
        `, appAccessColumns, OrgAppAccessTable), orgID)
		if err != nil {
			return fmt.Errorf("list app access: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			app, scanErr := scanAppAccess(rows)
			if scanErr != nil {
				return fmt.Errorf("scan app access: %w", scanErr)
			}
			apps = append(apps, app)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return apps, nil
}

// ListReviewsParams filters ListReviews.
type ListReviewsParams struct {
	OrganizationID uuid.UUID
	Store          *string
	AppID          *string
	Page           int
	PageSize       int
}

// ListReviewsResult includes the rows and the total count for pagination metadata.
type ListReviewsResult struct {
	Reviews    []Review
	TotalItems int
}

// ListReviews returns cached reviews visible to viewerID, newest first.
func (s *AppAccessStore) ListReviews(ctx context.Context, viewerID uuid.UUID, params ListReviewsParams) (ListReviewsResult, error) {
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)

	whereParts := []string{"organization_id = $1"}
	args := []any{params.OrganizationID}
	if params.Store != nil && strings.TrimSpace(*params.Store) != "" {
		args = append(args, strings.TrimSpace(*params.Store))
		whereParts = append(whereParts, fmt.Sprintf("store = $%d", len(args)))
	}
	if params.AppID != nil && strings.TrimSpace(*params.AppID) != "" {
		args = append(args, strings.TrimSpace(*params.AppID))
		whereParts = append(whereParts, fmt.Sprintf("app_id = $%d", len(args)))
	}
	whereSQL := strings.Join(whereParts, " AND ")

	result := ListReviewsResult{Reviews: []Review{}}
	err := s.session.WithUser(ctx, viewerID, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, fmt.Sprintf(
			"SELECT COUNT(*) FROM %s WHERE %s", ReviewCacheTable, whereSQL,
		), args...).Scan(&result.TotalItems); err != nil {
			return fmt.Errorf("count reviews: %w", err)
		}
		if result.TotalItems == 0 {
			return nil
		}

		dataArgs := append([]any{}, args...)
		dataArgs = append(dataArgs, params.PageSize, (params.Page-1)*params.PageSize)

		rows, err := tx.Query(ctx, fmt.Sprintf(`
            SELECT id, organization_id, store, app_id, review_id, rating, title, body, locale, reviewed_at, fetched_at
            FROM %s
            WHERE %s
            ORDER BY reviewed_at DESC, id
            LIMIT $%d OFFSET $%d
        `, ReviewCacheTable, whereSQL, len(dataArgs)-1, len(dataArgs)), dataArgs...)
		if err != nil {
			return fmt.Errorf("list reviews: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var review Review
			if err := rows.Scan(
				&review.ID,
				&review.OrganizationID,
				&review.Store,
				&review.AppID,
				&review.ReviewID,
				&review.Rating,
				&review.Title,
				&review.Body,
				&review.Locale,
				&review.ReviewedAt,
				&review.FetchedAt,
			); err != nil {
				return fmt.Errorf("scan review: %w", err)
			}
			result.Reviews = append(result.Reviews, review)
		}
		return rows.Err()
	})
	if err != nil {
		return ListReviewsResult{}, err
	}
	return result, nil
}

func scanAppAccess(row pgx.Row) (AppAccess, error) {
	var app AppAccess
	if err := row.Scan(
		&app.ID,
		&app.OrganizationID,
		&app.Store,
		&app.AppID,
		&app.AppName,
		&app.GrantedBy,
		&app.CreatedAt,
	); err != nil {
		return AppAccess{}, err
	}
	return app, nil
}
