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

const IdentitiesTable = Schema + ".identities"

// Identity mirrors a verified user from the external identity store.
type Identity struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

var (
	// ErrIdentityNotFound indicates a missing identity record.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrIdentityConflict indicates the email already belongs to another identity.
	ErrIdentityConflict = errors.New("identity conflict")
)

// IdentityStore exposes persistence helpers for the identities table.
type IdentityStore struct {
	pool *pgxpool.Pool
}

// NewIdentityStore returns a store; migrations own the table.
func NewIdentityStore(ctx context.Context, pool *pgxpool.Pool) (*IdentityStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &IdentityStore{pool: pool}, nil
}

// EnsureIdentity records the token subject on first sight and keeps its email
// current. An empty email is stored as NULL, so any number of identities may
// lack one.
func (s *IdentityStore) EnsureIdentity(ctx context.Context, id uuid.UUID, email string) (Identity, error) {
	if id == uuid.Nil {
		return Identity{}, errors.New("identity id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (id, email)
        VALUES ($1, NULLIF($2, ''))
        ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email
        RETURNING id, COALESCE(email, ''), created_at
    `, IdentitiesTable), id, strings.ToLower(strings.TrimSpace(email)))

	identity, err := scanIdentity(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Identity{}, ErrIdentityConflict
		}
		return Identity{}, fmt.Errorf("ensure identity: %w", err)
	}
	return identity, nil
}

// GetIdentity returns a single identity by id.
func (s *IdentityStore) GetIdentity(ctx context.Context, id uuid.UUID) (Identity, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT id, COALESCE(email, ''), created_at FROM %s WHERE id = $1
    `, IdentitiesTable), id)

	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, err
	}
	return identity, nil
}

// FindIdentityByEmail looks an identity up by its case-insensitive email.
func (s *IdentityStore) FindIdentityByEmail(ctx context.Context, email string) (Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Identity{}, ErrIdentityNotFound
	}
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT id, email, created_at FROM %s WHERE email = $1
    `, IdentitiesTable), email)

	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, err
	}
	return identity, nil
}

func scanIdentity(row pgx.Row) (Identity, error) {
	var identity Identity
	if err := row.Scan(&identity.ID, &identity.Email, &identity.CreatedAt); err != nil {
		return Identity{}, err
	}
	return identity, nil
}
