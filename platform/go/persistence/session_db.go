package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// Schema holds every table, view and function of the authorization model.
	Schema = "insight"
	// SessionRole is the NOLOGIN role that row level security policies target.
	SessionRole = "insight_authenticated"

	currentUserSetting = "app.current_user_id"
)

// ErrSessionUserRequired is returned when WithUser is called without a user.
var ErrSessionUserRequired = errors.New("session user is required")

type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// SessionDB runs transactions on behalf of an authenticated user so that row
// level security applies to every statement issued inside fn.
type SessionDB struct {
	pool txBeginner
	role string
}

// NewSessionDB wraps pool. The connecting role must be a member of SessionRole.
func NewSessionDB(pool *pgxpool.Pool) *SessionDB {
	if pool == nil {
		panic("SessionDB requires pool")
	}
	return &SessionDB{pool: pool, role: SessionRole}
}

// WithOwner executes fn with the connection's own identity. Policies do not
// apply to the schema owner, so callers must have authorized the operation.
func (db *SessionDB) WithOwner(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, Schema); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	if err := fn(tx); err != nil {
		return wrapPolicyError(err)
	}

	return tx.Commit(ctx)
}

// WithUser executes fn as SessionRole with app.current_user_id bound to
// userID. Both settings are transaction-local and vanish on commit or rollback,
// so pooled connections never leak an identity.
func (db *SessionDB) WithUser(ctx context.Context, userID uuid.UUID, fn func(tx pgx.Tx) error) error {
	if userID == uuid.Nil {
		return ErrSessionUserRequired
	}

	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL ROLE %s", pgx.Identifier{db.role}.Sanitize())); err != nil {
		return fmt.Errorf("set role: %w", err)
	}

	if _, err = tx.Exec(ctx, `SELECT set_config($1, $2, true)`, currentUserSetting, userID.String()); err != nil {
		return fmt.Errorf("set current user: %w", err)
	}

	if _, err = tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, Schema); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	if err := fn(tx); err != nil {
		return wrapPolicyError(err)
	}

	return tx.Commit(ctx)
}
