package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// fakeTx satisfies pgx.Tx and records Exec statements and arguments.
type fakeTx struct {
	stmts      []string
	args       [][]any
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return nil
}
func (f *fakeTx) Rollback(ctx context.Context) error {
	f.rolledBack = true
	return nil
}
func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (f *fakeTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return &pgconn.StatementDescription{}, errors.New("not implemented")
}
func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	f.args = append(f.args, args)
	return pgconn.CommandTag{}, nil
}
func (f *fakeTx) Conn() *pgx.Conn { return nil }

// fakePool returns a preconstructed transaction.
type fakePool struct{ tx *fakeTx }

func (p *fakePool) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return p.tx, nil
}

func TestSessionDBWithOwnerSetsOnlySearchPath(t *testing.T) {
	ftx := &fakeTx{}
	db := &SessionDB{pool: &fakePool{tx: ftx}, role: SessionRole}

	err := db.WithOwner(context.Background(), func(tx pgx.Tx) error { return nil })
	require.NoError(t, err)
	require.Len(t, ftx.stmts, 1)
	require.Contains(t, ftx.stmts[0], "set_config('search_path'")
	require.Equal(t, []any{Schema}, ftx.args[0])
	require.True(t, ftx.committed)
}

func TestSessionDBWithUserSetsRoleAndIdentity(t *testing.T) {
	ftx := &fakeTx{}
	db := &SessionDB{pool: &fakePool{tx: ftx}, role: SessionRole}
	userID := uuid.New()

	err := db.WithUser(context.Background(), userID, func(tx pgx.Tx) error { return nil })
	require.NoError(t, err)
	require.Len(t, ftx.stmts, 3)
	require.Equal(t, `SET LOCAL ROLE "insight_authenticated"`, ftx.stmts[0])
	require.Equal(t, []any{"app.current_user_id", userID.String()}, ftx.args[1])
	require.Equal(t, []any{Schema}, ftx.args[2])
	require.True(t, ftx.committed)
}

func TestSessionDBWithUserRequiresUser(t *testing.T) {
	ftx := &fakeTx{}
	db := &SessionDB{pool: &fakePool{tx: ftx}, role: SessionRole}

	err := db.WithUser(context.Background(), uuid.Nil, func(tx pgx.Tx) error { return nil })
	require.ErrorIs(t, err, ErrSessionUserRequired)
	require.Empty(t, ftx.stmts)
}

func TestSessionDBWrapsPolicyErrors(t *testing.T) {
	ftx := &fakeTx{}
	db := &SessionDB{pool: &fakePool{tx: ftx}, role: SessionRole}

	err := db.WithUser(context.Background(), uuid.New(), func(tx pgx.Tx) error {
		return &pgconn.PgError{Code: "42501", Message: "permission denied for table legacy_memberships"}
	})
	require.ErrorIs(t, err, ErrPolicyEvaluation)
	require.True(t, IsInsufficientPrivilege(err))
	require.False(t, ftx.committed)
	require.True(t, ftx.rolledBack)
}

func TestSessionDBPassesThroughOtherErrors(t *testing.T) {
	ftx := &fakeTx{}
	db := &SessionDB{pool: &fakePool{tx: ftx}, role: SessionRole}
	boom := errors.New("boom")

	err := db.WithOwner(context.Background(), func(tx pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrPolicyEvaluation)
}
