package migrate

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/golang-migrate/migrate/v4/database/stub"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testFiles() fstest.MapFS {
	return fstest.MapFS{
		"0001_core.up.sql":    {Data: []byte("CREATE TABLE a (id INT);\n")},
		"0001_core.down.sql":  {Data: []byte("DROP TABLE a;\n")},
		"0002_index.up.sql":   {Data: []byte("CREATE INDEX a_idx ON a (id);\n")},
		"0002_index.down.sql": {Data: []byte("DROP INDEX a_idx;\n")},
	}
}

func newStubRunner(t *testing.T) (*Runner, *stub.Stub) {
	t.Helper()

	driver, err := stub.WithInstance(nil, &stub.Config{})
	require.NoError(t, err)

	r, err := NewWithDriver(testFiles(), "stub", driver, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	return r, driver.(*stub.Stub)
}

func TestRunnerUpAppliesPendingInOrder(t *testing.T) {
	r, db := newStubRunner(t)

	from, to, err := r.Up(context.Background())
	require.NoError(t, err)
	require.Zero(t, from)
	require.Equal(t, uint(2), to)
	require.Equal(t, 2, db.CurrentVersion)
	require.Equal(t, "CREATE INDEX a_idx ON a (id);\n", string(db.LastRunMigration))
}

func TestRunnerUpIsIdempotent(t *testing.T) {
	r, _ := newStubRunner(t)
	ctx := context.Background()

	_, _, err := r.Up(ctx)
	require.NoError(t, err)

	from, to, err := r.Up(ctx)
	require.NoError(t, err)
	require.Equal(t, uint(2), from)
	require.Equal(t, uint(2), to)
}

func TestRunnerDownRollsBackOneStep(t *testing.T) {
	r, db := newStubRunner(t)
	ctx := context.Background()

	_, err := r.Down(ctx)
	require.ErrorIs(t, err, ErrNothingToRollback)

	_, _, err = r.Up(ctx)
	require.NoError(t, err)

	version, err := r.Down(ctx)
	require.NoError(t, err)
	require.Equal(t, uint(2), version)
	require.Equal(t, 1, db.CurrentVersion)
	require.Equal(t, "DROP INDEX a_idx;\n", string(db.LastRunMigration))
}

func TestRunnerStatus(t *testing.T) {
	r, _ := newStubRunner(t)

	status, err := r.Status()
	require.NoError(t, err)
	require.Zero(t, status.Version)
	require.Equal(t, []Migration{
		{Version: 1, Name: "core"},
		{Version: 2, Name: "index"},
	}, status.Migrations)

	_, _, err = r.Up(context.Background())
	require.NoError(t, err)
	_, err = r.Down(context.Background())
	require.NoError(t, err)

	status, err = r.Status()
	require.NoError(t, err)
	require.Equal(t, uint(1), status.Version)
	require.True(t, status.Migrations[0].Applied)
	require.False(t, status.Migrations[1].Applied)
}

func TestRunnerRefusesDirtyDatabase(t *testing.T) {
	r, db := newStubRunner(t)
	db.CurrentVersion = 1
	db.IsDirty = true

	_, _, err := r.Up(context.Background())
	require.Error(t, err)

	require.NoError(t, r.Force(1))
	_, to, err := r.Up(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint(2), to)
}
