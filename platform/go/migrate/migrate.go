// Package migrate applies the embedded insight schema migrations with
// golang-migrate. Files follow its NNNN_name.up.sql / NNNN_name.down.sql layout.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// DefaultTable records the applied version.
const DefaultTable = "schema_migrations"

// ErrNothingToRollback is returned by Down when no migration is applied.
var ErrNothingToRollback = errors.New("no applied migration to roll back")

// Option configures a Runner.
type Option func(*options)

type options struct {
	table  string
	logger *zap.Logger
}

// WithTable overrides the version table name.
func WithTable(name string) Option {
	return func(o *options) {
		if name != "" {
			o.table = name
		}
	}
}

// WithLogger routes golang-migrate's progress lines to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Runner wraps a golang-migrate instance over an fs.FS of migration files.
type Runner struct {
	m      *migrate.Migrate
	files  source.Driver
	logger *zap.Logger
}

// Migration is one versioned migration and whether it is applied.
type Migration struct {
	Version uint   `json:"version"`
	Name    string `json:"name"`
	Applied bool   `json:"applied"`
}

// Status is the database version and the known migrations.
type Status struct {
	Version    uint        `json:"version"`
	Dirty      bool        `json:"dirty"`
	Migrations []Migration `json:"migrations"`
}

// New builds a Runner on db using the golang-migrate pgx/v5 driver. The driver
// takes ownership of db: Close closes it.
func New(db *sql.DB, files fs.FS, opts ...Option) (*Runner, error) {
	if db == nil {
		return nil, errors.New("migration database handle is required")
	}
	o := buildOptions(opts)

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{MigrationsTable: o.table})
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}
	return newRunner(files, "pgx5", driver, o)
}

// NewWithDriver builds a Runner on an existing golang-migrate database driver.
func NewWithDriver(files fs.FS, name string, driver database.Driver, opts ...Option) (*Runner, error) {
	return newRunner(files, name, driver, buildOptions(opts))
}

func buildOptions(opts []Option) options {
	o := options{table: DefaultTable, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newRunner(files fs.FS, name string, driver database.Driver, o options) (*Runner, error) {
	if files == nil {
		return nil, errors.New("migration files are required")
	}
	src, err := iofs.New(files, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, name, driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	m.Log = zapLogger{o.logger}

	// A second source handle lists files without touching the migrator's.
	listing, err := iofs.New(files, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration listing: %w", err)
	}
	return &Runner{m: m, files: listing, logger: o.logger}, nil
}

// Up applies every pending migration and returns the versions before and
// after. Both are zero when nothing was ever applied.
func (r *Runner) Up(ctx context.Context) (from, to uint, err error) {
	if from, _, err = r.version(); err != nil {
		return 0, 0, err
	}

	stop := r.stopOn(ctx)
	err = r.m.Up()
	stop()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return from, from, fmt.Errorf("apply migrations: %w", err)
	}

	to, _, err = r.version()
	return from, to, err
}

// Down rolls back the most recent migration and returns its version.
func (r *Runner) Down(ctx context.Context) (uint, error) {
	current, applied, err := r.version()
	if err != nil {
		return 0, err
	}
	if !applied {
		return 0, ErrNothingToRollback
	}

	stop := r.stopOn(ctx)
	err = r.m.Steps(-1)
	stop()
	if err != nil {
		return 0, fmt.Errorf("roll back %d: %w", current, err)
	}
	return current, nil
}

// Force marks version as applied and clean without running it, clearing a
// dirty state left by a failed migration.
func (r *Runner) Force(version int) error {
	if err := r.m.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Status lists the migrations and the current version.
func (r *Runner) Status() (Status, error) {
	current, dirty, err := r.m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		current, dirty = 0, false
	case err != nil:
		return Status{}, fmt.Errorf("read version: %w", err)
	}

	status := Status{Version: current, Dirty: dirty}
	version, err := r.files.First()
	for err == nil {
		name, readErr := r.name(version)
		if readErr != nil {
			return Status{}, readErr
		}
		status.Migrations = append(status.Migrations, Migration{
			Version: version,
			Name:    name,
			Applied: current != 0 && version <= current && !(dirty && version == current),
		})
		version, err = r.files.Next(version)
	}
	if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, fs.ErrNotExist) {
		return Status{}, fmt.Errorf("list migrations: %w", err)
	}
	return status, nil
}

// Close releases the migration sources and the database driver.
func (r *Runner) Close() error {
	sourceErr, dbErr := r.m.Close()
	return errors.Join(sourceErr, dbErr, r.files.Close())
}

func (r *Runner) name(version uint) (string, error) {
	body, identifier, err := r.files.ReadUp(version)
	if err != nil {
		return "", fmt.Errorf("read migration %d: %w", version, err)
	}
	_ = body.Close()
	return identifier, nil
}

// version reports the applied version and whether any version is applied.
func (r *Runner) version() (uint, bool, error) {
	v, dirty, err := r.m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("read version: %w", err)
	case dirty:
		return v, true, migrate.ErrDirty{Version: int(v)}
	}
	return v, true, nil
}

// stopOn asks golang-migrate to stop after the running file once ctx is done.
func (r *Runner) stopOn(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			select {
			case r.m.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()
	return func() { close(done) }
}

type zapLogger struct{ logger *zap.Logger }

func (l zapLogger) Printf(format string, v ...interface{}) {
	l.logger.Sugar().Infof(format, v...)
}

func (l zapLogger) Verbose() bool { return false }
