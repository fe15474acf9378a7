// Package clienv holds the connection flags shared by the aso subcommands.
package clienv

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenGate-Global/aso-insight/platform/go/auditlog"
	platformlogging "github.com/zenGate-Global/aso-insight/platform/go/logging"
	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
	"github.com/zenGate-Global/aso-insight/platform/go/requesttrace"
)

// DB carries the --database-url flag. An empty flag falls back to DATABASE_URL.
type DB struct {
	URL string
}

// Bind registers the flag on cmd.
func (d *DB) Bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&d.URL, "database-url", "", "PostgreSQL connection string (default $DATABASE_URL)")
}

func (d *DB) connString() (string, error) {
	url := strings.TrimSpace(d.URL)
	if url == "" {
		url = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if url == "" {
		return "", errors.New("--database-url or DATABASE_URL is required")
	}
	return url, nil
}

// Pool opens a pgx pool as the schema owner.
func (d *DB) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	url, err := d.connString()
	if err != nil {
		return nil, err
	}
	return persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:      url,
		MaxConns:        4,
		ApplicationName: "aso-cli",
	})
}

// SQL opens a database/sql handle through the pgx driver for the migration
// runner. The returned func closes both the handle and the pool.
func (d *DB) SQL(ctx context.Context) (*sql.DB, func(), error) {
	pool, err := d.Pool(ctx)
	if err != nil {
		return nil, nil, err
	}
	db := stdlib.OpenDBFromPool(pool)
	return db, func() {
		_ = db.Close()
		persistence.ClosePool(pool)
	}, nil
}

// Logger builds a console-friendly logger at LOG_LEVEL (default warn).
func Logger(component string) *zap.Logger {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	logger, err := platformlogging.NewLogger(platformlogging.Config{Component: component, Level: level})
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// SystemContext marks ctx as a system actor so audit rows record the CLI
// operation instead of a user.
func SystemContext(ctx context.Context, operation string) context.Context {
	return requesttrace.IntoContext(ctx, requesttrace.System("cli:"+operation))
}

// Recorder returns an audit recorder writing through the pool.
func Recorder(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) (*auditlog.Recorder, error) {
	store, err := persistence.NewAuditStore(ctx, pool)
	if err != nil {
		return nil, err
	}
	return auditlog.NewRecorder(store, logger, nil), nil
}
