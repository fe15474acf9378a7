package migrate

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/aso-insight/apps/cli/internal/clienv"
	sqlassets "github.com/zenGate-Global/aso-insight/database"
	platformmigrate "github.com/zenGate-Global/aso-insight/platform/go/migrate"
)

// Command groups the schema migration subcommands.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect the insight schema migrations",
	}
	cmd.AddCommand(upCommand(), downCommand(), statusCommand(), forceCommand())
	return cmd
}

func withRunner(ctx context.Context, db *clienv.DB, fn func(*platformmigrate.Runner) error) error {
	sqlDB, closeDB, err := db.SQL(ctx)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer closeDB()

	logger := clienv.Logger("cli-migrate")
	defer func() { _ = logger.Sync() }()

	runner, err := platformmigrate.New(sqlDB, sqlassets.Migrations(), platformmigrate.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() { _ = runner.Close() }()

	return fn(runner)
}

func upCommand() *cobra.Command {
	var db clienv.DB
	c := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), &db, func(r *platformmigrate.Runner) error {
				from, to, err := r.Up(cmd.Context())
				if err != nil {
					return err
				}
				if from == to {
					fmt.Fprintf(cmd.OutOrStdout(), "schema is up to date at version %d\n", to)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "migrated from version %d to %d\n", from, to)
				return nil
			})
		},
	}
	db.Bind(c)
	return c
}

func downCommand() *cobra.Command {
	var db clienv.DB
	c := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), &db, func(r *platformmigrate.Runner) error {
				version, err := r.Down(cmd.Context())
				if errors.Is(err, platformmigrate.ErrNothingToRollback) {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back version %d\n", version)
				return nil
			})
		},
	}
	db.Bind(c)
	return c
}

func statusCommand() *cobra.Command {
	var db clienv.DB
	c := &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), &db, func(r *platformmigrate.Runner) error {
				status, err := r.Status()
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tNAME\tSTATE")
				for _, mig := range status.Migrations {
					state := "pending"
					switch {
					case mig.Applied:
						state = "applied"
					case status.Dirty && mig.Version == status.Version:
						state = "dirty"
					}
					fmt.Fprintf(w, "%04d\t%s\t%s\n", mig.Version, mig.Name, state)
				}
				return w.Flush()
			})
		},
	}
	db.Bind(c)
	return c
}

func forceCommand() *cobra.Command {
	var (
		db      clienv.DB
		version int
	)
	c := &cobra.Command{
		Use:   "force",
		Short: "Set the recorded version without running migrations, clearing a dirty state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), &db, func(r *platformmigrate.Runner) error {
				if err := r.Force(version); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version forced to %d\n", version)
				return nil
			})
		},
	}
	db.Bind(c)
	c.Flags().IntVar(&version, "version", 0, "version to record (-1 for none)")
	_ = c.MarkFlagRequired("version")
	return c
}
