package roles

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zenGate-Global/aso-insight/apps/cli/internal/clienv"
	"github.com/zenGate-Global/aso-insight/platform/go/auditlog"
	"github.com/zenGate-Global/aso-insight/platform/go/authz"
	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
)

// Command groups role assignment operations run by platform operators.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Assign or revoke user roles",
	}
	cmd.AddCommand(assignCommand(), revokeCommand())
	return cmd
}

func assignCommand() *cobra.Command {
	var (
		db     clienv.DB
		userID string
		orgID  string
		role   string
	)

	c := &cobra.Command{
		Use:   "assign",
		Short: "Give a user their single role (replaces any previous one)",
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := assignParams(userID, orgID, role)
			if err != nil {
				return err
			}

			ctx := clienv.SystemContext(cmd.Context(), "roles.assign")
			logger := clienv.Logger("cli-roles")
			defer func() { _ = logger.Sync() }()

			pool, err := db.Pool(ctx)
			if err != nil {
				return err
			}
			defer persistence.ClosePool(pool)

			store, err := persistence.NewRoleStore(ctx, pool)
			if err != nil {
				return err
			}
			recorder, err := clienv.Recorder(ctx, pool, logger)
			if err != nil {
				return err
			}

			assignment, err := store.AssignRole(ctx, params)
			if err != nil {
				return err
			}
			recorder.Record(ctx, auditlog.Event{
				Action:         auditlog.ActionRoleAssign,
				ResourceType:   "user_role",
				ResourceID:     assignment.UserID.String(),
				OrganizationID: assignment.OrganizationID,
				Details:        map[string]any{"role": string(assignment.Role)},
			})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(assignment)
		},
	}

	db.Bind(c)
	c.Flags().StringVar(&userID, "user", "", "identity id")
	c.Flags().StringVar(&orgID, "org", "", "organization id (omit for SUPER_ADMIN)")
	c.Flags().StringVar(&role, "role", "", "SUPER_ADMIN, ORG_ADMIN, MANAGER, ANALYST, VIEWER or CLIENT")
	_ = c.MarkFlagRequired("user")
	_ = c.MarkFlagRequired("role")
	return c
}

// assignParams enforces the scope rule before the database does so operators
// get a readable error.
func assignParams(userID, orgID, rawRole string) (persistence.AssignRoleParams, error) {
	user, err := uuid.Parse(userID)
	if err != nil {
		return persistence.AssignRoleParams{}, fmt.Errorf("invalid --user: %w", err)
	}
	role, err := authz.ParseRole(rawRole)
	if err != nil {
		return persistence.AssignRoleParams{}, err
	}

	params := persistence.AssignRoleParams{UserID: user, Role: role}
	switch {
	case role.IsPlatform() && orgID != "":
		return persistence.AssignRoleParams{}, fmt.Errorf("%s is a platform role and takes no --org", role)
	case !role.IsPlatform() && orgID == "":
		return persistence.AssignRoleParams{}, fmt.Errorf("%s requires --org", role)
	case orgID != "":
		org, err := uuid.Parse(orgID)
		if err != nil {
			return persistence.AssignRoleParams{}, fmt.Errorf("invalid --org: %w", err)
		}
		params.OrganizationID = &org
	}
	return params, nil
}

func revokeCommand() *cobra.Command {
	var (
		db     clienv.DB
		userID string
	)

	c := &cobra.Command{
		Use:   "revoke",
		Short: "Remove a user's role",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}

			ctx := clienv.SystemContext(cmd.Context(), "roles.revoke")
			logger := clienv.Logger("cli-roles")
			defer func() { _ = logger.Sync() }()

			pool, err := db.Pool(ctx)
			if err != nil {
				return err
			}
			defer persistence.ClosePool(pool)

			store, err := persistence.NewRoleStore(ctx, pool)
			if err != nil {
				return err
			}
			recorder, err := clienv.Recorder(ctx, pool, logger)
			if err != nil {
				return err
			}

			revoked, err := store.RevokeRole(ctx, user)
			if err != nil {
				return err
			}
			recorder.Record(ctx, auditlog.Event{
				Action:         auditlog.ActionRoleRevoke,
				ResourceType:   "user_role",
				ResourceID:     user.String(),
				OrganizationID: revoked.OrganizationID,
				Details:        map[string]any{"role": string(revoked.Role)},
			})

			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s from %s\n", revoked.Role, user)
			return nil
		},
	}

	db.Bind(c)
	c.Flags().StringVar(&userID, "user", "", "identity id")
	_ = c.MarkFlagRequired("user")
	return c
}
