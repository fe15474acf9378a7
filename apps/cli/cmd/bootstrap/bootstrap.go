package bootstrap

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zenGate-Global/aso-insight/apps/cli/internal/clienv"
	"github.com/zenGate-Global/aso-insight/platform/go/auditlog"
	"github.com/zenGate-Global/aso-insight/platform/go/authz"
	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
)

// Notes:
// - Bootstrap assumes `aso migrate up` has run; it never creates tables.
// - The super admin must already exist in the identity provider. Its uid is
//   the token subject and becomes the identity id here.

// Command groups bootstrap helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Seed the first platform administrator",
	}
	cmd.AddCommand(superAdminCommand())
	return cmd
}

func superAdminCommand() *cobra.Command {
	var (
		db     clienv.DB
		userID string
		email  string
	)

	c := &cobra.Command{
		Use:   "super-admin",
		Short: "Record an identity and grant it SUPER_ADMIN",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(strings.TrimSpace(userID))
			if err != nil {
				return fmt.Errorf("invalid --user-id: %w", err)
			}
			if strings.TrimSpace(email) == "" {
				return fmt.Errorf("--email is required")
			}

			ctx := clienv.SystemContext(cmd.Context(), "bootstrap.super-admin")
			logger := clienv.Logger("cli-bootstrap")
			defer func() { _ = logger.Sync() }()

			pool, err := db.Pool(ctx)
			if err != nil {
				return err
			}
			defer persistence.ClosePool(pool)

			identities, err := persistence.NewIdentityStore(ctx, pool)
			if err != nil {
				return err
			}
			roles, err := persistence.NewRoleStore(ctx, pool)
			if err != nil {
				return err
			}
			recorder, err := clienv.Recorder(ctx, pool, logger)
			if err != nil {
				return err
			}

			identity, err := identities.EnsureIdentity(ctx, id, email)
			if err != nil {
				return fmt.Errorf("ensure identity: %w", err)
			}

			if existing, err := roles.GetRole(ctx, id); err == nil && existing.Role == authz.RoleSuperAdmin {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is already SUPER_ADMIN\n", identity.Email, identity.ID)
				return nil
			}

			assignment, err := roles.AssignRole(ctx, persistence.AssignRoleParams{UserID: id, Role: authz.RoleSuperAdmin})
			if err != nil {
				return fmt.Errorf("assign role: %w", err)
			}
			recorder.Record(ctx, auditlog.Event{
				Action:       auditlog.ActionRoleAssign,
				ResourceType: "user_role",
				ResourceID:   id.String(),
				Details:      map[string]any{"role": string(assignment.Role), "source": "bootstrap"},
			})

			fmt.Fprintf(cmd.OutOrStdout(), "Bootstrap complete. %s (%s) is SUPER_ADMIN\n", identity.Email, identity.ID)
			return nil
		},
	}

	db.Bind(c)
	c.Flags().StringVar(&userID, "user-id", "", "identity provider uid (uuid)")
	c.Flags().StringVar(&email, "email", "", "administrator email")
	_ = c.MarkFlagRequired("user-id")
	_ = c.MarkFlagRequired("email")
	return c
}
