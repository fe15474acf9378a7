package grants

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zenGate-Global/aso-insight/apps/cli/internal/clienv"
	"github.com/zenGate-Global/aso-insight/platform/go/auditlog"
	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
)

// Command groups agency grant operations run by platform operators.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grants",
		Short: "Create and toggle agency grants",
	}
	cmd.AddCommand(
		writeCommand("create", "Create or reactivate a grant", true, true),
		writeCommand("activate", "Reactivate an existing grant", false, true),
		writeCommand("deactivate", "Deactivate a grant; access stops on the next request", false, false),
	)
	return cmd
}

func writeCommand(use, short string, upsert, active bool) *cobra.Command {
	var (
		db       clienv.DB
		agencyID string
		clientID string
	)

	c := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			agency, err := uuid.Parse(agencyID)
			if err != nil {
				return fmt.Errorf("invalid --agency: %w", err)
			}
			client, err := uuid.Parse(clientID)
			if err != nil {
				return fmt.Errorf("invalid --client: %w", err)
			}
			if agency == client {
				return fmt.Errorf("an organization cannot be its own agency")
			}

			ctx := clienv.SystemContext(cmd.Context(), "grants."+use)
			logger := clienv.Logger("cli-grants")
			defer func() { _ = logger.Sync() }()

			pool, err := db.Pool(ctx)
			if err != nil {
				return err
			}
			defer persistence.ClosePool(pool)

			store, err := persistence.NewAgencyStore(ctx, pool)
			if err != nil {
				return err
			}
			recorder, err := clienv.Recorder(ctx, pool, logger)
			if err != nil {
				return err
			}

			var (
				grant  persistence.AgencyGrant
				action = auditlog.ActionAgencyGrantActivation
			)
			if upsert {
				action = auditlog.ActionAgencyGrantCreate
				grant, err = store.UpsertGrant(ctx, agency, client)
			} else {
				grant, err = store.SetGrantActive(ctx, agency, client, active)
			}
			if err != nil {
				return err
			}

			recorder.Record(ctx, auditlog.Event{
				Action:         action,
				ResourceType:   "agency_grant",
				ResourceID:     grant.ID.String(),
				OrganizationID: &grant.ClientOrgID,
				Details:        map[string]any{"agencyOrgId": grant.AgencyOrgID.String(), "isActive": grant.IsActive},
			})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(grant)
		},
	}

	db.Bind(c)
	c.Flags().StringVar(&agencyID, "agency", "", "agency organization id")
	c.Flags().StringVar(&clientID, "client", "", "client organization id")
	_ = c.MarkFlagRequired("agency")
	_ = c.MarkFlagRequired("client")
	return c
}
