package policies

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/aso-insight/apps/cli/internal/clienv"
	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
)

// Command groups the row level security policy tooling.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Inspect and repair the row level security policy set",
	}
	cmd.AddCommand(listCommand(), verifyCommand(), reconcileCommand())
	return cmd
}

func listCommand() *cobra.Command {
	var db clienv.DB
	c := &cobra.Command{
		Use:   "list",
		Short: "Print every policy on the insight schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := db.Pool(cmd.Context())
			if err != nil {
				return err
			}
			defer persistence.ClosePool(pool)

			policies, err := persistence.NewPolicyCatalog(pool).List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TABLE\tCOMMAND\tNAME\tROLES")
			for _, p := range policies {
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", p.Table, p.Command, p.Name, p.Roles)
			}
			return w.Flush()
		},
	}
	db.Bind(c)
	return c
}

func verifyCommand() *cobra.Command {
	var db clienv.DB
	c := &cobra.Command{
		Use:   "verify",
		Short: "Compare the live policies with the expected set; exits non-zero on drift",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := db.Pool(cmd.Context())
			if err != nil {
				return err
			}
			defer persistence.ClosePool(pool)

			report, err := persistence.NewPolicyCatalog(pool).Verify(cmd.Context())
			if err != nil {
				return err
			}
			if err := printReport(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.OK() {
				return persistence.ErrPolicyDrift
			}
			return nil
		},
	}
	db.Bind(c)
	return c
}

func reconcileCommand() *cobra.Command {
	var db clienv.DB
	c := &cobra.Command{
		Use:   "reconcile",
		Short: "Drop every policy and recreate the expected set in one transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := db.Pool(cmd.Context())
			if err != nil {
				return err
			}
			defer persistence.ClosePool(pool)

			report, err := persistence.NewPolicyCatalog(pool).Reconcile(cmd.Context())
			if printErr := printReport(cmd.OutOrStdout(), report); printErr != nil {
				return printErr
			}
			return err
		},
	}
	db.Bind(c)
	return c
}

func printReport(w io.Writer, report persistence.PolicyReport) error {
	summary := struct {
		OK          bool                     `json:"ok"`
		Total       int                      `json:"total"`
		Missing     []persistence.PolicySlot `json:"missing,omitempty"`
		Duplicated  []persistence.PolicySlot `json:"duplicated,omitempty"`
		Unexpected  []persistence.Policy     `json:"unexpected,omitempty"`
		Misnamed    []persistence.Policy     `json:"misnamed,omitempty"`
		WrongRole   []persistence.Policy     `json:"wrongRole,omitempty"`
		RLSDisabled []string                 `json:"rlsDisabled,omitempty"`
	}{
		OK:          report.OK(),
		Total:       len(report.Policies),
		Missing:     report.Missing,
		Duplicated:  report.Duplicated,
		Unexpected:  report.Unexpected,
		Misnamed:    report.Misnamed,
		WrongRole:   report.WrongRole,
		RLSDisabled: report.RLSDisabled,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
