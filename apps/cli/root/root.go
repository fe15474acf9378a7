package root

import (
	"context"

	"github.com/spf13/cobra"
)

// rootCmd is the base command for the operator CLI; wire.go attaches the subcommands.
var rootCmd = &cobra.Command{
	Use:   "aso",
	Short: "ASO insight admin CLI",
	Long: "Operator utilities for ASO insight: schema migrations, policy verification, " +
		"platform bootstrap and agency grant management.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI; ctx is cancelled on interrupt.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
