package auth

import "github.com/spf13/cobra"

// Command groups the authentication helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication helpers for local development",
	}
	cmd.AddCommand(tokenCommand())
	return cmd
}
