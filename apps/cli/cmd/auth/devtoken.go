package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/aso-insight/platform/go/auth/devtoken"
)

func tokenCommand() *cobra.Command {
	var (
		params devtoken.Params
		kind   string
		secret string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development token for AUTH_PROVIDER=dev or AUTH_PROVIDER=jwt",
		Long: "Mint a token carrying only identity claims. Roles are never placed in tokens; " +
			"assign them with `aso roles assign`.",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()

			var (
				token string
				err   error
			)
			switch strings.ToLower(kind) {
			case "unsigned":
				token, err = devtoken.BuildUnsignedFirebaseToken(params, now)
			case "hmac":
				if secret == "" {
					secret = os.Getenv("AUTH_JWT_SECRET")
				}
				if secret == "" {
					return errors.New("--secret or AUTH_JWT_SECRET is required for hmac tokens")
				}
				if params.Issuer == "" {
					params.Issuer = os.Getenv("AUTH_JWT_ISSUER")
				}
				token, err = devtoken.BuildHMACToken(params, []byte(secret), now)
			default:
				return fmt.Errorf("unknown --kind %q (use unsigned or hmac)", kind)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "unsigned", "unsigned (dev provider) or hmac (jwt provider)")
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 secret (default $AUTH_JWT_SECRET)")
	cmd.Flags().StringVar(&params.ProjectID, "project-id", "aso-insight-dev", "Firebase project id for unsigned tokens")
	cmd.Flags().StringVar(&params.UserID, "user-id", "", "identity uuid (sub/user_id claim)")
	cmd.Flags().StringVar(&params.Email, "email", "", "email claim")
	cmd.Flags().StringVar(&params.Name, "name", "", "display name")
	cmd.Flags().BoolVar(&params.EmailVerified, "email-verified", true, "email_verified claim")
	cmd.Flags().DurationVar(&params.ExpiresIn, "expires-in", time.Hour, "token lifetime (e.g. 30m, 2h)")
	cmd.Flags().StringVar(&params.Audience, "audience", "", "override aud")
	cmd.Flags().StringVar(&params.Issuer, "issuer", "", "override iss")

	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
