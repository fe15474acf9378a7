package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zenGate-Global/aso-insight/apps/cli/internal/clienv"
	"github.com/zenGate-Global/aso-insight/platform/go/authz"
	"github.com/zenGate-Global/aso-insight/platform/go/persistence"
)

// ErrDivergence is returned when the SQL predicates and the Go evaluator disagree.
var ErrDivergence = errors.New("sql predicates and evaluator disagree")

// Command groups access diagnostics.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access",
		Short: "Diagnose organization access decisions",
	}
	cmd.AddCommand(checkCommand())
	return cmd
}

// predicates is the SQL side of an access decision.
type predicates interface {
	CanAccessOrganization(ctx context.Context, userID, orgID uuid.UUID) (bool, error)
	CanManageOrganization(ctx context.Context, userID, orgID uuid.UUID) (bool, error)
}

// Result reports both sides of an access decision.
type Result struct {
	UserID          uuid.UUID        `json:"userId"`
	OrganizationID  uuid.UUID        `json:"organizationId"`
	SQLAccess       bool             `json:"sqlAccess"`
	SQLManage       bool             `json:"sqlManage"`
	EvaluatorAccess bool             `json:"evaluatorAccess"`
	EvaluatorManage bool             `json:"evaluatorManage"`
	Path            authz.AccessPath `json:"path"`
	Consistent      bool             `json:"consistent"`
}

// Compare evaluates userID against orgID on both sides.
func Compare(ctx context.Context, sql predicates, evaluator *authz.Evaluator, userID, orgID uuid.UUID) (Result, error) {
	result := Result{UserID: userID, OrganizationID: orgID}

	var err error
	if result.SQLAccess, err = sql.CanAccessOrganization(ctx, userID, orgID); err != nil {
		return Result{}, fmt.Errorf("sql access: %w", err)
	}
	if result.SQLManage, err = sql.CanManageOrganization(ctx, userID, orgID); err != nil {
		return Result{}, fmt.Errorf("sql manage: %w", err)
	}

	decision, err := evaluator.Decide(ctx, userID, orgID)
	if err != nil {
		return Result{}, fmt.Errorf("evaluator access: %w", err)
	}
	result.EvaluatorAccess = decision.Allowed
	result.Path = decision.Path
	if result.EvaluatorManage, err = evaluator.CanManageOrganization(ctx, userID, orgID); err != nil {
		return Result{}, fmt.Errorf("evaluator manage: %w", err)
	}

	result.Consistent = result.SQLAccess == result.EvaluatorAccess && result.SQLManage == result.EvaluatorManage
	return result, nil
}

func checkCommand() *cobra.Command {
	var (
		db     clienv.DB
		userID string
		orgID  string
	)

	c := &cobra.Command{
		Use:   "check",
		Short: "Compare the SQL access predicates with the API's evaluator for one user and organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			org, err := uuid.Parse(orgID)
			if err != nil {
				return fmt.Errorf("invalid --org: %w", err)
			}

			ctx := cmd.Context()
			pool, err := db.Pool(ctx)
			if err != nil {
				return err
			}
			defer persistence.ClosePool(pool)

			sql, err := persistence.NewAccessStore(ctx, pool)
			if err != nil {
				return err
			}
			source, err := persistence.NewPermissionStore(ctx, pool)
			if err != nil {
				return err
			}

			result, err := Compare(ctx, sql, authz.NewEvaluator(source, authz.Config{}), user, org)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			if !result.Consistent {
				return ErrDivergence
			}
			return nil
		},
	}

	db.Bind(c)
	c.Flags().StringVar(&userID, "user", "", "identity id")
	c.Flags().StringVar(&orgID, "org", "", "organization id")
	_ = c.MarkFlagRequired("user")
	_ = c.MarkFlagRequired("org")
	return c
}
