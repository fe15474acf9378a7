package root

import (
	"github.com/zenGate-Global/aso-insight/apps/cli/cmd/access"
	"github.com/zenGate-Global/aso-insight/apps/cli/cmd/auth"
	"github.com/zenGate-Global/aso-insight/apps/cli/cmd/bootstrap"
	"github.com/zenGate-Global/aso-insight/apps/cli/cmd/grants"
	"github.com/zenGate-Global/aso-insight/apps/cli/cmd/migrate"
	"github.com/zenGate-Global/aso-insight/apps/cli/cmd/policies"
	"github.com/zenGate-Global/aso-insight/apps/cli/cmd/roles"
)

func init() {
	Root().AddCommand(
		auth.Command(),
		bootstrap.Command(),
		migrate.Command(),
		policies.Command(),
		grants.Command(),
		roles.Command(),
		access.Command(),
	)
}
