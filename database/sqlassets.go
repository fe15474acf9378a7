package sqlassets

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var migrations embed.FS

// RLSPoliciesSQL is the policy set migration. It is re-applied verbatim when
// policies are reconciled outside of the migration history.
//
//go:embed migrations/0004_rls_policies.up.sql
var RLSPoliciesSQL string

//go:embed schema/organization_settings.schema.json
var OrganizationSettingsSchema []byte

// Migrations returns the versioned migration files rooted at the migrations directory.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}
