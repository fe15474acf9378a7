package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/zenGate-Global/aso-insight/database"
)

// Policy commands as reported by the catalog.
const (
	CommandSelect = "SELECT"
	CommandInsert = "INSERT"
	CommandUpdate = "UPDATE"
	CommandDelete = "DELETE"
	CommandAll    = "ALL"
)

// ExpectedPolicies is the complete policy set: one policy per listed command
// and table, none for anything else. audit_logs and review_cache are written
// only through the owner identity.
var ExpectedPolicies = map[string][]string{
	"organizations":  {CommandSelect, CommandInsert, CommandUpdate, CommandDelete},
	"user_roles":     {CommandSelect, CommandInsert, CommandUpdate, CommandDelete},
	"agency_clients": {CommandSelect, CommandInsert, CommandUpdate},
	"audit_logs":     {CommandSelect},
	"org_app_access": {CommandSelect, CommandInsert, CommandUpdate, CommandDelete},
	"review_cache":   {CommandSelect},
	"chat_sessions":  {CommandSelect, CommandInsert, CommandUpdate, CommandDelete},
}

// Policy is one row of pg_policy for the insight schema.
type Policy struct {
	Table     string   `json:"table"`
	Name      string   `json:"name"`
	Command   string   `json:"command"`
	Roles     []string `json:"roles"`
	Using     string   `json:"using,omitempty"`
	WithCheck string   `json:"withCheck,omitempty"`
}

// PolicySlot identifies a table and command pair.
type PolicySlot struct {
	Table   string `json:"table"`
	Command string `json:"command"`
}

func (s PolicySlot) String() string { return s.Table + "/" + s.Command }

// PolicyName is the name the migrations give the policy in slot, e.g.
// review_cache_select.
func (s PolicySlot) PolicyName() string {
	return s.Table + "_" + strings.ToLower(s.Command)
}

// PolicyReport describes how the live catalog differs from ExpectedPolicies.
type PolicyReport struct {
	Policies    []Policy     `json:"policies"`
	Missing     []PolicySlot `json:"missing,omitempty"`
	Duplicated  []PolicySlot `json:"duplicated,omitempty"`
	Unexpected  []Policy     `json:"unexpected,omitempty"`
	Misnamed    []Policy     `json:"misnamed,omitempty"`
	WrongRole   []Policy     `json:"wrongRole,omitempty"`
	RLSDisabled []string     `json:"rlsDisabled,omitempty"`
}

// OK reports whether the catalog matches the expected set exactly.
func (r PolicyReport) OK() bool {
	return len(r.Missing) == 0 &&
		len(r.Duplicated) == 0 &&
		len(r.Unexpected) == 0 &&
		len(r.Misnamed) == 0 &&
		len(r.WrongRole) == 0 &&
		len(r.RLSDisabled) == 0
}

// ErrPolicyDrift is returned by Reconcile when the catalog still differs afterwards.
var ErrPolicyDrift = errors.New("policy catalog drift")

// PolicyCatalog inspects and rewrites the row level security policies.
type PolicyCatalog struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPolicyCatalog returns a catalog for the insight schema.
func NewPolicyCatalog(pool *pgxpool.Pool) *PolicyCatalog {
	if pool == nil {
		panic("policy catalog requires pool")
	}
	return &PolicyCatalog{pool: pool, schema: Schema}
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// List returns every policy in the schema ordered by table and name.
func (c *PolicyCatalog) List(ctx context.Context) ([]Policy, error) {
	return listPolicies(ctx, c.pool, c.schema)
}

func listPolicies(ctx context.Context, q queryer, schema string) ([]Policy, error) {
	rows, err := q.Query(ctx, `
        SELECT
            c.relname,
            pol.polname,
            CASE pol.polcmd
                WHEN 'r' THEN 'SELECT'
                WHEN 'a' THEN 'INSERT'
                WHEN 'w' THEN 'UPDATE'
                WHEN 'd' THEN 'DELETE'
                ELSE 'ALL'
            END,
            CASE
                WHEN pol.polroles = '{0}' THEN 'public'
                ELSE array_to_string(ARRAY(
                    SELECT rolname FROM pg_roles WHERE oid = ANY(pol.polroles) ORDER BY rolname
                ), ',')
            END,
            COALESCE(pg_get_expr(pol.polqual, pol.polrelid), ''),
            COALESCE(pg_get_expr(pol.polwithcheck, pol.polrelid), '')
        FROM pg_policy pol
        JOIN pg_class c ON c.oid = pol.polrelid
        JOIN pg_namespace n ON n.oid = c.relnamespace
        WHERE n.nspname = $1
        ORDER BY c.relname, pol.polname`, schema)
	if err != nil {
		return nil, fmt.Errorf("query policies: %w", err)
	}
	defer rows.Close()

	policies := make([]Policy, 0)
	for rows.Next() {
		var (
			policy Policy
			roles  string
		)
		if err := rows.Scan(&policy.Table, &policy.Name, &policy.Command, &roles, &policy.Using, &policy.WithCheck); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		if roles != "" {
			policy.Roles = strings.Split(roles, ",")
		}
		policies = append(policies, policy)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policies: %w", err)
	}
	return policies, nil
}

// Verify compares the live catalog with ExpectedPolicies.
func (c *PolicyCatalog) Verify(ctx context.Context) (PolicyReport, error) {
	policies, err := c.List(ctx)
	if err != nil {
		return PolicyReport{}, err
	}

	disabled, err := c.tablesWithoutRLS(ctx)
	if err != nil {
		return PolicyReport{}, err
	}

	report := ComparePolicies(policies)
	report.RLSDisabled = disabled
	return report, nil
}

// ComparePolicies diffs policies against ExpectedPolicies. A slot counts as
// present only when it holds the policy with its expected name; any other
// policy in the slot is reported as misnamed.
func ComparePolicies(policies []Policy) PolicyReport {
	report := PolicyReport{Policies: policies}

	expected := make(map[PolicySlot]bool)
	for table, commands := range ExpectedPolicies {
		for _, cmd := range commands {
			expected[PolicySlot{Table: table, Command: cmd}] = true
		}
	}

	seen := make(map[PolicySlot]int)
	named := make(map[PolicySlot]bool)
	for _, policy := range policies {
		slot := PolicySlot{Table: policy.Table, Command: policy.Command}
		if !expected[slot] {
			report.Unexpected = append(report.Unexpected, policy)
			continue
		}
		seen[slot]++
		if policy.Name == slot.PolicyName() {
			named[slot] = true
		} else {
			report.Misnamed = append(report.Misnamed, policy)
		}
		if len(policy.Roles) != 1 || policy.Roles[0] != SessionRole {
			report.WrongRole = append(report.WrongRole, policy)
		}
	}

	for slot := range expected {
		if !named[slot] {
			report.Missing = append(report.Missing, slot)
		}
		if seen[slot] > 1 {
			report.Duplicated = append(report.Duplicated, slot)
		}
	}

	sortSlots(report.Missing)
	sortSlots(report.Duplicated)
	return report
}

func sortSlots(slots []PolicySlot) {
	sort.Slice(slots, func(i, j int) bool { return slots[i].String() < slots[j].String() })
}

func (c *PolicyCatalog) tablesWithoutRLS(ctx context.Context) ([]string, error) {
	tables := make([]string, 0, len(ExpectedPolicies))
	for table := range ExpectedPolicies {
		tables = append(tables, table)
	}

	rows, err := c.pool.Query(ctx, `
        SELECT c.relname
        FROM pg_class c
        JOIN pg_namespace n ON n.oid = c.relnamespace
        WHERE n.nspname = $1 AND c.relname::text = ANY($2::text[]) AND NOT c.relrowsecurity
        ORDER BY c.relname`, c.schema, tables)
	if err != nil {
		return nil, fmt.Errorf("query row security: %w", err)
	}
	defer rows.Close()

	var disabled []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan row security: %w", err)
		}
		disabled = append(disabled, name)
	}
	return disabled, rows.Err()
}

// DropAll removes every policy in the schema, whatever its name, and returns
// how many were dropped.
func (c *PolicyCatalog) DropAll(ctx context.Context, tx pgx.Tx) (int, error) {
	policies, err := listPolicies(ctx, tx, c.schema)
	if err != nil {
		return 0, err
	}

	for _, policy := range policies {
		stmt := fmt.Sprintf("DROP POLICY %s ON %s",
			pgx.Identifier{policy.Name}.Sanitize(),
			pgx.Identifier{c.schema, policy.Table}.Sanitize(),
		)
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, fmt.Errorf("drop policy %s on %s: %w", policy.Name, policy.Table, err)
		}
	}
	return len(policies), nil
}

// Reconcile drops every policy and recreates the expected set in a single
// transaction, then verifies the result. Policies added outside migrations,
// including ones referencing objects the session role cannot read, are removed.
func (c *PolicyCatalog) Reconcile(ctx context.Context) (PolicyReport, error) {
	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return PolicyReport{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := c.DropAll(ctx, tx); err != nil {
		return PolicyReport{}, err
	}

	// Without arguments pgx sends the script over the simple protocol, which
	// accepts several statements in one round trip.
	if _, err := tx.Exec(ctx, sqlassets.RLSPoliciesSQL); err != nil {
		return PolicyReport{}, fmt.Errorf("apply policy set: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return PolicyReport{}, fmt.Errorf("commit policy set: %w", err)
	}

	report, err := c.Verify(ctx)
	if err != nil {
		return PolicyReport{}, err
	}
	if !report.OK() {
		return report, ErrPolicyDrift
	}
	return report, nil
}
