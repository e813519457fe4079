// Package doctor provides health checks for flowscope rule storage.
//
// The doctor command validates that the rule storage is properly installed
// by checking migration state, the host application tables, and the rule
// rows themselves.
//
// Example usage:
//
//	d := doctor.New(db)
//	report, err := d.Run(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	report.Print(os.Stdout, true) // verbose=true
package doctor

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/tmaes/flowscope/pkg/migrator"
)

// Status represents the result of a health check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical issue.
	StatusWarn
	// StatusFail indicates a critical issue that will cause failures.
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns a status indicator symbol for terminal output.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return "✓"
	case StatusWarn:
		return "⚠"
	case StatusFail:
		return "✗"
	default:
		return "?"
	}
}

// CheckResult represents the outcome of a single health check.
type CheckResult struct {
	// Category groups related checks (e.g., "Rule Storage", "Host Tables").
	Category string

	// Name is a short identifier for the check.
	Name string

	// Status is the check outcome.
	Status Status

	// Message is a human-readable description of the result.
	Message string

	// Details provides additional information for verbose output.
	Details string

	// FixHint suggests how to resolve issues.
	FixHint string
}

// Report contains all health check results.
type Report struct {
	Checks []CheckResult

	// Summary counts.
	Passed   int
	Warnings int
	Errors   int
}

// AddCheck adds a check result and updates summary counts.
func (r *Report) AddCheck(check CheckResult) {
	r.Checks = append(r.Checks, check)
	switch check.Status {
	case StatusPass:
		r.Passed++
	case StatusWarn:
		r.Warnings++
	case StatusFail:
		r.Errors++
	}
}

// Print writes the report to the given writer.
func (r *Report) Print(w io.Writer, verbose bool) {
	// Group checks by category
	categories := make(map[string][]CheckResult)
	var categoryOrder []string
	for _, check := range r.Checks {
		if _, exists := categories[check.Category]; !exists {
			categoryOrder = append(categoryOrder, check.Category)
		}
		categories[check.Category] = append(categories[check.Category], check)
	}

	// Print each category
	for _, cat := range categoryOrder {
		_, _ = fmt.Fprintf(w, "\n%s\n", cat)
		for _, check := range categories[cat] {
			_, _ = fmt.Fprintf(w, "  %s %s\n", check.Status.Symbol(), check.Message)
			if verbose && check.Details != "" {
				// Indent details
				for _, line := range strings.Split(check.Details, "\n") {
					_, _ = fmt.Fprintf(w, "      %s\n", line)
				}
			}
			if check.Status != StatusPass && check.FixHint != "" {
				_, _ = fmt.Fprintf(w, "      Fix: %s\n", check.FixHint)
			}
		}
	}

	// Print summary
	_, _ = fmt.Fprintf(w, "\nSummary: %d passed, %d warnings, %d errors\n",
		r.Passed, r.Warnings, r.Errors)
}

// HasErrors returns true if any check failed.
func (r *Report) HasErrors() bool {
	return r.Errors > 0
}

// Doctor performs health checks on flowscope rule storage.
type Doctor struct {
	db *sql.DB

	// Cached data from checks (populated during Run)
	storageStatus *migrator.Status
	hostTables    map[string]bool
}

// New creates a new Doctor instance.
func New(db *sql.DB) *Doctor {
	return &Doctor{db: db}
}

// Run executes all health checks and returns a report.
func (d *Doctor) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	// Run checks in order, building up cached data
	if err := d.checkRuleStorage(ctx, report); err != nil {
		return nil, fmt.Errorf("checking rule storage: %w", err)
	}
	if err := d.checkMigrationState(ctx, report); err != nil {
		return nil, fmt.Errorf("checking migration state: %w", err)
	}
	if err := d.checkHostTables(ctx, report); err != nil {
		return nil, fmt.Errorf("checking host tables: %w", err)
	}
	if err := d.checkRuleData(ctx, report); err != nil {
		return nil, fmt.Errorf("checking rule data: %w", err)
	}

	return report, nil
}

// checkRuleStorage validates the workflow_rules table, scope column, and
// lookup indexes.
func (d *Doctor) checkRuleStorage(ctx context.Context, report *Report) error {
	status, err := migrator.GetStatus(ctx, d.db)
	if err != nil {
		return err
	}
	d.storageStatus = status

	if !status.RulesTableExists {
		report.AddCheck(CheckResult{
			Category: "Rule Storage",
			Name:     "table",
			Status:   StatusFail,
			Message:  "workflow_rules table does not exist",
			FixHint:  "Run 'flowscope migrate' to create it",
		})
		return nil
	}
	report.AddCheck(CheckResult{
		Category: "Rule Storage",
		Name:     "table",
		Status:   StatusPass,
		Message:  "workflow_rules table exists",
	})

	if !status.ProjectColumnExists {
		report.AddCheck(CheckResult{
			Category: "Rule Storage",
			Name:     "scope_column",
			Status:   StatusFail,
			Message:  "project_id scope column is missing",
			Details:  "All rules behave as global until the column exists",
			FixHint:  "Run 'flowscope migrate' to add it",
		})
		return nil
	}
	report.AddCheck(CheckResult{
		Category: "Rule Storage",
		Name:     "scope_column",
		Status:   StatusPass,
		Message:  "project_id scope column exists",
	})

	// Compare expected lookup indexes against pg_indexes.
	currentIndexes, err := d.getCurrentIndexes(ctx)
	if err != nil {
		return err
	}
	currentSet := make(map[string]bool)
	for _, name := range currentIndexes {
		currentSet[name] = true
	}

	var missing []string
	for _, name := range migrator.IndexNames() {
		if !currentSet[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		report.AddCheck(CheckResult{
			Category: "Rule Storage",
			Name:     "indexes",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%d lookup indexes missing", len(missing)),
			Details:  strings.Join(missing, "\n"),
			FixHint:  "Run 'flowscope migrate' to create them",
		})
	} else {
		report.AddCheck(CheckResult{
			Category: "Rule Storage",
			Name:     "indexes",
			Status:   StatusPass,
			Message:  "All lookup indexes present",
		})
	}

	return nil
}

// checkMigrationState validates the migration tracking table and state.
func (d *Doctor) checkMigrationState(ctx context.Context, report *Report) error {
	m := migrator.NewMigrator(d.db)

	// Check if migrations table exists
	var tableExists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_class c
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE c.relname = 'flowscope_migrations'
			AND n.nspname = current_schema()
		)
	`).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("checking migrations table: %w", err)
	}

	if !tableExists {
		report.AddCheck(CheckResult{
			Category: "Migration State",
			Name:     "table_exists",
			Status:   StatusWarn,
			Message:  "flowscope_migrations table does not exist",
			Details:  "Migration tracking is not set up",
			FixHint:  "Run 'flowscope migrate' to create it",
		})
		return nil
	}

	report.AddCheck(CheckResult{
		Category: "Migration State",
		Name:     "table_exists",
		Status:   StatusPass,
		Message:  "flowscope_migrations table exists",
	})

	// Get last migration
	lastMigration, err := m.GetLastMigration(ctx)
	if err != nil {
		return fmt.Errorf("getting last migration: %w", err)
	}

	if lastMigration == nil {
		report.AddCheck(CheckResult{
			Category: "Migration State",
			Name:     "migrated",
			Status:   StatusWarn,
			Message:  "No migration records found",
			FixHint:  "Run 'flowscope migrate' to apply the schema",
		})
		return nil
	}

	report.AddCheck(CheckResult{
		Category: "Migration State",
		Name:     "migrated",
		Status:   StatusPass,
		Message:  fmt.Sprintf("Storage migrated (%d indexes tracked)", len(lastMigration.IndexNames)),
	})

	currentChecksum := migrator.CurrentDDLChecksum()
	switch {
	case currentChecksum != lastMigration.DDLChecksum:
		report.AddCheck(CheckResult{
			Category: "Migration State",
			Name:     "ddl_sync",
			Status:   StatusWarn,
			Message:  "Storage DDL has changed since last migration",
			Details:  fmt.Sprintf("Build checksum: %s...\nDB checksum:    %s...", currentChecksum[:16], lastMigration.DDLChecksum[:16]),
			FixHint:  "Run 'flowscope migrate' to apply changes",
		})
	case lastMigration.MigratorVersion != migrator.MigratorVersion:
		report.AddCheck(CheckResult{
			Category: "Migration State",
			Name:     "ddl_sync",
			Status:   StatusWarn,
			Message:  "Migrator version has changed",
			Details:  fmt.Sprintf("Current: %s, DB: %s", migrator.MigratorVersion, lastMigration.MigratorVersion),
			FixHint:  "Run 'flowscope migrate' to re-apply the schema",
		})
	default:
		report.AddCheck(CheckResult{
			Category: "Migration State",
			Name:     "ddl_sync",
			Status:   StatusPass,
			Message:  "Storage is in sync with this build",
		})
	}

	return nil
}

// checkHostTables validates the host application tables the queries read.
func (d *Doctor) checkHostTables(ctx context.Context, report *Report) error {
	d.hostTables = make(map[string]bool)

	required := []string{"projects", "trackers", "roles", "issue_statuses"}
	var missing []string
	for _, table := range required {
		exists, err := d.tableExists(ctx, table)
		if err != nil {
			return err
		}
		d.hostTables[table] = exists
		if !exists {
			missing = append(missing, table)
		}
	}

	if len(missing) > 0 {
		report.AddCheck(CheckResult{
			Category: "Host Tables",
			Name:     "required",
			Status:   StatusFail,
			Message:  fmt.Sprintf("Missing host tables: %s", strings.Join(missing, ", ")),
			Details:  "Rule resolution reads trackers, roles, statuses, and projects from the host application",
			FixHint:  "Point flowscope at the host application's database",
		})
	} else {
		report.AddCheck(CheckResult{
			Category: "Host Tables",
			Name:     "required",
			Status:   StatusPass,
			Message:  "All required host tables present",
		})
	}

	if d.hostTables["roles"] {
		hasCol, err := d.columnExists(ctx, "roles", "considers_workflow")
		if err != nil {
			return err
		}
		if !hasCol {
			report.AddCheck(CheckResult{
				Category: "Host Tables",
				Name:     "workflow_roles",
				Status:   StatusFail,
				Message:  "roles.considers_workflow column is missing",
				Details:  "Default role resolution cannot tell workflow roles apart",
				FixHint:  "Add a considers_workflow boolean column to roles",
			})
		} else {
			report.AddCheck(CheckResult{
				Category: "Host Tables",
				Name:     "workflow_roles",
				Status:   StatusPass,
				Message:  "roles.considers_workflow column exists",
			})
		}
	}

	// Custom field visibility tables are optional: without them, hidden
	// fields are not forced readonly.
	fieldsExist, err := d.tableExists(ctx, "custom_fields")
	if err != nil {
		return err
	}
	visibilityExists, err := d.tableExists(ctx, "custom_field_roles")
	if err != nil {
		return err
	}
	switch {
	case fieldsExist && visibilityExists:
		report.AddCheck(CheckResult{
			Category: "Host Tables",
			Name:     "custom_fields",
			Status:   StatusPass,
			Message:  "Custom field visibility tables present",
		})
	case fieldsExist:
		report.AddCheck(CheckResult{
			Category: "Host Tables",
			Name:     "custom_fields",
			Status:   StatusWarn,
			Message:  "custom_field_roles table is missing",
			Details:  "Hidden custom fields will not be forced readonly",
			FixHint:  "Create custom_field_roles(custom_field_id, role_id) or disable custom field support",
		})
	default:
		report.AddCheck(CheckResult{
			Category: "Host Tables",
			Name:     "custom_fields",
			Status:   StatusWarn,
			Message:  "No custom field tables found",
			Details:  "Permission rules for custom fields will still apply, but hidden fields are not detected",
		})
	}

	return nil
}

// checkRuleData validates the rule rows against the host tables.
func (d *Doctor) checkRuleData(ctx context.Context, report *Report) error {
	if d.storageStatus == nil || !d.storageStatus.RulesTableExists || !d.storageStatus.ProjectColumnExists {
		return nil // Already reported in storage check
	}

	var global, scoped int64
	err := d.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE project_id IS NULL),
			COUNT(*) FILTER (WHERE project_id IS NOT NULL)
		FROM workflow_rules
	`).Scan(&global, &scoped)
	if err != nil {
		return fmt.Errorf("counting rules: %w", err)
	}

	if global == 0 && scoped == 0 {
		report.AddCheck(CheckResult{
			Category: "Rule Data",
			Name:     "data",
			Status:   StatusWarn,
			Message:  "workflow_rules is empty",
			Details:  "No transitions are permitted until rules exist",
			FixHint:  "Run 'flowscope apply' with a rule file",
		})
		return nil
	}
	report.AddCheck(CheckResult{
		Category: "Rule Data",
		Name:     "data",
		Status:   StatusPass,
		Message:  fmt.Sprintf("%d global rules, %d project-scoped rules", global, scoped),
	})

	// Project rules pointing at deleted projects never resolve, but they
	// still activate overrides if ids are ever reused.
	if d.hostTables["projects"] && scoped > 0 {
		var orphans int64
		err := d.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM workflow_rules w
			WHERE w.project_id IS NOT NULL
			AND NOT EXISTS (SELECT 1 FROM projects p WHERE p.id = w.project_id)
		`).Scan(&orphans)
		if err != nil {
			return fmt.Errorf("counting orphan rules: %w", err)
		}
		if orphans > 0 {
			report.AddCheck(CheckResult{
				Category: "Rule Data",
				Name:     "orphans",
				Status:   StatusWarn,
				Message:  fmt.Sprintf("%d project-scoped rules reference missing projects", orphans),
				FixHint:  "Delete them or run 'flowscope rollback' to clear project scoping",
			})
		} else {
			report.AddCheck(CheckResult{
				Category: "Rule Data",
				Name:     "orphans",
				Status:   StatusPass,
				Message:  "All project-scoped rules reference existing projects",
			})
		}
	}

	if d.hostTables["trackers"] && d.hostTables["roles"] {
		if err := d.checkEntityReferences(ctx, report); err != nil {
			return err
		}
	}

	var badRules int64
	err = d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM workflow_rules
		WHERE kind = 'permission' AND rule NOT IN ('readonly', 'required')
	`).Scan(&badRules)
	if err != nil {
		return fmt.Errorf("counting invalid rule values: %w", err)
	}
	if badRules > 0 {
		report.AddCheck(CheckResult{
			Category: "Rule Data",
			Name:     "rule_values",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%d permission rows carry unknown rule values", badRules),
			Details:  "Only 'readonly' and 'required' are recognized",
		})
	} else {
		report.AddCheck(CheckResult{
			Category: "Rule Data",
			Name:     "rule_values",
			Status:   StatusPass,
			Message:  "All permission rules carry recognized values",
		})
	}

	return nil
}

// checkEntityReferences samples rules whose tracker or role no longer exists.
func (d *Doctor) checkEntityReferences(ctx context.Context, report *Report) error {
	rows, err := d.db.QueryContext(ctx, `
		SELECT DISTINCT w.tracker_id, w.role_id
		FROM workflow_rules w
		WHERE NOT EXISTS (SELECT 1 FROM trackers t WHERE t.id = w.tracker_id)
		OR NOT EXISTS (SELECT 1 FROM roles r WHERE r.id = w.role_id)
		LIMIT 100
	`)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	var stale []string
	for rows.Next() {
		var trackerID, roleID int64
		if err := rows.Scan(&trackerID, &roleID); err != nil {
			return err
		}
		stale = append(stale, fmt.Sprintf("tracker %d / role %d", trackerID, roleID))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(stale) > 0 {
		details := strings.Join(stale, "\n")
		if len(stale) > 10 {
			details = strings.Join(stale[:10], "\n") + fmt.Sprintf("\n... and %d more", len(stale)-10)
		}
		report.AddCheck(CheckResult{
			Category: "Rule Data",
			Name:     "references",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%d (tracker, role) pairs reference missing entities", len(stale)),
			Details:  details,
		})
	} else {
		report.AddCheck(CheckResult{
			Category: "Rule Data",
			Name:     "references",
			Status:   StatusPass,
			Message:  "All rules reference existing trackers and roles",
		})
	}

	return nil
}

// tableExists reports whether a table with the given name exists in the
// current schema.
func (d *Doctor) tableExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_class c
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE c.relname = $1
			AND n.nspname = current_schema()
			AND c.relkind IN ('r', 'v', 'm')
		)
	`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", name, err)
	}
	return exists, nil
}

func (d *Doctor) columnExists(ctx context.Context, table, column string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = $1
			AND table_schema = current_schema()
			AND column_name = $2
		)
	`, table, column).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking %s.%s: %w", table, column, err)
	}
	return exists, nil
}

// getCurrentIndexes returns the workflow_rules index names.
func (d *Doctor) getCurrentIndexes(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT indexname FROM pg_indexes
		WHERE tablename = 'workflow_rules'
		AND schemaname = current_schema()
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
