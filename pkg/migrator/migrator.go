package migrator

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/lib/pq"
)

// MigratorVersion is incremented when the DDL or migration logic changes.
// This ensures migrations re-run even if the DDL checksum matches.
const MigratorVersion = "1"

// MigrateOptions controls migration behavior.
type MigrateOptions struct {
	// DryRun outputs SQL to the provided writer without applying changes to the database.
	// If nil, migration proceeds normally. Use for previewing migrations or generating migration scripts.
	DryRun io.Writer

	// Force re-runs migration even if the DDL and migrator version are unchanged.
	Force bool
}

// MigrationRecord represents a row in the flowscope_migrations table.
type MigrationRecord struct {
	DDLChecksum     string
	MigratorVersion string
	IndexNames      []string
}

// Migrator installs the workflow rule storage into PostgreSQL.
// The migrator is idempotent and safe to run on every application startup.
//
// The migration process:
//  1. Creates the workflow_rules table if missing
//  2. Adds the project_id scope column to a pre-existing table
//  3. Creates the composite lookup indexes
//  4. Records the migration in flowscope_migrations
//
// All steps run atomically in a transaction when the Execer supports it
// (*sql.DB does).
type Migrator struct {
	db Execer
}

// NewMigrator creates a new migrator.
// The Execer is typically *sql.DB but can be *sql.Tx for testing.
func NewMigrator(db Execer) *Migrator {
	return &Migrator{db: db}
}

// ddlStatements returns every DDL statement in application order.
func ddlStatements() []string {
	stmts := []string{rulesDDL, projectColumnDDL}
	for _, idx := range ruleIndexes {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON workflow_rules %s", idx.Name, idx.Columns))
	}
	return stmts
}

// indexNames returns the names of the indexes this migrator creates.
func indexNames() []string {
	names := make([]string, len(ruleIndexes))
	for i, idx := range ruleIndexes {
		names[i] = idx.Name
	}
	return names
}

// ComputeDDLChecksum returns a SHA256 hash of the given DDL statements.
// Used to detect DDL changes for the skip-if-unchanged optimization.
func ComputeDDLChecksum(stmts []string) string {
	h := sha256.Sum256([]byte(strings.Join(stmts, "\n")))
	return hex.EncodeToString(h[:])
}

// Migrate applies the full schema. Idempotent.
func (m *Migrator) Migrate(ctx context.Context) error {
	_, err := m.MigrateWithOptions(ctx, MigrateOptions{})
	return err
}

// MigrateWithOptions performs migration with control over dry-run and skip behavior.
//
// The skip-if-unchanged optimization compares the DDL checksum and migrator
// version against the last successful migration. If both match and Force is
// false, the migration is skipped (skipped=true). This avoids redundant DDL
// round-trips on every application restart.
//
// Returns (skipped, error):
//   - skipped=true if migration was skipped due to unchanged DDL (only when Force=false and DryRun=nil)
//   - error is non-nil if migration failed
func (m *Migrator) MigrateWithOptions(ctx context.Context, opts MigrateOptions) (skipped bool, err error) {
	stmts := ddlStatements()
	checksum := ComputeDDLChecksum(stmts)

	if opts.DryRun != nil {
		m.outputDryRun(opts.DryRun, checksum, stmts)
		return false, nil
	}

	if !opts.Force {
		last, err := m.getLastMigration(ctx, m.db)
		if err != nil {
			return false, fmt.Errorf("checking last migration: %w", err)
		}
		if shouldSkipMigration(last, checksum) {
			return true, nil
		}
	}

	apply := func(db Execer) error {
		if _, err := db.ExecContext(ctx, migrationsDDL); err != nil {
			return fmt.Errorf("applying migrations DDL: %w", err)
		}
		for i, stmt := range stmts {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("applying DDL statement %d: %w", i, err)
			}
		}
		return m.insertMigrationRecord(ctx, db, checksum)
	}

	if txer, ok := m.db.(interface {
		BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	}); ok {
		tx, err := txer.BeginTx(ctx, nil)
		if err != nil {
			return false, fmt.Errorf("starting transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := apply(tx); err != nil {
			return false, err
		}
		return false, tx.Commit()
	}

	// Fall back to non-transactional (for *sql.Conn)
	return false, apply(m.db)
}

// Rollback removes project scoping from the rules table.
//
// Project-scoped rows are deleted first so the column drop cannot leave
// orphaned scoped rules interpreted as global ones. The indexes recorded
// by the last migration are dropped, then the project_id column, then the
// migration records themselves. Global rules are left untouched.
func (m *Migrator) Rollback(ctx context.Context) error {
	last, err := m.getLastMigration(ctx, m.db)
	if err != nil {
		return fmt.Errorf("checking last migration: %w", err)
	}
	names := indexNames()
	if last != nil && len(last.IndexNames) > 0 {
		names = last.IndexNames
	}

	apply := func(db Execer) error {
		if _, err := db.ExecContext(ctx, `DELETE FROM workflow_rules WHERE project_id IS NOT NULL`); err != nil {
			return fmt.Errorf("deleting project rules: %w", err)
		}
		for _, name := range names {
			stmt := fmt.Sprintf("DROP INDEX IF EXISTS %s", pq.QuoteIdentifier(name))
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("dropping index %s: %w", name, err)
			}
		}
		if _, err := db.ExecContext(ctx, `ALTER TABLE workflow_rules DROP COLUMN IF EXISTS project_id`); err != nil {
			return fmt.Errorf("dropping project column: %w", err)
		}
		if last != nil {
			if _, err := db.ExecContext(ctx, `DELETE FROM flowscope_migrations`); err != nil {
				return fmt.Errorf("clearing migration records: %w", err)
			}
		}
		return nil
	}

	if txer, ok := m.db.(interface {
		BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	}); ok {
		tx, err := txer.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("starting transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := apply(tx); err != nil {
			return err
		}
		return tx.Commit()
	}

	return apply(m.db)
}

// Status represents the current migration state.
// Use GetStatus to check if the rule storage is properly installed.
type Status struct {
	// RulesTableExists indicates if the workflow_rules table exists.
	RulesTableExists bool

	// ProjectColumnExists indicates if the project_id scope column exists.
	ProjectColumnExists bool

	// ProjectRuleCount is the number of project-scoped rule rows.
	// Zero when the table or column is missing.
	ProjectRuleCount int64
}

// GetStatus returns the current migration status.
// Useful for health checks or migration diagnostics.
func (m *Migrator) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{}

	err := m.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_class c
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE c.relname = 'workflow_rules'
			AND n.nspname = current_schema()
			AND c.relkind = 'r'
		)
	`).Scan(&status.RulesTableExists)
	if err != nil {
		return nil, fmt.Errorf("checking workflow_rules: %w", err)
	}
	if !status.RulesTableExists {
		return status, nil
	}

	err = m.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = 'workflow_rules'
			AND table_schema = current_schema()
			AND column_name = 'project_id'
		)
	`).Scan(&status.ProjectColumnExists)
	if err != nil {
		return nil, fmt.Errorf("checking project_id column: %w", err)
	}
	if !status.ProjectColumnExists {
		return status, nil
	}

	err = m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workflow_rules WHERE project_id IS NOT NULL`,
	).Scan(&status.ProjectRuleCount)
	if err != nil {
		return nil, fmt.Errorf("counting project rules: %w", err)
	}
	return status, nil
}

// GetLastMigration returns the most recent migration record, or nil if none exists.
func (m *Migrator) GetLastMigration(ctx context.Context) (*MigrationRecord, error) {
	return m.getLastMigration(ctx, m.db)
}

func (m *Migrator) getLastMigration(ctx context.Context, db Execer) (*MigrationRecord, error) {
	// First check if the migrations table exists
	var tableExists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_class c
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE c.relname = 'flowscope_migrations'
			AND n.nspname = current_schema()
		)
	`).Scan(&tableExists)
	if err != nil {
		return nil, fmt.Errorf("checking flowscope_migrations table: %w", err)
	}
	if !tableExists {
		return nil, nil
	}

	var rec MigrationRecord
	err = db.QueryRowContext(ctx, `
		SELECT ddl_checksum, migrator_version, index_names
		FROM flowscope_migrations
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&rec.DDLChecksum, &rec.MigratorVersion, pq.Array(&rec.IndexNames))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying last migration: %w", err)
	}
	return &rec, nil
}

// shouldSkipMigration returns true if the DDL and migrator version are unchanged.
func shouldSkipMigration(last *MigrationRecord, checksum string) bool {
	if last == nil {
		return false
	}
	return last.DDLChecksum == checksum && last.MigratorVersion == MigratorVersion
}

// insertMigrationRecord records the migration in flowscope_migrations.
func (m *Migrator) insertMigrationRecord(ctx context.Context, db Execer, checksum string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO flowscope_migrations (ddl_checksum, migrator_version, index_names)
		VALUES ($1, $2, $3)
	`, checksum, MigratorVersion, pq.Array(indexNames()))
	if err != nil {
		return fmt.Errorf("inserting migration record: %w", err)
	}
	return nil
}

// outputDryRun writes the migration SQL to the provided writer.
func (m *Migrator) outputDryRun(w io.Writer, checksum string, stmts []string) {
	_, _ = fmt.Fprintf(w, "-- Flowscope Migration (dry-run)\n")
	_, _ = fmt.Fprintf(w, "-- DDL checksum: %s\n", checksum)
	_, _ = fmt.Fprintf(w, "-- Migrator version: %s\n", MigratorVersion)
	_, _ = fmt.Fprintf(w, "\n")

	_, _ = fmt.Fprintf(w, "-- ============================================================\n")
	_, _ = fmt.Fprintf(w, "-- DDL: Migration Tracking Table\n")
	_, _ = fmt.Fprintf(w, "-- ============================================================\n\n")
	_, _ = fmt.Fprintf(w, "%s;\n\n", migrationsDDL)

	_, _ = fmt.Fprintf(w, "-- ============================================================\n")
	_, _ = fmt.Fprintf(w, "-- DDL: Rule Storage (%d statements)\n", len(stmts))
	_, _ = fmt.Fprintf(w, "-- ============================================================\n\n")
	for _, stmt := range stmts {
		_, _ = fmt.Fprintf(w, "%s;\n\n", stmt)
	}

	_, _ = fmt.Fprintf(w, "-- ============================================================\n")
	_, _ = fmt.Fprintf(w, "-- Migration Record\n")
	_, _ = fmt.Fprintf(w, "-- ============================================================\n\n")
	quoted := make([]string, len(ruleIndexes))
	for i, idx := range ruleIndexes {
		quoted[i] = fmt.Sprintf("'%s'", idx.Name)
	}
	_, _ = fmt.Fprintf(w, "INSERT INTO flowscope_migrations (ddl_checksum, migrator_version, index_names)\n")
	_, _ = fmt.Fprintf(w, "VALUES ('%s', '%s', ARRAY[%s]);\n", checksum, MigratorVersion, strings.Join(quoted, ", "))
}
