package migrator

import "context"

// Migrate installs the workflow rule storage in one operation.
// This is the recommended high-level API for most applications.
//
// The function is idempotent - safe to call on every application startup.
// It creates the workflow_rules table, adds the project_id scope column to
// a pre-existing table, and creates the composite lookup indexes, all
// atomically within a transaction (when db supports BeginTx).
//
// Example usage on application startup:
//
//	if err := migrator.Migrate(ctx, db); err != nil {
//	    log.Fatalf("migration failed: %v", err)
//	}
//
// For fine-grained control (dry-run, force), use MigrateWithOptions.
func Migrate(ctx context.Context, db Execer) error {
	return NewMigrator(db).Migrate(ctx)
}

// MigrateWithOptions performs migration with control over dry-run and skip
// behavior. See Migrator.MigrateWithOptions.
//
// Example: generate a migration script without applying
//
//	var buf bytes.Buffer
//	_, err := migrator.MigrateWithOptions(ctx, db, migrator.MigrateOptions{
//	    DryRun: &buf,
//	})
//	os.WriteFile("migrations/001_flowscope.sql", buf.Bytes(), 0644)
func MigrateWithOptions(ctx context.Context, db Execer, opts MigrateOptions) (skipped bool, err error) {
	return NewMigrator(db).MigrateWithOptions(ctx, opts)
}

// Rollback removes project scoping: deletes project-scoped rows, drops the
// lookup indexes and the project_id column. Global rules survive.
func Rollback(ctx context.Context, db Execer) error {
	return NewMigrator(db).Rollback(ctx)
}

// GetStatus returns the current migration status.
func GetStatus(ctx context.Context, db Execer) (*Status, error) {
	return NewMigrator(db).GetStatus(ctx)
}

// CurrentDDLChecksum returns the checksum of the DDL this build would apply.
// Compare against MigrationRecord.DDLChecksum to detect drift.
func CurrentDDLChecksum() string {
	return ComputeDDLChecksum(ddlStatements())
}

// IndexNames returns the names of the lookup indexes this build creates.
func IndexNames() []string {
	return indexNames()
}
