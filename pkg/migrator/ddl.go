package migrator

// rulesDDL creates the workflow_rules table.
// Matches the host tracker's workflow table layout with the project_id
// scope column added. All statements are idempotent.
const rulesDDL = `CREATE TABLE IF NOT EXISTS workflow_rules (
    id BIGSERIAL PRIMARY KEY,
    kind VARCHAR(30) NOT NULL DEFAULT 'transition',
    tracker_id BIGINT NOT NULL DEFAULT 0,
    old_status_id BIGINT NOT NULL DEFAULT 0,
    new_status_id BIGINT NOT NULL DEFAULT 0,
    role_id BIGINT NOT NULL DEFAULT 0,
    assignee BOOLEAN NOT NULL DEFAULT FALSE,
    author BOOLEAN NOT NULL DEFAULT FALSE,
    field_name VARCHAR(30),
    rule VARCHAR(30),
    project_id BIGINT
)`

// projectColumnDDL adds the scope column to a pre-existing rules table.
// A no-op when rulesDDL created the table in the same run.
const projectColumnDDL = `ALTER TABLE workflow_rules ADD COLUMN IF NOT EXISTS project_id BIGINT`

// ruleIndexes are the composite indexes serving the resolver and query
// paths. Each leads with project_id so scoped and global lookups both
// stay index-only.
var ruleIndexes = []struct {
	Name    string
	Columns string
}{
	{
		Name:    "idx_workflow_rules_scope_role_tracker_old_status",
		Columns: "(project_id, role_id, tracker_id, old_status_id, kind)",
	},
	{
		Name:    "idx_workflow_rules_scope_tracker_role",
		Columns: "(project_id, tracker_id, role_id, kind)",
	},
	{
		Name:    "idx_workflow_rules_scope_tracker_role_old_status",
		Columns: "(project_id, tracker_id, role_id, old_status_id, kind)",
	},
	{
		Name:    "idx_workflow_rules_scope_tracker_role_field",
		Columns: "(project_id, tracker_id, role_id, old_status_id, field_name, kind)",
	},
}

// migrationsDDL defines the flowscope_migrations table for tracking
// migration state.
//
// Each row represents a completed migration:
//   - ddl_checksum: SHA256 of the DDL applied
//   - migrator_version: version of the migration logic
//   - index_names: names of the indexes created (for rollback)
//
// The migrator checks the most recent record to determine if
// re-migration is needed. If both checksum and version match,
// migration is skipped unless Force is set.
const migrationsDDL = `CREATE TABLE IF NOT EXISTS flowscope_migrations (
    id SERIAL PRIMARY KEY,
    migrated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    ddl_checksum VARCHAR(64) NOT NULL,
    migrator_version VARCHAR(32) NOT NULL,
    index_names TEXT[] NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_flowscope_migrations_checksum
ON flowscope_migrations (ddl_checksum, migrator_version)`
