package test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmaes/flowscope"
	"github.com/tmaes/flowscope/pkg/migrator"
	"github.com/tmaes/flowscope/test/testutil"
)

func TestMigrate_FreshDatabase(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := testutil.EmptyDB(t)
	ctx := context.Background()

	require.NoError(t, migrator.Migrate(ctx, db))

	status, err := migrator.GetStatus(ctx, db)
	require.NoError(t, err)
	assert.True(t, status.RulesTableExists)
	assert.True(t, status.ProjectColumnExists)
	assert.Zero(t, status.ProjectRuleCount)

	_, err = db.ExecContext(ctx, `
		INSERT INTO workflow_rules (kind, tracker_id, role_id, old_status_id, new_status_id, project_id)
		VALUES ('transition', 1, 1, 1, 2, 7)
	`)
	require.NoError(t, err)

	status, err = migrator.GetStatus(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.ProjectRuleCount)
}

func TestMigrate_SkipsWhenUnchanged(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := testutil.EmptyDB(t)
	ctx := context.Background()

	skipped, err := migrator.MigrateWithOptions(ctx, db, migrator.MigrateOptions{})
	require.NoError(t, err)
	assert.False(t, skipped)

	skipped, err = migrator.MigrateWithOptions(ctx, db, migrator.MigrateOptions{})
	require.NoError(t, err)
	assert.True(t, skipped)

	skipped, err = migrator.MigrateWithOptions(ctx, db, migrator.MigrateOptions{Force: true})
	require.NoError(t, err)
	assert.False(t, skipped)

	rec, err := migrator.NewMigrator(db).GetLastMigration(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, migrator.MigratorVersion, rec.MigratorVersion)
	assert.NotEmpty(t, rec.IndexNames)
}

func TestMigrate_AdoptsLegacyTable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := testutil.EmptyDB(t)
	ctx := context.Background()

	// A rules table created before scoping existed: same shape, no
	// project_id.
	_, err := db.ExecContext(ctx, `
		CREATE TABLE workflow_rules (
			id BIGSERIAL PRIMARY KEY,
			kind VARCHAR(30) NOT NULL DEFAULT 'transition',
			tracker_id BIGINT NOT NULL DEFAULT 0,
			old_status_id BIGINT NOT NULL DEFAULT 0,
			new_status_id BIGINT NOT NULL DEFAULT 0,
			role_id BIGINT NOT NULL DEFAULT 0,
			assignee BOOLEAN NOT NULL DEFAULT FALSE,
			author BOOLEAN NOT NULL DEFAULT FALSE,
			field_name VARCHAR(30),
			rule VARCHAR(30)
		)
	`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `
		INSERT INTO workflow_rules (kind, tracker_id, role_id, old_status_id, new_status_id)
		VALUES ('transition', 1, 1, 1, 2)
	`)
	require.NoError(t, err)

	require.NoError(t, migrator.Migrate(ctx, db))

	status, err := migrator.GetStatus(ctx, db)
	require.NoError(t, err)
	assert.True(t, status.ProjectColumnExists)

	// The pre-existing row survives as a global rule.
	var total, scoped int64
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflow_rules`).Scan(&total))
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflow_rules WHERE project_id IS NOT NULL`).Scan(&scoped))
	assert.Equal(t, int64(1), total)
	assert.Zero(t, scoped)
}

func TestMigrate_DryRunLeavesDatabaseUntouched(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := testutil.EmptyDB(t)
	ctx := context.Background()

	var buf bytes.Buffer
	skipped, err := migrator.MigrateWithOptions(ctx, db, migrator.MigrateOptions{DryRun: &buf})
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.Contains(t, buf.String(), "CREATE TABLE IF NOT EXISTS workflow_rules")

	status, err := migrator.GetStatus(ctx, db)
	require.NoError(t, err)
	assert.False(t, status.RulesTableExists)
}

func TestRollback_RemovesScopingKeepsGlobalRules(t *testing.T) {
	w := setupWorkflow(t)
	ctx := context.Background()

	require.NoError(t, w.fx.InsertTransition(flowscope.Global, w.trackerA, w.roleDev, w.statusNew, w.statusDoing, false, false))
	require.NoError(t, w.fx.InsertTransition(flowscope.Project(w.projectID), w.trackerA, w.roleDev, w.statusNew, w.statusDone, false, false))

	require.NoError(t, migrator.Rollback(ctx, w.db))

	status, err := migrator.GetStatus(ctx, w.db)
	require.NoError(t, err)
	assert.True(t, status.RulesTableExists)
	assert.False(t, status.ProjectColumnExists)

	var total int64
	require.NoError(t, w.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflow_rules`).Scan(&total))
	assert.Equal(t, int64(1), total)

	rec, err := migrator.NewMigrator(w.db).GetLastMigration(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Migrating again restores scoping.
	require.NoError(t, migrator.Migrate(ctx, w.db))
	status, err = migrator.GetStatus(ctx, w.db)
	require.NoError(t, err)
	assert.True(t, status.ProjectColumnExists)
	assert.Zero(t, status.ProjectRuleCount)
}
