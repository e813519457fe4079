package migrator

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDDLChecksum(t *testing.T) {
	a := ComputeDDLChecksum([]string{"CREATE TABLE a (id INT)"})
	b := ComputeDDLChecksum([]string{"CREATE TABLE b (id INT)"})

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, ComputeDDLChecksum([]string{"CREATE TABLE a (id INT)"}))
}

func TestShouldSkipMigration(t *testing.T) {
	checksum := ComputeDDLChecksum(ddlStatements())

	assert.False(t, shouldSkipMigration(nil, checksum))
	assert.False(t, shouldSkipMigration(&MigrationRecord{
		DDLChecksum:     "stale",
		MigratorVersion: MigratorVersion,
	}, checksum))
	assert.False(t, shouldSkipMigration(&MigrationRecord{
		DDLChecksum:     checksum,
		MigratorVersion: "0",
	}, checksum))
	assert.True(t, shouldSkipMigration(&MigrationRecord{
		DDLChecksum:     checksum,
		MigratorVersion: MigratorVersion,
	}, checksum))
}

func TestDDLStatements(t *testing.T) {
	stmts := ddlStatements()
	require.Len(t, stmts, 2+len(ruleIndexes))

	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS workflow_rules")
	assert.Contains(t, stmts[1], "ADD COLUMN IF NOT EXISTS project_id")
	for _, stmt := range stmts[2:] {
		assert.Contains(t, stmt, "CREATE INDEX IF NOT EXISTS")
		assert.Contains(t, stmt, "project_id")
	}
}

func TestDryRunOutput(t *testing.T) {
	var buf bytes.Buffer
	m := NewMigrator(nil)

	skipped, err := m.MigrateWithOptions(t.Context(), MigrateOptions{DryRun: &buf})
	require.NoError(t, err)
	assert.False(t, skipped)

	out := buf.String()
	assert.Contains(t, out, "dry-run")
	assert.Contains(t, out, "workflow_rules")
	assert.Contains(t, out, "flowscope_migrations")
	for _, idx := range ruleIndexes {
		assert.Contains(t, out, idx.Name)
	}
	// Dry-run must not touch the database; nil db would panic otherwise.
	assert.Greater(t, strings.Count(out, ";"), len(ruleIndexes))
}
