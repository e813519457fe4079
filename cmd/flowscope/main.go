// Package main provides a CLI for managing project-scoped workflow rules.
//
// The CLI supports:
//   - migrate: Install the rule storage into PostgreSQL
//   - rollback: Remove project scoping and scoped rules
//   - status: Check current migration state
//   - apply: Apply a declarative YAML rule file
//   - copy: Duplicate rules between trackers, roles, and scopes
//   - doctor: Run health checks on the storage and host tables
//
// This tool is typically run during deployment to keep the rule storage
// synchronized, and interactively to seed or duplicate workflows.
//
// Commands that require database access (all except config and version)
// need --db, a config file, or FLOWSCOPE_DATABASE_* variables.
package main

func main() {
	Execute()
}
