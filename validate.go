package flowscope

import (
	"context"
	"log"
	"sync"
)

// Validation runs once per process on the first NewSource call.
var schemaValidationOnce sync.Once

// validateSchema performs one-time schema validation on first Source
// creation. It checks for common setup issues and logs warnings (does not
// fail), so applications can start before the migration has run.
//
// Validated conditions:
//   - workflow_rules table exists
//   - workflow_rules has the project_id column
func validateSchema(q Querier) {
	schemaValidationOnce.Do(func() {
		ctx := context.Background()

		var count int
		err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+rulesTable).Scan(&count)
		if err != nil {
			if sqlState(err) == pgUndefinedTable {
				log.Printf("[flowscope] WARNING: workflow_rules table not found. Run 'flowscope migrate' to create it.")
			} else {
				log.Printf("[flowscope] WARNING: Error checking workflow_rules: %v", err)
			}
			return
		}

		var probe *int64
		err = q.QueryRowContext(ctx,
			"SELECT project_id FROM "+rulesTable+" LIMIT 1").Scan(&probe)
		if err != nil && sqlState(err) == pgUndefinedColumn {
			log.Printf("[flowscope] WARNING: workflow_rules.project_id column missing. Run 'flowscope migrate' to add it.")
		}
		// sql.ErrNoRows just means the table is empty, which is fine.
	})
}
