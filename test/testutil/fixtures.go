package testutil

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tmaes/flowscope"
)

// Fixtures provides factory functions for creating test data.
// Rule rows are inserted directly so query tests don't depend on the
// writers they are meant to exercise from the other side.
type Fixtures struct {
	db  *sql.DB
	ctx context.Context
}

// NewFixtures creates a new Fixtures instance.
func NewFixtures(ctx context.Context, db *sql.DB) *Fixtures {
	return &Fixtures{db: db, ctx: ctx}
}

// CreateProject creates a project and returns its ID.
func (f *Fixtures) CreateProject(name string) (int64, error) {
	var id int64
	err := f.db.QueryRowContext(f.ctx,
		`INSERT INTO projects (name) VALUES ($1) RETURNING id`,
		name,
	).Scan(&id)
	return id, err
}

// CreateTracker creates a tracker and returns its ID.
func (f *Fixtures) CreateTracker(name string, position int) (int64, error) {
	var id int64
	err := f.db.QueryRowContext(f.ctx,
		`INSERT INTO trackers (name, position) VALUES ($1, $2) RETURNING id`,
		name, position,
	).Scan(&id)
	return id, err
}

// CreateTrackerWithDefault creates a tracker with a default status.
func (f *Fixtures) CreateTrackerWithDefault(name string, position int, defaultStatusID int64) (int64, error) {
	var id int64
	err := f.db.QueryRowContext(f.ctx,
		`INSERT INTO trackers (name, position, default_status_id) VALUES ($1, $2, $3) RETURNING id`,
		name, position, defaultStatusID,
	).Scan(&id)
	return id, err
}

// CreateRole creates a workflow-capable role and returns its ID.
func (f *Fixtures) CreateRole(name string) (int64, error) {
	return f.createRole(name, true)
}

// CreateNonWorkflowRole creates a role excluded from workflow resolution.
func (f *Fixtures) CreateNonWorkflowRole(name string) (int64, error) {
	return f.createRole(name, false)
}

func (f *Fixtures) createRole(name string, considersWorkflow bool) (int64, error) {
	var id int64
	err := f.db.QueryRowContext(f.ctx,
		`INSERT INTO roles (name, considers_workflow) VALUES ($1, $2) RETURNING id`,
		name, considersWorkflow,
	).Scan(&id)
	return id, err
}

// CreateStatus creates an issue status and returns its ID.
func (f *Fixtures) CreateStatus(name string, position int, closed bool) (int64, error) {
	var id int64
	err := f.db.QueryRowContext(f.ctx,
		`INSERT INTO issue_statuses (name, position, is_closed) VALUES ($1, $2, $3) RETURNING id`,
		name, position, closed,
	).Scan(&id)
	return id, err
}

// CreateStatuses creates n open statuses named status_1..status_n with
// ascending positions and returns their IDs in position order.
func (f *Fixtures) CreateStatuses(n int) ([]int64, error) {
	ids := make([]int64, 0, n)
	for i := 1; i <= n; i++ {
		id, err := f.CreateStatus(fmt.Sprintf("status_%d", i), i, false)
		if err != nil {
			return nil, fmt.Errorf("create status %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CreateCustomField creates a custom field and returns its ID.
// Hidden fields (visible=false) are readonly except for roles granted
// visibility via GrantFieldVisibility.
func (f *Fixtures) CreateCustomField(name string, visible bool) (int64, error) {
	var id int64
	err := f.db.QueryRowContext(f.ctx,
		`INSERT INTO custom_fields (name, visible) VALUES ($1, $2) RETURNING id`,
		name, visible,
	).Scan(&id)
	return id, err
}

// GrantFieldVisibility makes a hidden custom field visible to the given roles.
func (f *Fixtures) GrantFieldVisibility(fieldID int64, roleIDs ...int64) error {
	for _, roleID := range roleIDs {
		_, err := f.db.ExecContext(f.ctx,
			`INSERT INTO custom_field_roles (custom_field_id, role_id) VALUES ($1, $2)`,
			fieldID, roleID,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// InsertTransition inserts one transition rule row.
func (f *Fixtures) InsertTransition(scope flowscope.Scope, trackerID, roleID, oldStatus, newStatus int64, author, assignee bool) error {
	_, err := f.db.ExecContext(f.ctx, `
		INSERT INTO workflow_rules (kind, tracker_id, role_id, old_status_id, new_status_id, author, assignee, project_id)
		VALUES ('transition', $1, $2, $3, $4, $5, $6, $7)
	`, trackerID, roleID, oldStatus, newStatus, author, assignee, scopeArg(scope))
	return err
}

// InsertPermission inserts one permission rule row.
func (f *Fixtures) InsertPermission(scope flowscope.Scope, trackerID, roleID, statusID int64, field string, rule flowscope.Rule) error {
	_, err := f.db.ExecContext(f.ctx, `
		INSERT INTO workflow_rules (kind, tracker_id, role_id, old_status_id, field_name, rule, project_id)
		VALUES ('permission', $1, $2, $3, $4, $5, $6)
	`, trackerID, roleID, statusID, field, string(rule), scopeArg(scope))
	return err
}

// CountRules returns the number of rule rows in the given scope.
func (f *Fixtures) CountRules(scope flowscope.Scope) (int, error) {
	query := `SELECT COUNT(*) FROM workflow_rules WHERE project_id IS NULL`
	args := []any{}
	if id, ok := scope.ProjectID(); ok {
		query = `SELECT COUNT(*) FROM workflow_rules WHERE project_id = $1`
		args = append(args, id)
	}
	var n int
	err := f.db.QueryRowContext(f.ctx, query, args...).Scan(&n)
	return n, err
}

func scopeArg(scope flowscope.Scope) any {
	if id, ok := scope.ProjectID(); ok {
		return id
	}
	return nil
}
