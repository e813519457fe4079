package flowscope

import "context"

// Read-only access to the host tracker's entity tables. flowscope never
// writes these; they exist so defaults ("all trackers", "all workflow
// roles") and status resolution don't force every caller to re-implement
// the same lookups.

// Trackers returns the host's trackers in display order.
func Trackers(ctx context.Context, q Querier) ([]Tracker, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, name, position, COALESCE(default_status_id, 0) FROM trackers ORDER BY position, id")
	if err != nil {
		return nil, mapError("querying trackers", err)
	}
	defer func() { _ = rows.Close() }()

	var trackers []Tracker
	for rows.Next() {
		var t Tracker
		if err := rows.Scan(&t.ID, &t.Name, &t.Position, &t.DefaultStatusID); err != nil {
			return nil, err
		}
		trackers = append(trackers, t)
	}
	return trackers, rows.Err()
}

// WorkflowRoles returns the host's workflow-capable roles in display order.
func WorkflowRoles(ctx context.Context, q Querier) ([]Role, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, name, position, considers_workflow FROM roles WHERE considers_workflow ORDER BY position, id")
	if err != nil {
		return nil, mapError("querying workflow roles", err)
	}
	defer func() { _ = rows.Close() }()

	var roles []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Position, &r.ConsidersWorkflow); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// WorkflowRoleIDs returns just the ids of WorkflowRoles.
func WorkflowRoleIDs(ctx context.Context, q Querier) ([]int64, error) {
	roles, err := WorkflowRoles(ctx, q)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(roles))
	for i, r := range roles {
		ids[i] = r.ID
	}
	return ids, nil
}

// StatusesByID resolves status ids to Status entities in canonical order.
func StatusesByID(ctx context.Context, q Querier, ids []int64) ([]Status, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var args []any
	query := "SELECT id, name, position, is_closed FROM issue_statuses WHERE " +
		inClause("id", ids, &args) + " ORDER BY position, id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("querying statuses", err)
	}
	defer func() { _ = rows.Close() }()

	var statuses []Status
	for rows.Next() {
		var s Status
		if err := rows.Scan(&s.ID, &s.Name, &s.Position, &s.IsClosed); err != nil {
			return nil, err
		}
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}
