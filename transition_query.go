package flowscope

import (
	"context"
	"fmt"
	"strings"
)

// TransitionQuery reads effective transition rule sets, combining
// project-scoped rows for overridden roles with global rows for the rest.
type TransitionQuery struct {
	q Querier
}

// NewTransitionQuery creates a transition query over q.
func NewTransitionQuery(q Querier) *TransitionQuery {
	return &TransitionQuery{q: q}
}

// OverrideActive reports whether any project-scoped transition row exists
// for the tracker and any of the given roles. Hosts use this to decide
// whether to take the override-aware path at all, so stock global-only
// behavior is preserved for tracker/role pairs no project ever customized.
// Note the check is existence of a project row anywhere, not in one
// particular project: once any project customizes a pair, the override path
// owns resolution for it everywhere (falling back per project via Resolver).
func (tq *TransitionQuery) OverrideActive(ctx context.Context, trackerID int64, roleIDs []int64) (bool, error) {
	return overrideActive(ctx, tq.q, KindTransition, trackerID, roleIDs)
}

// overrideActive is shared by both rule kinds.
func overrideActive(ctx context.Context, q Querier, kind RuleKind, trackerID int64, roleIDs []int64) (bool, error) {
	if trackerID == 0 || len(roleIDs) == 0 {
		return false, nil
	}

	args := []any{string(kind), trackerID}
	query := fmt.Sprintf(
		"SELECT EXISTS (SELECT 1 FROM %s WHERE kind = $1 AND tracker_id = $2 AND %s AND project_id IS NOT NULL)",
		rulesTable,
		inClause("role_id", roleIDs, &args),
	)

	var active bool
	if err := q.QueryRowContext(ctx, query, args...).Scan(&active); err != nil {
		return false, mapError("checking override", err)
	}
	return active, nil
}

// AllowedStatuses returns the statuses reachable from initialStatusID for
// the tracker and roles within the project scope, ordered canonically
// (position, then id). Pass initialStatusID 0 for issues with no current
// status (new records).
//
// The author/assignee pair selects which rule rows apply:
//   - both true: every row (no gate can exclude the user)
//   - exactly one true: unconditional rows plus rows whose enabled gate
//     matches, via the single predicate author = $a OR assignee = $b
//   - both false: unconditional rows only
//
// Roles are partitioned by Resolver against the transition kind; overridden
// roles read project rows, the rest read global rows, and the two sub-scopes
// are unioned. Empty roles, or both sub-scopes empty, yield an empty result.
func (tq *TransitionQuery) AllowedStatuses(ctx context.Context, scope Scope, trackerID int64, roleIDs []int64, initialStatusID int64, author, assignee bool) ([]Status, error) {
	if trackerID == 0 || len(roleIDs) == 0 {
		return nil, nil
	}

	overridden, err := NewResolver(tq.q).OverriddenRoleIDs(ctx, KindTransition, scope, trackerID, roleIDs)
	if err != nil {
		return nil, err
	}
	global := diffIDs(roleIDs, overridden)

	args := []any{string(KindTransition), trackerID, initialStatusID}
	var gate string
	switch {
	case author && assignee:
		gate = ""
	case author || assignee:
		args = append(args, author, assignee)
		gate = fmt.Sprintf(" AND (w.author = $%d OR w.assignee = $%d)", len(args)-1, len(args))
	default:
		gate = " AND w.author = FALSE AND w.assignee = FALSE"
	}

	var scopes []string
	if len(overridden) > 0 {
		clause := "(w." + scopeClause(scope, &args) + " AND w." + inClause("role_id", overridden, &args) + ")"
		scopes = append(scopes, clause)
	}
	if len(global) > 0 {
		clause := "(w.project_id IS NULL AND w." + inClause("role_id", global, &args) + ")"
		scopes = append(scopes, clause)
	}
	if len(scopes) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		`SELECT DISTINCT s.id, s.name, s.position, s.is_closed
		 FROM %s w
		 JOIN issue_statuses s ON s.id = w.new_status_id
		 WHERE w.kind = $1 AND w.tracker_id = $2 AND w.old_status_id = $3%s
		   AND (%s)
		 ORDER BY s.position, s.id`,
		rulesTable, gate, strings.Join(scopes, " OR "),
	)

	rows, err := tq.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("querying allowed statuses", err)
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
