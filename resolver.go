package flowscope

import (
	"context"
	"fmt"
)

// Resolver partitions a candidate role set into roles with a project-specific
// override and roles falling back to global rules.
//
// Override detection is existence-based and per (tracker, role) pair: a role
// is overridden when at least one row of the given kind exists for the
// project, tracker, and that role, regardless of which statuses the row
// covers. Read-only; no side effects.
type Resolver struct {
	q Querier
}

// NewResolver creates a resolver over q.
func NewResolver(q Querier) *Resolver {
	return &Resolver{q: q}
}

// OverriddenRoleIDs returns the subset of roleIDs having at least one rule
// row of the given kind scoped to the project. A global scope, a zero
// tracker, or an empty role set yields an empty result: no override is
// meaningful without a concrete project context.
func (r *Resolver) OverriddenRoleIDs(ctx context.Context, kind RuleKind, scope Scope, trackerID int64, roleIDs []int64) ([]int64, error) {
	if scope.IsGlobal() || trackerID == 0 || len(roleIDs) == 0 {
		return nil, nil
	}

	args := []any{string(kind), trackerID}
	query := fmt.Sprintf(
		"SELECT DISTINCT role_id FROM %s WHERE kind = $1 AND tracker_id = $2 AND %s AND %s",
		rulesTable,
		scopeClause(scope, &args),
		inClause("role_id", roleIDs, &args),
	)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("resolving overridden roles", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GlobalRoleIDs returns the complement of OverriddenRoleIDs within roleIDs:
// the roles whose rules come from the global scope.
func (r *Resolver) GlobalRoleIDs(ctx context.Context, kind RuleKind, scope Scope, trackerID int64, roleIDs []int64) ([]int64, error) {
	overridden, err := r.OverriddenRoleIDs(ctx, kind, scope, trackerID, roleIDs)
	if err != nil {
		return nil, err
	}
	return diffIDs(roleIDs, overridden), nil
}
