package flowscope

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// StatusListQuery computes the set of statuses a project's workflows
// actually use: every status appearing as either side of a non-self
// transition for the project's trackers, with the overridden/global
// partition applied per tracker. Different trackers may have a different
// override state for the same role, so partitioning globally across
// trackers would leak global rows into overridden pairs.
type StatusListQuery struct {
	q Querier
}

// NewStatusListQuery creates a status list query over q.
func NewStatusListQuery(q Querier) *StatusListQuery {
	return &StatusListQuery{q: q}
}

// StatusIDs returns the distinct status ids used by non-self transitions for
// the trackers and roles within the scope, sorted ascending. A nil roleIDs
// defaults to every workflow-capable role. Empty trackers or an empty
// resolved role set yield an empty result.
func (s *StatusListQuery) StatusIDs(ctx context.Context, scope Scope, trackerIDs []int64, roleIDs []int64) ([]int64, error) {
	if len(trackerIDs) == 0 {
		return nil, nil
	}

	if roleIDs == nil {
		var err error
		roleIDs, err = WorkflowRoleIDs(ctx, s.q)
		if err != nil {
			return nil, err
		}
	}
	if len(roleIDs) == 0 {
		return nil, nil
	}

	overriddenByTracker, err := s.overriddenPairs(ctx, scope, trackerIDs, roleIDs)
	if err != nil {
		return nil, err
	}

	args := []any{string(KindTransition)}
	var trackerScopes []string
	for _, trackerID := range trackerIDs {
		overridden := overriddenByTracker[trackerID]
		global := diffIDs(roleIDs, overridden)

		var parts []string
		if len(overridden) > 0 {
			parts = append(parts, "("+inClause("role_id", overridden, &args)+" AND "+scopeClause(scope, &args)+")")
		}
		if len(global) > 0 {
			parts = append(parts, "("+inClause("role_id", global, &args)+" AND project_id IS NULL)")
		}
		if len(parts) == 0 {
			continue
		}

		args = append(args, trackerID)
		trackerScopes = append(trackerScopes,
			fmt.Sprintf("(tracker_id = $%d AND (%s))", len(args), strings.Join(parts, " OR ")))
	}
	if len(trackerScopes) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		`SELECT DISTINCT old_status_id, new_status_id
		 FROM %s
		 WHERE kind = $1 AND old_status_id <> new_status_id AND (%s)`,
		rulesTable, strings.Join(trackerScopes, " OR "),
	)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("querying used statuses", err)
	}
	defer func() { _ = rows.Close() }()

	seen := make(map[int64]struct{})
	for rows.Next() {
		var oldID, newID int64
		if err := rows.Scan(&oldID, &newID); err != nil {
			return nil, err
		}
		seen[oldID] = struct{}{}
		seen[newID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// overriddenPairs returns the overridden role ids per tracker for the scope,
// in one query across all trackers. Global scope has no overrides.
func (s *StatusListQuery) overriddenPairs(ctx context.Context, scope Scope, trackerIDs, roleIDs []int64) (map[int64][]int64, error) {
	pairs := make(map[int64][]int64)
	if scope.IsGlobal() {
		return pairs, nil
	}

	args := []any{string(KindTransition)}
	query := fmt.Sprintf(
		"SELECT DISTINCT tracker_id, role_id FROM %s WHERE kind = $1 AND %s AND %s AND %s",
		rulesTable,
		scopeClause(scope, &args),
		inClause("tracker_id", trackerIDs, &args),
		inClause("role_id", roleIDs, &args),
	)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("resolving overridden pairs", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var trackerID, roleID int64
		if err := rows.Scan(&trackerID, &roleID); err != nil {
			return nil, err
		}
		pairs[trackerID] = append(pairs[trackerID], roleID)
	}
	return pairs, rows.Err()
}
