package flowscope

import (
	"context"
	"fmt"
	"strings"
)

// Copier bulk-duplicates workflow rules between scopes, e.g. seeding a new
// project's workflows from the global rules or from another project.
type Copier struct {
	db Execer
}

// NewCopier creates a copier. Pass a *sql.DB to let the copier manage its
// own transaction, or a *sql.Tx to join an existing one.
func NewCopier(db Execer) *Copier {
	return &Copier{db: db}
}

// CopyRequest describes one bulk duplication. At least one of SourceTracker
// and SourceRole must be set; a nil one resolves to the matching target
// value per pair, so "same trackers and roles, different project" is a legal
// request. Empty TargetTrackers or TargetRoles default to all trackers
// resp. all workflow-capable roles.
type CopyRequest struct {
	SourceScope   Scope
	SourceTracker *Tracker
	SourceRole    *Role

	TargetScope    Scope
	TargetTrackers []Tracker
	TargetRoles    []Role
}

// copyPair is one resolved (target tracker, target role) copy.
type copyPair struct {
	srcTracker Tracker
	srcRole    Role
	tracker    Tracker
	role       Role
}

// CopyRules duplicates every matching source row into the target scope for
// the cross product of target trackers and roles, remapping tracker, role,
// and project while preserving statuses, gates, fields, and rule values.
// Pairs that would copy a scope onto itself are skipped silently.
//
// Existing target rows for the copied pairs are deleted first: in one
// upfront batch when more than one pair is copied, or inside the single
// pair's copy otherwise. The whole call runs in one transaction.
//
// Unpersisted or absent source/target trackers or roles abort the call with
// ErrUnsavedEntity before any row is touched.
func (c *Copier) CopyRules(ctx context.Context, req CopyRequest) error {
	if req.SourceTracker == nil && req.SourceRole == nil {
		return fmt.Errorf("%w: a source tracker or source role must be specified", ErrUnsavedEntity)
	}

	trackers := req.TargetTrackers
	roles := req.TargetRoles
	var err error
	if len(trackers) == 0 {
		if trackers, err = Trackers(ctx, c.db); err != nil {
			return err
		}
	}
	if len(roles) == 0 {
		if roles, err = WorkflowRoles(ctx, c.db); err != nil {
			return err
		}
	}

	var pairs, skipped []copyPair
	for _, tracker := range trackers {
		for _, role := range roles {
			p := copyPair{srcTracker: tracker, srcRole: role, tracker: tracker, role: role}
			if req.SourceTracker != nil {
				p.srcTracker = *req.SourceTracker
			}
			if req.SourceRole != nil {
				p.srcRole = *req.SourceRole
			}
			if p.srcTracker.ID == tracker.ID && p.srcRole.ID == role.ID && req.SourceScope == req.TargetScope {
				skipped = append(skipped, p)
				continue
			}
			pairs = append(pairs, p)
		}
	}
	if len(pairs) == 0 {
		return nil
	}

	for _, p := range pairs {
		if p.srcTracker.ID == 0 || p.srcRole.ID == 0 || p.tracker.ID == 0 || p.role.ID == 0 {
			return ErrUnsavedEntity
		}
	}

	return inTransaction(ctx, c.db, func(tx Execer) error {
		deletePerPair := len(pairs) <= 1
		if !deletePerPair {
			if err := deleteTargetRules(ctx, tx, req.TargetScope, pairs, skipped); err != nil {
				return err
			}
		}
		for _, p := range pairs {
			if err := copyOne(ctx, tx, req.SourceScope, req.TargetScope, p, deletePerPair); err != nil {
				return err
			}
		}
		return nil
	})
}

// deleteTargetRules clears existing target-scope rows for the whole batch in
// one statement, excluding skipped pairs so self-copies keep their rows. The
// tracker/role id sets over-approximate the batch (their cross product), but
// every such pair either copies or is skipped, so nothing unrelated is lost.
func deleteTargetRules(ctx context.Context, tx Execer, scope Scope, pairs, skipped []copyPair) error {
	trackerIDs := uniquePairIDs(pairs, func(p copyPair) int64 { return p.tracker.ID })
	roleIDs := uniquePairIDs(pairs, func(p copyPair) int64 { return p.role.ID })

	var args []any
	where := []string{
		inClause("tracker_id", trackerIDs, &args),
		inClause("role_id", roleIDs, &args),
		scopeClause(scope, &args),
	}

	if len(skipped) > 0 {
		var exclusions []string
		for _, p := range skipped {
			args = append(args, p.tracker.ID, p.role.ID)
			exclusions = append(exclusions, fmt.Sprintf(
				"(tracker_id = $%d AND role_id = $%d)", len(args)-1, len(args)))
		}
		where = append(where, "NOT ("+strings.Join(exclusions, " OR ")+")")
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s", rulesTable, strings.Join(where, " AND "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return mapError("deleting target rules", err)
	}
	return nil
}

// copyOne duplicates one (tracker, role) rule set via INSERT-SELECT,
// remapping tracker, role, and project ids while selecting every other
// column verbatim. Both rule kinds travel together; the single-table shape
// makes the copy one statement.
func copyOne(ctx context.Context, tx Execer, srcScope, targetScope Scope, p copyPair, deleteExisting bool) error {
	if p.srcTracker.ID == p.tracker.ID && p.srcRole.ID == p.role.ID && srcScope == targetScope {
		return nil
	}

	if deleteExisting {
		args := []any{p.tracker.ID, p.role.ID}
		query := fmt.Sprintf("DELETE FROM %s WHERE tracker_id = $1 AND role_id = $2 AND %s",
			rulesTable, scopeClause(targetScope, &args))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return mapError("deleting target rules", err)
		}
	}

	args := []any{p.tracker.ID, p.role.ID, targetScope.arg(), p.srcTracker.ID, p.srcRole.ID}
	srcCond := "project_id IS NULL"
	if id, ok := srcScope.ProjectID(); ok {
		args = append(args, id)
		srcCond = fmt.Sprintf("project_id = $%d", len(args))
	}

	query := fmt.Sprintf(
		`INSERT INTO %[1]s (kind, tracker_id, role_id, old_status_id, new_status_id, author, assignee, field_name, rule, project_id)
		 SELECT kind, $1, $2, old_status_id, new_status_id, author, assignee, field_name, rule, $3
		 FROM %[1]s
		 WHERE tracker_id = $4 AND role_id = $5 AND %[2]s`,
		rulesTable, srcCond,
	)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return mapError("copying rules", err)
	}
	return nil
}

func uniquePairIDs(pairs []copyPair, get func(copyPair) int64) []int64 {
	seen := make(map[int64]struct{}, len(pairs))
	var ids []int64
	for _, p := range pairs {
		id := get(p)
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}
