package flowscope

import (
	"context"
	"fmt"
	"strings"
)

// TransitionWriter atomically replaces transition rules for one scope.
// Replacement is keyed: only (old, new) pairs present in the matrix are
// deleted and re-inserted; pairs absent from the matrix survive untouched,
// as do rows in every other scope.
type TransitionWriter struct {
	db Execer
}

// NewTransitionWriter creates a transition writer. Pass a *sql.DB to let the
// writer manage its own transaction, or a *sql.Tx to join an existing one.
func NewTransitionWriter(db Execer) *TransitionWriter {
	return &TransitionWriter{db: db}
}

// Replace deletes the matrix's (old, new) pairs for every (tracker, role)
// combination in the scope and inserts the enabled rows, all within one
// transaction. A pair whose flags are all disabled is cleared without
// replacement. Either every row of the call lands or none do.
func (w *TransitionWriter) Replace(ctx context.Context, scope Scope, trackerIDs, roleIDs []int64, matrix TransitionMatrix) error {
	if len(trackerIDs) == 0 || len(roleIDs) == 0 || len(matrix) == 0 {
		return nil
	}

	return inTransaction(ctx, w.db, func(tx Execer) error {
		if err := deleteTransitions(ctx, tx, scope, trackerIDs, roleIDs, matrix); err != nil {
			return err
		}
		return insertRuleRows(ctx, tx, buildTransitionRows(scope, trackerIDs, roleIDs, matrix))
	})
}

// deleteTransitions removes the in-scope rows whose (old, new) key appears
// in the matrix. The predicate is an OR over per-old-status conditions, each
// constraining new_status_id to the matrix's pairs for that old status.
func deleteTransitions(ctx context.Context, tx Execer, scope Scope, trackerIDs, roleIDs []int64, matrix TransitionMatrix) error {
	args := []any{string(KindTransition)}
	where := []string{
		"kind = $1",
		inClause("tracker_id", trackerIDs, &args),
		inClause("role_id", roleIDs, &args),
		scopeClause(scope, &args),
	}

	var pairConds []string
	for _, oldID := range sortedKeys(matrix) {
		byNew := matrix[oldID]
		if len(byNew) == 0 {
			continue
		}
		args = append(args, oldID)
		oldCond := fmt.Sprintf("old_status_id = $%d", len(args))
		pairConds = append(pairConds,
			"("+oldCond+" AND "+inClause("new_status_id", sortedKeys(byNew), &args)+")")
	}
	if len(pairConds) == 0 {
		return nil
	}
	where = append(where, "("+strings.Join(pairConds, " OR ")+")")

	query := fmt.Sprintf("DELETE FROM %s WHERE %s", rulesTable, strings.Join(where, " AND "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return mapError("deleting transitions", err)
	}
	return nil
}

// buildTransitionRows expands the matrix over the tracker x role cross
// product. An enabled Always flag yields one unconditional row; an enabled
// Author or Assignee flag yields a second row carrying whichever gates are
// enabled, so a single pair produces zero, one, or two rows per
// (tracker, role).
func buildTransitionRows(scope Scope, trackerIDs, roleIDs []int64, matrix TransitionMatrix) []ruleRow {
	var rows []ruleRow
	for _, oldID := range sortedKeys(matrix) {
		for _, newID := range sortedKeys(matrix[oldID]) {
			flags := matrix[oldID][newID]
			for _, trackerID := range trackerIDs {
				for _, roleID := range roleIDs {
					if flags.Always {
						rows = append(rows, ruleRow{
							Kind:        KindTransition,
							TrackerID:   trackerID,
							RoleID:      roleID,
							OldStatusID: oldID,
							NewStatusID: newID,
							Scope:       scope,
						})
					}
					if flags.Author || flags.Assignee {
						rows = append(rows, ruleRow{
							Kind:        KindTransition,
							TrackerID:   trackerID,
							RoleID:      roleID,
							OldStatusID: oldID,
							NewStatusID: newID,
							Author:      flags.Author,
							Assignee:    flags.Assignee,
							Scope:       scope,
						})
					}
				}
			}
		}
	}
	return rows
}
