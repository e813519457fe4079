package flowscope

import (
	"context"
	"fmt"
	"strings"
)

// PermissionWriter atomically replaces field permission rules for one scope
// with the same keyed semantics as TransitionWriter: only (old status,
// field) keys present in the matrix are touched.
type PermissionWriter struct {
	db Execer
}

// NewPermissionWriter creates a permission writer. Pass a *sql.DB to let the
// writer manage its own transaction, or a *sql.Tx to join an existing one.
func NewPermissionWriter(db Execer) *PermissionWriter {
	return &PermissionWriter{db: db}
}

// Replace deletes the matrix's (status, field) keys for every
// (tracker, role) combination in the scope and inserts rows for entries
// carrying a rule, all within one transaction. An entry with an empty rule
// clears the field without replacement.
func (w *PermissionWriter) Replace(ctx context.Context, scope Scope, trackerIDs, roleIDs []int64, matrix PermissionMatrix) error {
	if len(trackerIDs) == 0 || len(roleIDs) == 0 || len(matrix) == 0 {
		return nil
	}

	return inTransaction(ctx, w.db, func(tx Execer) error {
		if err := deletePermissions(ctx, tx, scope, trackerIDs, roleIDs, matrix); err != nil {
			return err
		}
		return insertRuleRows(ctx, tx, buildPermissionRows(scope, trackerIDs, roleIDs, matrix))
	})
}

func deletePermissions(ctx context.Context, tx Execer, scope Scope, trackerIDs, roleIDs []int64, matrix PermissionMatrix) error {
	args := []any{string(KindPermission)}
	where := []string{
		"kind = $1",
		inClause("tracker_id", trackerIDs, &args),
		inClause("role_id", roleIDs, &args),
		scopeClause(scope, &args),
	}

	var keyConds []string
	for _, statusID := range sortedKeys(matrix) {
		fields := sortedFields(matrix[statusID])
		if len(fields) == 0 {
			continue
		}
		args = append(args, statusID)
		statusCond := fmt.Sprintf("old_status_id = $%d", len(args))

		start := len(args) + 1
		for _, f := range fields {
			args = append(args, f)
		}
		keyConds = append(keyConds, fmt.Sprintf(
			"(%s AND field_name IN (%s))", statusCond, placeholders(start, len(fields))))
	}
	if len(keyConds) == 0 {
		return nil
	}
	where = append(where, "("+strings.Join(keyConds, " OR ")+")")

	query := fmt.Sprintf("DELETE FROM %s WHERE %s", rulesTable, strings.Join(where, " AND "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return mapError("deleting permissions", err)
	}
	return nil
}

// buildPermissionRows expands the matrix over the tracker x role cross
// product, skipping entries with no rule value (clear-only keys).
func buildPermissionRows(scope Scope, trackerIDs, roleIDs []int64, matrix PermissionMatrix) []ruleRow {
	var rows []ruleRow
	for _, statusID := range sortedKeys(matrix) {
		for _, field := range sortedFields(matrix[statusID]) {
			rule := matrix[statusID][field]
			if rule == "" {
				continue
			}
			for _, trackerID := range trackerIDs {
				for _, roleID := range roleIDs {
					rows = append(rows, ruleRow{
						Kind:        KindPermission,
						TrackerID:   trackerID,
						RoleID:      roleID,
						OldStatusID: statusID,
						FieldName:   field,
						Rule:        rule,
						Scope:       scope,
					})
				}
			}
		}
	}
	return rows
}
