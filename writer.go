package flowscope

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// insertBatchSize caps rows per INSERT statement. Chunking is purely for
// scalability of the statement itself; atomicity comes from the surrounding
// transaction.
const insertBatchSize = 1000

// ruleRow is a fully-specified workflow_rules row ready for insertion.
// Permission rows leave NewStatusID zero and the gates false; transition
// rows leave FieldName and Rule empty.
type ruleRow struct {
	Kind        RuleKind
	TrackerID   int64
	RoleID      int64
	OldStatusID int64
	NewStatusID int64
	Author      bool
	Assignee    bool
	FieldName   string
	Rule        Rule
	Scope       Scope
}

// insertRuleRows bulk-inserts rows in chunks of insertBatchSize within the
// caller's transaction.
func insertRuleRows(ctx context.Context, e Execer, rows []ruleRow) error {
	for start := 0; start < len(rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := insertRuleBatch(ctx, e, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func insertRuleBatch(ctx context.Context, e Execer, rows []ruleRow) error {
	var b strings.Builder
	fmt.Fprintf(&b,
		"INSERT INTO %s (kind, tracker_id, role_id, old_status_id, new_status_id, author, assignee, field_name, rule, project_id) VALUES ",
		rulesTable)

	args := make([]any, 0, len(rows)*10)
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(" + placeholders(len(args)+1, 10) + ")")
		args = append(args,
			string(r.Kind), r.TrackerID, r.RoleID, r.OldStatusID, r.NewStatusID,
			r.Author, r.Assignee, r.FieldName, string(r.Rule), r.Scope.arg())
	}

	if _, err := e.ExecContext(ctx, b.String(), args...); err != nil {
		return mapError("inserting rules", err)
	}
	return nil
}

// sortedKeys returns map keys ascending. Matrices are maps; deterministic
// statement order keeps replaces reproducible.
func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// sortedFields returns field names ascending.
func sortedFields(m map[string]Rule) []string {
	fields := make([]string, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
