package flowscope

import (
	"fmt"
	"sort"
	"strings"
)

// placeholders returns "$start,$start+1,...,$start+n-1" for building IN
// lists and multi-row VALUES clauses.
func placeholders(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "$%d", start+i)
	}
	return b.String()
}

// int64Args converts an id slice to driver arguments.
func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// scopeClause appends a project_id predicate for the scope to args and
// returns the SQL fragment. Global scope compares against NULL and binds
// nothing.
func scopeClause(s Scope, args *[]any) string {
	if s.IsGlobal() {
		return "project_id IS NULL"
	}
	id, _ := s.ProjectID()
	*args = append(*args, id)
	return fmt.Sprintf("project_id = $%d", len(*args))
}

// inClause appends ids to args and returns "col IN ($i,...)".
func inClause(col string, ids []int64, args *[]any) string {
	start := len(*args) + 1
	*args = append(*args, int64Args(ids)...)
	return fmt.Sprintf("%s IN (%s)", col, placeholders(start, len(ids)))
}

// diffIDs returns the elements of all that are not in sub, preserving order.
func diffIDs(all, sub []int64) []int64 {
	if len(sub) == 0 {
		return all
	}
	drop := make(map[int64]struct{}, len(sub))
	for _, id := range sub {
		drop[id] = struct{}{}
	}
	var rest []int64
	for _, id := range all {
		if _, ok := drop[id]; !ok {
			rest = append(rest, id)
		}
	}
	return rest
}

// sortStatuses orders statuses by the host's canonical ordering: position,
// then id for stable ties.
func sortStatuses(statuses []Status) {
	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].Position != statuses[j].Position {
			return statuses[i].Position < statuses[j].Position
		}
		return statuses[i].ID < statuses[j].ID
	})
}
