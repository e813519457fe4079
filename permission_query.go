package flowscope

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// PermissionQuery reads effective field permission rule sets using the same
// overridden/global partition strategy as TransitionQuery.
type PermissionQuery struct {
	q Querier
}

// NewPermissionQuery creates a permission query over q.
func NewPermissionQuery(q Querier) *PermissionQuery {
	return &PermissionQuery{q: q}
}

// OverrideActive reports whether any project-scoped permission row exists
// for the tracker and any of the given roles. See
// TransitionQuery.OverrideActive for the activation semantics.
func (pq *PermissionQuery) OverrideActive(ctx context.Context, trackerID int64, roleIDs []int64) (bool, error) {
	return overrideActive(ctx, pq.q, KindPermission, trackerID, roleIDs)
}

// RulesFor returns the permission rows applying to the tracker, roles, and
// old status within the project scope: project rows for overridden roles
// unioned with global rows for the rest. Empty roles yield an empty result.
func (pq *PermissionQuery) RulesFor(ctx context.Context, scope Scope, trackerID int64, roleIDs []int64, oldStatusID int64) ([]Permission, error) {
	if trackerID == 0 || len(roleIDs) == 0 {
		return nil, nil
	}

	overridden, err := NewResolver(pq.q).OverriddenRoleIDs(ctx, KindPermission, scope, trackerID, roleIDs)
	if err != nil {
		return nil, err
	}
	global := diffIDs(roleIDs, overridden)

	args := []any{string(KindPermission), trackerID, oldStatusID}
	var scopes []string
	if len(overridden) > 0 {
		clause := "(" + scopeClause(scope, &args) + " AND " + inClause("role_id", overridden, &args) + ")"
		scopes = append(scopes, clause)
	}
	if len(global) > 0 {
		clause := "(project_id IS NULL AND " + inClause("role_id", global, &args) + ")"
		scopes = append(scopes, clause)
	}
	if len(scopes) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		`SELECT tracker_id, role_id, old_status_id, field_name, rule, project_id
		 FROM %s
		 WHERE kind = $1 AND tracker_id = $2 AND old_status_id = $3 AND (%s)`,
		rulesTable, strings.Join(scopes, " OR "),
	)

	return pq.scanPermissions(ctx, query, args)
}

// RulesByStatus returns a flat aggregate of permission rules for the given
// trackers, roles, and scope set, grouped by status then field. Rule values
// are collected, not deduplicated, so admin matrices can detect
// cross-scope and cross-role disagreement. Include Global in scopes to pull
// in global rows.
func (pq *PermissionQuery) RulesByStatus(ctx context.Context, trackerIDs, roleIDs []int64, scopes []Scope) (map[int64]map[string][]Rule, error) {
	if len(trackerIDs) == 0 || len(roleIDs) == 0 || len(scopes) == 0 {
		return map[int64]map[string][]Rule{}, nil
	}

	var projectIDs []int64
	includeGlobal := false
	for _, s := range scopes {
		if id, ok := s.ProjectID(); ok {
			projectIDs = append(projectIDs, id)
		} else {
			includeGlobal = true
		}
	}

	args := []any{string(KindPermission)}
	where := []string{
		"kind = $1",
		inClause("tracker_id", trackerIDs, &args),
		inClause("role_id", roleIDs, &args),
	}
	var scopeParts []string
	if len(projectIDs) > 0 {
		scopeParts = append(scopeParts, inClause("project_id", projectIDs, &args))
	}
	if includeGlobal {
		scopeParts = append(scopeParts, "project_id IS NULL")
	}
	where = append(where, "("+strings.Join(scopeParts, " OR ")+")")

	query := fmt.Sprintf(
		`SELECT tracker_id, role_id, old_status_id, field_name, rule, project_id
		 FROM %s WHERE %s`,
		rulesTable, strings.Join(where, " AND "),
	)

	perms, err := pq.scanPermissions(ctx, query, args)
	if err != nil {
		return nil, err
	}

	result := make(map[int64]map[string][]Rule)
	for _, p := range perms {
		byField := result[p.OldStatusID]
		if byField == nil {
			byField = make(map[string][]Rule)
			result[p.OldStatusID] = byField
		}
		byField[p.FieldName] = append(byField[p.FieldName], p.Rule)
	}
	return result, nil
}

// HiddenFieldRoles returns, for each invisible custom field, the ids of
// roles explicitly granted visibility. Fields absent from the map are
// visible to everyone. Consumed by EffectiveRules to force hidden fields
// readonly for roles without visibility.
func (pq *PermissionQuery) HiddenFieldRoles(ctx context.Context) (map[int64][]int64, error) {
	rows, err := pq.q.QueryContext(ctx,
		`SELECT cf.id, cfr.role_id
		 FROM custom_fields cf
		 JOIN custom_field_roles cfr ON cfr.custom_field_id = cf.id
		 WHERE NOT cf.visible`)
	if err != nil {
		return nil, mapError("querying hidden field roles", err)
	}
	defer func() { _ = rows.Close() }()

	hidden := make(map[int64][]int64)
	for rows.Next() {
		var fieldID, roleID int64
		if err := rows.Scan(&fieldID, &roleID); err != nil {
			return nil, err
		}
		hidden[fieldID] = append(hidden[fieldID], roleID)
	}
	return hidden, rows.Err()
}

// EffectiveRules merges fetched permission rows into the per-field rule the
// host applies to an issue. Pure function over its inputs.
//
// A field yields a rule only when every candidate role is covered for it;
// partially covered fields require manual reconciliation and are omitted.
// When all covered roles agree the single value wins; any disagreement
// resolves to required, the stricter of the two rule values.
//
// hiddenFieldRoles (from HiddenFieldRoles) injects implicit readonly rules:
// a custom field invisible to a role is readonly for that role unless the
// role is explicitly granted visibility. The injected field name is the
// custom field id rendered in decimal, matching the host's field naming.
func EffectiveRules(perms []Permission, roleIDs []int64, hiddenFieldRoles map[int64][]int64) map[string]Rule {
	if len(perms) == 0 {
		return map[string]Rule{}
	}

	byField := make(map[string]map[int64]Rule)
	for _, p := range perms {
		if byField[p.FieldName] == nil {
			byField[p.FieldName] = make(map[int64]Rule)
		}
		byField[p.FieldName][p.RoleID] = p.Rule
	}

	for fieldID, visibleTo := range hiddenFieldRoles {
		for _, roleID := range roleIDs {
			if containsID(visibleTo, roleID) {
				continue
			}
			name := strconv.FormatInt(fieldID, 10)
			if byField[name] == nil {
				byField[name] = make(map[int64]Rule)
			}
			byField[name][roleID] = RuleReadonly
		}
	}

	result := make(map[string]Rule)
	for field, byRole := range byField {
		if len(byRole) < len(roleIDs) {
			continue
		}
		var rule Rule
		agreed := true
		for _, r := range byRole {
			if rule == "" {
				rule = r
			} else if r != rule {
				agreed = false
				break
			}
		}
		if agreed {
			result[field] = rule
		} else {
			result[field] = RuleRequired
		}
	}
	return result
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (pq *PermissionQuery) scanPermissions(ctx context.Context, query string, args []any) ([]Permission, error) {
	rows, err := pq.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("querying permissions", err)
	}
	defer func() { _ = rows.Close() }()

	var perms []Permission
	for rows.Next() {
		var p Permission
		var projectID *int64
		if err := rows.Scan(&p.TrackerID, &p.RoleID, &p.OldStatusID, &p.FieldName, &p.Rule, &projectID); err != nil {
			return nil, err
		}
		if projectID != nil {
			p.Scope = Project(*projectID)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
