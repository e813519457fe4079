package test

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmaes/flowscope"
)

func TestRulesByAttribute_MergesAcrossRoles(t *testing.T) {
	w := setupWorkflow(t)
	ctx := context.Background()

	// due_date: both roles agree on readonly.
	require.NoError(t, w.fx.InsertPermission(flowscope.Global, w.trackerA, w.roleDev, w.statusNew, "due_date", flowscope.RuleReadonly))
	require.NoError(t, w.fx.InsertPermission(flowscope.Global, w.trackerA, w.roleMgr, w.statusNew, "due_date", flowscope.RuleReadonly))

	// start_date: roles disagree, the stricter rule wins.
	require.NoError(t, w.fx.InsertPermission(flowscope.Global, w.trackerA, w.roleDev, w.statusNew, "start_date", flowscope.RuleReadonly))
	require.NoError(t, w.fx.InsertPermission(flowscope.Global, w.trackerA, w.roleMgr, w.statusNew, "start_date", flowscope.RuleRequired))

	// notes: only one role is covered, so no rule binds.
	require.NoError(t, w.fx.InsertPermission(flowscope.Global, w.trackerA, w.roleDev, w.statusNew, "notes", flowscope.RuleReadonly))

	src := flowscope.NewSource(w.db)

	rules, err := src.RulesByAttribute(ctx, flowscope.Global, w.trackerA, w.roles(), w.statusNew)
	require.NoError(t, err)
	assert.Equal(t, map[string]flowscope.Rule{
		"due_date":   flowscope.RuleReadonly,
		"start_date": flowscope.RuleRequired,
	}, rules)

	// A single role sees its own rules unmerged.
	rules, err = src.RulesByAttribute(ctx, flowscope.Global, w.trackerA, []int64{w.roleDev}, w.statusNew)
	require.NoError(t, err)
	assert.Equal(t, map[string]flowscope.Rule{
		"due_date":   flowscope.RuleReadonly,
		"start_date": flowscope.RuleReadonly,
		"notes":      flowscope.RuleReadonly,
	}, rules)
}

func TestRulesByAttribute_ProjectOverride(t *testing.T) {
	w := setupWorkflow(t)
	ctx := context.Background()
	scope := flowscope.Project(w.projectID)

	require.NoError(t, w.fx.InsertPermission(flowscope.Global, w.trackerA, w.roleDev, w.statusNew, "due_date", flowscope.RuleReadonly))
	require.NoError(t, w.fx.InsertPermission(scope, w.trackerA, w.roleDev, w.statusNew, "start_date", flowscope.RuleRequired))

	src := flowscope.NewSource(w.db)

	// The project override replaces the developer's global permission rows
	// wholesale: due_date is unrestricted in the project.
	rules, err := src.RulesByAttribute(ctx, scope, w.trackerA, []int64{w.roleDev}, w.statusNew)
	require.NoError(t, err)
	assert.Equal(t, map[string]flowscope.Rule{
		"start_date": flowscope.RuleRequired,
	}, rules)

	// Global resolution is untouched.
	rules, err = src.RulesByAttribute(ctx, flowscope.Global, w.trackerA, []int64{w.roleDev}, w.statusNew)
	require.NoError(t, err)
	assert.Equal(t, map[string]flowscope.Rule{
		"due_date": flowscope.RuleReadonly,
	}, rules)
}

func TestRulesByAttribute_HiddenCustomField(t *testing.T) {
	w := setupWorkflow(t)
	ctx := context.Background()

	// Severity is visible to the developer only; Impact to nobody.
	severityID, err := w.fx.CreateCustomField("Severity", false)
	require.NoError(t, err)
	require.NoError(t, w.fx.GrantFieldVisibility(severityID, w.roleDev))
	impactID, err := w.fx.CreateCustomField("Impact", false)
	require.NoError(t, err)

	// The merge only runs when some permission row exists for the context.
	require.NoError(t, w.fx.InsertPermission(flowscope.Global, w.trackerA, w.roleDev, w.statusNew, "due_date", flowscope.RuleReadonly))
	require.NoError(t, w.fx.InsertPermission(flowscope.Global, w.trackerA, w.roleMgr, w.statusNew, "due_date", flowscope.RuleReadonly))

	src := flowscope.NewSource(w.db)
	severity := strconv.FormatInt(severityID, 10)
	impact := strconv.FormatInt(impactID, 10)

	rules, err := src.RulesByAttribute(ctx, flowscope.Global, w.trackerA, w.roles(), w.statusNew)
	require.NoError(t, err)

	// Impact is readonly for every candidate role, so the rule binds.
	assert.Equal(t, flowscope.RuleReadonly, rules[impact])

	// Severity is readonly only for the manager: partial coverage, omitted.
	_, present := rules[severity]
	assert.False(t, present)

	// For the developer alone neither hidden field imposes anything except
	// Impact, which the developer also cannot see.
	rules, err = src.RulesByAttribute(ctx, flowscope.Global, w.trackerA, []int64{w.roleDev}, w.statusNew)
	require.NoError(t, err)
	assert.Equal(t, flowscope.RuleReadonly, rules[impact])
	_, present = rules[severity]
	assert.False(t, present)
}

func TestRulesByStatus_CollectsDisagreement(t *testing.T) {
	w := setupWorkflow(t)
	ctx := context.Background()
	scope := flowscope.Project(w.projectID)

	require.NoError(t, w.fx.InsertPermission(flowscope.Global, w.trackerA, w.roleDev, w.statusNew, "due_date", flowscope.RuleReadonly))
	require.NoError(t, w.fx.InsertPermission(scope, w.trackerA, w.roleDev, w.statusNew, "due_date", flowscope.RuleRequired))
	require.NoError(t, w.fx.InsertPermission(flowscope.Global, w.trackerA, w.roleDev, w.statusDoing, "notes", flowscope.RuleReadonly))

	pq := flowscope.NewPermissionQuery(w.db)

	// Both scopes requested: values are collected per (status, field) so an
	// admin matrix can show cross-scope disagreement.
	byStatus, err := pq.RulesByStatus(ctx, []int64{w.trackerA}, []int64{w.roleDev}, []flowscope.Scope{flowscope.Global, scope})
	require.NoError(t, err)
	require.Len(t, byStatus, 2)
	assert.ElementsMatch(t, []flowscope.Rule{flowscope.RuleReadonly, flowscope.RuleRequired}, byStatus[w.statusNew]["due_date"])
	assert.Equal(t, []flowscope.Rule{flowscope.RuleReadonly}, byStatus[w.statusDoing]["notes"])

	// Project scope alone excludes global rows.
	byStatus, err = pq.RulesByStatus(ctx, []int64{w.trackerA}, []int64{w.roleDev}, []flowscope.Scope{scope})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, []flowscope.Rule{flowscope.RuleRequired}, byStatus[w.statusNew]["due_date"])
}
