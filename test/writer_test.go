package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmaes/flowscope"
)

func TestTransitionWriter_Replace(t *testing.T) {
	w := setupWorkflow(t)
	ctx := context.Background()

	tw := flowscope.NewTransitionWriter(w.db)
	tq := flowscope.NewTransitionQuery(w.db)

	matrix := flowscope.TransitionMatrix{
		w.statusNew: {
			w.statusDoing: {Always: true},
			w.statusDone:  {Author: true},
		},
	}
	require.NoError(t, tw.Replace(ctx, flowscope.Global, []int64{w.trackerA}, []int64{w.roleDev}, matrix))

	statuses, err := tq.AllowedStatuses(ctx, flowscope.Global, w.trackerA, []int64{w.roleDev}, w.statusNew, true, false)
	require.NoError(t, err)
	assert.Equal(t, []int64{w.statusDoing, w.statusDone}, statusIDs(statuses))

	// Replaying the same matrix is idempotent.
	require.NoError(t, tw.Replace(ctx, flowscope.Global, []int64{w.trackerA}, []int64{w.roleDev}, matrix))

	n, err := w.fx.CountRules(flowscope.Global)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTransitionWriter_UntouchedPairsSurvive(t *testing.T) {
	w := setupWorkflow(t)
	ctx := context.Background()

	// A pre-existing Resolved -> Closed rule not named by the matrix.
	require.NoError(t, w.fx.InsertTransition(flowscope.Global, w.trackerA, w.roleDev, w.statusDone, w.statusClosed, false, false))

	tw := flowscope.NewTransitionWriter(w.db)
	require.NoError(t, tw.Replace(ctx, flowscope.Global, []int64{w.trackerA}, []int64{w.roleDev}, flowscope.TransitionMatrix{
		w.statusNew: {w.statusDoing: {Always: true}},
	}))

	tq := flowscope.NewTransitionQuery(w.db)
	statuses, err := tq.AllowedStatuses(ctx, flowscope.Global, w.trackerA, []int64{w.roleDev}, w.statusDone, false, false)
	require.NoError(t, err)
	assert.Equal(t, []int64{w.statusClosed}, statusIDs(statuses))
}

func TestTransitionWriter_DisabledPairClears(t *testing.T) {
	w := setupWorkflow(t)
	ctx := context.Background()

	require.NoError(t, w.fx.InsertTransition(flowscope.Global, w.trackerA, w.roleDev, w.statusNew, w.statusDoing, false, false))

	// A named pair with every flag off deletes without re-inserting.
	tw := flowscope.NewTransitionWriter(w.db)
	require.NoError(t, tw.Replace(ctx, flowscope.Global, []int64{w.trackerA}, []int64{w.roleDev}, flowscope.TransitionMatrix{
		w.statusNew: {w.statusDoing: {}},
	}))

	n, err := w.fx.CountRules(flowscope.Global)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTransitionWriter_ScopesAreIsolated(t *testing.T) {
	w := setupWorkflow(t)
	ctx := context.Background()
	scope := flowscope.Project(w.projectID)

	require.NoError(t, w.fx.InsertTransition(flowscope.Global, w.trackerA, w.roleDev, w.statusNew, w.statusDoing, false, false))

	// Writing the same pair in the project scope must not disturb the
	// global row.
	tw := flowscope.NewTransitionWriter(w.db)
	require.NoError(t, tw.Replace(ctx, scope, []int64{w.trackerA}, []int64{w.roleDev}, flowscope.TransitionMatrix{
		w.statusNew: {w.statusDoing: {Always: true, Author: true}},
	}))

	globalCount, err := w.fx.CountRules(flowscope.Global)
	require.NoError(t, err)
	assert.Equal(t, 1, globalCount)

	// Always plus a gate encodes as two rows.
	projectCount, err := w.fx.CountRules(scope)
	require.NoError(t, err)
	assert.Equal(t, 2, projectCount)

	// And clearing the project scope leaves the global row alone.
	require.NoError(t, tw.Replace(ctx, scope, []int64{w.trackerA}, []int64{w.roleDev}, flowscope.TransitionMatrix{
		w.statusNew: {w.statusDoing: {}},
	}))
	globalCount, err = w.fx.CountRules(flowscope.Global)
	require.NoError(t, err)
	assert.Equal(t, 1, globalCount)
}

func TestTransitionWriter_CrossProduct(t *testing.T) {
	w := setupWorkflow(t)
	ctx := context.Background()

	// One matrix, two trackers, two roles: four rows.
	tw := flowscope.NewTransitionWriter(w.db)
	require.NoError(t, tw.Replace(ctx, flowscope.Global,
		[]int64{w.trackerA, w.trackerB}, w.roles(),
		flowscope.TransitionMatrix{w.statusNew: {w.statusDoing: {Always: true}}},
	))

	n, err := w.fx.CountRules(flowscope.Global)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestPermissionWriter_Replace(t *testing.T) {
	w := setupWorkflow(t)
	ctx := context.Background()

	pw := flowscope.NewPermissionWriter(w.db)
	src := flowscope.NewSource(w.db)

	require.NoError(t, pw.Replace(ctx, flowscope.Global, []int64{w.trackerA}, []int64{w.roleDev}, flowscope.PermissionMatrix{
		w.statusNew: {"due_date": flowscope.RuleReadonly, "start_date": flowscope.RuleRequired},
	}))

	rules, err := src.RulesByAttribute(ctx, flowscope.Global, w.trackerA, []int64{w.roleDev}, w.statusNew)
	require.NoError(t, err)
	assert.Equal(t, map[string]flowscope.Rule{
		"due_date":   flowscope.RuleReadonly,
		"start_date": flowscope.RuleRequired,
	}, rules)

	// Untouched fields survive a later replace naming only due_date.
	require.NoError(t, pw.Replace(ctx, flowscope.Global, []int64{w.trackerA}, []int64{w.roleDev}, flowscope.PermissionMatrix{
		w.statusNew: {"due_date": flowscope.RuleRequired},
	}))

	rules, err = src.RulesByAttribute(ctx, flowscope.Global, w.trackerA, []int64{w.roleDev}, w.statusNew)
	require.NoError(t, err)
	assert.Equal(t, map[string]flowscope.Rule{
		"due_date":   flowscope.RuleRequired,
		"start_date": flowscope.RuleRequired,
	}, rules)
}

func TestPermissionWriter_EmptyRuleClears(t *testing.T) {
	w := setupWorkflow(t)
	ctx := context.Background()

	require.NoError(t, w.fx.InsertPermission(flowscope.Global, w.trackerA, w.roleDev, w.statusNew, "due_date", flowscope.RuleReadonly))

	// An empty rule value deletes the field's row without replacement.
	pw := flowscope.NewPermissionWriter(w.db)
	require.NoError(t, pw.Replace(ctx, flowscope.Global, []int64{w.trackerA}, []int64{w.roleDev}, flowscope.PermissionMatrix{
		w.statusNew: {"due_date": ""},
	}))

	n, err := w.fx.CountRules(flowscope.Global)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPermissionWriter_FailedReplaceRollsBack(t *testing.T) {
	w := setupWorkflow(t)
	ctx := context.Background()

	require.NoError(t, w.fx.InsertPermission(flowscope.Global, w.trackerA, w.roleDev, w.statusNew, "due_date", flowscope.RuleRequired))

	// The second field name exceeds the column width, so its insert fails
	// after the keyed delete already ran in the same transaction.
	pw := flowscope.NewPermissionWriter(w.db)
	err := pw.Replace(ctx, flowscope.Global, []int64{w.trackerA}, []int64{w.roleDev}, flowscope.PermissionMatrix{
		w.statusNew: {
			"due_date": flowscope.RuleReadonly,
			"this_field_name_is_over_thirty_chars_long": flowscope.RuleReadonly,
		},
	})
	require.Error(t, err)

	// The delete must roll back with the insert: the original row survives
	// and nothing from the failed matrix landed.
	src := flowscope.NewSource(w.db)
	rules, err := src.RulesByAttribute(ctx, flowscope.Global, w.trackerA, []int64{w.roleDev}, w.statusNew)
	require.NoError(t, err)
	assert.Equal(t, map[string]flowscope.Rule{"due_date": flowscope.RuleRequired}, rules)

	n, err := w.fx.CountRules(flowscope.Global)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWriters_DoNotCrossKinds(t *testing.T) {
	w := setupWorkflow(t)
	ctx := context.Background()

	// A permission row for the same status pair coordinates must survive a
	// transition replace, and vice versa.
	require.NoError(t, w.fx.InsertPermission(flowscope.Global, w.trackerA, w.roleDev, w.statusNew, "due_date", flowscope.RuleReadonly))
	require.NoError(t, w.fx.InsertTransition(flowscope.Global, w.trackerA, w.roleDev, w.statusNew, w.statusDoing, false, false))

	tw := flowscope.NewTransitionWriter(w.db)
	require.NoError(t, tw.Replace(ctx, flowscope.Global, []int64{w.trackerA}, []int64{w.roleDev}, flowscope.TransitionMatrix{
		w.statusNew: {w.statusDoing: {Always: true}},
	}))

	pw := flowscope.NewPermissionWriter(w.db)
	require.NoError(t, pw.Replace(ctx, flowscope.Global, []int64{w.trackerA}, []int64{w.roleDev}, flowscope.PermissionMatrix{
		w.statusNew: {"due_date": flowscope.RuleRequired},
	}))

	n, err := w.fx.CountRules(flowscope.Global)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
