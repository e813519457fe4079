package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmaes/flowscope"
)

func TestResolver_PartitionsRolesByProjectRows(t *testing.T) {
	w := setupWorkflow(t)
	ctx := context.Background()
	scope := flowscope.Project(w.projectID)

	// Developer has a project row for tracker A; Manager does not.
	err := w.fx.InsertTransition(scope, w.trackerA, w.roleDev, w.statusNew, w.statusDoing, false, false)
	require.NoError(t, err)

	r := flowscope.NewResolver(w.db)

	overridden, err := r.OverriddenRoleIDs(ctx, flowscope.KindTransition, scope, w.trackerA, w.roles())
	require.NoError(t, err)
	assert.Equal(t, []int64{w.roleDev}, overridden)

	global, err := r.GlobalRoleIDs(ctx, flowscope.KindTransition, scope, w.trackerA, w.roles())
	require.NoError(t, err)
	assert.Equal(t, []int64{w.roleMgr}, global)
}

func TestResolver_GlobalScopeHasNoOverrides(t *testing.T) {
	w := setupWorkflow(t)
	ctx := context.Background()

	err := w.fx.InsertTransition(flowscope.Project(w.projectID), w.trackerA, w.roleDev, w.statusNew, w.statusDoing, false, false)
	require.NoError(t, err)

	r := flowscope.NewResolver(w.db)

	overridden, err := r.OverriddenRoleIDs(ctx, flowscope.KindTransition, flowscope.Global, w.trackerA, w.roles())
	require.NoError(t, err)
	assert.Empty(t, overridden)

	global, err := r.GlobalRoleIDs(ctx, flowscope.KindTransition, flowscope.Global, w.trackerA, w.roles())
	require.NoError(t, err)
	assert.ElementsMatch(t, w.roles(), global)
}

func TestResolver_PartitionIsPerKind(t *testing.T) {
	w := setupWorkflow(t)
	ctx := context.Background()
	scope := flowscope.Project(w.projectID)

	// A transition override must not count as a permission override.
	err := w.fx.InsertTransition(scope, w.trackerA, w.roleDev, w.statusNew, w.statusDoing, false, false)
	require.NoError(t, err)

	r := flowscope.NewResolver(w.db)

	overridden, err := r.OverriddenRoleIDs(ctx, flowscope.KindPermission, scope, w.trackerA, w.roles())
	require.NoError(t, err)
	assert.Empty(t, overridden)
}

func TestResolver_PartitionIsPerTracker(t *testing.T) {
	w := setupWorkflow(t)
	ctx := context.Background()
	scope := flowscope.Project(w.projectID)

	err := w.fx.InsertTransition(scope, w.trackerA, w.roleDev, w.statusNew, w.statusDoing, false, false)
	require.NoError(t, err)

	r := flowscope.NewResolver(w.db)

	overridden, err := r.OverriddenRoleIDs(ctx, flowscope.KindTransition, scope, w.trackerB, w.roles())
	require.NoError(t, err)
	assert.Empty(t, overridden)
}

func TestOverrideActive(t *testing.T) {
	w := setupWorkflow(t)
	ctx := context.Background()

	tq := flowscope.NewTransitionQuery(w.db)

	// No rows at all: inactive.
	active, err := tq.OverrideActive(ctx, w.trackerA, w.roles())
	require.NoError(t, err)
	assert.False(t, active)

	// Global rows alone never activate the override path.
	err = w.fx.InsertTransition(flowscope.Global, w.trackerA, w.roleDev, w.statusNew, w.statusDoing, false, false)
	require.NoError(t, err)

	active, err = tq.OverrideActive(ctx, w.trackerA, w.roles())
	require.NoError(t, err)
	assert.False(t, active)

	// Any project row for the tracker and one of the roles activates it.
	err = w.fx.InsertTransition(flowscope.Project(w.projectID), w.trackerA, w.roleDev, w.statusNew, w.statusDone, false, false)
	require.NoError(t, err)

	active, err = tq.OverrideActive(ctx, w.trackerA, w.roles())
	require.NoError(t, err)
	assert.True(t, active)

	// Other trackers and roles stay inactive.
	active, err = tq.OverrideActive(ctx, w.trackerB, w.roles())
	require.NoError(t, err)
	assert.False(t, active)

	active, err = tq.OverrideActive(ctx, w.trackerA, []int64{w.roleMgr})
	require.NoError(t, err)
	assert.False(t, active)
}
