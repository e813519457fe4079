package test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tmaes/flowscope"
	"github.com/tmaes/flowscope/test/testutil"
)

// workflow is the shared scenario most tests start from: two trackers, two
// workflow roles, one project, and four statuses (the last one closed).
// No rule rows are created; each test inserts exactly what it needs.
type workflow struct {
	db *sql.DB
	fx *testutil.Fixtures

	projectID int64

	trackerA int64
	trackerB int64

	roleDev int64
	roleMgr int64

	// statusNew, statusDoing, statusDone open; statusClosed closed.
	statusNew    int64
	statusDoing  int64
	statusDone   int64
	statusClosed int64
}

func setupWorkflow(t *testing.T) *workflow {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.DB(t)
	ctx := context.Background()
	fx := testutil.NewFixtures(ctx, db)

	w := &workflow{db: db, fx: fx}

	var err error
	w.projectID, err = fx.CreateProject("acme")
	require.NoError(t, err)

	w.statusNew, err = fx.CreateStatus("New", 1, false)
	require.NoError(t, err)
	w.statusDoing, err = fx.CreateStatus("In Progress", 2, false)
	require.NoError(t, err)
	w.statusDone, err = fx.CreateStatus("Resolved", 3, false)
	require.NoError(t, err)
	w.statusClosed, err = fx.CreateStatus("Closed", 4, true)
	require.NoError(t, err)

	w.trackerA, err = fx.CreateTrackerWithDefault("Bug", 1, w.statusNew)
	require.NoError(t, err)
	w.trackerB, err = fx.CreateTracker("Feature", 2)
	require.NoError(t, err)

	w.roleDev, err = fx.CreateRole("Developer")
	require.NoError(t, err)
	w.roleMgr, err = fx.CreateRole("Manager")
	require.NoError(t, err)

	return w
}

func (w *workflow) roles() []int64 {
	return []int64{w.roleDev, w.roleMgr}
}

// statusIDs projects a status slice to ids in order.
func statusIDs(statuses []flowscope.Status) []int64 {
	ids := make([]int64, len(statuses))
	for i, s := range statuses {
		ids[i] = s.ID
	}
	return ids
}
