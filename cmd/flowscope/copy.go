package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tmaes/flowscope"
	"github.com/tmaes/flowscope/internal/cli"
)

var (
	copyDB          string
	copyFromProject int64
	copyToProject   int64
	copyFromTracker int64
	copyFromRole    int64
	copyTrackers    []int64
	copyRoles       []int64
)

var copyCmd = &cobra.Command{
	Use:   "copy",
	Short: "Duplicate rules between trackers, roles, and scopes",
	Long: `Duplicate workflow rules between trackers, roles, and scopes.

At least one of --from-tracker and --from-role must be given; an omitted
one resolves to each target's own value, so copying "same trackers and
roles into another project" works with --from-tracker or --from-role
alone. Omitted --trackers/--roles target all trackers resp. all
workflow-capable roles. Existing rules for the targeted combinations are
replaced.`,
	Example: `  # Seed project 12 from the global rules of tracker 1
  flowscope copy --db postgres://localhost/mydb --from-tracker 1 --to-project 12

  # Copy project 12's rules for role 3 onto roles 4 and 5 in the same project
  flowscope copy --db postgres://localhost/mydb \
    --from-project 12 --from-role 3 --to-project 12 --roles 4,5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := resolveDSN(copyDB)
		if err != nil {
			return err
		}
		return runCopy(dsn)
	},
}

func init() {
	f := copyCmd.Flags()
	f.StringVar(&copyDB, "db", "", "database URL")
	f.Int64Var(&copyFromProject, "from-project", 0, "source project id (0 = global rules)")
	f.Int64Var(&copyToProject, "to-project", 0, "target project id (0 = global rules)")
	f.Int64Var(&copyFromTracker, "from-tracker", 0, "source tracker id (0 = each target's own tracker)")
	f.Int64Var(&copyFromRole, "from-role", 0, "source role id (0 = each target's own role)")
	f.Int64SliceVar(&copyTrackers, "trackers", nil, "target tracker ids (default: all)")
	f.Int64SliceVar(&copyRoles, "roles", nil, "target role ids (default: all workflow roles)")
}

func scopeFromFlag(projectID int64) flowscope.Scope {
	if projectID == 0 {
		return flowscope.Global
	}
	return flowscope.Project(projectID)
}

func runCopy(dsn string) error {
	db, err := openDB(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()

	trackers, err := flowscope.Trackers(ctx, db)
	if err != nil {
		return cli.GeneralError("loading trackers", err)
	}
	roles, err := flowscope.WorkflowRoles(ctx, db)
	if err != nil {
		return cli.GeneralError("loading roles", err)
	}

	req := flowscope.CopyRequest{
		SourceScope: scopeFromFlag(copyFromProject),
		TargetScope: scopeFromFlag(copyToProject),
	}

	if copyFromTracker != 0 {
		if req.SourceTracker = findTracker(trackers, copyFromTracker); req.SourceTracker == nil {
			return cli.GeneralError(fmt.Sprintf("tracker %d not found", copyFromTracker), nil)
		}
	}
	if copyFromRole != 0 {
		if req.SourceRole = findRole(roles, copyFromRole); req.SourceRole == nil {
			return cli.GeneralError(fmt.Sprintf("role %d not found", copyFromRole), nil)
		}
	}
	for _, id := range copyTrackers {
		t := findTracker(trackers, id)
		if t == nil {
			return cli.GeneralError(fmt.Sprintf("tracker %d not found", id), nil)
		}
		req.TargetTrackers = append(req.TargetTrackers, *t)
	}
	for _, id := range copyRoles {
		r := findRole(roles, id)
		if r == nil {
			return cli.GeneralError(fmt.Sprintf("role %d not found", id), nil)
		}
		req.TargetRoles = append(req.TargetRoles, *r)
	}

	if err := flowscope.NewCopier(db).CopyRules(ctx, req); err != nil {
		return cli.GeneralError("copying rules", err)
	}

	if !quiet {
		fmt.Println("Rules copied.")
	}
	return nil
}

func findTracker(trackers []flowscope.Tracker, id int64) *flowscope.Tracker {
	for i := range trackers {
		if trackers[i].ID == id {
			return &trackers[i]
		}
	}
	return nil
}

func findRole(roles []flowscope.Role, id int64) *flowscope.Role {
	for i := range roles {
		if roles[i].ID == id {
			return &roles[i]
		}
	}
	return nil
}
