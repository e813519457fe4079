package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tmaes/flowscope/internal/cli"
	"github.com/tmaes/flowscope/pkg/migrator"
)

var (
	rollbackDB  string
	rollbackYes bool
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Remove project scoping from rule storage",
	Long: `Remove project scoping from the rule storage.

Deletes every project-scoped rule, drops the lookup indexes and the
project_id column. Global rules are left untouched. This cannot be undone.`,
	Example: `  # Remove project scoping (prompts for confirmation)
  flowscope rollback --db postgres://localhost/mydb

  # Skip the confirmation prompt
  flowscope rollback --db postgres://localhost/mydb --yes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := resolveDSN(rollbackDB)
		if err != nil {
			return err
		}
		return runRollback(dsn, rollbackYes)
	},
}

func init() {
	f := rollbackCmd.Flags()
	f.StringVar(&rollbackDB, "db", "", "database URL")
	f.BoolVar(&rollbackYes, "yes", false, "skip confirmation prompt")
}

func runRollback(dsn string, yes bool) error {
	db, err := openDB(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()

	s, err := migrator.GetStatus(ctx, db)
	if err != nil {
		return cli.GeneralError("getting status", err)
	}
	if !s.RulesTableExists || !s.ProjectColumnExists {
		if !quiet {
			fmt.Println("Nothing to roll back.")
		}
		return nil
	}

	if !yes {
		fmt.Printf("This deletes %d project-scoped rule(s) and drops the project_id column.\n", s.ProjectRuleCount)
		fmt.Print("Continue? [y/N] ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := migrator.Rollback(ctx, db); err != nil {
		return cli.GeneralError("rollback failed", err)
	}

	if !quiet {
		fmt.Println("Project scoping removed.")
	}
	return nil
}
