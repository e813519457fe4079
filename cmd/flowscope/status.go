package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tmaes/flowscope/internal/cli"
	"github.com/tmaes/flowscope/pkg/migrator"
)

var statusDB string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current storage status",
	Long:  `Show current rule storage and migration status.`,
	Example: `  # Check status
  flowscope status --db postgres://localhost/mydb`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := resolveDSN(statusDB)
		if err != nil {
			return err
		}
		return runStatus(dsn)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusDB, "db", "", "database URL")
}

func runStatus(dsn string) error {
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

	if s.RulesTableExists {
		fmt.Println("Rules table:     present")
	} else {
		fmt.Println("Rules table:     missing")
	}
	if s.ProjectColumnExists {
		fmt.Println("Project column:  present")
	} else {
		fmt.Println("Project column:  missing")
	}

	if !s.RulesTableExists {
		fmt.Println("\nNo rule storage found. Run 'flowscope migrate' to install it.")
		return nil
	}
	if !s.ProjectColumnExists {
		fmt.Println("\nProject column not found. Run 'flowscope migrate' to add it.")
		return nil
	}

	fmt.Printf("Project rules:   %d\n", s.ProjectRuleCount)
	return nil
}
