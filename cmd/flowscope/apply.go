package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tmaes/flowscope/internal/cli"
	"github.com/tmaes/flowscope/pkg/ruleset"
)

var (
	applyDB   string
	applyFile string
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a declarative rule file",
	Long: `Apply a declarative YAML rule file.

The file names a scope, trackers, roles, and the desired transition and
permission matrices. Entries named in the file replace the stored rules
for every (tracker, role) combination; entries absent from the file are
untouched. The whole file is applied in one transaction.`,
	Example: `  # Apply a rule file
  flowscope apply --db postgres://localhost/mydb --file rules/defaults.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file := cfg.ResolvedRuleFile(applyFile)
		if file == "" {
			return cli.ConfigError("rule file is required (use --file or set apply.file in config)", nil)
		}

		dsn, err := resolveDSN(applyDB)
		if err != nil {
			return err
		}

		return runApply(dsn, file)
	},
}

func init() {
	f := applyCmd.Flags()
	f.StringVar(&applyDB, "db", "", "database URL")
	f.StringVarP(&applyFile, "file", "f", "", "rule file to apply")
}

func runApply(dsn, file string) error {
	rules, err := ruleset.Load(file)
	if err != nil {
		return cli.RuleParseError("rule file error", err)
	}

	db, err := openDB(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := ruleset.Apply(context.Background(), db, rules); err != nil {
		return cli.GeneralError("applying rules", err)
	}

	if !quiet {
		fmt.Printf("Applied %s (%s).\n", file, rules.TargetScope())
	}
	return nil
}
