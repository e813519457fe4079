package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tmaes/flowscope/internal/update"
	"github.com/tmaes/flowscope/internal/version"
)

var versionCheck bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version.Info())

		if !versionCheck {
			return nil
		}
		info, err := update.CheckWithCache(cmd.Context())
		if err != nil {
			return fmt.Errorf("checking for updates: %w", err)
		}
		if info.UpdateAvailable {
			fmt.Printf("A newer release is available: %s (current: %s)\n",
				info.LatestVersion, info.CurrentVersion)
		} else if !quiet {
			fmt.Println("You are on the latest release.")
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "check GitHub for a newer release")
}
