package cmd

import (
	"fmt"

	"github.com/jra3/agentmail/internal/archive"
	"github.com/spf13/cobra"
)

var installGuardCmd = &cobra.Command{
	Use:   "install-guard <project-slug> <repo-path>",
	Short: "Install a pre-commit hook that blocks writes to reserved paths",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath, err := archive.InstallGuard(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("installed %s\n", hookPath)
		return nil
	},
}

var uninstallGuardCmd = &cobra.Command{
	Use:   "uninstall-guard <repo-path>",
	Short: "Remove an agentmail-installed pre-commit hook, leaving foreign hooks alone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		removed, err := archive.UninstallGuard(args[0])
		if err != nil {
			return err
		}
		if removed {
			fmt.Println("removed")
		} else {
			fmt.Println("nothing to remove")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installGuardCmd, uninstallGuardCmd)
}
