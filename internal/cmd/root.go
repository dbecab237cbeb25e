package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "agentmail",
	Short: "Coordinate mail, file reservations, and contacts between agents",
	Long: `agentmail routes messages between agent personas across projects, tracks
advisory file reservations, gates unsolicited contact, and archives every
delivery as git-committed markdown.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "accepted but not read: config always loads from $XDG_CONFIG_HOME/agentmail/config.yaml")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "accepted but not read: no debug logging is produced")
}
