package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check database connectivity and storage root availability",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		ctx := cmd.Context()

		dbOK := true
		if err := a.Store.DB().PingContext(ctx); err != nil {
			dbOK = false
			fmt.Printf("database: FAIL (%s): %v\n", a.Config.Database.Path, err)
		} else {
			fmt.Printf("database: OK (%s)\n", a.Config.Database.Path)
		}

		storageOK := true
		if info, err := os.Stat(a.Config.Storage.Root); err != nil || !info.IsDir() {
			storageOK = false
			fmt.Printf("storage: FAIL (%s not a directory)\n", a.Config.Storage.Root)
		} else {
			fmt.Printf("storage: OK (%s)\n", a.Config.Storage.Root)
		}

		fmt.Printf("server: host=%s port=%d path=%s (recorded, not bound)\n", a.Config.Server.Host, a.Config.Server.Port, a.Config.Server.Path)
		fmt.Printf("policy: reservations_enforced=%t contact_enforced=%t\n", a.Config.Policy.ReservationsEnforced, a.Config.Policy.ContactEnforced)
		fmt.Printf("llm: enabled_in_config=%t (CLI always runs with the disabled client)\n", a.Config.LLM.Enabled)

		if !dbOK || !storageOK {
			return fmt.Errorf("health check failed")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
