package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <project-slug> <query>",
	Short: "Full-text search over message subject/body",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		ctx := cmd.Context()
		proj, err := a.Store.Queries().GetProjectBySlug(ctx, args[0])
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		results, err := a.Search.SearchMessages(ctx, proj.ID, args[1], limit)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Printf("id=%d from=%s subject=%q thread=%s importance=%s\n", r.ID, r.SenderName, r.Subject, r.ThreadKey, r.Importance)
		}
		return nil
	}),
}

func init() {
	searchCmd.Flags().Int("limit", 20, "maximum results to return")
	rootCmd.AddCommand(searchCmd)
}
