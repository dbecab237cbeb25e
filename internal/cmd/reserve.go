package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var reserveCmd = &cobra.Command{
	Use:   "reserve <project-slug> <agent-name> <path-pattern>",
	Short: "Create an advisory file reservation",
	Args:  cobra.ExactArgs(3),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		ctx := cmd.Context()
		proj, err := a.Store.Queries().GetProjectBySlug(ctx, args[0])
		if err != nil {
			return err
		}
		agent, err := a.Store.Queries().GetAgentByName(ctx, proj.ID, args[1])
		if err != nil {
			return err
		}
		exclusive, _ := cmd.Flags().GetBool("exclusive")
		reason, _ := cmd.Flags().GetString("reason")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		grant, err := a.Reservations.Reserve(ctx, proj.ID, agent.ID, args[2], exclusive, reason, ttl)
		if err != nil {
			return err
		}
		fmt.Printf("reservation_id=%d expires=%s conflicts=%d\n",
			grant.Reservation.ID, grant.Reservation.ExpiresTS.Format(time.RFC3339), len(grant.Conflicts))
		for _, c := range grant.Conflicts {
			fmt.Printf("  conflict: reservation_id=%d agent_id=%d pattern=%s\n", c.ID, c.AgentID, c.PathPattern)
		}
		return nil
	}),
}

var renewReservationCmd = &cobra.Command{
	Use:   "renew-reservation <reservation-id> <extend>",
	Short: "Extend an active reservation's expiry",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		id, err := parseInt64(args[0])
		if err != nil {
			return err
		}
		extend, err := time.ParseDuration(args[1])
		if err != nil {
			return err
		}
		r, err := a.Reservations.Renew(cmd.Context(), id, extend)
		if err != nil {
			return err
		}
		fmt.Printf("reservation_id=%d expires=%s\n", r.ID, r.ExpiresTS.Format(time.RFC3339))
		return nil
	}),
}

var releaseReservationCmd = &cobra.Command{
	Use:   "release-reservation <reservation-id>",
	Short: "Release a reservation early",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		id, err := parseInt64(args[0])
		if err != nil {
			return err
		}
		return a.Reservations.Release(cmd.Context(), id)
	}),
}

func init() {
	reserveCmd.Flags().Bool("exclusive", false, "exclusive lease; overlaps with other agents' reservations are reported as conflicts, not rejected")
	reserveCmd.Flags().String("reason", "", "human-readable reason")
	reserveCmd.Flags().Duration("ttl", time.Hour, "time-to-live, clamped to a 60s minimum")

	rootCmd.AddCommand(reserveCmd, renewReservationCmd, releaseReservationCmd)
}
