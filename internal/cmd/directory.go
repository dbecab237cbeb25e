package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jra3/agentmail/internal/directory"
	"github.com/spf13/cobra"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List registered projects",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		projects, err := a.Directory.ListProjects(cmd.Context())
		if err != nil {
			return err
		}
		for _, p := range projects {
			fmt.Printf("slug=%s human_key=%s created=%s\n", p.Slug, p.HumanKey, humanize.Time(p.CreatedAt))
		}
		return nil
	}),
}

var projectDetailCmd = &cobra.Command{
	Use:   "project <project-slug>",
	Short: "Show a project and its agent roster",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		detail, err := a.Directory.ProjectDetail(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("slug=%s human_key=%s\n", detail.Project.Slug, detail.Project.HumanKey)
		for _, ag := range detail.Agents {
			fmt.Printf("  agent=%s program=%s model=%s policy=%s last_active=%s\n", ag.Name, ag.Program, ag.Model, ag.ContactPolicy, humanize.Time(ag.LastActiveTS))
		}
		return nil
	}),
}

var agentsCmd = &cobra.Command{
	Use:   "agents <project-slug>",
	Short: "List a project's agents with unread counts",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		ctx := cmd.Context()
		proj, err := a.Store.Queries().GetProjectBySlug(ctx, args[0])
		if err != nil {
			return err
		}
		agents, err := a.Directory.AgentDirectory(ctx, proj.ID)
		if err != nil {
			return err
		}
		for _, aw := range agents {
			fmt.Printf("agent=%s unread=%d\n", aw.Agent.Name, aw.Unread)
		}
		return nil
	}),
}

var reservationsCmd = &cobra.Command{
	Use:   "reservations <project-slug>",
	Short: "List a project's file reservations",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		ctx := cmd.Context()
		proj, err := a.Store.Queries().GetProjectBySlug(ctx, args[0])
		if err != nil {
			return err
		}
		activeOnly, _ := cmd.Flags().GetBool("active-only")
		rs, err := a.Directory.ListReservations(ctx, proj.ID, activeOnly)
		if err != nil {
			return err
		}
		for _, r := range rs {
			fmt.Printf("id=%d agent_id=%d pattern=%s exclusive=%t expires=%s\n", r.ID, r.AgentID, r.PathPattern, r.Exclusive, humanize.Time(r.ExpiresTS))
		}
		return nil
	}),
}

func printViewEntries(entries []directory.ViewEntry) {
	for _, e := range entries {
		fmt.Printf("id=%d subject=%q importance=%s ack_required=%t\n", e.Message.ID, e.Message.Subject, e.Message.Importance, e.Message.AckRequired)
	}
}

func viewCmd(use, short string, run func(ctx *cobra.Command, a *app, agentID int64, limit int) ([]directory.ViewEntry, error)) *cobra.Command {
	c := &cobra.Command{
		Use:   use + " <project-slug> <agent-name>",
		Short: short,
		Args:  cobra.ExactArgs(2),
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
			limit, _ := cmd.Flags().GetInt("limit")
			entries, err := run(cmd, a, agent.ID, limit)
			if err != nil {
				return err
			}
			printViewEntries(entries)
			return nil
		}),
	}
	c.Flags().Int("limit", 0, "maximum entries to return (0 = unlimited)")
	return c
}

var urgentUnreadCmd = viewCmd("urgent-unread", "List unread urgent/high-importance messages", func(cmd *cobra.Command, a *app, agentID int64, limit int) ([]directory.ViewEntry, error) {
	return a.Directory.UrgentUnread(cmd.Context(), agentID, limit)
})

var ackRequiredPendingCmd = viewCmd("ack-required-pending", "List ack-required messages still awaiting acknowledgement", func(cmd *cobra.Command, a *app, agentID int64, limit int) ([]directory.ViewEntry, error) {
	return a.Directory.AckRequiredPending(cmd.Context(), agentID, limit)
})

var ackStaleCmd = &cobra.Command{
	Use:   "ack-stale <project-slug> <agent-name>",
	Short: "List ack-required messages unacknowledged for longer than --ttl",
	Args:  cobra.ExactArgs(2),
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
		ttl, _ := cmd.Flags().GetDuration("ttl")
		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := a.Directory.AckStale(ctx, agent.ID, ttl, limit)
		if err != nil {
			return err
		}
		printViewEntries(entries)
		return nil
	}),
}

var ackOverdueCmd = &cobra.Command{
	Use:   "ack-overdue <project-slug> <agent-name>",
	Short: "List ack-required messages unacknowledged for longer than --minutes",
	Args:  cobra.ExactArgs(2),
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
		minutes, _ := cmd.Flags().GetInt("minutes")
		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := a.Directory.AckOverdue(ctx, agent.ID, minutes, limit)
		if err != nil {
			return err
		}
		printViewEntries(entries)
		return nil
	}),
}

var mailboxWithCommitsCmd = &cobra.Command{
	Use:   "mailbox-with-commits <project-slug> <agent-name>",
	Short: "List an agent's inbox enriched with archive commit info",
	Args:  cobra.ExactArgs(2),
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
		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := a.Directory.MailboxWithCommits(ctx, proj.Slug, agent.ID, limit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Commit != nil {
				fmt.Printf("id=%d subject=%q commit=%s commit_time=%s\n", e.Message.ID, e.Message.Subject, e.Commit.Hash, humanize.Time(e.Commit.AuthoredTS))
			} else {
				fmt.Printf("id=%d subject=%q commit=<none>\n", e.Message.ID, e.Message.Subject)
			}
		}
		return nil
	}),
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard <project-slug> <agent-name>",
	Short: "Show every derived view for an agent in one call (urgent-unread, ack-required-pending, ack-stale, ack-overdue)",
	Args:  cobra.ExactArgs(2),
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
		staleTTL, _ := cmd.Flags().GetDuration("stale-ttl")
		overdueMinutes, _ := cmd.Flags().GetInt("overdue-minutes")
		limit, _ := cmd.Flags().GetInt("limit")
		dash, err := a.Directory.Dashboard(ctx, agent.ID, staleTTL, overdueMinutes, limit)
		if err != nil {
			return err
		}
		fmt.Println("urgent-unread:")
		printViewEntries(dash.UrgentUnread)
		fmt.Println("ack-required-pending:")
		printViewEntries(dash.AckRequiredPending)
		fmt.Println("ack-stale:")
		printViewEntries(dash.AckStale)
		fmt.Println("ack-overdue:")
		printViewEntries(dash.AckOverdue)
		return nil
	}),
}

var siblingsCmd = &cobra.Command{
	Use:   "siblings",
	Short: "Suggest likely-related projects by slug/path heuristics",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		projects, err := a.Directory.ListProjects(cmd.Context())
		if err != nil {
			return err
		}
		bySlug := make(map[int64]string, len(projects))
		for _, p := range projects {
			bySlug[p.ID] = p.Slug
		}
		for _, s := range directory.SuggestSiblings(projects) {
			fmt.Printf("%s <-> %s score=%.2f reason=%s\n", bySlug[s.ProjectAID], bySlug[s.ProjectBID], s.Score, s.Reason)
		}
		return nil
	}),
}

func init() {
	reservationsCmd.Flags().Bool("active-only", false, "accepted; the listing always holds active reservations only")
	ackStaleCmd.Flags().Duration("ttl", time.Hour, "age threshold")
	ackStaleCmd.Flags().Int("limit", 0, "maximum entries to return (0 = unlimited)")
	ackOverdueCmd.Flags().Int("minutes", 60, "age threshold in minutes")
	ackOverdueCmd.Flags().Int("limit", 0, "maximum entries to return (0 = unlimited)")
	mailboxWithCommitsCmd.Flags().Int("limit", 0, "maximum entries to return (0 = unlimited)")
	dashboardCmd.Flags().Duration("stale-ttl", time.Hour, "age threshold for the ack-stale view")
	dashboardCmd.Flags().Int("overdue-minutes", 60, "age threshold in minutes for the ack-overdue view")
	dashboardCmd.Flags().Int("limit", 0, "maximum entries per view (0 = unlimited)")

	rootCmd.AddCommand(projectsCmd, projectDetailCmd, agentsCmd, reservationsCmd,
		urgentUnreadCmd, ackRequiredPendingCmd, ackStaleCmd, ackOverdueCmd, mailboxWithCommitsCmd, dashboardCmd, siblingsCmd)
}
