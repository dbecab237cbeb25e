package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var requestContactCmd = &cobra.Command{
	Use:   "request-contact <project-slug> <from-agent> <target-project-slug> <target-agent>",
	Short: "Request a contact link between two agents",
	Args:  cobra.ExactArgs(4),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		ctx := cmd.Context()
		fromProj, err := a.Store.Queries().GetProjectBySlug(ctx, args[0])
		if err != nil {
			return err
		}
		fromAgent, err := a.Store.Queries().GetAgentByName(ctx, fromProj.ID, args[1])
		if err != nil {
			return err
		}
		toProj, err := a.Store.Queries().GetProjectBySlug(ctx, args[2])
		if err != nil {
			return err
		}
		toAgent, err := a.Store.Queries().GetAgentByName(ctx, toProj.ID, args[3])
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")

		link, err := a.Contacts.RequestContact(ctx, fromProj.ID, fromAgent.ID, toProj.ID, toAgent.ID, reason)
		if err != nil {
			return err
		}
		fmt.Printf("link_id=%d status=%s\n", link.ID, link.Status)
		return nil
	}),
}

var respondContactCmd = &cobra.Command{
	Use:   "respond-contact <link-id> <approve|deny>",
	Short: "Approve or deny a pending contact request",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		id, err := parseInt64(args[0])
		if err != nil {
			return err
		}
		approve := args[1] == "approve"
		return a.Contacts.RespondContact(cmd.Context(), id, approve, nil)
	}),
}

var listContactsCmd = &cobra.Command{
	Use:   "list-contacts <project-slug> <agent-name>",
	Short: "List an agent's contact links",
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
		links, err := a.Contacts.ListContacts(ctx, proj.ID, agent.ID)
		if err != nil {
			return err
		}
		for _, l := range links {
			fmt.Printf("link_id=%d status=%s a=(%d,%d) b=(%d,%d)\n", l.ID, l.Status, l.AProjectID, l.AAgentID, l.BProjectID, l.BAgentID)
		}
		return nil
	}),
}

func init() {
	requestContactCmd.Flags().String("reason", "", "why contact is being requested")
	rootCmd.AddCommand(requestContactCmd, respondContactCmd, listContactsCmd)
}
