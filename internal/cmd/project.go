package cmd

import (
	"fmt"

	"github.com/jra3/agentmail/internal/model"
	"github.com/spf13/cobra"
)

var ensureProjectCmd = &cobra.Command{
	Use:   "ensure-project <human-key>",
	Short: "Register a project (idempotent) by its absolute directory path",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		proj, err := a.Projects.EnsureProject(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("project_id=%d slug=%s human_key=%s\n", proj.ID, proj.Slug, proj.HumanKey)
		return nil
	}),
}

var registerAgentCmd = &cobra.Command{
	Use:   "register-agent <project-slug>",
	Short: "Register an agent persona in a project (idempotent), generating a name if omitted",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		ctx := cmd.Context()
		proj, err := a.Store.Queries().GetProjectBySlug(ctx, args[0])
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		program, _ := cmd.Flags().GetString("program")
		model_, _ := cmd.Flags().GetString("model")
		task, _ := cmd.Flags().GetString("task")

		agent, created, err := a.Projects.RegisterAgent(ctx, proj.ID, name, program, model_, task)
		if err != nil {
			return err
		}
		fmt.Printf("agent=%s created=%t\n", agent.Name, created)
		return nil
	}),
}

var whoisCmd = &cobra.Command{
	Use:   "whois <project-slug> <agent-name>",
	Short: "Look up an agent's identity and contact policy",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		ctx := cmd.Context()
		proj, err := a.Store.Queries().GetProjectBySlug(ctx, args[0])
		if err != nil {
			return err
		}
		identity, err := a.Projects.Whois(ctx, proj.ID, args[1])
		if err != nil {
			return err
		}
		ag := identity.Agent
		fmt.Printf("name=%s program=%s model=%s contact_policy=%s attachments_policy=%s last_active=%s\n",
			ag.Name, ag.Program, ag.Model, ag.ContactPolicy, ag.AttachmentsPolicy, ag.LastActiveTS.Format("2006-01-02T15:04:05Z07:00"))
		return nil
	}),
}

var setContactPolicyCmd = &cobra.Command{
	Use:   "set-contact-policy <project-slug> <agent-name> <policy>",
	Short: "Set an agent's default contact-approval policy (open|auto|contacts_only|block_all)",
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
		policy := model.ContactPolicy(args[2])
		if !policy.Valid() {
			return fmt.Errorf("invalid contact policy %q", args[2])
		}
		return a.Projects.SetContactPolicy(ctx, agent.ID, policy)
	}),
}

func init() {
	registerAgentCmd.Flags().String("name", "", "agent name (generated when omitted)")
	registerAgentCmd.Flags().String("program", "", "the program/model family running this agent")
	registerAgentCmd.Flags().String("model", "", "the model identifier running this agent")
	registerAgentCmd.Flags().String("task", "", "a short description of the agent's current task")

	rootCmd.AddCommand(ensureProjectCmd, registerAgentCmd, whoisCmd, setContactPolicyCmd)
}
