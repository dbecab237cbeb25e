package cmd

import (
	"fmt"
	"time"

	"github.com/jra3/agentmail/internal/inbox"
	"github.com/jra3/agentmail/internal/workflow"
	"github.com/spf13/cobra"
)

var startSessionCmd = &cobra.Command{
	Use:   "start-session <project-human-key> <agent-name>",
	Short: "Ensure project + register agent + optional reservation + fetch inbox, in one call",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		program, _ := cmd.Flags().GetString("program")
		model, _ := cmd.Flags().GetString("model")
		task, _ := cmd.Flags().GetString("task")
		reservePattern, _ := cmd.Flags().GetString("reserve")
		exclusive, _ := cmd.Flags().GetBool("exclusive")
		reason, _ := cmd.Flags().GetString("reason")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		result, err := a.Workflow.StartSession(cmd.Context(), workflow.StartSessionRequest{
			ProjectHumanKey:    args[0],
			AgentName:          args[1],
			Program:            program,
			Model:              model,
			TaskDescription:    task,
			ReservePathPattern: reservePattern,
			ReserveExclusive:   exclusive,
			ReserveReason:      reason,
			ReserveTTL:         ttl,
			InboxOptions:       inbox.FetchOptions{IncludeBodies: true},
		})
		if err != nil {
			return err
		}
		fmt.Printf("correlation_id=%s project=%s agent=%s inbox=%d\n", result.CorrelationID, result.Project.Slug, result.Agent.Name, len(result.Inbox))
		if result.Reservation != nil {
			fmt.Printf("reservation_id=%d expires=%s\n", result.Reservation.Reservation.ID, result.Reservation.Reservation.ExpiresTS.Format(time.RFC3339))
		}
		return nil
	}),
}

var prepareThreadCmd = &cobra.Command{
	Use:   "prepare-thread <project-human-key> <agent-name> <thread-key>",
	Short: "Ensure project + register agent + thread-summary + fetch inbox, in one call",
	Args:  cobra.ExactArgs(3),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		program, _ := cmd.Flags().GetString("program")
		model, _ := cmd.Flags().GetString("model")
		task, _ := cmd.Flags().GetString("task")
		useLLM, _ := cmd.Flags().GetBool("llm")
		examples, _ := cmd.Flags().GetBool("examples")

		result, err := a.Workflow.PrepareThread(cmd.Context(), workflow.PrepareThreadRequest{
			ProjectHumanKey: args[0],
			AgentName:       args[1],
			Program:         program,
			Model:           model,
			TaskDescription: task,
			ThreadKey:       args[2],
			IncludeExamples: examples,
			UseLLM:          useLLM,
			InboxOptions:    inbox.FetchOptions{IncludeBodies: true},
		})
		if err != nil {
			return err
		}
		fmt.Printf("correlation_id=%s project=%s agent=%s messages=%d inbox=%d\n", result.CorrelationID, result.Project.Slug, result.Agent.Name, result.MessageCount, len(result.Inbox))
		for _, kp := range result.Summary.KeyPoints {
			fmt.Printf("  - %s\n", kp)
		}
		return nil
	}),
}

var reservationCycleCmd = &cobra.Command{
	Use:   "reservation-cycle <project-slug> <agent-name> <path-pattern>",
	Short: "Reserve a path and optionally release it immediately",
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
		releaseNow, _ := cmd.Flags().GetBool("release")

		result, err := a.Workflow.ReservationCycle(ctx, workflow.ReservationCycleRequest{
			ProjectID: proj.ID, AgentID: agent.ID, PathPattern: args[2],
			Exclusive: exclusive, Reason: reason, TTL: ttl, ReleaseImmediately: releaseNow,
		})
		if err != nil {
			return err
		}
		fmt.Printf("correlation_id=%s reservation_id=%d released=%t\n", result.CorrelationID, result.Reservation.Reservation.ID, result.Released)
		return nil
	}),
}

var contactHandshakeCmd = &cobra.Command{
	Use:   "contact-handshake <requester-project-slug> <requester-agent> <target-project-slug> <target-agent>",
	Short: "Request contact, optionally auto-accept and send a welcome message",
	Args:  cobra.ExactArgs(4),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		ctx := cmd.Context()
		reqProj, err := a.Store.Queries().GetProjectBySlug(ctx, args[0])
		if err != nil {
			return err
		}
		reqAgent, err := a.Store.Queries().GetAgentByName(ctx, reqProj.ID, args[1])
		if err != nil {
			return err
		}
		targetProj, err := a.Store.Queries().GetProjectBySlug(ctx, args[2])
		if err != nil {
			return err
		}

		autoRegister, _ := cmd.Flags().GetBool("auto-register-target")
		autoAccept, _ := cmd.Flags().GetBool("auto-accept")
		reason, _ := cmd.Flags().GetString("reason")
		program, _ := cmd.Flags().GetString("target-program")
		model, _ := cmd.Flags().GetString("target-model")
		task, _ := cmd.Flags().GetString("target-task")
		welcomeSubject, _ := cmd.Flags().GetString("welcome-subject")
		welcomeBody, _ := cmd.Flags().GetString("welcome-body")

		result, err := a.Workflow.ContactHandshake(ctx, workflow.ContactHandshakeRequest{
			RequesterProjectID: reqProj.ID, RequesterAgentID: reqAgent.ID,
			TargetProjectID: targetProj.ID, TargetAgentName: args[3],
			TargetProgram: program, TargetModel: model, TargetTaskDescription: task,
			AutoRegisterTarget: autoRegister, Reason: reason, AutoAccept: autoAccept,
			WelcomeSubject: welcomeSubject, WelcomeBodyMD: welcomeBody,
		})
		if err != nil {
			return err
		}
		fmt.Printf("correlation_id=%s link_id=%d registered=%t accepted=%t welcome_sent=%t\n", result.CorrelationID, result.Link.ID, result.TargetRegistered, result.Accepted, result.WelcomeSent)
		if result.WelcomeError != "" {
			fmt.Printf("welcome_error=%s\n", result.WelcomeError)
		}
		return nil
	}),
}

func init() {
	startSessionCmd.Flags().String("program", "", "agent program identifier")
	startSessionCmd.Flags().String("model", "", "agent model identifier")
	startSessionCmd.Flags().String("task", "", "agent task description")
	startSessionCmd.Flags().String("reserve", "", "path pattern to reserve immediately (empty skips)")
	startSessionCmd.Flags().Bool("exclusive", false, "reservation is exclusive")
	startSessionCmd.Flags().String("reason", "", "reservation reason")
	startSessionCmd.Flags().Duration("ttl", time.Hour, "reservation ttl")

	prepareThreadCmd.Flags().String("program", "", "agent program identifier")
	prepareThreadCmd.Flags().String("model", "", "agent model identifier")
	prepareThreadCmd.Flags().String("task", "", "agent task description")
	prepareThreadCmd.Flags().Bool("llm", false, "augment the summary with the configured LLM client")
	prepareThreadCmd.Flags().Bool("examples", false, "include up to 3 example messages")

	reservationCycleCmd.Flags().Bool("exclusive", false, "reservation is exclusive")
	reservationCycleCmd.Flags().String("reason", "", "reservation reason")
	reservationCycleCmd.Flags().Duration("ttl", time.Hour, "reservation ttl")
	reservationCycleCmd.Flags().Bool("release", false, "release the reservation immediately after acquiring it")

	contactHandshakeCmd.Flags().Bool("auto-register-target", false, "register the target agent if it does not yet exist")
	contactHandshakeCmd.Flags().Bool("auto-accept", false, "approve the request immediately on behalf of the target")
	contactHandshakeCmd.Flags().String("reason", "", "why contact is being requested")
	contactHandshakeCmd.Flags().String("target-program", "", "target agent program, used only with --auto-register-target")
	contactHandshakeCmd.Flags().String("target-model", "", "target agent model, used only with --auto-register-target")
	contactHandshakeCmd.Flags().String("target-task", "", "target agent task description, used only with --auto-register-target")
	contactHandshakeCmd.Flags().String("welcome-subject", "", "subject for an optional welcome message, sent only if --auto-accept and --welcome-body are set")
	contactHandshakeCmd.Flags().String("welcome-body", "", "body for an optional welcome message")

	rootCmd.AddCommand(startSessionCmd, prepareThreadCmd, reservationCycleCmd, contactHandshakeCmd)
}
