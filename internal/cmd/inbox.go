package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/jra3/agentmail/internal/inbox"
	"github.com/jra3/agentmail/internal/model"
	"github.com/spf13/cobra"
)

var inboxCmd = &cobra.Command{
	Use:   "inbox <project-slug> <agent-name>",
	Short: "Fetch an agent's inbox",
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
		urgentOnly, _ := cmd.Flags().GetBool("urgent-only")
		unreadOnly, _ := cmd.Flags().GetBool("unread-only")
		limit, _ := cmd.Flags().GetInt("limit")
		includeBodies, _ := cmd.Flags().GetBool("include-bodies")

		entries, err := a.Inbox.FetchInbox(ctx, agent.ID, inbox.FetchOptions{
			UrgentOnly: urgentOnly, UnreadOnly: unreadOnly, Limit: limit, IncludeBodies: includeBodies,
		})
		if err != nil {
			return err
		}
		for _, e := range entries {
			unread := "unread"
			if e.ReadTS != nil {
				unread = "read"
			}
			fmt.Printf("id=%d from=%s subject=%q importance=%s %s\n", e.Message.ID, e.SenderName, e.Message.Subject, e.Message.Importance, unread)
			if includeBodies {
				fmt.Print(renderMarkdown(e.Message.BodyMD))
			}
		}
		return nil
	}),
}

var markReadCmd = &cobra.Command{
	Use:   "mark-read <project-slug> <agent-name> <message-id>",
	Short: "Mark a message as read for an agent",
	Args:  cobra.ExactArgs(3),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		ctx := cmd.Context()
		agent, msgID, err := resolveAgentAndMessage(ctx, a, args)
		if err != nil {
			return err
		}
		return a.Inbox.MarkRead(ctx, msgID, agent.ID)
	}),
}

var ackCmd = &cobra.Command{
	Use:   "ack <project-slug> <agent-name> <message-id>",
	Short: "Acknowledge a message (also marks it read)",
	Args:  cobra.ExactArgs(3),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		ctx := cmd.Context()
		agent, msgID, err := resolveAgentAndMessage(ctx, a, args)
		if err != nil {
			return err
		}
		return a.Inbox.Acknowledge(ctx, msgID, agent.ID)
	}),
}

var threadSummaryCmd = &cobra.Command{
	Use:   "thread-summary <project-slug> <thread-key>",
	Short: "Summarize a thread's key points, action items, and mentions",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		ctx := cmd.Context()
		proj, err := a.Store.Queries().GetProjectBySlug(ctx, args[0])
		if err != nil {
			return err
		}
		useLLM, _ := cmd.Flags().GetBool("llm")
		examples, _ := cmd.Flags().GetBool("examples")

		summary, ex, count, err := a.Inbox.ThreadSummary(ctx, proj.ID, args[1], examples, useLLM)
		if err != nil {
			return err
		}
		fmt.Printf("messages=%d participants=%v\n", count, summary.Participants)
		fmt.Print(renderMarkdown(digestMarkdown(summary.KeyPoints)))
		for _, item := range ex {
			fmt.Printf("example id=%d from=%s subject=%q\n", item.ID, item.From, item.Subject)
		}
		return nil
	}),
}

// digestMarkdown renders a thread summary's key points as a markdown bullet
// list, the input glamour then styles for the terminal.
func digestMarkdown(keyPoints []string) string {
	var b strings.Builder
	for _, kp := range keyPoints {
		b.WriteString("- ")
		b.WriteString(kp)
		b.WriteString("\n")
	}
	return b.String()
}

// resolveAgentAndMessage resolves args = [project-slug, agent-name, message-id].
func resolveAgentAndMessage(ctx context.Context, a *app, args []string) (*model.Agent, int64, error) {
	proj, err := a.Store.Queries().GetProjectBySlug(ctx, args[0])
	if err != nil {
		return nil, 0, err
	}
	agent, err := a.Store.Queries().GetAgentByName(ctx, proj.ID, args[1])
	if err != nil {
		return nil, 0, err
	}
	msgID, err := parseInt64(args[2])
	if err != nil {
		return nil, 0, err
	}
	return agent, msgID, nil
}

func init() {
	inboxCmd.Flags().Bool("urgent-only", false, "only urgent-importance messages")
	inboxCmd.Flags().Bool("unread-only", false, "only unread messages")
	inboxCmd.Flags().Int("limit", 0, "maximum messages to return (0 = unlimited)")
	inboxCmd.Flags().Bool("include-bodies", true, "include message bodies in the listing")

	threadSummaryCmd.Flags().Bool("llm", false, "augment the heuristic summary with the configured LLM client")
	threadSummaryCmd.Flags().Bool("examples", false, "include up to 3 example messages")

	rootCmd.AddCommand(inboxCmd, markReadCmd, ackCmd, threadSummaryCmd)
}
