package cmd

import (
	"fmt"

	"github.com/jra3/agentmail/internal/mailpipeline"
	"github.com/jra3/agentmail/internal/model"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <project-human-key> <from>",
	Short: "Send a message to one or more agents",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		to, _ := cmd.Flags().GetStringSlice("to")
		cc, _ := cmd.Flags().GetStringSlice("cc")
		bcc, _ := cmd.Flags().GetStringSlice("bcc")
		subject, _ := cmd.Flags().GetString("subject")
		body, _ := cmd.Flags().GetString("body")
		importance, _ := cmd.Flags().GetString("importance")
		ackRequired, _ := cmd.Flags().GetBool("ack-required")
		threadKey, _ := cmd.Flags().GetString("thread")
		autoHandshake, _ := cmd.Flags().GetBool("auto-handshake")

		result, err := a.Pipeline.Send(cmd.Context(), mailpipeline.SendRequest{
			ProjectHumanKey: args[0],
			SenderName:      args[1],
			To:              to, CC: cc, BCC: bcc,
			Subject:       subject,
			BodyMD:        body,
			Importance:    model.Importance(importance),
			AckRequired:   ackRequired,
			ThreadKey:     threadKey,
			AutoHandshake: autoHandshake,
		})
		if err != nil {
			return err
		}
		if err := printDeliveries(result); err != nil {
			return err
		}
		fmt.Print(renderMarkdown(body))
		return nil
	}),
}

var replyCmd = &cobra.Command{
	Use:   "reply <project-human-key> <from> <message-id>",
	Short: "Reply to an existing message",
	Args:  cobra.ExactArgs(3),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		id, err := parseInt64(args[2])
		if err != nil {
			return err
		}
		body, _ := cmd.Flags().GetString("body")
		to, _ := cmd.Flags().GetStringSlice("to")
		cc, _ := cmd.Flags().GetStringSlice("cc")
		bcc, _ := cmd.Flags().GetStringSlice("bcc")
		autoHandshake, _ := cmd.Flags().GetBool("auto-handshake")

		result, err := a.Pipeline.Reply(cmd.Context(), mailpipeline.ReplyRequest{
			ProjectHumanKey: args[0],
			SenderName:      args[1],
			MessageID:       id,
			BodyMD:          body,
			To:              to, CC: cc, BCC: bcc,
			AutoHandshake: autoHandshake,
		})
		if err != nil {
			return err
		}
		if err := printDeliveries(result); err != nil {
			return err
		}
		fmt.Print(renderMarkdown(body))
		return nil
	}),
}

func printDeliveries(result *mailpipeline.SendResult) error {
	for _, d := range result.Deliveries {
		fmt.Printf("project=%s message_id=%d thread_key=%s subject=%q commit=%s\n",
			d.ProjectSlug, d.MessageID, d.ThreadKey, d.Subject, d.CommitHash)
	}
	return nil
}

func init() {
	sendCmd.Flags().StringSlice("to", nil, "recipient agent names")
	sendCmd.Flags().StringSlice("cc", nil, "cc agent names")
	sendCmd.Flags().StringSlice("bcc", nil, "bcc agent names")
	sendCmd.Flags().String("subject", "", "message subject")
	sendCmd.Flags().String("body", "", "message body (markdown)")
	sendCmd.Flags().String("importance", string(model.ImportanceNormal), "low|normal|high|urgent")
	sendCmd.Flags().Bool("ack-required", false, "require an acknowledgement from recipients")
	sendCmd.Flags().String("thread", "", "explicit thread key")
	sendCmd.Flags().Bool("auto-handshake", false, "synthesize a contact approval when policy would deny")

	replyCmd.Flags().String("body", "", "reply body (markdown)")
	replyCmd.Flags().StringSlice("to", nil, "override recipients (default: original sender)")
	replyCmd.Flags().StringSlice("cc", nil, "override cc")
	replyCmd.Flags().StringSlice("bcc", nil, "override bcc")
	replyCmd.Flags().Bool("auto-handshake", false, "synthesize a contact approval when policy would deny")

	rootCmd.AddCommand(sendCmd, replyCmd)
}
