package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentmail/coordinator/internal/core"
	"github.com/agentmail/coordinator/internal/coordination"
)

var (
	sendFrom        string
	sendTo          []string
	sendCc          []string
	sendBcc         []string
	sendThread      string
	sendImportance  string
	sendAckRequired bool
)

var sendMessageCmd = &cobra.Command{
	Use:   "send-message <project> <subject> <body>",
	Short: "Send a mailbox message within a project",
	Args:  cobra.ExactArgs(3),
	RunE:  runSendMessage,
}

func init() {
	rootCmd.AddCommand(sendMessageCmd)
	sendMessageCmd.Flags().StringVar(&sendFrom, "from", "", "sending agent name (required)")
	sendMessageCmd.Flags().StringSliceVar(&sendTo, "to", nil, "recipient agent names")
	sendMessageCmd.Flags().StringSliceVar(&sendCc, "cc", nil, "cc agent names")
	sendMessageCmd.Flags().StringSliceVar(&sendBcc, "bcc", nil, "bcc agent names")
	sendMessageCmd.Flags().StringVar(&sendThread, "thread", "", "thread id (new thread if omitted)")
	sendMessageCmd.Flags().StringVar(&sendImportance, "importance", "normal", "low|normal|high")
	sendMessageCmd.Flags().BoolVar(&sendAckRequired, "ack-required", false, "require explicit acknowledgement")
	sendMessageCmd.MarkFlagRequired("from")
	sendMessageCmd.MarkFlagRequired("to")
}

func runSendMessage(cmd *cobra.Command, args []string) error {
	coord, dbStore, _, err := bootstrap()
	if err != nil {
		return err
	}
	defer dbStore.Close()

	ctx := context.Background()
	project, err := coord.FindProject(ctx, args[0])
	if err != nil {
		return err
	}

	sender, err := coord.FindAgentByName(ctx, project.ID, sendFrom)
	if err != nil {
		return err
	}

	to, err := resolveAgents(ctx, coord, project.ID, sendTo)
	if err != nil {
		return err
	}
	cc, err := resolveAgents(ctx, coord, project.ID, sendCc)
	if err != nil {
		return err
	}
	bcc, err := resolveAgents(ctx, coord, project.ID, sendBcc)
	if err != nil {
		return err
	}

	input := coordination.SendInput{
		SenderAgentID: sender.ID,
		Subject:       args[1],
		BodyMD:        args[2],
		Importance:    core.ParseImportance(sendImportance),
		AckRequired:   sendAckRequired,
		To:            to,
		Cc:            cc,
		Bcc:           bcc,
	}
	if sendThread != "" {
		input.ThreadID = &sendThread
	}

	messageID, err := coord.Send(ctx, project.ID, input)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "sent message id=%d\n", int64(messageID))
	return nil
}

func resolveAgents(ctx context.Context, coord *coordination.Store, projectID core.ProjectId, names []string) ([]core.AgentId, error) {
	ids := make([]core.AgentId, 0, len(names))
	for _, name := range names {
		agent, err := coord.FindAgentByName(ctx, projectID, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, agent.ID)
	}
	return ids, nil
}
