package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var overseerLimit int

var overseerCmd = &cobra.Command{
	Use:   "overseer",
	Short: "Post and read standalone notices addressed to the human overseer",
}

var overseerNotifyCmd = &cobra.Command{
	Use:   "notify <project> <subject> <body>",
	Short: "Record an overseer notice",
	Args:  cobra.ExactArgs(3),
	RunE:  runOverseerNotify,
}

var overseerListCmd = &cobra.Command{
	Use:   "list <project>",
	Short: "List overseer notices, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runOverseerList,
}

func init() {
	rootCmd.AddCommand(overseerCmd)
	overseerCmd.AddCommand(overseerNotifyCmd, overseerListCmd)
	overseerListCmd.Flags().IntVar(&overseerLimit, "limit", 50, "maximum notices to return")
}

func runOverseerNotify(cmd *cobra.Command, args []string) error {
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

	msg, err := coord.CreateOverseerMessage(ctx, project.ID, args[1], args[2])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "recorded overseer notice %d\n", int64(msg.ID))
	return nil
}

func runOverseerList(cmd *cobra.Command, args []string) error {
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

	messages, err := coord.ListOverseerMessages(ctx, project.ID, overseerLimit)
	if err != nil {
		return err
	}
	for _, m := range messages {
		fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", m.CreatedTS.Format("2006-01-02T15:04:05Z"), m.Subject, m.BodyMD)
	}
	return nil
}
