package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	createAgentProgram string
	createAgentModel   string
	createAgentTask    string
)

var createAgentCmd = &cobra.Command{
	Use:   "create-agent <project> <name>",
	Short: "Register an agent within a project",
	Args:  cobra.ExactArgs(2),
	RunE:  runCreateAgent,
}

func init() {
	rootCmd.AddCommand(createAgentCmd)
	createAgentCmd.Flags().StringVar(&createAgentProgram, "program", "", "agent program identifier")
	createAgentCmd.Flags().StringVar(&createAgentModel, "model", "", "agent model identifier")
	createAgentCmd.Flags().StringVar(&createAgentTask, "task", "", "agent task description")
}

func runCreateAgent(cmd *cobra.Command, args []string) error {
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

	agent, err := coord.CreateAgent(ctx, project.ID, args[1], createAgentProgram, createAgentModel, createAgentTask)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "created agent %q in project %q, id=%d\n", agent.Name, project.Slug, int64(agent.ID))
	return nil
}
