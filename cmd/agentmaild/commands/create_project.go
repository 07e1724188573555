package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var createProjectCmd = &cobra.Command{
	Use:   "create-project <slug> <human_key>",
	Short: "Create a project namespace and its archive root",
	Args:  cobra.ExactArgs(2),
	RunE:  runCreateProject,
}

func init() {
	rootCmd.AddCommand(createProjectCmd)
}

func runCreateProject(cmd *cobra.Command, args []string) error {
	coord, dbStore, _, err := bootstrap()
	if err != nil {
		return err
	}
	defer dbStore.Close()

	project, err := coord.CreateProject(context.Background(), args[0], args[1])
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "created project %q (%s), id=%d\n", project.Slug, project.HumanKey, int64(project.ID))
	return nil
}
