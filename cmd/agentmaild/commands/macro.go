package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentmail/coordinator/internal/coordination"
)

var macroStepsJSON string
var macroDescription string

var macroCmd = &cobra.Command{
	Use:   "macro",
	Short: "Manage named multi-step call templates",
}

var macroCreateCmd = &cobra.Command{
	Use:   "create <project> <name>",
	Short: "Create a macro from a JSON array of {op, params} steps",
	Args:  cobra.ExactArgs(2),
	RunE:  runMacroCreate,
}

var macroListCmd = &cobra.Command{
	Use:   "list <project>",
	Short: "List macros scoped to a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runMacroList,
}

func init() {
	rootCmd.AddCommand(macroCmd)
	macroCmd.AddCommand(macroCreateCmd, macroListCmd)
	macroCreateCmd.Flags().StringVar(&macroStepsJSON, "steps", "[]", `JSON array of steps, e.g. '[{"op":"send-message","params":{"subject":"x"}}]'`)
	macroCreateCmd.Flags().StringVar(&macroDescription, "description", "", "human-readable description")
}

func runMacroCreate(cmd *cobra.Command, args []string) error {
	coord, dbStore, _, err := bootstrap()
	if err != nil {
		return err
	}
	defer dbStore.Close()

	var steps []coordination.MacroStep
	if err := json.Unmarshal([]byte(macroStepsJSON), &steps); err != nil {
		return fmt.Errorf("invalid --steps JSON: %w", err)
	}

	ctx := context.Background()
	project, err := coord.FindProject(ctx, args[0])
	if err != nil {
		return err
	}

	macro, err := coord.CreateMacro(ctx, project.ID, args[1], macroDescription, steps)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created macro %s (id=%d, %d steps)\n", macro.Name, int64(macro.ID), len(macro.Steps))
	return nil
}

func runMacroList(cmd *cobra.Command, args []string) error {
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

	macros, err := coord.ListMacros(ctx, project.ID)
	if err != nil {
		return err
	}
	for _, m := range macros {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d steps)\n", m.Name, m.Description, len(m.Steps))
	}
	return nil
}
