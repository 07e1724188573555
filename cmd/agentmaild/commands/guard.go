package commands

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentmail/coordinator/internal/reservation"
)

var guardAgentName string

var guardCmd = &cobra.Command{
	Use:   "guard",
	Short: "Pre-commit reservation guard",
}

var guardCheckCmd = &cobra.Command{
	Use:   "check <project>",
	Short: "Fail if any staged file overlaps another agent's active exclusive reservation",
	Args:  cobra.ExactArgs(1),
	RunE:  runGuardCheck,
}

func init() {
	rootCmd.AddCommand(guardCmd)
	guardCmd.AddCommand(guardCheckCmd)
	guardCheckCmd.Flags().StringVar(&guardAgentName, "agent", "", "agent name making this commit (required)")
	guardCheckCmd.MarkFlagRequired("agent")
}

func runGuardCheck(cmd *cobra.Command, args []string) error {
	coord, dbStore, _, err := bootstrap()
	if err != nil {
		return err
	}
	defer dbStore.Close()

	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	if cfg.AgentMailBypass {
		fmt.Fprintln(cmd.OutOrStdout(), "guard check bypassed via AGENT_MAIL_BYPASS")
		return nil
	}

	ctx := context.Background()
	project, err := coord.FindProject(ctx, args[0])
	if err != nil {
		return err
	}
	agent, err := coord.FindAgentByName(ctx, project.ID, guardAgentName)
	if err != nil {
		return err
	}

	staged, err := stagedFiles()
	if err != nil {
		return err
	}
	if len(staged) == 0 {
		return nil
	}

	engine := reservation.New(dbStore)
	active, err := engine.ListActiveForProject(ctx, project.ID)
	if err != nil {
		return err
	}

	var conflicts []string
	for _, path := range staged {
		for _, r := range active {
			if !r.Exclusive || r.AgentID == agent.ID {
				continue
			}
			if reservation.Overlaps(r.PathPattern, path) {
				conflicts = append(conflicts, fmt.Sprintf("%s conflicts with reservation %q held by agent %d", path, r.PathPattern, int64(r.AgentID)))
			}
		}
	}

	if len(conflicts) > 0 {
		return fmt.Errorf("guard check failed:\n%s", strings.Join(conflicts, "\n"))
	}

	fmt.Fprintln(cmd.OutOrStdout(), "guard check passed")
	return nil
}

func stagedFiles() ([]string, error) {
	cmd := exec.Command("git", "diff", "--cached", "--name-only")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to list staged files: %w", err)
	}
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(stdout.String()), "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}
