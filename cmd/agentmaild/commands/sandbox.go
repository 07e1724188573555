package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentmail/coordinator/internal/review"
)

var sandboxRole string

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Manage per-task git worktree sandboxes",
}

var sandboxCreateCmd = &cobra.Command{
	Use:   "create <task_id> <agent>",
	Short: "Create a worker or reviewer worktree sandbox and write its manifest",
	Args:  cobra.ExactArgs(2),
	RunE:  runSandboxCreate,
}

var sandboxMergeCmd = &cobra.Command{
	Use:   "merge <task_id> <target_branch>",
	Short: "Merge a worker sandbox's branch back and remove the sandbox",
	Args:  cobra.ExactArgs(2),
	RunE:  runSandboxMerge,
}

var sandboxAbandonCmd = &cobra.Command{
	Use:   "abandon <task_id>",
	Short: "Remove a sandbox and its branch without merging",
	Args:  cobra.ExactArgs(1),
	RunE:  runSandboxAbandon,
}

func init() {
	rootCmd.AddCommand(sandboxCmd)
	sandboxCmd.AddCommand(sandboxCreateCmd, sandboxMergeCmd, sandboxAbandonCmd)
	sandboxCreateCmd.Flags().StringVar(&sandboxRole, "role", "worker", `sandbox role: "worker" or "reviewer"`)
}

func runSandboxCreate(cmd *cobra.Command, args []string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	taskID, agent := args[0], args[1]

	var dirName, branch string
	switch sandboxRole {
	case "worker":
		dirName, branch = review.WorkerWorktree(taskID)
	case "reviewer":
		dirName, branch = review.ReviewerWorktree(taskID)
	default:
		return fmt.Errorf("unknown --role %q, want worker or reviewer", sandboxRole)
	}

	logger := newLogger(cfg)
	w := review.NewWorktreeManager(cfg.ArchiveRoot, logger)
	path, err := w.Create(context.Background(), dirName, branch)
	if err != nil {
		return err
	}

	manifest := review.SandboxManifest{
		TaskID:    taskID,
		Branch:    branch,
		Agent:     agent,
		Role:      sandboxRole,
		CreatedAt: time.Now().UTC(),
	}
	if err := review.WriteManifest(path, manifest); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "sandbox created at %s on branch %s\n", path, branch)
	return nil
}

func runSandboxMerge(cmd *cobra.Command, args []string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	taskID, targetBranch := args[0], args[1]
	dirName, branch := review.WorkerWorktree(taskID)

	w := review.NewWorktreeManager(cfg.ArchiveRoot, newLogger(cfg))
	commitID, err := w.MergeAndCleanup(context.Background(), dirName, branch, targetBranch)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "merged %s into %s at %s\n", branch, targetBranch, commitID)
	return nil
}

func runSandboxAbandon(cmd *cobra.Command, args []string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	taskID := args[0]
	dirName, branch := review.WorkerWorktree(taskID)

	w := review.NewWorktreeManager(cfg.ArchiveRoot, newLogger(cfg))
	if err := w.ForceCleanup(context.Background(), dirName, branch); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sandbox %s abandoned\n", dirName)
	return nil
}
