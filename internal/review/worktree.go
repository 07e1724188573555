package review

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentmail/coordinator/internal/core"
	"github.com/agentmail/coordinator/internal/marshal"
)

const manifestFilename = "SANDBOX.md"

// WorktreeManager creates isolated sandboxes under <archive>/.sandboxes/
// (spec §4.5). go-git v5 has no multi-worktree support, so this shells out
// to the real git binary for worktree add/remove and merge, the way the
// teacher's pack-mates wrap git as an external process rather than
// reimplementing its plumbing.
type WorktreeManager struct {
	repoRoot string
	log      zerolog.Logger
}

// NewWorktreeManager wires a WorktreeManager to the main archive
// repository's root directory.
func NewWorktreeManager(repoRoot string, log zerolog.Logger) *WorktreeManager {
	return &WorktreeManager{repoRoot: repoRoot, log: log}
}

func (w *WorktreeManager) sandboxPath(name string) string {
	return filepath.Join(w.repoRoot, ".sandboxes", name)
}

// WorkerWorktree is the path and branch name for a worker sandbox
// (spec §4.5: "worker-<task_id>", branch "feature/<task_id>").
func WorkerWorktree(taskID string) (dirName, branch string) {
	return fmt.Sprintf("worker-%s", taskID), fmt.Sprintf("feature/%s", taskID)
}

// ReviewerWorktree is the path and branch name for a reviewer sandbox
// (spec §4.5: "reviewer-fix-<task_id>", branch "fix/<task_id>").
func ReviewerWorktree(taskID string) (dirName, branch string) {
	return fmt.Sprintf("reviewer-fix-%s", taskID), fmt.Sprintf("fix/%s", taskID)
}

// Create allocates a new branch from current HEAD and checks it out into
// a new worktree at .sandboxes/<dirName>.
func (w *WorktreeManager) Create(ctx context.Context, dirName, branch string) (string, error) {
	path := w.sandboxPath(dirName)
	if _, err := w.run(ctx, "worktree", "add", "-b", branch, path, "HEAD"); err != nil {
		return "", err
	}
	return path, nil
}

// SandboxManifest records why a sandbox worktree exists, for a reviewer or
// recovery sweeper looking at a stale .sandboxes/ directory without any
// other context.
type SandboxManifest struct {
	TaskID    string    `yaml:"task_id"`
	Branch    string    `yaml:"branch"`
	Agent     string    `yaml:"agent"`
	Role      string    `yaml:"role"`
	CreatedAt time.Time `yaml:"created_at"`
}

// WriteManifest renders a SANDBOX.md into the worktree at path, using the
// same YAML-frontmatter-over-body layout internal/marshal uses for document
// bodies elsewhere in the archive.
func WriteManifest(path string, m SandboxManifest) error {
	fm := map[string]any{
		"task_id":    m.TaskID,
		"branch":     m.Branch,
		"agent":      m.Agent,
		"role":       m.Role,
		"created_at": m.CreatedAt.UTC().Format(time.RFC3339),
	}
	body := fmt.Sprintf("Sandbox for task %s, role %s, owned by %s.\n", m.TaskID, m.Role, m.Agent)
	doc := &marshal.Document{Frontmatter: fm, Body: body}
	rendered, err := marshal.Render(doc)
	if err != nil {
		return core.IoError(err, "render sandbox manifest for %s", path)
	}
	if err := os.WriteFile(filepath.Join(path, manifestFilename), rendered, 0o644); err != nil {
		return core.IoError(err, "write sandbox manifest for %s", path)
	}
	return nil
}

// ReadManifest parses a SANDBOX.md written by WriteManifest back into its
// frontmatter fields.
func ReadManifest(path string) (*SandboxManifest, error) {
	raw, err := os.ReadFile(filepath.Join(path, manifestFilename))
	if err != nil {
		return nil, core.IoError(err, "read sandbox manifest for %s", path)
	}
	doc, err := marshal.Parse(raw)
	if err != nil {
		return nil, core.IoError(err, "parse sandbox manifest for %s", path)
	}
	m := &SandboxManifest{
		TaskID: stringField(doc.Frontmatter, "task_id"),
		Branch: stringField(doc.Frontmatter, "branch"),
		Agent:  stringField(doc.Frontmatter, "agent"),
		Role:   stringField(doc.Frontmatter, "role"),
	}
	if ts := stringField(doc.Frontmatter, "created_at"); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			m.CreatedAt = parsed
		}
	}
	return m, nil
}

func stringField(fm map[string]any, key string) string {
	v, ok := fm[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// MergeAndCleanup checks out targetBranch in the main repo, performs a
// no-fast-forward merge of branch with a stock message, removes the
// worktree, deletes branch, and returns the new commit id (spec §4.5).
func (w *WorktreeManager) MergeAndCleanup(ctx context.Context, dirName, branch, targetBranch string) (string, error) {
	if _, err := w.run(ctx, "checkout", targetBranch); err != nil {
		return "", err
	}
	msg := fmt.Sprintf("Merge branch '%s'", branch)
	if _, err := w.run(ctx, "merge", "--no-ff", "-m", msg, branch); err != nil {
		return "", err
	}

	out, err := w.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	commitID := firstLine(out)

	if err := w.removeWorktreeAndBranch(ctx, dirName, branch); err != nil {
		return commitID, err
	}
	return commitID, nil
}

// ForceCleanup removes the worktree and branch without merging (spec
// §4.5).
func (w *WorktreeManager) ForceCleanup(ctx context.Context, dirName, branch string) error {
	return w.removeWorktreeAndBranch(ctx, dirName, branch)
}

func (w *WorktreeManager) removeWorktreeAndBranch(ctx context.Context, dirName, branch string) error {
	path := w.sandboxPath(dirName)
	if _, err := w.run(ctx, "worktree", "remove", "--force", path); err != nil {
		return err
	}
	if _, err := w.run(ctx, "branch", "-D", branch); err != nil {
		return err
	}
	return nil
}

func (w *WorktreeManager) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = w.repoRoot
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		w.log.Error().Strs("args", args).Str("stderr", stderr.String()).Err(err).Msg("git command failed")
		return "", core.GitError(err, "git %v: %s", args, stderr.String())
	}
	return stdout.String(), nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
