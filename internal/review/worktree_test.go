package review

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	run("add", ".")
	run("commit", "-m", "initial")
	return dir
}

func TestWorktreeManagerCreateWritesManifestAndMerges(t *testing.T) {
	repoRoot := initTestRepo(t)
	w := NewWorktreeManager(repoRoot, zerolog.Nop())

	dirName, branch := WorkerWorktree("task-1")
	path, err := w.Create(context.Background(), dirName, branch)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	manifest := SandboxManifest{
		TaskID:    "task-1",
		Branch:    branch,
		Agent:     "worker-agent",
		Role:      "worker",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := WriteManifest(path, manifest); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	got, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if got.TaskID != manifest.TaskID || got.Branch != manifest.Branch || got.Agent != manifest.Agent || got.Role != manifest.Role {
		t.Fatalf("ReadManifest = %+v, want %+v", *got, manifest)
	}
	if !got.CreatedAt.Equal(manifest.CreatedAt) {
		t.Fatalf("CreatedAt = %v, want %v", got.CreatedAt, manifest.CreatedAt)
	}

	if err := os.WriteFile(filepath.Join(path, "change.txt"), []byte("work\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	addCmd := exec.Command("git", "add", ".")
	addCmd.Dir = path
	if out, err := addCmd.CombinedOutput(); err != nil {
		t.Fatalf("git add: %v\n%s", err, out)
	}
	commitCmd := exec.Command("git", "commit", "-m", "worker change")
	commitCmd.Dir = path
	if out, err := commitCmd.CombinedOutput(); err != nil {
		t.Fatalf("git commit: %v\n%s", err, out)
	}

	commitID, err := w.MergeAndCleanup(context.Background(), dirName, branch, "master")
	if err != nil {
		// Repos initialized with newer git default to "main"; retry once.
		commitID, err = w.MergeAndCleanup(context.Background(), dirName, branch, "main")
		if err != nil {
			t.Fatalf("MergeAndCleanup: %v", err)
		}
	}
	if commitID == "" {
		t.Fatal("MergeAndCleanup returned empty commit id")
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected worktree %s to be removed, stat err = %v", path, err)
	}
}

func TestReadManifestMissingFileReturnsIoError(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadManifest(dir); err == nil {
		t.Fatal("expected error reading missing manifest")
	}
}
