package archive

import (
	"path/filepath"
	"testing"
	"time"
)

func TestListCommitsOnEmptyRepoReturnsEmpty(t *testing.T) {
	a := openTestArchive(t)
	commits, err := a.ListCommits(CommitFilter{}, 0)
	if err != nil {
		t.Fatalf("ListCommits: %v", err)
	}
	if len(commits) != 0 {
		t.Fatalf("len(commits) = %d, want 0 on empty repo", len(commits))
	}
}

func TestListCommitsRespectsLimit(t *testing.T) {
	a := openTestArchive(t)
	if err := a.EnsureProject("demo"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	rel := filepath.Join("projects", "demo", "a.md")
	if err := a.WriteAndStagePath(rel, []byte("v1")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := a.CommitPaths([]string{rel}, "feat: v1"); err != nil {
		t.Fatalf("commit v1: %v", err)
	}
	if err := a.WriteAndStagePath(rel, []byte("v2")); err != nil {
		t.Fatalf("write v2: %v", err)
	}
	if _, err := a.CommitPaths([]string{rel}, "feat: v2"); err != nil {
		t.Fatalf("commit v2: %v", err)
	}

	commits, err := a.ListCommits(CommitFilter{}, 2)
	if err != nil {
		t.Fatalf("ListCommits: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("len(commits) = %d, want 2", len(commits))
	}
	if commits[0].Message != "feat: v2" {
		t.Fatalf("commits[0].Message = %q, want newest-first", commits[0].Message)
	}
}

func TestCommitDetailsReportsAddedAndModified(t *testing.T) {
	a := openTestArchive(t)
	if err := a.EnsureProject("demo"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	rel := filepath.Join("projects", "demo", "a.md")
	if err := a.WriteAndStagePath(rel, []byte("v1")); err != nil {
		t.Fatalf("write: %v", err)
	}
	first, err := a.CommitPaths([]string{rel}, "feat: add a")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	details, err := a.CommitDetails(first.String())
	if err != nil {
		t.Fatalf("CommitDetails: %v", err)
	}
	if len(details.Added) != 1 || details.Added[0] != rel {
		t.Fatalf("Added = %v, want [%s]", details.Added, rel)
	}

	if err := a.WriteAndStagePath(rel, []byte("v2")); err != nil {
		t.Fatalf("write v2: %v", err)
	}
	second, err := a.CommitPaths([]string{rel}, "feat: update a")
	if err != nil {
		t.Fatalf("commit v2: %v", err)
	}
	details, err = a.CommitDetails(second.String())
	if err != nil {
		t.Fatalf("CommitDetails 2: %v", err)
	}
	if len(details.Modified) != 1 || details.Modified[0] != rel {
		t.Fatalf("Modified = %v, want [%s]", details.Modified, rel)
	}
	if len(details.Parents) != 1 {
		t.Fatalf("Parents = %v, want one parent", details.Parents)
	}
}

func TestCommitDetailsRejectsInvalidSHA(t *testing.T) {
	a := openTestArchive(t)
	if _, err := a.CommitDetails("not-a-sha"); err == nil {
		t.Fatal("expected error for invalid SHA")
	}
}

func TestListFilesAtOrdersDirectoriesFirst(t *testing.T) {
	a := openTestArchive(t)
	if err := a.EnsureProject("demo"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	if err := a.WriteAndStagePath(filepath.Join("projects", "demo", "zzz.md"), []byte("z")); err != nil {
		t.Fatalf("write zzz: %v", err)
	}
	if err := a.WriteAndStagePath(filepath.Join("projects", "demo", "messages", "a.md"), []byte("a")); err != nil {
		t.Fatalf("write messages/a: %v", err)
	}
	hash, err := a.CommitPaths([]string{
		filepath.Join("projects", "demo", "zzz.md"),
		filepath.Join("projects", "demo", "messages", "a.md"),
	}, "feat: seed tree")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	entries, err := a.ListFilesAt(hash.String(), "projects/demo")
	if err != nil {
		t.Fatalf("ListFilesAt: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected entries")
	}
	if !entries[0].IsDir {
		t.Fatalf("entries[0] = %+v, want a directory first", entries[0])
	}
}

func TestFileContentAtRejectsPathTraversal(t *testing.T) {
	a := openTestArchive(t)
	if err := a.EnsureProject("demo"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	rel := filepath.Join("projects", "demo", "a.md")
	if err := a.WriteAndStagePath(rel, []byte("v1")); err != nil {
		t.Fatalf("write: %v", err)
	}
	hash, err := a.CommitPaths([]string{rel}, "feat: add a")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, _, err := a.FileContentAt(hash.String(), "../escape.md"); err == nil {
		t.Fatal("expected path traversal to be rejected")
	}
}

func TestFileHistoryTracksAllRevisions(t *testing.T) {
	a := openTestArchive(t)
	if err := a.EnsureProject("demo"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	rel := filepath.Join("projects", "demo", "a.md")
	for i := 0; i < 3; i++ {
		if err := a.WriteAndStagePath(rel, []byte{byte('a' + i)}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if _, err := a.CommitPaths([]string{rel}, "feat: revision"); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}

	history, err := a.FileHistory(rel, 0)
	if err != nil {
		t.Fatalf("FileHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("len(history) = %d, want 3", len(history))
	}
}

func TestActivityTimelineOnEmptyRepoReturnsEmpty(t *testing.T) {
	a := openTestArchive(t)
	tl, err := a.ActivityTimeline(time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ActivityTimeline: %v", err)
	}
	if len(tl.ByDay) != 0 || len(tl.ByAuthor) != 0 {
		t.Fatalf("tl = %+v, want empty", tl)
	}
}

func TestActivityTimelineRoutesThroughEnabledCacheAndInvalidatesOnCommit(t *testing.T) {
	a := openTestArchive(t)
	a.EnableTimelineCache(time.Minute, 10)
	defer a.Close()

	if err := a.EnsureProject("demo"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}

	since := time.Now().Add(-time.Hour)
	until := time.Now().Add(time.Hour)

	first, err := a.ActivityTimeline(since, until)
	if err != nil {
		t.Fatalf("ActivityTimeline: %v", err)
	}
	firstTotal := 0
	for _, n := range first.ByDay {
		firstTotal += n
	}

	if err := a.WriteAndStagePath("projects/demo/agents.md", []byte("v1")); err != nil {
		t.Fatalf("WriteAndStagePath: %v", err)
	}
	if _, err := a.CommitPaths([]string{"projects/demo/agents.md"}, "chore: second commit"); err != nil {
		t.Fatalf("CommitPaths: %v", err)
	}

	// CommitPaths must have invalidated the cache populated above, so this
	// call recomputes rather than returning the stale pre-commit result.
	second, err := a.ActivityTimeline(since, until)
	if err != nil {
		t.Fatalf("ActivityTimeline after commit: %v", err)
	}
	secondTotal := 0
	for _, n := range second.ByDay {
		secondTotal += n
	}
	if secondTotal <= firstTotal {
		t.Fatalf("ActivityTimeline after commit should reflect the new commit: got %d, want > %d", secondTotal, firstTotal)
	}
}
