package archive

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(t.TempDir(), "Test Bot", "test@example.com", zerolog.Nop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return a
}

func TestEnsureProjectIsIdempotent(t *testing.T) {
	a := openTestArchive(t)

	if err := a.EnsureProject("demo"); err != nil {
		t.Fatalf("first EnsureProject: %v", err)
	}
	if err := a.EnsureProject("demo"); err != nil {
		t.Fatalf("second EnsureProject: %v", err)
	}

	commits, err := a.ListCommits(CommitFilter{}, 0)
	if err != nil {
		t.Fatalf("ListCommits: %v", err)
	}
	if len(commits) != 1 {
		t.Fatalf("len(commits) = %d, want 1 (second EnsureProject should be a no-op)", len(commits))
	}
}

func TestCommitAndReadRoundTrip(t *testing.T) {
	a := openTestArchive(t)
	if err := a.EnsureProject("demo"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}

	rel := filepath.Join("projects", "demo", "messages", "hello.md")
	if err := a.WriteAndStagePath(rel, []byte("hello world")); err != nil {
		t.Fatalf("WriteAndStagePath: %v", err)
	}
	hash, err := a.CommitPaths([]string{rel}, "feat: add hello")
	if err != nil {
		t.Fatalf("CommitPaths: %v", err)
	}

	content, ok, err := a.ReadFileAt(hash, rel)
	if err != nil {
		t.Fatalf("ReadFileAt: %v", err)
	}
	if !ok {
		t.Fatal("ReadFileAt reported file missing")
	}
	if string(content) != "hello world" {
		t.Fatalf("content = %q, want %q", content, "hello world")
	}

	_, ok, err = a.ReadFileAt(hash, "projects/demo/messages/missing.md")
	if err != nil {
		t.Fatalf("ReadFileAt missing file: %v", err)
	}
	if ok {
		t.Fatal("ReadFileAt reported a nonexistent file as present")
	}
}

func TestCommitPathsRejectsPathTraversal(t *testing.T) {
	a := openTestArchive(t)
	if _, err := a.CommitPaths([]string{"../escape.md"}, "evil"); err == nil {
		t.Fatal("expected path traversal to be rejected")
	}
}

func TestMessageDocumentRoundTrip(t *testing.T) {
	tid := "thread-1"
	fm := MessageFrontmatter{
		ID:         42,
		Project:    "demo",
		From:       "alice",
		To:         []string{"bob"},
		Subject:    "Status update",
		ThreadID:   &tid,
		Created:    "2026-07-30 12:00:00",
		Importance: "normal",
	}
	doc, err := RenderMessageDocument(fm, "Body text here.")
	if err != nil {
		t.Fatalf("RenderMessageDocument: %v", err)
	}

	parsedFm, body, err := ParseMessageDocument(doc)
	if err != nil {
		t.Fatalf("ParseMessageDocument: %v", err)
	}
	if parsedFm.Subject != fm.Subject || parsedFm.From != fm.From {
		t.Fatalf("parsed frontmatter = %+v, want matching %+v", parsedFm, fm)
	}
	if body != "Body text here." {
		t.Fatalf("body = %q, want %q", body, "Body text here.")
	}
}

func TestSlugifyTruncatesAndStripsPunctuation(t *testing.T) {
	got := slugify("  Hello, World!! This is a Test Subject With Many Words To Exceed Sixty Characters Total  ")
	if len(got) > 60 {
		t.Fatalf("len(slugify) = %d, want <= 60", len(got))
	}
	if got != "hello-world-this-is-a-test-subject-with-many-words-to-exceed" {
		t.Fatalf("slugify = %q", got)
	}
}
