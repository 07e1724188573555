package coordination

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/agentmail/coordinator/internal/archive"
	"github.com/agentmail/coordinator/internal/core"
	"github.com/agentmail/coordinator/internal/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbStore, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { dbStore.Close() })

	arc, err := archive.Open(t.TempDir(), "Test Bot", "test@example.com", zerolog.Nop())
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}

	return New(dbStore, arc, zerolog.Nop())
}

func TestSendAndReceive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	project, err := s.CreateProject(ctx, "p1", "Project One")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	alice, err := s.CreateAgent(ctx, project.ID, "alice", "", "", "")
	if err != nil {
		t.Fatalf("CreateAgent alice: %v", err)
	}
	bob, err := s.CreateAgent(ctx, project.ID, "bob", "", "", "")
	if err != nil {
		t.Fatalf("CreateAgent bob: %v", err)
	}

	_, err = s.Send(ctx, project.ID, SendInput{
		SenderAgentID: alice.ID,
		Subject:       "Hello",
		BodyMD:        "Hi there",
		To:            []core.AgentId{bob.ID},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	inbox, err := s.ListInboxForAgent(ctx, project.ID, bob.ID, 10)
	if err != nil {
		t.Fatalf("ListInboxForAgent: %v", err)
	}
	if len(inbox) != 1 {
		t.Fatalf("len(inbox) = %d, want 1", len(inbox))
	}
	if inbox[0].Message.Subject != "Hello" || inbox[0].SenderName != "alice" {
		t.Fatalf("inbox[0] = %+v, want subject=Hello sender=alice", inbox[0])
	}
}

func TestSendCcBccVisibility(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	project, _ := s.CreateProject(ctx, "p1", "Project One")
	alice, _ := s.CreateAgent(ctx, project.ID, "alice", "", "", "")
	bob, _ := s.CreateAgent(ctx, project.ID, "bob", "", "", "")
	carol, _ := s.CreateAgent(ctx, project.ID, "carol", "", "", "")
	dave, _ := s.CreateAgent(ctx, project.ID, "dave", "", "", "")

	_, err := s.Send(ctx, project.ID, SendInput{
		SenderAgentID: alice.ID,
		Subject:       "Status",
		BodyMD:        "update",
		To:            []core.AgentId{bob.ID},
		Cc:            []core.AgentId{carol.ID},
		Bcc:           []core.AgentId{dave.ID},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	for _, recipient := range []core.AgentId{bob.ID, carol.ID, dave.ID} {
		inbox, err := s.ListInboxForAgent(ctx, project.ID, recipient, 10)
		if err != nil {
			t.Fatalf("ListInboxForAgent: %v", err)
		}
		if len(inbox) != 1 {
			t.Fatalf("recipient %d: len(inbox) = %d, want 1", recipient, len(inbox))
		}
	}

	var count int
	row := s.db.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM message_recipients")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count recipients: %v", err)
	}
	if count != 3 {
		t.Fatalf("recipient rows = %d, want 3", count)
	}
}

func TestSendDefaultsEmptyImportanceConsistentlyAcrossDBAndArchive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	project, _ := s.CreateProject(ctx, "p1", "Project One")
	alice, _ := s.CreateAgent(ctx, project.ID, "alice", "", "", "")
	bob, _ := s.CreateAgent(ctx, project.ID, "bob", "", "", "")

	messageID, err := s.Send(ctx, project.ID, SendInput{
		SenderAgentID: alice.ID,
		Subject:       "No importance set",
		BodyMD:        "body",
		To:            []core.AgentId{bob.ID},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	var dbImportance string
	row := s.db.DB().QueryRowContext(ctx, "SELECT importance FROM messages WHERE id = ?", int64(messageID))
	if err := row.Scan(&dbImportance); err != nil {
		t.Fatalf("scan importance: %v", err)
	}
	if dbImportance != string(core.ImportanceNormal) {
		t.Fatalf("db importance = %q, want %q", dbImportance, core.ImportanceNormal)
	}

	inbox, err := s.ListInboxForAgent(ctx, project.ID, bob.ID, 10)
	if err != nil {
		t.Fatalf("ListInboxForAgent: %v", err)
	}
	if len(inbox) != 1 {
		t.Fatalf("len(inbox) = %d, want 1", len(inbox))
	}

	canonical, _, _ := archive.MessagePaths(project.Slug, inbox[0].Message.CreatedTS, inbox[0].Message.Subject, int64(messageID), "alice", []string{"bob"})
	raw, err := os.ReadFile(filepath.Join(s.archive.Root(), canonical))
	if err != nil {
		t.Fatalf("read archived message document: %v", err)
	}
	fm, _, err := archive.ParseMessageDocument(raw)
	if err != nil {
		t.Fatalf("ParseMessageDocument: %v", err)
	}
	if fm.Importance != string(core.ImportanceNormal) {
		t.Fatalf("archived document importance = %q, want %q", fm.Importance, core.ImportanceNormal)
	}
}

func TestMarkReadAndAcknowledgeAreIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	project, _ := s.CreateProject(ctx, "p1", "Project One")
	alice, _ := s.CreateAgent(ctx, project.ID, "alice", "", "", "")
	bob, _ := s.CreateAgent(ctx, project.ID, "bob", "", "", "")

	msgID, err := s.Send(ctx, project.ID, SendInput{SenderAgentID: alice.ID, Subject: "Hi", BodyMD: "body", To: []core.AgentId{bob.ID}})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := s.Acknowledge(ctx, msgID, bob.ID); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if err := s.Acknowledge(ctx, msgID, bob.ID); err != nil {
		t.Fatalf("second Acknowledge: %v", err)
	}

	inbox, err := s.ListInboxForAgent(ctx, project.ID, bob.ID, 10)
	if err != nil {
		t.Fatalf("ListInboxForAgent: %v", err)
	}
	if inbox[0].ReadTS == nil || inbox[0].AckTS == nil {
		t.Fatalf("inbox[0] = %+v, want both read_ts and ack_ts set", inbox[0])
	}
}

func TestSearchFindsAndMisses(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	project, _ := s.CreateProject(ctx, "p1", "Project One")
	alice, _ := s.CreateAgent(ctx, project.ID, "alice", "", "", "")
	bob, _ := s.CreateAgent(ctx, project.ID, "bob", "", "", "")

	for i := 0; i < 2; i++ {
		if _, err := s.Send(ctx, project.ID, SendInput{
			SenderAgentID: alice.ID, Subject: "Note", BodyMD: "contains UNIQUESEARCHTERM here", To: []core.AgentId{bob.ID},
		}); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	hits, err := s.Search(ctx, project.ID, "UNIQUESEARCHTERM", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("len(hits) = %d, want 2", len(hits))
	}

	misses, err := s.Search(ctx, project.ID, "NONEXISTENT_QUERY_12345", 10)
	if err != nil {
		t.Fatalf("Search miss: %v", err)
	}
	if len(misses) != 0 {
		t.Fatalf("len(misses) = %d, want 0", len(misses))
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	project, _ := s.CreateProject(ctx, "p1", "Project One")
	alice, _ := s.CreateAgent(ctx, project.ID, "alice", "", "", "")
	bob, _ := s.CreateAgent(ctx, project.ID, "bob", "", "", "")
	if _, err := s.Send(ctx, project.ID, SendInput{SenderAgentID: alice.ID, Subject: "Hi", BodyMD: "b", To: []core.AgentId{bob.ID}}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := s.DeleteProject(ctx, project.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}

	for _, table := range []string{"messages", "message_recipients", "agents", "macros", "projects"} {
		var count int
		row := s.db.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE 1=1")
		if err := row.Scan(&count); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if table == "projects" && count != 0 {
			t.Fatalf("projects count = %d, want 0", count)
		}
	}
}

func TestCreateProjectSeedsBuiltinMacros(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	project, err := s.CreateProject(ctx, "p1", "Project One")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	macros, err := s.ListMacros(ctx, project.ID)
	if err != nil {
		t.Fatalf("ListMacros: %v", err)
	}
	if len(macros) != len(builtinMacros) {
		t.Fatalf("len(macros) = %d, want %d", len(macros), len(builtinMacros))
	}
}

func TestFindProjectNotFoundIncludesSuggestions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.CreateProject(ctx, "my-project", "My Project"); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	_, err := s.FindProject(ctx, "my-projct")
	if err == nil {
		t.Fatal("expected not-found error")
	}
	if !core.IsKind(err, core.KindNotFound) {
		t.Fatalf("err kind = %v, want NotFound", err)
	}
	ce := err.(*core.Error)
	suggestions, ok := ce.Data["suggestions"].([]string)
	if !ok || len(suggestions) == 0 {
		t.Fatalf("expected near-match suggestions, got %v", ce.Data)
	}
}
