package reservation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentmail/coordinator/internal/core"
	"github.com/agentmail/coordinator/internal/db"
)

func newTestEngine(t *testing.T) (*Engine, core.ProjectId, core.AgentId, core.AgentId) {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	var projectID int64

	// Seed a project and two agents directly since reservation.Engine only
	// needs foreign ids to exist for the query shape, not full
	// coordination semantics.
	res, err := store.DB().ExecContext(ctx, "INSERT INTO projects(slug, human_key, created_at) VALUES (?, ?, ?)", "p1", "Project One", db.FormatTime(time.Now()))
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}
	projectID, _ = res.LastInsertId()

	agentID := func(name string) core.AgentId {
		r, err := store.DB().ExecContext(ctx, "INSERT INTO agents(project_id, name, inception_ts, last_active_ts) VALUES (?, ?, ?, ?)",
			projectID, name, db.FormatTime(time.Now()), db.FormatTime(time.Now()))
		if err != nil {
			t.Fatalf("seed agent %s: %v", name, err)
		}
		id, _ := r.LastInsertId()
		return core.AgentId(id)
	}

	alice := agentID("alice")
	bob := agentID("bob")

	return New(store), core.ProjectId(projectID), alice, bob
}

func TestAcquireReportsConflictWithOverlappingExclusive(t *testing.T) {
	ctx := context.Background()
	eng, projectID, alice, bob := newTestEngine(t)

	if _, err := eng.Acquire(ctx, projectID, alice, "src/**", true, "refactor", time.Hour); err != nil {
		t.Fatalf("alice Acquire: %v", err)
	}

	result, err := eng.Acquire(ctx, projectID, bob, "src/foo.rs", true, "fix bug", time.Hour)
	if err != nil {
		t.Fatalf("bob Acquire: %v", err)
	}
	if len(result.Conflicts) != 1 {
		t.Fatalf("len(conflicts) = %d, want 1", len(result.Conflicts))
	}
	if result.Conflicts[0].PathPattern != "src/**" {
		t.Fatalf("conflict pattern = %q, want src/**", result.Conflicts[0].PathPattern)
	}
}

func TestAcquireNoConflictForDifferentAgentsNonOverlapping(t *testing.T) {
	ctx := context.Background()
	eng, projectID, alice, bob := newTestEngine(t)

	if _, err := eng.Acquire(ctx, projectID, alice, "src/a.rs", true, "", time.Hour); err != nil {
		t.Fatalf("alice Acquire: %v", err)
	}
	result, err := eng.Acquire(ctx, projectID, bob, "src/b.rs", true, "", time.Hour)
	if err != nil {
		t.Fatalf("bob Acquire: %v", err)
	}
	if len(result.Conflicts) != 0 {
		t.Fatalf("conflicts = %v, want none", result.Conflicts)
	}
}

func TestOverlapsIsSymmetricAndReflexive(t *testing.T) {
	cases := []struct{ a, b string }{
		{"src/**", "src/foo.rs"},
		{"src/*.rs", "src/foo.rs"},
		{"src/**", "src/nested/**"},
		{"a.rs", "a.rs"},
		{"a.rs", "b.rs"},
	}
	for _, c := range cases {
		if Overlaps(c.a, c.b) != Overlaps(c.b, c.a) {
			t.Fatalf("Overlaps(%q,%q) != Overlaps(%q,%q)", c.a, c.b, c.b, c.a)
		}
	}
	if !Overlaps("src/foo.rs", "src/foo.rs") {
		t.Fatal("a pattern must overlap itself")
	}
}

func TestReleaseByPathRemovesReservation(t *testing.T) {
	ctx := context.Background()
	eng, projectID, alice, _ := newTestEngine(t)

	result, err := eng.Acquire(ctx, projectID, alice, "src/a.rs", true, "", time.Hour)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	id, found, err := eng.ReleaseByPath(ctx, projectID, alice, "src/a.rs")
	if err != nil {
		t.Fatalf("ReleaseByPath: %v", err)
	}
	if !found || id != result.Granted.ID {
		t.Fatalf("ReleaseByPath found=%v id=%v, want true %v", found, id, result.Granted.ID)
	}

	active, err := eng.ListActiveForProject(ctx, projectID)
	if err != nil {
		t.Fatalf("ListActiveForProject: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("active = %v, want empty after release", active)
	}
}

func TestRenewExtendsExpiry(t *testing.T) {
	ctx := context.Background()
	eng, projectID, alice, _ := newTestEngine(t)

	result, err := eng.Acquire(ctx, projectID, alice, "src/a.rs", true, "", time.Millisecond)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	found, err := eng.Renew(ctx, result.Granted.ID, time.Hour)
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if !found {
		t.Fatal("Renew reported not found")
	}

	active, err := eng.ListActiveForProject(ctx, projectID)
	if err != nil {
		t.Fatalf("ListActiveForProject: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active = %v, want 1 after renew", active)
	}
}

func TestRenewMissingIDReturnsNotFoundResult(t *testing.T) {
	ctx := context.Background()
	eng, _, _, _ := newTestEngine(t)

	found, err := eng.Renew(ctx, core.ReservationId(9999), time.Hour)
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if found {
		t.Fatal("expected not found for missing reservation id")
	}
}
