package archive

import (
	"testing"
	"time"
)

func TestTimelineCacheReusesComputedWindow(t *testing.T) {
	a := openTestArchive(t)
	if err := a.EnsureProject("demo"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	if err := a.WriteAndStagePath("projects/demo/agents.md", []byte("v1")); err != nil {
		t.Fatalf("WriteAndStagePath: %v", err)
	}
	if _, err := a.CommitPaths([]string{"projects/demo/agents.md"}, "chore: initialize archive"); err != nil {
		t.Fatalf("CommitPaths: %v", err)
	}

	tc := NewTimelineCache(a, time.Minute, 10)
	defer tc.Stop()

	since := time.Now().Add(-time.Hour)
	until := time.Now().Add(time.Hour)

	first, err := tc.Get(since, until)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first == nil {
		t.Fatal("Get returned nil timeline")
	}

	// A second call with an identical window must hit the cache: mutate the
	// archive afterward and confirm the cached (stale) result is still
	// returned until Invalidate is called.
	if err := a.WriteAndStagePath("projects/demo/agents.md", []byte("v2")); err != nil {
		t.Fatalf("WriteAndStagePath second: %v", err)
	}
	if _, err := a.CommitPaths([]string{"projects/demo/agents.md"}, "chore: initialize archive"); err != nil {
		t.Fatalf("CommitPaths second: %v", err)
	}

	cached, err := tc.Get(since, until)
	if err != nil {
		t.Fatalf("Get (cached): %v", err)
	}
	totalBefore := 0
	for _, n := range first.ByDay {
		totalBefore += n
	}
	totalCached := 0
	for _, n := range cached.ByDay {
		totalCached += n
	}
	if totalCached != totalBefore {
		t.Fatalf("cached Get should not reflect the new commit: got %d commits, want %d", totalCached, totalBefore)
	}

	tc.Invalidate()
	fresh, err := tc.Get(since, until)
	if err != nil {
		t.Fatalf("Get (after invalidate): %v", err)
	}
	totalFresh := 0
	for _, n := range fresh.ByDay {
		totalFresh += n
	}
	if totalFresh <= totalCached {
		t.Fatalf("Get after Invalidate should reflect the new commit: got %d, want > %d", totalFresh, totalCached)
	}
}
