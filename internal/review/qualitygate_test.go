package review

import (
	"context"
	"testing"
	"time"
)

func TestRunAllReportsPassAndFail(t *testing.T) {
	runner := NewQualityGateRunner(5 * time.Second)
	gates := []Gate{
		{Name: "typecheck", Args: []string{"true"}},
		{Name: "lint", Args: []string{"false"}},
	}

	results := runner.RunAll(context.Background(), gates, false)
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if !results[0].Passed {
		t.Fatalf("typecheck should pass: %+v", results[0])
	}
	if results[1].Passed {
		t.Fatalf("lint should fail: %+v", results[1])
	}
	if AllPassed(results) {
		t.Fatal("AllPassed should be false when one gate fails")
	}
}

func TestRunAllSkipsTestsInBlockingOnlyMode(t *testing.T) {
	runner := NewQualityGateRunner(5 * time.Second)
	gates := []Gate{
		{Name: "typecheck", Args: []string{"true"}},
		{Name: "tests", Args: []string{"true"}},
	}

	results := runner.RunAll(context.Background(), gates, true)
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1 (tests skipped)", len(results))
	}
	if results[0].Name != "typecheck" {
		t.Fatalf("results[0].Name = %q, want typecheck", results[0].Name)
	}
}

func TestRunOneToleratesSpawnFailure(t *testing.T) {
	runner := NewQualityGateRunner(5 * time.Second)
	results := runner.RunAll(context.Background(), []Gate{
		{Name: "missing-binary", Args: []string{"/nonexistent/binary/path"}},
	}, false)

	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Passed {
		t.Fatal("spawn failure should not count as passed")
	}
	if results[0].ExitCode != -1 {
		t.Fatalf("ExitCode = %d, want -1", results[0].ExitCode)
	}
}
