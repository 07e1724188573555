// Package recovery implements RecoverySweeper (spec §4.6): detection of
// stalled threads and conflicted worktree sandboxes. It never mutates
// state (spec §7: "it does not mutate state").
package recovery

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/agentmail/coordinator/internal/core"
	"github.com/agentmail/coordinator/internal/coordination"
	"github.com/agentmail/coordinator/internal/review"
)

// AbandonedTask is one thread reported by FindAbandonedTasks or
// FindAbandonedReviews.
type AbandonedTask struct {
	ThreadID    string
	State       review.State
	WorkerName  string
	LastActive  time.Time
}

var timeNow = func() time.Time { return time.Now().UTC() }

// Sweeper is RecoverySweeper.
type Sweeper struct {
	coord *coordination.Store
}

// New wires a RecoverySweeper to the shared CoordinationStore.
func New(coord *coordination.Store) *Sweeper {
	return &Sweeper{coord: coord}
}

// FindAbandonedTasks iterates project's threads; for each, computes the
// current state and reports it if the state is Started or Reviewing and
// the last message predates now-staleness (spec §4.6).
func (s *Sweeper) FindAbandonedTasks(ctx context.Context, projectID core.ProjectId, staleness time.Duration) ([]AbandonedTask, error) {
	threads, err := s.coord.ListThreads(ctx, projectID, 0)
	if err != nil {
		return nil, err
	}

	cutoff := timeNow().Add(-staleness)
	var out []AbandonedTask
	for _, t := range threads {
		messages, err := s.coord.ListByThread(ctx, projectID, t.ThreadID)
		if err != nil {
			return nil, err
		}
		if len(messages) == 0 {
			continue
		}

		state := threadState(messages)
		if state != review.StateStarted && state != review.StateReviewing {
			continue
		}

		last := messages[len(messages)-1]
		if !last.CreatedTS.Before(cutoff) {
			continue
		}

		worker, err := s.coord.GetAgent(ctx, last.SenderAgentID)
		name := "unknown"
		if err == nil {
			name = worker.Name
		}
		out = append(out, AbandonedTask{ThreadID: t.ThreadID, State: state, WorkerName: name, LastActive: last.CreatedTS})
	}
	return out, nil
}

// FindAbandonedReviews is FindAbandonedTasks restricted to the Reviewing
// state, extracting the reviewer from the most recent [REVIEWING] message
// rather than the thread's overall last sender (spec §4.6).
func (s *Sweeper) FindAbandonedReviews(ctx context.Context, projectID core.ProjectId, staleness time.Duration) ([]AbandonedTask, error) {
	threads, err := s.coord.ListThreads(ctx, projectID, 0)
	if err != nil {
		return nil, err
	}

	cutoff := timeNow().Add(-staleness)
	var out []AbandonedTask
	for _, t := range threads {
		messages, err := s.coord.ListByThread(ctx, projectID, t.ThreadID)
		if err != nil {
			return nil, err
		}
		if len(messages) == 0 {
			continue
		}
		if threadState(messages) != review.StateReviewing {
			continue
		}

		var reviewingMsg *coordination.Message
		for i := len(messages) - 1; i >= 0; i-- {
			if st, ok := review.FromSubject(messages[i].Subject); ok && st == review.StateReviewing {
				reviewingMsg = &messages[i]
				break
			}
		}
		if reviewingMsg == nil {
			continue
		}
		if !reviewingMsg.CreatedTS.Before(cutoff) {
			continue
		}

		reviewer, err := s.coord.GetAgent(ctx, reviewingMsg.SenderAgentID)
		name := "unknown"
		if err == nil {
			name = reviewer.Name
		}
		out = append(out, AbandonedTask{ThreadID: t.ThreadID, State: review.StateReviewing, WorkerName: name, LastActive: reviewingMsg.CreatedTS})
	}
	return out, nil
}

// threadState computes a thread's state from its oldest-first messages by
// reusing review.ParseThreadState, which expects newest-first input.
func threadState(messagesOldestFirst []coordination.Message) review.State {
	reversed := make([]review.ThreadMessage, len(messagesOldestFirst))
	n := len(messagesOldestFirst)
	for i, m := range messagesOldestFirst {
		reversed[n-1-i] = review.ThreadMessage{Subject: m.Subject}
	}
	return review.ParseThreadState(reversed)
}

// WorktreeConflict names a sandbox directory whose merge left conflict
// markers behind.
type WorktreeConflict struct {
	Path string
}

// CheckWorktreeConflicts lists the sandbox directories under basePath and
// flags those whose .git/MERGE_HEAD exists (spec §4.6).
func CheckWorktreeConflicts(basePath string) ([]WorktreeConflict, error) {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, core.IoError(err, "read sandboxes directory %s", basePath)
	}

	var out []WorktreeConflict
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		mergeHead := filepath.Join(basePath, e.Name(), ".git", "MERGE_HEAD")
		if _, err := os.Stat(mergeHead); err == nil {
			out = append(out, WorktreeConflict{Path: filepath.Join(basePath, e.Name())})
		}
	}
	return out, nil
}
