// Package review implements ReviewStateMachine, WorktreeManager, and
// QualityGateRunner (spec §4.5): the subject-prefix workflow state
// machine, isolated git worktree sandboxes, and the external quality-gate
// process runner.
package review

import "strings"

// State is the tagged variant for a thread's workflow state (spec §9:
// "represent the state as an enum with an explicit from_subject parser;
// the subject-prefix convention is an on-wire encoding, not the in-memory
// representation").
type State string

const (
	StateStarted      State = "started"
	StateCompleted    State = "completed"
	StateReviewing    State = "reviewing"
	StateApproved     State = "approved"
	StateRejected     State = "rejected"
	StateFixed        State = "fixed"
	StateAcknowledged State = "acknowledged"
)

// subjectPrefixes maps each recognized case-insensitive subject prefix to
// its State (spec §4.5).
var subjectPrefixes = []struct {
	prefix string
	state  State
}{
	{"[TASK_STARTED]", StateStarted},
	{"[COMPLETION]", StateCompleted},
	{"[REVIEWING]", StateReviewing},
	{"[APPROVED]", StateApproved},
	{"[REJECTED]", StateRejected},
	{"[FIXED]", StateFixed},
	{"[ACK]", StateAcknowledged},
}

// transitions is the allowed transition table (spec §4.5).
var transitions = map[State]map[State]bool{
	StateStarted:   {StateCompleted: true},
	StateCompleted: {StateReviewing: true, StateApproved: true, StateRejected: true, StateAcknowledged: true},
	StateReviewing: {StateApproved: true, StateRejected: true},
	StateRejected:  {StateFixed: true},
	StateFixed:     {StateReviewing: true, StateApproved: true, StateRejected: true},
	StateApproved:  {StateAcknowledged: true},
}

// CanTransitionTo reports whether s -> next is an allowed transition.
func (s State) CanTransitionTo(next State) bool {
	return transitions[s][next]
}

// FromSubject returns the State recognized from subject's prefix, and
// whether a recognized prefix was found.
func FromSubject(subject string) (State, bool) {
	trimmed := strings.TrimSpace(subject)
	upper := strings.ToUpper(trimmed)
	for _, sp := range subjectPrefixes {
		if strings.HasPrefix(upper, sp.prefix) {
			return sp.state, true
		}
	}
	return "", false
}

// ThreadMessage is the minimal view of a message ParseThreadState needs:
// its subject and its position in time (callers pass messages already
// sorted newest-first).
type ThreadMessage struct {
	Subject   string
	CreatedTS int64 // unix seconds; used only for caller-side sorting, not here
}

// ParseThreadState walks messages from newest to oldest (messages must
// already be ordered newest-first) and returns the first recognized
// state, or StateStarted if none is present (spec §4.5).
func ParseThreadState(messages []ThreadMessage) State {
	for _, m := range messages {
		if s, ok := FromSubject(m.Subject); ok {
			return s
		}
	}
	return StateStarted
}

// TransitionWarning is returned by ValidateTransitionSequence for each
// observed transition spec §8 calls an "invalid-sequence warning" — these
// are surfaced but never reject the replay (spec §3: "violators must be
// surfaced but not rejected; they may be historical").
type TransitionWarning struct {
	From, To State
	Index    int // position of the newer message in the oldest-first input
}

// ValidateTransitionSequence walks messages oldest-first and reports every
// adjacent pair that is not an allowed transition.
func ValidateTransitionSequence(messagesOldestFirst []string) []TransitionWarning {
	var warnings []TransitionWarning
	var prev State
	havePrev := false
	for i, subject := range messagesOldestFirst {
		s, ok := FromSubject(subject)
		if !ok {
			continue
		}
		if havePrev && !prev.CanTransitionTo(s) {
			warnings = append(warnings, TransitionWarning{From: prev, To: s, Index: i})
		}
		prev = s
		havePrev = true
	}
	return warnings
}
