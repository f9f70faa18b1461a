package model

import "testing"

func TestJobState_IsTerminal(t *testing.T) {
	tests := []struct {
		state JobState
		want  bool
	}{
		{JobStatePending, false},
		{JobStateSubmitted, false},
		{JobStateRunning, false},
		{JobStateSucceeded, true},
		{JobStateFailed, true},
		{JobStateCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestJobState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to JobState
		want     bool
	}{
		{JobStatePending, JobStateSubmitted, true},
		{JobStatePending, JobStateFailed, true},
		{JobStatePending, JobStateCancelled, true},
		{JobStatePending, JobStateRunning, false},
		{JobStatePending, JobStateSucceeded, false},
		{JobStateSubmitted, JobStateRunning, true},
		{JobStateSubmitted, JobStateSucceeded, true},
		{JobStateSubmitted, JobStateFailed, true},
		{JobStateSubmitted, JobStateCancelled, true},
		{JobStateSubmitted, JobStatePending, false}, // no regression
		{JobStateRunning, JobStateSucceeded, true},
		{JobStateRunning, JobStateFailed, true},
		{JobStateRunning, JobStateCancelled, true},
		{JobStateRunning, JobStateSubmitted, false}, // no regression
		{JobStateSucceeded, JobStateFailed, false},  // terminal is immutable
		{JobStateFailed, JobStatePending, false},
		{JobStateCancelled, JobStateRunning, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestJobState_TerminalHasNoOutgoingEdges(t *testing.T) {
	for from, targets := range ValidJobTransitions {
		if from.IsTerminal() && len(targets) > 0 {
			t.Errorf("terminal state %s has outgoing transitions %v", from, targets)
		}
	}
}
