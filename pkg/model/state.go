package model

// JobState represents the lifecycle state of a Job.
type JobState string

const (
	JobStatePending   JobState = "PENDING"
	JobStateSubmitted JobState = "SUBMITTED"
	JobStateRunning   JobState = "RUNNING"
	JobStateSucceeded JobState = "SUCCEEDED"
	JobStateFailed    JobState = "FAILED"
	JobStateCancelled JobState = "CANCELLED"
)

// String returns the string representation of the job state.
func (s JobState) String() string {
	return string(s)
}

// IsTerminal returns true if the job is in a final state.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

// ValidJobTransitions defines the allowed state transitions for Jobs.
// Transitions are monotonic: a job never re-enters a state it has left.
var ValidJobTransitions = map[JobState][]JobState{
	JobStatePending:   {JobStateSubmitted, JobStateFailed, JobStateCancelled},
	JobStateSubmitted: {JobStateRunning, JobStateSucceeded, JobStateFailed, JobStateCancelled},
	JobStateRunning:   {JobStateSucceeded, JobStateFailed, JobStateCancelled},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s JobState) CanTransitionTo(next JobState) bool {
	for _, allowed := range ValidJobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
