package model

import (
	"fmt"
	"time"
)

// Payload describes one unit of scheduled work: a materialized simulation
// case directory plus the submission script that evaluates it. The payload
// is owned by the Job and is never mutated after creation; its contents are
// opaque to the scheduling core and passed through to the backend.
type Payload struct {
	// CaseDir is the absolute path of the case directory the job runs in.
	CaseDir string `json:"case_dir"`

	// Script is the submission script, relative to CaseDir.
	// Defaults to "Allrun" when empty.
	Script string `json:"script,omitempty"`

	// Args are additional key/value arguments passed to the script.
	Args map[string]string `json:"args,omitempty"`

	// Resources is an opaque resource request forwarded to the backend
	// (queue name, core count, ...). The core never interprets it.
	Resources map[string]string `json:"resources,omitempty"`
}

// DefaultScript is the conventional case submission script name.
const DefaultScript = "Allrun"

// ScriptName returns the submission script name, applying the default.
func (p Payload) ScriptName() string {
	if p.Script == "" {
		return DefaultScript
	}
	return p.Script
}

// Validate checks the payload for caller errors. Failures wrap
// ErrInvalidPayload so callers can test with errors.Is.
func (p Payload) Validate() error {
	if p.CaseDir == "" {
		return fmt.Errorf("%w: case_dir is required", ErrInvalidPayload)
	}
	return nil
}

// Job is the persisted record for one submitted unit of work.
//
// Handle is set exactly once, at the PENDING -> SUBMITTED transition, and
// never cleared. A job in a terminal state is immutable.
type Job struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Handle  string   `json:"handle,omitempty"`
	State   JobState `json:"state"`
	Payload Payload  `json:"payload"`

	// Attempts counts actual submission calls made to the backend.
	Attempts    int `json:"attempts"`
	MaxAttempts int `json:"max_attempts"`

	// Fault carries the detail of an unrecoverable scheduler error when
	// the job failed fatally.
	Fault string `json:"fault,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
}
