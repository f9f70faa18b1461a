package model

import "time"

// CaseMetadata is the persisted per-case metadata record, stored as
// metadata.toml inside the case directory. The record is owned by the
// external case store; the manager writes status, success and finished_at
// back on terminal transitions so the on-disk case record and the job
// store never disagree about terminal outcome.
type CaseMetadata struct {
	Name       string     `toml:"name" json:"name"`
	ID         string     `toml:"id" json:"id"`
	Path       string     `toml:"path" json:"path"`
	Status     string     `toml:"status" json:"status"`
	Success    *bool      `toml:"success,omitempty" json:"success,omitempty"`
	CreatedAt  time.Time  `toml:"created_at" json:"created_at"`
	FinishedAt *time.Time `toml:"finished_at,omitempty" json:"finished_at,omitempty"`
}

// CaseStatusFor maps a terminal or submitted job state to the status string
// written into the case metadata record.
func CaseStatusFor(s JobState) string {
	switch s {
	case JobStateSubmitted:
		return "submitted"
	case JobStateRunning:
		return "running"
	case JobStateSucceeded:
		return "succeeded"
	case JobStateFailed:
		return "failed"
	case JobStateCancelled:
		return "cancelled"
	}
	return "not_submitted"
}
