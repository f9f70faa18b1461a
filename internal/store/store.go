package store

import (
	"context"

	"github.com/me/flowsched/pkg/model"
)

// Store defines the durable persistence layer for job records.
//
// UpdateJob is a compare-and-swap: the write only applies when the job's
// persisted state still equals prev, and returns model.ErrStale otherwise.
// This is what resolves a caller's cancel racing a monitor transition.
type Store interface {
	// CreateJob inserts a new job record. Fails if the id exists.
	CreateJob(ctx context.Context, job *model.Job) error

	// GetJob returns the job with the given id, or nil if absent.
	GetJob(ctx context.Context, id string) (*model.Job, error)

	// UpdateJob persists the job atomically, guarded by the expected
	// prior state. Returns model.ErrStale when the precondition no
	// longer holds and model.ErrNotFound for an unknown id.
	UpdateJob(ctx context.Context, job *model.Job, prev model.JobState) error

	// DeleteJob evicts a job record. Only jobs in a terminal state may
	// be evicted; the core never garbage-collects history implicitly.
	DeleteJob(ctx context.Context, id string) error

	// ListJobs returns a page of jobs plus the total count.
	ListJobs(ctx context.Context, opts model.ListOptions) ([]*model.Job, int, error)

	// ListJobsByState enumerates jobs in any of the given states,
	// oldest first. Used by the monitor loop to select polling
	// candidates.
	ListJobsByState(ctx context.Context, states ...model.JobState) ([]*model.Job, error)

	// CountJobsByState returns the number of jobs per state. States
	// with no jobs are absent from the map.
	CountJobsByState(ctx context.Context) (map[model.JobState]int, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
