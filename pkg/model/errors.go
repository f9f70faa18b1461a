package model

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced synchronously to callers. Backend-originating
// failures are never surfaced this way; the monitor loop absorbs them into
// job state.
var (
	// ErrInvalidPayload marks a caller error at submit time. No job
	// record is created.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrNotFound is returned for an unknown job id.
	ErrNotFound = errors.New("job not found")

	// ErrStale is returned when a state-changing request raced a
	// concurrent monitor transition and its precondition no longer
	// holds. The caller should re-read the status and retry if the
	// request is still meaningful.
	ErrStale = errors.New("stale state precondition")

	// ErrTimeout is returned when WaitFor exceeded its bound. The job
	// itself is unaffected.
	ErrTimeout = errors.New("wait timed out")
)

// SchedulerFault reports an unrecoverable backend error. The affected job
// transitions to FAILED with the fault detail attached and is not retried.
type SchedulerFault struct {
	Op     string // backend operation that faulted (submit, poll, ...)
	Detail string
}

func (e *SchedulerFault) Error() string {
	return fmt.Sprintf("scheduler fault during %s: %s", e.Op, e.Detail)
}

// NewSchedulerFault builds a SchedulerFault with a formatted detail.
func NewSchedulerFault(op, format string, args ...any) *SchedulerFault {
	return &SchedulerFault{Op: op, Detail: fmt.Sprintf(format, args...)}
}
