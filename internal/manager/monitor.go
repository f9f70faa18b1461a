package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/me/flowsched/pkg/model"
)

// Tick runs one reconciliation pass: poll every job in flight, then submit
// due PENDING jobs. Polling first gives a freshly accepted handle a full
// interval before its first liveness probe (schedulers can take a moment to
// register a job) and lets finished jobs free slots for this tick's
// submissions. Ticks never overlap; a tick arriving while another is still
// running is skipped.
func (m *Manager) Tick(ctx context.Context) error {
	if !m.tickMu.TryLock() {
		m.logger.Debug("previous tick still running, skipping")
		return nil
	}
	defer m.tickMu.Unlock()

	if err := m.pollInFlight(ctx); err != nil {
		return fmt.Errorf("poll phase: %w", err)
	}
	if err := m.submitPending(ctx); err != nil {
		return fmt.Errorf("submit phase: %w", err)
	}
	return nil
}

// submitPending hands due PENDING jobs to the backend, oldest first,
// respecting the job limit and per-job retry backoff.
func (m *Manager) submitPending(ctx context.Context) error {
	pending, err := m.store.ListJobsByState(ctx, model.JobStatePending)
	if err != nil {
		return fmt.Errorf("list pending jobs: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slots := len(pending)
	if m.cfg.JobLimit > 0 {
		active, err := m.store.ListJobsByState(ctx, model.JobStateSubmitted, model.JobStateRunning)
		if err != nil {
			return fmt.Errorf("list active jobs: %w", err)
		}
		slots = m.cfg.JobLimit - len(active)
		if slots <= 0 {
			m.logger.Debug("job limit reached", "limit", m.cfg.JobLimit, "active", len(active))
			return nil
		}
	}

	if !m.backend.IsAvailable(ctx) {
		m.logger.Debug("backend unavailable, deferring submissions", "backend", m.backend.Name())
		return nil
	}

	now := time.Now().UTC()
	for _, job := range pending {
		if slots <= 0 {
			break
		}
		if job.NextAttemptAt != nil && job.NextAttemptAt.After(now) {
			continue
		}
		if m.submitOne(ctx, job) {
			slots--
		}
	}
	return nil
}

// submitOne makes one submission attempt for a PENDING job and persists the
// result. Reports whether the job now occupies an active slot.
func (m *Manager) submitOne(ctx context.Context, job *model.Job) bool {
	job.Attempts++

	handle, err := m.backend.Submit(ctx, job)
	if err != nil {
		var fault *model.SchedulerFault
		if errors.As(err, &fault) {
			m.failJob(ctx, job, model.JobStatePending, err.Error())
			return false
		}
		m.logger.Warn("submission attempt errored",
			"job_id", job.ID,
			"attempt", job.Attempts,
			"error", err)
		m.recordDecline(ctx, job)
		return false
	}

	if handle == "" {
		m.logger.Info("submission declined by backend",
			"job_id", job.ID,
			"attempt", job.Attempts,
			"max_attempts", job.MaxAttempts)
		m.recordDecline(ctx, job)
		return false
	}

	now := time.Now().UTC()
	job.Handle = handle
	job.State = model.JobStateSubmitted
	job.SubmittedAt = &now
	job.NextAttemptAt = nil

	if err := m.store.UpdateJob(ctx, job, model.JobStatePending); err != nil {
		// The job moved under us (most likely a concurrent cancel).
		// The backend already accepted the work, so release the handle
		// rather than leaving an orphan running.
		m.logger.Warn("submitted job moved concurrently, releasing handle",
			"job_id", job.ID,
			"handle", handle,
			"error", err)
		if _, cerr := m.backend.Cancel(ctx, handle); cerr != nil {
			m.logger.Error("orphan handle release failed", "handle", handle, "error", cerr)
		}
		return false
	}

	m.logger.Info("job submitted",
		"job_id", job.ID,
		"handle", handle,
		"attempt", job.Attempts)
	m.writeCaseRecord(job)
	return true
}

// recordDecline persists a failed submission attempt: either the job's
// attempt budget is exhausted and it fails, or it stays PENDING with a
// backoff before the next attempt.
func (m *Manager) recordDecline(ctx context.Context, job *model.Job) {
	if job.Attempts >= job.MaxAttempts {
		m.failJob(ctx, job, model.JobStatePending,
			fmt.Sprintf("submission declined %d times", job.Attempts))
		return
	}

	next := time.Now().UTC().Add(m.backoffAfter(job.Attempts))
	job.NextAttemptAt = &next
	if err := m.store.UpdateJob(ctx, job, model.JobStatePending); err != nil {
		m.logger.Warn("backoff update lost", "job_id", job.ID, "error", err)
	}
}

// backoffAfter returns the delay before the next attempt, doubling per
// decline from RetryBackoff up to RetryBackoffMax.
func (m *Manager) backoffAfter(attempts int) time.Duration {
	delay := m.cfg.RetryBackoff
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempts; i++ {
		delay *= 2
		if m.cfg.RetryBackoffMax > 0 && delay >= m.cfg.RetryBackoffMax {
			return m.cfg.RetryBackoffMax
		}
	}
	return delay
}

// pollInFlight probes every SUBMITTED and RUNNING job and applies the
// observed transitions. A transient probe failure leaves the job untouched
// for the next tick.
func (m *Manager) pollInFlight(ctx context.Context) error {
	jobs, err := m.store.ListJobsByState(ctx, model.JobStateSubmitted, model.JobStateRunning)
	if err != nil {
		return fmt.Errorf("list in-flight jobs: %w", err)
	}

	for _, job := range jobs {
		finished, err := m.backend.Finished(ctx, job.Handle)
		if err != nil {
			var fault *model.SchedulerFault
			if errors.As(err, &fault) {
				m.failJob(ctx, job, job.State, err.Error())
				continue
			}
			m.logger.Warn("liveness probe failed",
				"job_id", job.ID,
				"handle", job.Handle,
				"error", err)
			continue
		}

		if !finished {
			if job.State == model.JobStateSubmitted {
				m.markRunning(ctx, job)
			}
			continue
		}
		m.settleFinished(ctx, job)
	}
	return nil
}

// markRunning records the first observation of a live job.
func (m *Manager) markRunning(ctx context.Context, job *model.Job) {
	job.State = model.JobStateRunning
	if err := m.store.UpdateJob(ctx, job, model.JobStateSubmitted); err != nil {
		m.logger.Warn("running transition lost", "job_id", job.ID, "error", err)
		return
	}
	m.logger.Info("job running", "job_id", job.ID, "handle", job.Handle)
	m.writeCaseRecord(job)
}

// settleFinished resolves the outcome of a job that has left the scheduler
// and moves it to SUCCEEDED or FAILED.
func (m *Manager) settleFinished(ctx context.Context, job *model.Job) {
	prev := job.State

	ok, err := m.backend.Outcome(ctx, job)
	if err != nil {
		m.failJob(ctx, job, prev, fmt.Sprintf("outcome unavailable: %v", err))
		return
	}

	now := time.Now().UTC()
	job.FinishedAt = &now
	if ok {
		job.State = model.JobStateSucceeded
	} else {
		job.State = model.JobStateFailed
	}

	if err := m.store.UpdateJob(ctx, job, prev); err != nil {
		m.logger.Warn("terminal transition lost", "job_id", job.ID, "error", err)
		return
	}

	m.logger.Info("job finished",
		"job_id", job.ID,
		"handle", job.Handle,
		"state", job.State,
		"attempts", job.Attempts)
	m.notifyTerminal(job.ID)
	m.writeCaseRecord(job)
}

// failJob moves a job to FAILED with the given fault detail, guarded by the
// expected prior state.
func (m *Manager) failJob(ctx context.Context, job *model.Job, prev model.JobState, fault string) {
	now := time.Now().UTC()
	job.State = model.JobStateFailed
	job.Fault = fault
	job.FinishedAt = &now

	if err := m.store.UpdateJob(ctx, job, prev); err != nil {
		m.logger.Warn("failure transition lost", "job_id", job.ID, "error", err)
		return
	}

	m.logger.Error("job failed", "job_id", job.ID, "fault", fault)
	m.notifyTerminal(job.ID)
	m.writeCaseRecord(job)
}
