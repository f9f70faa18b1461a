// Package manager implements the scheduling core: it owns the job state
// machine, delegates execution to a backend, and reconciles persisted state
// with the scheduler through a periodic monitor tick.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/me/flowsched/internal/backend"
	"github.com/me/flowsched/internal/casefile"
	"github.com/me/flowsched/internal/store"
	"github.com/me/flowsched/pkg/model"
)

// Config controls scheduling behavior.
type Config struct {
	// JobLimit caps the number of jobs in SUBMITTED or RUNNING at once.
	// Zero means unlimited.
	JobLimit int

	// MaxAttempts is the default submission attempt budget for new jobs.
	MaxAttempts int

	// RetryBackoff is the delay before the second submission attempt;
	// subsequent declines double it up to RetryBackoffMax.
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration

	// PollInterval is the monitor tick period used by Run.
	PollInterval time.Duration

	// JobPrefix is prepended to backend-visible job names so scheduler
	// listings are greppable.
	JobPrefix string
}

// DefaultConfig returns the scheduling defaults.
func DefaultConfig() Config {
	return Config{
		JobLimit:        0,
		MaxAttempts:     3,
		RetryBackoff:    30 * time.Second,
		RetryBackoffMax: 10 * time.Minute,
		PollInterval:    15 * time.Second,
		JobPrefix:       "flwbst_",
	}
}

// Manager is the scheduler-agnostic job manager. All state lives in the
// store; the manager itself only holds in-process waiter registrations, so
// a restart recovers every job from persistence.
type Manager struct {
	store   store.Store
	backend backend.Backend
	cfg     Config
	logger  *slog.Logger

	// tickMu makes Tick non-reentrant. A tick that would overlap a
	// still-running one is skipped, not queued.
	tickMu sync.Mutex

	mu      sync.Mutex
	waiters map[string]chan struct{}
}

// New creates a Manager on top of a store and a backend.
func New(s store.Store, b backend.Backend, cfg Config, logger *slog.Logger) *Manager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.JobPrefix == "" {
		cfg.JobPrefix = DefaultConfig().JobPrefix
	}
	return &Manager{
		store:   s,
		backend: b,
		cfg:     cfg,
		logger:  logger.With("component", "manager"),
		waiters: make(map[string]chan struct{}),
	}
}

// Submit registers a new job in PENDING. The backend is not touched here;
// the actual submission happens on the next monitor tick.
func (m *Manager) Submit(ctx context.Context, payload model.Payload) (*model.Job, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &model.Job{
		ID:          "job_" + uuid.New().String(),
		Name:        m.cfg.JobPrefix + filepath.Base(payload.CaseDir),
		State:       model.JobStatePending,
		Payload:     payload,
		MaxAttempts: m.cfg.MaxAttempts,
		CreatedAt:   now,
	}

	if err := m.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("register job: %w", err)
	}

	m.logger.Info("job registered",
		"job_id", job.ID,
		"name", job.Name,
		"case_dir", payload.CaseDir)
	return job, nil
}

// Status returns the current persisted state of a job.
func (m *Manager) Status(ctx context.Context, id string) (model.JobState, error) {
	job, err := m.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return job.State, nil
}

// Get returns the full job record.
func (m *Manager) Get(ctx context.Context, id string) (*model.Job, error) {
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}
	return job, nil
}

// List returns a page of jobs plus the total count.
func (m *Manager) List(ctx context.Context, opts model.ListOptions) ([]*model.Job, int, error) {
	return m.store.ListJobs(ctx, opts)
}

// Summary returns the number of tracked jobs per state.
func (m *Manager) Summary(ctx context.Context) (map[model.JobState]int, error) {
	return m.store.CountJobsByState(ctx)
}

// Cancel requests cancellation of a job. Cancelling a job that is already
// terminal is a no-op and returns false. A PENDING job is cancelled without
// ever reaching the backend; a SUBMITTED or RUNNING job moves to CANCELLED
// only if the scheduler acknowledges the cancel. A refused cancel (the job
// already left the queue) returns false and leaves the record untouched, so
// the next poll settles the real outcome.
//
// A concurrent monitor transition surfaces as model.ErrStale; callers can
// re-read and retry.
func (m *Manager) Cancel(ctx context.Context, id string) (bool, error) {
	job, err := m.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if job.State.IsTerminal() {
		return false, nil
	}

	prev := job.State
	if prev != model.JobStatePending {
		ok, err := m.backend.Cancel(ctx, job.Handle)
		if err != nil {
			return false, fmt.Errorf("cancel handle %s: %w", job.Handle, err)
		}
		if !ok {
			m.logger.Info("cancel refused by scheduler",
				"job_id", job.ID,
				"handle", job.Handle,
				"state", prev)
			return false, nil
		}
	}

	now := time.Now().UTC()
	job.State = model.JobStateCancelled
	job.FinishedAt = &now
	if err := m.store.UpdateJob(ctx, job, prev); err != nil {
		return false, err
	}

	m.logger.Info("job cancelled", "job_id", job.ID, "previous_state", prev)
	m.notifyTerminal(job.ID)
	m.writeCaseRecord(job)
	return true, nil
}

// Evict removes a terminal job record from the store.
func (m *Manager) Evict(ctx context.Context, id string) error {
	return m.store.DeleteJob(ctx, id)
}

// WaitFor blocks until the job reaches a terminal state, the timeout
// elapses (model.ErrTimeout), or ctx is done. A zero timeout waits
// indefinitely.
func (m *Manager) WaitFor(ctx context.Context, id string, timeout time.Duration) (*model.Job, error) {
	done := m.registerWaiter(id)

	// The job may already be terminal, or may have crossed the line
	// between the read and the registration. Check after registering.
	// The early returns release the registration via notifyTerminal, not
	// a plain delete, so a waiter sharing the channel wakes and re-reads
	// the record instead of blocking on an unregistered channel.
	job, err := m.Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			m.notifyTerminal(id)
		}
		return nil, err
	}
	if job.State.IsTerminal() {
		m.notifyTerminal(id)
		return job, nil
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-done:
		return m.Get(ctx, id)
	case <-timer:
		return nil, fmt.Errorf("job %s: %w", id, model.ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run drives the monitor loop until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.PollInterval
	if interval <= 0 {
		interval = DefaultConfig().PollInterval
	}
	m.logger.Info("monitor loop started",
		"backend", m.backend.Name(),
		"poll_interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor loop stopped")
			return
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil {
				m.logger.Error("monitor tick failed", "error", err)
			}
		}
	}
}

// registerWaiter returns the channel closed when the job goes terminal.
func (m *Manager) registerWaiter(id string) <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.waiters[id]
	if !ok {
		ch = make(chan struct{})
		m.waiters[id] = ch
	}
	return ch
}

// notifyTerminal wakes every waiter of the job. Safe to call once per job;
// the channel is removed from the registry so a second terminal write for
// the same id (which the state machine forbids anyway) cannot double-close.
func (m *Manager) notifyTerminal(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.waiters[id]; ok {
		close(ch)
		delete(m.waiters, id)
	}
}

// writeCaseRecord mirrors the job's state into the per-case metadata
// record. Failures are logged, never propagated: the store is the source
// of truth, the case record a convenience for tools inspecting the case
// directory.
func (m *Manager) writeCaseRecord(job *model.Job) {
	status := model.CaseStatusFor(job.State)
	var success *bool
	switch job.State {
	case model.JobStateSucceeded:
		v := true
		success = &v
	case model.JobStateFailed:
		v := false
		success = &v
	}

	if err := casefile.WriteOutcome(job.Payload.CaseDir, status, success, job.FinishedAt); err != nil {
		m.logger.Warn("case record update failed",
			"job_id", job.ID,
			"case_dir", job.Payload.CaseDir,
			"error", err)
	}
}
