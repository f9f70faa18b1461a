package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/flowsched/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.Job) error {
	s.logger.Debug("sql", "op", "insert", "table", "jobs", "id", job.ID)

	payloadJSON, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, name, handle, state, payload, attempts, max_attempts, fault,
		 created_at, submitted_at, finished_at, next_attempt_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, job.Handle, string(job.State), string(payloadJSON),
		job.Attempts, job.MaxAttempts, job.Fault,
		job.CreatedAt.Format(time.RFC3339Nano),
		formatTime(job.SubmittedAt), formatTime(job.FinishedAt), formatTime(job.NextAttemptAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint") {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	return err
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	s.logger.Debug("sql", "op", "select", "table", "jobs", "id", id)
	return s.scanJob(s.db.QueryRowContext(ctx,
		`SELECT id, name, handle, state, payload, attempts, max_attempts, fault,
		 created_at, submitted_at, finished_at, next_attempt_at
		 FROM jobs WHERE id = ?`, id))
}

// UpdateJob persists the job guarded by the expected prior state. The CAS
// lives in the WHERE clause so two racing writers cannot both win.
func (s *SQLiteStore) UpdateJob(ctx context.Context, job *model.Job, prev model.JobState) error {
	s.logger.Debug("sql", "op", "update", "table", "jobs", "id", job.ID, "prev", prev, "state", job.State)

	result, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET name=?, handle=?, state=?, attempts=?, fault=?,
		 submitted_at=?, finished_at=?, next_attempt_at=?
		 WHERE id=? AND state=?`,
		job.Name, job.Handle, string(job.State), job.Attempts, job.Fault,
		formatTime(job.SubmittedAt), formatTime(job.FinishedAt), formatTime(job.NextAttemptAt),
		job.ID, string(prev),
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		existing, err := s.GetJob(ctx, job.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return model.ErrNotFound
		}
		return fmt.Errorf("job %s is %s, expected %s: %w", job.ID, existing.State, prev, model.ErrStale)
	}
	return nil
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "jobs", "id", id)

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE id = ? AND state IN ('SUCCEEDED', 'FAILED', 'CANCELLED')`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		existing, err := s.GetJob(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return model.ErrNotFound
		}
		return fmt.Errorf("job %s is %s, not terminal: %w", id, existing.State, model.ErrStale)
	}
	return nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, opts model.ListOptions) ([]*model.Job, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "jobs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	whereSQL := ""
	var args []any
	if opts.State != "" {
		whereSQL = " WHERE state = ?"
		args = append(args, opts.State)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listArgs := append(args, opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, handle, state, payload, attempts, max_attempts, fault,
		 created_at, submitted_at, finished_at, next_attempt_at
		 FROM jobs`+whereSQL+` ORDER BY created_at DESC LIMIT ? OFFSET ?`, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	jobs, err := s.scanJobs(rows)
	return jobs, total, err
}

func (s *SQLiteStore) ListJobsByState(ctx context.Context, states ...model.JobState) ([]*model.Job, error) {
	s.logger.Debug("sql", "op", "list_by_state", "table", "jobs", "states", states)

	if len(states) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(states))
	args := make([]any, len(states))
	for i, st := range states {
		placeholders[i] = "?"
		args[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, handle, state, payload, attempts, max_attempts, fault,
		 created_at, submitted_at, finished_at, next_attempt_at
		 FROM jobs WHERE state IN (`+strings.Join(placeholders, ", ")+`) ORDER BY created_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanJobs(rows)
}

func (s *SQLiteStore) CountJobsByState(ctx context.Context) (map[model.JobState]int, error) {
	s.logger.Debug("sql", "op", "count_by_state", "table", "jobs")

	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.JobState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[model.JobState(state)] = n
	}
	return counts, rows.Err()
}

// --- scan helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanJob(row scanner) (*model.Job, error) {
	var job model.Job
	var state, payloadJSON, createdAt string
	var submittedAt, finishedAt, nextAttemptAt *string

	err := row.Scan(
		&job.ID, &job.Name, &job.Handle, &state, &payloadJSON,
		&job.Attempts, &job.MaxAttempts, &job.Fault,
		&createdAt, &submittedAt, &finishedAt, &nextAttemptAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job.State = model.JobState(state)
	if err := json.Unmarshal([]byte(payloadJSON), &job.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	job.SubmittedAt = parseTime(submittedAt)
	job.FinishedAt = parseTime(finishedAt)
	job.NextAttemptAt = parseTime(nextAttemptAt)

	return &job, nil
}

func (s *SQLiteStore) scanJobs(rows *sql.Rows) ([]*model.Job, error) {
	var jobs []*model.Job
	for rows.Next() {
		job, err := s.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.Format(time.RFC3339Nano)
	return &v
}

func parseTime(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil
	}
	return &t
}
