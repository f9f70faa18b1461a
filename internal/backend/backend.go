package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/me/flowsched/pkg/model"
)

// Backend adapts the manager to one concrete execution environment
// (local process spawn, grid engine, ...). A backend is supplied at manager
// construction time and never swapped while jobs are outstanding.
//
// Backends are stateless with respect to the manager: all bookkeeping lives
// in the manager, and an implementation must not assume it will be asked
// about a given handle more than once or in any particular order.
type Backend interface {
	// Name returns the backend identifier ("local", "gridengine").
	Name() string

	// IsAvailable reports whether the backend can currently accept
	// submissions. A false result is never fatal; the manager retries
	// with backoff.
	IsAvailable(ctx context.Context) bool

	// Submit attempts to submit the job. It returns a non-empty handle
	// on success, an empty handle with a nil error on a recoverable
	// decline (queue full, slot busy), and a *model.SchedulerFault on
	// an unrecoverable failure (malformed request).
	Submit(ctx context.Context, job *model.Job) (handle string, err error)

	// Cancel requests cancellation of a submitted job. Best-effort and
	// idempotent: cancelling a finished or already-cancelled handle
	// returns false without error.
	Cancel(ctx context.Context, handle string) (bool, error)

	// Finished reports whether the job behind handle has left the
	// scheduler. Pure observation, no side effects. A handle unknown to
	// the scheduler counts as finished; the outcome is determined by a
	// separate Outcome probe.
	Finished(ctx context.Context, handle string) (bool, error)

	// Outcome reports whether the finished job succeeded. Only valid
	// after Finished has reported true.
	Outcome(ctx context.Context, job *model.Job) (bool, error)
}

// New returns the backend registered under name.
func New(name string, logger *slog.Logger) (Backend, error) {
	switch strings.ToLower(name) {
	case "local":
		return NewLocal("", logger), nil
	case "gridengine", "sge":
		return NewGridEngine(logger), nil
	case "slurm":
		return nil, fmt.Errorf("slurm backend not implemented")
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

// formatScriptArgs renders key/value script arguments as k="v" pairs joined
// by sep, the form both the grid-engine -v flag and the local shell accept.
func formatScriptArgs(args map[string]string, sep string) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	// Stable order keeps submissions reproducible.
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, args[k])
	}
	return strings.Join(parts, sep)
}
