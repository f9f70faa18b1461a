package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/me/flowsched/pkg/model"
)

// ExitStatusFile is written into the case directory by the local backend's
// submission wrapper and read back by the outcome probe.
const ExitStatusFile = ".exit-status"

// Local runs jobs as detached shell processes on the manager's own host.
// The scheduler handle is the process id of the spawned shell.
type Local struct {
	shell  string
	logger *slog.Logger
}

// NewLocal creates a Local backend using the given shell (default "bash").
func NewLocal(shell string, logger *slog.Logger) *Local {
	if shell == "" {
		shell = "bash"
	}
	return &Local{
		shell:  shell,
		logger: logger.With("component", "local-backend"),
	}
}

// Name returns "local".
func (b *Local) Name() string {
	return "local"
}

// IsAvailable reports whether the configured shell is in PATH.
func (b *Local) IsAvailable(ctx context.Context) bool {
	_, err := exec.LookPath(b.shell)
	if err != nil {
		b.logger.Warn("shell not found in PATH", "shell", b.shell)
	}
	return err == nil
}

// Submit starts the case's submission script detached in its own session,
// with a wrapper that records the script's exit status for the outcome
// probe. Returns the pid as the handle.
func (b *Local) Submit(ctx context.Context, job *model.Job) (string, error) {
	script := filepath.Join(job.Payload.CaseDir, job.Payload.ScriptName())
	if _, err := os.Stat(script); err != nil {
		return "", model.NewSchedulerFault("submit", "submission script not found: %s", script)
	}

	cmdline := shellQuote(script)
	if args := formatScriptArgs(job.Payload.Args, " "); args != "" {
		cmdline += " " + args
	}
	cmdline += "; echo $? > " + shellQuote(ExitStatusFile)

	cmd := exec.Command(b.shell, "-c", cmdline)
	cmd.Dir = job.Payload.CaseDir
	// Detach into its own session so the job survives manager restarts
	// and a cancel can signal the whole process group.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		b.logger.Warn("spawn failed, declining submission", "job_id", job.ID, "error", err)
		return "", nil
	}

	pid := cmd.Process.Pid
	// Reap the child when it exits to avoid zombies.
	go cmd.Wait()

	b.logger.Info("job spawned", "job_id", job.ID, "pid", pid, "script", script)
	return strconv.Itoa(pid), nil
}

// Cancel sends SIGTERM to the job's process group. Returns false without
// error when the process is already gone.
func (b *Local) Cancel(ctx context.Context, handle string) (bool, error) {
	pid, err := strconv.Atoi(handle)
	if err != nil {
		return false, nil
	}
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		return false, nil
	}
	return true, nil
}

// Finished reports true once the spawned process no longer exists.
func (b *Local) Finished(ctx context.Context, handle string) (bool, error) {
	pid, err := strconv.Atoi(handle)
	if err != nil {
		return true, nil
	}
	// Signal 0 probes existence without delivering a signal.
	if err := syscall.Kill(pid, 0); err != nil {
		return true, nil
	}
	return false, nil
}

// Outcome reads the exit-status file the submission wrapper wrote.
func (b *Local) Outcome(ctx context.Context, job *model.Job) (bool, error) {
	path := filepath.Join(job.Payload.CaseDir, ExitStatusFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read exit status: %w", err)
	}
	code, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, fmt.Errorf("parse exit status %q: %w", strings.TrimSpace(string(data)), err)
	}
	return code == 0, nil
}

// shellQuote wraps s in single quotes, escaping embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
