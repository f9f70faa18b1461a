package backend

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/me/flowsched/pkg/model"
)

// runner executes a scheduler command in dir and returns its output and
// exit code. Injectable so tests can script qsub/qstat/qdel/qacct replies.
type runner func(ctx context.Context, dir, name string, args ...string) (stdout, stderr string, code int, err error)

func execRunner(ctx context.Context, dir, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	err := cmd.Run()
	code := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
		err = nil
	}
	return out.String(), errOut.String(), code, err
}

// GridEngine submits jobs to a Sun/Son of Grid Engine scheduler through the
// qsub/qstat/qdel/qacct command-line tools. The scheduler handle is the
// numeric queue job id parsed from the qsub acknowledgement.
type GridEngine struct {
	logger *slog.Logger
	run    runner
}

// NewGridEngine creates a GridEngine backend.
func NewGridEngine(logger *slog.Logger) *GridEngine {
	return &GridEngine{
		logger: logger.With("component", "gridengine-backend"),
		run:    execRunner,
	}
}

// Name returns "gridengine".
func (b *GridEngine) Name() string {
	return "gridengine"
}

// IsAvailable reports whether the grid-engine management commands are in PATH.
func (b *GridEngine) IsAvailable(ctx context.Context) bool {
	for _, tool := range []string{"qsub", "qstat"} {
		if _, err := exec.LookPath(tool); err != nil {
			b.logger.Warn("grid engine command not found in PATH", "command", tool)
			return false
		}
	}
	return true
}

// Submit runs qsub in the case directory. Script args are passed as
// environment bindings via -v, the opaque resource request via -l.
func (b *GridEngine) Submit(ctx context.Context, job *model.Job) (string, error) {
	script := filepath.Join(job.Payload.CaseDir, job.Payload.ScriptName())
	if _, err := os.Stat(script); err != nil {
		return "", model.NewSchedulerFault("submit", "submission script not found: %s", script)
	}

	args := []string{"-N", job.Name}
	for _, k := range sortedKeys(job.Payload.Resources) {
		args = append(args, "-l", k+"="+job.Payload.Resources[k])
	}
	if kv := formatScriptArgs(job.Payload.Args, ","); kv != "" {
		args = append(args, "-v", kv)
	}
	args = append(args, script)

	stdout, stderr, code, err := b.run(ctx, job.Payload.CaseDir, "qsub", args...)
	if err != nil {
		b.logger.Warn("qsub failed, declining submission", "job_id", job.ID, "error", err)
		return "", nil
	}
	if code != 0 {
		b.logger.Warn("qsub rejected submission", "job_id", job.ID, "stderr", strings.TrimSpace(stderr))
		return "", nil
	}

	handle, ok := parseQsubHandle(stdout)
	if !ok {
		return "", model.NewSchedulerFault("submit", "unexpected qsub output: %q", strings.TrimSpace(stdout))
	}
	return handle, nil
}

// Cancel runs qdel. A rejected qdel (job already gone) returns false
// without error.
func (b *GridEngine) Cancel(ctx context.Context, handle string) (bool, error) {
	_, stderr, code, err := b.run(ctx, "", "qdel", handle)
	if err != nil {
		return false, err
	}
	if code != 0 {
		b.logger.Debug("qdel rejected", "handle", handle, "stderr", strings.TrimSpace(stderr))
		return false, nil
	}
	return true, nil
}

// Finished probes qstat -j. A handle the scheduler no longer knows counts
// as finished; any other qstat failure is treated as still running and
// retried on the next poll.
func (b *GridEngine) Finished(ctx context.Context, handle string) (bool, error) {
	_, stderr, code, err := b.run(ctx, "", "qstat", "-j", handle)
	if err != nil {
		return false, err
	}
	if code == 0 {
		return false, nil
	}
	if strings.Contains(stderr, "Following jobs do not exist") {
		return true, nil
	}
	b.logger.Warn("qstat probe failed", "handle", handle, "stderr", strings.TrimSpace(stderr))
	return false, nil
}

// Outcome asks the accounting system for the job's exit status, falling
// back to the exit-status file in the case directory when accounting has
// not caught up yet.
func (b *GridEngine) Outcome(ctx context.Context, job *model.Job) (bool, error) {
	stdout, _, code, err := b.run(ctx, "", "qacct", "-j", job.Handle)
	if err == nil && code == 0 {
		if exit, ok := parseQacctExitStatus(stdout); ok {
			return exit == 0, nil
		}
	}

	data, ferr := os.ReadFile(filepath.Join(job.Payload.CaseDir, ExitStatusFile))
	if ferr != nil {
		return false, fmt.Errorf("outcome for handle %s unavailable: qacct and exit-status file both missing", job.Handle)
	}
	exit, ferr := strconv.Atoi(strings.TrimSpace(string(data)))
	if ferr != nil {
		return false, fmt.Errorf("parse exit status: %w", ferr)
	}
	return exit == 0, nil
}

// parseQsubHandle extracts the job id from a qsub acknowledgement of the
// form `Your job 42 ("name") has been submitted`. Array jobs report
// 42.1-10:1; only the leading id is kept.
func parseQsubHandle(out string) (string, bool) {
	fields := strings.Fields(out)
	if len(fields) < 3 || fields[0] != "Your" {
		return "", false
	}
	handle, _, _ := strings.Cut(fields[2], ".")
	if handle == "" {
		return "", false
	}
	return handle, true
}

// parseQacctExitStatus scans qacct output for the exit_status record.
func parseQacctExitStatus(out string) (int, bool) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "exit_status" {
			code, err := strconv.Atoi(fields[1])
			if err != nil {
				return 0, false
			}
			return code, true
		}
	}
	return 0, false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
