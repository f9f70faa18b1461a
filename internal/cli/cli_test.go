package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/me/flowsched/internal/config"
	"github.com/me/flowsched/internal/manager"
	"github.com/me/flowsched/internal/server"
	"github.com/me/flowsched/internal/store"
	"github.com/me/flowsched/pkg/model"
)

// stubBackend accepts every submission; no monitor runs in these tests so
// jobs stay PENDING unless cancelled.
type stubBackend struct{}

func (stubBackend) Name() string                         { return "stub" }
func (stubBackend) IsAvailable(ctx context.Context) bool { return true }

func (stubBackend) Submit(ctx context.Context, job *model.Job) (string, error) {
	return "h_" + job.ID, nil
}
func (stubBackend) Cancel(ctx context.Context, handle string) (bool, error)   { return true, nil }
func (stubBackend) Finished(ctx context.Context, handle string) (bool, error) { return true, nil }
func (stubBackend) Outcome(ctx context.Context, job *model.Job) (bool, error) { return true, nil }

// startTestServer starts a daemon with an in-memory SQLite store and
// returns its URL.
func startTestServer(t *testing.T) string {
	t.Helper()
	srvLogger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))

	st, err := store.NewSQLiteStore(":memory:", srvLogger)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	m := manager.New(st, stubBackend{}, manager.Config{MaxAttempts: 3}, srvLogger)
	srv := server.New(config.Default(), m, stubBackend{}, srvLogger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

// submitTestJob registers a job via HTTP and returns its ID.
func submitTestJob(t *testing.T, serverURL string) string {
	t.Helper()

	srvLogger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	c := NewClient(serverURL, srvLogger)

	resp, err := c.Post("/api/v1/jobs", map[string]any{"case_dir": t.TempDir()})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	var data map[string]any
	json.Unmarshal(resp.Data, &data)
	return data["id"].(string)
}

// runCLI executes the root command and captures stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()

	var cmdOut bytes.Buffer
	root.SetOut(&cmdOut)
	root.SetErr(&cmdOut)
	root.SetArgs(args)

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := root.Execute()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String() + cmdOut.String(), err
}

func TestSubmitCommand(t *testing.T) {
	url := startTestServer(t)
	caseDir := t.TempDir()

	output, err := runCLI(t, "--server", url, "submit", caseDir,
		"--arg", "solver=sprayFoam", "--resource", "h_vmem=4G")
	if err != nil {
		t.Fatalf("submit error: %v\noutput: %s", err, output)
	}
	if !strings.Contains(output, "Job registered: job_") {
		t.Errorf("expected 'Job registered: job_' in output, got: %s", output)
	}
	if !strings.Contains(output, caseDir) {
		t.Errorf("expected case dir in output, got: %s", output)
	}
}

func TestSubmitCommand_MissingDir(t *testing.T) {
	url := startTestServer(t)
	if _, err := runCLI(t, "--server", url, "submit", "/no/such/case"); err == nil {
		t.Fatal("expected error for missing case directory")
	}
}

func TestSubmitCommand_BadArg(t *testing.T) {
	url := startTestServer(t)
	_, err := runCLI(t, "--server", url, "submit", t.TempDir(), "--arg", "noequals")
	if err == nil {
		t.Fatal("expected error for malformed --arg")
	}
}

func TestStatusCommand(t *testing.T) {
	url := startTestServer(t)
	jobID := submitTestJob(t, url)

	output, err := runCLI(t, "--server", url, "status", jobID)
	if err != nil {
		t.Fatalf("status error: %v", err)
	}
	if !strings.Contains(output, jobID) {
		t.Errorf("expected job ID in output, got: %s", output)
	}
	if !strings.Contains(output, "PENDING") {
		t.Errorf("expected PENDING state in output, got: %s", output)
	}
}

func TestStatusCommand_Unknown(t *testing.T) {
	url := startTestServer(t)
	if _, err := runCLI(t, "--server", url, "status", "job_nope"); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestListCommand(t *testing.T) {
	url := startTestServer(t)
	submitTestJob(t, url)

	output, err := runCLI(t, "--server", url, "list")
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if !strings.Contains(output, "ID") {
		t.Errorf("expected table header in output, got: %s", output)
	}
	if !strings.Contains(output, "PENDING") {
		t.Errorf("expected job state in output, got: %s", output)
	}
}

func TestListCommand_Empty(t *testing.T) {
	url := startTestServer(t)

	output, err := runCLI(t, "--server", url, "list")
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if !strings.Contains(output, "No jobs found.") {
		t.Errorf("expected empty message, got: %s", output)
	}
}

func TestCancelCommand(t *testing.T) {
	url := startTestServer(t)
	jobID := submitTestJob(t, url)

	output, err := runCLI(t, "--server", url, "cancel", jobID)
	if err != nil {
		t.Fatalf("cancel error: %v", err)
	}
	if !strings.Contains(output, "CANCELLED") {
		t.Errorf("expected CANCELLED in output, got: %s", output)
	}
}

func TestWaitCommand_Timeout(t *testing.T) {
	url := startTestServer(t)
	jobID := submitTestJob(t, url)

	// No monitor runs, so the job never finishes.
	if _, err := runCLI(t, "--server", url, "wait", jobID, "--timeout", "20ms"); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestWaitCommand_Terminal(t *testing.T) {
	url := startTestServer(t)
	jobID := submitTestJob(t, url)

	if _, err := runCLI(t, "--server", url, "cancel", jobID); err != nil {
		t.Fatalf("cancel error: %v", err)
	}

	output, err := runCLI(t, "--server", url, "wait", jobID, "--timeout", "1s")
	if err != nil {
		t.Fatalf("wait error: %v", err)
	}
	if !strings.Contains(output, "CANCELLED") {
		t.Errorf("expected CANCELLED in output, got: %s", output)
	}
}

func TestEvictCommand(t *testing.T) {
	url := startTestServer(t)
	jobID := submitTestJob(t, url)

	// A live job cannot be evicted.
	if _, err := runCLI(t, "--server", url, "evict", jobID); err == nil {
		t.Fatal("expected error evicting a live job")
	}

	if _, err := runCLI(t, "--server", url, "cancel", jobID); err != nil {
		t.Fatalf("cancel error: %v", err)
	}

	output, err := runCLI(t, "--server", url, "evict", jobID)
	if err != nil {
		t.Fatalf("evict error: %v", err)
	}
	if !strings.Contains(output, "evicted") {
		t.Errorf("expected eviction notice, got: %s", output)
	}
}
