package brain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lucasnoah/repobrain/internal/phase"
	"github.com/lucasnoah/repobrain/internal/proc"
)

type mockResult struct {
	out proc.Output
	err error
}

type mockRunner struct {
	mu      sync.Mutex
	calls   []proc.Command
	results []mockResult
	idx     int
}

func (m *mockRunner) Run(_ context.Context, cmd proc.Command) (proc.Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, cmd)
	if m.idx >= len(m.results) {
		return proc.Output{}, nil
	}
	r := m.results[m.idx]
	m.idx++
	return r.out, r.err
}

type memRecorder struct {
	mu    sync.Mutex
	runs  []PhaseRun
	scans []ScanRecord
	err   error
}

func (r *memRecorder) RecordPhaseRun(_ context.Context, run PhaseRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return r.err
}

func (r *memRecorder) RecordScan(_ context.Context, s ScanRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans = append(r.scans, s)
	return r.err
}

// setupProject creates a project root with a control dir holding empty
// scripts for the given phases.
func setupProject(t *testing.T, phases ...string) (root, control string) {
	t.Helper()
	root = t.TempDir()
	control = filepath.Join(root, ".repo-brain")
	if err := os.MkdirAll(control, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, p := range phases {
		writeScript(t, control, p, "#!/bin/sh\n")
	}
	return root, control
}

func writeScript(t *testing.T, control, phaseName, body string) {
	t.Helper()
	name := "brain." + phaseName + ".sh"
	if phaseName == pipelineLabel {
		name = pipelineScript
	}
	if err := os.WriteFile(filepath.Join(control, name), []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
}

func newTestExecutor(t *testing.T, root string, runner proc.Runner, rec Recorder) *Executor {
	t.Helper()
	e, err := NewExecutor(ExecutorConfig{
		ProjectRoot: root,
		Env:         map[string]string{"JQ_BIN": "jq"},
	}, runner, rec, nil)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestRunPhase_Success(t *testing.T) {
	root, control := setupProject(t, "detect")
	mock := &mockRunner{results: []mockResult{
		{out: proc.Output{Stdout: "found go\n\nfound docker\n", Stderr: "warn: slow disk\r\n"}},
	}}
	e := newTestExecutor(t, root, mock, nil)

	res := e.RunPhase(context.Background(), "detect")

	if !res.Success || res.ExitCode != 0 || res.Error != "" || res.Err != nil {
		t.Fatalf("result = %+v", res)
	}
	want := []string{"found go", "found docker", "warn: slow disk", "phase detect complete"}
	if !slices.Equal(res.Logs, want) {
		t.Errorf("Logs = %q, want %q", res.Logs, want)
	}
	if res.RunID == "" {
		t.Error("RunID not set")
	}

	if len(mock.calls) != 1 {
		t.Fatalf("runner called %d times", len(mock.calls))
	}
	call := mock.calls[0]
	if call.Path != "bash" {
		t.Errorf("Path = %q, want bash", call.Path)
	}
	if len(call.Args) != 1 || call.Args[0] != filepath.Join(control, "brain.detect.sh") {
		t.Errorf("Args = %q", call.Args)
	}
	if call.Dir != root {
		t.Errorf("Dir = %q, want %q", call.Dir, root)
	}
	if !slices.Contains(call.Env, "JQ_BIN=jq") {
		t.Error("env missing JQ_BIN=jq")
	}
}

func TestRunPhase_NonZeroExit(t *testing.T) {
	root, _ := setupProject(t, "diagnose")
	mock := &mockRunner{results: []mockResult{
		{out: proc.Output{Stdout: "checking\n", Stderr: "boom\n", ExitCode: 3}},
	}}
	res := newTestExecutor(t, root, mock, nil).RunPhase(context.Background(), "diagnose")

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d", res.ExitCode)
	}
	want := []string{"checking", "boom", "phase diagnose failed (exit 3)"}
	if !slices.Equal(res.Logs, want) {
		t.Errorf("Logs = %q, want %q", res.Logs, want)
	}
	if !errors.Is(res.Err, ErrScriptFailed) {
		t.Errorf("Err = %v", res.Err)
	}
}

func TestRunPhase_RejectsTraversal(t *testing.T) {
	root, _ := setupProject(t)
	mock := &mockRunner{}
	rec := &memRecorder{}
	e := newTestExecutor(t, root, mock, rec)

	for _, name := range []string{"../../etc/passwd", "..", "a/b", `a\b`, "", "$$$"} {
		res := e.RunPhase(context.Background(), name)
		if res.Success || res.ExitCode == 0 {
			t.Errorf("%q: result = %+v", name, res)
		}
		if !errors.Is(res.Err, phase.ErrInvalidName) {
			t.Errorf("%q: Err = %v, want ErrInvalidName", name, res.Err)
		}
		if len(res.Logs) == 0 || !strings.HasPrefix(res.Logs[len(res.Logs)-1], "error: ") {
			t.Errorf("%q: Logs = %q", name, res.Logs)
		}
	}
	if len(mock.calls) != 0 {
		t.Errorf("runner called %d times for rejected names", len(mock.calls))
	}
	if len(rec.runs) != 0 {
		t.Errorf("rejected names were recorded: %+v", rec.runs)
	}
}

func TestResolve_Containment(t *testing.T) {
	root, control := setupProject(t)
	e := newTestExecutor(t, root, nil, nil)

	p, err := e.resolve("brain.detect.sh")
	if err != nil || p != filepath.Join(control, "brain.detect.sh") {
		t.Errorf("resolve = %q, %v", p, err)
	}
	for _, s := range []string{"../brain.x.sh", "../../x", ".", ""} {
		if _, err := e.resolve(s); !errors.Is(err, ErrPathEscape) {
			t.Errorf("resolve(%q) err = %v, want ErrPathEscape", s, err)
		}
	}
}

func TestRunPhase_MissingScript(t *testing.T) {
	root, control := setupProject(t)
	mock := &mockRunner{}
	res := newTestExecutor(t, root, mock, nil).RunPhase(context.Background(), "nonexistent")

	if res.Success || res.ExitCode == 0 {
		t.Fatalf("result = %+v", res)
	}
	if !errors.Is(res.Err, ErrScriptNotFound) {
		t.Errorf("Err = %v", res.Err)
	}
	if len(res.Logs) != 1 || !strings.HasPrefix(res.Logs[0], "error: ") {
		t.Errorf("Logs = %q", res.Logs)
	}
	if strings.Contains(res.Error, control) {
		t.Errorf("error %q leaks an absolute path", res.Error)
	}
	if len(mock.calls) != 0 {
		t.Error("runner should not be called for a missing script")
	}
}

func TestRunPhase_DirectoryIsNotAScript(t *testing.T) {
	root, control := setupProject(t)
	if err := os.Mkdir(filepath.Join(control, "brain.dir.sh"), 0o755); err != nil {
		t.Fatal(err)
	}
	res := newTestExecutor(t, root, &mockRunner{}, nil).RunPhase(context.Background(), "dir")
	if !errors.Is(res.Err, ErrScriptNotFound) {
		t.Errorf("Err = %v", res.Err)
	}
}

func TestRunPhase_SpawnAndTimeout(t *testing.T) {
	root, _ := setupProject(t, "detect")

	mock := &mockRunner{results: []mockResult{
		{out: proc.Output{ExitCode: -1}, err: proc.ErrSpawn},
		{out: proc.Output{Stdout: "partial\n", ExitCode: -1}, err: proc.ErrTimeout},
	}}
	e := newTestExecutor(t, root, mock, nil)

	spawn := e.RunPhase(context.Background(), "detect")
	if spawn.Success || spawn.ExitCode != -1 || !errors.Is(spawn.Err, proc.ErrSpawn) {
		t.Errorf("spawn result = %+v", spawn)
	}

	timeout := e.RunPhase(context.Background(), "detect")
	if timeout.Success || timeout.ExitCode != -1 || !errors.Is(timeout.Err, proc.ErrTimeout) {
		t.Errorf("timeout result = %+v", timeout)
	}
	if !strings.Contains(timeout.Error, "timed out after 10m0s") {
		t.Errorf("timeout Error = %q", timeout.Error)
	}
	if len(timeout.Logs) != 2 || timeout.Logs[0] != "partial" {
		t.Errorf("timeout Logs = %q", timeout.Logs)
	}
}

func TestRunFull(t *testing.T) {
	root, control := setupProject(t, pipelineLabel)
	mock := &mockRunner{results: []mockResult{{out: proc.Output{Stdout: "all done\n"}}}}
	res := newTestExecutor(t, root, mock, nil).RunFull(context.Background())

	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if mock.calls[0].Args[0] != filepath.Join(control, "brain.run.sh") {
		t.Errorf("Args = %q", mock.calls[0].Args)
	}
	if res.Logs[len(res.Logs)-1] != "phase pipeline complete" {
		t.Errorf("Logs = %q", res.Logs)
	}
}

func TestRunPhase_Records(t *testing.T) {
	root, _ := setupProject(t, "doctor")
	rec := &memRecorder{err: errors.New("disk full")}
	mock := &mockRunner{results: []mockResult{{out: proc.Output{ExitCode: 2}}}}

	res := newTestExecutor(t, root, mock, rec).RunPhase(context.Background(), "doctor")

	if res.ExitCode != 2 {
		t.Fatalf("result = %+v", res)
	}
	if len(rec.runs) != 1 {
		t.Fatalf("recorded %d runs", len(rec.runs))
	}
	run := rec.runs[0]
	if run.ID != res.RunID || run.Phase != "doctor" || run.Success || run.ExitCode != 2 || run.Error == "" {
		t.Errorf("recorded run = %+v", run)
	}
}

type blockingRunner struct {
	mu      sync.Mutex
	active  int
	peak    int
	release chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context, _ proc.Command) (proc.Output, error) {
	b.mu.Lock()
	b.active++
	b.peak = max(b.peak, b.active)
	b.mu.Unlock()

	var err error
	select {
	case <-b.release:
	case <-ctx.Done():
		err = ctx.Err()
	}

	b.mu.Lock()
	b.active--
	b.mu.Unlock()
	return proc.Output{ExitCode: -1}, err
}

func TestRunPhase_MaxConcurrent(t *testing.T) {
	root, _ := setupProject(t, "detect")
	br := &blockingRunner{release: make(chan struct{})}
	e, err := NewExecutor(ExecutorConfig{ProjectRoot: root, MaxConcurrent: 1}, br, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.RunPhase(context.Background(), "detect")
		}()
	}
	for range 3 {
		time.Sleep(20 * time.Millisecond)
		br.release <- struct{}{}
	}
	wg.Wait()

	if br.peak != 1 {
		t.Errorf("peak concurrency = %d, want 1", br.peak)
	}
}

func TestRunPhase_QueuedCallerHonorsContext(t *testing.T) {
	root, _ := setupProject(t, "detect")
	br := &blockingRunner{release: make(chan struct{})}
	e, err := NewExecutor(ExecutorConfig{ProjectRoot: root, MaxConcurrent: 1}, br, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		e.RunPhase(context.Background(), "detect")
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := e.RunPhase(ctx, "detect")
	if res.Success || !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("queued result = %+v", res)
	}

	br.release <- struct{}{}
	<-done
}

func TestRunPhase_RealScript(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	root, control := setupProject(t)
	writeScript(t, control, "detect", `echo "cwd=$(pwd)"
echo "jq=$JQ_BIN target=$REPO_BRAIN_TARGET"
echo "to stderr" >&2
exit 0
`)
	e, err := NewExecutor(ExecutorConfig{
		ProjectRoot: root,
		Interpreter: "sh",
		Env:         map[string]string{"JQ_BIN": "jq"},
	}, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	res := e.RunPhaseEnv(context.Background(), "detect", map[string]string{"REPO_BRAIN_TARGET": "/srv/app"})
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	rootReal, _ := filepath.EvalSymlinks(root)
	want := []string{
		"cwd=" + rootReal,
		"jq=jq target=/srv/app",
		"to stderr",
		"phase detect complete",
	}
	if !slices.Equal(res.Logs, want) {
		t.Errorf("Logs = %q, want %q", res.Logs, want)
	}
}

func TestRunPhase_BackgroundChildDoesNotFailPhase(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	root, control := setupProject(t)
	writeScript(t, control, "detect", "echo started\nsleep 5 &\nexit 0\n")
	e, err := NewExecutor(ExecutorConfig{ProjectRoot: root, Interpreter: "sh"},
		&proc.ExecRunner{WaitDelay: 200 * time.Millisecond}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	res := e.RunPhase(context.Background(), "detect")
	if !res.Success || res.ExitCode != 0 || res.Err != nil {
		t.Fatalf("result = %+v", res)
	}
	want := []string{"started", "phase detect complete"}
	if !slices.Equal(res.Logs, want) {
		t.Errorf("Logs = %q, want %q", res.Logs, want)
	}
}

func TestRunPhase_SpawnFailureHidesInterpreterPath(t *testing.T) {
	root, _ := setupProject(t, "detect")
	interp := filepath.Join(t.TempDir(), "missing", "bash")
	e, err := NewExecutor(ExecutorConfig{ProjectRoot: root, Interpreter: interp}, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	res := e.RunPhase(context.Background(), "detect")
	if res.Success || !errors.Is(res.Err, proc.ErrSpawn) {
		t.Fatalf("result = %+v", res)
	}
	if strings.Contains(res.Error, filepath.Dir(interp)) {
		t.Errorf("Error leaks the interpreter path: %q", res.Error)
	}
	for _, line := range res.Logs {
		if strings.Contains(line, filepath.Dir(interp)) {
			t.Errorf("log line leaks the interpreter path: %q", line)
		}
	}
}
