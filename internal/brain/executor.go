package brain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/lucasnoah/repobrain/internal/artifacts"
	"github.com/lucasnoah/repobrain/internal/phase"
	"github.com/lucasnoah/repobrain/internal/proc"
)

const (
	pipelineLabel  = "pipeline"
	pipelineScript = "brain.run.sh"

	defaultInterpreter = "bash"
	defaultTimeout     = 10 * time.Minute
)

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	ProjectRoot   string            // working directory for scripts
	ControlDir    string            // holds brain.*.sh; relative paths resolve against ProjectRoot
	Interpreter   string            // default "bash"
	Timeout       time.Duration     // per run; default 10m
	MaxConcurrent int               // 0 means unlimited
	Env           map[string]string // fixed overrides on top of the process env
}

// Executor runs phase scripts from the control directory.
type Executor struct {
	projectRoot string
	controlDir  string
	interpreter string
	timeout     time.Duration
	env         []string
	sem         *semaphore.Weighted

	runner   proc.Runner
	recorder Recorder
	log      *zap.Logger
}

// NewExecutor resolves cfg into absolute paths. runner defaults to
// proc.ExecRunner; recorder may be nil.
func NewExecutor(cfg ExecutorConfig, runner proc.Runner, recorder Recorder, logger *zap.Logger) (*Executor, error) {
	root, err := filepath.Abs(cfg.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	control := cfg.ControlDir
	if control == "" {
		control = ".repo-brain"
	}
	if !filepath.IsAbs(control) {
		control = filepath.Join(root, control)
	}
	control = filepath.Clean(control)

	if cfg.Interpreter == "" {
		cfg.Interpreter = defaultInterpreter
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if runner == nil {
		runner = &proc.ExecRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Executor{
		projectRoot: root,
		controlDir:  control,
		interpreter: cfg.Interpreter,
		timeout:     cfg.Timeout,
		env:         envOverrides(cfg.Env),
		runner:      runner,
		recorder:    recorder,
		log:         logger.Named("executor"),
	}
	if cfg.MaxConcurrent > 0 {
		e.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	return e, nil
}

// ControlDir returns the absolute control directory.
func (e *Executor) ControlDir() string { return e.controlDir }

// ProjectRoot returns the absolute project root.
func (e *Executor) ProjectRoot() string { return e.projectRoot }

// RunPhase validates name and runs brain.<name>.sh.
func (e *Executor) RunPhase(ctx context.Context, name string) ExecutionResult {
	return e.RunPhaseEnv(ctx, name, nil)
}

// RunPhaseEnv is RunPhase with extra environment variables for this run.
func (e *Executor) RunPhaseEnv(ctx context.Context, name string, extra map[string]string) ExecutionResult {
	n, err := phase.Validate(name)
	if err != nil {
		e.log.Warn("rejected phase name", zap.String("raw", name), zap.Error(err))
		return failure(nil, 1, err)
	}
	return e.run(ctx, n.String(), n.ScriptName(), extra)
}

// RunFull runs the full pipeline script brain.run.sh.
func (e *Executor) RunFull(ctx context.Context) ExecutionResult {
	return e.run(ctx, pipelineLabel, pipelineScript, nil)
}

func (e *Executor) run(ctx context.Context, label, script string, extra map[string]string) ExecutionResult {
	start := time.Now()
	res := e.execute(ctx, label, script, extra)
	res.RunID = uuid.NewString()
	e.record(ctx, label, start, time.Since(start), res)
	return res
}

func (e *Executor) execute(ctx context.Context, label, script string, extra map[string]string) ExecutionResult {
	scriptPath, err := e.resolve(script)
	if err != nil {
		e.log.Error("script path escapes control directory",
			zap.String("raw", label), zap.String("script", script))
		return failure(nil, 1, fmt.Errorf("phase %s: %w", label, err))
	}

	info, err := os.Stat(scriptPath)
	if err != nil || !info.Mode().IsRegular() {
		return failure(nil, 1, fmt.Errorf("phase %s: %s: %w", label, script, ErrScriptNotFound))
	}

	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return failure(nil, 1, fmt.Errorf("phase %s: waiting for a run slot: %w", label, err))
		}
		defer e.sem.Release(1)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	log := e.log.With(zap.String("phase", label))
	log.Info("running script", zap.String("script", script))

	out, err := e.runner.Run(runCtx, proc.Command{
		Path: e.interpreter,
		Args: []string{scriptPath},
		Dir:  e.projectRoot,
		Env:  e.environ(extra),
	})

	logs := append(artifacts.SplitLines(out.Stdout), artifacts.SplitLines(out.Stderr)...)

	if err != nil {
		if errors.Is(err, proc.ErrTimeout) {
			err = fmt.Errorf("phase %s timed out after %s: %w", label, e.timeout, proc.ErrTimeout)
		} else {
			err = fmt.Errorf("phase %s: %w", label, err)
		}
		log.Error("script did not complete", zap.Error(err))
		return failure(logs, out.ExitCode, err)
	}

	if out.ExitCode != 0 {
		log.Warn("script failed", zap.Int("exit_code", out.ExitCode), zap.Duration("duration", out.Duration))
		msg := fmt.Sprintf("phase %s failed (exit %d)", label, out.ExitCode)
		return ExecutionResult{
			Success:  false,
			Logs:     append(logs, msg),
			ExitCode: out.ExitCode,
			Error:    msg,
			Err:      ErrScriptFailed,
		}
	}

	log.Info("script complete", zap.Duration("duration", out.Duration))
	return ExecutionResult{
		Success:  true,
		Logs:     append(logs, fmt.Sprintf("phase %s complete", label)),
		ExitCode: 0,
	}
}

// resolve joins script onto the control dir and checks the result stays
// inside it.
func (e *Executor) resolve(script string) (string, error) {
	p := filepath.Clean(filepath.Join(e.controlDir, script))
	rel, err := filepath.Rel(e.controlDir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", ErrPathEscape
	}
	if !strings.HasPrefix(p, e.controlDir+string(filepath.Separator)) {
		return "", ErrPathEscape
	}
	return p, nil
}

func (e *Executor) environ(extra map[string]string) []string {
	env := append(os.Environ(), e.env...)
	return append(env, envOverrides(extra)...)
}

func (e *Executor) record(ctx context.Context, label string, start time.Time, d time.Duration, res ExecutionResult) {
	if e.recorder == nil {
		return
	}
	run := PhaseRun{
		ID:        res.RunID,
		Phase:     label,
		Success:   res.Success,
		ExitCode:  res.ExitCode,
		Error:     res.Error,
		StartedAt: start.UTC(),
		Duration:  d,
	}
	if err := e.recorder.RecordPhaseRun(context.WithoutCancel(ctx), run); err != nil {
		e.log.Warn("record phase run", zap.String("phase", label), zap.Error(err))
	}
}

func failure(logs []string, exitCode int, err error) ExecutionResult {
	if exitCode == 0 {
		exitCode = 1
	}
	return ExecutionResult{
		Success:  false,
		Logs:     append(logs, "error: "+err.Error()),
		ExitCode: exitCode,
		Error:    err.Error(),
		Err:      err,
	}
}

// envOverrides renders m as KEY=value pairs in key order. exec keeps the last
// value for a duplicated key, so these win over os.Environ.
func envOverrides(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}
