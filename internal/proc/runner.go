// Package proc runs external programs with an explicit argument vector.
// Nothing in this package ever hands a command line to a shell for parsing.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrSpawn is returned when the program could not be started at all.
	ErrSpawn = errors.New("spawn failed")
	// ErrTimeout is returned when the context deadline expired before the
	// program exited. The process group has been killed by then.
	ErrTimeout = errors.New("timed out")
)

// defaultWaitDelay bounds how long Wait keeps draining stdout/stderr once the
// process has exited or been killed; grandchildren can hold the pipes open.
const defaultWaitDelay = 5 * time.Second

// Command describes one subprocess invocation.
type Command struct {
	Path string   // executable, looked up in PATH if it has no separator
	Args []string // argv[1:]
	Dir  string
	Env  []string // full environment; nil inherits the current process env
}

// Output is what a finished (or killed) subprocess produced.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner abstracts command execution for testability.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Output, error)
}

// ExecRunner implements Runner with os/exec.
type ExecRunner struct {
	// WaitDelay overrides defaultWaitDelay when positive.
	WaitDelay time.Duration
}

// Run starts cmd and waits for it. A non-zero exit is reported through
// Output.ExitCode with a nil error; only spawn failures, timeouts and
// cancellation return an error, always alongside ExitCode -1.
//
// A program that exits while a background child still holds its output
// pipes is reported with its own exit code; output written after the
// wait delay is lost.
//
// Error messages name the program by base name only.
func (e *ExecRunner) Run(ctx context.Context, c Command) (Output, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.WaitDelay = defaultWaitDelay
	if e.WaitDelay > 0 {
		cmd.WaitDelay = e.WaitDelay
	}
	configureProcessGroup(cmd)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	start := time.Now()
	err := cmd.Run()
	out := Output{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		name := filepath.Base(c.Path)
		if ctxErr := ctx.Err(); ctxErr != nil {
			out.ExitCode = -1
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return out, fmt.Errorf("%s: %w after %s", name, ErrTimeout, out.Duration.Round(time.Millisecond))
			}
			return out, fmt.Errorf("%s: %w", name, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
			out.ExitCode = cmd.ProcessState.ExitCode()
			return out, nil
		}
		out.ExitCode = -1
		msg := err.Error()
		if c.Path != "" {
			msg = strings.ReplaceAll(msg, c.Path, name)
		}
		return out, fmt.Errorf("%w: %s: %s", ErrSpawn, name, msg)
	}
	return out, nil
}
