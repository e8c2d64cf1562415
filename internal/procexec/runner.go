package procexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"weatherflow/internal/logging"
	"weatherflow/internal/services"
)

// waitDelay bounds how long Wait blocks on output pipes after the process
// group has been killed.
const waitDelay = 5 * time.Second

// Command describes one external invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Stdin   io.Reader
	Timeout time.Duration
}

// String renders the command for logs and diagnostics.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result captures the observable outcome of a command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// Runner abstracts command execution for testability.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExitError reports a command that ran to completion with a non-zero status.
type ExitError struct {
	Command string
	Result  Result
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Command, e.Result.ExitCode)
	if tail := lastLine(e.Result.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *ExitError) Unwrap() error { return services.ErrExternalTool }

// Option configures the runner.
type Option func(*ExecRunner)

// WithLogger attaches a logger used for debug-level command tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(r *ExecRunner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// ExecRunner executes commands on the host via os/exec.
type ExecRunner struct {
	logger *slog.Logger
}

// New constructs a host command runner.
func New(opts ...Option) *ExecRunner {
	r := &ExecRunner{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes cmd, killing its process group when the timeout elapses or ctx is cancelled.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if strings.TrimSpace(cmd.Name) == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, "procexec", "run", "command name required", nil)
	}
	runCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	proc := exec.CommandContext(runCtx, cmd.Name, cmd.Args...) //nolint:gosec
	proc.Dir = cmd.Dir
	proc.Stdin = cmd.Stdin
	proc.Stdout = &stdout
	proc.Stderr = &stderr
	proc.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	proc.Cancel = func() error {
		if proc.Process == nil {
			return nil
		}
		return unix.Kill(-proc.Process.Pid, unix.SIGKILL)
	}
	proc.WaitDelay = waitDelay

	logger := logging.WithContext(ctx, r.logger)
	logger.Debug("command started", logging.String("command", cmd.String()), logging.Duration("timeout", cmd.Timeout))

	start := time.Now()
	err := proc.Run()
	result := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode(proc),
		Duration: time.Since(start),
	}

	switch {
	case err == nil:
		logger.Debug("command finished", logging.String("command", cmd.Name), logging.Duration("duration", result.Duration))
		return result, nil
	case errors.Is(err, exec.ErrNotFound):
		return result, services.Wrap(services.ErrConfiguration, "procexec", cmd.Name, "binary not found on PATH", err)
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		result.TimedOut = true
		return result, services.Wrap(services.ErrTimeout, "procexec", cmd.Name, fmt.Sprintf("exceeded %s", cmd.Timeout), nil)
	case ctx.Err() != nil:
		return result, fmt.Errorf("%s: %w", cmd.Name, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return result, &ExitError{Command: cmd.String(), Result: result}
	}
	return result, services.Wrap(services.ErrExternalTool, "procexec", cmd.Name, "start command", err)
}

func exitCode(proc *exec.Cmd) int {
	if proc.ProcessState == nil {
		return -1
	}
	return proc.ProcessState.ExitCode()
}

func lastLine(b []byte) string {
	text := strings.TrimSpace(string(b))
	if idx := strings.LastIndexByte(text, '\n'); idx >= 0 {
		text = text[idx+1:]
	}
	return strings.TrimSpace(text)
}
