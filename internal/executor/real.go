package executor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultWaitDelay bounds how long Execute waits for output pipes to close
// after the process has exited or been killed. Grandchildren that inherit
// stdout/stderr would otherwise keep the worker blocked.
const DefaultWaitDelay = 2 * time.Second

// RealExecutor executes commands using os/exec.
type RealExecutor struct {
	waitDelay time.Duration
}

// NewRealExecutor creates a new RealExecutor.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{waitDelay: DefaultWaitDelay}
}

// Execute runs a command and returns the result. It never returns an error:
// spawn failures, timeouts and cancellation are reported in the Result.
func (e *RealExecutor) Execute(ctx context.Context, req Request) Result {
	if req.Program == "" {
		return Result{
			Status:   StatusError,
			ExitCode: ExitCodeUnavailable,
			Error:    "empty command",
		}
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	if ctx.Err() != nil {
		return contextResult(ctx, "", "")
	}

	cmd := exec.CommandContext(ctx, req.Program, req.Args...) //nolint:gosec // G204: discrete args, no shell
	if req.Dir != "" {
		cmd.Dir = req.Dir
	}
	if len(req.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range req.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = e.waitDelay
	configureProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return contextResult(ctx, "", "")
		}
		// Spawn failure: binary missing, permission denied, bad argument.
		return Result{
			Status:   StatusError,
			ExitCode: ExitCodeUnavailable,
			Error:    err.Error(),
		}
	}

	err := cmd.Wait()
	outText := decode(stdout.Bytes())
	errText := decode(stderr.Bytes())

	if err != nil && ctx.Err() != nil {
		return contextResult(ctx, outText, errText)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// ExitCode is -1 when the process was terminated by a signal.
			return Result{
				Status:   StatusCompleted,
				ExitCode: exitErr.ExitCode(),
				Stdout:   outText,
				Stderr:   errText,
			}
		}

		// The process exited but a descendant kept the pipes open past WaitDelay.
		if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
			return Result{
				Status:   StatusCompleted,
				ExitCode: cmd.ProcessState.ExitCode(),
				Stdout:   outText,
				Stderr:   errText,
			}
		}

		return Result{
			Status:   StatusError,
			ExitCode: ExitCodeUnavailable,
			Stdout:   outText,
			Stderr:   errText,
			Error:    err.Error(),
		}
	}

	return Result{
		Status:   StatusCompleted,
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   outText,
		Stderr:   errText,
	}
}

// contextResult maps a finished context to a timeout or canceled result.
func contextResult(ctx context.Context, stdout, stderr string) Result {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Result{
			Status:   StatusTimeout,
			ExitCode: ExitCodeUnavailable,
			Stdout:   stdout,
			Stderr:   stderr,
			Error:    "command timed out",
		}
	}
	return Result{
		Status:   StatusCanceled,
		ExitCode: ExitCodeUnavailable,
		Stdout:   stdout,
		Stderr:   stderr,
		Error:    "command canceled",
	}
}

// decode converts captured output to text. Each invalid byte becomes one
// U+FFFD.
func decode(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b) + 8)
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}
