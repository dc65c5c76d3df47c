// Package executor provides the interface and types for host command execution.
package executor

import (
	"context"
	"time"
)

// Executor executes commands on the host system.
type Executor interface {
	Execute(ctx context.Context, req Request) Result
}

// Request contains the command execution parameters.
// Program is looked up on PATH; Args are passed as discrete arguments and
// never interpreted by a shell.
type Request struct {
	Program string            `json:"program"`
	Args    []string          `json:"args"`
	Dir     string            `json:"dir,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Timeout time.Duration     `json:"timeout,omitempty"`
}

// Result contains the result of command execution.
type Result struct {
	Status   string `json:"status"` // "completed", "timeout", "canceled", "error"
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Error    string `json:"error,omitempty"`
}

// Status constants for Result.Status.
const (
	StatusCompleted = "completed"
	StatusTimeout   = "timeout"
	StatusCanceled  = "canceled"
	StatusError     = "error"
)

// ExitCodeUnavailable is reported when a process could not be started,
// was killed by a signal, or was stopped by its context.
const ExitCodeUnavailable = -1
