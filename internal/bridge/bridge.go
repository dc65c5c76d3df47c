// Package bridge lets page code run host commands and receive each result
// correlated by a caller-supplied token.
//
// A message moves through Received, Dispatched and then exactly one of
// Completed or Failed. Malformed messages are rejected before dispatch and
// answered immediately. Dispatched invocations run on their own goroutine so
// the caller never waits on a process.
package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/wizardry/host/internal/audit"
	"github.com/wizardry/host/internal/clog"
	"github.com/wizardry/host/internal/executor"
)

// Causes reported when a dispatched invocation is stopped early.
var (
	ErrInvocationTimeout  = errors.New("invocation timed out")
	ErrInvocationCanceled = errors.New("invocation canceled")
)

// Exit codes reported in outcomes that carry no process status.
const (
	// ExitRejected is used for messages refused before dispatch.
	ExitRejected = 1
	// ExitUnavailable is used when no process exit status exists.
	ExitUnavailable = executor.ExitCodeUnavailable
)

// Bridge validates invocations, runs them through an Executor and delivers
// one outcome per invocation.
type Bridge struct {
	exec    executor.Executor
	pending *Pending
	audit   *audit.Logger
	policy  Policy
	newID   func() string
	timeout time.Duration
	sem     *semaphore.Weighted
	env     map[string]string
	workdir string

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu     sync.Mutex // guards closed and wg.Add
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithTimeout sets a deadline for every dispatched invocation. Zero means
// no deadline.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.timeout = d }
}

// WithMaxConcurrent bounds the number of processes running at once. Extra
// invocations wait for a slot. Zero means unlimited.
func WithMaxConcurrent(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.sem = semaphore.NewWeighted(int64(n))
		} else {
			b.sem = nil
		}
	}
}

// WithPolicy installs a policy consulted before dispatch.
func WithPolicy(p Policy) Option {
	return func(b *Bridge) { b.policy = p }
}

// WithAuditLogger records invocation lifecycle events.
func WithAuditLogger(l *audit.Logger) Option {
	return func(b *Bridge) { b.audit = l }
}

// WithIDGenerator replaces the token generator used by Submit.
func WithIDGenerator(fn func() string) Option {
	return func(b *Bridge) { b.newID = fn }
}

// WithEnv adds environment variables to every command.
func WithEnv(env map[string]string) Option {
	return func(b *Bridge) { b.env = env }
}

// WithWorkdir sets the working directory of every command.
func WithWorkdir(dir string) Option {
	return func(b *Bridge) { b.workdir = dir }
}

// New creates a Bridge that runs commands with exec.
func New(exec executor.Executor, opts ...Option) *Bridge {
	b := &Bridge{
		exec:    exec,
		pending: NewPending(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.ctx, b.cancel = context.WithCancelCause(context.Background())
	return b
}

// Invoke handles one raw page message. It never blocks on a process: exec
// requests are either rejected with an immediate Failed outcome or
// dispatched to a worker. Cancel requests stop a dispatched invocation.
func (b *Bridge) Invoke(raw []byte, d Deliverer) {
	req, err := DecodeMessage(raw)
	if err != nil {
		var msgErr *MessageError
		id := ""
		if errors.As(err, &msgErr) {
			id = msgErr.ID
		}
		b.reject(id, "", err.Error(), d)
		return
	}

	switch r := req.(type) {
	case CancelRequest:
		if !b.Cancel(r.ID) {
			clog.Debug("bridge: cancel for unknown invocation %q ignored", r.ID)
		}
	case ExecRequest:
		b.dispatch(r.Invocation, d)
	}
}

// Submit dispatches an invocation built in Go rather than decoded from a
// page message. A token is generated when inv.ID is empty. It returns the
// token the outcome will carry.
func (b *Bridge) Submit(inv Invocation, d Deliverer) string {
	if inv.ID == "" {
		inv.ID = b.newID()
	}
	if err := ValidateCommand(inv.Command); err != nil {
		b.reject(inv.ID, inv.String(), err.Error(), d)
		return inv.ID
	}
	b.dispatch(inv, d)
	return inv.ID
}

// ExecuteNow runs a program synchronously and maps the executor result to
// an outcome without an ID. Spawn failures and context stops are reported
// with exit code -1 and an error.
func (b *Bridge) ExecuteNow(ctx context.Context, program string, args []string) Outcome {
	if program == "" {
		return failure("", ExitRejected, ErrEmptyCommand.Error())
	}

	res := b.exec.Execute(ctx, executor.Request{
		Program: program,
		Args:    args,
		Dir:     b.workdir,
		Env:     b.env,
	})

	out := Outcome{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
	}
	if res.Status != executor.StatusCompleted {
		msg := res.Error
		if msg == "" {
			msg = res.Status
		}
		out.Error = &msg
		out.ExitCode = ExitUnavailable
	}
	return out
}

// Cancel stops a dispatched invocation. Its outcome is still delivered,
// as Failed. It reports whether id was live.
func (b *Bridge) Cancel(id string) bool {
	return b.pending.Cancel(id, ErrInvocationCanceled)
}

// Pending returns the number of dispatched invocations that have not yet
// delivered an outcome.
func (b *Bridge) Pending() int {
	return b.pending.Len()
}

// List returns a snapshot of dispatched invocations.
func (b *Bridge) List() []PendingInvocation {
	return b.pending.List()
}

// Close cancels every live invocation and waits for their outcomes to be
// delivered. Later invocations are rejected.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.pending.Close(ErrClosed)
	b.cancel(ErrClosed)
	b.wg.Wait()
}

// dispatch registers a valid invocation and starts its worker.
func (b *Bridge) dispatch(inv Invocation, d Deliverer) {
	cmd := inv.String()

	if b.policy != nil {
		if ok, reason := b.policy.Allow(inv.Command); !ok {
			if reason == "" {
				reason = "command not allowed"
			}
			b.reject(inv.ID, cmd, reason, d)
			return
		}
	}

	ctx, cancel := context.WithCancelCause(b.ctx)
	stop := func() { cancel(nil) }
	if b.timeout > 0 {
		var stopTimer context.CancelFunc
		ctx, stopTimer = context.WithTimeoutCause(ctx, b.timeout, ErrInvocationTimeout)
		stop = func() {
			stopTimer()
			cancel(nil)
		}
	}

	started := time.Now()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		stop()
		b.reject(inv.ID, cmd, ErrClosed.Error(), d)
		return
	}
	if err := b.pending.Add(PendingInvocation{ID: inv.ID, Cmd: cmd, Started: started}, cancel); err != nil {
		b.mu.Unlock()
		stop()
		b.reject(inv.ID, cmd, err.Error(), d)
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	_ = b.audit.LogRequest(inv.ID, cmd)
	clog.Debug("bridge: dispatched %q: %s", inv.ID, cmd)

	go b.run(ctx, stop, inv, cmd, started, d)
}

// run executes a dispatched invocation and delivers its outcome.
func (b *Bridge) run(ctx context.Context, stop func(), inv Invocation, cmd string, started time.Time, d Deliverer) {
	defer b.wg.Done()
	defer stop()

	out := b.execute(ctx, inv)
	out.ID = inv.ID

	var cause error
	if out.Failed() && ctx.Err() != nil {
		cause = context.Cause(ctx)
		msg := causeMessage(cause)
		out.Error = &msg
		out.ExitCode = ExitUnavailable
	}

	if !b.pending.Remove(inv.ID) {
		return
	}

	b.record(out, cmd, cause, time.Since(started))
	b.deliver(d, out)
}

// execute waits for a worker slot and runs the invocation.
func (b *Bridge) execute(ctx context.Context, inv Invocation) Outcome {
	if b.sem != nil {
		if err := b.sem.Acquire(ctx, 1); err != nil {
			return failure(inv.ID, ExitUnavailable, err.Error())
		}
		defer b.sem.Release(1)
	}
	return b.ExecuteNow(ctx, inv.Program(), inv.Args())
}

// causeMessage returns the outcome error for an invocation stopped by its
// context.
func causeMessage(cause error) string {
	switch {
	case errors.Is(cause, ErrInvocationTimeout), errors.Is(cause, context.DeadlineExceeded):
		return ErrInvocationTimeout.Error()
	case errors.Is(cause, ErrClosed):
		return ErrClosed.Error()
	default:
		return ErrInvocationCanceled.Error()
	}
}

// record writes the terminal audit event for a dispatched invocation.
func (b *Bridge) record(out Outcome, cmd string, cause error, elapsed time.Duration) {
	switch {
	case !out.Failed():
		_ = b.audit.LogComplete(out.ID, cmd, out.ExitCode, elapsed)
	case cause != nil && *out.Error == ErrInvocationTimeout.Error():
		_ = b.audit.LogTimeout(out.ID, cmd)
	case cause != nil:
		_ = b.audit.LogCancel(out.ID, cmd)
	default:
		_ = b.audit.LogFail(out.ID, cmd, *out.Error, elapsed)
	}
}

// reject answers an invocation refused before dispatch.
func (b *Bridge) reject(id, cmd, reason string, d Deliverer) {
	_ = b.audit.LogReject(id, cmd, reason)
	clog.Debug("bridge: rejected %q: %s", id, reason)
	b.deliver(d, Rejected(id, reason))
}

// deliver hands an outcome to d. Failures are logged and dropped.
func (b *Bridge) deliver(d Deliverer, out Outcome) {
	if d == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			clog.Error("bridge: delivering outcome for %q panicked: %v", out.ID, r)
		}
	}()
	if err := d.Deliver(out); err != nil {
		clog.Warn("bridge: delivering outcome for %q: %v", out.ID, err)
	}
}
