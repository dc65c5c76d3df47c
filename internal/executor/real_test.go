package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestRealExecutorInterface verifies RealExecutor implements Executor.
func TestRealExecutorInterface(_ *testing.T) {
	var _ Executor = &RealExecutor{}
	var _ Executor = NewRealExecutor()
}

// TestRealExecutorEchoHello verifies basic command execution.
func TestRealExecutorEchoHello(t *testing.T) {
	executor := NewRealExecutor()
	req := Request{
		Program: "echo",
		Args:    []string{"hi"},
	}

	resp := executor.Execute(context.Background(), req)

	if resp.Status != StatusCompleted {
		t.Errorf("Status: got %q, want %q", resp.Status, StatusCompleted)
	}
	if resp.ExitCode != 0 {
		t.Errorf("ExitCode: got %d, want 0", resp.ExitCode)
	}
	if resp.Stdout != "hi\n" {
		t.Errorf("Stdout: got %q, want %q", resp.Stdout, "hi\n")
	}
	if resp.Stderr != "" {
		t.Errorf("Stderr should be empty, got: %q", resp.Stderr)
	}
	if resp.Error != "" {
		t.Errorf("Error should be empty, got: %q", resp.Error)
	}
}

// TestRealExecutorArgsNotShellInterpreted verifies arguments reach the
// program verbatim.
func TestRealExecutorArgsNotShellInterpreted(t *testing.T) {
	executor := NewRealExecutor()
	arg := "$(touch injected); `id` && echo | cat"

	resp := executor.Execute(context.Background(), Request{
		Program: "echo",
		Args:    []string{arg},
		Dir:     t.TempDir(),
	})

	if resp.Stdout != arg+"\n" {
		t.Errorf("Stdout: got %q, want %q", resp.Stdout, arg+"\n")
	}
}

// TestRealExecutorNonexistentCommand verifies spawn failures.
func TestRealExecutorNonexistentCommand(t *testing.T) {
	executor := NewRealExecutor()
	req := Request{
		Program: "this-command-definitely-does-not-exist-anywhere",
	}

	resp := executor.Execute(context.Background(), req)

	if resp.Status != StatusError {
		t.Errorf("Status: got %q, want %q", resp.Status, StatusError)
	}
	if resp.ExitCode != ExitCodeUnavailable {
		t.Errorf("ExitCode: got %d, want %d", resp.ExitCode, ExitCodeUnavailable)
	}
	if resp.Stdout != "" || resp.Stderr != "" {
		t.Errorf("expected empty output, got stdout=%q stderr=%q", resp.Stdout, resp.Stderr)
	}
	if !strings.Contains(resp.Error, "this-command-definitely-does-not-exist-anywhere") {
		t.Errorf("Error should name the program, got: %q", resp.Error)
	}
}

// TestRealExecutorPermissionDenied verifies a non-executable file is a spawn failure.
func TestRealExecutorPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses execute permission checks")
	}

	script := filepath.Join(t.TempDir(), "not-executable.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho nope\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp := NewRealExecutor().Execute(context.Background(), Request{Program: script})

	if resp.Status != StatusError {
		t.Errorf("Status: got %q, want %q", resp.Status, StatusError)
	}
	if resp.ExitCode != ExitCodeUnavailable {
		t.Errorf("ExitCode: got %d, want %d", resp.ExitCode, ExitCodeUnavailable)
	}
	if !strings.Contains(resp.Error, "permission denied") {
		t.Errorf("Error should mention permission denied, got: %q", resp.Error)
	}
}

// TestRealExecutorEmptyProgram verifies an empty program is never spawned.
func TestRealExecutorEmptyProgram(t *testing.T) {
	resp := NewRealExecutor().Execute(context.Background(), Request{})

	if resp.Status != StatusError {
		t.Errorf("Status: got %q, want %q", resp.Status, StatusError)
	}
	if resp.Error != "empty command" {
		t.Errorf("Error: got %q, want %q", resp.Error, "empty command")
	}
}

// TestRealExecutorTimeout verifies timeout handling.
func TestRealExecutorTimeout(t *testing.T) {
	executor := NewRealExecutor()
	req := Request{
		Program: "sleep",
		Args:    []string{"10"},
		Timeout: 100 * time.Millisecond,
	}

	start := time.Now()
	resp := executor.Execute(context.Background(), req)

	if resp.Status != StatusTimeout {
		t.Errorf("Status: got %q, want %q", resp.Status, StatusTimeout)
	}
	if resp.ExitCode != ExitCodeUnavailable {
		t.Errorf("ExitCode: got %d, want -1", resp.ExitCode)
	}
	if !strings.Contains(resp.Error, "timed out") {
		t.Errorf("Error should contain 'timed out', got: %q", resp.Error)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}

// TestRealExecutorTimeoutKillsChildren verifies the whole process group is
// terminated, not just the direct child.
func TestRealExecutorTimeoutKillsChildren(t *testing.T) {
	executor := NewRealExecutor()
	req := Request{
		Program: "sh",
		Args:    []string{"-c", "sleep 10 & sleep 10; wait"},
		Timeout: 100 * time.Millisecond,
	}

	start := time.Now()
	resp := executor.Execute(context.Background(), req)

	if resp.Status != StatusTimeout {
		t.Errorf("Status: got %q, want %q", resp.Status, StatusTimeout)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("grandchildren kept the executor blocked for %v", elapsed)
	}
}

// TestRealExecutorContextCancelled verifies context cancellation is handled.
func TestRealExecutorContextCancelled(t *testing.T) {
	executor := NewRealExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := Request{
		Program: "sleep",
		Args:    []string{"10"},
	}

	resp := executor.Execute(ctx, req)

	if resp.Status != StatusCanceled {
		t.Errorf("Status: got %q, want %q", resp.Status, StatusCanceled)
	}
	if resp.ExitCode != ExitCodeUnavailable {
		t.Errorf("ExitCode: got %d, want -1", resp.ExitCode)
	}
}

// TestRealExecutorCancelWhileRunning verifies cancellation of a running process.
func TestRealExecutorCancelWhileRunning(t *testing.T) {
	executor := NewRealExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	resp := executor.Execute(ctx, Request{Program: "sleep", Args: []string{"10"}})

	if resp.Status != StatusCanceled {
		t.Errorf("Status: got %q, want %q", resp.Status, StatusCanceled)
	}
	if resp.Error != "command canceled" {
		t.Errorf("Error: got %q", resp.Error)
	}
}

// TestRealExecutorWorkdir verifies working directory is set correctly.
func TestRealExecutorWorkdir(t *testing.T) {
	tmpDir := t.TempDir()

	executor := NewRealExecutor()
	req := Request{
		Program: "pwd",
		Dir:     tmpDir,
	}

	resp := executor.Execute(context.Background(), req)

	if resp.Status != StatusCompleted {
		t.Errorf("Status: got %q, want %q", resp.Status, StatusCompleted)
	}
	// On macOS, /tmp is a symlink to /private/tmp, so resolve both
	expectedDir, _ := filepath.EvalSymlinks(tmpDir)
	actualDir := strings.TrimSpace(resp.Stdout)
	actualDir, _ = filepath.EvalSymlinks(actualDir)
	if actualDir != expectedDir {
		t.Errorf("Dir: got %q, want %q", actualDir, expectedDir)
	}
}

// TestRealExecutorPreserveInheritedEnv verifies that when custom env is set,
// the inherited environment is preserved.
func TestRealExecutorPreserveInheritedEnv(t *testing.T) {
	t.Setenv("EXECUTOR_TEST_INHERITED", "inherited_value")

	executor := NewRealExecutor()
	req := Request{
		Program: "sh",
		Args:    []string{"-c", "echo $EXECUTOR_TEST_INHERITED $TEST_CUSTOM"},
		Env:     map[string]string{"TEST_CUSTOM": "custom_value"},
	}

	resp := executor.Execute(context.Background(), req)

	if resp.Status != StatusCompleted {
		t.Errorf("Status: got %q, want %q", resp.Status, StatusCompleted)
	}
	if resp.Stdout != "inherited_value custom_value\n" {
		t.Errorf("Stdout: got %q", resp.Stdout)
	}
}

// TestRealExecutorExitCode verifies non-zero exit codes are captured.
func TestRealExecutorExitCode(t *testing.T) {
	executor := NewRealExecutor()
	req := Request{
		Program: "sh",
		Args:    []string{"-c", "echo partial; exit 42"},
	}

	resp := executor.Execute(context.Background(), req)

	if resp.Status != StatusCompleted {
		t.Errorf("Status: got %q, want %q", resp.Status, StatusCompleted)
	}
	if resp.ExitCode != 42 {
		t.Errorf("ExitCode: got %d, want 42", resp.ExitCode)
	}
	if resp.Stdout != "partial\n" {
		t.Errorf("Stdout: got %q", resp.Stdout)
	}
	if resp.Error != "" {
		t.Errorf("Error should be empty for a normal exit, got %q", resp.Error)
	}
}

// TestRealExecutorSignal verifies a signal-terminated process reports -1.
func TestRealExecutorSignal(t *testing.T) {
	resp := NewRealExecutor().Execute(context.Background(), Request{
		Program: "sh",
		Args:    []string{"-c", "kill -9 $$"},
	})

	if resp.Status != StatusCompleted {
		t.Errorf("Status: got %q, want %q", resp.Status, StatusCompleted)
	}
	if resp.ExitCode != ExitCodeUnavailable {
		t.Errorf("ExitCode: got %d, want -1", resp.ExitCode)
	}
}

// TestRealExecutorStderr verifies stderr is captured.
func TestRealExecutorStderr(t *testing.T) {
	executor := NewRealExecutor()
	req := Request{
		Program: "sh",
		Args:    []string{"-c", "echo error_message >&2"},
	}

	resp := executor.Execute(context.Background(), req)

	if resp.Status != StatusCompleted {
		t.Errorf("Status: got %q, want %q", resp.Status, StatusCompleted)
	}
	if resp.Stderr != "error_message\n" {
		t.Errorf("Stderr: got %q", resp.Stderr)
	}
	if resp.Stdout != "" {
		t.Errorf("Stdout should be empty, got %q", resp.Stdout)
	}
}

// TestRealExecutorInvalidUTF8 verifies invalid output bytes are replaced.
func TestRealExecutorInvalidUTF8(t *testing.T) {
	resp := NewRealExecutor().Execute(context.Background(), Request{
		Program: "printf",
		Args:    []string{`a\377b`},
	})

	if resp.Status != StatusCompleted {
		t.Fatalf("Status: got %q, want %q", resp.Status, StatusCompleted)
	}
	if resp.Stdout != "a�b" {
		t.Errorf("Stdout: got %q, want %q", resp.Stdout, "a�b")
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{nil, ""},
		{[]byte("plain"), "plain"},
		{[]byte("héllo"), "héllo"},
		{[]byte{0xff, 0xfe}, "��"},
		{[]byte{'a', 0xff, 'b', 0xfe}, "a�b�"},
		{[]byte("\u00e9\xff"), "é�"},
		{[]byte{'x', 0xc3}, "x�"},
	}
	for _, tt := range tests {
		if got := decode(tt.in); got != tt.want {
			t.Errorf("decode(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
