// Package audit provides structured logging for command bridge events.
// Log entries follow a key=value format suitable for parsing and analysis.
package audit

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// EventType represents the type of bridge event.
type EventType string

// Event types for command invocations.
const (
	EventRequest  EventType = "REQUEST"
	EventReject   EventType = "REJECT"
	EventComplete EventType = "COMPLETE"
	EventFail     EventType = "FAIL"
	EventTimeout  EventType = "TIMEOUT"
	EventCancel   EventType = "CANCEL"
)

// Event represents a command bridge audit log entry.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Type is the event type (REQUEST, COMPLETE, etc.)
	Type EventType

	// App is the name of the hosted application.
	App string

	// ID is the invocation correlation token.
	ID string

	// Cmd is the command being executed.
	Cmd string

	// Reason explains a rejection or failure (for REJECT and FAIL events).
	Reason string

	// ExitCode is the command exit code (for COMPLETE events).
	ExitCode int

	// Duration is the execution time (for COMPLETE and FAIL events).
	Duration time.Duration
}

// Format returns the log entry as a formatted string.
// Format: 2024-01-15T14:32:05Z BRIDGE REQUEST app=notes id="a1" cmd="echo hi"
func (e *Event) Format() string {
	var b strings.Builder

	b.WriteString(e.Timestamp.UTC().Format(time.RFC3339))
	b.WriteString(" BRIDGE ")
	b.WriteString(string(e.Type))

	b.WriteString(" app=")
	b.WriteString(bareValue(e.App))
	b.WriteString(" id=")
	b.WriteString(quoteValue(e.ID))
	b.WriteString(" cmd=")
	b.WriteString(quoteValue(e.Cmd))

	e.formatTypeSpecificFields(&b)

	return b.String()
}

// formatTypeSpecificFields appends type-specific key=value pairs to the builder.
func (e *Event) formatTypeSpecificFields(b *strings.Builder) {
	switch e.Type {
	case EventReject:
		writeOptionalField(b, "reason", e.Reason)
	case EventComplete:
		b.WriteString(" exit=")
		b.WriteString(strconv.Itoa(e.ExitCode))
		b.WriteString(" duration=")
		b.WriteString(formatDuration(e.Duration))
	case EventFail:
		writeOptionalField(b, "reason", e.Reason)
		b.WriteString(" duration=")
		b.WriteString(formatDuration(e.Duration))
	}
}

// writeOptionalField appends " key=quoted_value" to the builder if value is non-empty.
func writeOptionalField(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	b.WriteString(" ")
	b.WriteString(key)
	b.WriteString("=")
	b.WriteString(quoteValue(value))
}

// quoteValue returns a quoted string value.
// Values are always quoted for consistency and to handle spaces/special chars.
func quoteValue(s string) string {
	return fmt.Sprintf("%q", s)
}

// bareValue returns s unquoted when it is a single plain token, quoted otherwise.
func bareValue(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return quoteValue(s)
	}
	return s
}

// formatDuration formats a duration as a human-readable string (e.g., "2.3s", "1m30s").
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

// Logger writes audit events to an io.Writer.
// A nil *Logger is valid and discards every event.
type Logger struct {
	mu  sync.Mutex
	w   io.Writer
	app string
}

// NewLogger creates a new audit logger that writes to the given writer.
// app is recorded on every event.
func NewLogger(w io.Writer, app string) *Logger {
	return &Logger{w: w, app: app}
}

// Log writes an event to the audit log.
func (l *Logger) Log(e *Event) error {
	if l == nil || l.w == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if e.App == "" {
		e.App = l.app
	}

	line := e.Format() + "\n"
	_, err := l.w.Write([]byte(line))
	if err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// LogRequest logs a BRIDGE REQUEST event.
func (l *Logger) LogRequest(id, cmd string) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      EventRequest,
		ID:        id,
		Cmd:       cmd,
	})
}

// LogReject logs a BRIDGE REJECT event for an invocation that was never dispatched.
func (l *Logger) LogReject(id, cmd, reason string) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      EventReject,
		ID:        id,
		Cmd:       cmd,
		Reason:    reason,
	})
}

// LogComplete logs a BRIDGE COMPLETE event.
func (l *Logger) LogComplete(id, cmd string, exitCode int, duration time.Duration) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      EventComplete,
		ID:        id,
		Cmd:       cmd,
		ExitCode:  exitCode,
		Duration:  duration,
	})
}

// LogFail logs a BRIDGE FAIL event for a dispatched invocation that could not run.
func (l *Logger) LogFail(id, cmd, reason string, duration time.Duration) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      EventFail,
		ID:        id,
		Cmd:       cmd,
		Reason:    reason,
		Duration:  duration,
	})
}

// LogTimeout logs a BRIDGE TIMEOUT event.
func (l *Logger) LogTimeout(id, cmd string) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      EventTimeout,
		ID:        id,
		Cmd:       cmd,
	})
}

// LogCancel logs a BRIDGE CANCEL event.
func (l *Logger) LogCancel(id, cmd string) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      EventCancel,
		ID:        id,
		Cmd:       cmd,
	})
}
