package bridge

// Outcome is the single result delivered for an invocation. Error is nil for
// a completed invocation and serialized as JSON null.
type Outcome struct {
	ID       string  `json:"id"`
	Stdout   string  `json:"stdout"`
	Stderr   string  `json:"stderr"`
	ExitCode int     `json:"exit_code"`
	Error    *string `json:"error"`
}

// Failed reports whether the invocation failed before or during execution.
func (o Outcome) Failed() bool {
	return o.Error != nil
}

// Rejected builds the outcome for a message refused before dispatch.
func Rejected(id, reason string) Outcome {
	return failure(id, ExitRejected, reason)
}

// failure builds a Failed outcome with empty output.
func failure(id string, exitCode int, msg string) Outcome {
	return Outcome{ID: id, ExitCode: exitCode, Error: &msg}
}

// Deliverer receives outcomes. Implementations must be safe for concurrent
// use since workers deliver from their own goroutines.
type Deliverer interface {
	Deliver(Outcome) error
}

// DeliverFunc adapts an ordinary function to the Deliverer interface.
type DeliverFunc func(Outcome) error

// Deliver calls f(o).
func (f DeliverFunc) Deliver(o Outcome) error {
	return f(o)
}
