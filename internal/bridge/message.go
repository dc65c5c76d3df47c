package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Message type tags. An exec message may omit the tag.
const (
	TypeExec   = "exec"
	TypeCancel = "cancel"
)

// Errors describing malformed messages. They are wrapped in *MessageError.
var (
	ErrMalformed      = errors.New("malformed message")
	ErrMissingID      = errors.New("missing id")
	ErrMissingCommand = errors.New("missing command")
	ErrEmptyCommand   = errors.New("empty command")
	ErrEmptyProgram   = errors.New("empty program")
	ErrNULByte        = errors.New("arguments cannot contain NUL bytes")
	ErrUnknownType    = errors.New("unknown message type")
)

// Invocation is a request to run one command. Command[0] is the program,
// the remaining elements are its arguments.
type Invocation struct {
	ID      string   `json:"id"`
	Command []string `json:"command"`
}

// Program returns the program to execute.
func (inv Invocation) Program() string {
	if len(inv.Command) == 0 {
		return ""
	}
	return inv.Command[0]
}

// Args returns the arguments passed to the program.
func (inv Invocation) Args() []string {
	if len(inv.Command) < 2 {
		return nil
	}
	return inv.Command[1:]
}

// String returns the command as a shell-quoted display string.
func (inv Invocation) String() string {
	return canonicalCmd(inv.Command)
}

// Request is a decoded page message. The set of implementations is closed:
// ExecRequest and CancelRequest.
type Request interface {
	RequestID() string
	isRequest()
}

// ExecRequest asks the bridge to run a command.
type ExecRequest struct {
	Invocation
}

// RequestID returns the correlation token.
func (r ExecRequest) RequestID() string { return r.ID }
func (ExecRequest) isRequest()          {}

// CancelRequest asks the bridge to cancel a dispatched invocation.
type CancelRequest struct {
	ID string
}

// RequestID returns the token of the invocation to cancel.
func (r CancelRequest) RequestID() string { return r.ID }
func (CancelRequest) isRequest()          {}

// MessageError reports a message that could not be decoded. ID holds the
// correlation token when it could be recovered, so the rejection can still
// be delivered to the right caller.
type MessageError struct {
	ID  string
	Err error
}

func (e *MessageError) Error() string {
	return e.Err.Error()
}

func (e *MessageError) Unwrap() error {
	return e.Err
}

// wireMessage is the JSON shape of a page message. Fields are kept raw so
// type mismatches produce precise errors.
type wireMessage struct {
	Type    *string         `json:"type"`
	ID      json.RawMessage `json:"id"`
	Command json.RawMessage `json:"command"`
}

// DecodeMessage validates a raw page message and returns the request it
// carries. Errors are always *MessageError.
func DecodeMessage(raw []byte) (Request, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &MessageError{Err: fmt.Errorf("%w: expected a JSON object", ErrMalformed)}
	}

	var msg wireMessage
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, &MessageError{Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	id, err := decodeID(msg.ID)
	if err != nil {
		return nil, &MessageError{Err: err}
	}

	kind := TypeExec
	if msg.Type != nil {
		kind = *msg.Type
	}

	switch kind {
	case TypeExec:
		command, err := decodeCommand(msg.Command)
		if err != nil {
			return nil, &MessageError{ID: id, Err: err}
		}
		return ExecRequest{Invocation{ID: id, Command: command}}, nil
	case TypeCancel:
		return CancelRequest{ID: id}, nil
	default:
		return nil, &MessageError{ID: id, Err: fmt.Errorf("%w: %q", ErrUnknownType, kind)}
	}
}

func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", ErrMissingID
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", fmt.Errorf("%w: id must be a string", ErrMalformed)
	}
	if id == "" {
		return "", ErrMissingID
	}
	return id, nil
}

func decodeCommand(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrMissingCommand
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("%w: command must be an array", ErrMalformed)
	}

	command := make([]string, len(elems))
	for i, elem := range elems {
		if err := json.Unmarshal(elem, &command[i]); err != nil || bytes.Equal(bytes.TrimSpace(elem), []byte("null")) {
			return nil, fmt.Errorf("%w: argument %d is not a string", ErrMalformed, i)
		}
	}

	if err := ValidateCommand(command); err != nil {
		return nil, err
	}
	return command, nil
}

// ValidateCommand checks that a command list can be executed: it must be
// non-empty, name a program, and contain no NUL bytes.
func ValidateCommand(command []string) error {
	if len(command) == 0 {
		return ErrEmptyCommand
	}
	if command[0] == "" {
		return ErrEmptyProgram
	}
	for _, arg := range command {
		if strings.IndexByte(arg, 0) >= 0 {
			return ErrNULByte
		}
	}
	return nil
}
