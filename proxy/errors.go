package proxy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClosed reports a command issued after the backend was torn down.
	ErrClosed = errors.New("proxy closed")

	// ErrNotReady reports a command issued before Init succeeded.
	ErrNotReady = errors.New("proxy not initialized")

	// ErrNoAppHost reports an app-channel command on a backend built
	// without an AppHost collaborator.
	ErrNoAppHost = errors.New("no app host configured")
)

// InitializationError reports that the interpreter runtime failed to
// load or configure.
type InitializationError struct {
	Message string
}

func (e *InitializationError) Error() string {
	return "initialization failed: " + e.Message
}

// ExecutionError reports that guest source raised; Message is the
// interpreter's diagnostic text.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string {
	return e.Message
}

// NameResolutionError reports a failed dotted-path lookup.
type NameResolutionError struct {
	Path    []string
	Message string
}

func (e *NameResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %s: %s", strings.Join(e.Path, "."), e.Message)
}

// ProtocolError reports a reply whose tag does not match its command.
// It signals a programming defect, never a recoverable condition, and
// is never retried.
type ProtocolError struct {
	Expected CommandKind
	Got      CommandKind
	Message  string
}

func (e *ProtocolError) Error() string {
	if e.Message != "" {
		return "protocol error: " + e.Message
	}
	return fmt.Sprintf("protocol error: reply tagged %q for %q command", e.Got, e.Expected)
}

// Wire error kinds.
const (
	errKindInit     = "init"
	errKindExec     = "exec"
	errKindName     = "name"
	errKindInternal = "internal"
)

// wireError is the serialized form of a failure crossing the isolation
// boundary as a reply payload.
type wireError struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Path    []string `json:"path,omitempty"`
}

func toWireError(err error) *wireError {
	var initErr *InitializationError
	if errors.As(err, &initErr) {
		return &wireError{Kind: errKindInit, Message: initErr.Message}
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return &wireError{Kind: errKindExec, Message: execErr.Message}
	}
	var nameErr *NameResolutionError
	if errors.As(err, &nameErr) {
		return &wireError{Kind: errKindName, Message: nameErr.Message, Path: nameErr.Path}
	}
	return &wireError{Kind: errKindInternal, Message: err.Error()}
}

// typed reconstructs the caller-facing error on the near side of the
// boundary.
func (e *wireError) typed() error {
	switch e.Kind {
	case errKindInit:
		return &InitializationError{Message: e.Message}
	case errKindExec:
		return &ExecutionError{Message: e.Message}
	case errKindName:
		return &NameResolutionError{Path: e.Path, Message: e.Message}
	default:
		return errors.New(e.Message)
	}
}
