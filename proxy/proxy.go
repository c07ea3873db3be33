package proxy

import (
	"context"
	"fmt"

	"github.com/pontoon-dev/pontoon/interp"
)

// Placement selects where the interpreter runs relative to the caller.
type Placement string

const (
	// PlaceInProcess runs the interpreter on the caller's goroutine.
	PlaceInProcess Placement = "inprocess"

	// PlaceIsolated runs the interpreter on a dedicated goroutine
	// reachable only by message passing.
	PlaceIsolated Placement = "isolated"
)

// Proxy is the single command interface a host application sees. Both
// placements honor the same vocabulary and behave identically to
// callers.
type Proxy interface {
	// Init creates the backend's one interpreter instance. It fails
	// with InitializationError if the runtime cannot load, and with
	// ErrClosed or a repeat-init error afterward.
	Init(ctx context.Context, cfg interp.Config) error

	// PreloadModules scans source for import statements and ensures
	// the referenced modules are available before execution.
	PreloadModules(ctx context.Context, source string) error

	// Execute runs source to completion. The result is shaped by
	// WithResultMode; unless WithoutEcho is given, a non-empty
	// statement value is also echoed to the stdout sink. A guest raise
	// surfaces as ExecutionError and reaches the stderr sink exactly
	// once.
	Execute(ctx context.Context, source string, opts ...ExecOption) (*ExecuteResult, error)

	// CompleteAt returns completion suggestions for a cursor at the
	// end of source, in the engine's native order.
	CompleteAt(ctx context.Context, source string) ([]string, error)

	// InvokeNamed calls a guest callable found by walking path through
	// the interpreter's global namespace. A missing segment is a
	// NameResolutionError.
	InvokeNamed(ctx context.Context, path []string, args []any, kwargs map[string]any) (any, error)

	// OpenAppChannel passes a channel-open request through to the
	// hosting collaborator.
	OpenAppChannel(ctx context.Context, path, appID string, endpoint AppEndpoint) error

	// DispatchHTTPScope passes one HTTP request scope through to the
	// hosting collaborator.
	DispatchHTTPScope(ctx context.Context, scope HTTPScope, appID string, endpoint AppEndpoint) error

	// Close tears down the backend and its interpreter.
	Close() error
}

// New constructs the backend for the requested placement. Callers
// depend only on the Proxy interface afterward.
func New(placement Placement, factory interp.Factory, opts ...Option) (Proxy, error) {
	switch placement {
	case PlaceInProcess:
		return NewInProcess(factory, opts...), nil
	case PlaceIsolated:
		return NewWorker(factory, opts...), nil
	default:
		return nil, fmt.Errorf("unknown placement %q", placement)
	}
}
