// Package interp defines the contract between pontoon and a guest
// interpreter implementation.
//
// A backend owns exactly one Interpreter for its whole lifetime: the
// instance is created by a [Factory] when the backend initializes and
// closed when the backend is torn down. Implementations live under
// language/ (see [github.com/pontoon-dev/pontoon/language/javascript]);
// tests use [Fake].
package interp

import (
	"context"
	"io"
	"os"
)

// HostCallFunc lets guest code invoke a host-side function by dotted
// name path. Backends wire this to their host function dispatch table.
type HostCallFunc func(ctx context.Context, path []string, args []any) (any, error)

// Config is passed once when the interpreter is created and is
// immutable afterward.
type Config struct {
	// RuntimeAssets is the directory holding interpreter runtime files
	// (interpreter binary, preloadable modules). Required by runtimes
	// that load themselves from disk.
	RuntimeAssets string

	// FullStdlib loads the complete guest standard library instead of
	// the minimal default set.
	FullStdlib bool

	// Stdin supplies synchronous guest reads. Defaults to os.Stdin.
	Stdin io.Reader

	// Stdout and Stderr receive guest text output. Default to the
	// process console.
	Stdout io.Writer
	Stderr io.Writer

	// HostCall, when set, is exposed to guest code for invoking host
	// functions by dotted path.
	HostCall HostCallFunc
}

// WithDefaults returns a copy of c with console sinks filled in.
func (c Config) WithDefaults() Config {
	if c.Stdin == nil {
		c.Stdin = os.Stdin
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
	return c
}

// Factory creates the single interpreter instance a backend owns.
type Factory func(cfg Config) (Interpreter, error)

// Interpreter executes guest source text. Implementations are not
// required to be goroutine-safe; backends serialize access.
type Interpreter interface {
	// Eval runs source to completion and returns the value of the last
	// statement, or nil when it produced none. A guest raise is
	// returned as an error whose message is the interpreter's
	// diagnostic text.
	Eval(ctx context.Context, source string) (Value, error)

	// Complete returns tab-completion suggestions for a cursor at the
	// end of source, in the engine's native ranking order.
	Complete(ctx context.Context, source string) ([]string, error)

	// Invoke resolves a callable by walking path through the guest
	// global namespace and calls it. A missing path segment is
	// reported by an error wrapping hostfunc.ErrNotFound.
	Invoke(ctx context.Context, path []string, args []any, kwargs map[string]any) (Value, error)

	// LoadModules scans source for import statements and makes the
	// referenced modules available before execution.
	LoadModules(ctx context.Context, source string) error

	// Close destroys the interpreter instance.
	Close() error
}

// Value is an opaque guest value held only long enough to convert it.
// Callers must Release it once converted, on every path.
type Value interface {
	// Export converts the value into the nearest host equivalent:
	// numbers, strings, sequences and mappings of such. Values with no
	// faithful equivalent degrade to an implementation-defined
	// representation rather than failing.
	Export() (any, error)

	// Repr is the interpreter's canonical human-readable rendering.
	Repr() string

	// Render reports whether the value can describe itself as
	// displayable markup, and if so returns it.
	Render() (Markup, bool)

	// Empty reports a value that should not be echoed (e.g. the guest
	// null/undefined result of a statement).
	Empty() bool

	// Release frees any interpreter-side handle behind the value.
	Release()
}

// Markup kinds.
const (
	MarkupHTML = "markup"
	MarkupText = "text"
)

// Markup is a guest value rendered for display.
type Markup struct {
	Kind    string `json:"kind"`
	Content string `json:"content"`
}
