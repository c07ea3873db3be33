package proxy

import (
	"context"
	"errors"
	"fmt"

	"github.com/pontoon-dev/pontoon/hostfunc"
	"github.com/pontoon-dev/pontoon/interp"
)

// runExecute is the execution path shared by both placements: it runs
// on whichever side of the boundary owns the interpreter, so output,
// echo and the one stderr echo of a failure all flow through the
// interpreter's own sinks.
func runExecute(ctx context.Context, it interp.Interpreter, cfg interp.Config, source string, mode ResultMode, echo bool) (*ExecuteResult, error) {
	v, err := it.Eval(ctx, source)
	if err != nil {
		execErr := &ExecutionError{Message: err.Error()}
		fmt.Fprintln(cfg.Stderr, execErr.Message)
		return nil, execErr
	}
	if v == nil {
		return &ExecuteResult{Mode: mode}, nil
	}
	defer v.Release()

	if echo && !v.Empty() {
		fmt.Fprintln(cfg.Stdout, v.Repr())
	}
	return convertValue(v, mode), nil
}

// runInvoke resolves and calls a guest callable by dotted path,
// exporting its result.
func runInvoke(ctx context.Context, it interp.Interpreter, path []string, args []any, kwargs map[string]any) (any, error) {
	v, err := it.Invoke(ctx, path, args, kwargs)
	if err != nil {
		if errors.Is(err, hostfunc.ErrNotFound) {
			return nil, &NameResolutionError{Path: path, Message: err.Error()}
		}
		return nil, &ExecutionError{Message: err.Error()}
	}
	if v == nil {
		return nil, nil
	}
	defer v.Release()

	ex, err := v.Export()
	if err != nil {
		return v.Repr(), nil
	}
	return ex, nil
}
