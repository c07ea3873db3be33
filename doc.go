// Package pontoon provides an asynchronous command proxy to an
// embedded scripting interpreter.
//
// # Overview
//
// pontoon hides where the interpreter runs. The in-process placement
// keeps it on the caller's goroutine; the isolated placement moves it
// to a dedicated worker context reachable only by message passing.
// Callers program against one interface and see identical behavior
// from both.
//
// # Basic Usage
//
//	p, _ := proxy.New(proxy.PlaceIsolated, javascript.Factory())
//	defer p.Close()
//
//	p.Init(ctx, interp.Config{Stdout: os.Stdout, Stderr: os.Stderr})
//
//	// Run a statement; the final value echoes to the stdout sink.
//	p.Execute(ctx, `1 + 1`)
//
//	// Ask for the value itself instead.
//	result, _ := p.Execute(ctx, `6 * 7`, proxy.WithResultMode(proxy.ModeValue))
//
//	// Call a guest function by dotted path.
//	v, _ := p.InvokeNamed(ctx, []string{"app", "handler"}, []any{"x"}, nil)
//
// # Host Functions
//
//	registry := hostfunc.NewRegistry()
//	registry.Register("greet", func(ctx context.Context, args []any) (any, error) {
//	    return "hello", nil
//	})
//	p, _ := proxy.New(proxy.PlaceInProcess, javascript.Factory(),
//	    proxy.WithHostFuncs(registry))
//
// See the [proxy], [hostfunc], [language/javascript], and
// [language/wasi] packages for detailed API documentation.
package pontoon
