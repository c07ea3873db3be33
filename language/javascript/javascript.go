// Package javascript provides the bundled JavaScript interpreter
// adapter, backed by the goja engine.
package javascript

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dop251/goja"

	"github.com/pontoon-dev/pontoon/hostfunc"
	"github.com/pontoon-dev/pontoon/interp"
)

// Factory returns an interp.Factory for the bundled engine.
func Factory() interp.Factory {
	return func(cfg interp.Config) (interp.Interpreter, error) {
		return New(cfg)
	}
}

// Interpreter is a single long-lived goja runtime. It is not
// goroutine-safe; backends serialize access to it.
type Interpreter struct {
	vm      *goja.Runtime
	cfg     interp.Config
	modules map[string]goja.Value
}

// New creates the runtime and installs the host bindings: print,
// console, require, and the host-call helper.
func New(cfg interp.Config) (*Interpreter, error) {
	cfg = cfg.WithDefaults()

	i := &Interpreter{
		vm:      goja.New(),
		cfg:     cfg,
		modules: make(map[string]goja.Value),
	}
	if err := i.setup(); err != nil {
		return nil, fmt.Errorf("setup runtime: %w", err)
	}
	return i, nil
}

func (i *Interpreter) setup() error {
	vm := i.vm

	printFunc := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for n, arg := range call.Arguments {
			parts[n] = arg.String()
		}
		fmt.Fprintln(i.cfg.Stdout, strings.Join(parts, " "))
		return goja.Undefined()
	}
	if err := vm.Set("print", printFunc); err != nil {
		return err
	}

	console := vm.NewObject()
	if err := console.Set("log", printFunc); err != nil {
		return err
	}
	errFunc := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for n, arg := range call.Arguments {
			parts[n] = arg.String()
		}
		fmt.Fprintln(i.cfg.Stderr, strings.Join(parts, " "))
		return goja.Undefined()
	}
	if err := console.Set("error", errFunc); err != nil {
		return err
	}
	if err := vm.Set("console", console); err != nil {
		return err
	}

	if err := vm.Set("require", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(vm.NewTypeError("require needs a module name"))
		}
		name := call.Arguments[0].String()
		mod, ok := i.modules[name]
		if !ok {
			panic(vm.NewTypeError("module %q not preloaded", name))
		}
		return mod
	}); err != nil {
		return err
	}

	if i.cfg.HostCall != nil {
		hostCall := i.cfg.HostCall
		host := vm.NewObject()
		if err := host.Set("call", func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) < 1 {
				panic(vm.NewTypeError("host.call needs a function path"))
			}
			path := strings.Split(call.Arguments[0].String(), ".")
			args := make([]any, 0, len(call.Arguments)-1)
			for _, a := range call.Arguments[1:] {
				args = append(args, a.Export())
			}
			res, err := hostCall(context.Background(), path, args)
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return vm.ToValue(res)
		}); err != nil {
			return err
		}
		if err := vm.Set("host", host); err != nil {
			return err
		}
	}

	return nil
}

// watchdog interrupts the runtime when ctx dies during guest code. The
// cleanup joins the goroutine before clearing the interrupt, so a
// last-moment Interrupt can never land after ClearInterrupt and poison
// the next run.
func (i *Interpreter) watchdog(ctx context.Context) func() {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		select {
		case <-ctx.Done():
			i.vm.Interrupt("interrupted")
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-finished
		i.vm.ClearInterrupt()
	}
}

func (i *Interpreter) Eval(ctx context.Context, source string) (interp.Value, error) {
	defer i.watchdog(ctx)()

	v, err := i.vm.RunString(source)
	if err != nil {
		return nil, errors.New(diagnostic(err))
	}
	if v == nil {
		return nil, nil
	}
	return &value{rt: i.vm, v: v}, nil
}

func (i *Interpreter) Complete(ctx context.Context, source string) ([]string, error) {
	holder, prefix := splitCompletion(source)

	target := i.vm.GlobalObject()
	if len(holder) > 0 {
		resolved, err := hostfunc.Walk(jsNamespace{rt: i.vm, val: target}, holder)
		if err != nil {
			return nil, nil
		}
		ns, ok := resolved.(jsNamespace)
		if !ok || goja.IsUndefined(ns.val) || goja.IsNull(ns.val) {
			return nil, nil
		}
		target = ns.val.ToObject(i.vm)
	}

	// Engine enumeration order is the native ranking; do not re-sort.
	var suggestions []string
	for _, key := range target.Keys() {
		if strings.HasPrefix(key, prefix) {
			suggestions = append(suggestions, key)
		}
	}
	return suggestions, nil
}

func (i *Interpreter) Invoke(ctx context.Context, path []string, args []any, kwargs map[string]any) (interp.Value, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("empty path: %w", hostfunc.ErrNotFound)
	}

	globals := jsNamespace{rt: i.vm, val: i.vm.GlobalObject()}

	// Resolve the holder first so the call binds this correctly.
	holder := globals
	if len(path) > 1 {
		resolved, err := hostfunc.Walk(globals, path[:len(path)-1])
		if err != nil {
			return nil, err
		}
		holder = resolved.(jsNamespace)
	}

	attr, ok := holder.Attr(path[len(path)-1])
	if !ok {
		return nil, fmt.Errorf("%s: %w", strings.Join(path, "."), hostfunc.ErrNotFound)
	}

	fn, ok := goja.AssertFunction(attr.(jsNamespace).val)
	if !ok {
		return nil, fmt.Errorf("%s is not callable: %w", strings.Join(path, "."), hostfunc.ErrNotFound)
	}

	callArgs := make([]goja.Value, 0, len(args)+1)
	for _, a := range args {
		callArgs = append(callArgs, i.vm.ToValue(a))
	}
	// JavaScript has no keyword arguments; a non-empty kwargs map is
	// passed as a trailing object argument.
	if len(kwargs) > 0 {
		callArgs = append(callArgs, i.vm.ToValue(kwargs))
	}

	defer i.watchdog(ctx)()

	res, err := fn(holder.val, callArgs...)
	if err != nil {
		return nil, errors.New(diagnostic(err))
	}
	return &value{rt: i.vm, v: res}, nil
}

var importPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*import\s+.*?\s+from\s+['"]([^'"]+)['"]`),
	regexp.MustCompile(`(?m)^\s*import\s+['"]([^'"]+)['"]`),
	regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`),
}

// LoadModules scans source for import/require specifiers and evaluates
// each referenced module from <RuntimeAssets>/modules/<name>.js,
// making it available to require().
func (i *Interpreter) LoadModules(ctx context.Context, source string) error {
	for _, pat := range importPatterns {
		for _, m := range pat.FindAllStringSubmatch(source, -1) {
			if err := i.loadModule(m[1]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (i *Interpreter) loadModule(name string) error {
	if _, ok := i.modules[name]; ok {
		return nil
	}
	if i.cfg.RuntimeAssets == "" {
		return fmt.Errorf("module %q: no runtime assets directory configured", name)
	}

	path := filepath.Join(i.cfg.RuntimeAssets, "modules", name+".js")
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("module %q: %w", name, err)
	}

	wrapped := "(function(module, exports) {\n" + string(src) + "\n})"
	v, err := i.vm.RunString(wrapped)
	if err != nil {
		return fmt.Errorf("module %q: %s", name, diagnostic(err))
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return fmt.Errorf("module %q: wrapper is not a function", name)
	}

	exports := i.vm.NewObject()
	module := i.vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return err
	}
	if _, err := fn(goja.Undefined(), module, exports); err != nil {
		return fmt.Errorf("module %q: %s", name, diagnostic(err))
	}

	i.modules[name] = module.Get("exports")
	return nil
}

func (i *Interpreter) Close() error {
	i.vm.Interrupt("closed")
	return nil
}

// diagnostic extracts the interpreter's message from a goja error,
// without the engine's stack decoration.
func diagnostic(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value().String()
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Sprintf("interrupted: %v", interrupted.Value())
	}
	return err.Error()
}

// jsNamespace adapts a JavaScript value to the shared dotted-path walk.
type jsNamespace struct {
	rt  *goja.Runtime
	val goja.Value
}

func (n jsNamespace) Attr(name string) (any, bool) {
	if n.val == nil || goja.IsUndefined(n.val) || goja.IsNull(n.val) {
		return nil, false
	}
	v := n.val.ToObject(n.rt).Get(name)
	if v == nil || goja.IsUndefined(v) {
		return nil, false
	}
	return jsNamespace{rt: n.rt, val: v}, true
}

var completionTail = regexp.MustCompile(`([A-Za-z_$][A-Za-z0-9_$]*(?:\.[A-Za-z_$][A-Za-z0-9_$]*)*\.)?([A-Za-z_$][A-Za-z0-9_$]*)?$`)

// splitCompletion takes the dotted identifier chain ending at the
// cursor and splits it into the holder path and the partial last
// segment.
func splitCompletion(source string) (holder []string, prefix string) {
	m := completionTail.FindStringSubmatch(source)
	if m == nil {
		return nil, ""
	}
	if m[1] != "" {
		holder = strings.Split(strings.TrimSuffix(m[1], "."), ".")
	}
	return holder, m[2]
}
