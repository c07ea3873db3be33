package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNotFound reports a dotted-path segment that does not exist in the
// namespace being walked. Callers classify it into their own error
// vocabulary with errors.Is.
var ErrNotFound = errors.New("name not found")

// Func is a host function callable from guest code.
type Func func(ctx context.Context, args []any) (any, error)

// Namespace is anything a dotted name path can be walked through: the
// host-side dispatch table, or an adapter over a guest global scope.
type Namespace interface {
	Attr(name string) (any, bool)
}

// Walk resolves a dotted name path segment by segment, starting at ns.
// Intermediate segments must themselves be namespaces. The empty path
// is invalid.
func Walk(ns Namespace, path []string) (any, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("empty path: %w", ErrNotFound)
	}

	var cur any = ns
	for i, seg := range path {
		n, ok := cur.(Namespace)
		if !ok {
			return nil, fmt.Errorf("%s is not a namespace: %w", strings.Join(path[:i], "."), ErrNotFound)
		}
		cur, ok = n.Attr(seg)
		if !ok {
			return nil, fmt.Errorf("%s: %w", strings.Join(path[:i+1], "."), ErrNotFound)
		}
	}
	return cur, nil
}

// Registry is an instance-scoped dispatch table of host functions,
// addressable by dotted path. Each backend owns its own Registry; there
// is no process-wide registration.
type Registry struct {
	mu   sync.RWMutex
	root map[string]any
}

func NewRegistry() *Registry {
	return &Registry{root: make(map[string]any)}
}

// Register adds fn under a dotted path such as "kv.get", creating
// intermediate namespaces as needed.
func (r *Registry) Register(path string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	segs := strings.Split(path, ".")
	cur := r.root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = fn
}

// Attr implements Namespace.
func (r *Registry) Attr(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.root[name]
	if m, isMap := v.(map[string]any); isMap {
		return mapNamespace(m), ok
	}
	return v, ok
}

// Call walks path and invokes the function found there.
func (r *Registry) Call(ctx context.Context, path []string, args []any) (any, error) {
	target, err := Walk(r, path)
	if err != nil {
		return nil, err
	}
	fn, ok := target.(Func)
	if !ok {
		return nil, fmt.Errorf("%s is not callable: %w", strings.Join(path, "."), ErrNotFound)
	}
	return fn(ctx, args)
}

// Names returns the registered top-level names, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.root))
	for name := range r.root {
		names = append(names, name)
	}
	return names
}

// mapNamespace adapts a nested map to Namespace.
type mapNamespace map[string]any

func (m mapNamespace) Attr(name string) (any, bool) {
	v, ok := m[name]
	if sub, isMap := v.(map[string]any); isMap {
		return mapNamespace(sub), ok
	}
	return v, ok
}
