// Package hostfunc provides the host-side function namespace that guest
// code can call into by dotted name path.
//
// # Registry
//
// A [Registry] is an instance-scoped dispatch table: every backend owns
// its own, so two proxies in one process never share callback state.
//
//	registry := hostfunc.NewRegistry()
//	registry.Register("notify.done", func(ctx context.Context, args []any) (any, error) {
//	    return nil, nil
//	})
//
// # Name resolution
//
// [Walk] is the single dotted-path resolution routine. The same walk
// serves both directions of callback traffic: host functions resolved
// in a Registry, and guest callables resolved in an adapter over the
// interpreter's global scope (see the language packages).
//
// # Built-ins
//
// [KVStore] (kv.get, kv.set, kv.delete, kv.keys) and [TimeNow]
// (time.now) are small capabilities backends register by default.
package hostfunc
