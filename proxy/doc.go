// Package proxy gives a host application one uniform command interface
// to a guest interpreter, hiding where the interpreter actually runs.
//
// # Placements
//
// Two backends implement the [Proxy] interface and are selected at
// construction:
//
//   - [InProcess]: the interpreter lives on the caller's goroutine and
//     every command is a direct call.
//   - [Worker]: the interpreter lives on a dedicated goroutine with no
//     shared state. Each command is serialized and sent with a fresh
//     one-shot reply channel; the caller blocks until its single reply
//     arrives. Guest output and host-function callbacks travel back as
//     uncorrelated events handled by the backend's [Relay].
//
// Callers cannot tell the placements apart:
//
//	p, _ := proxy.New(proxy.PlaceIsolated, javascript.Factory())
//	defer p.Close()
//
//	p.Init(ctx, interp.Config{Stdout: &out, Stderr: &errs})
//	res, err := p.Execute(ctx, "1 + 1", proxy.WithResultMode(proxy.ModeValue))
//
// # Ordering
//
// The worker's inbound command channel is FIFO and the interpreter is
// single-threaded, so commands execute in issue order, one at a time,
// no matter how many are in flight. No cancellation or timeout applies
// to a command once sent; a cancelled context only abandons the wait.
//
// # Errors
//
// Guest failures are always caught on the interpreter's side and
// delivered as the command's reply payload, then reconstructed as
// [ExecutionError], [NameResolutionError] or [InitializationError].
// A mistagged reply is a [ProtocolError] and is never retried.
package proxy
