package proxy

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/pontoon-dev/pontoon/hostfunc"
)

// Relay subscribes to the isolated context's event stream: output
// events go to the configured sinks, host-function invocations are
// resolved against the backend's dispatch table and called
// fire-and-forget.
type Relay struct {
	registry *hostfunc.Registry
	log      *slog.Logger

	mu     sync.Mutex
	stdout io.Writer
	stderr io.Writer
}

func newRelay(registry *hostfunc.Registry, log *slog.Logger) *Relay {
	return &Relay{
		registry: registry,
		log:      log,
		stdout:   io.Discard,
		stderr:   io.Discard,
	}
}

// SetSinks points the relay at the sinks configured at init time.
func (r *Relay) SetSinks(stdout, stderr io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stdout != nil {
		r.stdout = stdout
	}
	if stderr != nil {
		r.stderr = stderr
	}
}

// Run drains events until the stream closes, handling them in arrival
// order.
func (r *Relay) Run(events <-chan Event) {
	for ev := range events {
		r.handle(ev)
	}
}

func (r *Relay) handle(ev Event) {
	switch ev.Kind {
	case EventOutput:
		r.mu.Lock()
		if ev.Stdout != "" {
			io.WriteString(r.stdout, ev.Stdout)
		}
		if ev.Stderr != "" {
			io.WriteString(r.stderr, ev.Stderr)
		}
		r.mu.Unlock()

	case EventCallHost:
		// Fire-and-forget: no return value propagates back to the
		// guest, failures are only logged.
		if _, err := r.registry.Call(context.Background(), ev.Path, ev.Args); err != nil {
			r.log.Warn("host callback failed",
				"path", strings.Join(ev.Path, "."),
				"error", err)
		}

	default:
		r.log.Warn("unknown event tag", "kind", string(ev.Kind))
	}
}
