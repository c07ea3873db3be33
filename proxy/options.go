package proxy

import (
	"log/slog"

	"github.com/pontoon-dev/pontoon/hostfunc"
)

// Option configures a backend at construction time.
type Option func(*config)

type config struct {
	registry    *hostfunc.Registry
	appHost     AppHost
	log         *slog.Logger
	eventBuffer int
}

func defaultConfig() config {
	registry := hostfunc.NewRegistry()
	hostfunc.NewKVStore().RegisterInto(registry)
	registry.Register("time.now", hostfunc.TimeNow)

	return config{
		registry:    registry,
		log:         slog.Default(),
		eventBuffer: 64,
	}
}

// WithHostFuncs replaces the backend's host function dispatch table.
// The default table carries the kv and time built-ins. A nil registry
// is ignored.
func WithHostFuncs(r *hostfunc.Registry) Option {
	return func(c *config) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithAppHost sets the collaborator that serves hosted applications.
// Without one, openChannel and httpScope commands fail.
func WithAppHost(h AppHost) Option {
	return func(c *config) {
		c.appHost = h
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default();
// a nil logger is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithEventBuffer sets the isolated backend's event channel capacity.
func WithEventBuffer(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.eventBuffer = n
		}
	}
}

// ExecOption configures a single Execute call.
type ExecOption func(*execConfig)

type execConfig struct {
	mode   ResultMode
	noEcho bool
}

func defaultExecConfig() execConfig {
	return execConfig{mode: ModeNone}
}

// WithResultMode selects the result projection. Defaults to ModeNone.
func WithResultMode(m ResultMode) ExecOption {
	return func(c *execConfig) {
		c.mode = m
	}
}

// WithoutEcho suppresses echoing the statement's printed value to the
// stdout sink. Echo is on by default.
func WithoutEcho() ExecOption {
	return func(c *execConfig) {
		c.noEcho = true
	}
}
