package proxy

import (
	"context"
	"sync"

	"github.com/pontoon-dev/pontoon/interp"
)

// InProcess executes every command directly against an interpreter
// living on the caller's goroutine: no serialization, no channel. An
// exec mutex serializes interpreter access; there is no parallelism,
// only interleaving at the caller's suspension points.
type InProcess struct {
	factory interp.Factory
	cfg     config

	mu     sync.Mutex
	execMu sync.Mutex
	it     interp.Interpreter
	icfg   interp.Config
	closed bool
}

// NewInProcess returns an uninitialized in-process backend; call Init
// before issuing commands.
func NewInProcess(factory interp.Factory, opts ...Option) *InProcess {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &InProcess{factory: factory, cfg: cfg}
}

func (p *InProcess) Init(ctx context.Context, icfg interp.Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.it != nil {
		return &InitializationError{Message: "already initialized"}
	}

	icfg = icfg.WithDefaults()
	if icfg.HostCall == nil {
		// The name-resolution helper exposed to the interpreter:
		// guest code invokes host functions by dotted path, resolved
		// against this backend's dispatch table.
		registry := p.cfg.registry
		icfg.HostCall = func(ctx context.Context, path []string, args []any) (any, error) {
			return registry.Call(ctx, path, args)
		}
	}

	it, err := p.factory(icfg)
	if err != nil {
		return &InitializationError{Message: err.Error()}
	}

	p.it = it
	p.icfg = icfg
	p.cfg.log.Debug("interpreter ready", "placement", PlaceInProcess)
	return nil
}

func (p *InProcess) PreloadModules(ctx context.Context, source string) error {
	it, err := p.ready()
	if err != nil {
		return err
	}

	p.execMu.Lock()
	defer p.execMu.Unlock()
	return it.LoadModules(ctx, source)
}

func (p *InProcess) Execute(ctx context.Context, source string, opts ...ExecOption) (*ExecuteResult, error) {
	ec := defaultExecConfig()
	for _, opt := range opts {
		opt(&ec)
	}

	it, err := p.ready()
	if err != nil {
		return nil, err
	}

	p.execMu.Lock()
	defer p.execMu.Unlock()
	return runExecute(ctx, it, p.icfg, source, ec.mode, !ec.noEcho)
}

func (p *InProcess) CompleteAt(ctx context.Context, source string) ([]string, error) {
	it, err := p.ready()
	if err != nil {
		return nil, err
	}

	p.execMu.Lock()
	defer p.execMu.Unlock()
	return it.Complete(ctx, source)
}

func (p *InProcess) InvokeNamed(ctx context.Context, path []string, args []any, kwargs map[string]any) (any, error) {
	it, err := p.ready()
	if err != nil {
		return nil, err
	}

	p.execMu.Lock()
	defer p.execMu.Unlock()
	return runInvoke(ctx, it, path, args, kwargs)
}

func (p *InProcess) OpenAppChannel(ctx context.Context, path, appID string, endpoint AppEndpoint) error {
	if _, err := p.ready(); err != nil {
		return err
	}
	if p.cfg.appHost == nil {
		return ErrNoAppHost
	}
	return p.cfg.appHost.OpenChannel(ctx, path, appID, endpoint)
}

func (p *InProcess) DispatchHTTPScope(ctx context.Context, scope HTTPScope, appID string, endpoint AppEndpoint) error {
	if _, err := p.ready(); err != nil {
		return err
	}
	if p.cfg.appHost == nil {
		return ErrNoAppHost
	}
	return p.cfg.appHost.DispatchHTTPScope(ctx, scope, appID, endpoint)
}

func (p *InProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.it != nil {
		return p.it.Close()
	}
	return nil
}

func (p *InProcess) ready() (interp.Interpreter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.it == nil {
		return nil, ErrNotReady
	}
	return p.it, nil
}
