// Package wasi runs a WASI-compiled guest interpreter binary loaded
// from the runtime assets directory, driving it over a JSON-line
// command protocol on stdin with NUL-framed replies and signals in-band
// on stderr.
package wasi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/pontoon-dev/pontoon/hostfunc"
	"github.com/pontoon-dev/pontoon/interp"
)

// InterpreterBinary is the file looked up inside the runtime assets
// directory.
const InterpreterBinary = "interpreter.wasm"

var ErrClosed = errors.New("interpreter closed")

// Runtime owns the wazero runtime and the compiled-module cache. One
// Runtime can serve several interpreter instances.
type Runtime struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled map[string]wazero.CompiledModule
	mu       sync.RWMutex
	closed   bool
}

// RuntimeOption configures the Runtime at creation time.
type RuntimeOption func(*runtimeConfig)

type runtimeConfig struct {
	diskCache        bool
	cacheDir         string
	memoryLimitPages uint32
}

// WithDiskCache enables a persistent compilation cache, optionally in
// a custom directory.
func WithDiskCache(dir ...string) RuntimeOption {
	return func(c *runtimeConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithMemoryLimit caps guest memory; each page is 64KB.
func WithMemoryLimit(pages uint32) RuntimeOption {
	return func(c *runtimeConfig) {
		c.memoryLimitPages = pages
	}
}

// NewRuntime creates the wazero runtime with WASI instantiated.
func NewRuntime(opts ...RuntimeOption) (*Runtime, error) {
	var cfg runtimeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()

	var cache wazero.CompilationCache
	var err error
	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	return &Runtime{
		runtime:  rt,
		cache:    cache,
		compiled: make(map[string]wazero.CompiledModule),
	}, nil
}

// Factory returns an interp.Factory that starts one guest interpreter
// per backend, loading the binary from cfg.RuntimeAssets.
func (r *Runtime) Factory() interp.Factory {
	return func(cfg interp.Config) (interp.Interpreter, error) {
		return r.newInterpreter(cfg)
	}
}

// getCompiled returns the cached compiled module for path, compiling
// on first use.
func (r *Runtime) getCompiled(ctx context.Context, path string) (wazero.CompiledModule, error) {
	r.mu.RLock()
	if compiled, ok := r.compiled[path]; ok {
		r.mu.RUnlock()
		return compiled, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if compiled, ok := r.compiled[path]; ok {
		return compiled, nil
	}

	binary, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read interpreter binary: %w", err)
	}

	compiled, err := r.runtime.CompileModule(ctx, binary)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}

	r.compiled[path] = compiled
	return compiled, nil
}

// Close releases the runtime and cache.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	ctx := context.Background()

	var errs []error
	if err := r.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if r.cache != nil {
		if err := r.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "pontoon")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "pontoon")
	}
	return filepath.Join(os.TempDir(), "pontoon-cache")
}

// guestRequest is one JSON line written to the guest's stdin.
type guestRequest struct {
	Op     string         `json:"op"`
	Source string         `json:"source,omitempty"`
	Path   []string       `json:"path,omitempty"`
	Args   []any          `json:"args,omitempty"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
}

// guestReply is the payload of one reply frame from the guest.
type guestReply struct {
	Value       any            `json:"value,omitempty"`
	Repr        string         `json:"repr,omitempty"`
	Markup      *interp.Markup `json:"markup,omitempty"`
	Empty       bool           `json:"empty,omitempty"`
	Completions []string       `json:"completions,omitempty"`
	Error       string         `json:"error,omitempty"`
	ErrorKind   string         `json:"error_kind,omitempty"`
}

// Interpreter is one long-lived guest session. Backends serialize
// access, so at most one request is outstanding.
type Interpreter struct {
	rt  *Runtime
	cfg interp.Config

	stdin       *io.PipeWriter
	stdinReader *io.PipeReader
	frames      *frameHandler
	module      api.Module
	exitCh      chan error

	mu     sync.Mutex
	closed bool
}

func (r *Runtime) newInterpreter(cfg interp.Config) (*Interpreter, error) {
	cfg = cfg.WithDefaults()
	if cfg.RuntimeAssets == "" {
		return nil, errors.New("runtime assets directory required")
	}

	ctx := context.Background()
	binPath := filepath.Join(cfg.RuntimeAssets, InterpreterBinary)
	compiled, err := r.getCompiled(ctx, binPath)
	if err != nil {
		return nil, err
	}

	s := &Interpreter{
		rt:     r,
		cfg:    cfg,
		exitCh: make(chan error, 1),
	}
	s.stdinReader, s.stdin = io.Pipe()
	s.frames = newFrameHandler(cfg.Stderr, cfg.HostCall, s.respond)

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(cfg.Stdout).
		WithStderr(s.frames).
		WithStdin(s.stdinReader).
		WithArgs("interpreter").
		WithName("")
	if cfg.FullStdlib {
		moduleConfig = moduleConfig.WithEnv("PONTOON_FULL_STDLIB", "1")
	}

	go func() {
		mod, err := r.runtime.InstantiateModule(ctx, compiled, moduleConfig)
		if err != nil {
			s.exitCh <- fmt.Errorf("start interpreter: %w", err)
			return
		}
		s.adoptModule(mod)
		s.exitCh <- nil
	}()

	select {
	case <-s.frames.Ready():
		return s, nil
	case err := <-s.exitCh:
		if err == nil {
			err = errors.New("interpreter exited before ready")
		}
		s.Close()
		return nil, err
	case <-time.After(30 * time.Second):
		s.Close()
		return nil, errors.New("interpreter start timeout")
	}
}

// adoptModule records the instantiated module under the session lock;
// Close reads the field under the same lock. A session closed before
// instantiation finished closes the module here instead.
func (s *Interpreter) adoptModule(mod api.Module) {
	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.module = mod
	}
	s.mu.Unlock()

	if closed && mod != nil {
		mod.Close(context.Background())
	}
}

// respond writes one host-call response line back to the guest.
func (s *Interpreter) respond(line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.stdin.Write(append(line, '\n'))
	}
}

// roundTrip sends one request line and blocks for its reply frame.
func (s *Interpreter) roundTrip(ctx context.Context, req guestRequest) (*guestReply, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.frames.ResetReply()

	line, err := json.Marshal(req)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	_, err = s.stdin.Write(append(line, '\n'))
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case payload := <-s.frames.Reply():
		var reply guestReply
		if err := json.Unmarshal(payload, &reply); err != nil {
			return nil, fmt.Errorf("malformed reply frame: %w", err)
		}
		return &reply, nil
	case err := <-s.exitCh:
		if err == nil {
			err = errors.New("interpreter exited")
		}
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Interpreter) Eval(ctx context.Context, source string) (interp.Value, error) {
	reply, err := s.roundTrip(ctx, guestRequest{Op: "eval", Source: source})
	if err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, errors.New(reply.Error)
	}
	if reply.Empty {
		return nil, nil
	}
	return &value{reply: reply}, nil
}

func (s *Interpreter) Complete(ctx context.Context, source string) ([]string, error) {
	reply, err := s.roundTrip(ctx, guestRequest{Op: "complete", Source: source})
	if err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, errors.New(reply.Error)
	}
	return reply.Completions, nil
}

func (s *Interpreter) Invoke(ctx context.Context, path []string, args []any, kwargs map[string]any) (interp.Value, error) {
	reply, err := s.roundTrip(ctx, guestRequest{Op: "invoke", Path: path, Args: args, Kwargs: kwargs})
	if err != nil {
		return nil, err
	}
	if reply.Error != "" {
		if reply.ErrorKind == "name" {
			return nil, fmt.Errorf("%s: %w", reply.Error, hostfunc.ErrNotFound)
		}
		return nil, errors.New(reply.Error)
	}
	if reply.Empty {
		return nil, nil
	}
	return &value{reply: reply}, nil
}

func (s *Interpreter) LoadModules(ctx context.Context, source string) error {
	reply, err := s.roundTrip(ctx, guestRequest{Op: "preload", Source: source})
	if err != nil {
		return err
	}
	if reply.Error != "" {
		return errors.New(reply.Error)
	}
	return nil
}

func (s *Interpreter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	// Close the pipes first so a blocked guest read sees EOF and the
	// module can exit on its own.
	if s.stdinReader != nil {
		s.stdinReader.Close()
	}
	if s.stdin != nil {
		s.stdin.Close()
	}
	if s.module != nil {
		s.module.Close(context.Background())
	}
	return nil
}
