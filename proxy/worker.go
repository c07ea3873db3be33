package proxy

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/pontoon-dev/pontoon/interp"
)

// Worker runs the interpreter on its own goroutine with no shared
// state. Every command is serialized, sent on the long-lived inbound
// channel together with a fresh one-shot reply channel, and the caller
// blocks until exactly one reply arrives on it. The private reply path
// per call removes the need for request identifiers; one channel
// allocation per call is cheap at interactive rates.
//
// Unsolicited traffic (guest output, host-function invocations) flows
// over a separate event stream consumed by the backend's Relay.
type Worker struct {
	factory interp.Factory
	cfg     config
	relay   *Relay

	cmds   chan envelope
	events chan Event
	quit   chan struct{}
	done   chan struct{}

	closeOnce sync.Once
	initMu    sync.Mutex
	inited    bool
}

// envelope crosses the isolation boundary: the serialized command, the
// transferred reply endpoint, and an optional app endpoint that rides
// alongside (endpoints are transferred, never serialized).
type envelope struct {
	data     []byte
	reply    chan<- []byte
	endpoint AppEndpoint
}

// NewWorker starts the isolated execution context immediately; the
// interpreter itself is created by the init command.
func NewWorker(factory interp.Factory, opts ...Option) *Worker {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	w := &Worker{
		factory: factory,
		cfg:     cfg,
		cmds:    make(chan envelope),
		events:  make(chan Event, cfg.eventBuffer),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	w.relay = newRelay(cfg.registry, cfg.log)

	go w.run()
	go w.relay.Run(w.events)

	return w
}

func (w *Worker) Init(ctx context.Context, icfg interp.Config) error {
	w.initMu.Lock()
	if w.inited {
		w.initMu.Unlock()
		return &InitializationError{Message: "already initialized"}
	}
	w.initMu.Unlock()

	icfg = icfg.WithDefaults()
	// Sinks stay on this side; the worker's output reaches them as
	// events through the relay.
	w.relay.SetSinks(icfg.Stdout, icfg.Stderr)

	cmd := Command{Kind: CmdInit, Config: &WireConfig{
		RuntimeAssets: icfg.RuntimeAssets,
		FullStdlib:    icfg.FullStdlib,
	}}
	if _, err := w.post(ctx, cmd, nil); err != nil {
		return err
	}

	w.initMu.Lock()
	w.inited = true
	w.initMu.Unlock()
	return nil
}

func (w *Worker) PreloadModules(ctx context.Context, source string) error {
	_, err := w.post(ctx, Command{Kind: CmdPreload, Source: source}, nil)
	return err
}

func (w *Worker) Execute(ctx context.Context, source string, opts ...ExecOption) (*ExecuteResult, error) {
	ec := defaultExecConfig()
	for _, opt := range opts {
		opt(&ec)
	}

	reply, err := w.post(ctx, Command{
		Kind:   CmdExec,
		Source: source,
		Mode:   ec.mode,
		NoEcho: ec.noEcho,
	}, nil)
	if err != nil {
		return nil, err
	}
	return reply.Result, nil
}

func (w *Worker) CompleteAt(ctx context.Context, source string) ([]string, error) {
	reply, err := w.post(ctx, Command{Kind: CmdComplete, Source: source}, nil)
	if err != nil {
		return nil, err
	}
	return reply.Completions, nil
}

func (w *Worker) InvokeNamed(ctx context.Context, path []string, args []any, kwargs map[string]any) (any, error) {
	reply, err := w.post(ctx, Command{Kind: CmdInvoke, Path: path, Args: args, Kwargs: kwargs}, nil)
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

func (w *Worker) OpenAppChannel(ctx context.Context, path, appID string, endpoint AppEndpoint) error {
	_, err := w.post(ctx, Command{Kind: CmdOpenChannel, AppPath: path, AppID: appID}, endpoint)
	return err
}

func (w *Worker) DispatchHTTPScope(ctx context.Context, scope HTTPScope, appID string, endpoint AppEndpoint) error {
	_, err := w.post(ctx, Command{Kind: CmdHTTPScope, Scope: &scope, AppID: appID}, endpoint)
	return err
}

func (w *Worker) Close() error {
	w.closeOnce.Do(func() {
		close(w.quit)
	})
	<-w.done
	return nil
}

// post serializes cmd, sends it with a fresh reply endpoint, and waits
// for the one reply. A dead context abandons the wait; the command
// still runs to completion on the worker, and the buffered reply
// channel keeps the worker from blocking on the abandoned endpoint.
func (w *Worker) post(ctx context.Context, cmd Command, endpoint AppEndpoint) (*Reply, error) {
	reply, err := w.send(ctx, cmd, endpoint)
	if err != nil {
		return nil, err
	}
	return w.await(ctx, cmd.Kind, reply)
}

// send enqueues one serialized command and returns its private reply
// endpoint without waiting.
func (w *Worker) send(ctx context.Context, cmd Command, endpoint AppEndpoint) (<-chan []byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, &ProtocolError{Expected: cmd.Kind, Message: "marshal command: " + err.Error()}
	}

	reply := make(chan []byte, 1)
	select {
	case w.cmds <- envelope{data: data, reply: reply, endpoint: endpoint}:
		return reply, nil
	case <-w.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// await resolves a reply endpoint, enforcing the tag contract.
func (w *Worker) await(ctx context.Context, kind CommandKind, reply <-chan []byte) (*Reply, error) {
	var raw []byte
	select {
	case raw = <-reply:
	case <-w.done:
		// Drain a reply that raced with shutdown.
		select {
		case raw = <-reply:
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var r Reply
	if err := decodeReply(raw, &r); err != nil {
		return nil, &ProtocolError{Expected: kind, Message: "unmarshal reply: " + err.Error()}
	}
	if r.Kind != kind {
		return nil, &ProtocolError{Expected: kind, Got: r.Kind}
	}
	if r.Err != nil {
		return nil, r.Err.typed()
	}
	return &r, nil
}

// run is the isolated execution context: it owns the interpreter,
// drains the inbound command channel in FIFO order and executes at
// most one command at a time. Every command gets exactly one reply;
// failures are caught here and shipped as the reply payload, never
// left unhandled.
func (w *Worker) run() {
	defer close(w.done)
	defer close(w.events)

	var (
		it   interp.Interpreter
		icfg interp.Config
	)
	defer func() {
		if it != nil {
			it.Close()
		}
	}()

	ctx := context.Background()
	for {
		select {
		case <-w.quit:
			return
		case env := <-w.cmds:
			var cmd Command
			var reply Reply
			if err := decodeCommand(env.data, &cmd); err != nil {
				reply = Reply{Err: &wireError{Kind: errKindInternal, Message: "unmarshal command: " + err.Error()}}
			} else {
				reply = w.dispatch(ctx, &it, &icfg, cmd, env.endpoint)
			}

			data, err := json.Marshal(reply)
			if err != nil {
				data, _ = json.Marshal(Reply{Kind: reply.Kind, Err: &wireError{
					Kind:    errKindInternal,
					Message: "marshal reply: " + err.Error(),
				}})
			}
			env.reply <- data
		}
	}
}

// dispatch executes one decoded command against the worker-owned
// interpreter and shapes its reply.
func (w *Worker) dispatch(ctx context.Context, it *interp.Interpreter, icfg *interp.Config, cmd Command, endpoint AppEndpoint) Reply {
	reply := Reply{Kind: cmd.Kind}

	fail := func(err error) Reply {
		reply.Err = toWireError(err)
		return reply
	}

	if cmd.Kind != CmdInit && *it == nil {
		return fail(ErrNotReady)
	}

	switch cmd.Kind {
	case CmdInit:
		if *it != nil {
			return fail(&InitializationError{Message: "already initialized"})
		}
		if cmd.Config == nil {
			return fail(&ProtocolError{Expected: CmdInit, Message: "init command without config"})
		}
		cfg := interp.Config{
			RuntimeAssets: cmd.Config.RuntimeAssets,
			FullStdlib:    cmd.Config.FullStdlib,
			Stdin:         emptyStdin{},
			Stdout:        &eventWriter{w: w},
			Stderr:        &eventWriter{w: w, stderr: true},
			// Host-function invocations cross the boundary as events:
			// fire-and-forget, no return value propagates back.
			HostCall: func(ctx context.Context, path []string, args []any) (any, error) {
				w.emit(Event{Kind: EventCallHost, Path: path, Args: args})
				return nil, nil
			},
		}
		created, err := w.factory(cfg)
		if err != nil {
			return fail(&InitializationError{Message: err.Error()})
		}
		*it = created
		*icfg = cfg
		w.cfg.log.Debug("interpreter ready", "placement", PlaceIsolated)

	case CmdPreload:
		if err := (*it).LoadModules(ctx, cmd.Source); err != nil {
			return fail(err)
		}

	case CmdExec:
		res, err := runExecute(ctx, *it, *icfg, cmd.Source, cmd.Mode, !cmd.NoEcho)
		if err != nil {
			return fail(err)
		}
		reply.Result = res

	case CmdComplete:
		suggestions, err := (*it).Complete(ctx, cmd.Source)
		if err != nil {
			return fail(err)
		}
		reply.Completions = suggestions

	case CmdInvoke:
		value, err := runInvoke(ctx, *it, cmd.Path, cmd.Args, cmd.Kwargs)
		if err != nil {
			return fail(err)
		}
		reply.Value = value

	case CmdOpenChannel:
		if w.cfg.appHost == nil {
			return fail(ErrNoAppHost)
		}
		if err := w.cfg.appHost.OpenChannel(ctx, cmd.AppPath, cmd.AppID, endpoint); err != nil {
			return fail(err)
		}

	case CmdHTTPScope:
		if w.cfg.appHost == nil {
			return fail(ErrNoAppHost)
		}
		if err := w.cfg.appHost.DispatchHTTPScope(ctx, *cmd.Scope, cmd.AppID, endpoint); err != nil {
			return fail(err)
		}

	default:
		return fail(&ProtocolError{Got: cmd.Kind, Message: "unknown command tag " + string(cmd.Kind)})
	}

	return reply
}

// emit pushes one event, dropping it only if the backend is shutting
// down with a full buffer.
func (w *Worker) emit(ev Event) {
	select {
	case w.events <- ev:
	case <-w.quit:
	}
}

// eventWriter forwards interpreter output across the boundary as
// output events, one per write, preserving send order.
type eventWriter struct {
	w      *Worker
	stderr bool
}

func (ew *eventWriter) Write(p []byte) (int, error) {
	ev := Event{Kind: EventOutput}
	if ew.stderr {
		ev.Stderr = string(p)
	} else {
		ev.Stdout = string(p)
	}
	ew.w.emit(ev)
	return len(p), nil
}

// emptyStdin is the worker placement's stdin: the caller's reader
// cannot cross the boundary, so guest reads see EOF.
type emptyStdin struct{}

func (emptyStdin) Read(p []byte) (int, error) { return 0, io.EOF }
