package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pontoon-dev/pontoon/hostfunc"
	"github.com/pontoon-dev/pontoon/interp"
)

func TestInProcessLifecycle(t *testing.T) {
	ctx := context.Background()
	p := NewInProcess(interp.NewFakeFactory(nil))

	_, err := p.Execute(ctx, "1")
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, p.Init(ctx, interp.Config{}))

	err = p.Init(ctx, interp.Config{})
	var initErr *InitializationError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "already initialized", initErr.Message)

	_, err = p.Execute(ctx, "1")
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "close is idempotent")

	_, err = p.Execute(ctx, "1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestInProcessInitFailure(t *testing.T) {
	factory := func(cfg interp.Config) (interp.Interpreter, error) {
		return nil, errors.New("runtime missing")
	}
	p := NewInProcess(factory)

	err := p.Init(context.Background(), interp.Config{})
	var initErr *InitializationError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "runtime missing", initErr.Message)
}

func TestInProcessEcho(t *testing.T) {
	ctx := context.Background()
	val := &interp.FakeValue{Val: int64(2), Printed: "2"}
	p := NewInProcess(interp.NewFakeFactory(func(f *interp.Fake) {
		f.EvalFunc = func(ctx context.Context, source string) (interp.Value, error) {
			return val, nil
		}
	}))

	var stdout bytes.Buffer
	require.NoError(t, p.Init(ctx, interp.Config{Stdout: &stdout}))

	res, err := p.Execute(ctx, "1 + 1")
	require.NoError(t, err)
	assert.Equal(t, ModeNone, res.Mode)
	assert.Nil(t, res.Value)
	assert.Equal(t, "2\n", stdout.String())
	assert.True(t, val.Released)

	stdout.Reset()
	_, err = p.Execute(ctx, "1 + 1", WithoutEcho())
	require.NoError(t, err)
	assert.Empty(t, stdout.String())
}

func TestInProcessEmptyValueNotEchoed(t *testing.T) {
	ctx := context.Background()
	p := NewInProcess(interp.NewFakeFactory(func(f *interp.Fake) {
		f.EvalFunc = func(ctx context.Context, source string) (interp.Value, error) {
			return &interp.FakeValue{IsEmpty: true, Printed: "undefined"}, nil
		}
	}))

	var stdout bytes.Buffer
	require.NoError(t, p.Init(ctx, interp.Config{Stdout: &stdout}))

	_, err := p.Execute(ctx, "let x = 1")
	require.NoError(t, err)
	assert.Empty(t, stdout.String())
}

func TestInProcessExecuteErrorEchoedOnce(t *testing.T) {
	ctx := context.Background()
	p := NewInProcess(interp.NewFakeFactory(func(f *interp.Fake) {
		f.EvalFunc = func(ctx context.Context, source string) (interp.Value, error) {
			return nil, errors.New("Error: bad")
		}
	}))

	var stdout, stderr bytes.Buffer
	require.NoError(t, p.Init(ctx, interp.Config{Stdout: &stdout, Stderr: &stderr}))

	res, err := p.Execute(ctx, `throw new Error("bad")`)
	assert.Nil(t, res)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "Error: bad", execErr.Message)

	assert.Equal(t, 1, strings.Count(stderr.String(), "Error: bad"))
	assert.Empty(t, stdout.String())
}

func TestInProcessResultModes(t *testing.T) {
	ctx := context.Background()
	mark := &interp.Markup{Kind: interp.MarkupHTML, Content: "<b>2</b>"}
	p := NewInProcess(interp.NewFakeFactory(func(f *interp.Fake) {
		f.EvalFunc = func(ctx context.Context, source string) (interp.Value, error) {
			return &interp.FakeValue{Val: int64(2), Printed: "2", Mark: mark}, nil
		}
	}))
	require.NoError(t, p.Init(ctx, interp.Config{Stdout: &bytes.Buffer{}}))

	res, err := p.Execute(ctx, "x", WithResultMode(ModeValue))
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Value)

	res, err = p.Execute(ctx, "x", WithResultMode(ModePrinted))
	require.NoError(t, err)
	assert.Equal(t, "2", res.Printed)

	res, err = p.Execute(ctx, "x", WithResultMode(ModeMarkup))
	require.NoError(t, err)
	require.NotNil(t, res.Markup)
	assert.Equal(t, interp.MarkupHTML, res.Markup.Kind)
	assert.Equal(t, "<b>2</b>", res.Markup.Content)

	res, err = p.Execute(ctx, "x", WithResultMode(ModeNone))
	require.NoError(t, err)
	assert.Nil(t, res.Value)
	assert.Empty(t, res.Printed)
	assert.Nil(t, res.Markup)
}

func TestInProcessInvoke(t *testing.T) {
	ctx := context.Background()
	var gotPath []string
	p := NewInProcess(interp.NewFakeFactory(func(f *interp.Fake) {
		f.InvokeFunc = func(ctx context.Context, path []string, args []any, kwargs map[string]any) (interp.Value, error) {
			gotPath = path
			return &interp.FakeValue{Val: "pong"}, nil
		}
	}))
	require.NoError(t, p.Init(ctx, interp.Config{}))

	v, err := p.InvokeNamed(ctx, []string{"app", "ping"}, []any{1}, nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", v)
	assert.Equal(t, []string{"app", "ping"}, gotPath)
}

func TestInProcessInvokeNameResolution(t *testing.T) {
	ctx := context.Background()
	p := NewInProcess(interp.NewFakeFactory(func(f *interp.Fake) {
		f.InvokeFunc = func(ctx context.Context, path []string, args []any, kwargs map[string]any) (interp.Value, error) {
			return nil, fmt.Errorf("app.missing: %w", hostfunc.ErrNotFound)
		}
	}))
	require.NoError(t, p.Init(ctx, interp.Config{}))

	_, err := p.InvokeNamed(ctx, []string{"app", "missing"}, nil, nil)
	var nameErr *NameResolutionError
	require.ErrorAs(t, err, &nameErr)
	assert.Equal(t, []string{"app", "missing"}, nameErr.Path)
}

func TestInProcessHostCallReachesRegistry(t *testing.T) {
	ctx := context.Background()
	registry := hostfunc.NewRegistry()
	called := false
	registry.Register("ui.notify", func(ctx context.Context, args []any) (any, error) {
		called = true
		return nil, nil
	})

	var fake *interp.Fake
	p := NewInProcess(interp.NewFakeFactory(func(f *interp.Fake) {
		fake = f
		f.EvalFunc = func(ctx context.Context, source string) (interp.Value, error) {
			_, err := f.Config.HostCall(ctx, []string{"ui", "notify"}, []any{"hi"})
			return nil, err
		}
	}), WithHostFuncs(registry))

	require.NoError(t, p.Init(ctx, interp.Config{}))
	_, err := p.Execute(ctx, `host.call("ui.notify", "hi")`)
	require.NoError(t, err)
	assert.True(t, called)
	require.NotNil(t, fake.Config.HostCall)
}

type recordingAppHost struct {
	paths     []string
	appIDs    []string
	endpoints []AppEndpoint
	scopes    []HTTPScope
}

func (h *recordingAppHost) OpenChannel(ctx context.Context, path, appID string, endpoint AppEndpoint) error {
	h.paths = append(h.paths, path)
	h.appIDs = append(h.appIDs, appID)
	h.endpoints = append(h.endpoints, endpoint)
	return nil
}

func (h *recordingAppHost) DispatchHTTPScope(ctx context.Context, scope HTTPScope, appID string, endpoint AppEndpoint) error {
	h.scopes = append(h.scopes, scope)
	h.appIDs = append(h.appIDs, appID)
	h.endpoints = append(h.endpoints, endpoint)
	return nil
}

func TestInProcessAppOps(t *testing.T) {
	ctx := context.Background()

	p := NewInProcess(interp.NewFakeFactory(nil))
	require.NoError(t, p.Init(ctx, interp.Config{}))
	err := p.OpenAppChannel(ctx, "/app", "a1", nil)
	assert.ErrorIs(t, err, ErrNoAppHost)

	host := &recordingAppHost{}
	endpoint := &struct{ name string }{"port"}
	p2 := NewInProcess(interp.NewFakeFactory(nil), WithAppHost(host))
	require.NoError(t, p2.Init(ctx, interp.Config{}))

	require.NoError(t, p2.OpenAppChannel(ctx, "/app", "a1", endpoint))
	require.Len(t, host.endpoints, 1)
	assert.Same(t, endpoint, host.endpoints[0], "endpoint is transferred, not copied")
	assert.Equal(t, []string{"/app"}, host.paths)

	scope := HTTPScope{Method: "GET", Path: "/app/data"}
	require.NoError(t, p2.DispatchHTTPScope(ctx, scope, "a1", endpoint))
	require.Len(t, host.scopes, 1)
	assert.Equal(t, scope, host.scopes[0])
}

func TestInProcessCompleteAt(t *testing.T) {
	ctx := context.Background()
	native := []string{"stringify", "parse"} // engine order, never re-sorted
	p := NewInProcess(interp.NewFakeFactory(func(f *interp.Fake) {
		f.CompleteFunc = func(ctx context.Context, source string) ([]string, error) {
			return native, nil
		}
	}))
	require.NoError(t, p.Init(ctx, interp.Config{}))

	got, err := p.CompleteAt(ctx, "JSON.")
	require.NoError(t, err)
	assert.Equal(t, native, got)

	again, err := p.CompleteAt(ctx, "JSON.")
	require.NoError(t, err)
	assert.Equal(t, got, again, "completion is read-only and repeatable")
}

func TestInProcessPreloadModules(t *testing.T) {
	ctx := context.Background()
	var loaded []string
	p := NewInProcess(interp.NewFakeFactory(func(f *interp.Fake) {
		f.LoadFunc = func(ctx context.Context, source string) error {
			loaded = append(loaded, source)
			return nil
		}
	}))
	require.NoError(t, p.Init(ctx, interp.Config{}))

	require.NoError(t, p.PreloadModules(ctx, `import "lodash"`))
	assert.Equal(t, []string{`import "lodash"`}, loaded)
}

func TestNewSelectsPlacement(t *testing.T) {
	p, err := New(PlaceInProcess, interp.NewFakeFactory(nil))
	require.NoError(t, err)
	_, ok := p.(*InProcess)
	assert.True(t, ok)

	p, err = New(PlaceIsolated, interp.NewFakeFactory(nil))
	require.NoError(t, err)
	w, ok := p.(*Worker)
	require.True(t, ok)
	require.NoError(t, w.Close())

	_, err = New(Placement("elsewhere"), interp.NewFakeFactory(nil))
	assert.Error(t, err)
}
