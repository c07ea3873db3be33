package proxy

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pontoon-dev/pontoon/hostfunc"
)

func TestRelayOutputEvents(t *testing.T) {
	r := newRelay(hostfunc.NewRegistry(), slog.Default())

	var stdout, stderr bytes.Buffer
	r.SetSinks(&stdout, &stderr)

	r.handle(Event{Kind: EventOutput, Stdout: "out1\n"})
	r.handle(Event{Kind: EventOutput, Stderr: "err1\n"})
	r.handle(Event{Kind: EventOutput, Stdout: "out2\n"})

	assert.Equal(t, "out1\nout2\n", stdout.String())
	assert.Equal(t, "err1\n", stderr.String())
}

func TestRelayDiscardsWithoutSinks(t *testing.T) {
	r := newRelay(hostfunc.NewRegistry(), slog.Default())
	// Must not panic before SetSinks.
	r.handle(Event{Kind: EventOutput, Stdout: "early"})
}

func TestRelayHostCallEvent(t *testing.T) {
	registry := hostfunc.NewRegistry()
	var got []any
	registry.Register("ui.notify", func(ctx context.Context, args []any) (any, error) {
		got = args
		return nil, nil
	})

	r := newRelay(registry, slog.Default())
	r.handle(Event{Kind: EventCallHost, Path: []string{"ui", "notify"}, Args: []any{"hi", float64(2)}})

	assert.Equal(t, []any{"hi", float64(2)}, got)
}

func TestRelayRunDrainsUntilClose(t *testing.T) {
	r := newRelay(hostfunc.NewRegistry(), slog.Default())
	var stdout bytes.Buffer
	r.SetSinks(&stdout, nil)

	events := make(chan Event, 2)
	events <- Event{Kind: EventOutput, Stdout: "a"}
	events <- Event{Kind: EventOutput, Stdout: "b"}
	close(events)

	r.Run(events) // returns once the stream closes
	require.Equal(t, "ab", stdout.String())
}
