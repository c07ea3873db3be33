package wasi

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindNextFrame(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantIdx  int
		wantKind frameKind
	}{
		{"no frame", "hello world", -1, frameNone},
		{"empty content", "", -1, frameNone},
		{"ready frame", "out\x00PONTOON_READY\x00", 3, frameReady},
		{"reply frame", "\x00PONTOON_REPLY:{}\x00", 0, frameReply},
		{"call frame", "x\x00PONTOON_CALL:{}\x00", 1, frameCall},
		{"earliest wins", "\x00PONTOON_CALL:{}\x00\x00PONTOON_REPLY:{}\x00", 0, frameCall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, kind := findNextFrame(tt.content)
			assert.Equal(t, tt.wantIdx, idx)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestExtractFrame(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		idx           int
		prefix        string
		wantPayload   string
		wantRemaining string
		wantOK        bool
	}{
		{
			name:          "complete reply",
			content:       "pre\x00PONTOON_REPLY:{\"value\":2}\x00post",
			idx:           3,
			prefix:        replyPrefix,
			wantPayload:   `{"value":2}`,
			wantRemaining: "post",
			wantOK:        true,
		},
		{
			name:          "terminator not arrived",
			content:       "pre\x00PONTOON_REPLY:{part",
			idx:           3,
			prefix:        replyPrefix,
			wantRemaining: "\x00PONTOON_REPLY:{part",
			wantOK:        false,
		},
		{
			name:          "call frame",
			content:       "\x00PONTOON_CALL:{\"path\":[\"kv\",\"get\"]}\x00tail",
			idx:           0,
			prefix:        callPrefix,
			wantPayload:   `{"path":["kv","get"]}`,
			wantRemaining: "tail",
			wantOK:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, remaining, ok := extractFrame(tt.content, tt.idx, tt.prefix)
			assert.Equal(t, tt.wantPayload, payload)
			assert.Equal(t, tt.wantRemaining, remaining)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestPartialFrameStart(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"no nul", "plain output", -1},
		{"split prefix", "output\x00PONT", 6},
		{"split longer prefix", "\x00PONTOON_REP", 0},
		{"trailing nul retained", "out\x00", 3},
		{"nul not a frame", "a\x00b", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, partialFrameStart(tt.content))
		})
	}
}

func TestFrameHandlerPassthrough(t *testing.T) {
	var stderr bytes.Buffer
	h := newFrameHandler(&stderr, nil, nil)

	_, err := h.Write([]byte("guest stderr line\n"))
	require.NoError(t, err)
	assert.Equal(t, "guest stderr line\n", stderr.String())
}

func TestFrameHandlerReady(t *testing.T) {
	var stderr bytes.Buffer
	h := newFrameHandler(&stderr, nil, nil)

	select {
	case <-h.Ready():
		t.Fatal("ready before handshake")
	default:
	}

	h.Write([]byte("boot noise\x00PONTOON_READY\x00"))

	select {
	case <-h.Ready():
	default:
		t.Fatal("handshake not observed")
	}
	assert.Equal(t, "boot noise", stderr.String())

	// A repeated handshake must not close the channel twice.
	h.Write([]byte(readySignal))
}

func TestFrameHandlerReply(t *testing.T) {
	h := newFrameHandler(&bytes.Buffer{}, nil, nil)

	h.Write([]byte("\x00PONTOON_REPLY:{\"repr\":\"2\"}\x00"))

	select {
	case payload := <-h.Reply():
		assert.JSONEq(t, `{"repr":"2"}`, string(payload))
	default:
		t.Fatal("reply not delivered")
	}
}

func TestFrameHandlerSplitAcrossWrites(t *testing.T) {
	var stderr bytes.Buffer
	h := newFrameHandler(&stderr, nil, nil)

	// One frame arrives byte by byte, interleaved with real output.
	h.Write([]byte("before "))
	full := "\x00PONTOON_REPLY:{\"empty\":true}\x00after"
	for i := 0; i < len(full); i++ {
		h.Write([]byte{full[i]})
	}

	select {
	case payload := <-h.Reply():
		assert.JSONEq(t, `{"empty":true}`, string(payload))
	default:
		t.Fatal("split frame not reassembled")
	}
	assert.Equal(t, "before after", stderr.String())
}

func TestFrameHandlerHostCall(t *testing.T) {
	var mu sync.Mutex
	var responses [][]byte
	respond := func(line []byte) {
		mu.Lock()
		responses = append(responses, line)
		mu.Unlock()
	}
	hostCall := func(ctx context.Context, path []string, args []any) (any, error) {
		assert.Equal(t, []string{"kv", "get"}, path)
		return "blue", nil
	}
	h := newFrameHandler(&bytes.Buffer{}, hostCall, respond)

	h.Write([]byte("\x00PONTOON_CALL:{\"path\":[\"kv\",\"get\"],\"args\":[\"color\"]}\x00"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(responses) == 1
	}, 2*time.Second, 5*time.Millisecond)

	var resp hostCallResponse
	mu.Lock()
	require.NoError(t, json.Unmarshal(responses[0], &resp))
	mu.Unlock()
	assert.Equal(t, "blue", resp.Data)
	assert.Empty(t, resp.Error)
}

func TestFrameHandlerHostCallWithoutHook(t *testing.T) {
	var mu sync.Mutex
	var responses [][]byte
	respond := func(line []byte) {
		mu.Lock()
		responses = append(responses, line)
		mu.Unlock()
	}
	h := newFrameHandler(&bytes.Buffer{}, nil, respond)

	h.Write([]byte("\x00PONTOON_CALL:{\"path\":[\"x\"]}\x00"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(responses) == 1
	}, 2*time.Second, 5*time.Millisecond)

	var resp hostCallResponse
	mu.Lock()
	require.NoError(t, json.Unmarshal(responses[0], &resp))
	mu.Unlock()
	assert.NotEmpty(t, resp.Error)
}

func TestFrameHandlerResetReply(t *testing.T) {
	h := newFrameHandler(&bytes.Buffer{}, nil, nil)

	h.Write([]byte(replyPrefix + "stale" + frameSuffix))
	h.ResetReply()

	select {
	case <-h.Reply():
		t.Fatal("stale reply survived reset")
	default:
	}
}
