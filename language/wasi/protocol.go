package wasi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/pontoon-dev/pontoon/interp"
)

// Frame grammar on the guest's stderr. Everything outside a frame is
// real stderr output and passes through to the configured sink.
//
//	\x00PONTOON_READY\x00          session handshake
//	\x00PONTOON_REPLY:{json}\x00   reply to the outstanding request
//	\x00PONTOON_CALL:{json}\x00    host-function invocation
const (
	readySignal = "\x00PONTOON_READY\x00"
	replyPrefix = "\x00PONTOON_REPLY:"
	callPrefix  = "\x00PONTOON_CALL:"
	frameSuffix = "\x00"
)

type frameKind int

const (
	frameNone frameKind = iota
	frameReady
	frameReply
	frameCall
)

// findNextFrame locates the earliest frame start in content.
func findNextFrame(content string) (int, frameKind) {
	idx := -1
	kind := frameNone

	consider := func(i int, k frameKind) {
		if i != -1 && (idx == -1 || i < idx) {
			idx, kind = i, k
		}
	}
	consider(strings.Index(content, readySignal), frameReady)
	consider(strings.Index(content, replyPrefix), frameReply)
	consider(strings.Index(content, callPrefix), frameCall)

	return idx, kind
}

// extractFrame pulls the payload of a frame starting at idx with the
// given prefix. ok is false while the terminator has not arrived yet.
func extractFrame(content string, idx int, prefix string) (payload, remaining string, ok bool) {
	after := content[idx+len(prefix):]
	end := strings.Index(after, frameSuffix)
	if end == -1 {
		return "", content[idx:], false
	}
	return after[:end], after[end+1:], true
}

// partialFrameStart reports where a trailing, possibly incomplete
// frame prefix begins, or -1. Output before that point is safe to
// flush.
func partialFrameStart(content string) int {
	idx := strings.LastIndex(content, "\x00")
	if idx == -1 {
		return -1
	}
	tail := content[idx:]
	for _, prefix := range []string{readySignal, replyPrefix, callPrefix} {
		if len(tail) < len(prefix) && strings.HasPrefix(prefix, tail) {
			return idx
		}
	}
	return -1
}

// hostCallRequest is the payload of a call frame.
type hostCallRequest struct {
	Path []string `json:"path"`
	Args []any    `json:"args"`
}

// hostCallResponse is the line written back to the guest's stdin.
type hostCallResponse struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// frameHandler intercepts the guest's stderr: frames are dispatched,
// everything else passes through to the real sink.
type frameHandler struct {
	stderr   io.Writer
	hostCall interp.HostCallFunc
	respond  func(line []byte)

	mu      sync.Mutex
	buf     bytes.Buffer
	readyCh chan struct{}
	ready   bool
	replyCh chan []byte
}

func newFrameHandler(stderr io.Writer, hostCall interp.HostCallFunc, respond func(line []byte)) *frameHandler {
	return &frameHandler{
		stderr:   stderr,
		hostCall: hostCall,
		respond:  respond,
		readyCh:  make(chan struct{}),
		replyCh:  make(chan []byte, 1),
	}
}

func (h *frameHandler) Write(data []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf.Write(data)

	for {
		content := h.buf.String()

		idx, kind := findNextFrame(content)
		if kind == frameNone {
			// Flush passthrough output, keeping a possibly split
			// frame prefix for the next write.
			if p := partialFrameStart(content); p != -1 {
				io.WriteString(h.stderr, content[:p])
				h.buf.Reset()
				h.buf.WriteString(content[p:])
			} else {
				io.WriteString(h.stderr, content)
				h.buf.Reset()
			}
			break
		}

		if idx > 0 {
			io.WriteString(h.stderr, content[:idx])
			h.buf.Reset()
			h.buf.WriteString(content[idx:])
			content = h.buf.String()
			idx = 0
		}

		if kind == frameReady {
			h.buf.Reset()
			h.buf.WriteString(content[len(readySignal):])
			if !h.ready {
				h.ready = true
				close(h.readyCh)
			}
			continue
		}

		prefix := replyPrefix
		if kind == frameCall {
			prefix = callPrefix
		}
		payload, remaining, ok := extractFrame(content, idx, prefix)
		if !ok {
			break
		}
		h.buf.Reset()
		h.buf.WriteString(remaining)

		switch kind {
		case frameReply:
			select {
			case h.replyCh <- []byte(payload):
			default:
			}
		case frameCall:
			h.handleCall(payload)
		}
	}

	return len(data), nil
}

// handleCall runs the host function off the write path and answers on
// stdin.
func (h *frameHandler) handleCall(payload string) {
	var req hostCallRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		h.respondJSON(hostCallResponse{Error: "invalid call frame"})
		return
	}

	go func() {
		if h.hostCall == nil {
			h.respondJSON(hostCallResponse{Error: "no host functions available"})
			return
		}
		result, err := h.hostCall(context.Background(), req.Path, req.Args)
		if err != nil {
			h.respondJSON(hostCallResponse{Error: err.Error()})
			return
		}
		h.respondJSON(hostCallResponse{Data: result})
	}()
}

func (h *frameHandler) respondJSON(resp hostCallResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		data = []byte(`{"error":"internal: failed to marshal response"}`)
	}
	h.respond(data)
}

// Ready resolves once the session handshake arrived.
func (h *frameHandler) Ready() <-chan struct{} {
	return h.readyCh
}

// Reply yields the payload of the next reply frame.
func (h *frameHandler) Reply() <-chan []byte {
	return h.replyCh
}

// ResetReply discards a stale reply before a new request goes out.
func (h *frameHandler) ResetReply() {
	select {
	case <-h.replyCh:
	default:
	}
}
