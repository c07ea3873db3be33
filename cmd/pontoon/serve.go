package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/pontoon-dev/pontoon/interp"
	"github.com/pontoon-dev/pontoon/proxy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for code execution",
	Long: `Start an HTTP server that provides REST endpoints for code execution.

Endpoints:
  POST   /execute                  Execute code (stateless)
  POST   /sessions                 Create session, returns {"session_id":"..."}
  POST   /sessions/{id}/exec       Execute in session (state persists)
  POST   /sessions/{id}/complete   Completion suggestions
  POST   /sessions/{id}/invoke     Call a named function in the session
  DELETE /sessions/{id}            Close session
  GET    /health                   Health check

Server sessions always use the isolated placement so one stuck request
cannot wedge the process.`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().Duration("timeout", 30*time.Second, "Default execution timeout")
	rootCmd.AddCommand(serveCmd)
}

// sessionOutput is a swappable sink. The session's interpreter writes
// to whatever buffer the current request installed.
type sessionOutput struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (o *sessionOutput) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.buf == nil {
		return len(p), nil
	}
	return o.buf.Write(p)
}

func (o *sessionOutput) capture() *bytes.Buffer {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buf = &bytes.Buffer{}
	return o.buf
}

func (o *sessionOutput) release() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.buf == nil {
		return ""
	}
	s := o.buf.String()
	o.buf = nil
	return s
}

type serverSession struct {
	proxy    proxy.Proxy
	stdout   *sessionOutput
	stderr   *sessionOutput
	lastUsed time.Time
}

type sessionManager struct {
	sessions map[string]*serverSession
	mu       sync.RWMutex
	ttl      time.Duration
}

func newSessionManager(ttl time.Duration) *sessionManager {
	sm := &sessionManager{
		sessions: make(map[string]*serverSession),
		ttl:      ttl,
	}
	go sm.cleanup()
	return sm
}

func (sm *sessionManager) create(ctx context.Context, factory interp.Factory, assets string) (string, error) {
	p, err := proxy.New(proxy.PlaceIsolated, factory)
	if err != nil {
		return "", err
	}

	ss := &serverSession{
		proxy:    p,
		stdout:   &sessionOutput{},
		stderr:   &sessionOutput{},
		lastUsed: time.Now(),
	}
	if err := p.Init(ctx, interp.Config{
		RuntimeAssets: assets,
		Stdout:        ss.stdout,
		Stderr:        ss.stderr,
	}); err != nil {
		p.Close()
		return "", err
	}

	id := generateSessionID()
	sm.mu.Lock()
	sm.sessions[id] = ss
	sm.mu.Unlock()
	return id, nil
}

func (sm *sessionManager) get(id string) (*serverSession, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	ss, ok := sm.sessions[id]
	if !ok {
		return nil, false
	}
	ss.lastUsed = time.Now()
	return ss, true
}

func (sm *sessionManager) close(id string) bool {
	sm.mu.Lock()
	ss, ok := sm.sessions[id]
	if ok {
		ss.proxy.Close()
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()
	return ok
}

func (sm *sessionManager) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		sm.mu.Lock()
		now := time.Now()
		for id, ss := range sm.sessions {
			if now.Sub(ss.lastUsed) > sm.ttl {
				ss.proxy.Close()
				delete(sm.sessions, id)
			}
		}
		sm.mu.Unlock()
	}
}

func (sm *sessionManager) closeAll() {
	sm.mu.Lock()
	for id, ss := range sm.sessions {
		ss.proxy.Close()
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()
}

func generateSessionID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}

type executeRequest struct {
	Code    string `json:"code"`
	Result  string `json:"result,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type executeResponse struct {
	Output     string               `json:"output"`
	Stderr     string               `json:"stderr,omitempty"`
	Result     *proxy.ExecuteResult `json:"result,omitempty"`
	DurationMs int64                `json:"duration_ms"`
	Error      string               `json:"error,omitempty"`
}

type completeRequest struct {
	Code string `json:"code"`
}

type completeResponse struct {
	Completions []string `json:"completions"`
}

type invokeRequest struct {
	Name   string         `json:"name"`
	Args   []any          `json:"args,omitempty"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
}

type invokeResponse struct {
	Value any    `json:"value"`
	Error string `json:"error,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

func resultModeFor(s string) proxy.ResultMode {
	switch s {
	case "value":
		return proxy.ModeValue
	case "printed":
		return proxy.ModePrinted
	case "markup":
		return proxy.ModeMarkup
	default:
		return proxy.ModeNone
	}
}

func runServe(cmd *cobra.Command, args []string) {
	port, _ := cmd.Flags().GetInt("port")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	assets, _ := cmd.Root().PersistentFlags().GetString("assets")

	factory, cleanup, err := getFactory(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	sessions := newSessionManager(15 * time.Minute)
	defer sessions.closeAll()

	execCtx := func(r *http.Request, override string) (context.Context, context.CancelFunc) {
		d := timeout
		if override != "" {
			if parsed, err := time.ParseDuration(override); err == nil {
				d = parsed
			}
		}
		return context.WithTimeout(r.Context(), d)
	}

	runExec := func(ctx context.Context, ss *serverSession, req executeRequest) executeResponse {
		ss.stdout.capture()
		ss.stderr.capture()

		start := time.Now()
		result, err := ss.proxy.Execute(ctx, req.Code, proxy.WithResultMode(resultModeFor(req.Result)))
		duration := time.Since(start)

		resp := executeResponse{
			Output:     ss.stdout.release(),
			Stderr:     ss.stderr.release(),
			Result:     result,
			DurationMs: duration.Milliseconds(),
		}
		if err != nil {
			resp.Error = err.Error()
		}
		return resp
	}

	http.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		ctx, cancel := execCtx(r, "")
		defer cancel()

		sessionID, err := sessions.create(ctx, factory, assets)
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to create session: %v", err), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(createSessionResponse{SessionID: sessionID})
	})

	http.HandleFunc("/sessions/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/sessions/")
		parts := strings.SplitN(path, "/", 2)
		sessionID := parts[0]

		if sessionID == "" {
			http.Error(w, "session_id required", http.StatusBadRequest)
			return
		}

		if r.Method == http.MethodDelete {
			if sessions.close(sessionID) {
				w.WriteHeader(http.StatusNoContent)
			} else {
				http.Error(w, "session not found", http.StatusNotFound)
			}
			return
		}

		if r.Method != http.MethodPost || len(parts) != 2 {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		ss, ok := sessions.get(sessionID)
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		switch parts[1] {
		case "exec":
			var req executeRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
			if req.Code == "" {
				http.Error(w, "code required", http.StatusBadRequest)
				return
			}

			ctx, cancel := execCtx(r, req.Timeout)
			defer cancel()

			if err := ss.proxy.PreloadModules(ctx, req.Code); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(runExec(ctx, ss, req))

		case "complete":
			var req completeRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}

			ctx, cancel := execCtx(r, "")
			defer cancel()

			names, err := ss.proxy.CompleteAt(ctx, req.Code)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if names == nil {
				names = []string{}
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(completeResponse{Completions: names})

		case "invoke":
			var req invokeRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
			if req.Name == "" {
				http.Error(w, "name required", http.StatusBadRequest)
				return
			}

			ctx, cancel := execCtx(r, "")
			defer cancel()

			value, err := ss.proxy.InvokeNamed(ctx, strings.Split(req.Name, "."), req.Args, req.Kwargs)
			resp := invokeResponse{Value: value}
			if err != nil {
				resp.Error = err.Error()
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)

		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	})

	http.HandleFunc("/execute", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req executeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Code == "" {
			http.Error(w, "code required", http.StatusBadRequest)
			return
		}

		ctx, cancel := execCtx(r, req.Timeout)
		defer cancel()

		p, err := proxy.New(proxy.PlaceIsolated, factory)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer p.Close()

		ss := &serverSession{proxy: p, stdout: &sessionOutput{}, stderr: &sessionOutput{}}
		if err := p.Init(ctx, interp.Config{
			RuntimeAssets: assets,
			Stdout:        ss.stdout,
			Stderr:        ss.stderr,
		}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := p.PreloadModules(ctx, req.Code); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runExec(ctx, ss, req))
	})

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	fmt.Fprintf(os.Stderr, "pontoon server listening on %s\n", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
