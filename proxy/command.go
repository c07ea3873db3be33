package proxy

import (
	"bytes"
	"encoding/json"

	"github.com/pontoon-dev/pontoon/interp"
)

// CommandKind tags a Command. New operations extend the tag set; an
// existing tag is never overloaded.
type CommandKind string

const (
	CmdInit        CommandKind = "init"
	CmdPreload     CommandKind = "preload"
	CmdExec        CommandKind = "exec"
	CmdComplete    CommandKind = "complete"
	CmdInvoke      CommandKind = "invoke"
	CmdOpenChannel CommandKind = "openChannel"
	CmdHTTPScope   CommandKind = "httpScope"
)

// ResultMode selects which projection of an executed statement's value
// the caller wants back.
type ResultMode string

const (
	ModeValue   ResultMode = "value"
	ModePrinted ResultMode = "printed"
	ModeMarkup  ResultMode = "markup"
	ModeNone    ResultMode = "none"
)

// WireConfig is the serializable subset of interp.Config. Sinks and
// the host-call hook never cross the boundary; output and callbacks
// travel back as events instead.
type WireConfig struct {
	RuntimeAssets string `json:"runtime_assets"`
	FullStdlib    bool   `json:"full_stdlib,omitempty"`
}

// Command is the tagged request vocabulary. Each command is
// self-contained: it carries everything needed to execute it.
type Command struct {
	Kind CommandKind `json:"kind"`

	Config *WireConfig `json:"config,omitempty"` // init

	Source string     `json:"source,omitempty"`  // preload, exec, complete
	Mode   ResultMode `json:"mode,omitempty"`    // exec
	NoEcho bool       `json:"no_echo,omitempty"` // exec

	Path   []string       `json:"path,omitempty"`   // invoke
	Args   []any          `json:"args,omitempty"`   // invoke
	Kwargs map[string]any `json:"kwargs,omitempty"` // invoke

	AppPath string     `json:"app_path,omitempty"` // openChannel
	AppID   string     `json:"app_id,omitempty"`   // openChannel, httpScope
	Scope   *HTTPScope `json:"scope,omitempty"`    // httpScope
}

// ExecuteResult is the mode-shaped outcome of an exec command. Only
// the field matching Mode is meaningful.
type ExecuteResult struct {
	Mode    ResultMode     `json:"mode"`
	Value   any            `json:"value,omitempty"`
	Printed string         `json:"printed,omitempty"`
	Markup  *interp.Markup `json:"markup,omitempty"`
}

// Reply correlates to exactly one Command and echoes its kind; a kind
// mismatch on receipt is a ProtocolError. It carries either the
// kind-shaped payload or a wire error, never both.
type Reply struct {
	Kind        CommandKind    `json:"kind"`
	Result      *ExecuteResult `json:"result,omitempty"`      // exec
	Completions []string       `json:"completions,omitempty"` // complete
	Value       any            `json:"value,omitempty"`       // invoke
	Err         *wireError     `json:"error,omitempty"`
}

// decodeCommand parses a serialized command, restoring the Go number
// shapes of any payload values.
func decodeCommand(data []byte, cmd *Command) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(cmd); err != nil {
		return err
	}
	for i, a := range cmd.Args {
		cmd.Args[i] = restoreNumbers(a)
	}
	for k, v := range cmd.Kwargs {
		cmd.Kwargs[k] = restoreNumbers(v)
	}
	return nil
}

// decodeReply parses a serialized reply, restoring the Go number
// shapes of any payload values.
func decodeReply(data []byte, r *Reply) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(r); err != nil {
		return err
	}
	if r.Result != nil {
		r.Result.Value = restoreNumbers(r.Result.Value)
	}
	r.Value = restoreNumbers(r.Value)
	return nil
}

// restoreNumbers rebuilds exported value shapes after a JSON hop:
// integral numbers come back as int64 and the rest as float64, the
// same shapes an interpreter on the caller's side hands over directly.
func restoreNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		for i, e := range t {
			t[i] = restoreNumbers(e)
		}
	case map[string]any:
		for k, e := range t {
			t[k] = restoreNumbers(e)
		}
	}
	return v
}

// EventKind tags unsolicited traffic from the interpreter side.
type EventKind string

const (
	EventOutput   EventKind = "output"
	EventCallHost EventKind = "callHost"
)

// Event is a non-reply message: unbounded in count, delivered in send
// order, correlated to no command.
type Event struct {
	Kind   EventKind `json:"kind"`
	Stdout string    `json:"stdout,omitempty"`
	Stderr string    `json:"stderr,omitempty"`
	Path   []string  `json:"path,omitempty"`
	Args   []any     `json:"args,omitempty"`
}
