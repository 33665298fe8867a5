package agent

import (
	"strings"
	"time"
)

// EntryPoint is the logical chat context a session was opened in. It
// selects the prompt and the set of visible tools.
type EntryPoint string

const (
	EntryOnboarding  EntryPoint = "onboarding"
	EntryProjectView EntryPoint = "project_view"
	EntrySCFConfig   EntryPoint = "scf_config"
	EntryOther       EntryPoint = "other"
)

// ValidEntryPoint reports whether s names a known entry point.
func ValidEntryPoint(s string) bool {
	switch EntryPoint(s) {
	case EntryOnboarding, EntryProjectView, EntrySCFConfig, EntryOther:
		return true
	}
	return false
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// internalPrefix tags messages produced for the model's benefit only.
const internalPrefix = "[TOOL_STATUS]"

// Message is one transcript entry. Internal messages carry tool status
// and loop warnings; they are shown to the model but never to the user.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// IsInternal reports whether this message should be hidden from the
// user-facing transcript.
func (m Message) IsInternal() bool {
	return strings.HasPrefix(m.Content, internalPrefix)
}

// ToolTrace is one entry of the per-session tool activity window.
type ToolTrace struct {
	Time   time.Time `json:"time"`
	TurnID string    `json:"turn_id"`
	Tool   string    `json:"tool"`
	Args   []string  `json:"args"`
	Status string    `json:"status"`
	Error  string    `json:"error,omitempty"`
}

const (
	TraceStatusOK    = "ok"
	TraceStatusError = "error"
)

// TraceCap bounds the tool trace ring so a long session cannot grow it
// without limit.
const TraceCap = 100

// TurnState carries everything one state machine invocation needs: the
// session's durable fields plus transient routing flags. Routing flags
// never survive the turn.
type TurnState struct {
	SessionID  string         `json:"session_id"`
	EntryPoint EntryPoint     `json:"entry_point"`
	Messages   []Message      `json:"messages"`
	Context    map[string]any `json:"context"`

	// Task tracking
	CurrentTask int         `json:"current_task"`
	Findings    []string    `json:"findings"`
	Traces      []ToolTrace `json:"tool_call_traces"`

	// Transient routing flags
	TurnID             string     `json:"-"`
	HasToolCall        bool       `json:"-"`
	RequestedTool      []string   `json:"-"`
	RequestedTools     [][]string `json:"-"`
	HasWorkflow        bool       `json:"-"`
	RequestedWorkflow  string     `json:"-"`
	ToolShouldLoopback bool       `json:"-"`
}

// Clone returns a deep enough copy that the turn can mutate freely
// without touching the session it was built from.
func (st *TurnState) Clone() *TurnState {
	cp := *st
	cp.Messages = append([]Message(nil), st.Messages...)
	cp.Findings = append([]string(nil), st.Findings...)
	cp.Traces = append([]ToolTrace(nil), st.Traces...)
	cp.Context = make(map[string]any, len(st.Context))
	for k, v := range st.Context {
		cp.Context[k] = v
	}
	cp.RequestedTools = nil
	for _, call := range st.RequestedTools {
		cp.RequestedTools = append(cp.RequestedTools, append([]string(nil), call...))
	}
	return &cp
}

// Delta is the normalized outcome of one tool execution. Message and
// trace lists are appended during merge; scalar fields are
// last-writer-wins and only applied when set.
type Delta struct {
	Messages           []Message
	Traces             []ToolTrace
	Context            map[string]any
	Findings           []string
	CurrentTask        *int
	ToolShouldLoopback *bool
	Redirect           string
	Err                string
}

// Apply merges a delta into the turn state under the batch merge rules.
func (st *TurnState) Apply(d *Delta) {
	if d == nil {
		return
	}
	st.Messages = append(st.Messages, d.Messages...)
	st.Traces = append(st.Traces, d.Traces...)
	if len(st.Traces) > TraceCap {
		st.Traces = st.Traces[len(st.Traces)-TraceCap:]
	}
	if st.Context == nil {
		st.Context = make(map[string]any)
	}
	for k, v := range d.Context {
		st.Context[k] = v
	}
	st.Findings = append(st.Findings, d.Findings...)
	if d.CurrentTask != nil {
		st.CurrentTask = *d.CurrentTask
	}
	if d.ToolShouldLoopback != nil {
		st.ToolShouldLoopback = *d.ToolShouldLoopback
	}
}

// InternalMessage builds a model-only status message.
func InternalMessage(content string) Message {
	return Message{Role: RoleSystem, Content: internalPrefix + " " + content}
}

// Bool and Int build pointer scalars for Delta fields.
func Bool(b bool) *bool { return &b }
func Int(n int) *int    { return &n }
