package agent

import (
	"fmt"
	"testing"
)

func TestApplyMergeRules(t *testing.T) {
	st := &TurnState{
		SessionID: "s1",
		Messages:  []Message{{Role: RoleUser, Content: "hi"}},
		Context:   map[string]any{"a": "old", "keep": "yes"},
	}

	st.Apply(&Delta{
		Messages:           []Message{InternalMessage("one")},
		Context:            map[string]any{"a": "new", "b": "added"},
		Findings:           []string{"f1"},
		CurrentTask:        Int(3),
		ToolShouldLoopback: Bool(false),
	})

	if len(st.Messages) != 2 {
		t.Fatalf("messages = %d, want 2 (append)", len(st.Messages))
	}
	if st.Context["a"] != "new" || st.Context["b"] != "added" || st.Context["keep"] != "yes" {
		t.Errorf("context merge wrong: %v", st.Context)
	}
	if st.CurrentTask != 3 {
		t.Errorf("CurrentTask = %d, want 3", st.CurrentTask)
	}
	if st.ToolShouldLoopback {
		t.Error("ToolShouldLoopback not applied")
	}
	if len(st.Findings) != 1 || st.Findings[0] != "f1" {
		t.Errorf("findings = %v", st.Findings)
	}

	// Scalars are last-writer-wins across deltas; nil pointer leaves
	// the previous value alone.
	st.Apply(&Delta{Context: map[string]any{"a": "newest"}})
	if st.Context["a"] != "newest" {
		t.Errorf("context LWW broken: %v", st.Context["a"])
	}
	if st.CurrentTask != 3 {
		t.Error("unset scalar overwrote prior value")
	}
}

func TestApplyTraceCap(t *testing.T) {
	st := &TurnState{}
	for i := 0; i < TraceCap+20; i++ {
		st.Apply(&Delta{Traces: []ToolTrace{trace("update_context", "x")}})
	}
	if len(st.Traces) != TraceCap {
		t.Errorf("traces = %d, want capped at %d", len(st.Traces), TraceCap)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	st := &TurnState{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Context:  map[string]any{"a": 1},
		Findings: []string{"f"},
	}
	cp := st.Clone()
	cp.Messages = append(cp.Messages, Message{Role: RoleAssistant, Content: "x"})
	cp.Context["a"] = 2
	cp.Findings[0] = "changed"

	if len(st.Messages) != 1 {
		t.Error("clone shares messages")
	}
	if st.Context["a"] != 1 {
		t.Error("clone shares context")
	}
}

func TestInternalMessageTagging(t *testing.T) {
	m := InternalMessage("update_context applied: x=y")
	if !m.IsInternal() {
		t.Error("internal message not recognized")
	}
	if (Message{Role: RoleAssistant, Content: "hello"}).IsInternal() {
		t.Error("plain assistant message flagged internal")
	}
}

func TestVisibleMessagesFiltersInternal(t *testing.T) {
	sess := NewSession("s1", "u1", "o1", "", "", EntryOther)
	sess.Messages = []Message{
		{Role: RoleUser, Content: "hi"},
		InternalMessage("update_context applied"),
		{Role: RoleSystem, Content: "tool_validation_error: nope"},
		{Role: RoleAssistant, Content: "hello"},
	}
	visible := sess.VisibleMessages()
	if len(visible) != 2 {
		t.Fatalf("visible = %d, want 2", len(visible))
	}
	if visible[0].Content != "hi" || visible[1].Content != "hello" {
		t.Errorf("unexpected visible transcript: %v", visible)
	}
}

func TestVisibleWindowCapsReplay(t *testing.T) {
	sess := NewSession("s1", "u1", "o1", "", "", EntryOther)
	for i := 0; i < 40; i++ {
		sess.Messages = append(sess.Messages,
			Message{Role: RoleUser, Content: fmt.Sprintf("m%d", i)},
			InternalMessage("status"),
		)
	}

	window := sess.VisibleWindow(15)
	if len(window) != 15 {
		t.Fatalf("window = %d, want 15", len(window))
	}
	if window[0].Content != "m25" || window[14].Content != "m39" {
		t.Errorf("window keeps the wrong tail: first=%q last=%q", window[0].Content, window[14].Content)
	}
	for _, m := range window {
		if m.IsInternal() {
			t.Fatal("internal message leaked into the replay window")
		}
	}

	if got := len(sess.VisibleWindow(0)); got != 40 {
		t.Errorf("uncapped window = %d, want 40", got)
	}
}
