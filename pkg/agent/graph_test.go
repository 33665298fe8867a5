package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func freshState(entry EntryPoint, userText string) *TurnState {
	sess := NewSession("s1", "u1", "o1", "p1", "jwt", entry)
	return sess.NewTurnState("t1", userText)
}

func testTC() *TurnContext {
	return NewTurnContext("s1", "t1", "u1", "o1", "p1", "jwt", nil)
}

func TestGraphHelloNoTools(t *testing.T) {
	provider := &scriptedProvider{replies: []string{structuredReply("Hello there!")}}
	g := newTestGraph(provider, newFakeRegistry(), 25)

	var updates []Update
	final, cont, err := g.Run(context.Background(), testTC(), freshState(EntryOther, "hello"), func(u Update) {
		updates = append(updates, u)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cont != nil {
		t.Fatal("unexpected continuation")
	}

	responses := 0
	for _, u := range updates {
		if u.Response != "" {
			responses++
			if u.Response != "Hello there!" {
				t.Errorf("response = %q", u.Response)
			}
		}
	}
	if responses != 1 {
		t.Errorf("visible responses = %d, want exactly 1", responses)
	}
	if len(final.Traces) != 0 {
		t.Errorf("traces = %d, want 0", len(final.Traces))
	}
	if !final.ToolShouldLoopback {
		t.Error("loopback default must survive a tool-less turn")
	}
}

func TestGraphToolLoopback(t *testing.T) {
	looping := &fakeTool{name: "lookup"}
	provider := &scriptedProvider{replies: []string{
		structuredReply("Checking...", "lookup,x"),
		structuredReply("Found it."),
	}}
	g := newTestGraph(provider, newFakeRegistry(looping), 25)

	final, _, err := g.Run(context.Background(), testTC(), freshState(EntryOther, "find x"), func(Update) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.callCount() != 2 {
		t.Errorf("model calls = %d, want 2 (tool looped back)", provider.callCount())
	}
	if len(final.Traces) != 1 {
		t.Errorf("traces = %d, want 1", len(final.Traces))
	}
	// The second model turn must have seen loopback reset to true.
	if !final.ToolShouldLoopback {
		t.Error("stale loopback leaked into the final model turn")
	}
	if final.HasToolCall || final.RequestedTools != nil || final.RequestedTool != nil {
		t.Error("requested flags not cleared after batch")
	}
}

func TestGraphTerminalSilentTool(t *testing.T) {
	silent := &fakeTool{
		name: "update_context",
		execute: func(ctx context.Context, tc *TurnContext, st *TurnState, payload any) (*Delta, error) {
			return &Delta{
				Messages:           []Message{InternalMessage("update_context applied: company_name=Acme")},
				Context:            map[string]any{"company_name": "Acme"},
				ToolShouldLoopback: Bool(false),
			}, nil
		},
	}
	provider := &scriptedProvider{replies: []string{
		structuredReply("Noted!", "update_context,company_name,Acme"),
	}}
	g := newTestGraph(provider, newFakeRegistry(silent), 25)

	final, _, err := g.Run(context.Background(), testTC(), freshState(EntryOther, "we are Acme"), func(Update) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.callCount() != 1 {
		t.Errorf("model calls = %d, want 1 (no acknowledgement turn)", provider.callCount())
	}
	if final.ToolShouldLoopback {
		t.Error("loopback must be false after a context-only update")
	}
	if final.Context["company_name"] != "Acme" {
		t.Error("context update lost")
	}
	found := false
	for _, m := range final.Messages {
		if m.IsInternal() && strings.Contains(m.Content, "update_context applied") {
			found = true
		}
	}
	if !found {
		t.Error("internal status message missing")
	}
}

func TestGraphUnknownToolIsValidationError(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		structuredReply("Trying...", "no_such_tool,arg"),
	}}
	g := newTestGraph(provider, newFakeRegistry(), 25)

	final, _, err := g.Run(context.Background(), testTC(), freshState(EntryOther, "hi"), func(Update) {})
	if err != nil {
		t.Fatalf("turn must not fail on a validation error: %v", err)
	}
	if provider.callCount() != 1 {
		t.Errorf("model calls = %d, want 1 (validation errors end the turn)", provider.callCount())
	}
	if final.ToolShouldLoopback {
		t.Error("validation error must clear loopback")
	}
	found := false
	for _, m := range final.Messages {
		if strings.HasPrefix(m.Content, "tool_validation_error:") {
			found = true
		}
	}
	if !found {
		t.Error("tool_validation_error message missing")
	}
}

func TestGraphWorkflowValidationErrorEndsTurn(t *testing.T) {
	workflow := &fakeTool{name: "bad_workflow", kind: KindWorkflow}
	provider := &scriptedProvider{replies: []string{
		structuredReply("Trying...", "bad_workflow"),
	}}
	g := newTestGraph(provider, newFakeRegistry(workflow), 25)

	final, cont, err := g.Run(context.Background(), testTC(), freshState(EntryOther, "evaluate"), func(Update) {})
	if err != nil {
		t.Fatalf("turn must not fail on a workflow validation error: %v", err)
	}
	if cont != nil {
		t.Fatal("workflow validation error must not suspend the turn")
	}
	if provider.callCount() != 1 {
		t.Errorf("model calls = %d, want 1 (validation errors end the turn)", provider.callCount())
	}
	if final.ToolShouldLoopback {
		t.Error("workflow validation error must clear loopback")
	}
	found := false
	for _, m := range final.Messages {
		if strings.HasPrefix(m.Content, "tool_validation_error:") {
			found = true
		}
	}
	if !found {
		t.Error("tool_validation_error message missing")
	}
}

func TestGraphBatchOrderAndThreading(t *testing.T) {
	var order []string
	mk := func(name string) *fakeTool {
		return &fakeTool{
			name: name,
			execute: func(ctx context.Context, tc *TurnContext, st *TurnState, payload any) (*Delta, error) {
				order = append(order, name)
				// Later calls must see earlier effects within the batch.
				seen, _ := st.Context["chain"].(string)
				return &Delta{
					Messages: []Message{InternalMessage(name + " ran")},
					Context:  map[string]any{"chain": seen + name + ";"},
				}, nil
			},
		}
	}
	provider := &scriptedProvider{replies: []string{
		structuredReply("Running both.", "first", "second"),
		structuredReply("Done."),
	}}
	g := newTestGraph(provider, newFakeRegistry(mk("first"), mk("second")), 25)

	final, _, err := g.Run(context.Background(), testTC(), freshState(EntryOther, "go"), func(Update) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("execution order = %v", order)
	}
	if final.Context["chain"] != "first;second;" {
		t.Errorf("state threading broken: %v", final.Context["chain"])
	}
	if final.RequestedTools != nil {
		t.Error("requested_tools not cleared after batch")
	}
}

func TestGraphBatchStopsOnTerminalTool(t *testing.T) {
	ran := map[string]bool{}
	redirect := &fakeTool{
		name:     "configure_scf",
		terminal: true,
		execute: func(ctx context.Context, tc *TurnContext, st *TurnState, payload any) (*Delta, error) {
			ran["configure_scf"] = true
			return &Delta{ToolShouldLoopback: Bool(false), Redirect: "scf"}, nil
		},
	}
	after := &fakeTool{
		name: "after",
		execute: func(ctx context.Context, tc *TurnContext, st *TurnState, payload any) (*Delta, error) {
			ran["after"] = true
			return &Delta{}, nil
		},
	}
	provider := &scriptedProvider{replies: []string{
		structuredReply("", "configure_scf", "after"),
	}}
	g := newTestGraph(provider, newFakeRegistry(redirect, after), 25)

	var sawRedirect string
	_, _, err := g.Run(context.Background(), testTC(), freshState(EntryOther, "set up scf"), func(u Update) {
		if u.Redirect != "" {
			sawRedirect = u.Redirect
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran["configure_scf"] || ran["after"] {
		t.Errorf("terminal tool must stop the batch: ran=%v", ran)
	}
	if sawRedirect != "scf" {
		t.Errorf("redirect = %q, want scf", sawRedirect)
	}
}

func TestGraphStepLimit(t *testing.T) {
	loop := &fakeTool{name: "again"}
	provider := &scriptedProvider{replies: []string{
		structuredReply("once more", "again"),
	}}
	g := newTestGraph(provider, newFakeRegistry(loop), 6)

	_, _, err := g.Run(context.Background(), testTC(), freshState(EntryOther, "loop"), func(Update) {})
	if !errors.Is(err, ErrStepLimit) {
		t.Fatalf("err = %v, want ErrStepLimit", err)
	}
}

func TestGraphWorkflowInterruptAndResume(t *testing.T) {
	workflow := &fakeTool{name: "start_evaluation", kind: KindWorkflow}
	provider := &scriptedProvider{replies: []string{
		structuredReply("Starting an evaluation.", "start_evaluation"),
		structuredReply("Evaluation is underway."),
	}}
	g := newTestGraph(provider, newFakeRegistry(workflow), 25)

	st := freshState(EntryProjectView, "evaluate us")
	st.Context["codebases"] = []string{"api", "frontend"}

	var interrupt *InterruptPayload
	_, cont, err := g.Run(context.Background(), testTC(), st, func(u Update) {
		if u.Interrupt != nil {
			interrupt = u.Interrupt
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cont == nil {
		t.Fatal("expected a continuation for the codebase question")
	}
	if interrupt == nil || interrupt.Kind != "ask_codebase" {
		t.Fatalf("interrupt = %+v", interrupt)
	}
	if len(interrupt.Options) != 2 {
		t.Errorf("options = %v", interrupt.Options)
	}

	final, cont2, err := g.Resume(context.Background(), testTC(), cont, "api", func(Update) {})
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if cont2 != nil {
		t.Fatal("resume must complete, not suspend again")
	}
	if final.Context["codebase"] != "api" {
		t.Errorf("codebase = %v", final.Context["codebase"])
	}
	if final.Context["evaluation_status"] != "running" {
		t.Errorf("evaluation_status = %v", final.Context["evaluation_status"])
	}
	if final.CurrentTask != 1 {
		t.Errorf("CurrentTask = %d, want 1", final.CurrentTask)
	}
}

func TestGraphApologyOnUnparseableReplies(t *testing.T) {
	provider := &scriptedProvider{replies: []string{"never json"}}
	g := newTestGraph(provider, newFakeRegistry(), 25)

	var response string
	final, _, err := g.Run(context.Background(), testTC(), freshState(EntryOther, "hi"), func(u Update) {
		if u.Response != "" {
			response = u.Response
		}
	})
	if err != nil {
		t.Fatalf("parse failure must degrade, not error: %v", err)
	}
	if response != apologyMessage {
		t.Errorf("response = %q, want the fixed apology", response)
	}
	if len(final.Traces) != 0 {
		t.Error("apology turn must not touch traces")
	}
}
