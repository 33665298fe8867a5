package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"compliance-agent-be/internal/pkg/logger"
)

func newTestProcessor(g *Graph, store SessionStore, credits CreditSubtractor) *Processor {
	return NewProcessor(store, g, credits, logger.NewNopLogger())
}

func waitForSubtraction(t *testing.T, rec *creditRecorder) (string, int) {
	t.Helper()
	select {
	case call := <-rec.calls:
		return call.orgID, call.amount
	case <-time.After(2 * time.Second):
		t.Fatal("credit subtraction never fired")
		return "", 0
	}
}

func TestProcessorHelloTurn(t *testing.T) {
	provider := &scriptedProvider{replies: []string{structuredReply("Hello there!")}}
	g := newTestGraph(provider, newFakeRegistry(), 25)
	sess := NewSession("s1", "u1", "o1", "p1", "jwt", EntryOther)
	store := newMemStore(sess)
	rec := newCreditRecorder()
	p := newTestProcessor(g, store, rec)

	response, err := p.ProcessMessage(context.Background(), "s1", "hello", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response != "Hello there!" {
		t.Errorf("response = %q", response)
	}

	if sess.TokensUsed <= 0 {
		t.Error("turn tokens were not committed")
	}
	if sess.CreditsConsumed != CalculateCredits(sess.TokensUsed) {
		t.Errorf("credits = %v, tokens = %d", sess.CreditsConsumed, sess.TokensUsed)
	}
	if len(sess.Traces) != 0 {
		t.Errorf("traces = %d, want 0", len(sess.Traces))
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("messages = %d, want user + assistant", len(sess.Messages))
	}
	if sess.Messages[0].Role != RoleUser || sess.Messages[1].Content != "Hello there!" {
		t.Errorf("transcript = %+v", sess.Messages)
	}

	orgID, amount := waitForSubtraction(t, rec)
	if orgID != "o1" {
		t.Errorf("subtraction org = %q", orgID)
	}
	if amount != SubtractionAmount(CalculateCredits(sess.TokensUsed)) {
		t.Errorf("subtraction amount = %d", amount)
	}
	if amount < 1 {
		t.Errorf("subtraction amount = %d, must be at least 1", amount)
	}
}

func TestProcessorSilentToolTurn(t *testing.T) {
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
		structuredReply("", "update_context,company_name,Acme"),
	}}
	g := newTestGraph(provider, newFakeRegistry(silent), 25)
	sess := NewSession("s1", "u1", "o1", "p1", "jwt", EntryOther)
	store := newMemStore(sess)
	p := newTestProcessor(g, store, newCreditRecorder())

	response, err := p.ProcessMessage(context.Background(), "s1", "we are called Acme", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response != "" {
		t.Errorf("silent turn returned %q", response)
	}
	if sess.PendingInterrupt {
		t.Error("silent turn must not set a pending interrupt")
	}
	if sess.Context["company_name"] != "Acme" {
		t.Error("context update not committed")
	}
	found := false
	for _, m := range sess.Messages {
		if m.IsInternal() && strings.Contains(m.Content, "update_context applied") {
			found = true
		}
	}
	if !found {
		t.Error("internal status message not committed")
	}
	for _, m := range sess.VisibleMessages() {
		if m.Role == RoleAssistant {
			t.Errorf("unexpected visible assistant message: %q", m.Content)
		}
	}
}

func TestProcessorStepLimit(t *testing.T) {
	loop := &fakeTool{name: "again"}
	provider := &scriptedProvider{replies: []string{structuredReply("looping", "again")}}
	g := newTestGraph(provider, newFakeRegistry(loop), 4)
	sess := NewSession("s1", "u1", "o1", "p1", "jwt", EntryOther)
	store := newMemStore(sess)
	p := newTestProcessor(g, store, newCreditRecorder())

	var streamed string
	response, err := p.ProcessMessage(context.Background(), "s1", "loop forever", func(u Update) {
		if u.Response != "" {
			streamed = u.Response
		}
	})
	if err != nil {
		t.Fatalf("step limit must not surface as an error: %v", err)
	}
	if response != StepLimitMessage {
		t.Errorf("response = %q", response)
	}
	if streamed != StepLimitMessage {
		t.Errorf("streamed response = %q", streamed)
	}
	if sess.PendingInterrupt {
		t.Error("step limit must clear any pending interrupt")
	}
	last := sess.Messages[len(sess.Messages)-1]
	if last.Role != RoleAssistant || last.Content != StepLimitMessage {
		t.Errorf("last committed message = %+v", last)
	}
}

func TestProcessorSessionErrors(t *testing.T) {
	provider := &scriptedProvider{replies: []string{structuredReply("hi")}}
	g := newTestGraph(provider, newFakeRegistry(), 25)
	closed := NewSession("closed", "u1", "o1", "p1", "jwt", EntryOther)
	closed.Closed = true
	store := newMemStore(closed)
	p := newTestProcessor(g, store, newCreditRecorder())

	if _, err := p.ProcessMessage(context.Background(), "missing", "hi", nil); err != ErrSessionNotFound {
		t.Errorf("missing session err = %v", err)
	}
	if _, err := p.ProcessMessage(context.Background(), "closed", "hi", nil); err != ErrSessionClosed {
		t.Errorf("closed session err = %v", err)
	}
}

func TestProcessorInterruptPersistenceAndResume(t *testing.T) {
	workflow := &fakeTool{name: "start_evaluation", kind: KindWorkflow}
	provider := &scriptedProvider{replies: []string{
		structuredReply("Starting an evaluation.", "start_evaluation"),
		structuredReply("Evaluation is underway."),
	}}
	g := newTestGraph(provider, newFakeRegistry(workflow), 25)
	sess := NewSession("s1", "u1", "o1", "p1", "jwt", EntryProjectView)
	sess.Context["codebases"] = []string{"api", "frontend"}
	store := newMemStore(sess)
	rec := newCreditRecorder()
	p := newTestProcessor(g, store, rec)

	var interrupt *InterruptPayload
	response, err := p.ProcessMessage(context.Background(), "s1", "evaluate us", func(u Update) {
		if u.Interrupt != nil {
			interrupt = u.Interrupt
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response != "" {
		t.Errorf("suspended turn returned %q", response)
	}
	if interrupt == nil || interrupt.Kind != "ask_codebase" {
		t.Fatalf("interrupt = %+v", interrupt)
	}
	if !sess.PendingInterrupt || sess.Continuation == nil {
		t.Fatal("continuation not persisted")
	}
	if sess.Continuation.Awaiting != "codebase_choice" {
		t.Errorf("awaiting = %q", sess.Continuation.Awaiting)
	}

	response, err = p.ProcessMessage(context.Background(), "s1", "api", nil)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if response != "Evaluation is underway." {
		t.Errorf("resume response = %q", response)
	}
	if sess.PendingInterrupt || sess.Continuation != nil {
		t.Error("interrupt state not cleared after resume")
	}
	if sess.Context["codebase"] != "api" {
		t.Errorf("codebase = %v", sess.Context["codebase"])
	}
	if sess.Context["evaluation_status"] != "running" {
		t.Errorf("evaluation_status = %v", sess.Context["evaluation_status"])
	}
	if sess.CurrentTask != 1 {
		t.Errorf("CurrentTask = %d", sess.CurrentTask)
	}

	orgID, amount := waitForSubtraction(t, rec)
	if orgID != "o1" || amount < 1 {
		t.Errorf("subtraction = %q/%d", orgID, amount)
	}
}
