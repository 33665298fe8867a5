package agent

import (
	"context"
	"errors"
	"time"

	"compliance-agent-be/internal/pkg/logger"
	"compliance-agent-be/pkg/llm"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
)

// SessionStore is the per-session locked map the processor commits into.
type SessionStore interface {
	Get(id string) (*Session, bool)
	Lock(id string)
	Unlock(id string)
}

// CreditSubtractor is the external balance endpoint, reached only from
// the metering reconciliation step.
type CreditSubtractor interface {
	SubtractCredits(ctx context.Context, orgID string, amount int) error
}

// Processor orchestrates one user message end to end: lock handling,
// state machine invocation, interrupt persistence, metering, and the
// session commit. Model and tool I/O always happens with the session
// lock released.
type Processor struct {
	store   SessionStore
	graph   *Graph
	credits CreditSubtractor
	logger  logger.ILogger
}

func NewProcessor(store SessionStore, graph *Graph, credits CreditSubtractor, log logger.ILogger) *Processor {
	return &Processor{store: store, graph: graph, credits: credits, logger: log}
}

// ProcessMessage runs one turn for the session. Visible assistant text
// is delivered through emit as it appears; the return value is the last
// visible response, empty when the turn ended silently or suspended.
func (p *Processor) ProcessMessage(ctx context.Context, sessionID, text string, emit func(Update)) (string, error) {
	if emit == nil {
		emit = func(Update) {}
	}

	p.store.Lock(sessionID)
	sess, ok := p.store.Get(sessionID)
	if !ok {
		p.store.Unlock(sessionID)
		return "", ErrSessionNotFound
	}
	if sess.Closed {
		p.store.Unlock(sessionID)
		return "", ErrSessionClosed
	}

	turnID := uuid.NewString()
	tc := NewTurnContext(sess.ID, turnID, sess.UserID, sess.OrgID, sess.ProjectID, sess.UserJWT, p.closedProbe(sessionID))

	resuming := sess.PendingInterrupt && sess.Continuation != nil
	var cont *Continuation
	var st *TurnState
	if resuming {
		cont = sess.Continuation
		cont.State.Messages = append(cont.State.Messages, Message{Role: RoleUser, Content: text})
	} else {
		st = sess.NewTurnState(turnID, text)
	}
	p.store.Unlock(sessionID)

	var response string
	wrapped := func(u Update) {
		if u.Response != "" {
			response = u.Response
		}
		emit(u)
	}

	var final *TurnState
	var nextCont *Continuation
	var err error
	if resuming {
		final, nextCont, err = p.graph.Resume(ctx, tc, cont, text, wrapped)
	} else {
		final, nextCont, err = p.graph.Run(ctx, tc, st, wrapped)
	}

	switch {
	case err == nil && nextCont != nil:
		// Turn suspended; persist the continuation and end here. The
		// interrupt payload already went out through emit.
		p.store.Lock(sessionID)
		sess.PendingInterrupt = true
		sess.Continuation = nextCont
		p.store.Unlock(sessionID)
		return "", nil

	case errors.Is(err, ErrStepLimit):
		p.logger.Warn("Processor", "Turn hit step limit", map[string]interface{}{
			"session_id": sessionID, "turn_id": turnID,
		})
		p.store.Lock(sessionID)
		if !resuming && text != "" {
			sess.Messages = append(sess.Messages, Message{Role: RoleUser, Content: text})
		}
		sess.Messages = append(sess.Messages, Message{Role: RoleAssistant, Content: StepLimitMessage})
		sess.PendingInterrupt = false
		sess.Continuation = nil
		p.store.Unlock(sessionID)
		emit(Update{Phase: PhaseSilentEnd, Response: StepLimitMessage})
		return StepLimitMessage, nil

	case errors.Is(err, llm.ErrTurnCanceled), errors.Is(err, context.Canceled):
		// Session closed mid-flight: discard silently, no writes.
		return "", nil

	case err != nil:
		return "", err
	}

	turnTokens := tc.TokensUsed()

	p.store.Lock(sessionID)
	if sess.Closed {
		p.store.Unlock(sessionID)
		return "", nil
	}
	if resuming {
		sess.PendingInterrupt = false
		sess.Continuation = nil
	}
	sess.CommitTurn(final, turnTokens)
	orgID := sess.OrgID
	p.store.Unlock(sessionID)

	if response == "" && final.ToolShouldLoopback {
		response = lastVisibleAssistant(final.Messages)
	}

	// Credit reconciliation never blocks the user-visible response.
	if credits := CalculateCredits(turnTokens); credits > 0 && orgID != "" && p.credits != nil {
		go p.subtract(orgID, credits, sessionID, turnID)
	}

	return response, nil
}

func (p *Processor) subtract(orgID string, credits float64, sessionID, turnID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	amount := SubtractionAmount(credits)
	if err := p.credits.SubtractCredits(ctx, orgID, amount); err != nil {
		p.logger.Error("Processor", "Credit subtraction failed", map[string]interface{}{
			"org_id": orgID, "amount": amount, "session_id": sessionID, "turn_id": turnID, "error": err.Error(),
		})
	}
}

func (p *Processor) closedProbe(sessionID string) func() bool {
	return func() bool {
		p.store.Lock(sessionID)
		defer p.store.Unlock(sessionID)
		sess, ok := p.store.Get(sessionID)
		return !ok || sess.Closed
	}
}

func lastVisibleAssistant(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role == RoleAssistant && !m.IsInternal() {
			return m.Content
		}
	}
	return ""
}
