package agent

import (
	"time"
)

// Session is the live, in-memory record for one conversation. All field
// access must happen while holding the session's lock in the store; the
// only exception is the Closed flag, which is read through atomic-free
// probes guarded by the same lock.
type Session struct {
	ID        string
	UserID    string
	OrgID     string
	ProjectID string
	UserJWT   string

	EntryPoint EntryPoint
	Messages   []Message
	Context    map[string]any

	TokensUsed      int
	CreditsConsumed float64

	CurrentTask int
	Findings    []string
	Traces      []ToolTrace

	PendingInterrupt bool
	Continuation     *Continuation

	Closed    bool
	CreatedAt time.Time
}

// NewSession builds a fresh session with an initialized context map.
func NewSession(id, userID, orgID, projectID, userJWT string, entry EntryPoint) *Session {
	return &Session{
		ID:         id,
		UserID:     userID,
		OrgID:      orgID,
		ProjectID:  projectID,
		UserJWT:    userJWT,
		EntryPoint: entry,
		Context:    make(map[string]any),
		CreatedAt:  time.Now(),
	}
}

// NewTurnState builds the turn's working state from the session plus the
// incoming user message. Routing flags start at their defaults.
func (s *Session) NewTurnState(turnID, userText string) *TurnState {
	st := &TurnState{
		SessionID:          s.ID,
		EntryPoint:         s.EntryPoint,
		Messages:           append([]Message(nil), s.Messages...),
		Context:            make(map[string]any, len(s.Context)),
		CurrentTask:        s.CurrentTask,
		Findings:           append([]string(nil), s.Findings...),
		Traces:             append([]ToolTrace(nil), s.Traces...),
		TurnID:             turnID,
		ToolShouldLoopback: true,
	}
	for k, v := range s.Context {
		st.Context[k] = v
	}
	if userText != "" {
		st.Messages = append(st.Messages, Message{Role: RoleUser, Content: userText})
	}
	return st
}

// CommitTurn folds a finished turn back into the session.
func (s *Session) CommitTurn(st *TurnState, turnTokens int) {
	s.Messages = st.Messages
	s.Context = st.Context
	s.CurrentTask = st.CurrentTask
	s.Findings = st.Findings
	s.Traces = st.Traces
	s.TokensUsed += turnTokens
	s.CreditsConsumed += CalculateCredits(turnTokens)
}

// VisibleMessages filters internal tool-status entries out of the
// transcript for user-facing replay.
func (s *Session) VisibleMessages() []Message {
	out := make([]Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		if m.Role == RoleSystem || m.IsInternal() {
			continue
		}
		out = append(out, m)
	}
	return out
}

// VisibleWindow returns the trailing n visible messages, the slice a
// reconnecting client gets replayed on init. n <= 0 means no cap.
func (s *Session) VisibleWindow(n int) []Message {
	visible := s.VisibleMessages()
	if n > 0 && len(visible) > n {
		visible = visible[len(visible)-n:]
	}
	return visible
}
