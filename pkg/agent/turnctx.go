package agent

import (
	"sync"
)

// TurnContext correlates everything one turn does: metering, auth
// material for tool calls, and the cancellation probe. It is passed
// explicitly through every call so token attribution is visible in the
// signatures instead of living in ambient state.
type TurnContext struct {
	SessionID string
	TurnID    string
	UserID    string
	OrgID     string
	ProjectID string
	UserJWT   string

	closed func() bool

	mu               sync.Mutex
	promptTokens     int
	completionTokens int
}

// NewTurnContext builds a context for one turn. closedProbe is consulted
// before every model call; a nil probe means the turn can never be
// canceled (useful in tests).
func NewTurnContext(sessionID, turnID, userID, orgID, projectID, userJWT string, closedProbe func() bool) *TurnContext {
	return &TurnContext{
		SessionID: sessionID,
		TurnID:    turnID,
		UserID:    userID,
		OrgID:     orgID,
		ProjectID: projectID,
		UserJWT:   userJWT,
		closed:    closedProbe,
	}
}

// RecordTokens adds one model call's usage to the turn accumulator.
func (tc *TurnContext) RecordTokens(promptTokens, completionTokens int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.promptTokens += promptTokens
	tc.completionTokens += completionTokens
}

// Canceled reports whether the owning session was closed mid-turn.
func (tc *TurnContext) Canceled() bool {
	if tc.closed == nil {
		return false
	}
	return tc.closed()
}

// TokensUsed returns the total tokens metered so far this turn.
func (tc *TurnContext) TokensUsed() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.promptTokens + tc.completionTokens
}
