package session

import (
	"context"
	"errors"
	"time"

	"compliance-agent-be/internal/pkg/logger"
	"compliance-agent-be/pkg/agent"
)

var (
	ErrSnapshotNotFound = errors.New("session snapshot not found")
	// ErrOwnerMismatch means a resume attempt by a different user. The
	// snapshot is deleted; another user's data is never served.
	ErrOwnerMismatch = errors.New("session snapshot belongs to another user")
)

// Snapshot is the durable, user-scoped serialization of a session. It
// carries everything needed to resume on a different connection,
// including a pending interrupt's continuation.
type Snapshot struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	OrgID     string    `json:"org_id"`
	ProjectID string    `json:"project_id"`
	CreatedAt time.Time `json:"created_at"`

	EntryPoint string            `json:"entry_point"`
	Messages   []agent.Message   `json:"messages"`
	Context    map[string]any    `json:"context"`
	Findings   []string          `json:"findings"`
	Traces     []agent.ToolTrace `json:"tool_call_traces"`

	TokensUsed      int     `json:"tokens_used"`
	CreditsConsumed float64 `json:"credits_consumed"`
	CurrentTask     int     `json:"current_task"`

	PendingInterrupt bool                `json:"pending_interrupt"`
	Continuation     *agent.Continuation `json:"continuation,omitempty"`
}

// SnapshotStore is the durable key-value backend for snapshots.
type SnapshotStore interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, sessionID string) (*Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

// Manager pairs the durable snapshot store with the resume rules.
type Manager struct {
	snapshots SnapshotStore
	logger    logger.ILogger
}

func NewManager(snapshots SnapshotStore, log logger.ILogger) *Manager {
	return &Manager{snapshots: snapshots, logger: log}
}

// SaveSnapshot writes the session's durable copy. Callers must hold the
// session lock while building the snapshot; the write itself happens on
// the snapshot value, outside any lock.
func (m *Manager) SaveSnapshot(ctx context.Context, sess *agent.Session) error {
	return m.snapshots.Save(ctx, BuildSnapshot(sess))
}

// SaveRaw writes a snapshot that was built while the session lock was
// held, keeping the durable write itself outside the lock.
func (m *Manager) SaveRaw(ctx context.Context, snap *Snapshot) error {
	return m.snapshots.Save(ctx, snap)
}

// Resume restores a prior session's snapshot into a new session. The
// snapshot's owner must match the freshly authenticated user; on
// mismatch the snapshot is deleted and initialization fails. The entry
// point is overwritten for the new context, everything else is adopted
// verbatim.
func (m *Manager) Resume(ctx context.Context, priorID, userID, newID, userJWT string, entry agent.EntryPoint) (*agent.Session, error) {
	snap, err := m.snapshots.Load(ctx, priorID)
	if err != nil {
		return nil, err
	}

	if snap.UserID != userID {
		m.logger.Warn("Session", "Snapshot owner mismatch, deleting", map[string]interface{}{
			"prior_session_id": priorID, "owner": snap.UserID, "requester": userID,
		})
		if delErr := m.snapshots.Delete(ctx, priorID); delErr != nil {
			m.logger.Error("Session", "Failed to delete mismatched snapshot", map[string]interface{}{
				"prior_session_id": priorID, "error": delErr.Error(),
			})
		}
		return nil, ErrOwnerMismatch
	}

	sess := agent.NewSession(newID, snap.UserID, snap.OrgID, snap.ProjectID, userJWT, entry)
	sess.Messages = snap.Messages
	if snap.Context != nil {
		sess.Context = snap.Context
	}
	sess.TokensUsed = snap.TokensUsed
	sess.CreditsConsumed = snap.CreditsConsumed
	sess.CurrentTask = snap.CurrentTask
	sess.Findings = snap.Findings
	sess.Traces = snap.Traces
	sess.PendingInterrupt = snap.PendingInterrupt
	sess.Continuation = snap.Continuation
	return sess, nil
}

// DeleteSnapshot removes the durable copy once it is no longer needed.
func (m *Manager) DeleteSnapshot(ctx context.Context, sessionID string) error {
	return m.snapshots.Delete(ctx, sessionID)
}

// BuildSnapshot serializes the session's durable fields.
func BuildSnapshot(sess *agent.Session) *Snapshot {
	return &Snapshot{
		SessionID:        sess.ID,
		UserID:           sess.UserID,
		OrgID:            sess.OrgID,
		ProjectID:        sess.ProjectID,
		CreatedAt:        time.Now(),
		EntryPoint:       string(sess.EntryPoint),
		Messages:         sess.Messages,
		Context:          sess.Context,
		Findings:         sess.Findings,
		Traces:           sess.Traces,
		TokensUsed:       sess.TokensUsed,
		CreditsConsumed:  sess.CreditsConsumed,
		CurrentTask:      sess.CurrentTask,
		PendingInterrupt: sess.PendingInterrupt,
		Continuation:     sess.Continuation,
	}
}
