package handler

import (
	"context"
	"errors"
	"time"

	"compliance-agent-be/internal/config"
	"compliance-agent-be/internal/dto"
	"compliance-agent-be/internal/pkg/logger"
	"compliance-agent-be/internal/service"
	"compliance-agent-be/internal/session"
	internalWS "compliance-agent-be/internal/websocket"
	"compliance-agent-be/pkg/agent"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	welcomeOnboarding1 = "Hi! I'm your compliance assistant. I'll help you get your organization set up and pointed at the right framework."
	welcomeOnboarding2 = "To get started, tell me a bit about your company: what do you do, and roughly how many people work there?"
	scfKickoffPrompt   = "" // SCF sessions open with a model-generated recap of configuration progress.
)

// ChatHandler owns the websocket chat endpoint: handshake, the
// per-connection message loop, and the session lifecycle tied to it.
type ChatHandler struct {
	cfg       *config.Config
	backend   service.IBackendService
	store     *session.Store
	sessions  *session.Manager
	processor *agent.Processor
	validate  *validator.Validate
	logger    logger.ILogger
}

func NewChatHandler(cfg *config.Config, backend service.IBackendService, store *session.Store,
	sessions *session.Manager, processor *agent.Processor, log logger.ILogger) *ChatHandler {
	return &ChatHandler{
		cfg:       cfg,
		backend:   backend,
		store:     store,
		sessions:  sessions,
		processor: processor,
		validate:  validator.New(),
		logger:    log,
	}
}

func (h *ChatHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/ws/chat", h.ServeWs)
}

// ServeWs verifies the handshake token and hands the upgraded
// connection to the message loop.
func (h *ChatHandler) ServeWs(c *fiber.Ctx) error {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		}
	}
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token (Query 'token' or Header 'Authorization')"})
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.ErrUnauthorized
		}
		return []byte(h.cfg.Keys.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		h.logger.Warn("ChatHandler", "Invalid token in WS handshake", map[string]interface{}{"error": err})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token claims"})
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Token missing user_id"})
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(ws *websocket.Conn) {
			h.logger.Info("ChatHandler", "Starting chat session", map[string]interface{}{"user_id": userID})
			h.serve(ws, userID, tokenStr)
			h.logger.Info("ChatHandler", "Chat session ended", map[string]interface{}{"user_id": userID})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

// serve runs the per-connection loop. The session handle lives here,
// not in any process-wide table.
func (h *ChatHandler) serve(ws *websocket.Conn, userID, userJWT string) {
	conn := internalWS.NewConn(ws, h.logger)
	defer conn.Close()

	var sess *agent.Session
	defer func() {
		if sess != nil {
			h.teardown(sess)
		}
	}()

	for {
		var msg dto.ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Kind {
		case dto.KindInit:
			if sess != nil {
				conn.Send(dto.ServerMessage{Kind: dto.KindError, Text: "session already initialized"})
				continue
			}
			sess = h.handleInit(conn, msg, userID, userJWT)

		case dto.KindChat:
			if sess == nil {
				conn.Send(dto.ServerMessage{Kind: dto.KindError, Text: "session not initialized"})
				continue
			}
			h.runTurn(conn, sess, msg.Text)

		case dto.KindResume:
			if sess == nil {
				conn.Send(dto.ServerMessage{Kind: dto.KindError, Text: "session not initialized"})
				continue
			}
			h.store.Lock(sess.ID)
			pending := sess.PendingInterrupt
			h.store.Unlock(sess.ID)
			if !pending {
				conn.Send(dto.ServerMessage{Kind: dto.KindError, Text: "no pending interrupt to resume"})
				continue
			}
			h.runTurn(conn, sess, msg.Text)

		case dto.KindFrontendEvent:
			if sess == nil {
				conn.Send(dto.ServerMessage{Kind: dto.KindError, Text: "session not initialized"})
				continue
			}
			h.handleFrontendEvent(conn, sess, msg)

		default:
			conn.Send(dto.ServerMessage{Kind: dto.KindError, Text: "unknown message kind: " + msg.Kind})
		}
	}
}

// handleInit builds or resumes the session. It returns nil when
// initialization was refused; the client may retry with another init.
func (h *ChatHandler) handleInit(conn *internalWS.Conn, msg dto.ClientMessage, userID, userJWT string) *agent.Session {
	payload := dto.InitPayload{
		UserID:     msg.UserID,
		OrgID:      msg.OrgID,
		EntryPoint: msg.EntryPoint,
		ProjectID:  msg.ProjectID,
	}
	if err := h.validate.Struct(payload); err != nil {
		conn.Send(dto.ServerMessage{Kind: dto.KindError, Text: "invalid init payload: " + err.Error()})
		return nil
	}
	if payload.UserID != userID {
		conn.Send(dto.ServerMessage{Kind: dto.KindError, Text: "user_id does not match the authenticated user"})
		return nil
	}
	entry := agent.EntryPoint(payload.EntryPoint)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	org, err := h.backend.FetchOrg(ctx, userJWT, payload.OrgID)
	if err != nil {
		h.logger.Error("ChatHandler", "Org fetch failed during init", map[string]interface{}{
			"org_id": payload.OrgID, "error": err.Error(),
		})
		conn.Send(dto.ServerMessage{Kind: dto.KindError, Text: "could not verify organization"})
		return nil
	}
	// Credit gate: a session never starts against an empty balance.
	if org.Credits <= 0 {
		conn.Send(dto.ServerMessage{Kind: dto.KindError, Text: "organization has no credits remaining"})
		return nil
	}

	user, err := h.backend.FetchUser(ctx, userJWT, payload.UserID)
	if err != nil {
		h.logger.Error("ChatHandler", "User fetch failed during init", map[string]interface{}{
			"user_id": payload.UserID, "error": err.Error(),
		})
		conn.Send(dto.ServerMessage{Kind: dto.KindError, Text: "could not verify user"})
		return nil
	}

	newID := uuid.NewString()
	var sess *agent.Session

	if msg.ResumeSessionID != "" {
		sess, err = h.sessions.Resume(ctx, msg.ResumeSessionID, userID, newID, userJWT, entry)
		switch {
		case errors.Is(err, session.ErrOwnerMismatch):
			conn.Send(dto.ServerMessage{Kind: dto.KindError, Text: "session could not be resumed"})
			return nil
		case errors.Is(err, session.ErrSnapshotNotFound):
			conn.Send(dto.ServerMessage{Kind: dto.KindError, Text: "previous session has expired"})
			return nil
		case err != nil:
			h.logger.Error("ChatHandler", "Snapshot restore failed", map[string]interface{}{
				"prior_session_id": msg.ResumeSessionID, "error": err.Error(),
			})
			conn.Send(dto.ServerMessage{Kind: dto.KindError, Text: "previous session could not be restored"})
			return nil
		}
		sess.OrgID = payload.OrgID
		sess.ProjectID = payload.ProjectID
	} else {
		sess = agent.NewSession(newID, payload.UserID, payload.OrgID, payload.ProjectID, userJWT, entry)
		for _, m := range msg.ChatMemory {
			if m.Role == "" || m.Content == "" {
				continue
			}
			sess.Messages = append(sess.Messages, agent.Message{Role: m.Role, Content: m.Content})
		}
	}

	sess.Context["user_name"] = user.Name
	sess.Context["org_name"] = org.Name

	if entry == agent.EntryProjectView {
		project, err := h.backend.FetchProject(ctx, userJWT, payload.ProjectID)
		if err != nil {
			h.logger.Error("ChatHandler", "Project fetch failed during init", map[string]interface{}{
				"project_id": payload.ProjectID, "error": err.Error(),
			})
			conn.Send(dto.ServerMessage{Kind: dto.KindError, Text: "could not load project"})
			return nil
		}
		sess.Context["project_name"] = project.Name
		sess.Context["project_documents"] = project.Documents
		sess.Context["codebases"] = project.Codebases
	}

	h.store.Save(sess)

	conn.Send(dto.ServerMessage{Kind: dto.KindSystem, Text: "session initialized", SessionID: sess.ID})
	conn.Send(dto.ServerMessage{Kind: dto.KindHistory, Messages: toPayloads(sess.VisibleWindow(h.cfg.Agent.MemoryWindowSize))})

	switch entry {
	case agent.EntryOnboarding:
		// A fresh onboarding session opens with the fixed welcome pair.
		if len(sess.Messages) == 0 {
			sess.Messages = append(sess.Messages,
				agent.Message{Role: agent.RoleAssistant, Content: welcomeOnboarding1},
				agent.Message{Role: agent.RoleAssistant, Content: welcomeOnboarding2},
			)
			conn.Send(dto.ServerMessage{Kind: dto.KindResponse, Text: welcomeOnboarding1})
			conn.Send(dto.ServerMessage{Kind: dto.KindResponse, Text: welcomeOnboarding2})
		}
	case agent.EntrySCFConfig:
		// SCF sessions auto-start: the model recaps progress and names
		// the next configuration task without waiting for user input.
		h.runTurn(conn, sess, scfKickoffPrompt)
	}

	return sess
}

// runTurn drives the processor and maps streamed phase updates onto
// websocket frames as they happen.
func (h *ChatHandler) runTurn(conn *internalWS.Conn, sess *agent.Session, text string) {
	redirect := ""
	emit := func(u agent.Update) {
		if u.Response != "" {
			conn.Send(dto.ServerMessage{Kind: dto.KindResponse, Text: u.Response})
		}
		if u.Interrupt != nil {
			conn.Send(dto.ServerMessage{
				Kind:     u.Interrupt.Kind,
				Question: u.Interrupt.Question,
				Options:  u.Interrupt.Options,
			})
		}
		if u.Redirect != "" {
			redirect = u.Redirect
		}
	}

	_, err := h.processor.ProcessMessage(context.Background(), sess.ID, text, emit)
	if err == nil && redirect != "" {
		// A redirect tool hands the user to another view; snapshot the
		// committed session first so that view can resume it.
		h.snapshotSession(sess)
		conn.Send(dto.ServerMessage{Kind: dto.KindRedirect, Signal: redirect, SessionID: sess.ID})
	}
	switch {
	case errors.Is(err, agent.ErrSessionNotFound), errors.Is(err, agent.ErrSessionClosed):
		conn.Send(dto.ServerMessage{Kind: dto.KindError, Text: "session is no longer active"})
	case err != nil:
		h.logger.Error("ChatHandler", "Turn failed", map[string]interface{}{
			"session_id": sess.ID, "error": err.Error(),
		})
		conn.Send(dto.ServerMessage{Kind: dto.KindError, Text: "something went wrong processing that message"})
	}
}

// handleFrontendEvent enriches the session context from UI telemetry.
// It never triggers model work.
func (h *ChatHandler) handleFrontendEvent(conn *internalWS.Conn, sess *agent.Session, msg dto.ClientMessage) {
	h.store.Lock(sess.ID)
	switch msg.Event {
	case "tab_changed":
		if tab, ok := msg.Data["tab"].(string); ok {
			sess.Context["project_current_tab"] = tab
		}
	case "document_opened":
		if doc, ok := msg.Data["document"].(string); ok {
			sess.Context["project_current_document"] = doc
		}
	}
	h.store.Unlock(sess.ID)
	conn.Send(dto.ServerMessage{Kind: dto.KindSystem, Event: msg.Event, Text: "event recorded"})
}

// teardown runs on disconnect: close the session, persist what we can,
// then drop it from memory. Both persistence steps are best effort.
func (h *ChatHandler) teardown(sess *agent.Session) {
	h.store.Lock(sess.ID)
	sess.Closed = true
	snap := session.BuildSnapshot(sess)
	memory := sess.VisibleMessages()
	userJWT, userID := sess.UserJWT, sess.UserID
	h.store.Unlock(sess.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if len(memory) > 0 {
		if err := h.backend.SaveChatMemory(ctx, userJWT, userID, memory); err != nil {
			h.logger.Warn("ChatHandler", "Chat memory save failed on disconnect", map[string]interface{}{
				"session_id": sess.ID, "error": err.Error(),
			})
		}
	}
	if err := h.sessions.SaveRaw(ctx, snap); err != nil {
		h.logger.Warn("ChatHandler", "Snapshot save failed on disconnect", map[string]interface{}{
			"session_id": sess.ID, "error": err.Error(),
		})
	}

	h.store.Delete(sess.ID)
}

func (h *ChatHandler) snapshotSession(sess *agent.Session) {
	h.store.Lock(sess.ID)
	snap := session.BuildSnapshot(sess)
	h.store.Unlock(sess.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.sessions.SaveRaw(ctx, snap); err != nil {
		h.logger.Warn("ChatHandler", "Redirect snapshot failed", map[string]interface{}{
			"session_id": sess.ID, "error": err.Error(),
		})
	}
}

func toPayloads(messages []agent.Message) []dto.MessagePayload {
	out := make([]dto.MessagePayload, 0, len(messages))
	for _, m := range messages {
		out = append(out, dto.MessagePayload{Role: m.Role, Content: m.Content})
	}
	return out
}
