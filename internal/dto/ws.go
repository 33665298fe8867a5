package dto

// ClientMessage is one inbound websocket frame. Kind selects which
// fields are meaningful.
type ClientMessage struct {
	Kind string `json:"kind"`

	// init
	UserID          string           `json:"user_id,omitempty"`
	OrgID           string           `json:"org_id,omitempty"`
	ProjectID       string           `json:"project_id,omitempty"`
	EntryPoint      string           `json:"entry_point,omitempty"`
	ResumeSessionID string           `json:"resume_session_id,omitempty"`
	ChatMemory      []MessagePayload `json:"chat_memory,omitempty"`

	// chat / resume
	Text string `json:"text,omitempty"`

	// frontend_event
	Event string         `json:"event,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

const (
	KindInit          = "init"
	KindChat          = "chat"
	KindResume        = "resume"
	KindFrontendEvent = "frontend_event"
)

// InitPayload is the validated shape of an init frame.
type InitPayload struct {
	UserID     string `validate:"required"`
	OrgID      string `validate:"required"`
	EntryPoint string `validate:"required,oneof=onboarding project_view scf_config other"`
	ProjectID  string `validate:"required_if=EntryPoint project_view"`
}

// ServerMessage is one outbound websocket frame.
type ServerMessage struct {
	Kind      string           `json:"kind"`
	Text      string           `json:"text,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	Messages  []MessagePayload `json:"messages,omitempty"`
	Question  string           `json:"question,omitempty"`
	Options   []string         `json:"options,omitempty"`
	Signal    string           `json:"signal,omitempty"`
	Event     string           `json:"event,omitempty"`
}

const (
	KindSystem   = "system"
	KindResponse = "response"
	KindError    = "error"
	KindHistory  = "history"
	KindRedirect = "redirect"
)

type MessagePayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
