package agent

import (
	"context"
	"sync"

	"compliance-agent-be/internal/pkg/logger"
	"compliance-agent-be/pkg/llm"
)

// scripted LLM provider replaying canned structured replies.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (s *scriptedProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	s.calls++
	return s.replies[i], nil
}

func (s *scriptedProvider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return s.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, options...)
}

func (s *scriptedProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fixedEstimator struct{ perText int }

func (f fixedEstimator) Count(model, text string) int {
	if text == "" {
		return 0
	}
	return f.perText
}

// fake tool + registry

type fakeTool struct {
	name     string
	terminal bool
	kind     ToolKind
	validate func(args []string) (any, string)
	execute  func(ctx context.Context, tc *TurnContext, st *TurnState, payload any) (*Delta, error)
}

func (t *fakeTool) Name() string   { return t.name }
func (t *fakeTool) Terminal() bool { return t.terminal }
func (t *fakeTool) Kind() ToolKind { return t.kind }

func (t *fakeTool) Validate(args []string) (any, string) {
	if t.validate != nil {
		return t.validate(args)
	}
	return args, ""
}

func (t *fakeTool) Execute(ctx context.Context, tc *TurnContext, st *TurnState, payload any) (*Delta, error) {
	if t.execute != nil {
		return t.execute(ctx, tc, st, payload)
	}
	return &Delta{Messages: []Message{InternalMessage(t.name + " acknowledged")}}, nil
}

type fakeRegistry struct {
	tools   map[string]*fakeTool
	tracked map[string]bool
}

func newFakeRegistry(tools ...*fakeTool) *fakeRegistry {
	r := &fakeRegistry{tools: make(map[string]*fakeTool), tracked: make(map[string]bool)}
	for _, t := range tools {
		r.tools[t.name] = t
		r.tracked[t.name] = true
	}
	return r
}

func (r *fakeRegistry) Resolve(name string, entry EntryPoint) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, ErrUnknownTool
	}
	return t, nil
}

func (r *fakeRegistry) Kind(name string) ToolKind {
	if t, ok := r.tools[name]; ok {
		return t.kind
	}
	return KindTool
}

func (r *fakeRegistry) Tracked(name string) bool { return r.tracked[name] }

func (r *fakeRegistry) Describe(entry EntryPoint) []ToolInfo {
	var out []ToolInfo
	for name := range r.tools {
		out = append(out, ToolInfo{Name: name})
	}
	return out
}

// in-memory session store for processor tests.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]*sync.Mutex
}

func newMemStore(sessions ...*Session) *memStore {
	s := &memStore{sessions: make(map[string]*Session), locks: make(map[string]*sync.Mutex)}
	for _, sess := range sessions {
		s.sessions[sess.ID] = sess
	}
	return s
}

func (s *memStore) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *memStore) Lock(id string)   { s.lockFor(id).Lock() }
func (s *memStore) Unlock(id string) { s.lockFor(id).Unlock() }

func (s *memStore) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[id] = l
	return l
}

// credit recorder capturing the fire-and-forget subtraction.
type creditRecorder struct {
	calls chan struct {
		orgID  string
		amount int
	}
}

func newCreditRecorder() *creditRecorder {
	return &creditRecorder{calls: make(chan struct {
		orgID  string
		amount int
	}, 4)}
}

func (c *creditRecorder) SubtractCredits(ctx context.Context, orgID string, amount int) error {
	c.calls <- struct {
		orgID  string
		amount int
	}{orgID, amount}
	return nil
}

func newTestGraph(provider llm.LLMProvider, registry ToolRegistry, stepLimit int) *Graph {
	log := logger.NewNopLogger()
	dispatcher := NewDispatcher(registry, log)
	prompts := NewPromptBuilder(registry, 15)
	return NewGraph(provider, fixedEstimator{perText: 10}, "test-model", 0.2,
		registry, dispatcher, prompts, log, stepLimit)
}

func structuredReply(text string, calls ...string) string {
	reply := `{"text_to_user":"` + text + `","tool_calls":[`
	for i, c := range calls {
		if i > 0 {
			reply += ","
		}
		reply += `"` + c + `"`
	}
	return reply + `]}`
}
