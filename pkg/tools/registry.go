package tools

import (
	"context"
	"fmt"

	"compliance-agent-be/internal/pkg/logger"
	"compliance-agent-be/pkg/agent"
)

// Backend is the slice of the downstream REST API tools need. Calls use
// the end user's own credential, never the internal key.
type Backend interface {
	PatchOrgProfile(ctx context.Context, userJWT, orgID string, fields map[string]string) error
}

// ExecuteFunc performs a tool's effect against the turn state.
type ExecuteFunc func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error)

// Spec declares one tool of the closed registry: its visibility, arity,
// terminal behavior, and handlers.
type Spec struct {
	Name     string
	Brief    string
	ArgSpec  string
	Entries  []agent.EntryPoint
	MinArgs  int
	MaxArgs  int // -1 means unlimited
	Terminal bool
	Workflow bool
	Tracked  bool
	Validate func(args []string) (any, string)
	Execute  ExecuteFunc
}

type tool struct {
	spec Spec
}

var _ agent.Tool = &tool{}

func (t *tool) Name() string { return t.spec.Name }

func (t *tool) Terminal() bool { return t.spec.Terminal }

func (t *tool) Kind() agent.ToolKind {
	if t.spec.Workflow {
		return agent.KindWorkflow
	}
	return agent.KindTool
}

func (t *tool) Validate(args []string) (any, string) {
	if len(args) < t.spec.MinArgs {
		return nil, fmt.Sprintf("expected at least %d argument(s), got %d", t.spec.MinArgs, len(args))
	}
	if t.spec.MaxArgs >= 0 && len(args) > t.spec.MaxArgs {
		return nil, fmt.Sprintf("expected at most %d argument(s), got %d", t.spec.MaxArgs, len(args))
	}
	if t.spec.Validate != nil {
		return t.spec.Validate(args)
	}
	return args, ""
}

func (t *tool) Execute(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
	if t.spec.Execute == nil {
		return &agent.Delta{
			Messages: []agent.Message{agent.InternalMessage(t.spec.Name + " acknowledged")},
		}, nil
	}
	return t.spec.Execute(ctx, tc, st, payload)
}

func (t *tool) visibleIn(entry agent.EntryPoint) bool {
	for _, e := range t.spec.Entries {
		if e == entry {
			return true
		}
	}
	return false
}

// Registry is the closed tool set. Lookups outside the set, or outside
// the entry point's visible slice, are validation errors upstream.
type Registry struct {
	tools map[string]*tool
	order []string
}

func NewRegistry(backend Backend, log logger.ILogger) *Registry {
	r := &Registry{tools: make(map[string]*tool)}
	for _, spec := range allSpecs(backend, log) {
		r.register(spec)
	}
	return r
}

func (r *Registry) register(spec Spec) {
	if _, exists := r.tools[spec.Name]; exists {
		panic("duplicate tool registration: " + spec.Name)
	}
	r.tools[spec.Name] = &tool{spec: spec}
	r.order = append(r.order, spec.Name)
}

func (r *Registry) Resolve(name string, entry agent.EntryPoint) (agent.Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, agent.ErrUnknownTool
	}
	if !t.visibleIn(entry) {
		return nil, agent.ErrNotVisible
	}
	return t, nil
}

func (r *Registry) Kind(name string) agent.ToolKind {
	if t, ok := r.tools[name]; ok {
		return t.Kind()
	}
	return agent.KindTool
}

func (r *Registry) Tracked(name string) bool {
	t, ok := r.tools[name]
	return ok && t.spec.Tracked
}

func (r *Registry) Describe(entry agent.EntryPoint) []agent.ToolInfo {
	var out []agent.ToolInfo
	for _, name := range r.order {
		t := r.tools[name]
		if !t.visibleIn(entry) {
			continue
		}
		out = append(out, agent.ToolInfo{
			Name:  t.spec.Name,
			Brief: t.spec.Brief,
			Args:  t.spec.ArgSpec,
		})
	}
	return out
}

var allEntries = []agent.EntryPoint{
	agent.EntryOnboarding, agent.EntryProjectView, agent.EntrySCFConfig, agent.EntryOther,
}

func allSpecs(backend Backend, log logger.ILogger) []Spec {
	var specs []Spec
	specs = append(specs, contextSpecs(backend, log)...)
	specs = append(specs, scfSpecs()...)
	specs = append(specs, projectSpecs()...)
	specs = append(specs, querySpecs()...)
	specs = append(specs, auditorSpecs()...)
	specs = append(specs, onboardingSpecs()...)
	return specs
}
