package agent

import (
	"context"
	"errors"
	"strings"

	"compliance-agent-be/internal/pkg/logger"
	"compliance-agent-be/pkg/llm"
)

// Phase names the fixed routing topology. Edges are hard-coded; only
// the conditional choices below vary per turn.
type Phase string

const (
	PhaseModelTurn         Phase = "model_turn"
	PhaseToolExecution     Phase = "tool_execution"
	PhaseWorkflowExecution Phase = "workflow_execution"
	PhaseSilentEnd         Phase = "silent_end"
)

// ErrStepLimit ends a runaway turn. The processor translates it into a
// fixed user-facing message; it is never retried.
var ErrStepLimit = errors.New("turn exceeded phase transition limit")

const apologyMessage = "I'm sorry, I had trouble processing that. Could you try rephrasing your request?"

// StepLimitMessage is the fixed reply for a turn that hit the limit.
const StepLimitMessage = "I'm sorry, this request took too many steps to complete, so I had to stop. Please try a simpler or more specific request."

// Update is one streamed phase result. Response carries visible
// assistant text the moment it exists, so the user sees intent before a
// possibly slow tool call.
type Update struct {
	Phase     Phase
	Messages  []Message
	Response  string
	Redirect  string
	Interrupt *InterruptPayload
}

// InterruptPayload is surfaced to the transport when a turn suspends.
type InterruptPayload struct {
	Kind     string   `json:"kind"`
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

// Continuation captures a suspended turn: which input it awaits and the
// full turn state at the suspension point. It serializes with session
// snapshots so a pending interrupt survives reconnect.
type Continuation struct {
	Awaiting string           `json:"awaiting"`
	Payload  InterruptPayload `json:"payload"`
	State    *TurnState       `json:"state"`
	Steps    int              `json:"steps"`
}

// Graph drives one turn through the fixed phase topology.
type Graph struct {
	provider    llm.LLMProvider
	estimator   llm.TokenEstimator
	model       string
	temperature float64
	registry    ToolRegistry
	dispatcher  *Dispatcher
	prompts     *PromptBuilder
	logger      logger.ILogger
	stepLimit   int
}

func NewGraph(provider llm.LLMProvider, estimator llm.TokenEstimator, model string, temperature float64,
	registry ToolRegistry, dispatcher *Dispatcher, prompts *PromptBuilder, log logger.ILogger, stepLimit int) *Graph {
	if stepLimit <= 0 {
		stepLimit = 25
	}
	return &Graph{
		provider:    provider,
		estimator:   estimator,
		model:       model,
		temperature: temperature,
		registry:    registry,
		dispatcher:  dispatcher,
		prompts:     prompts,
		logger:      log,
		stepLimit:   stepLimit,
	}
}

// Run drives a fresh turn until it settles, suspends, or fails. A
// non-nil Continuation means the turn is waiting for external input.
func (g *Graph) Run(ctx context.Context, tc *TurnContext, st *TurnState, emit func(Update)) (*TurnState, *Continuation, error) {
	return g.loop(ctx, tc, st, PhaseModelTurn, 0, emit)
}

// Resume continues a suspended turn with the user's answer.
func (g *Graph) Resume(ctx context.Context, tc *TurnContext, cont *Continuation, answer string, emit func(Update)) (*TurnState, *Continuation, error) {
	st := cont.State
	if st == nil {
		return nil, nil, errors.New("continuation has no captured state")
	}
	st.TurnID = tc.TurnID

	switch cont.Awaiting {
	case awaitingCodebaseChoice:
		if st.Context == nil {
			st.Context = make(map[string]any)
		}
		st.Context["codebase"] = strings.TrimSpace(answer)
		st.HasWorkflow = true
		// Routing flags are not serialized, so a continuation restored
		// from a snapshot arrives with the loopback flag zeroed.
		st.ToolShouldLoopback = true
		if st.RequestedWorkflow == "" {
			st.RequestedWorkflow = workflowEvaluation
		}
		return g.loop(ctx, tc, st, PhaseWorkflowExecution, cont.Steps, emit)
	default:
		return nil, nil, errors.New("unknown continuation: " + cont.Awaiting)
	}
}

func (g *Graph) loop(ctx context.Context, tc *TurnContext, st *TurnState, phase Phase, steps int, emit func(Update)) (*TurnState, *Continuation, error) {
	for {
		steps++
		if steps > g.stepLimit {
			return st, nil, ErrStepLimit
		}
		if err := ctx.Err(); err != nil {
			return st, nil, err
		}

		switch phase {
		case PhaseModelTurn:
			if err := g.modelTurn(ctx, tc, st, emit); err != nil {
				return st, nil, err
			}
			switch {
			case st.HasWorkflow:
				phase = PhaseWorkflowExecution
			case st.HasToolCall:
				phase = PhaseToolExecution
			default:
				phase = PhaseSilentEnd
			}

		case PhaseToolExecution:
			messages, redirect := g.dispatcher.ExecuteBatch(ctx, tc, st)
			emit(Update{Phase: PhaseToolExecution, Messages: messages, Redirect: redirect})
			if st.ToolShouldLoopback {
				phase = PhaseModelTurn
			} else {
				phase = PhaseSilentEnd
			}

		case PhaseWorkflowExecution:
			cont, err := g.runWorkflow(ctx, tc, st, steps, emit)
			if err != nil {
				return st, nil, err
			}
			if cont != nil {
				return st, cont, nil
			}
			if st.ToolShouldLoopback {
				phase = PhaseModelTurn
			} else {
				phase = PhaseSilentEnd
			}

		case PhaseSilentEnd:
			// Terminal: emits nothing, everything visible was already
			// streamed.
			return st, nil, nil
		}
	}
}

// modelTurn asks the model for a structured reply and records what it
// requested. The loopback default is restored here every time so a
// stale false from a prior non-looping tool cannot leak into this leg.
func (g *Graph) modelTurn(ctx context.Context, tc *TurnContext, st *TurnState, emit func(Update)) error {
	st.ToolShouldLoopback = true
	st.HasToolCall = false
	st.HasWorkflow = false
	st.RequestedTool = nil
	st.RequestedTools = nil
	st.RequestedWorkflow = ""

	history := g.prompts.Build(st)
	metered := llm.NewMeteredProvider(g.provider, g.estimator, g.model, tc)
	structured := llm.NewStructuredClient(metered)

	reply, err := structured.Complete(ctx, history,
		llm.WithModel(g.model), llm.WithTemperature(g.temperature))
	if err != nil {
		if errors.Is(err, llm.ErrTurnCanceled) || ctx.Err() != nil {
			return err
		}
		// Parse retries are exhausted; degrade to a plain apology.
		g.logger.Warn("Graph", "Structured reply unrecoverable, sending apology", map[string]interface{}{
			"session_id": tc.SessionID, "turn_id": tc.TurnID, "error": err.Error(),
		})
		msg := Message{Role: RoleAssistant, Content: apologyMessage}
		st.Messages = append(st.Messages, msg)
		emit(Update{Phase: PhaseModelTurn, Messages: []Message{msg}, Response: apologyMessage})
		return nil
	}

	update := Update{Phase: PhaseModelTurn}
	if text := strings.TrimSpace(reply.TextToUser); text != "" {
		msg := Message{Role: RoleAssistant, Content: text}
		st.Messages = append(st.Messages, msg)
		update.Messages = append(update.Messages, msg)
		update.Response = text
	}

	for _, raw := range reply.ToolCalls {
		call := ParseToolCall(raw)
		if len(call) == 0 {
			continue
		}
		if g.registry.Kind(call[0]) == KindWorkflow && !st.HasWorkflow {
			st.HasWorkflow = true
			st.RequestedWorkflow = call[0]
			st.RequestedTool = call
			continue
		}
		st.RequestedTools = append(st.RequestedTools, call)
	}
	if st.HasWorkflow {
		// A workflow request owns the turn; plain calls alongside it are
		// dropped rather than racing the workflow.
		st.RequestedTools = nil
	} else if len(st.RequestedTools) > 0 {
		st.HasToolCall = true
		st.RequestedTool = st.RequestedTools[0]
	}

	emit(update)
	return nil
}

// ParseToolCall splits one "name,arg1,arg2" entry into its fields.
func ParseToolCall(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if parts[0] == "" {
		return nil
	}
	return parts
}
