package agent

import (
	"context"
	"fmt"
)

const (
	workflowEvaluation     = "start_evaluation"
	awaitingCodebaseChoice = "codebase_choice"
)

// runWorkflow executes the requested workflow leg. A nil continuation
// means the workflow settled: completion loops back to the model, a
// validation error clears the loopback flag so the turn ends like any
// other validation failure. Non-nil means the turn suspends awaiting
// user input.
func (g *Graph) runWorkflow(ctx context.Context, tc *TurnContext, st *TurnState, steps int, emit func(Update)) (*Continuation, error) {
	name := st.RequestedWorkflow
	defer func() {
		st.HasWorkflow = false
		st.RequestedWorkflow = ""
		st.RequestedTool = nil
	}()

	if name != workflowEvaluation {
		msg := Message{Role: RoleSystem, Content: "tool_validation_error: unknown workflow '" + name + "'"}
		st.Messages = append(st.Messages, msg)
		st.ToolShouldLoopback = false
		emit(Update{Phase: PhaseWorkflowExecution, Messages: []Message{msg}})
		return nil, nil
	}
	if _, err := g.registry.Resolve(name, st.EntryPoint); err != nil {
		msg := Message{Role: RoleSystem, Content: fmt.Sprintf("tool_validation_error: '%s' is not available in the '%s' context", name, st.EntryPoint)}
		st.Messages = append(st.Messages, msg)
		st.ToolShouldLoopback = false
		emit(Update{Phase: PhaseWorkflowExecution, Messages: []Message{msg}})
		return nil, nil
	}

	// A project can hold several codebases; the evaluation needs exactly
	// one. Suspend and ask when the choice is ambiguous.
	codebases := contextStrings(st.Context, "codebases")
	chosen, _ := st.Context["codebase"].(string)
	if chosen == "" && len(codebases) > 1 {
		payload := InterruptPayload{
			Kind:     "ask_codebase",
			Question: "Which codebase should the evaluation run against?",
			Options:  codebases,
		}
		emit(Update{Phase: PhaseWorkflowExecution, Interrupt: &payload})
		return &Continuation{
			Awaiting: awaitingCodebaseChoice,
			Payload:  payload,
			State:    st,
			Steps:    steps,
		}, nil
	}
	if chosen == "" && len(codebases) == 1 {
		chosen = codebases[0]
		st.Context["codebase"] = chosen
	}

	st.CurrentTask++
	if st.Context == nil {
		st.Context = make(map[string]any)
	}
	st.Context["evaluation_status"] = "running"

	detail := "project scope"
	if chosen != "" {
		detail = "codebase '" + chosen + "'"
	}
	msg := InternalMessage(fmt.Sprintf("evaluation %d started for %s", st.CurrentTask, detail))
	st.Messages = append(st.Messages, msg)
	emit(Update{Phase: PhaseWorkflowExecution, Messages: []Message{msg}})
	return nil, nil
}

func contextStrings(ctx map[string]any, key string) []string {
	switch v := ctx[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
