package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"compliance-agent-be/internal/pkg/logger"
)

// Dispatcher normalizes requested tool invocations into state deltas.
// Batches run sequentially, each call seeing the effects of the ones
// before it. Validation failures never crash a turn; they end it.
type Dispatcher struct {
	registry ToolRegistry
	logger   logger.ILogger
}

func NewDispatcher(registry ToolRegistry, log logger.ILogger) *Dispatcher {
	return &Dispatcher{registry: registry, logger: log}
}

// ExecuteBatch runs the turn's requested tools in order, mutating st.
// It returns the messages appended during the batch and any out-of-band
// redirect signal. Requested flags are always cleared afterwards so a
// stale flag can never re-invoke a tool on the next phase.
func (d *Dispatcher) ExecuteBatch(ctx context.Context, tc *TurnContext, st *TurnState) ([]Message, string) {
	calls := st.RequestedTools
	if len(calls) == 0 && len(st.RequestedTool) > 0 {
		calls = [][]string{st.RequestedTool}
	}

	before := len(st.Messages)
	redirect := ""

	for _, call := range calls {
		delta := d.executeOne(ctx, tc, st, call)
		st.Apply(delta)
		if delta.Redirect != "" {
			redirect = delta.Redirect
		}

		// Loop detection steers the next model turn; it never blocks.
		// Only executed calls leave a trace, so a validation failure
		// cannot re-fire a warning for a call that never ran.
		if len(delta.Traces) > 0 && len(call) > 0 && d.registry.Tracked(call[0]) {
			if warning, looping := DetectLoop(st.Traces, d.registry.Tracked); looping {
				st.Messages = append(st.Messages, warning)
			}
		}

		if delta.Err != "" {
			break
		}
		if len(call) > 0 && d.isTerminal(call[0], st.EntryPoint) {
			break
		}
	}

	// Clear request flags unconditionally.
	st.HasToolCall = false
	st.RequestedTool = nil
	st.RequestedTools = nil

	return append([]Message(nil), st.Messages[before:]...), redirect
}

func (d *Dispatcher) executeOne(ctx context.Context, tc *TurnContext, st *TurnState, call []string) *Delta {
	if len(call) == 0 || call[0] == "" {
		return validationError("empty tool call")
	}
	name, args := call[0], call[1:]

	tool, err := d.registry.Resolve(name, st.EntryPoint)
	if err != nil {
		if errors.Is(err, ErrNotVisible) {
			return validationError(fmt.Sprintf("tool '%s' is not available in the '%s' context", name, st.EntryPoint))
		}
		return validationError(fmt.Sprintf("unknown tool '%s'", name))
	}

	payload, problem := tool.Validate(args)
	if problem != "" {
		return validationError(fmt.Sprintf("invalid arguments for '%s': %s", name, problem))
	}

	delta, err := tool.Execute(ctx, tc, st, payload)
	trace := ToolTrace{
		Time:   time.Now(),
		TurnID: tc.TurnID,
		Tool:   name,
		Args:   args,
		Status: TraceStatusOK,
	}
	if err != nil {
		trace.Status = TraceStatusError
		trace.Error = err.Error()
		d.logger.Warn("Dispatcher", "Tool execution failed", map[string]interface{}{
			"tool": name, "session_id": tc.SessionID, "error": err.Error(),
		})
		delta = &Delta{
			Messages:           []Message{InternalMessage(fmt.Sprintf("tool '%s' failed: %v", name, err))},
			ToolShouldLoopback: Bool(false),
			Err:                err.Error(),
		}
	}
	if delta == nil {
		delta = &Delta{}
	}
	delta.Traces = append(delta.Traces, trace)
	return delta
}

func (d *Dispatcher) isTerminal(name string, entry EntryPoint) bool {
	tool, err := d.registry.Resolve(name, entry)
	if err != nil {
		return false
	}
	return tool.Terminal()
}

// validationError ends the turn cleanly: the model is not asked to
// self-correct within the same turn.
func validationError(detail string) *Delta {
	return &Delta{
		Messages:           []Message{{Role: RoleSystem, Content: "tool_validation_error: " + detail}},
		ToolShouldLoopback: Bool(false),
		Err:                detail,
	}
}
