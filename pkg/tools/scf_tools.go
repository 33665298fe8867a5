package tools

import (
	"context"
	"fmt"
	"strings"

	"compliance-agent-be/pkg/agent"
)

// scfEntries is where the SCF configuration suite is visible.
var scfEntries = []agent.EntryPoint{agent.EntrySCFConfig}

func scfSpecs() []Spec {
	return []Spec{
		{
			Name:     "configure_scf",
			Brief:    "Hand the user over to the Secure Controls Framework configuration view",
			ArgSpec:  "",
			Entries:  []agent.EntryPoint{agent.EntryOnboarding, agent.EntryProjectView},
			MinArgs:  0,
			MaxArgs:  0,
			Terminal: true,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				// Redirect-only: no message, no loopback. The transport
				// layer snapshots the session so the SCF view can resume it.
				return &agent.Delta{
					Context:            map[string]any{"scf_redirected": true},
					ToolShouldLoopback: agent.Bool(false),
					Redirect:           "scf",
				}, nil
			},
		},
		{
			Name:    "scf_set_framework",
			Brief:   "Set the control framework the SCF mapping is built against",
			ArgSpec: "framework",
			Entries: scfEntries,
			MinArgs: 1,
			MaxArgs: 1,
			Tracked: true,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				framework := payload.([]string)[0]
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage("scf_set_framework applied: " + framework)},
					Context:  map[string]any{"scf_framework": framework},
				}, nil
			},
		},
		{
			Name:    "scf_add_control",
			Brief:   "Add a control to the SCF scope",
			ArgSpec: "control_id",
			Entries: scfEntries,
			MinArgs: 1,
			MaxArgs: 1,
			Tracked: true,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				id := payload.([]string)[0]
				controls := appendUnique(contextList(st, "scf_controls"), id)
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage("scf_add_control applied: " + id)},
					Context:  map[string]any{"scf_controls": controls},
				}, nil
			},
		},
		{
			Name:    "scf_remove_control",
			Brief:   "Remove a control from the SCF scope",
			ArgSpec: "control_id",
			Entries: scfEntries,
			MinArgs: 1,
			MaxArgs: 1,
			Tracked: true,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				id := payload.([]string)[0]
				controls := contextList(st, "scf_controls")
				kept := controls[:0]
				found := false
				for _, c := range controls {
					if c == id {
						found = true
						continue
					}
					kept = append(kept, c)
				}
				if !found {
					return nil, fmt.Errorf("control '%s' is not in scope", id)
				}
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage("scf_remove_control applied: " + id)},
					Context:  map[string]any{"scf_controls": kept},
				}, nil
			},
		},
		{
			Name:    "scf_set_scope",
			Brief:   "Describe which systems the SCF configuration covers",
			ArgSpec: "scope_description",
			Entries: scfEntries,
			MinArgs: 1,
			MaxArgs: -1,
			Tracked: true,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				scope := strings.Join(payload.([]string), ",")
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage("scf_set_scope applied: " + scope)},
					Context:  map[string]any{"scf_scope": scope},
				}, nil
			},
		},
		{
			Name:    "scf_mark_task_done",
			Brief:   "Mark the current SCF configuration task complete and advance",
			ArgSpec: "",
			Entries: scfEntries,
			MinArgs: 0,
			MaxArgs: 0,
			Tracked: true,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				next := st.CurrentTask + 1
				return &agent.Delta{
					Messages:    []agent.Message{agent.InternalMessage(fmt.Sprintf("scf_mark_task_done: advanced to task %d", next))},
					CurrentTask: agent.Int(next),
				}, nil
			},
		},
		{
			Name:    "scf_get_progress",
			Brief:   "Report the SCF configuration progress so far",
			ArgSpec: "",
			Entries: scfEntries,
			MinArgs: 0,
			MaxArgs: 0,
			Tracked: true,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				framework, _ := st.Context["scf_framework"].(string)
				scope, _ := st.Context["scf_scope"].(string)
				controls := contextList(st, "scf_controls")
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage(fmt.Sprintf(
						"scf_get_progress: task=%d framework=%s scope=%s controls=%d",
						st.CurrentTask, framework, scope, len(controls)))},
				}, nil
			},
		},
		{
			Name:     "scf_all_done",
			Brief:    "Declare the SCF configuration finished",
			ArgSpec:  "",
			Entries:  scfEntries,
			MinArgs:  0,
			MaxArgs:  0,
			Terminal: true,
			Tracked:  true,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				return &agent.Delta{
					Messages:           []agent.Message{agent.InternalMessage("scf_all_done: configuration complete")},
					Context:            map[string]any{"scf_complete": true},
					ToolShouldLoopback: agent.Bool(false),
				}, nil
			},
		},
	}
}

func contextList(st *agent.TurnState, key string) []string {
	switch v := st.Context[key].(type) {
	case []string:
		return append([]string(nil), v...)
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

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
