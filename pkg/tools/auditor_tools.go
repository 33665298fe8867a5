package tools

import (
	"context"
	"fmt"

	"compliance-agent-be/pkg/agent"
)

func auditorSpecs() []Spec {
	return []Spec{
		{
			// Workflow trigger: routing sends this to the workflow phase,
			// which may suspend to ask which codebase to evaluate.
			Name:     "start_evaluation",
			Brief:    "Start an automated compliance evaluation of the project",
			ArgSpec:  "",
			Entries:  projectEntries,
			MinArgs:  0,
			MaxArgs:  1,
			Workflow: true,
		},
		{
			Name:    "get_evaluation_status",
			Brief:   "Check whether an evaluation is running and what it found",
			ArgSpec: "",
			Entries: projectEntries,
			MinArgs: 0,
			MaxArgs: 0,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				status, _ := st.Context["evaluation_status"].(string)
				if status == "" {
					status = "not_started"
				}
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage(fmt.Sprintf(
						"get_evaluation_status: %s (task %d, %d finding(s))", status, st.CurrentTask, len(st.Findings)))},
				}, nil
			},
		},
		{
			Name:    "cancel_evaluation",
			Brief:   "Cancel the running evaluation",
			ArgSpec: "",
			Entries: projectEntries,
			MinArgs: 0,
			MaxArgs: 0,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				status, _ := st.Context["evaluation_status"].(string)
				if status != "running" {
					return nil, fmt.Errorf("no evaluation is running")
				}
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage("cancel_evaluation: evaluation canceled")},
					Context:  map[string]any{"evaluation_status": "canceled"},
				}, nil
			},
		},
	}
}
