package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"compliance-agent-be/internal/pkg/logger"
	"compliance-agent-be/pkg/agent"
)

// Context fields the model is allowed to set. Organization profile
// fields are additionally mirrored to the backend.
var allowedContextFields = map[string]bool{
	"company_name":      true,
	"company_industry":  true,
	"company_size":      true,
	"company_location":  true,
	"primary_framework": true,
	"user_role":         true,
	"user_goal":         true,
}

var orgProfileFields = map[string]bool{
	"company_name":     true,
	"company_industry": true,
	"company_size":     true,
	"company_location": true,
}

type contextUpdate struct {
	Field string
	Value string
}

func contextSpecs(backend Backend, log logger.ILogger) []Spec {
	return []Spec{
		{
			Name:    "update_context",
			Brief:   "Record a fact about the user or company in session context",
			ArgSpec: "field,value",
			Entries: allEntries,
			MinArgs: 2,
			MaxArgs: -1,
			Tracked: true,
			Validate: func(args []string) (any, string) {
				field := strings.TrimSpace(args[0])
				if !allowedContextFields[field] {
					return nil, fmt.Sprintf("field '%s' is not updatable", field)
				}
				value := strings.TrimSpace(strings.Join(args[1:], ","))
				if value == "" {
					return nil, "value must not be empty"
				}
				return contextUpdate{Field: field, Value: value}, ""
			},
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				upd := payload.(contextUpdate)

				// Org profile changes are mirrored to the backend with the
				// user's own credential; a failed mirror degrades quietly.
				if orgProfileFields[upd.Field] && backend != nil && tc.OrgID != "" {
					if err := backend.PatchOrgProfile(ctx, tc.UserJWT, tc.OrgID, map[string]string{upd.Field: upd.Value}); err != nil {
						log.Warn("Tools", "Org profile mirror failed", map[string]interface{}{
							"field": upd.Field, "org_id": tc.OrgID, "error": err.Error(),
						})
					}
				}

				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage(
						fmt.Sprintf("update_context applied: %s=%s", upd.Field, upd.Value))},
					Context:            map[string]any{upd.Field: upd.Value},
					ToolShouldLoopback: agent.Bool(false),
				}, nil
			},
		},
		{
			Name:    "get_context",
			Brief:   "List the facts currently stored in session context",
			ArgSpec: "",
			Entries: allEntries,
			MinArgs: 0,
			MaxArgs: 0,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				if len(st.Context) == 0 {
					return &agent.Delta{
						Messages: []agent.Message{agent.InternalMessage("get_context: context is empty")},
					}, nil
				}
				keys := make([]string, 0, len(st.Context))
				for k := range st.Context {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				var sb strings.Builder
				sb.WriteString("get_context:")
				for _, k := range keys {
					fmt.Fprintf(&sb, " %s=%v;", k, st.Context[k])
				}
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage(sb.String())},
				}, nil
			},
		},
		{
			Name:    "done",
			Brief:   "Explicitly finish the current turn without further tool calls",
			ArgSpec: "",
			Entries: allEntries,
			MinArgs: 0,
			MaxArgs: 0,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				return &agent.Delta{
					Messages:           []agent.Message{agent.InternalMessage("done acknowledged")},
					ToolShouldLoopback: agent.Bool(false),
				}, nil
			},
		},
	}
}
