package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"compliance-agent-be/pkg/agent"
)

var projectEntries = []agent.EntryPoint{agent.EntryProjectView}

var documentStatuses = map[string]bool{
	"draft":       true,
	"in_review":   true,
	"approved":    true,
	"deprecated":  true,
	"needs_fixes": true,
}

func projectSpecs() []Spec {
	return []Spec{
		{
			Name:    "get_project_summary",
			Brief:   "Summarize the current project: name, framework, open findings",
			ArgSpec: "",
			Entries: projectEntries,
			MinArgs: 0,
			MaxArgs: 0,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				name, _ := st.Context["project_name"].(string)
				framework, _ := st.Context["primary_framework"].(string)
				open := 0
				for _, f := range st.Findings {
					if !strings.HasPrefix(f, "resolved:") {
						open++
					}
				}
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage(fmt.Sprintf(
						"get_project_summary: project=%s framework=%s open_findings=%d", name, framework, open))},
				}, nil
			},
		},
		{
			Name:    "list_project_documents",
			Brief:   "List the documents attached to the project",
			ArgSpec: "",
			Entries: projectEntries,
			MinArgs: 0,
			MaxArgs: 0,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				docs := contextList(st, "project_documents")
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage(fmt.Sprintf(
						"list_project_documents: %s", strings.Join(docs, "; ")))},
				}, nil
			},
		},
		{
			Name:    "get_document",
			Brief:   "Fetch one project document by name",
			ArgSpec: "document_name",
			Entries: projectEntries,
			MinArgs: 1,
			MaxArgs: -1,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				name := strings.Join(payload.([]string), ",")
				for _, doc := range contextList(st, "project_documents") {
					if strings.EqualFold(doc, name) {
						return &agent.Delta{
							Messages: []agent.Message{agent.InternalMessage("get_document: found '" + doc + "'")},
							Context:  map[string]any{"project_current_document": doc},
						}, nil
					}
				}
				return nil, fmt.Errorf("document '%s' not found in project", name)
			},
		},
		{
			Name:    "search_project",
			Brief:   "Search project documents and findings for a phrase",
			ArgSpec: "query",
			Entries: projectEntries,
			MinArgs: 1,
			MaxArgs: -1,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				query := strings.ToLower(strings.Join(payload.([]string), ","))
				var hits []string
				for _, doc := range contextList(st, "project_documents") {
					if strings.Contains(strings.ToLower(doc), query) {
						hits = append(hits, doc)
					}
				}
				for _, f := range st.Findings {
					if strings.Contains(strings.ToLower(f), query) {
						hits = append(hits, f)
					}
				}
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage(fmt.Sprintf(
						"search_project: %d hit(s): %s", len(hits), strings.Join(hits, "; ")))},
				}, nil
			},
		},
		{
			Name:    "update_document_status",
			Brief:   "Set a project document's review status",
			ArgSpec: "document_name,status",
			Entries: projectEntries,
			MinArgs: 2,
			MaxArgs: 2,
			Validate: func(args []string) (any, string) {
				status := strings.TrimSpace(args[1])
				if !documentStatuses[status] {
					return nil, fmt.Sprintf("status '%s' is not one of draft, in_review, approved, deprecated, needs_fixes", status)
				}
				return args, ""
			},
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				args := payload.([]string)
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage(fmt.Sprintf(
						"update_document_status applied: %s -> %s", args[0], args[1]))},
					Context: map[string]any{"document_status:" + args[0]: args[1]},
				}, nil
			},
		},
		{
			Name:    "add_finding",
			Brief:   "Record a compliance finding against the project",
			ArgSpec: "description",
			Entries: projectEntries,
			MinArgs: 1,
			MaxArgs: -1,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				desc := strings.Join(payload.([]string), ",")
				n := len(st.Findings) + 1
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage(fmt.Sprintf("add_finding: recorded finding %d", n))},
					Findings: []string{desc},
				}, nil
			},
		},
		{
			Name:    "list_findings",
			Brief:   "List the findings recorded so far",
			ArgSpec: "",
			Entries: projectEntries,
			MinArgs: 0,
			MaxArgs: 0,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				if len(st.Findings) == 0 {
					return &agent.Delta{
						Messages: []agent.Message{agent.InternalMessage("list_findings: none recorded")},
					}, nil
				}
				var sb strings.Builder
				sb.WriteString("list_findings:")
				for i, f := range st.Findings {
					fmt.Fprintf(&sb, " [%d] %s;", i+1, f)
				}
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage(sb.String())},
				}, nil
			},
		},
		{
			Name:    "resolve_finding",
			Brief:   "Mark a recorded finding as resolved by its number",
			ArgSpec: "finding_number",
			Entries: projectEntries,
			MinArgs: 1,
			MaxArgs: 1,
			Validate: func(args []string) (any, string) {
				n, ok := parsePositiveInt(args[0])
				if !ok {
					return nil, "finding_number must be a positive integer"
				}
				return n, ""
			},
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				n := payload.(int)
				if n > len(st.Findings) {
					return nil, fmt.Errorf("no finding numbered %d", n)
				}
				if !strings.HasPrefix(st.Findings[n-1], "resolved:") {
					st.Findings[n-1] = "resolved: " + st.Findings[n-1]
				}
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage(fmt.Sprintf("resolve_finding: finding %d resolved", n))},
				}, nil
			},
		},
		{
			Name:    "get_compliance_status",
			Brief:   "Report overall compliance posture for the project",
			ArgSpec: "",
			Entries: projectEntries,
			MinArgs: 0,
			MaxArgs: 0,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				total := len(st.Findings)
				resolved := 0
				for _, f := range st.Findings {
					if strings.HasPrefix(f, "resolved:") {
						resolved++
					}
				}
				evalStatus, _ := st.Context["evaluation_status"].(string)
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage(fmt.Sprintf(
						"get_compliance_status: findings=%d resolved=%d evaluation=%s", total, resolved, evalStatus))},
				}, nil
			},
		},
	}
}

func parsePositiveInt(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
