package tools

import (
	"context"
	"strings"

	"compliance-agent-be/pkg/agent"
)

// Research tools. The actual search/crawl backends are external
// collaborators; these executors record the request so downstream
// plumbing can fulfil it and the model can reason about what it asked.
var queryEntries = []agent.EntryPoint{agent.EntryProjectView, agent.EntryOther}

func querySpecs() []Spec {
	return []Spec{
		{
			Name:    "search_web",
			Brief:   "Search the web for regulatory or security guidance",
			ArgSpec: "query",
			Entries: queryEntries,
			MinArgs: 1,
			MaxArgs: -1,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				query := strings.Join(payload.([]string), ",")
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage("search_web requested: " + query)},
					Context:  map[string]any{"last_search_query": query},
				}, nil
			},
		},
		{
			Name:    "crawl_page",
			Brief:   "Fetch and summarize a specific web page",
			ArgSpec: "url",
			Entries: queryEntries,
			MinArgs: 1,
			MaxArgs: 1,
			Validate: func(args []string) (any, string) {
				url := strings.TrimSpace(args[0])
				if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
					return nil, "url must start with http:// or https://"
				}
				return url, ""
			},
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				url := payload.(string)
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage("crawl_page requested: " + url)},
					Context:  map[string]any{"last_crawled_page": url},
				}, nil
			},
		},
		{
			Name:    "lookup_regulation",
			Brief:   "Look up a regulation or standard by identifier",
			ArgSpec: "identifier",
			Entries: queryEntries,
			MinArgs: 1,
			MaxArgs: -1,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				ident := strings.Join(payload.([]string), ",")
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage("lookup_regulation requested: " + ident)},
				}, nil
			},
		},
		{
			Name:    "compare_frameworks",
			Brief:   "Compare two compliance frameworks' control coverage",
			ArgSpec: "framework_a,framework_b",
			Entries: queryEntries,
			MinArgs: 2,
			MaxArgs: 2,
			Validate: func(args []string) (any, string) {
				if strings.EqualFold(strings.TrimSpace(args[0]), strings.TrimSpace(args[1])) {
					return nil, "frameworks must differ"
				}
				return args, ""
			},
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				args := payload.([]string)
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage(
						"compare_frameworks requested: " + args[0] + " vs " + args[1])},
				}, nil
			},
		},
	}
}
