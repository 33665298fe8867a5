package tools

import (
	"context"
	"fmt"
	"strings"

	"compliance-agent-be/pkg/agent"
)

var onboardingEntries = []agent.EntryPoint{agent.EntryOnboarding}

var knownFrameworks = map[string]bool{
	"soc2":      true,
	"iso27001":  true,
	"hipaa":     true,
	"gdpr":      true,
	"pci-dss":   true,
	"nist-csf":  true,
	"fedramp":   true,
	"scf":       true,
	"cis":       true,
	"soc1":      true,
	"ccpa":      true,
	"nist-800s": true,
}

func onboardingSpecs() []Spec {
	return []Spec{
		{
			Name:    "save_company_profile",
			Brief:   "Save the company profile gathered during onboarding",
			ArgSpec: "name,industry,size",
			Entries: onboardingEntries,
			MinArgs: 3,
			MaxArgs: 3,
			Validate: func(args []string) (any, string) {
				for i, field := range []string{"name", "industry", "size"} {
					if strings.TrimSpace(args[i]) == "" {
						return nil, field + " must not be empty"
					}
				}
				return args, ""
			},
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				args := payload.([]string)
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage(fmt.Sprintf(
						"save_company_profile applied: %s / %s / %s", args[0], args[1], args[2]))},
					Context: map[string]any{
						"company_name":     args[0],
						"company_industry": args[1],
						"company_size":     args[2],
					},
				}, nil
			},
		},
		{
			Name:    "set_primary_framework",
			Brief:   "Set the compliance framework the company targets first",
			ArgSpec: "framework",
			Entries: onboardingEntries,
			MinArgs: 1,
			MaxArgs: 1,
			Validate: func(args []string) (any, string) {
				framework := strings.ToLower(strings.TrimSpace(args[0]))
				if !knownFrameworks[framework] {
					return nil, fmt.Sprintf("unknown framework '%s'", args[0])
				}
				return framework, ""
			},
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				framework := payload.(string)
				return &agent.Delta{
					Messages: []agent.Message{agent.InternalMessage("set_primary_framework applied: " + framework)},
					Context:  map[string]any{"primary_framework": framework},
				}, nil
			},
		},
		{
			Name:    "complete_onboarding",
			Brief:   "Finish onboarding once the profile and framework are set",
			ArgSpec: "",
			Entries: onboardingEntries,
			MinArgs: 0,
			MaxArgs: 0,
			Execute: func(ctx context.Context, tc *agent.TurnContext, st *agent.TurnState, payload any) (*agent.Delta, error) {
				if _, ok := st.Context["company_name"]; !ok {
					return nil, fmt.Errorf("company profile has not been saved yet")
				}
				if _, ok := st.Context["primary_framework"]; !ok {
					return nil, fmt.Errorf("primary framework has not been set yet")
				}
				return &agent.Delta{
					Messages:           []agent.Message{agent.InternalMessage("complete_onboarding: onboarding finished")},
					Context:            map[string]any{"onboarding_complete": true},
					ToolShouldLoopback: agent.Bool(false),
				}, nil
			},
		},
	}
}
