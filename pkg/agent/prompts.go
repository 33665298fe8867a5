package agent

import (
	"fmt"
	"strings"

	"compliance-agent-be/pkg/llm"
)

// Prompt instructions per entry point. The structured reply contract is
// shared; the persona and visible tool listing differ.

const replyContract = `Respond ONLY with a single JSON object, no prose around it:
{"text_to_user": "<what to say to the user>", "tool_calls": ["<tool_name,arg1,arg2>", ...]}
Leave "tool_calls" empty when no tool is needed. Each entry is one comma-separated call.
Messages prefixed with [TOOL_STATUS] are system feedback for you; never quote them to the user.`

var entryPersona = map[EntryPoint]string{
	EntryOnboarding: `You are a compliance onboarding assistant. Help the user describe their
company and pick a primary framework. Ask one question at a time.`,
	EntryProjectView: `You are a compliance project assistant working inside a specific project.
Use the project tools to ground every claim in the project's documents and findings.`,
	EntrySCFConfig: `You are guiding the user through configuring their Secure Controls
Framework. Work through the configuration tasks in order and mark each done.`,
	EntryOther: `You are a general compliance assistant. Answer questions about regulations
and frameworks; use the research tools when you are not certain.`,
}

// PromptBuilder renders the message list sent to the model: persona,
// reply contract, visible tool listing, then the managed history window.
type PromptBuilder struct {
	registry   ToolRegistry
	windowSize int
}

func NewPromptBuilder(registry ToolRegistry, windowSize int) *PromptBuilder {
	if windowSize <= 0 {
		windowSize = 15
	}
	return &PromptBuilder{registry: registry, windowSize: windowSize}
}

func (b *PromptBuilder) Build(st *TurnState) []llm.Message {
	var sys strings.Builder
	persona, ok := entryPersona[st.EntryPoint]
	if !ok {
		persona = entryPersona[EntryOther]
	}
	sys.WriteString(persona)
	sys.WriteString("\n\n")
	sys.WriteString(replyContract)
	sys.WriteString("\n\nAvailable tools:\n")
	for _, info := range b.registry.Describe(st.EntryPoint) {
		fmt.Fprintf(&sys, "- %s(%s): %s\n", info.Name, info.Args, info.Brief)
	}
	if summary := contextSummary(st.Context); summary != "" {
		sys.WriteString("\nSession context:\n")
		sys.WriteString(summary)
	}

	out := []llm.Message{{Role: RoleSystem, Content: sys.String()}}
	for _, m := range managedWindow(st.Messages, b.windowSize) {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// managedWindow keeps all system messages plus the last n others, so
// tool-status feedback from earlier turns survives truncation only when
// recent.
func managedWindow(messages []Message, n int) []Message {
	var system, rest []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m)
			continue
		}
		rest = append(rest, m)
	}
	if len(rest) > n {
		rest = rest[len(rest)-n:]
	}
	return append(system, rest...)
}

func contextSummary(ctx map[string]any) string {
	if len(ctx) == 0 {
		return ""
	}
	keys := []string{
		"company_name", "company_industry", "company_size",
		"primary_framework", "project_name", "project_current_tab",
		"project_current_document", "scf_framework", "scf_scope",
	}
	var sb strings.Builder
	for _, k := range keys {
		if v, ok := ctx[k]; ok {
			fmt.Fprintf(&sb, "- %s: %v\n", k, v)
		}
	}
	return sb.String()
}
