package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// StructuredReply is the schema every model turn must answer with.
// Each tool_calls entry is a CSV string: "tool_name,arg1,arg2,...".
type StructuredReply struct {
	TextToUser string   `json:"text_to_user"`
	ToolCalls  []string `json:"tool_calls"`
}

const structuredRetries = 2

// StructuredClient asks a provider for a reply matching StructuredReply.
// Parsing is two-stage: a strict unmarshal first, then a salvage pass
// that extracts the first balanced JSON object from a reply wrapped in
// prose or markdown fences. Parse failures are retried up to 2 times.
type StructuredClient struct {
	provider LLMProvider
}

func NewStructuredClient(provider LLMProvider) *StructuredClient {
	return &StructuredClient{provider: provider}
}

func (c *StructuredClient) Complete(ctx context.Context, history []Message, options ...Option) (*StructuredReply, error) {
	var lastErr error
	for attempt := 0; attempt <= structuredRetries; attempt++ {
		raw, err := c.provider.Chat(ctx, history, options...)
		if err != nil {
			// Transport/cancellation errors are not parse failures, bail out.
			return nil, err
		}

		reply, err := ParseStructuredReply(raw)
		if err == nil {
			return reply, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("structured reply failed after %d attempts: %w", structuredRetries+1, lastErr)
}

// ParseStructuredReply runs the two parse stages against a raw reply.
func ParseStructuredReply(raw string) (*StructuredReply, error) {
	trimmed := strings.TrimSpace(stripFences(raw))

	var reply StructuredReply
	if err := json.Unmarshal([]byte(trimmed), &reply); err == nil {
		return &reply, nil
	}

	salvaged, ok := ExtractFirstJSONObject(trimmed)
	if !ok {
		return nil, fmt.Errorf("no JSON object found in reply")
	}
	if err := json.Unmarshal([]byte(salvaged), &reply); err != nil {
		return nil, fmt.Errorf("salvaged object did not match schema: %w", err)
	}
	return &reply, nil
}

// ExtractFirstJSONObject scans for the first syntactically balanced JSON
// object, tracking brace depth and skipping braces inside string literals.
func ExtractFirstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	if idx := strings.LastIndex(t, "```"); idx >= 0 {
		t = t[:idx]
	}
	return t
}
