package agent

import (
	"context"
	"errors"
)

// ToolKind separates plain tools from workflow triggers, which route to
// the workflow phase instead of the tool phase.
type ToolKind int

const (
	KindTool ToolKind = iota
	KindWorkflow
)

var (
	ErrUnknownTool = errors.New("unknown tool")
	ErrNotVisible  = errors.New("tool not visible for entry point")
)

// Tool is one entry of the closed registry. Validate is pure; Execute
// performs the tool's effect and reports it as a Delta.
type Tool interface {
	Name() string
	// Terminal tools end the turn even on success; the batch executor
	// stops after one.
	Terminal() bool
	Kind() ToolKind
	// Validate returns a typed payload, or a human-readable problem
	// description when the arguments are malformed.
	Validate(args []string) (any, string)
	Execute(ctx context.Context, tc *TurnContext, st *TurnState, payload any) (*Delta, error)
}

// ToolInfo describes a tool for prompt construction.
type ToolInfo struct {
	Name  string
	Brief string
	Args  string
}

// ToolRegistry is the closed set of tools the dispatcher can reach.
type ToolRegistry interface {
	// Resolve returns the named tool if it exists and is visible for the
	// entry point; otherwise ErrUnknownTool or ErrNotVisible.
	Resolve(name string, entry EntryPoint) (Tool, error)
	// Kind reports a name's kind without a visibility check; unknown
	// names are plain tools (the dispatcher rejects them later).
	Kind(name string) ToolKind
	// Tracked reports whether the loop detector watches this tool.
	Tracked(name string) bool
	// Describe lists the tools visible for an entry point.
	Describe(entry EntryPoint) []ToolInfo
}
