// Package llm wraps the completion service behind a narrow contract: prompt
// in, text plus at most one structured tool call out. Everything the model is
// allowed to do is declared here; interpretation of the output belongs to the
// caller.
package llm

import (
	"context"
	"encoding/json"
)

// ToolParam describes one parameter of a declared tool.
type ToolParam struct {
	Name        string
	Description string
	Required    bool
}

// ToolDefinition declares one function the model may call.
type ToolDefinition struct {
	Name        string
	Description string
	Params      []ToolParam
}

// Request is one completion request.
type Request struct {
	System string
	Prompt string
	Tools  []ToolDefinition
}

// ToolCall is a structured function call returned by the model.
type ToolCall struct {
	Name string
	Args json.RawMessage
}

// Completion is the model's answer.
type Completion struct {
	Text     string
	ToolCall *ToolCall
}

// Client is the completion service contract.
type Client interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}
