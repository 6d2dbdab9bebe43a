package llm

import "encoding/json"

// Message is a single chat turn sent to or received from the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolDef describes one tool offered to the model, OpenAI function style.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall is a tool invocation the model asked for.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Request is one chat completion request.
type Request struct {
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Tools       []ToolDef `json:"tools,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	// Purpose labels the request for metrics (planning, specialist, aggregation).
	Purpose string `json:"-"`
}

// Response is the model's reply.
type Response struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	TokensUsed   int        `json:"tokens_used"`
	FinishReason string     `json:"finish_reason,omitempty"`
}
