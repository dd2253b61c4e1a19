// Package llm provides LLM client implementations.
package llm

import (
	"strings"
	"time"
)

// Message represents a chat message for the LLM.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall represents a tool call from the model.
type ToolCall struct {
	ID       string `json:"id,omitempty"` // Provider-assigned ID
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

// ChatResponse is the unified response from any LLM provider. Wire
// format conversion happens at provider boundaries (ollama.go,
// openai.go, anthropic.go).
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message
	Done      bool

	// Token usage (provider-neutral)
	InputTokens  int
	OutputTokens int

	// Timing (populated when available)
	TotalDuration time.Duration
}

// ChatOptions carries the optional parts of a chat request. A nil
// *ChatOptions means a plain text completion.
type ChatOptions struct {
	// Tools are OpenAI-format tool definitions. Providers translate to
	// their native representation.
	Tools []map[string]any

	// Format is a JSON schema the response must conform to. Nil means
	// free-form text. Providers that cannot enforce a schema ignore it.
	Format map[string]any
}

// Capabilities is the explicit capability descriptor for a backend:
// which response-extraction mechanisms a model supports. Absent flags
// mean unsupported, never an error.
type Capabilities struct {
	// SupportsSchema means the backend can constrain output to a JSON
	// schema via ChatOptions.Format.
	SupportsSchema bool

	// SupportsFunctionCalling means the backend handles tool definitions
	// and returns structured tool calls.
	SupportsFunctionCalling bool
}

// Backend pairs a client with a model and its capability record. One
// Backend is one invocation target; the reasoning loop holds two of
// them (generator and critic).
type Backend struct {
	Provider string
	Model    string
	Client   Client
	Caps     Capabilities
}

// ShortName returns the trailing path segment of the model identifier,
// e.g. "together_ai/mistralai/Mistral-7B" → "Mistral-7B". Used for
// trace file naming.
func (b *Backend) ShortName() string {
	if i := strings.LastIndex(b.Model, "/"); i >= 0 {
		return b.Model[i+1:]
	}
	return b.Model
}
