// Package llm defines the pluggable chat backend used by the rationale
// generator (C8) plus shared token-accounting helpers. Unlike an agentic
// chat client, callers here never need tool calls, streaming, or inline
// images: a rationale call is a single structured request/response.
package llm

import "context"

// Message is one turn in a chat-style rationale request.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// Usage reports token accounting for a completed call, when the backend
// supplies it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Provider is a pluggable LLM backend. Implementations wrap a specific SDK
// (OpenAI, Anthropic, ...) behind the same narrow surface so the rationale
// generator can swap backends via configuration alone.
type Provider interface {
	// Chat sends msgs to model and returns the assistant's reply text plus
	// token usage if the backend reports it. ctx carries the hard deadline;
	// implementations must respect cancellation and not leak the underlying
	// HTTP request.
	Chat(ctx context.Context, model string, msgs []Message) (string, Usage, error)
}
