// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a hosted or local chat-completion API (e.g., Groq,
// OpenAI, or a local Ollama instance) and exposes a uniform request/response
// interface for the interview orchestrator. Providers are stateless with
// respect to conversation history: the caller supplies the full context on
// every call, and the history bookkeeping lives in internal/history.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Message is a single role-tagged entry in a conversation sent to the model.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the LLM backend.
// Counts are in the model's native token unit and may differ between providers
// for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a reply.
// Messages must be non-empty; a zero-value request is invalid.
type CompletionRequest struct {
	// Messages is the ordered conversation context, oldest first. The last
	// message is typically the candidate's newest answer.
	Messages []Message

	// SystemPrompt is the interviewer instruction text injected ahead of the
	// conversation. Providers that lack a dedicated system slot prepend it as
	// a "system"-role message. Empty means no system prompt for this call.
	SystemPrompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero means use
	// the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the model's reply to a CompletionRequest.
type CompletionResponse struct {
	// Content is the full text of the generated reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any chat-completion backend.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
type Provider interface {
	// Complete sends req to the model and waits for the full reply.
	// Returns an error if the request fails, the credential is rejected, or
	// ctx is cancelled before the completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how many tokens the given messages would consume
	// in the model's context window. The result need not be exact but should
	// not undercount.
	CountTokens(messages []Message) (int, error)
}
