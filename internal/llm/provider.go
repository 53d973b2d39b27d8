// Package llm defines the judge-model client abstraction and its
// implementations: an OpenAI-compatible HTTP client, a rate limiter, a
// fault injector and a scriptable mock.
package llm

import (
	"context"
	"errors"
)

// ErrNoProvider is returned when a judge call is attempted without a
// configured provider.
var ErrNoProvider = errors.New("no LLM provider configured")

// Provider is a chat-completion backend used by the rubric judge.
type Provider interface {
	Name() string
	DefaultModel() string
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a provider-independent chat request. An empty Model
// means the provider's default.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Temperature  float64
	MaxTokens    int
}

// CompletionResponse is the provider's reply.
type CompletionResponse struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	Cost         float64
	DurationMS   int64
}
