// Package llm is the engine's single point of contact with LLM providers.
// The Gateway enforces the cost ceiling, bounded concurrency, retry, and
// JSON shape guarantees; clients only speak the provider protocol.
package llm

import "context"

// GenerateResult is a completed provider response with usage accounting.
type GenerateResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client is a minimal provider chat client. Implementations hold the
// provider credentials; nothing outside this package performs LLM I/O.
type Client interface {
	// Generate produces a completion for the prompt under the system message.
	Generate(ctx context.Context, prompt, system string) (*GenerateResult, error)

	// Model returns the configured model identifier.
	Model() string
}

// Config holds settings for constructing a provider client.
type Config struct {
	Provider string // "openai" (default, any OpenAI-compatible endpoint) or "anthropic"
	BaseURL  string
	Model    string
	APIKey   string
	// Temperature for all calls; metadata generation wants low variance.
	Temperature float64
}
