package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// NewClient constructs the provider client named by cfg.Provider.
// An empty provider defaults to the OpenAI-compatible client.
func NewClient(cfg *Config, logger *zap.Logger) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		return NewOpenAIClient(cfg, logger)
	case "anthropic":
		return NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
