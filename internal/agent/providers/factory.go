package providers

import (
	"fmt"

	"github.com/nordveg/voyage/internal/agent"
	"github.com/nordveg/voyage/internal/config"
)

// New builds the configured chat provider.
func New(cfg config.LLMConfig) (agent.ChatProvider, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
		})
	case "openai", "":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
