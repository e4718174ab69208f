package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/claimstream/internal/model"
)

// NewProvider builds the configured provider. An empty provider name
// disables the LLM and returns nil.
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(config.Provider)) {
	case "":
		return nil, nil
	case "openai":
		return NewOpenAIProvider(config)
	case "anthropic", "claude":
		return NewAnthropicProvider(config)
	case "ollama":
		return NewOllamaProvider(config)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// ConfigFromModel maps the llm section of the application config; proxies
// are shared with the fact-check sources.
func ConfigFromModel(cfg model.Config) Config {
	return Config{
		Provider:       cfg.LLM.Provider,
		Model:          cfg.LLM.Model,
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Timeout:        cfg.LLM.Timeout,
		StrictEvidence: cfg.LLM.StrictEvidence,
		MaxTokens:      cfg.LLM.MaxTokens,
		HTTPProxy:      cfg.FactCheck.HTTPProxy,
		HTTPSProxy:     cfg.FactCheck.HTTPSProxy,
		NoProxy:        cfg.FactCheck.NoProxy,
	}
}
