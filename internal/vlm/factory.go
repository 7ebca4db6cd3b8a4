package vlm

import (
	"fmt"

	"camguard/internal/config"
)

// NewClient builds the configured Client implementation.
func NewClient(cfg *config.Config) (Client, error) {
	switch cfg.VlmBackend {
	case config.BackendOllama:
		return NewOllamaClient(cfg.Ollama), nil
	case config.BackendOpenAICompat:
		return NewOpenAICompatClient(cfg.OpenAICompat), nil
	default:
		return nil, fmt.Errorf("unknown VLM backend %q", cfg.VlmBackend)
	}
}
