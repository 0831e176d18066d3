package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Model is a langchaingo model that can also embed. Both the ollama and openai
// clients satisfy it.
type Model interface {
	llms.Model
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

type ProviderConfig struct {
	Provider string // ollama | openai
	BaseURL  string
	APIKey   string
}

// NewModel builds a client for one model name. The openai provider speaks to any
// OpenAI-compatible endpoint, which is how Mistral is reached.
func NewModel(config ProviderConfig, model string) (Model, error) {
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	switch config.Provider {
	case "", "ollama":
		opts := []ollama.Option{ollama.WithModel(model)}
		if config.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(config.BaseURL))
		}
		m, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama model %s: %w", model, err)
		}
		return m, nil
	case "openai":
		opts := []openai.Option{
			openai.WithModel(model),
			openai.WithEmbeddingModel(model),
			openai.WithToken(config.APIKey),
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		m, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai model %s: %w", model, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", config.Provider)
	}
}
