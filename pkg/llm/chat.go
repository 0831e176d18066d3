package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/xhad/courseqa/internal/types"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration // per call
}

// ChatEngine sends a single prompt to an LLM and returns its text.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

var _ types.Generator = (*ChatEngine)(nil)

// ErrEmptyCompletion is returned when the model answers with no text.
var ErrEmptyCompletion = errors.New("empty completion from model")

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(model llms.Model, config ChatConfig) (*ChatEngine, error) {
	if model == nil {
		return nil, fmt.Errorf("llm model is required")
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 700
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &ChatEngine{
		config: config,
		llm:    model,
	}, nil
}

// Generate runs one completion. Unset opts fall back to the engine config.
func (ce *ChatEngine) Generate(ctx context.Context, prompt string, opts types.GenerateOptions) (string, error) {
	temperature := ce.config.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = ce.config.MaxTokens
	}

	ctx, cancel := context.WithTimeout(ctx, ce.config.Timeout)
	defer cancel()

	callOpts := []llms.CallOption{
		llms.WithTemperature(temperature),
		llms.WithMaxTokens(maxTokens),
	}
	if ce.config.Model != "" {
		callOpts = append(callOpts, llms.WithModel(ce.config.Model))
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, ce.llm, prompt, callOpts...)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyCompletion
	}
	return out, nil
}
