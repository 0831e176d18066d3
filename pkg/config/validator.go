package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider %q (want ollama or openai)", c.LLM.Provider),
		})
	}

	if !isHTTPURL(c.LLM.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "LLM base URL must be an absolute http(s) URL",
		})
	}

	if c.LLM.Provider == "openai" && c.LLM.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.api_key",
			Message: "api_key is required for the openai provider",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	// Validate index config
	switch c.Index.Backend {
	case "qdrant":
		if !isHTTPURL(c.Index.Qdrant.URL) {
			errors = append(errors, ValidationError{
				Field:   "index.qdrant.url",
				Message: "invalid Qdrant URL",
			})
		}
		if strings.TrimSpace(c.Index.Qdrant.Collection) == "" {
			errors = append(errors, ValidationError{
				Field:   "index.qdrant.collection",
				Message: "collection is required",
			})
		}
	case "pgvector":
		if c.Index.Postgres.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "index.postgres.url",
				Message: "database URL is required for the pgvector backend",
			})
		} else if _, err := url.Parse(c.Index.Postgres.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "index.postgres.url",
				Message: "invalid database URL",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "index.backend",
			Message: fmt.Sprintf("unknown backend %q (want qdrant or pgvector)", c.Index.Backend),
		})
	}

	if c.Index.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "index.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Index.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "index.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.Index.ScoreThreshold < -1 || c.Index.ScoreThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "index.score_threshold",
			Message: "score_threshold must be a cosine similarity between -1 and 1",
		})
	}

	// Validate pipeline config
	if c.Pipeline.MaxChunks < 1 || c.Pipeline.PerGroup < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline",
			Message: "max_chunks and per_group must be positive",
		})
	}

	if c.Pipeline.GenerationRetry.MaxAttempts < 1 || c.Pipeline.GenerationRetry.Max < c.Pipeline.GenerationRetry.Base {
		errors = append(errors, ValidationError{
			Field:   "pipeline.generation_retry",
			Message: "max_attempts must be positive and max must not be below base",
		})
	}

	// Validate ingest config
	if c.Ingest.OverlapWords < 0 || c.Ingest.OverlapWords >= c.Ingest.WindowWords {
		errors = append(errors, ValidationError{
			Field:   "ingest.overlap_words",
			Message: "overlap_words must be non-negative and less than window_words",
		})
	}

	if c.Ingest.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "ingest.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate scraper config
	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	return errors
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
