package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/courseqa/pkg/retry"
)

func TestLoadConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
llm:
  provider: "openai"
  base_url: "https://api.mistral.ai/v1"
  api_key: "from-file"
  chat_model: "mistral-large-latest"
  max_tokens: 500
  temperature: 0.1
  timeout: 20s

index:
  backend: "pgvector"
  vector_dim: 768
  exact: false
  postgres:
    url: "postgres://localhost:5432/test"
    table_name: "chunks"

pipeline:
  max_chunks: 8
  per_group: 2
  generation_retry:
    max_attempts: 4
    base: 1s
    max: 5s

ingest:
  window_words: 200
  overlap_words: 20
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "openai", config.LLM.Provider)
	assert.Equal(t, "from-file", config.LLM.APIKey)
	assert.Equal(t, 500, config.LLM.MaxTokens)
	assert.Equal(t, 0.1, *config.LLM.Temperature)
	assert.Equal(t, 20*time.Second, config.LLM.Timeout)
	assert.Equal(t, "pgvector", config.Index.Backend)
	assert.Equal(t, 768, config.Index.VectorDim)
	assert.False(t, config.Index.ExactSearch())
	assert.Equal(t, "chunks", config.Index.Postgres.TableName)
	assert.Equal(t, 8, config.Pipeline.MaxChunks)
	assert.Equal(t, 2, config.Pipeline.PerGroup)
	assert.Equal(t, retry.Policy{MaxAttempts: 4, Base: time.Second, Max: 5 * time.Second}, config.Pipeline.GenerationRetry)
	assert.Equal(t, retry.OCR, config.Pipeline.OCRRetry)
	assert.Equal(t, 200, config.Ingest.WindowWords)

	assert.Empty(t, config.Validate())
}

func TestDefaults(t *testing.T) {
	config := &Config{}
	applyDefaults(config)

	assert.Equal(t, "openai", config.LLM.Provider)
	assert.Equal(t, "https://api.mistral.ai/v1", config.LLM.BaseURL)
	assert.Equal(t, "mistral-embed", config.LLM.EmbeddingModel)
	assert.Equal(t, 0.2, *config.LLM.Temperature)
	assert.Equal(t, 700, config.LLM.MaxTokens)
	assert.Equal(t, 30*time.Second, config.LLM.Timeout)
	assert.Equal(t, "qdrant", config.Index.Backend)
	assert.Equal(t, "tds-embeddings", config.Index.Qdrant.Collection)
	assert.Equal(t, 1024, config.Index.VectorDim)
	assert.Equal(t, 3, config.Index.TopK)
	assert.Equal(t, 0.7, config.Index.ScoreThreshold)
	assert.True(t, config.Index.ExactSearch())
	assert.Equal(t, 10, config.Pipeline.MaxChunks)
	assert.Equal(t, 3, config.Pipeline.PerGroup)
	assert.Equal(t, 1500, config.Pipeline.ContextChars)
	assert.Equal(t, retry.Generation, config.Pipeline.GenerationRetry)
	assert.Equal(t, 2000, config.Server.MaxQuestionChars)
	assert.Equal(t, 5_000_000, config.Server.MaxImageChars)
	assert.Equal(t, 4, config.Server.MaxConnQueries)
	assert.Equal(t, 300, config.Ingest.WindowWords)
	assert.Equal(t, 50, config.Ingest.OverlapWords)

	config.LLM.APIKey = "test-key"
	assert.Empty(t, config.Validate())
}

func TestProviderDefaultsAreConsistent(t *testing.T) {
	tests := []struct {
		provider  string
		baseURL   string
		chat      string
		embedding string
		ocr       string
	}{
		{"openai", "https://api.mistral.ai/v1", "mistral-large-latest", "mistral-embed", "pixtral-12b-latest"},
		{"ollama", "http://localhost:11434", "mistral", "mxbai-embed-large", "llava"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			config := &Config{LLM: LLMConfig{Provider: tt.provider, APIKey: "test-key"}}
			applyDefaults(config)

			assert.Equal(t, tt.baseURL, config.LLM.BaseURL)
			assert.Equal(t, tt.chat, config.LLM.ChatModel)
			assert.Equal(t, tt.embedding, config.LLM.EmbeddingModel)
			assert.Equal(t, tt.ocr, config.LLM.OCRModel)
			assert.Equal(t, 1024, config.Index.VectorDim)
			assert.Empty(t, config.Validate())
		})
	}

	config := &Config{LLM: LLMConfig{Provider: "ollama", ChatModel: "llama3"}}
	applyDefaults(config)
	assert.Equal(t, "llama3", config.LLM.ChatModel)
	assert.Equal(t, "mxbai-embed-large", config.LLM.EmbeddingModel)
}

func TestZeroTemperatureIsKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  temperature: 0\n"), 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, config.LLM.Temperature)
	assert.Zero(t, *config.LLM.Temperature)
}

func float64Ptr(v float64) *float64 { return &v }

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Config)
		errorMessages []string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name: "invalid llm",
			mutate: func(c *Config) {
				c.LLM.APIKey = ""
				c.LLM.BaseURL = "invalid-url"
				c.LLM.MaxTokens = 5000
				c.LLM.Temperature = float64Ptr(3.0)
			},
			errorMessages: []string{
				"llm.base_url: LLM base URL must be an absolute http(s) URL",
				"llm.api_key: api_key is required for the openai provider",
				"llm.max_tokens: max_tokens must be between 1 and 4096",
				"llm.temperature: temperature must be between 0 and 2",
			},
		},
		{
			name: "pgvector without database",
			mutate: func(c *Config) {
				c.Index.Backend = "pgvector"
				c.Index.VectorDim = -1
			},
			errorMessages: []string{
				"index.postgres.url: database URL is required for the pgvector backend",
				"index.vector_dim: vector_dim must be positive",
			},
		},
		{
			name: "unknown backend and bad overlap",
			mutate: func(c *Config) {
				c.Index.Backend = "faiss"
				c.Ingest.OverlapWords = 300
			},
			errorMessages: []string{
				`index.backend: unknown backend "faiss" (want qdrant or pgvector)`,
				"ingest.overlap_words: overlap_words must be non-negative and less than window_words",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}
			applyDefaults(config)
			config.LLM.APIKey = "test-key"
			tt.mutate(config)

			errors := config.Validate()
			require.Len(t, errors, len(tt.errorMessages))
			for i, msg := range tt.errorMessages {
				assert.Equal(t, msg, errors[i].Error())
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("LLM_BASE_URL", "http://env-ollama:11434")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("MISTRAL_API_KEY", "mistral-key")
	t.Setenv("QDRANT_URL", "http://env-qdrant:6333")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("PORT", "9000")

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "http://env-ollama:11434", config.LLM.BaseURL)
	assert.Equal(t, "mistral-key", config.LLM.APIKey)
	assert.Equal(t, "http://env-qdrant:6333", config.Index.Qdrant.URL)
	assert.Equal(t, "postgres://env-db:5432/test", config.Index.Postgres.URL)
	assert.Equal(t, ":9000", config.Server.Addr)
}
