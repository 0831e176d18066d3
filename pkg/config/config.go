package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/xhad/courseqa/pkg/retry"
)

type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Index    IndexConfig    `yaml:"index"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Server   ServerConfig   `yaml:"server"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Scraper  ScraperConfig  `yaml:"scraper"`
	Log      LogConfig      `yaml:"log"`
}

type LLMConfig struct {
	Provider       string        `yaml:"provider"` // ollama | openai
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	ChatModel      string        `yaml:"chat_model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	OCRModel       string        `yaml:"ocr_model"`
	Temperature    *float64      `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
	Timeout        time.Duration `yaml:"timeout"`
}

type IndexConfig struct {
	Backend        string         `yaml:"backend"` // qdrant | pgvector
	VectorDim      int            `yaml:"vector_dim"`
	TopK           int            `yaml:"top_k"`
	ScoreThreshold float64        `yaml:"score_threshold"`
	Exact          *bool          `yaml:"exact"`
	Qdrant         QdrantConfig   `yaml:"qdrant"`
	Postgres       PostgresConfig `yaml:"postgres"`
}

type QdrantConfig struct {
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

type PostgresConfig struct {
	URL       string `yaml:"url"`
	TableName string `yaml:"table_name"`
}

type PipelineConfig struct {
	MaxChunks       int           `yaml:"max_chunks"`
	PerGroup        int           `yaml:"per_group"`
	ContextChars    int           `yaml:"context_chars"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	GenerationRetry retry.Policy  `yaml:"generation_retry"`
	OCRRetry        retry.Policy  `yaml:"ocr_retry"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	MaxQuestionChars  int           `yaml:"max_question_chars"`
	MaxImageChars     int           `yaml:"max_image_chars"`
	MaxConnQueries    int           `yaml:"max_conn_queries"` // per WebSocket connection
	ImageFetchTimeout time.Duration `yaml:"image_fetch_timeout"`
}

type IngestConfig struct {
	WindowWords  int     `yaml:"window_words"`
	OverlapWords int     `yaml:"overlap_words"`
	BatchSize    int     `yaml:"batch_size"`
	Concurrency  int     `yaml:"concurrency"`
	RateLimit    float64 `yaml:"rate_limit"` // embedding batches per second
}

type ScraperConfig struct {
	MaxDepth       int      `yaml:"max_depth"`
	RateLimit      float64  `yaml:"rate_limit"`
	IgnorePatterns []string `yaml:"ignore_patterns"`
	OutputDir      string   `yaml:"output_dir"`
}

type LogConfig struct {
	Mode string `yaml:"mode"`
}

// ExactSearch defaults to true when unset.
func (c IndexConfig) ExactSearch() bool {
	return c.Exact == nil || *c.Exact
}

func LoadConfig(path string) (*Config, error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/courseqa/config.yaml"),
			"/etc/courseqa/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

type modelDefaults struct {
	baseURL   string
	chat      string
	embedding string
	ocr       string
}

// providerDefaults keeps the models consistent with the provider. Both
// embedding models produce 1024-d vectors.
var providerDefaults = map[string]modelDefaults{
	"openai": {
		baseURL:   "https://api.mistral.ai/v1",
		chat:      "mistral-large-latest",
		embedding: "mistral-embed",
		ocr:       "pixtral-12b-latest",
	},
	"ollama": {
		baseURL:   "http://localhost:11434",
		chat:      "mistral",
		embedding: "mxbai-embed-large",
		ocr:       "llava",
	},
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "openai"
	}
	defaults := providerDefaults[config.LLM.Provider]
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = defaults.baseURL
	}
	if config.LLM.ChatModel == "" {
		config.LLM.ChatModel = defaults.chat
	}
	if config.LLM.EmbeddingModel == "" {
		config.LLM.EmbeddingModel = defaults.embedding
	}
	if config.LLM.OCRModel == "" {
		config.LLM.OCRModel = defaults.ocr
	}
	if config.LLM.Temperature == nil {
		t := 0.2
		config.LLM.Temperature = &t
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 700
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 30 * time.Second
	}

	if config.Index.Backend == "" {
		config.Index.Backend = "qdrant"
	}
	if config.Index.VectorDim == 0 {
		config.Index.VectorDim = 1024
	}
	if config.Index.TopK == 0 {
		config.Index.TopK = 3
	}
	if config.Index.ScoreThreshold == 0 {
		config.Index.ScoreThreshold = 0.7
	}
	if config.Index.Qdrant.URL == "" {
		config.Index.Qdrant.URL = "http://localhost:6333"
	}
	if config.Index.Qdrant.Collection == "" {
		config.Index.Qdrant.Collection = "tds-embeddings"
	}
	if config.Index.Qdrant.Timeout == 0 {
		config.Index.Qdrant.Timeout = 15 * time.Second
	}
	if config.Index.Postgres.TableName == "" {
		config.Index.Postgres.TableName = "documents"
	}

	if config.Pipeline.MaxChunks == 0 {
		config.Pipeline.MaxChunks = 10
	}
	if config.Pipeline.PerGroup == 0 {
		config.Pipeline.PerGroup = 3
	}
	if config.Pipeline.ContextChars == 0 {
		config.Pipeline.ContextChars = 1500
	}
	if config.Pipeline.RequestTimeout == 0 {
		config.Pipeline.RequestTimeout = 90 * time.Second
	}
	if config.Pipeline.GenerationRetry.MaxAttempts == 0 {
		config.Pipeline.GenerationRetry = retry.Generation
	}
	if config.Pipeline.OCRRetry.MaxAttempts == 0 {
		config.Pipeline.OCRRetry = retry.OCR
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8000"
	}
	if config.Server.MaxQuestionChars == 0 {
		config.Server.MaxQuestionChars = 2000
	}
	if config.Server.MaxImageChars == 0 {
		config.Server.MaxImageChars = 5_000_000
	}
	if config.Server.MaxConnQueries == 0 {
		config.Server.MaxConnQueries = 4
	}
	if config.Server.ImageFetchTimeout == 0 {
		config.Server.ImageFetchTimeout = 15 * time.Second
	}

	if config.Ingest.WindowWords == 0 {
		config.Ingest.WindowWords = 300
	}
	if config.Ingest.OverlapWords == 0 {
		config.Ingest.OverlapWords = 50
	}
	if config.Ingest.BatchSize == 0 {
		config.Ingest.BatchSize = 100
	}
	if config.Ingest.Concurrency == 0 {
		config.Ingest.Concurrency = 2
	}
	if config.Ingest.RateLimit == 0 {
		config.Ingest.RateLimit = 1.0
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 3
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.OutputDir == "" {
		config.Scraper.OutputDir = "data/course_material"
	}

	if config.Log.Mode == "" {
		config.Log.Mode = "dev"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("LLM_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		config.LLM.APIKey = key
	} else if key := os.Getenv("MISTRAL_API_KEY"); key != "" && config.LLM.APIKey == "" {
		config.LLM.APIKey = key
	}
	if qdrantURL := os.Getenv("QDRANT_URL"); qdrantURL != "" {
		config.Index.Qdrant.URL = qdrantURL
	}
	if qdrantKey := os.Getenv("QDRANT_API_KEY"); qdrantKey != "" {
		config.Index.Qdrant.APIKey = qdrantKey
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Index.Postgres.URL = dbURL
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + port
	}
	if mode := os.Getenv("LOG_MODE"); mode != "" {
		config.Log.Mode = mode
	}
}
