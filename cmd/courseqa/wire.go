package main

import (
	"context"
	"fmt"

	"github.com/xhad/courseqa/internal/types"
	"github.com/xhad/courseqa/pkg/config"
	"github.com/xhad/courseqa/pkg/image"
	"github.com/xhad/courseqa/pkg/llm"
	"github.com/xhad/courseqa/pkg/rag"
	"github.com/xhad/courseqa/pkg/store"
)

func providerConfig(c *config.Config) llm.ProviderConfig {
	return llm.ProviderConfig{
		Provider: c.LLM.Provider,
		BaseURL:  c.LLM.BaseURL,
		APIKey:   c.LLM.APIKey,
	}
}

func openStore(ctx context.Context, c *config.Config) (types.VectorStore, error) {
	switch c.Index.Backend {
	case "pgvector":
		return store.NewPgvectorStore(ctx, store.PgvectorConfig{
			ConnString: c.Index.Postgres.URL,
			TableName:  c.Index.Postgres.TableName,
			VectorDim:  c.Index.VectorDim,
		})
	default:
		return store.NewQdrantStore(store.QdrantConfig{
			URL:        c.Index.Qdrant.URL,
			APIKey:     c.Index.Qdrant.APIKey,
			Collection: c.Index.Qdrant.Collection,
			VectorDim:  c.Index.VectorDim,
			Timeout:    c.Index.Qdrant.Timeout,
		})
	}
}

func newEmbedder(c *config.Config) (*llm.Embedder, error) {
	model, err := llm.NewModel(providerConfig(c), c.LLM.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	return llm.NewEmbedderWithConfig(model, llm.EmbedderConfig{
		Dimension: c.Index.VectorDim,
		BatchSize: c.Ingest.BatchSize,
	})
}

// newPipeline builds every query-time collaborator once. The returned store
// must be closed by the caller.
func newPipeline(ctx context.Context, c *config.Config) (*rag.Pipeline, types.VectorStore, error) {
	embedder, err := newEmbedder(c)
	if err != nil {
		return nil, nil, err
	}

	chatModel, err := llm.NewModel(providerConfig(c), c.LLM.ChatModel)
	if err != nil {
		return nil, nil, err
	}
	chat, err := llm.NewWithConfig(chatModel, llm.ChatConfig{
		Model:       c.LLM.ChatModel,
		Temperature: *c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
		Timeout:     c.LLM.Timeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	ocrModel, err := llm.NewModel(providerConfig(c), c.LLM.OCRModel)
	if err != nil {
		return nil, nil, err
	}

	vs, err := openStore(ctx, c)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	encoder := rag.NewEncoder(embedder, llm.NewOCR(ocrModel, c.LLM.Timeout), c.Pipeline.OCRRetry, log.With("component", "encoder"))
	synthesizer := rag.NewSynthesizer(chat, rag.SynthesizerConfig{
		Temperature:  c.LLM.Temperature,
		MaxTokens:    c.LLM.MaxTokens,
		ContextChars: c.Pipeline.ContextChars,
		Retry:        c.Pipeline.GenerationRetry,
	}, log.With("component", "synthesizer"))
	normalizer := image.NewNormalizer(image.NormalizerConfig{FetchTimeout: c.Server.ImageFetchTimeout})

	pipeline := rag.NewPipeline(normalizer, encoder, vs, synthesizer, rag.PipelineConfig{
		Search: types.SearchParams{
			Limit:          c.Index.TopK,
			ScoreThreshold: c.Index.ScoreThreshold,
			Exact:          c.Index.ExactSearch(),
		},
		Aggregate: rag.AggregateOptions{
			MaxChunks: c.Pipeline.MaxChunks,
			PerGroup:  c.Pipeline.PerGroup,
		},
		RequestTimeout: c.Pipeline.RequestTimeout,
	}, log.With("component", "pipeline"))
	return pipeline, vs, nil
}
