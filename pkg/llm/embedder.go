package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"

	"github.com/xhad/courseqa/internal/types"
)

type EmbedderConfig struct {
	Dimension int // expected vector size; 0 skips the check
	BatchSize int
}

// Embedder wraps a langchaingo embedder and checks vectors match the index.
type Embedder struct {
	config   EmbedderConfig
	embedder *embeddings.EmbedderImpl
}

var _ types.Embedder = (*Embedder)(nil)

func NewEmbedderWithConfig(client embeddings.EmbedderClient, config EmbedderConfig) (*Embedder, error) {
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	// Newlines separate the question from image text; keep them.
	emb, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(false),
		embeddings.WithBatchSize(config.BatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	return &Embedder{config: config, embedder: emb}, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}
	if err := e.check(v); err != nil {
		return nil, err
	}
	return v, nil
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(vs) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: want %d, got %d", len(texts), len(vs))
	}
	for _, v := range vs {
		if err := e.check(v); err != nil {
			return nil, err
		}
	}
	return vs, nil
}

func (e *Embedder) check(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("empty embedding")
	}
	if e.config.Dimension > 0 && len(v) != e.config.Dimension {
		return fmt.Errorf("embedding dimension mismatch: want %d, got %d", e.config.Dimension, len(v))
	}
	return nil
}
