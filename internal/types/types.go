package types

import (
	"context"

	"github.com/xhad/courseqa/internal/models"
	"github.com/xhad/courseqa/pkg/image"
)

// Core interfaces. Implementations are constructed once at startup and shared
// by all requests, so they must be safe for concurrent use.

type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// TextExtractor reads the text out of an image (OCR).
type TextExtractor interface {
	ExtractText(ctx context.Context, img image.Encoded) (string, error)
}

type GenerateOptions struct {
	Temperature *float64 // nil uses the generator default
	MaxTokens   int
}

type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

type SearchParams struct {
	Limit          int
	ScoreThreshold float64
	Exact          bool
}

type Retriever interface {
	Search(ctx context.Context, vector []float32, params SearchParams) ([]models.Chunk, error)
}

// Point is one embedded window as written by ingestion.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

type VectorStore interface {
	Retriever
	Init(ctx context.Context) error
	Upsert(ctx context.Context, points []Point) error
	Count(ctx context.Context) (int64, error)
	Close()
}

type Processor interface {
	Process(docs []models.Document) ([]models.ProcessedDocument, error)
}
