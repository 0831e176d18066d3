package rag_test

import (
	"context"
	"errors"
	"sync"

	"github.com/xhad/courseqa/internal/models"
	"github.com/xhad/courseqa/internal/types"
	"github.com/xhad/courseqa/pkg/image"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type fakeOCR struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (f *fakeOCR) ExtractText(ctx context.Context, img image.Encoded) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeRetriever struct {
	chunks []models.Chunk
	err    error
	params types.SearchParams
}

func (f *fakeRetriever) Search(ctx context.Context, vector []float32, params types.SearchParams) ([]models.Chunk, error) {
	f.params = params
	return f.chunks, f.err
}

// fakeGenerator fails the first failures calls, then returns reply.
type fakeGenerator struct {
	mu       sync.Mutex
	failures int
	reply    string
	calls    int
	prompts  []string
	opts     types.GenerateOptions
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, opts types.GenerateOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.opts = opts
	if f.failures < 0 || f.calls <= f.failures {
		return "", errors.New("service unavailable")
	}
	return f.reply, nil
}

type fakeNormalizer struct {
	err error
}

func (f fakeNormalizer) Normalize(ctx context.Context, in image.Input) (image.Encoded, error) {
	if f.err != nil {
		return image.Encoded{}, f.err
	}
	return image.Encoded{Base64: "aGVsbG8=", MIMEType: "image/png"}, nil
}

func discourseChunk(postID int, url, text string, score float64) models.Chunk {
	return models.Chunk{
		Text:   text,
		Score:  score,
		Source: models.SourceDiscourse,
		Metadata: map[string]any{
			"post_id":  float64(postID),
			"topic_id": float64(1),
			"url":      url,
			"text":     text,
		},
	}
}

func courseChunk(filename, url, text string, score float64) models.Chunk {
	return models.Chunk{
		Text:   text,
		Score:  score,
		Source: models.SourceCourseMaterial,
		Metadata: map[string]any{
			"filename":     filename,
			"original_url": url,
		},
	}
}
