package rag_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/courseqa/internal/models"
	"github.com/xhad/courseqa/internal/types"
	"github.com/xhad/courseqa/pkg/image"
	"github.com/xhad/courseqa/pkg/rag"
)

type pipelineFixture struct {
	embedder  *fakeEmbedder
	ocr       *fakeOCR
	retriever *fakeRetriever
	generator *fakeGenerator
	pipeline  *rag.Pipeline
}

func newPipeline(chunks []models.Chunk, reply string, normalizer rag.ImageNormalizer) *pipelineFixture {
	f := &pipelineFixture{
		embedder:  &fakeEmbedder{},
		ocr:       &fakeOCR{text: "Traceback: KeyError"},
		retriever: &fakeRetriever{chunks: chunks},
		generator: &fakeGenerator{reply: reply},
	}
	f.pipeline = rag.NewPipeline(
		normalizer,
		rag.NewEncoder(f.embedder, f.ocr, fastRetry, nil),
		f.retriever,
		rag.NewSynthesizer(f.generator, rag.SynthesizerConfig{Retry: fastRetry}, nil),
		rag.DefaultPipelineConfig,
		nil,
	)
	return f
}

func TestAnswerNoResults(t *testing.T) {
	f := newPipeline(nil, "unused", nil)
	got, err := f.pipeline.Answer(context.Background(), models.Query{Question: "anything?"})
	require.NoError(t, err)
	assert.Equal(t, models.ParsedAnswer{Answer: "No relevant results found.", Links: []models.Citation{}}, got)
	assert.Zero(t, f.generator.calls)
}

func TestAnswerSearchParams(t *testing.T) {
	f := newPipeline(nil, "", nil)
	_, err := f.pipeline.Answer(context.Background(), models.Query{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, types.SearchParams{Limit: 3, ScoreThreshold: 0.7, Exact: true}, f.retriever.params)
}

func TestAnswerEndToEnd(t *testing.T) {
	chunks := []models.Chunk{
		discourseChunk(155939, "https://discourse.example.com/t/deadline/155939/1", "The deadline is 31 May.", 0.92),
		discourseChunk(155939, "https://discourse.example.com/t/deadline/155939/2", "Extensions are not granted.", 0.85),
		discourseChunk(155939, "https://discourse.example.com/t/deadline/155939/3", "Submit via the portal.", 0.78),
	}
	reply := "The deadline is 31 May and extensions are not granted.\n\nSources:\n" +
		"1. URL: [https://discourse.example.com/t/deadline/155939/1], Text: [The deadline is 31 May.]\n" +
		"2. URL: [https://discourse.example.com/t/deadline/155939/2], Text: [Extensions are not granted.]"
	f := newPipeline(chunks, reply, nil)

	got, err := f.pipeline.Answer(context.Background(), models.Query{Question: "What is the course deadline?"})
	require.NoError(t, err)

	require.Len(t, f.generator.prompts, 1)
	prompt := f.generator.prompts[0]
	for _, c := range chunks {
		assert.Contains(t, prompt, c.Text)
	}
	assert.Contains(t, prompt, "Question: What is the course deadline?")

	assert.Equal(t, "The deadline is 31 May and extensions are not granted.", got.Answer)
	assert.Equal(t, []models.Citation{
		{URL: "https://discourse.example.com/t/deadline/155939/1", Text: "The deadline is 31 May."},
		{URL: "https://discourse.example.com/t/deadline/155939/2", Text: "Extensions are not granted."},
	}, got.Links)
}

func TestAnswerFallbackReplacesLinksOnly(t *testing.T) {
	chunks := []models.Chunk{
		discourseChunk(1, "https://d/1", "first post", 0.9),
		courseChunk("week1.md", "https://c/week1", "course page", 0.8),
		discourseChunk(1, "https://d/1", "same url again", 0.75),
	}
	f := newPipeline(chunks, "Just an answer with no sources.", nil)

	got, err := f.pipeline.Answer(context.Background(), models.Query{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "Just an answer with no sources.", got.Answer)
	assert.Equal(t, []models.Citation{
		{URL: "https://d/1", Text: "first post..."},
		{URL: "https://c/week1", Text: "course page..."},
	}, got.Links)
}

func TestAnswerDegradedGenerationStillCites(t *testing.T) {
	f := newPipeline([]models.Chunk{discourseChunk(1, "https://d/1", "post", 0.9)}, "", nil)
	f.generator.failures = -1

	got, err := f.pipeline.Answer(context.Background(), models.Query{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, rag.DegradedMessage, got.Answer)
	assert.Len(t, got.Links, 1)
}

func TestAnswerWithImage(t *testing.T) {
	f := newPipeline([]models.Chunk{discourseChunk(1, "https://d/1", "post", 0.9)}, "answer", fakeNormalizer{})
	img := image.FromBase64("aGVsbG8=")

	_, err := f.pipeline.Answer(context.Background(), models.Query{Question: "Why this error?", Image: &img})
	require.NoError(t, err)

	assert.Equal(t, 1, f.ocr.calls)
	assert.Equal(t, []string{"Why this error?\nTraceback: KeyError"}, f.embedder.texts)
	require.Len(t, f.generator.prompts, 1)
	assert.Contains(t, f.generator.prompts[0], "Question: Why this error?\n\nExtracted text from attached image:\nTraceback: KeyError")
}

func TestAnswerImageErrorIsClientError(t *testing.T) {
	normErr := &image.Error{Code: image.ErrorUnsupportedType, Kind: image.KindBase64, Msg: "unsupported image type"}
	f := newPipeline(nil, "", fakeNormalizer{err: normErr})
	img := image.FromBase64("not an image")

	_, err := f.pipeline.Answer(context.Background(), models.Query{Question: "q", Image: &img})
	require.Error(t, err)
	assert.True(t, image.IsError(err))

	var ragErr *rag.Error
	require.True(t, errors.As(err, &ragErr))
	assert.Equal(t, rag.StageImage, ragErr.Stage)
	assert.Empty(t, f.embedder.texts)
}

func TestAnswerImageWithoutNormalizer(t *testing.T) {
	f := newPipeline(nil, "", nil)
	img := image.FromURL("https://example.com/a.png")
	_, err := f.pipeline.Answer(context.Background(), models.Query{Question: "q", Image: &img})
	assert.True(t, image.IsError(err))
}

func TestAnswerRetrievalError(t *testing.T) {
	f := newPipeline(nil, "", nil)
	f.retriever.err = errors.New("qdrant unreachable")

	_, err := f.pipeline.Answer(context.Background(), models.Query{Question: "q"})
	var ragErr *rag.Error
	require.True(t, errors.As(err, &ragErr))
	assert.Equal(t, rag.StageRetrieve, ragErr.Stage)
	assert.False(t, image.IsError(err))
	assert.True(t, strings.Contains(err.Error(), "qdrant unreachable"))
}

func TestAnswerEncodeError(t *testing.T) {
	f := newPipeline(nil, "", nil)
	f.embedder.err = errors.New("embedding quota")

	_, err := f.pipeline.Answer(context.Background(), models.Query{Question: "q"})
	var ragErr *rag.Error
	require.True(t, errors.As(err, &ragErr))
	assert.Equal(t, rag.StageEncode, ragErr.Stage)
}
