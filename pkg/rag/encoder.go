package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xhad/courseqa/internal/types"
	"github.com/xhad/courseqa/pkg/image"
	"github.com/xhad/courseqa/pkg/logger"
	"github.com/xhad/courseqa/pkg/retry"
)

// Encoding is the query vector plus whatever text OCR found in the image.
type Encoding struct {
	Vector    []float32
	ImageText string
}

type Encoder struct {
	embedder types.Embedder
	ocr      types.TextExtractor
	ocrRetry retry.Policy
	log      *logger.Logger
}

// NewEncoder builds an Encoder. ocr may be nil, in which case images contribute
// no text.
func NewEncoder(embedder types.Embedder, ocr types.TextExtractor, ocrRetry retry.Policy, log *logger.Logger) *Encoder {
	if log == nil {
		log = logger.Nop()
	}
	return &Encoder{embedder: embedder, ocr: ocr, ocrRetry: ocrRetry, log: log}
}

// Encode embeds question, joined by a newline with the image text when an image
// is given. OCR failures are logged and never fail the call.
func (e *Encoder) Encode(ctx context.Context, question string, img *image.Encoded) (Encoding, error) {
	var imageText string
	if img != nil {
		imageText = e.extractText(ctx, *img)
	}

	text := question
	if imageText != "" {
		text = question + "\n" + imageText
	}
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return Encoding{}, fmt.Errorf("embed query: %w", err)
	}
	return Encoding{Vector: vector, ImageText: imageText}, nil
}

func (e *Encoder) extractText(ctx context.Context, img image.Encoded) string {
	if e.ocr == nil {
		e.log.Warn("image attached but no OCR model configured")
		return ""
	}
	start := time.Now()
	text, err := retry.Do(ctx, e.ocrRetry, func(ctx context.Context) (string, error) {
		return e.ocr.ExtractText(ctx, img)
	}, func(attempt int, err error, wait time.Duration) {
		e.log.Warn("ocr attempt failed", "attempt", attempt, "wait", wait, "error", err)
	})
	if err != nil {
		e.log.Error("ocr failed after retries, continuing without image text", "error", err)
		return ""
	}
	text = strings.TrimSpace(text)
	e.log.Debug("ocr done", "chars", len(text), "elapsed", time.Since(start))
	return text
}
