package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/xhad/courseqa/internal/types"
	"github.com/xhad/courseqa/pkg/image"
)

const ocrInstruction = "Transcribe all text visible in this image as Markdown. " +
	"Preserve code, tables and line breaks. Output only the transcription; " +
	"if there is no text, output nothing."

// OCR extracts text from an image with a vision-capable chat model.
type OCR struct {
	llm     llms.Model
	timeout time.Duration
}

var _ types.TextExtractor = (*OCR)(nil)

func NewOCR(model llms.Model, timeout time.Duration) *OCR {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &OCR{llm: model, timeout: timeout}
}

func (o *OCR) ExtractText(ctx context.Context, img image.Encoded) (string, error) {
	data, err := img.Bytes()
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.BinaryPart(mime, data),
				llms.TextPart(ocrInstruction),
			},
		},
	}
	resp, err := o.llm.GenerateContent(ctx, content, llms.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("ocr error: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("ocr error: no response from model")
	}
	pages := make([]string, 0, len(resp.Choices))
	for _, choice := range resp.Choices {
		if choice != nil && strings.TrimSpace(choice.Content) != "" {
			pages = append(pages, strings.TrimSpace(choice.Content))
		}
	}
	return strings.Join(pages, "\n\n"), nil
}
