package processor

import (
	"fmt"
	"strings"

	"github.com/xhad/courseqa/internal/models"
	"github.com/xhad/courseqa/internal/types"
)

type ProcessorConfig struct {
	WindowWords  int
	OverlapWords int
}

// Processor splits documents into overlapping word windows.
type Processor struct {
	config ProcessorConfig
}

var _ types.Processor = (*Processor)(nil)

func NewWithConfig(config ProcessorConfig) (*Processor, error) {
	if config.WindowWords == 0 {
		config.WindowWords = 300
	}
	if config.OverlapWords == 0 {
		config.OverlapWords = 50
	}
	if config.OverlapWords < 0 || config.OverlapWords >= config.WindowWords {
		return nil, fmt.Errorf("overlap (%d) must be between 0 and window size (%d)", config.OverlapWords, config.WindowWords)
	}
	return &Processor{config: config}, nil
}

func (p *Processor) Process(docs []models.Document) ([]models.ProcessedDocument, error) {
	processed := make([]models.ProcessedDocument, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			return nil, fmt.Errorf("document %q has no id", doc.URL)
		}
		chunks := p.splitIntoChunks(doc.Content)
		if len(chunks) == 0 {
			continue
		}
		processed = append(processed, models.ProcessedDocument{
			Document: doc,
			Prefix:   chunkPrefix(doc),
			Chunks:   chunks,
		})
	}
	return processed, nil
}

// splitIntoChunks starts a window every WindowWords-OverlapWords words, so the
// last windows of a document may be shorter than WindowWords.
func (p *Processor) splitIntoChunks(text string) []string {
	words := strings.Fields(text)
	step := p.config.WindowWords - p.config.OverlapWords

	var chunks []string
	for i := 0; i < len(words); i += step {
		end := min(i+p.config.WindowWords, len(words))
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	return chunks
}

func chunkPrefix(doc models.Document) string {
	source, _ := doc.Metadata["source"].(string)
	switch models.ParseSource(source) {
	case models.SourceDiscourse:
		return "discourse"
	case models.SourceCourseMaterial:
		return "md"
	default:
		return "doc"
	}
}
