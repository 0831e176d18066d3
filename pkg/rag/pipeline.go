// Package rag answers course questions: it embeds the question (and any image
// text), retrieves similar chunks, asks a model to answer from them and parses
// the answer into text plus citations.
package rag

import (
	"context"
	"time"

	"github.com/xhad/courseqa/internal/models"
	"github.com/xhad/courseqa/internal/types"
	"github.com/xhad/courseqa/pkg/image"
	"github.com/xhad/courseqa/pkg/logger"
)

const NoResultsMessage = "No relevant results found."

type ImageNormalizer interface {
	Normalize(ctx context.Context, in image.Input) (image.Encoded, error)
}

type PipelineConfig struct {
	Search         types.SearchParams
	Aggregate      AggregateOptions
	RequestTimeout time.Duration
}

var DefaultPipelineConfig = PipelineConfig{
	Search:         types.SearchParams{Limit: 3, ScoreThreshold: 0.7, Exact: true},
	Aggregate:      DefaultAggregateOptions,
	RequestTimeout: 90 * time.Second,
}

// Pipeline is built once and shared by all requests.
type Pipeline struct {
	normalizer  ImageNormalizer
	encoder     *Encoder
	retriever   types.Retriever
	synthesizer *Synthesizer
	parser      Parser
	config      PipelineConfig
	log         *logger.Logger
}

func NewPipeline(
	normalizer ImageNormalizer,
	encoder *Encoder,
	retriever types.Retriever,
	synthesizer *Synthesizer,
	config PipelineConfig,
	log *logger.Logger,
) *Pipeline {
	if config.Search.Limit == 0 {
		config.Search = DefaultPipelineConfig.Search
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		normalizer:  normalizer,
		encoder:     encoder,
		retriever:   retriever,
		synthesizer: synthesizer,
		parser:      DefaultParser,
		config:      config,
		log:         log,
	}
}

// Answer runs one query end to end. Generation and parsing problems degrade
// into the returned answer; errors are always *Error.
func (p *Pipeline) Answer(ctx context.Context, q models.Query) (models.ParsedAnswer, error) {
	if p.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.RequestTimeout)
		defer cancel()
	}
	start := time.Now()

	var img *image.Encoded
	if q.Image != nil {
		if p.normalizer == nil {
			return models.ParsedAnswer{}, stageErr(StageImage, &image.Error{
				Code: image.ErrorInvalidInput, Kind: q.Image.Kind, Msg: "image input is not supported",
			})
		}
		encoded, err := p.normalizer.Normalize(ctx, *q.Image)
		if err != nil {
			p.log.Warn("image normalization failed", "kind", q.Image.Kind.String(), "error", err)
			return models.ParsedAnswer{}, stageErr(StageImage, err)
		}
		img = &encoded
	}

	enc, err := p.encoder.Encode(ctx, q.Question, img)
	if err != nil {
		p.log.Error("encode failed", "error", err)
		return models.ParsedAnswer{}, stageErr(StageEncode, err)
	}

	chunks, err := p.retriever.Search(ctx, enc.Vector, p.config.Search)
	if err != nil {
		p.log.Error("retrieval failed", "error", err)
		return models.ParsedAnswer{}, stageErr(StageRetrieve, err)
	}
	if len(chunks) == 0 {
		p.log.Info("no relevant chunks", "elapsed", time.Since(start))
		return models.NewParsedAnswer(NoResultsMessage, nil), nil
	}

	grouped := Aggregate(chunks, p.config.Aggregate)

	question := q.Question
	if enc.ImageText != "" {
		question += "\n\nExtracted text from attached image:\n" + enc.ImageText
	}
	raw := p.synthesizer.Synthesize(ctx, question, grouped)

	parsed := p.parser.Parse(raw)
	if parsed.Answer == ParseErrorMessage {
		p.log.Error("could not parse model output", "chars", len(raw))
	}
	if len(parsed.Links) == 0 {
		parsed.Links = FallbackLinks(chunks)
		p.log.Debug("no citations parsed, using retrieved chunks", "links", len(parsed.Links))
	}

	p.log.Info("query answered",
		"retrieved", len(chunks),
		"context", len(grouped),
		"links", len(parsed.Links),
		"image", img != nil,
		"elapsed", time.Since(start),
	)
	return parsed, nil
}
