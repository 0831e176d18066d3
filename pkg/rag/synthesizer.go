package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xhad/courseqa/internal/models"
	"github.com/xhad/courseqa/internal/types"
	"github.com/xhad/courseqa/pkg/logger"
	"github.com/xhad/courseqa/pkg/retry"
)

// DegradedMessage replaces the answer when generation keeps failing.
const DegradedMessage = "The system is currently overloaded or encountered an error. Please try again."

const NoInformationMessage = "I don't have enough information to answer this question."

type SynthesizerConfig struct {
	Temperature  *float64 // nil means 0.2
	MaxTokens    int
	ContextChars int // per chunk, in runes
	Retry        retry.Policy
}

type Synthesizer struct {
	generator types.Generator
	config    SynthesizerConfig
	log       *logger.Logger
}

func NewSynthesizer(generator types.Generator, config SynthesizerConfig, log *logger.Logger) *Synthesizer {
	if config.Temperature == nil {
		t := 0.2
		config.Temperature = &t
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 700
	}
	if config.ContextChars == 0 {
		config.ContextChars = 1500
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = retry.Generation
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Synthesizer{generator: generator, config: config, log: log}
}

// Synthesize asks the model to answer question from chunks. It always returns
// text: DegradedMessage once the retry policy is exhausted.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, chunks []models.Chunk) string {
	prompt := BuildPrompt(question, BuildContext(chunks, s.config.ContextChars))
	opts := types.GenerateOptions{Temperature: s.config.Temperature, MaxTokens: s.config.MaxTokens}

	start := time.Now()
	out, err := retry.Do(ctx, s.config.Retry, func(ctx context.Context) (string, error) {
		return s.generator.Generate(ctx, prompt, opts)
	}, func(attempt int, err error, wait time.Duration) {
		s.log.Warn("generation attempt failed", "attempt", attempt, "wait", wait, "error", err)
	})
	if err != nil {
		s.log.Error("generation failed after retries", "error", err, "elapsed", time.Since(start))
		return DegradedMessage
	}
	s.log.Debug("generation done", "chars", len(out), "elapsed", time.Since(start))
	return out
}

// BuildContext renders one labelled block per chunk, each holding at most limit
// runes of the chunk text.
func BuildContext(chunks []models.Chunk, limit int) string {
	var b strings.Builder
	for _, c := range chunks {
		label := "Course material"
		if c.Source == models.SourceDiscourse {
			label = "Discourse post"
		}
		fmt.Fprintf(&b, "\n\n%s (URL: %s):\n%s", label, c.URL(), truncateRunes(c.Text, limit))
	}
	return b.String()
}

func BuildPrompt(question, contextText string) string {
	return fmt.Sprintf(`You are a senior teaching assistant for the Tools in Data Science course. Your job is to give accurate information taken from the context, with references to the sources you used.
Answer the question using ONLY the context below. Read every discourse post and course page in the context carefully before answering.
If the context does not settle the question outright, reason step by step over the discussion and give one clear answer.
If the context cannot answer the question, say "%s"

Context:
%s

Question: %s

Return your response in exactly this format:
<a concise, complete answer>

Sources:
1. URL: [exact_url_1], Text: [brief quote or description]
2. URL: [exact_url_2], Text: [brief quote or description]

Copy every URL exactly as it appears in the context.
`, NoInformationMessage, contextText, question)
}
