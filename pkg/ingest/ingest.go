// Package ingest embeds processed documents and writes them to the vector store.
package ingest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xhad/courseqa/internal/models"
	"github.com/xhad/courseqa/internal/types"
	"github.com/xhad/courseqa/pkg/logger"
	"github.com/xhad/courseqa/pkg/retry"
	"github.com/xhad/courseqa/pkg/store"
)

type Config struct {
	BatchSize   int
	Concurrency int
	RateLimit   float64 // embedding batches per second
	Retry       retry.Policy
	OnProgress  func(done, total int) // windows written so far
}

type Stats struct {
	Documents int
	Chunks    int
	Batches   int
	Elapsed   time.Duration
}

type Ingester struct {
	config   Config
	embedder types.Embedder
	store    types.VectorStore
	limiter  *rate.Limiter
	log      *logger.Logger
}

type window struct {
	key     string
	text    string
	payload map[string]interface{}
}

func New(embedder types.Embedder, vs types.VectorStore, config Config, log *logger.Logger) *Ingester {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 1
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = retry.Embedding
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Ingester{
		config:   config,
		embedder: embedder,
		store:    vs,
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		log:      log,
	}
}

// Run embeds every window of docs and upserts it under a point id derived from
// its chunk key, so running it twice over the same input rewrites the same points.
func (in *Ingester) Run(ctx context.Context, docs []models.ProcessedDocument) (Stats, error) {
	start := time.Now()
	var windows []window
	for _, d := range docs {
		for i, text := range d.Chunks {
			windows = append(windows, window{key: d.ChunkID(i), text: text, payload: d.Payload(i)})
		}
	}
	stats := Stats{Documents: len(docs), Chunks: len(windows)}
	if len(windows) == 0 {
		return stats, nil
	}

	if err := in.store.Init(ctx); err != nil {
		return stats, fmt.Errorf("failed to prepare vector store: %w", err)
	}

	var done atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(in.config.Concurrency)
	for lo := 0; lo < len(windows); lo += in.config.BatchSize {
		batch := windows[lo:min(lo+in.config.BatchSize, len(windows))]
		stats.Batches++
		n := stats.Batches
		g.Go(func() error {
			if err := in.writeBatch(ctx, batch); err != nil {
				return fmt.Errorf("batch %d: %w", n, err)
			}
			total := done.Add(int64(len(batch)))
			if in.config.OnProgress != nil {
				in.config.OnProgress(int(total), len(windows))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	stats.Elapsed = time.Since(start)
	in.log.Info("ingestion complete",
		"documents", stats.Documents,
		"chunks", stats.Chunks,
		"batches", stats.Batches,
		"elapsed", stats.Elapsed,
	)
	return stats, nil
}

func (in *Ingester) writeBatch(ctx context.Context, batch []window) error {
	if err := in.limiter.Wait(ctx); err != nil {
		return err
	}
	texts := make([]string, len(batch))
	for i, w := range batch {
		texts[i] = w.text
	}

	vectors, err := retry.Do(ctx, in.config.Retry, func(ctx context.Context) ([][]float32, error) {
		return in.embedder.EmbedDocuments(ctx, texts)
	}, func(attempt int, err error, wait time.Duration) {
		in.log.Warn("embedding batch failed", "attempt", attempt, "wait", wait, "error", err)
	})
	if err != nil {
		return fmt.Errorf("failed to embed: %w", err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embedding count mismatch: want %d, got %d", len(batch), len(vectors))
	}

	points := make([]types.Point, len(batch))
	for i, w := range batch {
		points[i] = types.Point{ID: store.PointID(w.key), Vector: vectors[i], Payload: w.payload}
	}
	if err := in.store.Upsert(ctx, points); err != nil {
		return fmt.Errorf("failed to upsert: %w", err)
	}
	in.log.Debug("batch written", "points", len(points))
	return nil
}
