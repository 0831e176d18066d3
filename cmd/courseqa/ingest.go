package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/courseqa/internal/models"
	"github.com/xhad/courseqa/pkg/ingest"
	"github.com/xhad/courseqa/pkg/processor"
)

var (
	ingestDiscourse string
	ingestMarkdown  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Chunk, embed and index discourse posts and course markdown",
	Long: `Reads a discourse JSON export and/or a directory of course markdown,
splits every document into overlapping word windows, embeds them and upserts
them into the configured index. Point ids are derived from chunk ids, so
re-running over the same input overwrites rather than duplicates.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDiscourse, "discourse", "", "path to the discourse posts JSON file")
	ingestCmd.Flags().StringVar(&ingestMarkdown, "markdown", "", "directory of course markdown files")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestDiscourse == "" && ingestMarkdown == "" {
		return errors.New("nothing to ingest: pass --discourse and/or --markdown")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var docs []models.Document
	if ingestDiscourse != "" {
		posts, err := processor.LoadDiscourse(ingestDiscourse)
		if err != nil {
			return err
		}
		color.Green("✓ Loaded %d discourse posts", len(posts))
		docs = append(docs, posts...)
	}
	if ingestMarkdown != "" {
		pages, err := processor.LoadMarkdownDir(ingestMarkdown)
		if err != nil {
			return err
		}
		color.Green("✓ Loaded %d markdown files", len(pages))
		docs = append(docs, pages...)
	}

	proc, err := processor.NewWithConfig(processor.ProcessorConfig{
		WindowWords:  cfg.Ingest.WindowWords,
		OverlapWords: cfg.Ingest.OverlapWords,
	})
	if err != nil {
		return err
	}
	processed, err := proc.Process(docs)
	if err != nil {
		return err
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	vs, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer vs.Close()

	total := 0
	for _, d := range processed {
		total += len(d.Chunks)
	}
	bar := getProgressBar(total, "Embedding and indexing...")
	ingester := ingest.New(embedder, vs, ingest.Config{
		BatchSize:   cfg.Ingest.BatchSize,
		Concurrency: cfg.Ingest.Concurrency,
		RateLimit:   cfg.Ingest.RateLimit,
		OnProgress: func(done, _ int) {
			_ = bar.Set(done)
		},
	}, log.With("component", "ingest"))

	stats, err := ingester.Run(ctx, processed)
	_ = bar.Finish()
	if err != nil {
		return err
	}

	color.Green("\n✓ Indexed %d chunks from %d documents in %s", stats.Chunks, stats.Documents, stats.Elapsed.Round(time.Millisecond))
	return nil
}
