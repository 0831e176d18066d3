package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/courseqa/pkg/scraper"
)

var (
	crawlOutput   string
	crawlMaxDepth int
)

var crawlCmd = &cobra.Command{
	Use:   "crawl <url>",
	Short: "Download a course site as markdown files for ingestion",
	Args:  cobra.ExactArgs(1),
	RunE:  runCrawl,
}

func init() {
	crawlCmd.Flags().StringVarP(&crawlOutput, "output", "o", "", "output directory (overrides scraper.output_dir)")
	crawlCmd.Flags().IntVar(&crawlMaxDepth, "max-depth", 0, "maximum link depth (overrides scraper.max_depth)")
	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startURL := args[0]
	outDir := cfg.Scraper.OutputDir
	if crawlOutput != "" {
		outDir = crawlOutput
	}
	depth := cfg.Scraper.MaxDepth
	if crawlMaxDepth > 0 {
		depth = crawlMaxDepth
	}

	color.Blue("\nCrawling %s\n", startURL)
	bar := getProgressBar(-1, "Scraping pages...")
	var pages atomic.Int32
	s, err := scraper.NewWithConfig(scraper.ScraperConfig{
		BaseURL:        startURL,
		MaxDepth:       depth,
		RateLimit:      cfg.Scraper.RateLimit,
		IgnorePatterns: cfg.Scraper.IgnorePatterns,
		Logger:         log.With("component", "scraper"),
		OnProgress: func(url string) {
			_ = bar.Set(int(pages.Add(1)))
		},
	})
	if err != nil {
		return err
	}

	docs, err := s.Scrape(ctx, startURL)
	_ = bar.Finish()
	if err != nil {
		return err
	}
	color.Green("\n✓ Scraped %d pages", len(docs))

	records, err := scraper.WritePages(outDir, docs)
	if err != nil {
		return err
	}
	color.Green("✓ Wrote %d markdown files to %s", len(records), outDir)
	return nil
}
