package scraper

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xhad/courseqa/internal/models"
	"github.com/xhad/courseqa/pkg/processor"
)

const maxFilenameLength = 100

var unsafeFilenameChars = regexp.MustCompile(`[^\w\-_.]`)

// SanitizeFilename replaces anything outside [A-Za-z0-9_.-] with "_" and caps
// the length.
func SanitizeFilename(title string) string {
	name := unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(title), "_")
	if len(name) > maxFilenameLength {
		name = name[:maxFilenameLength]
	}
	return name
}

// PageRecord is one entry of the metadata index written next to the pages.
type PageRecord struct {
	Title        string `json:"title"`
	Filename     string `json:"filename"`
	OriginalURL  string `json:"original_url"`
	DownloadedAt string `json:"downloaded_at"`
}

// WritePages saves each document as <title>.md with a front matter header and
// writes metadata.json listing them. Untitled pages are named page_<n>.
func WritePages(dir string, docs []models.Document) ([]PageRecord, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	records := make([]PageRecord, 0, len(docs))
	for i, doc := range docs {
		title := strings.TrimSpace(doc.Title)
		if title == "" {
			title = fmt.Sprintf("page_%d", i+1)
		}
		downloadedAt, _ := doc.Metadata["downloaded_at"].(string)
		if downloadedAt == "" {
			downloadedAt = time.Now().Format(time.RFC3339)
		}

		header, err := yaml.Marshal(processor.FrontMatter{
			Title:        title,
			OriginalURL:  doc.URL,
			DownloadedAt: downloadedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode front matter: %w", err)
		}

		filename := SanitizeFilename(title) + ".md"
		content := "---\n" + string(header) + "---\n\n" + doc.Content
		if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", filename, err)
		}
		records = append(records, PageRecord{
			Title:        title,
			Filename:     filename,
			OriginalURL:  doc.URL,
			DownloadedAt: downloadedAt,
		})
	}

	index, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), index, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}
	return records, nil
}
