package processor

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"gopkg.in/yaml.v3"

	"github.com/xhad/courseqa/internal/models"
)

// DiscoursePost is one entry of the exported forum JSON.
type DiscoursePost struct {
	TopicID    int64  `json:"topic_id"`
	TopicTitle string `json:"topic_title,omitempty"`
	PostID     int64  `json:"post_id"`
	URL        string `json:"url"`
	Content    string `json:"content"`
	Author     string `json:"author,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// FrontMatter is the YAML header the crawler writes above each page.
type FrontMatter struct {
	Title        string `yaml:"title"`
	OriginalURL  string `yaml:"original_url"`
	DownloadedAt string `yaml:"downloaded_at"`
}

// LoadDiscourse reads a JSON array of posts. HTML post bodies are reduced to text.
func LoadDiscourse(path string) ([]models.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read discourse file: %w", err)
	}
	var posts []DiscoursePost
	if err := json.Unmarshal(raw, &posts); err != nil {
		return nil, fmt.Errorf("failed to parse discourse file %s: %w", path, err)
	}

	docs := make([]models.Document, 0, len(posts))
	for _, post := range posts {
		content := strings.TrimSpace(post.Content)
		if looksLikeHTML(content) {
			text, err := HTMLToText(content)
			if err != nil {
				return nil, fmt.Errorf("post %d: %w", post.PostID, err)
			}
			content = text
		}
		meta := map[string]interface{}{
			"source":   string(models.SourceDiscourse),
			"topic_id": post.TopicID,
			"post_id":  post.PostID,
			"url":      post.URL,
		}
		if post.TopicTitle != "" {
			meta["topic_title"] = post.TopicTitle
		}
		docs = append(docs, models.Document{
			ID:       strconv.FormatInt(post.PostID, 10),
			URL:      post.URL,
			Title:    post.TopicTitle,
			Content:  content,
			Metadata: meta,
		})
	}
	return docs, nil
}

// LoadMarkdownDir reads every *.md file under dir, in path order.
func LoadMarkdownDir(dir string) ([]models.Document, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	sort.Strings(paths)

	docs := make([]models.Document, 0, len(paths))
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		fm, body, err := ParseFrontMatter(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		name := filepath.Base(path)
		meta := map[string]interface{}{
			"source":   string(models.SourceCourseMaterial),
			"filename": name,
			"path":     path,
		}
		if fm.Title != "" {
			meta["title"] = fm.Title
		}
		if fm.OriginalURL != "" {
			meta["original_url"] = fm.OriginalURL
		}
		docs = append(docs, models.Document{
			ID:       name,
			URL:      fm.OriginalURL,
			Title:    fm.Title,
			Content:  body,
			Metadata: meta,
		})
	}
	return docs, nil
}

// ParseFrontMatter splits a leading "---" YAML block from the markdown body.
// Files without one return a zero FrontMatter and the whole input as body.
func ParseFrontMatter(raw []byte) (FrontMatter, string, error) {
	var fm FrontMatter
	text := strings.ReplaceAll(strings.TrimPrefix(string(raw), "\ufeff"), "\r\n", "\n")
	if !strings.HasPrefix(text, "---\n") {
		return fm, string(raw), nil
	}

	block := "\n" + strings.TrimPrefix(text, "---\n")
	end := strings.Index(block, "\n---")
	if end < 0 {
		return fm, string(raw), nil
	}
	header := block[:end]
	body := block[end+len("\n---"):]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}

	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return FrontMatter{}, "", fmt.Errorf("invalid front matter: %w", err)
	}
	return fm, strings.TrimLeft(body, "\n"), nil
}

func looksLikeHTML(s string) bool {
	return strings.Contains(s, "<") && strings.Contains(s, ">") && strings.Contains(s, "</")
}

const blockSelectors = "p, br, li, div, pre, blockquote, tr, h1, h2, h3, h4, h5, h6"

// HTMLToText flattens an HTML fragment to text, keeping block boundaries as
// whitespace and dropping scripts, styles and images.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}
	doc.Find("script, style, noscript, img").Remove()
	doc.Find(blockSelectors).Each(func(_ int, s *goquery.Selection) {
		s.AfterHtml("\n")
	})
	lines := strings.Split(doc.Text(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n"), nil
}
