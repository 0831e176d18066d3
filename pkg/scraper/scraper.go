package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/xhad/courseqa/internal/models"
	"github.com/xhad/courseqa/pkg/logger"
)

type ScraperConfig struct {
	BaseURL           string
	MaxDepth          int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	OnProgress        func(url string)
	Logger            *logger.Logger
}

// Scraper crawls one site and returns each page as markdown. Plain HTML pages
// are converted; hash-routed pages ("/#/route", as served by docsify) are read
// from the markdown file the route points at.
type Scraper struct {
	config   ScraperConfig
	client   *http.Client
	visited  map[string]bool
	limiter  *rate.Limiter
	baseHost string
	log      *logger.Logger
}

func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 3
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", ".md", "/"}
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, err
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", config.BaseURL)
	}

	return &Scraper{
		config:   config,
		client:   &http.Client{Timeout: config.Timeout},
		visited:  make(map[string]bool),
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
		log:      config.Logger,
	}, nil
}

func (s *Scraper) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	if parsedURL.Host != s.baseHost {
		return false
	}

	target := strings.ToLower(parsedURL.Path)
	if route, ok := hashRoute(parsedURL); ok {
		target = strings.ToLower(route)
	}
	validExt := false
	for _, allowedExt := range s.config.AllowedExtensions {
		if strings.HasSuffix(target, allowedExt) {
			validExt = true
			break
		}
	}
	if !validExt && path.Ext(target) != "" {
		return false
	}

	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}
	return true
}

// Scrape crawls from startURL up to MaxDepth links away.
func (s *Scraper) Scrape(ctx context.Context, startURL string) ([]models.Document, error) {
	var documents []models.Document
	err := s.scrapeRecursive(ctx, startURL, 0, &documents)
	return documents, err
}

func (s *Scraper) scrapeRecursive(ctx context.Context, urlStr string, depth int, documents *[]models.Document) error {
	urlStr = normalizeURL(urlStr)
	if depth > s.config.MaxDepth || s.visited[urlStr] {
		return nil
	}
	if !s.shouldProcessURL(urlStr) {
		return nil
	}

	s.visited[urlStr] = true
	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	doc, links, err := s.fetchPage(ctx, urlStr)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if depth == 0 {
			return err
		}
		s.log.Warn("failed to scrape page", "url", urlStr, "error", err)
		return nil
	}
	doc.Metadata["depth"] = depth
	if strings.TrimSpace(doc.Content) != "" {
		*documents = append(*documents, doc)
	}

	for _, link := range links {
		if err := s.scrapeRecursive(ctx, link, depth+1, documents); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scraper) fetchPage(ctx context.Context, pageURL string) (models.Document, []string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return models.Document{}, nil, err
	}
	if route, ok := hashRoute(parsed); ok {
		return s.fetchMarkdownRoute(ctx, parsed, route)
	}

	body, contentType, err := s.get(ctx, pageURL)
	if err != nil {
		return models.Document{}, nil, err
	}
	defer body.Close()

	if strings.HasSuffix(strings.ToLower(parsed.Path), ".md") {
		raw, err := io.ReadAll(body)
		if err != nil {
			return models.Document{}, nil, err
		}
		md := string(raw)
		return newDocument(pageURL, markdownTitle(md), md, contentType), markdownLinks(parsed, "", md), nil
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return models.Document{}, nil, err
	}
	title := strings.TrimSpace(strings.Split(doc.Find("title").First().Text(), " - ")[0])
	content := s.extractMainContent(doc)

	var links []string
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			s.log.Debug("skipping unparsable link", "href", href, "error", err)
			return
		}
		links = append(links, parsed.ResolveReference(ref).String())
	})
	return newDocument(pageURL, title, content, contentType), links, nil
}

// fetchMarkdownRoute reads the markdown behind a docsify route: "/" is
// README.md, "/dir/" is dir/README.md, "/page" is page.md.
func (s *Scraper) fetchMarkdownRoute(ctx context.Context, page *url.URL, route string) (models.Document, []string, error) {
	file := strings.TrimPrefix(route, "/")
	switch {
	case file == "" || strings.HasSuffix(file, "/"):
		file += "README.md"
	case !strings.HasSuffix(strings.ToLower(file), ".md"):
		file += ".md"
	}
	base := *page
	base.Fragment = ""
	base.RawQuery = ""
	mdURL := base.ResolveReference(&url.URL{Path: file})

	body, contentType, err := s.get(ctx, mdURL.String())
	if err != nil {
		return models.Document{}, nil, err
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		return models.Document{}, nil, err
	}
	md := string(raw)
	return newDocument(page.String(), markdownTitle(md), md, contentType), markdownLinks(page, route, md), nil
}

func (s *Scraper) get(ctx context.Context, target string) (io.ReadCloser, string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, target)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

func (s *Scraper) extractMainContent(doc *goquery.Document) string {
	selectors := []string{
		"article.markdown-section#main",
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}
	for _, selector := range selectors {
		if selected := doc.Find(selector).First(); selected.Length() > 0 {
			return cleanContent(ToMarkdown(selected))
		}
	}
	return cleanContent(ToMarkdown(doc.Find("body")))
}

func cleanContent(content string) string {
	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}
	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}
	return strings.TrimSpace(content)
}

func newDocument(pageURL, title, content, contentType string) models.Document {
	return models.Document{
		ID:      pageURL,
		URL:     pageURL,
		Title:   title,
		Content: content,
		Metadata: map[string]interface{}{
			"original_url":  pageURL,
			"content_type":  contentType,
			"downloaded_at": time.Now().Format(time.RFC3339),
		},
	}
}

// hashRoute returns the route of a "/#/route" URL.
func hashRoute(u *url.URL) (string, bool) {
	if !strings.HasPrefix(u.Fragment, "/") {
		return "", false
	}
	return u.Fragment, true
}

// normalizeURL drops in-page anchors but keeps hash routes.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if _, ok := hashRoute(u); !ok {
		u.Fragment = ""
	}
	return u.String()
}

var (
	markdownLinkPattern    = regexp.MustCompile(`\]\(\s*([^)\s]+)`)
	markdownHeadingPattern = regexp.MustCompile(`(?m)^#\s+(.+)$`)
)

func markdownTitle(md string) string {
	if m := markdownHeadingPattern.FindStringSubmatch(md); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// markdownLinks resolves link targets in a markdown page. Inside a hash-routed
// page, relative targets are routes relative to the current one.
func markdownLinks(page *url.URL, route, md string) []string {
	var links []string
	for _, m := range markdownLinkPattern.FindAllStringSubmatch(md, -1) {
		target := m[1]
		ref, err := url.Parse(target)
		if err != nil {
			continue
		}
		if ref.IsAbs() || route == "" {
			links = append(links, page.ResolveReference(ref).String())
			continue
		}
		if strings.HasPrefix(target, "#/") {
			u := *page
			u.Fragment = strings.TrimPrefix(target, "#")
			links = append(links, u.String())
			continue
		}
		if strings.HasPrefix(target, "#") {
			continue
		}
		next := ref.Path
		if !strings.HasPrefix(next, "/") {
			dir := route
			if !strings.HasSuffix(dir, "/") {
				dir = path.Dir(dir) + "/"
			}
			next = path.Join(dir, next)
			if strings.HasSuffix(ref.Path, "/") {
				next += "/"
			}
		}
		next = strings.TrimSuffix(next, ".md")
		u := *page
		u.Fragment = next
		links = append(links, u.String())
	}
	return links
}
