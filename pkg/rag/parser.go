package rag

import (
	"regexp"
	"strings"

	"github.com/xhad/courseqa/internal/models"
)

const (
	ParseErrorMessage   = "Error parsing the response from the language model."
	defaultCitationText = "Source reference"
)

// Headers that open the citation section, in the order they are tried.
var sourceHeaders = []string{"Sources:", "Source:", "References:", "Reference:"}

// Matcher finds one value in a single citation line.
type Matcher interface {
	Name() string
	Match(line string) (string, bool)
}

type regexMatcher struct {
	name string
	re   *regexp.Regexp
	trim string // trailing characters cut from the capture
}

func (m regexMatcher) Name() string { return m.name }

// Match returns the first non-empty capture group, trimmed.
func (m regexMatcher) Match(line string) (string, bool) {
	groups := m.re.FindStringSubmatch(line)
	for _, g := range groups[min(1, len(groups)):] {
		g = strings.TrimSpace(g)
		if m.trim != "" {
			g = strings.TrimRight(g, m.trim)
		}
		if g != "" {
			return g, true
		}
	}
	return "", false
}

var (
	URLMatchers = []Matcher{
		regexMatcher{name: "labelled-bracketed-url", re: regexp.MustCompile(`(?i)URL:\s*\[(.*?)\]`)},
		regexMatcher{name: "bracketed-url", re: regexp.MustCompile(`\[(http[^\]]+)\]`)},
		regexMatcher{name: "labelled-url", re: regexp.MustCompile(`(?i)URL:\s*(http\S+)`), trim: ",;"},
		regexMatcher{name: "bare-url", re: regexp.MustCompile(`(?i)(http\S+)`), trim: ",;"},
	}
	TextMatchers = []Matcher{
		regexMatcher{name: "labelled-bracketed-text", re: regexp.MustCompile(`(?i)Text:\s*\[(.*?)\]`)},
		regexMatcher{name: "labelled-quoted-text", re: regexp.MustCompile(`(?i)Text:\s*"(.*?)"`)},
		regexMatcher{name: "quoted-text", re: regexp.MustCompile(`"(.*?)"|“(.*?)”`)},
	}
)

var (
	enumerationPrefix = regexp.MustCompile(`^\d+\.\s*`)
	bulletPrefix      = regexp.MustCompile(`^-\s*`)
)

// Parser splits model output into an answer and its citations.
type Parser struct {
	URLs  []Matcher
	Texts []Matcher
}

var DefaultParser = Parser{URLs: URLMatchers, Texts: TextMatchers}

// Parse uses DefaultParser.
func Parse(raw string) models.ParsedAnswer {
	return DefaultParser.Parse(raw)
}

// Parse never fails. Without a recognised header the whole text is the answer
// and there are no links; an internal fault yields ParseErrorMessage.
func (p Parser) Parse(raw string) (out models.ParsedAnswer) {
	defer func() {
		if r := recover(); r != nil {
			out = models.NewParsedAnswer(ParseErrorMessage, nil)
		}
	}()

	answer, sources, found := splitSources(raw)
	if !found {
		return models.NewParsedAnswer(strings.TrimSpace(raw), nil)
	}

	var links []models.Citation
	for _, line := range strings.Split(strings.TrimSpace(sources), "\n") {
		if c, ok := p.parseLine(line); ok {
			links = append(links, c)
		}
	}
	return models.NewParsedAnswer(strings.TrimSpace(answer), links)
}

func (p Parser) parseLine(line string) (models.Citation, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return models.Citation{}, false
	}
	line = enumerationPrefix.ReplaceAllString(line, "")
	line = bulletPrefix.ReplaceAllString(line, "")

	url, ok := firstMatch(p.URLs, line)
	if !ok || !strings.HasPrefix(url, "http") {
		return models.Citation{}, false
	}
	text, ok := firstMatch(p.Texts, line)
	if !ok {
		text = defaultCitationText
	}
	return models.Citation{URL: url, Text: text}, true
}

func firstMatch(matchers []Matcher, line string) (string, bool) {
	for _, m := range matchers {
		if v, ok := m.Match(line); ok {
			return v, true
		}
	}
	return "", false
}

func splitSources(raw string) (before, after string, found bool) {
	for _, h := range sourceHeaders {
		if before, after, found = strings.Cut(raw, h); found {
			return before, after, true
		}
	}
	return raw, "", false
}
