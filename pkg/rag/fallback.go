package rag

import "github.com/xhad/courseqa/internal/models"

const fallbackTextRunes = 100

// FallbackLinks cites every distinct URL among chunks, in the order given.
func FallbackLinks(chunks []models.Chunk) []models.Citation {
	seen := make(map[string]bool)
	links := []models.Citation{}
	for _, c := range chunks {
		url := c.LinkURL()
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		links = append(links, models.Citation{
			URL:  url,
			Text: truncateRunes(c.Text, fallbackTextRunes) + "...",
		})
	}
	return links
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
