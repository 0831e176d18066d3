package models

import "github.com/xhad/courseqa/pkg/image"

// Query is one independent question, optionally with an image that still has to
// be normalized.
type Query struct {
	Question string
	Image    *image.Input
}

type Citation struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

type ParsedAnswer struct {
	Answer string     `json:"answer"`
	Links  []Citation `json:"links"`
}

// NewParsedAnswer never leaves Links nil so it encodes as [] rather than null.
func NewParsedAnswer(answer string, links []Citation) ParsedAnswer {
	if links == nil {
		links = []Citation{}
	}
	return ParsedAnswer{Answer: answer, Links: links}
}
