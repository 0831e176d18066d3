package models

import (
	"fmt"
	"strings"
)

type Source string

const (
	SourceDiscourse      Source = "discourse"
	SourceCourseMaterial Source = "course_material"
	SourceGeneric        Source = "generic"
)

// ParseSource maps a payload "source" value onto the known kinds. Anything
// unrecognised is generic.
func ParseSource(v string) Source {
	switch Source(strings.TrimSpace(v)) {
	case SourceDiscourse:
		return SourceDiscourse
	case SourceCourseMaterial:
		return SourceCourseMaterial
	default:
		return SourceGeneric
	}
}

// Chunk is a retrieved unit of indexed text. Score is the similarity computed by
// the index at query time; a chunk without one has Score 0.
type Chunk struct {
	ID       string
	Text     string
	Score    float64
	Source   Source
	Metadata map[string]any
}

// Field returns a metadata value rendered as a string, or "" if absent.
func (c Chunk) Field(key string) string {
	v, ok := c.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; ids are integral.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}

func (c Chunk) firstField(keys ...string) string {
	for _, k := range keys {
		if v := c.Field(k); v != "" {
			return v
		}
	}
	return ""
}

// URL is the address used when presenting the chunk as context: url, then original_url.
func (c Chunk) URL() string {
	return c.firstField("url", "original_url")
}

// LinkURL is the address used for fallback citations: url, link, then original_url.
func (c Chunk) LinkURL() string {
	return c.firstField("url", "link", "original_url")
}

// GroupKey identifies the logical document a chunk belongs to. Chunks of
// unknown source without any URL all share the "generic_" key.
func (c Chunk) GroupKey() string {
	switch c.Source {
	case SourceDiscourse:
		return "discourse_" + c.Field("post_id")
	case SourceCourseMaterial:
		return "course_" + c.Field("filename")
	default:
		return "generic_" + c.URL()
	}
}
