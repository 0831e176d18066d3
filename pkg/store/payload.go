package store

import (
	"strings"

	"github.com/google/uuid"

	"github.com/xhad/courseqa/internal/models"
)

// PointID derives the stored id from a composed chunk key such as
// "discourse_42_0". It is uuid5 in the DNS namespace, so re-ingesting the same
// window overwrites the same point.
func PointID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(key)).String()
}

// chunkFromPayload turns a stored payload into a Chunk and attaches the score
// the index computed for this query.
func chunkFromPayload(id string, score float64, payload map[string]any) models.Chunk {
	meta := make(map[string]any, len(payload))
	for k, v := range payload {
		meta[k] = v
	}

	text, _ := meta["text"].(string)
	if text == "" {
		text, _ = meta["content"].(string)
	}
	source, _ := meta["source"].(string)
	meta["score"] = score

	return models.Chunk{
		ID:       strings.TrimSpace(id),
		Text:     text,
		Score:    score,
		Source:   models.ParseSource(source),
		Metadata: meta,
	}
}
