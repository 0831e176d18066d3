package models

import "strconv"

// Document is a source document before it is split into windows for the index.
// Metadata becomes the point payload, so keys must match what the query side reads
// (source, post_id, topic_id, url, filename, path, original_url).
type Document struct {
	ID       string
	URL      string
	Title    string
	Content  string
	Metadata map[string]interface{}
}

type ProcessedDocument struct {
	Document
	Prefix string
	Chunks []string
}

// ChunkID is the composed key a window is stored under, e.g. "discourse_42_0".
func (d ProcessedDocument) ChunkID(index int) string {
	return d.Prefix + "_" + d.ID + "_" + strconv.Itoa(index)
}

// Payload is the stored payload for window index: the document metadata plus
// chunk_index and text.
func (d ProcessedDocument) Payload(index int) map[string]interface{} {
	p := make(map[string]interface{}, len(d.Metadata)+2)
	for k, v := range d.Metadata {
		p[k] = v
	}
	p["chunk_index"] = index
	p["text"] = d.Chunks[index]
	return p
}
