package rag

import (
	"sort"

	"github.com/xhad/courseqa/internal/models"
)

type AggregateOptions struct {
	MaxChunks int // N
	PerGroup  int // G
}

var DefaultAggregateOptions = AggregateOptions{MaxChunks: 10, PerGroup: 3}

// Aggregate keeps at most opts.PerGroup chunks per source document and at most
// opts.MaxChunks overall, best score first. Equal scores keep input order.
func Aggregate(chunks []models.Chunk, opts AggregateOptions) []models.Chunk {
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = DefaultAggregateOptions.MaxChunks
	}
	if opts.PerGroup <= 0 {
		opts.PerGroup = DefaultAggregateOptions.PerGroup
	}

	var order []string
	groups := make(map[string][]models.Chunk)
	for _, c := range chunks {
		key := c.GroupKey()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], c)
	}

	out := make([]models.Chunk, 0, len(chunks))
	for _, key := range order {
		group := groups[key]
		sortByScore(group)
		if len(group) > opts.PerGroup {
			group = group[:opts.PerGroup]
		}
		out = append(out, group...)
	}

	sortByScore(out)
	if len(out) > opts.MaxChunks {
		out = out[:opts.MaxChunks]
	}
	return out
}

func sortByScore(chunks []models.Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
}
