package chunking

import (
	"sort"

	"memory-core/internal/config"
	"memory-core/pkg/types"
)

// AggregationAction is the roll-up decision for chunk retrieval results.
type AggregationAction string

const (
	// AggregateNone returns matched chunks as-is.
	AggregateNone AggregationAction = "none"
	// AggregateMerge merges same-document chunks and adds the parent summary.
	AggregateMerge AggregationAction = "merge"
	// AggregateSummarize substitutes the parent summary plus highlights.
	AggregateSummarize AggregationAction = "summarize"
)

// ChunkMatch is a retrieved chunk hit.
type ChunkMatch struct {
	ChunkID    string  `json:"chunk_id"`
	ParentID   string  `json:"parent_id"`
	ChunkIndex int     `json:"chunk_index"`
	TokenCount int     `json:"token_count"`
	Score      float64 `json:"score"`
}

// DocumentAggregation is the per-document roll-up plan.
type DocumentAggregation struct {
	ParentID             string            `json:"parent_id"`
	Action               AggregationAction `json:"action"`
	MatchedChunkIDs      []string          `json:"matched_chunk_ids"`
	ExpandedChunkIDs     []string          `json:"expanded_chunk_ids,omitempty"`
	IncludeParentSummary bool              `json:"include_parent_summary"`
}

// Aggregator plans chunk retrieval roll-ups.
type Aggregator struct {
	cfg config.ChunkingConfig
}

// NewAggregator creates an aggregator with the given configuration.
func NewAggregator(cfg config.ChunkingConfig) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Aggregate groups chunk matches by parent document and decides the roll-up
// action. With expansion enabled, each document with at least one match also
// pulls adjacent chunks (bounded by the expansion token budget) and the
// parent summary.
func (a *Aggregator) Aggregate(matches []ChunkMatch, expansion bool) []DocumentAggregation {
	if len(matches) == 0 {
		return []DocumentAggregation{}
	}

	byParent := make(map[string][]ChunkMatch)
	order := make([]string, 0)
	for _, m := range matches {
		if _, seen := byParent[m.ParentID]; !seen {
			order = append(order, m.ParentID)
		}
		byParent[m.ParentID] = append(byParent[m.ParentID], m)
	}

	out := make([]DocumentAggregation, 0, len(order))
	for _, parentID := range order {
		group := byParent[parentID]
		agg := DocumentAggregation{
			ParentID:        parentID,
			Action:          AggregateNone,
			MatchedChunkIDs: chunkIDs(group),
		}
		switch {
		case len(group) >= a.cfg.SummarizeThreshold:
			agg.Action = AggregateSummarize
			agg.IncludeParentSummary = true
		case len(group) >= a.cfg.MergeThreshold:
			agg.Action = AggregateMerge
			agg.IncludeParentSummary = true
		}
		if expansion {
			agg.ExpandedChunkIDs = a.expandAdjacent(group)
			agg.IncludeParentSummary = true
		}
		out = append(out, agg)
	}
	return out
}

// expandAdjacent collects the +/-1 neighbors of matched chunks, skipping
// chunks already matched, bounded by the expansion token budget. Neighbor
// token counts are assumed comparable to the matched chunk's.
func (a *Aggregator) expandAdjacent(group []ChunkMatch) []string {
	matched := make(map[string]bool, len(group))
	for _, m := range group {
		matched[m.ChunkID] = true
	}

	budget := a.cfg.MaxExpansionTokens
	seen := make(map[string]bool)
	var expanded []string
	add := func(id string, tokens int) {
		if id == "" || matched[id] || seen[id] {
			return
		}
		if tokens > budget {
			return
		}
		budget -= tokens
		seen[id] = true
		expanded = append(expanded, id)
	}

	ordered := append([]ChunkMatch(nil), group...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Score > ordered[j].Score })
	for _, m := range ordered {
		if m.ChunkIndex > 0 {
			add(types.ChunkNodeID(m.ParentID, m.ChunkIndex-1), m.TokenCount)
		}
		add(types.ChunkNodeID(m.ParentID, m.ChunkIndex+1), m.TokenCount)
	}
	return expanded
}

func chunkIDs(group []ChunkMatch) []string {
	ids := make([]string, len(group))
	for i, m := range group {
		ids[i] = m.ChunkID
	}
	return ids
}
