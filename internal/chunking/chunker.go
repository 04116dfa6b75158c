// Package chunking implements document chunking for the memory engine: token
// estimation, chunk sizing, parent/chunk relationship factories, markdown
// block extraction, and chunk retrieval aggregation.
package chunking

import (
	"math"
	"regexp"
	"strings"

	"memory-core/internal/config"
	"memory-core/pkg/types"
)

// Chunker plans and materializes document chunks.
type Chunker struct {
	cfg config.ChunkingConfig
}

// NewChunker creates a chunker with the given configuration.
func NewChunker(cfg config.ChunkingConfig) *Chunker {
	return &Chunker{cfg: cfg}
}

// ShouldChunk reports whether a document of the given token count gets
// chunked.
func (c *Chunker) ShouldChunk(tokenCount int) bool {
	return tokenCount > c.cfg.TriggerTokens
}

// ChunkCount computes how many chunks a document of the given token count
// splits into: ceil(tokens / midpoint(target_min, target_max)).
func (c *Chunker) ChunkCount(tokenCount int) int {
	if tokenCount <= 0 {
		return 0
	}
	mid := float64(c.cfg.TargetMinTokens+c.cfg.TargetMaxTokens) / 2.0
	return int(math.Ceil(float64(tokenCount) / mid))
}

// NewChunkFields builds the sibling linkage for the i-th of total chunks.
// The first chunk has no previous id, the last no next id.
func (c *Chunker) NewChunkFields(parentID string, index, total, tokenCount int) types.ChunkFields {
	fields := types.ChunkFields{
		ParentID:   parentID,
		ChunkIndex: index,
		TokenCount: tokenCount,
	}
	if index > 0 {
		fields.PreviousChunkID = types.ChunkNodeID(parentID, index-1)
		fields.OverlapTokens = c.cfg.OverlapTokens
	}
	if index < total-1 {
		fields.NextChunkID = types.ChunkNodeID(parentID, index+1)
	}
	return fields
}

// NewParentFields builds the parent-side bookkeeping for a chunked document.
func (c *Chunker) NewParentFields(childIDs []string, totalTokens int, documentType string) types.ParentFields {
	return types.ParentFields{
		IsParent:     true,
		ChildIDs:     append([]string(nil), childIDs...),
		TotalTokens:  totalTokens,
		TotalChunks:  len(childIDs),
		DocumentType: documentType,
	}
}

// ChunkPlan is one planned chunk of a document. Text carries the overlap
// prefix from the previous chunk; EmbedText excludes the overlap so the same
// content is never embedded twice.
type ChunkPlan struct {
	Index      int    `json:"index"`
	Text       string `json:"text"`
	EmbedText  string `json:"embed_text"`
	TokenCount int    `json:"token_count"`
}

var sentenceSplitRe = regexp.MustCompile(`(?s)(.*?[.!?])(?:\s+|$)`)

// splitSentences breaks text into sentence-ish pieces, keeping terminators.
// Trailing text without a terminator becomes a final piece.
func splitSentences(text string) []string {
	matches := sentenceSplitRe.FindAllStringSubmatchIndex(text, -1)
	pieces := make([]string, 0, len(matches)+1)
	consumed := 0
	for _, m := range matches {
		pieces = append(pieces, strings.TrimSpace(text[m[2]:m[3]]))
		consumed = m[1]
	}
	if rest := strings.TrimSpace(text[consumed:]); rest != "" {
		pieces = append(pieces, rest)
	}
	return pieces
}

// Chunk splits document text into the planned number of chunks on sentence
// boundaries, adding the configured token overlap between neighbors.
// Documents at or below the trigger return a single chunk covering the whole
// text.
func (c *Chunker) Chunk(text string) []ChunkPlan {
	total := EstimateTokensRatio(text, c.cfg.CharsPerToken)
	if !c.ShouldChunk(total) {
		if text == "" {
			return nil
		}
		return []ChunkPlan{{Index: 0, Text: text, EmbedText: text, TokenCount: total}}
	}

	count := c.ChunkCount(total)
	target := int(math.Ceil(float64(total) / float64(count)))
	sentences := splitSentences(text)

	// Greedy fill: sentences accumulate until a chunk reaches its target,
	// respecting the minimum sentence count.
	var regions [][]string
	var current []string
	currentTokens := 0
	for _, sentence := range sentences {
		current = append(current, sentence)
		currentTokens += EstimateTokensRatio(sentence, c.cfg.CharsPerToken)
		if currentTokens >= target && len(current) >= c.cfg.MinSentences && len(regions) < count-1 {
			regions = append(regions, current)
			current = nil
			currentTokens = 0
		}
	}
	if len(current) > 0 {
		regions = append(regions, current)
	}

	plans := make([]ChunkPlan, len(regions))
	for i, region := range regions {
		body := strings.Join(region, " ")
		embed := c.capEmbedText(body)
		text := body
		if i > 0 {
			overlap := tailTokens(regions[i-1], c.cfg.OverlapTokens, c.cfg.CharsPerToken)
			if overlap != "" {
				text = overlap + " " + body
			}
		}
		plans[i] = ChunkPlan{
			Index:      i,
			Text:       text,
			EmbedText:  embed,
			TokenCount: EstimateTokensRatio(text, c.cfg.CharsPerToken),
		}
	}
	return plans
}

// capEmbedText bounds the embedded region to the per-chunk embedding limit.
func (c *Chunker) capEmbedText(text string) string {
	if EstimateTokensRatio(text, c.cfg.CharsPerToken) <= c.cfg.EmbeddingMaxTokens {
		return text
	}
	limit := int(float64(c.cfg.EmbeddingMaxTokens) * c.cfg.CharsPerToken)
	runes := []rune(text)
	if limit >= len(runes) {
		return text
	}
	return string(runes[:limit])
}

// tailTokens returns the trailing sentences of a region up to the overlap
// token budget.
func tailTokens(region []string, overlapTokens int, charsPerToken float64) string {
	var tail []string
	tokens := 0
	for i := len(region) - 1; i >= 0; i-- {
		t := EstimateTokensRatio(region[i], charsPerToken)
		if tokens+t > overlapTokens && len(tail) > 0 {
			break
		}
		tail = append([]string{region[i]}, tail...)
		tokens += t
		if tokens >= overlapTokens {
			break
		}
	}
	return strings.Join(tail, " ")
}
