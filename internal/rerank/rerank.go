// Package rerank implements the six-signal retrieval reranker: semantic,
// keyword (BM25), graph, recency, authority, and affinity signals combined
// through per-section weight profiles. All functions are pure.
package rerank

import (
	"math"
	"sort"
	"strings"
	"time"

	"memory-core/internal/config"
)

// Candidate is a retrieval candidate with its raw per-signal inputs.
type Candidate struct {
	ID               string     `json:"id"`
	SemanticScore    *float64   `json:"semantic_score,omitempty"` // 0..1
	BM25Score        float64    `json:"bm25_score"`               // >= 0
	GraphScore       float64    `json:"graph_score"`              // 0..1
	LastAccessed     time.Time  `json:"last_accessed"`
	CreatedAt        time.Time  `json:"created_at"`
	AccessCount      int        `json:"access_count"`
	InboundEdgeCount int        `json:"inbound_edge_count"`
	Subtype          string     `json:"subtype,omitempty"`
}

// GraphMetrics carries global graph statistics the reranker normalizes
// against.
type GraphMetrics struct {
	AvgInboundEdges float64 `json:"avg_inbound_edges"`
}

// Signals is the per-signal breakdown of a result.
type Signals struct {
	Semantic  float64 `json:"semantic"`
	Keyword   float64 `json:"keyword"`
	Graph     float64 `json:"graph"`
	Recency   float64 `json:"recency"`
	Authority float64 `json:"authority"`
	Affinity  float64 `json:"affinity"`
}

// Result is one reranked candidate with its score and attribution.
type Result struct {
	ID        string  `json:"id"`
	Score     float64 `json:"score"`
	Signals   Signals `json:"signals"`
	TopSignal string  `json:"top_signal"`
	Profile   string  `json:"profile"`
}

// Reranker scores and orders retrieval candidates.
type Reranker struct {
	cfg config.RerankConfig
}

// NewReranker creates a reranker with the given configuration.
func NewReranker(cfg config.RerankConfig) *Reranker {
	return &Reranker{cfg: cfg}
}

// ProfileFor selects the weight profile for a subtype by prefix mapping.
// Unknown subtypes fall back to KNOWLEDGE.
func (r *Reranker) ProfileFor(subtype string) (string, config.SignalWeights) {
	lowered := strings.ToLower(subtype)
	for prefix, profile := range r.cfg.SubtypePrefixes {
		if strings.HasPrefix(lowered, prefix) {
			if weights, ok := r.cfg.Profiles[profile]; ok {
				return profile, weights
			}
		}
	}
	if weights, ok := r.cfg.Profiles[config.ProfileKnowledge]; ok {
		return config.ProfileKnowledge, weights
	}
	return "", r.cfg.DefaultWeights
}

// Rerank scores all candidates and returns them sorted by score descending.
// Ties keep input order. An explicit weight override applies to every
// candidate in place of profile selection. Empty input yields an empty
// result set.
func (r *Reranker) Rerank(candidates []Candidate, metrics GraphMetrics, override *config.SignalWeights, now time.Time) []Result {
	if len(candidates) == 0 {
		return []Result{}
	}

	// BM25 normalization is corpus-wide: max across the full candidate set,
	// never per section.
	maxBM25 := 0.0
	for i := range candidates {
		if candidates[i].BM25Score > maxBM25 {
			maxBM25 = candidates[i].BM25Score
		}
	}
	single := len(candidates) == 1

	results := make([]Result, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		signals := Signals{
			Semantic:  semanticSignal(c),
			Keyword:   keywordSignal(c.BM25Score, maxBM25, single),
			Graph:     c.GraphScore,
			Recency:   r.recencySignal(c.LastAccessed, now),
			Authority: authoritySignal(c.InboundEdgeCount, metrics.AvgInboundEdges),
		}
		signals.Affinity = r.affinitySignal(c, signals.Recency, now)

		profile := ""
		weights := r.cfg.DefaultWeights
		if override != nil {
			weights = *override
		} else if c.Subtype != "" {
			profile, weights = r.ProfileFor(c.Subtype)
		}

		score, top := combine(signals, weights)
		results[i] = Result{
			ID:        c.ID,
			Score:     score,
			Signals:   signals,
			TopSignal: top,
			Profile:   profile,
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

func semanticSignal(c *Candidate) float64 {
	if c.SemanticScore == nil {
		return 0
	}
	return *c.SemanticScore
}

func keywordSignal(bm25, maxBM25 float64, single bool) float64 {
	if single {
		return 1.0
	}
	if maxBM25 == 0 {
		return 0.5
	}
	return bm25 / maxBM25
}

func (r *Reranker) recencySignal(lastAccessed time.Time, now time.Time) float64 {
	if lastAccessed.IsZero() {
		return 0
	}
	days := now.Sub(lastAccessed).Hours() / 24.0
	if days < 0 {
		days = 0
	}
	return math.Exp(-days / r.cfg.RecencyHalfLifeDays)
}

func (r *Reranker) affinitySignal(c *Candidate, recency float64, now time.Time) float64 {
	frequency := math.Tanh(float64(c.AccessCount) / r.cfg.AffinityAccessNorm)
	affinity := frequency * recency
	if !c.CreatedAt.IsZero() {
		ageDays := now.Sub(c.CreatedAt).Hours() / 24.0
		if ageDays >= 0 && ageDays < r.cfg.NewContentDays {
			affinity += r.cfg.NewContentBoost
		}
	}
	return math.Min(affinity, 1.0)
}

// signalNames is the fixed attribution order used to break contribution ties.
var signalNames = []string{"semantic", "keyword", "graph", "recency", "authority", "affinity"}

func combine(s Signals, w config.SignalWeights) (float64, string) {
	contributions := [6]float64{
		w.Semantic * s.Semantic,
		w.Keyword * s.Keyword,
		w.Graph * s.Graph,
		w.Recency * s.Recency,
		w.Authority * s.Authority,
		w.Affinity * s.Affinity,
	}
	score := 0.0
	top := 0
	for i, c := range contributions {
		score += c
		if c > contributions[top] {
			top = i
		}
	}
	return score, signalNames[top]
}

func authoritySignal(inbound int, avg float64) float64 {
	if avg == 0 {
		return 0.5
	}
	return math.Min((float64(inbound)/avg)/2.0, 1.0)
}
