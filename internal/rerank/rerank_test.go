package rerank

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memory-core/internal/config"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newReranker() *Reranker {
	return NewReranker(config.DefaultConfig().Rerank)
}

func ptr(f float64) *float64 { return &f }

func TestRerankEmptyCandidates(t *testing.T) {
	results := newReranker().Rerank(nil, GraphMetrics{}, nil, testNow)
	assert.Empty(t, results)
}

func TestSemanticDeltaWithDefaultWeights(t *testing.T) {
	// Seed scenario: A (semantic 0.9) vs B (semantic 0.5), everything else
	// equal, default weights: A leads by exactly 0.30*(0.9-0.5) = 0.12.
	r := newReranker()
	accessed := testNow.AddDate(0, 0, -10)
	created := testNow.AddDate(0, 0, -30)
	candidates := []Candidate{
		{ID: "a", SemanticScore: ptr(0.9), BM25Score: 2, LastAccessed: accessed, CreatedAt: created, AccessCount: 3, InboundEdgeCount: 4},
		{ID: "b", SemanticScore: ptr(0.5), BM25Score: 2, LastAccessed: accessed, CreatedAt: created, AccessCount: 3, InboundEdgeCount: 4},
	}
	weights := config.DefaultConfig().Rerank.DefaultWeights
	results := r.Rerank(candidates, GraphMetrics{AvgInboundEdges: 4}, &weights, testNow)

	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 0.12, results[0].Score-results[1].Score, 1e-9)
}

func TestKeywordNormalization(t *testing.T) {
	r := newReranker()

	t.Run("normalized against corpus max", func(t *testing.T) {
		candidates := []Candidate{
			{ID: "a", BM25Score: 8},
			{ID: "b", BM25Score: 4},
			{ID: "c", BM25Score: 0},
		}
		results := r.Rerank(candidates, GraphMetrics{}, nil, testNow)
		byID := indexByID(results)
		assert.Equal(t, 1.0, byID["a"].Signals.Keyword)
		assert.Equal(t, 0.5, byID["b"].Signals.Keyword)
		assert.Equal(t, 0.0, byID["c"].Signals.Keyword)
		for _, res := range results {
			assert.LessOrEqual(t, res.Signals.Keyword, 1.0)
		}
	})

	t.Run("all-zero set gets 0.5", func(t *testing.T) {
		candidates := []Candidate{{ID: "a"}, {ID: "b"}}
		results := r.Rerank(candidates, GraphMetrics{}, nil, testNow)
		for _, res := range results {
			assert.Equal(t, 0.5, res.Signals.Keyword)
		}
	})

	t.Run("single candidate gets 1.0", func(t *testing.T) {
		results := r.Rerank([]Candidate{{ID: "only"}}, GraphMetrics{}, nil, testNow)
		require.Len(t, results, 1)
		assert.Equal(t, 1.0, results[0].Signals.Keyword)
	})
}

func TestRecencySignal(t *testing.T) {
	r := newReranker()

	fresh := []Candidate{{ID: "now", LastAccessed: testNow}}
	results := r.Rerank(fresh, GraphMetrics{}, nil, testNow)
	assert.InDelta(t, 1.0, results[0].Signals.Recency, 1e-9)

	month := []Candidate{{ID: "old", LastAccessed: testNow.AddDate(0, 0, -30)}}
	results = r.Rerank(month, GraphMetrics{}, nil, testNow)
	assert.InDelta(t, math.Exp(-1), results[0].Signals.Recency, 1e-9)

	never := []Candidate{{ID: "never"}}
	results = r.Rerank(never, GraphMetrics{}, nil, testNow)
	assert.Equal(t, 0.0, results[0].Signals.Recency)
}

func TestAuthoritySignal(t *testing.T) {
	assert.Equal(t, 0.5, authoritySignal(3, 0), "zero average yields neutral authority")
	assert.InDelta(t, 0.5, authoritySignal(4, 4), 1e-9, "average node sits at 0.5")
	assert.Equal(t, 1.0, authoritySignal(40, 4), "capped at 1.0")
	assert.InDelta(t, 0.25, authoritySignal(2, 4), 1e-9)
}

func TestAffinitySignal(t *testing.T) {
	r := newReranker()

	t.Run("product of frequency and recency", func(t *testing.T) {
		c := []Candidate{{
			ID:           "a",
			AccessCount:  10,
			LastAccessed: testNow,
			CreatedAt:    testNow.AddDate(0, 0, -60),
		}}
		results := r.Rerank(c, GraphMetrics{}, nil, testNow)
		assert.InDelta(t, math.Tanh(1.0), results[0].Signals.Affinity, 1e-9)
	})

	t.Run("new content boost", func(t *testing.T) {
		c := []Candidate{{
			ID:        "new",
			CreatedAt: testNow.AddDate(0, 0, -2),
		}}
		results := r.Rerank(c, GraphMetrics{}, nil, testNow)
		assert.InDelta(t, 0.2, results[0].Signals.Affinity, 1e-9, "zero accesses, boost only")
	})

	t.Run("capped at 1.0", func(t *testing.T) {
		c := []Candidate{{
			ID:           "hot",
			AccessCount:  1000,
			LastAccessed: testNow,
			CreatedAt:    testNow.AddDate(0, 0, -1),
		}}
		results := r.Rerank(c, GraphMetrics{}, nil, testNow)
		assert.LessOrEqual(t, results[0].Signals.Affinity, 1.0)
	})
}

func TestProfileSelection(t *testing.T) {
	r := newReranker()

	tests := []struct {
		subtype string
		want    string
	}{
		{"signal_deploy", config.ProfileSignals},
		{"metric_cpu", config.ProfileSignals},
		{"procedure_release", config.ProfileProcedural},
		{"meeting_standup", config.ProfileEpisodic},
		{"fact_go", config.ProfileKnowledge},
		{"totally_unknown", config.ProfileKnowledge},
	}
	for _, tt := range tests {
		t.Run(tt.subtype, func(t *testing.T) {
			profile, weights := r.ProfileFor(tt.subtype)
			assert.Equal(t, tt.want, profile)
			assert.InDelta(t, 1.0, weights.Sum(), 1e-3)
		})
	}
}

func TestSignalsProfileFavorsRecency(t *testing.T) {
	r := newReranker()
	accessed := testNow.AddDate(0, 0, -1)
	candidates := []Candidate{
		{ID: "sig", Subtype: "signal_alerts", SemanticScore: ptr(0.2), LastAccessed: accessed},
		{ID: "kno", Subtype: "fact_storage", SemanticScore: ptr(0.2), LastAccessed: accessed},
	}
	results := r.Rerank(candidates, GraphMetrics{}, nil, testNow)
	byID := indexByID(results)
	assert.Greater(t, byID["sig"].Score, byID["kno"].Score,
		"recency-heavy profile outweighs knowledge profile for fresh low-semantic content")
	assert.Equal(t, "recency", byID["sig"].TopSignal)
}

func TestStableOrderOnTies(t *testing.T) {
	r := newReranker()
	candidates := []Candidate{
		{ID: "first", BM25Score: 1},
		{ID: "second", BM25Score: 1},
		{ID: "third", BM25Score: 1},
	}
	results := r.Rerank(candidates, GraphMetrics{}, nil, testNow)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"first", "second", "third"},
		[]string{results[0].ID, results[1].ID, results[2].ID})
}

func TestTopSignalAttribution(t *testing.T) {
	r := newReranker()
	candidates := []Candidate{
		{ID: "sem", SemanticScore: ptr(1.0)},
		{ID: "other", SemanticScore: ptr(0.1)},
	}
	results := r.Rerank(candidates, GraphMetrics{}, nil, testNow)
	byID := indexByID(results)
	assert.Equal(t, "semantic", byID["sem"].TopSignal)
}

func indexByID(results []Result) map[string]Result {
	out := make(map[string]Result, len(results))
	for _, r := range results {
		out[r.ID] = r
	}
	return out
}
