package context

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memory-core/internal/config"
)

func newManager() *Manager {
	return NewManager(config.DefaultConfig().Context)
}

func TestDeriveBudgetKnownModel(t *testing.T) {
	m := newManager()
	b := m.DeriveBudget("claude-sonnet-4")

	assert.Equal(t, "claude-sonnet-4", b.ModelID)
	assert.Equal(t, "anthropic", b.Provider)
	// flexible = 200000 - 3000 - 2000 - 16000 = 179000
	assert.Equal(t, 179000, b.Flexible)
	assert.Equal(t, int(math.Floor(179000*0.70)), b.DefaultRetrieved)
	assert.Equal(t, b.Flexible-b.DefaultRetrieved, b.DefaultHistory)
	assert.Equal(t, 1, b.SchemaVersion)
}

func TestDeriveBudgetUnknownModelFallsBack(t *testing.T) {
	m := newManager()
	b := m.DeriveBudget("mystery-model-9000")
	// Silent fallback to the smallest known budget; observable via model id.
	assert.Equal(t, "gpt-4o-mini", b.ModelID)
	assert.Equal(t, 128000, b.ContextWindow)
	assert.Equal(t, 8000, b.ResponseBuffer)
}

func TestAllocateSeedScenario(t *testing.T) {
	// Seed scenario: claude-sonnet-4, user 2500, retrieved 80000, history 45000.
	m := newManager()
	alloc := m.Allocate(AllocationRequest{
		ModelID:         "claude-sonnet-4",
		UserTokens:      2500,
		RetrievedTokens: 80000,
		HistoryTokens:   45000,
	})

	assert.Equal(t, ActionProceed, alloc.Action)
	assert.Equal(t, 2500, alloc.UserTokens)
	// flexible = 200000 - 3000 - 2500 - 16000 = 178500
	assert.Equal(t, 124950, alloc.RetrievedCapacity)
	assert.Equal(t, 53550, alloc.HistoryCapacity)
	assert.Equal(t, 80000, alloc.RetrievedTokens)
	assert.Equal(t, 45000, alloc.HistoryTokens)
	assert.Equal(t, 1, alloc.SchemaVersion)
}

func TestAllocateActions(t *testing.T) {
	m := newManager()

	t.Run("retrieved overflow prioritizes nodes", func(t *testing.T) {
		alloc := m.Allocate(AllocationRequest{
			ModelID:         "claude-sonnet-4",
			UserTokens:      2500,
			RetrievedTokens: 150000,
			HistoryTokens:   1000,
		})
		assert.Equal(t, ActionPrioritizeNodes, alloc.Action)
		assert.Equal(t, alloc.RetrievedCapacity, alloc.RetrievedTokens, "granted clamps to capacity")
	})

	t.Run("history overflow summarizes", func(t *testing.T) {
		alloc := m.Allocate(AllocationRequest{
			ModelID:         "claude-sonnet-4",
			UserTokens:      2500,
			RetrievedTokens: 100000,
			HistoryTokens:   60000,
		})
		assert.Equal(t, ActionSummarizeHistory, alloc.Action)
	})

	t.Run("retrieved overflow wins over history overflow", func(t *testing.T) {
		alloc := m.Allocate(AllocationRequest{
			ModelID:         "claude-sonnet-4",
			UserTokens:      2500,
			RetrievedTokens: 150000,
			HistoryTokens:   60000,
		})
		assert.Equal(t, ActionPrioritizeNodes, alloc.Action)
	})
}

func TestAllocateSlackShift(t *testing.T) {
	m := newManager()
	// Retrieved usage well under half its allocation: half the slack moves
	// to history.
	alloc := m.Allocate(AllocationRequest{
		ModelID:         "claude-sonnet-4",
		UserTokens:      2500,
		RetrievedTokens: 10000,
		HistoryTokens:   45000,
	})
	// Raw retrieved alloc 124950; slack = (124950-10000)/2 = 57475.
	assert.Equal(t, 124950-57475, alloc.RetrievedCapacity)
	assert.Equal(t, 53550+57475, alloc.HistoryCapacity)
	assert.Equal(t, ActionProceed, alloc.Action)
}

func TestAllocateMinUserFloor(t *testing.T) {
	m := newManager()
	alloc := m.Allocate(AllocationRequest{ModelID: "gpt-4o", UserTokens: 100})
	assert.Equal(t, 2000, alloc.UserTokens)
}

func TestAllocateSumWithinWindow(t *testing.T) {
	m := newManager()
	requests := []AllocationRequest{
		{ModelID: "claude-sonnet-4", UserTokens: 2500, RetrievedTokens: 80000, HistoryTokens: 45000},
		{ModelID: "gpt-4o", UserTokens: 50000, RetrievedTokens: 500000, HistoryTokens: 500000},
		{ModelID: "gpt-4o-mini", UserTokens: 0, RetrievedTokens: 0, HistoryTokens: 0},
		{ModelID: "unknown", UserTokens: 1000, RetrievedTokens: 90000, HistoryTokens: 90000},
	}
	for _, req := range requests {
		alloc := m.Allocate(req)
		window := 0
		for _, model := range config.DefaultConfig().Context.Models {
			if model.ID == alloc.ModelID {
				window = model.ContextWindow
			}
		}
		require.Positive(t, window)
		sum := alloc.UserTokens + alloc.RetrievedTokens + alloc.HistoryTokens
		assert.LessOrEqual(t, sum, window, "model %s", alloc.ModelID)
	}
}

func TestSparseRealloc(t *testing.T) {
	m := newManager()
	assert.True(t, m.IsSparse(500))
	assert.False(t, m.IsSparse(1000))

	original := m.DeriveBudget("gpt-4o")
	boosted := m.SparseRealloc(original)

	assert.Equal(t, 16000, boosted.ResponseBuffer, "12000 + 4000 boost")
	assert.Equal(t, boosted.ContextWindow-boosted.SystemPrompt-boosted.MinUser-boosted.ResponseBuffer, boosted.Flexible)
	assert.Equal(t, int(math.Floor(float64(boosted.Flexible)*boosted.RetrievalRatio)), boosted.DefaultRetrieved)

	// Original budget object unchanged.
	assert.Equal(t, 12000, original.ResponseBuffer)
	assert.Equal(t, 128000-3000-2000-12000, original.Flexible)
}

func TestPriorityScore(t *testing.T) {
	m := newManager()

	t.Run("full factors score 1", func(t *testing.T) {
		score := m.PriorityScore(PriorityFactors{1, 1, 1, 1, 1})
		assert.InDelta(t, 1.0, score, 1e-9)
	})

	t.Run("weighted combination", func(t *testing.T) {
		score := m.PriorityScore(PriorityFactors{RetrievalScore: 1.0})
		assert.InDelta(t, 0.40, score, 1e-9)
	})

	t.Run("out of range clamped", func(t *testing.T) {
		score := m.PriorityScore(PriorityFactors{RetrievalScore: 5, QueryMentioned: -3})
		assert.InDelta(t, 0.40, score, 1e-9)
	})
}

func TestRecencyScore(t *testing.T) {
	m := newManager()
	assert.InDelta(t, 1.0, m.RecencyScore(0), 1e-9)
	// Half-life of 20 days: exp(-20/(20*1.4427)) ~ 0.5.
	assert.InDelta(t, 0.5, m.RecencyScore(20), 0.001)
	assert.InDelta(t, 1.0, m.RecencyScore(-5), 1e-9, "negative clamps to now")
}

func TestConnectivityScore(t *testing.T) {
	m := newManager()
	assert.Equal(t, 0.0, m.ConnectivityScore(0))
	assert.InDelta(t, 0.3, m.ConnectivityScore(1), 1e-9)
	assert.InDelta(t, 0.9, m.ConnectivityScore(3), 1e-9)
	assert.Equal(t, 1.0, m.ConnectivityScore(4))
	assert.Equal(t, 0.0, m.ConnectivityScore(-2), "negative clamps to zero")
}

func TestPackNodes(t *testing.T) {
	candidates := []PackCandidate{
		{ID: "a", Tokens: 400, PriorityScore: 0.9},
		{ID: "b", Tokens: 400, PriorityScore: 0.5},
		{ID: "c", Tokens: 400, PriorityScore: 0.7, WasTruncated: true},
		{ID: "d", Tokens: 400, PriorityScore: 0.3},
	}

	t.Run("greedy by priority", func(t *testing.T) {
		packed := PackNodes(candidates, 1200, nil)
		require.Len(t, packed.Nodes, 3)
		assert.Equal(t, []string{"a", "c", "b"}, packedIDs(packed))
		assert.Equal(t, 1, packed.ExcludedCount)
		assert.Equal(t, 1200, packed.UsedTokens)
		assert.Equal(t, 1, packed.TruncatedCount)
	})

	t.Run("budget invariant", func(t *testing.T) {
		for _, budget := range []int{0, 100, 400, 799, 800, 1600, 10000} {
			packed := PackNodes(candidates, budget, nil)
			assert.LessOrEqual(t, packed.UsedTokens, budget)
			assert.Equal(t, len(candidates), len(packed.Nodes)+packed.ExcludedCount,
				"included plus excluded partitions the input at budget %d", budget)
		}
	})

	t.Run("critical nodes first in input order", func(t *testing.T) {
		packed := PackNodes(candidates, 1200, []string{"d", "b"})
		require.Len(t, packed.Nodes, 3)
		assert.Equal(t, []string{"b", "d", "a"}, packedIDs(packed),
			"critical in input order (b precedes d in candidates), then best non-critical")
	})

	t.Run("critical nodes subject to fit", func(t *testing.T) {
		packed := PackNodes(candidates, 400, []string{"a", "b"})
		assert.Equal(t, []string{"a"}, packedIDs(packed))
		assert.Equal(t, 3, packed.ExcludedCount)
	})

	t.Run("empty candidates", func(t *testing.T) {
		packed := PackNodes(nil, 1000, nil)
		assert.Empty(t, packed.Nodes)
		assert.Zero(t, packed.ExcludedCount)
		assert.Zero(t, packed.UsedTokens)
	})
}

func packedIDs(p PackedContext) []string {
	ids := make([]string, len(p.Nodes))
	for i, n := range p.Nodes {
		ids[i] = n.ID
	}
	return ids
}

func TestAttentionReorder(t *testing.T) {
	t.Run("seed scenario", func(t *testing.T) {
		input := []PackCandidate{
			{ID: "n1", PriorityScore: 0.92},
			{ID: "n2", PriorityScore: 0.85},
			{ID: "n3", PriorityScore: 0.78},
			{ID: "n4", PriorityScore: 0.71},
			{ID: "n5", PriorityScore: 0.65},
		}
		out := AttentionReorder(input)
		assert.Equal(t, []string{"n2", "n3", "n4", "n5", "n1"}, candidateIDs(out))
		assert.Equal(t, "n1", input[0].ID, "input not mutated")
	})

	t.Run("two elements swap", func(t *testing.T) {
		out := AttentionReorder([]PackCandidate{{ID: "x"}, {ID: "y"}})
		assert.Equal(t, []string{"y", "x"}, candidateIDs(out))
	})

	t.Run("single element unchanged", func(t *testing.T) {
		out := AttentionReorder([]PackCandidate{{ID: "solo"}})
		assert.Equal(t, []string{"solo"}, candidateIDs(out))
	})

	t.Run("empty unchanged", func(t *testing.T) {
		assert.Empty(t, AttentionReorder(nil))
	})
}

func candidateIDs(cs []PackCandidate) []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return ids
}

func TestSelectTier(t *testing.T) {
	m := newManager()
	assert.Equal(t, TierUseSummary, m.SelectTier(true, 5000, 500))
	assert.Equal(t, TierSemantic, m.SelectTier(false, 900, 500))
	assert.Equal(t, TierSemantic, m.SelectTier(false, 1000, 500))
	assert.Equal(t, TierExtract, m.SelectTier(false, 1001, 500))
}

func TestSemanticTruncate(t *testing.T) {
	m := newManager()

	t.Run("short input unchanged", func(t *testing.T) {
		assert.Equal(t, "short text", m.SemanticTruncate("short text", 100))
	})

	t.Run("empty unchanged", func(t *testing.T) {
		assert.Equal(t, "", m.SemanticTruncate("", 100))
	})

	t.Run("keeps head and tail with marker", func(t *testing.T) {
		text := strings.Repeat("a", 2000) + strings.Repeat("z", 2000)
		out := m.SemanticTruncate(text, 100)
		assert.Contains(t, out, " [...] ")
		// Head: 60% of 100 tokens * 3.5 chars = 210 chars of 'a'.
		assert.True(t, strings.HasPrefix(out, strings.Repeat("a", 210)))
		// Tail: 20% of 100 tokens * 3.5 chars = 70 chars of 'z'.
		assert.True(t, strings.HasSuffix(out, strings.Repeat("z", 70)))
		assert.Less(t, len(out), len(text))
	})
}

func TestHardTruncate(t *testing.T) {
	m := newManager()

	t.Run("short input unchanged without marker", func(t *testing.T) {
		assert.Equal(t, "fits fine.", m.HardTruncate("fits fine.", 100))
	})

	t.Run("cuts at sentence boundary", func(t *testing.T) {
		sentence := "This is a complete sentence. "
		text := strings.Repeat(sentence, 100)
		out := m.HardTruncate(text, 50)
		assert.True(t, strings.HasSuffix(out, " [truncated]"))
		body := strings.TrimSuffix(out, " [truncated]")
		assert.True(t, strings.HasSuffix(body, "sentence."), "cut lands after a terminator")
		// 50 tokens * 3.5 = 175 chars maximum before the marker.
		assert.LessOrEqual(t, len(body), 175)
	})

	t.Run("no terminator cuts at raw count", func(t *testing.T) {
		text := strings.Repeat("x", 1000)
		out := m.HardTruncate(text, 50)
		assert.Equal(t, strings.Repeat("x", 175)+" [truncated]", out)
	})
}

func TestExtractRelevant(t *testing.T) {
	m := newManager()
	text := "The deploy failed on Tuesday. Lunch was good. The rollback fixed the deploy. Weather was sunny."

	out, ok := m.ExtractRelevant(text, []string{"deploy"}, 100)
	require.True(t, ok)
	assert.Contains(t, out, "deploy failed")
	assert.Contains(t, out, "rollback fixed")
	assert.NotContains(t, out, "Lunch")

	_, ok = m.ExtractRelevant(text, []string{"kubernetes"}, 100)
	assert.False(t, ok, "no matching sentence yields no extraction")

	_, ok = m.ExtractRelevant("", []string{"deploy"}, 100)
	assert.False(t, ok)
}

func TestTruncateTiers(t *testing.T) {
	m := newManager()

	t.Run("summary wins", func(t *testing.T) {
		res := m.Truncate("long body", "the summary", nil, 5000, 100)
		assert.Equal(t, TierUseSummary, res.Tier)
		assert.Equal(t, "the summary", res.Text)
		assert.Equal(t, 0, res.ExpectedLatencyMillis)
	})

	t.Run("extract falls back to hard when nothing matches", func(t *testing.T) {
		body := strings.Repeat("Nothing relevant here at all. ", 200)
		res := m.Truncate(body, "", []string{"zebra"}, 2000, 100)
		assert.Equal(t, TierHard, res.Tier)
		assert.True(t, res.Truncated)
		assert.LessOrEqual(t, res.ExpectedLatencyMillis, 100, "within the latency ceiling")
	})
}

func TestAnalyzeHistory(t *testing.T) {
	m := newManager()

	msg := func(i int) Message { return Message{Role: "user", Content: "turn"} }
	messages := make([]Message, 8)
	tokens := make([]int, 8)
	for i := range messages {
		messages[i] = msg(i)
		tokens[i] = 100
	}

	t.Run("window holds last max_turns", func(t *testing.T) {
		analysis := m.AnalyzeHistory(messages, tokens, "earlier summary")
		assert.Len(t, analysis.Window, 6)
		assert.Equal(t, 8, analysis.TurnCount)
		assert.Equal(t, 800, analysis.TotalTokens)
		assert.Equal(t, 600, analysis.WindowTokens)
		assert.Equal(t, "earlier summary", analysis.PriorSummary)
		assert.False(t, analysis.NeedsSummarization)
	})

	t.Run("turn count triggers summarization", func(t *testing.T) {
		many := make([]Message, 11)
		counts := make([]int, 11)
		analysis := m.AnalyzeHistory(many, counts, "")
		assert.True(t, analysis.NeedsSummarization)
	})

	t.Run("token volume triggers summarization", func(t *testing.T) {
		analysis := m.AnalyzeHistory(messages[:4], []int{9000, 9000, 2000, 1000}, "")
		assert.True(t, analysis.NeedsSummarization)
	})

	t.Run("empty history", func(t *testing.T) {
		analysis := m.AnalyzeHistory(nil, nil, "")
		assert.Empty(t, analysis.Window)
		assert.False(t, analysis.NeedsSummarization)
	})
}

func TestSummarizationJob(t *testing.T) {
	m := newManager()
	job := m.SummarizationJob()
	assert.Equal(t, "gpt-4o-mini", job.ModelID)
	assert.Equal(t, 10000, job.InputTokenCap)
	assert.Equal(t, 2000, job.OutputTokenCap)
	assert.Equal(t, 0.25, job.TargetCompression)
}
