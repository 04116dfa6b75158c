package decay

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memory-core/internal/config"
	"memory-core/pkg/types"
)

func newEngine() *Engine {
	return NewEngine(config.DefaultConfig().Decay)
}

func TestRetrievability(t *testing.T) {
	tests := []struct {
		name      string
		days      float64
		stability float64
		want      float64
	}{
		{"fresh access", 0, 20, 1.0},
		{"one stability period", 20, 20, math.Exp(-1)},
		{"fact at one week", 7, 7, math.Exp(-1)},
		{"long dormancy", 100, 10, math.Exp(-10)},
		{"zero stability degenerates to zero", 5, 0, 0},
		{"negative stability degenerates to zero", 5, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Retrievability(tt.days, tt.stability), 1e-9)
		})
	}
}

func TestRetrievabilityStrictlyDecreasing(t *testing.T) {
	prev := Retrievability(0, 20)
	for d := 1.0; d <= 60; d++ {
		cur := Retrievability(d, 20)
		assert.Less(t, cur, prev)
		prev = cur
	}
}

func TestRetrievabilityMilestone(t *testing.T) {
	// R(20, 20) ~ 0.37
	assert.InDelta(t, 0.37, Retrievability(20, 20), 0.005)
}

func TestInitialTables(t *testing.T) {
	e := newEngine()
	assert.Equal(t, 14.0, e.InitialStability("person"))
	assert.Equal(t, 7.0, e.InitialStability("fact"))
	assert.Equal(t, 45.0, e.InitialStability("preference"))
	assert.Equal(t, 7.0, e.InitialStability("alien"), "unknown type falls back to fact")
	assert.Equal(t, 0.3, e.InitialDifficulty("fact"))
	assert.Equal(t, 0.3, e.InitialDifficulty("alien"))
}

func TestUpdateDifficulty(t *testing.T) {
	e := newEngine()

	t.Run("base only", func(t *testing.T) {
		assert.InDelta(t, 0.3, e.UpdateDifficulty("fact", 0, 0), 1e-9)
	})

	t.Run("length raises difficulty", func(t *testing.T) {
		// 5000 chars saturates the length term: +0.15
		assert.InDelta(t, 0.45, e.UpdateDifficulty("fact", 5000, 0), 1e-9)
		// beyond the norm it stays saturated
		assert.InDelta(t, 0.45, e.UpdateDifficulty("fact", 50000, 0), 1e-9)
	})

	t.Run("concept bonus", func(t *testing.T) {
		assert.InDelta(t, 0.5, e.UpdateDifficulty("concept", 0, 0), 1e-9)
	})

	t.Run("edges lower difficulty", func(t *testing.T) {
		// 40 edges saturates the connectivity term: -0.15
		assert.InDelta(t, 0.15, e.UpdateDifficulty("fact", 0, 40), 1e-9)
	})

	t.Run("clamped to [0,1]", func(t *testing.T) {
		got := e.UpdateDifficulty("note", 0, 400)
		assert.GreaterOrEqual(t, got, 0.0)
		got = e.UpdateDifficulty("document", 1_000_000, 0)
		assert.LessOrEqual(t, got, 1.0)
	})
}

func TestStabilityOnAccess(t *testing.T) {
	e := newEngine()

	// S' = 7 * 2.5 * (1 - 0.5*0.3) = 14.875
	assert.InDelta(t, 14.875, e.StabilityOnAccess(7, 0.3), 1e-9)

	// Growth caps at 365 days.
	assert.Equal(t, 365.0, e.StabilityOnAccess(300, 0.0))
}

func TestLifecycleFor(t *testing.T) {
	e := newEngine()
	tests := []struct {
		name        string
		r           float64
		daysDormant float64
		want        State
	}{
		{"high retrievability", 0.9, 0, StateActive},
		{"just above active threshold", 0.51, 5, StateActive},
		{"weak band", 0.368, 7, StateWeak},
		{"just above weak threshold", 0.11, 30, StateWeak},
		{"dormant short", 0.05, 30, StateDormant},
		{"dormant restated band", 0.05, 100, StateDormant},
		{"compress band", 0.05, 200, StateCompress},
		{"archive", 0.01, 300, StateArchive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.LifecycleFor(tt.r, tt.daysDormant))
		})
	}
}

func TestEvaluateMilestone(t *testing.T) {
	// Seed scenario: fact with stability 7, last accessed 7 days ago.
	e := newEngine()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	node, err := types.NewNode(types.NodeTypeNote, "a fact")
	require.NoError(t, err)
	node.Neural.Stability = 7
	node.Neural.Difficulty = 0.3
	node.Neural.LastAccessed = now.AddDate(0, 0, -7)

	snap := e.Evaluate(node, now)
	assert.InDelta(t, math.Exp(-1), snap.Retrievability, 1e-9)
	assert.Equal(t, StateWeak, snap.State, "0.368 sits below the 0.5 active boundary")
	assert.InDelta(t, 7.0, snap.DaysSinceAccess, 1e-9)
}

func TestTouch(t *testing.T) {
	e := newEngine()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	node, err := types.NewNode(types.NodeTypeNote, "a fact")
	require.NoError(t, err)
	node.Neural.Stability = 7
	node.Neural.Difficulty = 0.3
	node.Neural.AccessCount = 2
	node.Neural.LastAccessed = now.AddDate(0, 0, -7)

	e.Touch(node, now)

	assert.InDelta(t, 14.875, node.Neural.Stability, 1e-9)
	assert.Equal(t, 3, node.Neural.AccessCount)
	assert.Equal(t, now, node.Neural.LastAccessed)
	assert.Equal(t, 1.0, node.Neural.Retrievability)

	// Immediately after access R is 1.
	snap := e.Evaluate(node, now)
	assert.Equal(t, 1.0, snap.Retrievability)
}

func TestCascadeEdgeWeight(t *testing.T) {
	e := newEngine()

	t.Run("healthy endpoint untouched", func(t *testing.T) {
		assert.Equal(t, 0.8, e.CascadeEdgeWeight(0.8, 0.5))
	})

	t.Run("weak endpoint decays", func(t *testing.T) {
		assert.InDelta(t, 0.64, e.CascadeEdgeWeight(0.8, 0.05), 1e-9)
	})

	t.Run("floored at edge minimum", func(t *testing.T) {
		assert.Equal(t, 0.1, e.CascadeEdgeWeight(0.11, 0.01))
		assert.Equal(t, 0.1, e.CascadeEdgeWeight(0.1, 0.01))
	})
}

func TestSweep(t *testing.T) {
	e := newEngine()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	fresh, err := types.NewNode(types.NodeTypeNote, "fresh")
	require.NoError(t, err)
	fresh.Neural.Stability = 30
	fresh.Neural.LastAccessed = now.AddDate(0, 0, -1)

	stale, err := types.NewNode(types.NodeTypeNote, "stale")
	require.NoError(t, err)
	stale.Neural.Stability = 7
	stale.Neural.LastAccessed = now.AddDate(0, 0, -90)

	edge, err := types.NewEdge(fresh.ID, stale.ID, types.EdgeRelatesTo, 0.8)
	require.NoError(t, err)

	report := e.Sweep([]*types.Node{fresh, stale}, []*types.Edge{edge}, now)

	assert.Equal(t, 2, report.Evaluated)
	assert.Equal(t, 1, report.Counts[StateActive])
	assert.Equal(t, 1, report.Counts[StateDormant], "90 days dormant sits in the restated band")
	newWeight, decayed := report.DecayedEdges[edge.ID]
	require.True(t, decayed, "edge touching a weak node cascade-decays")
	assert.InDelta(t, 0.64, newWeight, 1e-9)
	assert.Equal(t, 0.8, edge.NeuralWeight, "sweep does not mutate input edges")
}
