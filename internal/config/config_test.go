package config

import (
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestDefaultWeightVectorsSumToOne(t *testing.T) {
	cfg := DefaultConfig()

	assert.InDelta(t, 1.0, cfg.Rerank.DefaultWeights.Sum(), 1e-3)
	for name, profile := range cfg.Rerank.Profiles {
		assert.InDelta(t, 1.0, profile.Sum(), 1e-3, "profile %s", name)
	}
	assert.InDelta(t, 1.0, cfg.Context.Priority.Sum(), 1e-3)
}

func TestDefaultDecayTables(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 7.0, cfg.Decay.InitialStability["fact"])
	assert.Equal(t, 45.0, cfg.Decay.InitialStability["preference"])
	assert.Equal(t, 0.3, cfg.Decay.InitialDifficulty["fact"])
	for typ, d := range cfg.Decay.InitialDifficulty {
		assert.GreaterOrEqual(t, d, 0.1, "difficulty %s", typ)
		assert.LessOrEqual(t, d, 0.5, "difficulty %s", typ)
	}
}

func TestDefaultActivationEdgeWeights(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 0.95, cfg.Activation.EdgeWeights["same_entity"])
	assert.Equal(t, 0.40, cfg.Activation.EdgeWeights["temporal_adjacent"])
	assert.Equal(t, 0.5, cfg.Activation.HopDecay)
	assert.Equal(t, 0.80, cfg.Activation.HopDecayConservative)
}

func TestTemporalFactorTables(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1.0, cfg.Temporal.SourceFactors["user_explicit"])
	assert.Equal(t, 0.3, cfg.Temporal.SourceFactors["unknown"])
	assert.Equal(t, 0.85, cfg.Temporal.GranularityFactors["day"])
	assert.Equal(t, 0.0, cfg.Temporal.InterpretationFactors["none"])
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rerank.DefaultWeights.Semantic = 0.5 // sum now 1.2
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rerank.default_weights")
}

func TestValidateRejectsBadAggregation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Activation.Aggregation = "avg"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingFallbackModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Context.FallbackModelID = "nonexistent"
	assert.Error(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	require.NoError(t, os.Setenv("MEMORY_PORT", "9999"))
	require.NoError(t, os.Setenv("MEMORY_SQLITE_PATH", "/tmp/test.db"))
	defer func() {
		_ = os.Unsetenv("MEMORY_PORT")
		_ = os.Unsetenv("MEMORY_SQLITE_PATH")
	}()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "/tmp/test.db", cfg.Storage.SQLitePath)
}

func TestRetrievalRatios(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 0.70, cfg.Context.RetrievalRatios["anthropic"])
	assert.Equal(t, 0.70, cfg.Context.RetrievalRatios["google"])
	assert.Equal(t, 0.65, cfg.Context.RetrievalRatios["openai"])
	assert.Equal(t, 0.65, cfg.Context.DefaultRatio)
}

func TestOperationBudgetsTable(t *testing.T) {
	assert.Equal(t, 50, OperationBudgetsMillis["simple_lookup"])
	assert.Equal(t, 3000, OperationBudgetsMillis["phase2_reasoning"])
}

func TestWeightSumHelperExact(t *testing.T) {
	w := SignalWeights{Semantic: 0.30, Keyword: 0.15, Graph: 0.20, Recency: 0.15, Authority: 0.10, Affinity: 0.10}
	assert.True(t, math.Abs(w.Sum()-1.0) < 1e-9)
}
