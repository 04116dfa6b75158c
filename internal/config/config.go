// Package config provides configuration for the memory core: canonical
// weights, thresholds, and budgets as immutable value objects, plus loading
// from environment variables and YAML files. Values are read-only after
// process init; tests inject overrides by value.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config aggregates every component configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" json:"server"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Decay      DecayConfig      `yaml:"decay" json:"decay"`
	Rerank     RerankConfig     `yaml:"rerank" json:"rerank"`
	Activation ActivationConfig `yaml:"activation" json:"activation"`
	Temporal   TemporalConfig   `yaml:"temporal" json:"temporal"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Context    ContextConfig    `yaml:"context" json:"context"`
	Edit       EditConfig       `yaml:"edit" json:"edit"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host         string `yaml:"host" json:"host"`
	Port         int    `yaml:"port" json:"port"`
	ReadTimeout  int    `yaml:"read_timeout_seconds" json:"read_timeout_seconds"`
	WriteTimeout int    `yaml:"write_timeout_seconds" json:"write_timeout_seconds"`
}

// StorageConfig configures the persistence adapters.
type StorageConfig struct {
	SQLitePath       string `yaml:"sqlite_path" json:"sqlite_path"`
	QdrantHost       string `yaml:"qdrant_host" json:"qdrant_host"`
	QdrantPort       int    `yaml:"qdrant_port" json:"qdrant_port"`
	QdrantCollection string `yaml:"qdrant_collection" json:"qdrant_collection"`
	RedisAddr        string `yaml:"redis_addr" json:"redis_addr"`
	CacheTTLSeconds  int    `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	JSON  bool   `yaml:"json" json:"json"`
}

// DecayConfig holds the FSRS-derived decay parameters.
type DecayConfig struct {
	// InitialStability is the per-behavioral-type starting stability in days.
	InitialStability map[string]float64 `yaml:"initial_stability" json:"initial_stability"`
	// InitialDifficulty is the per-behavioral-type starting difficulty.
	InitialDifficulty map[string]float64 `yaml:"initial_difficulty" json:"initial_difficulty"`

	// StabilityGrowthFactor multiplies stability on access.
	StabilityGrowthFactor float64 `yaml:"stability_growth_factor" json:"stability_growth_factor"`
	// DifficultyDamping scales how much difficulty suppresses growth.
	DifficultyDamping float64 `yaml:"difficulty_damping" json:"difficulty_damping"`
	// MaxStabilityDays caps stability growth.
	MaxStabilityDays float64 `yaml:"max_stability_days" json:"max_stability_days"`

	// Lifecycle thresholds on retrievability and dormancy days.
	ActiveThreshold  float64 `yaml:"active_threshold" json:"active_threshold"`
	WeakThreshold    float64 `yaml:"weak_threshold" json:"weak_threshold"`
	DormantDays      float64 `yaml:"dormant_days" json:"dormant_days"`
	RestatedDays     float64 `yaml:"restated_days" json:"restated_days"`
	CompressDays     float64 `yaml:"compress_days" json:"compress_days"`

	// Difficulty update parameters.
	LengthNorm   float64 `yaml:"length_norm" json:"length_norm"`
	LengthWeight float64 `yaml:"length_weight" json:"length_weight"`
	ConceptBonus float64 `yaml:"concept_bonus" json:"concept_bonus"`
	EdgesNorm    float64 `yaml:"edges_norm" json:"edges_norm"`
	EdgesWeight  float64 `yaml:"edges_weight" json:"edges_weight"`

	// Cascade decay on edges incident to low-retrievability nodes.
	CascadeRetrievability float64 `yaml:"cascade_retrievability" json:"cascade_retrievability"`
	CascadeDecayFactor    float64 `yaml:"cascade_decay_factor" json:"cascade_decay_factor"`
	EdgeWeightFloor       float64 `yaml:"edge_weight_floor" json:"edge_weight_floor"`
}

// SignalWeights is a six-signal weight vector for the reranker. Vectors must
// sum to 1.0.
type SignalWeights struct {
	Semantic  float64 `yaml:"semantic" json:"semantic"`
	Keyword   float64 `yaml:"keyword" json:"keyword"`
	Graph     float64 `yaml:"graph" json:"graph"`
	Recency   float64 `yaml:"recency" json:"recency"`
	Authority float64 `yaml:"authority" json:"authority"`
	Affinity  float64 `yaml:"affinity" json:"affinity"`
}

// Sum returns the total of all weights.
func (w SignalWeights) Sum() float64 {
	return w.Semantic + w.Keyword + w.Graph + w.Recency + w.Authority + w.Affinity
}

// Section profile names for the reranker.
const (
	ProfileKnowledge  = "KNOWLEDGE"
	ProfileSignals    = "SIGNALS"
	ProfileProcedural = "PROCEDURAL"
	ProfileEpisodic   = "EPISODIC"
)

// RerankConfig holds reranker weights and signal parameters.
type RerankConfig struct {
	DefaultWeights SignalWeights            `yaml:"default_weights" json:"default_weights"`
	Profiles       map[string]SignalWeights `yaml:"profiles" json:"profiles"`
	// SubtypePrefixes maps a node subtype prefix to a profile name. Unknown
	// subtypes fall back to KNOWLEDGE.
	SubtypePrefixes map[string]string `yaml:"subtype_prefixes" json:"subtype_prefixes"`

	RecencyHalfLifeDays float64 `yaml:"recency_half_life_days" json:"recency_half_life_days"`
	AffinityAccessNorm  float64 `yaml:"affinity_access_norm" json:"affinity_access_norm"`
	NewContentBoost     float64 `yaml:"new_content_boost" json:"new_content_boost"`
	NewContentDays      float64 `yaml:"new_content_days" json:"new_content_days"`
}

// Aggregation modes for spreading activation.
const (
	AggregationSum = "sum"
	AggregationMax = "max"
)

// ActivationConfig holds spreading activation parameters.
type ActivationConfig struct {
	InitialActivation float64 `yaml:"initial_activation" json:"initial_activation"`
	// HopDecay is the canonical per-hop decay. HopDecayConservative is the
	// documented alternative profile some callers select.
	HopDecay             float64 `yaml:"hop_decay" json:"hop_decay"`
	HopDecayConservative float64 `yaml:"hop_decay_conservative" json:"hop_decay_conservative"`
	MinThreshold         float64 `yaml:"min_threshold" json:"min_threshold"`
	MaxHops              int     `yaml:"max_hops" json:"max_hops"`
	MaxNodes             int     `yaml:"max_nodes" json:"max_nodes"`
	Aggregation          string  `yaml:"aggregation" json:"aggregation"`
	// EdgeWeights maps an edge subtype (preferred) or type to its base
	// traversal weight.
	EdgeWeights       map[string]float64 `yaml:"edge_weights" json:"edge_weights"`
	DefaultEdgeWeight float64            `yaml:"default_edge_weight" json:"default_edge_weight"`
}

// TemporalConfig holds the three confidence factor tables and the parse
// latency budget.
type TemporalConfig struct {
	SourceFactors         map[string]float64 `yaml:"source_factors" json:"source_factors"`
	GranularityFactors    map[string]float64 `yaml:"granularity_factors" json:"granularity_factors"`
	InterpretationFactors map[string]float64 `yaml:"interpretation_factors" json:"interpretation_factors"`
	Phase1BudgetMillis    int                `yaml:"phase1_budget_millis" json:"phase1_budget_millis"`
}

// ChunkingConfig holds chunk sizing and retrieval aggregation parameters.
type ChunkingConfig struct {
	TriggerTokens      int     `yaml:"trigger_tokens" json:"trigger_tokens"`
	TargetMinTokens    int     `yaml:"target_min_tokens" json:"target_min_tokens"`
	TargetMaxTokens    int     `yaml:"target_max_tokens" json:"target_max_tokens"`
	HardMaxTokens      int     `yaml:"hard_max_tokens" json:"hard_max_tokens"`
	AbsoluteMaxTokens  int     `yaml:"absolute_max_tokens" json:"absolute_max_tokens"`
	MinTokens          int     `yaml:"min_tokens" json:"min_tokens"`
	MinSentences       int     `yaml:"min_sentences" json:"min_sentences"`
	OverlapTokens      int     `yaml:"overlap_tokens" json:"overlap_tokens"`
	EmbeddingMaxTokens int     `yaml:"embedding_max_tokens" json:"embedding_max_tokens"`
	MaxExpansionTokens int     `yaml:"max_expansion_tokens" json:"max_expansion_tokens"`
	MergeThreshold     int     `yaml:"merge_threshold" json:"merge_threshold"`
	SummarizeThreshold int     `yaml:"summarize_threshold" json:"summarize_threshold"`
	CharsPerToken      float64 `yaml:"chars_per_token" json:"chars_per_token"`
}

// ModelBudget describes one model in the registry.
type ModelBudget struct {
	ID             string `yaml:"id" json:"id"`
	Provider       string `yaml:"provider" json:"provider"`
	ContextWindow  int    `yaml:"context_window" json:"context_window"`
	ResponseBuffer int    `yaml:"response_buffer" json:"response_buffer"`
}

// PriorityWeights is the five-factor weight vector for node prioritization.
type PriorityWeights struct {
	RetrievalScore float64 `yaml:"retrieval_score" json:"retrieval_score"`
	QueryMentioned float64 `yaml:"query_mentioned" json:"query_mentioned"`
	Recency        float64 `yaml:"recency" json:"recency"`
	Connectivity   float64 `yaml:"connectivity" json:"connectivity"`
	Importance     float64 `yaml:"importance" json:"importance"`
}

// Sum returns the total of all weights.
func (w PriorityWeights) Sum() float64 {
	return w.RetrievalScore + w.QueryMentioned + w.Recency + w.Connectivity + w.Importance
}

// ContextConfig holds budget, prioritization, truncation, and history
// parameters for the context window manager.
type ContextConfig struct {
	Models          []ModelBudget      `yaml:"models" json:"models"`
	FallbackModelID string             `yaml:"fallback_model_id" json:"fallback_model_id"`
	RetrievalRatios map[string]float64 `yaml:"retrieval_ratios" json:"retrieval_ratios"`
	DefaultRatio    float64            `yaml:"default_ratio" json:"default_ratio"`

	SystemPromptTokens     int `yaml:"system_prompt_tokens" json:"system_prompt_tokens"`
	MinUserTokens          int `yaml:"min_user_tokens" json:"min_user_tokens"`
	FallbackResponseBuffer int `yaml:"fallback_response_buffer" json:"fallback_response_buffer"`
	SparseRetrievalTokens  int `yaml:"sparse_retrieval_tokens" json:"sparse_retrieval_tokens"`
	SparseBufferBoost      int `yaml:"sparse_buffer_boost" json:"sparse_buffer_boost"`

	Priority             PriorityWeights `yaml:"priority" json:"priority"`
	RecencyHalfLifeDays  float64         `yaml:"recency_half_life_days" json:"recency_half_life_days"`
	ConnectivityPerLink  float64         `yaml:"connectivity_per_link" json:"connectivity_per_link"`

	SemanticHeadRatio  float64 `yaml:"semantic_head_ratio" json:"semantic_head_ratio"`
	SemanticTailRatio  float64 `yaml:"semantic_tail_ratio" json:"semantic_tail_ratio"`
	CharsPerToken      float64 `yaml:"chars_per_token" json:"chars_per_token"`
	TruncationCeiling  int     `yaml:"truncation_ceiling_millis" json:"truncation_ceiling_millis"`

	HistoryMaxTurns        int     `yaml:"history_max_turns" json:"history_max_turns"`
	SummarizeTurnCount     int     `yaml:"summarize_turn_count" json:"summarize_turn_count"`
	SummarizeTokens        int     `yaml:"summarize_tokens" json:"summarize_tokens"`
	SummaryModelID         string  `yaml:"summary_model_id" json:"summary_model_id"`
	SummaryInputCap        int     `yaml:"summary_input_cap" json:"summary_input_cap"`
	SummaryOutputCap       int     `yaml:"summary_output_cap" json:"summary_output_cap"`
	SummaryTargetCompression float64 `yaml:"summary_target_compression" json:"summary_target_compression"`
}

// EditConfig holds edit history retention policy.
type EditConfig struct {
	UndoWindowHours int `yaml:"undo_window_hours" json:"undo_window_hours"`
	MaxEdits        int `yaml:"max_edits" json:"max_edits"`
	MaxAgeDays      int `yaml:"max_age_days" json:"max_age_days"`
}

// OperationBudgetsMillis is the advisory per-operation latency table for
// callers.
var OperationBudgetsMillis = map[string]int{
	"simple_lookup":    50,
	"standard":         100,
	"complex":          200,
	"phase2_reasoning": 3000,
	"deep_search":      500,
	"serendipity":      200,
}

// DefaultConfig returns the canonical configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "localhost",
			Port:         9820,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Storage: StorageConfig{
			SQLitePath:       "memory.db",
			QdrantHost:       "localhost",
			QdrantPort:       6334,
			QdrantCollection: "memory_nodes",
			RedisAddr:        "",
			CacheTTLSeconds:  300,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
		Decay: DecayConfig{
			InitialStability: map[string]float64{
				"person":     14,
				"fact":       7,
				"concept":    21,
				"event":      10,
				"note":       30,
				"document":   7,
				"preference": 45,
			},
			InitialDifficulty: map[string]float64{
				"person":     0.2,
				"fact":       0.3,
				"concept":    0.4,
				"event":      0.3,
				"note":       0.1,
				"document":   0.5,
				"preference": 0.2,
			},
			StabilityGrowthFactor: 2.5,
			DifficultyDamping:     0.5,
			MaxStabilityDays:      365,
			ActiveThreshold:       0.5,
			WeakThreshold:         0.1,
			DormantDays:           60,
			RestatedDays:          120,
			CompressDays:          240,
			LengthNorm:            5000,
			LengthWeight:          0.15,
			ConceptBonus:          0.1,
			EdgesNorm:             40,
			EdgesWeight:           0.15,
			CascadeRetrievability: 0.1,
			CascadeDecayFactor:    0.8,
			EdgeWeightFloor:       0.1,
		},
		Rerank: RerankConfig{
			DefaultWeights: SignalWeights{
				Semantic: 0.30, Keyword: 0.15, Graph: 0.20,
				Recency: 0.15, Authority: 0.10, Affinity: 0.10,
			},
			Profiles: map[string]SignalWeights{
				ProfileKnowledge: {
					Semantic: 0.35, Keyword: 0.15, Graph: 0.15,
					Recency: 0.05, Authority: 0.20, Affinity: 0.10,
				},
				ProfileSignals: {
					Semantic: 0.15, Keyword: 0.10, Graph: 0.10,
					Recency: 0.45, Authority: 0.05, Affinity: 0.15,
				},
				ProfileProcedural: {
					Semantic: 0.25, Keyword: 0.25, Graph: 0.15,
					Recency: 0.10, Authority: 0.10, Affinity: 0.15,
				},
				ProfileEpisodic: {
					Semantic: 0.25, Keyword: 0.10, Graph: 0.15,
					Recency: 0.35, Authority: 0.05, Affinity: 0.10,
				},
			},
			SubtypePrefixes: map[string]string{
				"signal":     ProfileSignals,
				"alert":      ProfileSignals,
				"metric":     ProfileSignals,
				"procedure":  ProfileProcedural,
				"howto":      ProfileProcedural,
				"workflow":   ProfileProcedural,
				"meeting":    ProfileEpisodic,
				"journal":    ProfileEpisodic,
				"event":      ProfileEpisodic,
				"episode":    ProfileEpisodic,
				"fact":       ProfileKnowledge,
				"concept":    ProfileKnowledge,
				"definition": ProfileKnowledge,
			},
			RecencyHalfLifeDays: 30,
			AffinityAccessNorm:  10,
			NewContentBoost:     0.2,
			NewContentDays:      7,
		},
		Activation: ActivationConfig{
			InitialActivation:    1.0,
			HopDecay:             0.5,
			HopDecayConservative: 0.80,
			MinThreshold:         0.01,
			MaxHops:              3,
			MaxNodes:             500,
			Aggregation:          AggregationSum,
			EdgeWeights: map[string]float64{
				"same_entity":       0.95,
				"part_of":           0.90,
				"causes":            0.85,
				"derived_from":      0.80,
				"supersedes":        0.75,
				"contradicts":       0.70,
				"similar_to":        0.65,
				"mentioned_in":      0.60,
				"relates_to":        0.55,
				"user_linked":       0.50,
				"precedes":          0.45,
				"temporal_adjacent": 0.40,
			},
			DefaultEdgeWeight: 0.5,
		},
		Temporal: TemporalConfig{
			SourceFactors: map[string]float64{
				"user_explicit":      1.0,
				"calendar_sync":      0.95,
				"file_timestamp":     0.85,
				"content_extraction": 0.7,
				"context_inference":  0.5,
				"unknown":            0.3,
			},
			GranularityFactors: map[string]float64{
				"second": 1.0,
				"minute": 0.95,
				"hour":   0.9,
				"day":    0.85,
				"week":   0.7,
				"month":  0.5,
				"year":   0.3,
			},
			InterpretationFactors: map[string]float64{
				"explicit_absolute": 1.0,
				"explicit_relative": 0.9,
				"fuzzy_period":      0.5,
				"duration":          0.8,
				"none":              0.0,
			},
			Phase1BudgetMillis: 55,
		},
		Chunking: ChunkingConfig{
			TriggerTokens:      2000,
			TargetMinTokens:    500,
			TargetMaxTokens:    1500,
			HardMaxTokens:      3000,
			AbsoluteMaxTokens:  5000,
			MinTokens:          100,
			MinSentences:       3,
			OverlapTokens:      100,
			EmbeddingMaxTokens: 7500,
			MaxExpansionTokens: 1500,
			MergeThreshold:     2,
			SummarizeThreshold: 4,
			CharsPerToken:      3.5,
		},
		Context: ContextConfig{
			Models: []ModelBudget{
				{ID: "claude-sonnet-4", Provider: "anthropic", ContextWindow: 200000, ResponseBuffer: 16000},
				{ID: "claude-opus-4", Provider: "anthropic", ContextWindow: 200000, ResponseBuffer: 16000},
				{ID: "gpt-4o", Provider: "openai", ContextWindow: 128000, ResponseBuffer: 12000},
				{ID: "gpt-4o-mini", Provider: "openai", ContextWindow: 128000, ResponseBuffer: 8000},
				{ID: "gemini-2.0-flash", Provider: "google", ContextWindow: 1000000, ResponseBuffer: 16000},
			},
			FallbackModelID: "gpt-4o-mini",
			RetrievalRatios: map[string]float64{
				"anthropic": 0.70,
				"google":    0.70,
				"openai":    0.65,
			},
			DefaultRatio:           0.65,
			SystemPromptTokens:     3000,
			MinUserTokens:          2000,
			FallbackResponseBuffer: 12000,
			SparseRetrievalTokens:  1000,
			SparseBufferBoost:      4000,
			Priority: PriorityWeights{
				RetrievalScore: 0.40,
				QueryMentioned: 0.25,
				Recency:        0.15,
				Connectivity:   0.10,
				Importance:     0.10,
			},
			RecencyHalfLifeDays: 20,
			ConnectivityPerLink: 0.3,
			SemanticHeadRatio:   0.6,
			SemanticTailRatio:   0.2,
			CharsPerToken:       3.5,
			TruncationCeiling:   100,
			HistoryMaxTurns:     6,
			SummarizeTurnCount:  10,
			SummarizeTokens:     20000,
			SummaryModelID:      "gpt-4o-mini",
			SummaryInputCap:     10000,
			SummaryOutputCap:    2000,
			SummaryTargetCompression: 0.25,
		},
		Edit: EditConfig{
			UndoWindowHours: 24,
			MaxEdits:        100,
			MaxAgeDays:      30,
		},
	}
}

// Load builds the configuration: defaults, then an optional YAML file named
// by MEMORY_CONFIG_PATH, then environment overrides. A .env file in the
// working directory is honored if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path := os.Getenv("MEMORY_CONFIG_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadFromEnv(cfg *Config) {
	cfg.Server.Host = getStringEnv("MEMORY_HOST", cfg.Server.Host)
	cfg.Server.Port = getIntEnv("MEMORY_PORT", cfg.Server.Port)
	cfg.Storage.SQLitePath = getStringEnv("MEMORY_SQLITE_PATH", cfg.Storage.SQLitePath)
	cfg.Storage.QdrantHost = getStringEnv("QDRANT_HOST", cfg.Storage.QdrantHost)
	cfg.Storage.QdrantPort = getIntEnv("QDRANT_PORT", cfg.Storage.QdrantPort)
	cfg.Storage.QdrantCollection = getStringEnv("QDRANT_COLLECTION", cfg.Storage.QdrantCollection)
	cfg.Storage.RedisAddr = getStringEnv("REDIS_ADDR", cfg.Storage.RedisAddr)
	cfg.Logging.Level = getStringEnv("LOG_LEVEL", cfg.Logging.Level)
}

func getStringEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// weightSumTolerance bounds how far a weight vector may drift from 1.0.
const weightSumTolerance = 1e-3

// Validate checks configuration invariants, including that every weight
// vector sums to 1.0.
func (c *Config) Validate() error {
	if err := c.validateWeights(); err != nil {
		return err
	}
	if err := c.validateDecay(); err != nil {
		return err
	}
	if err := c.validateActivation(); err != nil {
		return err
	}
	if err := c.validateChunking(); err != nil {
		return err
	}
	return c.validateContext()
}

func (c *Config) validateWeights() error {
	if math.Abs(c.Rerank.DefaultWeights.Sum()-1.0) > weightSumTolerance {
		return fmt.Errorf("rerank.default_weights: sum %.4f != 1.0", c.Rerank.DefaultWeights.Sum())
	}
	for name, profile := range c.Rerank.Profiles {
		if math.Abs(profile.Sum()-1.0) > weightSumTolerance {
			return fmt.Errorf("rerank.profiles.%s: sum %.4f != 1.0", name, profile.Sum())
		}
	}
	if math.Abs(c.Context.Priority.Sum()-1.0) > weightSumTolerance {
		return fmt.Errorf("context.priority: sum %.4f != 1.0", c.Context.Priority.Sum())
	}
	return nil
}

func (c *Config) validateDecay() error {
	if len(c.Decay.InitialStability) == 0 {
		return errors.New("decay.initial_stability: table cannot be empty")
	}
	for typ, d := range c.Decay.InitialDifficulty {
		if d < 0 || d > 1 {
			return fmt.Errorf("decay.initial_difficulty.%s: must be in [0,1]", typ)
		}
	}
	if c.Decay.MaxStabilityDays <= 0 {
		return errors.New("decay.max_stability_days: must be positive")
	}
	if c.Decay.ActiveThreshold <= c.Decay.WeakThreshold {
		return errors.New("decay.active_threshold: must exceed weak_threshold")
	}
	if c.Decay.EdgeWeightFloor < 0 || c.Decay.EdgeWeightFloor > 1 {
		return errors.New("decay.edge_weight_floor: must be in [0,1]")
	}
	return nil
}

func (c *Config) validateActivation() error {
	if c.Activation.HopDecay <= 0 || c.Activation.HopDecay > 1 {
		return errors.New("activation.hop_decay: must be in (0,1]")
	}
	if c.Activation.MaxHops < 1 {
		return errors.New("activation.max_hops: must be >= 1")
	}
	if c.Activation.MaxNodes < 1 {
		return errors.New("activation.max_nodes: must be >= 1")
	}
	if c.Activation.Aggregation != AggregationSum && c.Activation.Aggregation != AggregationMax {
		return fmt.Errorf("activation.aggregation: must be %q or %q", AggregationSum, AggregationMax)
	}
	return nil
}

func (c *Config) validateChunking() error {
	ch := c.Chunking
	if ch.TargetMinTokens <= 0 || ch.TargetMaxTokens <= ch.TargetMinTokens {
		return errors.New("chunking: target token range must satisfy 0 < min < max")
	}
	if ch.AbsoluteMaxTokens < ch.HardMaxTokens {
		return errors.New("chunking.absolute_max_tokens: must be >= hard_max_tokens")
	}
	if ch.CharsPerToken <= 0 {
		return errors.New("chunking.chars_per_token: must be positive")
	}
	return nil
}

func (c *Config) validateContext() error {
	if len(c.Context.Models) == 0 {
		return errors.New("context.models: registry cannot be empty")
	}
	found := false
	for _, m := range c.Context.Models {
		if m.ContextWindow <= 0 {
			return fmt.Errorf("context.models.%s: context_window must be positive", m.ID)
		}
		if m.ID == c.Context.FallbackModelID {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("context.fallback_model_id: %q not in registry", c.Context.FallbackModelID)
	}
	for provider, ratio := range c.Context.RetrievalRatios {
		if ratio <= 0 || ratio >= 1 {
			return fmt.Errorf("context.retrieval_ratios.%s: must be in (0,1)", provider)
		}
	}
	return nil
}
