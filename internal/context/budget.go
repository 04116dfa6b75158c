// Package context implements the context window manager: per-model token
// budget derivation and allocation, node prioritization, critical-first
// greedy packing, attention-aware ordering, tiered truncation, and
// conversation history analysis. All operations are pure.
package context

import (
	"math"

	"memory-core/internal/config"
	"memory-core/pkg/types"
)

// Budget is the derived token budget for one model.
type Budget struct {
	ModelID          string  `json:"model_id"`
	Provider         string  `json:"provider"`
	ContextWindow    int     `json:"context_window"`
	SystemPrompt     int     `json:"system_prompt_tokens"`
	MinUser          int     `json:"min_user_tokens"`
	ResponseBuffer   int     `json:"response_buffer"`
	RetrievalRatio   float64 `json:"retrieval_ratio"`
	Flexible         int     `json:"flexible_tokens"`
	DefaultRetrieved int     `json:"default_retrieved_tokens"`
	DefaultHistory   int     `json:"default_history_tokens"`
	SchemaVersion    int     `json:"_schemaVersion"`
}

// AllocationAction tells the caller what to do about overflow.
type AllocationAction string

const (
	// ActionProceed means both retrieved and history usage fit.
	ActionProceed AllocationAction = "proceed"
	// ActionPrioritizeNodes means retrieved content exceeds its allocation.
	ActionPrioritizeNodes AllocationAction = "prioritize_nodes"
	// ActionSummarizeHistory means history exceeds its allocation.
	ActionSummarizeHistory AllocationAction = "summarize_history"
)

// AllocationRequest is the usage a caller wants to place in a context window.
type AllocationRequest struct {
	ModelID         string `json:"model_id"`
	UserTokens      int    `json:"user_tokens"`
	RetrievedTokens int    `json:"retrieved_tokens"`
	HistoryTokens   int    `json:"history_tokens"`
}

// Allocation is the allocation decision for a request. The granted fields
// are clamped by requested usage; the capacity fields carry the raw
// allocation for packers.
type Allocation struct {
	ModelID           string           `json:"model_id"`
	Action            AllocationAction `json:"action"`
	UserTokens        int              `json:"user_tokens"`
	RetrievedTokens   int              `json:"retrieved_tokens"`
	HistoryTokens     int              `json:"history_tokens"`
	RetrievedCapacity int              `json:"retrieved_capacity"`
	HistoryCapacity   int              `json:"history_capacity"`
	UnusedTokens      int              `json:"unused_tokens"`
	SchemaVersion     int              `json:"_schemaVersion"`
}

// Manager derives budgets and allocations from the model registry.
type Manager struct {
	cfg config.ContextConfig
}

// NewManager creates a context manager with the given configuration.
func NewManager(cfg config.ContextConfig) *Manager {
	return &Manager{cfg: cfg}
}

// lookupModel finds a registry entry. Unknown ids silently fall back to the
// configured fallback model; the returned budget's model id exposes the
// substitution.
func (m *Manager) lookupModel(id string) config.ModelBudget {
	for _, model := range m.cfg.Models {
		if model.ID == id {
			return model
		}
	}
	for _, model := range m.cfg.Models {
		if model.ID == m.cfg.FallbackModelID {
			return model
		}
	}
	// Registry validation guarantees the fallback exists; this is the
	// defensive zero value for an empty registry.
	return config.ModelBudget{ID: id, ResponseBuffer: m.cfg.FallbackResponseBuffer}
}

// retrievalRatio returns the provider's retrieval share of flexible tokens.
func (m *Manager) retrievalRatio(provider string) float64 {
	if ratio, ok := m.cfg.RetrievalRatios[provider]; ok {
		return ratio
	}
	return m.cfg.DefaultRatio
}

// responseBuffer returns a model's response buffer, falling back when the
// registry entry carries none.
func (m *Manager) responseBuffer(model config.ModelBudget) int {
	if model.ResponseBuffer > 0 {
		return model.ResponseBuffer
	}
	return m.cfg.FallbackResponseBuffer
}

// DeriveBudget computes the default budget split for a model:
//
//	flexible = window - system_prompt - min_user - response_buffer
//	default_retrieved = floor(flexible * ratio)
//	default_history = flexible - default_retrieved
func (m *Manager) DeriveBudget(modelID string) Budget {
	model := m.lookupModel(modelID)
	buffer := m.responseBuffer(model)
	ratio := m.retrievalRatio(model.Provider)

	flexible := model.ContextWindow - m.cfg.SystemPromptTokens - m.cfg.MinUserTokens - buffer
	if flexible < 0 {
		flexible = 0
	}
	retrieved := int(math.Floor(float64(flexible) * ratio))

	return Budget{
		ModelID:          model.ID,
		Provider:         model.Provider,
		ContextWindow:    model.ContextWindow,
		SystemPrompt:     m.cfg.SystemPromptTokens,
		MinUser:          m.cfg.MinUserTokens,
		ResponseBuffer:   buffer,
		RetrievalRatio:   ratio,
		Flexible:         flexible,
		DefaultRetrieved: retrieved,
		DefaultHistory:   flexible - retrieved,
		SchemaVersion:    types.CurrentSchemaVersion,
	}
}

// Allocate decides how a request's usage maps onto a model's window and
// which overflow action, if any, the caller must take.
func (m *Manager) Allocate(req AllocationRequest) Allocation {
	model := m.lookupModel(req.ModelID)
	buffer := m.responseBuffer(model)
	ratio := m.retrievalRatio(model.Provider)

	userAlloc := req.UserTokens
	if userAlloc < m.cfg.MinUserTokens {
		userAlloc = m.cfg.MinUserTokens
	}

	flexible := model.ContextWindow - m.cfg.SystemPromptTokens - userAlloc - buffer
	if flexible < 0 {
		flexible = 0
	}
	retrievedAlloc := int(math.Floor(float64(flexible) * ratio))
	historyAlloc := flexible - retrievedAlloc

	var action AllocationAction
	switch {
	case req.RetrievedTokens > retrievedAlloc:
		action = ActionPrioritizeNodes
	case req.HistoryTokens > historyAlloc:
		action = ActionSummarizeHistory
	default:
		action = ActionProceed
	}

	// Sparse retrieval usage hands half its slack to history.
	if req.RetrievedTokens < retrievedAlloc/2 {
		slack := (retrievedAlloc - req.RetrievedTokens) / 2
		retrievedAlloc -= slack
		historyAlloc += slack
	}

	retrievedGranted := minInt(req.RetrievedTokens, retrievedAlloc)
	historyGranted := minInt(req.HistoryTokens, historyAlloc)
	unused := model.ContextWindow - m.cfg.SystemPromptTokens - buffer - userAlloc - retrievedGranted - historyGranted
	if unused < 0 {
		unused = 0
	}

	return Allocation{
		ModelID:           model.ID,
		Action:            action,
		UserTokens:        userAlloc,
		RetrievedTokens:   retrievedGranted,
		HistoryTokens:     historyGranted,
		RetrievedCapacity: retrievedAlloc,
		HistoryCapacity:   historyAlloc,
		UnusedTokens:      unused,
		SchemaVersion:     types.CurrentSchemaVersion,
	}
}

// IsSparse reports whether retrieved usage is below the sparse threshold.
func (m *Manager) IsSparse(retrievedTokens int) bool {
	return retrievedTokens < m.cfg.SparseRetrievalTokens
}

// SparseRealloc builds a new budget for sparse retrieval: the response
// buffer grows by the configured boost and the flexible split is recomputed.
// The input budget is untouched.
func (m *Manager) SparseRealloc(b Budget) Budget {
	out := b
	out.ResponseBuffer = b.ResponseBuffer + m.cfg.SparseBufferBoost
	out.Flexible = out.ContextWindow - out.SystemPrompt - out.MinUser - out.ResponseBuffer
	if out.Flexible < 0 {
		out.Flexible = 0
	}
	out.DefaultRetrieved = int(math.Floor(float64(out.Flexible) * out.RetrievalRatio))
	out.DefaultHistory = out.Flexible - out.DefaultRetrieved
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
