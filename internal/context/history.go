package context

import (
	"memory-core/pkg/types"
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryAnalysis is the conversation window selection. The core never
// summarizes (that is I/O); it raises the needs_summarization flag for a
// background worker.
type HistoryAnalysis struct {
	PriorSummary       string    `json:"prior_summary,omitempty"`
	Window             []Message `json:"window"`
	WindowTokens       int       `json:"window_tokens"`
	TotalTokens        int       `json:"total_tokens"`
	TurnCount          int       `json:"turn_count"`
	NeedsSummarization bool      `json:"needs_summarization"`
	SchemaVersion      int       `json:"_schemaVersion"`
}

// SummarizationRequest describes the background summarization job for a
// caller's scheduler.
type SummarizationRequest struct {
	ModelID           string  `json:"model_id"`
	InputTokenCap     int     `json:"input_token_cap"`
	OutputTokenCap    int     `json:"output_token_cap"`
	TargetCompression float64 `json:"target_compression"`
}

// AnalyzeHistory selects the trailing message window and decides whether the
// conversation needs background summarization. tokenCounts parallels
// messages; missing entries count as zero.
func (m *Manager) AnalyzeHistory(messages []Message, tokenCounts []int, priorSummary string) HistoryAnalysis {
	total := 0
	for i := range messages {
		if i < len(tokenCounts) {
			total += tokenCounts[i]
		}
	}

	windowStart := 0
	if len(messages) > m.cfg.HistoryMaxTurns {
		windowStart = len(messages) - m.cfg.HistoryMaxTurns
	}
	window := append([]Message(nil), messages[windowStart:]...)
	windowTokens := 0
	for i := windowStart; i < len(messages) && i < len(tokenCounts); i++ {
		windowTokens += tokenCounts[i]
	}

	return HistoryAnalysis{
		PriorSummary:       priorSummary,
		Window:             window,
		WindowTokens:       windowTokens,
		TotalTokens:        total,
		TurnCount:          len(messages),
		NeedsSummarization: len(messages) > m.cfg.SummarizeTurnCount || total > m.cfg.SummarizeTokens,
		SchemaVersion:      types.CurrentSchemaVersion,
	}
}

// SummarizationJob returns the job description a background worker uses when
// the needs_summarization flag is set.
func (m *Manager) SummarizationJob() SummarizationRequest {
	return SummarizationRequest{
		ModelID:           m.cfg.SummaryModelID,
		InputTokenCap:     m.cfg.SummaryInputCap,
		OutputTokenCap:    m.cfg.SummaryOutputCap,
		TargetCompression: m.cfg.SummaryTargetCompression,
	}
}
