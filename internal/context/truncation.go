package context

import (
	"strings"
)

// Tier is a truncation strategy, ordered by fidelity.
type Tier string

const (
	TierUseSummary  Tier = "use_summary"
	TierSemantic    Tier = "semantic_truncation"
	TierExtract     Tier = "extract_relevant"
	TierHard        Tier = "hard_truncation"
)

// TierLatencyMillis is the expected latency of each tier. The hard ceiling
// for any single truncation operation is 100 ms; tier selection keeps
// operations under it.
var TierLatencyMillis = map[Tier]int{
	TierUseSummary: 0,
	TierSemantic:   10,
	TierExtract:    80,
	TierHard:       1,
}

// Truncation markers are wire-stable.
const (
	semanticMarker = " [...] "
	hardMarker     = " [truncated]"
)

// TruncationResult carries the truncated text and how it was produced.
type TruncationResult struct {
	Text                  string `json:"text"`
	Tier                  Tier   `json:"tier"`
	ExpectedLatencyMillis int    `json:"expected_latency_millis"`
	Truncated             bool   `json:"truncated"`
}

// SelectTier picks the truncation strategy for a node: a stored summary wins
// outright; content within twice the target truncates semantically; anything
// larger goes through relevance extraction. Hard truncation is the ultimate
// fallback, applied by Truncate when a tier produces nothing.
func (m *Manager) SelectTier(hasSummary bool, nodeTokens, targetTokens int) Tier {
	switch {
	case hasSummary:
		return TierUseSummary
	case nodeTokens <= 2*targetTokens:
		return TierSemantic
	default:
		return TierExtract
	}
}

// Truncate reduces node content to the target token count using the selected
// tier. queryTerms guide the extract tier; summary is used verbatim for the
// summary tier.
func (m *Manager) Truncate(body, summary string, queryTerms []string, nodeTokens, targetTokens int) TruncationResult {
	tier := m.SelectTier(summary != "", nodeTokens, targetTokens)
	switch tier {
	case TierUseSummary:
		return TruncationResult{Text: summary, Tier: tier, ExpectedLatencyMillis: TierLatencyMillis[tier], Truncated: true}
	case TierSemantic:
		text := m.SemanticTruncate(body, targetTokens)
		return TruncationResult{Text: text, Tier: tier, ExpectedLatencyMillis: TierLatencyMillis[tier], Truncated: text != body}
	default:
		if text, ok := m.ExtractRelevant(body, queryTerms, targetTokens); ok {
			return TruncationResult{Text: text, Tier: TierExtract, ExpectedLatencyMillis: TierLatencyMillis[TierExtract], Truncated: true}
		}
		text := m.HardTruncate(body, targetTokens)
		return TruncationResult{Text: text, Tier: TierHard, ExpectedLatencyMillis: TierLatencyMillis[TierHard], Truncated: text != body}
	}
}

// SemanticTruncate keeps the first 60% and last 20% of the target token
// budget, joined by the truncation marker. Empty input or input already
// within the target comes back unchanged.
func (m *Manager) SemanticTruncate(text string, targetTokens int) string {
	if text == "" {
		return text
	}
	runes := []rune(text)
	if m.estimateTokens(len(runes)) <= targetTokens {
		return text
	}
	headChars := int(float64(targetTokens) * m.cfg.SemanticHeadRatio * m.cfg.CharsPerToken)
	tailChars := int(float64(targetTokens) * m.cfg.SemanticTailRatio * m.cfg.CharsPerToken)
	if headChars+tailChars >= len(runes) {
		return text
	}
	return string(runes[:headChars]) + semanticMarker + string(runes[len(runes)-tailChars:])
}

// sentenceTerminators are searched in order of position, latest wins.
var sentenceTerminators = []string{". ", "! ", "? "}

// HardTruncate cuts at the last sentence terminator before the target
// character count, or at the raw character count when no terminator exists,
// appending the truncation marker. Input already within the target comes
// back unchanged without a marker.
func (m *Manager) HardTruncate(text string, targetTokens int) string {
	runes := []rune(text)
	if m.estimateTokens(len(runes)) <= targetTokens {
		return text
	}
	targetChars := int(float64(targetTokens) * m.cfg.CharsPerToken)
	if targetChars >= len(runes) {
		return text
	}
	head := string(runes[:targetChars])
	cut := -1
	for _, term := range sentenceTerminators {
		if idx := strings.LastIndex(head, term); idx > cut {
			cut = idx
		}
	}
	if cut >= 0 {
		return head[:cut+1] + hardMarker
	}
	return head + hardMarker
}

// ExtractRelevant keeps the sentences sharing the most terms with the query,
// in original order, until the target budget fills. Returns false when no
// sentence matches any query term.
func (m *Manager) ExtractRelevant(text string, queryTerms []string, targetTokens int) (string, bool) {
	if text == "" || len(queryTerms) == 0 {
		return "", false
	}
	lowered := make([]string, len(queryTerms))
	for i, term := range queryTerms {
		lowered[i] = strings.ToLower(term)
	}

	sentences := splitIntoSentences(text)
	type scored struct {
		index int
		score int
	}
	var matches []scored
	for i, sentence := range sentences {
		lower := strings.ToLower(sentence)
		score := 0
		for _, term := range lowered {
			if strings.Contains(lower, term) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{index: i, score: score})
		}
	}
	if len(matches) == 0 {
		return "", false
	}

	// Highest-scoring sentences claim the budget first.
	ordered := append([]scored(nil), matches...)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].score > ordered[j-1].score; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	taken := make(map[int]bool)
	used := 0
	for _, s := range ordered {
		tokens := m.estimateTokens(len([]rune(sentences[s.index])))
		if used+tokens > targetTokens && used > 0 {
			continue
		}
		taken[s.index] = true
		used += tokens
	}

	// Reassemble in original order.
	var out []string
	for i, sentence := range sentences {
		if taken[i] {
			out = append(out, sentence)
		}
	}
	return strings.Join(out, " "), true
}

func (m *Manager) estimateTokens(chars int) int {
	if chars == 0 {
		return 0
	}
	return int((float64(chars) + m.cfg.CharsPerToken - 1) / m.cfg.CharsPerToken)
}

func splitIntoSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
			end := i + 1
			sentence := strings.TrimSpace(string(runes[start:end]))
			if sentence != "" {
				sentences = append(sentences, sentence)
			}
			start = end
		}
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}
