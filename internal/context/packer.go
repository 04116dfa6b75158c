package context

import (
	"sort"

	"memory-core/pkg/types"
)

// PackCandidate is one node offered to the packer.
type PackCandidate struct {
	ID            string  `json:"id"`
	Tokens        int     `json:"tokens"`
	PriorityScore float64 `json:"priority_score"`
	WasTruncated  bool    `json:"was_truncated"`
}

// PackedContext is the packing result. Invariants: used_tokens never exceeds
// budget_tokens, and included plus excluded partitions the input.
type PackedContext struct {
	Nodes          []PackCandidate `json:"nodes"`
	UsedTokens     int             `json:"used_tokens"`
	BudgetTokens   int             `json:"budget_tokens"`
	ExcludedCount  int             `json:"excluded_count"`
	TruncatedCount int             `json:"truncated_count"`
	SchemaVersion  int             `json:"_schemaVersion"`
}

// PackNodes fills a token budget from candidates. Critical nodes are
// attempted first in input order and never displace earlier critical nodes;
// the rest are packed greedily by priority descending.
func PackNodes(candidates []PackCandidate, budgetTokens int, criticalIDs []string) PackedContext {
	result := PackedContext{
		Nodes:         []PackCandidate{},
		BudgetTokens:  budgetTokens,
		SchemaVersion: types.CurrentSchemaVersion,
	}

	critical := make(map[string]bool, len(criticalIDs))
	for _, id := range criticalIDs {
		critical[id] = true
	}

	var criticalNodes, rest []PackCandidate
	for _, c := range candidates {
		if critical[c.ID] {
			criticalNodes = append(criticalNodes, c)
		} else {
			rest = append(rest, c)
		}
	}

	include := func(c PackCandidate) bool {
		if result.UsedTokens+c.Tokens > budgetTokens {
			result.ExcludedCount++
			return false
		}
		result.Nodes = append(result.Nodes, c)
		result.UsedTokens += c.Tokens
		if c.WasTruncated {
			result.TruncatedCount++
		}
		return true
	}

	for _, c := range criticalNodes {
		include(c)
	}

	sort.SliceStable(rest, func(i, j int) bool {
		return rest[i].PriorityScore > rest[j].PriorityScore
	})
	for _, c := range rest {
		include(c)
	}

	return result
}

// AttentionReorder counters the lost-in-the-middle effect: given nodes
// sorted by priority descending it returns [2nd, 3rd, ..., nth, 1st], so the
// strongest node sits at the end and the runner-up leads. Inputs of length
// zero or one come back as a copy. The input slice is never mutated.
func AttentionReorder(nodes []PackCandidate) []PackCandidate {
	out := make([]PackCandidate, 0, len(nodes))
	if len(nodes) <= 1 {
		return append(out, nodes...)
	}
	out = append(out, nodes[1:]...)
	out = append(out, nodes[0])
	return out
}
