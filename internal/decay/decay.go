// Package decay implements the FSRS-derived forgetting model: retrievability
// as a pure function of elapsed time and stability, stability growth on
// access, decay lifecycle derivation, and cascade decay on edges incident to
// weak nodes. Everything here is computed on read; the only write path is
// Touch, invoked when a node is actually accessed.
package decay

import (
	"math"
	"time"

	"memory-core/internal/config"
	"memory-core/pkg/types"
)

// State is the decay lifecycle of a node, derived from retrievability and
// dormancy. Distinct from the authoring lifecycle on NodeState.
type State string

const (
	StateActive   State = "ACTIVE"
	StateWeak     State = "WEAK"
	StateDormant  State = "DORMANT"
	StateCompress State = "COMPRESS"
	StateArchive  State = "ARCHIVE"
)

// Engine evaluates decay for nodes and edges.
type Engine struct {
	cfg config.DecayConfig
}

// NewEngine creates a decay engine with the given configuration.
func NewEngine(cfg config.DecayConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Retrievability computes R(t,S) = exp(-t/S) for t days since last access
// and stability S in days. Degenerate stability (S <= 0) yields R = 0.
func Retrievability(daysSince, stability float64) float64 {
	if stability <= 0 {
		return 0
	}
	if daysSince < 0 {
		daysSince = 0
	}
	return math.Exp(-daysSince / stability)
}

// InitialStability returns the starting stability in days for a behavioral
// node type. Unknown types get the fact baseline.
func (e *Engine) InitialStability(behavioralType string) float64 {
	if s, ok := e.cfg.InitialStability[behavioralType]; ok {
		return s
	}
	return e.cfg.InitialStability["fact"]
}

// InitialDifficulty returns the starting difficulty for a behavioral node
// type. Unknown types get the fact baseline.
func (e *Engine) InitialDifficulty(behavioralType string) float64 {
	if d, ok := e.cfg.InitialDifficulty[behavioralType]; ok {
		return d
	}
	return e.cfg.InitialDifficulty["fact"]
}

// UpdateDifficulty recomputes difficulty from a node's behavioral type,
// content length, and edge count:
//
//	base(type) + min(len/5000,1)*0.15 + (concept bonus) - min(edges/40,1)*0.15
//
// clamped to [0,1]. Longer content is harder to retain; well-connected
// content is easier.
func (e *Engine) UpdateDifficulty(behavioralType string, contentLength, edgeCount int) float64 {
	d := e.InitialDifficulty(behavioralType)
	d += math.Min(float64(contentLength)/e.cfg.LengthNorm, 1.0) * e.cfg.LengthWeight
	if behavioralType == "concept" {
		d += e.cfg.ConceptBonus
	}
	d -= math.Min(float64(edgeCount)/e.cfg.EdgesNorm, 1.0) * e.cfg.EdgesWeight
	return clamp01(d)
}

// StabilityOnAccess grows stability when a node is accessed:
//
//	S' = min(S * growth * (1 - damping*difficulty), cap)
func (e *Engine) StabilityOnAccess(stability, difficulty float64) float64 {
	grown := stability * e.cfg.StabilityGrowthFactor * (1 - e.cfg.DifficultyDamping*difficulty)
	return math.Min(grown, e.cfg.MaxStabilityDays)
}

// LifecycleFor derives the decay state from retrievability and days dormant.
// DORMANT is emitted for both the <DormantDays and <RestatedDays bands;
// compression begins only past RestatedDays.
func (e *Engine) LifecycleFor(retrievability, daysDormant float64) State {
	switch {
	case retrievability > e.cfg.ActiveThreshold:
		return StateActive
	case retrievability > e.cfg.WeakThreshold:
		return StateWeak
	case daysDormant < e.cfg.DormantDays:
		return StateDormant
	case daysDormant < e.cfg.RestatedDays:
		return StateDormant
	case daysDormant < e.cfg.CompressDays:
		return StateCompress
	default:
		return StateArchive
	}
}

// Snapshot is the decay evaluation of a node at an instant. Pure function of
// the stored row and now.
type Snapshot struct {
	NodeID          string  `json:"node_id"`
	Retrievability  float64 `json:"retrievability"`
	DaysSinceAccess float64 `json:"days_since_access"`
	State           State   `json:"state"`
}

// Evaluate computes the current decay snapshot for a node without mutating it.
func (e *Engine) Evaluate(node *types.Node, now time.Time) Snapshot {
	days := daysBetween(node.Neural.LastAccessed, now)
	r := Retrievability(days, node.Neural.Stability)
	return Snapshot{
		NodeID:          node.ID,
		Retrievability:  r,
		DaysSinceAccess: days,
		State:           e.LifecycleFor(r, days),
	}
}

// Touch applies an access to the node: stability grows, the access counter
// increments, last_accessed moves to now, and retrievability resets to 1.
// Callers must serialize Touch per node id.
func (e *Engine) Touch(node *types.Node, now time.Time) {
	node.Neural.Stability = e.StabilityOnAccess(node.Neural.Stability, node.Neural.Difficulty)
	node.Neural.AccessCount++
	node.Neural.LastAccessed = now
	node.Neural.Retrievability = 1.0
}

// CascadeEdgeWeight applies cascade decay to an edge whose endpoint has the
// given retrievability: below the cascade threshold the weight is multiplied
// by the decay factor, floored at the edge weight floor. Idempotent per
// evaluation.
func (e *Engine) CascadeEdgeWeight(weight, endpointRetrievability float64) float64 {
	if endpointRetrievability >= e.cfg.CascadeRetrievability {
		return weight
	}
	decayed := weight * e.cfg.CascadeDecayFactor
	return math.Max(decayed, e.cfg.EdgeWeightFloor)
}

// SweepReport partitions a node set by decay state and carries the edges
// whose weights cascade-decayed. The sweep performs no I/O: the caller
// persists the returned edge weights.
type SweepReport struct {
	Counts       map[State]int      `json:"counts"`
	DecayedEdges map[string]float64 `json:"decayed_edges"` // edge id -> new weight
	Evaluated    int                `json:"evaluated"`
}

// Sweep evaluates every node and applies cascade decay to edges incident to
// nodes below the cascade threshold.
func (e *Engine) Sweep(nodes []*types.Node, edges []*types.Edge, now time.Time) SweepReport {
	report := SweepReport{
		Counts:       make(map[State]int),
		DecayedEdges: make(map[string]float64),
	}
	retrievabilityByID := make(map[string]float64, len(nodes))
	for _, node := range nodes {
		snap := e.Evaluate(node, now)
		report.Counts[snap.State]++
		report.Evaluated++
		retrievabilityByID[node.ID] = snap.Retrievability
	}
	for _, edge := range edges {
		lowest := 1.0
		if r, ok := retrievabilityByID[edge.SourceID]; ok && r < lowest {
			lowest = r
		}
		if r, ok := retrievabilityByID[edge.TargetID]; ok && r < lowest {
			lowest = r
		}
		next := e.CascadeEdgeWeight(edge.NeuralWeight, lowest)
		if next != edge.NeuralWeight {
			report.DecayedEdges[edge.ID] = next
		}
	}
	return report
}

func daysBetween(from, to time.Time) float64 {
	if from.IsZero() || to.Before(from) {
		return 0
	}
	return to.Sub(from).Hours() / 24.0
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
