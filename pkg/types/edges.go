package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EdgeType represents the semantic type of an edge.
type EdgeType string

const (
	EdgeRelatesTo   EdgeType = "relates_to"
	EdgePartOf      EdgeType = "part_of"
	EdgeCauses      EdgeType = "causes"
	EdgePrecedes    EdgeType = "precedes"
	EdgeSimilarTo   EdgeType = "similar_to"
	EdgeMentionedIn EdgeType = "mentioned_in"
	EdgeDerivedFrom EdgeType = "derived_from"
	EdgeContradicts EdgeType = "contradicts"
	EdgeSupersedes  EdgeType = "supersedes"
	EdgeUserLinked  EdgeType = "user_linked"
)

// AllEdgeTypes returns every valid edge type.
func AllEdgeTypes() []EdgeType {
	return []EdgeType{
		EdgeRelatesTo, EdgePartOf, EdgeCauses, EdgePrecedes, EdgeSimilarTo,
		EdgeMentionedIn, EdgeDerivedFrom, EdgeContradicts, EdgeSupersedes,
		EdgeUserLinked,
	}
}

// Valid returns true if the edge type is valid.
func (et EdgeType) Valid() bool {
	for _, t := range AllEdgeTypes() {
		if et == t {
			return true
		}
	}
	return false
}

// IsSymmetric returns true if the edge reads the same in both directions.
func (et EdgeType) IsSymmetric() bool {
	switch et {
	case EdgeRelatesTo, EdgeSimilarTo, EdgeContradicts, EdgeUserLinked:
		return true
	}
	return false
}

// GetInverse returns the edge type as read from the target's side.
// Symmetric types invert to themselves; paired directional types swap; the
// remaining directional types (part-of/contains, precedes/follows style
// readings whose counterpart is not a persisted type) fall back to the
// general relation.
func (et EdgeType) GetInverse() EdgeType {
	if et.IsSymmetric() {
		return et
	}
	if inverse, ok := et.bidirectionalInverse(); ok {
		return inverse
	}
	return EdgeRelatesTo
}

// bidirectionalInverse returns the inverse for directional pairs that both
// exist in the persisted type set.
func (et EdgeType) bidirectionalInverse() (EdgeType, bool) {
	bidirectionalMap := map[EdgeType]EdgeType{
		EdgeCauses:      EdgeDerivedFrom,
		EdgeDerivedFrom: EdgeCauses,
	}
	inverse, exists := bidirectionalMap[et]
	return inverse, exists
}

// EdgeWeightFloor is the minimum neural weight an edge can decay to.
const EdgeWeightFloor = 0.1

// Edge is a typed, weighted connection between two nodes. Edges are owned by
// the graph: they exist while both endpoints exist.
type Edge struct {
	ID           string    `json:"id"`
	Type         EdgeType  `json:"type"`
	Subtype      string    `json:"subtype,omitempty"`
	SourceID     string    `json:"source_id"`
	TargetID     string    `json:"target_id"`
	NeuralWeight float64   `json:"neural_weight"` // 0..1, cascade-decayed, floored at EdgeWeightFloor
	Strength     float64   `json:"strength"`
	Confidence   float64   `json:"confidence"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewEdge creates an edge between two nodes.
func NewEdge(sourceID, targetID string, edgeType EdgeType, weight float64) (*Edge, error) {
	if sourceID == "" {
		return nil, errors.New("source id cannot be empty")
	}
	if targetID == "" {
		return nil, errors.New("target id cannot be empty")
	}
	if sourceID == targetID {
		return nil, errors.New("source and target ids cannot be the same")
	}
	if !edgeType.Valid() {
		return nil, fmt.Errorf("invalid edge type: %s", edgeType)
	}
	if weight < 0 || weight > 1 {
		return nil, errors.New("neural weight must be between 0 and 1")
	}
	return &Edge{
		ID:           uuid.New().String(),
		Type:         edgeType,
		SourceID:     sourceID,
		TargetID:     targetID,
		NeuralWeight: weight,
		Strength:     weight,
		Confidence:   1.0,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// Validate checks edge invariants.
func (e *Edge) Validate() error {
	if e.ID == "" {
		return errors.New("id: cannot be empty")
	}
	if !e.Type.Valid() {
		return fmt.Errorf("type: invalid edge type %q", e.Type)
	}
	if e.SourceID == "" || e.TargetID == "" {
		return errors.New("endpoints: source and target ids must be set")
	}
	if e.SourceID == e.TargetID {
		return errors.New("endpoints: source and target ids cannot be the same")
	}
	if e.NeuralWeight < 0 || e.NeuralWeight > 1 {
		return errors.New("neural_weight: must be in [0,1]")
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return errors.New("confidence: must be in [0,1]")
	}
	return nil
}
