// Package storage provides the persistence adapters for the memory core:
// the node/edge/edit store contract, a sqlite implementation with FTS5 BM25
// candidates, a qdrant adapter behind the similarity-oracle contract, a
// redis read-through node cache, and an in-memory mock for tests.
package storage

import (
	"context"

	"memory-core/pkg/types"
)

// BM25Candidate is one keyword-search hit. Scores are non-negative; higher
// is better.
type BM25Candidate struct {
	NodeID string  `json:"node_id"`
	Score  float64 `json:"score"`
}

// SemanticCandidate is one vector-search hit with cosine similarity in [0,1].
type SemanticCandidate struct {
	NodeID string  `json:"node_id"`
	Score  float64 `json:"score"`
}

// StoreStats summarizes the graph for rerank normalization and operations.
type StoreStats struct {
	TotalNodes      int64            `json:"total_nodes"`
	TotalEdges      int64            `json:"total_edges"`
	NodesByType     map[string]int64 `json:"nodes_by_type"`
	AvgInboundEdges float64          `json:"avg_inbound_edges"`
}

// NodeStore is primitive node-by-id persistence plus the BM25 candidate
// contract.
type NodeStore interface {
	PutNode(ctx context.Context, node *types.Node) error
	GetNode(ctx context.Context, id string) (*types.Node, error)
	// DeleteNode removes a node; deleting a chunked parent cascades to its
	// chunks.
	DeleteNode(ctx context.Context, id string) error
	ListNodes(ctx context.Context, limit, offset int) ([]*types.Node, error)
	// KeywordCandidates returns the BM25 candidate set for a text query.
	KeywordCandidates(ctx context.Context, query string, limit int) ([]BM25Candidate, error)
	Stats(ctx context.Context) (*StoreStats, error)
}

// EdgeStore lists and mutates graph edges by endpoint.
type EdgeStore interface {
	PutEdge(ctx context.Context, edge *types.Edge) error
	DeleteEdge(ctx context.Context, id string) error
	EdgesBySource(ctx context.Context, nodeID string) ([]*types.Edge, error)
	EdgesByTarget(ctx context.Context, nodeID string) ([]*types.Edge, error)
	UpdateEdgeWeight(ctx context.Context, id string, weight float64) error
}

// EditStore owns the per-node append-only edit history.
type EditStore interface {
	AppendEdit(ctx context.Context, record *types.EditRecord) error
	EditsForNode(ctx context.Context, nodeID string) ([]*types.EditRecord, error)
	// ReplaceEdits swaps a node's history wholesale (retention pruning).
	ReplaceEdits(ctx context.Context, nodeID string, records []*types.EditRecord) error
}

// Store is the full persistence contract.
type Store interface {
	NodeStore
	EdgeStore
	EditStore
	HealthCheck(ctx context.Context) error
	Close() error
}

// VectorStore is the similarity-oracle adapter: it holds node vectors and
// answers semantic candidate queries. The core never generates embeddings.
type VectorStore interface {
	Initialize(ctx context.Context) error
	UpsertVector(ctx context.Context, nodeID string, vector []float32) error
	SemanticCandidates(ctx context.Context, vector []float32, limit int) ([]SemanticCandidate, error)
	DeleteVector(ctx context.Context, nodeID string) error
	Close() error
}

// EmbeddingService is the consumed embedding oracle contract.
type EmbeddingService interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GetModel() string
	GetDimension() int
}

// behavioralSubtypePrefixes and behavioralNodeTypes map node subtypes and
// types to the behavioral type the
// decay engine keys its tables on.
var behavioralSubtypePrefixes = map[string]string{
	"person":     "person",
	"contact":    "person",
	"preference": "preference",
	"fact":       "fact",
	"definition": "fact",
	"event":      "event",
	"meeting":    "event",
}

var behavioralNodeTypes = map[types.NodeType]string{
	types.NodeTypeConcept:  "concept",
	types.NodeTypeEpisode:  "event",
	types.NodeTypeNote:     "note",
	types.NodeTypeDocument: "document",
	types.NodeTypeSection:  "document",
	types.NodeTypeChunk:    "document",
	types.NodeTypeRaw:      "document",
}

// InverseEdge returns an edge as read from its target: endpoints swapped
// and the type inverted. This is how a node's inbound set is derived into
// outbound form for traversal.
func InverseEdge(e *types.Edge) *types.Edge {
	inverse := *e
	inverse.SourceID, inverse.TargetID = e.TargetID, e.SourceID
	inverse.Type = e.Type.GetInverse()
	return &inverse
}

// BehavioralType resolves the decay-engine type for a node: subtype prefix
// first, then the node type, then the fact baseline.
func BehavioralType(node *types.Node) string {
	for prefix, behavioral := range behavioralSubtypePrefixes {
		if len(node.Subtype) >= len(prefix) && node.Subtype[:len(prefix)] == prefix {
			return behavioral
		}
	}
	if behavioral, ok := behavioralNodeTypes[node.Type]; ok {
		return behavioral
	}
	return "fact"
}
