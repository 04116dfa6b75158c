package storage

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	coreerrors "memory-core/internal/errors"
	"memory-core/pkg/types"
)

// MockStore is an in-memory Store for tests and local development. Keyword
// scoring approximates BM25 with term-frequency counts.
type MockStore struct {
	mu    sync.RWMutex
	nodes map[string]*types.Node
	edges map[string]*types.Edge
	edits map[string][]*types.EditRecord
}

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{
		nodes: make(map[string]*types.Node),
		edges: make(map[string]*types.Edge),
		edits: make(map[string][]*types.EditRecord),
	}
}

// PutNode validates and stores a deep copy of the node.
func (m *MockStore) PutNode(_ context.Context, node *types.Node) error {
	if err := node.Validate(); err != nil {
		return coreerrors.NewSchemaValidation(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[node.ID] = node.Clone()
	return nil
}

// GetNode returns a deep copy of the stored node.
func (m *MockStore) GetNode(_ context.Context, id string) (*types.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	node, ok := m.nodes[id]
	if !ok {
		return nil, coreerrors.New(coreerrors.ErrorCodeNotFound, "node not found")
	}
	return node.Clone(), nil
}

// DeleteNode removes a node, cascading to chunks and incident edges.
func (m *MockStore) DeleteNode(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok := m.nodes[id]
	if !ok {
		return coreerrors.New(coreerrors.ErrorCodeNotFound, "node not found")
	}
	ids := []string{id}
	if node.ParentSpecific != nil {
		ids = append(ids, node.ParentSpecific.ChildIDs...)
	}
	for _, nodeID := range ids {
		delete(m.nodes, nodeID)
		for edgeID, edge := range m.edges {
			if edge.SourceID == nodeID || edge.TargetID == nodeID {
				delete(m.edges, edgeID)
			}
		}
	}
	return nil
}

// ListNodes pages through nodes ordered by id.
func (m *MockStore) ListNodes(_ context.Context, limit, offset int) ([]*types.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []*types.Node
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.nodes[ids[i]].Clone())
	}
	return out, nil
}

// KeywordCandidates scores nodes by query term frequency over title, body,
// and summary.
func (m *MockStore) KeywordCandidates(_ context.Context, query string, limit int) ([]BM25Candidate, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return []BM25Candidate{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []BM25Candidate
	for id, node := range m.nodes {
		text := strings.ToLower(node.Content.Title + " " + node.Content.Body + " " + node.Content.Summary)
		score := 0.0
		for _, term := range terms {
			score += float64(strings.Count(text, term))
		}
		if score > 0 {
			candidates = append(candidates, BM25Candidate{NodeID: id, Score: score})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].NodeID < candidates[j].NodeID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// Stats summarizes the stored graph.
func (m *MockStore) Stats(_ context.Context) (*StoreStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := &StoreStats{NodesByType: make(map[string]int64)}
	for _, node := range m.nodes {
		stats.NodesByType[string(node.Type)]++
		stats.TotalNodes++
	}
	stats.TotalEdges = int64(len(m.edges))
	if stats.TotalNodes > 0 {
		stats.AvgInboundEdges = float64(stats.TotalEdges) / float64(stats.TotalNodes)
	}
	return stats, nil
}

// PutEdge validates and stores an edge; both endpoints must exist.
func (m *MockStore) PutEdge(_ context.Context, edge *types.Edge) error {
	if err := edge.Validate(); err != nil {
		return coreerrors.NewSchemaValidation(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, endpoint := range []string{edge.SourceID, edge.TargetID} {
		if _, ok := m.nodes[endpoint]; !ok {
			return coreerrors.Newf(coreerrors.ErrorCodeNotFound, "edge endpoint %s not found", endpoint)
		}
	}
	copied := *edge
	m.edges[edge.ID] = &copied
	return nil
}

// DeleteEdge removes an edge.
func (m *MockStore) DeleteEdge(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.edges, id)
	return nil
}

// EdgesBySource lists outbound edges ordered by id.
func (m *MockStore) EdgesBySource(_ context.Context, nodeID string) ([]*types.Edge, error) {
	return m.filterEdges(func(e *types.Edge) bool { return e.SourceID == nodeID }), nil
}

// EdgesByTarget lists inbound edges ordered by id.
func (m *MockStore) EdgesByTarget(_ context.Context, nodeID string) ([]*types.Edge, error) {
	return m.filterEdges(func(e *types.Edge) bool { return e.TargetID == nodeID }), nil
}

func (m *MockStore) filterEdges(keep func(*types.Edge) bool) []*types.Edge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Edge
	for _, edge := range m.edges {
		if keep(edge) {
			copied := *edge
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdateEdgeWeight persists a new edge weight.
func (m *MockStore) UpdateEdgeWeight(_ context.Context, id string, weight float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	edge, ok := m.edges[id]
	if !ok {
		return coreerrors.Newf(coreerrors.ErrorCodeNotFound, "edge %s not found", id)
	}
	edge.NeuralWeight = weight
	return nil
}

// AppendEdit stores an edit record.
func (m *MockStore) AppendEdit(_ context.Context, record *types.EditRecord) error {
	if err := record.Validate(); err != nil {
		return coreerrors.NewSchemaValidation(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *record
	m.edits[record.NodeID] = append([]*types.EditRecord{&copied}, m.edits[record.NodeID]...)
	return nil
}

// EditsForNode returns a node's history, newest first.
func (m *MockStore) EditsForNode(_ context.Context, nodeID string) ([]*types.EditRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := m.edits[nodeID]
	out := make([]*types.EditRecord, len(records))
	for i, r := range records {
		copied := *r
		out[i] = &copied
	}
	return out, nil
}

// ReplaceEdits swaps a node's history.
func (m *MockStore) ReplaceEdits(_ context.Context, nodeID string, records []*types.EditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.EditRecord, len(records))
	for i, r := range records {
		copied := *r
		out[i] = &copied
	}
	m.edits[nodeID] = out
	return nil
}

// HealthCheck always succeeds.
func (m *MockStore) HealthCheck(context.Context) error { return nil }

// Close is a no-op.
func (m *MockStore) Close() error { return nil }

// MockVectorStore is an in-memory similarity oracle using cosine similarity.
type MockVectorStore struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewMockVectorStore creates an empty vector store.
func NewMockVectorStore() *MockVectorStore {
	return &MockVectorStore{vectors: make(map[string][]float32)}
}

// Initialize is a no-op.
func (m *MockVectorStore) Initialize(context.Context) error { return nil }

// UpsertVector stores a vector.
func (m *MockVectorStore) UpsertVector(_ context.Context, nodeID string, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[nodeID] = append([]float32(nil), vector...)
	return nil
}

// SemanticCandidates ranks stored vectors by cosine similarity, mapped to
// [0,1].
func (m *MockVectorStore) SemanticCandidates(_ context.Context, vector []float32, limit int) ([]SemanticCandidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SemanticCandidate
	for id, stored := range m.vectors {
		out = append(out, SemanticCandidate{NodeID: id, Score: cosine01(vector, stored)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].NodeID < out[j].NodeID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteVector removes a vector.
func (m *MockVectorStore) DeleteVector(_ context.Context, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vectors, nodeID)
	return nil
}

// Close is a no-op.
func (m *MockVectorStore) Close() error { return nil }

// cosine01 maps cosine similarity from [-1,1] into [0,1].
func cosine01(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (cos + 1) / 2
}
