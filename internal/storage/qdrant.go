package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"memory-core/internal/logging"
)

// QdrantStore adapts a qdrant collection to the similarity-oracle contract.
// Node ids are mapped to deterministic point UUIDs; the original id rides in
// the payload.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	logger     logging.Logger
}

// NewQdrantStore connects to qdrant.
func NewQdrantStore(host string, port int, collection string, dimension int, logger logging.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	return &QdrantStore{
		client:     client,
		collection: collection,
		dimension:  dimension,
		logger:     logger.WithComponent("qdrant_store"),
	}, nil
}

// Initialize creates the collection if it does not exist.
func (q *QdrantStore) Initialize(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", q.collection, err)
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", q.collection, err)
	}
	q.logger.Info("qdrant collection created", "collection", q.collection, "dimension", q.dimension)
	return nil
}

// pointID derives the deterministic qdrant point id for a node.
func pointID(nodeID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(nodeID)).String()
}

// UpsertVector stores a node's embedding.
func (q *QdrantStore) UpsertVector(ctx context.Context, nodeID string, vector []float32) error {
	if len(vector) != q.dimension {
		return fmt.Errorf("vector length %d does not match collection dimension %d", len(vector), q.dimension)
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(pointID(nodeID)),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(map[string]any{"node_id": nodeID}),
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert vector for %s: %w", nodeID, err)
	}
	return nil
}

// SemanticCandidates returns the nearest nodes to a query vector with cosine
// scores.
func (q *QdrantStore) SemanticCandidates(ctx context.Context, vector []float32, limit int) ([]SemanticCandidate, error) {
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("semantic query failed: %w", err)
	}

	candidates := make([]SemanticCandidate, 0, len(points))
	for _, point := range points {
		nodeID := ""
		if payload := point.GetPayload(); payload != nil {
			if v, ok := payload["node_id"]; ok {
				nodeID = v.GetStringValue()
			}
		}
		if nodeID == "" {
			continue
		}
		score := float64(point.GetScore())
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		candidates = append(candidates, SemanticCandidate{NodeID: nodeID, Score: score})
	}
	return candidates, nil
}

// DeleteVector removes a node's embedding.
func (q *QdrantStore) DeleteVector(ctx context.Context, nodeID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewID(pointID(nodeID))),
	})
	if err != nil {
		return fmt.Errorf("failed to delete vector for %s: %w", nodeID, err)
	}
	return nil
}

// Close closes the qdrant connection.
func (q *QdrantStore) Close() error {
	return q.client.Close()
}
