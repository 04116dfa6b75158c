package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite driver
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	coreerrors "memory-core/internal/errors"
	"memory-core/internal/logging"
	"memory-core/pkg/types"
)

// SQLiteStore is the key-value graph store with secondary indices and an
// FTS5 keyword index providing the BM25 candidate set.
type SQLiteStore struct {
	db     *sql.DB
	logger logging.Logger
}

// NewSQLiteStore opens (or creates) the store at path and runs the schema.
func NewSQLiteStore(path string, logger logging.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	store := &SQLiteStore{db: db, logger: logger.WithComponent("sqlite_store")}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id TEXT PRIMARY KEY,
	node_type TEXT NOT NULL,
	subtype TEXT,
	content_title TEXT NOT NULL,
	content_body TEXT,
	content_summary TEXT,
	content_blocks TEXT,
	embedding_vector TEXT,
	embedding_model TEXT,
	embedding_created_at TEXT,
	temporal_ingested_at TEXT NOT NULL,
	temporal_timezone TEXT,
	temporal_event_time TEXT,
	temporal_references TEXT,
	neural_stability REAL NOT NULL DEFAULT 0,
	neural_retrievability REAL NOT NULL DEFAULT 1,
	neural_difficulty REAL NOT NULL DEFAULT 0,
	neural_access_count INTEGER NOT NULL DEFAULT 0,
	neural_last_accessed TEXT NOT NULL,
	provenance_source TEXT NOT NULL,
	provenance_parent_id TEXT,
	provenance_confidence REAL NOT NULL DEFAULT 1,
	state_extraction_depth TEXT NOT NULL,
	state_lifecycle TEXT NOT NULL,
	version INTEGER NOT NULL,
	last_modified TEXT NOT NULL,
	last_modifier TEXT NOT NULL,
	checksum TEXT,
	type_specific TEXT,
	schema_version INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(node_type);
CREATE INDEX IF NOT EXISTS idx_nodes_subtype ON nodes(subtype);
CREATE INDEX IF NOT EXISTS idx_nodes_last_accessed ON nodes(neural_last_accessed);
CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(provenance_parent_id);

CREATE VIRTUAL TABLE IF NOT EXISTS nodes_fts USING fts5(
	node_id UNINDEXED,
	title,
	body,
	summary
);

CREATE TABLE IF NOT EXISTS edges (
	id TEXT PRIMARY KEY,
	edge_type TEXT NOT NULL,
	subtype TEXT,
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	neural_weight REAL NOT NULL,
	strength REAL NOT NULL,
	confidence REAL NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);

CREATE TABLE IF NOT EXISTS edits (
	id TEXT PRIMARY KEY,
	node_id TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_edits_node ON edits(node_id, timestamp DESC);
`

func (s *SQLiteStore) initSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

const nodeColumns = `id, node_type, subtype, content_title, content_body, content_summary,
	content_blocks, embedding_vector, embedding_model, embedding_created_at,
	temporal_ingested_at, temporal_timezone, temporal_event_time, temporal_references,
	neural_stability, neural_retrievability, neural_difficulty, neural_access_count,
	neural_last_accessed, provenance_source, provenance_parent_id, provenance_confidence,
	state_extraction_depth, state_lifecycle, version, last_modified, last_modifier,
	checksum, type_specific, schema_version`

// PutNode validates and upserts a node, refreshing its keyword index row.
func (s *SQLiteStore) PutNode(ctx context.Context, node *types.Node) error {
	if err := node.Validate(); err != nil {
		return coreerrors.NewSchemaValidation(err)
	}
	row, err := rowFromNode(node)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO nodes (`+nodeColumns+`) VALUES
		(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		row.ID, row.NodeType, row.Subtype, row.ContentTitle, row.ContentBody, row.ContentSummary,
		row.ContentBlocks, row.EmbeddingVector, row.EmbeddingModel, row.EmbeddingCreatedAt,
		row.TemporalIngestedAt, row.TemporalTimezone, row.TemporalEventTime, row.TemporalReferences,
		row.NeuralStability, row.NeuralRetrievability, row.NeuralDifficulty, row.NeuralAccessCount,
		row.NeuralLastAccessed, row.ProvenanceSource, row.ProvenanceParentID, row.ProvenanceConfidence,
		row.StateExtractionDepth, row.StateLifecycle, row.Version, row.LastModified, row.LastModifier,
		row.Checksum, row.TypeSpecific, row.SchemaVersion)
	if err != nil {
		return fmt.Errorf("failed to upsert node %s: %w", node.ID, err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM nodes_fts WHERE node_id = ?`, node.ID); err != nil {
		return fmt.Errorf("failed to clear keyword index for %s: %w", node.ID, err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO nodes_fts (node_id, title, body, summary) VALUES (?,?,?,?)`,
		node.ID, node.Content.Title, node.Content.Body, node.Content.Summary)
	if err != nil {
		return fmt.Errorf("failed to index node %s: %w", node.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit node %s: %w", node.ID, err)
	}
	return nil
}

// GetNode loads a node by id.
func (s *SQLiteStore) GetNode(ctx context.Context, id string) (*types.Node, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
	return scanNode(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(scanner rowScanner) (*types.Node, error) {
	var r nodeRow
	err := scanner.Scan(
		&r.ID, &r.NodeType, &r.Subtype, &r.ContentTitle, &r.ContentBody, &r.ContentSummary,
		&r.ContentBlocks, &r.EmbeddingVector, &r.EmbeddingModel, &r.EmbeddingCreatedAt,
		&r.TemporalIngestedAt, &r.TemporalTimezone, &r.TemporalEventTime, &r.TemporalReferences,
		&r.NeuralStability, &r.NeuralRetrievability, &r.NeuralDifficulty, &r.NeuralAccessCount,
		&r.NeuralLastAccessed, &r.ProvenanceSource, &r.ProvenanceParentID, &r.ProvenanceConfidence,
		&r.StateExtractionDepth, &r.StateLifecycle, &r.Version, &r.LastModified, &r.LastModifier,
		&r.Checksum, &r.TypeSpecific, &r.SchemaVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, coreerrors.New(coreerrors.ErrorCodeNotFound, "node not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan node: %w", err)
	}
	return nodeFromRow(&r)
}

// DeleteNode removes a node, its index row, its incident edges, and - for a
// chunked parent - its chunks.
func (s *SQLiteStore) DeleteNode(ctx context.Context, id string) error {
	node, err := s.GetNode(ctx, id)
	if err != nil {
		return err
	}

	ids := []string{id}
	if node.ParentSpecific != nil {
		ids = append(ids, node.ParentSpecific.ChildIDs...)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, nodeID := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, nodeID); err != nil {
			return fmt.Errorf("failed to delete node %s: %w", nodeID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes_fts WHERE node_id = ?`, nodeID); err != nil {
			return fmt.Errorf("failed to deindex node %s: %w", nodeID, err)
		}
		// Edges exist only while both endpoints exist.
		if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE source_id = ? OR target_id = ?`, nodeID, nodeID); err != nil {
			return fmt.Errorf("failed to delete edges for %s: %w", nodeID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of %s: %w", id, err)
	}
	s.logger.Debug("node deleted", "node_id", id, "cascaded", len(ids)-1)
	return nil
}

// ListNodes pages through all nodes ordered by id.
func (s *SQLiteStore) ListNodes(ctx context.Context, limit, offset int) ([]*types.Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var nodes []*types.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

var queryFolder = cases.Lower(language.Und)

// KeywordCandidates runs the FTS5 BM25 query. sqlite's bm25() is
// smaller-is-better and negative for matches; scores are negated into the
// non-negative convention.
func (s *SQLiteStore) KeywordCandidates(ctx context.Context, query string, limit int) ([]BM25Candidate, error) {
	match := buildMatchQuery(query)
	if match == "" {
		return []BM25Candidate{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, bm25(nodes_fts) FROM nodes_fts WHERE nodes_fts MATCH ? ORDER BY bm25(nodes_fts) LIMIT ?`,
		match, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []BM25Candidate
	for rows.Next() {
		var c BM25Candidate
		var raw float64
		if err := rows.Scan(&c.NodeID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		c.Score = -raw
		if c.Score < 0 {
			c.Score = 0
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// buildMatchQuery folds and quotes query terms into an OR match expression,
// stripping FTS operators.
func buildMatchQuery(query string) string {
	folded := queryFolder.String(query)
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	})
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + f + `"`
	}
	return strings.Join(quoted, " OR ")
}

// Stats summarizes the stored graph.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{NodesByType: make(map[string]int64)}

	rows, err := s.db.QueryContext(ctx, `SELECT node_type, COUNT(*) FROM nodes GROUP BY node_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var nodeType string
		var count int64
		if err := rows.Scan(&nodeType, &count); err != nil {
			return nil, err
		}
		stats.NodesByType[nodeType] = count
		stats.TotalNodes += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edges`).Scan(&stats.TotalEdges); err != nil {
		return nil, fmt.Errorf("failed to count edges: %w", err)
	}
	if stats.TotalNodes > 0 {
		stats.AvgInboundEdges = float64(stats.TotalEdges) / float64(stats.TotalNodes)
	}
	return stats, nil
}

// PutEdge validates and upserts an edge. Both endpoints must resolve.
func (s *SQLiteStore) PutEdge(ctx context.Context, edge *types.Edge) error {
	if err := edge.Validate(); err != nil {
		return coreerrors.NewSchemaValidation(err)
	}
	for _, endpoint := range []string{edge.SourceID, edge.TargetID} {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE id = ?`, endpoint).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return coreerrors.Newf(coreerrors.ErrorCodeNotFound, "edge endpoint %s not found", endpoint)
		}
		if err != nil {
			return fmt.Errorf("failed to resolve endpoint %s: %w", endpoint, err)
		}
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO edges
		(id, edge_type, subtype, source_id, target_id, neural_weight, strength, confidence, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		edge.ID, string(edge.Type), edge.Subtype, edge.SourceID, edge.TargetID,
		edge.NeuralWeight, edge.Strength, edge.Confidence, edge.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to upsert edge %s: %w", edge.ID, err)
	}
	return nil
}

// DeleteEdge removes an edge by id.
func (s *SQLiteStore) DeleteEdge(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM edges WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete edge %s: %w", id, err)
	}
	return nil
}

// EdgesBySource lists outbound edges of a node.
func (s *SQLiteStore) EdgesBySource(ctx context.Context, nodeID string) ([]*types.Edge, error) {
	return s.queryEdges(ctx, `SELECT id, edge_type, subtype, source_id, target_id,
		neural_weight, strength, confidence, created_at FROM edges WHERE source_id = ? ORDER BY id`, nodeID)
}

// EdgesByTarget lists inbound edges of a node.
func (s *SQLiteStore) EdgesByTarget(ctx context.Context, nodeID string) ([]*types.Edge, error) {
	return s.queryEdges(ctx, `SELECT id, edge_type, subtype, source_id, target_id,
		neural_weight, strength, confidence, created_at FROM edges WHERE target_id = ? ORDER BY id`, nodeID)
}

func (s *SQLiteStore) queryEdges(ctx context.Context, query, nodeID string) ([]*types.Edge, error) {
	rows, err := s.db.QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []*types.Edge
	for rows.Next() {
		var e types.Edge
		var edgeType, createdAt string
		var subtype sql.NullString
		if err := rows.Scan(&e.ID, &edgeType, &subtype, &e.SourceID, &e.TargetID,
			&e.NeuralWeight, &e.Strength, &e.Confidence, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.Type = types.EdgeType(edgeType)
		e.Subtype = subtype.String
		if created, err := parseTime(createdAt); err == nil {
			e.CreatedAt = created
		}
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}

// UpdateEdgeWeight persists a cascade-decayed edge weight.
func (s *SQLiteStore) UpdateEdgeWeight(ctx context.Context, id string, weight float64) error {
	result, err := s.db.ExecContext(ctx, `UPDATE edges SET neural_weight = ? WHERE id = ?`, weight, id)
	if err != nil {
		return fmt.Errorf("failed to update edge %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return coreerrors.Newf(coreerrors.ErrorCodeNotFound, "edge %s not found", id)
	}
	return nil
}

// AppendEdit stores an edit record in the per-node history.
func (s *SQLiteStore) AppendEdit(ctx context.Context, record *types.EditRecord) error {
	if err := record.Validate(); err != nil {
		return coreerrors.NewSchemaValidation(err)
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal edit record: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO edits (id, node_id, timestamp, payload) VALUES (?,?,?,?)`,
		record.ID, record.NodeID, record.Timestamp.Format(timeLayout), string(payload))
	if err != nil {
		return fmt.Errorf("failed to append edit %s: %w", record.ID, err)
	}
	return nil
}

// EditsForNode lazy-loads a node's history, newest first.
func (s *SQLiteStore) EditsForNode(ctx context.Context, nodeID string) ([]*types.EditRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM edits WHERE node_id = ? ORDER BY timestamp DESC`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query edits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*types.EditRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var record types.EditRecord
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			return nil, fmt.Errorf("invalid edit payload for node %s: %w", nodeID, err)
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

// ReplaceEdits swaps a node's history wholesale after pruning.
func (s *SQLiteStore) ReplaceEdits(ctx context.Context, nodeID string, records []*types.EditRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM edits WHERE node_id = ?`, nodeID); err != nil {
		return fmt.Errorf("failed to clear edits for %s: %w", nodeID, err)
	}
	for _, record := range records {
		payload, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal edit record: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO edits (id, node_id, timestamp, payload) VALUES (?,?,?,?)`,
			record.ID, record.NodeID, record.Timestamp.Format(timeLayout), string(payload)); err != nil {
			return fmt.Errorf("failed to insert edit %s: %w", record.ID, err)
		}
	}
	return tx.Commit()
}

// HealthCheck pings the database.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(timeLayout, value)
}
