package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"memory-core/pkg/types"
)

// nodeRow is the flat persisted shape of a node. Column names and value
// encodings are wire-stable: timestamps are ISO 8601 with timezone, JSON
// columns hold the structured sub-objects.
type nodeRow struct {
	ID                  string
	NodeType            string
	Subtype             sql.NullString
	ContentTitle        string
	ContentBody         sql.NullString
	ContentSummary      sql.NullString
	ContentBlocks       sql.NullString // JSON
	EmbeddingVector     sql.NullString // JSON array
	EmbeddingModel      sql.NullString
	EmbeddingCreatedAt  sql.NullString
	TemporalIngestedAt  string
	TemporalTimezone    sql.NullString
	TemporalEventTime   sql.NullString // JSON
	TemporalReferences  sql.NullString // JSON
	NeuralStability     float64
	NeuralRetrievability float64
	NeuralDifficulty    float64
	NeuralAccessCount   int
	NeuralLastAccessed  string
	ProvenanceSource    string
	ProvenanceParentID  sql.NullString
	ProvenanceConfidence float64
	StateExtractionDepth string
	StateLifecycle      string
	Version             int
	LastModified        string
	LastModifier        string
	Checksum            sql.NullString
	TypeSpecific        sql.NullString // JSON bag of the *_specific fields
	SchemaVersion       int
}

// typeSpecificBag groups the optional per-type field sets into one JSON
// column.
type typeSpecificBag struct {
	Episode  *types.EpisodeFields  `json:"episode_specific,omitempty"`
	Document *types.DocumentFields `json:"document_specific,omitempty"`
	Section  *types.SectionFields  `json:"section_specific,omitempty"`
	Raw      *types.RawFields      `json:"raw_specific,omitempty"`
	Chunk    *types.ChunkFields    `json:"chunk_specific,omitempty"`
	Parent   *types.ParentFields   `json:"parent_specific,omitempty"`
}

const timeLayout = time.RFC3339Nano

// rowFromNode flattens a typed node into its persisted row shape.
func rowFromNode(node *types.Node) (*nodeRow, error) {
	row := &nodeRow{
		ID:                   node.ID,
		NodeType:             string(node.Type),
		Subtype:              nullString(node.Subtype),
		ContentTitle:         node.Content.Title,
		ContentBody:          nullString(node.Content.Body),
		ContentSummary:       nullString(node.Content.Summary),
		TemporalIngestedAt:   node.Temporal.IngestedAt.Format(timeLayout),
		TemporalTimezone:     nullString(node.Temporal.Timezone),
		NeuralStability:      node.Neural.Stability,
		NeuralRetrievability: node.Neural.Retrievability,
		NeuralDifficulty:     node.Neural.Difficulty,
		NeuralAccessCount:    node.Neural.AccessCount,
		NeuralLastAccessed:   node.Neural.LastAccessed.Format(timeLayout),
		ProvenanceSource:     string(node.Provenance.Source),
		ProvenanceParentID:   nullString(node.Provenance.ParentID),
		ProvenanceConfidence: node.Provenance.Confidence,
		StateExtractionDepth: string(node.State.ExtractionDepth),
		StateLifecycle:       string(node.State.Lifecycle),
		Version:              node.Version,
		LastModified:         node.LastModified.Format(timeLayout),
		LastModifier:         string(node.LastModifier),
		Checksum:             nullString(node.Checksum),
		SchemaVersion:        node.SchemaVersion,
	}

	if len(node.Content.Blocks) > 0 {
		data, err := json.Marshal(node.Content.Blocks)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal blocks: %w", err)
		}
		row.ContentBlocks = nullString(string(data))
	}
	if node.Embedding != nil {
		data, err := json.Marshal(node.Embedding.Vector)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal embedding: %w", err)
		}
		row.EmbeddingVector = nullString(string(data))
		row.EmbeddingModel = nullString(node.Embedding.Model)
		row.EmbeddingCreatedAt = nullString(node.Embedding.CreatedAt.Format(timeLayout))
	}
	if node.Temporal.EventTime != nil {
		data, err := json.Marshal(node.Temporal.EventTime)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event time: %w", err)
		}
		row.TemporalEventTime = nullString(string(data))
	}
	if len(node.Temporal.TimeReferences) > 0 {
		data, err := json.Marshal(node.Temporal.TimeReferences)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal time references: %w", err)
		}
		row.TemporalReferences = nullString(string(data))
	}

	bag := typeSpecificBag{
		Episode:  node.EpisodeSpecific,
		Document: node.DocumentSpecific,
		Section:  node.SectionSpecific,
		Raw:      node.RawSpecific,
		Chunk:    node.ChunkSpecific,
		Parent:   node.ParentSpecific,
	}
	if bag != (typeSpecificBag{}) {
		data, err := json.Marshal(bag)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal type-specific fields: %w", err)
		}
		row.TypeSpecific = nullString(string(data))
	}
	return row, nil
}

// nodeFromRow rebuilds the typed node from its persisted row.
func nodeFromRow(row *nodeRow) (*types.Node, error) {
	ingested, err := time.Parse(timeLayout, row.TemporalIngestedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid ingested_at for node %s: %w", row.ID, err)
	}
	lastAccessed, err := time.Parse(timeLayout, row.NeuralLastAccessed)
	if err != nil {
		return nil, fmt.Errorf("invalid last_accessed for node %s: %w", row.ID, err)
	}
	lastModified, err := time.Parse(timeLayout, row.LastModified)
	if err != nil {
		return nil, fmt.Errorf("invalid last_modified for node %s: %w", row.ID, err)
	}

	node := &types.Node{
		ID:      row.ID,
		Type:    types.NodeType(row.NodeType),
		Subtype: row.Subtype.String,
		Content: types.NodeContent{
			Title:   row.ContentTitle,
			Body:    row.ContentBody.String,
			Summary: row.ContentSummary.String,
		},
		Temporal: types.NodeTemporal{
			IngestedAt: ingested,
			Timezone:   row.TemporalTimezone.String,
		},
		Neural: types.NodeNeural{
			Stability:      row.NeuralStability,
			Retrievability: row.NeuralRetrievability,
			Difficulty:     row.NeuralDifficulty,
			AccessCount:    row.NeuralAccessCount,
			LastAccessed:   lastAccessed,
		},
		Provenance: types.NodeProvenance{
			Source:     types.ProvenanceSource(row.ProvenanceSource),
			ParentID:   row.ProvenanceParentID.String,
			Confidence: row.ProvenanceConfidence,
		},
		State: types.NodeState{
			ExtractionDepth: types.ExtractionDepth(row.StateExtractionDepth),
			Lifecycle:       types.AuthoringLifecycle(row.StateLifecycle),
		},
		Version:       row.Version,
		LastModified:  lastModified,
		LastModifier:  types.Modifier(row.LastModifier),
		Checksum:      row.Checksum.String,
		SchemaVersion: row.SchemaVersion,
	}

	if row.ContentBlocks.Valid {
		if err := json.Unmarshal([]byte(row.ContentBlocks.String), &node.Content.Blocks); err != nil {
			return nil, fmt.Errorf("invalid blocks for node %s: %w", row.ID, err)
		}
	}
	if row.EmbeddingVector.Valid {
		emb := &types.NodeEmbedding{Model: row.EmbeddingModel.String}
		if err := json.Unmarshal([]byte(row.EmbeddingVector.String), &emb.Vector); err != nil {
			return nil, fmt.Errorf("invalid embedding for node %s: %w", row.ID, err)
		}
		if row.EmbeddingCreatedAt.Valid {
			if created, err := time.Parse(timeLayout, row.EmbeddingCreatedAt.String); err == nil {
				emb.CreatedAt = created
			}
		}
		node.Embedding = emb
	}
	if row.TemporalEventTime.Valid {
		var et types.EventTime
		if err := json.Unmarshal([]byte(row.TemporalEventTime.String), &et); err != nil {
			return nil, fmt.Errorf("invalid event time for node %s: %w", row.ID, err)
		}
		node.Temporal.EventTime = &et
	}
	if row.TemporalReferences.Valid {
		if err := json.Unmarshal([]byte(row.TemporalReferences.String), &node.Temporal.TimeReferences); err != nil {
			return nil, fmt.Errorf("invalid time references for node %s: %w", row.ID, err)
		}
	}
	if row.TypeSpecific.Valid {
		var bag typeSpecificBag
		if err := json.Unmarshal([]byte(row.TypeSpecific.String), &bag); err != nil {
			return nil, fmt.Errorf("invalid type-specific fields for node %s: %w", row.ID, err)
		}
		node.EpisodeSpecific = bag.Episode
		node.DocumentSpecific = bag.Document
		node.SectionSpecific = bag.Section
		node.RawSpecific = bag.Raw
		node.ChunkSpecific = bag.Chunk
		node.ParentSpecific = bag.Parent
	}
	return node, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
