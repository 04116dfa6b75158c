// Package types provides the core data model for the knowledge-memory
// engine: typed graph nodes with neural decay properties, edges, content
// blocks, and versioned edit records.
package types

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// CurrentSchemaVersion tags every persisted aggregate record.
const CurrentSchemaVersion = 1

// MaxStabilityDays caps neural stability growth.
const MaxStabilityDays = 365.0

// NodeType represents the structural type of a node.
type NodeType string

const (
	NodeTypeConcept  NodeType = "concept"
	NodeTypeEpisode  NodeType = "episode"
	NodeTypeDocument NodeType = "document"
	NodeTypeSection  NodeType = "section"
	NodeTypeChunk    NodeType = "chunk"
	NodeTypeNote     NodeType = "note"
	NodeTypeRaw      NodeType = "raw"
)

// Valid returns true if the node type is valid.
func (nt NodeType) Valid() bool {
	switch nt {
	case NodeTypeConcept, NodeTypeEpisode, NodeTypeDocument, NodeTypeSection,
		NodeTypeChunk, NodeTypeNote, NodeTypeRaw:
		return true
	}
	return false
}

// EventTimeSource represents how an event time was determined.
type EventTimeSource string

const (
	EventTimeExplicit   EventTimeSource = "explicit"
	EventTimeInferred   EventTimeSource = "inferred"
	EventTimeUserStated EventTimeSource = "user_stated"
)

// Valid returns true if the event time source is valid.
func (s EventTimeSource) Valid() bool {
	switch s {
	case EventTimeExplicit, EventTimeInferred, EventTimeUserStated:
		return true
	}
	return false
}

// ProvenanceSource represents how a node entered the graph.
type ProvenanceSource string

const (
	ProvenanceExtraction ProvenanceSource = "extraction"
	ProvenanceManual     ProvenanceSource = "manual"
	ProvenanceInference  ProvenanceSource = "inference"
	ProvenanceImport     ProvenanceSource = "import"
)

// Valid returns true if the provenance source is valid.
func (s ProvenanceSource) Valid() bool {
	switch s {
	case ProvenanceExtraction, ProvenanceManual, ProvenanceInference, ProvenanceImport:
		return true
	}
	return false
}

// ExtractionDepth represents how much of a source has been extracted.
type ExtractionDepth string

const (
	DepthSummary ExtractionDepth = "summary"
	DepthSection ExtractionDepth = "section"
	DepthFull    ExtractionDepth = "full"
)

// Valid returns true if the extraction depth is valid.
func (d ExtractionDepth) Valid() bool {
	switch d {
	case DepthSummary, DepthSection, DepthFull:
		return true
	}
	return false
}

// AuthoringLifecycle is the authoring state of a node. This is distinct from
// the decay lifecycle derived from retrievability.
type AuthoringLifecycle string

const (
	LifecycleWorking    AuthoringLifecycle = "working"
	LifecycleActive     AuthoringLifecycle = "active"
	LifecycleSuperseded AuthoringLifecycle = "superseded"
	LifecycleDormant    AuthoringLifecycle = "dormant"
	LifecycleArchived   AuthoringLifecycle = "archived"
)

// Valid returns true if the authoring lifecycle is valid.
func (l AuthoringLifecycle) Valid() bool {
	switch l {
	case LifecycleWorking, LifecycleActive, LifecycleSuperseded, LifecycleDormant, LifecycleArchived:
		return true
	}
	return false
}

// Modifier represents who last modified a node.
type Modifier string

const (
	ModifierUser   Modifier = "user"
	ModifierAI     Modifier = "ai"
	ModifierSystem Modifier = "system"
	ModifierSync   Modifier = "sync"
)

// Valid returns true if the modifier is valid.
func (m Modifier) Valid() bool {
	switch m {
	case ModifierUser, ModifierAI, ModifierSystem, ModifierSync:
		return true
	}
	return false
}

// NodeContent holds the textual content of a node.
type NodeContent struct {
	Title   string  `json:"title"`
	Body    string  `json:"body,omitempty"`
	Summary string  `json:"summary,omitempty"`
	Blocks  []Block `json:"blocks,omitempty"`
}

// NodeEmbedding holds the dense vector for a node along with the model that
// produced it. Vector length must be consistent per model.
type NodeEmbedding struct {
	Vector    []float32 `json:"vector"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// EventTime is an optional time the node's content refers to, with the
// confidence of that resolution.
type EventTime struct {
	Value      time.Time       `json:"value"`
	Confidence float64         `json:"confidence"`
	Source     EventTimeSource `json:"source"`
}

// TimeReference is an in-content time expression resolved to an ISO value.
type TimeReference struct {
	Text       string  `json:"text"`
	Resolved   string  `json:"resolved"` // ISO 8601 with timezone
	Confidence float64 `json:"confidence"`
}

// NodeTemporal holds the temporal metadata of a node.
type NodeTemporal struct {
	IngestedAt     time.Time       `json:"ingested_at"`
	Timezone       string          `json:"timezone"`
	EventTime      *EventTime      `json:"event_time,omitempty"`
	TimeReferences []TimeReference `json:"time_references,omitempty"`
}

// NodeNeural holds the FSRS-style decay fields of a node.
type NodeNeural struct {
	Stability      float64   `json:"stability"`      // days, >= 0, capped at 365
	Retrievability float64   `json:"retrievability"` // 0..1
	Difficulty     float64   `json:"difficulty"`     // 0..1
	AccessCount    int       `json:"access_count"`
	LastAccessed   time.Time `json:"last_accessed"`
}

// NodeProvenance records where a node came from.
type NodeProvenance struct {
	Source     ProvenanceSource `json:"source"`
	ParentID   string           `json:"parent_id,omitempty"`
	Confidence float64          `json:"confidence"` // 0..1
}

// NodeState holds the extraction and authoring state of a node.
type NodeState struct {
	ExtractionDepth ExtractionDepth    `json:"extraction_depth"`
	Lifecycle       AuthoringLifecycle `json:"lifecycle"`
}

// TemporalConfidence is the three-factor confidence quad for episode times.
// Combined must equal Source * Granularity * Interpretation.
type TemporalConfidence struct {
	Source         float64 `json:"source"`
	Granularity    float64 `json:"granularity"`
	Interpretation float64 `json:"interpretation"`
	Combined       float64 `json:"combined"`
}

// Consistent reports whether the combined value equals the factor product.
func (tc *TemporalConfidence) Consistent() bool {
	return math.Abs(tc.Combined-tc.Source*tc.Granularity*tc.Interpretation) < 1e-9
}

// EpisodeFields carries episode-specific attributes.
type EpisodeFields struct {
	DurationMinutes    int                 `json:"duration_minutes,omitempty"`
	ConceptLinks       []string            `json:"concept_links,omitempty"`
	Participants       []string            `json:"participants,omitempty"`
	TemporalConfidence *TemporalConfidence `json:"temporal_confidence,omitempty"`
}

// DocumentFields carries document-specific attributes.
type DocumentFields struct {
	Format           string   `json:"format,omitempty"`
	WordCount        int      `json:"word_count,omitempty"`
	Sections         []string `json:"sections,omitempty"`
	ExtractionStatus string   `json:"extraction_status,omitempty"`
}

// SectionFields carries section-specific attributes.
type SectionFields struct {
	DocumentID string   `json:"document_id"`
	Heading    string   `json:"heading,omitempty"`
	Position   int      `json:"position"`
	Concepts   []string `json:"concepts,omitempty"`
}

// RawFields carries raw-source attributes.
type RawFields struct {
	ContentType      string `json:"content_type,omitempty"`
	FileSizeBytes    int64  `json:"file_size_bytes,omitempty"`
	ExtractionStatus string `json:"extraction_status,omitempty"`
}

// ChunkFields links a chunk node to its parent document and siblings.
// The first chunk has no previous id; the last has no next id.
type ChunkFields struct {
	ParentID        string `json:"parent_id"`
	ChunkIndex      int    `json:"chunk_index"`
	PreviousChunkID string `json:"previous_chunk_id,omitempty"`
	NextChunkID     string `json:"next_chunk_id,omitempty"`
	TokenCount      int    `json:"token_count"`
	OverlapTokens   int    `json:"overlap_tokens,omitempty"`
}

// ParentFields marks a document node as the owner of an ordered chunk set.
type ParentFields struct {
	IsParent     bool     `json:"is_parent"`
	ChildIDs     []string `json:"child_ids"`
	TotalTokens  int      `json:"total_tokens"`
	TotalChunks  int      `json:"total_chunks"`
	DocumentType string   `json:"document_type,omitempty"`
}

// Node is the universal content entity of the knowledge graph.
type Node struct {
	ID      string   `json:"id"`
	Type    NodeType `json:"type"`
	Subtype string   `json:"subtype,omitempty"`

	Content    NodeContent    `json:"content"`
	Embedding  *NodeEmbedding `json:"embedding,omitempty"`
	Temporal   NodeTemporal   `json:"temporal"`
	Neural     NodeNeural     `json:"neural"`
	Provenance NodeProvenance `json:"provenance"`
	State      NodeState      `json:"state"`

	Version      int       `json:"version"`
	LastModified time.Time `json:"last_modified"`
	LastModifier Modifier  `json:"last_modifier"`
	Checksum     string    `json:"checksum,omitempty"`

	EpisodeSpecific  *EpisodeFields  `json:"episode_specific,omitempty"`
	DocumentSpecific *DocumentFields `json:"document_specific,omitempty"`
	SectionSpecific  *SectionFields  `json:"section_specific,omitempty"`
	RawSpecific      *RawFields      `json:"raw_specific,omitempty"`
	ChunkSpecific    *ChunkFields    `json:"chunk_specific,omitempty"`
	ParentSpecific   *ParentFields   `json:"parent_specific,omitempty"`

	SchemaVersion int `json:"_schemaVersion"`
}

// NewNode creates a node with a fresh id and defaults.
func NewNode(nodeType NodeType, title string) (*Node, error) {
	if !nodeType.Valid() {
		return nil, fmt.Errorf("invalid node type: %s", nodeType)
	}
	now := time.Now().UTC()
	return &Node{
		ID:    NewNodeID(),
		Type:  nodeType,
		Content: NodeContent{
			Title: title,
		},
		Temporal: NodeTemporal{
			IngestedAt: now,
			Timezone:   "UTC",
		},
		Neural: NodeNeural{
			Retrievability: 1.0,
			LastAccessed:   now,
		},
		Provenance: NodeProvenance{
			Source:     ProvenanceManual,
			Confidence: 1.0,
		},
		State: NodeState{
			ExtractionDepth: DepthFull,
			Lifecycle:       LifecycleWorking,
		},
		Version:       1,
		LastModified:  now,
		LastModifier:  ModifierSystem,
		SchemaVersion: CurrentSchemaVersion,
	}, nil
}

// Validate checks node invariants. The returned error identifies the first
// failing path.
func (n *Node) Validate() error {
	if !ValidNodeID(n.ID) {
		return fmt.Errorf("id: invalid node id %q", n.ID)
	}
	if !n.Type.Valid() {
		return fmt.Errorf("type: invalid node type %q", n.Type)
	}
	if (n.Type == NodeTypeConcept || n.Type == NodeTypeEpisode) && n.Subtype == "" {
		return fmt.Errorf("subtype: %s nodes require a non-empty subtype", n.Type)
	}
	if n.Version < 1 {
		return errors.New("version: must be >= 1")
	}
	if !n.LastModifier.Valid() {
		return fmt.Errorf("last_modifier: invalid modifier %q", n.LastModifier)
	}
	if err := ValidateBlockTree(n.Content.Blocks); err != nil {
		return fmt.Errorf("content.blocks: %w", err)
	}
	if err := n.validateNeural(); err != nil {
		return err
	}
	if err := n.validateTemporal(); err != nil {
		return err
	}
	if !n.Provenance.Source.Valid() {
		return fmt.Errorf("provenance.source: invalid source %q", n.Provenance.Source)
	}
	if n.Provenance.Confidence < 0 || n.Provenance.Confidence > 1 {
		return errors.New("provenance.confidence: must be in [0,1]")
	}
	if !n.State.ExtractionDepth.Valid() {
		return fmt.Errorf("state.extraction_depth: invalid depth %q", n.State.ExtractionDepth)
	}
	if !n.State.Lifecycle.Valid() {
		return fmt.Errorf("state.lifecycle: invalid lifecycle %q", n.State.Lifecycle)
	}
	if n.Embedding != nil && len(n.Embedding.Vector) == 0 {
		return errors.New("embedding.vector: must be non-empty when embedding present")
	}
	if n.EpisodeSpecific != nil && n.EpisodeSpecific.TemporalConfidence != nil &&
		!n.EpisodeSpecific.TemporalConfidence.Consistent() {
		return errors.New("episode_specific.temporal_confidence.combined: must equal source*granularity*interpretation")
	}
	if n.ParentSpecific != nil && n.ParentSpecific.TotalChunks != len(n.ParentSpecific.ChildIDs) {
		return errors.New("parent_specific.total_chunks: must equal len(child_ids)")
	}
	return nil
}

func (n *Node) validateNeural() error {
	if n.Neural.Stability < 0 || n.Neural.Stability > MaxStabilityDays {
		return fmt.Errorf("neural.stability: must be in [0,%v] days", MaxStabilityDays)
	}
	if n.Neural.Retrievability < 0 || n.Neural.Retrievability > 1 {
		return errors.New("neural.retrievability: must be in [0,1]")
	}
	if n.Neural.Difficulty < 0 || n.Neural.Difficulty > 1 {
		return errors.New("neural.difficulty: must be in [0,1]")
	}
	if n.Neural.AccessCount < 0 {
		return errors.New("neural.access_count: must be >= 0")
	}
	return nil
}

func (n *Node) validateTemporal() error {
	if n.Temporal.IngestedAt.IsZero() {
		return errors.New("temporal.ingested_at: must be set")
	}
	if et := n.Temporal.EventTime; et != nil {
		if et.Confidence < 0 || et.Confidence > 1 {
			return errors.New("temporal.event_time.confidence: must be in [0,1]")
		}
		if !et.Source.Valid() {
			return fmt.Errorf("temporal.event_time.source: invalid source %q", et.Source)
		}
	}
	for i := range n.Temporal.TimeReferences {
		ref := &n.Temporal.TimeReferences[i]
		if ref.Confidence < 0 || ref.Confidence > 1 {
			return fmt.Errorf("temporal.time_references[%d].confidence: must be in [0,1]", i)
		}
	}
	return nil
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	out := *n
	out.Content.Blocks = CopyBlocks(n.Content.Blocks)
	if n.Embedding != nil {
		emb := *n.Embedding
		emb.Vector = append([]float32(nil), n.Embedding.Vector...)
		out.Embedding = &emb
	}
	if n.Temporal.EventTime != nil {
		et := *n.Temporal.EventTime
		out.Temporal.EventTime = &et
	}
	out.Temporal.TimeReferences = append([]TimeReference(nil), n.Temporal.TimeReferences...)
	if n.EpisodeSpecific != nil {
		ep := *n.EpisodeSpecific
		ep.ConceptLinks = append([]string(nil), n.EpisodeSpecific.ConceptLinks...)
		ep.Participants = append([]string(nil), n.EpisodeSpecific.Participants...)
		if n.EpisodeSpecific.TemporalConfidence != nil {
			tc := *n.EpisodeSpecific.TemporalConfidence
			ep.TemporalConfidence = &tc
		}
		out.EpisodeSpecific = &ep
	}
	if n.DocumentSpecific != nil {
		doc := *n.DocumentSpecific
		doc.Sections = append([]string(nil), n.DocumentSpecific.Sections...)
		out.DocumentSpecific = &doc
	}
	if n.SectionSpecific != nil {
		sec := *n.SectionSpecific
		sec.Concepts = append([]string(nil), n.SectionSpecific.Concepts...)
		out.SectionSpecific = &sec
	}
	if n.RawSpecific != nil {
		raw := *n.RawSpecific
		out.RawSpecific = &raw
	}
	if n.ChunkSpecific != nil {
		ch := *n.ChunkSpecific
		out.ChunkSpecific = &ch
	}
	if n.ParentSpecific != nil {
		par := *n.ParentSpecific
		par.ChildIDs = append([]string(nil), n.ParentSpecific.ChildIDs...)
		out.ParentSpecific = &par
	}
	return &out
}
