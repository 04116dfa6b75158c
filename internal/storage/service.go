package storage

import (
	"context"
	"sort"
	"strings"
	"time"

	"memory-core/internal/activation"
	"memory-core/internal/chunking"
	"memory-core/internal/config"
	memcontext "memory-core/internal/context"
	"memory-core/internal/decay"
	"memory-core/internal/edits"
	coreerrors "memory-core/internal/errors"
	"memory-core/internal/logging"
	"memory-core/internal/rerank"
	"memory-core/internal/temporal"
	"memory-core/pkg/types"
)

// QueryService composes the full retrieval pipeline: temporal parse,
// BM25 + semantic candidates, rerank, spreading activation, prioritization,
// budget allocation, packing, truncation, and attention ordering.
type QueryService struct {
	store    Store
	vectors  VectorStore
	embedder EmbeddingService

	cfg      *config.Config
	decay    *decay.Engine
	reranker *rerank.Reranker
	spreader *activation.Spreader
	parser   *temporal.Parser
	window   *memcontext.Manager
	editor   *edits.Engine
	logger   logging.Logger
}

// NewQueryService wires the pipeline. vectors and embedder are optional; a
// nil pair disables the semantic signal.
func NewQueryService(store Store, vectors VectorStore, embedder EmbeddingService, cfg *config.Config, logger logging.Logger) *QueryService {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &QueryService{
		store:    store,
		vectors:  vectors,
		embedder: embedder,
		cfg:      cfg,
		decay:    decay.NewEngine(cfg.Decay),
		reranker: rerank.NewReranker(cfg.Rerank),
		spreader: activation.NewSpreader(cfg.Activation),
		parser:   temporal.NewParser(cfg.Temporal),
		window:   memcontext.NewManager(cfg.Context),
		editor:   edits.NewEngine(cfg.Edit),
		logger:   logger.WithComponent("query_service"),
	}
}

// candidateLimit bounds the raw retrieval set before reranking.
const candidateLimit = 50

// seedLimit bounds how many top reranked nodes seed spreading activation.
const seedLimit = 5

// QueryRequest is one retrieval request.
type QueryRequest struct {
	Query         string               `json:"query"`
	ModelID       string               `json:"model_id"`
	UserTokens    int                  `json:"user_tokens"`
	History       []memcontext.Message `json:"history,omitempty"`
	HistoryTokens []int                `json:"history_tokens,omitempty"`
	PriorSummary  string               `json:"prior_summary,omitempty"`
	CriticalIDs   []string             `json:"critical_ids,omitempty"`
}

// AssembledNode is one node placed into the final context.
type AssembledNode struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Text       string  `json:"text"`
	Tokens     int     `json:"tokens"`
	Score      float64 `json:"score"`
	Activation float64 `json:"activation,omitempty"`
	Priority   float64 `json:"priority"`
	Truncated  bool    `json:"truncated"`
}

// QueryResponse is the assembled context for a request.
type QueryResponse struct {
	TimeConstraint *temporal.Constraint       `json:"time_constraint,omitempty"`
	Nodes          []AssembledNode            `json:"nodes"`
	Allocation     memcontext.Allocation      `json:"allocation"`
	History        memcontext.HistoryAnalysis `json:"history"`
	ExcludedCount  int                        `json:"excluded_count"`
	TruncatedCount int                        `json:"truncated_count"`
	SchemaVersion  int                        `json:"_schemaVersion"`
}

// Query runs the full pipeline for a request.
func (s *QueryService) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	now := time.Now().UTC()

	constraint := s.parser.Parse(req.Query, now)

	pool, err := s.gatherCandidates(ctx, req.Query, constraint)
	if err != nil {
		return nil, err
	}

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	ranked := s.reranker.Rerank(pool.rerankCandidates(), rerank.GraphMetrics{
		AvgInboundEdges: stats.AvgInboundEdges,
	}, nil, now)

	activations := s.expand(ctx, ranked, pool)

	assembled := s.assemble(ctx, req, ranked, activations, pool, now)

	history := s.window.AnalyzeHistory(req.History, req.HistoryTokens, req.PriorSummary)

	retrievedTokens := 0
	for _, node := range assembled {
		retrievedTokens += node.tokens
	}
	allocation := s.window.Allocate(memcontext.AllocationRequest{
		ModelID:         req.ModelID,
		UserTokens:      req.UserTokens,
		RetrievedTokens: retrievedTokens,
		HistoryTokens:   history.TotalTokens,
	})

	packed := s.pack(assembled, allocation.RetrievedCapacity, req.CriticalIDs)
	ordered := memcontext.AttentionReorder(packed.Nodes)

	response := &QueryResponse{
		TimeConstraint: constraint,
		Nodes:          make([]AssembledNode, 0, len(ordered)),
		Allocation:     allocation,
		History:        history,
		ExcludedCount:  packed.ExcludedCount,
		TruncatedCount: packed.TruncatedCount,
		SchemaVersion:  types.CurrentSchemaVersion,
	}
	byID := make(map[string]*assembledCandidate, len(assembled))
	for _, a := range assembled {
		byID[a.node.ID] = a
	}
	for _, candidate := range ordered {
		a := byID[candidate.ID]
		response.Nodes = append(response.Nodes, AssembledNode{
			ID:         a.node.ID,
			Title:      a.node.Content.Title,
			Text:       a.text,
			Tokens:     a.tokens,
			Score:      a.score,
			Activation: a.activation,
			Priority:   a.priority,
			Truncated:  a.truncated,
		})
	}

	s.touchIncluded(ctx, response.Nodes, now)

	s.logger.Debug("query assembled",
		"candidates", len(pool.nodes), "included", len(response.Nodes),
		"excluded", response.ExcludedCount, "action", string(allocation.Action))
	return response, nil
}

// candidatePool is the merged retrieval working set.
type candidatePool struct {
	nodes    map[string]*types.Node
	keyword  map[string]float64
	semantic map[string]float64
	graph    map[string]float64
	inbound  map[string]int
	order    []string
}

func (p *candidatePool) rerankCandidates() []rerank.Candidate {
	out := make([]rerank.Candidate, 0, len(p.order))
	for _, id := range p.order {
		node := p.nodes[id]
		c := rerank.Candidate{
			ID:               id,
			BM25Score:        p.keyword[id],
			GraphScore:       p.graph[id],
			LastAccessed:     node.Neural.LastAccessed,
			CreatedAt:        node.Temporal.IngestedAt,
			AccessCount:      node.Neural.AccessCount,
			InboundEdgeCount: p.inbound[id],
			Subtype:          node.Subtype,
		}
		if score, ok := p.semantic[id]; ok {
			s := score
			c.SemanticScore = &s
		}
		out = append(out, c)
	}
	return out
}

func (s *QueryService) gatherCandidates(ctx context.Context, query string, constraint *temporal.Constraint) (*candidatePool, error) {
	pool := &candidatePool{
		nodes:    make(map[string]*types.Node),
		keyword:  make(map[string]float64),
		semantic: make(map[string]float64),
		graph:    make(map[string]float64),
		inbound:  make(map[string]int),
	}

	keyword, err := s.store.KeywordCandidates(ctx, query, candidateLimit)
	if err != nil {
		return nil, err
	}
	for _, c := range keyword {
		pool.keyword[c.NodeID] = c.Score
	}

	if s.vectors != nil && s.embedder != nil {
		vector, err := s.embedder.GenerateEmbedding(ctx, query)
		if err != nil {
			s.logger.Warn("embedding oracle failed, semantic signal disabled", "error", err.Error())
		} else {
			semantic, err := s.vectors.SemanticCandidates(ctx, vector, candidateLimit)
			if err != nil {
				s.logger.Warn("semantic search failed", "error", err.Error())
			} else {
				for _, c := range semantic {
					pool.semantic[c.NodeID] = c.Score
				}
			}
		}
	}

	ids := make([]string, 0, len(pool.keyword)+len(pool.semantic))
	for id := range pool.keyword {
		ids = append(ids, id)
	}
	for id := range pool.semantic {
		if _, seen := pool.keyword[id]; !seen {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		node, err := s.store.GetNode(ctx, id)
		if err != nil {
			if coreerrors.CodeOf(err) == coreerrors.ErrorCodeNotFound {
				continue // stale index entry
			}
			return nil, err
		}
		if constraint != nil && !matchesConstraint(node, constraint) {
			continue
		}
		pool.nodes[id] = node
		pool.order = append(pool.order, id)
		inbound, err := s.store.EdgesByTarget(ctx, id)
		if err != nil {
			return nil, err
		}
		pool.inbound[id] = len(inbound)
	}
	return pool, nil
}

// matchesConstraint keeps nodes whose event time (preferred) or ingestion
// time falls in the constraint range.
func matchesConstraint(node *types.Node, constraint *temporal.Constraint) bool {
	when := node.Temporal.IngestedAt
	if node.Temporal.EventTime != nil {
		when = node.Temporal.EventTime.Value
	}
	return !when.Before(constraint.RangeStart) && when.Before(constraint.RangeEnd)
}

// expand runs spreading activation from the top reranked nodes and pulls
// newly discovered nodes into the pool.
func (s *QueryService) expand(ctx context.Context, ranked []rerank.Result, pool *candidatePool) map[string]float64 {
	seeds := make([]string, 0, seedLimit)
	for i := 0; i < len(ranked) && i < seedLimit; i++ {
		seeds = append(seeds, ranked[i].ID)
	}
	if len(seeds) == 0 {
		return map[string]float64{}
	}

	// Activation spreads both ways: outbound edges as stored, inbound edges
	// read back through their inverse type.
	graph := activation.GraphFunc(func(nodeID string) []activation.Edge {
		outbound, err := s.store.EdgesBySource(ctx, nodeID)
		if err != nil {
			return nil
		}
		inbound, err := s.store.EdgesByTarget(ctx, nodeID)
		if err != nil {
			return nil
		}
		out := make([]activation.Edge, 0, len(outbound)+len(inbound))
		for _, e := range outbound {
			out = append(out, traversalEdge(e))
		}
		for _, e := range inbound {
			out = append(out, traversalEdge(InverseEdge(e)))
		}
		return out
	})

	results := s.spreader.Spread(graph, seeds)
	activations := make(map[string]float64, len(results))
	for _, r := range results {
		activations[r.ID] = r.Activation
		if _, known := pool.nodes[r.ID]; !known {
			node, err := s.store.GetNode(ctx, r.ID)
			if err != nil {
				continue
			}
			pool.nodes[r.ID] = node
			pool.order = append(pool.order, r.ID)
		}
	}
	return activations
}

// traversalEdge converts a stored edge into the activation view. The
// subtype, when present, keys the base-weight table ahead of the type.
func traversalEdge(e *types.Edge) activation.Edge {
	key := e.Subtype
	if key == "" {
		key = string(e.Type)
	}
	return activation.Edge{TargetID: e.TargetID, Type: key, Weight: e.NeuralWeight}
}

// assembledCandidate pairs a node with its pipeline scores and final text.
type assembledCandidate struct {
	node       *types.Node
	text       string
	tokens     int
	score      float64
	activation float64
	priority   float64
	truncated  bool
}

// maxNodeShare bounds a single node's share of the retrieval budget before
// truncation kicks in.
const maxNodeShare = 5

func (s *QueryService) assemble(ctx context.Context, req QueryRequest, ranked []rerank.Result, activations map[string]float64, pool *candidatePool, now time.Time) []*assembledCandidate {
	budget := s.window.DeriveBudget(req.ModelID)
	nodeCap := budget.DefaultRetrieved / maxNodeShare
	queryTerms := strings.Fields(strings.ToLower(req.Query))

	scoreByID := make(map[string]float64, len(ranked))
	maxScore := 0.0
	for _, r := range ranked {
		scoreByID[r.ID] = r.Score
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}

	out := make([]*assembledCandidate, 0, len(pool.order))
	for _, id := range pool.order {
		node := pool.nodes[id]
		body := node.Content.Body
		if body == "" {
			body = node.Content.Title
		}
		tokens := chunking.EstimateTokensRatio(body, s.cfg.Chunking.CharsPerToken)

		text := body
		truncated := false
		if nodeCap > 0 && tokens > nodeCap {
			result := s.window.Truncate(body, node.Content.Summary, queryTerms, tokens, nodeCap)
			text = result.Text
			truncated = result.Truncated
			tokens = chunking.EstimateTokensRatio(text, s.cfg.Chunking.CharsPerToken)
		}

		retrieval := 0.0
		if maxScore > 0 {
			retrieval = scoreByID[id] / maxScore
		}
		snapshot := s.decay.Evaluate(node, now)
		factors := memcontext.PriorityFactors{
			RetrievalScore: retrieval,
			QueryMentioned: queryMentioned(node, queryTerms),
			Recency:        s.window.RecencyScore(snapshot.DaysSinceAccess),
			Connectivity:   s.window.ConnectivityScore(pool.inbound[id]),
			Importance:     node.Provenance.Confidence,
		}

		out = append(out, &assembledCandidate{
			node:       node,
			text:       text,
			tokens:     tokens,
			score:      scoreByID[id],
			activation: activations[id],
			priority:   s.window.PriorityScore(factors),
			truncated:  truncated,
		})
	}
	return out
}

func queryMentioned(node *types.Node, queryTerms []string) float64 {
	title := strings.ToLower(node.Content.Title)
	for _, term := range queryTerms {
		if len(term) >= 3 && strings.Contains(title, term) {
			return 1.0
		}
	}
	return 0.0
}

func (s *QueryService) pack(assembled []*assembledCandidate, budget int, criticalIDs []string) memcontext.PackedContext {
	candidates := make([]memcontext.PackCandidate, len(assembled))
	for i, a := range assembled {
		candidates[i] = memcontext.PackCandidate{
			ID:            a.node.ID,
			Tokens:        a.tokens,
			PriorityScore: a.priority,
			WasTruncated:  a.truncated,
		}
	}
	return memcontext.PackNodes(candidates, budget, criticalIDs)
}

// touchIncluded applies the access write path to every node that made it
// into the context: stability bump, access count, last accessed.
func (s *QueryService) touchIncluded(ctx context.Context, included []AssembledNode, now time.Time) {
	for _, assembled := range included {
		node, err := s.store.GetNode(ctx, assembled.ID)
		if err != nil {
			continue
		}
		s.decay.Touch(node, now)
		if err := s.store.PutNode(ctx, node); err != nil {
			s.logger.Warn("failed to persist access", "node_id", node.ID, "error", err.Error())
		}
	}
}

// Edit applies a safe edit to a stored node, persists the result, appends
// the edit record, and prunes history per retention policy.
func (s *QueryService) Edit(ctx context.Context, nodeID string, req *types.EditRequest) edits.Result {
	node, err := s.store.GetNode(ctx, nodeID)
	if err != nil {
		if ce, ok := err.(*coreerrors.CoreError); ok {
			return edits.Result{Error: ce}
		}
		return edits.Result{Error: coreerrors.New(coreerrors.ErrorCodeStorageError, err.Error())}
	}

	now := time.Now().UTC()
	result := s.editor.SafeEdit(node, req, now)
	if !result.Success {
		return result
	}

	if err := s.store.PutNode(ctx, result.UpdatedNode); err != nil {
		return edits.Result{Error: coreerrors.New(coreerrors.ErrorCodeStorageError, err.Error())}
	}
	if err := s.store.AppendEdit(ctx, result.Record); err != nil {
		s.logger.Error("failed to append edit record", "node_id", nodeID, "error", err.Error())
	}

	records, err := s.store.EditsForNode(ctx, nodeID)
	if err == nil {
		pruned := s.editor.Prune(records, now)
		if len(pruned) != len(records) {
			if err := s.store.ReplaceEdits(ctx, nodeID, pruned); err != nil {
				s.logger.Warn("failed to prune edit history", "node_id", nodeID, "error", err.Error())
			}
		}
	}
	return result
}

// RunDecaySweep evaluates every node, persists cascade-decayed edge weights,
// and returns the lifecycle partition.
func (s *QueryService) RunDecaySweep(ctx context.Context) (*decay.SweepReport, error) {
	const page = 500
	var nodes []*types.Node
	for offset := 0; ; offset += page {
		batch, err := s.store.ListNodes(ctx, page, offset)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, batch...)
		if len(batch) < page {
			break
		}
	}

	edgeSet := make(map[string]*types.Edge)
	for _, node := range nodes {
		outbound, err := s.store.EdgesBySource(ctx, node.ID)
		if err != nil {
			return nil, err
		}
		for _, e := range outbound {
			edgeSet[e.ID] = e
		}
	}
	edgeList := make([]*types.Edge, 0, len(edgeSet))
	for _, e := range edgeSet {
		edgeList = append(edgeList, e)
	}
	sort.Slice(edgeList, func(i, j int) bool { return edgeList[i].ID < edgeList[j].ID })

	report := s.decay.Sweep(nodes, edgeList, time.Now().UTC())
	for edgeID, weight := range report.DecayedEdges {
		if err := s.store.UpdateEdgeWeight(ctx, edgeID, weight); err != nil {
			s.logger.Warn("failed to persist cascade decay", "edge_id", edgeID, "error", err.Error())
		}
	}
	s.logger.Info("decay sweep complete", "nodes", report.Evaluated, "decayed_edges", len(report.DecayedEdges))
	return &report, nil
}
