// Package activation implements spreading activation: bounded best-first
// traversal from seed nodes along typed edges with per-hop decay, activation
// thresholds, and sum/max aggregation. Deterministic: ties on activation
// break on (hops ascending, id ascending).
package activation

import (
	"container/heap"
	"sort"

	"memory-core/internal/config"
)

// Edge is the traversal view of a graph edge.
type Edge struct {
	TargetID string  `json:"target_id"`
	Type     string  `json:"type"`   // edge type or subtype, keys the base weight table
	Weight   float64 `json:"weight"` // explicit neural weight; 0 falls back to the type table
}

// Graph supplies outbound edges for traversal. Implementations must be safe
// for read-only concurrent use.
type Graph interface {
	Outbound(nodeID string) []Edge
}

// GraphFunc adapts a function to the Graph interface.
type GraphFunc func(nodeID string) []Edge

// Outbound implements Graph.
func (f GraphFunc) Outbound(nodeID string) []Edge { return f(nodeID) }

// Result is one activated node with the activation mass it accumulated and
// the path that contributed most.
type Result struct {
	ID         string   `json:"id"`
	Activation float64  `json:"activation"`
	Path       []string `json:"path"`
}

// Spreader runs spreading activation over a graph.
type Spreader struct {
	cfg config.ActivationConfig
}

// NewSpreader creates a spreader with the given configuration.
func NewSpreader(cfg config.ActivationConfig) *Spreader {
	return &Spreader{cfg: cfg}
}

// entry is a pending expansion in the priority queue.
type entry struct {
	id         string
	activation float64
	hops       int
	path       []string
}

// entryQueue orders entries by activation descending, then hops ascending,
// then id ascending.
type entryQueue []*entry

func (q entryQueue) Len() int { return len(q) }
func (q entryQueue) Less(i, j int) bool {
	if q[i].activation != q[j].activation {
		return q[i].activation > q[j].activation
	}
	if q[i].hops != q[j].hops {
		return q[i].hops < q[j].hops
	}
	return q[i].id < q[j].id
}
func (q entryQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *entryQueue) Push(x any)   { *q = append(*q, x.(*entry)) }
func (q *entryQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// nodeState tracks accumulated activation and the best contributing path.
type nodeState struct {
	activation   float64
	bestIncoming float64
	path         []string
}

// Spread activates the seeds at the configured initial activation and
// propagates along outbound edges. Propagation stops at the hop limit, below
// the activation threshold, and when the distinct node count reaches the
// configured maximum. Results are ranked by activation descending.
func (s *Spreader) Spread(g Graph, seeds []string) []Result {
	if len(seeds) == 0 {
		return []Result{}
	}

	states := make(map[string]*nodeState)
	hopsAt := make(map[string]int)
	queue := &entryQueue{}
	heap.Init(queue)

	for _, seed := range seeds {
		if _, ok := states[seed]; ok {
			continue
		}
		states[seed] = &nodeState{
			activation:   s.cfg.InitialActivation,
			bestIncoming: s.cfg.InitialActivation,
			path:         []string{seed},
		}
		hopsAt[seed] = 0
		heap.Push(queue, &entry{
			id:         seed,
			activation: s.cfg.InitialActivation,
			hops:       0,
			path:       []string{seed},
		})
	}

	for queue.Len() > 0 {
		current := heap.Pop(queue).(*entry)
		if current.hops >= s.cfg.MaxHops {
			continue
		}
		for _, edge := range g.Outbound(current.id) {
			child := current.activation * s.cfg.HopDecay * s.edgeWeight(edge)
			if child < s.cfg.MinThreshold {
				continue
			}
			state, seen := states[edge.TargetID]
			if !seen {
				if len(states) >= s.cfg.MaxNodes {
					continue
				}
				state = &nodeState{}
				states[edge.TargetID] = state
				hopsAt[edge.TargetID] = current.hops + 1
			}

			previous := state.activation
			switch s.cfg.Aggregation {
			case config.AggregationMax:
				if child > state.activation {
					state.activation = child
				}
			default: // sum
				state.activation += child
			}
			if child > state.bestIncoming {
				state.bestIncoming = child
				state.path = appendPath(current.path, edge.TargetID)
			} else if state.path == nil {
				state.path = appendPath(current.path, edge.TargetID)
			}

			// Cycles are handled by aggregation: a revisit only re-enqueues
			// when its activation strictly increased.
			if state.activation > previous {
				heap.Push(queue, &entry{
					id:         edge.TargetID,
					activation: state.activation,
					hops:       current.hops + 1,
					path:       appendPath(current.path, edge.TargetID),
				})
			}
		}
	}

	results := make([]Result, 0, len(states))
	for id, state := range states {
		results = append(results, Result{
			ID:         id,
			Activation: state.activation,
			Path:       state.path,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Activation != results[j].Activation {
			return results[i].Activation > results[j].Activation
		}
		if hopsAt[results[i].ID] != hopsAt[results[j].ID] {
			return hopsAt[results[i].ID] < hopsAt[results[j].ID]
		}
		return results[i].ID < results[j].ID
	})
	return results
}

func (s *Spreader) edgeWeight(e Edge) float64 {
	if e.Weight > 0 {
		return e.Weight
	}
	if w, ok := s.cfg.EdgeWeights[e.Type]; ok {
		return w
	}
	return s.cfg.DefaultEdgeWeight
}

func appendPath(path []string, id string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = id
	return out
}
