package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memory-core/internal/config"
	memcontext "memory-core/internal/context"
	coreerrors "memory-core/internal/errors"
	"memory-core/pkg/types"
)

func newService(t *testing.T) (*QueryService, *MockStore) {
	t.Helper()
	store := NewMockStore()
	svc := NewQueryService(store, nil, nil, config.DefaultConfig(), nil)
	return svc, store
}

func seedNode(t *testing.T, store *MockStore, title, body string) *types.Node {
	t.Helper()
	node, err := types.NewNode(types.NodeTypeNote, title)
	require.NoError(t, err)
	node.Content.Body = body
	node.Neural.Stability = 30
	node.Neural.LastAccessed = time.Now().UTC().AddDate(0, 0, -1)
	require.NoError(t, store.PutNode(context.Background(), node))
	return node
}

func TestQueryEmptyStore(t *testing.T) {
	svc, _ := newService(t)
	resp, err := svc.Query(context.Background(), QueryRequest{Query: "anything", ModelID: "claude-sonnet-4"})
	require.NoError(t, err)
	assert.Empty(t, resp.Nodes)
	assert.Zero(t, resp.ExcludedCount)
}

func TestQueryPipeline(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	deploy := seedNode(t, store, "deploy runbook", "How we deploy the service to production.")
	rollback := seedNode(t, store, "rollback steps", "Rolling back a bad deploy takes three steps.")
	lunch := seedNode(t, store, "lunch spots", "Good lunch places near the office.")

	edge, err := types.NewEdge(deploy.ID, rollback.ID, types.EdgeRelatesTo, 0.9)
	require.NoError(t, err)
	require.NoError(t, store.PutEdge(ctx, edge))

	resp, err := svc.Query(ctx, QueryRequest{
		Query:      "deploy procedure",
		ModelID:    "claude-sonnet-4",
		UserTokens: 500,
	})
	require.NoError(t, err)

	ids := make([]string, len(resp.Nodes))
	for i, n := range resp.Nodes {
		ids[i] = n.ID
	}
	assert.Contains(t, ids, deploy.ID)
	assert.Contains(t, ids, rollback.ID)
	assert.NotContains(t, ids, lunch.ID, "non-matching node not retrieved")

	assert.Equal(t, memcontext.ActionProceed, resp.Allocation.Action)
	assert.Equal(t, 1, resp.SchemaVersion)
}

func TestQueryTouchesIncludedNodes(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	node := seedNode(t, store, "touched note", "Content about the widget architecture.")
	before, err := store.GetNode(ctx, node.ID)
	require.NoError(t, err)

	_, err = svc.Query(ctx, QueryRequest{Query: "widget architecture", ModelID: "gpt-4o"})
	require.NoError(t, err)

	after, err := store.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Neural.AccessCount+1, after.Neural.AccessCount)
	assert.Greater(t, after.Neural.Stability, before.Neural.Stability)
	assert.Equal(t, 1.0, after.Neural.Retrievability)
}

func TestQuerySpreadsToNeighbors(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	match := seedNode(t, store, "incident report", "The gateway incident on the payment path.")
	neighbor := seedNode(t, store, "gateway design", "Design of the gateway component.")
	// The neighbor shares no query terms; only the edge can pull it in.
	neighbor.Content.Body = "Component layout and ownership."
	require.NoError(t, store.PutNode(ctx, neighbor))

	edge, err := types.NewEdge(match.ID, neighbor.ID, types.EdgeCauses, 0.9)
	require.NoError(t, err)
	require.NoError(t, store.PutEdge(ctx, edge))

	resp, err := svc.Query(ctx, QueryRequest{Query: "payment incident", ModelID: "claude-sonnet-4"})
	require.NoError(t, err)

	var neighborIncluded bool
	for _, n := range resp.Nodes {
		if n.ID == neighbor.ID {
			neighborIncluded = true
			assert.Positive(t, n.Activation, "spread-discovered node carries activation")
		}
	}
	assert.True(t, neighborIncluded, "spreading activation pulls in connected nodes")
}

func TestQuerySpreadsAlongInverseEdges(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	match := seedNode(t, store, "outage report", "The cache outage last night.")
	upstream := seedNode(t, store, "eviction logic note", "Internal details nobody queries directly.")

	// Edge points upstream -> match; only the inverse reading connects the
	// matched node back to its cause.
	edge, err := types.NewEdge(upstream.ID, match.ID, types.EdgeCauses, 0.9)
	require.NoError(t, err)
	require.NoError(t, store.PutEdge(ctx, edge))

	resp, err := svc.Query(ctx, QueryRequest{Query: "cache outage", ModelID: "claude-sonnet-4"})
	require.NoError(t, err)

	var upstreamIncluded bool
	for _, n := range resp.Nodes {
		if n.ID == upstream.ID {
			upstreamIncluded = true
			assert.Positive(t, n.Activation)
		}
	}
	assert.True(t, upstreamIncluded, "activation follows inbound edges through their inverse type")
}

func TestQueryTemporalFilter(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	recent := seedNode(t, store, "deploy log recent", "deploy happened")
	old := seedNode(t, store, "deploy log ancient", "deploy happened")
	old.Temporal.IngestedAt = time.Now().UTC().AddDate(-2, 0, 0)
	require.NoError(t, store.PutNode(ctx, old))

	resp, err := svc.Query(ctx, QueryRequest{Query: "deploy from the past 3 days", ModelID: "gpt-4o"})
	require.NoError(t, err)
	require.NotNil(t, resp.TimeConstraint)

	ids := make([]string, len(resp.Nodes))
	for i, n := range resp.Nodes {
		ids[i] = n.ID
	}
	assert.Contains(t, ids, recent.ID)
	assert.NotContains(t, ids, old.ID, "nodes outside the time range filtered out")
}

func TestQueryCriticalPinning(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	low := seedNode(t, store, "deploy minor note", "deploy trivia")
	high := seedNode(t, store, "deploy main runbook", "deploy deploy deploy deploy")

	resp, err := svc.Query(ctx, QueryRequest{
		Query:       "deploy",
		ModelID:     "claude-sonnet-4",
		CriticalIDs: []string{low.ID},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Nodes)

	ids := make([]string, len(resp.Nodes))
	for i, n := range resp.Nodes {
		ids[i] = n.ID
	}
	assert.Contains(t, ids, low.ID, "critical node always included when it fits")
	assert.Contains(t, ids, high.ID, "budget is ample, the rest still packs")
}

func TestServiceEdit(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	node := seedNode(t, store, "editable", "foo")

	result := svc.Edit(ctx, node.ID, &types.EditRequest{
		ExpectedVersion: 1,
		Operation: types.EditOperation{
			Target:  types.EditTarget{Method: types.TargetFull},
			Action:  types.ActionReplace,
			Content: "bar",
		},
		Actor: types.ModifierUser,
	})
	require.True(t, result.Success)

	stored, err := store.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
	assert.Equal(t, "bar", stored.Content.Body)

	records, err := store.EditsForNode(ctx, node.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].FromVersion)

	t.Run("stale version fails", func(t *testing.T) {
		stale := svc.Edit(ctx, node.ID, &types.EditRequest{
			ExpectedVersion: 1,
			Operation: types.EditOperation{
				Target:  types.EditTarget{Method: types.TargetFull},
				Action:  types.ActionReplace,
				Content: "baz",
			},
			Actor: types.ModifierUser,
		})
		require.False(t, stale.Success)
		assert.Equal(t, coreerrors.ErrorCodeVersionMismatch, stale.Error.Code)
	})

	t.Run("unknown node", func(t *testing.T) {
		missing := svc.Edit(ctx, "n_000000000000", &types.EditRequest{
			ExpectedVersion: 1,
			Operation: types.EditOperation{
				Target:  types.EditTarget{Method: types.TargetFull},
				Action:  types.ActionReplace,
				Content: "x",
			},
			Actor: types.ModifierUser,
		})
		require.False(t, missing.Success)
		assert.Equal(t, coreerrors.ErrorCodeNotFound, missing.Error.Code)
	})
}

func TestRunDecaySweep(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	fresh := seedNode(t, store, "fresh", "recently used")
	stale, err := types.NewNode(types.NodeTypeNote, "stale")
	require.NoError(t, err)
	stale.Content.Body = "long forgotten"
	stale.Neural.Stability = 7
	stale.Neural.LastAccessed = time.Now().UTC().AddDate(0, 0, -90)
	require.NoError(t, store.PutNode(ctx, stale))

	edge, err := types.NewEdge(fresh.ID, stale.ID, types.EdgeRelatesTo, 0.8)
	require.NoError(t, err)
	require.NoError(t, store.PutEdge(ctx, edge))

	report, err := svc.RunDecaySweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Evaluated)
	require.Contains(t, report.DecayedEdges, edge.ID)

	outbound, err := store.EdgesBySource(ctx, fresh.ID)
	require.NoError(t, err)
	require.Len(t, outbound, 1)
	assert.InDelta(t, 0.64, outbound[0].NeuralWeight, 1e-9, "cascade decay persisted")
}
