package edits

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memory-core/pkg/types"
)

func blockOp(blockID string) *types.EditOperation {
	return &types.EditOperation{
		Target:  types.EditTarget{Method: types.TargetBlockID, BlockID: blockID},
		Action:  types.ActionReplace,
		Content: "x",
	}
}

func TestCanAutoMerge(t *testing.T) {
	node, err := types.NewNode(types.NodeTypeNote, "n")
	require.NoError(t, err)
	blockA := types.NewBlock(types.BlockParagraph, "a")
	blockB := types.NewBlock(types.BlockParagraph, "b")
	node.Content.Blocks = []types.Block{blockA, blockB}

	t.Run("disjoint blocks merge", func(t *testing.T) {
		assert.True(t, CanAutoMerge(node, blockOp(blockA.ID), blockOp(blockB.ID)))
	})

	t.Run("same block never merges", func(t *testing.T) {
		assert.False(t, CanAutoMerge(node, blockOp(blockA.ID), blockOp(blockA.ID)))
	})

	t.Run("full document never merges", func(t *testing.T) {
		full := &types.EditOperation{
			Target:  types.EditTarget{Method: types.TargetFull},
			Action:  types.ActionReplace,
			Content: "y",
		}
		assert.False(t, CanAutoMerge(node, full, blockOp(blockB.ID)))
		assert.False(t, CanAutoMerge(node, blockOp(blockA.ID), full))
	})

	t.Run("two body edits conflict", func(t *testing.T) {
		search := &types.EditOperation{
			Target: types.EditTarget{Method: types.TargetSearch, Search: "a"},
			Action: types.ActionDelete,
		}
		position := &types.EditOperation{
			Target:  types.EditTarget{Method: types.TargetPosition, Position: types.PositionEnd},
			Action:  types.ActionAppend,
			Content: "z",
		}
		assert.False(t, CanAutoMerge(node, search, position))
	})

	t.Run("heading resolves to its block", func(t *testing.T) {
		heading := types.NewBlock(types.BlockHeading, "Title")
		heading.Level = 1
		node.Content.Blocks = append(node.Content.Blocks, heading)
		headingOp := &types.EditOperation{
			Target:  types.EditTarget{Method: types.TargetHeading, Heading: "Title"},
			Action:  types.ActionReplace,
			Content: "New",
		}
		assert.False(t, CanAutoMerge(node, headingOp, blockOp(heading.ID)))
		assert.True(t, CanAutoMerge(node, headingOp, blockOp(blockA.ID)))
	})
}

func TestUndoable(t *testing.T) {
	record := &types.EditRecord{
		ID:          types.NewEditID(),
		NodeID:      types.NewNodeID(),
		Timestamp:   testNow,
		Actor:       types.ModifierUser,
		FromVersion: 1,
		ToVersion:   2,
		Undoable:    true,
		UndoExpires: testNow.Add(24 * time.Hour),
		ReverseOperation: &types.EditOperation{
			Target: types.EditTarget{Method: types.TargetFull}, Action: types.ActionReplace, Content: "old",
		},
		Dependents: []string{},
	}

	assert.True(t, Undoable(record, testNow))
	assert.True(t, Undoable(record, testNow.Add(24*time.Hour)), "boundary instant still undoable")
	assert.False(t, Undoable(record, testNow.Add(25*time.Hour)), "window expired")

	withDependents := *record
	withDependents.Dependents = []string{"edit_abc123def456"}
	assert.False(t, Undoable(&withDependents, testNow))

	notUndoable := *record
	notUndoable.Undoable = false
	assert.False(t, Undoable(&notUndoable, testNow))
}

func TestBuildUndo(t *testing.T) {
	reverse := &types.EditOperation{
		Target:  types.EditTarget{Method: types.TargetFull},
		Action:  types.ActionReplace,
		Content: "previous",
	}
	record := &types.EditRecord{ToVersion: 5, ReverseOperation: reverse}

	req := BuildUndo(record)
	assert.Equal(t, 5, req.ExpectedVersion)
	assert.Equal(t, *reverse, req.Operation)
	assert.Equal(t, types.ConflictAbort, req.ConflictResolution)
}

func TestPrune(t *testing.T) {
	e := newEngine()

	makeRecord := func(age time.Duration) *types.EditRecord {
		return &types.EditRecord{
			ID:          types.NewEditID(),
			NodeID:      types.NewNodeID(),
			Timestamp:   testNow.Add(-age),
			UndoExpires: testNow.Add(-age).Add(24 * time.Hour),
			Undoable:    true,
		}
	}

	t.Run("old expired records dropped", func(t *testing.T) {
		records := []*types.EditRecord{
			makeRecord(1 * time.Hour),
			makeRecord(40 * 24 * time.Hour),
		}
		kept := e.Prune(records, testNow)
		require.Len(t, kept, 1)
		assert.Equal(t, records[0].ID, kept[0].ID)
	})

	t.Run("old record inside undo window survives", func(t *testing.T) {
		old := makeRecord(40 * 24 * time.Hour)
		old.UndoExpires = testNow.Add(time.Hour) // still undoable
		kept := e.Prune([]*types.EditRecord{old}, testNow)
		assert.Len(t, kept, 1)
	})

	t.Run("capped at max edits newest first", func(t *testing.T) {
		var records []*types.EditRecord
		for i := 0; i < 150; i++ {
			records = append(records, makeRecord(time.Duration(i)*time.Minute))
		}
		kept := e.Prune(records, testNow)
		require.Len(t, kept, 100)
		for i := 1; i < len(kept); i++ {
			assert.False(t, kept[i].Timestamp.After(kept[i-1].Timestamp), "newest kept, ordered")
		}
		assert.Equal(t, records[0].ID, kept[0].ID)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, e.Prune(nil, testNow))
	})
}

func TestPruneDeterministicIDs(t *testing.T) {
	// Edit ids keep the edit_ prefix scheme after pruning round trips.
	e := newEngine()
	records := []*types.EditRecord{{
		ID:          types.NewEditID(),
		NodeID:      types.NewNodeID(),
		Timestamp:   testNow,
		UndoExpires: testNow.Add(24 * time.Hour),
	}}
	for _, r := range e.Prune(records, testNow) {
		assert.True(t, types.ValidEditID(r.ID), fmt.Sprintf("id %s", r.ID))
	}
}
