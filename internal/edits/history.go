package edits

import (
	"sort"
	"time"

	"memory-core/pkg/types"
)

// AffectedBlocks returns the block-id set an operation touches. Body-level
// operations (position, search) share a single pseudo-id so they conflict
// with each other; full-document operations return nil and never auto-merge.
func AffectedBlocks(node *types.Node, op *types.EditOperation) map[string]bool {
	switch op.Target.Method {
	case types.TargetBlockID:
		return map[string]bool{op.Target.BlockID: true}
	case types.TargetHeading:
		if block := types.FindBlockByHeading(node.Content.Blocks, op.Target.Heading); block != nil {
			return map[string]bool{block.ID: true}
		}
		return map[string]bool{"heading:" + op.Target.Heading: true}
	case types.TargetPosition, types.TargetSearch:
		return map[string]bool{"body": true}
	default: // full
		return nil
	}
}

// CanAutoMerge reports whether two concurrent edits merge automatically:
// neither may target the whole document, and their affected block-id sets
// must be disjoint.
func CanAutoMerge(node *types.Node, a, b *types.EditOperation) bool {
	if a.Target.Method == types.TargetFull || b.Target.Method == types.TargetFull {
		return false
	}
	setA := AffectedBlocks(node, a)
	setB := AffectedBlocks(node, b)
	for id := range setA {
		if setB[id] {
			return false
		}
	}
	return true
}

// Undoable reports whether an edit record can still be undone: flagged
// undoable, within the undo window, and nothing depends on it.
func Undoable(record *types.EditRecord, now time.Time) bool {
	return record.Undoable &&
		!now.After(record.UndoExpires) &&
		len(record.Dependents) == 0 &&
		record.ReverseOperation != nil
}

// BuildUndo constructs the edit request that reverses a record. The request
// expects the version the edit produced and aborts on conflict.
func BuildUndo(record *types.EditRecord) *types.EditRequest {
	return &types.EditRequest{
		ExpectedVersion:    record.ToVersion,
		Operation:          *record.ReverseOperation,
		Actor:              types.ModifierUser,
		ConflictResolution: types.ConflictAbort,
	}
}

// Prune applies the retention policy to a node's edit history: records older
// than the age limit whose undo window has expired are dropped, and the list
// caps at the maximum count with the newest kept. Returns a new slice.
func (e *Engine) Prune(records []*types.EditRecord, now time.Time) []*types.EditRecord {
	maxAge := time.Duration(e.cfg.MaxAgeDays) * 24 * time.Hour

	kept := make([]*types.EditRecord, 0, len(records))
	for _, record := range records {
		aged := now.Sub(record.Timestamp) > maxAge
		expired := now.After(record.UndoExpires)
		if aged && expired {
			continue
		}
		kept = append(kept, record)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Timestamp.After(kept[j].Timestamp)
	})
	if len(kept) > e.cfg.MaxEdits {
		kept = kept[:e.cfg.MaxEdits]
	}
	return kept
}
