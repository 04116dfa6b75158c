// Package edits implements the safe-edit engine: versioned, target-anchored
// mutations of node content with conflict detection, reverse-operation
// synthesis, undo, and history retention. Failures are data-shaped results,
// never panics; a losing concurrent edit observes VERSION_MISMATCH and
// retries or aborts per caller policy.
package edits

import (
	"strings"
	"time"

	"memory-core/internal/config"
	coreerrors "memory-core/internal/errors"
	"memory-core/pkg/types"
)

// Result is the outcome of a safe edit. On failure Error carries the
// semantic code and the node is untouched.
type Result struct {
	Success     bool                  `json:"success"`
	Error       *coreerrors.CoreError `json:"error,omitempty"`
	UpdatedNode *types.Node           `json:"updated_node,omitempty"`
	Record      *types.EditRecord     `json:"edit_record,omitempty"`
}

// Engine applies safe edits.
type Engine struct {
	cfg config.EditConfig
}

// NewEngine creates an edit engine with the given retention policy.
func NewEngine(cfg config.EditConfig) *Engine {
	return &Engine{cfg: cfg}
}

// SafeEdit validates and applies one edit. The input node is never mutated;
// success returns a new node value with the version incremented and an edit
// record carrying the synthesized reverse operation. Callers must serialize
// edits per node id.
func (e *Engine) SafeEdit(node *types.Node, req *types.EditRequest, now time.Time) Result {
	if err := req.Validate(); err != nil {
		return Result{Error: coreerrors.NewSchemaValidation(err)}
	}

	if node.Version != req.ExpectedVersion {
		return Result{Error: coreerrors.NewVersionMismatch(
			req.ExpectedVersion, node.Version,
			string(node.LastModifier), node.LastModified.Format(time.RFC3339),
		)}
	}

	if err := e.resolveTarget(node, &req.Operation.Target); err != nil {
		return Result{Error: err}
	}

	updated := node.Clone()
	changes, reverse, err := e.apply(updated, &req.Operation)
	if err != nil {
		return Result{Error: err}
	}

	updated.Version = node.Version + 1
	updated.LastModified = now
	updated.LastModifier = req.Actor
	updated.Checksum = types.ContentChecksum(&updated.Content)

	record := &types.EditRecord{
		ID:               types.NewEditID(),
		NodeID:           node.ID,
		Timestamp:        now,
		Actor:            req.Actor,
		FromVersion:      node.Version,
		ToVersion:        updated.Version,
		Operation:        req.Operation,
		Changes:          changes,
		Undoable:         true,
		UndoExpires:      now.Add(time.Duration(e.cfg.UndoWindowHours) * time.Hour),
		ReverseOperation: reverse,
		DependsOn:        []string{},
		Dependents:       []string{},
		SchemaVersion:    types.CurrentSchemaVersion,
	}

	return Result{Success: true, UpdatedNode: updated, Record: record}
}

// resolveTarget verifies the target exists in the current content.
func (e *Engine) resolveTarget(node *types.Node, target *types.EditTarget) *coreerrors.CoreError {
	switch target.Method {
	case types.TargetBlockID:
		if types.FindBlock(node.Content.Blocks, target.BlockID) == nil {
			return coreerrors.Newf(coreerrors.ErrorCodeBlockNotFound,
				"block %s not found in node %s", target.BlockID, node.ID)
		}
	case types.TargetHeading:
		if types.FindBlockByHeading(node.Content.Blocks, target.Heading) == nil {
			return coreerrors.Newf(coreerrors.ErrorCodeHeadingNotFound,
				"heading %q not found in node %s", target.Heading, node.ID)
		}
	case types.TargetSearch:
		if !strings.Contains(strings.ToLower(node.Content.Body), strings.ToLower(target.Search)) {
			return coreerrors.Newf(coreerrors.ErrorCodeSearchNotFound,
				"search text %q not found in node %s", target.Search, node.ID)
		}
	}
	return nil
}

// apply mutates the cloned node per the operation and returns the change
// diff plus the synthesized reverse operation.
func (e *Engine) apply(node *types.Node, op *types.EditOperation) ([]types.EditChange, *types.EditOperation, *coreerrors.CoreError) {
	switch op.Target.Method {
	case types.TargetBlockID:
		return e.applyBlock(node, op, op.Target.BlockID)
	case types.TargetHeading:
		block := types.FindBlockByHeading(node.Content.Blocks, op.Target.Heading)
		// Heading resolution delegates to the block path.
		return e.applyBlock(node, op, block.ID)
	case types.TargetPosition:
		return e.applyPosition(node, op)
	case types.TargetSearch:
		return e.applySearch(node, op)
	default: // full
		return e.applyFull(node, op)
	}
}

func (e *Engine) applyBlock(node *types.Node, op *types.EditOperation, blockID string) ([]types.EditChange, *types.EditOperation, *coreerrors.CoreError) {
	block := types.FindBlock(node.Content.Blocks, blockID)
	target := types.EditTarget{Method: types.TargetBlockID, BlockID: blockID}

	switch op.Action {
	case types.ActionReplace:
		before := block.Text
		block.Text = op.Content
		block.ModifiedAt = time.Now().UTC()
		return []types.EditChange{{Path: "blocks." + blockID, Before: before, After: op.Content}},
			&types.EditOperation{Target: target, Action: types.ActionReplace, Content: before}, nil

	case types.ActionAppend:
		before := block.Text
		block.Text = before + op.Content
		block.ModifiedAt = time.Now().UTC()
		return []types.EditChange{{Path: "blocks." + blockID, Before: before, After: block.Text}},
			&types.EditOperation{Target: target, Action: types.ActionReplace, Content: before}, nil

	case types.ActionInsert:
		// Insert a sibling paragraph after the target block; the reverse
		// deletes it.
		inserted := types.NewBlock(types.BlockParagraph, op.Content)
		node.Content.Blocks = insertAfter(node.Content.Blocks, blockID, inserted)
		return []types.EditChange{{Path: "blocks." + inserted.ID, Before: "", After: op.Content}},
			&types.EditOperation{
				Target: types.EditTarget{Method: types.TargetBlockID, BlockID: inserted.ID},
				Action: types.ActionDelete,
			}, nil

	default: // delete
		before := block.Text
		blocks, _ := types.RemoveBlock(node.Content.Blocks, blockID)
		node.Content.Blocks = blocks
		return []types.EditChange{{Path: "blocks." + blockID, Before: before, After: ""}},
			&types.EditOperation{Target: target, Action: types.ActionInsert, Content: before}, nil
	}
}

func (e *Engine) applyPosition(node *types.Node, op *types.EditOperation) ([]types.EditChange, *types.EditOperation, *coreerrors.CoreError) {
	before := node.Content.Body
	var after string
	switch {
	case op.Action == types.ActionDelete:
		after = ""
	case op.Target.Position == types.PositionStart:
		after = joinBody(op.Content, before)
	default:
		after = joinBody(before, op.Content)
	}
	node.Content.Body = after
	return bodyChange(before, after), reverseBodyReplace(before), nil
}

func (e *Engine) applySearch(node *types.Node, op *types.EditOperation) ([]types.EditChange, *types.EditOperation, *coreerrors.CoreError) {
	before := node.Content.Body
	var after string
	switch op.Action {
	case types.ActionReplace:
		after = replaceInsensitive(before, op.Target.Search, op.Content)
	case types.ActionAppend, types.ActionInsert:
		after = appendAfterInsensitive(before, op.Target.Search, op.Content)
	default: // delete
		after = replaceInsensitive(before, op.Target.Search, "")
	}
	node.Content.Body = after
	return bodyChange(before, after), reverseBodyReplace(before), nil
}

func (e *Engine) applyFull(node *types.Node, op *types.EditOperation) ([]types.EditChange, *types.EditOperation, *coreerrors.CoreError) {
	before := node.Content.Body
	var after string
	switch op.Action {
	case types.ActionReplace:
		after = op.Content
	case types.ActionAppend:
		after = joinBody(before, op.Content)
	case types.ActionInsert:
		after = joinBody(op.Content, before)
	default: // delete
		after = ""
	}
	node.Content.Body = after
	return bodyChange(before, after), reverseBodyReplace(before), nil
}

// reverseBodyReplace synthesizes the body-level reverse: a full replace with
// the prior content.
func reverseBodyReplace(before string) *types.EditOperation {
	return &types.EditOperation{
		Target:  types.EditTarget{Method: types.TargetFull},
		Action:  types.ActionReplace,
		Content: before,
	}
}

func bodyChange(before, after string) []types.EditChange {
	return []types.EditChange{{Path: "body", Before: before, After: after}}
}

func joinBody(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n\n" + b
	}
}

// replaceInsensitive replaces every case-insensitive occurrence of search
// with replacement, preserving surrounding text.
func replaceInsensitive(text, search, replacement string) string {
	if search == "" {
		return text
	}
	var b strings.Builder
	lowerText := strings.ToLower(text)
	lowerSearch := strings.ToLower(search)
	for {
		idx := strings.Index(lowerText, lowerSearch)
		if idx < 0 {
			b.WriteString(text)
			return b.String()
		}
		b.WriteString(text[:idx])
		b.WriteString(replacement)
		text = text[idx+len(search):]
		lowerText = lowerText[idx+len(lowerSearch):]
	}
}

// appendAfterInsensitive inserts content after the first case-insensitive
// occurrence of search.
func appendAfterInsensitive(text, search, content string) string {
	idx := strings.Index(strings.ToLower(text), strings.ToLower(search))
	if idx < 0 {
		return text
	}
	end := idx + len(search)
	return text[:end] + content + text[end:]
}

// insertAfter inserts a block immediately after the block with the given id,
// searching the tree depth-first.
func insertAfter(blocks []types.Block, afterID string, inserted types.Block) []types.Block {
	for i := range blocks {
		if blocks[i].ID == afterID {
			out := make([]types.Block, 0, len(blocks)+1)
			out = append(out, blocks[:i+1]...)
			out = append(out, inserted)
			out = append(out, blocks[i+1:]...)
			return out
		}
		blocks[i].Children = insertAfter(blocks[i].Children, afterID, inserted)
	}
	return blocks
}
