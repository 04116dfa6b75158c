package types

import (
	"errors"
	"fmt"
	"time"
)

// TargetMethod represents how an edit operation locates its target.
type TargetMethod string

const (
	TargetBlockID  TargetMethod = "block_id"
	TargetHeading  TargetMethod = "heading"
	TargetPosition TargetMethod = "position"
	TargetSearch   TargetMethod = "search"
	TargetFull     TargetMethod = "full"
)

// Valid returns true if the target method is valid.
func (tm TargetMethod) Valid() bool {
	switch tm {
	case TargetBlockID, TargetHeading, TargetPosition, TargetSearch, TargetFull:
		return true
	}
	return false
}

// EditAction represents what an edit operation does at its target.
type EditAction string

const (
	ActionReplace EditAction = "replace"
	ActionInsert  EditAction = "insert"
	ActionAppend  EditAction = "append"
	ActionDelete  EditAction = "delete"
)

// Valid returns true if the edit action is valid.
func (ea EditAction) Valid() bool {
	switch ea {
	case ActionReplace, ActionInsert, ActionAppend, ActionDelete:
		return true
	}
	return false
}

// Position values for position-method targets.
const (
	PositionStart = "start"
	PositionEnd   = "end"
)

// EditTarget locates the content an operation applies to.
type EditTarget struct {
	Method   TargetMethod `json:"method"`
	BlockID  string       `json:"block_id,omitempty"`
	Heading  string       `json:"heading,omitempty"`
	Position string       `json:"position,omitempty"` // "start" or "end"
	Search   string       `json:"search,omitempty"`
}

// Validate checks that the target carries the field its method requires.
func (et *EditTarget) Validate() error {
	if !et.Method.Valid() {
		return fmt.Errorf("target.method: invalid method %q", et.Method)
	}
	switch et.Method {
	case TargetBlockID:
		if et.BlockID == "" {
			return errors.New("target.block_id: required for block_id method")
		}
	case TargetHeading:
		if et.Heading == "" {
			return errors.New("target.heading: required for heading method")
		}
	case TargetPosition:
		if et.Position != PositionStart && et.Position != PositionEnd {
			return errors.New("target.position: must be 'start' or 'end'")
		}
	case TargetSearch:
		if et.Search == "" {
			return errors.New("target.search: required for search method")
		}
	case TargetFull:
		// No operands.
	}
	return nil
}

// EditOperation is a single target-anchored mutation.
type EditOperation struct {
	Target  EditTarget `json:"target"`
	Action  EditAction `json:"action"`
	Content string     `json:"content,omitempty"`
}

// Validate checks operation invariants.
func (op *EditOperation) Validate() error {
	if err := op.Target.Validate(); err != nil {
		return err
	}
	if !op.Action.Valid() {
		return fmt.Errorf("action: invalid action %q", op.Action)
	}
	if op.Action != ActionDelete && op.Content == "" {
		return fmt.Errorf("content: required for %s action", op.Action)
	}
	return nil
}

// ConflictResolution represents the caller's policy on version conflicts.
type ConflictResolution string

const (
	ConflictAbort     ConflictResolution = "abort"
	ConflictRetry     ConflictResolution = "retry"
	ConflictAutoMerge ConflictResolution = "auto_merge"
)

// Valid returns true if the conflict resolution is valid.
func (cr ConflictResolution) Valid() bool {
	switch cr {
	case ConflictAbort, ConflictRetry, ConflictAutoMerge:
		return true
	}
	return false
}

// EditRequest is a versioned request to mutate a node.
type EditRequest struct {
	ExpectedVersion    int                `json:"expected_version"`
	Operation          EditOperation      `json:"operation"`
	Actor              Modifier           `json:"actor"`
	ConflictResolution ConflictResolution `json:"conflict_resolution,omitempty"`
}

// Validate checks request invariants.
func (er *EditRequest) Validate() error {
	if er.ExpectedVersion < 1 {
		return errors.New("expected_version: must be >= 1")
	}
	if err := er.Operation.Validate(); err != nil {
		return err
	}
	if !er.Actor.Valid() {
		return fmt.Errorf("actor: invalid actor %q", er.Actor)
	}
	if er.ConflictResolution != "" && !er.ConflictResolution.Valid() {
		return fmt.Errorf("conflict_resolution: invalid value %q", er.ConflictResolution)
	}
	return nil
}

// EditChange records a single content path that an edit touched.
type EditChange struct {
	Path   string `json:"path"` // title, body, summary, blocks.<id>
	Before string `json:"before"`
	After  string `json:"after"`
}

// EditRecord is the persisted history entry for a successful edit. Records
// live in their own collection and are lazy-loaded per node.
type EditRecord struct {
	ID               string         `json:"id"`
	NodeID           string         `json:"node_id"`
	Timestamp        time.Time      `json:"timestamp"`
	Actor            Modifier       `json:"actor"`
	FromVersion      int            `json:"from_version"`
	ToVersion        int            `json:"to_version"`
	Operation        EditOperation  `json:"operation"`
	Changes          []EditChange   `json:"changes"`
	Undoable         bool           `json:"undoable"`
	UndoExpires      time.Time      `json:"undo_expires"`
	ReverseOperation *EditOperation `json:"reverse_operation,omitempty"`
	DependsOn        []string       `json:"depends_on"`
	Dependents       []string       `json:"dependents"`
	SchemaVersion    int            `json:"_schemaVersion"`
}

// Validate checks record invariants.
func (r *EditRecord) Validate() error {
	if !ValidEditID(r.ID) {
		return fmt.Errorf("id: invalid edit id %q", r.ID)
	}
	if !ValidNodeID(r.NodeID) {
		return fmt.Errorf("node_id: invalid node id %q", r.NodeID)
	}
	if r.ToVersion != r.FromVersion+1 {
		return errors.New("to_version: must equal from_version + 1")
	}
	if !r.Actor.Valid() {
		return fmt.Errorf("actor: invalid actor %q", r.Actor)
	}
	if r.Timestamp.IsZero() {
		return errors.New("timestamp: must be set")
	}
	return nil
}
