package types

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ID prefixes for the persisted identifier scheme. These are wire-stable:
// external consumers key on them.
const (
	NodeIDPrefix  = "n_"
	BlockIDPrefix = "b_"
	EditIDPrefix  = "edit_"

	idTokenLength = 12
)

// newIDToken returns a 12-character lowercase alphanumeric token.
func newIDToken() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return raw[:idTokenLength]
}

// NewNodeID generates a node identifier of the form n_XXXXXXXXXXXX.
func NewNodeID() string {
	return NodeIDPrefix + newIDToken()
}

// NewBlockID generates a block identifier of the form b_XXXXXXXXXXXX.
func NewBlockID() string {
	return BlockIDPrefix + newIDToken()
}

// NewEditID generates an edit record identifier of the form edit_XXXXXXXXXXXX.
func NewEditID() string {
	return EditIDPrefix + newIDToken()
}

// ChunkNodeID derives the identifier of the i-th chunk of a parent document.
// Sibling chunk ids follow the parent id so adjacency is recoverable without
// a lookup.
func ChunkNodeID(parentID string, index int) string {
	return parentID + "_chunk_" + strconv.Itoa(index)
}

// ValidNodeID reports whether id matches the node id scheme: n_ plus a
// 12-character token, optionally extended with a _chunk_N suffix for chunk
// nodes owned by a parent document.
func ValidNodeID(id string) bool {
	if !strings.HasPrefix(id, NodeIDPrefix) {
		return false
	}
	rest := id[len(NodeIDPrefix):]
	if len(rest) < idTokenLength || !validToken(rest[:idTokenLength]) {
		return false
	}
	suffix := rest[idTokenLength:]
	if suffix == "" {
		return true
	}
	if !strings.HasPrefix(suffix, "_chunk_") {
		return false
	}
	return allDigits(suffix[len("_chunk_"):])
}

// ValidBlockID reports whether id matches the block id scheme.
func ValidBlockID(id string) bool {
	return strings.HasPrefix(id, BlockIDPrefix) &&
		len(id) == len(BlockIDPrefix)+idTokenLength &&
		validToken(id[len(BlockIDPrefix):])
}

// ValidEditID reports whether id matches the edit record id scheme.
func ValidEditID(id string) bool {
	return strings.HasPrefix(id, EditIDPrefix) &&
		len(id) == len(EditIDPrefix)+idTokenLength &&
		validToken(id[len(EditIDPrefix):])
}

func validToken(s string) bool {
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return len(s) == idTokenLength
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
