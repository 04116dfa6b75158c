package types

import (
	"encoding/json"
	"fmt"
)

// Checksum computes the wire-stable content checksum: a 32-bit rolling hash
// (h = h<<5 - h + codepoint, initial 0) over the string, absolute value
// modulo 2^32, rendered as zero-padded 8-character lowercase hex.
func Checksum(serialized string) string {
	var h int32
	for _, r := range serialized {
		h = h<<5 - h + int32(r)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return fmt.Sprintf("%08x", uint32(v&0xffffffff))
}

// ContentChecksum serializes node content deterministically and returns its
// checksum. Stored on the node after every successful edit.
func ContentChecksum(content *NodeContent) string {
	serialized, err := json.Marshal(content)
	if err != nil {
		// NodeContent contains only marshalable fields; this is unreachable
		// for well-formed values.
		return Checksum(content.Title + "\x00" + content.Body + "\x00" + content.Summary)
	}
	return Checksum(string(serialized))
}

// VerifyChecksum recomputes the node's content checksum and reports whether
// it matches the stored value. Nodes without a stored checksum verify true.
func VerifyChecksum(n *Node) bool {
	if n.Checksum == "" {
		return true
	}
	return n.Checksum == ContentChecksum(&n.Content)
}
