// Package merkletree computes the per-table Merkle root over row hashes
// (spec §4, C4), using the RFC 6962 leaf/node hash construction for the
// 256-bit cryptographic hash.
package merkletree

import (
	"bytes"

	"github.com/transparency-dev/merkle/rfc6962"
)

var hasher = rfc6962.DefaultHasher

// Root computes the Merkle root over leaves, given in row insertion order.
// Each entry of leaves is the canonical serialized bytes of one row (spec
// §4.1/§4.2: the Merkle leaf is the hash of a row's canonical serialization).
// An empty table's root is the hasher's defined empty root.
func Root(leaves [][]byte) []byte {
	if len(leaves) == 0 {
		return hasher.EmptyRoot()
	}

	level := make([][]byte, len(leaves))
	for i, leaf := range leaves {
		level[i] = hasher.HashLeaf(leaf)
	}

	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		i := 0
		for ; i+1 < len(level); i += 2 {
			next = append(next, hasher.HashChildren(level[i], level[i+1]))
		}
		if i < len(level) {
			// Odd node out: promoted unchanged to the next level.
			next = append(next, level[i])
		}
		level = next
	}
	return level[0]
}

// Verify reports whether leaves hash to the expected root.
func Verify(leaves [][]byte, expected []byte) bool {
	return bytes.Equal(Root(leaves), expected)
}
