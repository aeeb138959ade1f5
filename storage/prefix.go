package storage

import (
	"encoding/binary"

	"github.com/dashpay/grove/hash"
)

// Path is an ordered sequence of path segments addressing a subtree in
// the grove (spec §3 "Path").
type Path [][]byte

// Prefix derives the 32-byte namespace prefix for a subtree's path by
// folding its segments through Blake3 with a varint length prefix on
// each segment — the same varint(len)||bytes framing used by
// hash.KVHash, so the codebase has a single length-framing convention
// rather than one scheme for node hashing and another for prefix
// derivation (DESIGN.md Open Question 1).
//
// Collision resistance across differing path depths follows from the
// same argument as kv_hash: a length prefix on every segment prevents
// ("ab","c") and ("a","bc") from folding to the same byte stream.
func Prefix(path Path) hash.Digest {
	var buf []byte
	for _, seg := range path {
		var lenBuf [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(lenBuf[:], uint64(len(seg)))
		buf = append(buf, lenBuf[:n]...)
		buf = append(buf, seg...)
	}
	return hash.ValueHash(buf)
}

// Equal reports whether two paths address the same subtree.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if len(p[i]) != len(other[i]) {
			return false
		}
		for j := range p[i] {
			if p[i][j] != other[i][j] {
				return false
			}
		}
	}
	return true
}

// Append returns a new path with key appended, never mutating p.
func (p Path) Append(key []byte) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = key
	return out
}

// Parent returns p without its last segment and that last segment,
// or (nil, nil, false) if p is the root path.
func (p Path) Parent() (parent Path, lastKey []byte, ok bool) {
	if len(p) == 0 {
		return nil, nil, false
	}
	return p[:len(p)-1], p[len(p)-1], true
}
