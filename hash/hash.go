// Package hash implements the length-prefixed Blake3 hash compositions
// that authenticate every node in a grove: value_hash, kv_hash,
// node_hash and combine_hash.
package hash

import (
	"encoding/binary"

	"lukechampine.com/blake3"
)

// Size is the length in bytes of every digest produced by this package.
const Size = 32

// Digest is a 32-byte Blake3 output.
type Digest [Size]byte

// Null is the sentinel digest denoting an absent child or an empty
// subtree.
var Null Digest

// IsNull reports whether d is the all-zero sentinel.
func (d Digest) IsNull() bool {
	return d == Null
}

// Bytes returns d as a byte slice.
func (d Digest) Bytes() []byte {
	return d[:]
}

// FromBytes copies b into a Digest, panicking if b is not exactly
// Size bytes long. Callers that accept untrusted lengths should check
// len(b) == hash.Size first.
func FromBytes(b []byte) Digest {
	var d Digest
	if len(b) != Size {
		panic("hash: wrong digest length")
	}
	copy(d[:], b)
	return d
}

// appendVarint writes a length-prefixed chunk of data: varint(len(data)) || data.
func appendVarint(buf []byte, data []byte) []byte {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(data)))
	buf = append(buf, lenBuf[:n]...)
	buf = append(buf, data...)
	return buf
}

// blockCost returns the number of 64-byte blocks an input of length n
// charges to the hash-call cost counter: 1 + ceil((n-1)/64), matching
// the per-call cost rule of spec §4.1. A zero-length input still costs 1.
func blockCost(n int) uint64 {
	if n <= 1 {
		return 1
	}
	return 1 + uint64((n-1+63)/64)
}

// ValueHash computes Blake3(varint(len(value)) || value).
func ValueHash(value []byte) Digest {
	buf := appendVarint(make([]byte, 0, len(value)+binary.MaxVarintLen64), value)
	return blake3.Sum256(buf)
}

// ValueHashCost returns the hash-call cost of computing ValueHash for
// a value of the given length, without performing the hash.
func ValueHashCost(valueLen int) uint64 {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(valueLen))
	return blockCost(valueLen + n)
}

// KVHash computes Blake3(varint(len(key)) || key || valueHash).
func KVHash(key []byte, valueHash Digest) Digest {
	buf := appendVarint(make([]byte, 0, len(key)+binary.MaxVarintLen64+Size), key)
	buf = append(buf, valueHash[:]...)
	return blake3.Sum256(buf)
}

// NodeHash computes Blake3(kvHash || leftHash || rightHash), using
// Null where a child is absent.
func NodeHash(kvHash, left, right Digest) Digest {
	var buf [Size * 3]byte
	copy(buf[0:Size], kvHash[:])
	copy(buf[Size:2*Size], left[:])
	copy(buf[2*Size:3*Size], right[:])
	return blake3.Sum256(buf[:])
}

// NodeHashWithCount computes Blake3(kvHash || leftHash || rightHash ||
// count) where count is encoded as 8-byte big-endian. Used by
// ProvableCounted* feature types, whose count participates in the
// node's authenticated hash (spec §3 invariants).
func NodeHashWithCount(kvHash, left, right Digest, count uint64) Digest {
	var buf [Size*3 + 8]byte
	copy(buf[0:Size], kvHash[:])
	copy(buf[Size:2*Size], left[:])
	copy(buf[2*Size:3*Size], right[:])
	binary.BigEndian.PutUint64(buf[3*Size:], count)
	return blake3.Sum256(buf[:])
}

// CombineHash computes Blake3(a || b). It is the sole mechanism by
// which a grove folds a child subtree's root digest into its parent's
// node_hash (spec §4.1).
func CombineHash(a, b Digest) Digest {
	var buf [Size * 2]byte
	copy(buf[0:Size], a[:])
	copy(buf[Size:2*Size], b[:])
	return blake3.Sum256(buf[:])
}

// ElementDigest computes Blake3(varint(len(elementBytes)) ||
// elementBytes), the digest combined with a child subtree's root
// digest to authenticate a Tree-type element (spec §4.1, §4.8).
func ElementDigest(elementBytes []byte) Digest {
	return ValueHash(elementBytes)
}
