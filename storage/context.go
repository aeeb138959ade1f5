package storage

import (
	"github.com/dashpay/grove/cost"
	"github.com/dashpay/grove/hash"
)

// Context is the capability interface a subtree obtains over a
// transactional or direct storage handle: four independent key
// families sharing one 32-byte prefix (spec §4.7, §9 "Storage context
// as a capability").
type Context interface {
	// Prefix is this context's 32-byte subtree prefix.
	Prefix() hash.Digest

	// main namespace: tree nodes.
	Get(key []byte) ([]byte, cost.Cost, error)
	Put(key, value []byte) (cost.Cost, error)
	Delete(key []byte) (cost.Cost, error)

	// aux namespace: application-defined per-subtree metadata.
	GetAux(key []byte) ([]byte, cost.Cost, error)
	PutAux(key, value []byte) (cost.Cost, error)
	DeleteAux(key []byte) (cost.Cost, error)

	// roots namespace: the subtree's current root-key record.
	GetRoot() (RootRecord, cost.Cost, error)
	PutRoot(rec RootRecord) (cost.Cost, error)

	// meta namespace: process-wide, unprefixed.
	GetMeta(key []byte) ([]byte, cost.Cost, error)
	PutMeta(key, value []byte) (cost.Cost, error)

	// Iterate walks main-namespace keys in [startKey, endKey) order
	// (endKey == nil means unbounded), honoring reverse for
	// right-to-left range queries. fn returning false stops iteration.
	Iterate(startKey, endKey []byte, reverse bool, fn func(key, value []byte) (bool, error)) (cost.Cost, error)
}

// RootRecord is the payload stored in the roots namespace: either a
// presence marker naming the subtree's root node key, or an explicit
// "exists but empty" marker. The two are kept distinct (rather than
// deleting the record when empty) so that "empty subtree" remains
// distinguishable from "subtree does not exist" (spec §6).
type RootRecord struct {
	Exists  bool
	RootKey []byte // nil when the subtree exists but is empty
}

// EncodeRootRecord serializes a RootRecord for storage. Layout:
// presence byte (0 = does not exist, 1 = exists) || root key bytes
// (only present when exists and non-empty).
func EncodeRootRecord(rec RootRecord) []byte {
	if !rec.Exists {
		return []byte{0}
	}
	buf := make([]byte, 0, 1+len(rec.RootKey))
	buf = append(buf, 1)
	buf = append(buf, rec.RootKey...)
	return buf
}

// DecodeRootRecord is the inverse of EncodeRootRecord. A nil buf (key
// absent entirely) decodes to "does not exist", matching the
// subtree-does-not-exist case.
func DecodeRootRecord(buf []byte) RootRecord {
	if len(buf) == 0 || buf[0] == 0 {
		return RootRecord{Exists: false}
	}
	rec := RootRecord{Exists: true}
	if len(buf) > 1 {
		rec.RootKey = append([]byte(nil), buf[1:]...)
	}
	return rec
}
