package storage

import "github.com/dashpay/grove/hash"

// namespace tags the four logical column families of spec §4.7. They
// are realized as single-byte key prefixes rather than true column
// families because badger (the chosen substrate, see DESIGN.md) has a
// single flat keyspace; spec §9 explicitly sanctions "one handle with
// namespace enum" as an equivalent realization.
type namespace byte

const (
	nsMain namespace = 1
	nsAux  namespace = 2
	nsRoot namespace = 3
	nsMeta namespace = 4
)

// storageKey composes the physical badger key for a (namespace,
// subtree prefix, user key) triple: namespace || prefix || userKey.
// The meta namespace is process-wide and unprefixed (spec §4.7); for
// it, prefix is the zero digest and is still written so meta keys
// cannot collide with a subtree whose path happens to hash to the
// same bytes (namespace tag alone already prevents that collision,
// prefix is kept for uniform key-building code).
func storageKey(ns namespace, prefix hash.Digest, userKey []byte) []byte {
	buf := make([]byte, 0, 1+hash.Size+len(userKey))
	buf = append(buf, byte(ns))
	buf = append(buf, prefix[:]...)
	buf = append(buf, userKey...)
	return buf
}

// MetaKey composes a global meta-namespace key (unprefixed, shared
// process-wide).
func MetaKey(userKey []byte) []byte {
	return storageKey(nsMeta, hash.Null, userKey)
}
