package merk

import (
	"encoding/binary"

	"github.com/dashpay/grove/cost"
	"github.com/dashpay/grove/groveerr"
	"github.com/dashpay/grove/hash"
)

// Node is a single in-memory vertex of an authenticated AVL tree
// (spec §3 "Node"). It owns exactly one (key, value) pair and up to
// two child links.
type Node struct {
	Key   []byte
	Value []byte

	Feature FeatureType

	// ValueHash is Blake3(varint(len(Value))||Value) for ordinary
	// elements, or a caller-supplied combined digest for elements that
	// reference other authenticated state (spec §4.1); which one it is
	// is determined at construction time, not recomputed blindly, so
	// that Tree-portal elements keep their combine_hash intact across
	// reads that don't re-insert them.
	ValueHash    hash.Digest
	combinedHash bool // true if ValueHash must not be recomputed from Value

	KVHash hash.Digest

	Left  *Link
	Right *Link

	// Count is this node's subtree size (itself + both children),
	// maintained whenever Feature.IsProvable() since it folds into
	// node_hash for ProvableCounted* feature types (spec §3).
	Count uint64

	// Aggregate is the cached, non-hashed aggregate for this subtree
	// (spec §3 "Aggregate data caches are NOT part of any hash").
	Aggregate AggregateData

	// OldValue and KnownStorageCost cache enough of the pre-mutation
	// state to compute a storage cost delta without re-reading from
	// disk (spec §3 "Node").
	OldValue         []byte
	KnownStorageCost uint64
}

// NewLeaf constructs a fresh node with no children, computing
// ValueHash from value the ordinary way.
func NewLeaf(key, value []byte, feature FeatureType) *Node {
	n := &Node{Key: key, Value: value, Feature: feature, Count: 1}
	n.ValueHash = hash.ValueHash(value)
	n.recomputeKVHash()
	return n
}

// NewLeafCombined constructs a fresh node whose value_hash is a
// caller-supplied combined hash rather than Blake3(value) — the
// "reference-flavored put" of spec §4.5, used by the grove layer when
// inserting Tree-type elements (spec §4.1).
func NewLeafCombined(key, value []byte, combinedValueHash hash.Digest, feature FeatureType) *Node {
	n := &Node{Key: key, Value: value, Feature: feature, Count: 1, ValueHash: combinedValueHash, combinedHash: true}
	n.recomputeKVHash()
	return n
}

// SetValue replaces this node's value, recomputing ValueHash the
// ordinary way (use SetValueCombined for reference-flavored puts).
func (n *Node) SetValue(value []byte) {
	n.OldValue = n.Value
	n.Value = value
	n.combinedHash = false
	n.ValueHash = hash.ValueHash(value)
	n.recomputeKVHash()
}

// SetValueCombined replaces this node's value and supplies the new
// combined value_hash directly, without recomputing it from value.
func (n *Node) SetValueCombined(value []byte, combinedValueHash hash.Digest) {
	n.OldValue = n.Value
	n.Value = value
	n.combinedHash = true
	n.ValueHash = combinedValueHash
	n.recomputeKVHash()
}

func (n *Node) recomputeKVHash() {
	n.KVHash = hash.KVHash(n.Key, n.ValueHash)
}

// linkDigest/linkHeight/linkCount return the digest, height and count
// to use in hash and balance computations for a possibly-nil child
// link, treating a nil link as the empty sentinel of height 0.
func linkDigest(l *Link) hash.Digest {
	if l == nil {
		return hash.Null
	}
	return l.Hash()
}

func linkHeight(l *Link) uint8 {
	if l == nil {
		return 0
	}
	return l.Height()
}

func linkCount(l *Link) uint64 {
	if l == nil {
		return 0
	}
	return l.Count()
}

// RecomputeNodeHash computes this node's node_hash from its current
// kv_hash and its children's digests (spec §3 invariant #2), folding
// in Count for ProvableCounted* feature types. It also refreshes
// Count from the children's cached link counts; Aggregate is not
// recomputed here.
func (n *Node) RecomputeNodeHash(c *cost.Cost) hash.Digest {
	n.Count = 1 + linkCount(n.Left) + linkCount(n.Right)

	left := linkDigest(n.Left)
	right := linkDigest(n.Right)

	if n.Feature.IsProvable() {
		c.Hash(1)
		return hash.NodeHashWithCount(n.KVHash, left, right, n.Count)
	}
	c.Hash(1)
	return hash.NodeHash(n.KVHash, left, right)
}

// Height returns 1 + max(left height, right height), or 1 for a leaf.
func (n *Node) Height() uint8 {
	lh, rh := linkHeight(n.Left), linkHeight(n.Right)
	if lh > rh {
		return lh + 1
	}
	return rh + 1
}

// BalanceFactor is right subtree height minus left subtree height
// (spec §4.3).
func (n *Node) BalanceFactor() int {
	return int(linkHeight(n.Right)) - int(linkHeight(n.Left))
}

// --- On-disk encoding (spec §6 "Node on-disk encoding") ---
//
// 1. varint(len(value)) || value
// 2. value_hash (32 bytes)
// 3. left child: presence byte, [varint(len(key)) || key || hash(32) || height(2, BE) || aggregate tag+payload]
// 4. right child: same shape
// 5. feature-type tag byte + aggregate payload
//
// The node's own key is never encoded (spec §3 "A subtree's
// serialized on-disk node never stores its own key"); it is supplied
// by the caller (the storage key suffix) when decoding.

func appendVarBytes(buf []byte, b []byte) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(b)))
	buf = append(buf, tmp[:n]...)
	return append(buf, b...)
}

func readVarBytes(buf []byte) (value []byte, rest []byte, err error) {
	l, n := binary.Uvarint(buf)
	if n <= 0 || uint64(len(buf)-n) < l {
		return nil, nil, groveerr.New(groveerr.CorruptedData, "truncated length-prefixed field")
	}
	return buf[n : n+int(l)], buf[n+int(l):], nil
}

func encodeAggregate(kind AggregateKind, agg AggregateData) []byte {
	buf := []byte{byte(kind)}
	switch kind {
	case AggregateNone:
	case AggregateSum:
		buf = binary.BigEndian.AppendUint64(buf, uint64(agg.Sum))
	case AggregateBigSum:
		buf = binary.BigEndian.AppendUint64(buf, uint64(agg.BigHi))
		buf = binary.BigEndian.AppendUint64(buf, agg.BigLo)
	case AggregateCount, AggregateProvableCount:
		buf = binary.BigEndian.AppendUint64(buf, agg.Count)
	case AggregateCountSum, AggregateProvableCountSum:
		buf = binary.BigEndian.AppendUint64(buf, agg.Count)
		buf = binary.BigEndian.AppendUint64(buf, uint64(agg.Sum))
	}
	return buf
}

func decodeAggregate(buf []byte) (AggregateData, []byte, error) {
	if len(buf) < 1 {
		return AggregateData{}, nil, groveerr.New(groveerr.CorruptedData, "missing aggregate tag")
	}
	kind := AggregateKind(buf[0])
	buf = buf[1:]
	agg := AggregateData{Kind: kind}
	need := 0
	switch kind {
	case AggregateNone:
		need = 0
	case AggregateSum:
		need = 8
	case AggregateBigSum:
		need = 16
	case AggregateCount, AggregateProvableCount:
		need = 8
	case AggregateCountSum, AggregateProvableCountSum:
		need = 16
	default:
		return AggregateData{}, nil, groveerr.New(groveerr.CorruptedData, "unknown aggregate kind %d", kind)
	}
	if len(buf) < need {
		return AggregateData{}, nil, groveerr.New(groveerr.CorruptedData, "truncated aggregate payload")
	}
	switch kind {
	case AggregateSum:
		agg.Sum = int64(binary.BigEndian.Uint64(buf))
	case AggregateBigSum:
		agg.BigHi = int64(binary.BigEndian.Uint64(buf))
		agg.BigLo = binary.BigEndian.Uint64(buf[8:])
	case AggregateCount, AggregateProvableCount:
		agg.Count = binary.BigEndian.Uint64(buf)
	case AggregateCountSum, AggregateProvableCountSum:
		agg.Count = binary.BigEndian.Uint64(buf)
		agg.Sum = int64(binary.BigEndian.Uint64(buf[8:]))
	}
	return agg, buf[need:], nil
}

// childLinkPayload is what a parent persists about a child: enough to
// reconstruct a Reference link without fetching the child.
type childLinkPayload struct {
	key    []byte
	digest hash.Digest
	height uint8
	agg    AggregateData
}

func encodeChildLink(c *childLinkPayload) []byte {
	if c == nil {
		return []byte{0}
	}
	buf := []byte{1}
	buf = appendVarBytes(buf, c.key)
	buf = append(buf, c.digest[:]...)
	buf = append(buf, byte(c.height>>8), byte(c.height))
	buf = append(buf, encodeAggregate(c.agg.Kind, c.agg)...)
	return buf
}

func decodeChildLink(buf []byte) (*childLinkPayload, []byte, error) {
	if len(buf) < 1 {
		return nil, nil, groveerr.New(groveerr.CorruptedData, "missing child presence byte")
	}
	present := buf[0]
	buf = buf[1:]
	if present == 0 {
		return nil, buf, nil
	}
	key, buf, err := readVarBytes(buf)
	if err != nil {
		return nil, nil, err
	}
	if len(buf) < hash.Size+2 {
		return nil, nil, groveerr.New(groveerr.CorruptedData, "truncated child link")
	}
	digest := hash.FromBytes(buf[:hash.Size])
	buf = buf[hash.Size:]
	height := uint8(uint16(buf[0])<<8 | uint16(buf[1]))
	buf = buf[2:]
	agg, buf, err := decodeAggregate(buf)
	if err != nil {
		return nil, nil, err
	}
	return &childLinkPayload{key: key, digest: digest, height: height, agg: agg}, buf, nil
}

// Encode serializes n for storage, per the on-disk layout above.
func (n *Node) Encode() []byte {
	var buf []byte
	buf = appendVarBytes(buf, n.Value)
	buf = append(buf, n.ValueHash[:]...)
	buf = append(buf, encodeChildLink(linkPayload(n.Left))...)
	buf = append(buf, encodeChildLink(linkPayload(n.Right))...)
	buf = append(buf, byte(n.Feature.Kind))
	buf = append(buf, encodeAggregate(n.Aggregate.Kind, n.Aggregate)...)
	return buf
}

func linkPayload(l *Link) *childLinkPayload {
	if l == nil {
		return nil
	}
	return &childLinkPayload{key: l.Key(), digest: l.Hash(), height: l.Height(), agg: l.Aggregate()}
}

// Decode reconstructs a Node from its on-disk bytes, given its key
// (not stored on disk, see above). Children are reconstructed as
// Reference links only, to be fetched lazily (spec §4.2).
func Decode(key []byte, buf []byte) (*Node, error) {
	value, buf, err := readVarBytes(buf)
	if err != nil {
		return nil, err
	}
	if len(buf) < hash.Size {
		return nil, groveerr.New(groveerr.CorruptedData, "truncated value_hash")
	}
	valueHash := hash.FromBytes(buf[:hash.Size])
	buf = buf[hash.Size:]

	leftPayload, buf, err := decodeChildLink(buf)
	if err != nil {
		return nil, err
	}
	rightPayload, buf, err := decodeChildLink(buf)
	if err != nil {
		return nil, err
	}
	if len(buf) < 1 {
		return nil, groveerr.New(groveerr.CorruptedData, "missing feature tag")
	}
	feature := FeatureType{Kind: FeatureKind(buf[0])}
	buf = buf[1:]
	agg, _, err := decodeAggregate(buf)
	if err != nil {
		return nil, err
	}

	n := &Node{Key: key, Value: value, Feature: feature, ValueHash: valueHash, Aggregate: agg}
	// A combined value_hash cannot be told apart from a plain one just
	// by looking at the bytes; treat every decoded node as carrying
	// whatever hash was persisted and never silently recompute it.
	n.combinedHash = true
	n.recomputeKVHash()
	if leftPayload != nil {
		n.Left = newReferenceLink(leftPayload.key, leftPayload.digest, leftPayload.height, leftPayload.agg)
	}
	if rightPayload != nil {
		n.Right = newReferenceLink(rightPayload.key, rightPayload.digest, rightPayload.height, rightPayload.agg)
	}
	n.Count = 1 + linkCount(n.Left) + linkCount(n.Right)
	return n, nil
}

// EncodeAggregate and DecodeAggregate re-export the node-level
// aggregate codec for the grove package's aggregate-tree element
// variants, so both layers share one on-disk aggregate representation.
func EncodeAggregate(kind AggregateKind, agg AggregateData) []byte {
	return encodeAggregate(kind, agg)
}

func DecodeAggregate(buf []byte) (AggregateData, []byte, error) {
	return decodeAggregate(buf)
}
