// Package grove composes merk tree engines into a hierarchy: a
// Tree-variant Element in a parent tree points to a child tree whose
// root digest is folded into the parent's authenticated value (spec
// §4.8 "Grove composition").
package grove

import (
	"encoding/binary"

	"github.com/dashpay/grove/groveerr"
	"github.com/dashpay/grove/hash"
	"github.com/dashpay/grove/merk"
)

// ElementKind discriminates the Element tagged union of spec §3
// "Element (the value payload)".
type ElementKind byte

const (
	Item ElementKind = iota
	Tree
	SumTree
	BigSumTree
	CountTree
	CountSumTree
)

func (k ElementKind) isTreePortal() bool {
	return k != Item
}

// featureFor maps an aggregate-tree element kind to the merk feature
// type its portal node carries (spec §3 "Aggregate tree variants...
// like Tree plus a cached aggregate"). Only CountTree and CountSumTree
// map to ProvableCounted* kinds, whose count folds into the portal
// node's node_hash; SumTree and BigSumTree map to Summed/BigSummed,
// which fold nothing into any hash.
func (k ElementKind) featureFor() merk.FeatureType {
	switch k {
	case SumTree:
		return merk.FeatureType{Kind: merk.Summed}
	case BigSumTree:
		return merk.FeatureType{Kind: merk.BigSummed}
	case CountTree:
		return merk.FeatureType{Kind: merk.ProvableCounted}
	case CountSumTree:
		return merk.FeatureType{Kind: merk.ProvableCountedSummed}
	default:
		return merk.FeatureType{Kind: merk.Basic}
	}
}

// Element is one value stored at a key in a grove tree: either an
// opaque Item or a portal to a child subtree (spec §3).
type Element struct {
	Kind ElementKind

	// ItemValue is the opaque payload, meaningful only when Kind == Item.
	ItemValue []byte

	// HasRoot/RootKey describe the child subtree's root record,
	// meaningful only for Tree-kind elements. HasRoot == false means
	// the subtree is empty (root digest is hash.Null).
	HasRoot bool
	RootKey []byte

	// Aggregate is the cached aggregate for aggregate-tree variants
	// (spec §3 "a cached aggregate"); never part of any hash itself.
	Aggregate merk.AggregateData
}

// NewItem builds an opaque Item element.
func NewItem(value []byte) Element {
	return Element{Kind: Item, ItemValue: value}
}

// NewEmptyTree builds a Tree-portal element for a not-yet-created or
// just-created empty child subtree.
func NewEmptyTree(kind ElementKind) Element {
	return Element{Kind: kind}
}

// IsTreePortal reports whether this element hangs a child subtree.
func (e Element) IsTreePortal() bool {
	return e.Kind.isTreePortal()
}

// --- Codec (spec §6 "Element encoding: a discriminator byte followed
// by variant-specific fields, using a big-endian, size-unbounded
// binary codec") ---

// Encode serializes e to its on-disk byte representation.
func (e Element) Encode() []byte {
	buf := []byte{byte(e.Kind)}
	switch e.Kind {
	case Item:
		return appendVarBytes(buf, e.ItemValue)
	default:
		if e.HasRoot {
			buf = append(buf, 1)
			buf = appendVarBytes(buf, e.RootKey)
		} else {
			buf = append(buf, 0)
		}
		return append(buf, aggregatePayload(e.Kind, e.Aggregate)...)
	}
}

func aggregatePayload(kind ElementKind, agg merk.AggregateData) []byte {
	switch kind {
	case SumTree:
		return merk.EncodeAggregate(merk.AggregateSum, agg)
	case BigSumTree:
		return merk.EncodeAggregate(merk.AggregateBigSum, agg)
	case CountTree:
		return merk.EncodeAggregate(merk.AggregateProvableCount, agg)
	case CountSumTree:
		return merk.EncodeAggregate(merk.AggregateProvableCountSum, agg)
	default:
		return merk.EncodeAggregate(merk.AggregateNone, agg)
	}
}

// DecodeElement is Encode's inverse.
func DecodeElement(buf []byte) (Element, error) {
	if len(buf) < 1 {
		return Element{}, groveerr.New(groveerr.CorruptedData, "empty element bytes")
	}
	kind := ElementKind(buf[0])
	buf = buf[1:]
	switch kind {
	case Item:
		value, _, err := readVarBytes(buf)
		if err != nil {
			return Element{}, err
		}
		return Element{Kind: Item, ItemValue: value}, nil
	case Tree, SumTree, BigSumTree, CountTree, CountSumTree:
		if len(buf) < 1 {
			return Element{}, groveerr.New(groveerr.CorruptedData, "missing tree-portal presence byte")
		}
		present := buf[0]
		buf = buf[1:]
		e := Element{Kind: kind}
		if present == 1 {
			rootKey, rest, err := readVarBytes(buf)
			if err != nil {
				return Element{}, err
			}
			e.HasRoot = true
			e.RootKey = rootKey
			buf = rest
		}
		agg, _, err := merk.DecodeAggregate(buf)
		if err != nil {
			return Element{}, err
		}
		e.Aggregate = agg
		return e, nil
	default:
		return Element{}, groveerr.New(groveerr.CorruptedData, "unknown element kind %d", kind)
	}
}

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

// combinedValueHash computes the combine_hash that authenticates a
// Tree-portal element against its child subtree's root digest (spec
// §4.1 "Tree-like elements commit their child subtree by computing
// ... combine_hash(value_hash_of_element_bytes, child_root_digest)").
func combinedValueHash(elementBytes []byte, childRootDigest hash.Digest) hash.Digest {
	return hash.CombineHash(hash.ElementDigest(elementBytes), childRootDigest)
}
