package merk

import (
	"bytes"
	"sort"

	"github.com/dashpay/grove/groveerr"
	"github.com/dashpay/grove/hash"
)

// Op is one of the batch-apply operation kinds of spec §4.5.
type Op interface {
	isOp()
}

// Put inserts or overwrites (spec §4.5).
type Put struct {
	Value   []byte
	Feature FeatureType
}

// PutCombined is the "reference-flavored put that supplies a combined
// value_hash directly" (spec §4.5), used by the grove layer to insert
// Tree-type elements without this package knowing what an Element is.
type PutCombined struct {
	Value     []byte
	ValueHash hash.Digest
	Feature   FeatureType
}

// PutWithKnownCost is a specialized-cost Put variant (spec §4.5
// "specialized-cost variants") for callers that already know the
// exact storage delta an insert will cause and want it charged
// verbatim instead of derived from len(Value).
type PutWithKnownCost struct {
	Value       []byte
	Feature     FeatureType
	StorageCost uint64
}

// Replace requires the key to already exist (spec §4.5).
type Replace struct {
	Value   []byte
	Feature FeatureType
}

// ReplaceCombined is Replace's reference-flavored counterpart.
type ReplaceCombined struct {
	Value     []byte
	ValueHash hash.Digest
	Feature   FeatureType
}

// Patch mutates a value in place, constraining the storage delta to
// Delta bytes (spec §4.5); NewValue is the resulting full value
// (simpler and more explicit than shipping a byte-diff format the
// spec does not fix).
type Patch struct {
	NewValue []byte
	Delta    int64
}

// Delete requires the key to already exist (spec §4.5).
type Delete struct{}

func (Put) isOp()              {}
func (PutCombined) isOp()      {}
func (PutWithKnownCost) isOp() {}
func (Replace) isOp()          {}
func (ReplaceCombined) isOp()  {}
func (Patch) isOp()            {}
func (Delete) isOp()           {}

// Entry pairs a key with the op to apply to it. A Batch is a list of
// Entry sorted by Key with no duplicate keys (spec §4.5).
type Entry struct {
	Key []byte
	Op  Op
}

// ValidateSorted checks the strict-sort, no-duplicate invariant a
// caller's batch must satisfy (spec §4.5 "InvalidBatch if the batch
// is not strictly sorted").
func ValidateSorted(batch []Entry) error {
	for i := 1; i < len(batch); i++ {
		if bytes.Compare(batch[i-1].Key, batch[i].Key) >= 0 {
			return groveerr.New(groveerr.InvalidBatch, "batch not strictly sorted at index %d", i)
		}
	}
	return nil
}

// search performs a binary search for key within the sorted batch,
// returning its index and whether it was found.
func search(batch []Entry, key []byte) (int, bool) {
	i := sort.Search(len(batch), func(i int) bool {
		return bytes.Compare(batch[i].Key, key) >= 0
	})
	if i < len(batch) && bytes.Equal(batch[i].Key, key) {
		return i, true
	}
	return i, false
}

// materializeOp applies op to existing (nil meaning "no such key yet")
// and returns the resulting node (nil if the key no longer exists
// after this op), whether the key was deleted, and any error. Put*
// variants insert when existing is nil and overwrite otherwise;
// Replace/ReplaceCombined/Patch/Delete require existing != nil.
func materializeOp(existing *Node, key []byte, op Op) (result *Node, deleted bool, err error) {
	switch o := op.(type) {
	case Put:
		if existing == nil {
			return NewLeaf(key, o.Value, o.Feature), false, nil
		}
		existing.SetValue(o.Value)
		existing.Feature = o.Feature
		return existing, false, nil

	case PutCombined:
		if existing == nil {
			return NewLeafCombined(key, o.Value, o.ValueHash, o.Feature), false, nil
		}
		existing.SetValueCombined(o.Value, o.ValueHash)
		existing.Feature = o.Feature
		return existing, false, nil

	case PutWithKnownCost:
		var n *Node
		if existing == nil {
			n = NewLeaf(key, o.Value, o.Feature)
		} else {
			existing.SetValue(o.Value)
			existing.Feature = o.Feature
			n = existing
		}
		n.KnownStorageCost = o.StorageCost
		return n, false, nil

	case Replace:
		if existing == nil {
			return nil, false, groveerr.New(groveerr.NotFound, "replace: key %x not found", key)
		}
		existing.SetValue(o.Value)
		existing.Feature = o.Feature
		return existing, false, nil

	case ReplaceCombined:
		if existing == nil {
			return nil, false, groveerr.New(groveerr.NotFound, "replace: key %x not found", key)
		}
		existing.SetValueCombined(o.Value, o.ValueHash)
		existing.Feature = o.Feature
		return existing, false, nil

	case Patch:
		if existing == nil {
			return nil, false, groveerr.New(groveerr.NotFound, "patch: key %x not found", key)
		}
		actualDelta := int64(len(o.NewValue)) - int64(len(existing.Value))
		if actualDelta != o.Delta {
			return nil, false, groveerr.New(groveerr.InvalidBatch, "patch: declared delta %d does not match actual delta %d", o.Delta, actualDelta)
		}
		existing.SetValue(o.NewValue)
		return existing, false, nil

	case Delete:
		if existing == nil {
			return nil, false, groveerr.New(groveerr.NotFound, "delete: key %x not found", key)
		}
		return nil, true, nil

	default:
		return nil, false, groveerr.New(groveerr.InvalidBatch, "unknown op type %T", op)
	}
}

// build constructs a height-optimal tree from a (sub-)batch against
// an empty tree: recursively pick the middle element as root, recurse
// on the halves (spec §4.5 "build(batch)"). Every entry must be a
// Put/PutCombined/PutWithKnownCost; any other op on a nonexistent key
// is a NotFound error.
func build(batch []Entry) (*Node, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	mid := len(batch) / 2
	e := batch[mid]
	node, _, err := materializeOp(nil, e.Key, e.Op)
	if err != nil {
		return nil, err
	}

	left, err := build(batch[:mid])
	if err != nil {
		return nil, err
	}
	right, err := build(batch[mid+1:])
	if err != nil {
		return nil, err
	}
	if left != nil {
		node.Left = newModifiedLink(left, pendingWrites(left))
	}
	if right != nil {
		node.Right = newModifiedLink(right, pendingWrites(right))
	}
	return node, nil
}
