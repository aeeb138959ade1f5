package merk

import "github.com/dashpay/grove/groveerr"

// FeatureKind discriminates the FeatureType tagged union of spec §3.
// It parameterizes both a node's hash composition (ProvableCounted*
// variants fold their count into node_hash, spec §3 invariants) and
// its cached aggregate behavior. Aggregate arithmetic for the Summed/
// Counted variants beyond the hash extension point they define is out
// of scope (spec §1 "specialized aggregate tree variants... beyond
// noting their hash extension points").
type FeatureKind byte

const (
	Basic FeatureKind = iota
	Summed
	BigSummed
	Counted
	CountedSummed
	ProvableCounted
	ProvableCountedSummed
)

// FeatureType is a node's hash/aggregate tag plus whatever parameter
// its kind carries (e.g. Summed carries no extra state on the type
// itself; the running aggregate lives in AggregateData).
type FeatureType struct {
	Kind FeatureKind
}

// IsProvable reports whether this feature type folds a count into
// node_hash (spec §3 "ProvableCounted variants incorporate the count
// into node_hash").
func (f FeatureType) IsProvable() bool {
	return f.Kind == ProvableCounted || f.Kind == ProvableCountedSummed
}

// AggregateKind discriminates the AggregateData tagged union of spec
// §3. Aggregate data is a performance cache, never part of any hash
// (spec §3 invariants), except for the count folded into node_hash by
// ProvableCounted* feature types (read directly off Node.count, not
// off this cache).
type AggregateKind byte

const (
	AggregateNone AggregateKind = iota
	AggregateSum
	AggregateBigSum
	AggregateCount
	AggregateCountSum
	AggregateProvableCount
	AggregateProvableCountSum
)

// AggregateData is the cached per-node aggregate described in spec
// §3. BigSum uses a 128-bit-like two-word representation (Hi, Lo)
// since Go has no native int128.
type AggregateData struct {
	Kind  AggregateKind
	Sum   int64
	BigHi int64
	BigLo uint64
	Count uint64
}

// addSum folds a leaf's contribution into a running sum, returning
// groveerr.Overflow if the accumulation would exceed int64's range.
func addSum(acc, delta int64) (int64, error) {
	result := acc + delta
	if (delta > 0 && result < acc) || (delta < 0 && result > acc) {
		return 0, groveerr.New(groveerr.Overflow, "aggregate sum overflow")
	}
	return result, nil
}
