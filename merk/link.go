package merk

import (
	"github.com/dashpay/grove/cost"
	"github.com/dashpay/grove/hash"
)

// LinkState is one of the four states a parent-to-child edge can be
// in (spec §4.2).
type LinkState int

const (
	// Reference: digest known, node not materialized, key known —
	// the compact, pruned, proof-bearing representation.
	Reference LinkState = iota
	// Modified: digest invalid, node materialized and dirty. Must be
	// hashed before it can be committed.
	Modified
	// Uncommitted: hashed but not yet persisted.
	Uncommitted
	// Loaded: fully materialized and clean.
	Loaded
)

// Link is a parent-to-child edge in one of the four states above
// (spec §4.2). A single struct with a state tag is used rather than
// four Go types behind an interface, so that height/key/digest
// metadata — needed for O(1) balance-factor and hash recomputation
// even when a sibling subtree is still pruned — stays available
// regardless of state without a type switch at every call site.
type Link struct {
	state LinkState

	key    []byte
	digest hash.Digest // meaningless while state == Modified
	height uint8
	agg    AggregateData
	count  uint64

	node *Node // nil while state == Reference

	// pendingWrites is "1 + left.pendingWrites + right.pendingWrites"
	// for a Modified link (spec §4.2), used by the commit phase to
	// order writes bottom-up.
	pendingWrites uint64
}

// newReferenceLink builds a pruned Reference link carrying just
// enough metadata to extend proofs and compute ancestor balance
// factors without a fetch.
func newReferenceLink(key []byte, digest hash.Digest, height uint8, agg AggregateData) *Link {
	return &Link{state: Reference, key: key, digest: digest, height: height, agg: agg, count: aggregateNodeCount(agg)}
}

// newLoadedLink wraps an already-hashed, already-persisted node.
func newLoadedLink(n *Node) *Link {
	return &Link{
		state: Loaded, key: n.Key, digest: n.RecomputeNodeHashCached(), height: n.Height(),
		agg: n.Aggregate, count: n.Count, node: n,
	}
}

// newModifiedLink wraps a freshly mutated node whose hash is not yet
// valid.
func newModifiedLink(n *Node, pendingWrites uint64) *Link {
	return &Link{state: Modified, key: n.Key, height: n.Height(), node: n, pendingWrites: pendingWrites}
}

func aggregateNodeCount(agg AggregateData) uint64 {
	switch agg.Kind {
	case AggregateCount, AggregateCountSum, AggregateProvableCount, AggregateProvableCountSum:
		return agg.Count
	default:
		return 0
	}
}

// State reports this link's current lifecycle state.
func (l *Link) State() LinkState { return l.state }

// Key returns the child's key, known in every state.
func (l *Link) Key() []byte { return l.key }

// Height returns the cached subtree height, valid in every state
// (kept current by whichever routine last computed the child's node).
func (l *Link) Height() uint8 { return l.height }

// Aggregate returns the cached subtree aggregate, valid in every
// state.
func (l *Link) Aggregate() AggregateData { return l.agg }

// Count returns the cached subtree node count used for
// ProvableCounted* hashing, valid in every state.
func (l *Link) Count() uint64 {
	if l.node != nil {
		return l.node.Count
	}
	return l.count
}

// Hash returns the child's node_hash. Valid in every state except
// Modified, where the caller must Commit first (spec §4.2 table).
func (l *Link) Hash() hash.Digest {
	return l.digest
}

// Node returns the materialized node behind this link, or nil if the
// link is still a Reference (spec §4.2 "In-memory node: no").
func (l *Link) Node() *Node {
	return l.node
}

// IsPruned reports whether this link needs a Fetch before its node
// can be read.
func (l *Link) IsPruned() bool {
	return l.state == Reference
}

// markLoaded transitions a freshly-fetched Reference link to Loaded.
func (l *Link) markLoaded(n *Node) {
	l.state = Loaded
	l.node = n
}

// markModified transitions any link to Modified, invalidating its
// digest (spec §4.2 "any mutation -> Modified").
func (l *Link) markModified(n *Node, pendingWrites uint64) {
	l.state = Modified
	l.node = n
	l.pendingWrites = pendingWrites
}

// commit bottom-up hashes a Modified link's node, transitioning it to
// Uncommitted (spec §4.2 "commit(): Modified -> Uncommitted").
func (l *Link) commit(c *cost.Cost) {
	if l.state != Modified {
		return
	}
	l.digest = l.node.RecomputeNodeHash(c)
	l.height = l.node.Height()
	l.agg = l.node.Aggregate
	l.count = l.node.Count
	l.state = Uncommitted
}

// markPersisted transitions an Uncommitted link to Loaded once its
// node bytes have actually been written (spec §4.2 "storage write:
// Uncommitted -> Loaded").
func (l *Link) markPersisted() {
	if l.state == Uncommitted {
		l.state = Loaded
	}
}

// intoReference prunes a Loaded link back to Reference, discarding
// the in-memory node while preserving digest/key/height/aggregate
// metadata (spec §4.2 "into_reference(): Loaded -> Reference").
func (l *Link) intoReference() {
	if l.state != Loaded {
		return
	}
	l.state = Reference
	l.node = nil
}

// RecomputeNodeHashCached is a convenience for building a Loaded link
// from a node whose hash has already been committed elsewhere; it
// trusts the node's cached KVHash/children rather than re-walking
// cost accounting (used only at construction, never inside the hot
// apply path).
func (n *Node) RecomputeNodeHashCached() hash.Digest {
	var discard cost.Cost
	return n.RecomputeNodeHash(&discard)
}
