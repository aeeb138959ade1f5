package merk

import (
	"bytes"
	"encoding/binary"

	"github.com/dashpay/grove/cost"
	"github.com/dashpay/grove/groveerr"
	"github.com/dashpay/grove/hash"
	"github.com/dashpay/grove/query"
)

// NodeDesc is the tagged union of node descriptions a proof can
// reveal at a Push op (spec §4.6 "Node descriptions").
type NodeDesc interface {
	isNodeDesc()
}

// DescHash is an opaque sibling: the verifier treats Digest as the
// subtree's node_hash directly.
type DescHash struct{ Digest hash.Digest }

// DescKvHash is a node on the path to a queried node but not itself
// queried; the verifier recomputes its node_hash from KVHash and the
// reconstructed child hashes rather than trusting a precomputed
// node_hash, which would let a forged stream substitute an arbitrary
// child subtree undetected. Feature/Count are carried so the
// recomputation folds in Count for ProvableCounted* feature nodes the
// same way RecomputeNodeHash does.
type DescKvHash struct {
	KVHash  hash.Digest
	Feature FeatureType
	Count   uint64
}

// DescKv is a queried element; the verifier recomputes value_hash,
// kv_hash and node_hash from Key/Value.
type DescKv struct {
	Key   []byte
	Value []byte
}

// DescKvValueHash is a queried element whose value_hash is a combined
// hash (a tree portal); the verifier uses ValueHash rather than
// recomputing Blake3(value).
type DescKvValueHash struct {
	Key       []byte
	Value     []byte
	ValueHash hash.Digest
}

// DescKvDigest is a boundary node for absence proofs: it reveals the
// key but not the value.
type DescKvDigest struct {
	Key       []byte
	ValueHash hash.Digest
}

// DescKvFeatured carries a feature type for aggregate or
// provable-count hashing; Count is only meaningful when Feature is one
// of the ProvableCounted* kinds.
type DescKvFeatured struct {
	Key       []byte
	Value     []byte
	ValueHash hash.Digest
	Feature   FeatureType
	Count     uint64
}

func (DescHash) isNodeDesc()        {}
func (DescKvHash) isNodeDesc()      {}
func (DescKv) isNodeDesc()          {}
func (DescKvValueHash) isNodeDesc() {}
func (DescKvDigest) isNodeDesc()    {}
func (DescKvFeatured) isNodeDesc()  {}

// OpKind discriminates the stack-machine operations of spec §4.6.
type OpKind byte

const (
	OpPush OpKind = iota
	OpParent
	OpChild
	OpParentInverted
	OpChildInverted
)

// ProofOp is a single element of the flat operation stream; Desc is
// only meaningful when Kind == OpPush.
type ProofOp struct {
	Kind OpKind
	Desc NodeDesc
}

// KV is one revealed (key, value) pair in a proof's result set.
type KV struct {
	Key   []byte
	Value []byte
}

// Generate produces the proof operation stream for query over the
// subtree rooted at link, plus the set of fully-revealed (key, value)
// pairs it contains (spec §4.6 "Generation"). leftToRight selects
// ascending vs. descending traversal order and thereby Parent/Child
// vs. ParentInverted/ChildInverted (spec §4.6 rule 4).
func Generate(src Source, link *Link, q query.Item, leftToRight bool, c *cost.Cost) ([]ProofOp, []KV, error) {
	g := &generator{src: src, query: q, leftToRight: leftToRight, cost: c}
	ops, err := g.visit(link)
	if err != nil {
		return nil, nil, err
	}
	return ops, g.results, nil
}

type generator struct {
	src         Source
	query       query.Item
	leftToRight bool
	cost        *cost.Cost
	results     []KV
}

// visit returns the ops needed to push exactly one reconstructed item
// representing link onto the stack. A nil link pushes nothing and
// returns an empty op list; callers must only attach (Parent/Child)
// when the corresponding child link is non-nil.
func (g *generator) visit(link *Link) ([]ProofOp, error) {
	if link == nil {
		return nil, nil
	}
	lower, upper, startExclusive := g.query.Bounds()

	// Decide, without fetching, whether this whole subtree lies
	// outside the query range and can be summarized by its digest
	// alone (spec §4.6 rule 3). We still fetch one level anyway to
	// check the node's own key against the range; this mirrors
	// "operations that only read digests ... never fetch beyond
	// references" only for the strictly-excluded case below, since in
	// that case we skip the fetch entirely.
	if !rangeCouldTouch(lower, upper, link) {
		return []ProofOp{{Kind: OpPush, Desc: DescHash{Digest: link.Hash()}}}, nil
	}

	n, err := fetch(g.src, link, g.cost)
	if err != nil {
		return nil, err
	}

	descendLeft := lower == nil || bytes.Compare(lower, n.Key) < 0 || (startExclusive == false && bytes.Equal(lower, n.Key))
	descendRight := upper == nil || bytes.Compare(n.Key, upper) < 0 || (g.query.UpperInclusive() && bytes.Equal(n.Key, upper))

	var leftOps, rightOps []ProofOp
	if n.Left != nil && descendLeft {
		leftOps, err = g.visit(n.Left)
		if err != nil {
			return nil, err
		}
	} else if n.Left != nil {
		leftOps = []ProofOp{{Kind: OpPush, Desc: DescHash{Digest: n.Left.Hash()}}}
	}
	if n.Right != nil && descendRight {
		rightOps, err = g.visit(n.Right)
		if err != nil {
			return nil, err
		}
	} else if n.Right != nil {
		rightOps = []ProofOp{{Kind: OpPush, Desc: DescHash{Digest: n.Right.Hash()}}}
	}

	contained := g.query.Contains(n.Key)
	isFrontier := (n.Left == nil || !descendLeft) && (n.Right == nil || !descendRight)

	var desc NodeDesc
	switch {
	case contained:
		desc = g.describeRevealed(n)
		g.results = append(g.results, KV{Key: n.Key, Value: n.Value})
	case isFrontier:
		desc = DescKvDigest{Key: n.Key, ValueHash: n.ValueHash}
	default:
		desc = DescKvHash{KVHash: n.KVHash, Feature: n.Feature, Count: n.Count}
	}

	parentOp, childOp := OpParent, OpChild
	if !g.leftToRight {
		parentOp, childOp = OpParentInverted, OpChildInverted
	}

	var ops []ProofOp
	if n.Left != nil {
		ops = append(ops, leftOps...)
	}
	ops = append(ops, ProofOp{Kind: OpPush, Desc: desc})
	if n.Left != nil {
		ops = append(ops, ProofOp{Kind: parentOp})
	}
	if n.Right != nil {
		ops = append(ops, rightOps...)
		ops = append(ops, ProofOp{Kind: childOp})
	}
	return ops, nil
}

func (g *generator) describeRevealed(n *Node) NodeDesc {
	if n.Feature.IsProvable() {
		return DescKvFeatured{Key: n.Key, Value: n.Value, ValueHash: n.ValueHash, Feature: n.Feature, Count: n.Count}
	}
	if n.combinedHash {
		return DescKvValueHash{Key: n.Key, Value: n.Value, ValueHash: n.ValueHash}
	}
	return DescKv{Key: n.Key, Value: n.Value}
}

// rangeCouldTouch reports whether link's cached digest bounds leave
// room for its subtree to overlap [lower, upper]; Reference links
// carry no key ordering bounds beyond their own Key, so this is a
// conservative "never say no when unsure" check based only on the
// child's own key, trading a slightly larger proof for never
// under-fetching.
func rangeCouldTouch(lower, upper []byte, link *Link) bool {
	if lower == nil && upper == nil {
		return true
	}
	key := link.Key()
	if lower != nil && bytes.Compare(key, lower) < 0 && link.Height() <= 1 {
		return false
	}
	if upper != nil && bytes.Compare(key, upper) > 0 && link.Height() <= 1 {
		return false
	}
	return true
}

// Verify replays ops against an empty stack, recomputing node hashes
// bottom-up, and checks the single remaining item's node_hash against
// expectedRoot (spec §4.6 "Verification"). It returns the revealed
// result set.
func Verify(ops []ProofOp, expectedRoot hash.Digest) ([]KV, error) {
	root, results, err := Replay(ops)
	if err != nil {
		return nil, err
	}
	if root != expectedRoot {
		return nil, groveerr.New(groveerr.ProofInvalid, "reconstructed root digest does not match expected")
	}
	return results, nil
}

// Replay executes ops the same way Verify does but returns the
// reconstructed root digest instead of comparing it, for callers that
// only learn the expected digest from context outside the proof
// itself — the grove package's multi-layer proof (spec §4.8) chains a
// child layer's Replay digest into its parent layer's combined-hash
// check this way.
func Replay(ops []ProofOp) (hash.Digest, []KV, error) {
	// An empty subtree produces no ops at all (spec §8 "Empty tree ...
	// prove produces a minimal proof that verifies against NULL_DIGEST");
	// reconstruct that as NULL_DIGEST with no results rather than
	// rejecting the empty stack below.
	if len(ops) == 0 {
		return hash.Null, nil, nil
	}

	var stack []*verifyItem
	var results []KV

	for _, op := range ops {
		switch op.Kind {
		case OpPush:
			item, kv, err := pushItem(op.Desc)
			if err != nil {
				return hash.Digest{}, nil, err
			}
			if kv != nil {
				results = append(results, *kv)
			}
			stack = append(stack, item)

		case OpParent, OpParentInverted:
			if len(stack) < 2 {
				return hash.Digest{}, nil, groveerr.New(groveerr.ProofInvalid, "parent op on stack of size %d", len(stack))
			}
			p := stack[len(stack)-1]
			c := stack[len(stack)-2]
			stack = stack[:len(stack)-2]
			cDigest := finalize(c)
			if op.Kind == OpParentInverted {
				p.right = &cDigest
			} else {
				p.left = &cDigest
			}
			stack = append(stack, p)

		case OpChild, OpChildInverted:
			if len(stack) < 2 {
				return hash.Digest{}, nil, groveerr.New(groveerr.ProofInvalid, "child op on stack of size %d", len(stack))
			}
			c := stack[len(stack)-1]
			p := stack[len(stack)-2]
			stack = stack[:len(stack)-2]
			cDigest := finalize(c)
			if op.Kind == OpChildInverted {
				p.left = &cDigest
			} else {
				p.right = &cDigest
			}
			stack = append(stack, p)

		default:
			return hash.Digest{}, nil, groveerr.New(groveerr.ProofInvalid, "unknown proof op %d", op.Kind)
		}
	}

	if len(stack) != 1 {
		return hash.Digest{}, nil, groveerr.New(groveerr.ProofInvalid, "proof left %d items on stack, want 1", len(stack))
	}
	return finalize(stack[0]), results, nil
}

// RevealedCombinedValueHash scans ops for the Push op revealing key as
// a combined-hash node (DescKvValueHash or a provable DescKvFeatured)
// and returns its declared value_hash and raw element bytes. Used by
// the grove package's multi-layer proof (spec §4.8) to recompute and
// cross-check a portal's combined_value_hash against the child
// layer's own reconstructed root digest.
func RevealedCombinedValueHash(ops []ProofOp, key []byte) (valueHash hash.Digest, elementBytes []byte, found bool) {
	for _, op := range ops {
		if op.Kind != OpPush {
			continue
		}
		switch d := op.Desc.(type) {
		case DescKvValueHash:
			if bytes.Equal(d.Key, key) {
				return d.ValueHash, d.Value, true
			}
		case DescKvFeatured:
			if bytes.Equal(d.Key, key) {
				return d.ValueHash, d.Value, true
			}
		}
	}
	return hash.Digest{}, nil, false
}

// verifyItem is a stack slot: either a finalized opaque digest or a
// pending reconstruction carrying enough to compute node_hash once
// both (or neither) of its children are known.
type verifyItem struct {
	finalized bool
	digest    hash.Digest

	kvHash  hash.Digest
	feature FeatureType
	count   uint64
	left    *hash.Digest
	right   *hash.Digest
}

func finalize(item *verifyItem) hash.Digest {
	if item.finalized {
		return item.digest
	}
	left, right := hash.Null, hash.Null
	if item.left != nil {
		left = *item.left
	}
	if item.right != nil {
		right = *item.right
	}
	if item.feature.IsProvable() {
		return hash.NodeHashWithCount(item.kvHash, left, right, item.count)
	}
	return hash.NodeHash(item.kvHash, left, right)
}

func pushItem(desc NodeDesc) (*verifyItem, *KV, error) {
	switch d := desc.(type) {
	case DescHash:
		return &verifyItem{finalized: true, digest: d.Digest}, nil, nil
	case DescKvHash:
		return &verifyItem{kvHash: d.KVHash, feature: d.Feature, count: d.Count}, nil, nil
	case DescKv:
		vh := hash.ValueHash(d.Value)
		return &verifyItem{kvHash: hash.KVHash(d.Key, vh)}, &KV{Key: d.Key, Value: d.Value}, nil
	case DescKvValueHash:
		return &verifyItem{kvHash: hash.KVHash(d.Key, d.ValueHash)}, &KV{Key: d.Key, Value: d.Value}, nil
	case DescKvDigest:
		return &verifyItem{kvHash: hash.KVHash(d.Key, d.ValueHash)}, nil, nil
	case DescKvFeatured:
		vh := d.ValueHash
		return &verifyItem{kvHash: hash.KVHash(d.Key, vh), feature: d.Feature, count: d.Count}, &KV{Key: d.Key, Value: d.Value}, nil
	default:
		return nil, nil, groveerr.New(groveerr.ProofInvalid, "unknown node description %T", desc)
	}
}

// --- Wire encoding (spec §4.6 "the wire format is an implementation
// concern but MUST be deterministic") ---

const (
	tagHash byte = iota
	tagKvHash
	tagKv
	tagKvValueHash
	tagKvDigest
	tagKvFeatured
)

// EncodeProof serializes an op stream to bytes.
func EncodeProof(ops []ProofOp) []byte {
	var buf []byte
	for _, op := range ops {
		buf = append(buf, byte(op.Kind))
		if op.Kind == OpPush {
			buf = appendDesc(buf, op.Desc)
		}
	}
	return buf
}

func appendDesc(buf []byte, desc NodeDesc) []byte {
	switch d := desc.(type) {
	case DescHash:
		buf = append(buf, tagHash)
		return append(buf, d.Digest[:]...)
	case DescKvHash:
		buf = append(buf, tagKvHash)
		buf = append(buf, d.KVHash[:]...)
		buf = append(buf, byte(d.Feature.Kind))
		return binary.BigEndian.AppendUint64(buf, d.Count)
	case DescKv:
		buf = append(buf, tagKv)
		buf = appendVarBytes(buf, d.Key)
		return appendVarBytes(buf, d.Value)
	case DescKvValueHash:
		buf = append(buf, tagKvValueHash)
		buf = appendVarBytes(buf, d.Key)
		buf = appendVarBytes(buf, d.Value)
		return append(buf, d.ValueHash[:]...)
	case DescKvDigest:
		buf = append(buf, tagKvDigest)
		buf = appendVarBytes(buf, d.Key)
		return append(buf, d.ValueHash[:]...)
	case DescKvFeatured:
		buf = append(buf, tagKvFeatured)
		buf = appendVarBytes(buf, d.Key)
		buf = appendVarBytes(buf, d.Value)
		buf = append(buf, d.ValueHash[:]...)
		buf = append(buf, byte(d.Feature.Kind))
		return binary.BigEndian.AppendUint64(buf, d.Count)
	default:
		return buf
	}
}

// DecodeProof is EncodeProof's inverse.
func DecodeProof(buf []byte) ([]ProofOp, error) {
	var ops []ProofOp
	for len(buf) > 0 {
		kind := OpKind(buf[0])
		buf = buf[1:]
		op := ProofOp{Kind: kind}
		if kind == OpPush {
			desc, rest, err := readDesc(buf)
			if err != nil {
				return nil, err
			}
			op.Desc = desc
			buf = rest
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func readDesc(buf []byte) (NodeDesc, []byte, error) {
	if len(buf) < 1 {
		return nil, nil, groveerr.New(groveerr.ProofInvalid, "truncated proof: missing descriptor tag")
	}
	tag := buf[0]
	buf = buf[1:]
	switch tag {
	case tagHash:
		if len(buf) < hash.Size {
			return nil, nil, groveerr.New(groveerr.ProofInvalid, "truncated Hash descriptor")
		}
		return DescHash{Digest: hash.FromBytes(buf[:hash.Size])}, buf[hash.Size:], nil
	case tagKvHash:
		if len(buf) < hash.Size+1+8 {
			return nil, nil, groveerr.New(groveerr.ProofInvalid, "truncated KvHash descriptor")
		}
		kvHash := hash.FromBytes(buf[:hash.Size])
		buf = buf[hash.Size:]
		feature := FeatureType{Kind: FeatureKind(buf[0])}
		buf = buf[1:]
		count := binary.BigEndian.Uint64(buf[:8])
		buf = buf[8:]
		return DescKvHash{KVHash: kvHash, Feature: feature, Count: count}, buf, nil
	case tagKv:
		key, buf, err := readVarBytes(buf)
		if err != nil {
			return nil, nil, err
		}
		value, buf, err := readVarBytes(buf)
		if err != nil {
			return nil, nil, err
		}
		return DescKv{Key: key, Value: value}, buf, nil
	case tagKvValueHash:
		key, buf, err := readVarBytes(buf)
		if err != nil {
			return nil, nil, err
		}
		value, buf, err := readVarBytes(buf)
		if err != nil {
			return nil, nil, err
		}
		if len(buf) < hash.Size {
			return nil, nil, groveerr.New(groveerr.ProofInvalid, "truncated KvValueHash descriptor")
		}
		return DescKvValueHash{Key: key, Value: value, ValueHash: hash.FromBytes(buf[:hash.Size])}, buf[hash.Size:], nil
	case tagKvDigest:
		key, buf, err := readVarBytes(buf)
		if err != nil {
			return nil, nil, err
		}
		if len(buf) < hash.Size {
			return nil, nil, groveerr.New(groveerr.ProofInvalid, "truncated KvDigest descriptor")
		}
		return DescKvDigest{Key: key, ValueHash: hash.FromBytes(buf[:hash.Size])}, buf[hash.Size:], nil
	case tagKvFeatured:
		key, buf, err := readVarBytes(buf)
		if err != nil {
			return nil, nil, err
		}
		value, buf, err := readVarBytes(buf)
		if err != nil {
			return nil, nil, err
		}
		if len(buf) < hash.Size+1+8 {
			return nil, nil, groveerr.New(groveerr.ProofInvalid, "truncated KvFeatured descriptor")
		}
		vh := hash.FromBytes(buf[:hash.Size])
		buf = buf[hash.Size:]
		feature := FeatureType{Kind: FeatureKind(buf[0])}
		buf = buf[1:]
		count := binary.BigEndian.Uint64(buf[:8])
		buf = buf[8:]
		return DescKvFeatured{Key: key, Value: value, ValueHash: vh, Feature: feature, Count: count}, buf, nil
	default:
		return nil, nil, groveerr.New(groveerr.ProofInvalid, "unknown descriptor tag %d", tag)
	}
}
