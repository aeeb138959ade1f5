package merk

import (
	"bytes"

	"github.com/dashpay/grove/cost"
	"github.com/dashpay/grove/groveerr"
	"github.com/dashpay/grove/hash"
	"github.com/dashpay/grove/query"
	"github.com/dashpay/grove/storage"
)

// Tree is a single authenticated AVL subtree bound to a storage
// context, tying together hashing, lazy fetch, balancing and
// batch-apply into a usable engine (spec §4 in full). It holds at
// most one root link in memory at a time; everything below that is
// reached through Link.Node()/fetch as needed.
type Tree struct {
	src  Source
	root *Link
}

// Open loads (but does not fetch) the root link for ctx's subtree. An
// empty subtree (RootRecord.Exists but nil RootKey, or no record at
// all) is a valid, empty Tree.
func Open(ctx storage.Context) (*Tree, cost.Cost, error) {
	src := Source{Ctx: ctx}
	rec, c, err := ctx.GetRoot()
	if err != nil {
		return nil, c, err
	}
	t := &Tree{src: src}
	if rec.Exists && rec.RootKey != nil {
		n, fc, err := src.Fetch(rec.RootKey)
		c.Add(fc)
		if err != nil {
			return nil, c, err
		}
		t.root = newLoadedLink(n)
	}
	return t, c, nil
}

// RootHash is this subtree's current node_hash, or hash.Null if empty.
// Returns an error if the root link is Modified (the caller must
// Commit first).
func (t *Tree) RootHash() (hash.Digest, error) {
	if t.root == nil {
		return hash.Null, nil
	}
	if t.root.State() == Modified {
		return hash.Digest{}, groveerr.New(groveerr.InvalidPath, "root hash requested before commit")
	}
	return t.root.Hash(), nil
}

// RootKey is the key of the current root node, or nil if the subtree
// is empty.
func (t *Tree) RootKey() []byte {
	if t.root == nil {
		return nil
	}
	return t.root.Key()
}

// Get reads a single key, fetching along the search path as needed.
func (t *Tree) Get(key []byte) ([]byte, cost.Cost, error) {
	var c cost.Cost
	link := t.root
	for {
		if link == nil {
			return nil, c, groveerr.New(groveerr.NotFound, "key %x not found", key)
		}
		n, err := fetch(t.src, link, &c)
		if err != nil {
			return nil, c, err
		}
		switch bytes.Compare(key, n.Key) {
		case 0:
			return n.Value, c, nil
		case -1:
			link = n.Left
		default:
			link = n.Right
		}
	}
}

// Apply applies a sorted, deduplicated batch in memory, updating
// t.root. It does not commit to storage; call Commit afterward.
func (t *Tree) Apply(batch []Entry) (cost.Cost, error) {
	var c cost.Cost
	if err := ValidateSorted(batch); err != nil {
		return c, err
	}
	newRoot, err := applySorted(t.src, t.root, batch, &c)
	if err != nil {
		return c, err
	}
	t.root = newRoot
	return c, nil
}

// Put is a convenience single-key Apply(Put).
func (t *Tree) Put(key, value []byte, feature FeatureType) (cost.Cost, error) {
	return t.Apply([]Entry{{Key: key, Op: Put{Value: value, Feature: feature}}})
}

// Delete is a convenience single-key Apply(Delete).
func (t *Tree) Delete(key []byte) (cost.Cost, error) {
	return t.Apply([]Entry{{Key: key, Op: Delete{}}})
}

// Commit walks the in-memory tree bottom-up, hashing every Modified
// link (Link.commit), persisting every Uncommitted node's bytes to
// the main namespace, and finally updating the roots-namespace record
// (spec §4.2 commit-phase transitions, spec §4.7 roots namespace).
func (t *Tree) Commit(ctx storage.Context) (cost.Cost, error) {
	var c cost.Cost
	if err := commitLink(ctx, t.root, &c); err != nil {
		return c, err
	}

	rec := storage.RootRecord{Exists: true}
	if t.root != nil {
		rec.RootKey = t.root.Key()
	}
	rc, err := ctx.PutRoot(rec)
	c.Add(rc)
	return c, err
}

// commitLink recursively commits a subtree: children first (so a
// parent's node_hash computation sees valid child digests), then this
// link's own node, then its own storage write.
func commitLink(ctx storage.Context, l *Link, c *cost.Cost) error {
	if l == nil || l.State() != Modified {
		return nil
	}
	n := l.Node()
	if err := commitLink(ctx, n.Left, c); err != nil {
		return err
	}
	if err := commitLink(ctx, n.Right, c); err != nil {
		return err
	}
	l.commit(c)

	wc, err := ctx.Put(n.Key, n.Encode())
	c.Add(wc)
	if err != nil {
		return err
	}
	l.markPersisted()
	return nil
}

// Prune replaces every Loaded link in the subtree with a pruned
// Reference link, discarding in-memory nodes while keeping the
// digests/heights/aggregates needed to keep proving and balancing
// correct (spec §4.2 "into_reference()"). Call this after Commit to
// bound memory usage once a subtree is no longer actively being
// edited.
func Prune(l *Link) {
	if l == nil || l.State() != Loaded {
		return
	}
	n := l.Node()
	Prune(n.Left)
	Prune(n.Right)
	l.intoReference()
}

// PruneRoot prunes t's in-memory root, if loaded.
func (t *Tree) PruneRoot() {
	Prune(t.root)
}

// Prove generates a single-tree proof over q against this tree's
// current in-memory root (spec §4.6), for reuse by the grove package's
// multi-layer proof (spec §4.8).
func (t *Tree) Prove(q query.Item, leftToRight bool) ([]ProofOp, []KV, cost.Cost, error) {
	var c cost.Cost
	ops, results, err := Generate(t.src, t.root, q, leftToRight, &c)
	return ops, results, c, err
}
