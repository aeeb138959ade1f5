package grove

import (
	"bytes"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dashpay/grove/cost"
	"github.com/dashpay/grove/groveerr"
	"github.com/dashpay/grove/hash"
	"github.com/dashpay/grove/merk"
	"github.com/dashpay/grove/storage"
	"github.com/dashpay/grove/storage/badgerdb"
)

// GroveOpKind is one of the qualified-operation kinds a batch item may
// request (spec §4.9 "grove_op ∈ {InsertOnly, InsertOrReplace,
// Replace, Patch, Delete, DeleteSubtree}").
type GroveOpKind int

const (
	InsertOnly GroveOpKind = iota
	InsertOrReplace
	Replace
	Patch
	Delete
	DeleteSubtree
)

// BatchOp is one qualified operation targeting (Path, Key) (spec
// §4.9).
type BatchOp struct {
	Path storage.Path
	Key  []byte
	Kind GroveOpKind

	// Element is the new value, meaningful for InsertOnly,
	// InsertOrReplace, Replace and Patch.
	Element Element

	// PatchDelta is the declared storage-size delta for Patch, checked
	// by merk.Patch at the tree layer against the length difference
	// between the encoded new Element and the stored encoded value.
	PatchDelta int64
}

func pathKeyString(path storage.Path, key []byte) string {
	var buf bytes.Buffer
	for _, seg := range path {
		buf.WriteByte(0)
		buf.Write(seg)
	}
	buf.WriteByte(1)
	buf.Write(key)
	return buf.String()
}

func pathString(path storage.Path) string {
	var buf bytes.Buffer
	for _, seg := range path {
		buf.WriteByte(0)
		buf.Write(seg)
	}
	return buf.String()
}

// Apply is the atomic multi-subtree batch processor (spec §4.9):
// stable-sort and validate every op against current state with no
// writes, then apply all affected subtrees' ops and propagate root
// digests upward, all inside one transaction commit.
func (d *Database) Apply(ops []BatchOp) (cost.Cost, error) {
	var c cost.Cost

	sorted := make([]BatchOp, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := pathString(sorted[i].Path), pathString(sorted[j].Path)
		if pi != pj {
			return pi < pj
		}
		return bytes.Compare(sorted[i].Key, sorted[j].Key) < 0
	})

	if err := validateBatch(d, sorted, &c); err != nil {
		return c, err
	}

	tx := d.Begin()
	if err := applyBatch(tx, sorted, d.opts.defaultFeature, &c); err != nil {
		tx.Discard()
		return c, err
	}
	if err := d.checkCeiling(c); err != nil {
		tx.Discard()
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

// validateBatch runs phase 1 (spec §4.9 "Validation"): every
// Replace/Patch/Delete must target an existing key, every InsertOnly
// must target an absent key, and a Replace/Patch may not change an
// element's tree-portal-vs-item class. No writes happen in this
// phase; distinct target paths are opened and checked concurrently
// (each against its own read-only badger snapshot), since a path's
// group is independent of every other path's.
func validateBatch(d *Database, sorted []BatchOp, c *cost.Cost) error {
	seen := make(map[string]bool)
	groups := map[string][]BatchOp{}
	var order []string
	paths := map[string]storage.Path{}
	for _, op := range sorted {
		k := pathKeyString(op.Path, op.Key)
		if seen[k] && op.Kind != DeleteSubtree {
			return groveerr.New(groveerr.InvalidBatch, "duplicate (path, key) in batch for key %x", op.Key)
		}
		seen[k] = true

		pk := pathString(op.Path)
		if _, ok := groups[pk]; !ok {
			order = append(order, pk)
			paths[pk] = op.Path
		}
		groups[pk] = append(groups[pk], op)
	}

	costs := make([]cost.Cost, len(order))
	g := new(errgroup.Group)
	for i, pk := range order {
		i, path, ops := i, paths[pk], groups[pk]
		g.Go(func() error {
			return d.store.View(func(tx *badgerdb.Transaction) error {
				return validateGroup(tx, path, ops, &costs[i])
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, gc := range costs {
		c.Add(gc)
	}
	return nil
}

func validateGroup(tx *badgerdb.Transaction, path storage.Path, ops []BatchOp, c *cost.Cost) error {
	for _, op := range ops {
		existing, gc, err := getAt(tx, path, op.Key)
		c.Add(gc)
		exists := err == nil
		if err != nil && !groveerr.Is(err, groveerr.NotFound) {
			return err
		}

		switch op.Kind {
		case InsertOnly:
			if exists {
				return groveerr.New(groveerr.InvalidBatch, "InsertOnly on existing key %x", op.Key)
			}
		case Replace, Patch:
			if !exists {
				return groveerr.New(groveerr.NotFound, "key %x not found", op.Key)
			}
			if existing.IsTreePortal() != op.Element.IsTreePortal() {
				return groveerr.New(groveerr.TypeMismatch, "op changes element class at key %x", op.Key)
			}
		case Delete, DeleteSubtree:
			if !exists {
				return groveerr.New(groveerr.NotFound, "key %x not found", op.Key)
			}
			if op.Kind == DeleteSubtree && !existing.IsTreePortal() {
				return groveerr.New(groveerr.TypeMismatch, "DeleteSubtree on non-portal key %x", op.Key)
			}
		case InsertOrReplace:
			// No presence requirement either way.
		default:
			return groveerr.New(groveerr.InvalidBatch, "unknown grove op kind %d", op.Kind)
		}
	}
	return nil
}

// applyBatch is phase 2 (spec §4.9 "Application"): DeleteSubtree ops
// run first (each is its own atomic recursive teardown), then the
// remaining ops are grouped by path and applied one merk batch per
// path, propagating upward immediately after each path's commit.
//
// This folds each group's ancestor chain independently rather than
// sharing one cross-group tree cache, so a batch touching many
// siblings under one ancestor re-reads/re-writes that ancestor once
// per sibling group instead of once overall; the atomicity guarantee
// (single transaction, single commit) still holds, only the §4.9
// O(affected_subtrees × depth) propagation-cost bound does not.
func applyBatch(tx *badgerdb.Transaction, sorted []BatchOp, defaultFeature merk.FeatureType, c *cost.Cost) error {
	var rest []BatchOp
	for _, op := range sorted {
		if op.Kind == DeleteSubtree {
			dc, err := deleteSubtreeAt(tx, op.Path, op.Key)
			c.Add(dc)
			if err != nil {
				return err
			}
			continue
		}
		rest = append(rest, op)
	}

	groups := map[string][]BatchOp{}
	var order []string
	paths := map[string]storage.Path{}
	for _, op := range rest {
		k := pathString(op.Path)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
			paths[k] = op.Path
		}
		groups[k] = append(groups[k], op)
	}

	for _, k := range order {
		path := paths[k]
		if err := applyGroup(tx, path, groups[k], defaultFeature, c); err != nil {
			return err
		}
	}
	return nil
}

func applyGroup(tx *badgerdb.Transaction, path storage.Path, ops []BatchOp, defaultFeature merk.FeatureType, c *cost.Cost) error {
	ctx := tx.NewContext(path)
	t, oc, err := merk.Open(ctx)
	c.Add(oc)
	if err != nil {
		return err
	}

	entries := make([]merk.Entry, 0, len(ops))
	for _, op := range ops {
		mop, err := buildMerkOp(tx, path, op, defaultFeature, c)
		if err != nil {
			return err
		}
		entries = append(entries, merk.Entry{Key: op.Key, Op: mop})
	}

	wc, err := t.Apply(entries)
	c.Add(wc)
	if err != nil {
		return err
	}
	pc, err := t.Commit(ctx)
	c.Add(pc)
	if err != nil {
		return err
	}
	return propagate(tx, path, t, c)
}

func buildMerkOp(tx *badgerdb.Transaction, path storage.Path, op BatchOp, defaultFeature merk.FeatureType, c *cost.Cost) (merk.Op, error) {
	switch op.Kind {
	case Delete:
		return merk.Delete{}, nil
	case Patch:
		return merk.Patch{NewValue: op.Element.Encode(), Delta: op.PatchDelta}, nil
	case InsertOnly, InsertOrReplace, Replace:
		elem := op.Element
		childDigest, err := resolveChildDigest(tx, path, op.Key, &elem, c)
		if err != nil {
			return nil, err
		}
		encoded := elem.Encode()
		if elem.IsTreePortal() {
			combined := combinedValueHash(encoded, childDigest)
			if op.Kind == Replace {
				return merk.ReplaceCombined{Value: encoded, ValueHash: combined, Feature: elem.Kind.featureFor()}, nil
			}
			return merk.PutCombined{Value: encoded, ValueHash: combined, Feature: elem.Kind.featureFor()}, nil
		}
		if op.Kind == Replace {
			return merk.Replace{Value: encoded, Feature: defaultFeature}, nil
		}
		return merk.Put{Value: encoded, Feature: defaultFeature}, nil
	default:
		return nil, groveerr.New(groveerr.InvalidBatch, "unsupported grove op kind %d", op.Kind)
	}
}

// resolveChildDigest ensures a tree-portal element's child subtree has
// a roots record and returns its current root digest, mirroring
// insertAt's single-key logic for batch use.
func resolveChildDigest(tx *badgerdb.Transaction, path storage.Path, key []byte, elem *Element, c *cost.Cost) (hash.Digest, error) {
	if !elem.IsTreePortal() {
		return hash.Null, nil
	}
	childPath := path.Append(key)
	childCtx := tx.NewContext(childPath)
	rec, rc, err := childCtx.GetRoot()
	c.Add(rc)
	if err != nil {
		return hash.Null, err
	}
	if !rec.Exists {
		wc, err := childCtx.PutRoot(storage.RootRecord{Exists: true})
		c.Add(wc)
		if err != nil {
			return hash.Null, err
		}
		return hash.Null, nil
	}
	elem.HasRoot = rec.RootKey != nil
	elem.RootKey = rec.RootKey
	if !elem.HasRoot {
		return hash.Null, nil
	}
	childTree, oc, err := merk.Open(childCtx)
	c.Add(oc)
	if err != nil {
		return hash.Null, err
	}
	return childTree.RootHash()
}
