package grove

import (
	"github.com/dashpay/grove/cost"
	"github.com/dashpay/grove/groveerr"
	"github.com/dashpay/grove/hash"
	"github.com/dashpay/grove/merk"
	"github.com/dashpay/grove/storage"
	"github.com/dashpay/grove/storage/badgerdb"
)

// RootDigest returns the grove's overall root digest: the root tree's
// node_hash, or hash.Null for an empty grove (spec §4.8 "Hash
// propagation invariant").
func (d *Database) RootDigest() (hash.Digest, error) {
	tx := d.Direct()
	defer tx.Discard()
	t, _, err := merk.Open(tx.NewContext(nil))
	if err != nil {
		return hash.Digest{}, err
	}
	return t.RootHash()
}

// Get opens the tree at path and returns the decoded element stored
// under key (spec §4.8 "get(path, key)").
func (d *Database) Get(path storage.Path, key []byte) (Element, cost.Cost, error) {
	tx := d.Direct()
	defer tx.Discard()
	elem, c, err := getAt(tx, path, key)
	if err == nil {
		err = d.checkCeiling(c)
	}
	return elem, c, err
}

func getAt(tx *badgerdb.Transaction, path storage.Path, key []byte) (Element, cost.Cost, error) {
	t, c, err := merk.Open(tx.NewContext(path))
	if err != nil {
		return Element{}, c, err
	}
	raw, gc, err := t.Get(key)
	c.Add(gc)
	if err != nil {
		return Element{}, c, err
	}
	elem, err := DecodeElement(raw)
	if err != nil {
		return Element{}, c, err
	}
	return elem, c, nil
}

// Insert opens the tree at path, applies a Put of elem under key, and
// propagates the resulting digest change up through every ancestor
// portal to the grove root, all within a single atomic transaction
// (spec §4.8 "Insert into an existing subtree", "Subtree creation").
func (d *Database) Insert(path storage.Path, key []byte, elem Element) (cost.Cost, error) {
	tx := d.Begin()
	c, err := insertAt(tx, path, key, elem, d.opts.defaultFeature)
	if err != nil {
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

func insertAt(tx *badgerdb.Transaction, path storage.Path, key []byte, elem Element, defaultFeature merk.FeatureType) (cost.Cost, error) {
	var c cost.Cost
	ctx := tx.NewContext(path)
	t, oc, err := merk.Open(ctx)
	c.Add(oc)
	if err != nil {
		return c, err
	}

	childDigest := hash.Null
	if elem.IsTreePortal() {
		// Subtree creation/update: ensure the child prefix has a roots
		// record, and read its actual current root digest, before
		// folding it into this element (spec §4.8 "Subtree creation").
		childPath := path.Append(key)
		childCtx := tx.NewContext(childPath)
		rec, rc, err := childCtx.GetRoot()
		c.Add(rc)
		if err != nil {
			return c, err
		}
		if !rec.Exists {
			wc, err := childCtx.PutRoot(storage.RootRecord{Exists: true})
			c.Add(wc)
			if err != nil {
				return c, err
			}
		} else {
			elem.HasRoot = rec.RootKey != nil
			elem.RootKey = rec.RootKey
			if elem.HasRoot {
				childTree, oc, err := merk.Open(childCtx)
				c.Add(oc)
				if err != nil {
					return c, err
				}
				childDigest, err = childTree.RootHash()
				if err != nil {
					return c, err
				}
			}
		}
	}

	if err := applyElement(t, key, elem, childDigest, defaultFeature, &c); err != nil {
		return c, err
	}
	pc, err := t.Commit(ctx)
	c.Add(pc)
	if err != nil {
		return c, err
	}

	if err := propagate(tx, path, t, &c); err != nil {
		return c, err
	}
	return c, nil
}

// applyElement puts elem under key in t, computing the combined
// value_hash against childDigest when elem is a tree portal (spec
// §4.1); childDigest is hash.Null for a non-portal element or a still
// empty subtree. defaultFeature is the Database-configured feature
// type applied to ordinary (non-portal) elements (SPEC_FULL.md
// "Configuration").
func applyElement(t *merk.Tree, key []byte, elem Element, childDigest hash.Digest, defaultFeature merk.FeatureType, c *cost.Cost) error {
	encoded := elem.Encode()
	var op merk.Op
	if elem.IsTreePortal() {
		op = merk.PutCombined{Value: encoded, ValueHash: combinedValueHash(encoded, childDigest), Feature: elem.Kind.featureFor()}
	} else {
		op = merk.Put{Value: encoded, Feature: defaultFeature}
	}
	wc, err := t.Apply([]merk.Entry{{Key: key, Op: op}})
	c.Add(wc)
	return err
}

// Delete removes key from the tree at path and propagates upward
// (spec §4.9 Delete op).
func (d *Database) Delete(path storage.Path, key []byte) (cost.Cost, error) {
	tx := d.Begin()
	c, err := deleteAt(tx, path, key)
	if err != nil {
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

func deleteAt(tx *badgerdb.Transaction, path storage.Path, key []byte) (cost.Cost, error) {
	var c cost.Cost
	ctx := tx.NewContext(path)
	t, oc, err := merk.Open(ctx)
	c.Add(oc)
	if err != nil {
		return c, err
	}
	dc, err := t.Delete(key)
	c.Add(dc)
	if err != nil {
		return c, err
	}
	pc, err := t.Commit(ctx)
	c.Add(pc)
	if err != nil {
		return c, err
	}
	if err := propagate(tx, path, t, &c); err != nil {
		return c, err
	}
	return c, nil
}

// DeleteSubtree recursively tears down the subtree hanging off key in
// the tree at path: it erases the main-namespace entries of every
// descendant prefix and marks each one's roots record as not
// existing, then removes the parent's portal element (spec §4.8
// "Subtree deletion"). Aux-namespace entries are not erased.
func (d *Database) DeleteSubtree(path storage.Path, key []byte) (cost.Cost, error) {
	tx := d.Begin()
	c, err := deleteSubtreeAt(tx, path, key)
	if err != nil {
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

func deleteSubtreeAt(tx *badgerdb.Transaction, path storage.Path, key []byte) (cost.Cost, error) {
	var c cost.Cost
	elem, gc, err := getAt(tx, path, key)
	c.Add(gc)
	if err != nil {
		return c, err
	}
	if !elem.IsTreePortal() {
		return c, groveerr.New(groveerr.TypeMismatch, "key %x is not a tree portal", key)
	}
	childPath := path.Append(key)
	if err := eraseSubtree(tx, childPath, &c); err != nil {
		return c, err
	}
	return deleteAt(tx, path, key)
}

// eraseSubtree recurses into every descendant Tree-portal element it
// finds, then deletes path's main-namespace entries and marks its
// roots record as not existing. Aux-namespace entries are left as
// they are.
func eraseSubtree(tx *badgerdb.Transaction, path storage.Path, c *cost.Cost) error {
	ctx := tx.NewContext(path)

	var portalKeys [][]byte
	ic, err := ctx.Iterate(nil, nil, false, func(key, nodeBytes []byte) (bool, error) {
		n, err := merk.Decode(key, nodeBytes)
		if err != nil {
			return false, err
		}
		elem, err := DecodeElement(n.Value)
		if err != nil {
			return false, err
		}
		if elem.IsTreePortal() {
			portalKeys = append(portalKeys, append([]byte(nil), key...))
		}
		return true, nil
	})
	c.Add(ic)
	if err != nil {
		return err
	}
	for _, key := range portalKeys {
		if err := eraseSubtree(tx, path.Append(key), c); err != nil {
			return err
		}
	}

	return wipeNamespaces(ctx, c)
}

func wipeNamespaces(ctx storage.Context, c *cost.Cost) error {
	var keys [][]byte
	ic, err := ctx.Iterate(nil, nil, false, func(key, value []byte) (bool, error) {
		keys = append(keys, append([]byte(nil), key...))
		return true, nil
	})
	c.Add(ic)
	if err != nil {
		return err
	}
	for _, key := range keys {
		dc, err := ctx.Delete(key)
		c.Add(dc)
		if err != nil {
			return err
		}
	}
	wc, err := ctx.PutRoot(storage.RootRecord{Exists: false})
	c.Add(wc)
	return err
}

// propagate recomputes every ancestor portal of path, from path's
// immediate parent up to the grove root, so that each one's
// value_hash stays combine_hash(element_bytes, child_root_digest)
// (spec §4.8 "Hash propagation invariant").
func propagate(tx *badgerdb.Transaction, path storage.Path, committed *merk.Tree, c *cost.Cost) error {
	childDigest, err := committed.RootHash()
	if err != nil {
		return err
	}
	current := path
	for {
		parentPath, lastKey, ok := current.Parent()
		if !ok {
			return nil
		}
		parentCtx := tx.NewContext(parentPath)
		parent, oc, err := merk.Open(parentCtx)
		c.Add(oc)
		if err != nil {
			return err
		}
		raw, gc, err := parent.Get(lastKey)
		c.Add(gc)
		if err != nil {
			return err
		}
		elem, err := DecodeElement(raw)
		if err != nil {
			return err
		}
		if !elem.IsTreePortal() {
			return groveerr.New(groveerr.TypeMismatch, "propagation target %x is not a tree portal", lastKey)
		}

		childPath := parentPath.Append(lastKey)
		childRootCtx := tx.NewContext(childPath)
		rec, rc, err := childRootCtx.GetRoot()
		c.Add(rc)
		if err != nil {
			return err
		}
		elem.HasRoot = rec.RootKey != nil
		elem.RootKey = rec.RootKey

		encoded := elem.Encode()
		combined := combinedValueHash(encoded, childDigest)
		wc, err := parent.Apply([]merk.Entry{{Key: lastKey, Op: merk.ReplaceCombined{Value: encoded, ValueHash: combined, Feature: elem.Kind.featureFor()}}})
		c.Add(wc)
		if err != nil {
			return err
		}
		pc, err := parent.Commit(parentCtx)
		c.Add(pc)
		if err != nil {
			return err
		}

		childDigest, err = parent.RootHash()
		if err != nil {
			return err
		}
		current = parentPath
	}
}
