package merk

import (
	"bytes"
	"fmt"
	mRand "math/rand/v2"
	"testing"

	"github.com/dashpay/grove/groveerr"
	"github.com/dashpay/grove/hash"
	"github.com/dashpay/grove/storage"
	"github.com/dashpay/grove/storage/badgerdb"
)

func newTestContext(t *testing.T) storage.Context {
	t.Helper()
	store, err := badgerdb.Open(badgerdb.Options{InMemory: true})
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store.Direct().NewContext(nil)
}

func mustPut(t *testing.T, tree *Tree, key, value string) {
	t.Helper()
	if _, err := tree.Put([]byte(key), []byte(value), FeatureType{Kind: Basic}); err != nil {
		t.Fatalf("Put(%q, %q): %v", key, value, err)
	}
}

func TestTreePutGetRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)
	tree, _, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	mustPut(t, tree, "alpha", "1")
	mustPut(t, tree, "beta", "2")
	mustPut(t, tree, "gamma", "3")

	if _, err := tree.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	for k, want := range map[string]string{"alpha": "1", "beta": "2", "gamma": "3"} {
		got, _, err := tree.Get([]byte(k))
		if err != nil {
			t.Fatalf("Get(%q): %v", k, err)
		}
		if !bytes.Equal(got, []byte(want)) {
			t.Fatalf("Get(%q) = %q, want %q", k, got, want)
		}
	}

	if _, _, err := tree.Get([]byte("missing")); !groveerr.Is(err, groveerr.NotFound) {
		t.Fatalf("Get(missing): want NotFound, got %v", err)
	}
}

func TestTreeReopenPreservesState(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)
	tree, _, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustPut(t, tree, "x", "1")
	mustPut(t, tree, "y", "2")
	if _, err := tree.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	rootBefore, err := tree.RootHash()
	if err != nil {
		t.Fatalf("RootHash: %v", err)
	}

	reopened, _, err := Open(ctx)
	if err != nil {
		t.Fatalf("re-Open: %v", err)
	}
	rootAfter, err := reopened.RootHash()
	if err != nil {
		t.Fatalf("RootHash after reopen: %v", err)
	}
	if rootBefore != rootAfter {
		t.Fatalf("root digest changed across reopen: %x != %x", rootBefore, rootAfter)
	}

	got, _, err := reopened.Get([]byte("x"))
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if !bytes.Equal(got, []byte("1")) {
		t.Fatalf("Get(x) after reopen = %q, want %q", got, "1")
	}
}

func TestTreeDeleteThenRebalance(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)
	tree, _, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	keys := make([]string, 0, 64)
	for i := 0; i < 64; i++ {
		k := fmt.Sprintf("key-%03d", i)
		mustPut(t, tree, k, "v")
		keys = append(keys, k)
	}
	if _, err := tree.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	assertBalanced(t, tree)

	for i := 0; i < len(keys); i += 2 {
		if _, err := tree.Delete([]byte(keys[i])); err != nil {
			t.Fatalf("Delete(%q): %v", keys[i], err)
		}
	}
	if _, err := tree.Commit(ctx); err != nil {
		t.Fatalf("Commit after deletes: %v", err)
	}
	assertBalanced(t, tree)

	for i, k := range keys {
		_, _, err := tree.Get([]byte(k))
		if i%2 == 0 {
			if !groveerr.Is(err, groveerr.NotFound) {
				t.Fatalf("Get(%q) after delete: want NotFound, got %v", k, err)
			}
		} else if err != nil {
			t.Fatalf("Get(%q): %v", k, err)
		}
	}
}

func TestTreeOrderIndependentFinalState(t *testing.T) {
	t.Parallel()

	keys := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		keys = append(keys, fmt.Sprintf("k%02d", i))
	}

	insertAndHash := func(order []int) hash32 {
		ctx := newTestContext(t)
		tree, _, err := Open(ctx)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		for _, i := range order {
			mustPut(t, tree, keys[i], fmt.Sprintf("v%d", i))
		}
		if _, err := tree.Commit(ctx); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		root, err := tree.RootHash()
		if err != nil {
			t.Fatalf("RootHash: %v", err)
		}
		return root
	}

	ascending := make([]int, len(keys))
	for i := range ascending {
		ascending[i] = i
	}
	shuffled := append([]int(nil), ascending...)
	mRand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	a := insertAndHash(ascending)
	b := insertAndHash(shuffled)
	if a != b {
		t.Fatalf("tree root digest depends on insertion order: %x != %x", a, b)
	}
}

type hash32 = [32]byte

// assertBalanced walks the in-memory tree and fails the test if any
// node violates the AVL bound (spec §8 invariant 1).
func assertBalanced(t *testing.T, tree *Tree) {
	t.Helper()
	var walk func(l *Link) uint8
	walk = func(l *Link) uint8 {
		if l == nil {
			return 0
		}
		n := l.Node()
		if n == nil {
			return l.Height()
		}
		lh := walk(n.Left)
		rh := walk(n.Right)
		bf := int(rh) - int(lh)
		if bf < -1 || bf > 1 {
			t.Fatalf("node %q violates AVL bound: left height %d, right height %d", n.Key, lh, rh)
		}
		h := lh
		if rh > h {
			h = rh
		}
		return h + 1
	}
	walk(tree.root)
}
