package grove

import (
	"testing"

	"github.com/dashpay/grove/groveerr"
	"github.com/dashpay/grove/merk"
	"github.com/dashpay/grove/query"
	"github.com/dashpay/grove/storage"
)

func openTestDB(t *testing.T, opts ...Option) *Database {
	t.Helper()
	d, err := Open(append([]Option{WithInMemory()}, opts...)...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestInsertGetDeleteRoundTrip(t *testing.T) {
	d := openTestDB(t)

	if _, err := d.Insert(nil, []byte("k"), NewItem([]byte("v"))); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, _, err := d.Get(nil, []byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.ItemValue) != "v" {
		t.Fatalf("Get.ItemValue = %q, want %q", got.ItemValue, "v")
	}

	if _, err := d.Delete(nil, []byte("k")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := d.Get(nil, []byte("k")); !groveerr.Is(err, groveerr.NotFound) {
		t.Fatalf("Get after delete: want NotFound, got %v", err)
	}
}

func TestInsertSubtreePropagatesRootDigest(t *testing.T) {
	d := openTestDB(t)

	if _, err := d.Insert(nil, []byte("users"), NewEmptyTree(Tree)); err != nil {
		t.Fatalf("Insert portal: %v", err)
	}
	before, err := d.RootDigest()
	if err != nil {
		t.Fatalf("RootDigest: %v", err)
	}

	childPath := storage.Path{[]byte("users")}
	if _, err := d.Insert(childPath, []byte("alice"), NewItem([]byte("1"))); err != nil {
		t.Fatalf("Insert into child subtree: %v", err)
	}
	after, err := d.RootDigest()
	if err != nil {
		t.Fatalf("RootDigest: %v", err)
	}

	if before == after {
		t.Fatalf("grove root digest must change after a child subtree mutation")
	}

	got, _, err := d.Get(childPath, []byte("alice"))
	if err != nil {
		t.Fatalf("Get(childPath, alice): %v", err)
	}
	if string(got.ItemValue) != "1" {
		t.Fatalf("Get(childPath, alice).ItemValue = %q, want %q", got.ItemValue, "1")
	}
}

func TestDeleteSubtreeRemovesDescendants(t *testing.T) {
	d := openTestDB(t)

	if _, err := d.Insert(nil, []byte("users"), NewEmptyTree(Tree)); err != nil {
		t.Fatalf("Insert portal: %v", err)
	}
	childPath := storage.Path{[]byte("users")}
	if _, err := d.Insert(childPath, []byte("alice"), NewItem([]byte("1"))); err != nil {
		t.Fatalf("Insert alice: %v", err)
	}

	if _, err := d.DeleteSubtree(nil, []byte("users")); err != nil {
		t.Fatalf("DeleteSubtree: %v", err)
	}

	if _, _, err := d.Get(nil, []byte("users")); !groveerr.Is(err, groveerr.NotFound) {
		t.Fatalf("Get(users) after DeleteSubtree: want NotFound, got %v", err)
	}
	if _, _, err := d.Get(childPath, []byte("alice")); err == nil {
		t.Fatalf("Get(childPath, alice) after DeleteSubtree must fail")
	}
}

func TestDeleteSubtreeRejectsNonPortal(t *testing.T) {
	d := openTestDB(t)
	if _, err := d.Insert(nil, []byte("k"), NewItem([]byte("v"))); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := d.DeleteSubtree(nil, []byte("k")); !groveerr.Is(err, groveerr.TypeMismatch) {
		t.Fatalf("DeleteSubtree on a plain Item: want TypeMismatch, got %v", err)
	}
}

func TestApplyAtomicBatchAcrossSubtrees(t *testing.T) {
	d := openTestDB(t)
	if _, err := d.Insert(nil, []byte("users"), NewEmptyTree(Tree)); err != nil {
		t.Fatalf("Insert portal: %v", err)
	}
	childPath := storage.Path{[]byte("users")}

	ops := []BatchOp{
		{Path: nil, Key: []byte("top"), Kind: InsertOnly, Element: NewItem([]byte("t"))},
		{Path: childPath, Key: []byte("bob"), Kind: InsertOnly, Element: NewItem([]byte("2"))},
	}
	if _, err := d.Apply(ops); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	top, _, err := d.Get(nil, []byte("top"))
	if err != nil || string(top.ItemValue) != "t" {
		t.Fatalf("Get(top) = (%v, %v), want (t, nil)", top, err)
	}
	bob, _, err := d.Get(childPath, []byte("bob"))
	if err != nil || string(bob.ItemValue) != "2" {
		t.Fatalf("Get(childPath, bob) = (%v, %v), want (2, nil)", bob, err)
	}
}

func TestApplyRejectsInsertOnlyOverExisting(t *testing.T) {
	d := openTestDB(t)
	if _, err := d.Insert(nil, []byte("k"), NewItem([]byte("v"))); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	ops := []BatchOp{
		{Path: nil, Key: []byte("k"), Kind: InsertOnly, Element: NewItem([]byte("v2"))},
	}
	if _, err := d.Apply(ops); !groveerr.Is(err, groveerr.InvalidBatch) {
		t.Fatalf("Apply(InsertOnly over existing key): want InvalidBatch, got %v", err)
	}
	// Validation failure must not have mutated state.
	got, _, err := d.Get(nil, []byte("k"))
	if err != nil || string(got.ItemValue) != "v" {
		t.Fatalf("key must be unchanged after a rejected batch, got (%v, %v)", got, err)
	}
}

func TestApplyDeleteSubtreeWithinBatch(t *testing.T) {
	d := openTestDB(t)
	if _, err := d.Insert(nil, []byte("users"), NewEmptyTree(Tree)); err != nil {
		t.Fatalf("Insert portal: %v", err)
	}
	childPath := storage.Path{[]byte("users")}
	if _, err := d.Insert(childPath, []byte("alice"), NewItem([]byte("1"))); err != nil {
		t.Fatalf("Insert alice: %v", err)
	}

	ops := []BatchOp{
		{Path: nil, Key: []byte("users"), Kind: DeleteSubtree},
	}
	if _, err := d.Apply(ops); err != nil {
		t.Fatalf("Apply(DeleteSubtree): %v", err)
	}
	if _, _, err := d.Get(nil, []byte("users")); !groveerr.Is(err, groveerr.NotFound) {
		t.Fatalf("Get(users) after batch DeleteSubtree: want NotFound, got %v", err)
	}
}

func TestProveAndVerifyMultiLayer(t *testing.T) {
	d := openTestDB(t)
	if _, err := d.Insert(nil, []byte("users"), NewEmptyTree(Tree)); err != nil {
		t.Fatalf("Insert portal: %v", err)
	}
	childPath := storage.Path{[]byte("users")}
	if _, err := d.Insert(childPath, []byte("alice"), NewItem([]byte("1"))); err != nil {
		t.Fatalf("Insert alice: %v", err)
	}

	root, err := d.RootDigest()
	if err != nil {
		t.Fatalf("RootDigest: %v", err)
	}

	proof, _, err := d.Prove(childPath, []byte("alice"))
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if len(proof.Layers) != 2 {
		t.Fatalf("Prove: got %d layers, want 2 (root layer + users layer)", len(proof.Layers))
	}

	results, err := VerifyMultiLayer(proof, root)
	if err != nil {
		t.Fatalf("VerifyMultiLayer: %v", err)
	}
	if len(results) != 1 || string(results[0].Key) != "alice" {
		t.Fatalf("VerifyMultiLayer results = %+v, want one KV for alice", results)
	}
}

func TestVerifyMultiLayerRejectsWrongRoot(t *testing.T) {
	d := openTestDB(t)
	if _, err := d.Insert(nil, []byte("k"), NewItem([]byte("v"))); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	proof, _, err := d.Prove(nil, []byte("k"))
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	var forgedRoot [32]byte
	forgedRoot[0] = 0xff
	if _, err := VerifyMultiLayer(proof, forgedRoot); !groveerr.Is(err, groveerr.ProofInvalid) {
		t.Fatalf("VerifyMultiLayer against a wrong root: want ProofInvalid, got %v", err)
	}
}

func TestPathQueryRangeWithLimitAndOffset(t *testing.T) {
	d := openTestDB(t)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		if _, err := d.Insert(nil, []byte(k), NewItem([]byte(k))); err != nil {
			t.Fatalf("Insert(%q): %v", k, err)
		}
	}

	limit := uint16(2)
	offset := uint16(1)
	q := &query.SizedQuery{
		Items:       []query.Item{{Kind: query.RangeFull}},
		Limit:       &limit,
		Offset:      &offset,
		LeftToRight: true,
	}

	results, _, err := d.PathQuery(nil, q)
	if err != nil {
		t.Fatalf("PathQuery: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("PathQuery returned %d results, want 2", len(results))
	}
	if string(results[0].Key) != "b" || string(results[1].Key) != "c" {
		t.Fatalf("PathQuery results = %q, %q, want b, c (offset 1, limit 2 over a..e)", results[0].Key, results[1].Key)
	}
}

func TestPathQueryReverse(t *testing.T) {
	d := openTestDB(t)
	for _, k := range []string{"a", "b", "c"} {
		if _, err := d.Insert(nil, []byte(k), NewItem([]byte(k))); err != nil {
			t.Fatalf("Insert(%q): %v", k, err)
		}
	}

	q := &query.SizedQuery{
		Items:       []query.Item{{Kind: query.RangeFull}},
		LeftToRight: false,
	}
	results, _, err := d.PathQuery(nil, q)
	if err != nil {
		t.Fatalf("PathQuery: %v", err)
	}
	want := []string{"c", "b", "a"}
	if len(results) != len(want) {
		t.Fatalf("PathQuery reverse returned %d results, want %d", len(results), len(want))
	}
	for i := range want {
		if string(results[i].Key) != want[i] {
			t.Fatalf("PathQuery reverse = %v, want %v", results, want)
		}
	}
}

func TestPathQuerySubqueryIntoMatchedSubtree(t *testing.T) {
	d := openTestDB(t)
	if _, err := d.Insert(nil, []byte("users"), NewEmptyTree(Tree)); err != nil {
		t.Fatalf("Insert portal: %v", err)
	}
	childPath := storage.Path{[]byte("users")}
	for _, k := range []string{"alice", "bob"} {
		if _, err := d.Insert(childPath, []byte(k), NewItem([]byte(k))); err != nil {
			t.Fatalf("Insert(%q): %v", k, err)
		}
	}

	sub := &query.SizedQuery{Items: []query.Item{{Kind: query.RangeFull}}, LeftToRight: true}
	q := &query.SizedQuery{
		Items:       []query.Item{query.ExactKey([]byte("users"))},
		LeftToRight: true,
		Default:     sub,
	}

	results, _, err := d.PathQuery(nil, q)
	if err != nil {
		t.Fatalf("PathQuery: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("PathQuery with subquery returned %d results, want 2 (alice, bob)", len(results))
	}
	for _, r := range results {
		if !r.Path.Equal(childPath) {
			t.Fatalf("subquery result Path = %v, want %v", r.Path, childPath)
		}
	}
}

func TestCostCeilingDiscardsOversizedWrite(t *testing.T) {
	d := openTestDB(t, WithCostCeiling(1))

	if _, err := d.Insert(nil, []byte("k"), NewItem([]byte("v"))); !groveerr.Is(err, groveerr.CostLimitExceeded) {
		t.Fatalf("Insert past a tiny cost ceiling: want CostLimitExceeded, got %v", err)
	}
	if _, _, err := d.Get(nil, []byte("k")); !groveerr.Is(err, groveerr.NotFound) {
		t.Fatalf("a ceiling-rejected Insert must not have committed, got %v", err)
	}
}

func TestDefaultFeatureAppliesToPlainItems(t *testing.T) {
	d := openTestDB(t, WithDefaultFeature(merk.FeatureType{Kind: merk.Summed}))
	if _, err := d.Insert(nil, []byte("k"), NewItem([]byte("v"))); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	// Indirect check: a Summed-feature leaf must still round-trip its
	// value correctly; the feature tag itself is internal to merk but
	// this at minimum exercises the configured-feature code path
	// without panicking or mismatching the tree's hash invariants.
	got, _, err := d.Get(nil, []byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.ItemValue) != "v" {
		t.Fatalf("Get.ItemValue = %q, want %q", got.ItemValue, "v")
	}
}
