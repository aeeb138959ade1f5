package merk

import (
	"fmt"
	"testing"

	"github.com/dashpay/grove/groveerr"
	"github.com/dashpay/grove/hash"
	"github.com/dashpay/grove/query"
)

func TestProveVerifyExactKey(t *testing.T) {
	ctx := newTestContext(t)
	tree, _, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 20; i++ {
		mustPut(t, tree, fmt.Sprintf("key-%02d", i), fmt.Sprintf("v%d", i))
	}
	if _, err := tree.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	root, err := tree.RootHash()
	if err != nil {
		t.Fatalf("RootHash: %v", err)
	}

	ops, results, _, err := tree.Prove(query.ExactKey([]byte("key-07")), true)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if len(results) != 1 || string(results[0].Key) != "key-07" {
		t.Fatalf("Prove results = %+v, want exactly key-07", results)
	}

	verified, err := Verify(ops, root)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(verified) != 1 || string(verified[0].Value) != "v7" {
		t.Fatalf("Verify results = %+v, want v7", verified)
	}
}

func TestProveVerifyRange(t *testing.T) {
	ctx := newTestContext(t)
	tree, _, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 10; i++ {
		mustPut(t, tree, fmt.Sprintf("k%02d", i), fmt.Sprintf("v%d", i))
	}
	if _, err := tree.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	root, err := tree.RootHash()
	if err != nil {
		t.Fatalf("RootHash: %v", err)
	}

	item := query.Item{Kind: query.Range, Lower: []byte("k03"), Upper: []byte("k06")}
	ops, results, _, err := tree.Prove(item, true)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Prove range [k03,k06) returned %d results, want 3", len(results))
	}

	verified, err := Verify(ops, root)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(verified) != 3 {
		t.Fatalf("Verify returned %d results, want 3", len(verified))
	}
	wantKeys := map[string]bool{"k03": true, "k04": true, "k05": true}
	for _, kv := range verified {
		if !wantKeys[string(kv.Key)] {
			t.Fatalf("unexpected key %q in range proof results", kv.Key)
		}
	}
}

func TestVerifyRejectsWrongRoot(t *testing.T) {
	ctx := newTestContext(t)
	tree, _, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustPut(t, tree, "a", "1")
	if _, err := tree.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	ops, _, _, err := tree.Prove(query.ExactKey([]byte("a")), true)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	var forged [32]byte
	forged[0] = 0x01
	if _, err := Verify(ops, forged); !groveerr.Is(err, groveerr.ProofInvalid) {
		t.Fatalf("Verify against wrong root: want ProofInvalid, got %v", err)
	}
}

func TestProveAbsentKeyYieldsNoResults(t *testing.T) {
	ctx := newTestContext(t)
	tree, _, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustPut(t, tree, "a", "1")
	mustPut(t, tree, "c", "3")
	if _, err := tree.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	root, err := tree.RootHash()
	if err != nil {
		t.Fatalf("RootHash: %v", err)
	}

	ops, results, _, err := tree.Prove(query.ExactKey([]byte("b")), true)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("Prove absent key returned %d results, want 0", len(results))
	}
	if _, err := Verify(ops, root); err != nil {
		t.Fatalf("Verify must still succeed for an absence proof: %v", err)
	}
}

func TestProofWireEncodeDecodeRoundTrip(t *testing.T) {
	ctx := newTestContext(t)
	tree, _, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 8; i++ {
		mustPut(t, tree, fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i))
	}
	if _, err := tree.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	root, err := tree.RootHash()
	if err != nil {
		t.Fatalf("RootHash: %v", err)
	}

	ops, _, _, err := tree.Prove(query.Item{Kind: query.RangeFull}, true)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	encoded := EncodeProof(ops)
	decoded, err := DecodeProof(encoded)
	if err != nil {
		t.Fatalf("DecodeProof: %v", err)
	}
	if len(decoded) != len(ops) {
		t.Fatalf("decoded %d ops, want %d", len(decoded), len(ops))
	}

	if _, err := Verify(decoded, root); err != nil {
		t.Fatalf("Verify(decoded ops): %v", err)
	}
}

// TestForgedKvHashProofRejected exercises the attack a DescKvHash
// descriptor must not permit: pushing an arbitrary (key, value) pair
// and then a KvHash descriptor carrying the *true* root digest must
// not reconstruct to that same root digest, since that would let a
// forged stream attach any (key, value) under a legitimate root
// without ever supplying the real tree contents.
func TestForgedKvHashProofRejected(t *testing.T) {
	ctx := newTestContext(t)
	tree, _, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustPut(t, tree, "a", "1")
	if _, err := tree.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	root, err := tree.RootHash()
	if err != nil {
		t.Fatalf("RootHash: %v", err)
	}

	forged := []ProofOp{
		{Kind: OpPush, Desc: DescKv{Key: []byte("evil"), Value: []byte("forged")}},
		{Kind: OpPush, Desc: DescKvHash{KVHash: root}},
		{Kind: OpParent},
	}
	if _, err := Verify(forged, root); !groveerr.Is(err, groveerr.ProofInvalid) {
		t.Fatalf("Verify accepted a forged DescKvHash stream: err=%v", err)
	}
}

func TestProveVerifyEmptyTree(t *testing.T) {
	ctx := newTestContext(t)
	tree, _, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ops, results, _, err := tree.Prove(query.Item{Kind: query.RangeFull}, true)
	if err != nil {
		t.Fatalf("Prove on empty tree: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("Prove on empty tree returned %d results, want 0", len(results))
	}

	verified, err := Verify(ops, hash.Null)
	if err != nil {
		t.Fatalf("Verify empty-tree proof against NULL_DIGEST: %v", err)
	}
	if len(verified) != 0 {
		t.Fatalf("Verify empty-tree proof results = %+v, want none", verified)
	}

	if _, err := Verify(ops, root1()); !groveerr.Is(err, groveerr.ProofInvalid) {
		t.Fatalf("Verify empty-tree proof against a non-null root: want ProofInvalid, got %v", err)
	}
}

// root1 returns an arbitrary non-null digest for negative testing.
func root1() hash.Digest {
	var d hash.Digest
	d[0] = 0x01
	return d
}

func TestReplayMatchesVerifyDigest(t *testing.T) {
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
	root, err := tree.RootHash()
	if err != nil {
		t.Fatalf("RootHash: %v", err)
	}

	ops, _, _, err := tree.Prove(query.Item{Kind: query.RangeFull}, true)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	digest, _, err := Replay(ops)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if digest != root {
		t.Fatalf("Replay digest = %x, want %x", digest, root)
	}
}
