package grove

import (
	"golang.org/x/sync/errgroup"

	"github.com/dashpay/grove/cost"
	"github.com/dashpay/grove/groveerr"
	"github.com/dashpay/grove/hash"
	"github.com/dashpay/grove/merk"
	"github.com/dashpay/grove/query"
	"github.com/dashpay/grove/storage"
	"github.com/dashpay/grove/storage/badgerdb"
)

// LayerProof is one single-tree proof within a MultiLayerProof: the
// proof that Prefix's tree reveals TargetKey the way the layer above
// it expects (spec §4.8 "Multi-layer proof").
type LayerProof struct {
	Prefix    storage.Path
	TargetKey []byte
	Ops       []merk.ProofOp
}

// MultiLayerProof is a query over path [p1,...,pn, k]: the root tree's
// proof for p1, the p1-subtree's proof for p2, ..., the final
// subtree's proof for k. Layers[len-1] is always the deepest layer
// actually reached; it is shorter than len(path)+1 when some portal
// along the way is absent, since there is no child subtree to descend
// into past that point.
type MultiLayerProof struct {
	Layers []LayerProof
}

// Prove builds a MultiLayerProof for the element at path/key (spec
// §4.8 "Multi-layer proof"). Every layer's query target is known
// upfront from path and key, so all layers are fetched concurrently;
// each runs against its own read-only storage snapshot.
func (d *Database) Prove(path storage.Path, key []byte) (MultiLayerProof, cost.Cost, error) {
	n := len(path)
	prefixes := make([]storage.Path, n+1)
	queryKeys := make([][]byte, n+1)
	for i := 0; i <= n; i++ {
		prefixes[i] = path[:i]
		if i < n {
			queryKeys[i] = path[i]
		} else {
			queryKeys[i] = key
		}
	}

	layers := make([]LayerProof, n+1)
	present := make([]bool, n+1)
	costs := make([]cost.Cost, n+1)
	g := new(errgroup.Group)
	for i := 0; i <= n; i++ {
		i := i
		g.Go(func() error {
			return d.store.View(func(tx *badgerdb.Transaction) error {
				tr, oc, err := merk.Open(tx.NewContext(prefixes[i]))
				costs[i].Add(oc)
				if err != nil {
					return err
				}
				ops, results, pc, err := tr.Prove(query.ExactKey(queryKeys[i]), true)
				costs[i].Add(pc)
				if err != nil {
					return err
				}
				layers[i] = LayerProof{Prefix: prefixes[i], TargetKey: queryKeys[i], Ops: ops}
				present[i] = len(results) == 1
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return MultiLayerProof{}, cost.Cost{}, err
	}

	var c cost.Cost
	reached := n + 1
	for i := 0; i <= n; i++ {
		c.Add(costs[i])
		if !present[i] {
			reached = i + 1
			break
		}
	}
	if err := d.checkCeiling(c); err != nil {
		return MultiLayerProof{}, c, err
	}
	return MultiLayerProof{Layers: layers[:reached]}, c, nil
}

// VerifyMultiLayer replays every layer bottom-up. The deepest layer's
// reconstructed node_hash has no caller-supplied expectation (it is
// whatever the tree's own proof ops reconstruct); each shallower layer
// i must reveal its portal for layer i+1 as a combined-hash node whose
// declared value_hash equals combine_hash(element_bytes,
// root_digest(layer i+1)) — this is the cross-layer forgery check a
// single layer's own Verify cannot perform by itself. The top (index
// 0) layer's reconstructed node_hash must equal groveRoot.
func VerifyMultiLayer(proof MultiLayerProof, groveRoot hash.Digest) ([]merk.KV, error) {
	layers := proof.Layers
	if len(layers) == 0 {
		return nil, groveerr.New(groveerr.ProofInvalid, "empty multi-layer proof")
	}

	digests := make([]hash.Digest, len(layers))
	var finalResults []merk.KV
	for i := len(layers) - 1; i >= 0; i-- {
		digest, results, err := merk.Replay(layers[i].Ops)
		if err != nil {
			return nil, err
		}
		digests[i] = digest
		if i == len(layers)-1 {
			finalResults = results
		}

		if i < len(layers)-1 {
			childDigest := digests[i+1]
			valueHash, elementBytes, found := merk.RevealedCombinedValueHash(layers[i].Ops, layers[i].TargetKey)
			if !found {
				return nil, groveerr.New(groveerr.ProofInvalid, "layer %d did not reveal its child portal as a combined-hash node", i)
			}
			if valueHash != combinedValueHash(elementBytes, childDigest) {
				return nil, groveerr.New(groveerr.ProofInvalid, "layer %d's portal hash does not match its child subtree", i)
			}
		}
	}

	if digests[0] != groveRoot {
		return nil, groveerr.New(groveerr.ProofInvalid, "reconstructed grove root does not match expected")
	}
	return finalResults, nil
}
