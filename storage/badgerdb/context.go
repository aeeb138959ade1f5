package badgerdb

import (
	"bytes"

	"github.com/dgraph-io/badger/v2"

	"github.com/dashpay/grove/cost"
	"github.com/dashpay/grove/groveerr"
	"github.com/dashpay/grove/hash"
	"github.com/dashpay/grove/storage"
)

// context implements storage.Context over a single badger.Txn, tagged
// with a subtree prefix (spec §4.7).
type context struct {
	tx     *Transaction
	prefix hash.Digest
}

var _ storage.Context = (*context)(nil)

func (c *context) Prefix() hash.Digest { return c.prefix }

func physicalKey(ns nsTag, prefix hash.Digest, userKey []byte) []byte {
	buf := make([]byte, 0, 1+hash.Size+len(userKey))
	buf = append(buf, byte(ns))
	buf = append(buf, prefix[:]...)
	buf = append(buf, userKey...)
	return buf
}

// nsTag mirrors storage's unexported namespace enum; duplicated here
// (rather than exported from storage) because key *composition* is a
// storage-engine concern, while storage only needs to agree on the
// numeric tags. See storage/keys.go for the canonical byte values.
type nsTag byte

const (
	nsMain nsTag = 1
	nsAux  nsTag = 2
	nsRoot nsTag = 3
	nsMeta nsTag = 4
)

// nsPrefix returns the prefix a namespace's keys are composed under:
// hash.Null for the process-wide meta namespace (spec §4.7 "meta
// namespace: process-wide, unprefixed"), this context's own subtree
// prefix for every other namespace.
func (c *context) nsPrefix(ns nsTag) hash.Digest {
	if ns == nsMeta {
		return hash.Null
	}
	return c.prefix
}

func (c *context) get(ns nsTag, key []byte) ([]byte, cost.Cost, error) {
	var cst cost.Cost
	cst.Seek()
	item, err := c.tx.txn.Get(physicalKey(ns, c.nsPrefix(ns), key))
	if err == badger.ErrKeyNotFound {
		return nil, cst, groveerr.New(groveerr.NotFound, "key not found")
	}
	if err != nil {
		return nil, cst, groveerr.Wrap(groveerr.StorageFailure, err, "get")
	}
	var val []byte
	err = item.Value(func(v []byte) error {
		val = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, cst, groveerr.Wrap(groveerr.StorageFailure, err, "reading value")
	}
	cst.Load(len(val))
	return val, cst, nil
}

func (c *context) put(ns nsTag, key, value []byte) (cost.Cost, error) {
	var cst cost.Cost
	existing, _, err := c.get(ns, key)
	replacing := err == nil
	pk := physicalKey(ns, c.nsPrefix(ns), key)
	if err := c.tx.txn.Set(pk, value); err != nil {
		return cst, groveerr.Wrap(groveerr.StorageFailure, err, "put")
	}
	if replacing {
		cst.StorageReplaced += uint64(len(value))
		cst.StorageRemoved += uint64(len(existing))
	} else {
		cst.StorageAdded += uint64(len(value))
	}
	if err := c.tx.autoCommitIfNeeded(); err != nil {
		return cst, err
	}
	return cst, nil
}

func (c *context) delete(ns nsTag, key []byte) (cost.Cost, error) {
	var cst cost.Cost
	existing, _, err := c.get(ns, key)
	if err != nil {
		return cst, err
	}
	pk := physicalKey(ns, c.nsPrefix(ns), key)
	if err := c.tx.txn.Delete(pk); err != nil {
		return cst, groveerr.Wrap(groveerr.StorageFailure, err, "delete")
	}
	cst.StorageRemoved += uint64(len(existing))
	if err := c.tx.autoCommitIfNeeded(); err != nil {
		return cst, err
	}
	return cst, nil
}

func (c *context) Get(key []byte) ([]byte, cost.Cost, error) { return c.get(nsMain, key) }
func (c *context) Put(key, value []byte) (cost.Cost, error)  { return c.put(nsMain, key, value) }
func (c *context) Delete(key []byte) (cost.Cost, error)      { return c.delete(nsMain, key) }

func (c *context) GetAux(key []byte) ([]byte, cost.Cost, error) { return c.get(nsAux, key) }
func (c *context) PutAux(key, value []byte) (cost.Cost, error)  { return c.put(nsAux, key, value) }
func (c *context) DeleteAux(key []byte) (cost.Cost, error)      { return c.delete(nsAux, key) }

func (c *context) GetRoot() (storage.RootRecord, cost.Cost, error) {
	val, cst, err := c.get(nsRoot, nil)
	if groveerr.Is(err, groveerr.NotFound) {
		return storage.RootRecord{Exists: false}, cst, nil
	}
	if err != nil {
		return storage.RootRecord{}, cst, err
	}
	return storage.DecodeRootRecord(val), cst, nil
}

func (c *context) PutRoot(rec storage.RootRecord) (cost.Cost, error) {
	return c.put(nsRoot, nil, storage.EncodeRootRecord(rec))
}

func (c *context) GetMeta(key []byte) ([]byte, cost.Cost, error) { return c.get(nsMeta, key) }
func (c *context) PutMeta(key, value []byte) (cost.Cost, error)  { return c.put(nsMeta, key, value) }

// Iterate walks main-namespace keys within [startKey, endKey) under
// this context's prefix, in ascending or descending order.
func (c *context) Iterate(startKey, endKey []byte, reverse bool, fn func(key, value []byte) (bool, error)) (cost.Cost, error) {
	var cst cost.Cost
	opts := badger.DefaultIteratorOptions
	opts.Reverse = reverse
	prefixBytes := physicalKey(nsMain, c.prefix, nil)

	it := c.tx.txn.NewIterator(opts)
	defer it.Close()

	var seekKey []byte
	if reverse {
		if endKey != nil {
			// badger reverse iteration seeks to the largest key <= seekKey;
			// a key equal to endKey itself is skipped in the loop below.
			seekKey = append(append([]byte{}, prefixBytes...), endKey...)
		} else {
			seekKey = prefixUpperBound(prefixBytes)
		}
	} else {
		if startKey != nil {
			seekKey = append(append([]byte{}, prefixBytes...), startKey...)
		} else {
			seekKey = prefixBytes
		}
	}

	for it.Seek(seekKey); it.ValidForPrefix(prefixBytes); it.Next() {
		cst.Seek()
		item := it.Item()
		userKey := append([]byte(nil), item.KeyCopy(nil)[len(prefixBytes):]...)

		if !reverse && endKey != nil && bytes.Compare(userKey, endKey) >= 0 {
			break
		}
		if reverse && startKey != nil && bytes.Compare(userKey, startKey) < 0 {
			break
		}
		if reverse && endKey != nil && bytes.Equal(userKey, endKey) {
			continue
		}

		var val []byte
		if err := item.Value(func(v []byte) error {
			val = append([]byte(nil), v...)
			return nil
		}); err != nil {
			return cst, groveerr.Wrap(groveerr.StorageFailure, err, "iterate value")
		}
		cst.Load(len(val))

		cont, err := fn(userKey, val)
		if err != nil {
			return cst, err
		}
		if !cont {
			break
		}
	}
	return cst, nil
}

// prefixUpperBound returns the smallest key greater than every key
// with the given prefix, for seeking to the end of a prefix range
// during reverse iteration.
func prefixUpperBound(prefix []byte) []byte {
	out := append([]byte(nil), prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	return append(out, 0xff)
}
