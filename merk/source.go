package merk

import (
	"github.com/dashpay/grove/cost"
	"github.com/dashpay/grove/groveerr"
	"github.com/dashpay/grove/storage"
)

// Source resolves a Reference link into a materialized Node by
// reading the main namespace of a storage.Context (spec §4.2 "fetch()
// ... the storage layer satisfies by reading the child's bytes at
// prefixed key = child key, decoding, and returning a Loaded state").
type Source struct {
	Ctx storage.Context
}

// Fetch loads and decodes the node stored at key, charging the
// read+decode cost.
func (s Source) Fetch(key []byte) (*Node, cost.Cost, error) {
	var c cost.Cost
	raw, readCost, err := s.Ctx.Get(key)
	c.Add(readCost)
	if err != nil {
		return nil, c, err
	}
	n, err := Decode(key, raw)
	if err != nil {
		return nil, c, groveerr.Wrap(groveerr.CorruptedData, err, "decoding node %x", key)
	}
	return n, c, nil
}

// fetch resolves link (if it is still a Reference) into its
// materialized node, transitioning it to Loaded, and returns the node.
// A nil link or an already-materialized link is a cheap no-op.
func fetch(src Source, l *Link, c *cost.Cost) (*Node, error) {
	if l == nil {
		return nil, nil
	}
	if n := l.Node(); n != nil {
		return n, nil
	}
	n, fc, err := src.Fetch(l.key)
	c.Add(fc)
	if err != nil {
		return nil, err
	}
	l.markLoaded(n)
	return n, nil
}
