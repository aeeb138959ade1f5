package grove

import (
	"github.com/dashpay/grove/cost"
	"github.com/dashpay/grove/storage/badgerdb"
)

// Database is the top-level grove handle: lifecycle management over a
// single badger-backed storage substrate (spec §2 "a process-wide
// handle over an ordered key-value store"). This is a supplemented
// feature (SPEC_FULL.md) giving callers a concrete entry point rather
// than a bare storage.Context.
type Database struct {
	store   *badgerdb.Store
	opts    Options
	limiter *cost.Limiter
}

// Open opens (creating if necessary) the grove database configured by
// opts (SPEC_FULL.md "Configuration"). With no options this opens an
// on-disk database at the current directory; pass WithInMemory() for
// a pure in-memory instance, as tests do.
func Open(opts ...Option) (*Database, error) {
	o := buildOptions(opts)
	store, err := badgerdb.Open(o.badgerOptions())
	if err != nil {
		return nil, err
	}
	return &Database{store: store, opts: o, limiter: o.limiter()}, nil
}

// checkCeiling returns groveerr.CostLimitExceeded if c has crossed the
// database's configured cost ceiling, and nil if no ceiling was set
// (spec §7, §9).
func (d *Database) checkCeiling(c cost.Cost) error {
	if d.limiter == nil {
		return nil
	}
	return d.limiter.Check(c)
}

// Close releases the underlying storage substrate.
func (d *Database) Close() error {
	return d.store.Close()
}

// Begin starts a new optimistic transaction against the database
// (spec §4.7 "Transactions").
func (d *Database) Begin() *badgerdb.Transaction {
	return d.store.Begin()
}

// Direct returns an auto-committing transaction handle for one-shot,
// non-batched operations.
func (d *Database) Direct() *badgerdb.Transaction {
	return d.store.Direct()
}
