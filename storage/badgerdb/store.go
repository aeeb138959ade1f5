// Package badgerdb is the concrete storage substrate behind
// storage.Context: github.com/dgraph-io/badger/v2, the only engine in
// the retrieved example corpus with native optimistic-transaction
// conflict detection (grounded on
// Tobenna-KA-flow-go/storage/badger/operation, see DESIGN.md).
package badgerdb

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/dashpay/grove/groveerr"
	"github.com/dashpay/grove/internal/grovelog"
	"github.com/dashpay/grove/storage"
)

var log = grovelog.New("component", "storage")

// metaVersionKey is the global meta-namespace entry recording the
// engine version/feature marker a database was created with (spec
// §6 "Global meta"). Databases whose marker this build does not
// understand are rejected at Open.
var metaVersionKey = storage.MetaKey([]byte("schema_version"))

// currentSchemaVersion is bumped whenever the on-disk node or root
// record encoding changes incompatibly.
const currentSchemaVersion = 1

// Store owns a badger.DB and hands out transactions and direct
// (auto-committing) contexts over it.
type Store struct {
	db *badger.DB
}

// Options configures Open. It deliberately exposes only the tuning
// knobs this system cares about; a config-file/CLI parser is out of
// scope per spec §1 (see DESIGN.md's config justification).
type Options struct {
	Dir        string
	InMemory   bool
	SyncWrites bool

	// ValueLogFileSize overrides badger's value-log segment size; zero
	// keeps badger's own default.
	ValueLogFileSize int64
}

// Open opens or creates a badger database at opts.Dir (or a pure
// in-memory instance if opts.InMemory), validating and writing the
// schema-version marker in the meta namespace.
func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Dir)
	bopts.InMemory = opts.InMemory
	bopts.SyncWrites = opts.SyncWrites
	if opts.ValueLogFileSize > 0 {
		bopts.ValueLogFileSize = opts.ValueLogFileSize
	}
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, groveerr.Wrap(groveerr.StorageFailure, err, "opening badger database at %q", opts.Dir)
	}
	s := &Store{db: db}
	if err := s.checkOrWriteSchemaVersion(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) checkOrWriteSchemaVersion() error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(metaVersionKey)
		if err == badger.ErrKeyNotFound {
			return txn.Set(metaVersionKey, []byte{currentSchemaVersion})
		}
		if err != nil {
			return groveerr.Wrap(groveerr.StorageFailure, err, "reading schema version")
		}
		return item.Value(func(val []byte) error {
			if len(val) != 1 || val[0] != currentSchemaVersion {
				return groveerr.New(groveerr.CorruptedData, "database schema version %v not understood by this build", val)
			}
			return nil
		})
	})
}

// Close releases the underlying badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin starts a new read-write transaction (spec §4.7
// "Transactional context wraps an optimistic transaction").
func (s *Store) Begin() *Transaction {
	return newTransaction(s.db.NewTransaction(true))
}

// View runs fn against a read-only transaction; writes attempted
// within it fail. View never commits and never conflicts.
func (s *Store) View(fn func(tx *Transaction) error) error {
	txn := s.db.NewTransaction(false)
	defer txn.Discard()
	return fn(newTransaction(txn))
}

// Direct returns an auto-committing transaction: every Context write
// commits immediately rather than waiting for an explicit Commit
// call, realizing spec §4.7's "direct" (non-transactional) context
// flavor on top of the same badger.Txn machinery used for
// transactional contexts.
func (s *Store) Direct() *Transaction {
	tx := newTransaction(s.db.NewTransaction(true))
	tx.autoCommit = s
	return tx
}
