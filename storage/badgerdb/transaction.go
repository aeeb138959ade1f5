package badgerdb

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/dashpay/grove/groveerr"
	"github.com/dashpay/grove/storage"
)

// Transaction wraps a badger optimistic transaction. Reads see prior
// writes made within the same transaction; Commit detects conflicting
// concurrent writes and returns a TransactionConflict error (spec §5,
// §7, §8 scenario 6).
//
// Critical discipline (spec §4.7): every Context obtained from
// NewContext borrows this Transaction; callers must not call Commit
// or Discard while a Context derived from it is still in use by
// another goroutine. The engine always finishes using its contexts
// before invoking Commit.
type Transaction struct {
	txn        *badger.Txn
	autoCommit *Store // non-nil for "direct" (auto-committing) contexts
}

func newTransaction(txn *badger.Txn) *Transaction {
	return &Transaction{txn: txn}
}

// NewContext opens a storage.Context scoped to path's 32-byte prefix,
// backed by this transaction.
func (t *Transaction) NewContext(path storage.Path) storage.Context {
	return &context{tx: t, prefix: storage.Prefix(path)}
}

// Commit attempts to durably persist every write issued through any
// Context derived from this transaction. A concurrent conflicting
// write surfaces as groveerr.TransactionConflict (spec §7); the
// caller must retry at its own discretion (spec §5).
func (t *Transaction) Commit() error {
	err := t.txn.Commit()
	if err == nil {
		return nil
	}
	if err == badger.ErrConflict {
		log.Warn("transaction commit conflict, caller must retry")
		return groveerr.Wrap(groveerr.TransactionConflict, err, "optimistic commit detected a conflicting write")
	}
	return groveerr.Wrap(groveerr.StorageFailure, err, "committing transaction")
}

// Discard abandons every write buffered in this transaction without
// persisting any of them — the default disposal path for a dropped
// handle or a failed batch apply (spec §5 "Cancellation").
func (t *Transaction) Discard() {
	t.txn.Discard()
}

// autoCommitIfNeeded commits-and-replaces the underlying badger
// transaction after a single write, for Transactions obtained via
// Store.Direct(). Transactional Transactions (autoCommit == nil) are
// a no-op here; their writes stay buffered until the caller calls
// Commit explicitly.
func (t *Transaction) autoCommitIfNeeded() error {
	if t.autoCommit == nil {
		return nil
	}
	if err := t.Commit(); err != nil {
		return err
	}
	t.txn = t.autoCommit.db.NewTransaction(true)
	return nil
}
