package domain

import (
	"context"
	"time"
)

// Ledger is the versioned key-value store that holds world state. It supplies
// transaction atomicity and optimistic-concurrency conflict detection; a
// transaction function either commits every write it staged or none.
type Ledger interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(Transaction) error) error
}

// Transaction exposes the ledger primitives available to one unit of work.
//
// Reads observe the snapshot taken when the transaction began; writes are
// buffered and never visible to reads in the same transaction.
type Transaction interface {
	TxID() string
	Timestamp() time.Time
	GetState(key string) ([]byte, error)
	PutState(key string, value []byte) error
	GetStateByPartialCompositeKey(namespace string, attributes []string) (StateIterator, error)
	GetHistoryForKey(key string) (HistoryIterator, error)
}

// KV is a single key/value pair returned from a range scan.
type KV struct {
	Key   string
	Value []byte
}

// KeyModification is one committed version of a key.
type KeyModification struct {
	TxID      string
	Timestamp time.Time
	Value     []byte
	IsDelete  bool
}

// StateIterator walks the results of a partial composite key scan in key order.
type StateIterator interface {
	HasNext() bool
	Next() (KV, error)
	Close() error
}

// HistoryIterator walks the committed versions of a single key. It is
// forward-only and cannot be restarted.
type HistoryIterator interface {
	HasNext() bool
	Next() (KeyModification, error)
	Close() error
}
