package memory

import (
	"errors"
	"time"

	"pharmanet/pkg/domain"
	"pharmanet/pkg/keyspace"
)

type rangeRead struct {
	prefix string
	seen   map[string]uint64
}

// transaction buffers writes and records the versions it read so the commit
// can detect conflicting updates.
type transaction struct {
	ledger   *Ledger
	id       string
	ts       time.Time
	snapshot uint64
	readOnly bool
	reads    map[string]uint64
	ranges   []rangeRead
	writes   map[string][]byte
	order    []string
}

func (tx *transaction) TxID() string         { return tx.id }
func (tx *transaction) Timestamp() time.Time { return tx.ts }

func (tx *transaction) GetState(key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("memory ledger: empty key")
	}
	tx.ledger.mu.RLock()
	rec, ok := tx.ledger.visibleLocked(key, tx.snapshot)
	tx.ledger.mu.RUnlock()
	if !ok {
		tx.reads[key] = 0
		return nil, nil
	}
	tx.reads[key] = rec.Seq
	if rec.IsDelete {
		return nil, nil
	}
	return append([]byte(nil), rec.Value...), nil
}

func (tx *transaction) PutState(key string, value []byte) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	if key == "" {
		return errors.New("memory ledger: empty key")
	}
	if value == nil {
		return errors.New("memory ledger: nil value")
	}
	if _, ok := tx.writes[key]; !ok {
		tx.order = append(tx.order, key)
	}
	tx.writes[key] = append([]byte(nil), value...)
	return nil
}

func (tx *transaction) GetStateByPartialCompositeKey(namespace string, attributes []string) (domain.StateIterator, error) {
	prefix, err := keyspace.Prefix(namespace, attributes...)
	if err != nil {
		return nil, err
	}
	tx.ledger.mu.RLock()
	recs := tx.ledger.scanLocked(prefix, tx.snapshot)
	tx.ledger.mu.RUnlock()

	seen := make(map[string]uint64, len(recs))
	kvs := make([]domain.KV, 0, len(recs))
	for _, rec := range recs {
		seen[rec.Key] = rec.Seq
		kvs = append(kvs, domain.KV{Key: rec.Key, Value: append([]byte(nil), rec.Value...)})
	}
	tx.ranges = append(tx.ranges, rangeRead{prefix: prefix, seen: seen})
	return &stateIterator{items: kvs}, nil
}

func (tx *transaction) GetHistoryForKey(key string) (domain.HistoryIterator, error) {
	if key == "" {
		return nil, errors.New("memory ledger: empty key")
	}
	return &historyIterator{ledger: tx.ledger, key: key, snapshot: tx.snapshot}, nil
}

type stateIterator struct {
	items  []domain.KV
	pos    int
	closed bool
}

func (it *stateIterator) HasNext() bool { return !it.closed && it.pos < len(it.items) }

func (it *stateIterator) Next() (domain.KV, error) {
	if !it.HasNext() {
		return domain.KV{}, errors.New("memory ledger: iterator exhausted")
	}
	kv := it.items[it.pos]
	it.pos++
	return kv, nil
}

func (it *stateIterator) Close() error {
	it.closed = true
	return nil
}

// historyIterator walks the version list of one key under the ledger lock,
// one record per call. Version lists are append-only, so an index stays valid
// across commits and the snapshot bound hides later versions.
type historyIterator struct {
	ledger   *Ledger
	key      string
	snapshot uint64
	pos      int
	closed   bool
}

func (it *historyIterator) HasNext() bool {
	if it.closed {
		return false
	}
	it.ledger.mu.RLock()
	defer it.ledger.mu.RUnlock()
	_, ok := it.ledger.versionAtLocked(it.key, it.pos, it.snapshot)
	return ok
}

func (it *historyIterator) Next() (domain.KeyModification, error) {
	if it.closed {
		return domain.KeyModification{}, errors.New("memory ledger: iterator exhausted")
	}
	it.ledger.mu.RLock()
	rec, ok := it.ledger.versionAtLocked(it.key, it.pos, it.snapshot)
	var mod domain.KeyModification
	if ok {
		mod = domain.KeyModification{
			TxID:      rec.TxID,
			Timestamp: rec.Timestamp,
			Value:     append([]byte(nil), rec.Value...),
			IsDelete:  rec.IsDelete,
		}
	}
	it.ledger.mu.RUnlock()
	if !ok {
		return domain.KeyModification{}, errors.New("memory ledger: iterator exhausted")
	}
	it.pos++
	return mod, nil
}

func (it *historyIterator) Close() error {
	it.closed = true
	return nil
}
