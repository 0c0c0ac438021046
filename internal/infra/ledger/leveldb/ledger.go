// Package leveldb persists the memory ledger's version log in a LevelDB
// directory. Each version is stored under "v" + big-endian seq + state key
// with a JSON record value, so a prefix iteration replays commits in order.
package leveldb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"pharmanet/internal/infra/ledger/memory"
	"pharmanet/pkg/domain"
)

var _ domain.Ledger = (*Ledger)(nil)

// DefaultPath is used when no directory is configured.
const DefaultPath = "pharmanet-ledger"

const versionPrefix = "v"

// Ledger is a memory ledger whose commits are written through to LevelDB.
type Ledger struct {
	*memory.Ledger
	db *leveldb.DB
}

// Open opens or creates the LevelDB directory at path and replays it.
func Open(path string, opts ...memory.Option) (*Ledger, error) {
	if path == "" {
		path = DefaultPath
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return wrap(db, opts...)
}

// OpenInMemory backs the ledger with LevelDB's in-memory storage.
func OpenInMemory(opts ...memory.Option) (*Ledger, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb memstorage: %w", err)
	}
	return wrap(db, opts...)
}

func wrap(db *leveldb.DB, opts ...memory.Option) (*Ledger, error) {
	records, err := replay(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	l := &Ledger{db: db}
	l.Ledger = memory.New(append(opts, memory.WithCommitHook(l.persist))...)
	if err := l.Ledger.Import(records); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("replay ledger: %w", err)
	}
	return l, nil
}

func replay(db *leveldb.DB) ([]memory.Record, error) {
	iter := db.NewIterator(util.BytesPrefix([]byte(versionPrefix)), nil)
	defer iter.Release()
	var out []memory.Record
	for iter.Next() {
		var rec memory.Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decode version %x: %w", iter.Key(), err)
		}
		out = append(out, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return out, nil
}

func (l *Ledger) persist(_ context.Context, records []memory.Record) error {
	batch := new(leveldb.Batch)
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode version %d: %w", rec.Seq, err)
		}
		batch.Put(versionKey(rec.Seq, rec.Key), payload)
	}
	if err := l.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}

func versionKey(seq uint64, key string) []byte {
	out := make([]byte, 0, len(versionPrefix)+8+len(key))
	out = append(out, versionPrefix...)
	out = binary.BigEndian.AppendUint64(out, seq)
	return append(out, key...)
}

// Close releases the database.
func (l *Ledger) Close() error { return l.db.Close() }
