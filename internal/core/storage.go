package core

import (
	"context"
	"fmt"
	"io"

	"pharmanet/internal/infra/ledger/leveldb"
	"pharmanet/internal/infra/ledger/memory"
	"pharmanet/internal/infra/ledger/postgres"
	"pharmanet/internal/infra/ledger/sqlite"
	"pharmanet/pkg/domain"
)

// StorageDriver identifies a ledger backend.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageLevelDB  StorageDriver = "leveldb"  // embedded leveldb directory
)

// StorageConfig selects a ledger backend. Empty paths use each backend's default.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	LevelDBPath string
}

// ClosableLedger is a ledger owning resources that must be released.
type ClosableLedger interface {
	domain.Ledger
	io.Closer
}

type memoryLedger struct{ *memory.Ledger }

func (memoryLedger) Close() error { return nil }

// OpenLedger opens the configured backend, replaying persisted versions. The
// sqlite driver is the default.
func OpenLedger(ctx context.Context, cfg StorageConfig, opts ...memory.Option) (ClosableLedger, error) {
	var (
		ledger ClosableLedger
		err    error
	)
	switch cfg.Driver {
	case StorageMemory:
		return memoryLedger{memory.New(opts...)}, nil
	case "", StorageSQLite:
		var l *sqlite.Ledger
		l, err = sqlite.Open(ctx, cfg.SQLitePath, opts...)
		ledger = l
	case StoragePostgres:
		var l *postgres.Ledger
		l, err = postgres.Open(ctx, cfg.PostgresDSN, opts...)
		ledger = l
	case StorageLevelDB:
		var l *leveldb.Ledger
		l, err = leveldb.Open(cfg.LevelDBPath, opts...)
		ledger = l
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s ledger: %w", cfg.Driver, err)
	}
	return ledger, nil
}
