package core

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenLedgerDrivers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cases := []StorageConfig{
		{Driver: StorageMemory},
		{Driver: StorageSQLite, SQLitePath: filepath.Join(dir, "ledger.db")},
		{Driver: StorageLevelDB, LevelDBPath: filepath.Join(dir, "leveldb")},
	}
	for _, cfg := range cases {
		t.Run(string(cfg.Driver), func(t *testing.T) {
			ledger, err := OpenLedger(ctx, cfg)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			svc := NewService(ledger)
			if _, _, err := svc.RegisterCompany(ctx, "Org1MSP", RegisterCompanyInput{CRN: "M1", Name: "Sun Pharma", Location: "Chennai", Role: "Manufacturer"}); err != nil {
				t.Fatalf("register: %v", err)
			}
			if err := ledger.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
		})
	}
}

func TestOpenLedgerPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	cfg := StorageConfig{Driver: StorageSQLite, SQLitePath: filepath.Join(t.TempDir(), "ledger.db")}
	first, err := OpenLedger(ctx, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, _, err := NewService(first).RegisterCompany(ctx, "Org1MSP", RegisterCompanyInput{CRN: "M1", Name: "Sun Pharma", Location: "Chennai", Role: "Manufacturer"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := OpenLedger(ctx, cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = second.Close() }()
	company, err := NewService(second).ResolveCompany(ctx, "M1")
	if err != nil {
		t.Fatalf("resolve after reopen: %v", err)
	}
	if company.Name != "Sun Pharma" {
		t.Fatalf("unexpected company %+v", company)
	}
}

func TestOpenLedgerUnknownDriver(t *testing.T) {
	if _, err := OpenLedger(context.Background(), StorageConfig{Driver: "cassandra"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
