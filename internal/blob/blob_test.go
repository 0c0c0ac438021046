package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	fsStore, err := Open(ctx, Config{FSRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	if fsStore.Driver() != DriverFilesystem {
		t.Fatalf("default driver should be fs, got %s", fsStore.Driver())
	}

	mem, err := Open(ctx, Config{Driver: DriverMemory})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if mem.Driver() != DriverMemory {
		t.Fatalf("expected memory driver, got %s", mem.Driver())
	}

	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatalf("s3 without bucket should fail")
	}
	if _, err := Open(ctx, Config{Driver: "tape"}); err == nil {
		t.Fatalf("unknown driver should fail")
	}
}

func TestStoresAreWriteOnce(t *testing.T) {
	ctx := context.Background()
	stores := map[string]Store{"memory": NewMemory()}
	fsStore, err := Open(ctx, Config{Driver: DriverFilesystem, FSRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	stores["fs"] = fsStore

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Put(ctx, "reports/aspirin/001/history.json", strings.NewReader("first"), PutOptions{ContentType: "application/json"}); err != nil {
				t.Fatalf("put: %v", err)
			}
			if _, err := store.Put(ctx, "reports/aspirin/001/history.json", strings.NewReader("second"), PutOptions{}); !errors.Is(err, ErrExists) {
				t.Fatalf("expected ErrExists, got %v", err)
			}
			_, rc, err := store.Get(ctx, "reports/aspirin/001/history.json")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			defer rc.Close()
			body, _ := io.ReadAll(rc)
			if string(body) != "first" {
				t.Fatalf("blob was overwritten: %q", body)
			}
			if _, err := store.Head(ctx, "reports/none"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}
