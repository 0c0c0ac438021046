package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"pharmanet/internal/blob/core"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if store.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected driver %s", store.Driver())
	}

	info, err := store.Put(ctx, "reports/a/history.json", bytes.NewReader([]byte(`{"ok":true}`)), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"drug": "a"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 11 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "reports/a/history.json", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists on overwrite, got %v", err)
	}

	got, rc, err := store.Get(ctx, "reports/a/history.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"ok":true}` || got.ContentType != "application/json" || got.Metadata["drug"] != "a" {
		t.Fatalf("unexpected get result %+v %s", got, body)
	}

	if _, err := store.Put(ctx, "other.txt", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	list, err := store.List(ctx, "reports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "reports/a/history.json" {
		t.Fatalf("unexpected list %+v", list)
	}

	deleted, err := store.Delete(ctx, "reports/a/history.json")
	if err != nil || !deleted {
		t.Fatalf("delete: %v %v", deleted, err)
	}
	if deleted, _ := store.Delete(ctx, "reports/a/history.json"); deleted {
		t.Fatalf("second delete should report false")
	}
	if _, err := store.Head(ctx, "reports/a/history.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing get, got %v", err)
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, key := range []string{"", "../escape", "/abs", "a/../b", "x.meta"} {
		if _, err := store.Put(context.Background(), key, bytes.NewReader(nil), core.PutOptions{}); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestListReportsCorruptSidecar(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.txt"+metaSuffix), []byte("{"), 0o600); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}
	if _, err := store.List(context.Background(), ""); err == nil {
		t.Fatalf("expected list error on corrupt sidecar")
	}
}
