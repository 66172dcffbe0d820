package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"handoff/internal/blob/core"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if store.Driver() != core.DriverFilesystem {
		t.Fatalf("expected fs driver")
	}
	ctx := context.Background()
	payload := []byte(`{"name":"vault"}`)
	info, err := store.Put(ctx, "metadata/0x01.json", bytes.NewReader(payload), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"resource": "1"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.ETag != crypto.Keccak256Hash(payload).Hex() {
		t.Fatalf("expected keccak etag, got %s", info.ETag)
	}
	if _, err := store.Put(ctx, "metadata/0x01.json", bytes.NewReader(payload), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	head, err := store.Head(ctx, "metadata/0x01.json")
	if err != nil || head.Size != int64(len(payload)) || head.Metadata["resource"] != "1" {
		t.Fatalf("unexpected head %+v err=%v", head, err)
	}
	_, rc, err := store.Get(ctx, "metadata/0x01.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !bytes.Equal(got, payload) {
		t.Fatalf("unexpected payload %q", got)
	}
	list, err := store.List(ctx, "metadata/")
	if err != nil || len(list) != 1 || list[0].Key != "metadata/0x01.json" {
		t.Fatalf("unexpected list %+v err=%v", list, err)
	}
	if ok, err := store.Delete(ctx, "metadata/0x01.json"); err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if ok, err := store.Delete(ctx, "metadata/0x01.json"); err != nil || ok {
		t.Fatalf("expected missing delete, ok=%v err=%v", ok, err)
	}
	if _, err := store.Head(ctx, "metadata/0x01.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
	if _, _, err := store.Get(ctx, "metadata/0x01.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
}

func TestStoreRejectsUnsafeKeys(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"", "  ", "../escape", "/abs", "x.meta"} {
		if _, err := store.Put(ctx, key, bytes.NewReader(nil), core.PutOptions{}); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}

func TestStoreCorruptSidecar(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Put(ctx, "doc", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := os.WriteFile(filepath.Join(store.Root(), "doc.meta"), []byte("{"), 0o600); err != nil {
		t.Fatalf("corrupt sidecar: %v", err)
	}
	if _, _, err := store.Get(ctx, "doc"); err == nil {
		t.Fatalf("expected sidecar decode error")
	}
	if _, err := store.List(ctx, ""); err == nil {
		t.Fatalf("expected list decode error")
	}
}
