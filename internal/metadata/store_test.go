package metadata

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"handoff/internal/blob"
	"handoff/pkg/domain"

	"github.com/ethereum/go-ethereum/common"
)

var instance = common.HexToAddress("0x00000000000000000000000000000000000000AB")

func TestStoreCreateFetchRemove(t *testing.T) {
	blobs := blob.NewMemory()
	store := New(blobs)
	ctx := context.Background()

	if _, err := store.Fetch(ctx, instance); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	record := domain.Metadata{ResourceID: 3, Name: "vault", License: "MIT", Attributes: `{"tier":"gold"}`}
	if err := store.Create(ctx, instance, record); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, instance, record); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	got, err := store.Fetch(ctx, instance)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.Subject != instance || got.ResourceID != 3 || got.Name != "vault" || got.Attributes != `{"tier":"gold"}` {
		t.Fatalf("unexpected record %+v", got)
	}
	info, err := blobs.Head(ctx, Key(instance))
	if err != nil || info.ContentType != "application/json" || info.Metadata["resource-id"] != "3" {
		t.Fatalf("unexpected blob info %+v err=%v", info, err)
	}
	subjects, err := store.Subjects(ctx)
	if err != nil || len(subjects) != 1 || subjects[0] != instance {
		t.Fatalf("unexpected subjects %v err=%v", subjects, err)
	}
	if err := store.Remove(ctx, instance); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := store.Remove(ctx, instance); err != nil {
		t.Fatalf("remove missing: %v", err)
	}
	if _, err := store.Fetch(ctx, instance); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
}

func TestStoreFetchRejectsCorruptDocument(t *testing.T) {
	blobs := blob.NewMemory()
	if _, err := blobs.Put(context.Background(), Key(instance), bytes.NewReader([]byte("{")), blob.PutOptions{}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := New(blobs).Fetch(context.Background(), instance); err == nil || errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestKeyIsLowercaseHex(t *testing.T) {
	if got := Key(instance); got != "metadata/0x00000000000000000000000000000000000000ab.json" {
		t.Fatalf("unexpected key %s", got)
	}
}
