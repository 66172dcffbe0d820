package core

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"handoff/internal/infra/persistence/memory"
	"handoff/internal/infra/persistence/postgres"
	"handoff/internal/infra/persistence/postgres/testutil"
	"handoff/internal/infra/persistence/sqlite"
	"handoff/pkg/domain"
)

func TestOpenPersistentStoreDrivers(t *testing.T) {
	ctx := context.Background()
	engine := NewDefaultRulesEngine()

	store, err := OpenPersistentStore(ctx, StorageConfig{Driver: StorageMemory}, engine)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}

	path := filepath.Join(t.TempDir(), "registry.db")
	store, err = OpenPersistentStore(ctx, StorageConfig{SQLitePath: path}, engine)
	if err != nil {
		t.Fatalf("default sqlite: %v", err)
	}
	sq, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite store by default, got %T", store)
	}
	t.Cleanup(func() { _ = sq.Close() })

	db, _ := testutil.NewStubDB()
	restore := postgres.OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	store, err = OpenPersistentStore(ctx, StorageConfig{Driver: StoragePostgres, PostgresDSN: "postgres://stub"}, engine)
	if err != nil {
		t.Fatalf("postgres: %v", err)
	}
	if _, ok := store.(*postgres.Store); !ok {
		t.Fatalf("expected postgres store, got %T", store)
	}

	if _, err := OpenPersistentStore(ctx, StorageConfig{Driver: "cassette"}, engine); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestServiceStateSurvivesSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	cfg := StorageConfig{Driver: StorageSQLite, SQLitePath: filepath.Join(t.TempDir(), "registry.db")}
	store, err := OpenPersistentStore(ctx, cfg, NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	svc := NewService(store)
	r := createFor(t, svc, alice, 1)
	if err := svc.ApproveAllDelegate(ctx, alice, bob, true); err != nil {
		t.Fatalf("grant: %v", err)
	}
	_ = store.(*sqlite.Store).Close()

	reopened, err := OpenPersistentStore(ctx, cfg, NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.(*sqlite.Store).Close() }()
	svc = NewService(reopened)
	if ownerOf(t, svc, r.ID) != alice || !svc.IsApprovedForAll(ctx, alice, bob) {
		t.Fatalf("state not restored")
	}
	if next := createFor(t, svc, bob, 2); next.ID != 2 {
		t.Fatalf("expected counter restored, got id %d", next.ID)
	}
}

func TestCreateResourceIsAtomicWhenSQLiteWriteFails(t *testing.T) {
	ctx := context.Background()
	cfg := StorageConfig{Driver: StorageSQLite, SQLitePath: filepath.Join(t.TempDir(), "registry.db")}
	store, err := OpenPersistentStore(ctx, cfg, NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	svc := NewService(store)
	r := createFor(t, svc, alice, 1)
	mustLock(t, svc, alice, r.ID)
	_ = store.(*sqlite.Store).Close()

	if _, err := svc.CreateResource(ctx, alice, saltOf(2), recipe, domain.Metadata{Name: "second"}, svc.CreationFee()); err == nil {
		t.Fatalf("expected creation to fail on a closed database")
	}
	if _, err := svc.OwnerOf(ctx, 2); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for the aborted resource, got %v", err)
	}
	if svc.TotalIssued(ctx) != 1 || svc.CountOwned(ctx, alice) != 1 {
		t.Fatalf("aborted creation leaked into the registry")
	}
	if !svc.Balance(ctx).Eq(svc.CreationFee()) {
		t.Fatalf("aborted creation credited the treasury: %s", svc.Balance(ctx).Dec())
	}
	if _, err := svc.metadata.Fetch(ctx, svc.PredictInstance(saltOf(2), recipe)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected compensated metadata, got %v", err)
	}
	if _, err := svc.Metadata(ctx, r.ID); err != nil {
		t.Fatalf("committed resource must keep its metadata: %v", err)
	}

	if err := svc.TransferUnchecked(ctx, alice, alice, bob, r.ID); err == nil {
		t.Fatalf("expected transfer to fail on a closed database")
	}
	if ownerOf(t, svc, r.ID) != alice {
		t.Fatalf("failed transfer must leave alice as owner")
	}
}
