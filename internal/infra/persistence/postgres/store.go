// Package postgres mirrors the registry state into Postgres.
package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"sync"

	"handoff/internal/infra/persistence/memory"
	"handoff/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/handoff?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store keeps registry state in memory and writes every transaction into
// the state table, one JSONB row per bucket, before it commits. Only buckets
// whose encoding changed since the last write are upserted.
type Store struct {
	*memory.Store
	db *sql.DB

	mu      sync.Mutex
	written map[string][]byte
}

// NewStore connects to dsn (defaultDSN when empty), creates the state table
// if needed and hydrates the registry from the rows found there.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, stateDDL); err != nil {
		return nil, fmt.Errorf("ensure state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, written: make(map[string][]byte)}
	if err := s.hydrate(ctx); err != nil {
		return nil, err
	}
	s.SetCommitHook(s.flush)
	return s, nil
}

// DB returns the connection pool.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

const stateDDL = `CREATE TABLE IF NOT EXISTS state (
	bucket TEXT PRIMARY KEY,
	payload JSONB NOT NULL
)`

func (s *Store) hydrate(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	for rows.Next() {
		var (
			bucket  string
			payload []byte
		)
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}
		if err := memory.DecodeBucket(&snapshot, bucket, payload); err != nil {
			return err
		}
		s.written[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if err := s.ImportState(snapshot); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	return nil
}

// dirty encodes snapshot and returns the buckets that differ from what was
// last written.
func (s *Store) dirty(snapshot memory.Snapshot) (map[string][]byte, error) {
	out := make(map[string][]byte)
	for _, bucket := range memory.Buckets {
		data, err := memory.EncodeBucket(snapshot, bucket)
		if err != nil {
			return nil, err
		}
		if prev, ok := s.written[bucket]; ok && bytes.Equal(prev, data) {
			continue
		}
		out[bucket] = data
	}
	return out, nil
}

func (s *Store) flush(ctx context.Context, snapshot memory.Snapshot) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed, err := s.dirty(snapshot)
	if err != nil || len(changed) == 0 {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range memory.Buckets {
		data, ok := changed[bucket]
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for bucket, data := range changed {
		s.written[bucket] = data
	}
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
