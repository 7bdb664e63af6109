// Package postgres provides a Postgres-backed persistent store that mirrors
// the in-memory semantics, writing committed ledgers and consumption entries
// through before each memory commit.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"bottlecore/internal/infra/persistence/memory"
	"bottlecore/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertions ensuring the store satisfies the domain interfaces.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.ConsumptionLog  = (*Store)(nil)
)

const (
	defaultDriver = "pgx"
	// Default DSN keeps parity with OpenPersistentStore defaults while allowing overrides via env.
	defaultDSN = "postgres://localhost/bottlecore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory implementation
// for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN, falling back
// to defaultDSN when empty. It ensures the schema exists and hydrates the
// in-memory store from any existing rows.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	s.Store = memory.NewStore(engine, memory.WithPersist(s.persistLedger))
	s.ImportState(snapshot)
	return s, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func ensureSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS product_ledgers (
			product_id TEXT PRIMARY KEY,
			payload JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS consumption_log (
			ordinal BIGSERIAL PRIMARY KEY,
			id TEXT UNIQUE NOT NULL,
			product_id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			payload JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS consumption_log_product_seq
			ON consumption_log(product_id, seq)`,
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	var snapshot memory.Snapshot

	rows, err := db.QueryContext(ctx, `SELECT payload FROM product_ledgers`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select ledgers: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan ledger: %w", err)
		}
		var ledger domain.ProductLedger
		if err := json.Unmarshal(payload, &ledger); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode ledger: %w", err)
		}
		snapshot.Ledgers = append(snapshot.Ledgers, ledger)
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate ledgers: %w", err)
	}

	entryRows, err := db.QueryContext(ctx, `SELECT payload FROM consumption_log ORDER BY ordinal`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select entries: %w", err)
	}
	defer func() { _ = entryRows.Close() }()
	for entryRows.Next() {
		var payload []byte
		if err := entryRows.Scan(&payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan entry: %w", err)
		}
		var entry domain.ConsumptionEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode entry: %w", err)
		}
		snapshot.Entries = append(snapshot.Entries, entry)
	}
	if err := entryRows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate entries: %w", err)
	}
	return snapshot, nil
}

func (s *Store) persistLedger(ctx context.Context, ledger domain.ProductLedger) error {
	payload, err := json.Marshal(ledger)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO product_ledgers(product_id,payload) VALUES($1,$2)
		 ON CONFLICT(product_id) DO UPDATE SET payload=EXCLUDED.payload`,
		ledger.ProductID, payload); err != nil {
		return fmt.Errorf("upsert ledger %s: %w", ledger.ProductID, err)
	}
	return nil
}

// Append writes the entry to the consumption_log table before recording it
// in memory.
func (s *Store) Append(ctx context.Context, entry domain.ConsumptionEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	s.mu.Lock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO consumption_log(id,product_id,seq,payload) VALUES($1,$2,$3,$4)`,
		entry.ID, entry.ProductID, entry.Sequence, payload)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("insert entry %s: %w", entry.ID, err)
	}
	return s.Store.Append(ctx, entry)
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
