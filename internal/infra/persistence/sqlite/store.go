// Package sqlite persists ledger state and consumption history to a local
// SQLite database while serving reads from an embedded in-memory store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bottlecore/internal/infra/persistence/memory"
	"bottlecore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertions.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.ConsumptionLog  = (*Store)(nil)
)

type (
	// RulesEngine aliases domain.RulesEngine.
	RulesEngine = domain.RulesEngine
	// Snapshot aliases the in-memory snapshot used for hydration.
	Snapshot = memory.Snapshot
)

// Store mirrors committed ledger writes and consumption entries to SQLite.
// The database write happens before the in-memory commit, so a rejected disk
// write never leaves memory ahead of disk.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the database at path and hydrates the embedded
// in-memory store from it.
func NewStore(path string, engine *RulesEngine) (*Store, error) {
	if path == "" {
		path = "bottlecore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS product_ledgers (
		product_id TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create ledger table: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS consumption_log (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		occurred_at TEXT NOT NULL,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create log table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS consumption_log_product_seq
		ON consumption_log(product_id, seq)`); err != nil {
		return nil, fmt.Errorf("create log index: %w", err)
	}
	s := &Store{db: db, path: path}
	s.Store = memory.NewStore(engine, memory.WithPersist(s.persistLedger))
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) persistLedger(ctx context.Context, ledger domain.ProductLedger) error {
	payload, err := json.Marshal(ledger)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO product_ledgers(product_id,payload) VALUES(?,?)
		 ON CONFLICT(product_id) DO UPDATE SET payload=excluded.payload`,
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
		`INSERT INTO consumption_log(id,product_id,seq,occurred_at,payload) VALUES(?,?,?,?,?)`,
		entry.ID, entry.ProductID, entry.Sequence, entry.OccurredAt.Format(time.RFC3339Nano), payload)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("insert entry %s: %w", entry.ID, err)
	}
	return s.Store.Append(ctx, entry)
}

func (s *Store) load() error {
	snapshot := Snapshot{}
	rows, err := s.db.Query(`SELECT payload FROM product_ledgers`)
	if err != nil {
		return fmt.Errorf("select ledgers: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("scan ledger: %w", err)
		}
		var ledger domain.ProductLedger
		if err := json.Unmarshal(payload, &ledger); err != nil {
			return fmt.Errorf("decode ledger: %w", err)
		}
		snapshot.Ledgers = append(snapshot.Ledgers, ledger)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate ledgers: %w", err)
	}

	// rowid order reproduces the original append order across products.
	entryRows, err := s.db.Query(`SELECT payload FROM consumption_log ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("select entries: %w", err)
	}
	defer func() { _ = entryRows.Close() }()
	for entryRows.Next() {
		var payload []byte
		if err := entryRows.Scan(&payload); err != nil {
			return fmt.Errorf("scan entry: %w", err)
		}
		var entry domain.ConsumptionEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return fmt.Errorf("decode entry: %w", err)
		}
		snapshot.Entries = append(snapshot.Entries, entry)
	}
	if err := entryRows.Err(); err != nil {
		return fmt.Errorf("iterate entries: %w", err)
	}

	s.ImportState(snapshot)
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
