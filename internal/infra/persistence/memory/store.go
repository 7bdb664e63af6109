// Package memory provides the in-memory implementation of the core
// persistence store, used directly for tests and ephemeral environments and
// embedded by the durable backends, which mirror committed writes through a
// persist hook.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bottlecore/internal/infra/keyedmutex"
	"bottlecore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.ConsumptionLog  = (*Store)(nil)
)

type (
	// ProductLedger aliases domain.ProductLedger for in-memory persistence operations.
	ProductLedger = domain.ProductLedger
	// ConsumptionEntry aliases domain.ConsumptionEntry.
	ConsumptionEntry = domain.ConsumptionEntry
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type storeState struct {
	ledgers map[string]ProductLedger
	entries []ConsumptionEntry
}

func newStoreState() storeState {
	return storeState{ledgers: make(map[string]ProductLedger)}
}

// Snapshot captures a point-in-time clone of the store state. Entries keep
// their append order so hydration preserves history ordering.
type Snapshot struct {
	Ledgers []ProductLedger    `json:"ledgers"`
	Entries []ConsumptionEntry `json:"entries"`
}

// PersistFunc mirrors a committed ledger write to a durable backend. It runs
// before the in-memory state is replaced; an error aborts the commit and
// leaves the in-memory ledger untouched.
type PersistFunc func(ctx context.Context, ledger ProductLedger) error

// Option customizes store construction.
type Option func(*Store)

// WithPersist registers a write-through hook for ledger commits.
func WithPersist(fn PersistFunc) Option {
	return func(s *Store) { s.persist = fn }
}

// WithNowFunc overrides the clock used to stamp ledger writes.
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Store) { s.nowFn = fn }
}

// Store keeps ledgers and consumption history in process memory.
// Transactions are serialized per product by a keyed guard, so operations on
// different products never block each other.
type Store struct {
	mu      sync.RWMutex
	state   storeState
	engine  *RulesEngine
	guard   *keyedmutex.Mutex
	nowFn   func() time.Time
	persist PersistFunc
}

// NewStore builds an empty in-memory store. A nil engine is replaced with an
// engine carrying no rules.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	store := &Store{
		state:  newStoreState(),
		engine: engine,
		guard:  keyedmutex.New(),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// RulesEngine exposes the engine evaluating transactions on this store.
func (s *Store) RulesEngine() *RulesEngine { return s.engine }

// NowFunc exposes the store clock so upper layers can share it.
func (s *Store) NowFunc() func() time.Time { return s.nowFn }

func (s *Store) now() time.Time {
	if s.nowFn != nil {
		return s.nowFn().UTC()
	}
	return time.Now().UTC()
}

// transaction stages mutations for a single product.
type transaction struct {
	store     *Store
	productID string
	now       time.Time
	ledger    *ProductLedger
	found     bool
	dirty     bool
	changes   []Change
}

// transactionView is a point-in-time copy of the full store state, with the
// transaction's working ledger overlaid when taken inside a transaction.
type transactionView struct {
	ledgers map[string]ProductLedger
	entries []ConsumptionEntry
}

func (v transactionView) ListLedgers() []ProductLedger {
	out := make([]ProductLedger, 0, len(v.ledgers))
	for _, ledger := range v.ledgers {
		out = append(out, ledger.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func (v transactionView) FindLedger(productID string) (ProductLedger, bool) {
	ledger, ok := v.ledgers[productID]
	if !ok {
		return ProductLedger{}, false
	}
	return ledger.Clone(), true
}

func (v transactionView) ListEntries(productID string) []ConsumptionEntry {
	var out []ConsumptionEntry
	for _, entry := range v.entries {
		if productID == "" || entry.ProductID == productID {
			out = append(out, entry.Clone())
		}
	}
	return out
}

func (s *Store) snapshotView(tx *transaction) transactionView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view := transactionView{
		ledgers: make(map[string]ProductLedger, len(s.state.ledgers)+1),
		entries: make([]ConsumptionEntry, len(s.state.entries)),
	}
	for id, ledger := range s.state.ledgers {
		view.ledgers[id] = ledger.Clone()
	}
	copy(view.entries, s.state.entries)
	if tx != nil && tx.ledger != nil {
		view.ledgers[tx.productID] = tx.ledger.Clone()
	}
	return view
}

func (tx *transaction) Snapshot() TransactionView {
	return tx.store.snapshotView(tx)
}

func (tx *transaction) Ledger() (ProductLedger, bool) {
	if tx.ledger == nil {
		return ProductLedger{}, false
	}
	return tx.ledger.Clone(), true
}

func (tx *transaction) CreateLedger(ledger ProductLedger) (ProductLedger, error) {
	if tx.ledger != nil || tx.found {
		return ProductLedger{}, fmt.Errorf("product %q already exists", tx.productID)
	}
	if ledger.ProductID != tx.productID {
		return ProductLedger{}, fmt.Errorf("ledger product id %q does not match transaction product %q", ledger.ProductID, tx.productID)
	}
	created := ledger.Clone()
	created.Sequence = 0
	created.CreatedAt = tx.now
	created.UpdatedAt = tx.now
	tx.ledger = &created
	tx.dirty = true
	tx.changes = append(tx.changes, Change{
		Entity: domain.EntityProductLedger,
		Action: domain.ActionCreate,
		After:  created.Clone(),
	})
	return created.Clone(), nil
}

func (tx *transaction) UpdateLedger(mutator func(*ProductLedger) error) (ProductLedger, error) {
	if tx.ledger == nil {
		return ProductLedger{}, domain.UnknownProductError{ProductID: tx.productID}
	}
	before := tx.ledger.Clone()
	working := tx.ledger.Clone()
	if err := mutator(&working); err != nil {
		return ProductLedger{}, err
	}
	// Identity and bookkeeping fields are owned by the store, not mutators.
	working.ProductID = before.ProductID
	working.CreatedAt = before.CreatedAt
	working.Sequence = before.Sequence + 1
	working.UpdatedAt = tx.now
	tx.ledger = &working
	tx.dirty = true
	tx.changes = append(tx.changes, Change{
		Entity: domain.EntityProductLedger,
		Action: domain.ActionUpdate,
		Before: before,
		After:  working.Clone(),
	})
	return working.Clone(), nil
}

// RunInTransaction executes fn against a transaction bound to productID.
// Staged changes are evaluated by the rules engine and, when no blocking
// violation is present, written through the persist hook and then committed
// to memory in one step. The guard serializes transactions per product and
// is held from before fn runs until after commit.
func (s *Store) RunInTransaction(ctx context.Context, productID string, fn func(tx Transaction) error) (Result, error) {
	if productID == "" {
		return Result{}, fmt.Errorf("product id is required")
	}
	if err := s.guard.Lock(ctx, productID); err != nil {
		return Result{}, err
	}
	defer s.guard.Unlock(productID)

	tx := &transaction{store: s, productID: productID, now: s.now()}
	s.mu.RLock()
	if current, ok := s.state.ledgers[productID]; ok {
		working := current.Clone()
		tx.ledger = &working
		tx.found = true
	}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if len(tx.changes) > 0 {
		res, err := s.engine.Evaluate(ctx, s.snapshotView(tx), tx.changes)
		if err != nil {
			return Result{}, fmt.Errorf("rules evaluation failed: %w", err)
		}
		result = res
		if result.HasBlocking() {
			return result, domain.RuleViolationError{Result: result}
		}
	}

	if tx.dirty && tx.ledger != nil {
		if s.persist != nil {
			if err := s.persist(ctx, tx.ledger.Clone()); err != nil {
				return result, domain.StorageError{Op: "persist ledger", Err: err}
			}
		}
		s.mu.Lock()
		s.state.ledgers[productID] = tx.ledger.Clone()
		s.mu.Unlock()
	}
	return result, nil
}

// View runs fn against a consistent snapshot of the whole store. Concurrent
// writers never reach the snapshot, so fn observes no torn state.
func (s *Store) View(_ context.Context, fn func(view TransactionView) error) error {
	return fn(s.snapshotView(nil))
}

// GetLedger returns a copy of the ledger for productID.
func (s *Store) GetLedger(productID string) (ProductLedger, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ledger, ok := s.state.ledgers[productID]
	if !ok {
		return ProductLedger{}, false
	}
	return ledger.Clone(), true
}

// ListLedgers returns copies of all ledgers sorted by product id.
func (s *Store) ListLedgers() []ProductLedger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ProductLedger, 0, len(s.state.ledgers))
	for _, ledger := range s.state.ledgers {
		out = append(out, ledger.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// Append records a consumption entry. Entries are immutable once written.
func (s *Store) Append(_ context.Context, entry ConsumptionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.entries = append(s.state.entries, entry.Clone())
	return nil
}

// List returns the consumption history for productID in Sequence order, all
// products (grouped by product) when productID is empty. A positive limit
// keeps only the most recent entries.
func (s *Store) List(_ context.Context, productID string, limit int) ([]ConsumptionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ConsumptionEntry
	for _, entry := range s.state.entries {
		if productID == "" || entry.ProductID == productID {
			out = append(out, entry.Clone())
		}
	}
	// Appends land after the guarded commit and may interleave across
	// transactions; the stamped Sequence restores the logical order.
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].Sequence < out[j].Sequence
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// ExportState returns a deep copy of the current store contents.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Ledgers: make([]ProductLedger, 0, len(s.state.ledgers)),
		Entries: make([]ConsumptionEntry, len(s.state.entries)),
	}
	for _, ledger := range s.state.ledgers {
		snap.Ledgers = append(snap.Ledgers, ledger.Clone())
	}
	sort.Slice(snap.Ledgers, func(i, j int) bool { return snap.Ledgers[i].ProductID < snap.Ledgers[j].ProductID })
	copy(snap.Entries, s.state.entries)
	return snap
}

// ImportState replaces the store contents with the snapshot. Durable
// backends use it to hydrate memory from their on-disk state.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newStoreState()
	for _, ledger := range snap.Ledgers {
		state.ledgers[ledger.ProductID] = ledger.Clone()
	}
	state.entries = make([]ConsumptionEntry, len(snap.Entries))
	copy(state.entries, snap.Entries)
	s.state = state
}
