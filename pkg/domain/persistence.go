package domain

import "context"

// Transaction provides mutation primitives scoped to a single product's
// ledger. Implementations serialize transactions per product, so two
// transactions on different products proceed independently while writes to
// the same ledger never interleave.
type Transaction interface {
	// Snapshot returns a read-only view of the state as of transaction start.
	Snapshot() TransactionView
	// Ledger returns the working copy of the transaction's target ledger.
	Ledger() (ProductLedger, bool)
	// CreateLedger provisions the target product. It fails if the product
	// already exists or the ledger's ProductID differs from the target.
	CreateLedger(ledger ProductLedger) (ProductLedger, error)
	// UpdateLedger applies mutator to the working copy of the target ledger.
	// The stored state is only replaced if the whole transaction commits.
	UpdateLedger(mutator func(*ProductLedger) error) (ProductLedger, error)
}

// TransactionView provides read-only access to a consistent snapshot.
type TransactionView interface {
	ListLedgers() []ProductLedger
	FindLedger(productID string) (ProductLedger, bool)
	ListEntries(productID string) []ConsumptionEntry
}

// PersistentStore abstracts the storage backend used by the service layer.
// RunInTransaction executes fn against a transaction bound to productID and
// commits its staged changes atomically after rule evaluation; a blocking
// rule result or an error from fn discards the staged state entirely.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, productID string, fn func(tx Transaction) error) (Result, error)
	View(ctx context.Context, fn func(view TransactionView) error) error
	GetLedger(productID string) (ProductLedger, bool)
	ListLedgers() []ProductLedger
}

// ConsumptionLog is the append-only history of successful consumptions.
// Append is called once per committed deduction; implementations must never
// mutate or reorder entries already written. List returns entries for a
// product in Sequence order, capped to the most recent limit when limit > 0.
type ConsumptionLog interface {
	Append(ctx context.Context, entry ConsumptionEntry) error
	List(ctx context.Context, productID string, limit int) ([]ConsumptionEntry, error)
}
