package domain

import (
	"errors"
	"fmt"
)

// UnknownProductError reports an operation against a product that was never
// provisioned.
type UnknownProductError struct {
	ProductID string
}

func (e UnknownProductError) Error() string {
	return fmt.Sprintf("unknown product %q", e.ProductID)
}

// InsufficientStockError reports a consumption that exceeds total available
// stock. The ledger is left untouched when this is returned.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Required  Volume
	Available Volume
}

func (e InsufficientStockError) Error() string {
	label := e.ProductID
	if e.Name != "" {
		label = fmt.Sprintf("%s (%s)", e.Name, e.ProductID)
	}
	return fmt.Sprintf("insufficient stock for %s: need %d, have %d", label, e.Required, e.Available)
}

// StorageError wraps an infrastructure failure during a read or write. The
// in-memory ledger is never mutated when the backing store rejects a commit.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e StorageError) Unwrap() error { return e.Err }

// IsUnknownProduct reports whether err is an UnknownProductError.
func IsUnknownProduct(err error) bool {
	var target UnknownProductError
	return errors.As(err, &target)
}

// IsInsufficientStock reports whether err is an InsufficientStockError.
func IsInsufficientStock(err error) bool {
	var target InsufficientStockError
	return errors.As(err, &target)
}

// IsStorageError reports whether err is a StorageError.
func IsStorageError(err error) bool {
	var target StorageError
	return errors.As(err, &target)
}
