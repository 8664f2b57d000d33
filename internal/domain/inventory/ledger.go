// Package inventory owns per-product stock counts. The Ledger is the only
// component that debits or credits stock.
package inventory

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/gmarket/internal/domain/fault"
)

// InsufficientStockError reports a reservation or availability check that asks
// for more than the product holds.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Unwrap classifies the error as fault.ErrInsufficientStock.
func (e *InsufficientStockError) Unwrap() error { return fault.ErrInsufficientStock }

// Store is the persistence contract for stock counts.
//
// DecrementStock must check and decrement in one atomic step against the
// stored value: when the stored quantity is lower than qty it changes nothing
// and returns ok=false together with the quantity it observed. Unknown
// products yield an error wrapping fault.ErrNotFound.
type Store interface {
	StockLevel(ctx context.Context, productID string) (int, error)
	DecrementStock(ctx context.Context, productID string, qty int) (remaining int, ok bool, err error)
	IncrementStock(ctx context.Context, productID string, qty int) (int, error)
}

// Ledger performs stock reservations and releases.
type Ledger struct {
	store Store
}

// NewLedger returns a Ledger backed by store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Reserve atomically removes qty units of productID from stock. It fails with
// an *InsufficientStockError when the product holds fewer than qty units at the
// moment of the write. When ctx carries a store transaction the decrement is
// part of it and is undone if the transaction aborts.
func (l *Ledger) Reserve(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return errors.Wrapf(fault.ErrInvalidOrderItem, "reserve %d units of product %s", qty, productID)
	}
	remaining, ok, err := l.store.DecrementStock(ctx, productID, qty)
	if err != nil {
		return errors.Wrapf(err, "reserve product %s", productID)
	}
	if !ok {
		return &InsufficientStockError{ProductID: productID, Requested: qty, Available: remaining}
	}
	return nil
}

// Release returns qty units of productID to stock.
func (l *Ledger) Release(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return fault.Validationf("release %d units of product %s", qty, productID)
	}
	if _, err := l.store.IncrementStock(ctx, productID, qty); err != nil {
		return errors.Wrapf(err, "release product %s", productID)
	}
	return nil
}

// CheckAvailable is the advisory stock check used by the cart. It reads the
// current level and writes nothing, so a passing check guarantees nothing
// about a later Reserve.
func (l *Ledger) CheckAvailable(ctx context.Context, productID string, qty int) error {
	level, err := l.store.StockLevel(ctx, productID)
	if err != nil {
		return errors.Wrapf(err, "stock level of product %s", productID)
	}
	if qty > level {
		return &InsufficientStockError{ProductID: productID, Requested: qty, Available: level}
	}
	return nil
}
