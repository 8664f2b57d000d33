package product

import (
	"context"

	"github.com/shopspring/decimal"
)

// Product is a catalog item as seen by the fulfillment pipeline. Stock is
// owned by the inventory ledger; the field here is a read snapshot.
type Product struct {
	ID            string
	Name          string
	Price         decimal.Decimal
	StockQuantity int
	IsActive      bool
}

// Repository defines read operations for the product catalog. Get returns an
// error wrapping fault.ErrNotFound for unknown ids; GetByIDs silently omits
// them.
type Repository interface {
	Get(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
