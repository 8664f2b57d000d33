package cart

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// MaxQuantity bounds a line quantity and any single requested quantity. It
// matches the INTEGER columns of the SQL store.
const MaxQuantity = math.MaxInt32

// Line is a (product, quantity) holding in a cart. Quantity is always > 0;
// a line whose quantity would drop to zero is removed instead.
type Line struct {
	ProductID string
	Quantity  int
}

// Cart belongs to exactly one customer and is created on first access.
// Lines keep insertion order.
type Cart struct {
	ID         string
	CustomerID string
	Lines      []Line
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Line returns the line for productID, if any.
func (c *Cart) Line(productID string) (Line, bool) {
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return Line{}, false
}

// PricedLine is a cart line valued at the product's current price.
type PricedLine struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// Summary is a cart with live totals. Totals float with catalog prices;
// nothing here is snapshotted.
type Summary struct {
	Cart        *Cart
	Lines       []PricedLine
	TotalItems  int
	TotalAmount decimal.Decimal
}

// Repository defines persistence for carts.
//
// AddQuantity must merge atomically: it creates the line when absent and
// otherwise adds qty to the stored quantity, returning the new quantity.
// SetQuantity and RemoveLine return an error wrapping fault.ErrNotFound when
// the line does not exist. GetOrCreateForUpdate additionally locks the cart
// until the surrounding transaction ends, so two checkouts of one cart run
// one after the other.
type Repository interface {
	GetOrCreate(ctx context.Context, customerID string) (*Cart, error)
	GetOrCreateForUpdate(ctx context.Context, customerID string) (*Cart, error)
	AddQuantity(ctx context.Context, cartID, productID string, qty int) (int, error)
	SetQuantity(ctx context.Context, cartID, productID string, qty int) error
	RemoveLine(ctx context.Context, cartID, productID string) error
	Clear(ctx context.Context, cartID string) error
}
