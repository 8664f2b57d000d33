package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/gmarket/internal/domain/fault"
)

// DefaultCurrency is used when a placement request names no currency.
const DefaultCurrency = "GHS"

// MoneyPlaces is the number of decimal places every stored amount keeps.
const MoneyPlaces = 2

// ValidAmount reports whether d is representable with MoneyPlaces decimal
// places, so storing it does not round.
func ValidAmount(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyPlaces))
}

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// ParseStatus validates raw as an order status.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled:
		return s, nil
	default:
		return "", errors.Wrapf(fault.ErrInvalidStatus, "order status %q", raw)
	}
}

// Editable reports whether notes and discount may still change.
func (s Status) Editable() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Order is a placed customer order. Items are immutable once created.
type Order struct {
	ID         string
	Number     string
	CustomerID string
	Items      []Item
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Total      decimal.Decimal
	Currency   string
	Status     Status
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Item is an order line with the unit price captured at placement.
type Item struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// Line is a requested (product, quantity) pair.
type Line struct {
	ProductID string
	Quantity  int
}

// InvalidItemError indicates an order line that cannot be placed.
type InvalidItemError struct {
	ProductID string
	Reason    string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("invalid order item %s: %s", e.ProductID, e.Reason)
}

// Unwrap classifies the error as fault.ErrInvalidOrderItem.
func (e *InvalidItemError) Unwrap() error { return fault.ErrInvalidOrderItem }

// FormatNumber renders the human-readable order number for sequence value seq.
func FormatNumber(year int, seq int64) string {
	return fmt.Sprintf("GM-%d-%06d", year, seq)
}

// Repository defines persistence operations for orders.
//
// NextNumber draws from a store-wide monotonic sequence; no two calls return
// the same value. GetForUpdate locks the order row until the surrounding
// transaction ends. Get and GetForUpdate load items and return an error
// wrapping fault.ErrNotFound for unknown ids.
type Repository interface {
	NextNumber(ctx context.Context) (int64, error)
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error
	UpdateDetails(ctx context.Context, id, notes string, discount, total decimal.Decimal, at time.Time) error
}
