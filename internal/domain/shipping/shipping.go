// Package shipping tracks shipments of orders and the couriers that carry
// them.
package shipping

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/gmarket/internal/domain/fault"
)

// Status is the state of a shipment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusShipped   Status = "shipped"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// ParseStatus validates raw as a shipment status.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusPending, StatusShipped, StatusInTransit, StatusDelivered, StatusFailed:
		return s, nil
	default:
		return "", errors.Wrapf(fault.ErrInvalidStatus, "shipment status %q", raw)
	}
}

// InFlight reports whether the shipment still occupies its courier.
func (s Status) InFlight() bool {
	return s == StatusPending || s == StatusShipped || s == StatusInTransit
}

// InFlightStatuses lists the statuses for which InFlight is true.
var InFlightStatuses = []Status{StatusPending, StatusShipped, StatusInTransit}

// Shipment is the single shipment record of an order.
type Shipment struct {
	ID           string
	OrderID      string
	CourierID    string
	Address      string
	City         string
	Region       string
	PostalCode   string
	Status       Status
	ShippingDate time.Time
	DeliveryDate *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Repository defines persistence operations for shipments.
//
// Create returns an error wrapping fault.ErrShipmentExists when the order
// already has a shipment; the store enforces this with a unique constraint.
type Repository interface {
	Create(ctx context.Context, s *Shipment) error
	Get(ctx context.Context, id string) (*Shipment, error)
	GetForUpdate(ctx context.Context, id string) (*Shipment, error)
	GetByOrder(ctx context.Context, orderID string) (*Shipment, error)
	UpdateStatus(ctx context.Context, id string, status Status, delivered *time.Time, at time.Time) error
}
