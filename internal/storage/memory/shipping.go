package memory

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/gmarket/internal/domain/fault"
	"github.com/xenking/gmarket/internal/domain/shipping"
)

var (
	_ shipping.Repository        = (*ShipmentRepository)(nil)
	_ shipping.CourierRepository = (*ShipmentRepository)(nil)
)

// ShipmentRepository stores shipments and couriers.
type ShipmentRepository struct {
	s *Store
}

// Shipments returns the store's shipment and courier repository.
func (s *Store) Shipments() *ShipmentRepository {
	return &ShipmentRepository{s: s}
}

// Create stores a shipment unless its order already has one.
func (r *ShipmentRepository) Create(ctx context.Context, sh *shipping.Shipment) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.st.shipmentByOrder[sh.OrderID]; ok {
		return errors.Wrapf(fault.ErrShipmentExists, "order %s", sh.OrderID)
	}
	r.s.st.shipments[sh.ID] = cloneShipment(*sh)
	r.s.st.shipmentByOrder[sh.OrderID] = sh.ID
	return nil
}

// Get returns a shipment by id.
func (r *ShipmentRepository) Get(ctx context.Context, id string) (*shipping.Shipment, error) {
	defer r.s.lock(ctx)()
	return r.get(id)
}

// GetForUpdate returns a shipment by id.
func (r *ShipmentRepository) GetForUpdate(ctx context.Context, id string) (*shipping.Shipment, error) {
	defer r.s.lock(ctx)()
	return r.get(id)
}

// GetByOrder returns the shipment of an order.
func (r *ShipmentRepository) GetByOrder(ctx context.Context, orderID string) (*shipping.Shipment, error) {
	defer r.s.lock(ctx)()
	id, ok := r.s.st.shipmentByOrder[orderID]
	if !ok {
		return nil, fault.NotFoundf("shipment for order %s", orderID)
	}
	return r.get(id)
}

// UpdateStatus sets status and delivery date.
func (r *ShipmentRepository) UpdateStatus(ctx context.Context, id string, status shipping.Status, delivered *time.Time, at time.Time) error {
	defer r.s.lock(ctx)()
	sh, ok := r.s.st.shipments[id]
	if !ok {
		return fault.NotFoundf("shipment %s", id)
	}
	sh.Status = status
	sh.DeliveryDate = delivered
	sh.UpdatedAt = at
	r.s.st.shipments[id] = cloneShipment(sh)
	return nil
}

// CreateCourier stores a courier with a unique phone and email.
func (r *ShipmentRepository) CreateCourier(ctx context.Context, c *shipping.Courier) error {
	defer r.s.lock(ctx)()
	for _, existing := range r.s.st.couriers {
		if existing.Phone == c.Phone || (c.Email != "" && existing.Email == c.Email) {
			return fault.Validationf("courier with this phone number or email already exists")
		}
	}
	r.s.st.couriers[c.ID] = *c
	return nil
}

// GetCourier returns a courier by id.
func (r *ShipmentRepository) GetCourier(ctx context.Context, id string) (*shipping.Courier, error) {
	defer r.s.lock(ctx)()
	return r.courier(id)
}

// GetCourierForShare returns a courier by id.
func (r *ShipmentRepository) GetCourierForShare(ctx context.Context, id string) (*shipping.Courier, error) {
	defer r.s.lock(ctx)()
	return r.courier(id)
}

// GetCourierForUpdate returns a courier by id.
func (r *ShipmentRepository) GetCourierForUpdate(ctx context.Context, id string) (*shipping.Courier, error) {
	defer r.s.lock(ctx)()
	return r.courier(id)
}

// ListCouriers returns couriers matching f ordered by name.
func (r *ShipmentRepository) ListCouriers(ctx context.Context, f shipping.CourierFilter) ([]shipping.Courier, error) {
	defer r.s.lock(ctx)()
	var out []shipping.Courier
	for _, c := range r.s.st.couriers {
		if f.Region != "" && c.Region != f.Region {
			continue
		}
		if f.Active != nil && c.IsActive != *f.Active {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CountInFlight counts the courier's pending, shipped and in-transit
// shipments.
func (r *ShipmentRepository) CountInFlight(ctx context.Context, courierID string) (int, error) {
	defer r.s.lock(ctx)()
	n := 0
	for _, sh := range r.s.st.shipments {
		if sh.CourierID == courierID && sh.Status.InFlight() {
			n++
		}
	}
	return n, nil
}

// SetCourierActive toggles the courier's active flag.
func (r *ShipmentRepository) SetCourierActive(ctx context.Context, id string, active bool, at time.Time) error {
	defer r.s.lock(ctx)()
	c, ok := r.s.st.couriers[id]
	if !ok {
		return fault.NotFoundf("courier %s", id)
	}
	c.IsActive = active
	c.UpdatedAt = at
	r.s.st.couriers[id] = c
	return nil
}

// UpdateCourier replaces a courier, keeping phone and email unique.
func (r *ShipmentRepository) UpdateCourier(ctx context.Context, c *shipping.Courier) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.st.couriers[c.ID]; !ok {
		return fault.NotFoundf("courier %s", c.ID)
	}
	for id, existing := range r.s.st.couriers {
		if id == c.ID {
			continue
		}
		if existing.Phone == c.Phone || (c.Email != "" && existing.Email == c.Email) {
			return fault.Validationf("courier with this phone number or email already exists")
		}
	}
	r.s.st.couriers[c.ID] = *c
	return nil
}

func (r *ShipmentRepository) get(id string) (*shipping.Shipment, error) {
	sh, ok := r.s.st.shipments[id]
	if !ok {
		return nil, fault.NotFoundf("shipment %s", id)
	}
	sh = cloneShipment(sh)
	return &sh, nil
}

func (r *ShipmentRepository) courier(id string) (*shipping.Courier, error) {
	c, ok := r.s.st.couriers[id]
	if !ok {
		return nil, fault.NotFoundf("courier %s", id)
	}
	return &c, nil
}
