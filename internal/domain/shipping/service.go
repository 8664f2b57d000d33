package shipping

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/gmarket/internal/domain/fault"
	"github.com/xenking/gmarket/internal/domain/order"
	"github.com/xenking/gmarket/internal/domain/txn"
)

// OrderLookup resolves the order a shipment belongs to.
type OrderLookup interface {
	Get(ctx context.Context, id string) (*order.Order, error)
}

// CreateRequest holds the input for creating a shipment.
type CreateRequest struct {
	OrderID    string
	CourierID  string
	Address    string
	City       string
	Region     string
	PostalCode string
}

// CourierRequest holds the input for registering a courier.
type CourierRequest struct {
	Name   string
	Phone  string
	Email  string
	Region string
}

// Service tracks shipments and manages couriers.
type Service struct {
	tx        txn.Transactor
	orders    OrderLookup
	shipments Repository
	couriers  CourierRepository
	now       func() time.Time
}

// NewService creates a shipping Service.
func NewService(tx txn.Transactor, orders OrderLookup, shipments Repository, couriers CourierRepository) *Service {
	return &Service{
		tx:        tx,
		orders:    orders,
		shipments: shipments,
		couriers:  couriers,
		now:       time.Now,
	}
}

// CreateShipment records a pending shipment for an order using an active
// courier. An order has at most one shipment.
func (s *Service) CreateShipment(ctx context.Context, req CreateRequest) (*Shipment, error) {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"order_id", req.OrderID},
		{"courier_id", req.CourierID},
		{"address", req.Address},
		{"city", req.City},
		{"region", req.Region},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, fault.Validationf("missing required fields: %s", strings.Join(missing, ", "))
	}

	var created *Shipment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.Get(ctx, req.OrderID)
		if err != nil {
			return errors.Wrap(err, "get order")
		}
		c, err := s.couriers.GetCourierForShare(ctx, req.CourierID)
		if err != nil {
			return errors.Wrap(err, "get courier")
		}
		if !c.IsActive {
			return fault.Validationf("courier %s is not active", c.ID)
		}

		switch _, err := s.shipments.GetByOrder(ctx, o.ID); {
		case err == nil:
			return errors.Wrapf(fault.ErrShipmentExists, "order %s", o.ID)
		case !errors.Is(err, fault.ErrNotFound):
			return errors.Wrap(err, "get shipment by order")
		}

		now := s.now().UTC()
		sh := &Shipment{
			ID:           uuid.New().String(),
			OrderID:      o.ID,
			CourierID:    c.ID,
			Address:      req.Address,
			City:         req.City,
			Region:       req.Region,
			PostalCode:   req.PostalCode,
			Status:       StatusPending,
			ShippingDate: now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.shipments.Create(ctx, sh); err != nil {
			return errors.Wrap(err, "create shipment")
		}
		created = sh
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateStatus sets the shipment status. Any recognised status may follow any
// other. A given delivery date is stored as is; moving to delivered without
// one stamps the current time.
func (s *Service) UpdateStatus(ctx context.Context, id, raw string, deliveryDate *time.Time) (*Shipment, error) {
	status, err := ParseStatus(raw)
	if err != nil {
		return nil, err
	}
	return s.setStatus(ctx, id, func(sh *Shipment, now time.Time) error {
		sh.Status = status
		switch {
		case deliveryDate != nil:
			d := deliveryDate.UTC()
			sh.DeliveryDate = &d
		case status == StatusDelivered:
			sh.DeliveryDate = &now
		}
		return nil
	})
}

// Cancel marks the shipment failed. Delivered shipments cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id string) (*Shipment, error) {
	return s.setStatus(ctx, id, func(sh *Shipment, _ time.Time) error {
		if sh.Status == StatusDelivered {
			return errors.Wrapf(fault.ErrIllegalTransition, "cancel delivered shipment %s", sh.ID)
		}
		sh.Status = StatusFailed
		return nil
	})
}

// Get returns a shipment by id.
func (s *Service) Get(ctx context.Context, id string) (*Shipment, error) {
	sh, err := s.shipments.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get shipment")
	}
	return sh, nil
}

// GetByOrder returns the shipment of an order.
func (s *Service) GetByOrder(ctx context.Context, orderID string) (*Shipment, error) {
	sh, err := s.shipments.GetByOrder(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get shipment by order")
	}
	return sh, nil
}

// CreateCourier registers an active courier.
func (s *Service) CreateCourier(ctx context.Context, req CourierRequest) (*Courier, error) {
	name := strings.TrimSpace(req.Name)
	phone := strings.TrimSpace(req.Phone)
	if name == "" || phone == "" || strings.TrimSpace(req.Region) == "" {
		return nil, fault.Validationf("courier name, phone number and region are required")
	}
	region, ok := CanonicalRegion(req.Region)
	if !ok {
		return nil, fault.Validationf("invalid Ghana region %q", req.Region)
	}

	now := s.now().UTC()
	c := &Courier{
		ID:        uuid.New().String(),
		Name:      name,
		Phone:     phone,
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Region:    region,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.couriers.CreateCourier(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create courier")
	}
	return c, nil
}

// GetCourier returns a courier by id.
func (s *Service) GetCourier(ctx context.Context, id string) (*Courier, error) {
	c, err := s.couriers.GetCourier(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get courier")
	}
	return c, nil
}

// ListCouriers returns couriers matching f.
func (s *Service) ListCouriers(ctx context.Context, f CourierFilter) ([]Courier, error) {
	if f.Region != "" {
		region, ok := CanonicalRegion(f.Region)
		if !ok {
			return nil, fault.Validationf("invalid Ghana region %q", f.Region)
		}
		f.Region = region
	}
	list, err := s.couriers.ListCouriers(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list couriers")
	}
	return list, nil
}

// DeactivateCourier retires a courier. It fails while the courier still has
// pending, shipped or in-transit shipments; the check and the write happen
// under the courier lock, so no shipment can be assigned in between.
func (s *Service) DeactivateCourier(ctx context.Context, id string) (*Courier, error) {
	var updated *Courier
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.couriers.GetCourierForUpdate(ctx, id)
		if err != nil {
			return errors.Wrap(err, "get courier")
		}
		n, err := s.couriers.CountInFlight(ctx, c.ID)
		if err != nil {
			return errors.Wrap(err, "count courier shipments")
		}
		if n > 0 {
			return errors.Wrapf(fault.ErrIllegalTransition, "courier %s has %d active shipments", c.ID, n)
		}
		c.IsActive = false
		c.UpdatedAt = s.now().UTC()
		if err := s.couriers.SetCourierActive(ctx, c.ID, false, c.UpdatedAt); err != nil {
			return errors.Wrap(err, "deactivate courier")
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateCourier applies upd to a courier. Region, phone and email follow the
// same rules as CreateCourier. Deactivating through an update is refused
// while the courier has in-flight shipments.
func (s *Service) UpdateCourier(ctx context.Context, id string, upd CourierUpdate) (*Courier, error) {
	var updated *Courier
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.couriers.GetCourierForUpdate(ctx, id)
		if err != nil {
			return errors.Wrap(err, "get courier")
		}
		if upd.Name != nil {
			if c.Name = strings.TrimSpace(*upd.Name); c.Name == "" {
				return fault.Validationf("courier name must not be empty")
			}
		}
		if upd.Phone != nil {
			if c.Phone = strings.TrimSpace(*upd.Phone); c.Phone == "" {
				return fault.Validationf("courier phone number must not be empty")
			}
		}
		if upd.Email != nil {
			c.Email = strings.ToLower(strings.TrimSpace(*upd.Email))
		}
		if upd.Region != nil {
			region, ok := CanonicalRegion(*upd.Region)
			if !ok {
				return fault.Validationf("invalid Ghana region %q", *upd.Region)
			}
			c.Region = region
		}
		if upd.IsActive != nil {
			if c.IsActive && !*upd.IsActive {
				n, err := s.couriers.CountInFlight(ctx, c.ID)
				if err != nil {
					return errors.Wrap(err, "count courier shipments")
				}
				if n > 0 {
					return errors.Wrapf(fault.ErrIllegalTransition, "courier %s has %d active shipments", c.ID, n)
				}
			}
			c.IsActive = *upd.IsActive
		}
		c.UpdatedAt = s.now().UTC()
		if err := s.couriers.UpdateCourier(ctx, c); err != nil {
			return errors.Wrap(err, "update courier")
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) setStatus(ctx context.Context, id string, mutate func(sh *Shipment, now time.Time) error) (*Shipment, error) {
	var updated *Shipment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		sh, err := s.shipments.GetForUpdate(ctx, id)
		if err != nil {
			return errors.Wrap(err, "get shipment")
		}
		now := s.now().UTC()
		if err := mutate(sh, now); err != nil {
			return err
		}
		sh.UpdatedAt = now
		if err := s.shipments.UpdateStatus(ctx, sh.ID, sh.Status, sh.DeliveryDate, now); err != nil {
			return errors.Wrap(err, "update shipment status")
		}
		updated = sh
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
