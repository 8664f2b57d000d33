package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/gmarket/internal/domain/fault"
	"github.com/xenking/gmarket/internal/domain/order"
	"github.com/xenking/gmarket/internal/domain/txn"
)

// OrderLookup resolves the order a payment is recorded against.
type OrderLookup interface {
	Get(ctx context.Context, id string) (*order.Order, error)
}

// InitiateRequest holds the input for recording a payment.
type InitiateRequest struct {
	OrderID              string
	Method               string
	Fee                  decimal.Decimal
	TransactionReference string
	// Currency defaults to the order currency.
	Currency string
}

// Service records payments.
type Service struct {
	tx       txn.Transactor
	orders   OrderLookup
	payments Repository
	now      func() time.Time
}

// NewService creates a payment Service.
func NewService(tx txn.Transactor, orders OrderLookup, payments Repository) *Service {
	return &Service{
		tx:       tx,
		orders:   orders,
		payments: payments,
		now:      time.Now,
	}
}

// Initiate records a pending payment for the full order total. An order has at
// most one payment; a concurrent duplicate loses on the store constraint.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*Payment, error) {
	var created *Payment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.Get(ctx, req.OrderID)
		if err != nil {
			return errors.Wrap(err, "get order")
		}

		switch _, err := s.payments.GetByOrder(ctx, o.ID); {
		case err == nil:
			return errors.Wrapf(fault.ErrPaymentExists, "order %s", o.ID)
		case !errors.Is(err, fault.ErrNotFound):
			return errors.Wrap(err, "get payment by order")
		}

		method, err := ParseMethod(req.Method)
		if err != nil {
			return err
		}
		if req.Fee.IsNegative() {
			return fault.Validationf("fee must not be negative")
		}
		if !order.ValidAmount(req.Fee) {
			return fault.Validationf("fee must have at most %d decimal places", order.MoneyPlaces)
		}
		currency := req.Currency
		if currency == "" {
			currency = o.Currency
		}

		now := s.now().UTC()
		p := &Payment{
			ID:                   uuid.New().String(),
			OrderID:              o.ID,
			Amount:               o.Total,
			Fee:                  req.Fee,
			Currency:             currency,
			Method:               method,
			Status:               StatusPending,
			TransactionReference: req.TransactionReference,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := s.payments.Create(ctx, p); err != nil {
			return errors.Wrap(err, "create payment")
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateStatus sets the payment status. Any recognised status may follow any
// other. A nil reference keeps the stored transaction reference.
func (s *Service) UpdateStatus(ctx context.Context, id, raw string, reference *string) (*Payment, error) {
	status, err := ParseStatus(raw)
	if err != nil {
		return nil, err
	}
	return s.setStatus(ctx, id, func(p *Payment) error {
		p.Status = status
		if reference != nil {
			p.TransactionReference = *reference
		}
		return nil
	})
}

// Cancel marks the payment failed. Completed and refunded payments cannot be
// cancelled.
func (s *Service) Cancel(ctx context.Context, id string) (*Payment, error) {
	return s.setStatus(ctx, id, func(p *Payment) error {
		if p.Status == StatusCompleted || p.Status == StatusRefunded {
			return errors.Wrapf(fault.ErrIllegalTransition, "cancel %s payment %s", p.Status, p.ID)
		}
		p.Status = StatusFailed
		return nil
	})
}

// Get returns a payment by id.
func (s *Service) Get(ctx context.Context, id string) (*Payment, error) {
	p, err := s.payments.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get payment")
	}
	return p, nil
}

// GetByOrder returns the payment recorded for an order.
func (s *Service) GetByOrder(ctx context.Context, orderID string) (*Payment, error) {
	p, err := s.payments.GetByOrder(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get payment by order")
	}
	return p, nil
}

func (s *Service) setStatus(ctx context.Context, id string, mutate func(p *Payment) error) (*Payment, error) {
	var updated *Payment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.payments.GetForUpdate(ctx, id)
		if err != nil {
			return errors.Wrap(err, "get payment")
		}
		if err := mutate(p); err != nil {
			return err
		}
		p.UpdatedAt = s.now().UTC()
		if err := s.payments.UpdateStatus(ctx, p.ID, p.Status, p.TransactionReference, p.UpdatedAt); err != nil {
			return errors.Wrap(err, "update payment status")
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
