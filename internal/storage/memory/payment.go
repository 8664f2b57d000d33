package memory

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/gmarket/internal/domain/fault"
	"github.com/xenking/gmarket/internal/domain/payment"
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository stores payments, at most one per order.
type PaymentRepository struct {
	s *Store
}

// Payments returns the store's payment repository.
func (s *Store) Payments() *PaymentRepository {
	return &PaymentRepository{s: s}
}

// Create stores a payment unless its order already has one.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.st.paymentByOrder[p.OrderID]; ok {
		return errors.Wrapf(fault.ErrPaymentExists, "order %s", p.OrderID)
	}
	r.s.st.payments[p.ID] = *p
	r.s.st.paymentByOrder[p.OrderID] = p.ID
	return nil
}

// Get returns a payment by id.
func (r *PaymentRepository) Get(ctx context.Context, id string) (*payment.Payment, error) {
	defer r.s.lock(ctx)()
	return r.get(id)
}

// GetForUpdate returns a payment by id.
func (r *PaymentRepository) GetForUpdate(ctx context.Context, id string) (*payment.Payment, error) {
	defer r.s.lock(ctx)()
	return r.get(id)
}

// GetByOrder returns the payment of an order.
func (r *PaymentRepository) GetByOrder(ctx context.Context, orderID string) (*payment.Payment, error) {
	defer r.s.lock(ctx)()
	id, ok := r.s.st.paymentByOrder[orderID]
	if !ok {
		return nil, fault.NotFoundf("payment for order %s", orderID)
	}
	return r.get(id)
}

// UpdateStatus sets status and transaction reference.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id string, status payment.Status, reference string, at time.Time) error {
	defer r.s.lock(ctx)()
	p, ok := r.s.st.payments[id]
	if !ok {
		return fault.NotFoundf("payment %s", id)
	}
	p.Status = status
	p.TransactionReference = reference
	p.UpdatedAt = at
	r.s.st.payments[id] = p
	return nil
}

func (r *PaymentRepository) get(id string) (*payment.Payment, error) {
	p, ok := r.s.st.payments[id]
	if !ok {
		return nil, fault.NotFoundf("payment %s", id)
	}
	return &p, nil
}
