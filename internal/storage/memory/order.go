package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/gmarket/internal/domain/fault"
	"github.com/xenking/gmarket/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository stores orders and their items.
type OrderRepository struct {
	s *Store
}

// Orders returns the store's order repository.
func (s *Store) Orders() *OrderRepository {
	return &OrderRepository{s: s}
}

// NextNumber advances the order number sequence.
func (r *OrderRepository) NextNumber(ctx context.Context) (int64, error) {
	defer r.s.lock(ctx)()
	r.s.st.orderSeq++
	return r.s.st.orderSeq, nil
}

// Create stores a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.st.orders[o.ID]; ok {
		return fault.Validationf("order %s already exists", o.ID)
	}
	for _, existing := range r.s.st.orders {
		if existing.Number == o.Number {
			return fault.Validationf("order number %s already exists", o.Number)
		}
	}
	r.s.st.orders[o.ID] = cloneOrder(*o)
	return nil
}

// Get returns an order by id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	defer r.s.lock(ctx)()
	return r.get(id)
}

// GetForUpdate returns an order by id. The store lock already serialises
// transactions, so no row lock is needed.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	defer r.s.lock(ctx)()
	return r.get(id)
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	defer r.s.lock(ctx)()
	var out []order.Order
	for _, o := range r.s.st.orders {
		if o.CustomerID == customerID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Number > out[j].Number
	})
	return out, nil
}

// UpdateStatus sets the order status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status, at time.Time) error {
	defer r.s.lock(ctx)()
	o, ok := r.s.st.orders[id]
	if !ok {
		return fault.NotFoundf("order %s", id)
	}
	o.Status = status
	o.UpdatedAt = at
	r.s.st.orders[id] = o
	return nil
}

// UpdateDetails sets notes, discount and total.
func (r *OrderRepository) UpdateDetails(ctx context.Context, id, notes string, discount, total decimal.Decimal, at time.Time) error {
	defer r.s.lock(ctx)()
	o, ok := r.s.st.orders[id]
	if !ok {
		return fault.NotFoundf("order %s", id)
	}
	o.Notes = notes
	o.Discount = discount
	o.Total = total
	o.UpdatedAt = at
	r.s.st.orders[id] = o
	return nil
}

func (r *OrderRepository) get(id string) (*order.Order, error) {
	o, ok := r.s.st.orders[id]
	if !ok {
		return nil, fault.NotFoundf("order %s", id)
	}
	o = cloneOrder(o)
	return &o, nil
}
