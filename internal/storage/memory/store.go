// Package memory is an in-process store for tests and local development.
//
// Every operation and every transaction runs under one store mutex. InTx
// snapshots the state before running fn and restores it when fn fails, which
// gives the same atomicity and isolation the PostgreSQL store provides through
// row locks and conditional updates.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xenking/gmarket/internal/domain/auth"
	"github.com/xenking/gmarket/internal/domain/cart"
	"github.com/xenking/gmarket/internal/domain/order"
	"github.com/xenking/gmarket/internal/domain/payment"
	"github.com/xenking/gmarket/internal/domain/product"
	"github.com/xenking/gmarket/internal/domain/shipping"
	"github.com/xenking/gmarket/internal/domain/txn"
)

var _ txn.Transactor = (*Store)(nil)

type state struct {
	products map[string]product.Product
	// carts is keyed by customer id, cartOwner maps cart id to customer id.
	carts     map[string]cart.Cart
	cartOwner map[string]string

	orders   map[string]order.Order
	orderSeq int64

	payments       map[string]payment.Payment
	paymentByOrder map[string]string

	shipments       map[string]shipping.Shipment
	shipmentByOrder map[string]string
	couriers        map[string]shipping.Courier

	apikeys map[string]auth.APIKeyInfo
}

func newState() state {
	return state{
		products:        map[string]product.Product{},
		carts:           map[string]cart.Cart{},
		cartOwner:       map[string]string{},
		orders:          map[string]order.Order{},
		payments:        map[string]payment.Payment{},
		paymentByOrder:  map[string]string{},
		shipments:       map[string]shipping.Shipment{},
		shipmentByOrder: map[string]string{},
		couriers:        map[string]shipping.Courier{},
		apikeys:         map[string]auth.APIKeyInfo{},
	}
}

func (st state) clone() state {
	c := newState()
	for k, v := range st.products {
		c.products[k] = v
	}
	for k, v := range st.carts {
		c.carts[k] = cloneCart(v)
	}
	for k, v := range st.cartOwner {
		c.cartOwner[k] = v
	}
	for k, v := range st.orders {
		c.orders[k] = cloneOrder(v)
	}
	c.orderSeq = st.orderSeq
	for k, v := range st.payments {
		c.payments[k] = v
	}
	for k, v := range st.paymentByOrder {
		c.paymentByOrder[k] = v
	}
	for k, v := range st.shipments {
		c.shipments[k] = cloneShipment(v)
	}
	for k, v := range st.shipmentByOrder {
		c.shipmentByOrder[k] = v
	}
	for k, v := range st.couriers {
		c.couriers[k] = v
	}
	for k, v := range st.apikeys {
		c.apikeys[k] = v
	}
	return c
}

// Store holds all entities in memory.
type Store struct {
	mu  sync.Mutex
	st  state
	now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

type txKey struct{}

// InTx runs fn with the store locked. State changes made by fn are discarded
// if it returns an error or panics. Nested calls join the outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if p := recover(); p != nil {
			s.st = snapshot
			panic(p)
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock acquires the store mutex unless ctx already runs inside a transaction
// of this store, and returns the matching release function.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func cloneCart(c cart.Cart) cart.Cart {
	c.Lines = append([]cart.Line(nil), c.Lines...)
	return c
}

func cloneOrder(o order.Order) order.Order {
	o.Items = append([]order.Item(nil), o.Items...)
	return o
}

func cloneShipment(sh shipping.Shipment) shipping.Shipment {
	if sh.DeliveryDate != nil {
		d := *sh.DeliveryDate
		sh.DeliveryDate = &d
	}
	return sh
}
