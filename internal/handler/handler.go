package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/gmarket/internal/domain/auth"
	"github.com/xenking/gmarket/internal/domain/cart"
	"github.com/xenking/gmarket/internal/domain/fulfillment"
	"github.com/xenking/gmarket/internal/domain/order"
	"github.com/xenking/gmarket/internal/domain/payment"
	"github.com/xenking/gmarket/internal/domain/product"
	"github.com/xenking/gmarket/internal/domain/shipping"
	"github.com/xenking/gmarket/internal/events"
)

// IdempotencyStore remembers which order an Idempotency-Key produced. It is
// satisfied by *redis.IdempotencyStore.
type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Release(ctx context.Context, scope, key string) error
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}

// Services groups the domain services the HTTP API delegates to.
type Services struct {
	Products    product.Repository
	Carts       *cart.Service
	Orders      *order.Service
	Fulfillment *fulfillment.Coordinator
	Payments    *payment.Service
	Shipping    *shipping.Service
}

// Option configures a Handler.
type Option func(*Handler)

// WithPublisher sets the sink for lifecycle events. Events are dropped by
// default.
func WithPublisher(p events.Publisher) Option {
	return func(h *Handler) { h.events = p }
}

// WithIdempotency enables the Idempotency-Key header on order placement.
func WithIdempotency(s IdempotencyStore) Option {
	return func(h *Handler) { h.idem = s }
}

// Handler serves the JSON API under /api.
type Handler struct {
	svc    Services
	sec    *SecurityHandler
	events events.Publisher
	idem   IdempotencyStore
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(svc Services, sec *SecurityHandler, opts ...Option) *Handler {
	h := &Handler{
		svc:    svc,
		sec:    sec,
		events: events.Nop{},
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register mounts every API route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	customer := func(fn http.HandlerFunc) http.Handler { return h.sec.Authenticate(fn) }
	staff := func(fn http.HandlerFunc) http.Handler { return h.sec.RequireScope(auth.ScopeStaff, fn) }

	mux.HandleFunc("GET /api/products/{id}", h.getProduct)

	mux.Handle("GET /api/cart", customer(h.getCart))
	mux.Handle("DELETE /api/cart", customer(h.clearCart))
	mux.Handle("POST /api/cart/items", customer(h.addCartItem))
	mux.Handle("PUT /api/cart/items/{productID}", customer(h.setCartItem))
	mux.Handle("DELETE /api/cart/items/{productID}", customer(h.removeCartItem))
	mux.Handle("POST /api/checkout", customer(h.checkout))

	mux.Handle("POST /api/orders", customer(h.placeOrder))
	mux.Handle("GET /api/orders", customer(h.listOrders))
	mux.Handle("GET /api/orders/{id}", customer(h.getOrder))
	mux.Handle("PATCH /api/orders/{id}", customer(h.updateOrderDetails))
	mux.Handle("POST /api/orders/{id}/cancel", customer(h.cancelOrder))
	mux.Handle("POST /api/orders/{id}/status", staff(h.updateOrderStatus))
	mux.Handle("GET /api/orders/{id}/audit", staff(h.auditOrder))

	mux.Handle("POST /api/orders/{id}/payment", customer(h.initiatePayment))
	mux.Handle("GET /api/orders/{id}/payment", customer(h.getOrderPayment))
	mux.Handle("GET /api/payments/{id}", staff(h.getPayment))
	mux.Handle("POST /api/payments/{id}/status", staff(h.updatePaymentStatus))
	mux.Handle("POST /api/payments/{id}/cancel", staff(h.cancelPayment))

	mux.Handle("POST /api/orders/{id}/shipment", staff(h.createShipment))
	mux.Handle("GET /api/orders/{id}/shipment", customer(h.getOrderShipment))
	mux.Handle("GET /api/shipments/{id}", staff(h.getShipment))
	mux.Handle("POST /api/shipments/{id}/status", staff(h.updateShipmentStatus))
	mux.Handle("POST /api/shipments/{id}/cancel", staff(h.cancelShipment))

	mux.Handle("GET /api/couriers", staff(h.listCouriers))
	mux.Handle("POST /api/couriers", staff(h.createCourier))
	mux.Handle("GET /api/couriers/{id}", staff(h.getCourier))
	mux.Handle("PUT /api/couriers/{id}", staff(h.updateCourier))
	mux.Handle("DELETE /api/couriers/{id}", staff(h.deactivateCourier))
}

// publish hands events to the sink after the change is committed. A failed
// publish is logged and does not fail the request.
func (h *Handler) publish(ctx context.Context, evs ...events.Event) {
	if err := h.events.Publish(ctx, evs...); err != nil {
		zctx.From(ctx).Warn("Publish events failed", zap.Error(err), zap.Int("count", len(evs)))
	}
}

func caller(ctx context.Context) *auth.APIKeyInfo {
	k, _ := auth.FromContext(ctx)
	return k
}

// ownedOrder returns the order if the caller placed it or holds the staff
// scope. Other callers get NotFound so order ids cannot be enumerated.
func (h *Handler) ownedOrder(ctx context.Context, id string) (*order.Order, error) {
	o, err := h.svc.Orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if k := caller(ctx); k == nil || (k.CustomerID != o.CustomerID && !k.HasScope(auth.ScopeStaff)) {
		return nil, errOrderNotFound(id)
	}
	return o, nil
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Products.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, p) })
}
