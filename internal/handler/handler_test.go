package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/gmarket/internal/domain/auth"
	"github.com/xenking/gmarket/internal/domain/cart"
	"github.com/xenking/gmarket/internal/domain/fault"
	"github.com/xenking/gmarket/internal/domain/fulfillment"
	"github.com/xenking/gmarket/internal/domain/inventory"
	"github.com/xenking/gmarket/internal/domain/order"
	"github.com/xenking/gmarket/internal/domain/payment"
	"github.com/xenking/gmarket/internal/domain/product"
	"github.com/xenking/gmarket/internal/domain/shipping"
	"github.com/xenking/gmarket/internal/events"
	"github.com/xenking/gmarket/internal/handler"
	"github.com/xenking/gmarket/internal/storage/memory"
)

// --- Helpers ---

const (
	pepper      = "test-pepper"
	customerKey = "customer-key"
	otherKey    = "other-key"
	staffKey    = "staff-key"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, evs ...events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evs...)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type memIdempotency struct {
	mu          sync.Mutex
	locks       map[string]bool
	results     map[string]string
	rememberErr error
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{locks: map[string]bool{}, results: map[string]string{}}
}

func (m *memIdempotency) TryLock(_ context.Context, scope, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[scope+key] {
		return false, nil
	}
	m.locks[scope+key] = true
	return true, nil
}

func (m *memIdempotency) Release(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, scope+key)
	return nil
}

func (m *memIdempotency) Remember(_ context.Context, scope, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rememberErr != nil {
		return m.rememberErr
	}
	m.results[scope+key] = value
	return nil
}

func (m *memIdempotency) Recall(_ context.Context, scope, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.results[scope+key]
	return v, ok, nil
}

type fixture struct {
	store  *memory.Store
	srv    http.Handler
	events *recorder
	idem   *memIdempotency
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	store.Products().Put(ctx, product.Product{
		ID: "p1", Name: "Kente scarf", Price: decimal.RequireFromString("10.00"), StockQuantity: 5, IsActive: true,
	})
	store.Products().Put(ctx, product.Product{
		ID: "p2", Name: "Shea butter", Price: decimal.RequireFromString("2.50"), StockQuantity: 100, IsActive: true,
	})

	for _, k := range []struct {
		raw, customer string
		scopes        []string
	}{
		{customerKey, "c1", []string{auth.ScopeCustomer}},
		{otherKey, "c2", []string{auth.ScopeCustomer}},
		{staffKey, "ops", []string{auth.ScopeCustomer, auth.ScopeStaff}},
	} {
		store.APIKeys().Put(ctx, auth.APIKeyInfo{
			ID:         k.raw,
			KeyHash:    auth.HashKey([]byte(pepper), k.raw),
			Name:       k.raw,
			CustomerID: k.customer,
			Scopes:     k.scopes,
		})
	}

	ledger := inventory.NewLedger(store.Products())
	orders, err := order.NewService(store, store.Products(), ledger, store.Carts(), store.Orders())
	require.NoError(t, err)
	coordinator, err := fulfillment.NewCoordinator(store, store.Orders(), ledger, store.Payments(), store.Shipments())
	require.NoError(t, err)

	rec := &recorder{}
	idem := newMemIdempotency()
	h := handler.NewHandler(handler.Services{
		Products:    store.Products(),
		Carts:       cart.NewService(store.Carts(), store.Products(), ledger),
		Orders:      orders,
		Fulfillment: coordinator,
		Payments:    payment.NewService(store, store.Orders(), store.Payments()),
		Shipping:    shipping.NewService(store, store.Orders(), store.Shipments(), store.Shipments()),
	},
		handler.NewSecurityHandler(store.APIKeys(), []byte(pepper)),
		handler.WithPublisher(rec),
		handler.WithIdempotency(idem),
	)
	mux := http.NewServeMux()
	h.Register(mux)

	return &fixture{store: store, srv: mux, events: rec, idem: idem}
}

type response struct {
	*httptest.ResponseRecorder
}

func (r response) object(t *testing.T) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(r.Body.Bytes(), &m), r.Body.String())
	return m
}

func (r response) list(t *testing.T) []any {
	t.Helper()
	var l []any
	require.NoError(t, json.Unmarshal(r.Body.Bytes(), &l), r.Body.String())
	return l
}

func (f *fixture) do(t *testing.T, method, path, key, body string, headers ...string) response {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(handler.APIKeyHeader, key)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	return response{w}
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	n, err := f.store.Products().StockLevel(context.Background(), id)
	require.NoError(t, err)
	return n
}

func (f *fixture) placeOrder(t *testing.T, key, body string) map[string]any {
	t.Helper()
	res := f.do(t, http.MethodPost, "/api/orders", key, body)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	return res.object(t)
}

// --- Tests ---

func TestAuthentication(t *testing.T) {
	f := newFixture(t)

	res := f.do(t, http.MethodGet, "/api/cart", "", "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = f.do(t, http.MethodGet, "/api/cart", "wrong", "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "unauthorized", res.object(t)["kind"])

	res = f.do(t, http.MethodGet, "/api/couriers", customerKey, "")
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = f.do(t, http.MethodGet, "/api/couriers", staffKey, "")
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestGetProduct(t *testing.T) {
	f := newFixture(t)

	res := f.do(t, http.MethodGet, "/api/products/p1", "", "")
	require.Equal(t, http.StatusOK, res.Code)
	body := res.object(t)
	assert.Equal(t, "Kente scarf", body["name"])
	assert.Equal(t, "10.00", body["price"])

	res = f.do(t, http.MethodGet, "/api/products/nope", "", "")
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "not_found", res.object(t)["kind"])
}

func TestCartAndCheckout(t *testing.T) {
	f := newFixture(t)

	res := f.do(t, http.MethodPost, "/api/cart/items", customerKey, `{"product_id":"p1","quantity":2}`)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	res = f.do(t, http.MethodPost, "/api/cart/items", customerKey, `{"product_id":"p2","quantity":4}`)
	require.Equal(t, http.StatusOK, res.Code)
	cartBody := res.object(t)
	assert.Equal(t, float64(6), cartBody["total_items"])
	assert.Equal(t, "30.00", cartBody["total_amount"])

	res = f.do(t, http.MethodPost, "/api/cart/items", customerKey, `{"product_id":"p1","quantity":4}`)
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "insufficient_stock", res.object(t)["kind"])

	res = f.do(t, http.MethodPut, "/api/cart/items/p2", customerKey, `{"quantity":2}`)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "25.00", res.object(t)["total_amount"])

	assert.Equal(t, 5, f.stock(t, "p1"), "cart does not reserve")

	res = f.do(t, http.MethodPost, "/api/checkout", customerKey, `{"notes":"leave at the gate"}`)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	o := res.object(t)
	assert.Equal(t, "25.00", o["total_amount"])
	assert.Equal(t, "leave at the gate", o["notes"])
	assert.Equal(t, "pending", o["status"])
	assert.Equal(t, "/api/orders/"+o["id"].(string), res.Header().Get("Location"))
	assert.Equal(t, 3, f.stock(t, "p1"))
	assert.Equal(t, []events.Type{events.OrderPlaced}, f.events.types())

	res = f.do(t, http.MethodGet, "/api/cart", customerKey, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, float64(0), res.object(t)["total_items"])

	res = f.do(t, http.MethodPost, "/api/checkout", customerKey, "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "validation", res.object(t)["kind"])
}

func TestQuantityBounds(t *testing.T) {
	f := newFixture(t)

	for _, tc := range []struct {
		name, method, path, body string
	}{
		{"CartAboveInt32", http.MethodPost, "/api/cart/items", `{"product_id":"p2","quantity":2147483648}`},
		{"CartAboveInt64", http.MethodPost, "/api/cart/items", `{"product_id":"p2","quantity":9223372036854775808}`},
		{"CartFraction", http.MethodPost, "/api/cart/items", `{"product_id":"p2","quantity":1.5}`},
		{"SetAboveInt32", http.MethodPut, "/api/cart/items/p2", `{"quantity":2147483648}`},
		{"OrderAboveInt32", http.MethodPost, "/api/orders", `{"items":[{"product_id":"p2","quantity":2147483648}]}`},
		{"OrderSubCentDiscount", http.MethodPost, "/api/orders", `{"items":[{"product_id":"p2","quantity":1}],"discount":"0.001"}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res := f.do(t, tc.method, tc.path, customerKey, tc.body)
			assert.Equal(t, http.StatusBadRequest, res.Code, res.Body.String())
		})
	}
	assert.Equal(t, 100, f.stock(t, "p2"))
}

func TestRemoveCartItem(t *testing.T) {
	f := newFixture(t)

	res := f.do(t, http.MethodDelete, "/api/cart/items/p1", customerKey, "")
	assert.Equal(t, http.StatusNotFound, res.Code)

	f.do(t, http.MethodPost, "/api/cart/items", customerKey, `{"product_id":"p1","quantity":1}`)
	res = f.do(t, http.MethodDelete, "/api/cart/items/p1", customerKey, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Empty(t, res.object(t)["items"])

	f.do(t, http.MethodPost, "/api/cart/items", customerKey, `{"product_id":"p2","quantity":1}`)
	res = f.do(t, http.MethodDelete, "/api/cart", customerKey, "")
	assert.Equal(t, http.StatusNoContent, res.Code)
}

func TestPlaceOrder_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
		kind fault.Kind
	}{
		{"empty items", `{"items":[]}`, http.StatusBadRequest, fault.KindValidation},
		{"zero quantity", `{"items":[{"product_id":"p1","quantity":0}]}`, http.StatusUnprocessableEntity, fault.KindInvalidOrderItem},
		{"unknown product", `{"items":[{"product_id":"ghost","quantity":1}]}`, http.StatusNotFound, fault.KindNotFound},
		{"insufficient stock", `{"items":[{"product_id":"p1","quantity":6}]}`, http.StatusConflict, fault.KindInsufficientStock},
		{"discount above subtotal", `{"items":[{"product_id":"p2","quantity":1}],"discount":"3.00"}`, http.StatusBadRequest, fault.KindValidation},
		{"malformed json", `{"items":[`, http.StatusBadRequest, fault.KindValidation},
		{"discount not a number", `{"items":[{"product_id":"p2","quantity":1}],"discount":true}`, http.StatusBadRequest, fault.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res := f.do(t, http.MethodPost, "/api/orders", customerKey, tt.body)
			assert.Equal(t, tt.code, res.Code, res.Body.String())
			assert.Equal(t, string(tt.kind), res.object(t)["kind"])
			assert.Equal(t, 5, f.stock(t, "p1"))
			assert.Empty(t, f.events.types())
		})
	}
}

func TestPlaceOrder_Idempotency(t *testing.T) {
	f := newFixture(t)
	body := `{"items":[{"product_id":"p1","quantity":2}],"discount":1}`

	first := f.do(t, http.MethodPost, "/api/orders", customerKey, body, handler.IdempotencyKeyHeader, "k-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.Equal(t, "19.00", first.object(t)["total_amount"])

	again := f.do(t, http.MethodPost, "/api/orders", customerKey, body, handler.IdempotencyKeyHeader, "k-1")
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, "true", again.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, first.object(t)["id"], again.object(t)["id"])
	assert.Equal(t, 3, f.stock(t, "p1"), "stock reserved once")

	other := f.do(t, http.MethodPost, "/api/orders", otherKey, body, handler.IdempotencyKeyHeader, "k-1")
	assert.Equal(t, http.StatusCreated, other.Code, "keys are scoped per customer")

	failed := f.do(t, http.MethodPost, "/api/orders", customerKey,
		`{"items":[{"product_id":"p1","quantity":50}]}`, handler.IdempotencyKeyHeader, "k-2")
	assert.Equal(t, http.StatusConflict, failed.Code)
	locked, err := f.idem.TryLock(context.Background(), "c1", "k-2")
	require.NoError(t, err)
	assert.True(t, locked, "failed request releases its key")

	busy := f.do(t, http.MethodPost, "/api/orders", customerKey, body, handler.IdempotencyKeyHeader, "k-2")
	assert.Equal(t, http.StatusConflict, busy.Code)
	assert.Equal(t, "duplicate_request", busy.object(t)["kind"])
}

func TestPlaceOrder_IdempotencyRememberFails(t *testing.T) {
	f := newFixture(t)
	f.idem.rememberErr = errors.New("redis unavailable")
	body := `{"items":[{"product_id":"p2","quantity":1}]}`

	first := f.do(t, http.MethodPost, "/api/orders", customerKey, body, handler.IdempotencyKeyHeader, "k-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	locked, err := f.idem.TryLock(context.Background(), "c1", "k-1")
	require.NoError(t, err)
	assert.True(t, locked, "key is released when the result cannot be recorded")
	require.NoError(t, f.idem.Release(context.Background(), "c1", "k-1"))

	retry := f.do(t, http.MethodPost, "/api/orders", customerKey, body, handler.IdempotencyKeyHeader, "k-1")
	assert.Equal(t, http.StatusCreated, retry.Code, retry.Body.String())
}

func TestOrderOwnership(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t, customerKey, `{"items":[{"product_id":"p2","quantity":1}]}`)
	path := "/api/orders/" + o["id"].(string)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, path, customerKey, "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, path, staffKey, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, path, otherKey, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, path+"/cancel", otherKey, "").Code)

	res := f.do(t, http.MethodGet, "/api/orders", customerKey, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, res.list(t), 1)
	res = f.do(t, http.MethodGet, "/api/orders", otherKey, "")
	assert.Empty(t, res.list(t))
}

func TestFulfillmentFlow(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t, customerKey, `{"items":[{"product_id":"p1","quantity":1},{"product_id":"p2","quantity":2}]}`)
	id := o["id"].(string)
	orderPath := "/api/orders/" + id

	res := f.do(t, http.MethodPost, orderPath+"/status", staffKey, `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "confirmed", res.object(t)["status"])

	res = f.do(t, http.MethodPost, orderPath+"/status", customerKey, `{"status":"shipped"}`)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = f.do(t, http.MethodPost, orderPath+"/payment", customerKey, `{"method":"MTN Mobile Money","fees":"0.50"}`)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	p := res.object(t)
	assert.Equal(t, "mtn_mobile_money", p["method"])
	assert.Equal(t, "15.00", p["amount"])
	assert.Equal(t, "GHS", p["currency"])

	res = f.do(t, http.MethodPost, orderPath+"/payment", customerKey, `{"method":"vodafone_cash"}`)
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "payment_exists", res.object(t)["kind"])

	res = f.do(t, http.MethodPost, "/api/payments/"+p["id"].(string)+"/status", staffKey,
		`{"status":"completed","transaction_reference":"MTN-77"}`)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "MTN-77", res.object(t)["transaction_reference"])

	res = f.do(t, http.MethodPost, "/api/couriers", staffKey,
		`{"name":"Kojo","phone":"+233201234567","email":"Kojo@Example.com","region":"greater accra"}`)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	courier := res.object(t)
	assert.Equal(t, "Greater Accra", courier["region"])
	assert.Equal(t, "kojo@example.com", courier["email"])

	shipBody := `{"courier_id":"` + courier["id"].(string) + `","address":"12 Oxford St","city":"Accra","region":"Greater Accra"}`
	res = f.do(t, http.MethodPost, orderPath+"/shipment", staffKey, shipBody)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	sh := res.object(t)
	assert.Nil(t, sh["delivery_date"])

	res = f.do(t, http.MethodPost, orderPath+"/shipment", staffKey, shipBody)
	assert.Equal(t, "shipment_exists", res.object(t)["kind"])

	res = f.do(t, http.MethodDelete, "/api/couriers/"+courier["id"].(string), staffKey, "")
	assert.Equal(t, http.StatusConflict, res.Code, "courier with an active shipment stays")

	res = f.do(t, http.MethodPost, orderPath+"/status", staffKey, `{"status":"shipped"}`)
	require.Equal(t, http.StatusOK, res.Code)

	res = f.do(t, http.MethodPost, "/api/shipments/"+sh["id"].(string)+"/status", staffKey,
		`{"status":"delivered","delivery_date":"2026-03-20"}`)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "2026-03-20T00:00:00Z", res.object(t)["delivery_date"])

	res = f.do(t, http.MethodGet, orderPath+"/audit", staffKey, "")
	require.Equal(t, http.StatusOK, res.Code)
	report := res.object(t)
	assert.Equal(t, false, report["consistent"], "order is not yet marked delivered")

	res = f.do(t, http.MethodPost, orderPath+"/status", staffKey, `{"status":"delivered"}`)
	require.Equal(t, http.StatusOK, res.Code)

	res = f.do(t, http.MethodGet, orderPath+"/audit", staffKey, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, true, res.object(t)["consistent"])

	res = f.do(t, http.MethodGet, orderPath+"/shipment", customerKey, "")
	assert.Equal(t, http.StatusOK, res.Code)
	res = f.do(t, http.MethodGet, orderPath+"/payment", customerKey, "")
	assert.Equal(t, http.StatusOK, res.Code)

	res = f.do(t, http.MethodPost, orderPath+"/status", staffKey, `{"status":"pending"}`)
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "illegal_transition", res.object(t)["kind"])

	res = f.do(t, http.MethodPost, orderPath+"/status", staffKey, `{"status":"lost"}`)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "invalid_status", res.object(t)["kind"])

	assert.Equal(t, []events.Type{
		events.OrderPlaced,
		events.OrderStatusChanged,
		events.PaymentInitiated,
		events.PaymentStatusChanged,
		events.ShipmentCreated,
		events.OrderStatusChanged,
		events.ShipmentStatusChanged,
		events.OrderStatusChanged,
	}, f.events.types())
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t, customerKey, `{"items":[{"product_id":"p1","quantity":4}]}`)
	path := "/api/orders/" + o["id"].(string)
	require.Equal(t, 1, f.stock(t, "p1"))

	res := f.do(t, http.MethodPost, path+"/cancel", customerKey, "")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "cancelled", res.object(t)["status"])
	assert.Equal(t, 5, f.stock(t, "p1"))
	assert.Contains(t, f.events.types(), events.OrderCancelled)

	res = f.do(t, http.MethodPost, path+"/cancel", customerKey, "")
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, 5, f.stock(t, "p1"))
}

func TestUpdateOrderDetails(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t, customerKey, `{"items":[{"product_id":"p1","quantity":2}]}`)
	path := "/api/orders/" + o["id"].(string)

	res := f.do(t, http.MethodPatch, path, customerKey, `{"notes":"ring twice"}`)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "ring twice", res.object(t)["notes"])

	res = f.do(t, http.MethodPatch, path, customerKey, `{"discount":"5"}`)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = f.do(t, http.MethodPatch, path, staffKey, `{"discount":"5","notes":null}`)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	body := res.object(t)
	assert.Equal(t, "15.00", body["total_amount"])
	assert.Equal(t, "", body["notes"])
}

func TestCouriers(t *testing.T) {
	f := newFixture(t)

	res := f.do(t, http.MethodPost, "/api/couriers", staffKey, `{"name":"Ama","phone":"+233501112222","region":"Mars"}`)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = f.do(t, http.MethodPost, "/api/couriers", staffKey, `{"name":"Ama","phone":"+233501112222","region":"Volta"}`)
	require.Equal(t, http.StatusCreated, res.Code)
	id := res.object(t)["id"].(string)

	res = f.do(t, http.MethodGet, "/api/couriers?region=volta&active=true", staffKey, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, res.list(t), 1)

	res = f.do(t, http.MethodDelete, "/api/couriers/"+id, staffKey, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, false, res.object(t)["is_active"])

	res = f.do(t, http.MethodGet, "/api/couriers?active=true", staffKey, "")
	assert.Empty(t, res.list(t))

	res = f.do(t, http.MethodGet, "/api/couriers?active=maybe", staffKey, "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestUpdateCourier(t *testing.T) {
	f := newFixture(t)

	res := f.do(t, http.MethodPost, "/api/couriers", staffKey, `{"name":"Ama","phone":"+233501112222","region":"Volta"}`)
	require.Equal(t, http.StatusCreated, res.Code)
	id := res.object(t)["id"].(string)
	res = f.do(t, http.MethodPost, "/api/couriers", staffKey, `{"name":"Kofi","phone":"+233503334444","region":"Oti"}`)
	require.Equal(t, http.StatusCreated, res.Code)

	res = f.do(t, http.MethodPut, "/api/couriers/"+id, customerKey, `{"name":"Ama B"}`)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = f.do(t, http.MethodPut, "/api/couriers/"+id, staffKey,
		`{"name":"Ama B","email":" AMA@Example.COM ","region":"ashanti"}`)
	require.Equal(t, http.StatusOK, res.Code)
	body := res.object(t)
	assert.Equal(t, "Ama B", body["name"])
	assert.Equal(t, "ama@example.com", body["email"])
	assert.Equal(t, "Ashanti", body["region"])
	assert.Equal(t, "+233501112222", body["phone"])

	for _, tc := range []struct {
		name string
		body string
		code int
	}{
		{"DuplicatePhone", `{"phone":"+233503334444"}`, http.StatusBadRequest},
		{"UnknownRegion", `{"region":"Mars"}`, http.StatusBadRequest},
		{"EmptyName", `{"name":"  "}`, http.StatusBadRequest},
		{"Deactivate", `{"is_active":false}`, http.StatusOK},
		{"Reactivate", `{"is_active":true}`, http.StatusOK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res := f.do(t, http.MethodPut, "/api/couriers/"+id, staffKey, tc.body)
			assert.Equal(t, tc.code, res.Code)
		})
	}

	res = f.do(t, http.MethodPut, "/api/couriers/missing", staffKey, `{"name":"Nobody"}`)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fault.NotFoundf("x"), http.StatusNotFound},
		{&inventory.InsufficientStockError{ProductID: "p"}, http.StatusConflict},
		{&order.InvalidItemError{ProductID: "p"}, http.StatusUnprocessableEntity},
		{errors.Wrap(fault.ErrPaymentExists, "o"), http.StatusConflict},
		{errors.Wrap(fault.ErrShipmentExists, "o"), http.StatusConflict},
		{errors.Wrap(fault.ErrInvalidMethod, "m"), http.StatusBadRequest},
		{errors.Wrap(fault.ErrInvalidStatus, "s"), http.StatusBadRequest},
		{&fulfillment.TransitionError{}, http.StatusConflict},
		{fault.Validationf("bad"), http.StatusBadRequest},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, handler.StatusOf(tt.err), "%v", tt.err)
	}
}
