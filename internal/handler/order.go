package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/gmarket/internal/domain/auth"
	"github.com/xenking/gmarket/internal/domain/fault"
	"github.com/xenking/gmarket/internal/domain/order"
	"github.com/xenking/gmarket/internal/events"
)

// IdempotencyKeyHeader makes order placement safe to retry.
const IdempotencyKeyHeader = "Idempotency-Key"

func errOrderNotFound(id string) error {
	return fault.NotFoundf("order %s", id)
}

// orderTerms are the optional pricing fields shared by placement and checkout.
type orderTerms struct {
	discount decimal.Decimal
	currency string
	notes    string
}

func (t *orderTerms) decode(d *jx.Decoder, key string) (bool, error) {
	var err error
	switch key {
	case "discount", "discount_amount":
		t.discount, err = decodeDecimal(d, key)
	case "currency":
		t.currency, err = d.Str()
	case "notes":
		t.notes, err = d.Str()
	default:
		return false, nil
	}
	return true, err
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var (
		terms orderTerms
		lines []order.Line
	)
	err := readBody(w, r, func(d *jx.Decoder, key string) error {
		if ok, err := terms.decode(d, key); ok || err != nil {
			return err
		}
		if key != "items" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			var l order.Line
			if err := d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
				switch string(key) {
				case "product_id":
					l.ProductID, err = d.Str()
				case "quantity":
					l.Quantity, err = decodeQuantity(d)
				default:
					err = d.Skip()
				}
				return err
			}); err != nil {
				return err
			}
			lines = append(lines, l)
			return nil
		})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	customerID := caller(r.Context()).CustomerID
	h.placeIdempotent(w, r, func(ctx context.Context) (*order.Order, error) {
		return h.svc.Orders.PlaceOrder(ctx, order.PlaceOrderRequest{
			CustomerID: customerID,
			Lines:      lines,
			Discount:   terms.discount,
			Currency:   terms.currency,
			Notes:      terms.notes,
		})
	})
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var terms orderTerms
	err := readBody(w, r, func(d *jx.Decoder, key string) error {
		if ok, err := terms.decode(d, key); ok || err != nil {
			return err
		}
		return d.Skip()
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	customerID := caller(r.Context()).CustomerID
	h.placeIdempotent(w, r, func(ctx context.Context) (*order.Order, error) {
		return h.svc.Orders.Checkout(ctx, order.CheckoutRequest{
			CustomerID: customerID,
			Discount:   terms.discount,
			Currency:   terms.currency,
			Notes:      terms.notes,
		})
	})
}

// placeIdempotent runs place at most once per (customer, Idempotency-Key).
// A repeated key returns the recorded order with 200; a key whose first
// request is still running gets 409. Without a key or a store, place runs
// unconditionally.
func (h *Handler) placeIdempotent(w http.ResponseWriter, r *http.Request, place func(ctx context.Context) (*order.Order, error)) {
	ctx := r.Context()
	key := r.Header.Get(IdempotencyKeyHeader)
	if h.idem == nil || key == "" {
		h.respondPlaced(w, r, place)
		return
	}
	scope := caller(ctx).CustomerID
	lg := zctx.From(ctx).With(zap.String("idempotency_key", key))

	id, found, err := h.idem.Recall(ctx, scope, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if found {
		o, err := h.svc.Orders.Get(ctx, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Idempotent-Replayed", "true")
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
		return
	}

	locked, err := h.idem.TryLock(ctx, scope, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !locked {
		writeProblem(w, http.StatusConflict, "duplicate_request", "a request with this idempotency key is in progress")
		return
	}

	o := h.respondPlaced(w, r, place)
	if o == nil {
		if err := h.idem.Release(ctx, scope, key); err != nil {
			lg.Warn("Release idempotency key failed", zap.Error(err))
		}
		return
	}
	if err := h.idem.Remember(ctx, scope, key, o.ID); err != nil {
		// Without a recorded result the lock would turn retries into 409s
		// until it expires.
		lg.Warn("Remember idempotency key failed", zap.Error(err), zap.String("order_id", o.ID))
		if err := h.idem.Release(ctx, scope, key); err != nil {
			lg.Warn("Release idempotency key failed", zap.Error(err))
		}
	}
}

// respondPlaced writes the outcome of place and returns the order on success.
func (h *Handler) respondPlaced(w http.ResponseWriter, r *http.Request, place func(ctx context.Context) (*order.Order, error)) *order.Order {
	o, err := place(r.Context())
	if err != nil {
		writeError(w, r, err)
		return nil
	}
	h.publish(r.Context(), events.NewOrderPlaced(o))
	w.Header().Set("Location", "/api/orders/"+o.ID)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
	return o
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.Orders.ListByCustomer(r.Context(), caller(r.Context()).CustomerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.ownedOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) updateOrderDetails(w http.ResponseWriter, r *http.Request) {
	var upd order.DetailsUpdate
	err := readBody(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "notes":
			notes := ""
			if d.Next() == jx.Null {
				upd.Notes = &notes
				return d.Null()
			}
			notes, err := d.Str()
			upd.Notes = &notes
			return err
		case "discount", "discount_amount":
			v, err := decodeDecimal(d, key)
			upd.Discount = &v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if upd.Discount != nil && !caller(r.Context()).HasScope(auth.ScopeStaff) {
		writeProblem(w, http.StatusForbidden, "forbidden", "only staff may change the discount")
		return
	}

	id := r.PathValue("id")
	if _, err := h.ownedOrder(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.svc.Orders.UpdateDetails(r.Context(), id, upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.ownedOrder(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.svc.Fulfillment.CancelOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.publish(r.Context(), events.NewOrderStatusChanged(o))
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	status, err := readStatus(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.svc.Fulfillment.UpdateStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.publish(r.Context(), events.NewOrderStatusChanged(o))
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) auditOrder(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Fulfillment.Audit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeReport(e, rep) })
}

// readStatus decodes a {"status": "..."} body.
func readStatus(w http.ResponseWriter, r *http.Request) (string, error) {
	var status string
	err := readBody(w, r, func(d *jx.Decoder, key string) (err error) {
		if key != "status" {
			return d.Skip()
		}
		status, err = d.Str()
		return err
	})
	if err != nil {
		return "", err
	}
	if status == "" {
		return "", fault.Validationf("status is required")
	}
	return status, nil
}
