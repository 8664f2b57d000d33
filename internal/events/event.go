// Package events publishes fulfillment lifecycle events after the changes
// they describe have been committed.
package events

import (
	"strings"
	"time"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/gmarket/internal/domain/order"
	"github.com/xenking/gmarket/internal/domain/payment"
	"github.com/xenking/gmarket/internal/domain/shipping"
)

// Type names an event. The segment before the first dot is the family, which
// selects the Kafka topic.
type Type string

const (
	OrderPlaced           Type = "order.placed"
	OrderStatusChanged    Type = "order.status_changed"
	OrderCancelled        Type = "order.cancelled"
	PaymentInitiated      Type = "payment.initiated"
	PaymentStatusChanged  Type = "payment.status_changed"
	ShipmentCreated       Type = "shipment.created"
	ShipmentStatusChanged Type = "shipment.status_changed"
)

// Family returns the part of t before the first dot.
func (t Type) Family() string {
	family, _, _ := strings.Cut(string(t), ".")
	return family
}

// Event is one lifecycle notification. Key is the order id, so every event of
// an order lands on the same partition and keeps its order.
type Event struct {
	ID         string
	Type       Type
	Key        string
	OccurredAt time.Time
	// Data is the JSON object describing the entity after the change.
	Data []byte
}

// Encode renders the event envelope as JSON.
func (ev Event) Encode() []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(ev.ID) })
		e.Field("type", func(e *jx.Encoder) { e.Str(string(ev.Type)) })
		e.Field("key", func(e *jx.Encoder) { e.Str(ev.Key) })
		e.Field("occurred_at", func(e *jx.Encoder) { e.Str(ev.OccurredAt.UTC().Format(time.RFC3339Nano)) })
		e.Field("data", func(e *jx.Encoder) {
			if len(ev.Data) == 0 {
				e.Null()
				return
			}
			e.Raw(ev.Data)
		})
	})
	return e.Bytes()
}

func newEvent(t Type, key string, at time.Time, data func(e *jx.Encoder)) Event {
	var e jx.Encoder
	e.Obj(data)
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		Key:        key,
		OccurredAt: at,
		Data:       e.Bytes(),
	}
}

// NewOrderPlaced describes a freshly committed order.
func NewOrderPlaced(o *order.Order) Event {
	return newEvent(OrderPlaced, o.ID, o.CreatedAt, func(e *jx.Encoder) {
		encodeOrder(e, o)
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("unit_price", func(e *jx.Encoder) { e.Str(it.UnitPrice.StringFixed(2)) })
					})
				}
			})
		})
	})
}

// NewOrderStatusChanged describes an order after a status transition.
func NewOrderStatusChanged(o *order.Order) Event {
	t := OrderStatusChanged
	if o.Status == order.StatusCancelled {
		t = OrderCancelled
	}
	return newEvent(t, o.ID, o.UpdatedAt, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Field("order_id", func(e *jx.Encoder) { e.Str(o.ID) })
	e.Field("order_number", func(e *jx.Encoder) { e.Str(o.Number) })
	e.Field("customer_id", func(e *jx.Encoder) { e.Str(o.CustomerID) })
	e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
	e.Field("total", func(e *jx.Encoder) { e.Str(o.Total.StringFixed(2)) })
	e.Field("currency", func(e *jx.Encoder) { e.Str(o.Currency) })
}

// NewPaymentInitiated describes a newly recorded payment.
func NewPaymentInitiated(p *payment.Payment) Event {
	return newEvent(PaymentInitiated, p.OrderID, p.CreatedAt, func(e *jx.Encoder) {
		encodePayment(e, p)
	})
}

// NewPaymentStatusChanged describes a payment after a status update.
func NewPaymentStatusChanged(p *payment.Payment) Event {
	return newEvent(PaymentStatusChanged, p.OrderID, p.UpdatedAt, func(e *jx.Encoder) {
		encodePayment(e, p)
	})
}

func encodePayment(e *jx.Encoder, p *payment.Payment) {
	e.Field("payment_id", func(e *jx.Encoder) { e.Str(p.ID) })
	e.Field("order_id", func(e *jx.Encoder) { e.Str(p.OrderID) })
	e.Field("method", func(e *jx.Encoder) { e.Str(string(p.Method)) })
	e.Field("status", func(e *jx.Encoder) { e.Str(string(p.Status)) })
	e.Field("amount", func(e *jx.Encoder) { e.Str(p.Amount.StringFixed(2)) })
	e.Field("currency", func(e *jx.Encoder) { e.Str(p.Currency) })
	if p.TransactionReference != "" {
		e.Field("transaction_reference", func(e *jx.Encoder) { e.Str(p.TransactionReference) })
	}
}

// NewShipmentCreated describes a newly created shipment.
func NewShipmentCreated(sh *shipping.Shipment) Event {
	return newEvent(ShipmentCreated, sh.OrderID, sh.CreatedAt, func(e *jx.Encoder) {
		encodeShipment(e, sh)
	})
}

// NewShipmentStatusChanged describes a shipment after a status update.
func NewShipmentStatusChanged(sh *shipping.Shipment) Event {
	return newEvent(ShipmentStatusChanged, sh.OrderID, sh.UpdatedAt, func(e *jx.Encoder) {
		encodeShipment(e, sh)
	})
}

func encodeShipment(e *jx.Encoder, sh *shipping.Shipment) {
	e.Field("shipment_id", func(e *jx.Encoder) { e.Str(sh.ID) })
	e.Field("order_id", func(e *jx.Encoder) { e.Str(sh.OrderID) })
	e.Field("courier_id", func(e *jx.Encoder) { e.Str(sh.CourierID) })
	e.Field("status", func(e *jx.Encoder) { e.Str(string(sh.Status)) })
	e.Field("region", func(e *jx.Encoder) { e.Str(sh.Region) })
	if sh.DeliveryDate != nil {
		e.Field("delivery_date", func(e *jx.Encoder) { e.Str(sh.DeliveryDate.UTC().Format(time.RFC3339)) })
	}
}
