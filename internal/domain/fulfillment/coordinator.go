package fulfillment

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/gmarket/internal/domain/order"
	"github.com/xenking/gmarket/internal/domain/payment"
	"github.com/xenking/gmarket/internal/domain/shipping"
	"github.com/xenking/gmarket/internal/domain/txn"
)

// Releaser returns stock. It is satisfied by *inventory.Ledger.
type Releaser interface {
	Release(ctx context.Context, productID string, qty int) error
}

// PaymentLookup finds the payment of an order.
type PaymentLookup interface {
	GetByOrder(ctx context.Context, orderID string) (*payment.Payment, error)
}

// ShipmentLookup finds the shipment of an order.
type ShipmentLookup interface {
	GetByOrder(ctx context.Context, orderID string) (*shipping.Shipment, error)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source for status timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithTracerProvider sets the tracer provider for transition spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) { c.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider for the transition counter.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Coordinator) { c.meterProvider = mp }
}

// Coordinator drives order status changes.
type Coordinator struct {
	tx        txn.Transactor
	orders    order.Repository
	stock     Releaser
	payments  PaymentLookup
	shipments ShipmentLookup

	now            func() time.Time
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	tracer      trace.Tracer
	transitions metric.Int64Counter
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(
	tx txn.Transactor,
	orders order.Repository,
	stock Releaser,
	payments PaymentLookup,
	shipments ShipmentLookup,
	opts ...Option,
) (*Coordinator, error) {
	c := &Coordinator{
		tx:             tx,
		orders:         orders,
		stock:          stock,
		payments:       payments,
		shipments:      shipments,
		now:            time.Now,
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, o := range opts {
		o(c)
	}

	c.tracer = c.tracerProvider.Tracer("gmarket/fulfillment")
	var err error
	if c.transitions, err = c.meterProvider.Meter("gmarket/fulfillment").Int64Counter(
		"gmarket.orders.transitions",
		metric.WithDescription("Committed order status changes"),
	); err != nil {
		return nil, errors.Wrap(err, "transitions counter")
	}
	return c, nil
}

// UpdateStatus moves the order to the status named by raw. The order row is
// locked for the read-check-write. Moving to cancelled releases stock exactly
// like CancelOrder.
func (c *Coordinator) UpdateStatus(ctx context.Context, orderID, raw string) (*order.Order, error) {
	to, err := order.ParseStatus(raw)
	if err != nil {
		return nil, err
	}
	return c.transition(ctx, orderID, to)
}

// CancelOrder cancels a pending or confirmed order and returns every item's
// quantity to stock in the same transaction.
func (c *Coordinator) CancelOrder(ctx context.Context, orderID string) (*order.Order, error) {
	return c.transition(ctx, orderID, order.StatusCancelled)
}

func (c *Coordinator) transition(ctx context.Context, orderID string, to order.Status) (_ *order.Order, rerr error) {
	ctx, span := c.tracer.Start(ctx, "fulfillment.Transition",
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.String("order.status.to", string(to)),
		),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	var (
		updated *order.Order
		from    order.Status
	)
	err := c.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := c.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "get order")
		}
		from = o.Status
		if !CanTransition(from, to) {
			return &TransitionError{OrderID: o.ID, From: from, To: to}
		}

		if to == order.StatusCancelled {
			for _, it := range releaseLines(o.Items) {
				if err := c.stock.Release(ctx, it.ProductID, it.Quantity); err != nil {
					return err
				}
			}
		}

		o.Status = to
		o.UpdatedAt = c.now().UTC()
		if err := c.orders.UpdateStatus(ctx, o.ID, to, o.UpdatedAt); err != nil {
			return errors.Wrap(err, "update order status")
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
	return updated, nil
}

// releaseLines sums item quantities per product in product id order.
func releaseLines(items []order.Item) []order.Line {
	byProduct := make(map[string]int, len(items))
	for _, it := range items {
		byProduct[it.ProductID] += it.Quantity
	}
	out := make([]order.Line, 0, len(byProduct))
	for id, qty := range byProduct {
		out = append(out, order.Line{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
