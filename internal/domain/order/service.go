package order

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/gmarket/internal/domain/cart"
	"github.com/xenking/gmarket/internal/domain/fault"
	"github.com/xenking/gmarket/internal/domain/product"
	"github.com/xenking/gmarket/internal/domain/txn"
)

// Reserver takes stock for an order line. It is satisfied by *inventory.Ledger.
type Reserver interface {
	Reserve(ctx context.Context, productID string, qty int) error
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	CustomerID string
	Lines      []Line
	Discount   decimal.Decimal
	Currency   string
	Notes      string
	// CartID, when set, names the cart cleared in the placement transaction.
	CartID string
}

// CheckoutRequest places an order from the customer's current cart.
type CheckoutRequest struct {
	CustomerID string
	Discount   decimal.Decimal
	Currency   string
	Notes      string
}

// DetailsUpdate changes the editable fields of an order. Nil fields are left
// unchanged.
type DetailsUpdate struct {
	Notes    *string
	Discount *decimal.Decimal
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for timestamps and order numbers.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTracerProvider sets the tracer provider used for placement spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider used for order counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// Service encapsulates order placement business logic.
type Service struct {
	tx       txn.Transactor
	products product.Repository
	stock    Reserver
	carts    cart.Repository
	orders   Repository

	now            func() time.Time
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	tracer trace.Tracer
	placed metric.Int64Counter
	failed metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	tx txn.Transactor,
	products product.Repository,
	stock Reserver,
	carts cart.Repository,
	orders Repository,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		tx:             tx,
		products:       products,
		stock:          stock,
		carts:          carts,
		orders:         orders,
		now:            time.Now,
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	s.tracer = s.tracerProvider.Tracer("gmarket/order")
	meter := s.meterProvider.Meter("gmarket/order")

	var err error
	if s.placed, err = meter.Int64Counter("gmarket.orders.placed",
		metric.WithDescription("Orders committed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders placed counter")
	}
	if s.failed, err = meter.Int64Counter("gmarket.orders.failed",
		metric.WithDescription("Order placements rolled back"),
	); err != nil {
		return nil, errors.Wrap(err, "orders failed counter")
	}
	return s, nil
}

// PlaceOrder validates the request and, inside one transaction, snapshots
// prices, reserves stock for every line, numbers and persists the order and
// clears the originating cart. Any failure leaves no trace in the store.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(
			attribute.String("customer.id", req.CustomerID),
			attribute.Int("order.lines", len(req.Lines)),
		),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
			s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(fault.KindOf(rerr)))))
		}
		span.End()
	}()

	if req.CustomerID == "" {
		return nil, fault.Validationf("customer id is required")
	}
	if len(req.Lines) == 0 {
		return nil, fault.Validationf("order must contain at least one item")
	}
	for _, l := range req.Lines {
		if l.Quantity <= 0 {
			return nil, &InvalidItemError{ProductID: l.ProductID, Reason: "quantity must be greater than 0"}
		}
		if l.Quantity > cart.MaxQuantity {
			return nil, &InvalidItemError{ProductID: l.ProductID, Reason: "quantity is too large"}
		}
	}
	reserve := aggregate(req.Lines)
	for _, l := range reserve {
		if l.Quantity > cart.MaxQuantity {
			return nil, &InvalidItemError{ProductID: l.ProductID, Reason: "combined quantity is too large"}
		}
	}
	if req.Discount.IsNegative() {
		return nil, fault.Validationf("discount must not be negative")
	}
	if !ValidAmount(req.Discount) {
		return nil, fault.Validationf("discount must have at most %d decimal places", MoneyPlaces)
	}
	currency := req.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	var placed *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		items, subtotal, err := s.priceLines(ctx, req.Lines)
		if err != nil {
			return err
		}
		if req.Discount.GreaterThan(subtotal) {
			return fault.Validationf("discount %s exceeds subtotal %s", req.Discount, subtotal)
		}

		for _, l := range reserve {
			if err := s.stock.Reserve(ctx, l.ProductID, l.Quantity); err != nil {
				return err
			}
		}

		seq, err := s.orders.NextNumber(ctx)
		if err != nil {
			return errors.Wrap(err, "next order number")
		}

		now := s.now().UTC()
		o := &Order{
			ID:         uuid.New().String(),
			Number:     FormatNumber(now.Year(), seq),
			CustomerID: req.CustomerID,
			Items:      items,
			Subtotal:   subtotal,
			Discount:   req.Discount,
			Total:      subtotal.Sub(req.Discount),
			Currency:   currency,
			Status:     StatusPending,
			Notes:      req.Notes,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}

		if req.CartID != "" {
			if err := s.carts.Clear(ctx, req.CartID); err != nil {
				return errors.Wrap(err, "clear cart")
			}
		}
		placed = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("order.id", placed.ID),
		attribute.String("order.number", placed.Number),
	)
	s.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("currency", placed.Currency)))
	return placed, nil
}

// Checkout places an order from the customer's cart and empties the cart in
// the same transaction. The cart stays locked until commit, so a concurrent
// checkout of the same cart finds it empty.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	if req.CustomerID == "" {
		return nil, fault.Validationf("customer id is required")
	}

	var placed *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.carts.GetOrCreateForUpdate(ctx, req.CustomerID)
		if err != nil {
			return errors.Wrap(err, "lock cart")
		}
		if len(c.Lines) == 0 {
			return fault.Validationf("cart is empty")
		}

		lines := make([]Line, len(c.Lines))
		for i, l := range c.Lines {
			lines[i] = Line{ProductID: l.ProductID, Quantity: l.Quantity}
		}
		placed, err = s.PlaceOrder(ctx, PlaceOrderRequest{
			CustomerID: req.CustomerID,
			Lines:      lines,
			Discount:   req.Discount,
			Currency:   req.Currency,
			Notes:      req.Notes,
			CartID:     c.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

// Get returns the order with its items.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// ListByCustomer returns the customer's orders, newest first.
func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	if customerID == "" {
		return nil, fault.Validationf("customer id is required")
	}
	orders, err := s.orders.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// UpdateDetails edits notes and discount of a pending or confirmed order and
// recomputes its total.
func (s *Service) UpdateDetails(ctx context.Context, id string, upd DetailsUpdate) (*Order, error) {
	var updated *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, id)
		if err != nil {
			return errors.Wrap(err, "get order")
		}
		if !o.Status.Editable() {
			return errors.Wrapf(fault.ErrIllegalTransition, "order %s is %s", o.ID, o.Status)
		}

		if upd.Notes != nil {
			o.Notes = *upd.Notes
		}
		if upd.Discount != nil {
			d := *upd.Discount
			if d.IsNegative() {
				return fault.Validationf("discount must not be negative")
			}
			if !ValidAmount(d) {
				return fault.Validationf("discount must have at most %d decimal places", MoneyPlaces)
			}
			if d.GreaterThan(o.Subtotal) {
				return fault.Validationf("discount %s exceeds subtotal %s", d, o.Subtotal)
			}
			o.Discount = d
		}
		o.Total = o.Subtotal.Sub(o.Discount)
		o.UpdatedAt = s.now().UTC()

		if err := s.orders.UpdateDetails(ctx, o.ID, o.Notes, o.Discount, o.Total, o.UpdatedAt); err != nil {
			return errors.Wrap(err, "update order")
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// priceLines resolves each line against the catalog and snapshots its unit
// price. Duplicate products stay separate items.
func (s *Service) priceLines(ctx context.Context, lines []Line) ([]Item, decimal.Decimal, error) {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	items := make([]Item, 0, len(lines))
	subtotal := decimal.Zero
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			return nil, decimal.Zero, fault.NotFoundf("product %s", l.ProductID)
		}
		if !p.IsActive {
			return nil, decimal.Zero, &InvalidItemError{ProductID: p.ID, Reason: "product is not available"}
		}
		if !p.Price.IsPositive() {
			return nil, decimal.Zero, &InvalidItemError{ProductID: p.ID, Reason: "unit price must be greater than 0"}
		}
		sub := p.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		items = append(items, Item{
			ProductID: p.ID,
			Quantity:  l.Quantity,
			UnitPrice: p.Price,
			Subtotal:  sub,
		})
		subtotal = subtotal.Add(sub)
	}
	return items, subtotal, nil
}

// aggregate sums quantities per product. The result is sorted by product id
// so concurrent placements lock stock rows in the same order. Inputs are at
// most cart.MaxQuantity each, so the sums cannot wrap.
func aggregate(lines []Line) []Line {
	idx := make(map[string]int, len(lines))
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if i, ok := idx[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		idx[l.ProductID] = len(out)
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
