package fulfillment

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/gmarket/internal/domain/fault"
	"github.com/xenking/gmarket/internal/domain/order"
	"github.com/xenking/gmarket/internal/domain/payment"
	"github.com/xenking/gmarket/internal/domain/shipping"
)

// IssueCode identifies a kind of cross-entity inconsistency.
type IssueCode string

const (
	IssuePaidCancelled        IssueCode = "paid_cancelled_order"
	IssueShippingCancelled    IssueCode = "shipment_for_cancelled_order"
	IssueDeliveredUnmarked    IssueCode = "shipment_delivered_order_not"
	IssueOrderNoShipment      IssueCode = "order_shipped_without_shipment"
	IssueOrderUndelivered     IssueCode = "order_delivered_shipment_not"
	IssueAmountMismatch       IssueCode = "payment_amount_mismatch"
	IssueRefundedNotCancelled IssueCode = "refunded_order_not_cancelled"
)

// Issue is one inconsistency found by Audit.
type Issue struct {
	Code    IssueCode
	Message string
}

// Report is the audit result for one order. Payment and Shipment are nil when
// the order has none.
type Report struct {
	Order    *order.Order
	Payment  *payment.Payment
	Shipment *shipping.Shipment
	Issues   []Issue
}

// Consistent reports whether the audit found nothing.
func (r *Report) Consistent() bool { return len(r.Issues) == 0 }

// Audit compares an order with its payment and shipment and reports
// combinations the independent status fields allow but the business does not
// expect. Nothing is changed or enforced.
func (c *Coordinator) Audit(ctx context.Context, orderID string) (*Report, error) {
	o, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	r := &Report{Order: o}

	switch p, err := c.payments.GetByOrder(ctx, o.ID); {
	case err == nil:
		r.Payment = p
	case !errors.Is(err, fault.ErrNotFound):
		return nil, errors.Wrap(err, "get payment")
	}
	switch sh, err := c.shipments.GetByOrder(ctx, o.ID); {
	case err == nil:
		r.Shipment = sh
	case !errors.Is(err, fault.ErrNotFound):
		return nil, errors.Wrap(err, "get shipment")
	}

	add := func(code IssueCode, format string, args ...any) {
		r.Issues = append(r.Issues, Issue{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if p := r.Payment; p != nil {
		if o.Status == order.StatusCancelled && p.Status == payment.StatusCompleted {
			add(IssuePaidCancelled, "order is cancelled but payment %s is completed", p.ID)
		}
		if p.Status == payment.StatusRefunded && o.Status != order.StatusCancelled {
			add(IssueRefundedNotCancelled, "payment %s is refunded but order is %s", p.ID, o.Status)
		}
		if !p.Amount.Equal(o.Total) {
			add(IssueAmountMismatch, "payment amount %s differs from order total %s", p.Amount, o.Total)
		}
	}

	sh := r.Shipment
	switch {
	case sh == nil && (o.Status == order.StatusShipped || o.Status == order.StatusDelivered):
		add(IssueOrderNoShipment, "order is %s but has no shipment", o.Status)
	case sh == nil:
	case o.Status == order.StatusCancelled && sh.Status != shipping.StatusFailed:
		add(IssueShippingCancelled, "order is cancelled but shipment %s is %s", sh.ID, sh.Status)
	case sh.Status == shipping.StatusDelivered && o.Status != order.StatusDelivered:
		add(IssueDeliveredUnmarked, "shipment %s is delivered but order is %s", sh.ID, o.Status)
	case o.Status == order.StatusDelivered && sh.Status != shipping.StatusDelivered:
		add(IssueOrderUndelivered, "order is delivered but shipment %s is %s", sh.ID, sh.Status)
	}
	return r, nil
}
